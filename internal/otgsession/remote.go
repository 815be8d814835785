// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package otgsession

import (
	"context"
	"errors"
	"fmt"

	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

// ControlState is the requested state of protocols, transmit or capture.
type ControlState string

const (
	Start ControlState = "start"
	Stop  ControlState = "stop"
)

// Remote is a traffic generator. Calls block until the generator answers;
// only the transport bounds how long that takes. The returned strings are
// warnings that did not fail the call.
type Remote interface {
	PushConfiguration(ctx context.Context, cfg *otgconfig.Config) ([]string, error)
	SetProtocolState(ctx context.Context, state ControlState) ([]string, error)
	SetTransmitState(ctx context.Context, state ControlState) ([]string, error)
	SetCaptureState(ctx context.Context, ports []string, state ControlState) ([]string, error)

	FlowMetrics(ctx context.Context) ([]otgmetrics.FlowMetric, error)
	PortMetrics(ctx context.Context) ([]otgmetrics.PortMetric, error)
	ProtocolMetrics(ctx context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error)
	Neighbors(ctx context.Context, layer otgmetrics.Layer) ([]otgmetrics.Neighbor, error)
	ProtocolStates(ctx context.Context, kind otgmetrics.StateKind) (otgmetrics.ProtocolStates, error)
	RawCapture(ctx context.Context, port string) ([]byte, error)
}

var (
	// ErrRemoteCall matches every *RemoteError.
	ErrRemoteCall = errors.New("remote call failed")
	// ErrInvalidTransition is returned when a method is called in a state
	// that does not allow it.
	ErrInvalidTransition = errors.New("invalid state transition")
)

// RemoteError wraps an error returned by the Remote unchanged.
type RemoteError struct {
	Op  string
	Err error
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s: remote call failed: %v", e.Op, e.Err)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// Is reports whether target is ErrRemoteCall.
func (e *RemoteError) Is(target error) bool { return target == ErrRemoteCall }
