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

// Package otgsession drives one traffic generator test session through
// configuration, protocol, transmit and capture states, timing every call.
package otgsession

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/latency"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgutils"
	"github.com/openconfig/otgharness/internal/table"
	"k8s.io/klog/v2"
)

// State is the session state.
type State int

const (
	Unconfigured State = iota
	Configured
	ProtocolsStarted
	Transmitting
	Stopped
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "Unconfigured"
	case Configured:
		return "Configured"
	case ProtocolsStarted:
		return "ProtocolsStarted"
	case Transmitting:
		return "Transmitting"
	case Stopped:
		return "Stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

// Logger receives the session log. *testing.T satisfies it.
type Logger interface {
	Logf(format string, args ...any)
}

type klogLogger struct{}

func (klogLogger) Logf(format string, args ...any) {
	klog.InfoDepth(1, fmt.Sprintf(format, args...))
}

// Option configures a Session.
type Option func(*Session)

// WithLogger sends the session log to l instead of klog.
func WithLogger(l Logger) Option {
	return func(s *Session) { s.log = l }
}

// WithCapture enables or disables packet capture. Capture is enabled by
// default.
func WithCapture(enabled bool) Option {
	return func(s *Session) { s.captureEnabled = enabled }
}

// WithRecorder records samples into rec instead of a new recorder.
func WithRecorder(rec *latency.Recorder) Option {
	return func(s *Session) { s.rec = rec }
}

// Session is one test session against a Remote. A Session is not safe for
// concurrent use; independent sessions share nothing.
type Session struct {
	remote         Remote
	rec            *latency.Recorder
	waiter         *otgutils.Waiter
	log            Logger
	captureEnabled bool

	state       State
	protocolsUp bool
	cfg         *otgconfig.Config
}

// New returns an Unconfigured session driving remote.
func New(remote Remote, opts ...Option) *Session {
	s := &Session{
		remote:         remote,
		log:            klogLogger{},
		captureEnabled: true,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rec == nil {
		s.rec = latency.NewRecorder()
	}
	s.waiter = otgutils.NewWaiter(s.rec)
	return s
}

// State returns the current state.
func (s *Session) State() State { return s.state }

// Config returns the last pushed configuration, or nil.
func (s *Session) Config() *otgconfig.Config { return s.cfg }

// CaptureEnabled reports whether capture calls reach the remote.
func (s *Session) CaptureEnabled() bool { return s.captureEnabled }

// Recorder returns the session's latency recorder.
func (s *Session) Recorder() *latency.Recorder { return s.rec }

func (s *Session) timer(start time.Time, name string) {
	d := s.rec.Timer(start, name)
	s.log.Logf("Elapsed duration for %s: %d ms", name, d.Milliseconds())
}

func (s *Session) logWarnings(warnings []string) {
	for _, w := range warnings {
		s.log.Logf("WARNING: %s", w)
	}
}

func (s *Session) check(op string, allowed ...State) error {
	if slices.Contains(allowed, s.state) {
		return nil
	}
	return fmt.Errorf("%s in state %s: %w", op, s.state, ErrInvalidTransition)
}

// PushConfig validates cfg and sends it to the remote. Remote warnings are
// logged and do not fail the call.
func (s *Session) PushConfig(ctx context.Context, cfg *otgconfig.Config) error {
	defer s.timer(time.Now(), "PushConfig")
	s.log.Logf("Setting config ...")

	if err := s.check("PushConfig", Unconfigured, Stopped); err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	warnings, err := s.remote.PushConfiguration(ctx, cfg)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: "PushConfig", Err: err}
	}
	s.cfg = cfg
	s.state = Configured
	s.protocolsUp = false
	return nil
}

// StartProtocols starts all emulated protocols.
func (s *Session) StartProtocols(ctx context.Context) error {
	defer s.timer(time.Now(), "StartProtocols")
	s.log.Logf("Starting protocols ...")

	if err := s.check("StartProtocols", Configured, ProtocolsStarted, Transmitting, Stopped); err != nil {
		return err
	}
	warnings, err := s.remote.SetProtocolState(ctx, Start)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: "StartProtocols", Err: err}
	}
	s.protocolsUp = true
	if s.state == Configured || s.state == Stopped {
		s.state = ProtocolsStarted
	}
	return nil
}

// StopProtocols stops all emulated protocols. Stopping stopped protocols is
// not an error.
func (s *Session) StopProtocols(ctx context.Context) error {
	defer s.timer(time.Now(), "StopProtocols")
	s.log.Logf("Stopping protocols ...")

	if err := s.check("StopProtocols", Configured, ProtocolsStarted, Transmitting, Stopped); err != nil {
		return err
	}
	warnings, err := s.remote.SetProtocolState(ctx, Stop)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: "StopProtocols", Err: err}
	}
	s.protocolsUp = false
	if s.state == ProtocolsStarted {
		s.state = Stopped
	}
	return nil
}

// StartTransmit starts all configured flows. It may follow StopTransmit to
// run the flows again.
func (s *Session) StartTransmit(ctx context.Context) error {
	defer s.timer(time.Now(), "StartTransmit")
	s.log.Logf("Starting transmit ...")

	if err := s.check("StartTransmit", Configured, ProtocolsStarted, Stopped); err != nil {
		return err
	}
	warnings, err := s.remote.SetTransmitState(ctx, Start)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: "StartTransmit", Err: err}
	}
	s.state = Transmitting
	return nil
}

// StopTransmit stops all flows. Stopping stopped flows is not an error.
func (s *Session) StopTransmit(ctx context.Context) error {
	defer s.timer(time.Now(), "StopTransmit")
	s.log.Logf("Stopping transmit ...")

	if err := s.check("StopTransmit", Configured, ProtocolsStarted, Transmitting, Stopped); err != nil {
		return err
	}
	warnings, err := s.remote.SetTransmitState(ctx, Stop)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: "StopTransmit", Err: err}
	}
	if s.state == Transmitting {
		s.state = Stopped
	}
	return nil
}

func (s *Session) setCapture(ctx context.Context, op string, state ControlState) error {
	if !s.captureEnabled {
		s.log.Logf("Capture disabled, %s skipped", op)
		return nil
	}
	if err := s.check(op, Configured, ProtocolsStarted, Transmitting, Stopped); err != nil {
		return err
	}
	ports := s.cfg.CapturePorts()
	if len(ports) == 0 {
		s.log.Logf("No capture ports configured, %s skipped", op)
		return nil
	}
	warnings, err := s.remote.SetCaptureState(ctx, ports, state)
	s.logWarnings(warnings)
	if err != nil {
		return &RemoteError{Op: op, Err: err}
	}
	return nil
}

// StartCapture starts capture on every capture port of the pushed config.
// It does nothing when capture is disabled.
func (s *Session) StartCapture(ctx context.Context) error {
	defer s.timer(time.Now(), "StartCapture")
	s.log.Logf("Starting capture ...")
	return s.setCapture(ctx, "StartCapture", Start)
}

// StopCapture stops capture. It does nothing when capture is disabled.
func (s *Session) StopCapture(ctx context.Context) error {
	defer s.timer(time.Now(), "StopCapture")
	s.log.Logf("Stopping capture ...")
	return s.setCapture(ctx, "StopCapture", Stop)
}

// FlowMetrics returns the metrics of every flow.
func (s *Session) FlowMetrics(ctx context.Context) ([]otgmetrics.FlowMetric, error) {
	defer s.timer(time.Now(), "FlowMetrics")
	s.log.Logf("Getting flow metrics ...")

	m, err := s.remote.FlowMetrics(ctx)
	if err != nil {
		return nil, &RemoteError{Op: "FlowMetrics", Err: err}
	}
	s.log.Logf("%s", otgutils.FlowMetricsTable(m))
	return m, nil
}

// PortMetrics returns the metrics of every port.
func (s *Session) PortMetrics(ctx context.Context) ([]otgmetrics.PortMetric, error) {
	defer s.timer(time.Now(), "PortMetrics")
	s.log.Logf("Getting port metrics ...")

	m, err := s.remote.PortMetrics(ctx)
	if err != nil {
		return nil, &RemoteError{Op: "PortMetrics", Err: err}
	}
	s.log.Logf("%s", otgutils.PortMetricsTable(m))
	return m, nil
}

// ProtocolMetrics returns the per-session or per-router records of kind.
func (s *Session) ProtocolMetrics(ctx context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error) {
	defer s.timer(time.Now(), "ProtocolMetrics")
	s.log.Logf("Getting %s metrics ...", kind)

	m, err := s.remote.ProtocolMetrics(ctx, kind)
	if err != nil {
		return otgmetrics.ProtocolMetrics{}, &RemoteError{Op: "ProtocolMetrics", Err: err}
	}
	s.log.Logf("%s", otgutils.ProtocolMetricsTable(m))
	return m, nil
}

// Neighbors returns the neighbor (ARP or ND) states of layer.
func (s *Session) Neighbors(ctx context.Context, layer otgmetrics.Layer) ([]otgmetrics.Neighbor, error) {
	defer s.timer(time.Now(), "Neighbors")
	s.log.Logf("Getting %s neighbors ...", layer)

	n, err := s.remote.Neighbors(ctx, layer)
	if err != nil {
		return nil, &RemoteError{Op: "Neighbors", Err: err}
	}
	s.log.Logf("%s", otgutils.NeighborsTable(layer, n))
	return n, nil
}

// ProtocolStates returns the prefixes, LSPs, LSAs or LLDP neighbors the
// generator's protocols have learned.
func (s *Session) ProtocolStates(ctx context.Context, kind otgmetrics.StateKind) (otgmetrics.ProtocolStates, error) {
	defer s.timer(time.Now(), "ProtocolStates")
	s.log.Logf("Getting %s states ...", kind)

	st, err := s.remote.ProtocolStates(ctx, kind)
	if err != nil {
		return otgmetrics.ProtocolStates{}, &RemoteError{Op: "ProtocolStates", Err: err}
	}
	s.log.Logf("%s", otgutils.ProtocolStatesTable(st))
	return st, nil
}

// maxCaptureRows bounds the capture summary written to the log.
const maxCaptureRows = 10

// Capture fetches and parses the frames captured on port. When capture is
// disabled it returns an empty capture without contacting the generator.
func (s *Session) Capture(ctx context.Context, port string) (*capture.Capture, error) {
	defer s.timer(time.Now(), "Capture")
	if !s.captureEnabled {
		s.log.Logf("Capture disabled, Capture skipped")
		return &capture.Capture{Frames: []capture.Frame{}}, nil
	}
	s.log.Logf("Getting capture from port %s ...", port)

	raw, err := s.remote.RawCapture(ctx, port)
	if err != nil {
		return nil, &RemoteError{Op: "Capture", Err: err}
	}
	c, err := capture.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("capture from port %s: %w", port, err)
	}

	tb := table.New(fmt.Sprintf("Capture %s (%d frames)", port, c.Len()), "Seq", "Length", "Layers")
	for _, f := range c.Frames[:min(c.Len(), maxCaptureRows)] {
		tb.AppendRow(f.Sequence, f.Len(), f.Summary())
	}
	s.log.Logf("%s", tb)
	return c, nil
}

// WaitFor polls fn with the session's waiter; see otgutils.Waiter.
func (s *Session) WaitFor(fn func() (bool, error), opts *otgutils.WaitForOpts) error {
	return s.waiter.WaitFor(fn, opts)
}

// WaitForContext is WaitFor that also stops when ctx is done.
func (s *Session) WaitForContext(ctx context.Context, fn func() (bool, error), opts *otgutils.WaitForOpts) error {
	return s.waiter.WaitForContext(ctx, fn, opts)
}

// FlowStats waits for flowName to stop and for its rx count to catch up,
// then returns its tx and rx counts.
func (s *Session) FlowStats(ctx context.Context, flowName string, opts *otgutils.WaitForOpts) (tx, rx uint64, err error) {
	return otgutils.GetFlowStats(ctx, s.waiter, s, flowName, opts)
}

// MarkIteration separates the samples of two scenario iterations.
func (s *Session) MarkIteration() { s.rec.MarkIterationBoundary() }

// Report summarises every recorded operation.
func (s *Session) Report(name string) latency.Report {
	rp := s.rec.Analyze(name)
	s.log.Logf("%s", rp.Table())
	return rp
}

// Cleanup stops transmit and protocols if they are running. It is meant to
// be deferred after a failed scenario step.
func (s *Session) Cleanup(ctx context.Context) error {
	defer s.timer(time.Now(), "Cleanup")

	var errs []error
	if s.state == Transmitting {
		errs = append(errs, s.StopTransmit(ctx))
	}
	if s.protocolsUp {
		errs = append(errs, s.StopProtocols(ctx))
	}
	return errors.Join(errs...)
}
