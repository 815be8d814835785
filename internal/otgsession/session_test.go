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
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgutils"
)

type stubRemote struct {
	calls    []string
	errs     map[string]error
	warnings []string
	flows    []otgmetrics.FlowMetric
	states   otgmetrics.ProtocolStates
	raw      []byte
}

func (r *stubRemote) call(op string) ([]string, error) {
	r.calls = append(r.calls, op)
	return r.warnings, r.errs[op]
}

func (r *stubRemote) PushConfiguration(_ context.Context, _ *otgconfig.Config) ([]string, error) {
	return r.call("PushConfiguration")
}

func (r *stubRemote) SetProtocolState(_ context.Context, state ControlState) ([]string, error) {
	return r.call("SetProtocolState/" + string(state))
}

func (r *stubRemote) SetTransmitState(_ context.Context, state ControlState) ([]string, error) {
	return r.call("SetTransmitState/" + string(state))
}

func (r *stubRemote) SetCaptureState(_ context.Context, ports []string, state ControlState) ([]string, error) {
	return r.call(fmt.Sprintf("SetCaptureState/%s%v", state, ports))
}

func (r *stubRemote) FlowMetrics(context.Context) ([]otgmetrics.FlowMetric, error) {
	_, err := r.call("FlowMetrics")
	return r.flows, err
}

func (r *stubRemote) PortMetrics(context.Context) ([]otgmetrics.PortMetric, error) {
	_, err := r.call("PortMetrics")
	return nil, err
}

func (r *stubRemote) ProtocolMetrics(_ context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error) {
	_, err := r.call("ProtocolMetrics")
	return otgmetrics.ProtocolMetrics{Kind: kind}, err
}

func (r *stubRemote) Neighbors(context.Context, otgmetrics.Layer) ([]otgmetrics.Neighbor, error) {
	_, err := r.call("Neighbors")
	return nil, err
}

func (r *stubRemote) ProtocolStates(_ context.Context, kind otgmetrics.StateKind) (otgmetrics.ProtocolStates, error) {
	_, err := r.call("ProtocolStates/" + string(kind))
	return r.states, err
}

func (r *stubRemote) RawCapture(context.Context, string) ([]byte, error) {
	_, err := r.call("RawCapture")
	return r.raw, err
}

type logRecorder struct {
	lines []string
}

func (l *logRecorder) Logf(format string, args ...any) {
	l.lines = append(l.lines, fmt.Sprintf(format, args...))
}

func (l *logRecorder) contains(s string) bool {
	for _, line := range l.lines {
		if strings.Contains(line, s) {
			return true
		}
	}
	return false
}

const scenario = `
ports:
  - {name: p1, location: "localhost:5555"}
  - {name: p2, location: "localhost:5556"}
flows:
  - name: f1
    tx: p1
    rx: [p2]
    size: 128
    pps: 50
    packets: 100
    headers:
      - type: ethernet
captures:
  - {name: c2, ports: [p2]}
`

func testConfig(t *testing.T) *otgconfig.Config {
	t.Helper()
	cfg, err := otgconfig.Parse([]byte(scenario))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return cfg
}

func newSession(t *testing.T, r Remote, opts ...Option) (*Session, *logRecorder) {
	t.Helper()
	l := &logRecorder{}
	return New(r, append([]Option{WithLogger(l)}, opts...)...), l
}

func TestTransitions(t *testing.T) {
	ctx := context.Background()
	type step struct {
		name    string
		call    func(*Session) error
		want    State
		wantErr error
	}
	var cfg *otgconfig.Config
	push := step{"PushConfig", func(s *Session) error { return s.PushConfig(ctx, cfg) }, Configured, nil}
	startP := step{"StartProtocols", func(s *Session) error { return s.StartProtocols(ctx) }, ProtocolsStarted, nil}
	stopP := step{"StopProtocols", func(s *Session) error { return s.StopProtocols(ctx) }, Stopped, nil}
	startT := step{"StartTransmit", func(s *Session) error { return s.StartTransmit(ctx) }, Transmitting, nil}
	stopT := step{"StopTransmit", func(s *Session) error { return s.StopTransmit(ctx) }, Stopped, nil}
	with := func(st step, want State, err error) step {
		st.want, st.wantErr = want, err
		return st
	}

	tests := []struct {
		desc  string
		steps []step
	}{{
		desc:  "full cycle",
		steps: []step{push, startP, startT, stopT, stopP},
	}, {
		desc:  "transmit without protocols",
		steps: []step{push, startT, stopT},
	}, {
		desc:  "transmit again after stop",
		steps: []step{push, startT, stopT, startT, stopT},
	}, {
		desc:  "reconfigure after stop",
		steps: []step{push, startT, stopT, push},
	}, {
		desc:  "stop transmit twice",
		steps: []step{push, startT, stopT, stopT},
	}, {
		desc:  "stop protocols while transmitting",
		steps: []step{push, startP, startT, with(stopP, Transmitting, nil)},
	}, {
		desc:  "transmit before config",
		steps: []step{with(startT, Unconfigured, ErrInvalidTransition)},
	}, {
		desc:  "protocols before config",
		steps: []step{with(startP, Unconfigured, ErrInvalidTransition)},
	}, {
		desc:  "push while transmitting",
		steps: []step{push, startT, with(push, Transmitting, ErrInvalidTransition)},
	}, {
		desc:  "start transmit twice",
		steps: []step{push, startT, with(startT, Transmitting, ErrInvalidTransition)},
	}, {
		desc:  "push twice",
		steps: []step{push, with(push, Configured, ErrInvalidTransition)},
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			cfg = testConfig(t)
			s, _ := newSession(t, &stubRemote{})
			for i, st := range tt.steps {
				err := st.call(s)
				if !errors.Is(err, st.wantErr) {
					t.Fatalf("step %d %s: got err %v, want %v", i, st.name, err, st.wantErr)
				}
				if got := s.State(); got != st.want {
					t.Fatalf("step %d %s: state %v, want %v", i, st.name, got, st.want)
				}
			}
		})
	}
}

func TestOneSamplePerCall(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	r := &stubRemote{errs: map[string]error{"FlowMetrics": boom}}
	s, _ := newSession(t, r)

	if err := s.StartTransmit(ctx); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("StartTransmit() got err %v, want ErrInvalidTransition", err)
	}
	if err := s.PushConfig(ctx, testConfig(t)); err != nil {
		t.Fatalf("PushConfig() failed: %v", err)
	}
	if _, err := s.FlowMetrics(ctx); !errors.Is(err, boom) {
		t.Fatalf("FlowMetrics() got err %v, want %v", err, boom)
	}
	if _, err := s.PortMetrics(ctx); err != nil {
		t.Fatalf("PortMetrics() failed: %v", err)
	}

	rec := s.Recorder()
	want := map[string]int{"StartTransmit": 1, "PushConfig": 1, "FlowMetrics": 1, "PortMetrics": 1}
	for name, n := range want {
		if got := rec.Count(name); got != n {
			t.Errorf("Count(%s) = %d, want %d", name, got, n)
		}
	}
	if got := rec.Len(); got != 4 {
		t.Errorf("Len() = %d, want 4", got)
	}
	if diff := cmp.Diff([]string{"PushConfiguration", "FlowMetrics", "PortMetrics"}, r.calls); diff != "" {
		t.Errorf("remote calls diff(-want,+got):\n%s", diff)
	}
}

func TestRemoteError(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("connection refused")
	r := &stubRemote{errs: map[string]error{"PushConfiguration": cause}}
	s, _ := newSession(t, r)

	err := s.PushConfig(ctx, testConfig(t))
	if !errors.Is(err, ErrRemoteCall) {
		t.Errorf("PushConfig() err %v does not match ErrRemoteCall", err)
	}
	if !errors.Is(err, cause) {
		t.Errorf("PushConfig() err %v does not wrap the remote error", err)
	}
	var re *RemoteError
	if !errors.As(err, &re) || re.Op != "PushConfig" {
		t.Errorf("PushConfig() err %v, want *RemoteError for PushConfig", err)
	}
	if s.State() != Unconfigured || s.Config() != nil {
		t.Errorf("failed PushConfig changed state to %v", s.State())
	}
}

func TestInvalidConfig(t *testing.T) {
	r := &stubRemote{}
	s, _ := newSession(t, r)
	cfg := testConfig(t)
	cfg.Flows[0].Rx = nil
	err := s.PushConfig(context.Background(), cfg)
	if !errors.Is(err, otgconfig.ErrInvalidConfig) {
		t.Fatalf("PushConfig() got err %v, want ErrInvalidConfig", err)
	}
	if len(r.calls) != 0 {
		t.Errorf("invalid config reached the remote: %v", r.calls)
	}
}

func TestWarningsLogged(t *testing.T) {
	r := &stubRemote{warnings: []string{"port p1 link flapped"}}
	s, l := newSession(t, r)
	if err := s.PushConfig(context.Background(), testConfig(t)); err != nil {
		t.Fatalf("PushConfig() failed: %v", err)
	}
	if !l.contains("WARNING: port p1 link flapped") {
		t.Errorf("warning not logged, log:\n%s", strings.Join(l.lines, "\n"))
	}
	if !l.contains("Elapsed duration for PushConfig") {
		t.Errorf("elapsed time not logged, log:\n%s", strings.Join(l.lines, "\n"))
	}
}

func TestCaptureGating(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		desc      string
		enabled   bool
		wantCalls []string
		wantLog   string
	}{{
		desc:      "enabled",
		enabled:   true,
		wantCalls: []string{"PushConfiguration", "SetCaptureState/start[p2]", "SetCaptureState/stop[p2]"},
	}, {
		desc:      "disabled",
		enabled:   false,
		wantCalls: []string{"PushConfiguration"},
		wantLog:   "Capture disabled, StartCapture skipped",
	}}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			r := &stubRemote{}
			s, l := newSession(t, r, WithCapture(tt.enabled))
			if err := s.PushConfig(ctx, testConfig(t)); err != nil {
				t.Fatalf("PushConfig() failed: %v", err)
			}
			if err := s.StartCapture(ctx); err != nil {
				t.Fatalf("StartCapture() failed: %v", err)
			}
			if err := s.StopCapture(ctx); err != nil {
				t.Fatalf("StopCapture() failed: %v", err)
			}
			if diff := cmp.Diff(tt.wantCalls, r.calls); diff != "" {
				t.Errorf("remote calls diff(-want,+got):\n%s", diff)
			}
			if got := s.Recorder().Count("StartCapture"); got != 1 {
				t.Errorf("Count(StartCapture) = %d, want 1", got)
			}
			if tt.wantLog != "" && !l.contains(tt.wantLog) {
				t.Errorf("log does not contain %q", tt.wantLog)
			}
		})
	}
}

func TestCapture(t *testing.T) {
	frames := [][]byte{make([]byte, 60), make([]byte, 124)}
	raw, err := capture.Encode(frames, time.Unix(0, 0))
	if err != nil {
		t.Fatalf("Encode() failed: %v", err)
	}
	s, l := newSession(t, &stubRemote{raw: raw})
	c, err := s.Capture(context.Background(), "p2")
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if c.Len() != 2 {
		t.Errorf("Capture() has %d frames, want 2", c.Len())
	}
	if !l.contains("Capture p2 (2 frames)") {
		t.Errorf("capture table not logged, log:\n%s", strings.Join(l.lines, "\n"))
	}

	s, _ = newSession(t, &stubRemote{raw: []byte("not a pcap")})
	if _, err := s.Capture(context.Background(), "p2"); !errors.Is(err, capture.ErrMalformedCapture) {
		t.Errorf("Capture() got err %v, want ErrMalformedCapture", err)
	}
}

func TestCaptureDisabled(t *testing.T) {
	r := &stubRemote{raw: []byte("not a pcap")}
	s, l := newSession(t, r, WithCapture(false))
	c, err := s.Capture(context.Background(), "p2")
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	if c.Len() != 0 {
		t.Errorf("Capture() has %d frames, want 0", c.Len())
	}
	if len(r.calls) != 0 {
		t.Errorf("disabled capture reached the remote: %v", r.calls)
	}
	if !l.contains("Capture disabled, Capture skipped") {
		t.Errorf("skip not logged, log:\n%s", strings.Join(l.lines, "\n"))
	}
	if got := s.Recorder().Count("Capture"); got != 1 {
		t.Errorf("Count(Capture) = %d, want 1", got)
	}
}

func TestProtocolStates(t *testing.T) {
	ctx := context.Background()
	r := &stubRemote{states: otgmetrics.ProtocolStates{
		Kind:          otgmetrics.LLDPNeighbors,
		LLDPNeighbors: []otgmetrics.LLDPNeighbor{{LldpName: "otg1.lldp", SystemName: "otg2", PortID: "p2"}},
	}}
	s, l := newSession(t, r)
	st, err := s.ProtocolStates(ctx, otgmetrics.LLDPNeighbors)
	if err != nil {
		t.Fatalf("ProtocolStates() failed: %v", err)
	}
	if st.Len() != 1 {
		t.Errorf("ProtocolStates() has %d records, want 1", st.Len())
	}
	if !l.contains("otg1.lldp") {
		t.Errorf("states table not logged, log:\n%s", strings.Join(l.lines, "\n"))
	}

	cause := errors.New("unimplemented")
	r.errs = map[string]error{"ProtocolStates/isis_lsps": cause}
	_, err = s.ProtocolStates(ctx, otgmetrics.ISISLsps)
	var re *RemoteError
	if !errors.As(err, &re) || re.Op != "ProtocolStates" || !errors.Is(err, cause) {
		t.Errorf("ProtocolStates() got err %v, want *RemoteError wrapping %v", err, cause)
	}
	if got := s.Recorder().Count("ProtocolStates"); got != 2 {
		t.Errorf("Count(ProtocolStates) = %d, want 2", got)
	}
}

func TestCleanup(t *testing.T) {
	ctx := context.Background()
	r := &stubRemote{}
	s, _ := newSession(t, r)
	if err := s.PushConfig(ctx, testConfig(t)); err != nil {
		t.Fatalf("PushConfig() failed: %v", err)
	}
	if err := s.StartProtocols(ctx); err != nil {
		t.Fatalf("StartProtocols() failed: %v", err)
	}
	if err := s.StartTransmit(ctx); err != nil {
		t.Fatalf("StartTransmit() failed: %v", err)
	}
	r.calls = nil
	if err := s.Cleanup(ctx); err != nil {
		t.Fatalf("Cleanup() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"SetTransmitState/stop", "SetProtocolState/stop"}, r.calls); diff != "" {
		t.Errorf("remote calls diff(-want,+got):\n%s", diff)
	}
	if s.State() != Stopped {
		t.Errorf("State() = %v, want Stopped", s.State())
	}
	if got := s.Recorder().Count("Cleanup"); got != 1 {
		t.Errorf("Count(Cleanup) = %d, want 1", got)
	}
}

// Lost frames never arrive; the counts are still returned.
func TestFlowStatsLoss(t *testing.T) {
	r := &stubRemote{flows: []otgmetrics.FlowMetric{
		{Name: "f1", Transmit: otgmetrics.TransmitStopped, FramesTx: 100, FramesRx: 99},
	}}
	s, _ := newSession(t, r)
	tx, rx, err := s.FlowStats(context.Background(), "f1", &otgutils.WaitForOpts{Interval: time.Millisecond, Timeout: 50 * time.Millisecond})
	if !errors.Is(err, otgutils.ErrDeadlineExceeded) {
		t.Fatalf("FlowStats() got err %v, want ErrDeadlineExceeded", err)
	}
	if tx != 100 || rx != 99 {
		t.Errorf("FlowStats() = %d, %d, want 100, 99", tx, rx)
	}
}
