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

// Package otgfake is an in-memory traffic generator. It emulates ports
// wired back to back: every frame a flow transmits is received on the
// flow's rx endpoints, emulated devices answer each other's ARP and form
// BGP, IS-IS and LLDP adjacencies, and enabled captures record the frames
// seen on their ports.
//
// Flows run in their own goroutines, paced at their configured rate, so
// metrics advance in real time the way they do on hardware.
package otgfake

import (
	"context"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/kr/pretty"
	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/latency"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgsession"
	"k8s.io/klog/v2"
)

// DefaultSpeed is the line speed assumed when a config has no layer1 entry.
const DefaultSpeed = "speed_1_gbps"

// maxCaptureFrames bounds the frames buffered per capture port.
const maxCaptureFrames = 100000

var _ otgsession.Remote = (*Remote)(nil)

// Remote is an in-memory otgsession.Remote.
type Remote struct {
	noise bool

	// mu guards everything below.
	mu        sync.Mutex
	cfg       *otgconfig.Config
	flows     []*flow
	protoUp   bool
	starts    uint64 // protocol starts since the last push
	flaps     map[string]uint64
	captures  map[string]*portCapture
	failures  map[string]error
	calls     map[string]int
	stopFlows chan struct{}

	wg sync.WaitGroup
}

type portCapture struct {
	format  string
	running bool
	started time.Time
	frames  [][]byte
}

// Option configures a Remote.
type Option func(*Remote)

// WithARPNoise sets whether a capture starts with the gratuitous ARP frames
// of the devices on its port. It is on by default.
func WithARPNoise(on bool) Option {
	return func(r *Remote) { r.noise = on }
}

// New returns an unconfigured Remote. Close must be called to stop any
// running flows.
func New(opts ...Option) *Remote {
	r := &Remote{
		noise:    true,
		flaps:    map[string]uint64{},
		captures: map[string]*portCapture{},
		failures: map[string]error{},
		calls:    map[string]int{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Fail makes the next call of op (a Remote method name such as
// "SetTransmitState") return err.
func (r *Remote) Fail(op string, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures[op] = err
}

// Calls returns how many times op was called.
func (r *Remote) Calls(op string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls[op]
}

// enter counts the call, honours a latency requested on ctx and returns an
// injected failure if there is one.
func (r *Remote) enter(ctx context.Context, op string) error {
	r.mu.Lock()
	r.calls[op]++
	err := r.failures[op]
	delete(r.failures, op)
	r.mu.Unlock()

	if d, ok := latency.Delay(ctx); ok {
		klog.V(2).Infof("Injecting latency %v for %s", d, op)
		t := time.NewTimer(d)
		defer t.Stop()
		select {
		case <-t.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return err
}

// PushConfiguration replaces the configuration. Running flows are stopped
// and all counters and captures are reset.
func (r *Remote) PushConfiguration(ctx context.Context, cfg *otgconfig.Config) ([]string, error) {
	if err := r.enter(ctx, "PushConfiguration"); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	flows := make([]*flow, 0, len(cfg.Flows))
	for _, f := range cfg.Flows {
		tmpl, err := newFrameTemplate(f)
		if err != nil {
			return nil, err
		}
		flows = append(flows, &flow{cfg: f, pps: flowPps(cfg, f), tmpl: tmpl})
	}
	r.stopTraffic()

	klog.Infof("Pushing config %q with %d ports, %d devices, %d flows", cfg.Name, len(cfg.Ports), len(cfg.Devices), len(cfg.Flows))
	klog.V(2).Infof("Config: %# v", pretty.Formatter(cfg))

	r.mu.Lock()
	defer r.mu.Unlock()
	r.cfg = cfg
	r.flows = flows
	r.protoUp = false
	r.starts = 0
	r.flaps = map[string]uint64{}
	r.captures = map[string]*portCapture{}
	for _, cp := range cfg.Captures {
		for _, p := range cp.Ports {
			r.captures[p] = &portCapture{format: cp.Format}
		}
	}
	var warnings []string
	if cfg.Layer1 == nil {
		warnings = append(warnings, fmt.Sprintf("no layer1 config, ports run at %s", DefaultSpeed))
	}
	return warnings, nil
}

func (r *Remote) configured() (*otgconfig.Config, error) {
	if r.cfg == nil {
		return nil, fmt.Errorf("no configuration pushed")
	}
	return r.cfg, nil
}

// SetProtocolState starts or stops all emulated protocols.
func (r *Remote) SetProtocolState(ctx context.Context, state otgsession.ControlState) ([]string, error) {
	if err := r.enter(ctx, "SetProtocolState"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.configured(); err != nil {
		return nil, err
	}
	switch state {
	case otgsession.Start:
		if r.protoUp {
			return []string{"protocols already started"}, nil
		}
		r.protoUp = true
		r.starts++
		klog.Infof("Protocols started")
	case otgsession.Stop:
		if r.protoUp {
			for _, p := range r.bgpPeers() {
				if r.peerReachable(p.peer) {
					r.flaps[p.peer.Name]++
				}
			}
			for _, d := range r.cfg.Devices {
				for _, v3 := range []bool{false, true} {
					if _, _, ok := r.cfg.OSPFNeighbor(d, v3); ok {
						r.flaps[ospfRouter(d, v3).Name]++
					}
				}
			}
		}
		r.protoUp = false
		klog.Infof("Protocols stopped")
	default:
		return nil, fmt.Errorf("unknown protocol state %q", state)
	}
	return nil, nil
}

// SetTransmitState starts or stops every flow. Starting resets the flow
// counters.
func (r *Remote) SetTransmitState(ctx context.Context, state otgsession.ControlState) ([]string, error) {
	if err := r.enter(ctx, "SetTransmitState"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	_, err := r.configured()
	r.mu.Unlock()
	if err != nil {
		return nil, err
	}
	switch state {
	case otgsession.Start:
		r.stopTraffic()
		r.startTraffic()
	case otgsession.Stop:
		r.stopTraffic()
	default:
		return nil, fmt.Errorf("unknown transmit state %q", state)
	}
	return nil, nil
}

// SetCaptureState starts or stops capture on ports. Starting clears the
// port's buffer.
func (r *Remote) SetCaptureState(ctx context.Context, ports []string, state otgsession.ControlState) ([]string, error) {
	if err := r.enter(ctx, "SetCaptureState"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cfg, err := r.configured()
	if err != nil {
		return nil, err
	}
	for _, p := range ports {
		pc, ok := r.captures[p]
		if !ok {
			return nil, fmt.Errorf("capture is not enabled on port %q", p)
		}
		switch state {
		case otgsession.Start:
			pc.running = true
			pc.started = time.Now()
			pc.frames = nil
			if r.noise {
				noise, err := arpNoise(cfg, p)
				if err != nil {
					return nil, err
				}
				pc.frames = append(pc.frames, noise...)
			}
			klog.Infof("Capture started on %s", p)
		case otgsession.Stop:
			pc.running = false
			klog.Infof("Capture stopped on %s, %d frames", p, len(pc.frames))
		default:
			return nil, fmt.Errorf("unknown capture state %q", state)
		}
	}
	return nil, nil
}

func arpNoise(cfg *otgconfig.Config, port string) ([][]byte, error) {
	var frames [][]byte
	for _, d := range cfg.Devices {
		if d.Port != port || d.IPv4 == nil {
			continue
		}
		mac, err := net.ParseMAC(d.MAC)
		if err != nil {
			return nil, fmt.Errorf("device %s: %w", d.Name, err)
		}
		ip := net.ParseIP(d.IPv4.Address)
		if ip == nil {
			return nil, fmt.Errorf("device %s: invalid ipv4 address %q", d.Name, d.IPv4.Address)
		}
		b, err := arpFrame(mac, ip)
		if err != nil {
			return nil, err
		}
		frames = append(frames, b)
	}
	return frames, nil
}

// RawCapture returns the frames captured on port, encoded in the capture's
// configured format.
func (r *Remote) RawCapture(ctx context.Context, port string) ([]byte, error) {
	if err := r.enter(ctx, "RawCapture"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	pc, ok := r.captures[port]
	if !ok {
		r.mu.Unlock()
		return nil, fmt.Errorf("capture is not enabled on port %q", port)
	}
	frames := make([][]byte, len(pc.frames))
	copy(frames, pc.frames)
	format, started := pc.format, pc.started
	r.mu.Unlock()

	if format == "pcapng" {
		return capture.EncodeNg(frames, started)
	}
	return capture.Encode(frames, started)
}

// record appends a frame to the capture buffer of port if it is capturing.
// Callers hold mu.
func (r *Remote) record(port string, frame []byte) {
	pc, ok := r.captures[port]
	if !ok || !pc.running || len(pc.frames) >= maxCaptureFrames {
		return
	}
	pc.frames = append(pc.frames, frame)
}

// Close stops all flows and waits for their goroutines to exit.
func (r *Remote) Close() error {
	r.stopTraffic()
	return nil
}
