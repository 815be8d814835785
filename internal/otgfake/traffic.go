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

package otgfake

import (
	"context"
	"time"

	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgutils"
	"k8s.io/klog/v2"
)

// tick is how often a running flow catches up with its schedule.
const tick = 10 * time.Millisecond

type flow struct {
	cfg  otgconfig.Flow
	pps  uint64
	tmpl *frameTemplate

	// Guarded by Remote.mu.
	running bool
	sent    uint64
	rxPorts map[string]uint64
}

func flowPps(cfg *otgconfig.Config, f otgconfig.Flow) uint64 {
	if f.Pps > 0 {
		return f.Pps
	}
	speed := DefaultSpeed
	if cfg.Layer1 != nil {
		speed = cfg.Layer1.Speed
	}
	return otgutils.ExpectedPps(otgconfig.Layer1SpeedToMbps(speed), float64(f.Percentage), f.Size)
}

func (r *Remote) startTraffic() {
	r.mu.Lock()
	defer r.mu.Unlock()
	stop := make(chan struct{})
	r.stopFlows = stop
	for _, f := range r.flows {
		f.running = true
		f.sent = 0
		f.rxPorts = map[string]uint64{}
		r.wg.Add(1)
		go r.run(f, stop)
	}
	klog.Infof("Started transmit on %d flows", len(r.flows))
}

// stopTraffic stops every running flow and waits for the flow goroutines.
func (r *Remote) stopTraffic() {
	r.mu.Lock()
	if r.stopFlows != nil {
		close(r.stopFlows)
		r.stopFlows = nil
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// run transmits f until it has sent its packets or stop is closed.
func (r *Remote) run(f *flow, stop <-chan struct{}) {
	defer r.wg.Done()
	klog.V(1).Infof("Flow %s: sending %d packets at %d pps", f.cfg.Name, f.cfg.Packets, f.pps)
	t := time.NewTicker(tick)
	defer t.Stop()
	start := time.Now()
	for {
		select {
		case <-stop:
			r.mu.Lock()
			f.running = false
			r.mu.Unlock()
			klog.V(1).Infof("Flow %s: stopped after %d packets", f.cfg.Name, f.sent)
			return
		case now := <-t.C:
			due := uint64(now.Sub(start).Seconds() * float64(f.pps))
			if r.send(f, due) {
				klog.V(1).Infof("Flow %s: done", f.cfg.Name)
				return
			}
		}
	}
}

// send transmits frames until due have been sent in total and reports
// whether the flow is done.
func (r *Remote) send(f *flow, due uint64) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	total := uint64(f.cfg.Packets)
	due = min(due, total)
	for ; f.sent < due; f.sent++ {
		rx := r.cfg.EndpointPort(f.cfg, f.cfg.Rx[int(f.sent)%len(f.cfg.Rx)])
		f.rxPorts[rx]++
		if pc, ok := r.captures[rx]; ok && pc.running {
			r.record(rx, f.tmpl.frame(int(f.sent)))
		}
	}
	if f.sent == total {
		f.running = false
		return true
	}
	return false
}

// FlowMetrics returns the counters of every flow, in config order. Frames
// are received the moment they are sent.
func (r *Remote) FlowMetrics(ctx context.Context) ([]otgmetrics.FlowMetric, error) {
	if err := r.enter(ctx, "FlowMetrics"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	ms := make([]otgmetrics.FlowMetric, 0, len(r.flows))
	for _, f := range r.flows {
		m := otgmetrics.FlowMetric{
			Name:     f.cfg.Name,
			Transmit: otgmetrics.TransmitStopped,
			FramesTx: f.sent,
			FramesRx: f.sent,
			BytesTx:  f.sent * uint64(f.cfg.Size),
			BytesRx:  f.sent * uint64(f.cfg.Size),
		}
		if f.running {
			m.Transmit = otgmetrics.TransmitStarted
			m.FramesTxRate = float64(f.pps)
			m.FramesRxRate = float64(f.pps)
		}
		ms = append(ms, m)
	}
	return ms, nil
}

// PortMetrics aggregates the flow counters per port, in config order.
func (r *Remote) PortMetrics(ctx context.Context) ([]otgmetrics.PortMetric, error) {
	if err := r.enter(ctx, "PortMetrics"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.configured(); err != nil {
		return nil, err
	}
	return r.portMetrics(), nil
}

// portMetrics builds the port counters. Callers hold mu.
func (r *Remote) portMetrics() []otgmetrics.PortMetric {
	cfg := r.cfg
	byName := map[string]*otgmetrics.PortMetric{}
	ms := make([]otgmetrics.PortMetric, len(cfg.Ports))
	for i, p := range cfg.Ports {
		ms[i] = otgmetrics.PortMetric{Name: p.Name, Link: "up"}
		if pc, ok := r.captures[p.Name]; ok {
			ms[i].Capture = "stopped"
			if pc.running {
				ms[i].Capture = "started"
			}
		}
		byName[p.Name] = &ms[i]
	}
	for _, f := range r.flows {
		size := uint64(f.cfg.Size)
		if tx, ok := byName[cfg.EndpointPort(f.cfg, f.cfg.Tx)]; ok {
			tx.FramesTx += f.sent
			tx.BytesTx += f.sent * size
			if f.running {
				tx.FramesTxRate += float64(f.pps)
			}
		}
		for port, n := range f.rxPorts {
			if rx, ok := byName[port]; ok {
				rx.FramesRx += n
				rx.BytesRx += n * size
				if f.running {
					rx.FramesRxRate += float64(f.pps) / float64(len(f.cfg.Rx))
				}
			}
		}
	}
	return ms
}
