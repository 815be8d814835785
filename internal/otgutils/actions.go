// Copyright 2024 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package otgutils

import (
	"context"
	"fmt"

	"github.com/openconfig/otgharness/internal/otgmetrics"
	"k8s.io/klog/v2"
)

func findFlow(metrics []otgmetrics.FlowMetric, name string) (otgmetrics.FlowMetric, bool) {
	for _, m := range metrics {
		if m.Name == name {
			return m, true
		}
	}
	return otgmetrics.FlowMetric{}, false
}

// GetFlowStats waits for flowName to stop transmitting and for its rx count
// to catch up with its tx count, then returns both. If rx never catches up
// the last counts are returned along with the wait error, so callers can
// report loss.
func GetFlowStats(ctx context.Context, w *Waiter, src MetricsSource, flowName string, opts *WaitForOpts) (txPackets, rxPackets uint64, err error) {
	o := opts.withDefaults()
	var last otgmetrics.FlowMetric

	o.Condition = fmt.Sprintf("flow %s to stop", flowName)
	err = w.WaitForContext(ctx, func() (bool, error) {
		metrics, err := src.FlowMetrics(ctx)
		if err != nil {
			return false, err
		}
		m, ok := findFlow(metrics, flowName)
		if !ok {
			return false, fmt.Errorf("no metrics for flow %q", flowName)
		}
		last = m
		return m.Transmit == otgmetrics.TransmitStopped, nil
	}, &o)
	if err != nil {
		klog.Warningf("Flow %s still not stopped: %v. Stats may be inconsistent", flowName, err)
	}

	o.Condition = fmt.Sprintf("flow %s rx to match tx", flowName)
	err = w.WaitForContext(ctx, func() (bool, error) {
		metrics, err := src.FlowMetrics(ctx)
		if err != nil {
			return false, err
		}
		m, ok := findFlow(metrics, flowName)
		if !ok {
			return false, fmt.Errorf("no metrics for flow %q", flowName)
		}
		last = m
		return m.FramesRx == m.FramesTx, nil
	}, &o)
	return last.FramesTx, last.FramesRx, err
}
