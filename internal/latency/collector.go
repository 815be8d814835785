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

package latency

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	operationDuration = prometheus.NewDesc(
		"otg_operation_duration_seconds",
		"Duration of traffic generator operations, by operation name.",
		[]string{"session", "operation"}, nil,
	)
	iterationsTotal = prometheus.NewDesc(
		"otg_iterations_total",
		"Number of completed scenario iterations.",
		[]string{"session"}, nil,
	)
)

// Collector exports the distributions of a Recorder as Prometheus
// summaries. Quantiles are the nearest-rank percentiles of the recorder.
type Collector struct {
	session string
	rec     *Recorder
}

// NewCollector returns a collector labelling its metrics with session.
func NewCollector(session string, rec *Recorder) *Collector {
	return &Collector{session: session, rec: rec}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- operationDuration
	ch <- iterationsTotal
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	for _, d := range c.rec.Distributions() {
		var sum float64
		for _, v := range d.Durations {
			sum += v.Seconds()
		}
		quantiles := map[float64]float64{
			0.50: d.P50.Seconds(),
			0.75: d.P75.Seconds(),
			0.90: d.P90.Seconds(),
			0.95: d.P95.Seconds(),
			0.99: d.P99.Seconds(),
		}
		ch <- prometheus.MustNewConstSummary(
			operationDuration,
			uint64(d.Count()), sum, quantiles,
			c.session, d.Name,
		)
	}
	ch <- prometheus.MustNewConstMetric(
		iterationsTotal,
		prometheus.CounterValue,
		float64(c.rec.CountIterations()),
		c.session,
	)
}
