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
	"encoding/json"
	"fmt"
	"time"

	"github.com/openconfig/otgharness/internal/table"
)

// Report is a named snapshot of all distributions of a Recorder.
type Report struct {
	Name          string
	Iterations    int
	Distributions []Distribution
}

// Analyze snapshots the recorder's distributions.
func (r *Recorder) Analyze(name string) Report {
	return Report{
		Name:          name,
		Iterations:    r.CountIterations(),
		Distributions: r.Distributions(),
	}
}

type jsonDistribution struct {
	Name  string  `json:"name"`
	Count int     `json:"count"`
	MinMs float64 `json:"min_ms"`
	MaxMs float64 `json:"max_ms"`
	AvgMs float64 `json:"avg_ms"`
	P50Ms float64 `json:"p50_ms"`
	P75Ms float64 `json:"p75_ms"`
	P90Ms float64 `json:"p90_ms"`
	P95Ms float64 `json:"p95_ms"`
	P99Ms float64 `json:"p99_ms"`
}

type jsonReport struct {
	Name          string             `json:"name"`
	Iterations    int                `json:"iterations"`
	Distributions []jsonDistribution `json:"distributions"`
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// JSON encodes the report with durations in milliseconds.
func (rp Report) JSON() ([]byte, error) {
	out := jsonReport{Name: rp.Name, Iterations: rp.Iterations, Distributions: []jsonDistribution{}}
	for _, d := range rp.Distributions {
		out.Distributions = append(out.Distributions, jsonDistribution{
			Name:  d.Name,
			Count: d.Count(),
			MinMs: ms(d.Min),
			MaxMs: ms(d.Max),
			AvgMs: ms(d.Avg),
			P50Ms: ms(d.P50),
			P75Ms: ms(d.P75),
			P90Ms: ms(d.P90),
			P95Ms: ms(d.P95),
			P99Ms: ms(d.P99),
		})
	}
	return json.MarshalIndent(out, "", "  ")
}

func fmtMs(d time.Duration) string {
	return fmt.Sprintf("%.3f", ms(d))
}

// Table renders the report as a text table with durations in milliseconds.
func (rp Report) Table() string {
	t := table.New(fmt.Sprintf("%s (iterations: %d)", rp.Name, rp.Iterations),
		"Operation", "Count", "Min(ms)", "Max(ms)", "Avg(ms)", "p50(ms)", "p75(ms)", "p90(ms)", "p95(ms)", "p99(ms)")
	for _, d := range rp.Distributions {
		t.AppendRow(d.Name, d.Count(), fmtMs(d.Min), fmtMs(d.Max), fmtMs(d.Avg),
			fmtMs(d.P50), fmtMs(d.P75), fmtMs(d.P90), fmtMs(d.P95), fmtMs(d.P99))
	}
	return t.String()
}
