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

// Package latency records how long traffic generator operations take and
// derives per-operation latency distributions from the recorded samples.
package latency

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"k8s.io/klog/v2"
)

var (
	// ErrEmptySeries is returned when statistics are requested for an
	// operation without samples.
	ErrEmptySeries = errors.New("no samples recorded")
	// ErrNegativeDuration is returned by Record for durations below zero.
	ErrNegativeDuration = errors.New("negative duration")
	// ErrEmptyName is returned by Record for a sample without an operation
	// name, which would read back as an iteration boundary.
	ErrEmptyName = errors.New("empty operation name")
)

// Percentiles reported for every distribution.
var Percentiles = []int{50, 75, 90, 95, 99}

// Sample is one timed operation. A Sample with an empty Name marks an
// iteration boundary.
type Sample struct {
	Name     string
	Duration time.Duration
	Time     time.Time
}

// IsBoundary reports whether s is an iteration boundary marker.
func (s Sample) IsBoundary() bool { return s.Name == "" }

// Recorder is an append-only log of samples.
type Recorder struct {
	mu      sync.Mutex
	samples []Sample
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Record appends a sample of the named operation. Boundary markers are
// added with MarkIterationBoundary only.
func (r *Recorder) Record(name string, d time.Duration, at time.Time) error {
	if name == "" {
		return fmt.Errorf("%w: sample of %v at %v", ErrEmptyName, d, at)
	}
	if d < 0 {
		return fmt.Errorf("%w: %s took %v", ErrNegativeDuration, name, d)
	}
	r.append(Sample{Name: name, Duration: d, Time: at})
	return nil
}

func (r *Recorder) append(s Sample) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = append(r.samples, s)
}

// Timer records the time elapsed since start under name and returns it.
// It is meant to be deferred: defer rec.Timer(time.Now(), "SetConfig").
// A sample Record rejects is logged and dropped.
func (r *Recorder) Timer(start time.Time, name string) time.Duration {
	elapsed := time.Since(start)
	if err := r.Record(name, elapsed, start); err != nil {
		klog.Warningf("Dropping latency sample: %v", err)
	}
	return elapsed
}

// MarkIterationBoundary appends an iteration boundary marker.
func (r *Recorder) MarkIterationBoundary() {
	r.append(Sample{Time: time.Now()})
}

// CountIterations returns the number of boundary markers.
func (r *Recorder) CountIterations() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, s := range r.samples {
		if s.IsBoundary() {
			n++
		}
	}
	return n
}

// Len returns the number of samples, boundary markers included.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.samples)
}

// Count returns the number of samples recorded under name.
func (r *Recorder) Count(name string) int {
	return len(r.durations(name))
}

// Samples returns a copy of all samples in recording order.
func (r *Recorder) Samples() []Sample {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.samples)
}

// Reset drops all samples.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.samples = nil
}

// Names returns the distinct operation names in first-seen order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	var names []string
	seen := map[string]bool{}
	for _, s := range r.samples {
		if s.IsBoundary() || seen[s.Name] {
			continue
		}
		seen[s.Name] = true
		names = append(names, s.Name)
	}
	return names
}

func (r *Recorder) durations(name string) []time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	var durs []time.Duration
	for _, s := range r.samples {
		if !s.IsBoundary() && s.Name == name {
			durs = append(durs, s.Duration)
		}
	}
	return durs
}

// DistributionFor computes the distribution of all samples recorded under
// name.
func (r *Recorder) DistributionFor(name string) (Distribution, error) {
	return NewDistribution(name, r.durations(name))
}

// Distributions returns one distribution per operation name, in the order
// names were first recorded.
func (r *Recorder) Distributions() []Distribution {
	var dists []Distribution
	for _, name := range r.Names() {
		d, err := r.DistributionFor(name)
		if err != nil {
			continue
		}
		dists = append(dists, d)
	}
	return dists
}

// Distribution summarises the samples of one operation.
type Distribution struct {
	Name string
	// Durations is sorted ascending.
	Durations []time.Duration
	Min       time.Duration
	Max       time.Duration
	Avg       time.Duration
	P50       time.Duration
	P75       time.Duration
	P90       time.Duration
	P95       time.Duration
	P99       time.Duration
}

// Count returns the number of samples in the distribution.
func (d Distribution) Count() int { return len(d.Durations) }

// NewDistribution sorts durs and computes its statistics.
func NewDistribution(name string, durs []time.Duration) (Distribution, error) {
	if len(durs) == 0 {
		return Distribution{}, fmt.Errorf("%w for %q", ErrEmptySeries, name)
	}
	sorted := slices.Clone(durs)
	slices.Sort(sorted)

	var sum time.Duration
	for _, d := range sorted {
		sum += d
	}
	d := Distribution{
		Name:      name,
		Durations: sorted,
		Min:       sorted[0],
		Max:       sorted[len(sorted)-1],
		Avg:       sum / time.Duration(len(sorted)),
	}
	for _, p := range Percentiles {
		v, _ := Percentile(sorted, p)
		switch p {
		case 50:
			d.P50 = v
		case 75:
			d.P75 = v
		case 90:
			d.P90 = v
		case 95:
			d.P95 = v
		case 99:
			d.P99 = v
		}
	}
	return d, nil
}

// Percentile returns the nearest-rank percentile p of sorted, the element at
// index p*n/100. Indices past the end clamp to the last element, so p=100
// returns the maximum.
func Percentile(sorted []time.Duration, p int) (time.Duration, error) {
	if len(sorted) == 0 {
		return 0, ErrEmptySeries
	}
	if p < 0 || p > 100 {
		return 0, fmt.Errorf("percentile %d out of range [0,100]", p)
	}
	idx := p * len(sorted) / 100
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx], nil
}
