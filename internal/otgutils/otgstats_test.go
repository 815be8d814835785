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

package otgutils

import (
	"strings"
	"testing"
	"time"
)

func TestExpectedPps(t *testing.T) {
	tests := []struct {
		speed uint64
		rate  float64
		size  uint32
		want  uint64
	}{
		{1000, 100, 128, 844594},
		{1000, 50, 1500, 41118},
		{100000, 100, 64, 148809523},
	}
	for _, tt := range tests {
		if got := ExpectedPps(tt.speed, tt.rate, tt.size); got != tt.want {
			t.Errorf("ExpectedPps(%d, %v, %d) = %d, want %d", tt.speed, tt.rate, tt.size, got, tt.want)
		}
	}
}

func TestThroughputMetric(t *testing.T) {
	m := NewThroughputMetric(1000, 100, 1000, 128)
	m.StartCollecting()
	if m.ConfiguredPps != 844594 {
		t.Errorf("ConfiguredPps = %d, want 844594", m.ConfiguredPps)
	}
	if m.ConfiguredDuration != time.Millisecond {
		t.Errorf("ConfiguredDuration = %v, want 1ms", m.ConfiguredDuration)
	}
	for _, s := range []struct{ tx, pps uint64 }{{0, 0}, {300, 400000}, {800, 844594}, {1000, 600000}, {1000, 0}} {
		m.AddPpsSnapshot(s.tx, s.pps)
	}
	if err := m.StopCollecting(); err != nil {
		t.Fatalf("StopCollecting() failed: %v", err)
	}
	if m.MinTxPps != 400000 || m.MaxTxPps != 844594 || m.AvgTxPps != 614864 {
		t.Errorf("pps min/max/avg = %d/%d/%d, want 400000/844594/614864", m.MinTxPps, m.MaxTxPps, m.AvgTxPps)
	}
	if m.TxThroughput != 1 {
		t.Errorf("TxThroughput = %v, want 1", m.TxThroughput)
	}
	if !m.Ok {
		t.Error("Ok = false with all frames sent")
	}

	out := ThroughputTable([]*ThroughputMetric{m}).String()
	if !strings.Contains(out, "Throughput Metrics") || !strings.Contains(out, "844594") {
		t.Errorf("ThroughputTable() = %s", out)
	}
}

func TestThroughputMetricNoSnapshots(t *testing.T) {
	m := NewThroughputMetric(1000, 100, 10, 128)
	m.StartCollecting()
	m.AddPpsSnapshot(0, 0)
	if err := m.StopCollecting(); err == nil {
		t.Error("StopCollecting() with only zero snapshots succeeded, want error")
	}
	if m.Ok {
		t.Error("Ok = true with no frames sent")
	}
}
