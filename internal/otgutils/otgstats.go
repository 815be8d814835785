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
	"errors"
	"math"
	"slices"
	"time"

	"github.com/openconfig/otgharness/internal/table"
)

// Per-frame wire overhead in bytes: inter-frame gap plus preamble and SFD.
const (
	interFrameGap = 12
	preamble      = 8
)

// ThroughputMetric compares the transmit rate of a line-rate flow with the
// rate its configuration implies.
type ThroughputMetric struct {
	start     time.Time
	snapshots []uint64

	ConfiguredLineSpeedMbps uint64
	ConfiguredLineRate      float64
	ConfiguredFrames        uint64
	ConfiguredSize          uint32
	ConfiguredPps           uint64
	ConfiguredDuration      time.Duration

	TxFrames         uint64
	MinTxPps         uint64
	MaxTxPps         uint64
	AvgTxPps         uint64
	TxThroughput     float64
	TransmitDuration time.Duration
	Ok               bool
}

// NewThroughputMetric returns a metric for a flow of frames frames of size
// bytes sent at lineRate percent of lineSpeedMbps.
func NewThroughputMetric(lineSpeedMbps uint64, lineRate float64, frames uint64, size uint32) *ThroughputMetric {
	return &ThroughputMetric{
		ConfiguredLineSpeedMbps: lineSpeedMbps,
		ConfiguredLineRate:      lineRate,
		ConfiguredFrames:        frames,
		ConfiguredSize:          size,
	}
}

// ExpectedPps returns the frame rate implied by line speed, line rate and
// frame size, counting the per-frame wire overhead.
func ExpectedPps(lineSpeedMbps uint64, lineRate float64, size uint32) uint64 {
	bits := float64(uint64(size)+interFrameGap+preamble) * 8
	return uint64(float64(lineSpeedMbps) * 1e6 * lineRate / 100 / bits)
}

// StartCollecting computes the configured rate and starts the clock.
func (m *ThroughputMetric) StartCollecting() {
	m.ConfiguredPps = ExpectedPps(m.ConfiguredLineSpeedMbps, m.ConfiguredLineRate, m.ConfiguredSize)
	if m.ConfiguredPps > 0 {
		m.ConfiguredDuration = time.Duration(m.ConfiguredFrames*1000/m.ConfiguredPps) * time.Millisecond
	}
	m.start = time.Now()
}

// AddPpsSnapshot records one observation of the flow's tx counters.
func (m *ThroughputMetric) AddPpsSnapshot(txFrames uint64, txPps uint64) {
	m.TxFrames = txFrames
	m.snapshots = append(m.snapshots, txPps)
}

// StopCollecting stops the clock and computes the rate statistics. Zero rate
// snapshots, taken before the flow started or after it stopped, are ignored.
func (m *ThroughputMetric) StopCollecting() error {
	m.TransmitDuration = time.Since(m.start)

	var pps []uint64
	for _, v := range m.snapshots {
		if v != 0 {
			pps = append(pps, v)
		}
	}
	m.Ok = m.TxFrames == m.ConfiguredFrames
	if len(pps) == 0 {
		return errors.New("no non-zero tx rate snapshots")
	}
	slices.Sort(pps)

	m.MinTxPps = pps[0]
	m.MaxTxPps = pps[len(pps)-1]
	var sum uint64
	for _, v := range pps {
		sum += v
	}
	m.AvgTxPps = sum / uint64(len(pps))
	if m.ConfiguredPps > 0 {
		m.TxThroughput = math.Floor(float64(m.MaxTxPps)/float64(m.ConfiguredPps)*100) / 100
	}
	return nil
}

// ThroughputTable renders throughput metrics.
func ThroughputTable(metrics []*ThroughputMetric) *table.Table {
	t := table.New("Throughput Metrics",
		"InSpeedMbps", "InLineRate", "InSize", "TxThroughput", "InFrames", "TxFrames",
		"InPps", "MinTxPps", "MaxTxPps", "AvgTxPps", "InTransmitMs", "OutTransmitMs", "Ok")
	for _, v := range metrics {
		t.AppendRow(v.ConfiguredLineSpeedMbps, v.ConfiguredLineRate, v.ConfiguredSize, v.TxThroughput,
			v.ConfiguredFrames, v.TxFrames, v.ConfiguredPps, v.MinTxPps, v.MaxTxPps, v.AvgTxPps,
			v.ConfiguredDuration.Milliseconds(), v.TransmitDuration.Milliseconds(), v.Ok)
	}
	return t
}
