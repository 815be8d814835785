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
	"context"

	"github.com/openconfig/otgharness/internal/otgmetrics"
)

type ExpectedBgpMetrics struct {
	Advertised uint64
	Received   uint64
}

type ExpectedIsisMetrics struct {
	L1SessionsUp   uint32
	L2SessionsUp   uint32
	L1DatabaseSize uint64
	L2DatabaseSize uint64
}

type ExpectedPortMetrics struct {
	FramesTx uint64
	FramesRx uint64
}

// ExpectedFlowMetrics describes the final counters of a flow. With Stopped
// set, the flow must also have stopped transmitting.
type ExpectedFlowMetrics struct {
	FramesTx uint64
	FramesRx uint64
	Stopped  bool
}

// ExpectedState holds the expected metrics per object name. An object listed
// here must be present in the fetched metrics.
type ExpectedState struct {
	Port map[string]ExpectedPortMetrics
	Flow map[string]ExpectedFlowMetrics
	Bgp4 map[string]ExpectedBgpMetrics
	Bgp6 map[string]ExpectedBgpMetrics
	Isis map[string]ExpectedIsisMetrics
}

func NewExpectedState() ExpectedState {
	return ExpectedState{
		Port: map[string]ExpectedPortMetrics{},
		Flow: map[string]ExpectedFlowMetrics{},
		Bgp4: map[string]ExpectedBgpMetrics{},
		Bgp6: map[string]ExpectedBgpMetrics{},
		Isis: map[string]ExpectedIsisMetrics{},
	}
}

// FlowMetricsMatch reports whether every expected flow is present with the
// expected tx and rx counts, and stopped where required.
func FlowMetricsMatch(metrics []otgmetrics.FlowMetric, expected map[string]ExpectedFlowMetrics) bool {
	byName := map[string]otgmetrics.FlowMetric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}
	for name, e := range expected {
		m, ok := byName[name]
		if !ok {
			return false
		}
		if m.FramesTx != e.FramesTx || m.FramesRx != e.FramesRx {
			return false
		}
		if e.Stopped && m.Transmit != otgmetrics.TransmitStopped {
			return false
		}
	}
	return true
}

// PortMetricsMatch reports whether every expected port is present with the
// expected frame counts.
func PortMetricsMatch(metrics []otgmetrics.PortMetric, expected map[string]ExpectedPortMetrics) bool {
	byName := map[string]otgmetrics.PortMetric{}
	for _, m := range metrics {
		byName[m.Name] = m
	}
	for name, e := range expected {
		m, ok := byName[name]
		if !ok || m.FramesTx != e.FramesTx || m.FramesRx != e.FramesRx {
			return false
		}
	}
	return true
}

// BgpSessionsUp reports whether every expected peer is present AND up AND
// advertised the expected number of routes AND received the expected number
// of routes. An empty expectation requires every reported peer to be up.
func BgpSessionsUp(peers []otgmetrics.BGPMetric, expected map[string]ExpectedBgpMetrics) bool {
	if len(expected) == 0 {
		for _, p := range peers {
			if p.SessionState != otgmetrics.SessionUp {
				return false
			}
		}
		return len(peers) > 0
	}
	byName := map[string]otgmetrics.BGPMetric{}
	for _, p := range peers {
		byName[p.Name] = p
	}
	for name, e := range expected {
		p, ok := byName[name]
		if !ok {
			return false
		}
		if p.SessionState != otgmetrics.SessionUp || p.RoutesAdvertised != e.Advertised || p.RoutesReceived != e.Received {
			return false
		}
	}
	return true
}

// BgpSessionsDown reports whether every reported peer is down.
func BgpSessionsDown(peers []otgmetrics.BGPMetric) bool {
	for _, p := range peers {
		if p.SessionState != otgmetrics.SessionDown {
			return false
		}
	}
	return true
}

// OspfRoutersFull reports whether every named router has at least one
// neighbor in the full state.
func OspfRoutersFull(routers []otgmetrics.OSPFMetric, names []string) bool {
	full := map[string]bool{}
	for _, r := range routers {
		full[r.Name] = r.FullStateCount > 0
	}
	for _, n := range names {
		if !full[n] {
			return false
		}
	}
	return true
}

// LagsUp reports whether every named LAG is operationally up.
func LagsUp(lags []otgmetrics.LAGMetric, names []string) bool {
	up := map[string]bool{}
	for _, l := range lags {
		up[l.Name] = l.OperStatus == "up"
	}
	for _, n := range names {
		if !up[n] {
			return false
		}
	}
	return true
}

// IsisMetricsMatch reports whether every expected router is present with the
// expected session and database counts.
func IsisMetricsMatch(routers []otgmetrics.ISISMetric, expected map[string]ExpectedIsisMetrics) bool {
	byName := map[string]otgmetrics.ISISMetric{}
	for _, r := range routers {
		byName[r.Name] = r
	}
	for name, e := range expected {
		r, ok := byName[name]
		if !ok {
			return false
		}
		if r.L1SessionsUp != e.L1SessionsUp || r.L2SessionsUp != e.L2SessionsUp ||
			r.L1DatabaseSize != e.L1DatabaseSize || r.L2DatabaseSize != e.L2DatabaseSize {
			return false
		}
	}
	return true
}

// NeighborsResolved reports whether every address in expected has a
// resolved neighbor entry.
func NeighborsResolved(neighbors []otgmetrics.Neighbor, expected []string) bool {
	var resolved []string
	for _, n := range neighbors {
		if n.Resolved() {
			resolved = append(resolved, n.Address)
		}
	}
	return expectedElementsPresent(expected, resolved)
}

func expectedElementsPresent(expected, actual []string) bool {
	exists := make(map[string]bool)
	for _, value := range actual {
		exists[value] = true
	}
	for _, value := range expected {
		if !exists[value] {
			return false
		}
	}
	return true
}

// MetricsSource fetches metrics and states from a traffic generator.
type MetricsSource interface {
	FlowMetrics(ctx context.Context) ([]otgmetrics.FlowMetric, error)
	PortMetrics(ctx context.Context) ([]otgmetrics.PortMetric, error)
	ProtocolMetrics(ctx context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error)
	Neighbors(ctx context.Context, layer otgmetrics.Layer) ([]otgmetrics.Neighbor, error)
}

// FlowMetricsOk returns a WaitFor predicate for FlowMetricsMatch.
func FlowMetricsOk(ctx context.Context, src MetricsSource, expected ExpectedState) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.FlowMetrics(ctx)
		if err != nil {
			return false, err
		}
		return FlowMetricsMatch(m, expected.Flow), nil
	}
}

// PortMetricsOk returns a WaitFor predicate for PortMetricsMatch.
func PortMetricsOk(ctx context.Context, src MetricsSource, expected ExpectedState) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.PortMetrics(ctx)
		if err != nil {
			return false, err
		}
		return PortMetricsMatch(m, expected.Port), nil
	}
}

// AllBgp4SessionUp returns a WaitFor predicate for BgpSessionsUp over the
// BGPv4 peers.
func AllBgp4SessionUp(ctx context.Context, src MetricsSource, expected ExpectedState) func() (bool, error) {
	return bgpUp(ctx, src, otgmetrics.BGPv4, expected.Bgp4)
}

// AllBgp6SessionUp is the BGPv6 counterpart of AllBgp4SessionUp.
func AllBgp6SessionUp(ctx context.Context, src MetricsSource, expected ExpectedState) func() (bool, error) {
	return bgpUp(ctx, src, otgmetrics.BGPv6, expected.Bgp6)
}

func bgpUp(ctx context.Context, src MetricsSource, kind otgmetrics.ProtocolKind, expected map[string]ExpectedBgpMetrics) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.ProtocolMetrics(ctx, kind)
		if err != nil {
			return false, err
		}
		return BgpSessionsUp(m.BGP, expected), nil
	}
}

// AllBgp4SessionDown returns a WaitFor predicate for BgpSessionsDown over
// the BGPv4 peers.
func AllBgp4SessionDown(ctx context.Context, src MetricsSource) func() (bool, error) {
	return bgpDown(ctx, src, otgmetrics.BGPv4)
}

// AllBgp6SessionDown is the BGPv6 counterpart of AllBgp4SessionDown.
func AllBgp6SessionDown(ctx context.Context, src MetricsSource) func() (bool, error) {
	return bgpDown(ctx, src, otgmetrics.BGPv6)
}

func bgpDown(ctx context.Context, src MetricsSource, kind otgmetrics.ProtocolKind) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.ProtocolMetrics(ctx, kind)
		if err != nil {
			return false, err
		}
		return BgpSessionsDown(m.BGP), nil
	}
}

// IsisMetricsOk returns a WaitFor predicate for IsisMetricsMatch.
func IsisMetricsOk(ctx context.Context, src MetricsSource, expected ExpectedState) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.ProtocolMetrics(ctx, otgmetrics.ISIS)
		if err != nil {
			return false, err
		}
		return IsisMetricsMatch(m.ISIS, expected.Isis), nil
	}
}

// OspfRoutersFullOk returns a WaitFor predicate for OspfRoutersFull over the
// OSPF routers of kind.
func OspfRoutersFullOk(ctx context.Context, src MetricsSource, kind otgmetrics.ProtocolKind, names []string) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.ProtocolMetrics(ctx, kind)
		if err != nil {
			return false, err
		}
		return OspfRoutersFull(m.OSPF, names), nil
	}
}

// LagsUpOk returns a WaitFor predicate for LagsUp.
func LagsUpOk(ctx context.Context, src MetricsSource, names []string) func() (bool, error) {
	return func() (bool, error) {
		m, err := src.ProtocolMetrics(ctx, otgmetrics.LAG)
		if err != nil {
			return false, err
		}
		return LagsUp(m.LAG, names), nil
	}
}

// ArpEntriesOk returns a WaitFor predicate that holds once every address in
// expected is resolved in the neighbor table of layer.
func ArpEntriesOk(ctx context.Context, src MetricsSource, layer otgmetrics.Layer, expected []string) func() (bool, error) {
	return func() (bool, error) {
		n, err := src.Neighbors(ctx, layer)
		if err != nil {
			return false, err
		}
		return NeighborsResolved(n, expected), nil
	}
}

// All returns a predicate that holds when every predicate holds. Predicates
// are evaluated in order and evaluation stops at the first false or error.
func All(preds ...func() (bool, error)) func() (bool, error) {
	return func() (bool, error) {
		for _, p := range preds {
			ok, err := p()
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
}
