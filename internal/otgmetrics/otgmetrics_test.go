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

package otgmetrics

import "testing"

func TestParseProtocolKind(t *testing.T) {
	for _, k := range ProtocolKinds {
		got, err := ParseProtocolKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseProtocolKind(%q) = %q, %v", k, got, err)
		}
	}
	if got, err := ParseProtocolKind("OSPFv2"); err != nil || got != OSPFv2 {
		t.Errorf("ParseProtocolKind(OSPFv2) = %q, %v", got, err)
	}
	if _, err := ParseProtocolKind("rsvp"); err == nil {
		t.Error("ParseProtocolKind(rsvp) succeeded, want error")
	}
}

func TestParseStateKind(t *testing.T) {
	for _, k := range StateKinds {
		got, err := ParseStateKind(string(k))
		if err != nil || got != k {
			t.Errorf("ParseStateKind(%q) = %q, %v", k, got, err)
		}
	}
	if _, err := ParseStateKind("rsvp_lsps"); err == nil {
		t.Error("ParseStateKind(rsvp_lsps) succeeded, want error")
	}
}

func TestProtocolMetricsLen(t *testing.T) {
	tests := []struct {
		desc string
		m    ProtocolMetrics
		want int
	}{
		{"bgpv6", ProtocolMetrics{Kind: BGPv6, BGP: make([]BGPMetric, 2)}, 2},
		{"isis ignores bgp", ProtocolMetrics{Kind: ISIS, BGP: make([]BGPMetric, 2)}, 0},
		{"lldp", ProtocolMetrics{Kind: LLDP, LLDP: make([]LLDPMetric, 1)}, 1},
		{"ospfv3", ProtocolMetrics{Kind: OSPFv3, OSPF: make([]OSPFMetric, 2)}, 2},
		{"lag", ProtocolMetrics{Kind: LAG, LAG: make([]LAGMetric, 1)}, 1},
		{"lacp ignores lag", ProtocolMetrics{Kind: LACP, LAG: make([]LAGMetric, 1)}, 0},
		{"unknown", ProtocolMetrics{Kind: "rsvp"}, 0},
	}
	for _, tt := range tests {
		if got := tt.m.Len(); got != tt.want {
			t.Errorf("%s: Len() = %d, want %d", tt.desc, got, tt.want)
		}
	}
}

func TestProtocolStatesLen(t *testing.T) {
	tests := []struct {
		desc string
		s    ProtocolStates
		want int
	}{
		{"bgp prefixes", ProtocolStates{Kind: BGPPrefixes, BGPPrefixes: make([]BGPPrefix, 3)}, 3},
		{"ospfv2 lsas", ProtocolStates{Kind: OSPFv2Lsas, OSPFLsas: make([]OSPFLSA, 2)}, 2},
		{"isis ignores ospf", ProtocolStates{Kind: ISISLsps, OSPFLsas: make([]OSPFLSA, 2)}, 0},
		{"unknown", ProtocolStates{Kind: "rsvp_lsps"}, 0},
	}
	for _, tt := range tests {
		if got := tt.s.Len(); got != tt.want {
			t.Errorf("%s: Len() = %d, want %d", tt.desc, got, tt.want)
		}
	}
}

func TestNeighborResolved(t *testing.T) {
	if (Neighbor{Address: "1.1.1.2"}).Resolved() {
		t.Error("Resolved() = true for a neighbor without link layer address")
	}
	if !(Neighbor{Address: "1.1.1.2", LinkLayerAddress: "00:00:01:01:01:02"}).Resolved() {
		t.Error("Resolved() = false for a resolved neighbor")
	}
}
