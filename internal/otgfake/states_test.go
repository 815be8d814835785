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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgsession"
)

func TestRoutePrefixes(t *testing.T) {
	tests := []struct {
		rr   otgconfig.RouteRange
		want []string
	}{
		{otgconfig.RouteRange{Address: "10.10.0.0", Prefix: 24, Count: 3}, []string{"10.10.0.0/24", "10.10.1.0/24", "10.10.2.0/24"}},
		{otgconfig.RouteRange{Address: "20.20.20.0", Prefix: 32}, []string{"20.20.20.0/32"}},
		{otgconfig.RouteRange{Address: "2001:db8::", Prefix: 64, Count: 2}, []string{"2001:db8::/64", "2001:db8:0:1::/64"}},
		{otgconfig.RouteRange{Address: "bogus", Prefix: 24, Count: 2}, nil},
	}
	for _, tt := range tests {
		if diff := cmp.Diff(tt.want, routePrefixes(tt.rr)); diff != "" {
			t.Errorf("routePrefixes(%+v) diff(-want,+got):\n%s", tt.rr, diff)
		}
	}
}

func states(t *testing.T, r *Remote, kind otgmetrics.StateKind) otgmetrics.ProtocolStates {
	t.Helper()
	st, err := r.ProtocolStates(context.Background(), kind)
	if err != nil {
		t.Fatalf("ProtocolStates(%s) failed: %v", kind, err)
	}
	return st
}

func TestProtocolStatesBGPAndISIS(t *testing.T) {
	cfg := loadB2B(t, 50)
	cfg.Devices[0].ISIS = &otgconfig.ISIS{Name: "otg1.isis", SystemID: "640000000001", Level: "l2"}
	cfg.Devices[1].ISIS = &otgconfig.ISIS{Name: "otg2.isis", SystemID: "640000000002", Level: "l1l2"}
	r := newConfigured(t, cfg)

	if st := states(t, r, otgmetrics.BGPPrefixes); st.Len() != 0 {
		t.Errorf("BGP prefixes learned before protocols started: %+v", st.BGPPrefixes)
	}
	if _, err := r.SetProtocolState(context.Background(), otgsession.Start); err != nil {
		t.Fatalf("SetProtocolState(start) failed: %v", err)
	}

	bgp := states(t, r, otgmetrics.BGPPrefixes)
	if bgp.Len() != 10 {
		t.Fatalf("ProtocolStates(bgp_prefixes) has %d prefixes, want 10", bgp.Len())
	}
	want := otgmetrics.BGPPrefix{PeerName: "otg1.bgp4.peer", Prefix: "20.20.20.4/32", NextHop: "1.1.1.2", Origin: "igp"}
	if diff := cmp.Diff(want, bgp.BGPPrefixes[4]); diff != "" {
		t.Errorf("fifth prefix diff(-want,+got):\n%s", diff)
	}

	lsps := states(t, r, otgmetrics.ISISLsps)
	wantLsps := []otgmetrics.ISISLSP{
		{RouterName: "otg1.isis", LspID: "640000000001-00-00", PDUType: "level_2", SequenceNumber: 1},
		{RouterName: "otg1.isis", LspID: "640000000002-00-00", PDUType: "level_2", SequenceNumber: 1},
		{RouterName: "otg2.isis", LspID: "640000000001-00-00", PDUType: "level_2", SequenceNumber: 1},
		{RouterName: "otg2.isis", LspID: "640000000002-00-00", PDUType: "level_1", SequenceNumber: 1},
		{RouterName: "otg2.isis", LspID: "640000000002-00-00", PDUType: "level_2", SequenceNumber: 1},
	}
	if diff := cmp.Diff(wantLsps, lsps.ISISLsps); diff != "" {
		t.Errorf("ProtocolStates(isis_lsps) diff(-want,+got):\n%s", diff)
	}

	if _, err := r.ProtocolStates(context.Background(), otgmetrics.StateKind("rsvp_lsps")); err == nil {
		t.Error("ProtocolStates(rsvp_lsps) succeeded, want error")
	}
}

func TestProtocolStatesOSPFAndLLDP(t *testing.T) {
	cfg, err := otgconfig.Load("../otgconfig/testdata/ospf_lag.yaml")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	r := newConfigured(t, cfg)
	if _, err := r.SetProtocolState(context.Background(), otgsession.Start); err != nil {
		t.Fatalf("SetProtocolState(start) failed: %v", err)
	}

	lsas := states(t, r, otgmetrics.OSPFv2Lsas)
	if lsas.Len() != 10 {
		t.Errorf("ProtocolStates(ospfv2_lsas) has %d LSAs, want 10", lsas.Len())
	}
	learned := map[string]int{}
	for _, l := range lsas.OSPFLsas {
		if l.RouterName == "otg2.ospfv2" && l.AdvertisingRouter == "1.1.1.1" {
			learned[l.Type]++
		}
	}
	if diff := cmp.Diff(map[string]int{"router": 1, "external_as": 3}, learned); diff != "" {
		t.Errorf("LSAs otg2 learned from otg1 diff(-want,+got):\n%s", diff)
	}
	// Without a neighbor a router holds only its own router LSA.
	v3 := states(t, r, otgmetrics.OSPFv3Lsas)
	wantV3 := []otgmetrics.OSPFLSA{{RouterName: "otg1.ospfv3", Type: "router", LsaID: "1.1.1.1", AdvertisingRouter: "1.1.1.1", SequenceNumber: initialLSASequence}}
	if diff := cmp.Diff(wantV3, v3.OSPFLsas); diff != "" {
		t.Errorf("ProtocolStates(ospfv3_lsas) diff(-want,+got):\n%s", diff)
	}

	lldp := states(t, r, otgmetrics.LLDPNeighbors)
	wantLLDP := []otgmetrics.LLDPNeighbor{
		{LldpName: "otg1.lldp", SystemName: "otg2", ChassisID: "00:00:01:01:01:02", PortID: "p3"},
		{LldpName: "otg2.lldp", SystemName: "otg1", ChassisID: "00:00:01:01:01:01", PortID: "p1"},
	}
	if diff := cmp.Diff(wantLLDP, lldp.LLDPNeighbors); diff != "" {
		t.Errorf("ProtocolStates(lldp_neighbors) diff(-want,+got):\n%s", diff)
	}
}
