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
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

func TestExpectedStateFor(t *testing.T) {
	cfg, err := otgconfig.Load("../otgconfig/testdata/udp_b2b.yaml")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	// A peer towards an address nobody owns never comes up.
	cfg.Devices[0].BGP.Peers = append(cfg.Devices[0].BGP.Peers, otgconfig.BGPPeer{
		Name: "otg1.bgp4.dut", Address: "1.1.1.9", ASN: 3333,
	})

	want := NewExpectedState()
	want.Flow["f1"] = ExpectedFlowMetrics{FramesTx: 100, FramesRx: 100, Stopped: true}
	want.Bgp4["otg1.bgp4.peer"] = ExpectedBgpMetrics{Advertised: 5, Received: 5}
	want.Bgp4["otg2.bgp4.peer"] = ExpectedBgpMetrics{Advertised: 5, Received: 5}
	if diff := cmp.Diff(want, ExpectedStateFor(cfg)); diff != "" {
		t.Errorf("ExpectedStateFor() diff(-want,+got):\n%s", diff)
	}

	if diff := cmp.Diff([]string{"1.1.1.2", "1.1.1.1"}, Gateways(cfg, otgmetrics.IPv4)); diff != "" {
		t.Errorf("Gateways(ipv4) diff(-want,+got):\n%s", diff)
	}
	if got := Gateways(cfg, otgmetrics.IPv6); len(got) != 0 {
		t.Errorf("Gateways(ipv6) = %v, want none", got)
	}
}

func TestOSPFRoutersAndLAGNames(t *testing.T) {
	cfg, err := otgconfig.Load("../otgconfig/testdata/ospf_lag.yaml")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if diff := cmp.Diff([]string{"otg1.ospfv2", "otg2.ospfv2"}, OSPFRouters(cfg, false)); diff != "" {
		t.Errorf("OSPFRouters(v2) diff(-want,+got):\n%s", diff)
	}
	// otg1's OSPFv3 gateway belongs to nobody.
	if got := OSPFRouters(cfg, true); len(got) != 0 {
		t.Errorf("OSPFRouters(v3) = %v, want none", got)
	}
	if diff := cmp.Diff([]string{"lag1", "lag2"}, LAGNames(cfg)); diff != "" {
		t.Errorf("LAGNames() diff(-want,+got):\n%s", diff)
	}
}
