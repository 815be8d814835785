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

package otgconfig

import (
	"testing"
)

func TestToSnappi(t *testing.T) {
	c, err := Load("testdata/udp_b2b.yaml")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	top, err := c.ToSnappi()
	if err != nil {
		t.Fatalf("ToSnappi() failed: %v", err)
	}

	if got := len(top.Ports().Items()); got != 2 {
		t.Errorf("ToSnappi() has %d ports, want 2", got)
	}
	if got := len(top.Devices().Items()); got != 2 {
		t.Errorf("ToSnappi() has %d devices, want 2", got)
	}
	if got := len(top.Captures().Items()); got != 1 {
		t.Errorf("ToSnappi() has %d captures, want 1", got)
	}

	flows := top.Flows().Items()
	if len(flows) != 1 {
		t.Fatalf("ToSnappi() has %d flows, want 1", len(flows))
	}
	f := flows[0]
	if f.Name() != "f1" {
		t.Errorf("flow name = %q, want f1", f.Name())
	}
	if got := f.Size().Fixed(); got != 128 {
		t.Errorf("flow size = %d, want 128", got)
	}
	if got := f.Rate().Pps(); got != 50 {
		t.Errorf("flow pps = %d, want 50", got)
	}
	if got := f.Duration().FixedPackets().Packets(); got != 100 {
		t.Errorf("flow packets = %d, want 100", got)
	}
	if got := len(f.Packet().Items()); got != 3 {
		t.Errorf("flow has %d headers, want 3", got)
	}

	peers := top.Devices().Items()[0].Bgp().Ipv4Interfaces().Items()[0].Peers().Items()
	if len(peers) != 1 || peers[0].Name() != "otg1.bgp4.peer" {
		t.Errorf("device otg1 bgp peers = %v, want [otg1.bgp4.peer]", peers)
	}

	if _, err := top.Marshal().ToJson(); err != nil {
		t.Errorf("ToSnappi() produced a config that does not serialise: %v", err)
	}
}

func TestToSnappiInvalid(t *testing.T) {
	c := &Config{}
	if _, err := c.ToSnappi(); err == nil {
		t.Error("ToSnappi() of an empty config succeeded, want error")
	}
}

func TestToSnappiHeaders(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	c.Flows[0].Size = 256
	c.Flows[0].Pps = 0
	c.Flows[0].Percentage = 10
	c.Flows[0].Headers = []Header{
		{Type: "ethernet"},
		{Type: "vlan", Fields: map[string]Pattern{"id": {Value: "100"}}},
		{Type: "ipv4", Fields: map[string]Pattern{"ttl": {Value: "64"}}},
		{Type: "udp", Fields: map[string]Pattern{"dst_port": {Value: "4789"}}},
		{Type: "vxlan", Fields: map[string]Pattern{"vni": {Increment: &Counter{Start: "1000", Count: 5}}}},
		{Type: "ethernet"},
		{Type: "ipv6", Fields: map[string]Pattern{"src": {Values: []string{"2001:db8::1", "2001:db8::2"}}}},
		{Type: "tcp", Fields: map[string]Pattern{"src_port": {Decrement: &Counter{Start: "100", Count: 10}}}},
	}
	top, err := c.ToSnappi()
	if err != nil {
		t.Fatalf("ToSnappi() failed: %v", err)
	}
	f := top.Flows().Items()[0]
	if got := len(f.Packet().Items()); got != 8 {
		t.Errorf("flow has %d headers, want 8", got)
	}
	if got := f.Rate().Percentage(); got != 10 {
		t.Errorf("flow rate = %v%%, want 10%%", got)
	}
}

func TestToSnappiOSPFAndLag(t *testing.T) {
	c, err := Parse([]byte(minimal))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	c.Lags = []LAG{
		{Name: "lag1", Ports: []string{"p1"}, MAC: "00:00:01:01:01:10"},
		{Name: "lag2", Ports: []string{"p2"}, MAC: "00:00:01:01:01:20", Protocol: "static"},
	}
	c.Devices = []Device{{
		Name: "d1", Port: "p1", MAC: "00:00:01:01:01:01",
		IPv4:   &IPAddr{Address: "1.1.1.1", Gateway: "1.1.1.2", Prefix: 24},
		IPv6:   &IPAddr{Address: "2001:db8::1", Gateway: "2001:db8::2", Prefix: 64},
		OSPFv2: &OSPF{Name: "d1.ospfv2", RouterID: "1.1.1.1", Routes: []RouteRange{{Name: "d1.ospfv2.rr", Address: "10.10.0.1", Prefix: 32, Count: 4}}},
		OSPFv3: &OSPF{Name: "d1.ospfv3", RouterID: "1.1.1.1"},
	}}
	top, err := c.ToSnappi()
	if err != nil {
		t.Fatalf("ToSnappi() failed: %v", err)
	}

	lags := top.Lags().Items()
	if len(lags) != 2 {
		t.Fatalf("ToSnappi() has %d lags, want 2", len(lags))
	}
	if got := lags[0].Protocol().Lacp().ActorSystemId(); got != "00:00:01:01:01:10" {
		t.Errorf("lag1 actor system id = %q, want 00:00:01:01:01:10", got)
	}
	if got := lags[1].Protocol().Static().LagId(); got != 2 {
		t.Errorf("lag2 static id = %d, want 2", got)
	}

	dev := top.Devices().Items()[0]
	if got := dev.Ospfv2().Name(); got != "d1.ospfv2" {
		t.Errorf("ospfv2 name = %q, want d1.ospfv2", got)
	}
	if got := dev.Ospfv2().Interfaces().Items()[0].Ipv4Name(); got != "d1.ipv4" {
		t.Errorf("ospfv2 interface = %q, want d1.ipv4", got)
	}
	if got := dev.Ospfv2().V4Routes().Items()[0].Addresses().Items()[0].Count(); got != 4 {
		t.Errorf("ospfv2 route count = %d, want 4", got)
	}
	if got := dev.Ospfv3().Instances().Items()[0].Interfaces().Items()[0].Ipv6Name(); got != "d1.ipv6" {
		t.Errorf("ospfv3 interface = %q, want d1.ipv6", got)
	}
}
