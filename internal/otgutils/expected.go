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
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

// ExpectedStateFor derives the state of a healthy run of cfg. Every flow
// with a packet count stops after receiving all of its packets. Every BGP
// peer whose remote end is emulated advertises its own routes and receives
// the remote's.
func ExpectedStateFor(cfg *otgconfig.Config) ExpectedState {
	expected := NewExpectedState()
	for _, f := range cfg.Flows {
		if f.Packets == 0 {
			continue
		}
		expected.Flow[f.Name] = ExpectedFlowMetrics{
			FramesTx: uint64(f.Packets),
			FramesRx: uint64(f.Packets),
			Stopped:  true,
		}
	}
	for _, d := range cfg.Devices {
		if d.BGP == nil {
			continue
		}
		for _, p := range d.BGP.Peers {
			remote, ok := cfg.RemotePeer(d, p)
			if !ok {
				continue
			}
			m := ExpectedBgpMetrics{
				Advertised: otgconfig.RouteCount(p.Routes),
				Received:   otgconfig.RouteCount(remote.Routes),
			}
			if p.AddressFamily() == "ipv6" {
				expected.Bgp6[p.Name] = m
			} else {
				expected.Bgp4[p.Name] = m
			}
		}
	}
	return expected
}

// Gateways lists the gateway of every device interface of layer, in device
// order.
func Gateways(cfg *otgconfig.Config, layer otgmetrics.Layer) []string {
	var gws []string
	for _, d := range cfg.Devices {
		a := d.IPv4
		if layer == otgmetrics.IPv6 {
			a = d.IPv6
		}
		if a != nil && a.Gateway != "" {
			gws = append(gws, a.Gateway)
		}
	}
	return gws
}

// OSPFRouters lists the OSPFv2 (or, with v3, OSPFv3) routers of cfg whose
// gateway device runs a router of the same version.
func OSPFRouters(cfg *otgconfig.Config, v3 bool) []string {
	var names []string
	for _, d := range cfg.Devices {
		if _, _, ok := cfg.OSPFNeighbor(d, v3); !ok {
			continue
		}
		if v3 {
			names = append(names, d.OSPFv3.Name)
		} else {
			names = append(names, d.OSPFv2.Name)
		}
	}
	return names
}

// LAGNames lists the LAGs of cfg in config order.
func LAGNames(cfg *otgconfig.Config) []string {
	var names []string
	for _, l := range cfg.Lags {
		names = append(names, l.Name)
	}
	return names
}
