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
	"encoding/binary"
	"fmt"
	"net"

	"github.com/openconfig/otgharness/internal/fieldcodec"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

// initialLSASequence is the first sequence number of a self-originated LSA.
const initialLSASequence = 0x80000001

// ProtocolStates returns what the emulated protocols have learned. Nothing
// is learned while protocols are stopped.
func (r *Remote) ProtocolStates(ctx context.Context, kind otgmetrics.StateKind) (otgmetrics.ProtocolStates, error) {
	if err := r.enter(ctx, "ProtocolStates"); err != nil {
		return otgmetrics.ProtocolStates{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.configured(); err != nil {
		return otgmetrics.ProtocolStates{}, err
	}
	st := otgmetrics.ProtocolStates{Kind: kind}
	switch kind {
	case otgmetrics.BGPPrefixes, otgmetrics.ISISLsps, otgmetrics.OSPFv2Lsas, otgmetrics.OSPFv3Lsas, otgmetrics.LLDPNeighbors:
	default:
		return otgmetrics.ProtocolStates{}, fmt.Errorf("unknown state kind %q", kind)
	}
	if !r.protoUp {
		return st, nil
	}
	switch kind {
	case otgmetrics.BGPPrefixes:
		st.BGPPrefixes = r.bgpPrefixes()
	case otgmetrics.ISISLsps:
		st.ISISLsps = r.isisLsps()
	case otgmetrics.OSPFv2Lsas:
		st.OSPFLsas = r.ospfLsas(false)
	case otgmetrics.OSPFv3Lsas:
		st.OSPFLsas = r.ospfLsas(true)
	case otgmetrics.LLDPNeighbors:
		st.LLDPNeighbors = r.lldpNeighbors()
	}
	return st, nil
}

// routePrefixes expands rr into its prefixes. Consecutive prefixes are one
// prefix length apart.
func routePrefixes(rr otgconfig.RouteRange) []string {
	n := max(int(rr.Count), 1)
	ip := net.ParseIP(rr.Address)
	var (
		addrs []string
		err   error
	)
	switch {
	case ip == nil:
		return nil
	case ip.To4() != nil:
		step := make(net.IP, 4)
		if rr.Prefix > 0 && rr.Prefix <= 32 {
			binary.BigEndian.PutUint32(step, uint32(1)<<(32-rr.Prefix))
		}
		addrs, err = fieldcodec.GenerateIPsWithStep(rr.Address, n, step.String())
	default:
		step := make(net.IP, 16)
		if rr.Prefix > 0 && rr.Prefix <= 128 {
			bit := 128 - rr.Prefix
			step[15-bit/8] = 1 << (bit % 8)
		}
		addrs, err = fieldcodec.GenerateIPv6sWithStep(rr.Address, n, step.String())
	}
	if err != nil {
		return nil
	}
	ps := make([]string, len(addrs))
	for i, a := range addrs {
		ps[i] = fmt.Sprintf("%s/%d", a, rr.Prefix)
	}
	return ps
}

// bgpPrefixes lists, per peer, the routes its remote end advertises.
func (r *Remote) bgpPrefixes() []otgmetrics.BGPPrefix {
	var ps []otgmetrics.BGPPrefix
	for _, dp := range r.bgpPeers() {
		remote, ok := r.cfg.RemotePeer(dp.dev, dp.peer)
		if !ok {
			continue
		}
		var localPref uint32
		if dp.peer.Type == "ibgp" {
			localPref = 100
		}
		for _, rr := range remote.Routes {
			for _, p := range routePrefixes(rr) {
				ps = append(ps, otgmetrics.BGPPrefix{
					PeerName:        dp.peer.Name,
					Prefix:          p,
					NextHop:         dp.peer.Address,
					Origin:          "igp",
					LocalPreference: localPref,
				})
			}
		}
	}
	return ps
}

// isisLsps gives every router the LSP of each router sharing one of its
// levels, its own included.
func (r *Remote) isisLsps() []otgmetrics.ISISLSP {
	var routers []otgconfig.ISIS
	for _, d := range r.cfg.Devices {
		if d.ISIS != nil {
			routers = append(routers, *d.ISIS)
		}
	}
	var ls []otgmetrics.ISISLSP
	for _, is := range routers {
		l1, l2 := isisLevels(is.Level)
		for _, other := range routers {
			ol1, ol2 := isisLevels(other.Level)
			for _, lv := range []struct {
				on  bool
				pdu string
			}{{l1 && ol1, "level_1"}, {l2 && ol2, "level_2"}} {
				if !lv.on {
					continue
				}
				ls = append(ls, otgmetrics.ISISLSP{
					RouterName:     is.Name,
					LspID:          other.SystemID + "-00-00",
					PDUType:        lv.pdu,
					SequenceNumber: 1,
				})
			}
		}
	}
	return ls
}

// ospfOriginated lists the LSAs rt originates: its router LSA and one
// external LSA per route prefix.
func ospfOriginated(learner string, rt *otgconfig.OSPF) []otgmetrics.OSPFLSA {
	ls := []otgmetrics.OSPFLSA{{
		RouterName:        learner,
		Type:              "router",
		LsaID:             rt.RouterID,
		AdvertisingRouter: rt.RouterID,
		SequenceNumber:    initialLSASequence,
	}}
	for _, rr := range rt.Routes {
		for _, p := range routePrefixes(rr) {
			id, _, _ := net.ParseCIDR(p)
			ls = append(ls, otgmetrics.OSPFLSA{
				RouterName:        learner,
				Type:              "external_as",
				LsaID:             id.String(),
				AdvertisingRouter: rt.RouterID,
				SequenceNumber:    initialLSASequence,
			})
		}
	}
	return ls
}

// ospfLsas gives every router its own LSAs plus, once full, its neighbor's.
func (r *Remote) ospfLsas(v3 bool) []otgmetrics.OSPFLSA {
	var ls []otgmetrics.OSPFLSA
	for _, d := range r.cfg.Devices {
		rt := ospfRouter(d, v3)
		if rt == nil {
			continue
		}
		ls = append(ls, ospfOriginated(rt.Name, rt)...)
		if _, nr, ok := r.cfg.OSPFNeighbor(d, v3); ok {
			ls = append(ls, ospfOriginated(rt.Name, nr)...)
		}
	}
	return ls
}

// lldpNeighbors models one shared segment: every agent hears every other.
func (r *Remote) lldpNeighbors() []otgmetrics.LLDPNeighbor {
	var agents []otgconfig.Device
	for _, d := range r.cfg.Devices {
		if d.LLDP != nil {
			agents = append(agents, d)
		}
	}
	var ns []otgmetrics.LLDPNeighbor
	for _, a := range agents {
		for _, o := range agents {
			if o.Name == a.Name {
				continue
			}
			ns = append(ns, otgmetrics.LLDPNeighbor{
				LldpName:   a.LLDP.Name,
				SystemName: o.Name,
				ChassisID:  o.MAC,
				PortID:     o.Port,
			})
		}
	}
	return ns
}
