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
	"fmt"

	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

type devicePeer struct {
	dev  otgconfig.Device
	peer otgconfig.BGPPeer
}

// bgpPeers lists every BGP peer in config order. Callers hold mu.
func (r *Remote) bgpPeers() []devicePeer {
	var peers []devicePeer
	for _, d := range r.cfg.Devices {
		if d.BGP == nil {
			continue
		}
		for _, p := range d.BGP.Peers {
			peers = append(peers, devicePeer{dev: d, peer: p})
		}
	}
	return peers
}

// peerReachable reports whether p's session would come up: another emulated
// device owns its address and peers back.
func (r *Remote) peerReachable(p otgconfig.BGPPeer) bool {
	for _, dp := range r.bgpPeers() {
		if dp.peer.Name == p.Name {
			_, ok := r.cfg.RemotePeer(dp.dev, dp.peer)
			return ok
		}
	}
	return false
}

// ProtocolMetrics returns per-peer BGP, per-router IS-IS and OSPF, per-port
// LLDP, per-LAG or per-member LACP records for kind.
func (r *Remote) ProtocolMetrics(ctx context.Context, kind otgmetrics.ProtocolKind) (otgmetrics.ProtocolMetrics, error) {
	if err := r.enter(ctx, "ProtocolMetrics"); err != nil {
		return otgmetrics.ProtocolMetrics{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.configured(); err != nil {
		return otgmetrics.ProtocolMetrics{}, err
	}
	m := otgmetrics.ProtocolMetrics{Kind: kind}
	switch kind {
	case otgmetrics.BGPv4, otgmetrics.BGPv6:
		family := "ipv4"
		if kind == otgmetrics.BGPv6 {
			family = "ipv6"
		}
		for _, dp := range r.bgpPeers() {
			if dp.peer.AddressFamily() != family {
				continue
			}
			m.BGP = append(m.BGP, r.bgpMetric(dp))
		}
	case otgmetrics.ISIS:
		m.ISIS = r.isisMetrics()
	case otgmetrics.LLDP:
		m.LLDP = r.lldpMetrics()
	case otgmetrics.OSPFv2:
		m.OSPF = r.ospfMetrics(false)
	case otgmetrics.OSPFv3:
		m.OSPF = r.ospfMetrics(true)
	case otgmetrics.LAG:
		m.LAG = r.lagMetrics()
	case otgmetrics.LACP:
		m.LACP = r.lacpMetrics()
	default:
		return otgmetrics.ProtocolMetrics{}, fmt.Errorf("unknown protocol kind %q", kind)
	}
	return m, nil
}

func (r *Remote) bgpMetric(dp devicePeer) otgmetrics.BGPMetric {
	m := otgmetrics.BGPMetric{
		Name:             dp.peer.Name,
		SessionState:     otgmetrics.SessionDown,
		SessionFlapCount: r.flaps[dp.peer.Name],
	}
	remote, ok := r.cfg.RemotePeer(dp.dev, dp.peer)
	if !r.protoUp || !ok {
		return m
	}
	m.SessionState = otgmetrics.SessionUp
	m.RoutesAdvertised = otgconfig.RouteCount(dp.peer.Routes)
	m.RoutesReceived = otgconfig.RouteCount(remote.Routes)
	// One update per advertised route range, plus the end-of-RIB marker.
	m.UpdatesSent = uint64(len(dp.peer.Routes)) + 1
	m.UpdatesReceived = uint64(len(remote.Routes)) + 1
	return m
}

func isisLevels(level string) (l1, l2 bool) {
	switch level {
	case "l1":
		return true, false
	case "l1l2":
		return true, true
	}
	return false, true
}

// isisMetrics models a single broadcast domain: every router adjacent to
// every other router sharing a level, each LSP flooded to all of them.
func (r *Remote) isisMetrics() []otgmetrics.ISISMetric {
	var routers []otgconfig.ISIS
	for _, d := range r.cfg.Devices {
		if d.ISIS != nil {
			routers = append(routers, *d.ISIS)
		}
	}
	var l1Count, l2Count uint32
	for _, is := range routers {
		l1, l2 := isisLevels(is.Level)
		if l1 {
			l1Count++
		}
		if l2 {
			l2Count++
		}
	}
	var ms []otgmetrics.ISISMetric
	for _, is := range routers {
		m := otgmetrics.ISISMetric{Name: is.Name}
		l1, l2 := isisLevels(is.Level)
		if r.protoUp {
			if l1 {
				m.L1SessionsUp = l1Count - 1
				m.L1DatabaseSize = uint64(l1Count)
			}
			if l2 {
				m.L2SessionsUp = l2Count - 1
				m.L2DatabaseSize = uint64(l2Count)
			}
		}
		ms = append(ms, m)
	}
	return ms
}

// lldpMetrics reports one LLDPDU per protocol start on each agent, received
// by every other agent.
func (r *Remote) lldpMetrics() []otgmetrics.LLDPMetric {
	var names []string
	for _, d := range r.cfg.Devices {
		if d.LLDP != nil {
			names = append(names, d.LLDP.Name)
		}
	}
	var ms []otgmetrics.LLDPMetric
	for _, n := range names {
		ms = append(ms, otgmetrics.LLDPMetric{
			Name:     n,
			FramesTx: r.starts,
			FramesRx: r.starts * uint64(len(names)-1),
		})
	}
	return ms
}

// ospfRouter returns dev's router of the given OSPF version.
func ospfRouter(dev otgconfig.Device, v3 bool) *otgconfig.OSPF {
	if v3 {
		return dev.OSPFv3
	}
	return dev.OSPFv2
}

// ospfMetrics models point to point adjacencies: a router is full with the
// router on its gateway device once protocols are up. Each start sends one
// hello; every router floods the LSAs listed by ospfOriginated.
func (r *Remote) ospfMetrics(v3 bool) []otgmetrics.OSPFMetric {
	var ms []otgmetrics.OSPFMetric
	for _, d := range r.cfg.Devices {
		rt := ospfRouter(d, v3)
		if rt == nil {
			continue
		}
		m := otgmetrics.OSPFMetric{Name: rt.Name, HellosSent: r.starts, SessionsFlap: r.flaps[rt.Name]}
		_, nr, ok := r.cfg.OSPFNeighbor(d, v3)
		switch {
		case ok && r.protoUp:
			m.FullStateCount = 1
			m.HellosReceived = r.starts
			m.LsaSent = uint64(len(ospfOriginated(rt.Name, rt)))
			m.LsaReceived = uint64(len(ospfOriginated(rt.Name, nr)))
		case !r.protoUp:
			m.DownStateCount = 1
		}
		ms = append(ms, m)
	}
	return ms
}

// lagUp reports whether l forwards: static LAGs always do, LACP LAGs once
// protocols are up.
func (r *Remote) lagUp(l otgconfig.LAG) bool {
	return !l.LACP() || r.protoUp
}

// lagMetrics sums the port counters of each LAG's members.
func (r *Remote) lagMetrics() []otgmetrics.LAGMetric {
	ports := map[string]otgmetrics.PortMetric{}
	for _, p := range r.portMetrics() {
		ports[p.Name] = p
	}
	var ms []otgmetrics.LAGMetric
	for _, l := range r.cfg.Lags {
		m := otgmetrics.LAGMetric{Name: l.Name, OperStatus: "down"}
		if r.lagUp(l) {
			m.OperStatus = "up"
			m.MemberPortsUp = uint32(len(l.Ports))
		}
		for _, name := range l.Ports {
			p := ports[name]
			m.FramesTx += p.FramesTx
			m.FramesRx += p.FramesRx
			m.BytesTx += p.BytesTx
			m.BytesRx += p.BytesRx
		}
		ms = append(ms, m)
	}
	return ms
}

// lacpMetrics reports one LACPDU each way per protocol start on every member
// of an LACP LAG. Static LAGs have no LACP state.
func (r *Remote) lacpMetrics() []otgmetrics.LACPMetric {
	var ms []otgmetrics.LACPMetric
	for _, l := range r.cfg.Lags {
		if !l.LACP() {
			continue
		}
		for _, p := range l.Ports {
			m := otgmetrics.LACPMetric{
				LagName:         l.Name,
				MemberPortName:  p,
				PacketsTx:       r.starts,
				PacketsRx:       r.starts,
				Synchronization: "out_sync",
				SystemID:        l.MAC,
			}
			if r.protoUp {
				m.Synchronization = "in_sync"
				m.Collecting = true
				m.Distributing = true
			}
			ms = append(ms, m)
		}
	}
	return ms
}

// Neighbors returns the ARP or ND entries of every device interface of
// layer. A gateway resolves when another device owns it.
func (r *Remote) Neighbors(ctx context.Context, layer otgmetrics.Layer) ([]otgmetrics.Neighbor, error) {
	if err := r.enter(ctx, "Neighbors"); err != nil {
		return nil, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.configured(); err != nil {
		return nil, err
	}
	var ns []otgmetrics.Neighbor
	for _, d := range r.cfg.Devices {
		a := d.IPv4
		switch layer {
		case otgmetrics.IPv4:
		case otgmetrics.IPv6:
			a = d.IPv6
		default:
			return nil, fmt.Errorf("unknown neighbor layer %q", layer)
		}
		if a == nil {
			continue
		}
		n := otgmetrics.Neighbor{EthernetName: d.EthName(), Address: a.Gateway}
		if gw, ok := r.cfg.Owner(a.Gateway); ok {
			n.LinkLayerAddress = gw.MAC
		}
		ns = append(ns, n)
	}
	return ns, nil
}
