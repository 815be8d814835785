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
	"fmt"
	"strconv"

	"github.com/open-traffic-generator/snappi/gosnappi"
)

// ToSnappi builds the gosnappi configuration for the scenario.
func (c *Config) ToSnappi() (gosnappi.Config, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}
	top := gosnappi.NewConfig()

	var portNames []string
	for _, p := range c.Ports {
		top.Ports().Add().SetName(p.Name).SetLocation(p.Location)
		portNames = append(portNames, p.Name)
	}
	if c.Layer1 != nil {
		top.Layer1().Add().SetName("l1").SetPortNames(portNames).SetSpeed(gosnappi.Layer1SpeedEnum(c.Layer1.Speed))
	}
	for i, l := range c.Lags {
		addLag(top, l, uint32(i+1))
	}
	for _, d := range c.Devices {
		addDevice(top, d)
	}
	for _, f := range c.Flows {
		if err := addFlow(top, f); err != nil {
			return nil, err
		}
	}
	for _, cp := range c.Captures {
		format := gosnappi.CaptureFormat.PCAP
		if cp.Format == "pcapng" {
			format = gosnappi.CaptureFormat.PCAPNG
		}
		top.Captures().Add().SetName(cp.Name).SetPortNames(cp.Ports).SetFormat(format)
	}
	return top, nil
}

func addDevice(top gosnappi.Config, d Device) {
	dev := top.Devices().Add().SetName(d.Name)
	eth := dev.Ethernets().Add().SetName(d.EthName()).SetMac(d.MAC)
	eth.Connection().SetPortName(d.Port)
	if d.MTU != 0 {
		eth.SetMtu(d.MTU)
	}
	if d.VLAN != 0 {
		eth.Vlans().Add().SetName(d.Name + ".vlan").SetId(d.VLAN)
	}
	if d.IPv4 != nil {
		eth.Ipv4Addresses().Add().SetName(d.IPv4Name()).SetAddress(d.IPv4.Address).SetGateway(d.IPv4.Gateway).SetPrefix(d.IPv4.Prefix)
	}
	if d.IPv6 != nil {
		eth.Ipv6Addresses().Add().SetName(d.IPv6Name()).SetAddress(d.IPv6.Address).SetGateway(d.IPv6.Gateway).SetPrefix(d.IPv6.Prefix)
	}
	if d.BGP != nil {
		addBGP(dev, d)
	}
	if d.ISIS != nil {
		addISIS(dev, d)
	}
	if d.OSPFv2 != nil {
		addOSPFv2(dev, d)
	}
	if d.OSPFv3 != nil {
		addOSPFv3(dev, d)
	}
	if d.LLDP != nil {
		top.Lldp().Add().SetName(d.LLDP.Name).Connection().SetPortName(d.Port)
	}
}

func addBGP(dev gosnappi.Device, d Device) {
	bgp := dev.Bgp().SetRouterId(d.BGP.RouterID)
	var (
		v4Intf gosnappi.BgpV4Interface
		v6Intf gosnappi.BgpV6Interface
	)
	for _, p := range d.BGP.Peers {
		if p.AddressFamily() == "ipv6" {
			if v6Intf == nil {
				v6Intf = bgp.Ipv6Interfaces().Add().SetIpv6Name(d.IPv6Name())
			}
			peer := v6Intf.Peers().Add().SetName(p.Name).SetPeerAddress(p.Address).SetAsNumber(p.ASN)
			if p.Type == "ibgp" {
				peer.SetAsType(gosnappi.BgpV6PeerAsType.IBGP)
			} else {
				peer.SetAsType(gosnappi.BgpV6PeerAsType.EBGP)
			}
			for _, r := range p.Routes {
				routes := peer.V6Routes().Add().SetName(r.Name)
				routes.SetNextHopMode(gosnappi.BgpV6RouteRangeNextHopMode.LOCAL_IP)
				routes.Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count())
			}
			continue
		}
		if v4Intf == nil {
			v4Intf = bgp.Ipv4Interfaces().Add().SetIpv4Name(d.IPv4Name())
		}
		peer := v4Intf.Peers().Add().SetName(p.Name).SetPeerAddress(p.Address).SetAsNumber(p.ASN)
		if p.Type == "ibgp" {
			peer.SetAsType(gosnappi.BgpV4PeerAsType.IBGP)
		} else {
			peer.SetAsType(gosnappi.BgpV4PeerAsType.EBGP)
		}
		for _, r := range p.Routes {
			routes := peer.V4Routes().Add().SetName(r.Name)
			routes.SetNextHopMode(gosnappi.BgpV4RouteRangeNextHopMode.LOCAL_IP)
			routes.Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count())
		}
	}
}

func addISIS(dev gosnappi.Device, d Device) {
	isis := dev.Isis().SetName(d.ISIS.Name).SetSystemId(d.ISIS.SystemID)
	isis.Basic().SetHostname(d.ISIS.Name).SetLearnedLspFilter(true)

	level := gosnappi.IsisInterfaceLevelType.LEVEL_2
	switch d.ISIS.Level {
	case "l1":
		level = gosnappi.IsisInterfaceLevelType.LEVEL_1
	case "l1l2":
		level = gosnappi.IsisInterfaceLevelType.LEVEL_1_2
	}
	isis.Interfaces().Add().
		SetName(d.ISIS.Name + ".intf").
		SetEthName(d.EthName()).
		SetNetworkType(gosnappi.IsisInterfaceNetworkType.POINT_TO_POINT).
		SetLevelType(level).
		SetMetric(10)

	for _, r := range d.ISIS.Routes {
		if d.IPv6 != nil && d.IPv4 == nil {
			isis.V6Routes().Add().SetName(r.Name).SetLinkMetric(10).
				Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count())
			continue
		}
		isis.V4Routes().Add().SetName(r.Name).SetLinkMetric(10).
			Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count())
	}
}

func addLag(top gosnappi.Config, l LAG, id uint32) {
	lag := top.Lags().Add().SetName(l.Name)
	if l.LACP() {
		lag.Protocol().Lacp().SetActorKey(1).SetActorSystemPriority(1).SetActorSystemId(l.MAC)
	} else {
		lag.Protocol().Static().SetLagId(id)
	}
	for i, p := range l.Ports {
		lp := lag.Ports().Add().SetPortName(p)
		lp.Ethernet().SetMac(l.MAC).SetName(fmt.Sprintf("%s.eth%d", l.Name, i))
		if l.LACP() {
			lp.Lacp().SetActorActivity(gosnappi.LagPortLacpActorActivity.ACTIVE).SetActorPortNumber(uint32(i + 1)).SetActorPortPriority(1)
		}
	}
}

func addOSPFv2(dev gosnappi.Device, d Device) {
	ospf := dev.Ospfv2().SetName(d.OSPFv2.Name).SetStoreLsa(true)
	if d.OSPFv2.RouterID != "" {
		ospf.RouterId().SetCustom(d.OSPFv2.RouterID)
	}
	ospf.Interfaces().Add().
		SetName(d.OSPFv2.Name + ".intf").
		SetIpv4Name(d.IPv4Name()).
		NetworkType().PointToPoint()
	for _, r := range d.OSPFv2.Routes {
		ospf.V4Routes().Add().SetName(r.Name).SetMetric(10).
			Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count()).SetStep(1)
	}
}

func addOSPFv3(dev gosnappi.Device, d Device) {
	ospf := dev.Ospfv3()
	if d.OSPFv3.RouterID != "" {
		ospf.RouterId().SetCustom(d.OSPFv3.RouterID)
	}
	inst := ospf.Instances().Add().SetName(d.OSPFv3.Name).SetStoreLsa(true)
	inst.Interfaces().Add().
		SetName(d.OSPFv3.Name + ".intf").
		SetIpv6Name(d.IPv6Name()).
		NetworkType().PointToPoint()
	for _, r := range d.OSPFv3.Routes {
		inst.V6Routes().Add().SetName(r.Name).SetMetric(10).
			Addresses().Add().SetAddress(r.Address).SetPrefix(r.Prefix).SetCount(r.count()).SetStep(1)
	}
}

func (r RouteRange) count() uint32 {
	if r.Count == 0 {
		return 1
	}
	return r.Count
}

func addFlow(top gosnappi.Config, f Flow) error {
	flow := top.Flows().Add().SetName(f.Name)
	flow.Metrics().SetEnable(true)
	if f.endpoint() == EndpointDevice {
		flow.TxRx().Device().SetTxNames([]string{f.Tx}).SetRxNames(f.Rx)
	} else {
		flow.TxRx().Port().SetTxName(f.Tx).SetRxNames(f.Rx)
	}
	flow.Size().SetFixed(f.Size)
	if f.Pps != 0 {
		flow.Rate().SetPps(f.Pps)
	} else {
		flow.Rate().SetPercentage(f.Percentage)
	}
	flow.Duration().FixedPackets().SetPackets(f.Packets)

	for _, h := range f.Headers {
		if err := addHeader(flow, h); err != nil {
			return fmt.Errorf("flow %q: %w", f.Name, err)
		}
	}
	return nil
}

func addHeader(flow gosnappi.Flow, h Header) error {
	pkt := flow.Packet().Add()
	switch h.Type {
	case "ethernet":
		eth := pkt.Ethernet()
		return h.apply(map[string]setter{
			"src": strSetter{
				value:  func(v string) { eth.Src().SetValue(v) },
				values: func(v []string) { eth.Src().SetValues(v) },
				inc:    func(s, st string, n uint32) { eth.Src().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { eth.Src().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "00:00:00:00:00:01",
			},
			"dst": strSetter{
				value:  func(v string) { eth.Dst().SetValue(v) },
				values: func(v []string) { eth.Dst().SetValues(v) },
				inc:    func(s, st string, n uint32) { eth.Dst().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { eth.Dst().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "00:00:00:00:00:01",
			},
		})
	case "vlan":
		vlan := pkt.Vlan()
		return h.apply(map[string]setter{
			"id": uintSetter{
				value:  func(v uint32) { vlan.Id().SetValue(v) },
				values: func(v []uint32) { vlan.Id().SetValues(v) },
				inc:    func(s, st, n uint32) { vlan.Id().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { vlan.Id().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	case "ipv4":
		ip := pkt.Ipv4()
		return h.apply(map[string]setter{
			"src": strSetter{
				value:  func(v string) { ip.Src().SetValue(v) },
				values: func(v []string) { ip.Src().SetValues(v) },
				inc:    func(s, st string, n uint32) { ip.Src().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { ip.Src().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "0.0.0.1",
			},
			"dst": strSetter{
				value:  func(v string) { ip.Dst().SetValue(v) },
				values: func(v []string) { ip.Dst().SetValues(v) },
				inc:    func(s, st string, n uint32) { ip.Dst().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { ip.Dst().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "0.0.0.1",
			},
			"ttl": uintSetter{
				value:  func(v uint32) { ip.TimeToLive().SetValue(v) },
				values: func(v []uint32) { ip.TimeToLive().SetValues(v) },
				inc:    func(s, st, n uint32) { ip.TimeToLive().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { ip.TimeToLive().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	case "ipv6":
		ip := pkt.Ipv6()
		return h.apply(map[string]setter{
			"src": strSetter{
				value:  func(v string) { ip.Src().SetValue(v) },
				values: func(v []string) { ip.Src().SetValues(v) },
				inc:    func(s, st string, n uint32) { ip.Src().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { ip.Src().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "::1",
			},
			"dst": strSetter{
				value:  func(v string) { ip.Dst().SetValue(v) },
				values: func(v []string) { ip.Dst().SetValues(v) },
				inc:    func(s, st string, n uint32) { ip.Dst().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st string, n uint32) { ip.Dst().Decrement().SetStart(s).SetStep(st).SetCount(n) },
				step:   "::1",
			},
			"hop_limit": uintSetter{
				value:  func(v uint32) { ip.HopLimit().SetValue(v) },
				values: func(v []uint32) { ip.HopLimit().SetValues(v) },
				inc:    func(s, st, n uint32) { ip.HopLimit().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { ip.HopLimit().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	case "udp":
		udp := pkt.Udp()
		return h.apply(map[string]setter{
			"src_port": uintSetter{
				value:  func(v uint32) { udp.SrcPort().SetValue(v) },
				values: func(v []uint32) { udp.SrcPort().SetValues(v) },
				inc:    func(s, st, n uint32) { udp.SrcPort().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { udp.SrcPort().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
			"dst_port": uintSetter{
				value:  func(v uint32) { udp.DstPort().SetValue(v) },
				values: func(v []uint32) { udp.DstPort().SetValues(v) },
				inc:    func(s, st, n uint32) { udp.DstPort().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { udp.DstPort().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	case "tcp":
		tcp := pkt.Tcp()
		return h.apply(map[string]setter{
			"src_port": uintSetter{
				value:  func(v uint32) { tcp.SrcPort().SetValue(v) },
				values: func(v []uint32) { tcp.SrcPort().SetValues(v) },
				inc:    func(s, st, n uint32) { tcp.SrcPort().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { tcp.SrcPort().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
			"dst_port": uintSetter{
				value:  func(v uint32) { tcp.DstPort().SetValue(v) },
				values: func(v []uint32) { tcp.DstPort().SetValues(v) },
				inc:    func(s, st, n uint32) { tcp.DstPort().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { tcp.DstPort().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	case "vxlan":
		vxlan := pkt.Vxlan()
		return h.apply(map[string]setter{
			"vni": uintSetter{
				value:  func(v uint32) { vxlan.Vni().SetValue(v) },
				values: func(v []uint32) { vxlan.Vni().SetValues(v) },
				inc:    func(s, st, n uint32) { vxlan.Vni().Increment().SetStart(s).SetStep(st).SetCount(n) },
				dec:    func(s, st, n uint32) { vxlan.Vni().Decrement().SetStart(s).SetStep(st).SetCount(n) },
			},
		})
	}
	return fmt.Errorf("unsupported header %q", h.Type)
}

// setter applies a Pattern to one gosnappi header field.
type setter interface {
	set(p Pattern) error
}

func (h Header) apply(setters map[string]setter) error {
	for name, p := range h.Fields {
		s, ok := setters[name]
		if !ok {
			return fmt.Errorf("%s header has no field %q", h.Type, name)
		}
		if err := s.set(p); err != nil {
			return fmt.Errorf("%s %s: %w", h.Type, name, err)
		}
	}
	return nil
}

type strSetter struct {
	value    func(string)
	values   func([]string)
	inc, dec func(start, step string, count uint32)
	step     string
}

func (s strSetter) set(p Pattern) error {
	switch {
	case p.Value != "":
		s.value(p.Value)
	case len(p.Values) > 0:
		s.values(p.Values)
	case p.Increment != nil:
		s.inc(p.Increment.Start, p.Increment.stepOr(s.step), uint32(p.Increment.count()))
	case p.Decrement != nil:
		s.dec(p.Decrement.Start, p.Decrement.stepOr(s.step), uint32(p.Decrement.count()))
	}
	return nil
}

type uintSetter struct {
	value    func(uint32)
	values   func([]uint32)
	inc, dec func(start, step, count uint32)
}

func (s uintSetter) set(p Pattern) error {
	switch {
	case p.Value != "":
		v, err := parseUint32(p.Value)
		if err != nil {
			return err
		}
		s.value(v)
	case len(p.Values) > 0:
		vs := make([]uint32, 0, len(p.Values))
		for _, str := range p.Values {
			v, err := parseUint32(str)
			if err != nil {
				return err
			}
			vs = append(vs, v)
		}
		s.values(vs)
	case p.Increment != nil, p.Decrement != nil:
		c, fn := p.Increment, s.inc
		if c == nil {
			c, fn = p.Decrement, s.dec
		}
		start, err := parseUint32(c.Start)
		if err != nil {
			return err
		}
		step, err := parseUint32(c.stepOr("1"))
		if err != nil {
			return err
		}
		fn(start, step, uint32(c.count()))
	}
	return nil
}

func parseUint32(s string) (uint32, error) {
	v, err := strconv.ParseUint(s, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid numeric value %q: %w", s, err)
	}
	return uint32(v), nil
}
