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
	"fmt"
	"net"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/otgconfig"
)

var (
	defaultSrcMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x01}
	defaultDstMAC = net.HardwareAddr{0x00, 0x00, 0x00, 0x00, 0x00, 0x02}
	defaultSrcIP4 = net.IP{192, 0, 2, 1}
	defaultDstIP4 = net.IP{192, 0, 2, 2}
	defaultSrcIP6 = net.ParseIP("2001:db8::1")
	defaultDstIP6 = net.ParseIP("2001:db8::2")
	vxlanPort     = layers.UDPPort(4789)
)

// frameTemplate builds the frames of one flow. The base frame carries the
// generator defaults; patterned fields are written over it per packet, so
// checksums cover the base values only.
type frameTemplate struct {
	base   []byte
	checks []otgconfig.FieldCheck
}

func newFrameTemplate(f otgconfig.Flow) (*frameTemplate, error) {
	st, err := f.Stack()
	if err != nil {
		return nil, err
	}
	checks, err := f.Checks()
	if err != nil {
		return nil, err
	}
	base, err := serialize(st, int(f.Size)-capture.FCSLen)
	if err != nil {
		return nil, fmt.Errorf("flow %s: %w", f.Name, err)
	}
	return &frameTemplate{base: base, checks: checks}, nil
}

// frame returns the n-th frame of the flow.
func (t *frameTemplate) frame(n int) []byte {
	b := make([]byte, len(t.base))
	copy(b, t.base)
	for _, c := range t.checks {
		copy(b[c.Offset:], capture.PatternValue(c.Pattern, n))
	}
	return b
}

// serialize encodes a frame of length n (without FCS) with default header
// values and a zero payload.
func serialize(st capture.Stack, n int) ([]byte, error) {
	pad := n - st.Len()
	if pad < 0 {
		return nil, fmt.Errorf("frame length %d is shorter than %s", n, st)
	}
	var ls []gopacket.SerializableLayer
	var ip gopacket.NetworkLayer
	for i, h := range st {
		var next capture.Header = -1
		if i+1 < len(st) {
			next = st[i+1]
		}
		switch h {
		case capture.Ethernet:
			ls = append(ls, &layers.Ethernet{SrcMAC: defaultSrcMAC, DstMAC: defaultDstMAC, EthernetType: etherType(next)})
		case capture.VLAN:
			ls = append(ls, &layers.Dot1Q{VLANIdentifier: 1, Type: etherType(next)})
		case capture.IPv4:
			l := &layers.IPv4{Version: 4, IHL: 5, TTL: 64, Protocol: ipProtocol(next), SrcIP: defaultSrcIP4, DstIP: defaultDstIP4}
			ip = l
			ls = append(ls, l)
		case capture.IPv6:
			l := &layers.IPv6{Version: 6, HopLimit: 64, NextHeader: ipProtocol(next), SrcIP: defaultSrcIP6, DstIP: defaultDstIP6}
			ip = l
			ls = append(ls, l)
		case capture.UDP:
			l := &layers.UDP{SrcPort: 49152, DstPort: 49153}
			if next == capture.VXLAN {
				l.DstPort = vxlanPort
			}
			if ip == nil {
				return nil, fmt.Errorf("udp header without ip header in %s", st)
			}
			if err := l.SetNetworkLayerForChecksum(ip); err != nil {
				return nil, err
			}
			ls = append(ls, l)
		case capture.TCP:
			l := &layers.TCP{SrcPort: 49152, DstPort: 49153, Window: 65535}
			if ip == nil {
				return nil, fmt.Errorf("tcp header without ip header in %s", st)
			}
			if err := l.SetNetworkLayerForChecksum(ip); err != nil {
				return nil, err
			}
			ls = append(ls, l)
		case capture.VXLAN:
			ls = append(ls, gopacket.Payload{0x08, 0, 0, 0, 0, 0, 0x01, 0})
		default:
			return nil, fmt.Errorf("cannot serialize %s header", h)
		}
	}
	ls = append(ls, gopacket.Payload(make([]byte, pad)))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	if err := gopacket.SerializeLayers(buf, opts, ls...); err != nil {
		return nil, fmt.Errorf("could not serialize %s: %w", st, err)
	}
	return buf.Bytes(), nil
}

func etherType(next capture.Header) layers.EthernetType {
	switch next {
	case capture.VLAN:
		return layers.EthernetTypeDot1Q
	case capture.IPv4:
		return layers.EthernetTypeIPv4
	case capture.IPv6:
		return layers.EthernetTypeIPv6
	}
	// Local experimental ethertype.
	return layers.EthernetType(0x88b5)
}

func ipProtocol(next capture.Header) layers.IPProtocol {
	switch next {
	case capture.UDP:
		return layers.IPProtocolUDP
	case capture.TCP:
		return layers.IPProtocolTCP
	}
	return layers.IPProtocolNoNextHeader
}

// arpFrame is the gratuitous ARP a port emits when its interface comes up.
// Captures include these frames alongside flow traffic.
func arpFrame(mac net.HardwareAddr, ip net.IP) ([]byte, error) {
	eth := &layers.Ethernet{
		SrcMAC:       mac,
		DstMAC:       layers.EthernetBroadcast,
		EthernetType: layers.EthernetTypeARP,
	}
	arp := &layers.ARP{
		AddrType:          layers.LinkTypeEthernet,
		Protocol:          layers.EthernetTypeIPv4,
		HwAddressSize:     6,
		ProtAddressSize:   4,
		Operation:         layers.ARPRequest,
		SourceHwAddress:   mac,
		SourceProtAddress: ip.To4(),
		DstHwAddress:      make([]byte, 6),
		DstProtAddress:    ip.To4(),
	}
	buf := gopacket.NewSerializeBuffer()
	if err := gopacket.SerializeLayers(buf, gopacket.SerializeOptions{FixLengths: true}, eth, arp); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
