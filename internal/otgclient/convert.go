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

package otgclient

import (
	"fmt"

	"github.com/open-traffic-generator/snappi/gosnappi"
	"github.com/openconfig/otgharness/internal/otgmetrics"
)

// opt returns get() if has() reports the field as set. gosnappi getters
// dereference optional fields and panic when the generator omitted them.
func opt[T any](has func() bool, get func() T) T {
	if has() {
		return get()
	}
	var zero T
	return zero
}

// req is opt for required fields, which have no Has method. The server may
// still omit them, so a nil dereference in get yields the zero value.
func req[T any](get func() T) (v T) {
	defer func() {
		if recover() != nil {
			var zero T
			v = zero
		}
	}()
	return get()
}

func flowMetrics(res gosnappi.MetricsResponse) []otgmetrics.FlowMetric {
	var ms []otgmetrics.FlowMetric
	for _, v := range res.FlowMetrics().Items() {
		if v == nil {
			continue
		}
		ms = append(ms, otgmetrics.FlowMetric{
			Name:         opt(v.HasName, v.Name),
			Transmit:     otgmetrics.TransmitState(opt(v.HasTransmit, v.Transmit)),
			FramesTx:     opt(v.HasFramesTx, v.FramesTx),
			FramesRx:     opt(v.HasFramesRx, v.FramesRx),
			FramesTxRate: float64(opt(v.HasFramesTxRate, v.FramesTxRate)),
			FramesRxRate: float64(opt(v.HasFramesRxRate, v.FramesRxRate)),
			BytesTx:      opt(v.HasBytesTx, v.BytesTx),
			BytesRx:      opt(v.HasBytesRx, v.BytesRx),
		})
	}
	return ms
}

func portMetrics(res gosnappi.MetricsResponse) []otgmetrics.PortMetric {
	var ms []otgmetrics.PortMetric
	for _, v := range res.PortMetrics().Items() {
		if v == nil {
			continue
		}
		ms = append(ms, otgmetrics.PortMetric{
			Name:         opt(v.HasName, v.Name),
			Link:         string(opt(v.HasLink, v.Link)),
			Capture:      string(opt(v.HasCapture, v.Capture)),
			FramesTx:     opt(v.HasFramesTx, v.FramesTx),
			FramesRx:     opt(v.HasFramesRx, v.FramesRx),
			FramesTxRate: float64(opt(v.HasFramesTxRate, v.FramesTxRate)),
			FramesRxRate: float64(opt(v.HasFramesRxRate, v.FramesRxRate)),
			BytesTx:      opt(v.HasBytesTx, v.BytesTx),
			BytesRx:      opt(v.HasBytesRx, v.BytesRx),
		})
	}
	return ms
}

func protocolMetrics(kind otgmetrics.ProtocolKind, res gosnappi.MetricsResponse) otgmetrics.ProtocolMetrics {
	m := otgmetrics.ProtocolMetrics{Kind: kind}
	switch kind {
	case otgmetrics.BGPv4:
		for _, v := range res.Bgpv4Metrics().Items() {
			if v == nil {
				continue
			}
			m.BGP = append(m.BGP, otgmetrics.BGPMetric{
				Name:             opt(v.HasName, v.Name),
				SessionState:     otgmetrics.SessionState(opt(v.HasSessionState, v.SessionState)),
				SessionFlapCount: opt(v.HasSessionFlapCount, v.SessionFlapCount),
				RoutesAdvertised: opt(v.HasRoutesAdvertised, v.RoutesAdvertised),
				RoutesReceived:   opt(v.HasRoutesReceived, v.RoutesReceived),
				UpdatesSent:      opt(v.HasUpdatesSent, v.UpdatesSent),
				UpdatesReceived:  opt(v.HasUpdatesReceived, v.UpdatesReceived),
			})
		}
	case otgmetrics.BGPv6:
		for _, v := range res.Bgpv6Metrics().Items() {
			if v == nil {
				continue
			}
			m.BGP = append(m.BGP, otgmetrics.BGPMetric{
				Name:             opt(v.HasName, v.Name),
				SessionState:     otgmetrics.SessionState(opt(v.HasSessionState, v.SessionState)),
				SessionFlapCount: opt(v.HasSessionFlapCount, v.SessionFlapCount),
				RoutesAdvertised: opt(v.HasRoutesAdvertised, v.RoutesAdvertised),
				RoutesReceived:   opt(v.HasRoutesReceived, v.RoutesReceived),
				UpdatesSent:      opt(v.HasUpdatesSent, v.UpdatesSent),
				UpdatesReceived:  opt(v.HasUpdatesReceived, v.UpdatesReceived),
			})
		}
	case otgmetrics.ISIS:
		for _, v := range res.IsisMetrics().Items() {
			if v == nil {
				continue
			}
			m.ISIS = append(m.ISIS, otgmetrics.ISISMetric{
				Name:           opt(v.HasName, v.Name),
				L1SessionsUp:   opt(v.HasL1SessionsUp, v.L1SessionsUp),
				L1DatabaseSize: opt(v.HasL1DatabaseSize, v.L1DatabaseSize),
				L2SessionsUp:   opt(v.HasL2SessionsUp, v.L2SessionsUp),
				L2DatabaseSize: opt(v.HasL2DatabaseSize, v.L2DatabaseSize),
			})
		}
	case otgmetrics.LLDP:
		for _, v := range res.LldpMetrics().Items() {
			if v == nil {
				continue
			}
			m.LLDP = append(m.LLDP, otgmetrics.LLDPMetric{
				Name:     opt(v.HasName, v.Name),
				FramesTx: opt(v.HasFramesTx, v.FramesTx),
				FramesRx: opt(v.HasFramesRx, v.FramesRx),
			})
		}
	case otgmetrics.OSPFv2:
		for _, v := range res.Ospfv2Metrics().Items() {
			if v == nil {
				continue
			}
			m.OSPF = append(m.OSPF, otgmetrics.OSPFMetric{
				Name:           opt(v.HasName, v.Name),
				FullStateCount: opt(v.HasFullStateCount, v.FullStateCount),
				DownStateCount: opt(v.HasDownStateCount, v.DownStateCount),
				SessionsFlap:   opt(v.HasSessionsFlap, v.SessionsFlap),
				HellosSent:     opt(v.HasHellosSent, v.HellosSent),
				HellosReceived: opt(v.HasHellosReceived, v.HellosReceived),
				LsaSent:        opt(v.HasLsaSent, v.LsaSent),
				LsaReceived:    opt(v.HasLsaReceived, v.LsaReceived),
			})
		}
	case otgmetrics.OSPFv3:
		for _, v := range res.Ospfv3Metrics().Items() {
			if v == nil {
				continue
			}
			m.OSPF = append(m.OSPF, otgmetrics.OSPFMetric{
				Name:           opt(v.HasName, v.Name),
				FullStateCount: opt(v.HasFullStateCount, v.FullStateCount),
				DownStateCount: opt(v.HasDownStateCount, v.DownStateCount),
				SessionsFlap:   opt(v.HasSessionsFlap, v.SessionsFlap),
				HellosSent:     opt(v.HasHellosSent, v.HellosSent),
				HellosReceived: opt(v.HasHellosReceived, v.HellosReceived),
				LsaSent:        opt(v.HasLsaSent, v.LsaSent),
				LsaReceived:    opt(v.HasLsaReceived, v.LsaReceived),
			})
		}
	case otgmetrics.LAG:
		for _, v := range res.LagMetrics().Items() {
			if v == nil {
				continue
			}
			m.LAG = append(m.LAG, otgmetrics.LAGMetric{
				Name:          opt(v.HasName, v.Name),
				OperStatus:    string(opt(v.HasOperStatus, v.OperStatus)),
				MemberPortsUp: opt(v.HasMemberPortsUp, v.MemberPortsUp),
				FramesTx:      opt(v.HasFramesTx, v.FramesTx),
				FramesRx:      opt(v.HasFramesRx, v.FramesRx),
				BytesTx:       opt(v.HasBytesTx, v.BytesTx),
				BytesRx:       opt(v.HasBytesRx, v.BytesRx),
			})
		}
	case otgmetrics.LACP:
		for _, v := range res.LacpMetrics().Items() {
			if v == nil {
				continue
			}
			m.LACP = append(m.LACP, otgmetrics.LACPMetric{
				LagName:         opt(v.HasLagName, v.LagName),
				MemberPortName:  opt(v.HasLagMemberPortName, v.LagMemberPortName),
				PacketsTx:       opt(v.HasLacpPacketsTx, v.LacpPacketsTx),
				PacketsRx:       opt(v.HasLacpPacketsRx, v.LacpPacketsRx),
				Synchronization: string(opt(v.HasSynchronization, v.Synchronization)),
				Collecting:      opt(v.HasCollecting, v.Collecting),
				Distributing:    opt(v.HasDistributing, v.Distributing),
				SystemID:        opt(v.HasSystemId, v.SystemId),
				PartnerID:       opt(v.HasPartnerId, v.PartnerId),
			})
		}
	}
	return m
}

func neighbors(layer otgmetrics.Layer, res gosnappi.StatesResponse) []otgmetrics.Neighbor {
	var ns []otgmetrics.Neighbor
	switch layer {
	case otgmetrics.IPv4:
		for _, v := range res.Ipv4Neighbors().Items() {
			if v == nil {
				continue
			}
			ns = append(ns, otgmetrics.Neighbor{
				EthernetName:     req(v.EthernetName),
				Address:          req(v.Ipv4Address),
				LinkLayerAddress: opt(v.HasLinkLayerAddress, v.LinkLayerAddress),
			})
		}
	case otgmetrics.IPv6:
		for _, v := range res.Ipv6Neighbors().Items() {
			if v == nil {
				continue
			}
			ns = append(ns, otgmetrics.Neighbor{
				EthernetName:     req(v.EthernetName),
				Address:          req(v.Ipv6Address),
				LinkLayerAddress: opt(v.HasLinkLayerAddress, v.LinkLayerAddress),
			})
		}
	}
	return ns
}

func prefix(addr string, length uint32) string {
	if addr == "" {
		return ""
	}
	return fmt.Sprintf("%s/%d", addr, length)
}

func bgpPrefixes(res gosnappi.StatesResponse) []otgmetrics.BGPPrefix {
	var ps []otgmetrics.BGPPrefix
	for _, v := range res.BgpPrefixes().Items() {
		if v == nil {
			continue
		}
		peer := opt(v.HasBgpPeerName, v.BgpPeerName)
		for _, w := range v.Ipv4UnicastPrefixes().Items() {
			ps = append(ps, otgmetrics.BGPPrefix{
				PeerName:        peer,
				Prefix:          prefix(opt(w.HasIpv4Address, w.Ipv4Address), opt(w.HasPrefixLength, w.PrefixLength)),
				NextHop:         opt(w.HasIpv4NextHop, w.Ipv4NextHop),
				Origin:          string(opt(w.HasOrigin, w.Origin)),
				LocalPreference: opt(w.HasLocalPreference, w.LocalPreference),
				MED:             opt(w.HasMultiExitDiscriminator, w.MultiExitDiscriminator),
			})
		}
		for _, w := range v.Ipv6UnicastPrefixes().Items() {
			ps = append(ps, otgmetrics.BGPPrefix{
				PeerName:        peer,
				Prefix:          prefix(opt(w.HasIpv6Address, w.Ipv6Address), opt(w.HasPrefixLength, w.PrefixLength)),
				NextHop:         opt(w.HasIpv6NextHop, w.Ipv6NextHop),
				Origin:          string(opt(w.HasOrigin, w.Origin)),
				LocalPreference: opt(w.HasLocalPreference, w.LocalPreference),
				MED:             opt(w.HasMultiExitDiscriminator, w.MultiExitDiscriminator),
			})
		}
	}
	return ps
}

func isisLsps(res gosnappi.StatesResponse) []otgmetrics.ISISLSP {
	var ls []otgmetrics.ISISLSP
	for _, v := range res.IsisLsps().Items() {
		if v == nil {
			continue
		}
		router := opt(v.HasIsisRouterName, v.IsisRouterName)
		for _, w := range v.Lsps().Items() {
			ls = append(ls, otgmetrics.ISISLSP{
				RouterName:     router,
				LspID:          req(w.LspId),
				PDUType:        string(opt(w.HasPduType, w.PduType)),
				SequenceNumber: opt(w.HasSequenceNumber, w.SequenceNumber),
			})
		}
	}
	return ls
}

// lsaHeader is the header common to OSPFv2 and OSPFv3 LSAs.
type lsaHeader interface {
	HasLsaId() bool
	LsaId() string
	HasAdvertisingRouterId() bool
	AdvertisingRouterId() string
	HasSequenceNumber() bool
	SequenceNumber() uint32
}

func ospfLSA(router, typ string, h lsaHeader) otgmetrics.OSPFLSA {
	return otgmetrics.OSPFLSA{
		RouterName:        router,
		Type:              typ,
		LsaID:             opt(h.HasLsaId, h.LsaId),
		AdvertisingRouter: opt(h.HasAdvertisingRouterId, h.AdvertisingRouterId),
		SequenceNumber:    opt(h.HasSequenceNumber, h.SequenceNumber),
	}
}

func ospfv2Lsas(res gosnappi.StatesResponse) []otgmetrics.OSPFLSA {
	var ls []otgmetrics.OSPFLSA
	for _, v := range res.Ospfv2Lsas().Items() {
		if v == nil {
			continue
		}
		router := opt(v.HasRouterName, v.RouterName)
		for _, w := range v.RouterLsas().Items() {
			ls = append(ls, ospfLSA(router, "router", w.Header()))
		}
		for _, w := range v.NetworkLsas().Items() {
			ls = append(ls, ospfLSA(router, "network", w.Header()))
		}
		for _, w := range v.NetworkSummaryLsas().Items() {
			ls = append(ls, ospfLSA(router, "network_summary", w.Header()))
		}
		for _, w := range v.SummaryAsLsas().Items() {
			ls = append(ls, ospfLSA(router, "summary_as", w.Header()))
		}
		for _, w := range v.ExternalAsLsas().Items() {
			ls = append(ls, ospfLSA(router, "external_as", w.Header()))
		}
		for _, w := range v.NssaLsas().Items() {
			ls = append(ls, ospfLSA(router, "nssa", w.Header()))
		}
	}
	return ls
}

func ospfv3Lsas(res gosnappi.StatesResponse) []otgmetrics.OSPFLSA {
	var ls []otgmetrics.OSPFLSA
	for _, v := range res.Ospfv3Lsas().Items() {
		if v == nil {
			continue
		}
		router := opt(v.HasRouterName, v.RouterName)
		for _, w := range v.RouterLsas().Items() {
			ls = append(ls, ospfLSA(router, "router", w.Header()))
		}
		for _, w := range v.NetworkLsas().Items() {
			ls = append(ls, ospfLSA(router, "network", w.Header()))
		}
		for _, w := range v.InterAreaPrefixLsas().Items() {
			ls = append(ls, ospfLSA(router, "inter_area_prefix", w.Header()))
		}
		for _, w := range v.InterAreaRouterLsas().Items() {
			ls = append(ls, ospfLSA(router, "inter_area_router", w.Header()))
		}
		for _, w := range v.ExternalAsLsas().Items() {
			ls = append(ls, ospfLSA(router, "external_as", w.Header()))
		}
		for _, w := range v.NssaLsas().Items() {
			ls = append(ls, ospfLSA(router, "nssa", w.Header()))
		}
		for _, w := range v.LinkLsas().Items() {
			ls = append(ls, ospfLSA(router, "link", w.Header()))
		}
		for _, w := range v.IntraAreaPrefixLsas().Items() {
			ls = append(ls, ospfLSA(router, "intra_area_prefix", w.Header()))
		}
	}
	return ls
}

func lldpNeighbors(res gosnappi.StatesResponse) []otgmetrics.LLDPNeighbor {
	var ns []otgmetrics.LLDPNeighbor
	for _, v := range res.LldpNeighbors().Items() {
		if v == nil {
			continue
		}
		ns = append(ns, otgmetrics.LLDPNeighbor{
			LldpName:   opt(v.HasLldpName, v.LldpName),
			SystemName: opt(v.HasSystemName, v.SystemName),
			ChassisID:  opt(v.HasChassisId, v.ChassisId),
			PortID:     opt(v.HasPortId, v.PortId),
		})
	}
	return ns
}

func protocolStates(kind otgmetrics.StateKind, res gosnappi.StatesResponse) otgmetrics.ProtocolStates {
	s := otgmetrics.ProtocolStates{Kind: kind}
	switch kind {
	case otgmetrics.BGPPrefixes:
		s.BGPPrefixes = bgpPrefixes(res)
	case otgmetrics.ISISLsps:
		s.ISISLsps = isisLsps(res)
	case otgmetrics.OSPFv2Lsas:
		s.OSPFLsas = ospfv2Lsas(res)
	case otgmetrics.OSPFv3Lsas:
		s.OSPFLsas = ospfv3Lsas(res)
	case otgmetrics.LLDPNeighbors:
		s.LLDPNeighbors = lldpNeighbors(res)
	}
	return s
}
