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
	"fmt"

	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/table"
)

// FlowMetricsTable renders flow statistics.
func FlowMetricsTable(metrics []otgmetrics.FlowMetric) *table.Table {
	t := table.New("Flow Metrics", "Name", "State", "Frames Tx", "Frames Rx", "FPS Tx", "FPS Rx", "Bytes Tx", "Bytes Rx")
	for _, m := range metrics {
		t.AppendRow(m.Name, m.Transmit, m.FramesTx, m.FramesRx, m.FramesTxRate, m.FramesRxRate, m.BytesTx, m.BytesRx)
	}
	return t
}

// PortMetricsTable renders port statistics.
func PortMetricsTable(metrics []otgmetrics.PortMetric) *table.Table {
	t := table.New("Port Metrics", "Name", "Frames Tx", "Frames Rx", "Bytes Tx", "Bytes Rx", "FPS Tx", "FPS Rx", "Link")
	for _, m := range metrics {
		t.AppendRow(m.Name, m.FramesTx, m.FramesRx, m.BytesTx, m.BytesRx, m.FramesTxRate, m.FramesRxRate, m.Link)
	}
	return t
}

// ProtocolMetricsTable renders the records of m.Kind.
func ProtocolMetricsTable(m otgmetrics.ProtocolMetrics) *table.Table {
	switch m.Kind {
	case otgmetrics.BGPv4, otgmetrics.BGPv6:
		title := "BGPv4 Metrics"
		if m.Kind == otgmetrics.BGPv6 {
			title = "BGPv6 Metrics"
		}
		t := table.New(title, "Name", "Session State", "Session Flaps", "Routes Advertised", "Routes Received", "Updates Tx", "Updates Rx")
		for _, p := range m.BGP {
			t.AppendRow(p.Name, p.SessionState, p.SessionFlapCount, p.RoutesAdvertised, p.RoutesReceived, p.UpdatesSent, p.UpdatesReceived)
		}
		return t
	case otgmetrics.ISIS:
		t := table.New("IS-IS Metrics", "Name", "L1 Sessions UP", "L1 Database Size", "L2 Sessions UP", "L2 Database Size")
		for _, r := range m.ISIS {
			t.AppendRow(r.Name, r.L1SessionsUp, r.L1DatabaseSize, r.L2SessionsUp, r.L2DatabaseSize)
		}
		return t
	case otgmetrics.LLDP:
		t := table.New("LLDP Metrics", "Name", "Frames Tx", "Frames Rx")
		for _, l := range m.LLDP {
			t.AppendRow(l.Name, l.FramesTx, l.FramesRx)
		}
		return t
	case otgmetrics.OSPFv2, otgmetrics.OSPFv3:
		title := "OSPFv2 Metrics"
		if m.Kind == otgmetrics.OSPFv3 {
			title = "OSPFv3 Metrics"
		}
		t := table.New(title, "Name", "Full", "Down", "Flaps", "Hellos Tx", "Hellos Rx", "LSA Tx", "LSA Rx")
		for _, r := range m.OSPF {
			t.AppendRow(r.Name, r.FullStateCount, r.DownStateCount, r.SessionsFlap, r.HellosSent, r.HellosReceived, r.LsaSent, r.LsaReceived)
		}
		return t
	case otgmetrics.LAG:
		t := table.New("LAG Metrics", "Name", "Oper Status", "Members Up", "Frames Tx", "Frames Rx", "Bytes Tx", "Bytes Rx")
		for _, l := range m.LAG {
			t.AppendRow(l.Name, l.OperStatus, l.MemberPortsUp, l.FramesTx, l.FramesRx, l.BytesTx, l.BytesRx)
		}
		return t
	case otgmetrics.LACP:
		t := table.New("LACP Metrics", "LAG", "Member Port", "LACPDU Tx", "LACPDU Rx", "Sync", "Collecting", "Distributing", "System ID", "Partner ID")
		for _, l := range m.LACP {
			t.AppendRow(l.LagName, l.MemberPortName, l.PacketsTx, l.PacketsRx, l.Synchronization, l.Collecting, l.Distributing, l.SystemID, l.PartnerID)
		}
		return t
	}
	return table.New(fmt.Sprintf("%s Metrics", m.Kind), "Name")
}

// ProtocolStatesTable renders the learned state of st.Kind.
func ProtocolStatesTable(st otgmetrics.ProtocolStates) *table.Table {
	switch st.Kind {
	case otgmetrics.BGPPrefixes:
		t := table.New("BGP Prefixes", "Peer", "Prefix", "Next Hop", "Origin", "Local Pref", "MED")
		for _, p := range st.BGPPrefixes {
			t.AppendRow(p.PeerName, p.Prefix, p.NextHop, p.Origin, p.LocalPreference, p.MED)
		}
		return t
	case otgmetrics.ISISLsps:
		t := table.New("IS-IS LSPs", "Router", "LSP ID", "PDU Type", "Sequence")
		for _, l := range st.ISISLsps {
			t.AppendRow(l.RouterName, l.LspID, l.PDUType, l.SequenceNumber)
		}
		return t
	case otgmetrics.OSPFv2Lsas, otgmetrics.OSPFv3Lsas:
		title := "OSPFv2 LSAs"
		if st.Kind == otgmetrics.OSPFv3Lsas {
			title = "OSPFv3 LSAs"
		}
		t := table.New(title, "Router", "Type", "LSA ID", "Advertising Router", "Sequence")
		for _, l := range st.OSPFLsas {
			t.AppendRow(l.RouterName, l.Type, l.LsaID, l.AdvertisingRouter, l.SequenceNumber)
		}
		return t
	case otgmetrics.LLDPNeighbors:
		t := table.New("LLDP Neighbors", "LLDP", "System Name", "Chassis ID", "Port ID")
		for _, n := range st.LLDPNeighbors {
			t.AppendRow(n.LldpName, n.SystemName, n.ChassisID, n.PortID)
		}
		return t
	}
	return table.New(fmt.Sprintf("%s States", st.Kind), "Name")
}

// NeighborsTable renders an ARP or ND table.
func NeighborsTable(layer otgmetrics.Layer, neighbors []otgmetrics.Neighbor) *table.Table {
	title := "IPv4 Neighbors"
	if layer == otgmetrics.IPv6 {
		title = "IPv6 Neighbors"
	}
	t := table.New(title, "Ethernet Name", "IP Address", "Link Layer Address")
	for _, n := range neighbors {
		t.AppendRow(n.EthernetName, n.Address, n.LinkLayerAddress)
	}
	return t
}
