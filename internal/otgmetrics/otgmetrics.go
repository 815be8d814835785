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

// Package otgmetrics defines the metric and state records returned by a
// traffic generator, independent of the transport used to fetch them.
package otgmetrics

import (
	"fmt"
	"strings"
)

// TransmitState is the transmit state of a flow.
type TransmitState string

const (
	TransmitStarted TransmitState = "started"
	TransmitStopped TransmitState = "stopped"
	TransmitPaused  TransmitState = "paused"
)

// FlowMetric holds the counters of one flow.
type FlowMetric struct {
	Name         string
	Transmit     TransmitState
	FramesTx     uint64
	FramesRx     uint64
	FramesTxRate float64
	FramesRxRate float64
	BytesTx      uint64
	BytesRx      uint64
}

// PortMetric holds the counters of one test port.
type PortMetric struct {
	Name         string
	Link         string
	Capture      string
	FramesTx     uint64
	FramesRx     uint64
	FramesTxRate float64
	FramesRxRate float64
	BytesTx      uint64
	BytesRx      uint64
}

// ProtocolKind selects the protocol whose metrics are requested.
type ProtocolKind string

const (
	BGPv4  ProtocolKind = "bgpv4"
	BGPv6  ProtocolKind = "bgpv6"
	ISIS   ProtocolKind = "isis"
	LLDP   ProtocolKind = "lldp"
	OSPFv2 ProtocolKind = "ospfv2"
	OSPFv3 ProtocolKind = "ospfv3"
	LAG    ProtocolKind = "lag"
	LACP   ProtocolKind = "lacp"
)

// ProtocolKinds lists every supported kind.
var ProtocolKinds = []ProtocolKind{BGPv4, BGPv6, ISIS, LLDP, OSPFv2, OSPFv3, LAG, LACP}

// ParseProtocolKind maps a name such as "bgpv4" to a ProtocolKind.
func ParseProtocolKind(s string) (ProtocolKind, error) {
	for _, k := range ProtocolKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown protocol kind %q", s)
}

// SessionState is the state of a BGP session.
type SessionState string

const (
	SessionUp   SessionState = "up"
	SessionDown SessionState = "down"
)

// BGPMetric holds the counters of one BGP peer.
type BGPMetric struct {
	Name             string
	SessionState     SessionState
	SessionFlapCount uint64
	RoutesAdvertised uint64
	RoutesReceived   uint64
	UpdatesSent      uint64
	UpdatesReceived  uint64
}

// ISISMetric holds the counters of one IS-IS router.
type ISISMetric struct {
	Name           string
	L1SessionsUp   uint32
	L1DatabaseSize uint64
	L2SessionsUp   uint32
	L2DatabaseSize uint64
}

// LLDPMetric holds the counters of one LLDP instance.
type LLDPMetric struct {
	Name     string
	FramesTx uint64
	FramesRx uint64
}

// OSPFMetric holds the counters of one OSPFv2 or OSPFv3 router.
type OSPFMetric struct {
	Name           string
	FullStateCount uint64
	DownStateCount uint64
	SessionsFlap   uint64
	HellosSent     uint64
	HellosReceived uint64
	LsaSent        uint64
	LsaReceived    uint64
}

// LAGMetric holds the state and counters of one link aggregation group.
type LAGMetric struct {
	Name          string
	OperStatus    string
	MemberPortsUp uint32
	FramesTx      uint64
	FramesRx      uint64
	BytesTx       uint64
	BytesRx       uint64
}

// LACPMetric holds the LACP state of one LAG member port.
type LACPMetric struct {
	LagName         string
	MemberPortName  string
	PacketsTx       uint64
	PacketsRx       uint64
	Synchronization string
	Collecting      bool
	Distributing    bool
	SystemID        string
	PartnerID       string
}

// ProtocolMetrics holds the records of one protocol kind. Only the slice
// matching Kind is populated.
type ProtocolMetrics struct {
	Kind ProtocolKind
	BGP  []BGPMetric
	ISIS []ISISMetric
	LLDP []LLDPMetric
	OSPF []OSPFMetric
	LAG  []LAGMetric
	LACP []LACPMetric
}

// Len returns the number of records for Kind.
func (m ProtocolMetrics) Len() int {
	switch m.Kind {
	case BGPv4, BGPv6:
		return len(m.BGP)
	case ISIS:
		return len(m.ISIS)
	case LLDP:
		return len(m.LLDP)
	case OSPFv2, OSPFv3:
		return len(m.OSPF)
	case LAG:
		return len(m.LAG)
	case LACP:
		return len(m.LACP)
	}
	return 0
}

// Layer is the address family of a neighbor table.
type Layer string

const (
	IPv4 Layer = "ipv4"
	IPv6 Layer = "ipv6"
)

// Neighbor is one ARP (IPv4) or ND (IPv6) entry of an emulated interface.
type Neighbor struct {
	EthernetName     string
	Address          string
	LinkLayerAddress string
}

// Resolved reports whether the neighbor has a link layer address.
func (n Neighbor) Resolved() bool { return n.LinkLayerAddress != "" }

// StateKind selects the learned protocol state that is requested.
type StateKind string

const (
	BGPPrefixes   StateKind = "bgp_prefixes"
	ISISLsps      StateKind = "isis_lsps"
	OSPFv2Lsas    StateKind = "ospfv2_lsas"
	OSPFv3Lsas    StateKind = "ospfv3_lsas"
	LLDPNeighbors StateKind = "lldp_neighbors"
)

// StateKinds lists every supported kind.
var StateKinds = []StateKind{BGPPrefixes, ISISLsps, OSPFv2Lsas, OSPFv3Lsas, LLDPNeighbors}

// ParseStateKind maps a name such as "isis_lsps" to a StateKind.
func ParseStateKind(s string) (StateKind, error) {
	for _, k := range StateKinds {
		if strings.EqualFold(string(k), s) {
			return k, nil
		}
	}
	return "", fmt.Errorf("unknown state kind %q", s)
}

// BGPPrefix is one prefix learned by a BGP peer. Prefix is in
// address/length form.
type BGPPrefix struct {
	PeerName        string
	Prefix          string
	NextHop         string
	Origin          string
	LocalPreference uint32
	MED             uint32
}

// ISISLSP is one LSP in an IS-IS router's database.
type ISISLSP struct {
	RouterName     string
	LspID          string
	PDUType        string
	SequenceNumber uint64
}

// OSPFLSA is one LSA in an OSPF router's database. Type is the LSA type as
// named by the generator, e.g. "router" or "external_as".
type OSPFLSA struct {
	RouterName        string
	Type              string
	LsaID             string
	AdvertisingRouter string
	SequenceNumber    uint32
}

// LLDPNeighbor is one neighbor learned by an LLDP agent.
type LLDPNeighbor struct {
	LldpName   string
	SystemName string
	ChassisID  string
	PortID     string
}

// ProtocolStates holds the learned state of one kind. Only the slice
// matching Kind is populated.
type ProtocolStates struct {
	Kind          StateKind
	BGPPrefixes   []BGPPrefix
	ISISLsps      []ISISLSP
	OSPFLsas      []OSPFLSA
	LLDPNeighbors []LLDPNeighbor
}

// Len returns the number of records for Kind.
func (s ProtocolStates) Len() int {
	switch s.Kind {
	case BGPPrefixes:
		return len(s.BGPPrefixes)
	case ISISLsps:
		return len(s.ISISLsps)
	case OSPFv2Lsas, OSPFv3Lsas:
		return len(s.OSPFLsas)
	case LLDPNeighbors:
		return len(s.LLDPNeighbors)
	}
	return 0
}
