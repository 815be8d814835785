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

package capture

import (
	"fmt"
	"strings"
)

// Header is a fixed-size protocol header in an encapsulation stack.
type Header int

const (
	Ethernet Header = iota
	VLAN
	IPv4
	IPv6
	UDP
	TCP
	VXLAN
)

var headerLens = map[Header]int{
	Ethernet: 14,
	VLAN:     4,
	IPv4:     20,
	IPv6:     40,
	UDP:      8,
	TCP:      20,
	VXLAN:    8,
}

var headerNames = map[Header]string{
	Ethernet: "ethernet",
	VLAN:     "vlan",
	IPv4:     "ipv4",
	IPv6:     "ipv6",
	UDP:      "udp",
	TCP:      "tcp",
	VXLAN:    "vxlan",
}

// Len returns the header length in bytes, without options.
func (h Header) Len() int { return headerLens[h] }

func (h Header) String() string {
	if n, ok := headerNames[h]; ok {
		return n
	}
	return fmt.Sprintf("Header(%d)", int(h))
}

// ParseHeader maps a header name ("ethernet", "ipv4", ...) to a Header.
func ParseHeader(name string) (Header, error) {
	for h, n := range headerNames {
		if strings.EqualFold(n, name) {
			return h, nil
		}
	}
	return 0, fmt.Errorf("unknown header %q", name)
}

// Field offsets relative to the start of their header. A VLAN header is the
// 4 bytes following the TPID, which sits in the Ethernet type field.
const (
	EthernetDst  = 0
	EthernetSrc  = 6
	EthernetType = 12

	VLANTCI  = 0
	VLANType = 2

	IPv4TotalLength = 2
	IPv4TTL         = 8
	IPv4Protocol    = 9
	IPv4Src         = 12
	IPv4Dst         = 16

	IPv6PayloadLength = 4
	IPv6NextHeader    = 6
	IPv6HopLimit      = 7
	IPv6Src           = 8
	IPv6Dst           = 24

	UDPSrcPort = 0
	UDPDstPort = 2
	UDPLength  = 4

	TCPSrcPort = 0
	TCPDstPort = 2

	VXLANFlags = 0
	VXLANVNI   = 4
)

// FCSLen is the frame check sequence length. Traffic generators count it in
// the configured frame size, so a 128 byte frame carries 110 bytes of
// Ethernet payload (128 - 14 - 4).
const FCSLen = 4

// Stack is an encapsulation sequence, outermost header first, e.g.
// Stack{Ethernet, IPv4, UDP, VXLAN, Ethernet, IPv6, TCP}.
type Stack []Header

// ParseStack parses a "/"-separated header list such as
// "ethernet/ipv4/udp/vxlan/ethernet/ipv6/tcp".
func ParseStack(s string) (Stack, error) {
	var st Stack
	for _, name := range strings.Split(s, "/") {
		h, err := ParseHeader(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		st = append(st, h)
	}
	return st, nil
}

// Start returns the absolute offset of the i-th header.
func (s Stack) Start(i int) int {
	off := 0
	for _, h := range s[:i] {
		off += h.Len()
	}
	return off
}

// Offset returns the absolute offset of a field of the i-th header, where
// field is one of the relative offsets above.
func (s Stack) Offset(i, field int) int {
	return s.Start(i) + field
}

// Index returns the position of the n-th (zero-based) occurrence of h in
// the stack, or -1. Index(Ethernet, 1) is the inner Ethernet header of a
// VXLAN stack.
func (s Stack) Index(h Header, n int) int {
	for i, x := range s {
		if x != h {
			continue
		}
		if n == 0 {
			return i
		}
		n--
	}
	return -1
}

// Len returns the total length of all headers in the stack.
func (s Stack) Len() int { return s.Start(len(s)) }

func (s Stack) String() string {
	names := make([]string, len(s))
	for i, h := range s {
		names[i] = h.String()
	}
	return strings.Join(names, "/")
}
