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

// Package otgconfig describes a traffic generator scenario: ports, emulated
// devices, flows with their header stacks, and captures. Scenarios are loaded
// from YAML, validated, and converted into a gosnappi configuration.
package otgconfig

import (
	"errors"
	"fmt"
	"net"
	"os"
	"slices"

	"github.com/openconfig/otgharness/internal/capture"
	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig is returned by Validate for any inconsistent scenario.
var ErrInvalidConfig = errors.New("invalid scenario config")

// Config is a traffic generator scenario.
type Config struct {
	Name     string    `yaml:"name,omitempty"`
	Ports    []Port    `yaml:"ports"`
	Layer1   *Layer1   `yaml:"layer1,omitempty"`
	Lags     []LAG     `yaml:"lags,omitempty"`
	Devices  []Device  `yaml:"devices,omitempty"`
	Flows    []Flow    `yaml:"flows,omitempty"`
	Captures []Capture `yaml:"captures,omitempty"`
}

// Port is a test port and its location on the traffic generator.
type Port struct {
	Name     string `yaml:"name"`
	Location string `yaml:"location"`
}

// Layer1 applies a line speed to all ports.
type Layer1 struct {
	Speed string `yaml:"speed"`
}

// Device is an emulated host behind one port.
type Device struct {
	Name string   `yaml:"name"`
	Port string   `yaml:"port"`
	MAC  string   `yaml:"mac"`
	MTU  uint32   `yaml:"mtu,omitempty"`
	VLAN uint32   `yaml:"vlan,omitempty"`
	IPv4 *IPAddr  `yaml:"ipv4,omitempty"`
	IPv6 *IPAddr  `yaml:"ipv6,omitempty"`
	BGP  *BGP     `yaml:"bgp,omitempty"`
	ISIS *ISIS    `yaml:"isis,omitempty"`
	LLDP *LLDPCfg `yaml:"lldp,omitempty"`

	OSPFv2 *OSPF `yaml:"ospfv2,omitempty"`
	OSPFv3 *OSPF `yaml:"ospfv3,omitempty"`
}

// LAG aggregates ports. Protocol is "lacp" (default) or "static". MAC is
// used as the LACP system id and as the MAC of every member.
type LAG struct {
	Name     string   `yaml:"name"`
	Ports    []string `yaml:"ports"`
	MAC      string   `yaml:"mac"`
	Protocol string   `yaml:"protocol,omitempty"`
}

// IPAddr is an interface address with its gateway.
type IPAddr struct {
	Address string `yaml:"address"`
	Gateway string `yaml:"gateway"`
	Prefix  uint32 `yaml:"prefix"`
}

// BGP is a device's BGP router.
type BGP struct {
	RouterID string    `yaml:"router_id"`
	Peers    []BGPPeer `yaml:"peers"`
}

// BGPPeer is a BGP session. Family selects the interface the peer runs on:
// "ipv4" (default) or "ipv6". Type is "ebgp" (default) or "ibgp".
type BGPPeer struct {
	Name    string       `yaml:"name"`
	Address string       `yaml:"address"`
	ASN     uint32       `yaml:"asn"`
	Type    string       `yaml:"type,omitempty"`
	Family  string       `yaml:"family,omitempty"`
	Routes  []RouteRange `yaml:"routes,omitempty"`
}

// RouteRange is a block of Count advertised prefixes.
type RouteRange struct {
	Name    string `yaml:"name"`
	Address string `yaml:"address"`
	Prefix  uint32 `yaml:"prefix"`
	Count   uint32 `yaml:"count,omitempty"`
}

// ISIS is a device's IS-IS router. Level is "l1", "l2" (default) or "l1l2".
type ISIS struct {
	Name     string       `yaml:"name"`
	SystemID string       `yaml:"system_id"`
	Level    string       `yaml:"level,omitempty"`
	Routes   []RouteRange `yaml:"routes,omitempty"`
}

// OSPF is a device's OSPFv2 router on its IPv4 interface, or its OSPFv3
// router on its IPv6 interface. Interfaces are point to point.
type OSPF struct {
	Name     string       `yaml:"name"`
	RouterID string       `yaml:"router_id"`
	Routes   []RouteRange `yaml:"routes,omitempty"`
}

// LLDPCfg enables an LLDP agent on the device's port.
type LLDPCfg struct {
	Name string `yaml:"name"`
}

// Endpoint kinds for flows.
const (
	EndpointPort   = "port"
	EndpointDevice = "device"
)

// Flow is a traffic stream. Tx and Rx name ports, or device interfaces when
// Endpoint is "device". Exactly one of Pps and Percentage sets the rate.
type Flow struct {
	Name       string   `yaml:"name"`
	Endpoint   string   `yaml:"endpoint,omitempty"`
	Tx         string   `yaml:"tx"`
	Rx         []string `yaml:"rx"`
	Size       uint32   `yaml:"size"`
	Pps        uint64   `yaml:"pps,omitempty"`
	Percentage float32  `yaml:"percentage,omitempty"`
	Packets    uint32   `yaml:"packets"`
	Headers    []Header `yaml:"headers"`
}

// Header is one header of a flow's packet, outermost first. Fields maps the
// header's field names to value patterns; unlisted fields keep generator
// defaults.
type Header struct {
	Type   string             `yaml:"type"`
	Fields map[string]Pattern `yaml:"fields,omitempty"`
}

// Capture enables packet capture on ports. Format is "pcap" (default) or
// "pcapng".
type Capture struct {
	Name   string   `yaml:"name"`
	Ports  []string `yaml:"ports"`
	Format string   `yaml:"format,omitempty"`
}

// Load reads and validates a scenario file.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("could not read scenario %s: %w", path, err)
	}
	c, err := Parse(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a YAML scenario.
func Parse(b []byte) (*Config, error) {
	c := &Config{}
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("could not unmarshal scenario: %w", err)
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

// Validate checks names, references and header stacks.
func (c *Config) Validate() error {
	if len(c.Ports) == 0 {
		return invalid("no ports")
	}
	ports := map[string]bool{}
	for _, p := range c.Ports {
		if p.Name == "" {
			return invalid("port with empty name")
		}
		if ports[p.Name] {
			return invalid("duplicate port %q", p.Name)
		}
		ports[p.Name] = true
	}
	if c.Layer1 != nil && Layer1SpeedToMbps(c.Layer1.Speed) == 0 {
		return invalid("unknown layer1 speed %q", c.Layer1.Speed)
	}

	lagPorts := map[string]string{}
	for _, l := range c.Lags {
		if l.Name == "" {
			return invalid("lag with empty name")
		}
		if len(l.Ports) == 0 {
			return invalid("lag %q has no ports", l.Name)
		}
		for _, p := range l.Ports {
			if !ports[p] {
				return invalid("lag %q on unknown port %q", l.Name, p)
			}
			if other, ok := lagPorts[p]; ok {
				return invalid("port %q is in lags %q and %q", p, other, l.Name)
			}
			lagPorts[p] = l.Name
		}
		if _, err := net.ParseMAC(l.MAC); err != nil {
			return invalid("lag %q: %v", l.Name, err)
		}
		switch l.Protocol {
		case "", "lacp", "static":
		default:
			return invalid("lag %q has unknown protocol %q", l.Name, l.Protocol)
		}
	}

	ifaces := map[string]bool{}
	for _, d := range c.Devices {
		if err := d.validate(ports); err != nil {
			return err
		}
		ifaces[d.EthName()] = true
		if d.IPv4 != nil {
			ifaces[d.IPv4Name()] = true
		}
		if d.IPv6 != nil {
			ifaces[d.IPv6Name()] = true
		}
	}

	flows := map[string]bool{}
	for _, f := range c.Flows {
		if flows[f.Name] {
			return invalid("duplicate flow %q", f.Name)
		}
		flows[f.Name] = true
		endpoints := ports
		if f.endpoint() == EndpointDevice {
			endpoints = ifaces
		}
		if err := f.validate(endpoints); err != nil {
			return err
		}
	}

	for _, cp := range c.Captures {
		for _, p := range cp.Ports {
			if !ports[p] {
				return invalid("capture %q on unknown port %q", cp.Name, p)
			}
		}
		switch cp.Format {
		case "", "pcap", "pcapng":
		default:
			return invalid("capture %q has unknown format %q", cp.Name, cp.Format)
		}
	}
	return nil
}

func (d Device) validate(ports map[string]bool) error {
	if d.Name == "" {
		return invalid("device with empty name")
	}
	if !ports[d.Port] {
		return invalid("device %q on unknown port %q", d.Name, d.Port)
	}
	if d.BGP != nil {
		for _, p := range d.BGP.Peers {
			switch p.AddressFamily() {
			case "ipv4":
				if d.IPv4 == nil {
					return invalid("bgp peer %q needs an ipv4 address on device %q", p.Name, d.Name)
				}
			case "ipv6":
				if d.IPv6 == nil {
					return invalid("bgp peer %q needs an ipv6 address on device %q", p.Name, d.Name)
				}
			default:
				return invalid("bgp peer %q has unknown family %q", p.Name, p.Family)
			}
			if p.Type != "" && p.Type != "ebgp" && p.Type != "ibgp" {
				return invalid("bgp peer %q has unknown type %q", p.Name, p.Type)
			}
		}
	}
	if d.OSPFv2 != nil && d.IPv4 == nil {
		return invalid("ospfv2 router %q needs an ipv4 address on device %q", d.OSPFv2.Name, d.Name)
	}
	if d.OSPFv3 != nil && d.IPv6 == nil {
		return invalid("ospfv3 router %q needs an ipv6 address on device %q", d.OSPFv3.Name, d.Name)
	}
	if d.ISIS != nil {
		switch d.ISIS.Level {
		case "", "l1", "l2", "l1l2":
		default:
			return invalid("isis router %q has unknown level %q", d.ISIS.Name, d.ISIS.Level)
		}
	}
	return nil
}

func (f Flow) validate(endpoints map[string]bool) error {
	if f.Name == "" {
		return invalid("flow with empty name")
	}
	switch f.endpoint() {
	case EndpointPort, EndpointDevice:
	default:
		return invalid("flow %q has unknown endpoint kind %q", f.Name, f.Endpoint)
	}
	if !endpoints[f.Tx] {
		return invalid("flow %q transmits from unknown %s %q", f.Name, f.endpoint(), f.Tx)
	}
	if len(f.Rx) == 0 {
		return invalid("flow %q has no receivers", f.Name)
	}
	for _, rx := range f.Rx {
		if !endpoints[rx] {
			return invalid("flow %q receives on unknown %s %q", f.Name, f.endpoint(), rx)
		}
	}
	if (f.Pps == 0) == (f.Percentage == 0) {
		return invalid("flow %q needs exactly one of pps and percentage", f.Name)
	}
	if f.Percentage < 0 || f.Percentage > 100 {
		return invalid("flow %q rate %v%% out of range", f.Name, f.Percentage)
	}
	if f.Packets == 0 {
		return invalid("flow %q sends no packets", f.Name)
	}
	st, err := f.Stack()
	if err != nil {
		return invalid("flow %q: %v", f.Name, err)
	}
	if int(f.Size) < st.Len()+capture.FCSLen {
		return invalid("flow %q size %d is smaller than its headers (%d bytes + FCS)", f.Name, f.Size, st.Len())
	}
	if _, err := f.Checks(); err != nil {
		return invalid("flow %q: %v", f.Name, err)
	}
	return nil
}

func (f Flow) endpoint() string {
	if f.Endpoint == "" {
		return EndpointPort
	}
	return f.Endpoint
}

// AddressFamily is the peer's Family, defaulting to "ipv4".
func (p BGPPeer) AddressFamily() string {
	if p.Family == "" {
		return "ipv4"
	}
	return p.Family
}

// Stack returns the flow's header types as an encapsulation stack.
func (f Flow) Stack() (capture.Stack, error) {
	if len(f.Headers) == 0 {
		return nil, errors.New("no headers")
	}
	if f.Headers[0].Type != "ethernet" {
		return nil, fmt.Errorf("outermost header is %q, want ethernet", f.Headers[0].Type)
	}
	st := make(capture.Stack, 0, len(f.Headers))
	for _, h := range f.Headers {
		ht, err := capture.ParseHeader(h.Type)
		if err != nil {
			return nil, err
		}
		if len(st) > 0 && !slices.Contains(follows[ht], st[len(st)-1]) {
			return nil, fmt.Errorf("%s header cannot follow %s", ht, st[len(st)-1])
		}
		st = append(st, ht)
	}
	return st, nil
}

// follows lists the headers each header may be encapsulated in.
var follows = map[capture.Header][]capture.Header{
	capture.Ethernet: {capture.VXLAN},
	capture.VLAN:     {capture.Ethernet, capture.VLAN},
	capture.IPv4:     {capture.Ethernet, capture.VLAN},
	capture.IPv6:     {capture.Ethernet, capture.VLAN},
	capture.UDP:      {capture.IPv4, capture.IPv6},
	capture.TCP:      {capture.IPv4, capture.IPv6},
	capture.VXLAN:    {capture.UDP},
}

// EthName is the name of the device's Ethernet interface.
func (d Device) EthName() string { return d.Name + ".eth" }

// IPv4Name is the name of the device's IPv4 interface.
func (d Device) IPv4Name() string { return d.Name + ".ipv4" }

// IPv6Name is the name of the device's IPv6 interface.
func (d Device) IPv6Name() string { return d.Name + ".ipv6" }

// Flow returns the named flow.
func (c *Config) Flow(name string) (Flow, bool) {
	for _, f := range c.Flows {
		if f.Name == name {
			return f, true
		}
	}
	return Flow{}, false
}

// EndpointPort maps one of f's Tx or Rx endpoints to its test port. It
// returns "" for a device interface that no device owns.
func (c *Config) EndpointPort(f Flow, endpoint string) string {
	if f.endpoint() != EndpointDevice {
		return endpoint
	}
	for _, d := range c.Devices {
		if endpoint == d.EthName() || endpoint == d.IPv4Name() || endpoint == d.IPv6Name() {
			return d.Port
		}
	}
	return ""
}

// LACP reports whether the LAG runs LACP.
func (l LAG) LACP() bool { return l.Protocol != "static" }

// CapturePorts returns the ports with capture enabled, in config order.
func (c *Config) CapturePorts() []string {
	var ports []string
	seen := map[string]bool{}
	for _, cp := range c.Captures {
		for _, p := range cp.Ports {
			if !seen[p] {
				seen[p] = true
				ports = append(ports, p)
			}
		}
	}
	return ports
}

// Owner returns the device holding address on its IPv4 or IPv6 interface.
func (c *Config) Owner(address string) (Device, bool) {
	ip := net.ParseIP(address)
	if ip == nil {
		return Device{}, false
	}
	for _, d := range c.Devices {
		for _, a := range []*IPAddr{d.IPv4, d.IPv6} {
			if a != nil && ip.Equal(net.ParseIP(a.Address)) {
				return d, true
			}
		}
	}
	return Device{}, false
}

// RemotePeer returns the peer on the device at p's address that points back
// at dev. A session between them can come up only if it exists.
func (c *Config) RemotePeer(dev Device, p BGPPeer) (BGPPeer, bool) {
	other, ok := c.Owner(p.Address)
	if !ok || other.BGP == nil {
		return BGPPeer{}, false
	}
	for _, rp := range other.BGP.Peers {
		if o, ok := c.Owner(rp.Address); ok && o.Name == dev.Name {
			return rp, true
		}
	}
	return BGPPeer{}, false
}

// OSPFNeighbor returns the device at dev's gateway and its router of the
// same OSPF version as dev's. An adjacency can reach full only if it exists.
func (c *Config) OSPFNeighbor(dev Device, v3 bool) (Device, *OSPF, bool) {
	a, r := dev.IPv4, dev.OSPFv2
	if v3 {
		a, r = dev.IPv6, dev.OSPFv3
	}
	if a == nil || r == nil {
		return Device{}, nil, false
	}
	other, ok := c.Owner(a.Gateway)
	if !ok {
		return Device{}, nil, false
	}
	nr := other.OSPFv2
	if v3 {
		nr = other.OSPFv3
	}
	if nr == nil {
		return Device{}, nil, false
	}
	return other, nr, true
}

// RouteCount is the number of prefixes in routes. A range without a count
// holds one prefix.
func RouteCount(routes []RouteRange) uint64 {
	var n uint64
	for _, rr := range routes {
		if rr.Count == 0 {
			n++
			continue
		}
		n += uint64(rr.Count)
	}
	return n
}

// Layer1SpeedToMbps converts a layer1 speed such as "speed_10_gbps" to Mbps,
// returning 0 for unknown speeds.
func Layer1SpeedToMbps(speed string) uint64 {
	switch speed {
	case "speed_10_mbps":
		return 10
	case "speed_100_mbps":
		return 100
	case "speed_1_gbps":
		return 1000
	case "speed_10_gbps":
		return 10000
	case "speed_25_gbps":
		return 25000
	case "speed_40_gbps":
		return 40000
	case "speed_50_gbps":
		return 50000
	case "speed_100_gbps":
		return 100000
	case "speed_200_gbps":
		return 200000
	case "speed_400_gbps":
		return 400000
	case "speed_800_gbps":
		return 800000
	default:
		return 0
	}
}
