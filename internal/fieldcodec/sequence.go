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

package fieldcodec

import (
	"encoding/binary"
	"fmt"
	"math/big"
	"net"
)

// The generators below produce the value sequences a traffic generator emits
// for increment/decrement header patterns, so that expected capture contents
// can be computed instead of hand-listed.

// GenerateIPs returns up to n consecutive addresses from ipBlock.
func GenerateIPs(ipBlock string, n int) []string {
	var entries []string
	_, netCIDR, err := net.ParseCIDR(ipBlock)
	if err != nil || netCIDR.IP.To4() == nil {
		return entries
	}
	netMask := binary.BigEndian.Uint32(netCIDR.Mask)
	firstIP := binary.BigEndian.Uint32(netCIDR.IP.To4())
	lastIP := (firstIP & netMask) | (netMask ^ 0xffffffff)

	for i := uint64(firstIP); i <= uint64(lastIP) && n > 0; i++ {
		ip := make(net.IP, 4)
		binary.BigEndian.PutUint32(ip, uint32(i))
		entries = append(entries, ip.String())
		n--
	}
	return entries
}

// GenerateIPsWithStep returns count IPv4 addresses starting at startIP, each
// step (itself written as an address, e.g. "0.0.0.1") apart. A negative
// count is treated as zero.
func GenerateIPsWithStep(startIP string, count int, stepIP string) ([]string, error) {
	ip := net.ParseIP(startIP).To4()
	if ip == nil {
		return nil, fmt.Errorf("invalid start IPv4 address %q", startIP)
	}
	step := net.ParseIP(stepIP).To4()
	if step == nil {
		return nil, fmt.Errorf("invalid step IPv4 address %q", stepIP)
	}

	var ips []string
	base := binary.BigEndian.Uint32(ip)
	stepInt := binary.BigEndian.Uint32(step)
	for i := range max(count, 0) {
		next := make(net.IP, 4)
		binary.BigEndian.PutUint32(next, base+uint32(i)*stepInt)
		ips = append(ips, next.String())
	}
	return ips, nil
}

// GenerateIPv6sWithStep is the IPv6 counterpart of GenerateIPsWithStep.
func GenerateIPv6sWithStep(startIP string, count int, stepIP string) ([]string, error) {
	ip := net.ParseIP(startIP)
	if ip == nil || ip.To4() != nil {
		return nil, fmt.Errorf("invalid start IPv6 address %q", startIP)
	}
	step := net.ParseIP(stepIP)
	if step == nil || step.To4() != nil {
		return nil, fmt.Errorf("invalid step IPv6 address %q", stepIP)
	}

	ipInt := new(big.Int).SetBytes(ip.To16())
	stepInt := new(big.Int).SetBytes(step.To16())
	mod := new(big.Int).Lsh(big.NewInt(1), 128)

	var ips []string
	for i := range max(count, 0) {
		v := new(big.Int).Mul(stepInt, big.NewInt(int64(i)))
		v.Add(v, ipInt).Mod(v, mod)
		buf := make(net.IP, 16)
		v.FillBytes(buf)
		ips = append(ips, buf.String())
	}
	return ips, nil
}

// GenerateMACs returns count MAC addresses starting at mac, each stepMAC
// apart (e.g. "00:00:00:00:00:01").
func GenerateMACs(mac string, count int, stepMAC string) ([]string, error) {
	base, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid start MAC %q: %w", mac, err)
	}
	stepHW, err := net.ParseMAC(stepMAC)
	if err != nil {
		return nil, fmt.Errorf("invalid step MAC %q: %w", stepMAC, err)
	}
	step := macToUint(stepHW)

	macs := make([]string, 0, max(count, 0))
	current := make(net.HardwareAddr, len(base))
	copy(current, base)
	for range max(count, 0) {
		macs = append(macs, current.String())
		incrementMAC(current, step)
	}
	return macs, nil
}

// GenerateUints returns count values starting at start and moving by step
// (negative to decrement), wrapping within size bytes. It mirrors the
// increment/decrement patterns used for ports, VNIs and similar fields.
func GenerateUints(start uint64, step int64, count, size int) ([]uint64, error) {
	if size < 1 || size > 8 {
		return nil, fmt.Errorf("unsupported field size %d, want 1..8", size)
	}
	mask := ^uint64(0)
	if size < 8 {
		mask = 1<<(8*size) - 1
	}
	if start&mask != start {
		return nil, fmt.Errorf("start %d does not fit in %d bytes", start, size)
	}
	vals := make([]uint64, 0, max(count, 0))
	for i := range max(count, 0) {
		vals = append(vals, (start+uint64(int64(i)*step))&mask)
	}
	return vals, nil
}

func incrementMAC(mac net.HardwareAddr, step uint64) {
	for i := len(mac) - 1; i >= 0 && step > 0; i-- {
		sum := uint64(mac[i]) + step
		mac[i] = byte(sum % 256)
		step = sum / 256
	}
}

func macToUint(mac net.HardwareAddr) uint64 {
	var v uint64
	for _, b := range mac {
		v = v<<8 | uint64(b)
	}
	return v
}
