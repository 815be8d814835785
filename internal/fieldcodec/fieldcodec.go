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

// Package fieldcodec converts header field values (MAC addresses, IPv4/IPv6
// addresses and unsigned integers) to and from the fixed-width big-endian
// byte sequences they occupy on the wire.
package fieldcodec

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
)

// MACToBytes returns the 6 wire bytes of an EUI-48 MAC address.
func MACToBytes(mac string) ([]byte, error) {
	hw, err := net.ParseMAC(mac)
	if err != nil {
		return nil, fmt.Errorf("invalid MAC address %q: %w", mac, err)
	}
	if len(hw) != 6 {
		return nil, fmt.Errorf("invalid MAC address %q: want 6 bytes, got %d", mac, len(hw))
	}
	return []byte(hw), nil
}

// IPv4ToBytes returns the 4 wire bytes of an IPv4 address.
func IPv4ToBytes(ip string) ([]byte, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is4() {
		return nil, fmt.Errorf("invalid IPv4 address %q", ip)
	}
	b := addr.As4()
	return b[:], nil
}

// IPv6ToBytes returns the 16 wire bytes of an IPv6 address.
func IPv6ToBytes(ip string) ([]byte, error) {
	addr, err := netip.ParseAddr(ip)
	if err != nil || !addr.Is6() || addr.Is4In6() {
		return nil, fmt.Errorf("invalid IPv6 address %q", ip)
	}
	b := addr.As16()
	return b[:], nil
}

// UintToBytes encodes v big-endian into exactly size bytes. It fails if v
// does not fit.
func UintToBytes(v uint64, size int) ([]byte, error) {
	if size < 1 || size > 8 {
		return nil, fmt.Errorf("unsupported field size %d, want 1..8", size)
	}
	if size < 8 && v>>(8*size) != 0 {
		return nil, fmt.Errorf("value %d does not fit in %d bytes", v, size)
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	return append([]byte(nil), buf[8-size:]...), nil
}

// BytesToMAC is the inverse of MACToBytes.
func BytesToMAC(b []byte) (string, error) {
	if len(b) != 6 {
		return "", fmt.Errorf("MAC address needs 6 bytes, got %d", len(b))
	}
	return net.HardwareAddr(b).String(), nil
}

// BytesToIPv4 is the inverse of IPv4ToBytes.
func BytesToIPv4(b []byte) (string, error) {
	if len(b) != 4 {
		return "", fmt.Errorf("IPv4 address needs 4 bytes, got %d", len(b))
	}
	return netip.AddrFrom4([4]byte(b)).String(), nil
}

// BytesToIPv6 is the inverse of IPv6ToBytes.
func BytesToIPv6(b []byte) (string, error) {
	if len(b) != 16 {
		return "", fmt.Errorf("IPv6 address needs 16 bytes, got %d", len(b))
	}
	return netip.AddrFrom16([16]byte(b)).String(), nil
}

// BytesToUint decodes a big-endian unsigned integer of 1 to 8 bytes.
func BytesToUint(b []byte) (uint64, error) {
	if len(b) < 1 || len(b) > 8 {
		return 0, fmt.Errorf("unsupported field size %d, want 1..8", len(b))
	}
	var v uint64
	for _, c := range b {
		v = v<<8 | uint64(c)
	}
	return v, nil
}

// MustMAC is like MACToBytes but panics on error. It is meant for literal
// values in scenario code.
func MustMAC(mac string) []byte {
	b, err := MACToBytes(mac)
	if err != nil {
		panic(err)
	}
	return b
}

// MustIPv4 is like IPv4ToBytes but panics on error.
func MustIPv4(ip string) []byte {
	b, err := IPv4ToBytes(ip)
	if err != nil {
		panic(err)
	}
	return b
}

// MustIPv6 is like IPv6ToBytes but panics on error.
func MustIPv6(ip string) []byte {
	b, err := IPv6ToBytes(ip)
	if err != nil {
		panic(err)
	}
	return b
}

// MustUint is like UintToBytes but panics on error.
func MustUint(v uint64, size int) []byte {
	b, err := UintToBytes(v, size)
	if err != nil {
		panic(err)
	}
	return b
}
