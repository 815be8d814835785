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
	"errors"
	"fmt"
	"slices"
	"strconv"

	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/fieldcodec"
)

// Pattern sets the values a header field takes across a flow's packets.
// Exactly one of Value, Values, Increment and Decrement is set.
type Pattern struct {
	Value     string   `yaml:"value,omitempty"`
	Values    []string `yaml:"values,omitempty"`
	Increment *Counter `yaml:"increment,omitempty"`
	Decrement *Counter `yaml:"decrement,omitempty"`
}

// Counter is an increment or decrement pattern. Step is written in the
// field's own notation ("0.0.0.1", "::1", "00:00:00:00:00:01", "1") and
// defaults to one.
type Counter struct {
	Start string `yaml:"start"`
	Step  string `yaml:"step,omitempty"`
	Count uint32 `yaml:"count"`
}

type fieldKind int

const (
	kindMAC fieldKind = iota
	kindIPv4
	kindIPv6
	kindUint
)

type fieldSpec struct {
	kind   fieldKind
	offset int
	size   int
}

var headerFields = map[capture.Header]map[string]fieldSpec{
	capture.Ethernet: {
		"src": {kindMAC, capture.EthernetSrc, 6},
		"dst": {kindMAC, capture.EthernetDst, 6},
	},
	capture.VLAN: {
		"id": {kindUint, capture.VLANTCI, 2},
	},
	capture.IPv4: {
		"src": {kindIPv4, capture.IPv4Src, 4},
		"dst": {kindIPv4, capture.IPv4Dst, 4},
		"ttl": {kindUint, capture.IPv4TTL, 1},
	},
	capture.IPv6: {
		"src":       {kindIPv6, capture.IPv6Src, 16},
		"dst":       {kindIPv6, capture.IPv6Dst, 16},
		"hop_limit": {kindUint, capture.IPv6HopLimit, 1},
	},
	capture.UDP: {
		"src_port": {kindUint, capture.UDPSrcPort, 2},
		"dst_port": {kindUint, capture.UDPDstPort, 2},
	},
	capture.TCP: {
		"src_port": {kindUint, capture.TCPSrcPort, 2},
		"dst_port": {kindUint, capture.TCPDstPort, 2},
	},
	capture.VXLAN: {
		"vni": {kindUint, capture.VXLANVNI, 3},
	},
}

func (p Pattern) choices() int {
	n := 0
	if p.Value != "" {
		n++
	}
	if len(p.Values) > 0 {
		n++
	}
	if p.Increment != nil {
		n++
	}
	if p.Decrement != nil {
		n++
	}
	return n
}

// expand returns the encoded field values in emission order.
func (p Pattern) expand(spec fieldSpec) ([][]byte, error) {
	if p.choices() != 1 {
		return nil, errors.New("pattern needs exactly one of value, values, increment and decrement")
	}
	var strs []string
	switch {
	case p.Value != "":
		strs = []string{p.Value}
	case len(p.Values) > 0:
		strs = p.Values
	case p.Increment != nil:
		return p.Increment.expand(spec, false)
	default:
		return p.Decrement.expand(spec, true)
	}
	out := make([][]byte, 0, len(strs))
	for _, s := range strs {
		b, err := encode(spec, s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (c Counter) count() int {
	if c.Count == 0 {
		return 1
	}
	return int(c.Count)
}

func (c Counter) expand(spec fieldSpec, down bool) ([][]byte, error) {
	if down && spec.kind != kindUint {
		return nil, errors.New("decrement is only supported on numeric fields")
	}
	var (
		strs []string
		err  error
	)
	switch spec.kind {
	case kindMAC:
		strs, err = fieldcodec.GenerateMACs(c.Start, c.count(), c.stepOr("00:00:00:00:00:01"))
	case kindIPv4:
		strs, err = fieldcodec.GenerateIPsWithStep(c.Start, c.count(), c.stepOr("0.0.0.1"))
	case kindIPv6:
		strs, err = fieldcodec.GenerateIPv6sWithStep(c.Start, c.count(), c.stepOr("::1"))
	case kindUint:
		return c.expandUint(spec, down)
	}
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(strs))
	for _, s := range strs {
		b, err := encode(spec, s)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func (c Counter) stepOr(def string) string {
	if c.Step == "" {
		return def
	}
	return c.Step
}

func (c Counter) expandUint(spec fieldSpec, down bool) ([][]byte, error) {
	start, err := strconv.ParseUint(c.Start, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid counter start %q: %w", c.Start, err)
	}
	step, err := strconv.ParseInt(c.stepOr("1"), 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid counter step %q: %w", c.Step, err)
	}
	if down {
		step = -step
	}
	vals, err := fieldcodec.GenerateUints(start, step, c.count(), spec.size)
	if err != nil {
		return nil, err
	}
	out := make([][]byte, 0, len(vals))
	for _, v := range vals {
		b, err := fieldcodec.UintToBytes(v, spec.size)
		if err != nil {
			return nil, err
		}
		out = append(out, b)
	}
	return out, nil
}

func encode(spec fieldSpec, s string) ([]byte, error) {
	switch spec.kind {
	case kindMAC:
		return fieldcodec.MACToBytes(s)
	case kindIPv4:
		return fieldcodec.IPv4ToBytes(s)
	case kindIPv6:
		return fieldcodec.IPv6ToBytes(s)
	default:
		v, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid numeric value %q: %w", s, err)
		}
		return fieldcodec.UintToBytes(v, spec.size)
	}
}

// FieldCheck is the expected content of one patterned header field: frame
// n of the flow carries Pattern[n % len(Pattern)] at Offset.
type FieldCheck struct {
	Label   string
	Offset  int
	Pattern [][]byte
}

// Checks expands every patterned field of the flow into absolute frame
// offsets and encoded values, outermost header first and fields sorted by
// name within a header.
func (f Flow) Checks() ([]FieldCheck, error) {
	st, err := f.Stack()
	if err != nil {
		return nil, err
	}
	var checks []FieldCheck
	for i, h := range f.Headers {
		specs := headerFields[st[i]]
		names := make([]string, 0, len(h.Fields))
		for name := range h.Fields {
			names = append(names, name)
		}
		slices.Sort(names)
		for _, name := range names {
			spec, ok := specs[name]
			if !ok {
				return nil, fmt.Errorf("%s header has no field %q", h.Type, name)
			}
			pattern, err := h.Fields[name].expand(spec)
			if err != nil {
				return nil, fmt.Errorf("%s %s: %w", h.Type, name, err)
			}
			checks = append(checks, FieldCheck{
				Label:   fmt.Sprintf("%s %s", h.Type, name),
				Offset:  st.Offset(i, spec.offset),
				Pattern: pattern,
			})
		}
	}
	return checks, nil
}
