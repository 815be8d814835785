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
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/otgharness/internal/fieldcodec"
	"github.com/openconfig/testt"
)

func ethCapture(t *testing.T) *Capture {
	t.Helper()
	c, err := Parse(mustEncode(t, ethHeader()))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return c
}

func TestAssertField(t *testing.T) {
	c := ethCapture(t)
	flipped := fieldcodec.MustMAC("00:00:01:01:01:02")
	flipped[5] ^= 0xff

	tests := []struct {
		desc       string
		seq        int
		offset     int
		expected   []byte
		wantErr    bool
		wantActual []byte
	}{{
		desc:     "dst mac",
		offset:   EthernetDst,
		expected: fieldcodec.MustMAC("00:00:01:01:01:02"),
	}, {
		desc:     "src mac",
		offset:   EthernetSrc,
		expected: fieldcodec.MustMAC("00:00:01:01:01:01"),
	}, {
		desc:     "ether type",
		offset:   EthernetType,
		expected: fieldcodec.MustUint(0x0800, 2),
	}, {
		desc:       "dst mac with one byte flipped",
		offset:     EthernetDst,
		expected:   flipped,
		wantErr:    true,
		wantActual: fieldcodec.MustMAC("00:00:01:01:01:02"),
	}, {
		desc:     "sequence out of range",
		seq:      1,
		expected: []byte{0},
		wantErr:  true,
	}, {
		desc:     "negative offset",
		offset:   -1,
		expected: []byte{0},
		wantErr:  true,
	}, {
		desc:     "offset past frame",
		offset:   14,
		expected: []byte{0},
		wantErr:  true,
	}, {
		desc:       "field overruns frame",
		offset:     12,
		expected:   []byte{0x08, 0x00, 0x45},
		wantErr:    true,
		wantActual: []byte{0x08, 0x00},
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			err := c.AssertField(tt.desc, tt.seq, tt.offset, tt.expected)
			if (err != nil) != tt.wantErr {
				t.Fatalf("AssertField() got err %v, want error: %v", err, tt.wantErr)
			}
			if got := c.FieldMatches(tt.desc, tt.seq, tt.offset, tt.expected); got == tt.wantErr {
				t.Errorf("FieldMatches() = %v, want %v", got, !tt.wantErr)
			}
			if err == nil {
				return
			}
			if !errors.Is(err, ErrFieldMismatch) {
				t.Errorf("AssertField() error %v does not match ErrFieldMismatch", err)
			}
			var fm *FieldMismatchError
			if !errors.As(err, &fm) {
				t.Fatalf("AssertField() error %T is not a *FieldMismatchError", err)
			}
			want := &FieldMismatchError{
				Label:    tt.desc,
				Sequence: tt.seq,
				Offset:   tt.offset,
				Expected: tt.expected,
				Actual:   tt.wantActual,
			}
			if diff := cmp.Diff(want, fm, cmp.FilterPath(func(p cmp.Path) bool {
				return p.Last().String() == ".Reason"
			}, cmp.Ignore())); diff != "" {
				t.Errorf("AssertField() error diff(-want,+got):\n%s", diff)
			}
		})
	}
}

func TestAssertSize(t *testing.T) {
	c := ethCapture(t)
	if err := c.AssertSize(0, 14); err != nil {
		t.Errorf("AssertSize(0, 14) failed: %v", err)
	}
	for _, tc := range []struct {
		seq, size, actual int
	}{{0, 128, 14}, {3, 14, -1}} {
		err := c.AssertSize(tc.seq, tc.size)
		var sm *SizeMismatchError
		if !errors.As(err, &sm) || !errors.Is(err, ErrSizeMismatch) {
			t.Fatalf("AssertSize(%d, %d) = %v, want *SizeMismatchError", tc.seq, tc.size, err)
		}
		if sm.Actual != tc.actual {
			t.Errorf("AssertSize(%d, %d) actual = %d, want %d", tc.seq, tc.size, sm.Actual, tc.actual)
		}
	}
}

// noisyCapture interleaves frames from a second source MAC with flow frames
// whose UDP source port increments from 5000.
func noisyCapture(t *testing.T) *Capture {
	t.Helper()
	var frames [][]byte
	port := uint16(5000)
	for i := range 10 {
		if i%3 == 1 {
			frames = append(frames, udpFrame(t, "00:00:0a:0a:0a:0a", 1, 64))
			continue
		}
		frames = append(frames, udpFrame(t, "00:00:01:01:01:01", port, 128))
		port++
		if port == 5003 {
			port = 5000
		}
	}
	c, err := Parse(mustEncode(t, frames...))
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return c
}

func TestCountMatchingAndWalk(t *testing.T) {
	c := noisyCapture(t)
	flow := FieldEquals(EthernetSrc, fieldcodec.MustMAC("00:00:01:01:01:01"))

	if got := c.CountMatching(flow); got != 7 {
		t.Errorf("CountMatching() = %d, want 7", got)
	}

	var positions []int
	ignored, err := c.Walk(flow, func(f Frame, pos int) error {
		positions = append(positions, pos)
		return nil
	})
	if err != nil {
		t.Fatalf("Walk() failed: %v", err)
	}
	if ignored != 3 {
		t.Errorf("Walk() ignored %d frames, want 3", ignored)
	}
	if diff := cmp.Diff([]int{0, 1, 2, 3, 4, 5, 6}, positions); diff != "" {
		t.Errorf("Walk() positions diff(-want,+got):\n%s", diff)
	}

	udpSrc := Stack{Ethernet, IPv4, UDP}.Offset(2, UDPSrcPort)
	pattern := [][]byte{fieldcodec.MustUint(5000, 2), fieldcodec.MustUint(5001, 2), fieldcodec.MustUint(5002, 2)}
	n, err := c.AssertPattern("udp src port", flow, udpSrc, pattern)
	if err != nil {
		t.Errorf("AssertPattern() failed: %v", err)
	}
	if n != 7 {
		t.Errorf("AssertPattern() checked %d frames, want 7", n)
	}

	// Without filtering, noise frames shift the pattern.
	if _, err := c.AssertPattern("udp src port", nil, udpSrc, pattern); !errors.Is(err, ErrFieldMismatch) {
		t.Errorf("AssertPattern() without matcher got err %v, want ErrFieldMismatch", err)
	}
	if _, err := c.AssertPattern("udp src port", flow, udpSrc, nil); err == nil {
		t.Error("AssertPattern() with empty pattern succeeded, want error")
	}
}

func TestAllMatcher(t *testing.T) {
	c := noisyCapture(t)
	m := All(
		FieldEquals(EthernetSrc, fieldcodec.MustMAC("00:00:01:01:01:01")),
		FieldEquals(Stack{Ethernet, IPv4, UDP}.Offset(2, UDPSrcPort), fieldcodec.MustUint(5000, 2)),
	)
	if got := c.CountMatching(m); got != 3 {
		t.Errorf("CountMatching(All(...)) = %d, want 3", got)
	}
}

func TestValidateHelpers(t *testing.T) {
	c := ethCapture(t)
	tests := []struct {
		desc    string
		fn      func(t testing.TB)
		wantMsg string
	}{{
		desc: "field ok",
		fn: func(t testing.TB) {
			ValidateField(t, c, "dst", 0, EthernetDst, fieldcodec.MustMAC("00:00:01:01:01:02"))
		},
	}, {
		desc: "field mismatch",
		fn: func(t testing.TB) {
			ValidateField(t, c, "dst", 0, EthernetDst, fieldcodec.MustMAC("00:00:01:01:01:03"))
		},
		wantMsg: `field "dst" of frame 0 at offset 0: bytes differ`,
	}, {
		desc: "size mismatch",
		fn: func(t testing.TB) {
			ValidateSize(t, c, 0, 64)
		},
		wantMsg: "expected 64 bytes, got 14",
	}, {
		desc: "pattern with no matching frames",
		fn: func(t testing.TB) {
			ValidatePattern(t, c, "src", FieldEquals(EthernetSrc, []byte{9}), EthernetSrc, [][]byte{{9}})
		},
		wantMsg: "no frames matched",
	}}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			msg := testt.CaptureFatal(t, tt.fn)
			switch {
			case tt.wantMsg == "" && msg != nil:
				t.Errorf("unexpected fatal: %s", *msg)
			case tt.wantMsg != "" && msg == nil:
				t.Errorf("got no fatal, want one containing %q", tt.wantMsg)
			case tt.wantMsg != "" && !strings.Contains(*msg, tt.wantMsg):
				t.Errorf("fatal message %q does not contain %q", *msg, tt.wantMsg)
			}
		})
	}

	if !HasField(t, c, "type", 0, EthernetType, []byte{0x08, 0x00}) {
		t.Error("HasField() = false, want true")
	}
	if HasField(t, c, "type", 0, EthernetType, []byte{0x86, 0xdd}) {
		t.Error("HasField() = true, want false")
	}
}
