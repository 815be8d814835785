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
	"bytes"
	"errors"
	"fmt"
)

var (
	// ErrFieldMismatch matches every *FieldMismatchError.
	ErrFieldMismatch = errors.New("field mismatch")
	// ErrSizeMismatch matches every *SizeMismatchError.
	ErrSizeMismatch = errors.New("size mismatch")
)

// FieldMismatchError reports a failed byte-range assertion.
type FieldMismatchError struct {
	Label    string
	Sequence int
	Offset   int
	Expected []byte
	// Actual holds whatever bytes of the range exist in the frame; it is
	// nil when the frame does not exist.
	Actual []byte
	Reason string
}

func (e *FieldMismatchError) Error() string {
	return fmt.Sprintf("field %q of frame %d at offset %d: %s: expected % x, got % x",
		e.Label, e.Sequence, e.Offset, e.Reason, e.Expected, e.Actual)
}

// Is reports whether target is ErrFieldMismatch.
func (e *FieldMismatchError) Is(target error) bool { return target == ErrFieldMismatch }

// SizeMismatchError reports a frame whose length differs from the expected one.
type SizeMismatchError struct {
	Sequence int
	Expected int
	// Actual is -1 when the frame does not exist.
	Actual int
}

func (e *SizeMismatchError) Error() string {
	if e.Actual < 0 {
		return fmt.Sprintf("size of frame %d: frame does not exist, expected %d bytes", e.Sequence, e.Expected)
	}
	return fmt.Sprintf("size of frame %d: expected %d bytes, got %d", e.Sequence, e.Expected, e.Actual)
}

// Is reports whether target is ErrSizeMismatch.
func (e *SizeMismatchError) Is(target error) bool { return target == ErrSizeMismatch }

// AssertField checks that frame seq holds exactly expected at offset.
func (c *Capture) AssertField(label string, seq, offset int, expected []byte) error {
	f, ok := c.Frame(seq)
	if !ok {
		return &FieldMismatchError{Label: label, Sequence: seq, Offset: offset, Expected: expected,
			Reason: fmt.Sprintf("frame out of range [0,%d)", c.Len())}
	}
	return assertField(label, f, offset, expected)
}

func assertField(label string, f Frame, offset int, expected []byte) error {
	mismatch := func(actual []byte, reason string) error {
		return &FieldMismatchError{Label: label, Sequence: f.Sequence, Offset: offset,
			Expected: expected, Actual: actual, Reason: reason}
	}
	switch {
	case offset < 0 || offset >= len(f.Data):
		return mismatch(nil, fmt.Sprintf("offset out of range for %d byte frame", len(f.Data)))
	case offset+len(expected) > len(f.Data):
		return mismatch(f.Data[offset:], fmt.Sprintf("field overruns %d byte frame", len(f.Data)))
	}
	actual := f.Data[offset : offset+len(expected)]
	if !bytes.Equal(actual, expected) {
		return mismatch(actual, "bytes differ")
	}
	return nil
}

// FieldMatches is AssertField with failures reported as false. It is used to
// tell frames of the flow under test apart from noise.
func (c *Capture) FieldMatches(label string, seq, offset int, expected []byte) bool {
	return c.AssertField(label, seq, offset, expected) == nil
}

// AssertSize checks that frame seq is exactly size bytes long.
func (c *Capture) AssertSize(seq, size int) error {
	f, ok := c.Frame(seq)
	if !ok {
		return &SizeMismatchError{Sequence: seq, Expected: size, Actual: -1}
	}
	if len(f.Data) != size {
		return &SizeMismatchError{Sequence: seq, Expected: size, Actual: len(f.Data)}
	}
	return nil
}

// Matcher selects frames belonging to the flow under test.
type Matcher func(Frame) bool

// FieldEquals matches frames that hold expected at offset.
func FieldEquals(offset int, expected []byte) Matcher {
	return func(f Frame) bool {
		return assertField("", f, offset, expected) == nil
	}
}

// All matches frames accepted by every matcher.
func All(ms ...Matcher) Matcher {
	return func(f Frame) bool {
		for _, m := range ms {
			if !m(f) {
				return false
			}
		}
		return true
	}
}

// CountMatching returns the number of frames accepted by match.
func (c *Capture) CountMatching(match Matcher) int {
	n := 0
	for _, f := range c.Frames {
		if match(f) {
			n++
		}
	}
	return n
}

// Walk calls fn for every frame accepted by match, passing the frame's
// position among matching frames. Frames rejected by match are counted in
// ignored and skipped, so pos stays aligned with a repeating value pattern
// even when noise frames are interleaved. Walk stops at the first error.
func (c *Capture) Walk(match Matcher, fn func(f Frame, pos int) error) (ignored int, err error) {
	for _, f := range c.Frames {
		if match != nil && !match(f) {
			ignored++
			continue
		}
		if err := fn(f, f.Sequence-ignored); err != nil {
			return ignored, err
		}
	}
	return ignored, nil
}

// PatternValue returns the value expected at position pos of a repeating
// pattern.
func PatternValue[T any](pattern []T, pos int) T {
	return pattern[pos%len(pattern)]
}

// AssertPattern checks, for every frame accepted by match, that the field
// at offset equals the encoded pattern value for the frame's position among
// matching frames. It returns the number of frames checked.
func (c *Capture) AssertPattern(label string, match Matcher, offset int, pattern [][]byte) (int, error) {
	if len(pattern) == 0 {
		return 0, fmt.Errorf("empty pattern for field %q", label)
	}
	checked := 0
	_, err := c.Walk(match, func(f Frame, pos int) error {
		checked++
		return assertField(label, f, offset, PatternValue(pattern, pos))
	})
	return checked, err
}
