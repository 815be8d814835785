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
	"testing"
)

// ValidateField fails the test if frame seq does not hold expected at offset.
func ValidateField(t testing.TB, c *Capture, label string, seq, offset int, expected []byte) {
	t.Helper()
	if err := c.AssertField(label, seq, offset, expected); err != nil {
		t.Fatalf("ValidateField: %v", err)
	}
}

// HasField is FieldMatches that logs the mismatch.
func HasField(t testing.TB, c *Capture, label string, seq, offset int, expected []byte) bool {
	t.Helper()
	if err := c.AssertField(label, seq, offset, expected); err != nil {
		t.Logf("HasField: %v", err)
		return false
	}
	return true
}

// ValidateSize fails the test if frame seq is not size bytes long.
func ValidateSize(t testing.TB, c *Capture, seq, size int) {
	t.Helper()
	if err := c.AssertSize(seq, size); err != nil {
		t.Fatalf("ValidateSize: %v", err)
	}
}

// ValidatePattern fails the test unless every frame accepted by match
// carries the pattern value for its position, and at least one frame was
// checked.
func ValidatePattern(t testing.TB, c *Capture, label string, match Matcher, offset int, pattern [][]byte) {
	t.Helper()
	n, err := c.AssertPattern(label, match, offset, pattern)
	if err != nil {
		t.Fatalf("ValidatePattern: %v", err)
	}
	if n == 0 {
		t.Fatalf("ValidatePattern: no frames matched for field %q", label)
	}
}
