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
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/openconfig/otgharness/internal/latency"
)

func TestWaitForOptsDefaults(t *testing.T) {
	tests := []struct {
		desc string
		opts *WaitForOpts
		want WaitForOpts
	}{{
		desc: "nil",
		want: WaitForOpts{Condition: "condition to be true", Interval: 500 * time.Millisecond, Timeout: 10 * time.Second},
	}, {
		desc: "label only",
		opts: &WaitForOpts{Condition: "flow metrics ok"},
		want: WaitForOpts{Condition: "flow metrics ok", Interval: 500 * time.Millisecond, Timeout: 10 * time.Second},
	}, {
		desc: "explicit",
		opts: &WaitForOpts{Condition: "arp", Interval: time.Second, Timeout: time.Minute},
		want: WaitForOpts{Condition: "arp", Interval: time.Second, Timeout: time.Minute},
	}}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			if diff := cmp.Diff(tt.want, tt.opts.withDefaults()); diff != "" {
				t.Errorf("withDefaults() diff(-want,+got):\n%s", diff)
			}
		})
	}
}

func TestWaitFor(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		desc      string
		fn        func(calls int) (bool, error)
		timeout   time.Duration
		wantErr   error
		wantCalls int
	}{{
		desc:      "true at once",
		fn:        func(int) (bool, error) { return true, nil },
		wantCalls: 1,
	}, {
		desc:      "true on third poll",
		fn:        func(calls int) (bool, error) { return calls == 3, nil },
		wantCalls: 3,
	}, {
		desc:    "never true",
		fn:      func(int) (bool, error) { return false, nil },
		timeout: 50 * time.Millisecond,
		wantErr: ErrDeadlineExceeded,
	}, {
		desc:      "predicate error",
		fn:        func(calls int) (bool, error) { return false, errBoom },
		wantErr:   errBoom,
		wantCalls: 1,
	}}

	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			rec := latency.NewRecorder()
			w := NewWaiter(rec)
			calls := 0
			err := w.WaitFor(func() (bool, error) {
				calls++
				return tt.fn(calls)
			}, &WaitForOpts{Condition: tt.desc, Interval: 5 * time.Millisecond, Timeout: tt.timeout})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("WaitFor() got err %v, want %v", err, tt.wantErr)
			}
			if tt.wantCalls != 0 && calls != tt.wantCalls {
				t.Errorf("WaitFor() called predicate %d times, want %d", calls, tt.wantCalls)
			}
			if got := rec.Len(); got != 1 {
				t.Errorf("WaitFor() recorded %d samples, want 1", got)
			}
			if got := rec.Count(tt.desc); got != 1 {
				t.Errorf("WaitFor() recorded %d samples named %q, want 1", got, tt.desc)
			}
		})
	}
}

func TestWaitForDeadlineCarriesLabel(t *testing.T) {
	w := NewWaiter(latency.NewRecorder())
	start := time.Now()
	err := w.WaitFor(Cond(func() bool { return false }), &WaitForOpts{
		Condition: "bgp sessions up",
		Interval:  10 * time.Millisecond,
		Timeout:   40 * time.Millisecond,
	})
	var de *DeadlineExceededError
	if !errors.As(err, &de) {
		t.Fatalf("WaitFor() got err %v, want *DeadlineExceededError", err)
	}
	if de.Condition != "bgp sessions up" {
		t.Errorf("DeadlineExceededError.Condition = %q, want %q", de.Condition, "bgp sessions up")
	}
	if de.Elapsed <= 40*time.Millisecond {
		t.Errorf("DeadlineExceededError.Elapsed = %v, want more than the timeout", de.Elapsed)
	}
	if time.Since(start) > time.Second {
		t.Errorf("WaitFor() took %v, want it to stop shortly after the timeout", time.Since(start))
	}
}

func TestWaitForContextCancelled(t *testing.T) {
	rec := latency.NewRecorder()
	w := NewWaiter(rec)
	ctx, cancel := context.WithCancel(t.Context())
	calls := 0
	err := w.WaitForContext(ctx, func() (bool, error) {
		calls++
		if calls == 2 {
			cancel()
		}
		return false, nil
	}, &WaitForOpts{Condition: "cancelled", Interval: 5 * time.Millisecond, Timeout: time.Minute})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitForContext() got err %v, want context.Canceled", err)
	}
	if got := rec.Count("cancelled"); got != 1 {
		t.Errorf("WaitForContext() recorded %d samples, want 1", got)
	}
}

func TestWaitForRecordsOnPanic(t *testing.T) {
	rec := latency.NewRecorder()
	w := NewWaiter(rec)
	func() {
		defer func() {
			if recover() == nil {
				t.Error("WaitFor() did not propagate the predicate panic")
			}
		}()
		w.WaitFor(func() (bool, error) { panic("predicate bug") }, &WaitForOpts{Condition: "panics"})
	}()
	if got := rec.Count("panics"); got != 1 {
		t.Errorf("WaitFor() recorded %d samples after a panic, want 1", got)
	}
}

func TestAllPredicates(t *testing.T) {
	errBoom := errors.New("boom")
	calls := 0
	counting := func(v bool, err error) func() (bool, error) {
		return func() (bool, error) {
			calls++
			return v, err
		}
	}
	tests := []struct {
		desc      string
		preds     []func() (bool, error)
		want      bool
		wantErr   error
		wantCalls int
	}{
		{"all true", []func() (bool, error){counting(true, nil), counting(true, nil)}, true, nil, 2},
		{"stops at false", []func() (bool, error){counting(false, nil), counting(true, nil)}, false, nil, 1},
		{"stops at error", []func() (bool, error){counting(true, nil), counting(false, errBoom), counting(true, nil)}, false, errBoom, 2},
		{"empty", nil, true, nil, 0},
	}
	for _, tt := range tests {
		t.Run(tt.desc, func(t *testing.T) {
			calls = 0
			got, err := All(tt.preds...)()
			if !errors.Is(err, tt.wantErr) || got != tt.want {
				t.Errorf("All() = %v, %v; want %v, %v", got, err, tt.want, tt.wantErr)
			}
			if calls != tt.wantCalls {
				t.Errorf("All() evaluated %d predicates, want %d", calls, tt.wantCalls)
			}
		})
	}
}
