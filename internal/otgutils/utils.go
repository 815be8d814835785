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

// Package otgutils provides condition waits, metric predicates and metric
// tables for traffic generator sessions.
package otgutils

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openconfig/otgharness/internal/latency"
	"k8s.io/klog/v2"
)

const (
	// DefaultInterval is the poll interval used when WaitForOpts.Interval is zero.
	DefaultInterval = 500 * time.Millisecond
	// DefaultTimeout is the deadline used when WaitForOpts.Timeout is zero.
	DefaultTimeout = 10 * time.Second

	defaultCondition = "condition to be true"
)

// ErrDeadlineExceeded matches every *DeadlineExceededError.
var ErrDeadlineExceeded = errors.New("deadline exceeded")

// DeadlineExceededError is returned when a condition did not become true in
// time.
type DeadlineExceededError struct {
	Condition string
	Timeout   time.Duration
	Elapsed   time.Duration
}

func (e *DeadlineExceededError) Error() string {
	return fmt.Sprintf("timeout occurred while waiting for %s: not true after %v (timeout %v)",
		e.Condition, e.Elapsed.Round(time.Millisecond), e.Timeout)
}

// Is reports whether target is ErrDeadlineExceeded.
func (e *DeadlineExceededError) Is(target error) bool { return target == ErrDeadlineExceeded }

// This struct is used at tests level whenever WaitFor func is called
type WaitForOpts struct {
	Condition string
	Interval  time.Duration
	Timeout   time.Duration
}

func (o *WaitForOpts) withDefaults() WaitForOpts {
	var out WaitForOpts
	if o != nil {
		out = *o
	}
	if out.Condition == "" {
		out.Condition = defaultCondition
	}
	if out.Interval <= 0 {
		out.Interval = DefaultInterval
	}
	if out.Timeout <= 0 {
		out.Timeout = DefaultTimeout
	}
	return out
}

// Cond adapts a predicate that cannot fail.
func Cond(fn func() bool) func() (bool, error) {
	return func() (bool, error) { return fn(), nil }
}

// Waiter polls conditions and records how long every wait took.
type Waiter struct {
	rec *latency.Recorder
}

// NewWaiter returns a Waiter recording into rec.
func NewWaiter(rec *latency.Recorder) *Waiter {
	return &Waiter{rec: rec}
}

// WaitFor calls fn every opts.Interval until it returns true, it returns an
// error, or opts.Timeout has elapsed since the first call. One sample named
// after opts.Condition is recorded per call, whatever the outcome.
func (w *Waiter) WaitFor(fn func() (bool, error), opts *WaitForOpts) error {
	return w.WaitForContext(context.Background(), fn, opts)
}

// WaitForContext is WaitFor that also stops when ctx is done.
func (w *Waiter) WaitForContext(ctx context.Context, fn func() (bool, error), opts *WaitForOpts) error {
	o := opts.withDefaults()
	start := time.Now()
	defer w.rec.Timer(start, o.Condition)

	klog.Infof("Waiting for %s ...", o.Condition)
	for {
		done, err := fn()
		if err != nil {
			return fmt.Errorf("error waiting for %s: %w", o.Condition, err)
		}
		if done {
			klog.Infof("Done waiting for %s", o.Condition)
			return nil
		}
		if elapsed := time.Since(start); elapsed > o.Timeout {
			return &DeadlineExceededError{Condition: o.Condition, Timeout: o.Timeout, Elapsed: elapsed}
		}
		pause := time.NewTimer(o.Interval)
		select {
		case <-ctx.Done():
			pause.Stop()
			return fmt.Errorf("waiting for %s: %w", o.Condition, ctx.Err())
		case <-pause.C:
		}
	}
}
