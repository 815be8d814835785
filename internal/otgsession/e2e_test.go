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

package otgsession_test

import (
	"context"
	"testing"

	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/fieldcodec"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgfake"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgsession"
	"github.com/openconfig/otgharness/internal/otgutils"
	"go.uber.org/goleak"
)

func TestUDPBackToBack(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreAnyFunction("k8s.io/klog/v2.(*flushDaemon).run.func1"))

	ctx := context.Background()
	cfg, err := otgconfig.Load("../otgconfig/testdata/udp_b2b.yaml")
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	remote := otgfake.New()
	defer remote.Close()
	s := otgsession.New(remote, otgsession.WithLogger(t))
	defer func() {
		if err := s.Cleanup(ctx); err != nil {
			t.Errorf("Cleanup() failed: %v", err)
		}
	}()

	if err := s.PushConfig(ctx, cfg); err != nil {
		t.Fatalf("PushConfig() failed: %v", err)
	}
	if err := s.StartProtocols(ctx); err != nil {
		t.Fatalf("StartProtocols() failed: %v", err)
	}

	expected := otgutils.NewExpectedState()
	expected.Bgp4["otg1.bgp4.peer"] = otgutils.ExpectedBgpMetrics{Advertised: 5, Received: 5}
	expected.Bgp4["otg2.bgp4.peer"] = otgutils.ExpectedBgpMetrics{Advertised: 5, Received: 5}
	expected.Flow["f1"] = otgutils.ExpectedFlowMetrics{FramesTx: 100, FramesRx: 100, Stopped: true}

	err = s.WaitFor(otgutils.All(
		otgutils.ArpEntriesOk(ctx, s, otgmetrics.IPv4, []string{"1.1.1.1", "1.1.1.2"}),
		otgutils.AllBgp4SessionUp(ctx, s, expected),
	), &otgutils.WaitForOpts{Condition: "bgp sessions to come up"})
	if err != nil {
		t.Fatalf("WaitFor(bgp) failed: %v", err)
	}

	if err := s.StartCapture(ctx); err != nil {
		t.Fatalf("StartCapture() failed: %v", err)
	}
	if err := s.StartTransmit(ctx); err != nil {
		t.Fatalf("StartTransmit() failed: %v", err)
	}
	// 100 packets at 50 pps take two seconds, well within the default timeout.
	if err := s.WaitFor(otgutils.FlowMetricsOk(ctx, s, expected), &otgutils.WaitForOpts{Condition: "flow f1 to finish"}); err != nil {
		t.Fatalf("WaitFor(flows) failed: %v", err)
	}
	if err := s.StopTransmit(ctx); err != nil {
		t.Fatalf("StopTransmit() failed: %v", err)
	}
	if err := s.StopCapture(ctx); err != nil {
		t.Fatalf("StopCapture() failed: %v", err)
	}

	c, err := s.Capture(ctx, "p2")
	if err != nil {
		t.Fatalf("Capture() failed: %v", err)
	}
	flow, _ := cfg.Flow("f1")
	checks, err := flow.Checks()
	if err != nil {
		t.Fatalf("Checks() failed: %v", err)
	}
	isFlow := capture.All(
		capture.FieldEquals(capture.EthernetSrc, fieldcodec.MustMAC("00:00:01:01:01:01")),
		capture.FieldEquals(capture.EthernetDst, fieldcodec.MustMAC("00:00:01:01:01:02")),
	)
	for _, chk := range checks {
		capture.ValidatePattern(t, c, chk.Label, isFlow, chk.Offset, chk.Pattern)
	}
	if got := c.CountMatching(isFlow); got != 100 {
		t.Errorf("CountMatching() = %d, want 100", got)
	}

	tx, rx, err := s.FlowStats(ctx, "f1", nil)
	if err != nil {
		t.Fatalf("FlowStats() failed: %v", err)
	}
	if tx != 100 || rx != 100 {
		t.Errorf("FlowStats() = %d, %d, want 100, 100", tx, rx)
	}

	rp := s.Report("udp_b2b")
	if len(rp.Distributions) == 0 {
		t.Errorf("Report() has no distributions")
	}
	if got := s.State(); got != otgsession.Stopped {
		t.Errorf("State() = %v, want Stopped", got)
	}
}
