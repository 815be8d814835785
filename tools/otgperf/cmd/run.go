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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/latency"
	"github.com/openconfig/otgharness/internal/otgclient"
	"github.com/openconfig/otgharness/internal/otgconfig"
	"github.com/openconfig/otgharness/internal/otgfake"
	"github.com/openconfig/otgharness/internal/otgmetrics"
	"github.com/openconfig/otgharness/internal/otgsession"
	"github.com/openconfig/otgharness/internal/otgutils"
	"github.com/openconfig/otgharness/internal/testconfig"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run a scenario and report operation latency",
	Long: `Run pushes the scenario to every target and runs it for the configured
number of iterations. Each iteration starts protocols, waits until neighbors
resolve and routing sessions and LAGs are up, logs the --states kinds,
transmits every flow with capture enabled, validates the captured header
fields, and stops protocols again.

Targets run concurrently, one session each. With --fake the scenario runs
against an in-memory traffic generator.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := runOptionsFromViper()
		if err != nil {
			return err
		}
		return run(cmd.Context(), cmd.OutOrStdout(), opts)
	},
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringP("scenario", "s", "", "Scenario file.")
	runCmd.MarkFlagRequired("scenario")
	runCmd.Flags().IntP("iterations", "n", 0, "Iterations per target. Defaults to otg_iterations of the test config.")
	runCmd.Flags().Bool("fake", false, "Run against an in-memory traffic generator.")
	runCmd.Flags().StringSlice("target", nil, "Traffic generator hosts. Defaults to otg_host of the test config.")
	runCmd.Flags().Duration("timeout", 30*time.Second, "Timeout of each wait for protocols or flows.")
	runCmd.Flags().Uint("retries", 0, "Retries of gRPC calls failing as unavailable.")
	runCmd.Flags().String("metrics-textfile", "", "Write Prometheus latency summaries to this file.")
	runCmd.Flags().StringSlice("states", nil, "Learned states logged once protocols are up, e.g. bgp_prefixes,lldp_neighbors.")
	for _, name := range []string{"scenario", "iterations", "fake", "target", "timeout", "retries", "metrics-textfile", "states"} {
		viper.BindPFlag(name, runCmd.Flags().Lookup(name))
	}
}

type runOptions struct {
	tc              *testconfig.TestConfig
	cfg             *otgconfig.Config
	iterations      int
	fake            bool
	targets         []string
	timeout         time.Duration
	retries         uint
	format          string
	metricsTextfile string
	states          []otgmetrics.StateKind
}

func loadTestConfig() (*testconfig.TestConfig, error) {
	path := viper.GetString("test-config")
	if path == "" {
		wd, err := os.Getwd()
		if err != nil {
			return nil, err
		}
		if path, err = testconfig.Find(wd); err != nil {
			klog.Warningf("Using default test configuration: %v", err)
			return testconfig.Default(), nil
		}
	}
	return testconfig.Load(path)
}

func runOptionsFromViper() (*runOptions, error) {
	tc, err := loadTestConfig()
	if err != nil {
		return nil, err
	}
	cfg, err := otgconfig.Load(viper.GetString("scenario"))
	if err != nil {
		return nil, err
	}
	opts := &runOptions{
		tc:              tc,
		cfg:             cfg,
		iterations:      viper.GetInt("iterations"),
		fake:            viper.GetBool("fake"),
		targets:         viper.GetStringSlice("target"),
		timeout:         viper.GetDuration("timeout"),
		retries:         viper.GetUint("retries"),
		format:          viper.GetString("format"),
		metricsTextfile: viper.GetString("metrics-textfile"),
	}
	for _, name := range viper.GetStringSlice("states") {
		kind, err := otgmetrics.ParseStateKind(name)
		if err != nil {
			return nil, err
		}
		opts.states = append(opts.states, kind)
	}
	if opts.iterations == 0 {
		opts.iterations = tc.OtgIterations
	}
	if len(opts.targets) == 0 {
		opts.targets = []string{tc.OtgHost}
	}
	if opts.fake {
		opts.targets = []string{"fake"}
	}
	return opts, opts.validate()
}

func (o *runOptions) validate() error {
	if o.iterations < 1 {
		return fmt.Errorf("iterations is %d, want at least 1", o.iterations)
	}
	if o.format != "table" && o.format != "json" {
		return fmt.Errorf("unknown format %q", o.format)
	}
	return nil
}

// applyTestConfig points the scenario's ports at the test environment's
// port locations and line speed.
func applyTestConfig(cfg *otgconfig.Config, tc *testconfig.TestConfig) {
	for i := range cfg.Ports {
		if i < len(tc.OtgPorts) {
			cfg.Ports[i].Location = tc.OtgPorts[i]
		}
	}
	if cfg.Layer1 != nil && tc.OtgSpeed != "" {
		cfg.Layer1.Speed = tc.OtgSpeed
	}
}

func (o *runOptions) newRemote(target string, rec *latency.Recorder) (otgsession.Remote, func() error, error) {
	if o.fake {
		r := otgfake.New()
		return r, r.Close, nil
	}
	copts := otgclient.OptionsFromTestConfig(o.tc, rec)
	copts.Host = target
	copts.Retries = o.retries
	c, err := otgclient.New(copts)
	if err != nil {
		return nil, nil, err
	}
	return c, c.Close, nil
}

type targetResult struct {
	target string
	rec    *latency.Recorder
	report latency.Report
}

func run(ctx context.Context, w io.Writer, opts *runOptions) error {
	if !opts.fake {
		applyTestConfig(opts.cfg, opts.tc)
	}
	results := make([]*targetResult, len(opts.targets))
	g, ctx := errgroup.WithContext(ctx)
	for i, target := range opts.targets {
		g.Go(func() error {
			res, err := runTarget(ctx, target, opts)
			if err != nil {
				return fmt.Errorf("target %s: %w", target, err)
			}
			results[i] = res
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := writeReports(w, opts.format, results); err != nil {
		return err
	}
	if opts.metricsTextfile != "" {
		return writeMetrics(opts.metricsTextfile, results)
	}
	return nil
}

func runTarget(ctx context.Context, target string, opts *runOptions) (res *targetResult, err error) {
	rec := latency.NewRecorder()
	remote, closeRemote, err := opts.newRemote(target, rec)
	if err != nil {
		return nil, err
	}
	defer func() {
		if cerr := closeRemote(); cerr != nil && err == nil {
			err = cerr
		}
	}()

	s := otgsession.New(remote,
		otgsession.WithRecorder(rec),
		otgsession.WithCapture(opts.tc.OtgCaptureCheck),
	)
	defer func() {
		if cerr := s.Cleanup(context.WithoutCancel(ctx)); cerr != nil {
			klog.Errorf("Cleanup of %s failed: %v", target, cerr)
		}
	}()

	for i := 0; i < opts.iterations; i++ {
		klog.Infof("%s: iteration %d of %d", target, i+1, opts.iterations)
		if err := runIteration(ctx, s, opts); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i+1, err)
		}
		s.MarkIteration()
	}
	name := opts.cfg.Name
	if name == "" {
		name = "scenario"
	}
	return &targetResult{target: target, rec: rec, report: s.Report(name + "@" + target)}, nil
}

func runIteration(ctx context.Context, s *otgsession.Session, opts *runOptions) error {
	cfg := opts.cfg
	expected := otgutils.ExpectedStateFor(cfg)

	if err := s.PushConfig(ctx, cfg); err != nil {
		return err
	}
	if err := s.StartProtocols(ctx); err != nil {
		return err
	}
	err := s.WaitForContext(ctx, protocolsUp(ctx, s, cfg, expected),
		&otgutils.WaitForOpts{Condition: "protocols up", Timeout: opts.timeout})
	if err != nil {
		return err
	}
	for _, kind := range opts.states {
		if _, err := s.ProtocolStates(ctx, kind); err != nil {
			return err
		}
	}

	if err := s.StartCapture(ctx); err != nil {
		return err
	}
	if err := s.StartTransmit(ctx); err != nil {
		return err
	}
	err = s.WaitForContext(ctx, otgutils.FlowMetricsOk(ctx, s, expected),
		&otgutils.WaitForOpts{Condition: "flows done", Timeout: opts.timeout})
	if err != nil {
		return err
	}
	if err := s.StopTransmit(ctx); err != nil {
		return err
	}
	if err := s.StopCapture(ctx); err != nil {
		return err
	}
	if s.CaptureEnabled() {
		if err := checkCaptures(ctx, s, cfg); err != nil {
			return err
		}
	}
	if err := s.StopProtocols(ctx); err != nil {
		return err
	}
	if len(expected.Bgp4)+len(expected.Bgp6) == 0 {
		return nil
	}
	return s.WaitForContext(ctx, otgutils.All(
		otgutils.AllBgp4SessionDown(ctx, s),
		otgutils.AllBgp6SessionDown(ctx, s),
	), &otgutils.WaitForOpts{Condition: "protocols down", Timeout: opts.timeout})
}

// protocolsUp holds once every gateway is resolved, every BGP session and
// OSPF adjacency expected for cfg is up, and every LAG is up.
func protocolsUp(ctx context.Context, s *otgsession.Session, cfg *otgconfig.Config, expected otgutils.ExpectedState) func() (bool, error) {
	var preds []func() (bool, error)
	for _, layer := range []otgmetrics.Layer{otgmetrics.IPv4, otgmetrics.IPv6} {
		if gws := otgutils.Gateways(cfg, layer); len(gws) > 0 {
			preds = append(preds, otgutils.ArpEntriesOk(ctx, s, layer, gws))
		}
	}
	if len(expected.Bgp4) > 0 {
		preds = append(preds, otgutils.AllBgp4SessionUp(ctx, s, expected))
	}
	if len(expected.Bgp6) > 0 {
		preds = append(preds, otgutils.AllBgp6SessionUp(ctx, s, expected))
	}
	if names := otgutils.OSPFRouters(cfg, false); len(names) > 0 {
		preds = append(preds, otgutils.OspfRoutersFullOk(ctx, s, otgmetrics.OSPFv2, names))
	}
	if names := otgutils.OSPFRouters(cfg, true); len(names) > 0 {
		preds = append(preds, otgutils.OspfRoutersFullOk(ctx, s, otgmetrics.OSPFv3, names))
	}
	if names := otgutils.LAGNames(cfg); len(names) > 0 {
		preds = append(preds, otgutils.LagsUpOk(ctx, s, names))
	}
	return otgutils.All(preds...)
}

// flowFrames matches the frames of a flow by size, with or without the FCS.
func flowFrames(f otgconfig.Flow) capture.Matcher {
	return func(fr capture.Frame) bool {
		n := fr.Len()
		return n == int(f.Size) || n == int(f.Size)-capture.FCSLen
	}
}

// checkCaptures validates every patterned header field of every flow on
// each of its captured rx ports. A captured rx port without a single frame
// of the flow fails even when the flow has no patterned fields.
func checkCaptures(ctx context.Context, s *otgsession.Session, cfg *otgconfig.Config) error {
	captured := map[string]*capture.Capture{}
	for _, port := range cfg.CapturePorts() {
		c, err := s.Capture(ctx, port)
		if err != nil {
			return err
		}
		captured[port] = c
	}
	var errs []error
	for _, f := range cfg.Flows {
		checks, err := f.Checks()
		if err != nil {
			return err
		}
		for _, rx := range f.Rx {
			port := cfg.EndpointPort(f, rx)
			c, ok := captured[port]
			if !ok {
				continue
			}
			if c.CountMatching(flowFrames(f)) == 0 {
				errs = append(errs, fmt.Errorf("flow %s on %s: no frames of %d bytes captured", f.Name, port, f.Size))
				continue
			}
			for _, chk := range checks {
				if _, err := c.AssertPattern(chk.Label, flowFrames(f), chk.Offset, chk.Pattern); err != nil {
					errs = append(errs, fmt.Errorf("flow %s on %s: %w", f.Name, port, err))
				}
			}
		}
	}
	return errors.Join(errs...)
}

func writeReports(w io.Writer, format string, results []*targetResult) error {
	for _, res := range results {
		if format == "json" {
			b, err := res.report.JSON()
			if err != nil {
				return err
			}
			fmt.Fprintln(w, string(b))
			continue
		}
		fmt.Fprintln(w, res.report.Table())
	}
	return nil
}

// writeMetrics writes one latency collector per target in the node exporter
// textfile format.
func writeMetrics(path string, results []*targetResult) error {
	var gatherers prometheus.Gatherers
	for _, res := range results {
		reg := prometheus.NewRegistry()
		if err := reg.Register(latency.NewCollector(res.target, res.rec)); err != nil {
			return err
		}
		gatherers = append(gatherers, reg)
	}
	return prometheus.WriteToTextfile(path, gatherers)
}
