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

// Package testconfig loads the test environment: where the traffic generator
// and its ports are, and how tests should drive it.
package testconfig

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
	"k8s.io/klog/v2"
)

// FileName is the name of the test environment file.
const FileName = "test-config.yaml"

// TestConfig is the test environment.
type TestConfig struct {
	OtgHost           string        `yaml:"otg_host,omitempty"`
	OtgPorts          []string      `yaml:"otg_ports,omitempty"`
	OtgSpeed          string        `yaml:"otg_speed,omitempty"`
	OtgIterations     int           `yaml:"otg_iterations,omitempty"`
	OtgCaptureCheck   bool          `yaml:"otg_capture_check"`
	OtgGrpcTransport  bool          `yaml:"otg_grpc_transport"`
	OtgRequestTimeout time.Duration `yaml:"otg_request_timeout,omitempty"`
}

// Default returns the environment used when no file is present: a local
// traffic generator with two back-to-back ports over HTTP.
func Default() *TestConfig {
	return &TestConfig{
		OtgHost:           "https://localhost",
		OtgPorts:          []string{"localhost:5555", "localhost:5556"},
		OtgSpeed:          "speed_1_gbps",
		OtgIterations:     100,
		OtgCaptureCheck:   true,
		OtgGrpcTransport:  false,
		OtgRequestTimeout: time.Hour,
	}
}

// Load overlays the file at path onto the defaults. A missing file is not
// an error.
func Load(path string) (*TestConfig, error) {
	tc := Default()
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		klog.Infof("Using default test configuration, %s not found", path)
		return tc, nil
	}
	if err != nil {
		return nil, fmt.Errorf("could not read %s: %w", path, err)
	}
	klog.Infof("Loading test config from %s", path)
	if err := yaml.Unmarshal(b, tc); err != nil {
		return nil, fmt.Errorf("could not unmarshal %s: %w", path, err)
	}
	if err := tc.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return tc, nil
}

// Validate checks the fields that have no usable zero value.
func (tc *TestConfig) Validate() error {
	if tc.OtgHost == "" {
		return errors.New("otg_host is empty")
	}
	if len(tc.OtgPorts) == 0 {
		return errors.New("otg_ports is empty")
	}
	if tc.OtgIterations < 1 {
		return fmt.Errorf("otg_iterations is %d, want at least 1", tc.OtgIterations)
	}
	return nil
}

// Find walks up from dir to the module root (the directory holding go.mod)
// and returns the test config path there.
func Find(dir string) (string, error) {
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return filepath.Join(dir, FileName), nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("no go.mod above %s", dir)
		}
		dir = parent
	}
}

// New loads the test environment from the module root of the calling
// package, failing the test on unreadable or invalid files.
func New(t testing.TB) *TestConfig {
	t.Helper()
	_, src, _, _ := runtime.Caller(1)
	path, err := Find(filepath.Dir(src))
	if err != nil {
		t.Fatalf("Could not get test config path: %v", err)
	}
	tc, err := Load(path)
	if err != nil {
		t.Fatalf("Could not load test config: %v", err)
	}
	t.Logf("OTG Host: %s, OTG Ports: %v", tc.OtgHost, tc.OtgPorts)
	return tc
}
