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

// Package cmd holds the otgperf commands.
package cmd

import (
	"flag"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"k8s.io/klog/v2"
)

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "otgperf",
	Short: "Runs traffic generator scenarios and reports operation latency",
	Long: `otgperf drives an OTG traffic generator, or an in-memory fake, through
scenario iterations: push config, start protocols, transmit, capture, and stop.
Every operation is timed and summarised as latency percentiles.

Every flag can also be set from the environment, e.g. OTGPERF_TEST_CONFIG.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and runs it.
func Execute() {
	defer klog.Flush()
	if err := rootCmd.Execute(); err != nil {
		klog.Exitf("otgperf: %v", err)
	}
}

func init() {
	klog.InitFlags(nil)
	rootCmd.PersistentFlags().AddGoFlagSet(flag.CommandLine)

	rootCmd.PersistentFlags().StringP("test-config", "c", "", "Test environment file. Defaults to the nearest test-config.yaml.")
	viper.BindPFlag("test-config", rootCmd.PersistentFlags().Lookup("test-config"))
	rootCmd.PersistentFlags().StringP("format", "o", "table", "Output format: table or json.")
	viper.BindPFlag("format", rootCmd.PersistentFlags().Lookup("format"))

	cobra.OnInitialize(initConfig)
}

func initConfig() {
	viper.SetEnvPrefix("OTGPERF")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}
