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
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"

	"github.com/openconfig/otgharness/internal/capture"
	"github.com/openconfig/otgharness/internal/fieldcodec"
	"github.com/openconfig/otgharness/internal/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// inspectCmd represents the inspect command
var inspectCmd = &cobra.Command{
	Use:   "inspect FILE",
	Short: "Summarise a pcap or pcapng capture and assert header fields",
	Long: `Inspect prints one line per captured frame. With --stack it also prints
the header offsets of an encapsulation, e.g. ethernet/ipv4/udp/vxlan/ethernet.

Each --expect SEQ@OFFSET=VALUE asserts that frame SEQ holds VALUE at OFFSET.
VALUE is a MAC address, an IPv4 or IPv6 address, or hex bytes prefixed by 0x.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return inspect(cmd.OutOrStdout(), args[0], inspectOptions{
			stack:  viper.GetString("stack"),
			expect: viper.GetStringSlice("expect"),
			limit:  viper.GetInt("limit"),
			format: viper.GetString("format"),
		})
	},
}

func init() {
	rootCmd.AddCommand(inspectCmd)

	inspectCmd.Flags().String("stack", "", "Encapsulation whose header offsets are printed.")
	inspectCmd.Flags().StringSlice("expect", nil, "Field assertions as SEQ@OFFSET=VALUE.")
	inspectCmd.Flags().Int("limit", 50, "Maximum number of frames printed. 0 prints all.")
	for _, name := range []string{"stack", "expect", "limit"} {
		viper.BindPFlag(name, inspectCmd.Flags().Lookup(name))
	}
}

type inspectOptions struct {
	stack  string
	expect []string
	limit  int
	format string
}

type expectation struct {
	raw    string
	seq    int
	offset int
	value  []byte
}

// parseValue encodes a MAC, an IP address or 0x-prefixed hex.
func parseValue(s string) ([]byte, error) {
	if h, ok := strings.CutPrefix(s, "0x"); ok {
		return hex.DecodeString(h)
	}
	if _, err := net.ParseMAC(s); err == nil {
		return fieldcodec.MACToBytes(s)
	}
	if ip := net.ParseIP(s); ip != nil {
		if ip.To4() != nil {
			return fieldcodec.IPv4ToBytes(s)
		}
		return fieldcodec.IPv6ToBytes(s)
	}
	return nil, fmt.Errorf("value %q is not a MAC, an IP address or 0x hex", s)
}

func parseExpectation(s string) (expectation, error) {
	e := expectation{raw: s}
	loc, value, ok := strings.Cut(s, "=")
	if !ok {
		return e, fmt.Errorf("expectation %q: want SEQ@OFFSET=VALUE", s)
	}
	seq, offset, ok := strings.Cut(loc, "@")
	if !ok {
		return e, fmt.Errorf("expectation %q: want SEQ@OFFSET=VALUE", s)
	}
	var err error
	if e.seq, err = strconv.Atoi(seq); err != nil {
		return e, fmt.Errorf("expectation %q: bad sequence: %w", s, err)
	}
	if e.offset, err = strconv.Atoi(offset); err != nil {
		return e, fmt.Errorf("expectation %q: bad offset: %w", s, err)
	}
	if e.value, err = parseValue(value); err != nil {
		return e, fmt.Errorf("expectation %q: %w", s, err)
	}
	return e, nil
}

func stackTable(st capture.Stack) *table.Table {
	tb := table.New("Header offsets", "#", "Header", "Offset", "Length")
	for i, h := range st {
		tb.AppendRow(i, h, st.Start(i), h.Len())
	}
	return tb
}

type jsonFrame struct {
	Sequence int    `json:"sequence"`
	Length   int    `json:"length"`
	Original int    `json:"original_length"`
	Time     string `json:"time"`
	Summary  string `json:"summary"`
}

func inspect(w io.Writer, path string, opts inspectOptions) error {
	var expects []expectation
	for _, s := range opts.expect {
		e, err := parseExpectation(s)
		if err != nil {
			return err
		}
		expects = append(expects, e)
	}
	c, err := capture.ParseFile(path)
	if err != nil {
		return err
	}

	frames := c.Frames
	if opts.limit > 0 && len(frames) > opts.limit {
		frames = frames[:opts.limit]
	}
	if opts.format == "json" {
		out := make([]jsonFrame, 0, len(frames))
		for _, f := range frames {
			out = append(out, jsonFrame{
				Sequence: f.Sequence,
				Length:   f.Len(),
				Original: f.OriginalLength,
				Time:     f.Timestamp.UTC().Format("15:04:05.000000"),
				Summary:  f.Summary(),
			})
		}
		b, err := json.MarshalIndent(out, "", "  ")
		if err != nil {
			return err
		}
		fmt.Fprintln(w, string(b))
	} else {
		tb := table.New(fmt.Sprintf("%s: %d frames", path, c.Len()), "Seq", "Length", "Frame")
		for _, f := range frames {
			tb.AppendRow(f.Sequence, f.Len(), f.Summary())
		}
		fmt.Fprintln(w, tb)
	}

	if opts.stack != "" {
		st, err := capture.ParseStack(opts.stack)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, stackTable(st))
	}

	var errs []error
	for _, e := range expects {
		if err := c.AssertField(e.raw, e.seq, e.offset, e.value); err != nil {
			errs = append(errs, err)
			continue
		}
		fmt.Fprintf(w, "ok   %s\n", e.raw)
	}
	return errors.Join(errs...)
}
