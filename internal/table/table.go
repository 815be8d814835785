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

// Package table renders titled text tables for operator logs.
package table

import (
	"fmt"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// Table is a titled set of rows.
type Table struct {
	title   string
	headers []string
	rows    [][]string
}

// New returns an empty table.
func New(title string, headers ...string) *Table {
	return &Table{title: title, headers: headers}
}

// AppendRow adds a row, formatting each cell with %v.
func (t *Table) AppendRow(cells ...any) {
	row := make([]string, len(cells))
	for i, c := range cells {
		row[i] = fmt.Sprintf("%v", c)
	}
	t.rows = append(t.rows, row)
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.rows) }

// Rows returns the formatted rows.
func (t *Table) Rows() [][]string { return t.rows }

// String renders the table with its title on the first line.
func (t *Table) String() string {
	var b strings.Builder
	if t.title != "" {
		b.WriteString("\n" + t.title + "\n")
	}
	w := tablewriter.NewWriter(&b)
	w.SetAutoWrapText(false)
	w.SetAutoFormatHeaders(false)
	w.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	w.SetAlignment(tablewriter.ALIGN_LEFT)
	w.SetHeader(t.headers)
	w.AppendBulk(t.rows)
	w.Render()
	return b.String()
}
