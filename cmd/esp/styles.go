// Copyright 2026 The ESP Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
)

var (
	accentColor = lipgloss.Color("#50FA7B")
	mutedColor  = lipgloss.Color("#6272A4")
	borderColor = lipgloss.Color("#44475A")

	labelStyle  = lipgloss.NewStyle().Foreground(mutedColor).Width(16)
	valueStyle  = lipgloss.NewStyle().Bold(true)
	headerStyle = lipgloss.NewStyle().Foreground(accentColor).Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
)

// field is one label/value line of a summary.
type field struct {
	label string
	value any
}

// printFields writes aligned label/value lines.
func printFields(w io.Writer, fields ...field) {
	lines := make([]string, 0, len(fields))
	for _, f := range fields {
		lines = append(lines, labelStyle.Render(f.label)+valueStyle.Render(fmt.Sprint(f.value)))
	}
	fmt.Fprintln(w, strings.Join(lines, "\n"))
}

// printTable writes a bordered table.
func printTable(w io.Writer, headers []string, rows [][]string) {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(borderColor)).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(headers...).
		Rows(rows...)
	fmt.Fprintln(w, t.Render())
}
