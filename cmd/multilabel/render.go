package main

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
)

var (
	tableHeaderStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	tableCellStyle   = lipgloss.NewStyle().Padding(0, 1)
	tableSepStyle    = lipgloss.NewStyle().Faint(true)
)

// renderTable renders rows under headers with aligned columns.
func renderTable(headers []string, rows [][]string) string {
	// Column widths from the widest cell, plus cell padding
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i, cell := range row {
			if i < len(widths) && lipgloss.Width(cell) > widths[i] {
				widths[i] = lipgloss.Width(cell)
			}
		}
	}
	for i := range widths {
		widths[i] += 2
	}

	var sb strings.Builder
	for i, h := range headers {
		sb.WriteString(tableHeaderStyle.Width(widths[i]).Render(h))
		if i < len(headers)-1 {
			sb.WriteString(tableSepStyle.Render("|"))
		}
	}
	sb.WriteString("\n")

	total := len(headers) - 1
	for _, w := range widths {
		total += w
	}
	sb.WriteString(tableSepStyle.Render(strings.Repeat("-", total)))
	sb.WriteString("\n")

	for _, row := range rows {
		for i, cell := range row {
			if i >= len(widths) {
				break
			}
			sb.WriteString(tableCellStyle.Width(widths[i]).Render(cell))
			if i < len(row)-1 {
				sb.WriteString(tableSepStyle.Render("|"))
			}
		}
		sb.WriteString("\n")
	}
	return sb.String()
}
