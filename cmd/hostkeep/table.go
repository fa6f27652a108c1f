package main

import (
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/term"
)

// renderTable draws a rounded table on a terminal and tab-separated values
// otherwise. Columns whose indexes are listed in centered are centered.
func renderTable(headers []string, rows [][]string, centered ...int) string {
	if len(headers) == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(tableRow(headers, len(headers)))
	for _, row := range rows {
		tw.AppendRow(tableRow(row, len(headers)))
	}

	configs := make([]table.ColumnConfig, 0, len(centered))
	for _, i := range centered {
		configs = append(configs, table.ColumnConfig{
			Number:      i + 1,
			Align:       text.AlignCenter,
			AlignHeader: text.AlignCenter,
		})
	}
	tw.SetColumnConfigs(configs)

	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return tw.RenderTSV()
	}
	return tw.Render()
}

// tableRow pads or truncates cells to width columns.
func tableRow(cells []string, width int) table.Row {
	r := make(table.Row, width)
	for i := range r {
		r[i] = ""
		if i < len(cells) {
			r[i] = cells[i]
		}
	}
	return r
}
