// Package output renders CLI results.
package output

import (
	"fmt"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/replysmith/replysmith/internal/core"
)

// UsageTable renders usage entries as an ASCII table.
func UsageTable(entries []core.UsageEntry) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Key", "Day", "Total", "Minute Count", "Window Start"})

	for _, entry := range entries {
		windowStart := "-"
		if !entry.Record.MinuteWindowStart.IsZero() {
			windowStart = entry.Record.MinuteWindowStart.UTC().Format("15:04:05")
		}
		t.AppendRow(table.Row{
			entry.Key,
			entry.Record.Day,
			entry.Record.Total,
			entry.Record.MinuteCount,
			windowStart,
		})
	}

	t.AppendFooter(table.Row{"", "", "", "", fmt.Sprintf("%d records", len(entries))})

	return t.Render()
}
