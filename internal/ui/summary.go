package ui

import (
	"fmt"
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// TransferSummary is the closing report of a send or receive run.
type TransferSummary struct {
	Status    string
	Files     int
	TotalSize string
	Duration  string
	Speed     string
}

// TransferSummaryView renders summary as a rounded go-pretty table.
func TransferSummaryView(title string, summary TransferSummary) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle(title)
	t.Style().Title.Align = text.AlignCenter
	t.AppendHeader(table.Row{"Metric", "Value"})
	t.AppendRows([]table.Row{
		{"Status", summary.Status},
		{"Files", strconv.Itoa(summary.Files)},
		{"Total Size", summary.TotalSize},
		{"Duration", summary.Duration},
		{"Avg Speed", summary.Speed},
	})
	return t.Render()
}

func RenderTransferSummary(title string, summary TransferSummary) {
	fmt.Println(TransferSummaryView(title, summary))
}
