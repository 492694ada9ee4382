package reportio

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/sanguard/sanguard/internal/types"
)

// PrintTable renders a completed run's ReportItems as a formatted table,
// mirroring the teacher's internal/report table renderer but over the
// sanitize domain's columns.
func PrintTable(w io.Writer, items []types.ReportItem) {
	if len(items) == 0 {
		fmt.Fprintln(w, "No files processed")
		return
	}
	table := tablewriter.NewWriter(w)
	table.Header("Action", "Input", "Output", "Warnings", "Error")
	for _, it := range items {
		out := ""
		if it.OutputPath != nil {
			out = *it.OutputPath
		}
		errMsg := ""
		if it.Error != nil {
			errMsg = *it.Error
		}
		_ = table.Append(string(it.Action), it.InputPath, out, fmt.Sprintf("%d", len(it.Warnings)), errMsg)
	}
	_ = table.Render()
}

// PrintSummaryText renders a Summary as columnar text to w.
func PrintSummaryText(w io.Writer, s Summary) {
	fmt.Fprintf(w, "Processed %d file(s): %d warning(s), %d error(s)\n", s.Files, s.Warnings, s.Errors)
	for action, n := range s.Counts {
		fmt.Fprintf(w, "  %-20s %d\n", action, n)
	}
	fmt.Fprintf(w, "exit_code=%d dry_run=%v\n", s.ExitCode, s.DryRun)
}
