// Package report folds finished image tasks into a BatchResult and renders it
// for the console and as an XLSX workbook.
package report

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/DennySORA/Remove-Background/pkg/types"
)

// Aggregate builds the summary of a batch from its final task states.
// Failures keep the order of tasks; tasks still pending count as skipped.
func Aggregate(tasks []types.ImageTask, elapsedSeconds float64) types.BatchResult {
	result := types.BatchResult{
		Total:          len(tasks),
		ElapsedSeconds: elapsedSeconds,
		Failures:       []types.Failure{},
	}
	for _, t := range tasks {
		switch t.Status {
		case types.StatusSuccess:
			result.Succeeded++
		case types.StatusFailed:
			result.Failed++
			result.Failures = append(result.Failures, types.Failure{
				Path:   t.SourcePath,
				Reason: t.Reason,
				Detail: t.Detail,
			})
		default:
			result.Skipped++
		}
	}
	return result
}

// FormatSummary writes the human-readable batch summary
func FormatSummary(w io.Writer, r types.BatchResult) error {
	var b strings.Builder

	b.WriteString("\n=== Batch summary ===\n")
	if r.ID != "" {
		fmt.Fprintf(&b, "Batch:     %s\n", r.ID)
	}
	if r.Method != "" {
		fmt.Fprintf(&b, "Method:    %s\n", r.Method)
	}
	if r.OutputFolder != "" {
		fmt.Fprintf(&b, "Output:    %s\n", r.OutputFolder)
	}
	fmt.Fprintf(&b, "Total:     %d\n", r.Total)
	fmt.Fprintf(&b, "Succeeded: %d\n", r.Succeeded)
	fmt.Fprintf(&b, "Failed:    %d\n", r.Failed)
	fmt.Fprintf(&b, "Skipped:   %d\n", r.Skipped)
	fmt.Fprintf(&b, "Elapsed:   %.2fs", r.ElapsedSeconds)
	if r.Total > 0 {
		fmt.Fprintf(&b, " (%.2fs per image)", r.ElapsedSeconds/float64(r.Total))
	}
	b.WriteString("\n")

	if len(r.Failures) > 0 {
		b.WriteString("\nFailed files:\n")
		for _, f := range r.Failures {
			fmt.Fprintf(&b, "  - %s: %s", filepath.Base(f.Path), f.Reason)
			if f.Detail != "" {
				fmt.Fprintf(&b, " (%s)", f.Detail)
			}
			b.WriteString("\n")
		}
	}

	_, err := io.WriteString(w, b.String())
	return err
}
