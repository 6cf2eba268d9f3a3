package report

import (
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/DennySORA/Remove-Background/pkg/types"
)

const (
	summarySheet  = "Summary"
	failuresSheet = "Failures"
)

// BuildWorkbook returns a workbook with a Summary sheet and a Failures sheet
func BuildWorkbook(r types.BatchResult) (*excelize.File, error) {
	f := excelize.NewFile()

	// The default sheet becomes the summary
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, fmt.Errorf("failed to rename sheet: %w", err)
	}
	if _, err := f.NewSheet(failuresSheet); err != nil {
		return nil, fmt.Errorf("failed to add sheet: %w", err)
	}

	started := ""
	if !r.StartedAt.IsZero() {
		started = r.StartedAt.UTC().Format(time.RFC3339)
	}
	rows := [][2]any{
		{"Batch", r.ID},
		{"Method", string(r.Method)},
		{"Output folder", r.OutputFolder},
		{"Started", started},
		{"Total", r.Total},
		{"Succeeded", r.Succeeded},
		{"Failed", r.Failed},
		{"Skipped", r.Skipped},
		{"Elapsed seconds", r.ElapsedSeconds},
	}
	for i, kv := range rows {
		if err := setRow(f, summarySheet, i+1, kv[0], kv[1]); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(summarySheet, "A", "A", 18)
	_ = f.SetColWidth(summarySheet, "B", "B", 60)

	if err := setRow(f, failuresSheet, 1, "#", "Path", "Reason", "Detail"); err != nil {
		return nil, err
	}
	for i, fail := range r.Failures {
		if err := setRow(f, failuresSheet, i+2, i+1, fail.Path, fail.Reason, fail.Detail); err != nil {
			return nil, err
		}
	}
	_ = f.SetColWidth(failuresSheet, "A", "A", 6)
	_ = f.SetColWidth(failuresSheet, "B", "B", 60)
	_ = f.SetColWidth(failuresSheet, "C", "C", 18)
	_ = f.SetColWidth(failuresSheet, "D", "D", 60)

	f.SetActiveSheet(0)
	return f, nil
}

// WriteXLSX saves the batch report to path
func WriteXLSX(r types.BatchResult, path string) error {
	f, err := BuildWorkbook(r)
	if err != nil {
		return err
	}
	defer f.Close()

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values ...any) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set %s!%s: %w", sheet, cell, err)
		}
	}
	return nil
}
