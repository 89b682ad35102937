package export

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

// RunInfo describes the run on the workbook's Run sheet.
type RunInfo struct {
	RunID      string
	StartedAt  time.Time
	Source     string
	Year       int
	RawRows    int
	Records    int
	Dropped    int
	StopReason string
}

const runSheet = "Run"

// colWidth is the width applied to every data column.
const colWidth = 18

// WriteXLSX writes every table to its own sheet plus a Run sheet.
func (w *Writer) WriteXLSX(path string, tables []Table, run RunInfo) error {
	start := time.Now()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	f := excelize.NewFile()
	defer f.Close()

	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("xlsx style: %w", err)
	}

	for i, t := range tables {
		sheet := t.Title
		if sheet == "" {
			sheet = t.Name
		}
		if i == 0 {
			if err := f.SetSheetName("Sheet1", sheet); err != nil {
				return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
			}
		} else if _, err := f.NewSheet(sheet); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
		if err := writeSheet(f, sheet, t.Columns, t.Rows, bold); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", sheet, err)
		}
	}

	if len(tables) == 0 {
		if err := f.SetSheetName("Sheet1", runSheet); err != nil {
			return fmt.Errorf("xlsx sheet %s: %w", runSheet, err)
		}
	} else if _, err := f.NewSheet(runSheet); err != nil {
		return fmt.Errorf("xlsx sheet %s: %w", runSheet, err)
	}
	if err := writeSheet(f, runSheet, []string{"key", "value"}, runRows(run), bold); err != nil {
		return fmt.Errorf("xlsx sheet %s: %w", runSheet, err)
	}

	f.SetActiveSheet(0)

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}

	w.logger.Info().
		Str("path", path).
		Int("sheets", len(tables)+1).
		Dur("duration", time.Since(start)).
		Msg("Workbook written")
	return nil
}

func runRows(run RunInfo) [][]any {
	started := ""
	if !run.StartedAt.IsZero() {
		started = run.StartedAt.UTC().Format(time.RFC3339)
	}
	return [][]any{
		{"run_id", run.RunID},
		{"started_at", started},
		{"source", run.Source},
		{"year", run.Year},
		{"raw_rows", run.RawRows},
		{"records", run.Records},
		{"dropped", run.Dropped},
		{"stop_reason", run.StopReason},
	}
}

func writeSheet(f *excelize.File, sheet string, columns []string, rows [][]any, headerStyle int) error {
	for i, h := range columns {
		cell, err := excelize.CoordinatesToCellName(i+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
	}
	if len(columns) > 0 {
		last, err := excelize.CoordinatesToCellName(len(columns), 1)
		if err != nil {
			return err
		}
		if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
			return err
		}
	}

	for r, row := range rows {
		for c, v := range row {
			if v == nil {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(c+1, r+2)
			if err != nil {
				return err
			}
			if err := f.SetCellValue(sheet, cell, xlsxCell(v)); err != nil {
				return err
			}
		}
	}

	if len(columns) > 0 {
		lastCol, err := excelize.ColumnNumberToName(len(columns))
		if err != nil {
			return err
		}
		if err := f.SetColWidth(sheet, "A", lastCol, colWidth); err != nil {
			return err
		}
	}
	return nil
}

func xlsxCell(v any) any {
	if d, ok := v.(decimal.Decimal); ok {
		return d.InexactFloat64()
	}
	return v
}
