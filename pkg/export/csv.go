// Package export writes result tables as CSV files and as an XLSX
// workbook. Writers format values only; they compute nothing.
package export

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/partd-savings/pkg/logging"
)

// Writer writes tables into one output directory.
type Writer struct {
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{
		dir:    dir,
		logger: logging.NewLogger(logging.ComponentExport),
	}
}

// Dir returns the output directory.
func (w *Writer) Dir() string {
	return w.dir
}

// WriteCSV writes each table to <dir>/<name>.csv and returns the paths.
// Files are replaced atomically.
func (w *Writer) WriteCSV(tables []Table) ([]string, error) {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	paths := make([]string, 0, len(tables))
	for _, t := range tables {
		path := filepath.Join(w.dir, t.Name+".csv")
		if err := writeCSVFile(path, t); err != nil {
			return paths, fmt.Errorf("write %s: %w", t.Name, err)
		}
		paths = append(paths, path)

		w.logger.Info().
			Str("table", t.Name).
			Str("path", path).
			Int("rows", len(t.Rows)).
			Msg("CSV written")
	}
	return paths, nil
}

func writeCSVFile(path string, t Table) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+t.Name+"-*.csv")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	cw := csv.NewWriter(tmp)
	if err := cw.Write(t.Columns); err != nil {
		tmp.Close()
		return err
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i := range record {
			record[i] = ""
			if i < len(row) {
				record[i] = csvCell(row[i])
			}
		}
		if err := cw.Write(record); err != nil {
			tmp.Close()
			return err
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

func csvCell(v any) string {
	switch c := v.(type) {
	case nil:
		return ""
	case string:
		return c
	case int:
		return strconv.Itoa(c)
	case float64:
		return strconv.FormatFloat(c, 'f', -1, 64)
	case decimal.Decimal:
		return c.StringFixed(moneyPlaces)
	default:
		return fmt.Sprint(c)
	}
}
