package pipeline

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/Sternrassler/partd-savings/pkg/analysis"
	"github.com/Sternrassler/partd-savings/pkg/normalize"
	"github.com/Sternrassler/partd-savings/pkg/ratelimit"
	"github.com/Sternrassler/partd-savings/pkg/source"
)

// Config holds the configuration of one pipeline run.
type Config struct {
	// Source configures the fetcher, including the optional page cache.
	Source source.Config

	// PageSize is the number of rows requested per page.
	PageSize int

	// Target is the advisory row count. <= 0 fetches until the data ends.
	Target int

	// Delay is the pause between successive requests. 0 disables pacing.
	Delay time.Duration

	// Year selects the year-suffixed source columns.
	Year int

	Analysis analysis.Options

	// OutDir receives the CSV files. Empty disables CSV export.
	OutDir string

	// XLSXPath is the workbook path. Empty disables the workbook.
	XLSXPath string
}

// DefaultConfig returns a full fetch of the public dataset with CSV output
// in ./output.
func DefaultConfig() Config {
	return Config{
		Source:   source.DefaultConfig(),
		PageSize: source.MaxPageSize,
		Target:   0,
		Delay:    ratelimit.DefaultInterval,
		Year:     normalize.DefaultYear,
		Analysis: analysis.DefaultOptions(),
		OutDir:   "output",
	}
}

// Validate reports the first invalid setting.
func (c Config) Validate() error {
	if c.PageSize <= 0 || c.PageSize > source.MaxPageSize {
		return fmt.Errorf("page size must be in [1, %d] (got %d)", source.MaxPageSize, c.PageSize)
	}
	if c.Delay < 0 {
		return fmt.Errorf("delay must be >= 0 (got %s)", c.Delay)
	}
	if c.Year < 2000 || c.Year > 2100 {
		return fmt.Errorf("year out of range (got %d)", c.Year)
	}
	if c.Analysis.Thresholds.MinClaims < 0 || c.Analysis.Thresholds.MinCostDifference < 0 {
		return fmt.Errorf("high-impact thresholds must be >= 0")
	}
	if c.XLSXPath != "" && filepath.Ext(c.XLSXPath) != ".xlsx" {
		return fmt.Errorf("workbook path must end in .xlsx (got %q)", c.XLSXPath)
	}
	return nil
}
