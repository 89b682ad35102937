// Package pipeline wires the stages together: paginated fetch,
// normalization, loading into the in-memory store, analysis and export.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/partd-savings/pkg/analysis"
	"github.com/Sternrassler/partd-savings/pkg/dataset"
	"github.com/Sternrassler/partd-savings/pkg/export"
	"github.com/Sternrassler/partd-savings/pkg/logging"
	"github.com/Sternrassler/partd-savings/pkg/normalize"
	"github.com/Sternrassler/partd-savings/pkg/pagination"
	"github.com/Sternrassler/partd-savings/pkg/ratelimit"
	"github.com/Sternrassler/partd-savings/pkg/source"
	"github.com/Sternrassler/partd-savings/pkg/store"
)

// ErrEmptyDataset reports that a run admitted no records. Run itself does
// not return it; callers decide whether an empty result is a failure.
var ErrEmptyDataset = errors.New("empty dataset")

// Result is the outcome of one run.
type Result struct {
	RunID     string
	StartedAt time.Time
	Duration  time.Duration

	FetchStats     pagination.Stats
	NormalizeStats normalize.Stats

	Records []dataset.Record
	Report  *analysis.Report

	// Files lists every file written, CSV first.
	Files []string
}

// Empty reports whether no record was admitted.
func (r *Result) Empty() bool {
	return len(r.Records) == 0
}

// Fetch runs only the fetch and normalization stages.
func Fetch(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	res := newResult()
	logger := runLogger(res.RunID)

	if err := fetch(ctx, cfg, res, logger); err != nil {
		return nil, err
	}
	res.Duration = time.Since(res.StartedAt)
	return res, nil
}

// Run executes every stage. An empty dataset is not an error: the result
// is empty and no files are written.
func Run(ctx context.Context, cfg Config) (*Result, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	res := newResult()
	logger := runLogger(res.RunID)

	logger.Info().
		Str("source", cfg.Source.BaseURL).
		Int("page_size", cfg.PageSize).
		Int("target", cfg.Target).
		Dur("delay", cfg.Delay).
		Int("year", cfg.Year).
		Bool("cache", cfg.Source.Cache != nil).
		Msg("Pipeline run started")

	if err := fetch(ctx, cfg, res, logger); err != nil {
		return nil, err
	}

	if res.Empty() {
		res.Duration = time.Since(res.StartedAt)
		logger.Warn().
			Str("stop_reason", string(res.FetchStats.StopReason)).
			AnErr("last_error", res.FetchStats.LastErr).
			Msg("No records admitted, skipping analysis and export")
		return res, nil
	}

	report, err := analyze(ctx, cfg, res.Records)
	if err != nil {
		return nil, err
	}
	res.Report = report

	if err := write(cfg, res); err != nil {
		return nil, err
	}

	res.Duration = time.Since(res.StartedAt)
	logger.Info().
		Int("records", len(res.Records)).
		Int("files", len(res.Files)).
		Dur("duration", res.Duration).
		Msg("Pipeline run finished")
	return res, nil
}

func newResult() *Result {
	return &Result{
		RunID:     uuid.NewString(),
		StartedAt: time.Now(),
	}
}

func runLogger(runID string) zerolog.Logger {
	return logging.NewLogger(logging.ComponentPipeline).With().Str("run_id", runID).Logger()
}

func fetch(ctx context.Context, cfg Config, res *Result, logger zerolog.Logger) error {
	client, err := source.New(cfg.Source)
	if err != nil {
		return fmt.Errorf("create source client: %w", err)
	}

	pacer := ratelimit.NewPacer(cfg.Delay, logger)
	raw, stats := pagination.NewPaginator(client, pacer).FetchAll(ctx, cfg.PageSize, cfg.Target)
	res.FetchStats = stats

	if stats.StopReason == pagination.StopCancelled {
		return fmt.Errorf("fetch cancelled after %d rows: %w", stats.Rows, stats.LastErr)
	}

	res.Records, res.NormalizeStats = normalize.NewNormalizer(cfg.Year).Normalize(raw)
	return nil
}

func analyze(ctx context.Context, cfg Config, records []dataset.Record) (*analysis.Report, error) {
	st, err := store.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	if err := st.Load(ctx, records); err != nil {
		return nil, fmt.Errorf("load store: %w", err)
	}

	report, err := analysis.NewAnalyzer(st.DB()).Run(ctx, cfg.Analysis)
	if err != nil {
		return nil, fmt.Errorf("analyze: %w", err)
	}
	return report, nil
}

func write(cfg Config, res *Result) error {
	if cfg.OutDir == "" && cfg.XLSXPath == "" {
		return nil
	}

	tables := export.Tables(res.Records, res.Report)
	w := export.NewWriter(cfg.OutDir)

	if cfg.OutDir != "" {
		paths, err := w.WriteCSV(tables)
		res.Files = append(res.Files, paths...)
		if err != nil {
			return fmt.Errorf("export csv: %w", err)
		}
	}

	if cfg.XLSXPath != "" {
		run := export.RunInfo{
			RunID:      res.RunID,
			StartedAt:  res.StartedAt,
			Source:     cfg.Source.BaseURL,
			Year:       cfg.Year,
			RawRows:    res.FetchStats.Rows,
			Records:    len(res.Records),
			Dropped:    res.NormalizeStats.Dropped,
			StopReason: string(res.FetchStats.StopReason),
		}
		if err := w.WriteXLSX(cfg.XLSXPath, tables, run); err != nil {
			return fmt.Errorf("export xlsx: %w", err)
		}
		res.Files = append(res.Files, cfg.XLSXPath)
	}
	return nil
}
