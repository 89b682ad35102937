// partd-savings fetches the Medicare Part D Spending by Drug dataset,
// pairs brand and generic products and exports the savings tables.
//
// Usage:
//
//	partd-savings run --out-dir output --xlsx output/report.xlsx
//	partd-savings fetch --target 10000 --out-dir raw
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"

	"github.com/Sternrassler/partd-savings/pkg/analysis"
	"github.com/Sternrassler/partd-savings/pkg/cache"
	"github.com/Sternrassler/partd-savings/pkg/export"
	"github.com/Sternrassler/partd-savings/pkg/logging"
	"github.com/Sternrassler/partd-savings/pkg/metrics"
	"github.com/Sternrassler/partd-savings/pkg/normalize"
	"github.com/Sternrassler/partd-savings/pkg/pipeline"
	"github.com/Sternrassler/partd-savings/pkg/ratelimit"
	"github.com/Sternrassler/partd-savings/pkg/source"
)

var (
	version = "dev"
	commit  = "none"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newApp().RunContext(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "partd-savings",
		Usage:   "Medicare Part D brand vs generic savings analysis",
		Version: fmt.Sprintf("%s (commit: %s)", version, commit),

		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "log-level",
				Value:   "info",
				Usage:   "Log level (debug, info, warn, error)",
				EnvVars: []string{"PARTD_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:    "log-pretty",
				Usage:   "Human-readable console logs instead of JSON",
				EnvVars: []string{"PARTD_LOG_PRETTY"},
			},
			&cli.StringFlag{
				Name:    "redis-addr",
				Usage:   "Redis address for the page cache (empty disables caching)",
				EnvVars: []string{"PARTD_REDIS_ADDR"},
			},
			&cli.DurationFlag{
				Name:    "cache-ttl",
				Value:   cache.DefaultTTL,
				Usage:   "Page cache TTL when the source sends no freshness headers",
				EnvVars: []string{"PARTD_CACHE_TTL"},
			},
			&cli.StringFlag{
				Name:    "metrics-textfile",
				Usage:   "Write Prometheus metrics to this file when the command ends",
				EnvVars: []string{"PARTD_METRICS_TEXTFILE"},
			},
		},

		Before: func(c *cli.Context) error {
			level, err := logging.ParseLevel(c.String("log-level"))
			if err != nil {
				return err
			}
			logging.Setup(logging.Config{
				Level:  level,
				Pretty: c.Bool("log-pretty"),
				Output: c.App.ErrWriter,
			})
			return nil
		},

		After: func(c *cli.Context) error {
			path := c.String("metrics-textfile")
			if path == "" {
				return nil
			}
			return metrics.WriteTextfile(path)
		},

		Commands: []*cli.Command{
			runCommand(),
			fetchCommand(),
			purgeCacheCommand(),
		},
	}
}

// =============================================================================
// RUN COMMAND
// =============================================================================

func runCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringFlag{
			Name:    "out-dir",
			Aliases: []string{"o"},
			Value:   "output",
			Usage:   "Directory for the CSV tables (empty disables CSV)",
			EnvVars: []string{"PARTD_OUT_DIR"},
		},
		&cli.StringFlag{
			Name:    "xlsx",
			Usage:   "Also write an XLSX workbook to this path",
			EnvVars: []string{"PARTD_XLSX"},
		},
		&cli.IntFlag{
			Name:    "top",
			Value:   analysis.DefaultRankingLimit,
			Usage:   "Rows kept in the savings ranking (0 keeps all)",
			EnvVars: []string{"PARTD_TOP"},
		},
		&cli.Float64Flag{
			Name:    "min-claims",
			Value:   analysis.DefaultMinClaims,
			Usage:   "High-impact filter: brand claims must exceed this",
			EnvVars: []string{"PARTD_MIN_CLAIMS"},
		},
		&cli.Float64Flag{
			Name:    "min-cost-difference",
			Value:   analysis.DefaultMinCostDifference,
			Usage:   "High-impact filter: cost difference per claim must exceed this",
			EnvVars: []string{"PARTD_MIN_COST_DIFFERENCE"},
		},
		&cli.IntFlag{
			Name:    "min-drugs",
			Value:   analysis.DefaultMinDrugs,
			Usage:   "Smallest manufacturer group kept in the breakdown",
			EnvVars: []string{"PARTD_MIN_DRUGS"},
		},
	)

	return &cli.Command{
		Name:   "run",
		Usage:  "Fetch, normalize, analyze and export",
		Flags:  flags,
		Action: runAction,
	}
}

func runAction(c *cli.Context) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	cfg, closeCache, err := pipelineConfig(c, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	cfg.OutDir = c.String("out-dir")
	cfg.XLSXPath = c.String("xlsx")
	cfg.Analysis = analysis.Options{
		RankingLimit: c.Int("top"),
		Thresholds: analysis.Thresholds{
			MinClaims:         c.Float64("min-claims"),
			MinCostDifference: c.Float64("min-cost-difference"),
		},
		MinDrugs: c.Int("min-drugs"),
	}

	res, err := pipeline.Run(c.Context, cfg)
	if err != nil {
		return err
	}
	if res.Empty() {
		return fmt.Errorf("%w: %d raw rows, stop reason %s", pipeline.ErrEmptyDataset,
			res.FetchStats.Rows, res.FetchStats.StopReason)
	}

	event := logger.Info().
		Str("run_id", res.RunID).
		Int("records", len(res.Records)).
		Int("pairs", res.Report.Rollup.Pairs).
		Float64("potential_savings", res.Report.Rollup.PotentialSavings).
		Strs("files", res.Files)
	if pct := res.Report.Rollup.PercentSavings; pct != nil {
		event = event.Float64("percent_savings", *pct)
	}
	event.Msg("Run complete")
	return nil
}

// =============================================================================
// FETCH COMMAND
// =============================================================================

func fetchCommand() *cli.Command {
	flags := append(sourceFlags(),
		&cli.StringFlag{
			Name:    "out-dir",
			Aliases: []string{"o"},
			Value:   "output",
			Usage:   "Directory for records.csv",
			EnvVars: []string{"PARTD_OUT_DIR"},
		},
	)

	return &cli.Command{
		Name:   "fetch",
		Usage:  "Fetch and normalize only, writing the canonical records",
		Flags:  flags,
		Action: fetchAction,
	}
}

func fetchAction(c *cli.Context) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	cfg, closeCache, err := pipelineConfig(c, logger)
	if err != nil {
		return err
	}
	defer closeCache()

	res, err := pipeline.Fetch(c.Context, cfg)
	if err != nil {
		return err
	}
	if res.Empty() {
		return fmt.Errorf("%w: %d raw rows, stop reason %s", pipeline.ErrEmptyDataset,
			res.FetchStats.Rows, res.FetchStats.StopReason)
	}

	paths, err := export.NewWriter(c.String("out-dir")).WriteCSV([]export.Table{export.RecordsTable(res.Records)})
	if err != nil {
		return err
	}

	logger.Info().
		Str("run_id", res.RunID).
		Int("records", len(res.Records)).
		Int("dropped", res.NormalizeStats.Dropped).
		Str("path", filepath.Clean(paths[0])).
		Msg("Fetch complete")
	return nil
}

// =============================================================================
// PURGE-CACHE COMMAND
// =============================================================================

func purgeCacheCommand() *cli.Command {
	return &cli.Command{
		Name:  "purge-cache",
		Usage: "Delete the cached pages of the endpoint from Redis",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "endpoint",
				Value:   source.DefaultBaseURL,
				Usage:   "Dataset data endpoint whose pages are deleted",
				EnvVars: []string{"PARTD_ENDPOINT"},
			},
			&cli.BoolFlag{
				Name:  "all",
				Usage: "Delete the cached pages of every endpoint",
			},
		},
		Action: purgeCacheAction,
	}
}

func purgeCacheAction(c *cli.Context) error {
	logger := logging.NewLogger(logging.ComponentCLI)

	addr := c.String("redis-addr")
	if addr == "" {
		return errors.New("purge-cache needs --redis-addr")
	}

	endpoint := ""
	if !c.Bool("all") {
		cfg := source.DefaultConfig()
		cfg.BaseURL = c.String("endpoint")
		client, err := source.New(cfg)
		if err != nil {
			return err
		}
		endpoint = client.CacheEndpoint()
	}

	redisClient := redis.NewClient(&redis.Options{Addr: addr})
	defer redisClient.Close()

	manager := cache.NewManager(redisClient)
	if err := manager.Ping(c.Context); err != nil {
		return err
	}

	n, err := manager.Purge(c.Context, endpoint)
	if err != nil {
		return err
	}

	logger.Info().Str("endpoint", endpoint).Int("deleted", n).Msg("Page cache purged")
	return nil
}

// =============================================================================
// SHARED
// =============================================================================

func sourceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "endpoint",
			Value:   source.DefaultBaseURL,
			Usage:   "Dataset data endpoint",
			EnvVars: []string{"PARTD_ENDPOINT"},
		},
		&cli.StringFlag{
			Name:    "user-agent",
			Value:   source.DefaultUserAgent,
			Usage:   "User-Agent header sent to the source",
			EnvVars: []string{"PARTD_USER_AGENT"},
		},
		&cli.IntFlag{
			Name:    "page-size",
			Value:   source.MaxPageSize,
			Usage:   "Rows requested per page",
			EnvVars: []string{"PARTD_PAGE_SIZE"},
		},
		&cli.IntFlag{
			Name:    "target",
			Usage:   "Stop once this many rows are fetched (0 fetches everything)",
			EnvVars: []string{"PARTD_TARGET"},
		},
		&cli.DurationFlag{
			Name:    "delay",
			Value:   ratelimit.DefaultInterval,
			Usage:   "Pause between successive requests",
			EnvVars: []string{"PARTD_DELAY"},
		},
		&cli.DurationFlag{
			Name:    "timeout",
			Value:   source.DefaultTimeout,
			Usage:   "Timeout of a single request",
			EnvVars: []string{"PARTD_TIMEOUT"},
		},
		&cli.IntFlag{
			Name:    "year",
			Value:   normalize.DefaultYear,
			Usage:   "Data year of the spending columns",
			EnvVars: []string{"PARTD_YEAR"},
		},
	}
}

// pipelineConfig builds the shared part of the pipeline configuration and
// connects the page cache when one is configured. The returned func
// releases the cache connection.
func pipelineConfig(c *cli.Context, logger zerolog.Logger) (pipeline.Config, func(), error) {
	cfg := pipeline.DefaultConfig()
	cfg.Source.BaseURL = c.String("endpoint")
	cfg.Source.UserAgent = c.String("user-agent")
	cfg.Source.Timeout = c.Duration("timeout")
	cfg.Source.CacheTTL = c.Duration("cache-ttl")
	cfg.PageSize = c.Int("page-size")
	cfg.Target = c.Int("target")
	cfg.Delay = c.Duration("delay")
	cfg.Year = c.Int("year")

	if err := cfg.Validate(); err != nil {
		return cfg, func() {}, err
	}

	addr := c.String("redis-addr")
	if addr == "" {
		return cfg, func() {}, nil
	}

	redisClient := redis.NewClient(&redis.Options{Addr: addr})
	manager := cache.NewManager(redisClient)

	pingCtx, cancel := context.WithTimeout(c.Context, 5*time.Second)
	defer cancel()

	if err := manager.Ping(pingCtx); err != nil {
		redisClient.Close()
		logger.Warn().Err(err).Str("redis_addr", addr).Msg("Page cache unavailable, continuing without it")
		return cfg, func() {}, nil
	}

	logger.Info().Str("redis_addr", addr).Msg("Page cache enabled")
	cfg.Source.Cache = manager
	return cfg, func() { redisClient.Close() }, nil
}

// exitCode maps an error to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, pipeline.ErrEmptyDataset):
		return 2
	default:
		return 1
	}
}
