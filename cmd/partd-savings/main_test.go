package main

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/Sternrassler/partd-savings/internal/testutil"
	"github.com/Sternrassler/partd-savings/pkg/export"
	"github.com/Sternrassler/partd-savings/pkg/pipeline"
)

func sampleRows() []map[string]any {
	return []map[string]any{
		testutil.CMSRow("Zocor", "Simvastatin", "Merck", 2022, 2400000, 20000, 120),
		testutil.CMSRow("Simvastatin", "Simvastatin", "Teva", 2022, 300000, 30000, 10),
		testutil.CMSRow("Lipitor", "Atorvastatin Calcium", "Pfizer", 2022, 150000, 1000, 150),
		testutil.CMSRow("Atorvastatin Calcium", "Atorvastatin Calcium", "Teva", 2022, 90000, 6000, 15),
	}
}

// runApp runs the CLI with log output discarded.
func runApp(t *testing.T, args ...string) error {
	t.Helper()
	app := newApp()
	app.Writer = io.Discard
	app.ErrWriter = io.Discard
	return app.RunContext(context.Background(), append([]string{"partd-savings", "--log-level", "error"}, args...))
}

func TestRunCommand_WritesTables(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	dir := filepath.Join(t.TempDir(), "out")
	xlsx := filepath.Join(dir, "report.xlsx")

	err := runApp(t, "run",
		"--endpoint", mock.DataURL(),
		"--delay", "0s",
		"--page-size", "3",
		"--out-dir", dir,
		"--xlsx", xlsx,
	)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	for _, name := range []string{
		export.TableRecords,
		export.TableSavingsRanking,
		export.TableHighImpact,
		export.TableCategorySummary,
		export.TableRollup,
		export.TableManufacturers,
	} {
		if _, err := os.Stat(filepath.Join(dir, name+".csv")); err != nil {
			t.Errorf("%s.csv not written: %v", name, err)
		}
	}
	if _, err := os.Stat(xlsx); err != nil {
		t.Errorf("workbook not written: %v", err)
	}

	// 4 rows in pages of 3: one full page, one short page.
	if got := mock.GetRequestCount(); got != 2 {
		t.Errorf("requests = %d, want 2", got)
	}
	if got := mock.Queries[0].Get("size"); got != "3" {
		t.Errorf("size param = %q, want 3", got)
	}
}

func TestRunCommand_ThresholdFlags(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	dir := t.TempDir()
	err := runApp(t, "run",
		"--endpoint", mock.DataURL(),
		"--delay", "0s",
		"--out-dir", dir,
		"--min-claims", "0",
		"--min-cost-difference", "0",
		"--top", "1",
	)
	if err != nil {
		t.Fatalf("run error = %v", err)
	}

	ranking := readLines(t, filepath.Join(dir, export.TableSavingsRanking+".csv"))
	if len(ranking) != 2 {
		t.Errorf("savings_ranking lines = %d, want header + 1", len(ranking))
	}

	// With both thresholds at zero every pair is high impact.
	impact := readLines(t, filepath.Join(dir, export.TableHighImpact+".csv"))
	if len(impact) != 3 {
		t.Errorf("high_impact lines = %d, want header + 2", len(impact))
	}
}

func TestRunCommand_EmptyDataset(t *testing.T) {
	mock := testutil.NewMockSource(nil)
	defer mock.Close()

	dir := filepath.Join(t.TempDir(), "out")
	err := runApp(t, "run", "--endpoint", mock.DataURL(), "--delay", "0s", "--out-dir", dir)

	if !errors.Is(err, pipeline.ErrEmptyDataset) {
		t.Fatalf("error = %v, want ErrEmptyDataset", err)
	}
	if code := exitCode(err); code != 2 {
		t.Errorf("exitCode = %d, want 2", code)
	}
	if _, statErr := os.Stat(dir); !os.IsNotExist(statErr) {
		t.Errorf("output directory should not exist, stat error = %v", statErr)
	}
}

func TestRunCommand_EndpointFromEnv(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	t.Setenv("PARTD_ENDPOINT", mock.DataURL())
	t.Setenv("PARTD_DELAY", "0s")

	if err := runApp(t, "run", "--out-dir", t.TempDir()); err != nil {
		t.Fatalf("run error = %v", err)
	}
	if mock.GetRequestCount() == 0 {
		t.Error("expected requests against the endpoint from PARTD_ENDPOINT")
	}
}

func TestRunCommand_RedisUnavailable(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	err := runApp(t, "--redis-addr", "127.0.0.1:1", "run",
		"--endpoint", mock.DataURL(),
		"--delay", "0s",
		"--out-dir", t.TempDir(),
	)
	if err != nil {
		t.Fatalf("run should continue without cache, error = %v", err)
	}
}

func TestFetchCommand_WritesRecordsOnly(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	dir := t.TempDir()
	err := runApp(t, "fetch", "--endpoint", mock.DataURL(), "--delay", "0s", "--out-dir", dir)
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	lines := readLines(t, filepath.Join(dir, export.TableRecords+".csv"))
	if len(lines) != 5 {
		t.Errorf("records lines = %d, want header + 4", len(lines))
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("files written = %d, want only records.csv", len(entries))
	}
}

func TestFetchCommand_Target(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	dir := t.TempDir()
	err := runApp(t, "fetch",
		"--endpoint", mock.DataURL(),
		"--delay", "0s",
		"--page-size", "2",
		"--target", "2",
		"--out-dir", dir,
	)
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}
	if got := mock.GetRequestCount(); got != 1 {
		t.Errorf("requests = %d, want 1", got)
	}
}

func TestMetricsTextfile(t *testing.T) {
	mock := testutil.NewMockSource(sampleRows())
	defer mock.Close()

	path := filepath.Join(t.TempDir(), "partd.prom")
	err := runApp(t, "--metrics-textfile", path, "fetch",
		"--endpoint", mock.DataURL(),
		"--delay", "0s",
		"--out-dir", t.TempDir(),
	)
	if err != nil {
		t.Fatalf("fetch error = %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	if !strings.Contains(string(data), "partd_pages_fetched_total") {
		t.Error("metrics textfile missing partd_pages_fetched_total")
	}
}

func TestInvalidFlags(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"log level", []string{"--log-level", "loud", "fetch"}},
		{"page size zero", []string{"fetch", "--page-size", "0"}},
		{"page size too large", []string{"fetch", "--page-size", "5001"}},
		{"negative delay", []string{"fetch", "--delay=-1s"}},
		{"year", []string{"fetch", "--year", "1999"}},
		{"workbook extension", []string{"run", "--xlsx", "report.csv"}},
		{"negative threshold", []string{"run", "--min-claims=-1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := testutil.NewMockSource(sampleRows())
			defer mock.Close()

			args := append(tt.args, "--endpoint", mock.DataURL())
			if err := runApp(t, args...); err == nil {
				t.Error("expected error")
			}
			if mock.GetRequestCount() != 0 {
				t.Errorf("requests = %d, want none before validation", mock.GetRequestCount())
			}
		})
	}
}

func TestExitCode(t *testing.T) {
	if got := exitCode(nil); got != 0 {
		t.Errorf("exitCode(nil) = %d, want 0", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Errorf("exitCode(generic) = %d, want 1", got)
	}
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read %s: %v", path, err)
	}
	return strings.Split(strings.TrimRight(string(data), "\n"), "\n")
}

func TestPurgeCacheCommand_RequiresRedis(t *testing.T) {
	err := runApp(t, "purge-cache", "--all")
	if err == nil || !strings.Contains(err.Error(), "--redis-addr") {
		t.Errorf("error = %v, want missing --redis-addr", err)
	}
}

func TestPurgeCacheCommand_InvalidEndpoint(t *testing.T) {
	err := runApp(t, "--redis-addr", "127.0.0.1:1", "purge-cache", "--endpoint", "ftp://example.com/data")
	if err == nil {
		t.Error("expected error for non-http endpoint")
	}
}
