package export

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Sternrassler/partd-savings/pkg/analysis"
	"github.com/Sternrassler/partd-savings/pkg/dataset"
)

func testReport() *analysis.Report {
	pct := 60.0
	return &analysis.Report{
		CategorySummary: []analysis.CategoryStats{
			{Category: dataset.CategoryBrand, Count: 1, PercentOfTotal: 50, TotalSpending: dataset.Float(1000.005), TotalClaims: dataset.Float(10)},
			{Category: dataset.CategoryGeneric, Count: 1, PercentOfTotal: 50},
		},
		SavingsRanking: []analysis.SavingsRecord{{
			GenericName:      "DRUG_A",
			BrandAvgCost:     100,
			GenericAvgCost:   40,
			CostDifference:   60,
			PercentSavings:   60,
			BrandClaims:      10,
			PotentialSavings: 600,
		}},
		Rollup: analysis.Rollup{
			Pairs:            1,
			BrandClaims:      10,
			CurrentSpending:  1000,
			GenericSpending:  400,
			PotentialSavings: 600,
			PercentSavings:   &pct,
		},
		Manufacturers: []analysis.ManufacturerStats{
			{Manufacturer: "Pfizer", Category: dataset.CategoryBrand, Count: 3, AvgSpendPerClaim: dataset.Float(33.333333)},
		},
	}
}

func testRecords() []dataset.Record {
	return []dataset.Record{
		{
			BrandName:        "BRAND_X",
			GenericName:      "DRUG_A",
			Category:         dataset.CategoryBrand,
			Manufacturer:     "Pfizer",
			TotalSpending:    dataset.Float(1000),
			TotalClaims:      dataset.Float(10),
			AvgSpendPerClaim: dataset.Float(100),
		},
		{
			BrandName:   "DRUG_A",
			GenericName: "DRUG_A",
			Category:    dataset.CategoryGeneric,
		},
	}
}

func readCSV(t *testing.T, path string) [][]string {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	rows, err := csv.NewReader(file).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestWriteCSV_AllTables(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "out")
	w := NewWriter(dir)

	paths, err := w.WriteCSV(Tables(testRecords(), testReport()))
	require.NoError(t, err)

	want := []string{
		"records.csv", "savings_ranking.csv", "high_impact.csv",
		"category_summary.csv", "manufacturers.csv", "rollup.csv",
	}
	require.Len(t, paths, len(want))
	for i, name := range want {
		assert.Equal(t, filepath.Join(dir, name), paths[i])
		assert.FileExists(t, paths[i])
	}

	// No temp files are left behind.
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, len(want))
}

func TestWriteCSV_SavingsRanking(t *testing.T) {
	w := NewWriter(t.TempDir())
	paths, err := w.WriteCSV(Tables(nil, testReport()))
	require.NoError(t, err)

	rows := readCSV(t, paths[1])
	assert.Equal(t, [][]string{
		{"generic_name", "brand_avg_cost", "generic_avg_cost", "cost_difference", "percent_savings", "brand_claims", "potential_savings"},
		{"DRUG_A", "100.00", "40.00", "60.00", "60.00", "10", "600.00"},
	}, rows)

	// Empty tables still carry a header.
	high := readCSV(t, paths[2])
	assert.Len(t, high, 1)
}

func TestWriteCSV_RecordsNullsAreEmpty(t *testing.T) {
	w := NewWriter(t.TempDir())
	paths, err := w.WriteCSV([]Table{RecordsTable(testRecords())})
	require.NoError(t, err)

	rows := readCSV(t, paths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, dataset.Columns, rows[0])
	assert.Equal(t, []string{"BRAND_X", "DRUG_A", "brand", "Pfizer", "1000.00", "", "10", "", "100.00", ""}, rows[1])
	assert.Equal(t, []string{"DRUG_A", "DRUG_A", "generic", "", "", "", "", "", "", ""}, rows[2])
}

func TestWriteCSV_RoundsMoney(t *testing.T) {
	w := NewWriter(t.TempDir())
	report := testReport()
	paths, err := w.WriteCSV([]Table{
		CategorySummaryTable(report.CategorySummary),
		ManufacturersTable(report.Manufacturers),
	})
	require.NoError(t, err)

	summary := readCSV(t, paths[0])
	assert.Equal(t, "1000.01", summary[1][3])
	assert.Equal(t, "", summary[2][3])

	mfr := readCSV(t, paths[1])
	assert.Equal(t, "33.33", mfr[1][3])
}

func TestWriteCSV_SubCentUnitCost(t *testing.T) {
	records := []dataset.Record{
		{BrandName: "X", GenericName: "X", Category: dataset.CategoryGeneric, AvgSpendPerUnit: dataset.Float(0.0034)},
		{BrandName: "Y", GenericName: "Y", Category: dataset.CategoryGeneric, AvgSpendPerUnit: dataset.Float(0.123456789)},
	}
	summary := []analysis.CategoryStats{
		{Category: dataset.CategoryGeneric, Count: 2, PercentOfTotal: 100, AvgSpendPerUnit: dataset.Float(0.0006)},
	}

	w := NewWriter(t.TempDir())
	paths, err := w.WriteCSV([]Table{RecordsTable(records), CategorySummaryTable(summary)})
	require.NoError(t, err)

	rows := readCSV(t, paths[0])
	require.Len(t, rows, 3)
	assert.Equal(t, "0.0034", rows[1][9])
	assert.Equal(t, "0.123457", rows[2][9])

	cats := readCSV(t, paths[1])
	require.Len(t, cats, 2)
	assert.Equal(t, "0.0006", cats[1][7])
}

func TestRollupTable_NullPercent(t *testing.T) {
	tbl := RollupTable(analysis.Rollup{})
	require.Len(t, tbl.Rows, 1)
	assert.Nil(t, tbl.Rows[0][5])
	assert.Equal(t, "0.00", csvCell(tbl.Rows[0][4]))
}

func TestTables_NilReport(t *testing.T) {
	tables := Tables(testRecords(), nil)
	require.Len(t, tables, 1)
	assert.Equal(t, TableRecords, tables[0].Name)
}

func TestCSVCell(t *testing.T) {
	assert.Equal(t, "", csvCell(nil))
	assert.Equal(t, "abc", csvCell("abc"))
	assert.Equal(t, "42", csvCell(42))
	assert.Equal(t, "1234.5", csvCell(1234.5))
	assert.Equal(t, "1500000", csvCell(1.5e6))
	assert.Equal(t, "2.50", csvCell(decimal.NewFromFloat(2.5)))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.xlsx")
	w := NewWriter(filepath.Dir(path))

	run := RunInfo{
		RunID:      "3f0c7a52-6f9e-4e39-9b64-0d6f0a1f6f11",
		StartedAt:  time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC),
		Source:     "https://example.test/data",
		Year:       2022,
		RawRows:    3,
		Records:    2,
		Dropped:    1,
		StopReason: "short_page",
	}
	require.NoError(t, w.WriteXLSX(path, Tables(testRecords(), testReport()), run))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{
		"Records", "Savings Ranking", "High Impact", "Category Summary", "Manufacturers", "Rollup", "Run",
	}, f.GetSheetList())

	ranking, err := f.GetRows("Savings Ranking")
	require.NoError(t, err)
	require.Len(t, ranking, 2)
	assert.Equal(t, "generic_name", ranking[0][0])
	assert.Equal(t, "DRUG_A", ranking[1][0])
	assert.Equal(t, "600", ranking[1][6])

	width, err := f.GetColWidth("Savings Ranking", "G")
	require.NoError(t, err)
	assert.Equal(t, float64(colWidth), width)

	runRows, err := f.GetRows("Run")
	require.NoError(t, err)
	assert.Equal(t, []string{"run_id", run.RunID}, runRows[1])
	assert.Equal(t, []string{"started_at", "2024-05-01T12:00:00Z"}, runRows[2])
	assert.Equal(t, []string{"stop_reason", "short_page"}, runRows[8])
}

func TestWriteXLSX_NoTables(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "empty.xlsx")
	require.NoError(t, NewWriter("").WriteXLSX(path, nil, RunInfo{RunID: "x"}))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, []string{"Run"}, f.GetSheetList())
}

func TestWriteSheet_MissingSheet(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()

	err := writeSheet(f, "Missing", []string{"generic_name"}, [][]any{{"DRUG_A"}}, 0)
	assert.Error(t, err)
}
