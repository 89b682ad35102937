package export

import (
	"github.com/shopspring/decimal"

	"github.com/Sternrassler/partd-savings/pkg/analysis"
	"github.com/Sternrassler/partd-savings/pkg/dataset"
)

// Table names. Each is the CSV file stem.
const (
	TableRecords         = "records"
	TableSavingsRanking  = "savings_ranking"
	TableHighImpact      = "high_impact"
	TableCategorySummary = "category_summary"
	TableManufacturers   = "manufacturers"
	TableRollup          = "rollup"
)

// Table is one result table ready to be written. Cells are nil, string,
// int, float64 or decimal.Decimal; nil is written as an empty cell.
type Table struct {
	Name    string
	Title   string
	Columns []string
	Rows    [][]any
}

// moneyPlaces is the rounding applied to monetary and percentage columns.
const moneyPlaces = 2

func money(v float64) decimal.Decimal {
	return decimal.NewFromFloat(v).Round(moneyPlaces)
}

func moneyPtr(v *float64) any {
	if v == nil {
		return nil
	}
	return money(*v)
}

// unitPlaces is the rounding applied to per-dosage-unit costs, which are
// often fractions of a cent.
const unitPlaces = 6

func unitCost(v *float64) any {
	if v == nil {
		return nil
	}
	return decimal.NewFromFloat(*v).Round(unitPlaces).InexactFloat64()
}

func number(v *float64) any {
	if v == nil {
		return nil
	}
	return *v
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// RecordsTable renders the canonical table.
func RecordsTable(records []dataset.Record) Table {
	t := Table{Name: TableRecords, Title: "Records", Columns: dataset.Columns}
	for _, r := range records {
		t.Rows = append(t.Rows, []any{
			r.BrandName,
			r.GenericName,
			string(r.Category),
			optString(r.Manufacturer),
			moneyPtr(r.TotalSpending),
			number(r.TotalDosageUnits),
			number(r.TotalClaims),
			number(r.TotalBeneficiaries),
			moneyPtr(r.AvgSpendPerClaim),
			unitCost(r.AvgSpendPerUnit),
		})
	}
	return t
}

var savingsColumns = []string{
	"generic_name",
	"brand_avg_cost",
	"generic_avg_cost",
	"cost_difference",
	"percent_savings",
	"brand_claims",
	"potential_savings",
}

func savingsTable(name, title string, records []analysis.SavingsRecord) Table {
	t := Table{Name: name, Title: title, Columns: savingsColumns}
	for _, s := range records {
		t.Rows = append(t.Rows, []any{
			s.GenericName,
			money(s.BrandAvgCost),
			money(s.GenericAvgCost),
			money(s.CostDifference),
			money(s.PercentSavings),
			s.BrandClaims,
			money(s.PotentialSavings),
		})
	}
	return t
}

// CategorySummaryTable renders query 1.
func CategorySummaryTable(stats []analysis.CategoryStats) Table {
	t := Table{
		Name:  TableCategorySummary,
		Title: "Category Summary",
		Columns: []string{
			"category", "drug_count", "percent_of_total", "total_spending", "total_claims",
			"total_beneficiaries", "avg_spend_per_claim", "avg_spend_per_unit",
		},
	}
	for _, s := range stats {
		t.Rows = append(t.Rows, []any{
			string(s.Category),
			s.Count,
			money(s.PercentOfTotal),
			moneyPtr(s.TotalSpending),
			number(s.TotalClaims),
			number(s.TotalBeneficiaries),
			moneyPtr(s.AvgSpendPerClaim),
			unitCost(s.AvgSpendPerUnit),
		})
	}
	return t
}

// RollupTable renders the roll-up as a single row.
func RollupTable(r analysis.Rollup) Table {
	return Table{
		Name:  TableRollup,
		Title: "Rollup",
		Columns: []string{
			"pairs", "brand_claims", "current_spending", "generic_spending",
			"potential_savings", "percent_savings",
		},
		Rows: [][]any{{
			r.Pairs,
			r.BrandClaims,
			money(r.CurrentSpending),
			money(r.GenericSpending),
			money(r.PotentialSavings),
			moneyPtr(r.PercentSavings),
		}},
	}
}

// ManufacturersTable renders the manufacturer breakdown.
func ManufacturersTable(stats []analysis.ManufacturerStats) Table {
	t := Table{
		Name:  TableManufacturers,
		Title: "Manufacturers",
		Columns: []string{
			"manufacturer", "category", "drug_count", "avg_spend_per_claim",
			"total_spending", "total_claims",
		},
	}
	for _, m := range stats {
		t.Rows = append(t.Rows, []any{
			m.Manufacturer,
			string(m.Category),
			m.Count,
			moneyPtr(m.AvgSpendPerClaim),
			moneyPtr(m.TotalSpending),
			number(m.TotalClaims),
		})
	}
	return t
}

// Tables renders the canonical table and every report table in file order.
// A nil report yields only the records table.
func Tables(records []dataset.Record, report *analysis.Report) []Table {
	tables := []Table{RecordsTable(records)}
	if report == nil {
		return tables
	}
	return append(tables,
		savingsTable(TableSavingsRanking, "Savings Ranking", report.SavingsRanking),
		savingsTable(TableHighImpact, "High Impact", report.HighImpact),
		CategorySummaryTable(report.CategorySummary),
		ManufacturersTable(report.Manufacturers),
		RollupTable(report.Rollup),
	)
}
