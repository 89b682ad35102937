// Package dataset defines the raw and canonical record types shared by the
// fetch, normalization and analysis stages.
package dataset

// RawRecord is one row as returned by the source API. Keys and value types
// are whatever the source sent; JSON numbers arrive as json.Number.
type RawRecord map[string]any

// Category classifies a canonical record as brand or generic.
type Category string

const (
	// CategoryBrand is a record whose brand name differs from its generic name.
	CategoryBrand Category = "brand"

	// CategoryGeneric is a record whose brand name equals its generic name.
	CategoryGeneric Category = "generic"
)

// Valid reports whether c is one of the two known categories.
func (c Category) Valid() bool {
	return c == CategoryBrand || c == CategoryGeneric
}

// Canonical column names. These are the field names used by the
// analytical store and by every export.
const (
	ColBrandName          = "brand_name"
	ColGenericName        = "generic_name"
	ColCategory           = "category"
	ColManufacturer       = "manufacturer"
	ColTotalSpending      = "total_spending"
	ColTotalDosageUnits   = "total_dosage_units"
	ColTotalClaims        = "total_claims"
	ColTotalBeneficiaries = "total_beneficiaries"
	ColAvgSpendPerClaim   = "avg_spend_per_claim"
	ColAvgSpendPerUnit    = "avg_spend_per_unit"
)

// Record is the canonical, normalized form of a source row.
// Metric pointers are nil when the source value was missing or unparsable.
type Record struct {
	// BrandName is the trimmed display name of the product.
	BrandName string `json:"brand_name"`

	// GenericName is the trimmed, upper-cased pairing key.
	GenericName string `json:"generic_name"`

	Category Category `json:"category"`

	// Manufacturer is empty when the source did not carry one.
	Manufacturer string `json:"manufacturer,omitempty"`

	TotalSpending      *float64 `json:"total_spending"`
	TotalDosageUnits   *float64 `json:"total_dosage_units"`
	TotalClaims        *float64 `json:"total_claims"`
	TotalBeneficiaries *float64 `json:"total_beneficiaries"`
	AvgSpendPerClaim   *float64 `json:"avg_spend_per_claim"`
	AvgSpendPerUnit    *float64 `json:"avg_spend_per_unit"`
}

// Metric returns the metric stored under a canonical column name.
// Unknown names return nil.
func (r *Record) Metric(col string) *float64 {
	switch col {
	case ColTotalSpending:
		return r.TotalSpending
	case ColTotalDosageUnits:
		return r.TotalDosageUnits
	case ColTotalClaims:
		return r.TotalClaims
	case ColTotalBeneficiaries:
		return r.TotalBeneficiaries
	case ColAvgSpendPerClaim:
		return r.AvgSpendPerClaim
	case ColAvgSpendPerUnit:
		return r.AvgSpendPerUnit
	default:
		return nil
	}
}

// SetMetric stores v under a canonical column name. Unknown names are ignored.
func (r *Record) SetMetric(col string, v *float64) {
	switch col {
	case ColTotalSpending:
		r.TotalSpending = v
	case ColTotalDosageUnits:
		r.TotalDosageUnits = v
	case ColTotalClaims:
		r.TotalClaims = v
	case ColTotalBeneficiaries:
		r.TotalBeneficiaries = v
	case ColAvgSpendPerClaim:
		r.AvgSpendPerClaim = v
	case ColAvgSpendPerUnit:
		r.AvgSpendPerUnit = v
	}
}

// MetricColumns lists the numeric canonical columns in export order.
var MetricColumns = []string{
	ColTotalSpending,
	ColTotalDosageUnits,
	ColTotalClaims,
	ColTotalBeneficiaries,
	ColAvgSpendPerClaim,
	ColAvgSpendPerUnit,
}

// Columns lists every canonical column in export order.
var Columns = append([]string{
	ColBrandName,
	ColGenericName,
	ColCategory,
	ColManufacturer,
}, MetricColumns...)

// Float returns a pointer to v. It keeps test fixtures and literals short.
func Float(v float64) *float64 {
	return &v
}
