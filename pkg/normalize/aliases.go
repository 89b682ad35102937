package normalize

import (
	"strconv"

	"github.com/Sternrassler/partd-savings/pkg/dataset"
)

// DefaultYear is the data year whose suffixed CMS columns are preferred.
const DefaultYear = 2022

// Aliases returns, per canonical column, the source keys that may carry
// it in lookup order. The year-suffixed CMS spellings come first, followed
// by unsuffixed, snake_case and title-case variants.
func Aliases(year int) map[string][]string {
	y := "_" + strconv.Itoa(year)
	return map[string][]string{
		dataset.ColBrandName: {
			"Brnd_Name", "brnd_name", "brand_name", "Brand Name", "BrandName", "brand",
		},
		dataset.ColGenericName: {
			"Gnrc_Name", "gnrc_name", "generic_name", "Generic Name", "GenericName", "generic",
		},
		dataset.ColManufacturer: {
			"Mftr_Name", "mftr_name", "manufacturer", "manufacturer_name", "Manufacturer", "Manufacturer Name",
		},
		dataset.ColTotalSpending: {
			"Tot_Spndng" + y, "Tot_Spndng", "tot_spndng", "total_spending", "Total Spending",
		},
		dataset.ColTotalDosageUnits: {
			"Tot_Dsg_Unts" + y, "Tot_Dsg_Unts", "tot_dsg_unts", "total_dosage_units", "Total Dosage Units",
		},
		dataset.ColTotalClaims: {
			"Tot_Clms" + y, "Tot_Clms", "tot_clms", "total_claims", "Total Claims",
		},
		dataset.ColTotalBeneficiaries: {
			"Tot_Benes" + y, "Tot_Benes", "tot_benes", "total_beneficiaries", "Total Beneficiaries",
		},
		dataset.ColAvgSpendPerClaim: {
			"Avg_Spnd_Per_Clm" + y, "Avg_Spnd_Per_Clm", "avg_spnd_per_clm", "avg_spend_per_claim",
			"Average Spending Per Claim",
		},
		dataset.ColAvgSpendPerUnit: {
			"Avg_Spnd_Per_Dsg_Unt_Wghtd" + y, "Avg_Spnd_Per_Dsg_Unt_Wghtd", "Avg_Spnd_Per_Dsg_Unt",
			"avg_spnd_per_dsg_unt_wghtd", "avg_spend_per_unit", "Average Spending Per Dosage Unit (Weighted)",
		},
	}
}

// lookup returns the value and key of the first alias present in raw.
func lookup(raw dataset.RawRecord, aliases []string) (any, string, bool) {
	for _, key := range aliases {
		if v, ok := raw[key]; ok {
			return v, key, true
		}
	}
	return nil, "", false
}
