package analysis

// pairsCTE pairs brand and generic rows per generic name. A pair is
// complete when both categories are present; per category the largest
// value of each metric represents the side.
const pairsCTE = `
pairs AS (
	SELECT
		generic_name,
		MAX(CASE WHEN category = 'brand'   THEN avg_spend_per_claim END) AS brand_avg_cost,
		MAX(CASE WHEN category = 'generic' THEN avg_spend_per_claim END) AS generic_avg_cost,
		MAX(CASE WHEN category = 'brand'   THEN total_claims END)        AS brand_claims
	FROM drugs
	GROUP BY generic_name
	HAVING COUNT(DISTINCT category) = 2
),
savings AS (
	SELECT
		generic_name,
		brand_avg_cost,
		generic_avg_cost,
		brand_avg_cost - generic_avg_cost                            AS cost_difference,
		100.0 * (brand_avg_cost - generic_avg_cost) / brand_avg_cost AS percent_savings,
		brand_claims,
		brand_claims * (brand_avg_cost - generic_avg_cost)           AS potential_savings
	FROM pairs
	WHERE brand_avg_cost IS NOT NULL
	  AND generic_avg_cost IS NOT NULL
	  AND brand_claims IS NOT NULL
	  AND brand_avg_cost > 0
	  AND generic_avg_cost > 0
	  AND brand_avg_cost - generic_avg_cost > 0
)`

const categorySummaryQuery = `
SELECT
	category,
	COUNT(*)                                          AS drug_count,
	100.0 * COUNT(*) / (SELECT COUNT(*) FROM drugs)   AS percent_of_total,
	SUM(total_spending)                               AS total_spending,
	SUM(total_claims)                                 AS total_claims,
	SUM(total_beneficiaries)                          AS total_beneficiaries,
	AVG(avg_spend_per_claim)                          AS avg_spend_per_claim,
	AVG(avg_spend_per_unit)                           AS avg_spend_per_unit
FROM drugs
GROUP BY category
ORDER BY SUM(total_spending) DESC, category ASC`

const savingsRankingQuery = `
WITH ` + pairsCTE + `
SELECT generic_name, brand_avg_cost, generic_avg_cost, cost_difference,
	percent_savings, brand_claims, potential_savings
FROM savings
ORDER BY potential_savings DESC, generic_name ASC
LIMIT ?`

const highImpactQuery = `
WITH ` + pairsCTE + `
SELECT generic_name, brand_avg_cost, generic_avg_cost, cost_difference,
	percent_savings, brand_claims, potential_savings
FROM savings
WHERE brand_claims > ?
  AND cost_difference > ?
ORDER BY potential_savings DESC, generic_name ASC
LIMIT ?`

const rollupQuery = `
WITH ` + pairsCTE + `
SELECT
	COUNT(*),
	COALESCE(SUM(brand_claims), 0),
	COALESCE(SUM(brand_claims * brand_avg_cost), 0),
	COALESCE(SUM(brand_claims * generic_avg_cost), 0),
	COALESCE(SUM(potential_savings), 0)
FROM savings`

const manufacturerQuery = `
SELECT
	manufacturer,
	category,
	COUNT(*)                 AS drug_count,
	AVG(avg_spend_per_claim) AS avg_spend_per_claim,
	SUM(total_spending)      AS total_spending,
	SUM(total_claims)        AS total_claims
FROM drugs
WHERE manufacturer IS NOT NULL AND manufacturer <> ''
GROUP BY manufacturer, category
HAVING COUNT(*) >= ?
ORDER BY SUM(total_spending) DESC, manufacturer ASC, category ASC`
