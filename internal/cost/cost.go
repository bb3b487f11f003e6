// Package cost estimates spend per fingerprinting run. Rates are
// blended $/MTok figures per model since per-query input/output splits
// are not preserved in QueryResult.
package cost

import (
	"strings"

	"github.com/beacon-intel/aiviz-cli/internal/model"
)

// blendedRates maps model ID substrings to a blended dollar rate per
// million tokens. First match wins.
var blendedRates = []struct {
	substr string
	rate   float64
}{
	{"claude-haiku", 1.60},
	{"claude-sonnet", 6.00},
	{"claude-opus", 30.00},
	{"gpt-4o-mini", 0.375},
	{"gpt-4o", 6.25},
	{"sonar-pro", 9.00},
	{"sonar", 1.00},
}

// defaultRate applies to unknown models so estimates stay conservative
// rather than silently zero.
const defaultRate = 5.00

// PerResult estimates the cost of one query result in USD.
func PerResult(r model.QueryResult) float64 {
	if r.TokensUsed <= 0 {
		return 0
	}
	return float64(r.TokensUsed) / 1e6 * rateFor(r.Model)
}

// Fingerprint estimates the total cost of a batch of query results.
func Fingerprint(results []model.QueryResult) float64 {
	var total float64
	for _, r := range results {
		total += PerResult(r)
	}
	return total
}

func rateFor(modelID string) float64 {
	m := strings.ToLower(modelID)
	for _, br := range blendedRates {
		if strings.Contains(m, br.substr) {
			return br.rate
		}
	}
	return defaultRate
}
