package rules

import "math"

// Rating folds the results into a 0-100 score:
//
//	max(0, 100 - sum(weight(rule) * severity multiplier))
//
// rounded to one decimal. weights maps rule codes to weights; codes that
// are missing count with weight 1.0. No results yield 100.
func Rating(results []RuleResult, weights map[string]float64) float64 {
	var penalty float64
	for _, res := range results {
		w, ok := weights[res.RuleCode]
		if !ok {
			w = 1.0
		}
		for _, e := range res.Errors {
			penalty += w * e.Severity.Multiplier()
		}
	}
	rating := math.Max(0, 100-penalty)
	return math.Round(rating*10) / 10
}

// SeverityCounts tallies errors per severity.
func SeverityCounts(results []RuleResult) map[Severity]int {
	out := map[Severity]int{SeverityError: 0, SeverityWarning: 0, SeverityInfo: 0}
	for _, res := range results {
		for _, e := range res.Errors {
			out[e.Severity]++
		}
	}
	return out
}
