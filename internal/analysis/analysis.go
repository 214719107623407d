// Package analysis provides functionalities for analyzing complaints.
// It decides how much a report counts towards a temporary ban.
package analysis

import (
	"strings"

	"liveflow/backend/internal/config"
)

// ReasonOther is used for reports without a recognised reason.
const ReasonOther = "other"

// NormalizeReason maps free-form input onto a known complaint reason.
func NormalizeReason(reason string) string {
	r := strings.ToLower(strings.TrimSpace(reason))
	if _, ok := config.ComplaintWeights[r]; ok {
		return r
	}
	return ReasonOther
}

// GetWeight returns the weight (penalty) for a given complaint reason.
// Unknown reasons weigh as "other".
func GetWeight(reason string) int {
	return config.ComplaintWeights[NormalizeReason(reason)]
}

// TotalWeight sums the weights of the given reasons.
func TotalWeight(reasons []string) int {
	total := 0
	for _, r := range reasons {
		total += GetWeight(r)
	}
	return total
}
