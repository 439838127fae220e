// Package oracle talks to the external scoring/generation service. The
// service is treated as a black box that is not trusted: scores outside
// [0,100] are clamped and malformed replies are salvaged where possible.
package oracle

import (
	"context"

	"applypilot-engine/internal/domain"
)

// Scorer scores a listing against a resume profile and, for qualifying
// jobs, generates the outbound message text.
type Scorer interface {
	Score(ctx context.Context, listing domain.Listing, policy domain.Policy) (domain.ScoringResult, error)
}

// Clamp defends against an unreliable external scorer.
func Clamp(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
