// Package guard screens user-supplied text that ends up inside a model prompt.
package guard

import (
	"context"

	"github.com/mdombrov-33/go-promptguard/detector"
	"github.com/rs/zerolog/log"
)

// Guard wraps a prompt-injection detector.
type Guard struct {
	detect func(ctx context.Context, text string) (safe bool, risk float64)
}

// New returns a guard backed by go-promptguard's default detectors.
func New() *Guard {
	d := detector.New()
	return &Guard{detect: func(ctx context.Context, text string) (bool, float64) {
		result := d.Detect(ctx, text)
		return result.Safe, result.RiskScore
	}}
}

// Safe reports whether text may be placed in a prompt. Rejections are logged
// with the detector's risk score, never with the text itself.
func (g *Guard) Safe(ctx context.Context, text string) bool {
	safe, risk := g.detect(ctx, text)
	if !safe {
		log.Warn().Float64("risk_score", risk).Int("length", len(text)).Msg("Rejected prompt-injection attempt")
	}
	return safe
}
