// Package score implements the Score Statistic (SPEC_FULL §4.5): a linear
// regression over the ranked catches curve, used as a confidence estimate
// for the top match. The least-squares fit itself is delegated to
// github.com/montanaflynn/stats instead of hand-rolled summation.
package score

import (
	"math"

	"github.com/montanaflynn/stats"

	"audiosearch/internal/models"
)

// ZeroFitBehavior controls what happens when a fitted value ŷᵢ is exactly
// zero, which only arises from a pathological/degenerate catches curve.
type ZeroFitBehavior int

const (
	// ZeroFitClamp (default) treats rᵢ as 0 when ŷᵢ == 0, keeping
	// maxDelta/sqAvgDelta finite and safe to serialize as JSON.
	ZeroFitClamp ZeroFitBehavior = iota
	// ZeroFitSkip drops the term from both the max and the sum-of-squares
	// entirely, as if that rank didn't exist.
	ZeroFitSkip
	// ZeroFitPropagate lets Inf/NaN through untouched, for callers that
	// want to observe the degeneracy directly.
	ZeroFitPropagate
)

// Config tunes Estimate's handling of degenerate regressions.
type Config struct {
	ZeroFitBehavior ZeroFitBehavior
}

// DefaultConfig is ZeroFitClamp, matching SPEC_FULL §4.5/§9's documented
// resolution.
func DefaultConfig() Config {
	return Config{ZeroFitBehavior: ZeroFitClamp}
}

// Estimate fits a line to y[i].Catches over i in [0, n) and returns
// maxDelta = max(rᵢ) and sqAvgDelta = sqrt(Σrᵢ² / n), where rᵢ = yᵢ / ŷᵢ.
// Returns (0, 0) for an empty input, per the Regression degeneracy law.
func Estimate(y []models.LutResult, cfg Config) (maxDelta, sqAvgDelta float64) {
	n := len(y)
	if n == 0 {
		return 0, 0
	}

	series := make(stats.Series, n)
	for i, r := range y {
		series[i] = stats.Coordinate{X: float64(i), Y: float64(r.Catches)}
	}

	fitted, err := stats.LinearRegression(series)
	if err != nil || len(fitted) != n {
		return 0, 0
	}

	var sumSquares float64
	var count int
	for i, r := range y {
		yc := fitted[i].Y
		ratio := float64(r.Catches) / yc

		if yc == 0 {
			switch cfg.ZeroFitBehavior {
			case ZeroFitSkip:
				continue
			case ZeroFitPropagate:
				// fall through with whatever float64 division produced
				// (Inf, -Inf, or NaN for 0/0).
			default:
				ratio = 0
			}
		}

		if ratio > maxDelta {
			maxDelta = ratio
		}
		sumSquares += ratio * ratio
		count++
	}

	if count == 0 {
		return maxDelta, 0
	}

	return maxDelta, math.Sqrt(sumSquares / float64(count))
}
