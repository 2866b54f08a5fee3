// Package risk blends component scores into one calibrated risk score
// and severity label.
package risk

import (
	"math"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// Component weights. The blend is linear, so raising any single component
// score never lowers the final score or downgrades severity.
const (
	weightRules = 0.40
	weightML    = 0.35
	weightGraph = 0.25
)

// Severity thresholds on the final score.
const (
	thresholdCritical = 80
	thresholdHigh     = 60
	thresholdMedium   = 35
)

// Aggregate blends the three component scores into a final [0,100] risk
// score and severity. Malformed inputs (NaN, -Inf, negative) coerce to 0;
// values above 100, +Inf included, cap at 100. Pure and deterministic.
func Aggregate(ruleScore, mlScore, graphScore float64) (int, models.Severity) {
	blend := weightRules*coerce(ruleScore) + weightML*coerce(mlScore) + weightGraph*coerce(graphScore)
	final := int(math.Round(blend))
	if final < 0 {
		final = 0
	}
	if final > 100 {
		final = 100
	}
	return final, SeverityFor(final)
}

// SeverityFor maps a final score onto its severity band.
func SeverityFor(score int) models.Severity {
	switch {
	case score >= thresholdCritical:
		return models.SeverityCritical
	case score >= thresholdHigh:
		return models.SeverityHigh
	case score >= thresholdMedium:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

func coerce(score float64) float64 {
	if math.IsNaN(score) || math.IsInf(score, -1) || score < 0 {
		return 0
	}
	// Covers +Inf as well.
	if score > 100 {
		return 100
	}
	return score
}
