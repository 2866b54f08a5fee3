// Package ml combines an anomaly estimator and a classifier ensemble over
// the normalized feature vector. Both are fixed, auditable threshold
// models; a trained model may replace either without changing the
// input/output contract.
package ml

import (
	"fmt"
	"math"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// Result carries the combined ML score and the per-estimator detail.
type Result struct {
	Score          int      `json:"score"`
	AnomalyScore   float64  `json:"anomaly_score"`
	IsAnomaly      bool     `json:"is_anomaly"`
	Probability    float64  `json:"probability"`
	Malicious      bool     `json:"malicious"`
	AnomalySignals []string `json:"anomaly_signals,omitempty"`
	TriggeredTrees []string `json:"triggered_trees,omitempty"`
}

// Scorer evaluates both estimators. Immutable after construction, safe
// for concurrent use.
type Scorer struct {
	signals []anomalySignal
	trees   []treeRule
}

// NewScorer creates a scorer with the default signal and tree tables.
func NewScorer() *Scorer {
	return &Scorer{
		signals: defaultAnomalySignals(),
		trees:   defaultTrees(),
	}
}

// Score evaluates the normalized feature vector. The vector is
// order-sensitive and must have exactly models.FeatureCount entries.
func (s *Scorer) Score(normalized []float64) (Result, error) {
	if len(normalized) != models.FeatureCount {
		return Result{}, fmt.Errorf("ml score: want %d features, got %d", models.FeatureCount, len(normalized))
	}

	anomaly, signals := anomalyScore(s.signals, normalized)
	prob, trees := classify(s.trees, normalized)

	combined := int(math.Round(100 * (0.6*prob + 0.4*anomaly)))
	return Result{
		Score:          combined,
		AnomalyScore:   anomaly,
		IsAnomaly:      anomaly > anomalyThreshold,
		Probability:    prob,
		Malicious:      prob > maliciousThreshold,
		AnomalySignals: signals,
		TriggeredTrees: trees,
	}, nil
}
