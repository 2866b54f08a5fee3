package ml

import (
	"testing"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

func neutralVector() []float64 {
	return make([]float64, models.FeatureCount)
}

func TestScoreRejectsWrongLength(t *testing.T) {
	s := NewScorer()
	if _, err := s.Score(make([]float64, 3)); err == nil {
		t.Fatalf("expected error for short vector")
	}
	if _, err := s.Score(make([]float64, models.FeatureCount+1)); err == nil {
		t.Fatalf("expected error for long vector")
	}
}

func TestScoreNeutralVector(t *testing.T) {
	s := NewScorer()
	res, err := s.Score(neutralVector())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Score != 0 {
		t.Fatalf("expected 0, got %d", res.Score)
	}
	if res.IsAnomaly || res.Malicious {
		t.Fatalf("neutral vector flagged: anomaly=%v malicious=%v", res.IsAnomaly, res.Malicious)
	}
}

func TestScoreDenylistedEntity(t *testing.T) {
	s := NewScorer()
	v := neutralVector()
	v[models.IdxBlacklistScore] = 1

	res, err := s.Score(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !res.Malicious {
		t.Fatalf("expected malicious verdict")
	}
	// denylisted_entity alone: prob 0.95, anomaly 0.15.
	if res.Score != 63 {
		t.Fatalf("expected 63, got %d", res.Score)
	}
	if len(res.TriggeredTrees) != 1 || res.TriggeredTrees[0] != "denylisted_entity" {
		t.Fatalf("unexpected trees: %v", res.TriggeredTrees)
	}
}

func TestScoreBruteForceShape(t *testing.T) {
	s := NewScorer()
	v := neutralVector()
	v[models.IdxEventFrequency] = 0.25
	v[models.IdxTimeBetweenEvents] = 0.5
	v[models.IdxEventCountZScore] = 1

	res, err := s.Score(v)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	// count_anomaly and rapid_fire: prob (0.85+0.75)/2 = 0.8.
	// Signals: high_event_frequency, rapid_interarrival, event_count_zscore
	// sum to 0.45.
	if res.Score != 66 {
		t.Fatalf("expected 66, got %d", res.Score)
	}
	if !res.Malicious {
		t.Fatalf("expected malicious verdict")
	}
	if res.IsAnomaly {
		t.Fatalf("anomaly score %v should stay under the flag cutoff", res.AnomalyScore)
	}
}

func TestAnomalyScoreClamped(t *testing.T) {
	v := neutralVector()
	for i := range v {
		v[i] = 1
	}
	score, fired := anomalyScore(defaultAnomalySignals(), v)
	if score > 1 {
		t.Fatalf("anomaly score exceeds 1: %v", score)
	}
	if len(fired) == 0 {
		t.Fatalf("expected signals to fire on a saturated vector")
	}
}

func TestClassifyStrictThresholds(t *testing.T) {
	v := neutralVector()
	// Exactly at the threshold must not trigger.
	v[models.IdxBlacklistScore] = 0.8
	prob, fired := classify(defaultTrees(), v)
	if prob != 0 || fired != nil {
		t.Fatalf("boundary value triggered a tree: prob=%v fired=%v", prob, fired)
	}
}
