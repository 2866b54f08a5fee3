package models

import (
	"math"
	"testing"
	"time"
)

func TestNormalizedShapeAndClamp(t *testing.T) {
	fv := &FeatureVector{
		EventFrequency:   5000, // above cap
		EventCountZScore: -3,   // negative clamps to 0
		PayloadVariance:  math.NaN(),
		BlacklistScore:   90,
	}
	v := fv.Normalized()
	if len(v) != FeatureCount {
		t.Fatalf("expected %d entries, got %d", FeatureCount, len(v))
	}
	for i, x := range v {
		if x < 0 || x > 1 || math.IsNaN(x) {
			t.Fatalf("entry %d outside [0,1]: %v", i, x)
		}
	}
	if v[IdxEventFrequency] != 1 {
		t.Fatalf("expected frequency capped at 1, got %v", v[IdxEventFrequency])
	}
	if v[IdxEventCountZScore] != 0 {
		t.Fatalf("expected negative zscore clamped to 0, got %v", v[IdxEventCountZScore])
	}
	if v[IdxBlacklistScore] != 0.9 {
		t.Fatalf("expected 0.9, got %v", v[IdxBlacklistScore])
	}
}

func TestNormalizedInterArrival(t *testing.T) {
	fv := &FeatureVector{EventFrequency: 10, TimeBetweenEvents: 1}
	if got := fv.Normalized()[IdxTimeBetweenEvents]; got != 0.5 {
		t.Fatalf("expected 0.5 for 1s gaps, got %v", got)
	}
	fv = &FeatureVector{EventFrequency: 10, TimeBetweenEvents: 0}
	if got := fv.Normalized()[IdxTimeBetweenEvents]; got != 1 {
		t.Fatalf("expected 1 for zero gap, got %v", got)
	}

	// A single event has no inter-arrival gap; it must not read as rapid
	// succession.
	fv = &FeatureVector{EventFrequency: 1, TimeBetweenEvents: 0}
	if got := fv.Normalized()[IdxTimeBetweenEvents]; got != 0 {
		t.Fatalf("expected 0 for single-event history, got %v", got)
	}
	fv = &FeatureVector{}
	if got := fv.Normalized()[IdxTimeBetweenEvents]; got != 0 {
		t.Fatalf("expected 0 for empty history, got %v", got)
	}
}

func TestIndicatorIDAndMerge(t *testing.T) {
	if IndicatorID(IndicatorIP, "1.2.3.4") != "ip:1.2.3.4" {
		t.Fatalf("unexpected id: %s", IndicatorID(IndicatorIP, "1.2.3.4"))
	}

	ref := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	ind := NewIndicator(IndicatorIP, "1.2.3.4", "a", 2, ref)
	if ind.Confidence != 1 {
		t.Fatalf("expected confidence clamped to 1, got %v", ind.Confidence)
	}

	other := NewIndicator(IndicatorIP, "1.2.3.4", "b", 0.5, ref.Add(-time.Hour))
	other.Metadata["reputation"] = "20"
	ind.Merge(other)
	if ind.Confidence != 1 {
		t.Fatalf("merge lowered confidence: %v", ind.Confidence)
	}
	if ind.Source != "b" {
		t.Fatalf("expected source updated, got %s", ind.Source)
	}
	if ind.Metadata["reputation"] != "20" {
		t.Fatalf("expected metadata merged: %v", ind.Metadata)
	}
	ind.Merge(nil)
}

func TestParseIndicatorType(t *testing.T) {
	if ParseIndicatorType("domain") != IndicatorDomain {
		t.Fatalf("expected domain")
	}
	if ParseIndicatorType("weird") != IndicatorUnknown {
		t.Fatalf("expected unknown fallback")
	}
}
