package rules

import (
	"errors"
	"fmt"
	"testing"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

func alwaysMatch(fv *models.FeatureVector, events []*models.Event) (bool, error) {
	return true, nil
}

func neverMatch(fv *models.FeatureVector, events []*models.Event) (bool, error) {
	return false, nil
}

func TestRegisterRejectsDuplicates(t *testing.T) {
	e := NewEngine()
	if err := e.Register(Rule{ID: "r1", Points: 10, Match: alwaysMatch}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	err := e.Register(Rule{ID: "r1", Points: 20, Match: alwaysMatch})
	if !errors.Is(err, ErrDuplicateRule) {
		t.Fatalf("expected ErrDuplicateRule, got %v", err)
	}
}

func TestRegisterRejectsNilPredicate(t *testing.T) {
	e := NewEngine()
	if err := e.Register(Rule{ID: "r1", Points: 10}); err == nil {
		t.Fatalf("expected error for nil predicate")
	}
	if err := e.Register(Rule{Points: 10, Match: alwaysMatch}); err == nil {
		t.Fatalf("expected error for empty id")
	}
}

func TestUnregister(t *testing.T) {
	e := NewEngine()
	if err := e.Register(Rule{ID: "r1", Points: 10, Match: alwaysMatch}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Unregister("r1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Unregister("r1"); !errors.Is(err, ErrRuleNotFound) {
		t.Fatalf("expected ErrRuleNotFound, got %v", err)
	}
	if len(e.Rules()) != 0 {
		t.Fatalf("expected empty registry")
	}
}

func TestEvaluateClampsAndOrders(t *testing.T) {
	e := NewEngine()
	for i, pts := range []int{50, 50, 50} {
		if err := e.Register(Rule{ID: fmt.Sprintf("r%d", i), Points: pts, Match: alwaysMatch}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if err := e.Register(Rule{ID: "quiet", Points: 99, Match: neverMatch}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := e.Evaluate(&models.FeatureVector{}, nil)
	if res.Score != 100 {
		t.Fatalf("expected clamp at 100, got %d", res.Score)
	}
	if len(res.Triggered) != 3 {
		t.Fatalf("expected 3 triggered rules, got %d", len(res.Triggered))
	}
	for i, m := range res.Triggered {
		if m.ID != fmt.Sprintf("r%d", i) {
			t.Fatalf("triggered rules out of registration order: %v", res.Triggered)
		}
	}
}

func TestEvaluateIsDeterministic(t *testing.T) {
	e := NewDefaultEngine()
	fv := &models.FeatureVector{UniquePorts: 25, PortScanEntropy: 4}

	first := e.Evaluate(fv, nil)
	for i := 0; i < 10; i++ {
		again := e.Evaluate(fv, nil)
		if again.Score != first.Score || len(again.Triggered) != len(first.Triggered) {
			t.Fatalf("evaluation not deterministic: %v vs %v", first, again)
		}
	}
}

func TestEvaluateSurvivesFailingPredicates(t *testing.T) {
	e := NewEngine()
	if err := e.Register(Rule{ID: "broken", Points: 50, Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
		return false, errors.New("boom")
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Register(Rule{ID: "panics", Points: 50, Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
		panic("boom")
	}}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := e.Register(Rule{ID: "fine", Points: 30, Match: alwaysMatch}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	res := e.Evaluate(&models.FeatureVector{}, nil)
	if res.Score != 30 {
		t.Fatalf("expected 30, got %d", res.Score)
	}
	if len(res.Triggered) != 1 || res.Triggered[0].ID != "fine" {
		t.Fatalf("unexpected triggered set: %v", res.Triggered)
	}
}

func TestBruteForceRule(t *testing.T) {
	e := NewDefaultEngine()

	var events []*models.Event
	for i := 0; i < 4; i++ {
		events = append(events, &models.Event{Type: models.EventFailedLogin, Port: 22, Frequency: 50})
	}
	res := e.Evaluate(&models.FeatureVector{}, events)
	if !triggered(res, "brute_force_ssh") {
		t.Fatalf("expected brute_force_ssh to trigger: %v", res.Triggered)
	}

	// Same volume on another port stays quiet.
	events = nil
	for i := 0; i < 4; i++ {
		events = append(events, &models.Event{Type: models.EventFailedLogin, Port: 3389, Frequency: 50})
	}
	res = e.Evaluate(&models.FeatureVector{}, events)
	if triggered(res, "brute_force_ssh") {
		t.Fatalf("brute_force_ssh should not trigger off port 22")
	}
}

func TestMalwareAndScanningRules(t *testing.T) {
	e := NewDefaultEngine()

	res := e.Evaluate(&models.FeatureVector{}, []*models.Event{{Type: models.EventMalwareDetected}})
	if !triggered(res, "malware_detection") {
		t.Fatalf("expected malware_detection to trigger")
	}

	var scans []*models.Event
	for i := 0; i < 11; i++ {
		scans = append(scans, &models.Event{Type: models.EventPortScan})
	}
	res = e.Evaluate(&models.FeatureVector{}, scans)
	if !triggered(res, "scanning_activity") {
		t.Fatalf("expected scanning_activity to trigger")
	}
}

func TestDenylistRule(t *testing.T) {
	e := NewDefaultEngine()
	res := e.Evaluate(&models.FeatureVector{BlacklistScore: 90}, nil)
	if !triggered(res, "blacklist_match") {
		t.Fatalf("expected blacklist_match to trigger")
	}
	res = e.Evaluate(&models.FeatureVector{BlacklistScore: 50}, nil)
	if triggered(res, "blacklist_match") {
		t.Fatalf("blacklist_match should require a score above 50")
	}
}

func triggered(res Result, id string) bool {
	for _, m := range res.Triggered {
		if m.ID == id {
			return true
		}
	}
	return false
}
