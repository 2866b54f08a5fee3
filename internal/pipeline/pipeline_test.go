package pipeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/features"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/graph"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/ml"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/rules"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/transform/canonical"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

func newTestPipeline(store storage.Store) *Pipeline {
	extractor := features.NewExtractor(store, store, features.Config{})
	graphEngine := graph.NewEngine(store, graph.Config{})
	return New(nil, store, extractor, rules.NewDefaultEngine(), ml.NewScorer(), graphEngine, nil, nil, Config{})
}

func TestProcessBruteForceScenario(t *testing.T) {
	store := storage.NewMemoryStore(0)
	p := newTestPipeline(store)
	ctx := context.Background()

	base := time.Now().UTC().Add(-10 * time.Minute)
	var alert *models.Alert
	var err error
	for i := 0; i < 250; i++ {
		alert, err = p.Process(ctx, &canonical.Event{
			IndicatorType:  models.IndicatorIP,
			IndicatorValue: "203.0.113.7",
			EventType:      models.EventFailedLogin,
			Timestamp:      base.Add(time.Duration(i) * time.Second),
			Source:         "auth-gateway",
			Confidence:     0.9,
			Frequency:      1,
			Port:           22,
		})
		if err != nil {
			t.Fatalf("process event %d: %v", i, err)
		}
	}

	// brute_force_ssh (40) plus rapid_succession (30).
	if alert.RuleScore != 70 {
		t.Fatalf("expected rule score 70, got %d", alert.RuleScore)
	}
	if !contains(alert.TriggeredRules, "brute_force_ssh") {
		t.Fatalf("expected brute_force_ssh in %v", alert.TriggeredRules)
	}
	if alert.MLScore != 66 {
		t.Fatalf("expected ml score 66, got %d", alert.MLScore)
	}
	if alert.GraphScore != 100 {
		t.Fatalf("expected graph score 100, got %d", alert.GraphScore)
	}
	if alert.RiskScore != 76 {
		t.Fatalf("expected risk score 76, got %d", alert.RiskScore)
	}
	if alert.Severity != models.SeverityHigh {
		t.Fatalf("expected High severity, got %s", alert.Severity)
	}
	if alert.Stage != models.StageInitialAccess {
		t.Fatalf("expected Initial Access stage, got %s", alert.Stage)
	}

	stored, err := store.ListAlerts(ctx, alert.IndicatorID, 0)
	if err != nil {
		t.Fatalf("list alerts: %v", err)
	}
	if len(stored) != 250 {
		t.Fatalf("expected one alert per event, got %d", len(stored))
	}
}

func TestProcessMalwareScenario(t *testing.T) {
	store := storage.NewMemoryStore(0)
	p := newTestPipeline(store)
	ctx := context.Background()

	alert, err := p.Process(ctx, &canonical.Event{
		IndicatorType:  models.IndicatorHash,
		IndicatorValue: "d41d8cd98f00b204e9800998ecf8427e",
		EventType:      models.EventMalwareDetected,
		Timestamp:      time.Now().UTC(),
		Source:         "edr",
		Confidence:     1,
		Frequency:      1,
	})
	if err != nil {
		t.Fatalf("process: %v", err)
	}

	if alert.RuleScore != 50 {
		t.Fatalf("expected rule score 50, got %d", alert.RuleScore)
	}
	if !contains(alert.TriggeredRules, "malware_detection") {
		t.Fatalf("expected malware_detection in %v", alert.TriggeredRules)
	}
	// One event has no inter-arrival signal, so the ML component stays
	// neutral.
	if alert.MLScore != 0 {
		t.Fatalf("expected ml score 0 for a single event, got %d", alert.MLScore)
	}
	if alert.Stage != models.StageUnknown {
		t.Fatalf("expected Unknown stage, got %s", alert.Stage)
	}
	if alert.Severity != models.SeverityMedium {
		t.Fatalf("expected Medium severity, got %s", alert.Severity)
	}
	if alert.ID == "" || alert.EventID == "" {
		t.Fatalf("alert and event ids must be assigned: %+v", alert)
	}
}

type flakyStore struct {
	*storage.MemoryStore
	failID string
}

func (s *flakyStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	if ev.IndicatorID == s.failID {
		return errors.New("simulated storage outage")
	}
	return s.MemoryStore.AppendEvent(ctx, ev)
}

func TestProcessBatchIsolatesFailures(t *testing.T) {
	store := &flakyStore{MemoryStore: storage.NewMemoryStore(0), failID: "ip:10.0.0.2"}
	p := newTestPipeline(store)

	now := time.Now().UTC()
	batch := []*canonical.Event{
		{IndicatorType: models.IndicatorIP, IndicatorValue: "10.0.0.1", EventType: models.EventPortScan, Timestamp: now, Frequency: 1},
		{IndicatorType: models.IndicatorIP, IndicatorValue: "10.0.0.2", EventType: models.EventPortScan, Timestamp: now, Frequency: 1},
		{IndicatorType: models.IndicatorIP, IndicatorValue: "10.0.0.3", EventType: models.EventPortScan, Timestamp: now, Frequency: 1},
	}

	result := p.ProcessBatch(context.Background(), batch)
	if result.Failed != 1 {
		t.Fatalf("expected 1 failure, got %d", result.Failed)
	}
	if len(result.Alerts) != 2 {
		t.Fatalf("expected 2 alerts, got %d", len(result.Alerts))
	}
	for _, alert := range result.Alerts {
		if alert.IndicatorID == "ip:10.0.0.2" {
			t.Fatalf("failed item produced an alert")
		}
	}
}

func TestShardStability(t *testing.T) {
	for _, value := range []string{"a", "203.0.113.7", "evil.example"} {
		first := shardFor(value, 8)
		if first < 0 || first >= 8 {
			t.Fatalf("shard out of range: %d", first)
		}
		for i := 0; i < 5; i++ {
			if shardFor(value, 8) != first {
				t.Fatalf("shard not stable for %q", value)
			}
		}
	}
}

func contains(values []string, want string) bool {
	for _, v := range values {
		if v == want {
			return true
		}
	}
	return false
}
