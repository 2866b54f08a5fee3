package features

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

func seedIndicator(t *testing.T, store *storage.MemoryStore, typ models.IndicatorType, value string) *models.Indicator {
	t.Helper()
	ind, err := store.UpsertIndicator(context.Background(), models.NewIndicator(typ, value, "test", 0.9, time.Now().UTC()))
	if err != nil {
		t.Fatalf("seed indicator: %v", err)
	}
	return ind
}

func TestExtractNoData(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ind := seedIndicator(t, store, models.IndicatorIP, "198.51.100.1")

	x := NewExtractor(store, store, Config{})
	_, err := x.Extract(context.Background(), ind.ID)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("expected ErrNoData, got %v", err)
	}
}

func TestExtractUnknownIndicator(t *testing.T) {
	store := storage.NewMemoryStore(0)
	x := NewExtractor(store, store, Config{})
	_, err := x.Extract(context.Background(), "ip:203.0.113.9")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestExtractBasicFeatures(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ind := seedIndicator(t, store, models.IndicatorIP, "198.51.100.1")

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		ev := &models.Event{
			ID:          "ev",
			IndicatorID: ind.ID,
			Type:        models.EventFailedLogin,
			Timestamp:   base.Add(time.Duration(i) * 10 * time.Second),
			Frequency:   1,
			Port:        22,
		}
		if i%2 == 1 {
			ev.Type = models.EventPortScan
			ev.Port = 1000 + i
		}
		if err := store.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	x := NewExtractor(store, store, Config{BaselineMean: 10, BaselineStddev: 5})
	fv, err := x.Extract(context.Background(), ind.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}

	if fv.EventFrequency != 4 {
		t.Fatalf("expected frequency 4, got %v", fv.EventFrequency)
	}
	if fv.TimeBetweenEvents != 10 {
		t.Fatalf("expected 10s mean inter-arrival, got %v", fv.TimeBetweenEvents)
	}
	if fv.UniqueEventTypes != 2 {
		t.Fatalf("expected 2 event types, got %v", fv.UniqueEventTypes)
	}
	// Two types split evenly: exactly one bit of entropy.
	if math.Abs(fv.EventTypeDiversity-1) > 1e-9 {
		t.Fatalf("expected diversity 1, got %v", fv.EventTypeDiversity)
	}
	if fv.UniquePorts != 3 {
		t.Fatalf("expected 3 unique ports, got %v", fv.UniquePorts)
	}
	want := (4.0 - 10.0) / 5.0
	if math.Abs(fv.EventCountZScore-want) > 1e-9 {
		t.Fatalf("expected zscore %v, got %v", want, fv.EventCountZScore)
	}
}

func TestGeoRiskScore(t *testing.T) {
	store := storage.NewMemoryStore(0)
	ind := seedIndicator(t, store, models.IndicatorIP, "198.51.100.1")

	base := time.Now().UTC()
	for i, geo := range []string{"XX", "XX", "US", "US"} {
		ev := &models.Event{
			IndicatorID: ind.ID,
			Type:        models.EventLoginSuccess,
			Timestamp:   base.Add(time.Duration(i) * time.Second),
			Frequency:   1,
			Geolocation: geo,
		}
		if err := store.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	x := NewExtractor(store, store, Config{HighRiskGeos: []string{"XX"}})
	fv, err := x.Extract(context.Background(), ind.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if fv.GeoRiskScore != 50 {
		t.Fatalf("expected geo risk 50, got %v", fv.GeoRiskScore)
	}
	if fv.UniqueGeolocations != 2 {
		t.Fatalf("expected 2 geos, got %v", fv.UniqueGeolocations)
	}
}

func TestBlacklistScore(t *testing.T) {
	store := storage.NewMemoryStore(0)
	x := NewExtractor(store, store, Config{Denylist: []string{"evil.example"}})

	denied := &models.Indicator{Value: "evil.example"}
	if got := x.blacklistScore(denied); got != 90 {
		t.Fatalf("expected 90 for denylisted value, got %v", got)
	}

	reputed := &models.Indicator{Value: "ok.example", Metadata: map[string]string{"reputation": "30"}}
	if got := x.blacklistScore(reputed); got != 70 {
		t.Fatalf("expected 70 for reputation 30, got %v", got)
	}

	clean := &models.Indicator{Value: "clean.example"}
	if got := x.blacklistScore(clean); got != 0 {
		t.Fatalf("expected 0 for unknown value, got %v", got)
	}

	// A negative feed reputation must not push the score past the cap.
	hostile := &models.Indicator{Value: "bad.example", Metadata: map[string]string{"reputation": "-50"}}
	if got := x.blacklistScore(hostile); got != 100 {
		t.Fatalf("expected 100 for negative reputation, got %v", got)
	}

	saintly := &models.Indicator{Value: "good.example", Metadata: map[string]string{"reputation": "150"}}
	if got := x.blacklistScore(saintly); got != 0 {
		t.Fatalf("expected 0 for reputation above 100, got %v", got)
	}
}

func TestDNSEntropyGating(t *testing.T) {
	store := storage.NewMemoryStore(0)
	domain := seedIndicator(t, store, models.IndicatorDomain, "xj2kq9f.example")
	ip := seedIndicator(t, store, models.IndicatorIP, "198.51.100.1")

	now := time.Now().UTC()
	for _, id := range []string{domain.ID, ip.ID} {
		ev := &models.Event{IndicatorID: id, Type: models.EventDNSQuery, Timestamp: now, Frequency: 1}
		if err := store.AppendEvent(context.Background(), ev); err != nil {
			t.Fatalf("append event: %v", err)
		}
	}

	x := NewExtractor(store, store, Config{})
	fv, err := x.Extract(context.Background(), domain.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if fv.DNSEntropy <= 0 {
		t.Fatalf("expected positive DNS entropy for domain, got %v", fv.DNSEntropy)
	}

	fv, err = x.Extract(context.Background(), ip.ID)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if fv.DNSEntropy != 0 {
		t.Fatalf("expected zero DNS entropy for non-domain, got %v", fv.DNSEntropy)
	}
}

func TestShannonEntropy(t *testing.T) {
	uniform := map[string]int{"a": 5, "b": 5, "c": 5, "d": 5}
	if got := shannonEntropy(uniform); math.Abs(got-2) > 1e-9 {
		t.Fatalf("expected 2 bits for 4 uniform symbols, got %v", got)
	}
	single := map[string]int{"a": 10}
	if got := shannonEntropy(single); got != 0 {
		t.Fatalf("expected 0 for single symbol, got %v", got)
	}
	if got := shannonEntropy(map[string]int{}); got != 0 {
		t.Fatalf("expected 0 for empty counts, got %v", got)
	}
}
