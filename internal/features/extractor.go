// Package features computes fixed-shape numeric feature vectors over an
// indicator's recent event history.
package features

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// ErrNoData indicates the indicator has no event history. Callers score
// with neutral defaults instead of failing hard.
var ErrNoData = errors.New("no event data for indicator")

// Config controls extraction behavior.
type Config struct {
	// WindowSize bounds the event history considered (most recent N).
	WindowSize int
	// BaselineMean and BaselineStddev parameterize the event-count
	// z-score against a fixed baseline.
	BaselineMean   float64
	BaselineStddev float64
	// HighRiskGeos is the set of geolocations counted into geo risk.
	HighRiskGeos []string
	// Denylist is the static indicator denylist.
	Denylist []string
}

// Extractor computes feature vectors from stored event history.
type Extractor struct {
	indicators storage.IndicatorStore
	events     storage.EventStore
	cfg        Config
	highRisk   map[string]struct{}
	denylist   map[string]struct{}
}

// NewExtractor creates an extractor over the given stores.
func NewExtractor(indicators storage.IndicatorStore, events storage.EventStore, cfg Config) *Extractor {
	if cfg.WindowSize <= 0 {
		cfg.WindowSize = 1000
	}
	if cfg.BaselineStddev == 0 {
		cfg.BaselineMean = 10
		cfg.BaselineStddev = 5
	}

	highRisk := make(map[string]struct{}, len(cfg.HighRiskGeos))
	for _, geo := range cfg.HighRiskGeos {
		highRisk[geo] = struct{}{}
	}
	denylist := make(map[string]struct{}, len(cfg.Denylist))
	for _, value := range cfg.Denylist {
		denylist[value] = struct{}{}
	}

	return &Extractor{
		indicators: indicators,
		events:     events,
		cfg:        cfg,
		highRisk:   highRisk,
		denylist:   denylist,
	}
}

// Extract computes the feature vector for an indicator, or ErrNoData when
// the indicator has no events. Storage failures propagate wrapped.
func (x *Extractor) Extract(ctx context.Context, indicatorID string) (*models.FeatureVector, error) {
	ind, err := x.indicators.GetIndicator(ctx, indicatorID)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}

	events, err := x.events.ListEvents(ctx, indicatorID, x.cfg.WindowSize)
	if err != nil {
		return nil, fmt.Errorf("extract features: %w", err)
	}
	if len(events) == 0 {
		return nil, fmt.Errorf("extract features for %s: %w", indicatorID, ErrNoData)
	}

	fv := &models.FeatureVector{IndicatorID: indicatorID}
	fv.EventFrequency = float64(len(events))
	fv.TimeBetweenEvents = meanInterArrival(events)
	fv.EventRatePerMinute, fv.EventRatePerHour = trailingRates(events)

	typeCounts := make(map[models.EventType]int, 8)
	portCounts := make(map[int]int, 16)
	geos := make(map[string]struct{}, 8)
	highRiskHits := 0
	geoTagged := 0
	dnsEvents := 0
	var payloads []float64

	for _, ev := range events {
		typeCounts[ev.Type]++
		if ev.Port > 0 {
			portCounts[ev.Port]++
		}
		if ev.Geolocation != "" {
			geoTagged++
			geos[ev.Geolocation] = struct{}{}
			if _, ok := x.highRisk[ev.Geolocation]; ok {
				highRiskHits++
			}
		}
		if ev.Type == models.EventDNSQuery {
			dnsEvents++
		}
		if ev.PayloadSize > 0 {
			payloads = append(payloads, float64(ev.PayloadSize))
		}
	}

	fv.UniqueEventTypes = float64(len(typeCounts))
	fv.EventTypeDiversity = shannonEntropy(typeCounts)
	fv.PortScanEntropy = shannonEntropy(portCounts)
	fv.UniquePorts = float64(len(portCounts))
	fv.UniqueGeolocations = float64(len(geos))
	if geoTagged > 0 {
		fv.GeoRiskScore = 100 * float64(highRiskHits) / float64(geoTagged)
	}
	fv.AvgPayloadSize, fv.PayloadVariance = meanAndVariance(payloads)
	if x.cfg.BaselineStddev > 0 {
		fv.EventCountZScore = (float64(len(events)) - x.cfg.BaselineMean) / x.cfg.BaselineStddev
	}
	fv.BlacklistScore = x.blacklistScore(ind)
	if ind.Type == models.IndicatorDomain && dnsEvents > 0 {
		fv.DNSEntropy = stringEntropy(ind.Value)
	}

	return fv, nil
}

// blacklistScore is 90 for denylisted values, 100-reputation clamped to
// [0,100] when the indicator carries a reputation, else 0.
func (x *Extractor) blacklistScore(ind *models.Indicator) float64 {
	if _, ok := x.denylist[ind.Value]; ok {
		return 90
	}
	if rep, ok := ind.Metadata["reputation"]; ok {
		if r, err := strconv.ParseFloat(rep, 64); err == nil {
			score := 100 - r
			if score < 0 {
				return 0
			}
			if score > 100 {
				return 100
			}
			return score
		}
	}
	return 0
}

// meanInterArrival is the mean gap in seconds across sorted timestamps;
// 0 with fewer than two events.
func meanInterArrival(events []*models.Event) float64 {
	if len(events) < 2 {
		return 0
	}
	ts := make([]time.Time, len(events))
	for i, ev := range events {
		ts[i] = ev.Timestamp
	}
	sort.Slice(ts, func(i, j int) bool { return ts[i].Before(ts[j]) })

	total := ts[len(ts)-1].Sub(ts[0]).Seconds()
	return total / float64(len(ts)-1)
}

// trailingRates counts events inside the trailing hour relative to the
// newest event and rescales to per-minute and per-hour rates.
func trailingRates(events []*models.Event) (perMinute, perHour float64) {
	if len(events) == 0 {
		return 0, 0
	}
	newest := events[0].Timestamp
	for _, ev := range events {
		if ev.Timestamp.After(newest) {
			newest = ev.Timestamp
		}
	}
	cutoff := newest.Add(-time.Hour)
	inWindow := 0
	for _, ev := range events {
		if !ev.Timestamp.Before(cutoff) {
			inWindow++
		}
	}
	return float64(inWindow) / 60, float64(inWindow)
}

// meanAndVariance computes mean and population variance.
func meanAndVariance(values []float64) (mean, variance float64) {
	if len(values) == 0 {
		return 0, 0
	}
	for _, v := range values {
		mean += v
	}
	mean /= float64(len(values))
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, variance
}
