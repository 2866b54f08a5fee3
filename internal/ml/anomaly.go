package ml

import "github.com/u7k4rs6/threat-intelligence-engine/pkg/models"

// anomalySignal contributes a fixed weight when its predicate fires on
// the normalized feature vector. The list is data, not code: tuning means
// editing the table, never the evaluation loop.
type anomalySignal struct {
	name    string
	weight  float64
	trigger func(v []float64) bool
}

// anomalyThreshold is the flag cutoff on the combined anomaly score.
const anomalyThreshold = 0.6

func defaultAnomalySignals() []anomalySignal {
	return []anomalySignal{
		{
			name:   "high_event_frequency",
			weight: 0.15,
			trigger: func(v []float64) bool {
				return v[models.IdxEventFrequency] > 0.2
			},
		},
		{
			name:   "high_event_rate",
			weight: 0.15,
			trigger: func(v []float64) bool {
				return v[models.IdxEventRatePerMinute] > 0.5
			},
		},
		{
			name:   "event_type_diversity",
			weight: 0.1,
			trigger: func(v []float64) bool {
				return v[models.IdxEventTypeDiversity] > 0.5
			},
		},
		{
			name:   "port_entropy_spread",
			weight: 0.15,
			trigger: func(v []float64) bool {
				return v[models.IdxPortScanEntropy] > 0.4 && v[models.IdxUniquePorts] > 0.2
			},
		},
		{
			name:   "geo_risk",
			weight: 0.1,
			trigger: func(v []float64) bool {
				return v[models.IdxGeoRiskScore] > 0.6
			},
		},
		{
			name:   "denylist",
			weight: 0.15,
			trigger: func(v []float64) bool {
				return v[models.IdxBlacklistScore] > 0.5
			},
		},
		{
			name:   "dns_entropy",
			weight: 0.1,
			trigger: func(v []float64) bool {
				return v[models.IdxDNSEntropy] > 0.8
			},
		},
		{
			name:   "payload_variance",
			weight: 0.05,
			trigger: func(v []float64) bool {
				return v[models.IdxPayloadVariance] > 0.5
			},
		},
		{
			name:   "rapid_interarrival",
			weight: 0.1,
			trigger: func(v []float64) bool {
				return v[models.IdxTimeBetweenEvents] > 0.3
			},
		},
		{
			name:   "event_count_zscore",
			weight: 0.2,
			trigger: func(v []float64) bool {
				return v[models.IdxEventCountZScore] > 0.6
			},
		},
	}
}

// anomalyScore sums triggered signal weights, clamped to [0,1].
func anomalyScore(signals []anomalySignal, v []float64) (float64, []string) {
	score := 0.0
	var fired []string
	for _, sig := range signals {
		if sig.trigger(v) {
			score += sig.weight
			fired = append(fired, sig.name)
		}
	}
	if score > 1 {
		score = 1
	}
	return score, fired
}
