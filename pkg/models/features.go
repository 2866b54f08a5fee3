package models

import "math"

// Normalized feature vector index order. The ML scorer is order-sensitive;
// new features append at the end, existing positions never move.
const (
	IdxEventFrequency = iota
	IdxTimeBetweenEvents
	IdxEventRatePerMinute
	IdxEventRatePerHour
	IdxUniqueEventTypes
	IdxEventTypeDiversity
	IdxPortScanEntropy
	IdxGeoRiskScore
	IdxUniqueGeolocations
	IdxUniquePorts
	IdxAvgPayloadSize
	IdxPayloadVariance
	IdxEventCountZScore
	IdxBlacklistScore
	IdxDNSEntropy

	FeatureCount
)

// FeatureVector holds the raw named features computed over an indicator's
// recent event history. It is derived on demand and never persisted.
type FeatureVector struct {
	IndicatorID string `json:"indicator_id"`

	EventFrequency     float64 `json:"event_frequency"`
	TimeBetweenEvents  float64 `json:"time_between_events"`
	EventRatePerMinute float64 `json:"event_rate_per_minute"`
	EventRatePerHour   float64 `json:"event_rate_per_hour"`
	UniqueEventTypes   float64 `json:"unique_event_types"`
	EventTypeDiversity float64 `json:"event_type_diversity"`
	PortScanEntropy    float64 `json:"port_scan_entropy"`
	GeoRiskScore       float64 `json:"geo_risk_score"`
	UniqueGeolocations float64 `json:"unique_geolocations"`
	UniquePorts        float64 `json:"unique_ports"`
	AvgPayloadSize     float64 `json:"avg_payload_size"`
	PayloadVariance    float64 `json:"payload_variance"`
	EventCountZScore   float64 `json:"event_count_zscore"`
	BlacklistScore     float64 `json:"blacklist_score"`
	DNSEntropy         float64 `json:"dns_entropy"`
}

// Fixed normalization caps. Raw features are rescaled into [0,1] by
// dividing by the cap and clamping; TimeBetweenEvents instead maps through
// 1/(1+seconds) so that rapid succession approaches 1. With fewer than two
// events there is no inter-arrival gap, so that slot stays 0.
const (
	capEventFrequency     = 1000.0
	capEventRatePerMinute = 100.0
	capEventRatePerHour   = 6000.0
	capUniqueEventTypes   = 10.0
	capEventTypeDiversity = 4.0
	capPortScanEntropy    = 8.0
	capGeoRiskScore       = 100.0
	capUniqueGeolocations = 20.0
	capUniquePorts        = 100.0
	capAvgPayloadSize     = 10 * 1024 * 1024
	capPayloadVariance    = 1e10
	capEventCountZScore   = 5.0
	capBlacklistScore     = 100.0
	capDNSEntropy         = 5.0
)

// Normalized returns the fixed-order [0,1] view consumed by the ML scorer.
func (fv *FeatureVector) Normalized() []float64 {
	v := make([]float64, FeatureCount)
	v[IdxEventFrequency] = clamp01(fv.EventFrequency / capEventFrequency)
	if fv.EventFrequency >= 2 {
		v[IdxTimeBetweenEvents] = clamp01(1 / (1 + math.Max(fv.TimeBetweenEvents, 0)))
	}
	v[IdxEventRatePerMinute] = clamp01(fv.EventRatePerMinute / capEventRatePerMinute)
	v[IdxEventRatePerHour] = clamp01(fv.EventRatePerHour / capEventRatePerHour)
	v[IdxUniqueEventTypes] = clamp01(fv.UniqueEventTypes / capUniqueEventTypes)
	v[IdxEventTypeDiversity] = clamp01(fv.EventTypeDiversity / capEventTypeDiversity)
	v[IdxPortScanEntropy] = clamp01(fv.PortScanEntropy / capPortScanEntropy)
	v[IdxGeoRiskScore] = clamp01(fv.GeoRiskScore / capGeoRiskScore)
	v[IdxUniqueGeolocations] = clamp01(fv.UniqueGeolocations / capUniqueGeolocations)
	v[IdxUniquePorts] = clamp01(fv.UniquePorts / capUniquePorts)
	v[IdxAvgPayloadSize] = clamp01(fv.AvgPayloadSize / capAvgPayloadSize)
	v[IdxPayloadVariance] = clamp01(fv.PayloadVariance / capPayloadVariance)
	v[IdxEventCountZScore] = clamp01(fv.EventCountZScore / capEventCountZScore)
	v[IdxBlacklistScore] = clamp01(fv.BlacklistScore / capBlacklistScore)
	v[IdxDNSEntropy] = clamp01(fv.DNSEntropy / capDNSEntropy)
	return v
}

func clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
