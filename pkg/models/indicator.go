package models

import "time"

// IndicatorType classifies the entity under observation.
type IndicatorType string

const (
	IndicatorIP      IndicatorType = "ip"
	IndicatorDomain  IndicatorType = "domain"
	IndicatorHash    IndicatorType = "hash"
	IndicatorUser    IndicatorType = "user"
	IndicatorFile    IndicatorType = "file"
	IndicatorUnknown IndicatorType = "unknown"
)

// ParseIndicatorType maps a raw string onto a known indicator type.
func ParseIndicatorType(raw string) IndicatorType {
	switch IndicatorType(raw) {
	case IndicatorIP, IndicatorDomain, IndicatorHash, IndicatorUser, IndicatorFile:
		return IndicatorType(raw)
	default:
		return IndicatorUnknown
	}
}

// Indicator is an observed entity (IP, domain, hash, user, file).
// Indicators are created on first observation and never deleted; on
// re-observation confidence is max-merged and LastSeen advances.
type Indicator struct {
	ID         string            `json:"id"`
	Type       IndicatorType     `json:"type"`
	Value      string            `json:"value"`
	Source     string            `json:"source,omitempty"`
	Confidence float64           `json:"confidence"`
	FirstSeen  time.Time         `json:"first_seen"`
	LastSeen   time.Time         `json:"last_seen"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// IndicatorID derives the stable identifier for a (type, value) pair.
func IndicatorID(typ IndicatorType, value string) string {
	return string(typ) + ":" + value
}

// NewIndicator builds an indicator for a fresh observation.
func NewIndicator(typ IndicatorType, value, source string, confidence float64, observedAt time.Time) *Indicator {
	if confidence < 0 {
		confidence = 0
	}
	if confidence > 1 {
		confidence = 1
	}
	return &Indicator{
		ID:         IndicatorID(typ, value),
		Type:       typ,
		Value:      value,
		Source:     source,
		Confidence: confidence,
		FirstSeen:  observedAt,
		LastSeen:   observedAt,
		Metadata:   make(map[string]string),
	}
}

// Merge folds a re-observation into an existing indicator. Confidence only
// ever increases, FirstSeen only moves backwards and LastSeen forwards.
func (i *Indicator) Merge(other *Indicator) {
	if other == nil {
		return
	}
	if other.Confidence > i.Confidence {
		i.Confidence = other.Confidence
	}
	if !other.FirstSeen.IsZero() && (i.FirstSeen.IsZero() || other.FirstSeen.Before(i.FirstSeen)) {
		i.FirstSeen = other.FirstSeen
	}
	if other.LastSeen.After(i.LastSeen) {
		i.LastSeen = other.LastSeen
	}
	if other.Source != "" {
		i.Source = other.Source
	}
	for k, v := range other.Metadata {
		if i.Metadata == nil {
			i.Metadata = make(map[string]string)
		}
		i.Metadata[k] = v
	}
}
