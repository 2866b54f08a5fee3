// Package canonical parses the normalized event schema produced by the
// ingestion front door.
package canonical

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// Event is one normalized inbound record.
type Event struct {
	IndicatorType  models.IndicatorType
	IndicatorValue string
	EventType      models.EventType
	Timestamp      time.Time
	Source         string
	Confidence     float64
	Frequency      int
	Port           int
	Geolocation    string
	PayloadSize    int64
	Metadata       map[string]string
}

type wireEvent struct {
	IndicatorType  string            `json:"indicator_type"`
	IndicatorValue string            `json:"indicator_value"`
	EventType      string            `json:"event_type"`
	Timestamp      string            `json:"timestamp"`
	Source         string            `json:"source"`
	Confidence     float64           `json:"confidence"`
	Frequency      int               `json:"frequency"`
	Port           int               `json:"port"`
	Geolocation    string            `json:"geolocation"`
	PayloadSize    int64             `json:"payload_size"`
	Metadata       map[string]string `json:"metadata"`
}

// Parse decodes one canonical JSON event. Indicator value and event type
// are required; the timestamp tolerates common layouts and defaults to
// now; frequency defaults to 1.
func Parse(data []byte) (*Event, error) {
	var raw wireEvent
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("decode canonical event: %w", err)
	}

	if strings.TrimSpace(raw.IndicatorValue) == "" {
		return nil, fmt.Errorf("canonical event missing indicator_value")
	}
	if strings.TrimSpace(raw.EventType) == "" {
		return nil, fmt.Errorf("canonical event missing event_type")
	}

	ev := &Event{
		IndicatorType:  models.ParseIndicatorType(raw.IndicatorType),
		IndicatorValue: strings.TrimSpace(raw.IndicatorValue),
		EventType:      models.EventType(raw.EventType),
		Source:         raw.Source,
		Confidence:     raw.Confidence,
		Frequency:      raw.Frequency,
		Port:           raw.Port,
		Geolocation:    raw.Geolocation,
		PayloadSize:    raw.PayloadSize,
		Metadata:       raw.Metadata,
	}
	if ev.Frequency <= 0 {
		ev.Frequency = 1
	}

	if ts, ok := parseTimestamp(raw.Timestamp); ok {
		ev.Timestamp = ts
	} else {
		ev.Timestamp = time.Now().UTC()
	}

	return ev, nil
}

func parseTimestamp(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}

	for _, layout := range []string{time.RFC3339Nano, time.RFC3339} {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	for _, layout := range []string{
		"2006-01-02 15:04:05.000000",
		"2006-01-02 15:04:05",
	} {
		if t, err := time.ParseInLocation(layout, value, time.UTC); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
