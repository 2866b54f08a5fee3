package models

import "time"

// EventType is the normalized classification of one observed occurrence.
type EventType string

const (
	EventFailedLogin         EventType = "failed_login"
	EventLoginSuccess        EventType = "login_success"
	EventPortScan            EventType = "port_scan"
	EventDNSQuery            EventType = "dns_query"
	EventC2Communication     EventType = "c2_communication"
	EventDataExfiltration    EventType = "data_exfiltration"
	EventPrivilegeEscalation EventType = "privilege_escalation"
	EventScriptExecution     EventType = "script_execution"
	EventMalwareDetected     EventType = "malware_detected"
	EventFileAccess          EventType = "file_access"
)

// Event is one observed occurrence tied to an indicator. Events are
// immutable once stored.
type Event struct {
	ID          string            `json:"id"`
	IndicatorID string            `json:"indicator_id"`
	Type        EventType         `json:"type"`
	Timestamp   time.Time         `json:"ts"`
	Source      string            `json:"source,omitempty"`
	Frequency   int               `json:"frequency"`
	Port        int               `json:"port,omitempty"`
	Geolocation string            `json:"geolocation,omitempty"`
	PayloadSize int64             `json:"payload_size,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// Meta returns a metadata value, tolerating nil maps.
func (e *Event) Meta(key string) string {
	if e == nil || e.Metadata == nil {
		return ""
	}
	return e.Metadata[key]
}
