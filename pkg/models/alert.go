package models

import "time"

// Severity labels the final risk score band.
type Severity string

const (
	SeverityCritical Severity = "Critical"
	SeverityHigh     Severity = "High"
	SeverityMedium   Severity = "Medium"
	SeverityLow      Severity = "Low"
)

// Stage is a MITRE attack-lifecycle phase label.
type Stage string

const (
	StageReconnaissance      Stage = "Reconnaissance"
	StageInitialAccess       Stage = "Initial Access"
	StageExecution           Stage = "Execution"
	StagePrivilegeEscalation Stage = "Privilege Escalation"
	StageCommandAndControl   Stage = "Command and Control"
	StageExfiltration        Stage = "Exfiltration"
	StageUnknown             Stage = "Unknown"
)

// Alert is the persisted outcome of scoring one event/indicator pair.
// Alert history is append-only and never mutated.
type Alert struct {
	ID             string                 `json:"alert_id"`
	IndicatorID    string                 `json:"indicator_id"`
	IndicatorType  IndicatorType          `json:"indicator_type"`
	IndicatorValue string                 `json:"indicator_value"`
	EventID        string                 `json:"event_id,omitempty"`
	RuleScore      int                    `json:"rule_score"`
	MLScore        int                    `json:"ml_score"`
	GraphScore     int                    `json:"graph_score"`
	RiskScore      int                    `json:"risk_score"`
	Severity       Severity               `json:"severity"`
	Stage          Stage                  `json:"stage"`
	TriggeredRules []string               `json:"triggered_rules,omitempty"`
	Details        map[string]interface{} `json:"details,omitempty"`
	CreatedAt      time.Time              `json:"created_at"`
}
