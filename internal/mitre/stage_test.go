package mitre

import (
	"testing"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

func TestMapStage(t *testing.T) {
	cases := []struct {
		event models.EventType
		want  models.Stage
	}{
		{models.EventPortScan, models.StageReconnaissance},
		{models.EventDNSQuery, models.StageReconnaissance},
		{models.EventFailedLogin, models.StageInitialAccess},
		{models.EventScriptExecution, models.StageExecution},
		{models.EventPrivilegeEscalation, models.StagePrivilegeEscalation},
		{models.EventC2Communication, models.StageCommandAndControl},
		{models.EventDataExfiltration, models.StageExfiltration},
	}
	for _, tc := range cases {
		if got := MapStage(tc.event); got != tc.want {
			t.Fatalf("%s: expected %s, got %s", tc.event, tc.want, got)
		}
	}
}

func TestMapStageUnknownFallback(t *testing.T) {
	if got := MapStage(models.EventMalwareDetected); got != models.StageUnknown {
		t.Fatalf("expected Unknown, got %s", got)
	}
	if got := MapStage(models.EventFileAccess); got != models.StageUnknown {
		t.Fatalf("expected Unknown, got %s", got)
	}
	if got := MapStage(models.EventType("made_up")); got != models.StageUnknown {
		t.Fatalf("expected Unknown, got %s", got)
	}
}
