// Package mitre maps normalized event types onto attack-lifecycle stages.
package mitre

import "github.com/u7k4rs6/threat-intelligence-engine/pkg/models"

var stageTable = map[models.EventType]models.Stage{
	models.EventPortScan:            models.StageReconnaissance,
	models.EventDNSQuery:            models.StageReconnaissance,
	models.EventFailedLogin:         models.StageInitialAccess,
	models.EventScriptExecution:     models.StageExecution,
	models.EventPrivilegeEscalation: models.StagePrivilegeEscalation,
	models.EventC2Communication:     models.StageCommandAndControl,
	models.EventDataExfiltration:    models.StageExfiltration,
}

// MapStage maps a normalized event type to its attack-lifecycle stage.
// Event types outside the table map to StageUnknown, never an error.
func MapStage(eventType models.EventType) models.Stage {
	if stage, ok := stageTable[eventType]; ok {
		return stage
	}
	return models.StageUnknown
}
