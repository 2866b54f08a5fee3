package rules

import "github.com/u7k4rs6/threat-intelligence-engine/pkg/models"

// DefaultRules returns the built-in threat rule set. Point values are
// calibrated so that any two strong signals push the clamped score past
// the High band once blended downstream.
func DefaultRules() []Rule {
	return []Rule{
		{
			ID:       "brute_force_ssh",
			Name:     "SSH Brute Force",
			Severity: "high",
			Points:   40,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				attempts := 0
				for _, ev := range events {
					if ev.Type == models.EventFailedLogin && ev.Port == 22 {
						attempts += frequency(ev)
					}
				}
				return attempts >= 200, nil
			},
		},
		{
			ID:       "port_scan",
			Name:     "Port Scan",
			Severity: "medium",
			Points:   30,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return fv.UniquePorts >= 20 && fv.PortScanEntropy > 3, nil
			},
		},
		{
			ID:       "c2_communication",
			Name:     "C2 Communication",
			Severity: "critical",
			Points:   45,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				if hasType(events, models.EventC2Communication) {
					return true, nil
				}
				return fv.DNSEntropy > 4 && fv.EventFrequency > 50, nil
			},
		},
		{
			ID:       "multi_vector_attack",
			Name:     "Multi-Vector Attack",
			Severity: "high",
			Points:   35,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return fv.UniqueEventTypes >= 3, nil
			},
		},
		{
			ID:       "data_exfiltration",
			Name:     "Data Exfiltration",
			Severity: "critical",
			Points:   45,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				if hasType(events, models.EventDataExfiltration) {
					return true, nil
				}
				return fv.AvgPayloadSize > 10*1024*1024, nil
			},
		},
		{
			ID:       "geo_anomaly",
			Name:     "Geographic Anomaly",
			Severity: "medium",
			Points:   25,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return fv.GeoRiskScore > 70 || fv.UniqueGeolocations > 10, nil
			},
		},
		{
			ID:       "rapid_succession",
			Name:     "Rapid Succession",
			Severity: "medium",
			Points:   30,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return fv.TimeBetweenEvents < 2 && fv.EventFrequency > 100, nil
			},
		},
		{
			ID:       "blacklist_match",
			Name:     "Denylist Match",
			Severity: "high",
			Points:   35,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return fv.BlacklistScore > 50, nil
			},
		},
		{
			ID:       "privilege_escalation",
			Name:     "Privilege Escalation Activity",
			Severity: "high",
			Points:   40,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return hasType(events, models.EventPrivilegeEscalation) || hasType(events, models.EventScriptExecution), nil
			},
		},
		{
			ID:       "dns_tunneling",
			Name:     "DNS Tunneling",
			Severity: "critical",
			Points:   45,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return countType(events, models.EventDNSQuery) > 100 && fv.DNSEntropy > 4.5, nil
			},
		},
		{
			ID:       "scanning_activity",
			Name:     "Scanning Activity",
			Severity: "low",
			Points:   20,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return countType(events, models.EventPortScan) > 10, nil
			},
		},
		{
			ID:       "malware_detection",
			Name:     "Malware Detection",
			Severity: "critical",
			Points:   50,
			Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
				return hasType(events, models.EventMalwareDetected), nil
			},
		},
	}
}

func hasType(events []*models.Event, t models.EventType) bool {
	for _, ev := range events {
		if ev.Type == t {
			return true
		}
	}
	return false
}

func countType(events []*models.Event, t models.EventType) int {
	n := 0
	for _, ev := range events {
		if ev.Type == t {
			n++
		}
	}
	return n
}

func frequency(ev *models.Event) int {
	if ev.Frequency <= 0 {
		return 1
	}
	return ev.Frequency
}
