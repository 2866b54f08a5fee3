package rules

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	sigma "github.com/bradleyjkemp/sigma-go"
	sigmaevaluator "github.com/bradleyjkemp/sigma-go/evaluator"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// SigmaLoadStats tracks the number of loaded and skipped Sigma rules.
type SigmaLoadStats struct {
	TotalFiles     int
	Loaded         int
	SkippedComplex int
	SkippedInvalid int
}

// LoadSigmaRules loads Sigma rules from a file or directory and compiles
// them into engine rules evaluated against raw event fields. Rules using
// timeframes, aggregations or keyword searches are skipped and counted.
func LoadSigmaRules(path string) ([]Rule, SigmaLoadStats, error) {
	var stats SigmaLoadStats

	resolved, err := filepath.Abs(path)
	if err != nil {
		return nil, stats, fmt.Errorf("resolve sigma path: %w", err)
	}
	info, err := os.Stat(resolved)
	if err != nil {
		return nil, stats, fmt.Errorf("stat sigma path: %w", err)
	}

	var files []string
	if info.IsDir() {
		err = filepath.WalkDir(resolved, func(filePath string, entry fs.DirEntry, walkErr error) error {
			if walkErr != nil {
				return walkErr
			}
			if !entry.IsDir() && isYAMLFile(filePath) {
				files = append(files, filePath)
			}
			return nil
		})
		if err != nil {
			return nil, stats, fmt.Errorf("walk sigma directory: %w", err)
		}
	} else {
		if !isYAMLFile(resolved) {
			return nil, stats, fmt.Errorf("sigma rule file must end with .yml or .yaml: %s", resolved)
		}
		files = append(files, resolved)
	}

	stats.TotalFiles = len(files)
	out := make([]Rule, 0, len(files))
	for _, ruleFile := range files {
		raw, err := os.ReadFile(ruleFile)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		parsed, err := sigma.ParseRule(raw)
		if err != nil {
			stats.SkippedInvalid++
			continue
		}
		if !isSimpleRule(parsed) {
			stats.SkippedComplex++
			continue
		}
		out = append(out, compileSigmaRule(parsed))
		stats.Loaded++
	}

	return out, stats, nil
}

func compileSigmaRule(parsed sigma.Rule) Rule {
	id := strings.TrimSpace(parsed.ID)
	if id == "" {
		id = strings.TrimSpace(parsed.Title)
	}
	level := strings.ToLower(strings.TrimSpace(parsed.Level))
	eval := sigmaevaluator.ForRule(parsed)

	return Rule{
		ID:       "sigma:" + id,
		Name:     strings.TrimSpace(parsed.Title),
		Severity: level,
		Points:   sigmaPoints(level),
		Match: func(fv *models.FeatureVector, events []*models.Event) (bool, error) {
			ctx := context.Background()
			for _, ev := range events {
				res, err := eval.Matches(ctx, sigmaEventMap(ev))
				if err != nil {
					return false, fmt.Errorf("sigma evaluate: %w", err)
				}
				if res.Match {
					return true, nil
				}
			}
			return false, nil
		},
	}
}

// sigmaEventMap flattens a normalized event into the field map Sigma
// matchers operate on. Metadata keys are exposed directly.
func sigmaEventMap(ev *models.Event) map[string]interface{} {
	buf := make(map[string]interface{}, len(ev.Metadata)+8)
	for k, v := range ev.Metadata {
		buf[k] = v
	}
	buf["EventType"] = string(ev.Type)
	buf["event_type"] = string(ev.Type)
	buf["Source"] = ev.Source
	buf["Frequency"] = ev.Frequency
	if ev.Port > 0 {
		buf["Port"] = ev.Port
	}
	if ev.Geolocation != "" {
		buf["Geolocation"] = ev.Geolocation
	}
	if ev.PayloadSize > 0 {
		buf["PayloadSize"] = ev.PayloadSize
	}
	return buf
}

func sigmaPoints(level string) int {
	switch level {
	case "critical":
		return 50
	case "high":
		return 40
	case "medium":
		return 30
	case "low":
		return 15
	default:
		return 30
	}
}

func isSimpleRule(rule sigma.Rule) bool {
	if rule.Detection.Timeframe > 0 {
		return false
	}
	for _, cond := range rule.Detection.Conditions {
		if cond.Aggregation != nil {
			return false
		}
	}
	for _, search := range rule.Detection.Searches {
		if len(search.Keywords) > 0 {
			return false
		}
		if len(search.EventMatchers) == 0 {
			return false
		}
	}
	return true
}

func isYAMLFile(path string) bool {
	lower := strings.ToLower(path)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}
