// Package rules evaluates declarative threat rules against feature
// vectors and raw event history.
package rules

import (
	"errors"
	"fmt"
	"sync"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/logger"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

var (
	// ErrDuplicateRule indicates a rule with the same ID is already
	// registered.
	ErrDuplicateRule = errors.New("duplicate rule id")
	// ErrRuleNotFound indicates no rule with the given ID is registered.
	ErrRuleNotFound = errors.New("rule not found")
)

// MatchFunc is a boolean predicate over features and raw events. An error
// (or panic) marks the rule as non-matching for this evaluation only.
type MatchFunc func(fv *models.FeatureVector, events []*models.Event) (bool, error)

// Rule is one declarative threat rule.
type Rule struct {
	ID       string
	Name     string
	Severity string
	Points   int
	Match    MatchFunc
}

// Match records one triggered rule.
type Match struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Severity string `json:"severity"`
	Points   int    `json:"points"`
}

// Result is the outcome of one evaluation pass.
type Result struct {
	// Score is the clamped [0,100] sum of triggered rule points.
	Score int
	// Triggered lists matched rules in registration order.
	Triggered []Match
}

// Engine holds an ordered, mutable rule registry. Safe for concurrent
// evaluation and runtime registration.
type Engine struct {
	mu    sync.RWMutex
	rules []Rule
}

// NewEngine creates an empty rule engine.
func NewEngine() *Engine {
	return &Engine{}
}

// NewDefaultEngine creates an engine preloaded with the built-in rule set.
func NewDefaultEngine() *Engine {
	e := NewEngine()
	for _, r := range DefaultRules() {
		// Built-in IDs are unique by construction.
		_ = e.Register(r)
	}
	return e
}

// Register appends a rule to the registry. Duplicate IDs are rejected.
func (e *Engine) Register(r Rule) error {
	if r.ID == "" {
		return fmt.Errorf("register rule: empty id")
	}
	if r.Match == nil {
		return fmt.Errorf("register rule %s: nil predicate", r.ID)
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("register rule %s: %w", r.ID, ErrDuplicateRule)
		}
	}
	e.rules = append(e.rules, r)
	return nil
}

// Unregister removes a rule by ID.
func (e *Engine) Unregister(id string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, r := range e.rules {
		if r.ID == id {
			e.rules = append(e.rules[:i], e.rules[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("unregister rule %s: %w", id, ErrRuleNotFound)
}

// Rules returns a snapshot of the registry in registration order.
func (e *Engine) Rules() []Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every registered predicate against the same inputs and
// sums triggered point values, clamped to [0,100]. A predicate that
// errors or panics is logged and treated as non-matching; evaluation
// always completes.
func (e *Engine) Evaluate(fv *models.FeatureVector, events []*models.Event) Result {
	e.mu.RLock()
	snapshot := make([]Rule, len(e.rules))
	copy(snapshot, e.rules)
	e.mu.RUnlock()

	var result Result
	total := 0
	for _, r := range snapshot {
		matched := safeMatch(r, fv, events)
		if !matched {
			continue
		}
		total += r.Points
		result.Triggered = append(result.Triggered, Match{
			ID:       r.ID,
			Name:     r.Name,
			Severity: r.Severity,
			Points:   r.Points,
		})
	}

	if total < 0 {
		total = 0
	}
	if total > 100 {
		total = 100
	}
	result.Score = total
	return result
}

func safeMatch(r Rule, fv *models.FeatureVector, events []*models.Event) (matched bool) {
	defer func() {
		if rec := recover(); rec != nil {
			logger.Warnf("rule %s panicked, treated as non-matching: %v", r.ID, rec)
			matched = false
		}
	}()

	ok, err := r.Match(fv, events)
	if err != nil {
		logger.Warnf("rule %s failed, treated as non-matching: %v", r.ID, err)
		return false
	}
	return ok
}
