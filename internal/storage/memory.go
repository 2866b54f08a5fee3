package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// MemoryStore is the in-process Store implementation. It is the default
// backend for single-node deployments and the fixture for tests.
type MemoryStore struct {
	mu         sync.RWMutex
	indicators map[string]*models.Indicator
	events     map[string][]*models.Event
	nodes      map[string]*models.GraphNode
	edges      []*models.GraphEdge
	alerts     map[string][]*models.Alert

	// maxEventsPerIndicator bounds per-indicator history; 0 keeps all.
	maxEventsPerIndicator int
}

// NewMemoryStore creates an empty in-memory store. maxEventsPerIndicator
// bounds retained history per indicator (0 = unbounded).
func NewMemoryStore(maxEventsPerIndicator int) *MemoryStore {
	return &MemoryStore{
		indicators:            make(map[string]*models.Indicator),
		events:                make(map[string][]*models.Event),
		nodes:                 make(map[string]*models.GraphNode),
		alerts:                make(map[string][]*models.Alert),
		maxEventsPerIndicator: maxEventsPerIndicator,
	}
}

// UpsertIndicator creates or max-merges an indicator record.
func (s *MemoryStore) UpsertIndicator(ctx context.Context, ind *models.Indicator) (*models.Indicator, error) {
	if ind == nil || ind.ID == "" {
		return nil, fmt.Errorf("upsert indicator: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.indicators[ind.ID]
	if !ok {
		stored := cloneIndicator(ind)
		s.indicators[ind.ID] = stored
		return cloneIndicator(stored), nil
	}
	existing.Merge(ind)
	return cloneIndicator(existing), nil
}

// GetIndicator returns the indicator or ErrNotFound.
func (s *MemoryStore) GetIndicator(ctx context.Context, id string) (*models.Indicator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ind, ok := s.indicators[id]
	if !ok {
		return nil, fmt.Errorf("get indicator %s: %w", id, ErrNotFound)
	}
	return cloneIndicator(ind), nil
}

// AppendEvent stores one immutable event.
func (s *MemoryStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	if ev == nil || ev.IndicatorID == "" {
		return fmt.Errorf("append event: missing indicator id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indicators[ev.IndicatorID]; !ok {
		return fmt.Errorf("append event for %s: %w", ev.IndicatorID, ErrNotFound)
	}
	cp := *ev
	s.events[ev.IndicatorID] = append(s.events[ev.IndicatorID], &cp)
	if s.maxEventsPerIndicator > 0 && len(s.events[ev.IndicatorID]) > s.maxEventsPerIndicator {
		overflow := len(s.events[ev.IndicatorID]) - s.maxEventsPerIndicator
		s.events[ev.IndicatorID] = s.events[ev.IndicatorID][overflow:]
	}
	return nil
}

// ListEvents returns up to limit most recent events, ascending by time.
func (s *MemoryStore) ListEvents(ctx context.Context, indicatorID string, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.events[indicatorID]
	out := make([]*models.Event, len(src))
	for i, ev := range src {
		cp := *ev
		out[i] = &cp
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	if limit > 0 && len(out) > limit {
		out = out[len(out)-limit:]
	}
	return out, nil
}

// ListRecentEvents returns events at or after since across all indicators.
func (s *MemoryStore) ListRecentEvents(ctx context.Context, since time.Time, limit int) ([]*models.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*models.Event
	for _, evs := range s.events {
		for _, ev := range evs {
			if ev.Timestamp.Before(since) {
				continue
			}
			cp := *ev
			out = append(out, &cp)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].Timestamp.Before(out[j].Timestamp)
		}
		return out[i].IndicatorID < out[j].IndicatorID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// UpsertNode creates the node if absent and returns the stored record.
func (s *MemoryStore) UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error) {
	if node == nil || node.ID == "" {
		return nil, fmt.Errorf("upsert node: missing id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, ok := s.nodes[node.ID]
	if ok {
		if node.LastSeen.After(existing.LastSeen) {
			existing.LastSeen = node.LastSeen
		}
		cp := *existing
		return &cp, nil
	}
	cp := *node
	s.nodes[node.ID] = &cp
	out := cp
	return &out, nil
}

// GetNode returns the node or ErrNotFound.
func (s *MemoryStore) GetNode(ctx context.Context, id string) (*models.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	node, ok := s.nodes[id]
	if !ok {
		return nil, fmt.Errorf("get node %s: %w", id, ErrNotFound)
	}
	cp := *node
	return &cp, nil
}

// UpdateNodeMetrics refreshes cached analytics on a node.
func (s *MemoryStore) UpdateNodeMetrics(ctx context.Context, id string, pagerank, centrality float64, clusterID int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	node, ok := s.nodes[id]
	if !ok {
		return fmt.Errorf("update node metrics %s: %w", id, ErrNotFound)
	}
	node.PageRank = pagerank
	node.Centrality = centrality
	node.ClusterID = clusterID
	return nil
}

// AddEdge appends a directed edge after checking both endpoints exist.
func (s *MemoryStore) AddEdge(ctx context.Context, edge *models.GraphEdge) error {
	if edge == nil || edge.SourceID == "" || edge.TargetID == "" {
		return fmt.Errorf("add edge: missing endpoint")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.nodes[edge.SourceID]; !ok {
		return fmt.Errorf("add edge source %s: %w", edge.SourceID, ErrNotFound)
	}
	if _, ok := s.nodes[edge.TargetID]; !ok {
		return fmt.Errorf("add edge target %s: %w", edge.TargetID, ErrNotFound)
	}
	cp := *edge
	s.edges = append(s.edges, &cp)
	return nil
}

// ListNodes returns all graph nodes.
func (s *MemoryStore) ListNodes(ctx context.Context) ([]*models.GraphNode, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.GraphNode, 0, len(s.nodes))
	for _, node := range s.nodes {
		cp := *node
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListEdges returns all graph edges in insertion order.
func (s *MemoryStore) ListEdges(ctx context.Context) ([]*models.GraphEdge, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*models.GraphEdge, len(s.edges))
	for i, edge := range s.edges {
		cp := *edge
		out[i] = &cp
	}
	return out, nil
}

// AppendAlert stores one alert; the referenced indicator must exist.
func (s *MemoryStore) AppendAlert(ctx context.Context, alert *models.Alert) error {
	if alert == nil || alert.IndicatorID == "" {
		return fmt.Errorf("append alert: missing indicator id")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.indicators[alert.IndicatorID]; !ok {
		return fmt.Errorf("append alert for %s: %w", alert.IndicatorID, ErrNotFound)
	}
	cp := *alert
	s.alerts[alert.IndicatorID] = append(s.alerts[alert.IndicatorID], &cp)
	return nil
}

// ListAlerts returns up to limit most recent alerts in append order.
func (s *MemoryStore) ListAlerts(ctx context.Context, indicatorID string, limit int) ([]*models.Alert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	src := s.alerts[indicatorID]
	start := 0
	if limit > 0 && len(src) > limit {
		start = len(src) - limit
	}
	out := make([]*models.Alert, 0, len(src)-start)
	for _, alert := range src[start:] {
		cp := *alert
		out = append(out, &cp)
	}
	return out, nil
}

// Ping always succeeds for the in-memory store.
func (s *MemoryStore) Ping(ctx context.Context) error { return nil }

// Close releases nothing for the in-memory store.
func (s *MemoryStore) Close() error { return nil }

func cloneIndicator(ind *models.Indicator) *models.Indicator {
	cp := *ind
	if ind.Metadata != nil {
		cp.Metadata = make(map[string]string, len(ind.Metadata))
		for k, v := range ind.Metadata {
			cp.Metadata[k] = v
		}
	}
	return &cp
}
