// Package graph maintains the entity relationship graph and computes
// centrality, density and community analytics over full-graph snapshots.
package graph

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/logger"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// Store is the persistence surface the engine needs.
type Store interface {
	storage.GraphStore
	storage.EventStore
}

// Config controls graph analytics and relationship inference.
type Config struct {
	// Damping and Iterations parameterize PageRank power iteration.
	Damping    float64
	Iterations int
	// CommunityThreshold is the minimum edge weight for community
	// traversal.
	CommunityThreshold float64
	// CorrelationWindow is the co-occurrence time bucket width.
	CorrelationWindow time.Duration
	// CorrelationLookback bounds how far back rebuild scans events.
	CorrelationLookback time.Duration
	// RecentLimit bounds the number of events scanned per rebuild.
	RecentLimit int
}

func (c *Config) applyDefaults() {
	if c.Damping <= 0 || c.Damping >= 1 {
		c.Damping = 0.85
	}
	if c.Iterations <= 0 {
		c.Iterations = 20
	}
	if c.CommunityThreshold <= 0 {
		c.CommunityThreshold = 0.5
	}
	if c.CorrelationWindow <= 0 {
		c.CorrelationWindow = 5 * time.Minute
	}
	if c.CorrelationLookback <= 0 {
		c.CorrelationLookback = time.Hour
	}
	if c.RecentLimit <= 0 {
		c.RecentLimit = 1000
	}
}

// Result is the graph component score for one entity.
type Result struct {
	Score          int     `json:"score"`
	Found          bool    `json:"found"`
	PageRank       float64 `json:"pagerank"`
	Centrality     float64 `json:"centrality"`
	ClusterDensity float64 `json:"cluster_density"`
	ClusterID      int     `json:"cluster_id"`
}

// Stats summarizes graph size.
type Stats struct {
	Nodes int `json:"nodes"`
	Edges int `json:"edges"`
}

// Engine owns the relationship graph. Mutation and snapshot construction
// are serialized through an RWMutex so metric computation always sees a
// consistent copy; metrics themselves run on the copied snapshot only.
type Engine struct {
	mu    sync.RWMutex
	store Store
	cfg   Config
}

// NewEngine creates a graph engine over the given store.
func NewEngine(store Store, cfg Config) *Engine {
	cfg.applyDefaults()
	return &Engine{store: store, cfg: cfg}
}

// UpsertNode ensures a node exists for (type, value) and returns it.
// Idempotent: re-observing the same pair returns the existing node.
func (e *Engine) UpsertNode(ctx context.Context, typ models.IndicatorType, value string, seenAt time.Time) (*models.GraphNode, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.upsertNodeLocked(ctx, typ, value, seenAt)
}

func (e *Engine) upsertNodeLocked(ctx context.Context, typ models.IndicatorType, value string, seenAt time.Time) (*models.GraphNode, error) {
	node := &models.GraphNode{
		ID:        models.NodeID(typ, value),
		Type:      typ,
		Value:     value,
		FirstSeen: seenAt,
		LastSeen:  seenAt,
	}
	stored, err := e.store.UpsertNode(ctx, node)
	if err != nil {
		return nil, fmt.Errorf("upsert node %s: %w", node.ID, err)
	}
	return stored, nil
}

// AddEdge appends a directed, typed edge. Weight must be in (0,1] and
// both endpoints must already exist.
func (e *Engine) AddEdge(ctx context.Context, sourceID, targetID, relation string, weight float64) error {
	if weight <= 0 || weight > 1 {
		return fmt.Errorf("add edge %s->%s: weight %v outside (0,1]", sourceID, targetID, weight)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.addEdgeLocked(ctx, sourceID, targetID, relation, weight)
}

func (e *Engine) addEdgeLocked(ctx context.Context, sourceID, targetID, relation string, weight float64) error {
	edge := &models.GraphEdge{
		SourceID:  sourceID,
		TargetID:  targetID,
		Relation:  relation,
		Weight:    weight,
		CreatedAt: time.Now().UTC(),
	}
	if err := e.store.AddEdge(ctx, edge); err != nil {
		return fmt.Errorf("add edge %s->%s: %w", sourceID, targetID, err)
	}
	return nil
}

// UpdateFromEvent folds one scored event into the graph: the indicator
// node is upserted and metadata-driven relations are appended.
func (e *Engine) UpdateFromEvent(ctx context.Context, ev *models.Event, ind *models.Indicator) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	node, err := e.upsertNodeLocked(ctx, ind.Type, ind.Value, ev.Timestamp)
	if err != nil {
		return err
	}

	remoteIP := ev.Meta("remote_ip")
	if remoteIP == "" {
		return nil
	}
	ipNode, err := e.upsertNodeLocked(ctx, models.IndicatorIP, remoteIP, ev.Timestamp)
	if err != nil {
		return err
	}

	if ind.Type == models.IndicatorDomain && ev.Type == models.EventDNSQuery {
		return e.addEdgeLocked(ctx, ipNode.ID, node.ID, "resolves_to", 0.9)
	}
	return e.addEdgeLocked(ctx, node.ID, ipNode.ID, "connects_to", 0.7)
}

// RebuildRelationships derives co-occurrence edges from recent event
// history: indicators that produced the same event type inside the same
// time bucket get linked. The rule is deterministic; a fixed scan of the
// same history always yields the same edge set.
func (e *Engine) RebuildRelationships(ctx context.Context) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	since := time.Now().UTC().Add(-e.cfg.CorrelationLookback)
	events, err := e.store.ListRecentEvents(ctx, since, e.cfg.RecentLimit)
	if err != nil {
		return 0, fmt.Errorf("rebuild relationships: %w", err)
	}

	type groupKey struct {
		bucket time.Time
		typ    models.EventType
	}
	groups := make(map[groupKey][]string, 64)
	seenInGroup := make(map[groupKey]map[string]struct{}, 64)
	for _, ev := range events {
		key := groupKey{bucket: ev.Timestamp.Truncate(e.cfg.CorrelationWindow), typ: ev.Type}
		if seenInGroup[key] == nil {
			seenInGroup[key] = make(map[string]struct{}, 4)
		}
		if _, ok := seenInGroup[key][ev.IndicatorID]; ok {
			continue
		}
		seenInGroup[key][ev.IndicatorID] = struct{}{}
		groups[key] = append(groups[key], ev.IndicatorID)
	}

	keys := make([]groupKey, 0, len(groups))
	for key := range groups {
		keys = append(keys, key)
	}
	sort.Slice(keys, func(i, j int) bool {
		if !keys[i].bucket.Equal(keys[j].bucket) {
			return keys[i].bucket.Before(keys[j].bucket)
		}
		return keys[i].typ < keys[j].typ
	})

	added := 0
	linked := make(map[string]struct{}, 64)
	for _, key := range keys {
		members := groups[key]
		if len(members) < 2 {
			continue
		}
		sort.Strings(members)
		anchor := members[0]
		for _, other := range members[1:] {
			pair := anchor + "|" + other
			if _, ok := linked[pair]; ok {
				continue
			}
			linked[pair] = struct{}{}

			if err := e.ensureNodeLocked(ctx, anchor, key.bucket); err != nil {
				logger.Warnf("rebuild: %v", err)
				continue
			}
			if err := e.ensureNodeLocked(ctx, other, key.bucket); err != nil {
				logger.Warnf("rebuild: %v", err)
				continue
			}
			if err := e.addEdgeLocked(ctx, anchor, other, "co_occurrence", 0.6); err != nil {
				logger.Warnf("rebuild: %v", err)
				continue
			}
			added++
		}
	}
	return added, nil
}

func (e *Engine) ensureNodeLocked(ctx context.Context, nodeID string, seenAt time.Time) error {
	typ, value, ok := strings.Cut(nodeID, ":")
	if !ok {
		return fmt.Errorf("malformed node id %q", nodeID)
	}
	_, err := e.upsertNodeLocked(ctx, models.ParseIndicatorType(typ), value, seenAt)
	return err
}

// Score computes the graph component score for one entity from a fresh
// full-graph snapshot. Entities without a node score 0 with no error.
func (e *Engine) Score(ctx context.Context, typ models.IndicatorType, value string) (Result, error) {
	e.mu.RLock()
	snap, err := e.buildSnapshot(ctx)
	e.mu.RUnlock()
	if err != nil {
		return Result{}, err
	}

	id := models.NodeID(typ, value)
	idx, ok := snap.index[id]
	if !ok {
		return Result{}, nil
	}

	ranks := snap.pageRank(e.cfg.Damping, e.cfg.Iterations)
	clusters := snap.communities(e.cfg.CommunityThreshold)

	pr := ranks[idx]
	cent := snap.degreeCentrality(idx)
	density := snap.clusterDensity(idx)

	raw := 0.4*1000*pr + 0.3*100*cent + 0.3*100*density
	if raw > 100 {
		raw = 100
	}

	// Refresh cached analytics on every node; failures only degrade the
	// cache, never the score.
	for i, node := range snap.nodes {
		if err := e.store.UpdateNodeMetrics(ctx, node.ID, ranks[i], snap.degreeCentrality(i), clusters[i]); err != nil {
			logger.Debugf("refresh node metrics %s: %v", node.ID, err)
		}
	}

	return Result{
		Score:          int(math.Round(raw)),
		Found:          true,
		PageRank:       pr,
		Centrality:     cent,
		ClusterDensity: density,
		ClusterID:      clusters[idx],
	}, nil
}

// Stats reports current graph size.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	nodes, err := e.store.ListNodes(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("graph stats: %w", err)
	}
	edges, err := e.store.ListEdges(ctx)
	if err != nil {
		return Stats{}, fmt.Errorf("graph stats: %w", err)
	}
	return Stats{Nodes: len(nodes), Edges: len(edges)}, nil
}
