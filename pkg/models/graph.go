package models

import "time"

// GraphNode is one entity in the relationship graph, one per distinct
// (entity type, value) pair. The analytic fields are caches refreshed by
// full recomputation.
type GraphNode struct {
	ID         string        `json:"id"`
	Type       IndicatorType `json:"type"`
	Value      string        `json:"value"`
	PageRank   float64       `json:"pagerank"`
	Centrality float64       `json:"centrality"`
	ClusterID  int           `json:"cluster_id"`
	FirstSeen  time.Time     `json:"first_seen"`
	LastSeen   time.Time     `json:"last_seen"`
}

// NodeID derives the stable node identifier for a (type, value) pair.
// It intentionally matches IndicatorID so indicator nodes and indicators
// share keys.
func NodeID(typ IndicatorType, value string) string {
	return string(typ) + ":" + value
}

// GraphEdge is a directed, typed relation between two nodes with a weight
// in (0,1]. Parallel edges with different relation types are allowed.
type GraphEdge struct {
	SourceID  string    `json:"source_id"`
	TargetID  string    `json:"target_id"`
	Relation  string    `json:"relation"`
	Weight    float64   `json:"weight"`
	CreatedAt time.Time `json:"created_at"`
}
