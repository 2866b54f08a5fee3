// Package storage abstracts persistence for indicators, events, graph
// records and alerts. The scoring pipeline only suspends inside these
// calls; implementations must bound every operation with a timeout.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

var (
	// ErrNotFound indicates the requested record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrUnavailable indicates the backing store could not be reached
	// or timed out. The pipeline aborts the current item only.
	ErrUnavailable = errors.New("storage unavailable")
)

// IndicatorStore manages indicator records.
type IndicatorStore interface {
	// UpsertIndicator creates the indicator on first observation or
	// max-merges confidence and seen timestamps into the existing one.
	// The stored record is returned.
	UpsertIndicator(ctx context.Context, ind *models.Indicator) (*models.Indicator, error)
	GetIndicator(ctx context.Context, id string) (*models.Indicator, error)
}

// EventStore manages append-only event history.
type EventStore interface {
	AppendEvent(ctx context.Context, ev *models.Event) error
	// ListEvents returns up to limit most recent events for the
	// indicator, ordered by ascending timestamp.
	ListEvents(ctx context.Context, indicatorID string, limit int) ([]*models.Event, error)
	// ListRecentEvents returns up to limit events observed at or after
	// since, across all indicators, ordered by ascending timestamp.
	ListRecentEvents(ctx context.Context, since time.Time, limit int) ([]*models.Event, error)
}

// GraphStore manages graph nodes and edges.
type GraphStore interface {
	// UpsertNode is idempotent on (type, value); the stored node is
	// returned.
	UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error)
	GetNode(ctx context.Context, id string) (*models.GraphNode, error)
	// UpdateNodeMetrics refreshes the cached analytics on a node.
	UpdateNodeMetrics(ctx context.Context, id string, pagerank, centrality float64, clusterID int) error
	// AddEdge appends a directed edge. Both endpoints must exist;
	// parallel edges are not deduplicated.
	AddEdge(ctx context.Context, edge *models.GraphEdge) error
	ListNodes(ctx context.Context) ([]*models.GraphNode, error)
	ListEdges(ctx context.Context) ([]*models.GraphEdge, error)
}

// AlertStore manages append-only alert history.
type AlertStore interface {
	AppendAlert(ctx context.Context, alert *models.Alert) error
	// ListAlerts returns up to limit most recent alerts for the
	// indicator in append order.
	ListAlerts(ctx context.Context, indicatorID string, limit int) ([]*models.Alert, error)
}

// Store bundles all persistence concerns behind one handle.
type Store interface {
	IndicatorStore
	EventStore
	GraphStore
	AlertStore

	Ping(ctx context.Context) error
	Close() error
}
