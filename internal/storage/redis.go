package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// RedisConfig configures the Redis-backed store.
type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string
	// Timeout bounds every storage call. Exceeding it surfaces as
	// ErrUnavailable wrapping context.DeadlineExceeded.
	Timeout time.Duration
	// MaxEventsPerIndicator bounds retained per-indicator history.
	MaxEventsPerIndicator int
	// MaxRecentEvents bounds the cross-indicator recency index.
	MaxRecentEvents int
}

// RedisStore persists indicators, events, graph records and alerts in
// Redis under a configurable key prefix.
type RedisStore struct {
	client    *redis.Client
	prefix    string
	timeout   time.Duration
	maxEvents int
	maxRecent int
}

// NewRedisStore connects to Redis and verifies reachability.
func NewRedisStore(cfg RedisConfig) (*RedisStore, error) {
	if strings.TrimSpace(cfg.Addr) == "" {
		cfg.Addr = "127.0.0.1:6379"
	}
	if strings.TrimSpace(cfg.KeyPrefix) == "" {
		cfg.KeyPrefix = "threatengine"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.MaxEventsPerIndicator <= 0 {
		cfg.MaxEventsPerIndicator = 1000
	}
	if cfg.MaxRecentEvents <= 0 {
		cfg.MaxRecentEvents = 10000
	}

	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	s := &RedisStore{
		client:    client,
		prefix:    strings.TrimSpace(cfg.KeyPrefix),
		timeout:   cfg.Timeout,
		maxEvents: cfg.MaxEventsPerIndicator,
		maxRecent: cfg.MaxRecentEvents,
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Timeout)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis store: %w: %v", ErrUnavailable, err)
	}
	return s, nil
}

func (s *RedisStore) opCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.timeout)
}

func wrapRedisErr(op string, err error) error {
	if errors.Is(err, redis.Nil) {
		return fmt.Errorf("%s: %w", op, ErrNotFound)
	}
	return fmt.Errorf("%s: %w: %v", op, ErrUnavailable, err)
}

// UpsertIndicator creates or max-merges an indicator record.
func (s *RedisStore) UpsertIndicator(ctx context.Context, ind *models.Indicator) (*models.Indicator, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.key("indicator", ind.ID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err != nil && !errors.Is(err, redis.Nil) {
		return nil, wrapRedisErr("get indicator", err)
	}

	stored := ind
	if err == nil {
		var existing models.Indicator
		if jerr := json.Unmarshal(raw, &existing); jerr == nil {
			existing.Merge(ind)
			stored = &existing
		}
	}

	buf, err := json.Marshal(stored)
	if err != nil {
		return nil, fmt.Errorf("marshal indicator: %w", err)
	}
	if err := s.client.Set(ctx, key, buf, 0).Err(); err != nil {
		return nil, wrapRedisErr("set indicator", err)
	}
	cp := *stored
	return &cp, nil
}

// GetIndicator returns the indicator or ErrNotFound.
func (s *RedisStore) GetIndicator(ctx context.Context, id string) (*models.Indicator, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key("indicator", id)).Bytes()
	if err != nil {
		return nil, wrapRedisErr("get indicator "+id, err)
	}
	var ind models.Indicator
	if err := json.Unmarshal(raw, &ind); err != nil {
		return nil, fmt.Errorf("decode indicator %s: %w", id, err)
	}
	return &ind, nil
}

// AppendEvent stores one immutable event and indexes it for recency scans.
func (s *RedisStore) AppendEvent(ctx context.Context, ev *models.Event) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	buf, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}

	pipe := s.client.Pipeline()
	listKey := s.key("events", ev.IndicatorID)
	pipe.RPush(ctx, listKey, buf)
	pipe.LTrim(ctx, listKey, int64(-s.maxEvents), -1)
	pipe.ZAdd(ctx, s.key("events", "recent"), redis.Z{Score: float64(ev.Timestamp.UnixNano()), Member: string(buf)})
	pipe.ZRemRangeByRank(ctx, s.key("events", "recent"), 0, int64(-s.maxRecent-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return wrapRedisErr("append event", err)
	}
	return nil
}

// ListEvents returns up to limit most recent events, ascending by time.
func (s *RedisStore) ListEvents(ctx context.Context, indicatorID string, limit int) ([]*models.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := s.client.LRange(ctx, s.key("events", indicatorID), start, -1).Result()
	if err != nil {
		return nil, wrapRedisErr("list events "+indicatorID, err)
	}
	out := make([]*models.Event, 0, len(rows))
	for _, row := range rows {
		var ev models.Event
		if err := json.Unmarshal([]byte(row), &ev); err != nil {
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

// ListRecentEvents scans the cross-indicator recency index.
func (s *RedisStore) ListRecentEvents(ctx context.Context, since time.Time, limit int) ([]*models.Event, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	args := &redis.ZRangeBy{
		Min: fmt.Sprintf("%d", since.UnixNano()),
		Max: "+inf",
	}
	if limit > 0 {
		args.Count = int64(limit)
	}
	rows, err := s.client.ZRangeByScore(ctx, s.key("events", "recent"), args).Result()
	if err != nil {
		return nil, wrapRedisErr("list recent events", err)
	}
	out := make([]*models.Event, 0, len(rows))
	for _, row := range rows {
		var ev models.Event
		if err := json.Unmarshal([]byte(row), &ev); err != nil {
			continue
		}
		out = append(out, &ev)
	}
	return out, nil
}

// UpsertNode creates the node if absent and returns the stored record.
func (s *RedisStore) UpsertNode(ctx context.Context, node *models.GraphNode) (*models.GraphNode, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	key := s.key("node", node.ID)
	raw, err := s.client.Get(ctx, key).Bytes()
	if err == nil {
		var existing models.GraphNode
		if jerr := json.Unmarshal(raw, &existing); jerr == nil {
			if node.LastSeen.After(existing.LastSeen) {
				existing.LastSeen = node.LastSeen
				if buf, merr := json.Marshal(&existing); merr == nil {
					_ = s.client.Set(ctx, key, buf, 0).Err()
				}
			}
			return &existing, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		return nil, wrapRedisErr("get node", err)
	}

	buf, err := json.Marshal(node)
	if err != nil {
		return nil, fmt.Errorf("marshal node: %w", err)
	}
	pipe := s.client.Pipeline()
	pipe.Set(ctx, key, buf, 0)
	pipe.SAdd(ctx, s.key("nodes", "all"), node.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, wrapRedisErr("set node", err)
	}
	cp := *node
	return &cp, nil
}

// GetNode returns the node or ErrNotFound.
func (s *RedisStore) GetNode(ctx context.Context, id string) (*models.GraphNode, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	raw, err := s.client.Get(ctx, s.key("node", id)).Bytes()
	if err != nil {
		return nil, wrapRedisErr("get node "+id, err)
	}
	var node models.GraphNode
	if err := json.Unmarshal(raw, &node); err != nil {
		return nil, fmt.Errorf("decode node %s: %w", id, err)
	}
	return &node, nil
}

// UpdateNodeMetrics refreshes cached analytics on a node.
func (s *RedisStore) UpdateNodeMetrics(ctx context.Context, id string, pagerank, centrality float64, clusterID int) error {
	node, err := s.GetNode(ctx, id)
	if err != nil {
		return err
	}
	node.PageRank = pagerank
	node.Centrality = centrality
	node.ClusterID = clusterID

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	buf, err := json.Marshal(node)
	if err != nil {
		return fmt.Errorf("marshal node: %w", err)
	}
	if err := s.client.Set(ctx, s.key("node", id), buf, 0).Err(); err != nil {
		return wrapRedisErr("update node metrics", err)
	}
	return nil
}

// AddEdge appends a directed edge after checking both endpoints exist.
func (s *RedisStore) AddEdge(ctx context.Context, edge *models.GraphEdge) error {
	if _, err := s.GetNode(ctx, edge.SourceID); err != nil {
		return fmt.Errorf("edge source: %w", err)
	}
	if _, err := s.GetNode(ctx, edge.TargetID); err != nil {
		return fmt.Errorf("edge target: %w", err)
	}

	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	buf, err := json.Marshal(edge)
	if err != nil {
		return fmt.Errorf("marshal edge: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("edges", "all"), buf).Err(); err != nil {
		return wrapRedisErr("add edge", err)
	}
	return nil
}

// ListNodes returns all graph nodes.
func (s *RedisStore) ListNodes(ctx context.Context) ([]*models.GraphNode, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	ids, err := s.client.SMembers(ctx, s.key("nodes", "all")).Result()
	if err != nil {
		return nil, wrapRedisErr("list nodes", err)
	}
	out := make([]*models.GraphNode, 0, len(ids))
	for _, id := range ids {
		raw, err := s.client.Get(ctx, s.key("node", id)).Bytes()
		if err != nil {
			continue
		}
		var node models.GraphNode
		if err := json.Unmarshal(raw, &node); err != nil {
			continue
		}
		out = append(out, &node)
	}
	return out, nil
}

// ListEdges returns all graph edges in insertion order.
func (s *RedisStore) ListEdges(ctx context.Context) ([]*models.GraphEdge, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	rows, err := s.client.LRange(ctx, s.key("edges", "all"), 0, -1).Result()
	if err != nil {
		return nil, wrapRedisErr("list edges", err)
	}
	out := make([]*models.GraphEdge, 0, len(rows))
	for _, row := range rows {
		var edge models.GraphEdge
		if err := json.Unmarshal([]byte(row), &edge); err != nil {
			continue
		}
		out = append(out, &edge)
	}
	return out, nil
}

// AppendAlert stores one alert in the indicator's append-only history.
func (s *RedisStore) AppendAlert(ctx context.Context, alert *models.Alert) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	buf, err := json.Marshal(alert)
	if err != nil {
		return fmt.Errorf("marshal alert: %w", err)
	}
	if err := s.client.RPush(ctx, s.key("alerts", alert.IndicatorID), buf).Err(); err != nil {
		return wrapRedisErr("append alert", err)
	}
	return nil
}

// ListAlerts returns up to limit most recent alerts in append order.
func (s *RedisStore) ListAlerts(ctx context.Context, indicatorID string, limit int) ([]*models.Alert, error) {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()

	start := int64(0)
	if limit > 0 {
		start = int64(-limit)
	}
	rows, err := s.client.LRange(ctx, s.key("alerts", indicatorID), start, -1).Result()
	if err != nil {
		return nil, wrapRedisErr("list alerts "+indicatorID, err)
	}
	out := make([]*models.Alert, 0, len(rows))
	for _, row := range rows {
		var alert models.Alert
		if err := json.Unmarshal([]byte(row), &alert); err != nil {
			continue
		}
		out = append(out, &alert)
	}
	return out, nil
}

// Ping verifies the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	ctx, cancel := s.opCtx(ctx)
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return wrapRedisErr("ping", err)
	}
	return nil
}

// Close releases the Redis client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) key(kind, id string) string {
	return s.prefix + ":" + kind + ":" + id
}
