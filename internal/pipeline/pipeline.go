// Package pipeline wires ingestion, feature extraction, scoring and alert
// output into one streaming loop.
package pipeline

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/u7k4rs6/threat-intelligence-engine/internal/features"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/graph"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/logger"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/metrics"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/ml"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/mitre"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/risk"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/rules"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/transform/canonical"
	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// ruleEventWindow bounds the event history handed to rule predicates.
const ruleEventWindow = 1000

// Source feeds raw canonical event payloads into the pipeline.
type Source interface {
	// Pop returns the next payload, or nil when none arrived in time.
	Pop(ctx context.Context) ([]byte, error)
	Close() error
}

// AlertWriter sinks scored alert batches.
type AlertWriter interface {
	WriteAlerts(alerts []*models.Alert) error
	Close() error
}

// Config controls pipeline behavior.
type Config struct {
	Workers         int
	BatchSize       int
	FlushInterval   time.Duration
	RebuildInterval time.Duration
}

func (c *Config) applyDefaults() {
	if c.Workers <= 0 {
		c.Workers = 8
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 1000
	}
	if c.FlushInterval <= 0 {
		c.FlushInterval = 2 * time.Second
	}
	if c.RebuildInterval <= 0 {
		c.RebuildInterval = time.Minute
	}
}

// BatchResult summarizes one synchronous batch run.
type BatchResult struct {
	Alerts []*models.Alert
	Failed int
}

// Pipeline is the end-to-end scoring loop: events in, alerts out.
type Pipeline struct {
	source    Source
	store     storage.Store
	extractor *features.Extractor
	rules     *rules.Engine
	scorer    *ml.Scorer
	graph     *graph.Engine
	writer    AlertWriter
	metrics   *metrics.Metrics
	cfg       Config
}

// New creates a pipeline over the given components.
func New(source Source, store storage.Store, extractor *features.Extractor, ruleEngine *rules.Engine, scorer *ml.Scorer, graphEngine *graph.Engine, writer AlertWriter, m *metrics.Metrics, cfg Config) *Pipeline {
	cfg.applyDefaults()
	return &Pipeline{
		source:    source,
		store:     store,
		extractor: extractor,
		rules:     ruleEngine,
		scorer:    scorer,
		graph:     graphEngine,
		writer:    writer,
		metrics:   m,
		cfg:       cfg,
	}
}

// Process scores one canonical event end to end: the indicator is
// upserted, the event appended, all three component scores computed and
// the resulting alert persisted and returned.
func (p *Pipeline) Process(ctx context.Context, ev *canonical.Event) (*models.Alert, error) {
	started := time.Now()

	ind, err := p.store.UpsertIndicator(ctx, models.NewIndicator(ev.IndicatorType, ev.IndicatorValue, ev.Source, ev.Confidence, ev.Timestamp))
	if err != nil {
		return nil, err
	}

	event := &models.Event{
		ID:          uuid.NewString(),
		IndicatorID: ind.ID,
		Type:        ev.EventType,
		Timestamp:   ev.Timestamp,
		Source:      ev.Source,
		Frequency:   ev.Frequency,
		Port:        ev.Port,
		Geolocation: ev.Geolocation,
		PayloadSize: ev.PayloadSize,
		Metadata:    ev.Metadata,
	}
	if err := p.store.AppendEvent(ctx, event); err != nil {
		return nil, err
	}

	fv, err := p.extractor.Extract(ctx, ind.ID)
	if err != nil {
		if !errors.Is(err, features.ErrNoData) {
			return nil, err
		}
		// No usable history: score against a neutral vector.
		fv = &models.FeatureVector{IndicatorID: ind.ID}
	}

	history, err := p.store.ListEvents(ctx, ind.ID, ruleEventWindow)
	if err != nil {
		return nil, err
	}

	// Rules and the ML ensemble read the same inputs and never block, so
	// they run in parallel.
	var (
		wg      sync.WaitGroup
		ruleRes rules.Result
		mlRes   ml.Result
		mlErr   error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		ruleRes = p.rules.Evaluate(fv, history)
	}()
	go func() {
		defer wg.Done()
		mlRes, mlErr = p.scorer.Score(fv.Normalized())
	}()
	wg.Wait()
	if mlErr != nil {
		return nil, mlErr
	}

	// Graph failures degrade only the graph component; the alert still
	// carries the other two scores.
	if err := p.graph.UpdateFromEvent(ctx, event, ind); err != nil {
		logger.Warnf("Graph update failed for %s: %v", ind.ID, err)
	}
	graphRes, err := p.graph.Score(ctx, ind.Type, ind.Value)
	if err != nil {
		logger.Warnf("Graph score failed for %s: %v", ind.ID, err)
		graphRes = graph.Result{}
	}

	final, severity := risk.Aggregate(float64(ruleRes.Score), float64(mlRes.Score), float64(graphRes.Score))

	triggered := make([]string, 0, len(ruleRes.Triggered))
	for _, m := range ruleRes.Triggered {
		triggered = append(triggered, m.ID)
	}

	alert := &models.Alert{
		ID:             uuid.NewString(),
		IndicatorID:    ind.ID,
		IndicatorType:  ind.Type,
		IndicatorValue: ind.Value,
		EventID:        event.ID,
		RuleScore:      ruleRes.Score,
		MLScore:        mlRes.Score,
		GraphScore:     graphRes.Score,
		RiskScore:      final,
		Severity:       severity,
		Stage:          mitre.MapStage(event.Type),
		TriggeredRules: triggered,
		Details: map[string]interface{}{
			"anomaly_score": mlRes.AnomalyScore,
			"is_anomaly":    mlRes.IsAnomaly,
			"probability":   mlRes.Probability,
			"pagerank":      graphRes.PageRank,
			"centrality":    graphRes.Centrality,
			"cluster_id":    graphRes.ClusterID,
		},
		CreatedAt: time.Now().UTC(),
	}
	if err := p.store.AppendAlert(ctx, alert); err != nil {
		return nil, err
	}

	if p.metrics != nil {
		p.metrics.EventsProcessed.Inc()
		p.metrics.AlertsEmitted.WithLabelValues(string(severity)).Inc()
		p.metrics.ScoreLatency.Observe(time.Since(started).Seconds())
	}
	return alert, nil
}

// ProcessBatch scores a batch synchronously. A failing item is counted
// and skipped; it never aborts the rest of the batch.
func (p *Pipeline) ProcessBatch(ctx context.Context, events []*canonical.Event) BatchResult {
	var result BatchResult
	for _, ev := range events {
		alert, err := p.Process(ctx, ev)
		if err != nil {
			logger.Warnf("Batch item failed: %v", err)
			result.Failed++
			if p.metrics != nil {
				p.metrics.ItemFailures.Inc()
			}
			continue
		}
		result.Alerts = append(result.Alerts, alert)
	}
	return result
}

// Run starts the streaming loop and blocks until the context is done.
// Events are sharded across workers by indicator value so alerts for one
// indicator are always produced in arrival order.
func (p *Pipeline) Run(ctx context.Context) error {
	logger.Infof("Pipeline started: workers=%d batch_size=%d", p.cfg.Workers, p.cfg.BatchSize)

	msgCh := make(chan []byte, p.cfg.Workers*4)
	workChs := make([]chan *canonical.Event, p.cfg.Workers)
	for i := range workChs {
		workChs[i] = make(chan *canonical.Event, 4)
	}
	alertCh := make(chan *models.Alert, p.cfg.Workers*4)

	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.readLoop(ctx, msgCh)
		close(msgCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.shardLoop(ctx, msgCh, workChs)
		for _, ch := range workChs {
			close(ch)
		}
	}()

	var workerWg sync.WaitGroup
	for i := 0; i < p.cfg.Workers; i++ {
		workerWg.Add(1)
		go func(in <-chan *canonical.Event) {
			defer workerWg.Done()
			p.workerLoop(ctx, in, alertCh)
		}(workChs[i])
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		workerWg.Wait()
		close(alertCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.writeLoop(ctx, alertCh)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		p.rebuildLoop(ctx)
	}()

	<-ctx.Done()
	wg.Wait()
	return ctx.Err()
}

// Close releases pipeline resources.
func (p *Pipeline) Close() error {
	if p.writer != nil {
		if err := p.writer.Close(); err != nil {
			logger.Errorf("Failed to close alert writer: %v", err)
		}
	}
	if p.source != nil {
		return p.source.Close()
	}
	return nil
}

func (p *Pipeline) readLoop(ctx context.Context, out chan<- []byte) {
	for {
		payload, err := p.source.Pop(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Errorf("Failed to pop event: %v", err)
			time.Sleep(500 * time.Millisecond)
			continue
		}
		if payload == nil {
			if ctx.Err() != nil {
				return
			}
			continue
		}
		select {
		case out <- payload:
		case <-ctx.Done():
			return
		}
	}
}

// shardLoop parses payloads and routes each event to the worker that owns
// its indicator.
func (p *Pipeline) shardLoop(ctx context.Context, in <-chan []byte, out []chan *canonical.Event) {
	for payload := range in {
		ev, err := canonical.Parse(payload)
		if err != nil {
			logger.Warnf("Failed to parse event: %v", err)
			if p.metrics != nil {
				p.metrics.ItemFailures.Inc()
			}
			continue
		}
		select {
		case out[shardFor(ev.IndicatorValue, len(out))] <- ev:
		case <-ctx.Done():
			return
		}
	}
}

func shardFor(indicatorValue string, workers int) int {
	h := fnv.New32a()
	h.Write([]byte(indicatorValue))
	return int(h.Sum32() % uint32(workers))
}

func (p *Pipeline) workerLoop(ctx context.Context, in <-chan *canonical.Event, out chan<- *models.Alert) {
	for ev := range in {
		alert, err := p.Process(ctx, ev)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warnf("Failed to score event for %s: %v", ev.IndicatorValue, err)
			if p.metrics != nil {
				p.metrics.ItemFailures.Inc()
			}
			continue
		}
		select {
		case out <- alert:
		case <-ctx.Done():
			return
		}
	}
}

func (p *Pipeline) writeLoop(ctx context.Context, in <-chan *models.Alert) {
	ticker := time.NewTicker(p.cfg.FlushInterval)
	defer ticker.Stop()

	var batch []*models.Alert

	flush := func() {
		if p.writer == nil || len(batch) == 0 {
			return
		}
		for {
			if err := p.writer.WriteAlerts(batch); err != nil {
				logger.Errorf("Failed to write alerts: %v", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(1 * time.Second):
				}
				continue
			}
			batch = nil
			break
		}
	}

	for {
		select {
		case <-ctx.Done():
			flush()
			return
		case <-ticker.C:
			flush()
		case alert, ok := <-in:
			if !ok {
				flush()
				return
			}
			batch = append(batch, alert)
			if len(batch) >= p.cfg.BatchSize {
				flush()
			}
		}
	}
}

// rebuildLoop periodically derives co-occurrence edges from recent event
// history and refreshes graph size gauges.
func (p *Pipeline) rebuildLoop(ctx context.Context) {
	ticker := time.NewTicker(p.cfg.RebuildInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			added, err := p.graph.RebuildRelationships(ctx)
			if err != nil {
				logger.Warnf("Relationship rebuild failed: %v", err)
				continue
			}
			if added > 0 {
				logger.Debugf("Relationship rebuild added %d edges", added)
			}
			if p.metrics != nil {
				if stats, err := p.graph.Stats(ctx); err == nil {
					p.metrics.GraphNodes.Set(float64(stats.Nodes))
					p.metrics.GraphEdges.Set(float64(stats.Edges))
				}
			}
		}
	}
}
