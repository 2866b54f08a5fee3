package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/u7k4rs6/threat-intelligence-engine/config"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/features"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/graph"
	inputredis "github.com/u7k4rs6/threat-intelligence-engine/internal/input/redis"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/logger"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/metrics"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/ml"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/output/alertclickhouse"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/output/alerthttp"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/output/alertjson"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/pipeline"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/rules"
	"github.com/u7k4rs6/threat-intelligence-engine/internal/storage"
)

func findConfigFile(configArg string) string {
	if configArg != "" {
		path := configArg
		if _, err := os.Stat(path); err == nil {
			return path
		}
		log.Printf("Warning: config file not found at %s, trying default locations", path)
	}

	if _, err := os.Stat("threatengine.yml"); err == nil {
		return "threatengine.yml"
	}

	exePath, err := os.Executable()
	if err == nil {
		exeDir := filepath.Dir(exePath)
		path := filepath.Join(exeDir, "threatengine.yml")
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}

	return "threatengine.yml"
}

func applyDefaults(cfg *config.Config) {
	if cfg.Engine.Input.Redis.Addr == "" {
		cfg.Engine.Input.Redis.Addr = "127.0.0.1:6379"
	}
	if cfg.Engine.Input.Redis.Key == "" {
		cfg.Engine.Input.Redis.Key = "telemetry_events"
	}
	if cfg.Engine.Input.Redis.BlockTimeout == 0 {
		cfg.Engine.Input.Redis.BlockTimeout = 5 * time.Second
	}

	if cfg.Engine.Pipeline.Workers <= 0 {
		cfg.Engine.Pipeline.Workers = 8
	}
	if cfg.Engine.Pipeline.BatchSize <= 0 {
		cfg.Engine.Pipeline.BatchSize = 1000
	}
	if cfg.Engine.Pipeline.FlushInterval <= 0 {
		cfg.Engine.Pipeline.FlushInterval = 2 * time.Second
	}
	if cfg.Engine.Pipeline.RebuildInterval <= 0 {
		cfg.Engine.Pipeline.RebuildInterval = time.Minute
	}

	if cfg.Engine.Storage.Mode == "" {
		cfg.Engine.Storage.Mode = "memory"
	}
	if cfg.Engine.Storage.MaxEventsPerIndicator <= 0 {
		cfg.Engine.Storage.MaxEventsPerIndicator = 1000
	}

	if cfg.Engine.Alerts.Output.Mode == "" {
		cfg.Engine.Alerts.Output.Mode = "file"
	}
	if cfg.Engine.Alerts.Output.File.Path == "" {
		cfg.Engine.Alerts.Output.File.Path = "output/alerts.jsonl"
	}
	if cfg.Engine.Alerts.Output.ClickHouse.Database == "" {
		cfg.Engine.Alerts.Output.ClickHouse.Database = "threatengine"
	}
	if cfg.Engine.Alerts.Output.ClickHouse.Table == "" {
		cfg.Engine.Alerts.Output.ClickHouse.Table = "alerts"
	}

	if cfg.Engine.Server.Addr == "" {
		cfg.Engine.Server.Addr = ":9180"
	}

	if cfg.Engine.Logging.Level == "" {
		cfg.Engine.Logging.Level = "info"
	}
}

func main() {
	configArg := ""
	if len(os.Args) > 1 {
		configArg = os.Args[1]
	}

	configPath := findConfigFile(configArg)

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	applyDefaults(cfg)

	if err := logger.Init(cfg.Engine.Logging.Enabled, cfg.Engine.Logging.Level, cfg.Engine.Logging.File, cfg.Engine.Logging.Console); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	logger.Infof("Threat intelligence engine starting")
	logger.Infof("Config loaded from: %s", configPath)

	var store storage.Store
	switch cfg.Engine.Storage.Mode {
	case "memory":
		store = storage.NewMemoryStore(cfg.Engine.Storage.MaxEventsPerIndicator)
		logger.Infof("Storage mode: memory")
	case "redis":
		s, err := storage.NewRedisStore(storage.RedisConfig{
			Addr:                  cfg.Engine.Storage.Redis.Addr,
			Password:              cfg.Engine.Storage.Redis.Password,
			DB:                    cfg.Engine.Storage.Redis.DB,
			KeyPrefix:             cfg.Engine.Storage.Redis.KeyPrefix,
			Timeout:               cfg.Engine.Storage.Redis.Timeout,
			MaxEventsPerIndicator: cfg.Engine.Storage.MaxEventsPerIndicator,
			MaxRecentEvents:       cfg.Engine.Storage.Redis.MaxRecentEvents,
		})
		if err != nil {
			logger.Errorf("Failed to connect to Redis storage: %v", err)
			log.Fatalf("Failed to connect to Redis storage: %v", err)
		}
		store = s
		logger.Infof("Storage mode: redis (%s)", cfg.Engine.Storage.Redis.Addr)
	default:
		log.Fatalf("Unknown storage mode: %s", cfg.Engine.Storage.Mode)
	}

	consumer, err := inputredis.NewConsumer(inputredis.Config{
		Addr:         cfg.Engine.Input.Redis.Addr,
		Password:     cfg.Engine.Input.Redis.Password,
		DB:           cfg.Engine.Input.Redis.DB,
		Key:          cfg.Engine.Input.Redis.Key,
		BlockTimeout: cfg.Engine.Input.Redis.BlockTimeout,
	})
	if err != nil {
		logger.Errorf("Failed to create Redis consumer: %v", err)
		log.Fatalf("Failed to create Redis consumer: %v", err)
	}

	extractor := features.NewExtractor(store, store, features.Config{
		WindowSize:     cfg.Engine.Features.WindowSize,
		BaselineMean:   cfg.Engine.Features.BaselineMean,
		BaselineStddev: cfg.Engine.Features.BaselineStddev,
		HighRiskGeos:   cfg.Engine.Features.HighRiskGeos,
		Denylist:       cfg.Engine.Features.Denylist,
	})

	ruleEngine := rules.NewDefaultEngine()
	if cfg.Engine.Rules.Sigma.Enabled {
		if strings.TrimSpace(cfg.Engine.Rules.Sigma.Path) == "" {
			logger.Warnf("Sigma rules enabled but rules.sigma.path is empty; skipping")
		} else {
			sigmaRules, stats, err := rules.LoadSigmaRules(cfg.Engine.Rules.Sigma.Path)
			if err != nil {
				logger.Errorf("Failed to load Sigma rules from %s: %v", cfg.Engine.Rules.Sigma.Path, err)
				log.Fatalf("Failed to load Sigma rules: %v", err)
			}
			for _, r := range sigmaRules {
				if err := ruleEngine.Register(r); err != nil {
					logger.Warnf("Skipping Sigma rule %s: %v", r.ID, err)
				}
			}
			logger.Infof("Sigma rules loaded: loaded=%d skipped_complex=%d skipped_invalid=%d files=%d",
				stats.Loaded,
				stats.SkippedComplex,
				stats.SkippedInvalid,
				stats.TotalFiles,
			)
			if stats.Loaded == 0 {
				logger.Warnf("No compatible Sigma rules loaded; only the built-in rule set is active")
			}
		}
	}

	graphEngine := graph.NewEngine(store, graph.Config{
		Damping:             cfg.Engine.Graph.Damping,
		Iterations:          cfg.Engine.Graph.Iterations,
		CommunityThreshold:  cfg.Engine.Graph.CommunityThreshold,
		CorrelationWindow:   cfg.Engine.Graph.CorrelationWindow,
		CorrelationLookback: cfg.Engine.Graph.CorrelationLookback,
		RecentLimit:         cfg.Engine.Graph.RecentLimit,
	})

	var alertWriter pipeline.AlertWriter
	switch cfg.Engine.Alerts.Output.Mode {
	case "file":
		w, err := alertjson.NewWriter(cfg.Engine.Alerts.Output.File.Path)
		if err != nil {
			logger.Errorf("Failed to create alert file writer: %v", err)
			log.Fatalf("Failed to create alert file writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: file (%s)", cfg.Engine.Alerts.Output.File.Path)
	case "http":
		w, err := alerthttp.NewWriter(alerthttp.Config{
			URL:     cfg.Engine.Alerts.Output.HTTP.URL,
			Timeout: cfg.Engine.Alerts.Output.HTTP.Timeout,
			Headers: cfg.Engine.Alerts.Output.HTTP.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create alert HTTP writer: %v", err)
			log.Fatalf("Failed to create alert HTTP writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: http (%s)", cfg.Engine.Alerts.Output.HTTP.URL)
	case "clickhouse":
		w, err := alertclickhouse.NewWriter(alertclickhouse.Config{
			URL:      cfg.Engine.Alerts.Output.ClickHouse.URL,
			Database: cfg.Engine.Alerts.Output.ClickHouse.Database,
			Table:    cfg.Engine.Alerts.Output.ClickHouse.Table,
			Username: cfg.Engine.Alerts.Output.ClickHouse.Username,
			Password: cfg.Engine.Alerts.Output.ClickHouse.Password,
			Timeout:  cfg.Engine.Alerts.Output.ClickHouse.Timeout,
			Headers:  cfg.Engine.Alerts.Output.ClickHouse.Headers,
		})
		if err != nil {
			logger.Errorf("Failed to create alert ClickHouse writer: %v", err)
			log.Fatalf("Failed to create alert ClickHouse writer: %v", err)
		}
		alertWriter = w
		logger.Infof("Alert output mode: clickhouse (%s/%s.%s)", cfg.Engine.Alerts.Output.ClickHouse.URL, cfg.Engine.Alerts.Output.ClickHouse.Database, cfg.Engine.Alerts.Output.ClickHouse.Table)
	default:
		log.Fatalf("Unknown alert output mode: %s", cfg.Engine.Alerts.Output.Mode)
	}

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(registry)

	pipe := pipeline.New(consumer, store, extractor, ruleEngine, ml.NewScorer(), graphEngine, alertWriter, m, pipeline.Config{
		Workers:         cfg.Engine.Pipeline.Workers,
		BatchSize:       cfg.Engine.Pipeline.BatchSize,
		FlushInterval:   cfg.Engine.Pipeline.FlushInterval,
		RebuildInterval: cfg.Engine.Pipeline.RebuildInterval,
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	srv := &http.Server{
		Addr:    cfg.Engine.Server.Addr,
		Handler: newRouter(store, graphEngine, ruleEngine, registry),
	}
	go func() {
		logger.Infof("Operational listener on %s", cfg.Engine.Server.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Errorf("Operational listener failed: %v", err)
		}
	}()

	go func() {
		if err := pipe.Run(ctx); err != nil && err != context.Canceled {
			logger.Errorf("Pipeline error: %v", err)
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	logger.Infof("Shutting down")
	cancel()
	time.Sleep(1 * time.Second)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Errorf("Error shutting down listener: %v", err)
	}
	shutdownCancel()

	if err := pipe.Close(); err != nil {
		logger.Errorf("Error closing pipeline: %v", err)
	}
	if err := store.Close(); err != nil {
		logger.Errorf("Error closing storage: %v", err)
	}

	logger.Infof("Threat intelligence engine stopped")
	logger.Sync()
}

func newRouter(store storage.Store, graphEngine *graph.Engine, ruleEngine *rules.Engine, registry *prometheus.Registry) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Get("/readyz", func(w http.ResponseWriter, req *http.Request) {
		pingCtx, pingCancel := context.WithTimeout(req.Context(), 2*time.Second)
		defer pingCancel()
		if err := store.Ping(pingCtx); err != nil {
			http.Error(w, "storage unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ready"))
	})

	r.Get("/statsz", func(w http.ResponseWriter, req *http.Request) {
		stats, err := graphEngine.Stats(req.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"graph_nodes": stats.Nodes,
			"graph_edges": stats.Edges,
			"rules":       len(ruleEngine.Rules()),
		})
	})

	r.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	return r
}
