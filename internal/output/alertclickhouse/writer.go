// Package alertclickhouse batches alerts into ClickHouse over the HTTP
// interface using JSONEachRow.
package alertclickhouse

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/u7k4rs6/threat-intelligence-engine/pkg/models"
)

// Config configures the ClickHouse writer.
type Config struct {
	URL      string
	Database string
	Table    string
	Username string
	Password string
	Timeout  time.Duration
	Headers  map[string]string
}

// Writer inserts alert rows via the ClickHouse HTTP interface.
type Writer struct {
	endpoint string
	username string
	password string
	headers  map[string]string
	client   *http.Client
}

// row is the flattened JSONEachRow shape of one alert.
type row struct {
	AlertID        string `json:"alert_id"`
	IndicatorID    string `json:"indicator_id"`
	IndicatorType  string `json:"indicator_type"`
	IndicatorValue string `json:"indicator_value"`
	EventID        string `json:"event_id"`
	RuleScore      int    `json:"rule_score"`
	MLScore        int    `json:"ml_score"`
	GraphScore     int    `json:"graph_score"`
	RiskScore      int    `json:"risk_score"`
	Severity       string `json:"severity"`
	Stage          string `json:"stage"`
	TriggeredRules string `json:"triggered_rules"`
	CreatedAt      string `json:"created_at"`
}

// NewWriter creates a ClickHouse HTTP writer.
func NewWriter(cfg Config) (*Writer, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("clickhouse URL is empty")
	}
	if cfg.Database == "" || cfg.Table == "" {
		return nil, fmt.Errorf("clickhouse database and table are required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	query := fmt.Sprintf("INSERT INTO %s.%s FORMAT JSONEachRow", quoteIdent(cfg.Database), quoteIdent(cfg.Table))
	endpoint := strings.TrimRight(cfg.URL, "/") + "/?query=" + url.QueryEscape(query)

	return &Writer{
		endpoint: endpoint,
		username: cfg.Username,
		password: cfg.Password,
		headers:  cfg.Headers,
		client:   &http.Client{Timeout: timeout},
	}, nil
}

// WriteAlerts inserts a batch of alert rows.
func (w *Writer) WriteAlerts(alerts []*models.Alert) error {
	if len(alerts) == 0 {
		return nil
	}

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, alert := range alerts {
		if err := enc.Encode(toRow(alert)); err != nil {
			return fmt.Errorf("encode alert row: %w", err)
		}
	}

	req, err := http.NewRequest(http.MethodPost, w.endpoint, &buf)
	if err != nil {
		return fmt.Errorf("create clickhouse request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-ndjson")
	if w.username != "" {
		req.Header.Set("X-ClickHouse-User", w.username)
	}
	if w.password != "" {
		req.Header.Set("X-ClickHouse-Key", w.password)
	}
	for k, v := range w.headers {
		req.Header.Set(k, v)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("clickhouse request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("clickhouse insert failed with status %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	io.Copy(io.Discard, resp.Body)
	return nil
}

// Close releases HTTP resources.
func (w *Writer) Close() error {
	return nil
}

func toRow(alert *models.Alert) row {
	return row{
		AlertID:        alert.ID,
		IndicatorID:    alert.IndicatorID,
		IndicatorType:  string(alert.IndicatorType),
		IndicatorValue: alert.IndicatorValue,
		EventID:        alert.EventID,
		RuleScore:      alert.RuleScore,
		MLScore:        alert.MLScore,
		GraphScore:     alert.GraphScore,
		RiskScore:      alert.RiskScore,
		Severity:       string(alert.Severity),
		Stage:          string(alert.Stage),
		TriggeredRules: strings.Join(alert.TriggeredRules, ","),
		CreatedAt:      alert.CreatedAt.UTC().Format("2006-01-02 15:04:05.000000"),
	}
}

// quoteIdent backtick-quotes a ClickHouse identifier.
func quoteIdent(ident string) string {
	return "`" + strings.ReplaceAll(ident, "`", "``") + "`"
}
