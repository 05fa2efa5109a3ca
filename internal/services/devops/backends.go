package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/opsgate/opsgate/internal/config"
)

const backendTimeout = 30 * time.Second

// LogsBackend fetches log events from the configured telemetry source.
// Without an endpoint it synthesizes recent entries so direct mode
// works in development.
type LogsBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewLogsBackend(cfg config.BackendConfig) *LogsBackend {
	return &LogsBackend{
		endpoint: cfg.LogsEndpoint,
		apiKey:   cfg.LogsAPIKey,
		client:   &http.Client{Timeout: backendTimeout},
	}
}

type logsSearchRequest struct {
	Level string `json:"level,omitempty"`
	Limit int    `json:"limit"`
	Since string `json:"since,omitempty"`
}

type logsSearchResponse struct {
	Logs []LogEntry `json:"logs"`
}

func (b *LogsBackend) Fetch(ctx context.Context, level string, limit int, since string) ([]LogEntry, error) {
	if b.endpoint == "" {
		return sampleLogs(level, limit), nil
	}

	body, err := json.Marshal(logsSearchRequest{Level: level, Limit: limit, Since: since})
	if err != nil {
		return nil, fmt.Errorf("encode logs query: %w", err)
	}

	var parsed logsSearchResponse
	if err := b.post(ctx, b.endpoint, body, &parsed); err != nil {
		return nil, fmt.Errorf("query logs backend: %w", err)
	}
	return parsed.Logs, nil
}

func (b *LogsBackend) post(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// MetricsBackend fetches metric samples from the configured telemetry
// source, with the same synthesized fallback as LogsBackend.
type MetricsBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewMetricsBackend(cfg config.BackendConfig) *MetricsBackend {
	return &MetricsBackend{
		endpoint: cfg.MetricsEndpoint,
		apiKey:   cfg.MetricsAPIKey,
		client:   &http.Client{Timeout: backendTimeout},
	}
}

type metricsQueryResponse struct {
	Metrics []MetricPoint `json:"metrics"`
}

func (b *MetricsBackend) Fetch(ctx context.Context, limit int, service string) ([]MetricPoint, error) {
	if b.endpoint == "" {
		return sampleMetrics(limit, service), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, b.endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build metrics query: %w", err)
	}
	q := req.URL.Query()
	q.Set("limit", fmt.Sprintf("%d", limit))
	if service != "" {
		q.Set("service", service)
	}
	req.URL.RawQuery = q.Encode()
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("query metrics backend: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("metrics backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read metrics response: %w", err)
	}
	var parsed metricsQueryResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("decode metrics response: %w", err)
	}
	return parsed.Metrics, nil
}

// CICDBackend triggers deployments and rollbacks against the CI/CD
// system. Without an endpoint it simulates outcomes, with failure
// rates keyed off service naming conventions so demos exercise the
// error paths.
type CICDBackend struct {
	endpoint string
	apiKey   string
	client   *http.Client
}

func NewCICDBackend(cfg config.BackendConfig) *CICDBackend {
	return &CICDBackend{
		endpoint: cfg.CICDEndpoint,
		apiKey:   cfg.CICDAPIKey,
		client:   &http.Client{Timeout: backendTimeout},
	}
}

func (b *CICDBackend) Deploy(ctx context.Context, serviceName, version, environment string) (Deployment, error) {
	if b.endpoint == "" {
		return b.simulateDeploy(serviceName, version, environment), nil
	}

	payload, err := json.Marshal(map[string]string{
		"service_name": serviceName,
		"version":      version,
		"environment":  environment,
	})
	if err != nil {
		return Deployment{}, fmt.Errorf("encode deploy request: %w", err)
	}

	var deployment Deployment
	if err := b.post(ctx, b.endpoint+"/deployments", payload, &deployment); err != nil {
		return Deployment{}, fmt.Errorf("trigger deployment: %w", err)
	}
	return deployment, nil
}

func (b *CICDBackend) Rollback(ctx context.Context, deploymentID, reason, environment string) (Rollback, error) {
	if b.endpoint == "" {
		return Rollback{
			RollbackID:   uuid.NewString(),
			DeploymentID: deploymentID,
			Status:       StatusSuccess,
			Reason:       reason,
			Environment:  environment,
			Timestamp:    time.Now().UTC(),
		}, nil
	}

	payload, err := json.Marshal(map[string]string{
		"deployment_id": deploymentID,
		"reason":        reason,
		"environment":   environment,
	})
	if err != nil {
		return Rollback{}, fmt.Errorf("encode rollback request: %w", err)
	}

	var rollback Rollback
	if err := b.post(ctx, b.endpoint+"/rollbacks", payload, &rollback); err != nil {
		return Rollback{}, fmt.Errorf("trigger rollback: %w", err)
	}
	return rollback, nil
}

func (b *CICDBackend) post(ctx context.Context, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if b.apiKey != "" {
		req.Header.Set("X-API-Key", b.apiKey)
	}

	resp, err := b.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("ci/cd backend returned status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

// simulateDeploy mirrors the behavior patterns of the real pipeline:
// test services always succeed, critical services fail more often in
// production, experimental services sometimes stay in progress.
func (b *CICDBackend) simulateDeploy(serviceName, version, environment string) Deployment {
	name := strings.ToLower(serviceName)
	status := StatusSuccess

	switch {
	case strings.Contains(name, "test") || strings.Contains(name, "demo"):
		status = StatusSuccess
	case strings.Contains(name, "critical") || strings.Contains(name, "core"):
		if environment == "production" && rand.Intn(100) < 30 {
			status = StatusFailed
		}
	case strings.Contains(name, "experimental") || strings.Contains(name, "beta"):
		switch roll := rand.Intn(100); {
		case roll < 30:
			status = StatusFailed
		case roll < 40:
			status = StatusInProgress
		}
	default:
		if rand.Intn(100) < 15 {
			status = StatusFailed
		}
	}

	// Production never reports a lingering in-progress state.
	if environment == "production" && status == StatusInProgress {
		status = StatusSuccess
	}

	log.Printf("INFO: simulated deployment of %s %s to %s: %s", serviceName, version, environment, status)
	return Deployment{
		DeploymentID: uuid.NewString(),
		ServiceName:  serviceName,
		Version:      version,
		Environment:  environment,
		Status:       status,
		Timestamp:    time.Now().UTC(),
	}
}
