package devops

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/opsgate/opsgate/internal/config"
	"github.com/opsgate/opsgate/internal/errs"
)

// memoryStore is an in-memory DeploymentStore for service tests.
type memoryStore struct {
	deployments []Deployment
	rollbacks   []Rollback
	saveErr     error
}

func (m *memoryStore) SaveDeployment(_ context.Context, d *Deployment) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.deployments = append(m.deployments, *d)
	return nil
}

func (m *memoryStore) SaveRollback(_ context.Context, r *Rollback) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.rollbacks = append(m.rollbacks, *r)
	return nil
}

func (m *memoryStore) ListDeployments(_ context.Context, limit int) ([]Deployment, error) {
	if limit > len(m.deployments) {
		limit = len(m.deployments)
	}
	return m.deployments[:limit], nil
}

func TestLogService_LevelValidation(t *testing.T) {
	svc := NewLogService(NewLogsBackend(config.BackendConfig{}))

	_, err := svc.RecentLogs(context.Background(), "TRACE", 10, "")
	var valErr *errs.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "level", valErr.Field)
}

func TestLogService_LevelFilterAndLimit(t *testing.T) {
	svc := NewLogService(NewLogsBackend(config.BackendConfig{}))

	entries, err := svc.RecentLogs(context.Background(), "ERROR", 5, "")
	require.NoError(t, err)
	require.LessOrEqual(t, len(entries), 5)
	for _, entry := range entries {
		require.Equal(t, "ERROR", entry.Level)
	}
}

func TestLogService_DefaultLimit(t *testing.T) {
	svc := NewLogService(NewLogsBackend(config.BackendConfig{}))

	entries, err := svc.RecentLogs(context.Background(), "", 0, "")
	require.NoError(t, err)
	require.Len(t, entries, defaultLogLimit)
}

func TestMetricsService_ServiceScope(t *testing.T) {
	svc := NewMetricsService(NewMetricsBackend(config.BackendConfig{}))

	points, err := svc.RecentMetrics(context.Background(), 8, "payment-service")
	require.NoError(t, err)
	require.LessOrEqual(t, len(points), 8)
	for _, point := range points {
		require.Equal(t, "payment-service", point.Service)
	}
}

func TestDeployService_Validation(t *testing.T) {
	svc := NewDeployService(NewCICDBackend(config.BackendConfig{}), nil)

	var valErr *errs.ValidationError
	_, err := svc.Deploy(context.Background(), "  ", "1.0.0", "staging", "user-1")
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "service_name", valErr.Field)

	_, err = svc.Deploy(context.Background(), "api-service", "", "staging", "user-1")
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "version", valErr.Field)
}

func TestDeployService_RecordsHistory(t *testing.T) {
	store := &memoryStore{}
	svc := NewDeployService(NewCICDBackend(config.BackendConfig{}), store)

	outcome, err := svc.Deploy(context.Background(), "test-service", "2.1.0", "staging", "user-1")
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, StatusSuccess, outcome.Deployment.Status)
	require.Equal(t, "staging", outcome.Deployment.Environment)
	require.NotEmpty(t, outcome.Deployment.DeploymentID)
	require.Equal(t, "user-1", outcome.Deployment.InitiatedBy)
	require.Len(t, store.deployments, 1)

	deployments, err := svc.RecentDeployments(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, deployments, 1)
}

func TestRollbackService_ReasonLength(t *testing.T) {
	svc := NewRollbackService(NewCICDBackend(config.BackendConfig{}), nil)

	_, err := svc.Rollback(context.Background(), "dep-1", "bad", "staging", "user-1")
	var valErr *errs.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "reason", valErr.Field)
}

func TestRollbackService_CarriesEnvironment(t *testing.T) {
	store := &memoryStore{}
	svc := NewRollbackService(NewCICDBackend(config.BackendConfig{}), store)

	outcome, err := svc.Rollback(context.Background(), "dep-1", "rollback due to memory leak", "staging", "user-1")
	require.NoError(t, err)
	require.True(t, outcome.Success)
	require.Equal(t, "staging", outcome.Rollback.Environment)
	require.Equal(t, "staging", outcome.Metadata["environment"])
	require.Len(t, store.rollbacks, 1)
}

func TestFilterLogs(t *testing.T) {
	entries := []LogEntry{
		{Level: "ERROR", Message: "db down", Source: "auth-service"},
		{Level: "INFO", Message: "ok", Source: "auth-service"},
		{Level: "ERROR", Message: "timeout", Source: "payment-service"},
	}

	matched, err := FilterLogs(entries, `level == "ERROR" and source == "auth-service"`)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "db down", matched[0].Message)

	// Empty expression is a passthrough.
	matched, err = FilterLogs(entries, "")
	require.NoError(t, err)
	require.Len(t, matched, 3)

	_, err = FilterLogs(entries, "level ==")
	var valErr *errs.ValidationError
	require.ErrorAs(t, err, &valErr)
	require.Equal(t, "filter", valErr.Field)
}

func TestFilterMetrics(t *testing.T) {
	points := []MetricPoint{
		{Name: "cpu_utilization", Unit: "percent", Service: "api-gateway"},
		{Name: "request_count", Unit: "count", Service: "api-gateway"},
	}

	matched, err := FilterMetrics(points, `unit == "percent"`)
	require.NoError(t, err)
	require.Len(t, matched, 1)
	require.Equal(t, "cpu_utilization", matched[0].Name)
}

func TestSampleLogs_UnknownLevelTemplate(t *testing.T) {
	entries := SampleLogs("FATAL", 3)
	require.Len(t, entries, 3)
	for _, entry := range entries {
		require.Equal(t, "FATAL", entry.Level)
	}
}
