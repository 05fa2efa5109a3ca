package devops

import (
	"context"

	"github.com/opsgate/opsgate/internal/errs"
)

const (
	defaultMetricLimit = 50
	maxMetricLimit     = 500
)

// MetricsService serves metric queries for the direct routing path.
type MetricsService struct {
	backend *MetricsBackend
}

func NewMetricsService(backend *MetricsBackend) *MetricsService {
	return &MetricsService{backend: backend}
}

// RecentMetrics returns up to limit recent metric samples, optionally
// scoped to one service.
func (s *MetricsService) RecentMetrics(ctx context.Context, limit int, service string) ([]MetricPoint, error) {
	if limit <= 0 {
		limit = defaultMetricLimit
	}
	if limit > maxMetricLimit {
		limit = maxMetricLimit
	}

	points, err := s.backend.Fetch(ctx, limit, service)
	if err != nil {
		return nil, errs.NewInternal(err)
	}

	if service != "" {
		filtered := points[:0]
		for _, point := range points {
			if point.Service == "" || point.Service == service {
				filtered = append(filtered, point)
			}
		}
		points = filtered
	}

	if len(points) > limit {
		points = points[:limit]
	}
	return points, nil
}
