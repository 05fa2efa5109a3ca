package devops

import (
	"context"

	"github.com/opsgate/opsgate/internal/errs"
)

// Log levels accepted by the logs endpoint.
var validLogLevels = map[string]bool{
	"DEBUG": true,
	"INFO":  true,
	"WARN":  true,
	"ERROR": true,
}

const (
	defaultLogLimit = 100
	maxLogLimit     = 1000
)

// LogService serves log queries for the direct routing path.
type LogService struct {
	backend *LogsBackend
}

func NewLogService(backend *LogsBackend) *LogService {
	return &LogService{backend: backend}
}

// RecentLogs returns up to limit recent log entries, optionally
// filtered by level and bounded by a since timestamp. An unknown level
// is a validation error.
func (s *LogService) RecentLogs(ctx context.Context, level string, limit int, since string) ([]LogEntry, error) {
	if level != "" && !validLogLevels[level] {
		return nil, errs.NewValidation("level", "must be one of: DEBUG, INFO, WARN, ERROR")
	}
	if limit <= 0 {
		limit = defaultLogLimit
	}
	if limit > maxLogLimit {
		limit = maxLogLimit
	}

	entries, err := s.backend.Fetch(ctx, level, limit, since)
	if err != nil {
		return nil, errs.NewInternal(err)
	}

	// The synthesized fallback honors level itself; a real backend may
	// not, so filter again here.
	if level != "" {
		filtered := entries[:0]
		for _, entry := range entries {
			if entry.Level == level {
				filtered = append(filtered, entry)
			}
		}
		entries = filtered
	}

	if len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
