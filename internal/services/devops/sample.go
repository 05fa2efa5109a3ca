package devops

import (
	"fmt"
	"math/rand"
	"time"
)

// Representative log and metric shapes used when no telemetry backend
// is configured, and reused by the gateway's optimistic placeholder
// responses.

type logTemplate struct {
	level   string
	message string
}

var logTemplates = []logTemplate{
	{"INFO", "User authentication successful - user_id=%d"},
	{"INFO", "API request processed - endpoint=/api/v1/metrics, response_time=%dms"},
	{"INFO", "Database query executed - duration=%dms"},
	{"WARN", "High memory usage detected - current=%d%%, threshold=80%%"},
	{"INFO", "Cache hit - key=user_session_%d"},
	{"WARN", "Rate limit approaching - requests=%d/min, limit=1000"},
	{"ERROR", "External API timeout - attempt=%d, timeout=30s"},
	{"INFO", "Background job completed - duration=%ds"},
	{"WARN", "Disk space warning - usage=%d%%"},
	{"INFO", "Health check passed - uptime=%dh"},
	{"DEBUG", "Debug trace - request_id=%d"},
	{"ERROR", "Database connection failed - retries=%d"},
}

type metricTemplate struct {
	name     string
	unit     string
	min, max float64
}

var metricTemplates = []metricTemplate{
	{"cpu_utilization", "percent", 20, 80},
	{"memory_usage", "percent", 30, 85},
	{"disk_usage", "percent", 40, 90},
	{"response_time", "milliseconds", 50, 300},
	{"error_rate", "percent", 0.1, 5.0},
	{"request_count", "count", 100, 2000},
	{"database_connections", "count", 5, 100},
	{"queue_size", "count", 0, 50},
	{"active_sessions", "count", 10, 500},
	{"cache_hit_rate", "percent", 70, 95},
}

var serviceNames = []string{
	"payment-service",
	"user-service",
	"notification-service",
	"analytics-service",
	"api-gateway",
	"auth-service",
}

// SampleLogs generates representative log entries, newest first. When
// level is non-empty only matching templates are used.
func SampleLogs(level string, limit int) []LogEntry {
	templates := logTemplates
	if level != "" {
		filtered := make([]logTemplate, 0, len(templates))
		for _, t := range templates {
			if t.level == level {
				filtered = append(filtered, t)
			}
		}
		if len(filtered) == 0 {
			filtered = []logTemplate{{level, "System event logged - id=%d"}}
		}
		templates = filtered
	}

	now := time.Now().UTC()
	entries := make([]LogEntry, 0, limit)
	for i := 0; i < limit; i++ {
		t := templates[rand.Intn(len(templates))]
		entries = append(entries, LogEntry{
			Level:     t.level,
			Message:   fmt.Sprintf(t.message, rand.Intn(900)+100),
			Timestamp: now.Add(-time.Duration(i) * time.Minute).Format(time.RFC3339),
			Source:    serviceNames[rand.Intn(len(serviceNames))],
		})
	}
	return entries
}

// SampleMetrics generates representative metric samples. When service
// is non-empty every sample is attributed to it.
func SampleMetrics(limit int, service string) []MetricPoint {
	now := time.Now().UTC().Format(time.RFC3339)
	points := make([]MetricPoint, 0, limit)
	for i := 0; i < limit; i++ {
		t := metricTemplates[i%len(metricTemplates)]
		source := service
		if source == "" {
			source = serviceNames[rand.Intn(len(serviceNames))]
		}
		points = append(points, MetricPoint{
			Name:      t.name,
			Value:     roundTo(t.min+rand.Float64()*(t.max-t.min), 2),
			Unit:      t.unit,
			Timestamp: now,
			Service:   source,
		})
	}
	return points
}

func roundTo(v float64, places int) float64 {
	scale := 1.0
	for i := 0; i < places; i++ {
		scale *= 10
	}
	return float64(int64(v*scale+0.5)) / scale
}

func sampleLogs(level string, limit int) []LogEntry {
	return SampleLogs(level, limit)
}

func sampleMetrics(limit int, service string) []MetricPoint {
	return SampleMetrics(limit, service)
}
