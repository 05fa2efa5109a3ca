package gateway

import "github.com/opsgate/opsgate/internal/services/devops"

// Caps on placeholder sizes: the optimistic response only needs to
// populate a first screen of data.
const (
	maxPlaceholderLogs    = 15
	maxPlaceholderMetrics = 10
)

const loadingMessage = "Loading real data in background..."

// placeholderLogs builds the provisional payload for an optimistic
// logs read. Every entry is marked as loading so clients can render it
// as provisional.
func placeholderLogs(opts LogOptions) []devops.LogEntry {
	count := opts.Limit
	if count <= 0 || count > maxPlaceholderLogs {
		count = maxPlaceholderLogs
	}

	entries := devops.SampleLogs(opts.Level, count)
	for i := range entries {
		entries[i].Message = "LOADING: " + entries[i].Message
		entries[i].Loading = true
	}
	return entries
}

// placeholderMetrics builds the provisional payload for an optimistic
// metrics read.
func placeholderMetrics(opts MetricOptions) []devops.MetricPoint {
	count := opts.Limit
	if count <= 0 || count > maxPlaceholderMetrics {
		count = maxPlaceholderMetrics
	}

	points := devops.SampleMetrics(count, opts.Service)
	for i := range points {
		points[i].Loading = true
	}
	return points
}
