package gateway

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Read result statuses held by the cache.
const (
	ResultPending  = "pending"
	ResultComplete = "complete"
	ResultFailed   = "failed"
)

// ReadResult is the eventual outcome of an optimistic read. The
// placeholder response carries its RequestID so the client can poll
// for the authoritative payload.
type ReadResult struct {
	RequestID   string         `json:"request_id"`
	Tool        string         `json:"tool"`
	Status      string         `json:"status"`
	Payload     map[string]any `json:"payload,omitempty"`
	Error       string         `json:"error,omitempty"`
	CompletedAt *time.Time     `json:"completed_at,omitempty"`
}

// ResultCache holds background read results for a bounded time so the
// poll endpoint can serve them. Entries expire on TTL or LRU pressure;
// a missing entry simply means the client polled too late.
type ResultCache struct {
	lru *expirable.LRU[string, *ReadResult]
}

func NewResultCache(size int, ttl time.Duration) *ResultCache {
	return &ResultCache{
		lru: expirable.NewLRU[string, *ReadResult](size, nil, ttl),
	}
}

// Pending records that a background read has been launched.
func (c *ResultCache) Pending(requestID, tool string) {
	c.lru.Add(requestID, &ReadResult{
		RequestID: requestID,
		Tool:      tool,
		Status:    ResultPending,
	})
}

// Complete stores the authoritative payload for a finished read.
func (c *ResultCache) Complete(requestID, tool string, payload map[string]any) {
	now := time.Now().UTC()
	c.lru.Add(requestID, &ReadResult{
		RequestID:   requestID,
		Tool:        tool,
		Status:      ResultComplete,
		Payload:     payload,
		CompletedAt: &now,
	})
}

// Fail records a background read failure.
func (c *ResultCache) Fail(requestID, tool string, err error) {
	now := time.Now().UTC()
	c.lru.Add(requestID, &ReadResult{
		RequestID:   requestID,
		Tool:        tool,
		Status:      ResultFailed,
		Error:       err.Error(),
		CompletedAt: &now,
	})
}

// Get returns the result for a request id, if still cached.
func (c *ResultCache) Get(requestID string) (*ReadResult, bool) {
	return c.lru.Get(requestID)
}
