package model

import "time"

// Source identifies which layer produced a result.
type Source string

const (
	SourceCache     Source = "cache"
	SourceIndexed   Source = "indexed-service"
	SourceChain     Source = "chain"
	SourceSynthetic Source = "synthetic"
)

// Result is the discriminated outcome of a resolver operation. Failures are
// carried in Err rather than returned as Go errors so callers always see
// provenance and timing, even when every source failed.
type Result[T any] struct {
	Success   bool      `json:"success"`
	Data      T         `json:"data,omitempty"`
	Err       string    `json:"error,omitempty"`
	Source    Source    `json:"source"`
	Timestamp time.Time `json:"timestamp"`
	LatencyMS int64     `json:"latency_ms"`
}

// Ok builds a successful result.
func Ok[T any](data T, source Source, started time.Time) Result[T] {
	return Result[T]{
		Success:   true,
		Data:      data,
		Source:    source,
		Timestamp: time.Now().UTC(),
		LatencyMS: time.Since(started).Milliseconds(),
	}
}

// Fail builds a failed result carrying the error text.
func Fail[T any](err error, source Source, started time.Time) Result[T] {
	msg := ""
	if err != nil {
		msg = err.Error()
	}
	return Result[T]{
		Success:   false,
		Err:       msg,
		Source:    source,
		Timestamp: time.Now().UTC(),
		LatencyMS: time.Since(started).Milliseconds(),
	}
}
