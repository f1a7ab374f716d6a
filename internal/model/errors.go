package model

import "errors"

// Error taxonomy for upstream lookups. Transport-level failures from the
// indexed service are retried before they escalate; ErrUnavailable means every
// source was exhausted.
var (
	ErrNotFound        = errors.New("pool not found")
	ErrUpstreamTimeout = errors.New("upstream timeout")
	ErrUpstream        = errors.New("upstream error")
	ErrUnavailable     = errors.New("all sources unavailable")
)

// IsNotFound reports whether err means the pool does not exist anywhere, as
// opposed to a source being unreachable.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}
