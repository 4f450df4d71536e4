// Package healthcheck tracks the health of the device connection and its
// services and reports it to the hub.
package healthcheck

import (
	"context"
	"time"
)

// Status represents the health status of a component.
type Status string

const (
	// StatusHealthy indicates the component is functioning normally
	StatusHealthy Status = "healthy"
	// StatusDegraded indicates the component works with reduced function
	StatusDegraded Status = "degraded"
	// StatusUnhealthy indicates the component is not functioning
	StatusUnhealthy Status = "unhealthy"
	// StatusUnknown indicates no check has produced a result yet
	StatusUnknown Status = "unknown"
)

// Result is one component's health.
type Result struct {
	Component string         `json:"component"`
	Status    Status         `json:"status"`
	Message   string         `json:"message,omitempty"`
	CheckedAt time.Time      `json:"checkedAt"`
	Duration  time.Duration  `json:"durationNs"`
	Details   map[string]any `json:"details,omitempty"`
}

// Checker is implemented by components that can report their health.
type Checker interface {
	Check(ctx context.Context) *Result
	Name() string
}

type namedChecker struct {
	name string
	fn   func(ctx context.Context) *Result
}

func (c namedChecker) Check(ctx context.Context) *Result { return c.fn(ctx) }
func (c namedChecker) Name() string                      { return c.name }

// NewChecker adapts a function to a Checker with the given name.
func NewChecker(name string, fn func(ctx context.Context) *Result) Checker {
	return namedChecker{name: name, fn: fn}
}

// Summary is the combined health of all registered components.
type Summary struct {
	Status     Status             `json:"status"`
	Components map[string]*Result `json:"components"`
	CheckedAt  time.Time          `json:"checkedAt"`
}

// IsHealthy returns true if the overall status is healthy.
func (s *Summary) IsHealthy() bool {
	return s.Status == StatusHealthy
}

// Overall folds component results into one status. Any unhealthy component
// makes the whole unhealthy; degraded or unknown ones make it degraded.
func Overall(results map[string]*Result) Status {
	if len(results) == 0 {
		return StatusUnknown
	}

	overall := StatusHealthy
	for _, r := range results {
		switch r.Status {
		case StatusUnhealthy:
			return StatusUnhealthy
		case StatusDegraded, StatusUnknown:
			overall = StatusDegraded
		}
	}
	return overall
}
