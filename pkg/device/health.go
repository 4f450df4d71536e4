package device

import (
	"context"

	"github.com/unklstewy/iothub-device-go/pkg/healthcheck"
)

// Name identifies the client in health summaries.
func (c *Client) Name() string {
	return "iothub"
}

// Check reports the connection and subscription state of the client.
func (c *Client) Check(ctx context.Context) *healthcheck.Result {
	c.mu.RLock()
	started := c.started
	pending := len(c.pending)
	c.mu.RUnlock()

	r := &healthcheck.Result{
		Component: c.Name(),
		Details: map[string]any{
			"device_id":        c.opts.DeviceID,
			"pending_requests": pending,
		},
	}
	if c.opts.ModuleID != "" {
		r.Details["module_id"] = c.opts.ModuleID
	}

	switch {
	case !c.transport.IsConnected():
		r.Status = healthcheck.StatusUnhealthy
		r.Message = "not connected"
	case !started:
		r.Status = healthcheck.StatusDegraded
		r.Message = "connected, not subscribed"
	default:
		r.Status = healthcheck.StatusHealthy
	}
	return r
}

var _ healthcheck.Checker = (*Client)(nil)
