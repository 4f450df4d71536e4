package healthcheck

import (
	"context"

	"go.uber.org/zap"
)

// ReportedProperty is the twin reported property that carries the summary.
const ReportedProperty = "health"

// PatchFunc sends a reported property patch to the hub.
type PatchFunc func(ctx context.Context, patch map[string]any) error

// Reporter writes health summaries to the device twin when the overall
// status changes.
type Reporter struct {
	patch  PatchFunc
	logger *zap.Logger
	last   Status
}

// NewReporter creates a reporter that sends patches through patch.
func NewReporter(patch PatchFunc, logger *zap.Logger) *Reporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reporter{patch: patch, logger: logger}
}

// Report sends s unless its status matches the last one sent.
// Not safe for concurrent use; Monitor.Run calls it from one goroutine.
func (r *Reporter) Report(ctx context.Context, s *Summary) {
	if s == nil || s.Status == r.last {
		return
	}

	components := make(map[string]any, len(s.Components))
	for name, c := range s.Components {
		components[name] = map[string]any{
			"status":  string(c.Status),
			"message": c.Message,
		}
	}
	patch := map[string]any{
		ReportedProperty: map[string]any{
			"status":     string(s.Status),
			"checkedAt":  s.CheckedAt.UTC(),
			"components": components,
		},
	}

	if err := r.patch(ctx, patch); err != nil {
		r.logger.Warn("Failed to report health", zap.Error(err))
		return
	}
	r.last = s.Status
	r.logger.Debug("Health reported", zap.String("status", string(s.Status)))
}
