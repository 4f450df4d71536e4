package healthcheck

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the check period used when none is configured.
const DefaultInterval = 30 * time.Second

// Monitor runs the registered checks and remembers the latest summary.
type Monitor struct {
	logger   *zap.Logger
	interval time.Duration

	mu       sync.RWMutex
	checkers map[string]Checker
	last     *Summary
}

// NewMonitor creates a monitor. A zero interval selects DefaultInterval.
func NewMonitor(logger *zap.Logger, interval time.Duration) *Monitor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if interval <= 0 {
		interval = DefaultInterval
	}

	return &Monitor{
		logger:   logger.With(zap.String("component", "healthcheck")),
		interval: interval,
		checkers: make(map[string]Checker),
	}
}

// Register adds a checker, replacing any with the same name.
func (m *Monitor) Register(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.checkers[checker.Name()] = checker
	m.logger.Debug("Registered health checker", zap.String("checker", checker.Name()))
}

// Check runs every checker concurrently and stores the summary.
func (m *Monitor) Check(ctx context.Context) *Summary {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]*Result, len(checkers))
	var wg sync.WaitGroup
	var resultsMu sync.Mutex

	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()

			start := time.Now()
			r := c.Check(ctx)
			if r == nil {
				r = &Result{Status: StatusUnknown, Message: "no result"}
			}
			if r.Component == "" {
				r.Component = c.Name()
			}
			r.CheckedAt = start
			r.Duration = time.Since(start)

			resultsMu.Lock()
			results[c.Name()] = r
			resultsMu.Unlock()
		}(c)
	}
	wg.Wait()

	summary := &Summary{
		Status:     Overall(results),
		Components: results,
		CheckedAt:  time.Now(),
	}

	m.mu.Lock()
	prev := m.last
	m.last = summary
	m.mu.Unlock()

	if prev == nil || prev.Status != summary.Status {
		m.logger.Info("Health status changed",
			zap.String("status", string(summary.Status)),
			zap.Int("components", len(results)))
	}
	return summary
}

// Last returns the most recent summary, or nil before the first check.
func (m *Monitor) Last() *Summary {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.last
}

// Run checks on every tick until ctx is done, passing each summary to onResult.
func (m *Monitor) Run(ctx context.Context, onResult func(context.Context, *Summary)) {
	m.logger.Info("Starting health monitor", zap.Duration("interval", m.interval))

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			m.logger.Info("Health monitor stopped")
			return
		case <-ticker.C:
			s := m.Check(ctx)
			if onResult != nil {
				onResult(ctx, s)
			}
		}
	}
}
