package budget

import (
	"fmt"
	"sync"
	"time"
)

// Monitor tracks steps, the absolute deadline and cancellation of one run.
// It only gates whether another step may start; in-flight calls are
// cancelled through their contexts.
type Monitor struct {
	config    Config
	steps     int
	startTime time.Time
	deadline  time.Time
	cancelled bool
	now       func() time.Time
	mu        sync.Mutex
}

// NewMonitor clones the provided config and starts the clock.
func NewMonitor(cfg Config) *Monitor {
	return newMonitorAt(cfg, time.Now)
}

func newMonitorAt(cfg Config, now func() time.Time) *Monitor {
	cfg = cfg.Normalize()
	start := now()
	return &Monitor{
		config:    cfg,
		startTime: start,
		deadline:  start.Add(cfg.MaxRunTime),
		now:       now,
	}
}

// Step records the start of a new model round.
func (m *Monitor) Step() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.steps++
	return m.steps
}

// Steps returns how many rounds were started so far.
func (m *Monitor) Steps() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.steps
}

// PermitsNextStep is false once the step cap is hit, the deadline passed or
// the run was cancelled.
func (m *Monitor) PermitsNextStep() bool {
	return m.Check() == nil
}

// Check returns the reason the run may not continue, if any.
func (m *Monitor) Check() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.cancelled {
		return ErrCancelled
	}
	if now := m.now(); !now.Before(m.deadline) {
		return ErrExceeded{
			Kind:  KindTime,
			Usage: now.Sub(m.startTime).Round(time.Millisecond).String(),
			Limit: m.config.MaxRunTime.String(),
		}
	}
	if m.steps >= m.config.MaxSteps {
		return ErrExceeded{
			Kind:  KindSteps,
			Usage: fmt.Sprintf("%d steps", m.steps),
			Limit: fmt.Sprintf("%d steps", m.config.MaxSteps),
		}
	}
	return nil
}

// Cancel sets the cancellation flag. Safe to call more than once.
func (m *Monitor) Cancel() {
	m.mu.Lock()
	m.cancelled = true
	m.mu.Unlock()
}

// Cancelled reports whether Cancel was called.
func (m *Monitor) Cancelled() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cancelled
}

// Deadline is the absolute point in time the run must settle by.
func (m *Monitor) Deadline() time.Time {
	return m.deadline
}

// ToolTimeout is the per-call limit handed to the dispatcher.
func (m *Monitor) ToolTimeout() time.Duration {
	return m.config.ToolTimeout
}
