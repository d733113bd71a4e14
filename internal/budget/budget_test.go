package budget

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	cfg := Config{MaxSteps: -1}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}

	cfg = Config{MaxRunTime: time.Second, ToolTimeout: time.Minute}
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected tool timeout validation error")
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{}.Normalize()
	if cfg.MaxSteps != DefaultMaxSteps || cfg.MaxRunTime != DefaultMaxRunTime || cfg.ToolTimeout != DefaultToolTimeout {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestMerge(t *testing.T) {
	base := Config{MaxSteps: 5, ToolTimeout: time.Second}
	merged := Merge(base, Config{MaxRunTime: time.Minute})
	if merged.MaxRunTime != time.Minute {
		t.Fatalf("expected run time override")
	}
	if merged.MaxSteps != 5 || merged.ToolTimeout != time.Second {
		t.Fatalf("expected base limits to persist: %+v", merged)
	}
	if base.MaxRunTime != 0 {
		t.Fatalf("base must not change")
	}
}

func TestMonitorStepBudget(t *testing.T) {
	mon := NewMonitor(Config{MaxSteps: 2, MaxRunTime: time.Hour})
	for i := 0; i < 2; i++ {
		if !mon.PermitsNextStep() {
			t.Fatalf("step %d should be permitted", i+1)
		}
		mon.Step()
	}
	if mon.PermitsNextStep() {
		t.Fatalf("expected step budget to be exhausted")
	}
	var exceeded ErrExceeded
	if err := mon.Check(); !errors.As(err, &exceeded) || exceeded.Kind != KindSteps {
		t.Fatalf("expected steps exceeded, got %v", err)
	}
}

func TestMonitorDeadline(t *testing.T) {
	now := time.Date(2025, 5, 17, 12, 0, 0, 0, time.UTC)
	clock := func() time.Time { return now }
	mon := newMonitorAt(Config{MaxSteps: 10, MaxRunTime: time.Minute}, clock)
	if !mon.PermitsNextStep() {
		t.Fatalf("fresh monitor should permit a step")
	}
	now = now.Add(time.Minute)
	var exceeded ErrExceeded
	if err := mon.Check(); !errors.As(err, &exceeded) || exceeded.Kind != KindTime {
		t.Fatalf("expected time exceeded, got %v", err)
	}
	if !mon.Deadline().Equal(now) {
		t.Fatalf("deadline mismatch: %v", mon.Deadline())
	}
}

func TestMonitorCancel(t *testing.T) {
	mon := NewMonitor(Config{})
	mon.Cancel()
	mon.Cancel()
	if mon.PermitsNextStep() {
		t.Fatalf("cancelled monitor must not permit steps")
	}
	if !errors.Is(mon.Check(), ErrCancelled) {
		t.Fatalf("expected ErrCancelled")
	}
	if !mon.Cancelled() {
		t.Fatalf("expected cancelled flag")
	}
}

func TestToolTimeoutContext(t *testing.T) {
	if _, ok := ToolTimeoutFrom(context.Background()); ok {
		t.Fatalf("empty context must not carry a timeout")
	}
	ctx := WithToolTimeout(context.Background(), 0)
	if _, ok := ToolTimeoutFrom(ctx); ok {
		t.Fatalf("zero timeout must be ignored")
	}
	if d, ok := ToolTimeoutFrom(WithToolTimeout(ctx, 2*time.Second)); !ok || d != 2*time.Second {
		t.Fatalf("unexpected timeout %v %v", d, ok)
	}
}
