package budget

import (
	"fmt"
	"time"
)

const (
	DefaultMaxSteps    = 10
	DefaultMaxRunTime  = 300 * time.Second
	DefaultToolTimeout = 90 * time.Second
)

// Config defines the guardrails for a single orchestration run.
type Config struct {
	MaxSteps    int
	MaxRunTime  time.Duration
	ToolTimeout time.Duration
}

// Normalize fills unset limits with defaults.
func (c Config) Normalize() Config {
	if c.MaxSteps == 0 {
		c.MaxSteps = DefaultMaxSteps
	}
	if c.MaxRunTime == 0 {
		c.MaxRunTime = DefaultMaxRunTime
	}
	if c.ToolTimeout == 0 {
		c.ToolTimeout = DefaultToolTimeout
	}
	return c
}

// Validate ensures the budget values are sane before use.
func (c Config) Validate() error {
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps cannot be negative")
	}
	if c.MaxRunTime < 0 {
		return fmt.Errorf("max_run_time cannot be negative")
	}
	if c.ToolTimeout < 0 {
		return fmt.Errorf("tool_timeout cannot be negative")
	}
	if c.MaxRunTime > 0 && c.ToolTimeout > c.MaxRunTime {
		return fmt.Errorf("tool_timeout cannot exceed max_run_time")
	}
	return nil
}

// Merge overlays non-zero values from override onto base.
func Merge(base Config, override Config) Config {
	result := base
	if override.MaxSteps > 0 {
		result.MaxSteps = override.MaxSteps
	}
	if override.MaxRunTime > 0 {
		result.MaxRunTime = override.MaxRunTime
	}
	if override.ToolTimeout > 0 {
		result.ToolTimeout = override.ToolTimeout
	}
	return result
}
