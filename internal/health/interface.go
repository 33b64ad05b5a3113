// Package health aggregates dependency probes behind the API's
// /health endpoints. Checkers report per-component status; the manager
// folds them into one answer for readiness decisions.
package health

import (
	"context"
	"encoding/json"
	"time"
)

// CheckStatus is the outcome of one probe.
type CheckStatus int

const (
	StatusHealthy CheckStatus = iota
	StatusDegraded
	StatusUnhealthy
)

func (s CheckStatus) String() string {
	switch s {
	case StatusHealthy:
		return "healthy"
	case StatusDegraded:
		return "degraded"
	case StatusUnhealthy:
		return "unhealthy"
	default:
		return "unknown"
	}
}

// CheckResult is one probe's report.
type CheckResult struct {
	Component string
	Status    CheckStatus
	Message   string
	Error     string
	Details   map[string]any
	Duration  time.Duration
	Critical  bool
}

// MarshalJSON renders the status as its string form and the duration
// in milliseconds.
func (r CheckResult) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Status   string         `json:"status"`
		Message  string         `json:"message,omitempty"`
		Error    string         `json:"error,omitempty"`
		Details  map[string]any `json:"details,omitempty"`
		Duration int64          `json:"duration_ms"`
		Critical bool           `json:"critical"`
	}{
		Status:   r.Status.String(),
		Message:  r.Message,
		Error:    r.Error,
		Details:  r.Details,
		Duration: r.Duration.Milliseconds(),
		Critical: r.Critical,
	})
}

// Checker probes one dependency. Critical checkers gate readiness;
// non-critical ones only degrade the reported status.
type Checker interface {
	Name() string
	Check(ctx context.Context) CheckResult
	IsCritical() bool
	Timeout() time.Duration
}

// FuncChecker adapts a function to the Checker interface.
type FuncChecker struct {
	name     string
	critical bool
	timeout  time.Duration
	fn       func(ctx context.Context) CheckResult
}

// NewFuncChecker wraps fn as a named checker.
func NewFuncChecker(name string, critical bool, timeout time.Duration, fn func(ctx context.Context) CheckResult) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, timeout: timeout, fn: fn}
}

func (c *FuncChecker) Name() string                          { return c.name }
func (c *FuncChecker) IsCritical() bool                      { return c.critical }
func (c *FuncChecker) Timeout() time.Duration                { return c.timeout }
func (c *FuncChecker) Check(ctx context.Context) CheckResult { return c.fn(ctx) }
