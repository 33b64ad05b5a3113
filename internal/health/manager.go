package health

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Manager holds the registered checkers and runs them on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers map[string]Checker
	logger   *zap.Logger
}

// Overall is the folded view across all checkers.
type Overall struct {
	Status     CheckStatus
	Ready      bool
	Components map[string]CheckResult
}

// NewManager builds an empty manager.
func NewManager(logger *zap.Logger) *Manager {
	return &Manager{
		checkers: make(map[string]Checker),
		logger:   logger,
	}
}

// Register adds a checker. Names must be unique.
func (m *Manager) Register(c Checker) error {
	name := c.Name()
	if name == "" {
		return fmt.Errorf("health: checker name is empty")
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkers[name]; exists {
		return fmt.Errorf("health: checker %q already registered", name)
	}
	m.checkers[name] = c
	return nil
}

// Names lists the registered checkers in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.checkers))
	for name := range m.checkers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RunAll probes every registered checker concurrently, each under its
// own timeout, and returns the folded result.
func (m *Manager) RunAll(ctx context.Context) Overall {
	m.mu.RLock()
	checkers := make([]Checker, 0, len(m.checkers))
	for _, c := range m.checkers {
		checkers = append(checkers, c)
	}
	m.mu.RUnlock()

	results := make(map[string]CheckResult, len(checkers))
	var (
		wg sync.WaitGroup
		mu sync.Mutex
	)
	for _, c := range checkers {
		wg.Add(1)
		go func(c Checker) {
			defer wg.Done()
			result := m.runOne(ctx, c)
			mu.Lock()
			results[c.Name()] = result
			mu.Unlock()
		}(c)
	}
	wg.Wait()

	return fold(results)
}

func (m *Manager) runOne(ctx context.Context, c Checker) CheckResult {
	checkCtx := ctx
	if timeout := c.Timeout(); timeout > 0 {
		var cancel context.CancelFunc
		checkCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	result := c.Check(checkCtx)
	if result.Status != StatusHealthy {
		m.logger.Warn("health check not healthy",
			zap.String("component", c.Name()),
			zap.String("status", result.Status.String()),
			zap.String("error", result.Error),
			zap.Duration("duration", result.Duration),
		)
	}
	return result
}

// fold combines per-component results. A critical failure makes the
// whole service unhealthy; any other blemish only degrades it. No
// checkers at all counts as healthy.
func fold(results map[string]CheckResult) Overall {
	overall := Overall{Status: StatusHealthy, Components: results}
	for _, r := range results {
		switch {
		case r.Status == StatusUnhealthy && r.Critical:
			overall.Status = StatusUnhealthy
		case r.Status != StatusHealthy && overall.Status == StatusHealthy:
			overall.Status = StatusDegraded
		}
	}
	overall.Ready = overall.Status != StatusUnhealthy
	return overall
}

// WaitReady polls RunAll until the service is ready or ctx expires.
// Startup uses it to hold traffic until the index answers.
func (m *Manager) WaitReady(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		if overall := m.RunAll(ctx); overall.Ready {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
