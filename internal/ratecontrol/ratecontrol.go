// Package ratecontrol paces outbound requests per upstream host so
// batch ingestion stays inside provider etiquette limits.
package ratecontrol

import (
	"context"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config sets requests-per-second budgets. HostRPS overrides
// DefaultRPS for specific hosts; zero or negative values mean
// unlimited.
type Config struct {
	DefaultRPS float64            `mapstructure:"default_rps"`
	HostRPS    map[string]float64 `mapstructure:"host_rps"`
	Burst      int                `mapstructure:"burst"`
}

// Limiter hands out one token bucket per upstream host.
type Limiter struct {
	mu       sync.Mutex
	cfg      Config
	limiters map[string]*rate.Limiter
	logger   *zap.Logger
}

// New builds a per-host limiter. A nil logger is replaced with a nop.
func New(cfg Config, logger *zap.Logger) *Limiter {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	return &Limiter{
		cfg:      cfg,
		limiters: make(map[string]*rate.Limiter),
		logger:   logger,
	}
}

// Wait blocks until the host's bucket grants a token or ctx ends.
func (l *Limiter) Wait(ctx context.Context, host string) error {
	return l.limiterFor(host).Wait(ctx)
}

// RPSFor returns the effective requests-per-second budget for host.
func (l *Limiter) RPSFor(host string) float64 {
	host = normalizeHost(host)
	if rps, ok := l.cfg.HostRPS[host]; ok {
		return rps
	}
	return l.cfg.DefaultRPS
}

func (l *Limiter) limiterFor(host string) *rate.Limiter {
	host = normalizeHost(host)
	l.mu.Lock()
	defer l.mu.Unlock()
	if lim, ok := l.limiters[host]; ok {
		return lim
	}
	rps := l.cfg.DefaultRPS
	if override, ok := l.cfg.HostRPS[host]; ok {
		rps = override
	}
	limit := rate.Inf
	if rps > 0 {
		limit = rate.Limit(rps)
	}
	lim := rate.NewLimiter(limit, l.cfg.Burst)
	l.limiters[host] = lim
	l.logger.Debug("rate limiter created",
		zap.String("host", host),
		zap.Float64("rps", rps),
		zap.Int("burst", l.cfg.Burst),
	)
	return lim
}

func normalizeHost(host string) string {
	return strings.ToLower(strings.TrimSpace(host))
}
