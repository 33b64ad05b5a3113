package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/logging"
)

// Config holds the server wiring.
type Config struct {
	ListenAddr      string
	TLSCertFile     string
	TLSKeyFile      string
	ShutdownTimeout time.Duration
}

// Server runs the query API behind the standard middleware chain:
// correlation, request logging, panic recovery, drain guard.
type Server struct {
	cfg      Config
	srv      *http.Server
	logger   *zap.Logger
	draining atomic.Bool
}

// NewServer wraps handler with the middleware chain and prepares the
// listener.
func NewServer(cfg Config, handler http.Handler, logger *zap.Logger) *Server {
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}

	s := &Server{cfg: cfg, logger: logging.Module(logger, "httpapi")}
	s.srv = &http.Server{
		Addr: cfg.ListenAddr,
		Handler: Chain(handler,
			Correlation,
			RequestLogger(s.logger),
			Recover(s.logger),
			s.drainGuard,
		),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Handler exposes the assembled chain.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// drainGuard answers 503 once shutdown has begun so load balancers
// stop routing here while in-flight requests finish.
func (s *Server) drainGuard(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.draining.Load() {
			writeError(w, r, http.StatusServiceUnavailable, "shutting_down", "server is draining")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start serves until ctx is cancelled, then drains. TLS is used when
// both cert and key files are configured.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCertFile != "" && s.cfg.TLSKeyFile != "" {
			s.logger.Info("query API listening",
				zap.String("addr", s.cfg.ListenAddr),
				zap.Bool("tls", true),
			)
			err = s.srv.ListenAndServeTLS(s.cfg.TLSCertFile, s.cfg.TLSKeyFile)
		} else {
			s.logger.Info("query API listening", zap.String("addr", s.cfg.ListenAddr))
			err = s.srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.draining.Store(true)
	s.logger.Info("query API draining", zap.Duration("timeout", s.cfg.ShutdownTimeout))

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi: shutdown: %w", err)
	}
	return <-errCh
}
