// Package vectorstore is the adapter for the remote vector index data
// plane: batched upserts under deterministic IDs, filtered queries,
// deletes, and index validation.
package vectorstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/circuitbreaker"
	"github.com/nyc-landmarks/vectordb/internal/httpclient"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/retry"
	"github.com/nyc-landmarks/vectordb/internal/tracing"
)

// Config points the client at the index data plane.
type Config struct {
	IndexHost        string
	APIKey           string
	IndexName        string
	Namespace        string
	Timeout          time.Duration
	Dimension        int
	UpsertBatchSize  int
	UpsertMaxRetries int
	DeleteScanLimit  int
	Retry            retry.Policy
	UserAgent        string
}

// Client speaks the index data plane protocol.
type Client struct {
	cfg    Config
	http   *http.Client
	base   string
	httpw  *circuitbreaker.HTTPWrapper
	logger *zap.Logger
}

var global *Client

// Initialize wires the process-wide client.
func Initialize(cfg Config, logger *zap.Logger) error {
	c, err := NewClient(cfg, logger)
	if err != nil {
		return err
	}
	global = c
	return nil
}

// Get returns the process-wide client, nil before Initialize.
func Get() *Client { return global }

// NewClient builds a client for cfg.IndexHost. The host may carry an
// explicit scheme; without one it is assumed HTTPS.
func NewClient(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.IndexHost == "" {
		return nil, errors.New("vectorstore: index host required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 20 * time.Second
	}
	if cfg.Dimension <= 0 {
		cfg.Dimension = 1536
	}
	if cfg.UpsertBatchSize <= 0 {
		cfg.UpsertBatchSize = 100
	}
	if cfg.UpsertMaxRetries < 0 {
		cfg.UpsertMaxRetries = 3
	}
	if cfg.DeleteScanLimit <= 0 {
		cfg.DeleteScanLimit = 1000
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	base := cfg.IndexHost
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	base = strings.TrimSuffix(base, "/")

	httpClient := &http.Client{
		Timeout:   cfg.Timeout,
		Transport: httpclient.NewCorrelationRoundTripper(nil, cfg.UserAgent),
	}
	moduleLogger := logging.Module(logger, "vectorstore")
	return &Client{
		cfg:    cfg,
		http:   httpClient,
		base:   base,
		httpw:  circuitbreaker.NewHTTPWrapper(httpClient, "vectorstore", "vector-index", moduleLogger),
		logger: moduleLogger,
	}, nil
}

// Namespace returns the configured namespace.
func (c *Client) Namespace() string {
	if c == nil {
		return ""
	}
	return c.cfg.Namespace
}

// doJSON performs one retried data-plane call. Non-2xx statuses are
// classified through the shared retry rules; target may be nil when the
// response body does not matter. Failures that survive the retry
// budget come back as *Error.
func (c *Client) doJSON(ctx context.Context, op, method, path string, policy retry.Policy, body, target any) error {
	var payload []byte
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode %s request: %w", op, err)
		}
		payload = buf
	}
	url := c.base + path

	err := retry.Do(ctx, c.logger, op, policy, func(ctx context.Context) error {
		ctx, span := tracing.StartHTTPSpan(ctx, method, url)
		defer span.End()

		var reader io.Reader
		if payload != nil {
			reader = bytes.NewReader(payload)
		}
		req, err := http.NewRequestWithContext(ctx, method, url, reader)
		if err != nil {
			return retry.Permanent(err)
		}
		if payload != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")
		if c.cfg.APIKey != "" {
			req.Header.Set("Api-Key", c.cfg.APIKey)
		}
		tracing.InjectTraceparent(ctx, req)

		resp, err := c.httpw.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode >= 300 {
			msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return retry.WrapStatus(resp.StatusCode, string(msg))
		}
		if target == nil {
			_, err := io.Copy(io.Discard, resp.Body)
			return err
		}
		if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
			return fmt.Errorf("decode %s response: %w", op, err)
		}
		return nil
	})
	if err != nil {
		return &Error{Op: op, Err: err}
	}
	return nil
}
