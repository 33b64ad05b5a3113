// Package httpclient decorates outbound HTTP transports with the
// headers every upstream call carries.
package httpclient

import (
	"net/http"

	"github.com/nyc-landmarks/vectordb/internal/logging"
)

// CorrelationRoundTripper propagates the request context's correlation
// ID to upstreams as an X-Correlation-ID header and stamps a stable
// User-Agent on every call.
type CorrelationRoundTripper struct {
	base      http.RoundTripper
	userAgent string
}

// NewCorrelationRoundTripper wraps base (http.DefaultTransport when
// nil) with correlation and User-Agent propagation.
func NewCorrelationRoundTripper(base http.RoundTripper, userAgent string) http.RoundTripper {
	if base == nil {
		base = http.DefaultTransport
	}
	return &CorrelationRoundTripper{base: base, userAgent: userAgent}
}

// RoundTrip implements http.RoundTripper.
func (t *CorrelationRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	if id := logging.CorrelationFrom(req.Context()); id != "" && req.Header.Get("X-Correlation-ID") == "" {
		req = cloneWithHeader(req, "X-Correlation-ID", id)
	}
	if t.userAgent != "" && req.Header.Get("User-Agent") == "" {
		req = cloneWithHeader(req, "User-Agent", t.userAgent)
	}
	return t.base.RoundTrip(req)
}

// RoundTrippers must not mutate the caller's request.
func cloneWithHeader(req *http.Request, key, value string) *http.Request {
	out := req.Clone(req.Context())
	out.Header.Set(key, value)
	return out
}
