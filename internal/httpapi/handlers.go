package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/nyc-landmarks/vectordb/internal/circuitbreaker"
	"github.com/nyc-landmarks/vectordb/internal/health"
	"github.com/nyc-landmarks/vectordb/internal/logging"
	"github.com/nyc-landmarks/vectordb/internal/query"
)

// maxRequestBody caps query bodies. Real queries are a sentence or
// two; anything near the cap is abuse.
const maxRequestBody = 1 << 20

// QueryHandler serves the query endpoints.
type QueryHandler struct {
	svc         *query.Service
	defaultTopK int
	logger      *zap.Logger
}

// NewQueryHandler builds the handler. defaultTopK fills in for
// requests that omit top_k.
func NewQueryHandler(svc *query.Service, defaultTopK int, logger *zap.Logger) *QueryHandler {
	if defaultTopK <= 0 {
		defaultTopK = 5
	}
	return &QueryHandler{
		svc:         svc,
		defaultTopK: defaultTopK,
		logger:      logging.Module(logger, "httpapi"),
	}
}

// RegisterRoutes mounts the query endpoints on mux.
func (h *QueryHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/query", h.handleQuery)
	mux.HandleFunc("POST /api/query/landmark/{lpNumber}", h.handleLandmarkQuery)
}

// queryWire is the request body for both query endpoints. TopK is a
// pointer so an absent field takes the server default while an
// explicit zero still fails validation.
type queryWire struct {
	QueryText  string `json:"query_text"`
	TopK       *int   `json:"top_k"`
	LandmarkID string `json:"landmark_id"`
	SourceType string `json:"source_type"`
}

func (h *QueryHandler) decodeRequest(w http.ResponseWriter, r *http.Request) (query.Request, error) {
	var wire queryWire
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBody)).Decode(&wire); err != nil {
		return query.Request{}, errors.New("malformed JSON body")
	}
	req := query.Request{
		Text:       wire.QueryText,
		TopK:       h.defaultTopK,
		LandmarkID: wire.LandmarkID,
		SourceType: wire.SourceType,
	}
	if wire.TopK != nil {
		req.TopK = *wire.TopK
	}
	return req, nil
}

func (h *QueryHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}

	resp, err := h.svc.SearchText(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *QueryHandler) handleLandmarkQuery(w http.ResponseWriter, r *http.Request) {
	req, err := h.decodeRequest(w, r)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "bad_request", err.Error())
		return
	}
	req.LandmarkID = r.PathValue("lpNumber")

	resp, err := h.svc.SearchLandmark(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// writeServiceError maps service failures to the API's status
// contract: validation 400, dependency circuit open 503, deadline 504,
// everything else reached an upstream and came back broken, 502.
func (h *QueryHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	logger := logging.WithCorrelation(r.Context(), h.logger)

	var verr *query.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, "validation_error", verr.Error())
	case errors.Is(err, context.DeadlineExceeded):
		logger.Warn("query timed out", zap.Error(err))
		writeError(w, r, http.StatusGatewayTimeout, "timeout", "upstream call timed out")
	case errors.Is(err, circuitbreaker.ErrCircuitBreakerOpen), errors.Is(err, circuitbreaker.ErrTooManyRequests):
		logger.Warn("dependency circuit open", zap.Error(err))
		writeError(w, r, http.StatusServiceUnavailable, "unavailable", "dependency temporarily unavailable")
	default:
		logger.Error("query failed", zap.Error(err))
		writeError(w, r, http.StatusBadGateway, "upstream_error", "embedding or vector store call failed")
	}
}

// NewMux assembles the full route table.
func NewMux(qh *QueryHandler, hh *health.HTTPHandler) *http.ServeMux {
	mux := http.NewServeMux()
	qh.RegisterRoutes(mux)
	if hh != nil {
		hh.RegisterRoutes(mux)
	}
	return mux
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// errorBody is the non-2xx response shape.
type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code          string `json:"code"`
	Message       string `json:"message"`
	CorrelationID string `json:"correlation_id,omitempty"`
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	writeJSON(w, status, errorBody{Error: errorDetail{
		Code:          code,
		Message:       message,
		CorrelationID: logging.CorrelationFrom(r.Context()),
	}})
}
