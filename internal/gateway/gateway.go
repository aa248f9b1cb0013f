// Package gateway is the HTTP surface: three ingest routes (one per source
// group) and the query routes the dashboards consume.
package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/platformbuilds/apitel/internal/adapter"
	"github.com/platformbuilds/apitel/internal/aggregator"
	"github.com/platformbuilds/apitel/internal/config"
	"github.com/platformbuilds/apitel/internal/ingest"
	"github.com/platformbuilds/apitel/internal/model"
)

const maxBodyBytes = 1 << 20 // single event per call; 1MB is generous

type Server struct {
	addr string
	ing  *ingest.Ingestor
	agg  *aggregator.Aggregator
}

func New(cfg config.GatewayCfg, ing *ingest.Ingestor, agg *aggregator.Aggregator) *Server {
	return &Server{addr: cfg.Endpoint, ing: ing, agg: agg}
}

// Router builds the route table. Exposed separately so tests can drive it
// with httptest and main can wrap it in logging middleware.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/v1/ingest/salesforce", s.ingestHandler(s.ing.IngestSalesforce)).Methods("POST")
	r.HandleFunc("/v1/ingest/mulesoft", s.ingestHandler(s.ing.IngestMuleSoft)).Methods("POST")
	r.HandleFunc("/v1/ingest/universal", s.ingestHandler(s.ing.IngestUniversal)).Methods("POST")

	r.HandleFunc("/v1/query/summary", s.handleQuerySummary).Methods("POST")
	r.HandleFunc("/v1/query/endpoints", s.handleQueryEndpoints).Methods("POST")

	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}).Methods("GET")

	return r
}

// Start serves until ctx is canceled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context, handler http.Handler) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return err
	}
	log.Printf("[gateway] listening on %s", s.addr)

	errCh := make(chan error, 1)
	go func() {
		if serveErr := srv.Serve(ln); serveErr != nil && serveErr != http.ErrServerClosed {
			errCh <- serveErr
		}
	}()

	select {
	case <-ctx.Done():
		shctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shctx)
		return nil
	case e := <-errCh:
		return e
	}
}

// ---------------- ingest routes ----------------

type ingestFunc func(ctx context.Context, payload map[string]any) (model.Ack, error)

func (s *Server) ingestHandler(fn ingestFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		payload, ok := decodePayload(w, r)
		if !ok {
			return
		}
		ack, err := fn(r.Context(), payload)
		if err != nil {
			writeIngestError(w, err)
			return
		}
		writeJSON(w, http.StatusAccepted, ack)
	}
}

// decodePayload reads a single JSON object. Empty bodies, malformed JSON and
// non-object payloads are all client errors; nothing is written for them.
func decodePayload(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	defer r.Body.Close()
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unreadable body", "payload")
		return nil, false
	}
	if len(body) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload", "payload")
		return nil, false
	}
	var payload map[string]any
	if err := json.Unmarshal(body, &payload); err != nil {
		writeError(w, http.StatusBadRequest, "payload is not a JSON object", "payload")
		return nil, false
	}
	if len(payload) == 0 {
		writeError(w, http.StatusBadRequest, "empty payload", "payload")
		return nil, false
	}
	return payload, true
}

func writeIngestError(w http.ResponseWriter, err error) {
	var verr *adapter.ValidationError
	if errors.As(err, &verr) {
		writeError(w, http.StatusBadRequest, verr.Error(), verr.Field)
		return
	}
	// Transient store failure that survived the retry budget.
	writeError(w, http.StatusServiceUnavailable, "event not stored: "+err.Error(), "")
}

// ---------------- query routes ----------------

type summaryRequest struct {
	Categories     []string  `json:"categories"`
	TimeRangeStart time.Time `json:"timeRangeStart"`
	TimeRangeEnd   time.Time `json:"timeRangeEnd"`
	// WindowWidth is a Go duration string, e.g. "1h" or "5m".
	WindowWidth string `json:"windowWidth"`
}

func (s *Server) handleQuerySummary(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req summaryRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error(), "")
		return
	}
	if !req.TimeRangeEnd.After(req.TimeRangeStart) {
		writeError(w, http.StatusBadRequest, "timeRangeEnd must be after timeRangeStart", "timeRangeEnd")
		return
	}
	window := time.Hour
	if req.WindowWidth != "" {
		d, err := time.ParseDuration(req.WindowWidth)
		if err != nil || d <= 0 {
			writeError(w, http.StatusBadRequest, "invalid windowWidth", "windowWidth")
			return
		}
		window = d
	}
	cats := make([]model.EventCategory, 0, len(req.Categories))
	for _, c := range req.Categories {
		cats = append(cats, model.EventCategory(c))
	}

	summaries, err := s.agg.Summarize(r.Context(), cats, req.TimeRangeStart, req.TimeRangeEnd, window)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "summarize: "+err.Error(), "")
		return
	}
	writeJSON(w, http.StatusOK, summaries)
}

type endpointsRequest struct {
	Category       string    `json:"category"`
	TimeRangeStart time.Time `json:"timeRangeStart"`
	TimeRangeEnd   time.Time `json:"timeRangeEnd"`
	Limit          int       `json:"limit"`
}

func (s *Server) handleQueryEndpoints(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()
	var req endpointsRequest
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid query: "+err.Error(), "")
		return
	}
	if req.Category == "" {
		writeError(w, http.StatusBadRequest, "category is required", "category")
		return
	}
	if !req.TimeRangeEnd.After(req.TimeRangeStart) {
		writeError(w, http.StatusBadRequest, "timeRangeEnd must be after timeRangeStart", "timeRangeEnd")
		return
	}
	limit := req.Limit
	if limit <= 0 {
		limit = 10
	}

	top, err := s.agg.TopEndpoints(r.Context(), model.EventCategory(req.Category), req.TimeRangeStart, req.TimeRangeEnd, limit)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, "topEndpoints: "+err.Error(), "")
		return
	}
	if top == nil {
		top = []model.EndpointCount{}
	}
	writeJSON(w, http.StatusOK, top)
}

// ---------------- response helpers ----------------

type errorResponse struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeError(w http.ResponseWriter, code int, msg, field string) {
	writeJSON(w, code, errorResponse{Error: msg, Field: field})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}
