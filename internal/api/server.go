package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kalambet/fundscout/internal/agent"
	"github.com/kalambet/fundscout/internal/metrics"
	"github.com/kalambet/fundscout/internal/orchestrator"
	"github.com/kalambet/fundscout/internal/pipeline"
	"github.com/kalambet/fundscout/internal/retrieval"
	"github.com/kalambet/fundscout/internal/storage"
	"github.com/kalambet/fundscout/internal/trace"
)

const maxRequestBodySize = 1 << 20 // 1MB

type Router interface {
	Route(ctx context.Context, query string, history []agent.Turn) (orchestrator.Result, error)
}

type RAGAnswerer interface {
	Run(ctx context.Context, query string, history []agent.Turn) (*pipeline.RAGAnswer, error)
}

type Searcher interface {
	SemanticSearch(ctx context.Context, query string, topK int, threshold float64) (retrieval.SearchResults, error)
	Defaults() (topK int, threshold float64)
}

type SectorLister interface {
	ListValidSectors(ctx context.Context) ([]string, error)
}

type InteractionLister interface {
	RecentInteractions(ctx context.Context, limit int) ([]storage.Interaction, error)
}

// Reindexer schedules an asynchronous index rebuild and returns the job id.
type Reindexer func(ctx context.Context, reason string) (string, error)

// Deps holds the collaborators of the HTTP API. Token enables bearer auth on
// every route except /health.
type Deps struct {
	Router       Router
	RAG          RAGAnswerer
	Search       Searcher
	Sectors      SectorLister
	Interactions InteractionLister
	Reindex      Reindexer
	Token        string
}

// QueryRequest is the body of POST /v1/query and POST /v1/rag.
type QueryRequest struct {
	Query   string       `json:"query"`
	History []agent.Turn `json:"history,omitempty"`
}

// NewHandler returns the fundscout HTTP API.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(metrics.Middleware())

	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Handle("/metrics", metrics.Handler())
		r.Post("/v1/query", handleQuery(deps))
		r.Post("/v1/rag", handleRAG(deps))
		r.Get("/v1/search", handleSearch(deps))
		r.Get("/v1/sectors", handleSectors(deps))
		r.Post("/v1/ingest", handleIngest(deps))
		r.Get("/v1/interactions", handleListInteractions(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

func decodeQuery(w http.ResponseWriter, r *http.Request) (QueryRequest, bool) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	var req QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return req, false
	}
	req.Query = strings.TrimSpace(req.Query)
	if req.Query == "" {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "query is required")
		return req, false
	}
	return req, true
}

func handleQuery(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeQuery(w, r)
		if !ok {
			return
		}
		ctx := trace.WithTrace(r.Context(), trace.New("api"))

		res, err := deps.Router.Route(ctx, req.Query, req.History)
		if err != nil {
			pipelineError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

func handleRAG(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		req, ok := decodeQuery(w, r)
		if !ok {
			return
		}
		ctx := trace.WithTrace(r.Context(), trace.New("api"))

		res, err := deps.RAG.Run(ctx, req.Query, req.History)
		if err != nil {
			pipelineError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

func handleSearch(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		q := strings.TrimSpace(r.URL.Query().Get("q"))
		if q == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		topK, threshold := deps.Search.Defaults()
		topK = parseIntParam(r, "top_k", topK, 50)
		if s := r.URL.Query().Get("distance_threshold"); s != "" {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil || v < 0 || v > 2 {
				httpError(w, http.StatusBadRequest, "invalid_request_error", "distance_threshold must be a number in [0, 2]")
				return
			}
			threshold = v
		}

		res, err := deps.Search.SemanticSearch(r.Context(), q, topK, threshold)
		if err != nil {
			pipelineError(w, err)
			return
		}
		writeJSON(w, res)
	}
}

func handleSectors(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sectors, err := deps.Sectors.ListValidSectors(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list sectors: %v", err)
			return
		}
		writeJSON(w, map[string][]string{"sectors": sectors})
	}
}

func handleIngest(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, err := deps.Reindex(r.Context(), "api")
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to enqueue reindex: %v", err)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]string{
			"job_id": id,
			"status": "queued",
		})
	}
}

func handleListInteractions(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		interactions, err := deps.Interactions.RecentInteractions(r.Context(), limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list interactions: %v", err)
			return
		}
		if interactions == nil {
			interactions = []storage.Interaction{}
		}
		writeJSON(w, interactions)
	}
}

// pipelineError maps typed pipeline failures to HTTP status codes.
func pipelineError(w http.ResponseWriter, err error) {
	var (
		routing  *orchestrator.RoutingError
		ground   *agent.GroundingError
		schema   *agent.SchemaValidationError
		timeout  *agent.UpstreamTimeout
		upstream *agent.UpstreamError
		toolCall *agent.ToolInvocationError
	)
	code, errType := http.StatusInternalServerError, "api_error"
	switch {
	case errors.As(err, &timeout):
		code, errType = http.StatusGatewayTimeout, "timeout_error"
	case errors.As(err, &upstream):
		code, errType = http.StatusBadGateway, "upstream_error"
	case errors.As(err, &routing):
		code, errType = http.StatusUnprocessableEntity, "routing_error"
	case errors.As(err, &ground):
		code, errType = http.StatusBadGateway, "grounding_error"
	case errors.As(err, &schema):
		code, errType = http.StatusBadGateway, "schema_error"
	case errors.As(err, &toolCall):
		code, errType = http.StatusBadGateway, "tool_error"
	case errors.Is(err, context.Canceled):
		slog.Debug("client went away", "error", err)
		code = http.StatusServiceUnavailable
	}
	writeError(w, code, errType, err.Error(), agent.IsRetryable(err))
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encoding response", "error", err)
	}
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeError(w, code, errType, fmt.Sprintf(format, args...), false)
}

func writeError(w http.ResponseWriter, code int, errType, msg string, retryable bool) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message":   msg,
			"type":      errType,
			"retryable": retryable,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
