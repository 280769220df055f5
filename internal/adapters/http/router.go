package httpadapter

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/secguide/internal/core/domain"
	"github.com/kirillkom/secguide/internal/core/ports"
)

const maxBodyBytes = 1 << 20

// Recorder receives request-level observations. The prometheus metrics
// implement it; tests may leave it nil.
type Recorder interface {
	RecordGuidance(service, endpoint, mode, retrieval string, sources int, usedWeb bool, duration time.Duration)
	RecordRejected(service, reason string)
}

type Options struct {
	Service        string
	DefaultTopK    int
	RateLimitRPS   float64
	RateLimitBurst int
	MaxInFlight    int
	QueueWait      time.Duration
	RequestTimeout time.Duration
	Logger         *slog.Logger
	Recorder       Recorder
	// MetricsHandler is mounted at /metrics when set.
	MetricsHandler http.Handler
}

type Router struct {
	opts      Options
	retriever ports.PassageRetriever
	guidance  ports.GuidanceService
	docs      ports.DocumentReader
	refresher ports.CorpusRefresher
	controls  ports.ControlGuideService
	logger    *slog.Logger
}

func NewRouter(
	opts Options,
	retriever ports.PassageRetriever,
	guidance ports.GuidanceService,
	docs ports.DocumentReader,
	refresher ports.CorpusRefresher,
	controls ports.ControlGuideService,
) *Router {
	if opts.Service == "" {
		opts.Service = "api"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		opts:      opts,
		retriever: retriever,
		guidance:  guidance,
		docs:      docs,
		refresher: refresher,
		controls:  controls,
		logger:    logger,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/retrieve", rt.retrieve)
	mux.HandleFunc("/v1/guidance", rt.answerGuidance)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/corpus/refresh", rt.refreshCorpus)
	if rt.controls != nil {
		mux.HandleFunc("/v1/standards", rt.listStandards)
		mux.HandleFunc("/v1/controls", rt.listControls)
		mux.HandleFunc("/v1/controls/", rt.control)
	}
	if rt.opts.MetricsHandler != nil {
		mux.Handle("/metrics", rt.opts.MetricsHandler)
	}

	var handler http.Handler = mux
	if rt.opts.RequestTimeout > 0 {
		handler = http.TimeoutHandler(handler, rt.opts.RequestTimeout, `{"error":"request timed out"}`)
	}
	handler = backpressureMiddleware(handler, rt.opts.MaxInFlight, rt.opts.QueueWait, rt.reject("backpressure"))
	handler = rateLimitMiddleware(handler, rt.opts.RateLimitRPS, rt.opts.RateLimitBurst, rt.reject("rate_limit"))
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) reject(reason string) func() {
	return func() {
		if rt.opts.Recorder != nil {
			rt.opts.Recorder.RecordRejected(rt.opts.Service, reason)
		}
	}
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type retrieveRequest struct {
	Query             string `json:"query"`
	TopK              int    `json:"top_k"`
	CandidatePoolSize int    `json:"candidate_pool_size"`
	Mode              string `json:"mode"`
}

type retrieveResponse struct {
	Mode     domain.RetrievalMode `json:"mode"`
	Passages []domain.Citation    `json:"passages"`
	Degraded bool                 `json:"degraded"`
	Skipped  []domain.RankerName  `json:"skipped"`
}

func (rt *Router) retrieve(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req retrieveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if req.TopK < 0 || req.CandidatePoolSize < 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "top_k and candidate_pool_size must be non-negative"})
		return
	}

	result, err := rt.retriever.Retrieve(r.Context(), domain.Query{
		Text:              req.Query,
		TopK:              rt.topK(req.TopK),
		CandidatePoolSize: req.CandidatePoolSize,
		Mode:              domain.RetrievalMode(strings.ToLower(strings.TrimSpace(req.Mode))),
	})
	if err != nil {
		rt.writeError(w, r, "retrieve", err)
		return
	}

	skipped := result.Skipped
	if skipped == nil {
		skipped = []domain.RankerName{}
	}
	writeJSON(w, http.StatusOK, retrieveResponse{
		Mode:     result.Mode,
		Passages: result.Citations(),
		Degraded: result.Degraded,
		Skipped:  skipped,
	})
}

func (rt *Router) answerGuidance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	var req domain.GuidanceRequest
	if err := decodeJSON(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "question is required"})
		return
	}
	req.TopK = rt.topK(req.TopK)

	start := time.Now()
	guidance, err := rt.guidance.Answer(r.Context(), req)
	if err != nil {
		rt.writeError(w, r, "guidance", err)
		return
	}
	if rt.opts.Recorder != nil {
		rt.opts.Recorder.RecordGuidance(rt.opts.Service, "/v1/guidance", string(req.Mode), string(req.Retrieval),
			len(guidance.Sources), guidance.UsedWebSearch, time.Since(start))
	}
	writeJSON(w, http.StatusOK, guidance)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "document id is required"})
		return
	}

	doc, err := rt.docs.GetByID(r.Context(), id)
	if err != nil {
		rt.writeError(w, r, "get document", err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) refreshCorpus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]string{"error": "method not allowed"})
		return
	}
	if rt.refresher == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "lexical index is disabled"})
		return
	}

	n, err := rt.refresher.Refresh(r.Context())
	if err != nil {
		rt.writeError(w, r, "refresh corpus", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"passages": n})
}

func (rt *Router) topK(requested int) int {
	if requested > 0 {
		return requested
	}
	return rt.opts.DefaultTopK
}

func (rt *Router) writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	status := mapErrorToHTTPStatus(err)
	if status < http.StatusInternalServerError {
		writeJSON(w, status, map[string]string{"error": err.Error()})
		return
	}
	rt.logger.Error("request_failed", "op", op, "request_id", requestIDFromContext(r.Context()), "error", err)
	writeJSON(w, status, map[string]string{"error": http.StatusText(status)})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return errors.New("empty body")
		}
		return err
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
