package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/dunamismax/pixelproxy/internal/domain"
	"github.com/dunamismax/pixelproxy/internal/pipeline"
	"github.com/dunamismax/pixelproxy/internal/store"
	"github.com/getsentry/sentry-go"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

const (
	cacheControlImmutable = "public, max-age=31536000"
	tracerName            = "github.com/dunamismax/pixelproxy/internal/api"
)

type imageProcessor interface {
	Process(ctx context.Context, req domain.ProcessingRequest) (pipeline.Result, error)
}

type Options struct {
	Logger    zerolog.Logger
	Store     store.ActivityStore
	Processor imageProcessor
	// PropagateClientCancel lets a client disconnect abort an in-flight
	// fetch. When false only the fetch timeout ends a retrieval.
	PropagateClientCancel bool
	// ActiveTransforms feeds the active transforms gauge when set.
	ActiveTransforms func() int64
	// Report receives errors worth alerting on. Defaults to Sentry.
	Report func(error)
	Tracer trace.Tracer
}

type Server struct {
	logger                zerolog.Logger
	store                 store.ActivityStore
	processor             imageProcessor
	propagateClientCancel bool
	report                func(error)
	metrics               *metrics
	tracer                trace.Tracer
	mux                   *http.ServeMux
}

func NewServer(opts Options) *Server {
	if opts.Report == nil {
		opts.Report = func(err error) { sentry.CaptureException(err) }
	}
	if opts.Tracer == nil {
		opts.Tracer = otel.Tracer(tracerName)
	}

	s := &Server{
		logger:                opts.Logger.With().Str("component", "api").Logger(),
		store:                 opts.Store,
		processor:             opts.Processor,
		propagateClientCancel: opts.PropagateClientCancel,
		report:                opts.Report,
		metrics:               newMetrics(opts.ActiveTransforms),
		tracer:                opts.Tracer,
		mux:                   http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withActivity(h)
	h = s.withRecovery(h)
	h = s.metrics.withHTTPMetrics(h)
	h = s.withTracing(h)
	h = s.withRequestLog(h)
	h = s.withRequestID(h)
	return h
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("GET /resize", s.handleResize)
	s.mux.HandleFunc("GET /container-stats", s.handleContainerStats)
	s.mux.HandleFunc("GET /processing-logs", s.handleProcessingLogs)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())
	s.mux.HandleFunc("GET /", s.handleEcho)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResize(w http.ResponseWriter, r *http.Request) {
	logger := zerolog.Ctx(r.Context())

	req := domain.ParseProcessingRequest(r.URL.Query().Get)
	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, errorBody{
			Error:   "Missing required parameters",
			Code:    "invalid_parameters",
			Details: err.Error(),
		})
		return
	}

	if err := s.store.AppendLog(r.Context(), req.SourceURL, req.Dimensions(), req.Format); err != nil {
		s.metrics.storeErrors.WithLabelValues("append_log").Inc()
		logger.Warn().Err(err).Str("image_url", req.SourceURL).Msg("append processing log failed")
	}

	ctx := r.Context()
	if !s.propagateClientCancel {
		ctx = context.WithoutCancel(ctx)
	}

	res, err := s.processor.Process(ctx, req)
	s.metrics.observePipeline(req, res, err)
	if err != nil {
		s.writePipelineError(w, r, req, err)
		return
	}

	w.Header().Set("Content-Type", res.Image.ContentType)
	w.Header().Set("Cache-Control", cacheControlImmutable)
	w.Header().Set("Content-Length", strconv.Itoa(len(res.Image.Data)))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(res.Image.Data); err != nil {
		logger.Debug().Err(err).Msg("write image response")
		return
	}

	logger.Info().
		Str("image_url", req.SourceURL).
		Str("dimensions", req.Dimensions()).
		Str("format", res.Image.Format).
		Int("bytes_in", len(res.Source.Data)).
		Int("bytes_out", len(res.Image.Data)).
		Dur("fetch", res.FetchDuration).
		Dur("transform", res.TransformDuration).
		Msg("image resized")
}

func (s *Server) writePipelineError(w http.ResponseWriter, r *http.Request, req domain.ProcessingRequest, err error) {
	logger := zerolog.Ctx(r.Context())

	var fetchErr *pipeline.FetchError
	if errors.As(err, &fetchErr) {
		body := errorBody{Details: fetchErr.Error()}
		switch {
		case errors.Is(err, pipeline.ErrTimeout):
			body.Error, body.Code = "Upstream fetch timed out", "timeout"
		case errors.Is(err, pipeline.ErrNotAnImage):
			body.Error, body.Code = "URL does not point to an image", "not_an_image"
			body.ContentType = &fetchErr.ContentType
		default:
			body.Error, body.Code = "Failed to fetch image", "upstream_fetch_failed"
			body.Status = &fetchErr.Status
		}
		logger.Info().Err(err).Str("image_url", req.SourceURL).Str("code", body.Code).Msg("upstream rejected")
		writeError(w, http.StatusBadRequest, body)
		return
	}

	details := err.Error()
	var transformErr *pipeline.TransformError
	if errors.As(err, &transformErr) {
		details = transformErr.Err.Error()
	}

	logger.Error().Err(err).Str("image_url", req.SourceURL).Str("format", req.Format).Msg("image processing failed")
	s.report(err)
	writeError(w, http.StatusInternalServerError, errorBody{
		Error:   "Image processing failed",
		Code:    "transform_failed",
		Details: details,
	})
}

func (s *Server) handleContainerStats(w http.ResponseWriter, r *http.Request) {
	record, ok, err := s.store.ReadLifecycle(r.Context())
	if err != nil {
		s.storeUnavailable(w, r, "read_lifecycle", err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, struct{}{})
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (s *Server) handleProcessingLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.store.ReadRecentLogs(r.Context(), domain.RecentLogLimit)
	if err != nil {
		s.storeUnavailable(w, r, "read_logs", err)
		return
	}
	if entries == nil {
		entries = []domain.ProcessingLogEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (s *Server) handleEcho(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	params := make(map[string]string, len(query))
	for key := range query {
		params[key] = query.Get(key)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message":   "Proxy is ready",
		"path":      r.URL.Path,
		"params":    params,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	})
}

func (s *Server) storeUnavailable(w http.ResponseWriter, r *http.Request, op string, err error) {
	s.metrics.storeErrors.WithLabelValues(op).Inc()
	zerolog.Ctx(r.Context()).Error().Err(err).Str("op", op).Msg("activity store failed")
	s.report(err)
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "activity store unavailable"})
}

type errorBody struct {
	Error       string  `json:"error"`
	Code        string  `json:"code,omitempty"`
	Details     string  `json:"details,omitempty"`
	Status      *int    `json:"status,omitempty"`
	ContentType *string `json:"content_type,omitempty"`
}

func writeError(w http.ResponseWriter, status int, body errorBody) {
	writeJSON(w, status, body)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
