package api

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
)

const (
	requestIDHeader   = "X-Request-Id"
	maxRequestIDBytes = 128
)

// withRequestID reuses a caller supplied X-Request-Id or mints a ULID, echoes
// it on the response and binds a request scoped logger to the context.
func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(requestIDHeader))
		if id == "" || len(id) > maxRequestIDBytes {
			id = ulid.Make().String()
		}
		w.Header().Set(requestIDHeader, id)

		logger := s.logger.With().Str("request_id", id).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(r.Context())))
	})
}

func (s *Server) withRequestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		zerolog.Ctx(r.Context()).Debug().
			Str("method", r.Method).
			Str("route", routeLabel(r.URL.Path)).
			Int("status", recorder.status).
			Dur("duration", time.Since(start)).
			Msg("request handled")
	})
}

// withActivity counts every request in the lifecycle row before routing.
// /metrics scrapes are not counted and /health answers even when the store
// is down.
func (s *Server) withActivity(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/metrics" {
			next.ServeHTTP(w, r)
			return
		}

		if err := s.store.RecordActivity(r.Context()); err != nil {
			if r.URL.Path == "/health" {
				s.metrics.storeErrors.WithLabelValues("record_activity").Inc()
				zerolog.Ctx(r.Context()).Warn().Err(err).Msg("record activity failed")
				next.ServeHTTP(w, r)
				return
			}
			s.storeUnavailable(w, r, "record_activity", err)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) withRecovery(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}

			err := fmt.Errorf("panic serving %s: %v", r.URL.Path, rec)
			zerolog.Ctx(r.Context()).Error().Err(err).Msg("recovered panic")
			s.report(err)
			writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		}()
		next.ServeHTTP(w, r)
	})
}
