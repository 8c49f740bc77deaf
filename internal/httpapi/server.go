// Package httpapi exposes the fill service over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/a3tai/taxform-filler/internal/records"
	"github.com/a3tai/taxform-filler/internal/taxform"
)

const (
	// RequestIDHeader carries the id assigned to each request
	RequestIDHeader = "X-Request-ID"

	maxBodySize     = 10 << 20
	shutdownTimeout = 10 * time.Second
)

// Server routes API requests to a taxform.Service
type Server struct {
	svc    *taxform.Service
	store  records.Store
	logger *slog.Logger
	mux    *http.ServeMux
}

// New creates a server. store may be nil, in which case the record render
// endpoints answer 501.
func New(svc *taxform.Service, store records.Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		store:  store,
		logger: logger,
		mux:    http.NewServeMux(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/v1/taxpayer/{taxpayer_id}/render/pdf/{year}/{pk}/{$}", s.handleRenderPDF)
	s.mux.HandleFunc("GET /api/v1/taxpayer/{taxpayer_id}/render/form/{year}/{pk}/{$}", s.handleRenderForm)

	s.mux.HandleFunc("GET /api/v1/forms", s.handleForms)
	s.mux.HandleFunc("POST /api/v1/forms/batch", s.handleBatch)
	s.mux.HandleFunc("POST /api/v1/forms/{form}/fill", s.handleFill)
	s.mux.HandleFunc("GET /api/v1/forms/{form}/fields", s.handleFields)
	s.mux.HandleFunc("GET /api/v1/forms/{form}/coverage", s.handleCoverage)

	s.mux.HandleFunc("GET /healthz", s.handleHealth)
}

// Handler returns the routed handler wrapped with request ids and access
// logging
func (s *Server) Handler() http.Handler {
	return s.withRequestID(s.withLogging(s.mux))
}

// Run serves on addr until ctx is done, then shuts down gracefully
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server failed: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	s.logger.Info("http server stopped")
	return nil
}

type ctxKey struct{}

// RequestID returns the id assigned to the request carrying ctx
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}

func (s *Server) withRequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, id)))
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	n, err := r.ResponseWriter.Write(b)
	r.bytes += n
	return n, err
}

func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		next.ServeHTTP(rec, r)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelInfo
		if status >= http.StatusInternalServerError {
			level = slog.LevelError
		}
		s.logger.Log(r.Context(), level, "request",
			"request_id", RequestID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"status", status,
			"bytes", rec.bytes,
			"duration", time.Since(start))
	})
}
