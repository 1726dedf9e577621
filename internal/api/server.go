package api

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/config"
	"github.com/JakeFAU/crawl-validator/internal/dispatcher"
	idgen "github.com/JakeFAU/crawl-validator/internal/id/uuid"
	"github.com/JakeFAU/crawl-validator/internal/input"
	"github.com/JakeFAU/crawl-validator/internal/metrics"
	"github.com/JakeFAU/crawl-validator/internal/storage"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

const maxWebhookBody = 1 << 20

// Server wires HTTP handlers to the dispatcher and stores.
type Server struct {
	router      chi.Router
	invocations validation.InvocationStore
	store       validation.KeyValueStore
	dispatcher  *dispatcher.Dispatcher
	idGen       validation.IDGenerator
	clock       validation.Clock
	cfg         config.Config
	logger      *zap.Logger
}

// NewServer constructs a Server with middleware and routes.
func NewServer(
	invocations validation.InvocationStore,
	store validation.KeyValueStore,
	dispatcher *dispatcher.Dispatcher,
	idGen validation.IDGenerator,
	clock validation.Clock,
	cfg config.Config,
	logger *zap.Logger,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		invocations: invocations,
		store:       store,
		dispatcher:  dispatcher,
		idGen:       idGen,
		clock:       clock,
		cfg:         cfg,
		logger:      logger,
	}
	timeout := cfg.RequestTimeout()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	r := chi.NewRouter()
	r.Use(requestIDMiddleware)
	r.Use(loggingMiddleware(logger))
	r.Use(recoverMiddleware(logger))
	r.Use(metrics.Middleware)
	r.Use(timeoutMiddleware(timeout))

	r.Get("/healthz", s.healthz)
	r.Get("/readyz", s.readyz)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/v1", func(r chi.Router) {
		if cfg.Auth.Enabled {
			r.Use(apiKeyMiddleware(cfg.Auth.APIKey))
		}
		r.Post("/webhooks/finished", s.submitWebhook)
		r.Route("/invocations/{invocation_id}", func(r chi.Router) {
			r.Get("/", s.getInvocation)
			r.Get("/output", s.getInvocationOutput)
		})
	})

	s.router = r
	return s
}

// Handler returns the Router for use with http.Server, traced when telemetry is enabled.
func (s *Server) Handler() http.Handler {
	if s.cfg.Telemetry.TracingEnabled {
		return otelhttp.NewHandler(s.router, "validator-api")
	}
	return s.router
}

func (s *Server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) readyz(w http.ResponseWriter, _ *http.Request) {
	if s.dispatcher == nil || s.dispatcher.Size() == 0 {
		writeError(w, http.StatusServiceUnavailable, "no workers running")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready", "queue_depth": s.dispatcher.Depth()})
}

func (s *Server) submitWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}
	if _, err := input.Parse(body, s.logger); err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, validation.ErrTargetMissing) {
			status = http.StatusUnprocessableEntity
		}
		writeError(w, status, err.Error())
		return
	}

	id, err := s.enqueueInvocation(r.Context(), body)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, validation.ErrQueueFull) {
			status = http.StatusServiceUnavailable
		}
		writeError(w, status, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"invocation_id": id,
		"status":        string(validation.InvocationQueued),
	})
}

func (s *Server) getInvocation(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "invocation_id")
	if !idgen.Valid(id) {
		writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	inv, err := s.invocations.GetInvocation(r.Context(), id)
	if err != nil {
		if errors.Is(err, validation.ErrInvocationNotFound) {
			writeError(w, http.StatusNotFound, "invocation not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch invocation")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"invocation": inv})
}

func (s *Server) getInvocationOutput(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "invocation_id")
	if !idgen.Valid(id) {
		writeError(w, http.StatusNotFound, "invocation not found")
		return
	}
	ns, err := storage.NewNamespace(s.store, storage.InvocationPrefix(id))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	raw, err := ns.Get(r.Context(), validation.OutputKey)
	if err != nil {
		if errors.Is(err, validation.ErrRecordNotFound) {
			writeError(w, http.StatusNotFound, "output not available")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to fetch output")
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(raw); err != nil {
		s.logger.Error("write output failed", zap.Error(err))
	}
}

func (s *Server) enqueueInvocation(ctx context.Context, body []byte) (string, error) {
	id, err := s.idGen.NewID()
	if err != nil {
		return "", fmt.Errorf("generate invocation id: %w", err)
	}
	ns, err := storage.NewNamespace(s.store, storage.InvocationPrefix(id))
	if err != nil {
		return "", err
	}
	if err := ns.Set(ctx, validation.InputKey, body); err != nil {
		return "", fmt.Errorf("store input: %w", err)
	}
	now := s.clock.Now()
	inv := validation.Invocation{
		ID:        id,
		Status:    validation.InvocationQueued,
		Submitted: now,
	}
	if err := s.invocations.CreateInvocation(ctx, inv); err != nil {
		return "", fmt.Errorf("create invocation: %w", err)
	}
	queueCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	item := validation.QueueItem{InvocationID: id, Submitted: now.Unix()}
	if err := s.dispatcher.Enqueue(queueCtx, item); err != nil {
		if updErr := s.invocations.UpdateInvocation(
			context.WithoutCancel(ctx), id, validation.InvocationFailed, err.Error(), 0,
		); updErr != nil {
			s.logger.Error("mark invocation failed", zap.String("invocation_id", id), zap.Error(updErr))
		}
		return "", fmt.Errorf("enqueue invocation: %w", err)
	}
	return id, nil
}

type requestIDKey struct{}

func requestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := r.Header.Get("X-Request-ID")
		if reqID == "" {
			reqID = uuid.NewString()
		}
		ctx := context.WithValue(r.Context(), requestIDKey{}, reqID)
		w.Header().Set("X-Request-ID", reqID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

func loggingMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := &responseWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(ww, r)
			logger.Info("request completed",
				zap.String("request_id", requestID(r.Context())),
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

func recoverMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rec := recover(); rec != nil {
					logger.Error("panic recovered",
						zap.String("request_id", requestID(r.Context())),
						zap.Any("error", rec),
					)
					writeError(w, http.StatusInternalServerError, "internal server error")
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

func timeoutMiddleware(d time.Duration) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.TimeoutHandler(next, d, "request timed out")
	}
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	if err != nil {
		return n, fmt.Errorf("write response: %w", err)
	}
	return n, nil
}

func (rw *responseWriter) Flush() {
	if f, ok := rw.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (rw *responseWriter) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := rw.ResponseWriter.(http.Hijacker); ok {
		conn, buf, err := h.Hijack()
		if err != nil {
			return nil, nil, fmt.Errorf("hijack connection: %w", err)
		}
		return conn, buf, nil
	}
	return nil, nil, errors.New("hijacker not supported")
}

func apiKeyMiddleware(expected string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := r.Header.Get("X-API-Key")
			if key == "" {
				key = r.URL.Query().Get("api_key")
			}
			if key != expected {
				writeError(w, http.StatusForbidden, "unauthorized")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		zap.L().Error("write JSON failed", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
