package middleware

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/iota-uz/feedback-hub/pkg/composables"
	"github.com/iota-uz/feedback-hub/pkg/constants"
	"github.com/iota-uz/feedback-hub/pkg/httpapi"
)

type LoggerOptions struct {
	// Only JSON bodies are logged, cut to MaxBodyLength bytes.
	LogRequestBody  bool
	LogResponseBody bool
	MaxBodyLength   int

	RequestIDHeader string
	RealIPHeader    string
	Repanic         bool
}

func DefaultLoggerOptions() LoggerOptions {
	return LoggerOptions{
		LogRequestBody:  true,
		LogResponseBody: true,
		MaxBodyLength:   512,
		RequestIDHeader: "X-Request-ID",
		RealIPHeader:    "X-Real-IP",
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status  int
	written bool
	body    bytes.Buffer
	keep    int
}

func (w *statusRecorder) WriteHeader(code int) {
	if w.written {
		return
	}
	w.status = code
	w.written = true
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusRecorder) Write(b []byte) (int, error) {
	if !w.written {
		w.WriteHeader(http.StatusOK)
	}
	if room := w.keep - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	return w.ResponseWriter.Write(b)
}

func (w *statusRecorder) Status() int {
	if w.status == 0 {
		return http.StatusOK
	}
	return w.status
}

func (w *statusRecorder) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	if h, ok := w.ResponseWriter.(http.Hijacker); ok {
		return h.Hijack()
	}
	return nil, nil, errors.New("underlying ResponseWriter does not implement http.Hijacker")
}

func headerOr(r *http.Request, name, fallback string) string {
	if name != "" {
		if v := r.Header.Get(name); v != "" {
			return v
		}
	}
	return fallback
}

func isJSON(contentType string) bool {
	return strings.Contains(strings.ToLower(contentType), "application/json")
}

func clip(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

var tracer = otel.Tracer("feedback-hub-middleware")

// TracedMiddleware opens a span named middleware.<name> around the rest of the chain.
func TracedMiddleware(name string) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracer.Start(r.Context(), "middleware."+name,
				trace.WithAttributes(attribute.String("middleware.name", name)),
			)
			defer span.End()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// WithLogger binds a request-scoped logger and request id to the context,
// traces the request and turns handler panics into a JSON 500.
func WithLogger(logger *logrus.Logger, opts LoggerOptions) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			requestID := headerOr(r, opts.RequestIDHeader, uuid.NewString())
			ip := headerOr(r, opts.RealIPHeader, r.RemoteAddr)

			entry := logger.WithFields(logrus.Fields{
				"request-id": requestID,
				"method":     r.Method,
				"path":       r.URL.Path,
			})
			entry.WithFields(logrus.Fields{
				"ip":         ip,
				"user-agent": r.UserAgent(),
			}).Info("request started")

			if opts.LogRequestBody && r.Body != nil && r.Method != http.MethodGet && isJSON(r.Header.Get("Content-Type")) {
				body, err := io.ReadAll(r.Body)
				if err != nil {
					entry.WithError(err).Error("failed to read request body")
					_ = httpapi.WriteRequestError(w, http.StatusBadRequest, requestID, "INVALID_BODY", "failed to read request body")
					return
				}
				r.Body = io.NopCloser(bytes.NewReader(body))
				entry.WithField("request-body", clip(body, opts.MaxBodyLength)).Debug("request body")
			}

			propagator := propagation.TraceContext{}
			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, "http.request", trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.route", r.URL.Path),
				attribute.String("http.request_id", requestID),
				attribute.String("net.peer.ip", ip),
			))
			defer span.End()

			if sc := span.SpanContext(); sc.HasTraceID() {
				w.Header().Set("X-Trace-Id", sc.TraceID().String())
				entry = entry.WithField("trace-id", sc.TraceID().String())
			}
			w.Header().Set("X-Request-Id", requestID)

			ctx = composables.WithLogger(ctx, entry)
			ctx = composables.WithRequestID(ctx, requestID)
			ctx = context.WithValue(ctx, constants.RequestStart, start)

			keep := 0
			if opts.LogResponseBody {
				keep = opts.MaxBodyLength
			}
			rec := &statusRecorder{ResponseWriter: w, keep: keep}

			defer func() {
				recovered := recover()
				if recovered == nil {
					return
				}
				entry.WithFields(logrus.Fields{
					"panic":    recovered,
					"stack":    string(debug.Stack()),
					"query":    r.URL.RawQuery,
					"duration": time.Since(start),
				}).Error("panic recovered in request handler")
				if !rec.written {
					_ = httpapi.WriteRequestError(rec, http.StatusInternalServerError, requestID, "INTERNAL_SERVER_ERROR", "internal server error")
				}
				if opts.Repanic {
					panic(recovered)
				}
			}()

			next.ServeHTTP(rec, r.WithContext(ctx))

			status := rec.Status()
			duration := time.Since(start)
			span.SetAttributes(
				attribute.Int("http.status_code", status),
				attribute.Int64("http.request_duration_ms", duration.Milliseconds()),
			)
			done := entry.WithFields(logrus.Fields{
				"status-code": status,
				"duration":    duration,
			})
			if keep > 0 && isJSON(rec.Header().Get("Content-Type")) {
				done = done.WithField("response-body", clip(rec.body.Bytes(), keep))
			}
			done.Info("request completed")
		})
	}
}
