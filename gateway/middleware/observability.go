package middleware

import (
	"bufio"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"supplynet/observability"
	telemetry "supplynet/observability/otel"
)

// serverOperation names the span until chi has resolved the route.
const serverOperation = "supplynetd"

type ObservabilityConfig struct {
	MetricsEnabled bool
	LogRequests    bool
	// TracerProvider replaces the global provider. Tests use it to record
	// spans.
	TracerProvider trace.TracerProvider
}

type Observability struct {
	cfg    ObservabilityConfig
	logger *slog.Logger
}

func NewObservability(cfg ObservabilityConfig, logger *slog.Logger) *Observability {
	if logger == nil {
		logger = slog.Default()
	}
	return &Observability{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "http")),
	}
}

// Middleware serves each request inside an otelhttp server span that
// continues any incoming W3C trace context. The span is renamed after the
// route pattern once chi has matched it.
func (o *Observability) Middleware(next http.Handler) http.Handler {
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		recorder := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(recorder, r)

		route := routePattern(r)
		duration := time.Since(start)
		span := trace.SpanFromContext(r.Context())
		span.SetName(r.Method + " " + route)
		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.String("http.request_id", RequestIDFromContext(r.Context())),
		)
		if o.cfg.MetricsEnabled {
			observability.HTTP().Observe(route, r.Method, recorder.status, duration)
		}
		if o.cfg.LogRequests {
			o.logger.Info("request served",
				slog.String("method", r.Method),
				slog.String("route", route),
				slog.Int("status", recorder.status),
				slog.String("requestId", RequestIDFromContext(r.Context())),
				slog.Duration("duration", duration))
		}
	})
	opts := []otelhttp.Option{otelhttp.WithPropagators(telemetry.Propagator())}
	if o.cfg.TracerProvider != nil {
		opts = append(opts, otelhttp.WithTracerProvider(o.cfg.TracerProvider))
	}
	return otelhttp.NewHandler(inner, serverOperation, opts...)
}

func (o *Observability) MetricsHandler() http.Handler {
	return promhttp.Handler()
}

func routePattern(r *http.Request) string {
	if rctx := chi.RouteContext(r.Context()); rctx != nil {
		if pattern := rctx.RoutePattern(); pattern != "" {
			return pattern
		}
	}
	return "unmatched"
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (s *statusRecorder) WriteHeader(code int) {
	if !s.wroteHeader {
		s.status = code
		s.wroteHeader = true
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	s.wroteHeader = true
	return s.ResponseWriter.Write(b)
}

// Hijack lets websocket upgrades pass through the recorder.
func (s *statusRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	hijacker, ok := s.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	s.status = http.StatusSwitchingProtocols
	s.wroteHeader = true
	return hijacker.Hijack()
}

func (s *statusRecorder) Flush() {
	if flusher, ok := s.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}
