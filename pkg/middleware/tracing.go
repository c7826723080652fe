// pkg/middleware/tracing.go
package middleware

import (
	"context"
	"net/http"
	"os"
	"strings"
	"sync/atomic"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
	"go.uber.org/zap"
)

var instrumented atomic.Bool

// InitTracing installs an OTLP/HTTP tracer provider when an exporter endpoint
// is configured in the environment. The returned func flushes pending spans.
func InitTracing(ctx context.Context, serviceName string, log *zap.SugaredLogger) func(context.Context) error {
	noop := func(context.Context) error { return nil }
	endpoint := os.Getenv("OTEL_EXPORTER_OTLP_TRACES_ENDPOINT")
	if endpoint == "" {
		endpoint = os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	}
	if endpoint == "" {
		return noop
	}
	var opts []otlptracehttp.Option
	if strings.HasPrefix(strings.ToLower(endpoint), "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		log.Warnw("tracing disabled, exporter init failed", "err", err)
		return noop
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		log.Warnw("tracing disabled, resource init failed", "err", err)
		return noop
	}
	tp := trace.NewTracerProvider(trace.WithBatcher(exp), trace.WithResource(res))
	otel.SetTracerProvider(tp)
	instrumented.Store(true)
	log.Infow("tracing enabled", "endpoint", endpoint)
	return tp.Shutdown
}

// Tracing wraps handlers with otelhttp once InitTracing enabled an exporter.
// Requests to the untraced paths reach next with the original writer; the
// otelhttp writer wrapper re-sends the status header on every Flush, which
// streamed responses do once per record.
func Tracing(operation string, untraced ...string) func(http.Handler) http.Handler {
	if !instrumented.Load() {
		return func(next http.Handler) http.Handler { return next }
	}
	skip := make(map[string]struct{}, len(untraced))
	for _, p := range untraced {
		skip[p] = struct{}{}
	}
	filter := otelhttp.WithFilter(func(r *http.Request) bool {
		_, ok := skip[r.URL.Path]
		return !ok
	})
	return func(next http.Handler) http.Handler { return otelhttp.NewHandler(next, operation, filter) }
}
