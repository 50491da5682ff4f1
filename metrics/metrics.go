package metrics

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
)

const meterName = "biscuit-backend"

// AppMetrics holds the business instruments recorded by the storefront.
type AppMetrics struct {
	PaymentsInitiated  metric.Int64Counter
	PaymentFailures    metric.Int64Counter
	StatusTransitions  metric.Int64Counter
	CallbacksReceived  metric.Int64Counter
	TokenCacheHits     metric.Int64Counter
	TokenCacheMisses   metric.Int64Counter
	CartSyncs          metric.Int64Counter
	OrdersCreated      metric.Int64Counter
	UpstreamDurationMs metric.Float64Histogram
}

// Config selects the OTLP endpoint. An empty Endpoint leaves the global
// no-op provider in place.
type Config struct {
	Endpoint       string
	Headers        string
	Insecure       bool
	ServiceName    string
	ServiceVersion string
	Environment    string
}

var (
	mu      sync.RWMutex
	current *AppMetrics
)

// Get returns the active instruments, creating them from the global meter
// provider on first use.
func Get() *AppMetrics {
	mu.RLock()
	m := current
	mu.RUnlock()
	if m != nil {
		return m
	}

	mu.Lock()
	defer mu.Unlock()
	if current == nil {
		current = mustNew(otel.GetMeterProvider().Meter(meterName))
	}
	return current
}

// Init wires an OTLP HTTP exporter and replaces the global instruments.
// The returned provider must be shut down on exit.
func Init(ctx context.Context, cfg Config) (*sdkmetric.MeterProvider, error) {
	if cfg.Endpoint == "" {
		return nil, nil
	}

	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
		attribute.String("deployment.environment", cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
		otlpmetrichttp.WithURLPath("/v1/metrics"),
	}
	if cfg.Headers != "" {
		opts = append(opts, otlpmetrichttp.WithHeaders(parseHeaders(cfg.Headers)))
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))),
	)
	otel.SetMeterProvider(provider)

	m, err := New(provider.Meter(meterName))
	if err != nil {
		return nil, err
	}
	mu.Lock()
	current = m
	mu.Unlock()
	return provider, nil
}

// New creates the instruments on meter.
func New(meter metric.Meter) (*AppMetrics, error) {
	var m AppMetrics
	var err error

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&m.PaymentsInitiated, "payments.initiated", "Payment initiations sent to a provider"},
		{&m.PaymentFailures, "payments.failures", "Provider calls that failed or timed out"},
		{&m.StatusTransitions, "orders.status_transitions", "Order status transitions applied"},
		{&m.CallbacksReceived, "payments.callbacks", "Provider webhook callbacks received"},
		{&m.TokenCacheHits, "payments.token_cache.hits", "Provider token cache hits"},
		{&m.TokenCacheMisses, "payments.token_cache.misses", "Provider token cache misses"},
		{&m.CartSyncs, "cart.syncs", "Session to storage reconciliations"},
		{&m.OrdersCreated, "orders.created", "Orders placed at checkout"},
	}
	for _, c := range counters {
		*c.dst, err = meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit("1"))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
	}

	m.UpstreamDurationMs, err = meter.Float64Histogram(
		"payments.upstream.duration",
		metric.WithDescription("Latency of payment provider calls"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create upstream duration histogram: %w", err)
	}
	return &m, nil
}

func mustNew(meter metric.Meter) *AppMetrics {
	m, err := New(meter)
	if err != nil {
		panic(err)
	}
	return m
}

// Add is a shorthand for counters tagged with string attributes.
func Add(ctx context.Context, c metric.Int64Counter, kv ...string) {
	c.Add(ctx, 1, metric.WithAttributes(pairs(kv)...))
}

func pairs(kv []string) []attribute.KeyValue {
	attrs := make([]attribute.KeyValue, 0, len(kv)/2)
	for i := 0; i+1 < len(kv); i += 2 {
		attrs = append(attrs, attribute.String(kv[i], kv[i+1]))
	}
	return attrs
}

// parseHeaders parses "k1=v1,k2=v2" as used by OTEL_EXPORTER_OTLP_HEADERS.
func parseHeaders(s string) map[string]string {
	headers := make(map[string]string)
	for _, part := range strings.Split(s, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if ok && k != "" {
			headers[strings.TrimSpace(k)] = strings.TrimSpace(v)
		}
	}
	return headers
}
