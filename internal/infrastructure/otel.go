package infrastructure

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	ServiceName    = "license-gate"
	ServiceVersion = "v1.0.0"
	MeterName      = "licensegate"
)

// OTelProviders holds the OpenTelemetry providers wired at startup.
// Metrics are exported through the Prometheus registry served at /metrics.
type OTelProviders struct {
	MeterProvider  *sdkmetric.MeterProvider
	Meter          metric.Meter
	PrometheusHTTP http.Handler
	Logger         *slog.Logger
}

// InitializeOTel sets up the OpenTelemetry meter provider with a Prometheus
// exporter and installs it as the global provider.
func InitializeOTel(logger *slog.Logger) (*OTelProviders, error) {
	ctx := context.Background()

	res, err := resource.Merge(resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(ServiceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}

	// Each provider gets its own registry so repeated initialization (one
	// per test application) never trips duplicate collector registration.
	registry := promclient.NewRegistry()
	exporter, err := prometheus.New(prometheus.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(meterProvider)

	providers := &OTelProviders{
		MeterProvider:  meterProvider,
		Meter:          meterProvider.Meter(MeterName),
		PrometheusHTTP: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		Logger:         logger,
	}

	logger.InfoContext(ctx, "OpenTelemetry metrics initialized",
		slog.String("service", ServiceName),
		slog.String("exporter", "prometheus"))

	return providers, nil
}

// Shutdown flushes and stops the meter provider
func (p *OTelProviders) Shutdown(ctx context.Context) error {
	if p.MeterProvider != nil {
		return p.MeterProvider.Shutdown(ctx)
	}
	return nil
}

// GateMetrics holds the counters recorded by the license gate and the
// ingest endpoints.
type GateMetrics struct {
	Validations metric.Int64Counter
	UsagePings  metric.Int64Counter
	Violations  metric.Int64Counter
	AdminOps    metric.Int64Counter
}

// CreateGateMetrics registers the license metrics on the given meter
func CreateGateMetrics(meter metric.Meter) (*GateMetrics, error) {
	validations, err := meter.Int64Counter("license_validations_total",
		metric.WithDescription("License validation attempts by outcome"))
	if err != nil {
		return nil, err
	}

	pings, err := meter.Int64Counter("license_usage_pings_total",
		metric.WithDescription("Usage pings ingested"))
	if err != nil {
		return nil, err
	}

	violations, err := meter.Int64Counter("license_violations_total",
		metric.WithDescription("Violation alerts ingested"))
	if err != nil {
		return nil, err
	}

	adminOps, err := meter.Int64Counter("license_admin_operations_total",
		metric.WithDescription("Admin API operations by kind"))
	if err != nil {
		return nil, err
	}

	return &GateMetrics{
		Validations: validations,
		UsagePings:  pings,
		Violations:  violations,
		AdminOps:    adminOps,
	}, nil
}
