// Package telemetry provides OpenTelemetry instrumentation for the view
// sync service.
package telemetry

import (
	"context"
	"fmt"
	"net/http"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// DefaultServiceName is the service name reported in metric resources
	DefaultServiceName = "viewsync"
)

// MeterProviderOption is a function that configures the meter provider setup
type MeterProviderOption func(*meterProviderConfig)

type meterProviderConfig struct {
	serviceName    string
	serviceVersion string
	enabled        bool
	registry       *promclient.Registry
}

// WithMeterServiceName sets the service name for the meter provider
func WithMeterServiceName(name string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.serviceName = name
	}
}

// WithMeterServiceVersion sets the service version for the meter provider
func WithMeterServiceVersion(version string) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.serviceVersion = version
	}
}

// WithMetricsEnabled enables or disables metric collection
func WithMetricsEnabled(enabled bool) MeterProviderOption {
	return func(cfg *meterProviderConfig) {
		cfg.enabled = enabled
	}
}

// Provider bundles a meter provider with the HTTP handler that serves its
// scrape endpoint.
type Provider struct {
	metric.MeterProvider

	handler  http.Handler
	shutdown func(context.Context) error
}

// Handler returns the Prometheus scrape handler. For a disabled provider it
// still returns a valid handler serving an empty registry.
func (p *Provider) Handler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the underlying SDK provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p.shutdown == nil {
		return nil
	}
	return p.shutdown(ctx)
}

// NewMeterProvider creates an OpenTelemetry MeterProvider backed by a
// Prometheus exporter. Returns a no-op provider if metrics are disabled.
// The caller is responsible for calling Shutdown on the returned provider.
func NewMeterProvider(_ context.Context, opts ...MeterProviderOption) (*Provider, error) {
	cfg := &meterProviderConfig{
		serviceName:    DefaultServiceName,
		serviceVersion: "unknown",
		enabled:        true,
		registry:       promclient.NewRegistry(),
	}
	for _, opt := range opts {
		opt(cfg)
	}

	if !cfg.enabled {
		return &Provider{
			MeterProvider: noop.NewMeterProvider(),
			handler:       promhttp.HandlerFor(cfg.registry, promhttp.HandlerOpts{}),
		}, nil
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.serviceName),
			semconv.ServiceVersion(cfg.serviceVersion),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric resource: %w", err)
	}

	exporter, err := otelprom.New(otelprom.WithRegisterer(cfg.registry))
	if err != nil {
		return nil, fmt.Errorf("failed to create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(exporter),
	)
	otel.SetMeterProvider(provider)

	return &Provider{
		MeterProvider: provider,
		handler:       promhttp.HandlerFor(cfg.registry, promhttp.HandlerOpts{}),
		shutdown:      provider.Shutdown,
	}, nil
}
