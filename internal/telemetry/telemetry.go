// Package telemetry exports launcher metrics and lifecycle events over
// OTLP HTTP.
//
// Enabled by setting at least one of:
//
//	PAWLAUNCH_OTEL_METRICS_URL  (default: http://localhost:8428/opentelemetry/api/v1/push)
//	PAWLAUNCH_OTEL_LOGS_URL     (default: http://localhost:9428/insert/opentelemetry/v1/logs)
//
// Telemetry is best-effort: Init errors are returned but callers log them
// and continue.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploghttp"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	// EnvMetricsURL is the OTLP metrics endpoint variable.
	EnvMetricsURL = "PAWLAUNCH_OTEL_METRICS_URL"

	// EnvLogsURL is the OTLP logs endpoint variable.
	EnvLogsURL = "PAWLAUNCH_OTEL_LOGS_URL"

	// DefaultMetricsURL is used for metrics when only logs are configured.
	DefaultMetricsURL = "http://localhost:8428/opentelemetry/api/v1/push"

	// DefaultLogsURL is used for logs when only metrics are configured.
	DefaultLogsURL = "http://localhost:9428/insert/opentelemetry/v1/logs"

	// ExportInterval is how often metrics are pushed.
	ExportInterval = 30 * time.Second
)

// Provider owns the SDK providers behind a Recorder.
type Provider struct {
	Meters *sdkmetric.MeterProvider
	Logs   *sdklog.LoggerProvider

	shutdownOnce sync.Once
	shutdownErr  error
}

// Enabled reports whether either endpoint variable is set.
func Enabled() bool {
	return os.Getenv(EnvMetricsURL) != "" || os.Getenv(EnvLogsURL) != ""
}

// Init creates OTLP exporters for metrics and logs. It returns (nil, nil)
// when neither endpoint variable is set.
func Init(ctx context.Context, serviceName, serviceVersion string) (*Provider, error) {
	if !Enabled() {
		return nil, nil
	}
	metricsURL := os.Getenv(EnvMetricsURL)
	if metricsURL == "" {
		metricsURL = DefaultMetricsURL
	}
	logsURL := os.Getenv(EnvLogsURL)
	if logsURL == "" {
		logsURL = DefaultLogsURL
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(serviceName),
			semconv.ServiceVersion(serviceVersion),
		),
		resource.WithHost(),
		resource.WithOS(),
	)
	if err != nil {
		return nil, fmt.Errorf("creating OTel resource: %w", err)
	}

	metricExp, err := otlpmetrichttp.New(ctx, otlpmetrichttp.WithEndpointURL(metricsURL))
	if err != nil {
		return nil, fmt.Errorf("creating OTLP metric exporter: %w", err)
	}
	logExp, err := otlploghttp.New(ctx, otlploghttp.WithEndpointURL(logsURL))
	if err != nil {
		_ = metricExp.Shutdown(ctx)
		return nil, fmt.Errorf("creating OTLP log exporter: %w", err)
	}

	return &Provider{
		Meters: sdkmetric.NewMeterProvider(
			sdkmetric.WithResource(res),
			sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExp,
				sdkmetric.WithInterval(ExportInterval),
			)),
		),
		Logs: sdklog.NewLoggerProvider(
			sdklog.WithResource(res),
			sdklog.WithProcessor(sdklog.NewBatchProcessor(logExp)),
		),
	}, nil
}

// Recorder returns a metrics recorder backed by the provider.
func (p *Provider) Recorder() *Recorder {
	return NewRecorder(p.Meters, p.Logs)
}

// Shutdown flushes pending data and stops both providers. Safe to call
// more than once. Pass a context with a deadline.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.shutdownOnce.Do(func() {
		p.shutdownErr = errors.Join(p.Meters.Shutdown(ctx), p.Logs.Shutdown(ctx))
	})
	return p.shutdownErr
}
