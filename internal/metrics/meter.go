// Package metrics exports the admission and pool gauges over OpenTelemetry.
// It observes state transitions without ever participating in control flow.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/skillsenselab/whisper-server/internal/logger"
)

// Config configures the OTLP metric exporter.
type Config struct {
	// Enabled turns metric export on.
	Enabled bool `yaml:"enabled" mapstructure:"enabled"`
	// Endpoint is the OTLP HTTP endpoint host:port (e.g. "localhost:4318").
	Endpoint string `yaml:"endpoint" mapstructure:"endpoint"`
	// Insecure allows plaintext connections (for development).
	Insecure bool `yaml:"insecure" mapstructure:"insecure"`
	// Interval is the metric export interval.
	Interval time.Duration `yaml:"interval" mapstructure:"interval"`
}

// ApplyDefaults applies default values to metrics configuration.
func (c *Config) ApplyDefaults() {
	if c.Endpoint == "" {
		c.Endpoint = "localhost:4318"
	}
	if c.Interval == 0 {
		c.Interval = 15 * time.Second
	}
}

// Init initializes the OpenTelemetry meter provider. The returned provider
// must be shut down on application exit.
func Init(ctx context.Context, cfg Config, serviceName, version string) (*sdkmetric.MeterProvider, error) {
	opts := []otlpmetrichttp.Option{
		otlpmetrichttp.WithEndpoint(cfg.Endpoint),
	}
	if cfg.Insecure {
		opts = append(opts, otlpmetrichttp.WithInsecure())
	}

	exporter, err := otlpmetrichttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("creating metric exporter: %w", err)
	}

	res, err := buildResource(serviceName, version)
	if err != nil {
		return nil, err
	}

	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.Interval))),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(mp)

	logger.Info("Meter initialized", map[string]interface{}{
		"endpoint": cfg.Endpoint,
		"interval": cfg.Interval.String(),
	})
	return mp, nil
}

// buildResource describes this service instance to the collector.
func buildResource(serviceName, version string) (*resource.Resource, error) {
	res, err := resource.Merge(resource.Default(), resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	))
	if err != nil {
		return nil, fmt.Errorf("creating resource: %w", err)
	}
	return res, nil
}

// PoolStatus is the view of the worker pool the gauges observe.
type PoolStatus interface {
	Size() int
	Busy() int
}

// Core holds the instruments for the admission/dispatch core.
type Core struct {
	jobsAdmitted  metric.Int64Counter
	jobsRejected  metric.Int64Counter
	jobsCompleted metric.Int64Counter
	jobsFailed    metric.Int64Counter
	inFlight      metric.Int64UpDownCounter
}

// NewCore creates the core instruments and registers busy/idle worker
// gauges observing pool.
func NewCore(pool PoolStatus) (*Core, error) {
	meter := otel.Meter("whisper-server/transcribe")

	c := &Core{}
	var err error

	if c.jobsAdmitted, err = meter.Int64Counter("jobs_admitted_total",
		metric.WithDescription("Jobs that took an admission gate slot")); err != nil {
		return nil, err
	}
	if c.jobsRejected, err = meter.Int64Counter("jobs_rejected_total",
		metric.WithDescription("Jobs rejected before execution, by error type")); err != nil {
		return nil, err
	}
	if c.jobsCompleted, err = meter.Int64Counter("jobs_completed_total",
		metric.WithDescription("Jobs that finished successfully")); err != nil {
		return nil, err
	}
	if c.jobsFailed, err = meter.Int64Counter("jobs_failed_total",
		metric.WithDescription("Jobs that failed during execution, by error type")); err != nil {
		return nil, err
	}
	if c.inFlight, err = meter.Int64UpDownCounter("jobs_in_flight",
		metric.WithDescription("Jobs currently holding an admission gate slot")); err != nil {
		return nil, err
	}

	busy, err := meter.Int64ObservableGauge("workers_busy",
		metric.WithDescription("Workers currently processing a job"))
	if err != nil {
		return nil, err
	}
	idle, err := meter.Int64ObservableGauge("workers_idle",
		metric.WithDescription("Workers waiting for a job"))
	if err != nil {
		return nil, err
	}
	_, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		b := pool.Busy()
		o.ObserveInt64(busy, int64(b))
		o.ObserveInt64(idle, int64(pool.Size()-b))
		return nil
	}, busy, idle)
	if err != nil {
		return nil, err
	}

	return c, nil
}

// JobAdmitted records a taken gate slot.
func (c *Core) JobAdmitted() {
	ctx := context.Background()
	c.jobsAdmitted.Add(ctx, 1)
	c.inFlight.Add(ctx, 1)
}

// SlotReleased records a returned gate slot.
func (c *Core) SlotReleased() {
	c.inFlight.Add(context.Background(), -1)
}

// JobRejected records a pre-execution rejection.
func (c *Core) JobRejected(errorType string) {
	c.jobsRejected.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("error_type", errorType)))
}

// JobCompleted records a successful job.
func (c *Core) JobCompleted() {
	c.jobsCompleted.Add(context.Background(), 1)
}

// JobFailed records an execution failure.
func (c *Core) JobFailed(errorType string) {
	c.jobsFailed.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("error_type", errorType)))
}
