package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/metric"

	sdk "go.opentelemetry.io/otel/sdk/metric"
)

type Config struct {
	Enabled bool `conf:"enabled" yaml:"enabled" json:"enabled"`

	// Exporter is one of none, stdout, otlp-http, otlp-grpc.
	Exporter string        `conf:"exporter" yaml:"exporter" json:"exporter"`
	Endpoint string        `conf:"endpoint" yaml:"endpoint" json:"endpoint"`
	Interval time.Duration `conf:"interval" yaml:"interval" json:"interval"`
}

// NewProvider builds the meter provider, or nil when metrics are
// disabled. The nil provider is handled by the lifecycle hooks in cmd.
func NewProvider(cfg Config) (*sdk.MeterProvider, error) {
	if !cfg.Enabled {
		return nil, nil
	}

	interval := cfg.Interval
	if interval <= 0 {
		interval = time.Minute
	}

	var (
		exporter sdk.Exporter
		err      error
	)

	switch cfg.Exporter {
	case "stdout":
		exporter, err = stdoutmetric.New()
	case "otlp-http":
		exporter, err = otlpmetrichttp.New(context.Background(),
			otlpmetrichttp.WithEndpoint(cfg.Endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	case "otlp-grpc":
		exporter, err = otlpmetricgrpc.New(context.Background(),
			otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "", "none":
		return nil, nil
	default:
		return nil, fmt.Errorf("unsupported metrics exporter: %s", cfg.Exporter)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to build metrics exporter: %w", err)
	}

	provider := sdk.NewMeterProvider(
		sdk.WithReader(sdk.NewPeriodicReader(exporter, sdk.WithInterval(interval))),
	)

	return provider, nil
}

// Instruments. Nil until SetupMetrics runs; the record helpers tolerate
// that so components never need to know whether metrics are enabled.
var (
	requestCounter  metric.Int64Counter
	requestDuration metric.Float64Histogram

	sealedCounter   metric.Int64Counter
	openedCounter   metric.Int64Counter
	decryptFailures metric.Int64Counter

	actionsDrained metric.Int64Counter
	actionsFailed  metric.Int64Counter
	drainDuration  metric.Float64Histogram

	maintenanceRuns metric.Int64Counter
	jobDuration     metric.Float64Histogram

	meter metric.Meter
)

// SetupMetrics registers the provider globally and creates the
// instruments under the given meter name.
func SetupMetrics(provider *sdk.MeterProvider, name string) error {
	otel.SetMeterProvider(provider)

	meter = otel.Meter(name)

	var err error

	if requestCounter, err = meter.Int64Counter("memvault.requests"); err != nil {
		return err
	}

	if requestDuration, err = meter.Float64Histogram("memvault.request.duration",
		metric.WithUnit("ms")); err != nil {
		return err
	}

	if sealedCounter, err = meter.Int64Counter("memvault.payload.sealed"); err != nil {
		return err
	}

	if openedCounter, err = meter.Int64Counter("memvault.payload.opened"); err != nil {
		return err
	}

	if decryptFailures, err = meter.Int64Counter("memvault.payload.decrypt_failures"); err != nil {
		return err
	}

	if actionsDrained, err = meter.Int64Counter("memvault.actions.drained"); err != nil {
		return err
	}

	if actionsFailed, err = meter.Int64Counter("memvault.actions.failed"); err != nil {
		return err
	}

	if drainDuration, err = meter.Float64Histogram("memvault.drain.duration",
		metric.WithUnit("ms")); err != nil {
		return err
	}

	if maintenanceRuns, err = meter.Int64Counter("memvault.maintenance.runs"); err != nil {
		return err
	}

	if jobDuration, err = meter.Float64Histogram("memvault.maintenance.job.duration",
		metric.WithUnit("ms")); err != nil {
		return err
	}

	return nil
}

// RegisterQueueDepth exposes the pending-action backlog as a gauge.
// observe runs on every exporter tick, so it must stay cheap.
func RegisterQueueDepth(observe func(ctx context.Context) (int64, error)) error {
	if meter == nil {
		return nil
	}

	_, err := meter.Int64ObservableGauge("memvault.queue.depth",
		metric.WithInt64Callback(func(ctx context.Context, o metric.Int64Observer) error {
			depth, err := observe(ctx)
			if err != nil {
				return err
			}

			o.Observe(depth)

			return nil
		}),
	)

	return err
}

// RecordRequest records one HTTP request.
func RecordRequest(ctx context.Context, route string, status int, elapsed time.Duration) {
	if requestCounter == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("route", route),
		attribute.Int("status", status),
	)

	requestCounter.Add(ctx, 1, attrs)
	requestDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}

// RecordSeal records one payload encryption.
func RecordSeal(ctx context.Context) {
	if sealedCounter == nil {
		return
	}

	sealedCounter.Add(ctx, 1)
}

// RecordOpen records one payload decryption attempt.
func RecordOpen(ctx context.Context, failed bool) {
	if openedCounter == nil {
		return
	}

	openedCounter.Add(ctx, 1)

	if failed {
		decryptFailures.Add(ctx, 1)
	}
}

// RecordDrain records the outcome of one opportunistic drain pass.
func RecordDrain(ctx context.Context, drained, failed int, elapsed time.Duration) {
	if actionsDrained == nil {
		return
	}

	actionsDrained.Add(ctx, int64(drained))
	actionsFailed.Add(ctx, int64(failed))
	drainDuration.Record(ctx, float64(elapsed.Milliseconds()))
}

// RecordMaintenanceJob records one structural job run.
func RecordMaintenanceJob(ctx context.Context, job string, elapsed time.Duration, err error) {
	if maintenanceRuns == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String("job", job),
		attribute.Bool("error", err != nil),
	)

	maintenanceRuns.Add(ctx, 1, attrs)
	jobDuration.Record(ctx, float64(elapsed.Milliseconds()), attrs)
}
