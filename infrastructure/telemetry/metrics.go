// Package telemetry provides OpenTelemetry metrics for the CLI tool registry.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Update outcomes recorded on the updates counter.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

// MetricsProvider records registry metrics.
type MetricsProvider struct {
	meter metric.Meter

	tools          metric.Int64UpDownCounter
	updates        metric.Int64Counter
	selections     metric.Int64Counter
	notifications  metric.Int64Counter
	updateDuration metric.Float64Histogram

	initErr error
}

// MetricsConfig configures the metrics provider.
type MetricsConfig struct {
	// MeterName is the name of the meter.
	MeterName string
	// MeterVersion is the version of the meter.
	MeterVersion string
	// Provider overrides the global meter provider.
	Provider metric.MeterProvider
}

// DefaultMetricsConfig returns a default metrics configuration.
func DefaultMetricsConfig() MetricsConfig {
	return MetricsConfig{
		MeterName:    "github.com/felixgeelhaar/clitool-registry",
		MeterVersion: "0.1.0",
	}
}

// NewMetricsProvider creates a new metrics provider.
func NewMetricsProvider(config MetricsConfig) *MetricsProvider {
	if config.MeterName == "" {
		defaults := DefaultMetricsConfig()
		config.MeterName = defaults.MeterName
		config.MeterVersion = defaults.MeterVersion
	}

	provider := config.Provider
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	mp := &MetricsProvider{
		meter: provider.Meter(
			config.MeterName,
			metric.WithInstrumentationVersion(config.MeterVersion),
		),
	}
	mp.initErr = mp.initInstruments()
	return mp
}

// initInstruments initializes all metric instruments.
func (mp *MetricsProvider) initInstruments() error {
	var err error

	mp.tools, err = mp.meter.Int64UpDownCounter(
		"clitool.registry.tools",
		metric.WithDescription("Number of registered CLI tools"),
		metric.WithUnit("{tool}"),
	)
	if err != nil {
		return err
	}

	mp.updates, err = mp.meter.Int64Counter(
		"clitool.updates",
		metric.WithDescription("Number of update requests"),
		metric.WithUnit("{update}"),
	)
	if err != nil {
		return err
	}

	mp.selections, err = mp.meter.Int64Counter(
		"clitool.version.selections",
		metric.WithDescription("Number of version selection requests"),
		metric.WithUnit("{selection}"),
	)
	if err != nil {
		return err
	}

	mp.notifications, err = mp.meter.Int64Counter(
		"clitool.notifications",
		metric.WithDescription("Number of registry notifications emitted"),
		metric.WithUnit("{notification}"),
	)
	if err != nil {
		return err
	}

	mp.updateDuration, err = mp.meter.Float64Histogram(
		"clitool.update.duration",
		metric.WithDescription("Duration of update strategy runs"),
		metric.WithUnit("ms"),
	)
	return err
}

// Error returns any initialization error.
func (mp *MetricsProvider) Error() error {
	return mp.initErr
}

// ToolAdded increments the registered tool gauge.
func (mp *MetricsProvider) ToolAdded(ctx context.Context) {
	if mp.tools != nil {
		mp.tools.Add(ctx, 1)
	}
}

// ToolRemoved decrements the registered tool gauge.
func (mp *MetricsProvider) ToolRemoved(ctx context.Context) {
	if mp.tools != nil {
		mp.tools.Add(ctx, -1)
	}
}

// RecordUpdate records a finished update request.
func (mp *MetricsProvider) RecordUpdate(ctx context.Context, toolID, updater, outcome string, duration time.Duration) {
	if mp.updates == nil {
		return
	}
	attrs := metric.WithAttributes(
		attribute.String("tool.id", toolID),
		attribute.String("updater.kind", updater),
		attribute.String("outcome", outcome),
	)
	mp.updates.Add(ctx, 1, attrs)
	if outcome != OutcomeSkipped {
		mp.updateDuration.Record(ctx, float64(duration.Milliseconds()), attrs)
	}
}

// RecordSelection records a version selection request.
func (mp *MetricsProvider) RecordSelection(ctx context.Context, toolID string, success bool) {
	if mp.selections == nil {
		return
	}
	mp.selections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("tool.id", toolID),
		attribute.Bool("success", success),
	))
}

// RecordNotification records an emitted notification.
func (mp *MetricsProvider) RecordNotification(ctx context.Context, eventType string) {
	if mp.notifications == nil {
		return
	}
	mp.notifications.Add(ctx, 1, metric.WithAttributes(attribute.String("event", eventType)))
}
