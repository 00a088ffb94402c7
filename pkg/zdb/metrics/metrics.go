// Package metrics registers and records zdb metrics on an OpenTelemetry meter exported to
// Prometheus.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

var (
	errMetricExists   = errors.New("metric already registered")
	errMetricNotFound = errors.New("metric not registered")
	errOddLabels      = errors.New("labels must be key-value pairs")
)

// Manager registers metrics once and records them by name afterwards.
type Manager interface {
	NewCounter(name, desc string)
	NewHistogram(name, desc string, buckets ...float64)

	IncrementCounter(ctx context.Context, name string, labels ...string)
	RecordHistogram(ctx context.Context, name string, value float64, labels ...string)
}

// Logger is the subset of logging.Logger the manager reports registration problems to.
type Logger interface {
	Errorf(format string, args ...any)
}

type metricsManager struct {
	meter  metric.Meter
	logger Logger

	mu         sync.RWMutex
	counters   map[string]metric.Int64Counter
	histograms map[string]metric.Float64Histogram
}

// NewManager returns a Manager whose metrics are recorded on meter.
func NewManager(meter metric.Meter, logger Logger) Manager {
	return &metricsManager{
		meter:      meter,
		logger:     logger,
		counters:   make(map[string]metric.Int64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

// NewPrometheusManager builds a meter provider exporting to registry and returns a Manager on it
// together with the handler serving registry in the Prometheus text format.
func NewPrometheusManager(name string, registry *prometheus.Registry, logger Logger) (Manager, http.Handler, error) {
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry), otelprom.WithoutTargetInfo())
	if err != nil {
		return nil, nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))

	return NewManager(provider.Meter(name), logger), GetHandler(registry), nil
}

// GetHandler serves the metrics gathered by registry.
func GetHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}

func (m *metricsManager) NewCounter(name, desc string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.counters[name]; ok {
		m.report(name, errMetricExists)

		return
	}

	counter, err := m.meter.Int64Counter(name, metric.WithDescription(desc))
	if err != nil {
		m.report(name, err)

		return
	}

	m.counters[name] = counter
}

func (m *metricsManager) NewHistogram(name, desc string, buckets ...float64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.histograms[name]; ok {
		m.report(name, errMetricExists)

		return
	}

	opts := []metric.Float64HistogramOption{metric.WithDescription(desc)}
	if len(buckets) > 0 {
		opts = append(opts, metric.WithExplicitBucketBoundaries(buckets...))
	}

	histogram, err := m.meter.Float64Histogram(name, opts...)
	if err != nil {
		m.report(name, err)

		return
	}

	m.histograms[name] = histogram
}

func (m *metricsManager) IncrementCounter(ctx context.Context, name string, labels ...string) {
	m.mu.RLock()
	counter, ok := m.counters[name]
	m.mu.RUnlock()

	if !ok {
		m.report(name, errMetricNotFound)

		return
	}

	attrs, err := toAttributes(labels)
	if err != nil {
		m.report(name, err)

		return
	}

	counter.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func (m *metricsManager) RecordHistogram(ctx context.Context, name string, value float64, labels ...string) {
	m.mu.RLock()
	histogram, ok := m.histograms[name]
	m.mu.RUnlock()

	if !ok {
		m.report(name, errMetricNotFound)

		return
	}

	attrs, err := toAttributes(labels)
	if err != nil {
		m.report(name, err)

		return
	}

	histogram.Record(ctx, value, metric.WithAttributes(attrs...))
}

func (m *metricsManager) report(name string, err error) {
	if m.logger != nil {
		m.logger.Errorf("metric %q: %v", name, err)
	}
}

func toAttributes(labels []string) ([]attribute.KeyValue, error) {
	if len(labels)%2 != 0 {
		return nil, errOddLabels
	}

	attrs := make([]attribute.KeyValue, 0, len(labels)/2)
	for i := 0; i < len(labels); i += 2 {
		attrs = append(attrs, attribute.String(labels[i], labels[i+1]))
	}

	return attrs, nil
}
