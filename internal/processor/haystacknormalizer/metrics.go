package haystacknormalizer

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

// MetricsManager exposes the processor's counters as observable instruments.
type MetricsManager struct {
	spansConverted   *atomic.Int64
	spansFailed      *atomic.Int64
	spansQuarantined *atomic.Int64
	logsSynthesized  *atomic.Int64
	timingSuppressed *atomic.Int64

	meter metric.Meter
}

// NewMetricsManager creates a new metrics manager
func NewMetricsManager(meter metric.Meter) *MetricsManager {
	return &MetricsManager{
		spansConverted:   atomic.NewInt64(0),
		spansFailed:      atomic.NewInt64(0),
		spansQuarantined: atomic.NewInt64(0),
		logsSynthesized:  atomic.NewInt64(0),
		timingSuppressed: atomic.NewInt64(0),
		meter:            meter,
	}
}

type counterDef struct {
	name        string
	description string
	unit        string
	value       *atomic.Int64
}

// RegisterMetrics registers all counters with the meter
func (m *MetricsManager) RegisterMetrics() error {
	defs := []counterDef{
		{"haystack_normalizer.spans_converted", "Number of spans converted to the Haystack model", "{spans}", m.spansConverted},
		{"haystack_normalizer.spans_failed", "Number of spans that could not be converted", "{spans}", m.spansFailed},
		{"haystack_normalizer.spans_quarantined", "Number of failed spans written to the quarantine", "{spans}", m.spansQuarantined},
		{"haystack_normalizer.logs_synthesized", "Number of lifecycle events added to converted spans", "{events}", m.logsSynthesized},
		{"haystack_normalizer.timing_suppressed", "Number of shared server spans whose timing was withheld", "{spans}", m.timingSuppressed},
	}

	for _, def := range defs {
		value := def.value
		_, err := m.meter.Int64ObservableCounter(
			def.name,
			metric.WithDescription(def.description),
			metric.WithUnit(def.unit),
			metric.WithInt64Callback(func(_ context.Context, o metric.Int64Observer) error {
				o.Observe(value.Load())
				return nil
			}),
		)
		if err != nil {
			return fmt.Errorf("failed to register %s: %w", def.name, err)
		}
	}
	return nil
}

// SpansConverted returns the number of converted spans
func (m *MetricsManager) SpansConverted() int64 { return m.spansConverted.Load() }

// SpansFailed returns the number of spans that failed conversion
func (m *MetricsManager) SpansFailed() int64 { return m.spansFailed.Load() }

// SpansQuarantined returns the number of quarantined spans
func (m *MetricsManager) SpansQuarantined() int64 { return m.spansQuarantined.Load() }

// LogsSynthesized returns the number of synthesized lifecycle events
func (m *MetricsManager) LogsSynthesized() int64 { return m.logsSynthesized.Load() }

// TimingSuppressed returns the number of spans whose timing was withheld
func (m *MetricsManager) TimingSuppressed() int64 { return m.timingSuppressed.Load() }
