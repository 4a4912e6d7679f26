// Package integration provides a framework for integration testing of the
// Haystack normalizer processor.
package integration

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/deepaksharma/haystack-span-converter/internal/processor/haystacknormalizer"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/component/componenttest"
	"go.opentelemetry.io/collector/consumer/consumertest"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/processor"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
)

// ProcessorOption defines functional options for configuring the processor
type ProcessorOption func(*haystacknormalizer.Config)

// WithIDOverflow sets the id overflow policy
func WithIDOverflow(policy string) ProcessorOption {
	return func(cfg *haystacknormalizer.Config) {
		cfg.IDOverflow = policy
	}
}

// WithDropInvalid sets whether spans that fail conversion are removed
func WithDropInvalid(drop bool) ProcessorOption {
	return func(cfg *haystacknormalizer.Config) {
		cfg.DropInvalid = drop
	}
}

// WithoutQuarantine disables the quarantine store
func WithoutQuarantine() ProcessorOption {
	return func(cfg *haystacknormalizer.Config) {
		cfg.Quarantine = nil
	}
}

// TestFramework runs a normalizer processor against a capturing sink
type TestFramework struct {
	logger  *zap.Logger
	dataDir string

	config    *haystacknormalizer.Config
	sink      *consumertest.TracesSink
	processor processor.Traces

	mu        sync.Mutex
	sentSpans int
}

// NewTestFramework creates a new test framework storing its data under dataDir
func NewTestFramework(t zaptest.TestingT, dataDir string) *TestFramework {
	return &TestFramework{
		logger:  zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel)),
		dataDir: dataDir,
		sink:    new(consumertest.TracesSink),
	}
}

// Setup creates and starts a new processor with the given options
func (tf *TestFramework) Setup(ctx context.Context, options ...ProcessorOption) error {
	cfg := haystacknormalizer.NewFactory().CreateDefaultConfig().(*haystacknormalizer.Config)
	cfg.Quarantine = &quarantine.Config{Path: tf.QuarantinePath()}
	for _, opt := range options {
		opt(cfg)
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid processor config: %w", err)
	}
	tf.config = cfg

	telemetrySettings := componenttest.NewNopTelemetrySettings()
	telemetrySettings.Logger = tf.logger

	settings := processor.Settings{
		ID:                component.NewID(component.MustNewType("haystack_normalizer")),
		TelemetrySettings: telemetrySettings,
	}

	proc, err := haystacknormalizer.NewFactory().CreateTraces(ctx, settings, cfg, tf.sink)
	if err != nil {
		return fmt.Errorf("failed to create processor: %w", err)
	}
	if err := proc.Start(ctx, componenttest.NewNopHost()); err != nil {
		return fmt.Errorf("failed to start processor: %w", err)
	}
	tf.processor = proc

	tf.logger.Info("Processor started", zap.Bool("quarantine", cfg.Quarantine != nil))
	return nil
}

// SendTraces sends the provided traces to the processor
func (tf *TestFramework) SendTraces(ctx context.Context, td ptrace.Traces) error {
	if tf.processor == nil {
		return fmt.Errorf("processor not started, call Setup first")
	}
	tf.mu.Lock()
	tf.sentSpans += td.SpanCount()
	tf.mu.Unlock()
	return tf.processor.ConsumeTraces(ctx, td)
}

// Shutdown stops the processor
func (tf *TestFramework) Shutdown(ctx context.Context) error {
	if tf.processor == nil {
		return nil
	}
	if err := tf.processor.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown processor: %w", err)
	}
	tf.processor = nil

	tf.logger.Info("Processor shutdown",
		zap.Int("sent_spans", tf.SentSpans()),
		zap.Int("received_spans", tf.sink.SpanCount()))
	return nil
}

// SentSpans returns the number of spans sent to the processor
func (tf *TestFramework) SentSpans() int {
	tf.mu.Lock()
	defer tf.mu.Unlock()
	return tf.sentSpans
}

// CapturedSpans returns every span the processor forwarded
func (tf *TestFramework) CapturedSpans() []ptrace.Span {
	var spans []ptrace.Span
	for _, td := range tf.sink.AllTraces() {
		rss := td.ResourceSpans()
		for i := 0; i < rss.Len(); i++ {
			ilss := rss.At(i).ScopeSpans()
			for j := 0; j < ilss.Len(); j++ {
				ss := ilss.At(j).Spans()
				for k := 0; k < ss.Len(); k++ {
					spans = append(spans, ss.At(k))
				}
			}
		}
	}
	return spans
}

// QuarantinePath returns the quarantine file used by Setup
func (tf *TestFramework) QuarantinePath() string {
	return filepath.Join(tf.dataDir, "quarantine.db")
}

// QuarantinedRecords opens the quarantine file and returns its records. The
// processor must be shut down first.
func (tf *TestFramework) QuarantinedRecords(ctx context.Context) ([]quarantine.Record, error) {
	store, err := quarantine.Open(quarantine.Config{Path: tf.QuarantinePath()}, tf.logger)
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.List(ctx)
}
