package haystacknormalizer

import (
	"context"
	"fmt"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"go.opentelemetry.io/collector/component"
	"go.opentelemetry.io/collector/consumer"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	"go.opentelemetry.io/collector/processor"
	"go.uber.org/zap"
)

const quarantineSource = "haystack_normalizer"

// normalizerProcessor rewrites every span of a batch into the Haystack model.
type normalizerProcessor struct {
	logger *zap.Logger
	config *Config

	nextConsumer consumer.Traces

	converter      *converter.Converter
	metricsManager *MetricsManager
	quarantine     *quarantine.Store
	marshaler      ptrace.Marshaler
}

var _ processor.Traces = (*normalizerProcessor)(nil)

func newNormalizerProcessor(
	_ context.Context,
	set component.TelemetrySettings,
	cfg *Config,
	nextConsumer consumer.Traces,
) (processor.Traces, error) {
	logger := set.Logger

	conv, err := converter.New(cfg.Config, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create converter: %w", err)
	}

	p := &normalizerProcessor{
		logger:         logger,
		config:         cfg,
		nextConsumer:   nextConsumer,
		converter:      conv,
		metricsManager: NewMetricsManager(set.MeterProvider.Meter("haystacknormalizer")),
		marshaler:      &ptrace.JSONMarshaler{},
	}

	logger.Info("Haystack normalizer processor created",
		zap.String("id_overflow", cfg.IDOverflow),
		zap.Bool("drop_invalid", cfg.DropInvalid),
		zap.Bool("quarantine", cfg.Quarantine != nil))

	return p, nil
}

// Start implements the Component interface
func (p *normalizerProcessor) Start(_ context.Context, _ component.Host) error {
	p.logger.Info("Starting Haystack normalizer processor")

	if err := p.metricsManager.RegisterMetrics(); err != nil {
		p.logger.Error("Failed to register metrics", zap.Error(err))
	}

	if p.config.Quarantine != nil {
		store, err := quarantine.Open(*p.config.Quarantine, p.logger.Named("quarantine"))
		if err != nil {
			return fmt.Errorf("failed to open quarantine: %w", err)
		}
		if err := store.StartPruning(); err != nil {
			store.Close()
			return err
		}
		p.quarantine = store
	}
	return nil
}

// Shutdown implements the Component interface
func (p *normalizerProcessor) Shutdown(_ context.Context) error {
	p.logger.Info("Shutting down Haystack normalizer processor",
		zap.Int64("spans_converted", p.metricsManager.SpansConverted()),
		zap.Int64("spans_failed", p.metricsManager.SpansFailed()))

	if p.quarantine != nil {
		return p.quarantine.Close()
	}
	return nil
}

// ConsumeTraces converts each span independently. A span that fails conversion
// never fails the batch.
func (p *normalizerProcessor) ConsumeTraces(ctx context.Context, td ptrace.Traces) error {
	rss := td.ResourceSpans()
	for i := 0; i < rss.Len(); i++ {
		rs := rss.At(i)
		resource := rs.Resource()

		ilss := rs.ScopeSpans()
		for j := 0; j < ilss.Len(); j++ {
			ils := ilss.At(j)
			scope := ils.Scope()
			ils.Spans().RemoveIf(func(span ptrace.Span) bool {
				return !p.normalizeSpan(ctx, resource, scope, span)
			})
		}

		ilss.RemoveIf(func(ils ptrace.ScopeSpans) bool {
			return ils.Spans().Len() == 0
		})
	}
	rss.RemoveIf(func(rs ptrace.ResourceSpans) bool {
		return rs.ScopeSpans().Len() == 0
	})

	if td.SpanCount() == 0 {
		return nil
	}
	return p.nextConsumer.ConsumeTraces(ctx, td)
}

// normalizeSpan converts one span in place and reports whether it stays in the batch.
func (p *normalizerProcessor) normalizeSpan(
	ctx context.Context,
	resource pcommon.Resource,
	scope pcommon.InstrumentationScope,
	span ptrace.Span,
) bool {
	res, err := p.converter.Process(toInputSpan(resource, span))
	if err != nil {
		p.metricsManager.spansFailed.Inc()
		p.logger.Warn("Failed to convert span",
			zap.String("name", span.Name()),
			zap.Error(err))
		p.quarantineSpan(ctx, resource, scope, span, err)
		return !p.config.DropInvalid
	}

	applyResult(span, res)

	p.metricsManager.spansConverted.Inc()
	p.metricsManager.logsSynthesized.Add(int64(res.Synthesized))
	if res.TimingSuppressed {
		p.metricsManager.timingSuppressed.Inc()
	}
	return true
}

func (p *normalizerProcessor) quarantineSpan(
	ctx context.Context,
	resource pcommon.Resource,
	scope pcommon.InstrumentationScope,
	span ptrace.Span,
	reason error,
) {
	if p.quarantine == nil {
		return
	}

	payload, err := p.marshaler.MarshalTraces(singleSpanTraces(resource, scope, span))
	if err != nil {
		p.logger.Error("Failed to encode span for quarantine", zap.Error(err))
		return
	}
	if _, err := p.quarantine.Put(ctx, quarantineSource, payload, reason.Error()); err != nil {
		p.logger.Error("Failed to quarantine span", zap.Error(err))
		return
	}
	p.metricsManager.spansQuarantined.Inc()
}

// Capabilities implements the processor.Traces interface
func (p *normalizerProcessor) Capabilities() consumer.Capabilities {
	return consumer.Capabilities{MutatesData: true}
}
