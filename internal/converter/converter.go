// Package converter turns Zipkin v2 spans into Haystack spans.
//
// Conversion runs in a fixed order: identifiers are formatted, the span's RPC
// variant is resolved, lifecycle events are synthesized and merged with the
// annotations, tags are rewritten, and the record is assembled. A Converter holds no
// mutable state, so one instance may convert any number of spans concurrently.
package converter

import (
	"fmt"

	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"go.uber.org/zap"
)

// Converter converts spans according to its configuration.
type Converter struct {
	cfg    Config
	logger *zap.Logger
}

// Result is a converted span along with how it was derived.
type Result struct {
	Span haystack.Span

	// Variant is the resolved RPC role of the input span
	Variant Variant

	// Synthesized is the number of lifecycle events added to the logs
	Synthesized int

	// TimingSuppressed is set when a shared server span had its start time and
	// duration withheld
	TimingSuppressed bool
}

// New creates a converter. A nil logger discards output.
func New(cfg Config, logger *zap.Logger) (*Converter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid converter config: %w", err)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Converter{cfg: cfg, logger: logger}, nil
}

var defaultConverter = &Converter{cfg: DefaultConfig(), logger: zap.NewNop()}

// Convert converts a span with the default configuration.
func Convert(in zipkinv2.InputSpan) (haystack.Span, error) {
	return defaultConverter.Convert(in)
}

// Convert converts one span. It fails only with a *ValidationError.
func (c *Converter) Convert(in zipkinv2.InputSpan) (haystack.Span, error) {
	res, err := c.Process(in)
	if err != nil {
		return haystack.Span{}, err
	}
	return res.Span, nil
}

// Process converts one span and reports how the result was derived.
func (c *Converter) Process(in zipkinv2.InputSpan) (Result, error) {
	ids, err := c.formatIDs(in)
	if err != nil {
		return Result{}, err
	}

	variant := ResolveVariant(in)
	logs, synthesized := synthesizeLogs(variant, in)
	tags := c.mapTags(in, ids)

	out := haystack.Span{
		TraceID:       ids.traceID,
		SpanID:        ids.spanID,
		ParentSpanID:  ids.parentID,
		ServiceName:   orNotFound(in.LocalServiceName()),
		OperationName: orNotFound(in.Name),
		Logs:          logs,
		Tags:          tags,
	}

	// The caller owns the timing of a shared server span.
	suppressed := variant == Server && in.IsShared()
	if !suppressed {
		if in.Timestamp != nil {
			out.StartTime = zipkinv2.Int64(*in.Timestamp)
		}
		if in.Duration != nil {
			out.Duration = zipkinv2.Int64(*in.Duration)
		}
	}

	c.logger.Debug("Converted span",
		zap.String("trace_id", out.TraceID),
		zap.String("span_id", out.SpanID),
		zap.Stringer("variant", variant),
		zap.Int("logs", len(out.Logs)),
		zap.Int("synthesized", synthesized))

	return Result{
		Span:             out,
		Variant:          variant,
		Synthesized:      synthesized,
		TimingSuppressed: suppressed && (in.Timestamp != nil || in.Duration != nil),
	}, nil
}

func orNotFound(name string) string {
	if name == "" {
		return haystack.NotFound
	}
	return name
}
