// Package reporter plugs the converter into zipkin-go tracers: spans finished by a
// tracer are converted in process and handed to a Sink.
package reporter

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"github.com/openzipkin/zipkin-go/model"
	zipkinreporter "github.com/openzipkin/zipkin-go/reporter"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

const quarantineSource = "reporter"

// Sink receives converted spans.
type Sink interface {
	Write(span haystack.Span) error
}

// Option configures a Reporter.
type Option func(*Reporter)

// WithConverter sets the converter, the default converter is used otherwise.
func WithConverter(conv *converter.Converter) Option {
	return func(r *Reporter) {
		r.conv = conv
	}
}

// WithQuarantine stores spans that fail conversion.
func WithQuarantine(store *quarantine.Store) Option {
	return func(r *Reporter) {
		r.quarantine = store
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(r *Reporter) {
		r.logger = logger
	}
}

// Reporter is a zipkin-go reporter that converts spans to the Haystack model.
type Reporter struct {
	sink       Sink
	conv       *converter.Converter
	quarantine *quarantine.Store
	logger     *zap.Logger

	closed *atomic.Bool
	sent   *atomic.Int64
	failed *atomic.Int64
}

var _ zipkinreporter.Reporter = (*Reporter)(nil)

// New creates a reporter writing to sink.
func New(sink Sink, opts ...Option) (*Reporter, error) {
	if sink == nil {
		return nil, errors.New("sink must not be nil")
	}
	r := &Reporter{
		sink:   sink,
		closed: atomic.NewBool(false),
		sent:   atomic.NewInt64(0),
		failed: atomic.NewInt64(0),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.conv == nil {
		conv, err := converter.New(converter.DefaultConfig(), r.logger)
		if err != nil {
			return nil, err
		}
		r.conv = conv
	}
	return r, nil
}

// Send converts a finished span and writes it to the sink. Spans sent after Close
// are discarded.
func (r *Reporter) Send(s model.SpanModel) {
	if r.closed.Load() {
		return
	}

	in := zipkinv2.FromModel(s)
	out, err := r.conv.Convert(in)
	if err != nil {
		r.failed.Inc()
		r.logger.Warn("Failed to convert span", zap.String("name", s.Name), zap.Error(err))
		r.quarantineSpan(in, err)
		return
	}

	if err := r.sink.Write(out); err != nil {
		r.failed.Inc()
		r.logger.Error("Failed to write span",
			zap.String("trace_id", out.TraceID),
			zap.String("span_id", out.SpanID),
			zap.Error(err))
		return
	}
	r.sent.Inc()
}

func (r *Reporter) quarantineSpan(in zipkinv2.InputSpan, reason error) {
	if r.quarantine == nil {
		return
	}
	payload, err := zipkinv2.Marshal(in)
	if err != nil {
		r.logger.Error("Failed to encode span for quarantine", zap.Error(err))
		return
	}
	if _, err := r.quarantine.Put(context.Background(), quarantineSource, payload, reason.Error()); err != nil {
		r.logger.Error("Failed to quarantine span", zap.Error(err))
	}
}

// Sent returns the number of spans written to the sink.
func (r *Reporter) Sent() int64 {
	return r.sent.Load()
}

// Failed returns the number of spans that could not be converted or written.
func (r *Reporter) Failed() int64 {
	return r.failed.Load()
}

// Close stops accepting spans and closes the sink when it is an io.Closer. Only the
// first call has an effect.
func (r *Reporter) Close() error {
	if !r.closed.CompareAndSwap(false, true) {
		return nil
	}
	r.logger.Info("Reporter closed",
		zap.Int64("sent", r.sent.Load()),
		zap.Int64("failed", r.failed.Load()))

	if c, ok := r.sink.(io.Closer); ok {
		if err := c.Close(); err != nil {
			return fmt.Errorf("failed to close sink: %w", err)
		}
	}
	return nil
}

// WriterSink writes one JSON object per line. It is safe for concurrent use.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriterSink creates a sink writing to w.
func NewWriterSink(w io.Writer) *WriterSink {
	return &WriterSink{w: w}
}

// Write implements Sink.
func (s *WriterSink) Write(span haystack.Span) error {
	data, err := haystack.Marshal(span)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err = s.w.Write(data)
	return err
}
