package integration

import (
	"context"
	"sync"
	"testing"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

var wantEvents = map[ptrace.SpanKind][]string{
	ptrace.SpanKindClient:   {"cs", "cr"},
	ptrace.SpanKindServer:   {"sr", "ss"},
	ptrace.SpanKindProducer: {"ms", "ws"},
	ptrace.SpanKindConsumer: {"wr", "mr"},
	ptrace.SpanKindInternal: {},
}

func TestNormalizer_AllSpanKinds(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	tf := NewTestFramework(t, t.TempDir())
	require.NoError(t, tf.Setup(ctx, WithoutQuarantine()))

	require.NoError(t, tf.SendTraces(ctx, generateTestTraces(0, 20, len(spanKinds))))
	require.NoError(t, tf.Shutdown(ctx))

	spans := tf.CapturedSpans()
	require.Len(t, spans, 20*len(spanKinds))

	for _, span := range spans {
		assert.Equal(t, wantEvents[span.Kind()], eventNames(span), "kind %s", span.Kind())

		attrs := span.Attributes().AsRaw()
		assert.Equal(t, "frontend", attrs["haystack.service_name"])
		assert.Equal(t, "backend", attrs["remote.service_name"])
		assert.Contains(t, []any{"true", "false"}, attrs["error"])
		assert.NotContains(t, attrs, "success")
		assert.NotContains(t, attrs, "peer.service")
	}
}

func TestNormalizer_QuarantineLifecycle(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	tf := NewTestFramework(t, t.TempDir())

	// First run quarantines invalid spans and drops them from the batch.
	require.NoError(t, tf.Setup(ctx))
	require.NoError(t, tf.SendTraces(ctx, generateTestTraces(0, 5, 2)))
	require.NoError(t, tf.SendTraces(ctx, generateInvalidTraces(3)))
	require.NoError(t, tf.Shutdown(ctx))

	assert.Len(t, tf.CapturedSpans(), 10)
	records, err := tf.QuarantinedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 3)
	for _, rec := range records {
		assert.Equal(t, "haystack_normalizer", rec.Source)
		assert.Equal(t, "invalid span: traceId is required", rec.Reason)
	}

	// A second run appends to the same store; resending a span replaces its record.
	require.NoError(t, tf.Setup(ctx))
	require.NoError(t, tf.SendTraces(ctx, generateInvalidTraces(4)))
	require.NoError(t, tf.Shutdown(ctx))

	records, err = tf.QuarantinedRecords(ctx)
	require.NoError(t, err)
	assert.Len(t, records, 4)
}

func TestNormalizer_RejectWideTraceIDs(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	ctx := context.Background()
	tf := NewTestFramework(t, t.TempDir())
	require.NoError(t, tf.Setup(ctx, WithIDOverflow(converter.IDOverflowReject), WithDropInvalid(false)))

	td := generateTestTraces(0, 3, 1)
	spans := td.ResourceSpans().At(0).ScopeSpans().At(0).Spans()
	traceID := spans.At(0).TraceID()
	traceID[0] = 0xff
	spans.At(0).SetTraceID(traceID)

	require.NoError(t, tf.SendTraces(ctx, td))
	require.NoError(t, tf.Shutdown(ctx))

	captured := tf.CapturedSpans()
	require.Len(t, captured, 3, "invalid spans are kept when drop_invalid is false")
	_, converted := captured[0].Attributes().Get("haystack.service_name")
	assert.False(t, converted)
	_, converted = captured[1].Attributes().Get("haystack.service_name")
	assert.True(t, converted)

	records, err := tf.QuarantinedRecords(ctx)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Contains(t, records[0].Reason, "traceId has 32 hex characters")
}

func TestNormalizer_ConcurrentBatches(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	const (
		workers         = 8
		tracesPerWorker = 25
		spansPerTrace   = 5
	)

	ctx := context.Background()
	tf := NewTestFramework(t, t.TempDir())
	require.NoError(t, tf.Setup(ctx))

	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			errs <- tf.SendTraces(ctx, generateTestTraces(w*tracesPerWorker, tracesPerWorker, spansPerTrace))
		}(w)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	require.NoError(t, tf.Shutdown(ctx))

	assert.Equal(t, workers*tracesPerWorker*spansPerTrace, tf.SentSpans())
	assert.Len(t, tf.CapturedSpans(), tf.SentSpans())
}
