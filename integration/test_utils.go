package integration

import (
	"encoding/binary"

	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

const baseTimestamp = int64(1472470996199000)

var spanKinds = []ptrace.SpanKind{
	ptrace.SpanKindClient,
	ptrace.SpanKindServer,
	ptrace.SpanKindProducer,
	ptrace.SpanKindConsumer,
	ptrace.SpanKindInternal,
}

func generateTraceID(idx int) pcommon.TraceID {
	var id [16]byte
	binary.BigEndian.PutUint64(id[8:], uint64(idx+1))
	return pcommon.TraceID(id)
}

func generateSpanID(traceIdx, spanIdx int) pcommon.SpanID {
	var id [8]byte
	binary.BigEndian.PutUint64(id[:], uint64(traceIdx*1000+spanIdx+1))
	return pcommon.SpanID(id)
}

// generateTestTraces creates count traces whose spans cycle through every span kind.
// Each span lasts one millisecond per position in its trace.
func generateTestTraces(startIdx, count, spansPerTrace int) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	rs.Resource().Attributes().PutStr("service.name", "frontend")
	spans := rs.ScopeSpans().AppendEmpty().Spans()

	for i := startIdx; i < startIdx+count; i++ {
		traceID := generateTraceID(i)
		for j := 0; j < spansPerTrace; j++ {
			span := spans.AppendEmpty()
			span.SetTraceID(traceID)
			span.SetSpanID(generateSpanID(i, j))
			if j > 0 {
				span.SetParentSpanID(generateSpanID(i, j-1))
			}
			span.SetName("operation")
			span.SetKind(spanKinds[j%len(spanKinds)])

			start := baseTimestamp + int64(i)*1000
			span.SetStartTimestamp(pcommon.Timestamp(start * 1000))
			span.SetEndTimestamp(pcommon.Timestamp((start + int64(j+1)*1000) * 1000))

			span.Attributes().PutBool("success", j%2 == 0)
			span.Attributes().PutStr("peer.service", "backend")
		}
	}
	return td
}

// generateInvalidTraces creates spans without ids.
func generateInvalidTraces(count int) ptrace.Traces {
	td := ptrace.NewTraces()
	spans := td.ResourceSpans().AppendEmpty().ScopeSpans().AppendEmpty().Spans()
	for i := 0; i < count; i++ {
		span := spans.AppendEmpty()
		span.SetName("orphan")
		span.Attributes().PutInt("index", int64(i))
	}
	return td
}

func eventNames(span ptrace.Span) []string {
	names := make([]string, 0, span.Events().Len())
	for i := 0; i < span.Events().Len(); i++ {
		names = append(names, span.Events().At(i).Name())
	}
	return names
}
