package haystacknormalizer

import (
	"testing"

	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
)

func TestToInputSpan(t *testing.T) {
	td := generateClientTraces()
	rs := td.ResourceSpans().At(0)
	span := rs.ScopeSpans().At(0).Spans().At(0)

	in := toInputSpan(rs.Resource(), span)
	assert.Equal(t, "0000000000000001", in.TraceID)
	assert.Equal(t, "0000000000000003", in.ID)
	assert.Equal(t, "0000000000000002", in.ParentID)
	assert.Equal(t, zipkinv2.KindClient, in.Kind)
	require.NotNil(t, in.Timestamp)
	require.NotNil(t, in.Duration)
	assert.Equal(t, startMicros, *in.Timestamp)
	assert.Equal(t, durMicros, *in.Duration)
	assert.Equal(t, "frontend", in.LocalServiceName())
	assert.Equal(t, "backend", in.RemoteServiceName())
	assert.Equal(t, zipkinv2.Tags{
		{Key: "http.path", Value: "/api"},
		{Key: "success", Value: "true"},
		{Key: "methoduri", Value: "http://foo.com/pants"},
	}, in.Tags)
	assert.Equal(t, []zipkinv2.Annotation{{Timestamp: 1472470996238000, Value: "ws"}}, in.Annotations)
}

func TestTraceIDHex(t *testing.T) {
	low := pcommon.TraceID([16]byte{8: 0xab, 15: 0x01})
	assert.Equal(t, "ab00000000000001", traceIDHex(low))

	wide := pcommon.TraceID([16]byte{0: 0x46, 15: 0x24})
	assert.Equal(t, "46000000000000000000000000000024", traceIDHex(wide))
}

func TestToInputSpanUnsetFields(t *testing.T) {
	span := ptrace.NewSpan()
	span.SetKind(ptrace.SpanKindInternal)
	span.SetStartTimestamp(pcommon.Timestamp(2000))
	span.SetEndTimestamp(pcommon.Timestamp(1000))
	span.Attributes().PutInt("retries", 3)

	in := toInputSpan(pcommon.NewResource(), span)
	assert.Empty(t, in.TraceID)
	assert.Empty(t, in.ID)
	assert.Empty(t, in.ParentID)
	assert.Equal(t, zipkinv2.KindUnset, in.Kind)
	require.NotNil(t, in.Timestamp)
	assert.Equal(t, int64(2), *in.Timestamp)
	assert.Nil(t, in.Duration, "end before start has no duration")
	assert.Nil(t, in.LocalEndpoint)
	assert.Equal(t, zipkinv2.Tags{{Key: "retries", Value: "3"}}, in.Tags)
}
