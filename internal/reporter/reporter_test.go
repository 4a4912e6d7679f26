package reporter

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/quarantine"
	"github.com/openzipkin/zipkin-go"
	"github.com/openzipkin/zipkin-go/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type memorySink struct {
	mu     sync.Mutex
	spans  []haystack.Span
	err    error
	closed int
}

func (s *memorySink) Write(span haystack.Span) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.spans = append(s.spans, span)
	return nil
}

func (s *memorySink) Close() error {
	s.closed++
	return nil
}

func clientSpan() model.SpanModel {
	parent := model.ID(2)
	return model.SpanModel{
		SpanContext: model.SpanContext{
			TraceID:  model.TraceID{Low: 1},
			ID:       model.ID(3),
			ParentID: &parent,
		},
		Name:           "get",
		Kind:           model.Client,
		Timestamp:      time.UnixMicro(1472470996199000),
		Duration:       207 * time.Millisecond,
		LocalEndpoint:  &model.Endpoint{ServiceName: "frontend"},
		RemoteEndpoint: &model.Endpoint{ServiceName: "backend"},
		Tags:           map[string]string{"success": "false"},
	}
}

func TestSendConvertsSpan(t *testing.T) {
	sink := &memorySink{}
	r, err := New(sink, WithLogger(zaptest.NewLogger(t)))
	require.NoError(t, err)

	r.Send(clientSpan())

	require.Len(t, sink.spans, 1)
	got := sink.spans[0]
	assert.Equal(t, "0000000000000001", got.TraceID)
	assert.Equal(t, "0000000000000002", got.ParentSpanID)
	assert.Equal(t, "frontend", got.ServiceName)
	assert.Equal(t, []string{"cs", "cr"}, got.Events())
	assert.Equal(t, []haystack.Tag{
		{Key: "error", Value: "true"},
		{Key: "remote.service_name", Value: "backend"},
	}, got.Tags)
	assert.Equal(t, int64(1), r.Sent())
}

func TestSendQuarantinesInvalidSpans(t *testing.T) {
	store, err := quarantine.Open(quarantine.Config{Path: filepath.Join(t.TempDir(), "q.db")}, nil)
	require.NoError(t, err)
	defer store.Close()

	sink := &memorySink{}
	r, err := New(sink, WithQuarantine(store))
	require.NoError(t, err)

	span := clientSpan()
	span.TraceID = model.TraceID{}
	r.Send(span)

	assert.Empty(t, sink.spans)
	assert.Equal(t, int64(1), r.Failed())

	records, err := store.List(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "reporter", records[0].Source)
	assert.Contains(t, string(records[0].Payload), `"name":"get"`)
}

func TestSendRejectsWideTraceIDs(t *testing.T) {
	conv, err := converter.New(converter.Config{IDOverflow: converter.IDOverflowReject}, nil)
	require.NoError(t, err)

	sink := &memorySink{}
	r, err := New(sink, WithConverter(conv))
	require.NoError(t, err)

	span := clientSpan()
	span.TraceID = model.TraceID{High: 7, Low: 1}
	r.Send(span)

	assert.Empty(t, sink.spans)
	assert.Equal(t, int64(1), r.Failed())
}

func TestSendSinkError(t *testing.T) {
	sink := &memorySink{err: errors.New("disk full")}
	r, err := New(sink)
	require.NoError(t, err)

	r.Send(clientSpan())
	assert.Equal(t, int64(0), r.Sent())
	assert.Equal(t, int64(1), r.Failed())
}

func TestCloseIsIdempotent(t *testing.T) {
	sink := &memorySink{}
	r, err := New(sink)
	require.NoError(t, err)

	require.NoError(t, r.Close())
	require.NoError(t, r.Close())
	assert.Equal(t, 1, sink.closed)

	r.Send(clientSpan())
	assert.Empty(t, sink.spans)
}

func TestNewRequiresSink(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)
}

func TestTracerIntegration(t *testing.T) {
	var buf bytes.Buffer
	r, err := New(NewWriterSink(&buf))
	require.NoError(t, err)

	local, err := zipkin.NewEndpoint("frontend", "127.0.0.1:8080")
	require.NoError(t, err)
	tracer, err := zipkin.NewTracer(r, zipkin.WithLocalEndpoint(local))
	require.NoError(t, err)

	span := tracer.StartSpan("get", zipkin.Kind(model.Server))
	span.Tag("methoduri", "/api")
	span.FinishedWithDuration(5 * time.Millisecond)
	require.NoError(t, r.Close())

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)

	got, err := haystack.Unmarshal([]byte(lines[0]))
	require.NoError(t, err)
	assert.Equal(t, "frontend", got.ServiceName)
	assert.Equal(t, "get", got.OperationName)
	assert.Equal(t, []string{"sr", "ss"}, got.Events())
	url, ok := got.TagValue("url")
	assert.True(t, ok)
	assert.Equal(t, "/api", url)
}
