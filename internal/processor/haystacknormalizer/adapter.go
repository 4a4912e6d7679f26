package haystacknormalizer

import (
	"encoding/binary"
	"encoding/hex"

	"github.com/deepaksharma/haystack-span-converter/internal/converter"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
	"go.opentelemetry.io/collector/pdata/pcommon"
	"go.opentelemetry.io/collector/pdata/ptrace"
	semconv "go.opentelemetry.io/otel/semconv/v1.20.0"
)

const (
	// SharedAttribute marks a server span that shares its id with the client span.
	SharedAttribute = "zipkin.shared"

	// ServiceNameAttribute carries the Haystack service name on converted spans.
	ServiceNameAttribute = "haystack.service_name"

	// TimingSuppressedAttribute is set on shared server spans whose timing belongs
	// to the caller.
	TimingSuppressedAttribute = "haystack.shared_timing_suppressed"
)

var kindBySpanKind = map[ptrace.SpanKind]zipkinv2.Kind{
	ptrace.SpanKindClient:   zipkinv2.KindClient,
	ptrace.SpanKindServer:   zipkinv2.KindServer,
	ptrace.SpanKindProducer: zipkinv2.KindProducer,
	ptrace.SpanKindConsumer: zipkinv2.KindConsumer,
}

// toInputSpan reads a pdata span as a Zipkin v2 span. Timestamps are truncated to
// microseconds.
func toInputSpan(resource pcommon.Resource, span ptrace.Span) zipkinv2.InputSpan {
	in := zipkinv2.InputSpan{
		Kind: kindBySpanKind[span.Kind()],
		Name: span.Name(),
	}
	if !span.TraceID().IsEmpty() {
		in.TraceID = traceIDHex(span.TraceID())
	}
	if !span.SpanID().IsEmpty() {
		in.ID = span.SpanID().String()
	}
	if !span.ParentSpanID().IsEmpty() {
		in.ParentID = span.ParentSpanID().String()
	}

	start, end := span.StartTimestamp(), span.EndTimestamp()
	if start != 0 {
		in.Timestamp = zipkinv2.Int64(toMicros(start))
		if end != 0 && end >= start {
			in.Duration = zipkinv2.Int64(toMicros(end) - toMicros(start))
		}
	}

	if name, ok := resource.Attributes().Get(string(semconv.ServiceNameKey)); ok {
		in.LocalEndpoint = &zipkinv2.Endpoint{ServiceName: name.AsString()}
	}

	events := span.Events()
	if events.Len() > 0 {
		in.Annotations = make([]zipkinv2.Annotation, 0, events.Len())
		for i := 0; i < events.Len(); i++ {
			e := events.At(i)
			in.Annotations = append(in.Annotations, zipkinv2.Annotation{
				Timestamp: toMicros(e.Timestamp()),
				Value:     e.Name(),
			})
		}
	}

	attrs := span.Attributes()
	in.Tags = make(zipkinv2.Tags, 0, attrs.Len())
	attrs.Range(func(k string, v pcommon.Value) bool {
		switch k {
		case string(semconv.PeerServiceKey):
			in.RemoteEndpoint = &zipkinv2.Endpoint{ServiceName: v.AsString()}
		case SharedAttribute:
			if v.Type() == pcommon.ValueTypeBool {
				in.Shared = zipkinv2.Bool(v.Bool())
			}
		default:
			in.Tags = append(in.Tags, zipkinv2.Tag{Key: k, Value: v.AsString()})
		}
		return true
	})
	return in
}

// applyResult writes a converted span back onto its pdata span. Events that match
// a log by name and microsecond are kept with their attributes. Local spans carry
// no logs, so their events are left as they are.
func applyResult(span ptrace.Span, res converter.Result) {
	out := res.Span
	span.SetName(out.OperationName)

	attrs := span.Attributes()
	attrs.Clear()
	for _, tag := range out.Tags {
		attrs.PutStr(tag.Key, tag.Value)
	}
	attrs.PutStr(ServiceNameAttribute, out.ServiceName)
	if res.TimingSuppressed {
		attrs.PutBool(TimingSuppressedAttribute, true)
	}
	if res.Variant == converter.Local {
		return
	}

	originals := ptrace.NewSpanEventSlice()
	span.Events().CopyTo(originals)
	used := make([]bool, originals.Len())

	events := span.Events()
	events.RemoveIf(func(ptrace.SpanEvent) bool { return true })
	for _, log := range out.Logs {
		name := log.Event()
		e := events.AppendEmpty()
		if i := findEvent(originals, used, name, log.Timestamp); i >= 0 {
			originals.At(i).CopyTo(e)
			used[i] = true
			continue
		}
		e.SetName(name)
		e.SetTimestamp(pcommon.Timestamp(log.Timestamp * 1000))
	}
}

func findEvent(events ptrace.SpanEventSlice, used []bool, name string, micros int64) int {
	for i := 0; i < events.Len(); i++ {
		e := events.At(i)
		if !used[i] && e.Name() == name && toMicros(e.Timestamp()) == micros {
			return i
		}
	}
	return -1
}

// traceIDHex renders a trace id the way Zipkin does: 64-bit ids use 16 hex
// characters.
func traceIDHex(id pcommon.TraceID) string {
	if binary.BigEndian.Uint64(id[:8]) == 0 {
		return hex.EncodeToString(id[8:])
	}
	return id.String()
}

func toMicros(ts pcommon.Timestamp) int64 {
	return int64(ts) / 1000
}

// singleSpanTraces copies a span with its resource and scope into a new batch.
func singleSpanTraces(resource pcommon.Resource, scope pcommon.InstrumentationScope, span ptrace.Span) ptrace.Traces {
	td := ptrace.NewTraces()
	rs := td.ResourceSpans().AppendEmpty()
	resource.CopyTo(rs.Resource())
	ss := rs.ScopeSpans().AppendEmpty()
	scope.CopyTo(ss.Scope())
	span.CopyTo(ss.Spans().AppendEmpty())
	return td
}
