package zipkinv2

import (
	"sort"
	"time"

	"github.com/openzipkin/zipkin-go/model"
)

// FromModel adapts a span recorded by zipkin-go instrumentation.
//
// zipkin-go keeps tags in a map, so the original order is gone; tags come out
// sorted by key to keep the result deterministic. Zero ids become empty strings.
func FromModel(m model.SpanModel) InputSpan {
	in := InputSpan{
		Name:        m.Name,
		Kind:        ParseKind(string(m.Kind)),
		Debug:       m.Debug,
		Annotations: make([]Annotation, 0, len(m.Annotations)),
	}
	if !m.TraceID.Empty() {
		in.TraceID = m.TraceID.String()
	}
	if m.ID != 0 {
		in.ID = m.ID.String()
	}
	if m.ParentID != nil && *m.ParentID != 0 {
		in.ParentID = m.ParentID.String()
	}
	if !m.Timestamp.IsZero() {
		in.Timestamp = Int64(m.Timestamp.UnixMicro())
	}
	if m.Duration > 0 {
		in.Duration = Int64(int64(m.Duration / time.Microsecond))
	}
	if m.Shared {
		in.Shared = Bool(true)
	}
	in.LocalEndpoint = endpointFromModel(m.LocalEndpoint)
	in.RemoteEndpoint = endpointFromModel(m.RemoteEndpoint)

	for _, a := range m.Annotations {
		in.Annotations = append(in.Annotations, Annotation{
			Timestamp: a.Timestamp.UnixMicro(),
			Value:     a.Value,
		})
	}

	if len(m.Tags) > 0 {
		keys := make([]string, 0, len(m.Tags))
		for k := range m.Tags {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		in.Tags = make(Tags, 0, len(keys))
		for _, k := range keys {
			in.Tags = append(in.Tags, Tag{Key: k, Value: m.Tags[k]})
		}
	}
	return in
}

func endpointFromModel(e *model.Endpoint) *Endpoint {
	if e == nil {
		return nil
	}
	out := &Endpoint{ServiceName: e.ServiceName, Port: int(e.Port)}
	if e.IPv4 != nil {
		out.IPv4 = e.IPv4.String()
	}
	if e.IPv6 != nil {
		out.IPv6 = e.IPv6.String()
	}
	return out
}
