// Package zipkinv2 models spans in the Zipkin v2 JSON format as they arrive from
// instrumentation libraries.
package zipkinv2

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Kind is the RPC role of a span. The zero value means the role was not reported.
type Kind string

const (
	KindUnset    Kind = ""
	KindClient   Kind = "CLIENT"
	KindServer   Kind = "SERVER"
	KindProducer Kind = "PRODUCER"
	KindConsumer Kind = "CONSUMER"
)

// ParseKind maps a wire value to a Kind. Unrecognized values map to KindUnset.
func ParseKind(s string) Kind {
	switch k := Kind(s); k {
	case KindClient, KindServer, KindProducer, KindConsumer:
		return k
	default:
		return KindUnset
	}
}

// UnmarshalJSON never fails on an unknown kind, it degrades to KindUnset. Values
// that are not strings are unknown kinds too.
func (k *Kind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		*k = KindUnset
		return nil
	}
	*k = ParseKind(s)
	return nil
}

// Endpoint describes the network context of one side of a span.
type Endpoint struct {
	ServiceName string `json:"serviceName,omitempty"`
	IPv4        string `json:"ipv4,omitempty"`
	IPv6        string `json:"ipv6,omitempty"`
	Port        int    `json:"port,omitempty"`
}

// Annotation is an event that explains latency with a timestamp in microseconds.
type Annotation struct {
	Timestamp int64  `json:"timestamp"`
	Value     string `json:"value"`
}

// InputSpan is a single Zipkin v2 span.
//
// Optional scalars are pointers so an absent field is distinguishable from a zero
// one. An empty ParentID means the span has no parent.
type InputSpan struct {
	TraceID        string       `json:"traceId"`
	ParentID       string       `json:"parentId,omitempty"`
	ID             string       `json:"id"`
	Kind           Kind         `json:"kind,omitempty"`
	Name           string       `json:"name,omitempty"`
	Timestamp      *int64       `json:"timestamp,omitempty"`
	Duration       *int64       `json:"duration,omitempty"`
	Debug          bool         `json:"debug,omitempty"`
	Shared         *bool        `json:"shared,omitempty"`
	LocalEndpoint  *Endpoint    `json:"localEndpoint,omitempty"`
	RemoteEndpoint *Endpoint    `json:"remoteEndpoint,omitempty"`
	Annotations    []Annotation `json:"annotations,omitempty"`
	Tags           Tags         `json:"tags,omitempty"`
}

// IsShared reports whether the span id is shared with the caller.
func (s InputSpan) IsShared() bool {
	return s.Shared != nil && *s.Shared
}

// LocalServiceName returns the local endpoint's service name, or "" when absent.
func (s InputSpan) LocalServiceName() string {
	if s.LocalEndpoint == nil {
		return ""
	}
	return s.LocalEndpoint.ServiceName
}

// RemoteServiceName returns the remote endpoint's service name, or "" when absent.
func (s InputSpan) RemoteServiceName() string {
	if s.RemoteEndpoint == nil {
		return ""
	}
	return s.RemoteEndpoint.ServiceName
}

// Int64 returns a pointer to v, for building spans with optional timing.
func Int64(v int64) *int64 {
	return &v
}

// Bool returns a pointer to v.
func Bool(v bool) *bool {
	return &v
}

// Unmarshal decodes one span.
func Unmarshal(data []byte) (InputSpan, error) {
	var span InputSpan
	if err := json.Unmarshal(data, &span); err != nil {
		return InputSpan{}, fmt.Errorf("failed to decode span: %w", err)
	}
	return span, nil
}

// UnmarshalList splits a JSON array of spans into its raw elements so each one can
// be decoded, and fail, on its own.
func UnmarshalList(data []byte) ([][]byte, error) {
	var raws []jsoniter.RawMessage
	if err := json.Unmarshal(data, &raws); err != nil {
		return nil, fmt.Errorf("failed to decode span list: %w", err)
	}
	out := make([][]byte, len(raws))
	for i, raw := range raws {
		out[i] = []byte(raw)
	}
	return out, nil
}

// Marshal encodes a span, keeping tag order.
func Marshal(span InputSpan) ([]byte, error) {
	data, err := json.Marshal(span)
	if err != nil {
		return nil, fmt.Errorf("failed to encode span: %w", err)
	}
	return data, nil
}
