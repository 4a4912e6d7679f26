// Package haystack defines the normalized span record consumed by Haystack storage
// and the trace timeline UI.
package haystack

import (
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	// EventKey is the only field key carried by lifecycle logs.
	EventKey = "event"

	// NotFound replaces a missing service or operation name.
	NotFound = "not_found"

	// RemoteServiceNameKey is the tag derived from the remote endpoint.
	RemoteServiceNameKey = "remote.service_name"
)

// Field is a key/value pair inside a log entry.
type Field struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Log is a timestamped entry, in microseconds since epoch.
type Log struct {
	Timestamp int64   `json:"timestamp"`
	Fields    []Field `json:"fields"`
}

// NewEventLog builds the single-field log used for lifecycle events.
func NewEventLog(name string, timestamp int64) Log {
	return Log{
		Timestamp: timestamp,
		Fields:    []Field{{Key: EventKey, Value: name}},
	}
}

// Event returns the value of the log's event field, or "".
func (l Log) Event() string {
	for _, f := range l.Fields {
		if f.Key == EventKey {
			return f.Value
		}
	}
	return ""
}

// Tag is a span tag. Tags are a list so order and duplicate keys survive.
type Tag struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Span is the normalized record.
//
// ParentSpanID is empty when the span has no parent. StartTime and Duration are
// nil when they could not be derived or were suppressed.
type Span struct {
	TraceID       string `json:"traceId"`
	SpanID        string `json:"spanId"`
	ParentSpanID  string `json:"parentSpanId,omitempty"`
	ServiceName   string `json:"serviceName"`
	OperationName string `json:"operationName"`
	StartTime     *int64 `json:"startTime,omitempty"`
	Duration      *int64 `json:"duration,omitempty"`
	Logs          []Log  `json:"logs"`
	Tags          []Tag  `json:"tags"`
}

// TagValue returns the value of the last tag named key.
func (s Span) TagValue(key string) (string, bool) {
	for i := len(s.Tags) - 1; i >= 0; i-- {
		if s.Tags[i].Key == key {
			return s.Tags[i].Value, true
		}
	}
	return "", false
}

// Events lists the event names of the span's logs in order.
func (s Span) Events() []string {
	events := make([]string, 0, len(s.Logs))
	for _, l := range s.Logs {
		events = append(events, l.Event())
	}
	return events
}

// Marshal encodes a span. Nil logs and tags are written as empty arrays.
func Marshal(s Span) ([]byte, error) {
	if s.Logs == nil {
		s.Logs = []Log{}
	}
	if s.Tags == nil {
		s.Tags = []Tag{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode haystack span: %w", err)
	}
	return data, nil
}

// Unmarshal decodes a span.
func Unmarshal(data []byte) (Span, error) {
	var s Span
	if err := json.Unmarshal(data, &s); err != nil {
		return Span{}, fmt.Errorf("failed to decode haystack span: %w", err)
	}
	return s, nil
}
