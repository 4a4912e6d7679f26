package zipkinv2

import (
	"fmt"
	"io"

	jsoniter "github.com/json-iterator/go"
)

// Tag is one key/value pair of a span's tag map.
type Tag struct {
	Key   string
	Value string
}

// Tags holds span tags in the order they appeared on the wire. A JSON object is
// decoded key by key so insertion order survives, which a Go map would lose.
type Tags []Tag

// Get returns the value of the last tag named key.
func (t Tags) Get(key string) (string, bool) {
	for i := len(t) - 1; i >= 0; i-- {
		if t[i].Key == key {
			return t[i].Value, true
		}
	}
	return "", false
}

// Has reports whether any tag is named key.
func (t Tags) Has(key string) bool {
	_, ok := t.Get(key)
	return ok
}

// UnmarshalJSON decodes a flat object. Non-string scalars keep their JSON text,
// null values are skipped.
func (t *Tags) UnmarshalJSON(data []byte) error {
	iter := jsoniter.ParseBytes(json, data)
	switch iter.WhatIsNext() {
	case jsoniter.NilValue:
		iter.ReadNil()
		*t = nil
		return nil
	case jsoniter.ObjectValue:
	default:
		return fmt.Errorf("failed to decode tags: expected object")
	}

	tags := Tags{}
	iter.ReadObjectCB(func(it *jsoniter.Iterator, key string) bool {
		switch it.WhatIsNext() {
		case jsoniter.StringValue:
			tags = append(tags, Tag{Key: key, Value: it.ReadString()})
		case jsoniter.NilValue:
			it.Skip()
		case jsoniter.ObjectValue, jsoniter.ArrayValue:
			it.ReportError("decode tag", "value of "+key+" is not a scalar")
			return false
		default:
			tags = append(tags, Tag{Key: key, Value: string(it.SkipAndReturnBytes())})
		}
		return true
	})
	if iter.Error != nil && iter.Error != io.EOF {
		return fmt.Errorf("failed to decode tags: %w", iter.Error)
	}
	*t = tags
	return nil
}

// MarshalJSON encodes the tags as an object in their stored order.
func (t Tags) MarshalJSON() ([]byte, error) {
	stream := json.BorrowStream(nil)
	defer json.ReturnStream(stream)

	stream.WriteObjectStart()
	for i, tag := range t {
		if i > 0 {
			stream.WriteMore()
		}
		stream.WriteObjectField(tag.Key)
		stream.WriteString(tag.Value)
	}
	stream.WriteObjectEnd()
	if stream.Error != nil {
		return nil, fmt.Errorf("failed to encode tags: %w", stream.Error)
	}
	return append([]byte(nil), stream.Buffer()...), nil
}
