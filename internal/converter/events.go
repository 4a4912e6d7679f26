package converter

import (
	"sort"

	"github.com/deepaksharma/haystack-span-converter/internal/haystack"
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
)

type event struct {
	name      string
	timestamp int64
}

// synthesizeLogs merges the span's annotations with the lifecycle events its variant
// implies and orders them by timestamp. It returns the logs and how many events were
// synthesized.
//
// An event already present as an annotation is never synthesized again. Ties keep
// the order: synthesized begin, annotations as received, synthesized end.
func synthesizeLogs(v Variant, in zipkinv2.InputSpan) ([]haystack.Log, int) {
	if v == Local {
		return []haystack.Log{}, 0
	}

	annotated := make(map[string]struct{}, len(in.Annotations))
	for _, a := range in.Annotations {
		annotated[a.Value] = struct{}{}
	}
	missing := func(name string) bool {
		if name == "" {
			return false
		}
		_, ok := annotated[name]
		return !ok
	}

	events := make([]event, 0, len(in.Annotations)+2)
	synthesized := 0

	first, second := v.lifecycle(in.Duration != nil)
	if in.Timestamp != nil && missing(first) {
		events = append(events, event{name: first, timestamp: *in.Timestamp})
		synthesized++
	}
	for _, a := range in.Annotations {
		events = append(events, event{name: a.Value, timestamp: a.Timestamp})
	}
	if in.Timestamp != nil && in.Duration != nil && missing(second) {
		events = append(events, event{name: second, timestamp: *in.Timestamp + *in.Duration})
		synthesized++
	}

	sort.SliceStable(events, func(i, j int) bool {
		return events[i].timestamp < events[j].timestamp
	})

	logs := make([]haystack.Log, len(events))
	for i, e := range events {
		logs[i] = haystack.NewEventLog(e.name, e.timestamp)
	}
	return logs, synthesized
}
