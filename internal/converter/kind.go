package converter

import (
	"github.com/deepaksharma/haystack-span-converter/internal/zipkinv2"
)

// Lifecycle event names.
const (
	ClientSend  = "cs"
	ClientRecv  = "cr"
	ServerRecv  = "sr"
	ServerSend  = "ss"
	MessageSend = "ms"
	WireSend    = "ws"
	WireRecv    = "wr"
	MessageRecv = "mr"
)

// Variant is the resolved role of a span. Local spans carry no lifecycle events.
type Variant int

const (
	Local Variant = iota
	Client
	Server
	Producer
	Consumer
)

func (v Variant) String() string {
	switch v {
	case Client:
		return "client"
	case Server:
		return "server"
	case Producer:
		return "producer"
	case Consumer:
		return "consumer"
	default:
		return "local"
	}
}

// lifecycle returns the events to synthesize: first at the span timestamp and, when
// the duration is known, second at timestamp+duration. Without a duration only the
// variant's single-event fallback is returned.
func (v Variant) lifecycle(hasDuration bool) (first, second string) {
	switch v {
	case Client:
		if hasDuration {
			return ClientSend, ClientRecv
		}
		return ClientSend, ""
	case Server:
		if hasDuration {
			return ServerRecv, ServerSend
		}
		return ServerRecv, ""
	case Producer:
		if hasDuration {
			return MessageSend, WireSend
		}
		return MessageSend, ""
	case Consumer:
		if hasDuration {
			return WireRecv, MessageRecv
		}
		return MessageRecv, ""
	default:
		return "", ""
	}
}

var variantByKind = map[zipkinv2.Kind]Variant{
	zipkinv2.KindClient:   Client,
	zipkinv2.KindServer:   Server,
	zipkinv2.KindProducer: Producer,
	zipkinv2.KindConsumer: Consumer,
}

var variantByEvent = map[string]Variant{
	ClientSend:  Client,
	ClientRecv:  Client,
	ServerRecv:  Server,
	ServerSend:  Server,
	MessageSend: Producer,
	WireSend:    Producer,
	MessageRecv: Consumer,
	WireRecv:    Consumer,
}

// ResolveVariant picks the span's variant from its kind or, when the kind is unset,
// from the first annotation naming a lifecycle event.
func ResolveVariant(in zipkinv2.InputSpan) Variant {
	if v, ok := variantByKind[in.Kind]; ok {
		return v
	}
	for _, a := range in.Annotations {
		if v, ok := variantByEvent[a.Value]; ok {
			return v
		}
	}
	return Local
}
