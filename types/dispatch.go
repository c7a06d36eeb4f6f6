package types

// HTTP contract constants for the dispatch route.
// The route accepts a msgpack InvocationEnvelope body and returns either a
// buffered ResponseEnvelope or a chunked frame stream, selected by the
// mode header.
const (
	// DefaultDispatchRoute is the single logical dispatch route.
	DefaultDispatchRoute = "/.tether/call"

	// ContentTypeMsgpack is the content type for all wire bodies.
	ContentTypeMsgpack = "application/msgpack"

	// HeaderMode negotiates the response body shape.
	HeaderMode = "X-Tether-Mode"
	// HeaderCallID echoes the invocation's call ID on the response.
	HeaderCallID = "X-Tether-Call-Id"
	// HeaderWireVersion carries the sender's wire contract version.
	HeaderWireVersion = "X-Tether-Wire-Version"

	// ModeBuffered requests a buffered ResponseEnvelope body.
	ModeBuffered = "buffered"
	// ModeStream requests a chunked frame-stream body.
	ModeStream = "stream"
)
