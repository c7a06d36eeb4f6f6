package types

// FuncKind is the declared return kind of a wrapped function.
type FuncKind string

const (
	// FuncKindValue is a plain single-value function.
	FuncKindValue FuncKind = "value"
	// FuncKindDeferred is a function whose value resolves asynchronously.
	FuncKindDeferred FuncKind = "deferred"
	// FuncKindStream is a function producing a lazy sequence of values.
	FuncKindStream FuncKind = "stream"
)

// IsStreaming returns true if responses for this kind use the chunked
// frame protocol rather than a buffered envelope.
func (k FuncKind) IsStreaming() bool {
	return k == FuncKindStream
}

// ErrorKind classifies a wire-level error descriptor.
type ErrorKind string

// Error kind constants. These are the wire names for the bridge error
// taxonomy; the bridge package maps them to sentinel errors.
const (
	ErrorKindNotFound    ErrorKind = "not_found"
	ErrorKindUnencodable ErrorKind = "unencodable"
	ErrorKindCodec       ErrorKind = "codec"
	ErrorKindTransport   ErrorKind = "transport"
	ErrorKindRemote      ErrorKind = "remote"
)

// ErrorDescriptor is the wire shape of a failure.
// For remote failures the original error text is carried in Message and
// reconstructed on the calling side; ErrorType is the Go type name of the
// original error when known.
type ErrorDescriptor struct {
	Kind      ErrorKind `msgpack:"kind"`
	ErrorType string    `msgpack:"error_type,omitempty"`
	Message   string    `msgpack:"message"`
	Stack     *string   `msgpack:"stack,omitempty"`
}

// InvocationEnvelope is the wire request for a single call.
// Created per call on the calling side, consumed once by the serving side.
type InvocationEnvelope struct {
	// WireVersion is the wire contract version of the sender.
	WireVersion string `msgpack:"wire_version"`
	// CallID uniquely identifies this invocation for logging and metrics.
	CallID string `msgpack:"call_id"`
	// Identifier resolves to exactly one registered function on the
	// serving side. An unresolvable identifier fails the call.
	Identifier string `msgpack:"identifier"`
	// Args are the encoded call arguments, fully materialized before
	// transmission, in positional order.
	Args []*Wire `msgpack:"args"`
}

// ResponseEnvelope is the buffered wire response for a single-value call.
// Exactly one of Result or Error is set.
type ResponseEnvelope struct {
	CallID string           `msgpack:"call_id"`
	Result *Wire            `msgpack:"result,omitempty"`
	Error  *ErrorDescriptor `msgpack:"error,omitempty"`
}

// Frame type discriminants for streamed responses.
const (
	// ChunkFrameType carries one produced item.
	ChunkFrameType = "chunk"
	// EndFrameType terminates a stream after successful completion.
	EndFrameType = "end"
	// ErrorFrameType terminates a stream after a mid-stream failure.
	// Chunks already delivered remain valid and are not retracted.
	ErrorFrameType = "error"
	// ResolveFrameType delivers the resolution of a deferred marker.
	ResolveFrameType = "resolve"
)

// ChunkFrame is a single produced item of a streamed response.
// Seq is strictly monotonic starting at 1.
type ChunkFrame struct {
	Type string `msgpack:"type"`
	Seq  int64  `msgpack:"seq"`
	Item *Wire  `msgpack:"item"`
}

// EndFrame terminates a streamed response cleanly.
// Count is the total number of chunks delivered.
type EndFrame struct {
	Type  string `msgpack:"type"`
	Count int64  `msgpack:"count"`
}

// ErrorFrame terminates a streamed response after a failure.
type ErrorFrame struct {
	Type  string          `msgpack:"type"`
	Error ErrorDescriptor `msgpack:"error"`
}

// ResolveFrame delivers the resolution of a deferred value.
// Exactly one of Value or Error is set.
type ResolveFrame struct {
	Type       string           `msgpack:"type"`
	DeferredID string           `msgpack:"deferred_id"`
	Value      *Wire            `msgpack:"value,omitempty"`
	Error      *ErrorDescriptor `msgpack:"error,omitempty"`
}
