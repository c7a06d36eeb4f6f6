// Package types defines core domain types for the Tether bridge.
package types

import "time"

// WireVersion is the wire contract version.
const WireVersion = "0.1.0"

// WireKind discriminates wire value nodes.
type WireKind string

// Wire value kind constants.
const (
	WireNil    WireKind = "nil"
	WireBool   WireKind = "bool"
	WireInt    WireKind = "int"
	WireUint   WireKind = "uint"
	WireFloat  WireKind = "float"
	WireString WireKind = "string"
	WireBytes  WireKind = "bytes"
	WireTime   WireKind = "time"
	WireSeq    WireKind = "seq"
	WireMap    WireKind = "map"
	// WireRef is a back-reference to a previously defined container.
	// Refs always point backward in traversal order.
	WireRef WireKind = "ref"
	// WireDeferred marks a value resolved asynchronously. The resolution
	// arrives later as a resolve frame carrying the same deferred ID.
	WireDeferred WireKind = "deferred"
	// WireStream marks a lazy sequence. Items arrive as chunk frames on
	// the stream identified by StreamID.
	WireStream WireKind = "stream"
)

// Wire is a single node of an encoded value graph.
// Exactly one payload field is meaningful, selected by Kind.
// All fields use msgpack tags to pin the wire format.
type Wire struct {
	Kind WireKind `msgpack:"kind"`
	// ID is the definition ID for containers that are referenced again
	// later in the graph. Zero means the container is never shared.
	ID    uint32      `msgpack:"id,omitempty"`
	Bool  bool        `msgpack:"bool,omitempty"`
	Int   int64       `msgpack:"int,omitempty"`
	Uint  uint64      `msgpack:"uint,omitempty"`
	Float float64     `msgpack:"float,omitempty"`
	Str   string      `msgpack:"str,omitempty"`
	Bytes []byte      `msgpack:"bytes,omitempty"`
	Time  time.Time   `msgpack:"time,omitempty"`
	Seq   []*Wire     `msgpack:"seq,omitempty"`
	Map   []WireEntry `msgpack:"map,omitempty"`
	// Ref is the definition ID this node refers back to.
	Ref uint32 `msgpack:"ref,omitempty"`
	// StreamID identifies a deferred or stream marker.
	StreamID string `msgpack:"stream_id,omitempty"`
}

// WireEntry is a single mapping entry. Entries preserve encoder traversal
// order on the wire; decoded mappings do not guarantee any key order.
type WireEntry struct {
	Key   string `msgpack:"k"`
	Value *Wire  `msgpack:"v"`
}
