// Package metrics provides per-process metrics collection for the
// bridge.
//
// The Collector accumulates counters across calls. It is a leaf package
// with no internal dependencies; the bridge and the dispatch handler
// record into it, and Snapshot exposes a consistent point-in-time view.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all bridge metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after
// creation.
type Snapshot struct {
	// Call lifecycle
	CallsStarted   int64
	CallsCompleted int64
	CallsFailed    int64
	FailedByKind   map[string]int64

	// Remote dispatch
	RemoteRoundTrips int64
	NotFound         int64

	// Codec
	EncodeErrors int64
	DecodeErrors int64

	// Streaming
	StreamsOpened  int64
	StreamsActive  int64
	ChunksSent     int64
	ChunksReceived int64

	// Dimensions (informational, set at construction)
	Mode string
}

// Collector accumulates bridge metrics.
// Thread-safe via sync.Mutex. All increment methods are nil-receiver
// safe, so call sites never need to guard against a missing collector.
type Collector struct {
	mu sync.Mutex

	callsStarted   int64
	callsCompleted int64
	callsFailed    int64
	failedByKind   map[string]int64

	remoteRoundTrips int64
	notFound         int64

	encodeErrors int64
	decodeErrors int64

	streamsOpened  int64
	streamsActive  int64
	chunksSent     int64
	chunksReceived int64

	mode string
}

// NewCollector creates a collector for the given process mode.
func NewCollector(mode string) *Collector {
	return &Collector{
		failedByKind: make(map[string]int64),
		mode:         mode,
	}
}

// IncCallStarted records a call beginning.
func (c *Collector) IncCallStarted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsStarted++
	c.mu.Unlock()
}

// IncCallCompleted records a successful call.
func (c *Collector) IncCallCompleted() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsCompleted++
	c.mu.Unlock()
}

// IncCallFailed records a failed call with its error kind.
func (c *Collector) IncCallFailed(kind string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.callsFailed++
	c.failedByKind[kind]++
	c.mu.Unlock()
}

// IncRemoteRoundTrip records one network dispatch.
func (c *Collector) IncRemoteRoundTrip() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.remoteRoundTrips++
	c.mu.Unlock()
}

// IncNotFound records an unresolvable identifier.
func (c *Collector) IncNotFound() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.notFound++
	c.mu.Unlock()
}

// IncEncodeError records an argument or result encoding failure.
func (c *Collector) IncEncodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.encodeErrors++
	c.mu.Unlock()
}

// IncDecodeError records a wire decoding failure.
func (c *Collector) IncDecodeError() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.decodeErrors++
	c.mu.Unlock()
}

// StreamOpened records a stream beginning.
func (c *Collector) StreamOpened() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.streamsOpened++
	c.streamsActive++
	c.mu.Unlock()
}

// StreamClosed records a stream ending, for any reason.
func (c *Collector) StreamClosed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	if c.streamsActive > 0 {
		c.streamsActive--
	}
	c.mu.Unlock()
}

// AddChunksSent records chunks written to the transport.
func (c *Collector) AddChunksSent(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksSent += n
	c.mu.Unlock()
}

// AddChunksReceived records chunks consumed from the transport.
func (c *Collector) AddChunksReceived(n int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.chunksReceived += n
	c.mu.Unlock()
}

// Snapshot returns a consistent snapshot of all counters.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{FailedByKind: map[string]int64{}}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byKind := make(map[string]int64, len(c.failedByKind))
	for k, v := range c.failedByKind {
		byKind[k] = v
	}
	return Snapshot{
		CallsStarted:     c.callsStarted,
		CallsCompleted:   c.callsCompleted,
		CallsFailed:      c.callsFailed,
		FailedByKind:     byKind,
		RemoteRoundTrips: c.remoteRoundTrips,
		NotFound:         c.notFound,
		EncodeErrors:     c.encodeErrors,
		DecodeErrors:     c.decodeErrors,
		StreamsOpened:    c.streamsOpened,
		StreamsActive:    c.streamsActive,
		ChunksSent:       c.chunksSent,
		ChunksReceived:   c.chunksReceived,
		Mode:             c.mode,
	}
}
