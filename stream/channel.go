// Package stream carries lazily produced sequences across the process
// boundary.
//
// The serving side pulls items from the producing body one at a time and
// appends each encoded item to an unbounded in-memory queue; a drain
// loop writes queued frames to the transport in production order.
// Producers push ahead at their own pace, independent of consumer read
// pace, bounded only by process memory. A bounded queue would block
// producers, which changes observable behavior.
//
// The consuming side adapts the frame stream into a lazy sequence that
// reads the next frame only when the caller asks for it. Abandoning the
// sequence closes the transport, which cancels the serving side's
// request context and stops further production.
package stream

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tetherfn/tether/types"
	"github.com/tetherfn/tether/wire"
)

// Channel is the serving-side frame queue for one streamed response.
// Push never blocks; Drain writes frames to the transport as they become
// available. A channel terminates exactly once, via CloseSend or Fail.
type Channel struct {
	mu     sync.Mutex
	notify chan struct{}

	queue   []any // *types.ChunkFrame | *types.ResolveFrame
	nextSeq int64

	done      bool
	failure   *types.ErrorDescriptor
	delivered int64
}

// NewChannel creates an open channel.
func NewChannel() *Channel {
	return &Channel{notify: make(chan struct{}, 1), nextSeq: 1}
}

// Push appends one produced item. Chunk sequence numbers are assigned in
// push order. Pushing after termination is a no-op returning false.
func (c *Channel) Push(item *types.Wire) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.queue = append(c.queue, &types.ChunkFrame{
		Type: types.ChunkFrameType,
		Seq:  c.nextSeq,
		Item: item,
	})
	c.nextSeq++
	c.wake()
	return true
}

// PushResolve appends a deferred resolution frame.
func (c *Channel) PushResolve(frame *types.ResolveFrame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return false
	}
	c.queue = append(c.queue, frame)
	c.wake()
	return true
}

// CloseSend terminates the channel after successful completion.
func (c *Channel) CloseSend() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	c.wake()
}

// Fail terminates the channel with an error descriptor. Chunks already
// queued are still drained before the error frame; delivered chunks are
// never retracted.
func (c *Channel) Fail(desc *types.ErrorDescriptor) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done {
		return
	}
	c.done = true
	c.failure = desc
	c.wake()
}

// Delivered reports how many chunk frames have been written so far.
func (c *Channel) Delivered() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.delivered
}

// wake signals Drain without blocking. Caller must hold mu.
func (c *Channel) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

// Drain writes queued frames to w in order until the channel terminates
// or ctx is canceled. flush, when non-nil, is called after each frame so
// chunked transports deliver items as they are produced.
//
// On clean termination an end frame is written; on failure an error
// frame replaces the would-be next chunk.
func (c *Channel) Drain(ctx context.Context, w io.Writer, flush func()) error {
	enc := wire.NewFrameEncoder(w)

	for {
		c.mu.Lock()
		pending := c.queue
		c.queue = nil
		done := c.done
		failure := c.failure
		c.mu.Unlock()

		for _, frame := range pending {
			if err := enc.WriteFrame(frame); err != nil {
				return err
			}
			if _, ok := frame.(*types.ChunkFrame); ok {
				c.mu.Lock()
				c.delivered++
				c.mu.Unlock()
			}
			if flush != nil {
				flush()
			}
		}

		if done {
			var terminal any
			if failure != nil {
				terminal = &types.ErrorFrame{Type: types.ErrorFrameType, Error: *failure}
			} else {
				terminal = &types.EndFrame{Type: types.EndFrameType, Count: c.Delivered()}
			}
			if err := enc.WriteFrame(terminal); err != nil {
				return err
			}
			if flush != nil {
				flush()
			}
			return nil
		}

		select {
		case <-c.notify:
		case <-ctx.Done():
			return fmt.Errorf("stream drain: %w", ctx.Err())
		}
	}
}
