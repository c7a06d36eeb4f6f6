package codec

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Deferred is a value resolved asynchronously. On the wire it travels as
// a deferred marker; the resolution arrives later as a resolve frame
// carrying the same ID, nested-envelope style.
//
// A Deferred resolves at most once: the first Resolve or Fail wins and
// later calls are ignored.
type Deferred struct {
	id string

	once  sync.Once
	done  chan struct{}
	value any
	err   error
}

// NewDeferred creates an unresolved Deferred with a fresh ID.
func NewDeferred() *Deferred {
	return newDeferredWithID(uuid.NewString())
}

func newDeferredWithID(id string) *Deferred {
	return &Deferred{
		id:   id,
		done: make(chan struct{}),
	}
}

// ID returns the wire identity of this deferred value.
func (d *Deferred) ID() string {
	return d.id
}

// Resolve fulfills the deferred with v. No-op if already settled.
func (d *Deferred) Resolve(v any) {
	d.once.Do(func() {
		d.value = v
		close(d.done)
	})
}

// Fail settles the deferred with an error. No-op if already settled.
func (d *Deferred) Fail(err error) {
	d.once.Do(func() {
		d.err = err
		close(d.done)
	})
}

// Await blocks until the deferred settles or ctx is done.
func (d *Deferred) Await(ctx context.Context) (any, error) {
	select {
	case <-d.done:
		return d.value, d.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Settled reports whether the deferred has resolved or failed.
func (d *Deferred) Settled() bool {
	select {
	case <-d.done:
		return true
	default:
		return false
	}
}

// StreamRef is the wire marker for a lazy sequence. The items of the
// sequence travel as chunk frames on the stream identified by ID; the
// marker itself carries no data.
type StreamRef struct {
	ID string
}

// NewStreamRef creates a stream marker with a fresh ID.
func NewStreamRef() *StreamRef {
	return &StreamRef{ID: uuid.NewString()}
}
