package stream

import (
	"context"
	"iter"
	"sync"

	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/types"
)

// Pump pulls items from a producing body one at a time, encodes each
// immediately, and pushes it onto the channel in production order. At
// most one item is in flight between the body and the queue; there is no
// parallel pre-fetch.
//
// When the body completes, pending deferred resolutions are delivered
// and the channel is closed. When the body yields an error mid-sequence,
// an error descriptor terminates the channel; items already pushed
// remain valid.
//
// Cancellation is cooperative: once ctx is done Pump stops pulling, but
// a body blocked mid-production must observe ctx itself.
func Pump(ctx context.Context, seq iter.Seq2[any, error], ch *Channel) {
	var watchers sync.WaitGroup

	for v, err := range seq {
		if ctx.Err() != nil {
			// Consumer is gone; stop pulling and tear down.
			ch.Fail(types.NewErrorDescriptor(types.ErrorKindTransport, ctx.Err()))
			return
		}
		if err != nil {
			watchers.Wait()
			ch.Fail(types.NewErrorDescriptor(types.ErrorKindRemote, err))
			return
		}

		item, markers, encErr := codec.EncodeCollect(v)
		if encErr != nil {
			watchers.Wait()
			ch.Fail(types.NewErrorDescriptor(types.ErrorKindUnencodable, encErr))
			return
		}
		if !ch.Push(item) {
			return
		}

		for _, d := range markers.Deferreds {
			watchers.Add(1)
			go watchDeferred(ctx, d, ch, &watchers)
		}
	}

	// Deliver pending resolutions before the end frame so the consumer
	// never sees an unresolvable deferred after a clean end.
	watchers.Wait()
	ch.CloseSend()
}

// watchDeferred awaits one deferred resolution and pushes its resolve
// frame.
func watchDeferred(ctx context.Context, d *codec.Deferred, ch *Channel, wg *sync.WaitGroup) {
	defer wg.Done()

	v, err := d.Await(ctx)
	frame := &types.ResolveFrame{
		Type:       types.ResolveFrameType,
		DeferredID: d.ID(),
	}
	if err != nil {
		frame.Error = types.NewErrorDescriptor(types.ErrorKindRemote, err)
		ch.PushResolve(frame)
		return
	}

	item, _, encErr := codec.EncodeCollect(v)
	if encErr != nil {
		frame.Error = types.NewErrorDescriptor(types.ErrorKindUnencodable, encErr)
	} else {
		frame.Value = item
	}
	ch.PushResolve(frame)
}
