package stream

import (
	"errors"
	"fmt"
	"io"
	"iter"

	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/iox"
	"github.com/tetherfn/tether/types"
	"github.com/tetherfn/tether/wire"
)

// ErrInterrupted indicates the frame stream ended before its end or
// error frame arrived; a network-level failure mid-stream lands here.
var ErrInterrupted = errors.New("stream interrupted")

// Pull adapts a framed response body into a lazy sequence. The next
// frame is read only when the caller asks for the next item; abandoning
// the sequence closes body, which tears down the transport and cancels
// production on the serving side.
//
// A mid-stream error frame surfaces as the sequence's final element:
// items already delivered stand, the error follows them, and nothing is
// yielded afterward.
func Pull(body io.ReadCloser) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		defer iox.DiscardClose(body)

		dec := wire.NewFrameDecoder(body)
		pending := make(map[string]*codec.Deferred)
		wantSeq := int64(1)

		for {
			payload, err := dec.ReadFrame()
			if err != nil {
				failPending(pending, ErrInterrupted)
				if errors.Is(err, io.EOF) {
					yield(nil, fmt.Errorf("%w: stream ended without a terminal frame", ErrInterrupted))
				} else {
					yield(nil, fmt.Errorf("%w: %w", ErrInterrupted, err))
				}
				return
			}

			frame, err := wire.DecodeFrame(payload)
			if err != nil {
				failPending(pending, err)
				yield(nil, fmt.Errorf("%w: %w", codec.ErrCodec, err))
				return
			}

			switch f := frame.(type) {
			case *types.ChunkFrame:
				if f.Seq != wantSeq {
					failPending(pending, codec.ErrCodec)
					yield(nil, fmt.Errorf("%w: chunk seq %d, want %d", codec.ErrCodec, f.Seq, wantSeq))
					return
				}
				wantSeq++

				v, markers, decErr := codec.DecodeCollect(f.Item)
				if decErr != nil {
					failPending(pending, decErr)
					yield(nil, decErr)
					return
				}
				for id, d := range markers.Deferreds {
					pending[id] = d
				}
				if !yield(v, nil) {
					// Consumer will not read again; the deferred body
					// close tears down the transport.
					failPending(pending, ErrInterrupted)
					return
				}

			case *types.ResolveFrame:
				d, ok := pending[f.DeferredID]
				if !ok {
					continue
				}
				delete(pending, f.DeferredID)
				resolveFromFrame(d, f)

			case *types.EndFrame:
				failPending(pending, fmt.Errorf("%w: stream ended before resolution", ErrInterrupted))
				return

			case *types.ErrorFrame:
				failPending(pending, f.Error.Err())
				yield(nil, f.Error.Err())
				return
			}
		}
	}
}

func resolveFromFrame(d *codec.Deferred, f *types.ResolveFrame) {
	if f.Error != nil {
		d.Fail(f.Error.Err())
		return
	}
	v, err := codec.Decode(f.Value)
	if err != nil {
		d.Fail(err)
		return
	}
	d.Resolve(v)
}

func failPending(pending map[string]*codec.Deferred, err error) {
	for id, d := range pending {
		d.Fail(err)
		delete(pending, id)
	}
}
