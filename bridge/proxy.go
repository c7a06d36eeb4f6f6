package bridge

import (
	"context"
	"fmt"
	"iter"

	"github.com/google/uuid"

	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/registry"
	"github.com/tetherfn/tether/stream"
	"github.com/tetherfn/tether/types"
)

// Proxy is the callable returned to the caller. The same proxy code runs
// on both sides of the boundary: in local mode it executes the wrapped
// body directly, in remote mode it marshals the call to the dispatch
// endpoint. Call sites do not change between the two.
type Proxy struct {
	desc   *registry.Descriptor
	bridge *Bridge
}

// Call invokes a single-value function. Deferred-kind bodies are awaited
// so the caller always receives the settled value.
//
// Errors surface per the bridge taxonomy; callers must be prepared to
// receive a failure wherever they would accept a value.
func (p *Proxy) Call(ctx context.Context, args ...any) (any, error) {
	if p.desc.Kind().IsStreaming() {
		return nil, fmt.Errorf("%s: streaming function requires Stream", p.desc.Name())
	}

	p.bridge.collector.IncCallStarted()
	var (
		v   any
		err error
	)
	if p.bridge.mode == ModeLocal {
		v, err = p.callLocal(ctx, args)
	} else {
		v, err = p.callRemote(ctx, args)
	}
	if err != nil {
		p.bridge.collector.IncCallFailed(string(KindOf(err)))
		return nil, err
	}
	p.bridge.collector.IncCallCompleted()
	return v, nil
}

// callLocal behaves identically to a direct call: no round trip, no
// codec, and whatever carrier is active on ctx stays bound.
func (p *Proxy) callLocal(ctx context.Context, args []any) (any, error) {
	v, err := p.desc.Value()(ctx, args)
	if err != nil {
		return nil, err
	}
	if d, ok := v.(*codec.Deferred); ok && p.desc.Kind() == types.FuncKindDeferred {
		return d.Await(ctx)
	}
	return v, nil
}

func (p *Proxy) callRemote(ctx context.Context, args []any) (any, error) {
	env, err := p.envelope(args)
	if err != nil {
		return nil, err
	}
	logger := p.bridge.logger.WithCall(env.CallID, env.Identifier, p.bridge.mode.String())
	logger.Debug("dispatching call", map[string]any{"args": len(args)})

	p.bridge.collector.IncRemoteRoundTrip()
	resp, err := p.bridge.client.Invoke(ctx, env)
	if err != nil {
		logger.Warn("dispatch failed", map[string]any{"error": err.Error()})
		return nil, err
	}
	if resp.Error != nil {
		if resp.Error.Kind == types.ErrorKindNotFound {
			p.bridge.collector.IncNotFound()
		}
		return nil, resp.Error.Err()
	}

	v, markers, err := codec.DecodeCollect(resp.Result)
	if err != nil {
		p.bridge.collector.IncDecodeError()
		return nil, err
	}
	// Buffered responses have no resolution channel; the serving side
	// settles deferreds before responding, so markers here mean the two
	// sides disagree about the protocol.
	for _, d := range markers.Deferreds {
		d.Fail(fmt.Errorf("%w: deferred value in buffered response", codec.ErrCodec))
	}
	return v, nil
}

// Stream invokes a sequence-producing function and returns its lazy
// sequence. Arguments are fully materialized and encoded before
// transmission; items are decoded as the caller pulls them.
//
// A mid-stream failure surfaces as the sequence's final element, after
// every item produced before it.
func (p *Proxy) Stream(ctx context.Context, args ...any) iter.Seq2[any, error] {
	if !p.desc.Kind().IsStreaming() {
		return failSeq(fmt.Errorf("%s: non-streaming function requires Call", p.desc.Name()))
	}

	p.bridge.collector.IncCallStarted()

	if p.bridge.mode == ModeLocal {
		return p.desc.Stream()(ctx, args)
	}

	env, err := p.envelope(args)
	if err != nil {
		p.bridge.collector.IncCallFailed(string(KindOf(err)))
		return failSeq(err)
	}
	logger := p.bridge.logger.WithCall(env.CallID, env.Identifier, p.bridge.mode.String())

	return func(yield func(any, error) bool) {
		p.bridge.collector.IncRemoteRoundTrip()
		body, err := p.bridge.client.InvokeStream(ctx, env)
		if err != nil {
			p.bridge.collector.IncCallFailed(string(KindOf(err)))
			logger.Warn("stream dispatch failed", map[string]any{"error": err.Error()})
			yield(nil, err)
			return
		}

		p.bridge.collector.StreamOpened()
		defer p.bridge.collector.StreamClosed()

		failed := false
		for v, err := range stream.Pull(body) {
			if err != nil {
				failed = true
				p.bridge.collector.IncCallFailed(string(KindOf(err)))
				yield(nil, err)
				return
			}
			p.bridge.collector.AddChunksReceived(1)
			if !yield(v, nil) {
				return
			}
		}
		if !failed {
			p.bridge.collector.IncCallCompleted()
		}
	}
}

// envelope materializes and encodes args into an invocation envelope.
// Encoding failures surface here, before any network transmission.
func (p *Proxy) envelope(args []any) (*types.InvocationEnvelope, error) {
	encoded := make([]*types.Wire, len(args))
	for i, arg := range args {
		w, err := codec.Encode(arg)
		if err != nil {
			p.bridge.collector.IncEncodeError()
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		encoded[i] = w
	}
	return &types.InvocationEnvelope{
		WireVersion: types.WireVersion,
		CallID:      uuid.NewString(),
		Identifier:  p.desc.Identifier(),
		Args:        encoded,
	}, nil
}

// Identifier returns the proxy's wire identifier.
func (p *Proxy) Identifier() string { return p.desc.Identifier() }

// Name returns the wrapped function's declared name.
func (p *Proxy) Name() string { return p.desc.Name() }

// Kind returns the wrapped function's declared return kind.
func (p *Proxy) Kind() types.FuncKind { return p.desc.Kind() }

func failSeq(err error) iter.Seq2[any, error] {
	return func(yield func(any, error) bool) {
		yield(nil, err)
	}
}
