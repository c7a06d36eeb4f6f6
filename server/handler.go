// Package server implements the dispatch route: the single logical HTTP
// endpoint that receives invocation envelopes, resolves identifiers,
// binds per-request carriers, and invokes wrapped function bodies.
//
// Every incoming call runs as an independent execution: no state is
// shared between concurrent invocations, and the registry is sealed
// before serving, so dispatch is read-only. A failing body, a failing
// codec, or an unknown identifier produces an error envelope; none of
// them crash the process.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"runtime/debug"

	"github.com/tetherfn/tether/bridge"
	"github.com/tetherfn/tether/carrier"
	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/iox"
	"github.com/tetherfn/tether/log"
	"github.com/tetherfn/tether/metrics"
	"github.com/tetherfn/tether/registry"
	"github.com/tetherfn/tether/stream"
	"github.com/tetherfn/tether/types"
	"github.com/tetherfn/tether/wire"
)

// Config configures a Handler.
type Config struct {
	// Registry holds the wrapped functions. Required. The handler seals
	// it: registration must be complete before construction.
	Registry *registry.Registry
	// EnvPasslist names the process environment variables exposed to
	// function bodies through the carrier. Everything else is withheld.
	EnvPasslist []string
	// Logger is optional; a nop logger is used when absent.
	Logger *log.Logger
	// Collector is optional; metrics are skipped when absent.
	Collector *metrics.Collector
}

// Handler serves the dispatch route.
type Handler struct {
	registry  *registry.Registry
	environ   map[string]string
	logger    *log.Logger
	collector *metrics.Collector
}

// NewHandler creates the dispatch handler and seals the registry.
func NewHandler(cfg Config) (*Handler, error) {
	if cfg.Registry == nil {
		return nil, fmt.Errorf("server: registry is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Nop()
	}

	environ := make(map[string]string, len(cfg.EnvPasslist))
	for _, name := range cfg.EnvPasslist {
		if v, ok := os.LookupEnv(name); ok {
			environ[name] = v
		}
	}

	cfg.Registry.Seal()
	return &Handler{
		registry:  cfg.Registry,
		environ:   environ,
		logger:    logger,
		collector: cfg.Collector,
	}, nil
}

// Attach registers the handler on mux under the default dispatch route.
func (h *Handler) Attach(mux *http.ServeMux) {
	mux.Handle(types.DefaultDispatchRoute, h)
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	data, err := io.ReadAll(http.MaxBytesReader(w, r.Body, wire.MaxFrameSize))
	if err != nil {
		h.writeError(w, "", types.NewErrorDescriptor(types.ErrorKindTransport,
			fmt.Errorf("failed to read request body: %w", err)))
		return
	}

	env, err := wire.DecodeInvocation(data)
	if err != nil {
		h.collector.IncDecodeError()
		h.writeError(w, "", types.NewErrorDescriptor(types.ErrorKindCodec, err))
		return
	}

	logger := h.logger.WithCall(env.CallID, env.Identifier, "serving")
	h.collector.IncCallStarted()

	desc, err := h.registry.Resolve(env.Identifier)
	if err != nil {
		// Version-skew symptom: a stale client referencing a removed or
		// renamed function. Report it, never invoke a fallback.
		h.collector.IncNotFound()
		h.collector.IncCallFailed(string(types.ErrorKindNotFound))
		logger.Warn("identifier not found", map[string]any{})
		h.writeError(w, env.CallID, types.NewErrorDescriptor(types.ErrorKindNotFound, err))
		return
	}

	args, err := h.decodeArgs(env)
	if err != nil {
		h.collector.IncDecodeError()
		h.collector.IncCallFailed(string(types.ErrorKindCodec))
		h.writeError(w, env.CallID, types.NewErrorDescriptor(types.ErrorKindCodec, err))
		return
	}

	// The carrier lives exactly as long as this request.
	car := carrier.FromRequest(r, h.environ)
	defer car.Release()
	ctx := carrier.WithCarrier(r.Context(), car)

	if desc.Kind().IsStreaming() {
		if r.Header.Get(types.HeaderMode) != types.ModeStream {
			h.collector.IncCallFailed(string(types.ErrorKindCodec))
			h.writeError(w, env.CallID, &types.ErrorDescriptor{
				Kind:    types.ErrorKindCodec,
				Message: fmt.Sprintf("%s produces a stream; request stream mode", desc.Name()),
			})
			return
		}
		h.serveStream(ctx, w, desc, args, env.CallID, car, logger)
		return
	}

	h.serveValue(ctx, w, desc, args, env.CallID, car, logger)
}

func (h *Handler) decodeArgs(env *types.InvocationEnvelope) ([]any, error) {
	args := make([]any, len(env.Args))
	for i, a := range env.Args {
		v, err := codec.Decode(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i, err)
		}
		args[i] = v
	}
	return args, nil
}

// serveValue invokes a single-value body and writes a buffered envelope.
func (h *Handler) serveValue(ctx context.Context, w http.ResponseWriter, desc *registry.Descriptor,
	args []any, callID string, car *carrier.Carrier, logger *log.Logger) {

	v, err := h.invoke(ctx, desc, args)
	if err != nil {
		h.collector.IncCallFailed(string(bridge.KindOf(err)))
		logger.Warn("body failed", map[string]any{"error": err.Error()})
		car.ApplyTo(w)
		h.writeError(w, callID, bridge.Descriptor(err))
		return
	}

	result, markers, err := codec.EncodeCollect(v)
	if err != nil {
		h.collector.IncEncodeError()
		h.collector.IncCallFailed(string(types.ErrorKindUnencodable))
		car.ApplyTo(w)
		h.writeError(w, callID, types.NewErrorDescriptor(types.ErrorKindUnencodable, err))
		return
	}
	if !markers.Empty() {
		// A buffered response has no channel to deliver resolutions or
		// chunks on. Settle deferreds before returning, or declare the
		// function stream-kind.
		h.collector.IncCallFailed(string(types.ErrorKindUnencodable))
		car.ApplyTo(w)
		h.writeError(w, callID, &types.ErrorDescriptor{
			Kind:    types.ErrorKindUnencodable,
			Message: fmt.Sprintf("%s returned unsettled markers in a buffered response", desc.Name()),
		})
		return
	}

	h.collector.IncCallCompleted()
	car.ApplyTo(w)
	h.writeEnvelope(w, http.StatusOK, &types.ResponseEnvelope{CallID: callID, Result: result})
}

// invoke runs the body, converting panics into remote failures and
// awaiting deferred-kind results.
func (h *Handler) invoke(ctx context.Context, desc *registry.Descriptor, args []any) (v any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			stack := string(debug.Stack())
			h.logger.Error("body panicked", map[string]any{
				"function": desc.Name(),
				"panic":    fmt.Sprint(rec),
				"stack":    stack,
			})
			err = fmt.Errorf("%w: panic: %v", bridge.ErrRemote, rec)
		}
	}()

	v, err = desc.Value()(ctx, args)
	if err != nil {
		return nil, err
	}
	if d, ok := v.(*codec.Deferred); ok && desc.Kind() == types.FuncKindDeferred {
		return d.Await(ctx)
	}
	return v, nil
}

// serveStream pumps a sequence-producing body through a streaming
// channel into a chunked response. Production runs ahead of the consumer
// at its own pace; cancellation of the request context (the consumer
// hanging up) stops it.
func (h *Handler) serveStream(ctx context.Context, w http.ResponseWriter, desc *registry.Descriptor,
	args []any, callID string, car *carrier.Carrier, logger *log.Logger) {

	h.collector.StreamOpened()
	defer h.collector.StreamClosed()

	car.ApplyTo(w)
	w.Header().Set("Content-Type", types.ContentTypeMsgpack)
	w.Header().Set(types.HeaderMode, types.ModeStream)
	w.Header().Set(types.HeaderCallID, callID)
	w.WriteHeader(http.StatusOK)

	ch := stream.NewChannel()
	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				logger.Error("stream body panicked", map[string]any{
					"function": desc.Name(),
					"panic":    fmt.Sprint(rec),
					"stack":    string(debug.Stack()),
				})
				ch.Fail(types.NewErrorDescriptor(types.ErrorKindRemote,
					fmt.Errorf("panic: %v", rec)))
			}
		}()
		stream.Pump(ctx, desc.Stream()(ctx, args), ch)
	}()

	if err := ch.Drain(ctx, w, iox.FlushFunc(w)); err != nil {
		// The consumer hung up or the connection broke mid-stream;
		// chunks already written stand on their own.
		if !errors.Is(err, context.Canceled) {
			logger.Warn("stream drain ended", map[string]any{"error": err.Error()})
		}
		h.collector.IncCallFailed(string(types.ErrorKindTransport))
		return
	}

	h.collector.AddChunksSent(ch.Delivered())
	h.collector.IncCallCompleted()
	logger.Debug("stream completed", map[string]any{"chunks": ch.Delivered()})
}

func (h *Handler) writeError(w http.ResponseWriter, callID string, desc *types.ErrorDescriptor) {
	h.writeEnvelope(w, statusFor(desc.Kind), &types.ResponseEnvelope{CallID: callID, Error: desc})
}

func (h *Handler) writeEnvelope(w http.ResponseWriter, status int, env *types.ResponseEnvelope) {
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		http.Error(w, "failed to encode response", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", types.ContentTypeMsgpack)
	w.Header().Set(types.HeaderMode, types.ModeBuffered)
	w.Header().Set(types.HeaderCallID, env.CallID)
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// statusFor maps error kinds to HTTP status codes. The body envelope is
// authoritative; the status exists for proxies and logs.
func statusFor(kind types.ErrorKind) int {
	switch kind {
	case types.ErrorKindNotFound:
		return http.StatusNotFound
	case types.ErrorKindCodec, types.ErrorKindUnencodable:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// Collector returns the handler's metrics collector, if any.
func (h *Handler) Collector() *metrics.Collector { return h.collector }
