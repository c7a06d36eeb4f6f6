package transport

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/tetherfn/tether/types"
	"github.com/tetherfn/tether/wire"
)

func testEnvelope() *types.InvocationEnvelope {
	return &types.InvocationEnvelope{
		WireVersion: types.WireVersion,
		CallID:      "call-1",
		Identifier:  "deadbeefdeadbeef",
		Args:        []*types.Wire{{Kind: types.WireInt, Int: 7}},
	}
}

func writeResponse(t *testing.T, w http.ResponseWriter, env *types.ResponseEnvelope) {
	t.Helper()
	data, err := wire.EncodeEnvelope(env)
	if err != nil {
		t.Errorf("EncodeEnvelope failed: %v", err)
		return
	}
	w.Header().Set("Content-Type", types.ContentTypeMsgpack)
	w.Header().Set(types.HeaderMode, types.ModeBuffered)
	_, _ = w.Write(data)
}

func TestInvoke_Buffered(t *testing.T) {
	var gotMode, gotCallID string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMode = r.Header.Get(types.HeaderMode)
		gotCallID = r.Header.Get(types.HeaderCallID)

		body, _ := io.ReadAll(r.Body)
		env, err := wire.DecodeInvocation(body)
		if err != nil {
			t.Errorf("DecodeInvocation failed: %v", err)
		}
		writeResponse(t, w, &types.ResponseEnvelope{
			CallID: env.CallID,
			Result: &types.Wire{Kind: types.WireString, Str: "ok"},
		})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Invoke(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if resp.CallID != "call-1" || resp.Result.Str != "ok" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if gotMode != types.ModeBuffered {
		t.Errorf("expected buffered mode header, got %q", gotMode)
	}
	if gotCallID != "call-1" {
		t.Errorf("expected call id header, got %q", gotCallID)
	}
}

func TestInvoke_RetriesAfterSeveredConnection(t *testing.T) {
	attempts := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			// Sever the connection so the client sees EOF.
			hj, ok := w.(http.Hijacker)
			if !ok {
				t.Error("server does not support hijacking")
				return
			}
			conn, _, err := hj.Hijack()
			if err != nil {
				t.Errorf("Hijack failed: %v", err)
				return
			}
			conn.Close()
			return
		}
		writeResponse(t, w, &types.ResponseEnvelope{CallID: "call-1"})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	resp, err := client.Invoke(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("Invoke failed after retry: %v", err)
	}
	if resp.CallID != "call-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
	if attempts != 2 {
		t.Errorf("expected 2 attempts, got %d", attempts)
	}
}

func TestInvoke_ExhaustedRetries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hj := w.(http.Hijacker)
		conn, _, _ := hj.Hijack()
		conn.Close()
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithRetries(2))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Invoke(context.Background(), testEnvelope())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
}

func TestInvoke_CanceledContextNotRetried(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		time.Sleep(200 * time.Millisecond)
		writeResponse(t, w, &types.ResponseEnvelope{})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err = client.Invoke(ctx, testEnvelope())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport, got %v", err)
	}
	if got := attempts.Load(); got != 1 {
		t.Errorf("expected a single attempt on cancellation, got %d", got)
	}
}

func TestInvoke_NonWireResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gateway exploded", http.StatusBadGateway)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.Invoke(context.Background(), testEnvelope())
	if !errors.Is(err, ErrTransport) {
		t.Errorf("expected ErrTransport for non-wire body, got %v", err)
	}
}

func TestInvokeStream_ReturnsBody(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get(types.HeaderMode); got != types.ModeStream {
			t.Errorf("expected stream mode header, got %q", got)
		}
		w.Header().Set("Content-Type", types.ContentTypeMsgpack)
		w.Header().Set(types.HeaderMode, types.ModeStream)
		enc := wire.NewFrameEncoder(w)
		_ = enc.WriteFrame(&types.EndFrame{Type: types.EndFrameType, Count: 0})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	body, err := client.InvokeStream(context.Background(), testEnvelope())
	if err != nil {
		t.Fatalf("InvokeStream failed: %v", err)
	}
	t.Cleanup(func() { body.Close() })

	dec := wire.NewFrameDecoder(body)
	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	frame, err := wire.DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	if _, ok := frame.(*types.EndFrame); !ok {
		t.Errorf("expected end frame, got %T", frame)
	}
}

func TestInvokeStream_BufferedErrorFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", types.ContentTypeMsgpack)
		w.Header().Set(types.HeaderMode, types.ModeBuffered)
		w.WriteHeader(http.StatusNotFound)
		data, _ := wire.EncodeEnvelope(&types.ResponseEnvelope{
			CallID: "call-1",
			Error: &types.ErrorDescriptor{
				Kind:    types.ErrorKindNotFound,
				Message: "resolve failed",
			},
		})
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL)
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}

	_, err = client.InvokeStream(context.Background(), testEnvelope())
	if err == nil {
		t.Fatal("expected the buffered error envelope to surface")
	}
	var re *types.RemoteError
	if !errors.As(err, &re) || re.Kind != types.ErrorKindNotFound {
		t.Errorf("expected not-found remote error, got %v", err)
	}
}

func TestWithRoute(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		writeResponse(t, w, &types.ResponseEnvelope{})
	}))
	t.Cleanup(srv.Close)

	client, err := NewClient(srv.URL, WithRoute("/custom/call"))
	if err != nil {
		t.Fatalf("NewClient failed: %v", err)
	}
	if _, err := client.Invoke(context.Background(), testEnvelope()); err != nil {
		t.Fatalf("Invoke failed: %v", err)
	}
	if gotPath != "/custom/call" {
		t.Errorf("expected custom route, got %q", gotPath)
	}
}
