package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/tetherfn/tether/types"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)

	chunk := &types.ChunkFrame{
		Type: types.ChunkFrameType,
		Seq:  1,
		Item: &types.Wire{Kind: types.WireString, Str: "hello"},
	}
	if err := enc.WriteFrame(chunk); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}
	end := &types.EndFrame{Type: types.EndFrameType, Count: 1}
	if err := enc.WriteFrame(end); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	dec := NewFrameDecoder(&buf)

	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	frame, err := DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	got, ok := frame.(*types.ChunkFrame)
	if !ok {
		t.Fatalf("expected chunk frame, got %T", frame)
	}
	if got.Seq != 1 || got.Item.Str != "hello" {
		t.Errorf("unexpected chunk: %+v", got)
	}

	payload, err = dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}
	frame, err = DecodeFrame(payload)
	if err != nil {
		t.Fatalf("DecodeFrame failed: %v", err)
	}
	gotEnd, ok := frame.(*types.EndFrame)
	if !ok {
		t.Fatalf("expected end frame, got %T", frame)
	}
	if gotEnd.Count != 1 {
		t.Errorf("expected count 1, got %d", gotEnd.Count)
	}

	if _, err := dec.ReadFrame(); err != io.EOF {
		t.Errorf("expected io.EOF after last frame, got %v", err)
	}
}

func TestReadFrame_TooLarge(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], MaxPayloadSize+1)
	buf.Write(lengthBuf[:])

	dec := NewFrameDecoder(&buf)
	_, err := dec.ReadFrame()

	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorTooLarge {
		t.Fatalf("expected too-large frame error, got %v", err)
	}
	if !fe.IsFatal() {
		t.Error("expected too-large to be fatal")
	}
}

func TestReadFrame_PartialPayload(t *testing.T) {
	var buf bytes.Buffer
	var lengthBuf [LengthPrefixSize]byte
	binary.BigEndian.PutUint32(lengthBuf[:], 100)
	buf.Write(lengthBuf[:])
	buf.Write([]byte("short"))

	dec := NewFrameDecoder(&buf)
	_, err := dec.ReadFrame()

	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
	if !IsFatalFrameError(err) {
		t.Error("expected partial to be fatal")
	}
}

func TestReadFrame_PartialPrefix(t *testing.T) {
	dec := NewFrameDecoder(bytes.NewReader([]byte{0x00, 0x01}))
	_, err := dec.ReadFrame()

	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorPartial {
		t.Fatalf("expected partial frame error, got %v", err)
	}
}

func TestDecodeFrame_UnknownType(t *testing.T) {
	var buf bytes.Buffer
	enc := NewFrameEncoder(&buf)
	if err := enc.WriteFrame(map[string]string{"type": "mystery"}); err != nil {
		t.Fatalf("WriteFrame failed: %v", err)
	}

	dec := NewFrameDecoder(&buf)
	payload, err := dec.ReadFrame()
	if err != nil {
		t.Fatalf("ReadFrame failed: %v", err)
	}

	_, err = DecodeFrame(payload)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Kind != FrameErrorDecode {
		t.Fatalf("expected decode frame error, got %v", err)
	}
	if fe.IsFatal() {
		t.Error("decode errors are not fatal for the stream")
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	env := &types.InvocationEnvelope{
		WireVersion: types.WireVersion,
		CallID:      "call-1",
		Identifier:  "deadbeefdeadbeef",
		Args: []*types.Wire{
			{Kind: types.WireInt, Int: 7},
		},
	}

	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	got, err := DecodeInvocation(data)
	if err != nil {
		t.Fatalf("DecodeInvocation failed: %v", err)
	}
	if got.CallID != "call-1" || got.Identifier != "deadbeefdeadbeef" {
		t.Errorf("unexpected envelope: %+v", got)
	}
	if len(got.Args) != 1 || got.Args[0].Int != 7 {
		t.Errorf("unexpected args: %+v", got.Args)
	}
}

func TestResponseRoundTrip_Error(t *testing.T) {
	env := &types.ResponseEnvelope{
		CallID: "call-2",
		Error: &types.ErrorDescriptor{
			Kind:    types.ErrorKindNotFound,
			Message: "resolve failed",
		},
	}

	data, err := EncodeEnvelope(env)
	if err != nil {
		t.Fatalf("EncodeEnvelope failed: %v", err)
	}
	got, err := DecodeResponse(data)
	if err != nil {
		t.Fatalf("DecodeResponse failed: %v", err)
	}
	if got.Error == nil || got.Error.Kind != types.ErrorKindNotFound {
		t.Errorf("unexpected response: %+v", got)
	}
}
