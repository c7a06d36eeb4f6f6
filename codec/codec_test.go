package codec

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/tetherfn/tether/types"
)

func roundTrip(t *testing.T, v any) any {
	t.Helper()
	w, err := Encode(v)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	out, err := Decode(w)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	return out
}

func TestRoundTrip_Primitives(t *testing.T) {
	tests := []struct {
		name string
		in   any
		want any
	}{
		{"nil", nil, nil},
		{"bool", true, true},
		{"int", 42, int64(42)},
		{"negative int", -7, int64(-7)},
		{"uint", uint(9), uint64(9)},
		{"float", 2.5, 2.5},
		{"string", "hello", "hello"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := roundTrip(t, tt.in)
			if got != tt.want {
				t.Errorf("got %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestRoundTrip_Bytes(t *testing.T) {
	in := []byte{0x01, 0x02, 0xff}
	got := roundTrip(t, in)
	b, ok := got.([]byte)
	if !ok {
		t.Fatalf("expected []byte, got %T", got)
	}
	if !reflect.DeepEqual(b, in) {
		t.Errorf("got %v, want %v", b, in)
	}
}

func TestRoundTrip_Time(t *testing.T) {
	in := time.Date(2024, 6, 1, 12, 30, 0, 500, time.UTC)
	got := roundTrip(t, in)
	ts, ok := got.(time.Time)
	if !ok {
		t.Fatalf("expected time.Time, got %T", got)
	}
	if !ts.Equal(in) {
		t.Errorf("got %v, want %v", ts, in)
	}
}

func TestRoundTrip_Containers(t *testing.T) {
	in := map[string]any{
		"items": []any{int64(1), "two", 3.0},
		"meta":  map[string]any{"ok": true},
	}
	got := roundTrip(t, in)
	if !reflect.DeepEqual(got, in) {
		t.Errorf("got %#v, want %#v", got, in)
	}
}

func TestRoundTrip_Struct(t *testing.T) {
	type point struct {
		X int
		Y int

		hidden string
	}
	got := roundTrip(t, point{X: 3, Y: 4, hidden: "nope"})
	want := map[string]any{"X": int64(3), "Y": int64(4)}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestEncode_SharedSliceBecomesRef(t *testing.T) {
	inner := []any{int64(1), int64(2)}
	w, err := Encode([]any{inner, inner})
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	if w.Seq[0].Kind != types.WireSeq {
		t.Fatalf("expected first occurrence to be a definition, got kind %q", w.Seq[0].Kind)
	}
	if w.Seq[1].Kind != types.WireRef {
		t.Fatalf("expected second occurrence to be a back-reference, got kind %q", w.Seq[1].Kind)
	}
	if w.Seq[0].ID == 0 || w.Seq[1].Ref != w.Seq[0].ID {
		t.Errorf("back-reference %d does not target definition %d", w.Seq[1].Ref, w.Seq[0].ID)
	}

	out, err := Decode(w)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	elems := out.([]any)
	left := reflect.ValueOf(elems[0]).Pointer()
	right := reflect.ValueOf(elems[1]).Pointer()
	if left != right {
		t.Error("expected shared slice identity to survive the round trip")
	}
}

func TestRoundTrip_Cycle(t *testing.T) {
	type node struct {
		Name string
		Next *node
	}
	n := &node{Name: "loop"}
	n.Next = n

	got := roundTrip(t, n)
	m, ok := got.(map[string]any)
	if !ok {
		t.Fatalf("expected map, got %T", got)
	}
	next, ok := m["Next"].(map[string]any)
	if !ok {
		t.Fatalf("expected Next to be a map, got %T", m["Next"])
	}
	if reflect.ValueOf(m).Pointer() != reflect.ValueOf(next).Pointer() {
		t.Error("expected cycle to survive the round trip")
	}
}

func TestEncode_Unencodable(t *testing.T) {
	x := 5
	px := &x
	tests := []struct {
		name string
		in   any
	}{
		{"channel", make(chan int)},
		{"function", func() {}},
		{"non-string map key", map[int]string{1: "a"}},
		{"multi-level pointer", &px},
		{"complex", complex(1, 2)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Encode(tt.in)
			if !errors.Is(err, ErrUnencodable) {
				t.Errorf("expected ErrUnencodable, got %v", err)
			}
		})
	}
}

func TestEncode_ErrorCarriesPath(t *testing.T) {
	_, err := Encode(map[string]any{"outer": []any{make(chan int)}})
	if err == nil {
		t.Fatal("expected error")
	}
	var ce *CodecError
	if !errors.As(err, &ce) {
		t.Fatalf("expected CodecError, got %T", err)
	}
	if !strings.Contains(ce.Path, "outer[0]") {
		t.Errorf("expected path to name the offending element, got %q", ce.Path)
	}
}

func TestEncode_SettledDeferredInline(t *testing.T) {
	d := NewDeferred()
	d.Resolve("done")

	w, markers, err := EncodeCollect(d)
	if err != nil {
		t.Fatalf("EncodeCollect failed: %v", err)
	}
	if w.Kind != types.WireString || w.Str != "done" {
		t.Errorf("expected settled deferred to encode inline, got kind %q", w.Kind)
	}
	if !markers.Empty() {
		t.Error("settled deferred must not be reported as a marker")
	}
}

func TestEncode_UnsettledDeferredMarker(t *testing.T) {
	d := NewDeferred()

	w, markers, err := EncodeCollect(map[string]any{"later": d})
	if err != nil {
		t.Fatalf("EncodeCollect failed: %v", err)
	}
	entry := w.Map[0].Value
	if entry.Kind != types.WireDeferred {
		t.Fatalf("expected deferred marker, got kind %q", entry.Kind)
	}
	if _, ok := markers.Deferreds[d.ID()]; !ok {
		t.Error("expected unsettled deferred in markers")
	}
}

func TestEncode_FailedDeferredIsUnencodable(t *testing.T) {
	d := NewDeferred()
	d.Fail(errors.New("boom"))

	_, err := Encode(d)
	if !errors.Is(err, ErrUnencodable) {
		t.Errorf("expected ErrUnencodable for failed deferred, got %v", err)
	}
}

func TestDecodeCollect_DeferredMarker(t *testing.T) {
	w := &types.Wire{Kind: types.WireDeferred, StreamID: "d-1"}
	v, markers, err := DecodeCollect(w)
	if err != nil {
		t.Fatalf("DecodeCollect failed: %v", err)
	}
	d, ok := v.(*Deferred)
	if !ok {
		t.Fatalf("expected *Deferred, got %T", v)
	}
	if d.ID() != "d-1" || d.Settled() {
		t.Errorf("expected unsettled deferred with wire identity, got id=%q settled=%v", d.ID(), d.Settled())
	}
	if _, ok := markers.Deferreds["d-1"]; !ok {
		t.Error("expected deferred in markers")
	}
}

func TestDecodeCollect_StreamMarker(t *testing.T) {
	w := &types.Wire{Kind: types.WireStream, StreamID: "s-1"}
	v, markers, err := DecodeCollect(w)
	if err != nil {
		t.Fatalf("DecodeCollect failed: %v", err)
	}
	ref, ok := v.(*StreamRef)
	if !ok {
		t.Fatalf("expected *StreamRef, got %T", v)
	}
	if ref.ID != "s-1" {
		t.Errorf("expected stream id s-1, got %q", ref.ID)
	}
	if _, ok := markers.Streams["s-1"]; !ok {
		t.Error("expected stream in markers")
	}
}

func TestDecode_DanglingRef(t *testing.T) {
	w := &types.Wire{Kind: types.WireRef, Ref: 99}
	_, err := Decode(w)
	if !errors.Is(err, ErrCodec) {
		t.Errorf("expected ErrCodec for dangling reference, got %v", err)
	}
}

func TestDeferred_ResolveOnce(t *testing.T) {
	d := NewDeferred()
	d.Resolve(1)
	d.Resolve(2)
	d.Fail(errors.New("late"))

	v, err := d.Await(t.Context())
	if err != nil {
		t.Fatalf("Await failed: %v", err)
	}
	if v != 1 {
		t.Errorf("expected first resolution to win, got %v", v)
	}
}
