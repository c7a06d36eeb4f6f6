package codec

import (
	"reflect"

	"github.com/tetherfn/tether/types"
)

// Markers collects the special markers embedded in one encoded or
// decoded value graph, keyed by wire ID. The bridge uses them to pair
// deferred markers with their resolve frames and stream markers with
// their chunk streams.
type Markers struct {
	Deferreds map[string]*Deferred
	Streams   map[string]*StreamRef
}

func newMarkers() *Markers {
	return &Markers{
		Deferreds: make(map[string]*Deferred),
		Streams:   make(map[string]*StreamRef),
	}
}

// Empty reports whether the graph contained no markers.
func (m *Markers) Empty() bool {
	return len(m.Deferreds) == 0 && len(m.Streams) == 0
}

// EncodeCollect encodes v like Encode and additionally reports the
// unsettled deferred and stream markers embedded in the graph.
// Settled deferreds encode inline as their resolved value and are not
// reported.
func EncodeCollect(v any) (*types.Wire, *Markers, error) {
	e := &encoder{seen: make(map[refKey]*types.Wire), markers: newMarkers()}
	w, err := e.encode(reflect.ValueOf(v), "value")
	if err != nil {
		return nil, nil, err
	}
	return w, e.markers, nil
}

// DecodeCollect decodes w like Decode and additionally reports the
// deferred and stream markers embedded in the graph.
func DecodeCollect(w *types.Wire) (any, *Markers, error) {
	d := &decoder{refs: make(map[uint32]any), markers: newMarkers()}
	v, err := d.decode(w, "value")
	if err != nil {
		return nil, nil, err
	}
	return v, d.markers, nil
}
