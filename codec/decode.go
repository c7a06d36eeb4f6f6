package codec

import (
	"fmt"

	"github.com/tetherfn/tether/types"
)

// Decode reconstructs a value from a wire value graph.
//
// Primitives normalize to their widest Go representation: integers to
// int64, unsigned integers to uint64, floats to float64. Mappings decode
// to map[string]any and sequences to []any. Shared and cyclic structure
// is reconstructed exactly as the encoder preserved it.
//
// Deferred markers decode to an unresolved *Deferred carrying the wire
// deferred ID; stream markers decode to a *StreamRef. Resolving either
// against its frame stream is the bridge's responsibility.
//
// Returns ErrCodec (via CodecError) for malformed wire data, including
// refs to definitions that never appeared.
func Decode(w *types.Wire) (any, error) {
	d := &decoder{refs: make(map[uint32]any)}
	return d.decode(w, "value")
}

type decoder struct {
	refs map[uint32]any
	// markers, when non-nil, collects deferred and stream markers
	// encountered during decoding.
	markers *Markers
}

func (d *decoder) decode(w *types.Wire, path string) (any, error) {
	if w == nil {
		return nil, newCodecErr(path, fmt.Errorf("missing wire node"))
	}

	switch w.Kind {
	case types.WireNil:
		return nil, nil

	case types.WireBool:
		return d.leaf(w, w.Bool), nil

	case types.WireInt:
		return d.leaf(w, w.Int), nil

	case types.WireUint:
		return d.leaf(w, w.Uint), nil

	case types.WireFloat:
		return d.leaf(w, w.Float), nil

	case types.WireString:
		return d.leaf(w, w.Str), nil

	case types.WireBytes:
		return d.leaf(w, w.Bytes), nil

	case types.WireTime:
		return d.leaf(w, w.Time), nil

	case types.WireSeq:
		out := make([]any, len(w.Seq))
		// Register before filling so cyclic refs resolve to this slice.
		if w.ID != 0 {
			d.refs[w.ID] = out
		}
		for i, item := range w.Seq {
			v, err := d.decode(item, fmt.Sprintf("%s[%d]", path, i))
			if err != nil {
				return nil, err
			}
			out[i] = v
		}
		return out, nil

	case types.WireMap:
		out := make(map[string]any, len(w.Map))
		if w.ID != 0 {
			d.refs[w.ID] = out
		}
		for _, entry := range w.Map {
			v, err := d.decode(entry.Value, path+"."+entry.Key)
			if err != nil {
				return nil, err
			}
			out[entry.Key] = v
		}
		return out, nil

	case types.WireRef:
		target, ok := d.refs[w.Ref]
		if !ok {
			// Refs always point backward; a forward or dangling ref
			// means the wire data is malformed.
			return nil, newCodecErr(path, fmt.Errorf("ref %d has no definition", w.Ref))
		}
		return target, nil

	case types.WireDeferred:
		if w.StreamID == "" {
			return nil, newCodecErr(path, fmt.Errorf("deferred marker without an id"))
		}
		def := newDeferredWithID(w.StreamID)
		if d.markers != nil {
			d.markers.Deferreds[def.ID()] = def
		}
		return d.leaf(w, def), nil

	case types.WireStream:
		if w.StreamID == "" {
			return nil, newCodecErr(path, fmt.Errorf("stream marker without an id"))
		}
		ref := &StreamRef{ID: w.StreamID}
		if d.markers != nil {
			d.markers.Streams[ref.ID] = ref
		}
		return d.leaf(w, ref), nil

	default:
		return nil, newCodecErr(path, fmt.Errorf("unknown wire kind %q", w.Kind))
	}
}

// leaf registers a decoded non-container definition when it carries an ID.
func (d *decoder) leaf(w *types.Wire, v any) any {
	if w.ID != 0 {
		d.refs[w.ID] = v
	}
	return v
}
