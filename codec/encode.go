package codec

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/tetherfn/tether/types"
)

// Encode encodes v into a wire value graph.
// Sharing and cycles among containers reachable from v are preserved:
// a container encountered again is emitted as a back-reference to its
// first occurrence, so the emitted graph is always a tree.
//
// Returns ErrUnencodable (via CodecError) for values outside the
// supported universe; the error carries the path to the offending value.
// Multi-level pointers (**T, *any) are outside the universe.
func Encode(v any) (*types.Wire, error) {
	e := &encoder{seen: make(map[refKey]*types.Wire)}
	return e.encode(reflect.ValueOf(v), "value")
}

// refKey identifies a container for sharing detection.
// Slices include length: two slices over the same backing array with
// different lengths are distinct containers.
type refKey struct {
	ptr uintptr
	len int
	typ reflect.Type
}

type encoder struct {
	seen   map[refKey]*types.Wire
	nextID uint32
	// markers, when non-nil, collects unsettled deferred and stream
	// markers encountered during encoding.
	markers *Markers
}

// lookup returns a back-reference node if key was already defined,
// assigning the definition an ID on first reuse.
func (e *encoder) lookup(key refKey) *types.Wire {
	prior, ok := e.seen[key]
	if !ok {
		return nil
	}
	if prior.ID == 0 {
		e.nextID++
		prior.ID = e.nextID
	}
	return &types.Wire{Kind: types.WireRef, Ref: prior.ID}
}

var timeType = reflect.TypeOf(time.Time{})

func (e *encoder) encode(rv reflect.Value, path string) (*types.Wire, error) {
	if !rv.IsValid() {
		return &types.Wire{Kind: types.WireNil}, nil
	}

	for rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return &types.Wire{Kind: types.WireNil}, nil
		}
		rv = rv.Elem()
	}

	// Special markers before generic traversal.
	if rv.CanInterface() {
		switch v := rv.Interface().(type) {
		case *Deferred:
			if v == nil {
				return &types.Wire{Kind: types.WireNil}, nil
			}
			// A settled deferred is indistinguishable from its value;
			// encode it inline. Only unsettled deferreds travel as
			// markers awaiting a resolve frame.
			if v.Settled() {
				value, err := v.Await(context.Background())
				if err != nil {
					return nil, newUnencodable(path, fmt.Errorf("deferred failed: %w", err))
				}
				return e.encode(reflect.ValueOf(value), path)
			}
			if e.markers != nil {
				e.markers.Deferreds[v.ID()] = v
			}
			return &types.Wire{Kind: types.WireDeferred, StreamID: v.ID()}, nil
		case *StreamRef:
			if v == nil {
				return &types.Wire{Kind: types.WireNil}, nil
			}
			if e.markers != nil {
				e.markers.Streams[v.ID] = v
			}
			return &types.Wire{Kind: types.WireStream, StreamID: v.ID}, nil
		case time.Time:
			return &types.Wire{Kind: types.WireTime, Time: v}, nil
		}
	}

	switch rv.Kind() {
	case reflect.Pointer:
		return e.encodePointer(rv, path)

	case reflect.Bool:
		return &types.Wire{Kind: types.WireBool, Bool: rv.Bool()}, nil

	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return &types.Wire{Kind: types.WireInt, Int: rv.Int()}, nil

	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return &types.Wire{Kind: types.WireUint, Uint: rv.Uint()}, nil

	case reflect.Float32, reflect.Float64:
		return &types.Wire{Kind: types.WireFloat, Float: rv.Float()}, nil

	case reflect.String:
		return &types.Wire{Kind: types.WireString, Str: rv.String()}, nil

	case reflect.Slice:
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return &types.Wire{Kind: types.WireBytes, Bytes: rv.Bytes()}, nil
		}
		if rv.IsNil() {
			return &types.Wire{Kind: types.WireNil}, nil
		}
		key := refKey{ptr: rv.Pointer(), len: rv.Len(), typ: rv.Type()}
		if ref := e.lookup(key); ref != nil {
			return ref, nil
		}
		def := &types.Wire{Kind: types.WireSeq}
		e.seen[key] = def
		return e.encodeSeq(rv, def, path)

	case reflect.Array:
		return e.encodeSeq(rv, &types.Wire{Kind: types.WireSeq}, path)

	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, newUnencodable(path, fmt.Errorf("map key type %s is not a string", rv.Type().Key()))
		}
		if rv.IsNil() {
			return &types.Wire{Kind: types.WireNil}, nil
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
		if ref := e.lookup(key); ref != nil {
			return ref, nil
		}
		def := &types.Wire{Kind: types.WireMap}
		e.seen[key] = def
		return e.encodeMap(rv, def, path)

	case reflect.Struct:
		return e.encodeStruct(rv, &types.Wire{Kind: types.WireMap}, path)

	default:
		// chan, func, complex, uintptr, unsafe.Pointer
		return nil, newUnencodable(path, fmt.Errorf("unsupported kind %s", rv.Kind()))
	}
}

// encodePointer encodes one level of indirection. Pointers to structs and
// arrays carry the pointer's identity, which is what makes linked cycles
// (node.Next = node) representable. Pointers to maps and slices defer to
// the container's own identity. Multi-level pointers are rejected.
func (e *encoder) encodePointer(rv reflect.Value, path string) (*types.Wire, error) {
	if rv.IsNil() {
		return &types.Wire{Kind: types.WireNil}, nil
	}

	elem := rv.Elem()
	switch elem.Kind() {
	case reflect.Pointer, reflect.Interface:
		return nil, newUnencodable(path, fmt.Errorf("multi-level pointer %s is not supported", rv.Type()))

	case reflect.Map, reflect.Slice:
		return e.encode(elem, path)

	case reflect.Struct:
		if elem.Type() == timeType {
			return &types.Wire{Kind: types.WireTime, Time: elem.Interface().(time.Time)}, nil
		}
		key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
		if ref := e.lookup(key); ref != nil {
			return ref, nil
		}
		def := &types.Wire{Kind: types.WireMap}
		e.seen[key] = def
		return e.encodeStruct(elem, def, path)

	case reflect.Array:
		key := refKey{ptr: rv.Pointer(), typ: rv.Type()}
		if ref := e.lookup(key); ref != nil {
			return ref, nil
		}
		def := &types.Wire{Kind: types.WireSeq}
		e.seen[key] = def
		return e.encodeSeq(elem, def, path)

	default:
		return e.encode(elem, path)
	}
}

func (e *encoder) encodeSeq(rv reflect.Value, def *types.Wire, path string) (*types.Wire, error) {
	def.Seq = make([]*types.Wire, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		item, err := e.encode(rv.Index(i), fmt.Sprintf("%s[%d]", path, i))
		if err != nil {
			return nil, err
		}
		def.Seq[i] = item
	}
	return def, nil
}

func (e *encoder) encodeMap(rv reflect.Value, def *types.Wire, path string) (*types.Wire, error) {
	keys := make([]string, 0, rv.Len())
	for _, k := range rv.MapKeys() {
		keys = append(keys, k.String())
	}
	// Sorted keys make encoding deterministic; decoded mappings carry no
	// key order either way.
	sort.Strings(keys)

	def.Map = make([]types.WireEntry, 0, len(keys))
	for _, k := range keys {
		kv := reflect.ValueOf(k)
		if kv.Type() != rv.Type().Key() {
			kv = kv.Convert(rv.Type().Key())
		}
		value, err := e.encode(rv.MapIndex(kv), path+"."+k)
		if err != nil {
			return nil, err
		}
		def.Map = append(def.Map, types.WireEntry{Key: k, Value: value})
	}
	return def, nil
}

func (e *encoder) encodeStruct(rv reflect.Value, def *types.Wire, path string) (*types.Wire, error) {
	t := rv.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		value, err := e.encode(rv.Field(i), path+"."+field.Name)
		if err != nil {
			return nil, err
		}
		def.Map = append(def.Map, types.WireEntry{Key: field.Name, Value: value})
	}
	return def, nil
}
