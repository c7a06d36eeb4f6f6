// Package codec encodes and decodes call arguments and results as wire
// value graphs.
//
// The supported universe is: nil, booleans, integers, floats, strings,
// byte slices, time.Time, slices and arrays, string-keyed maps, structs
// (exported fields), pointers to any of those, and the two special
// markers (*Deferred and *StreamRef). Values outside the universe fail
// encoding with ErrUnencodable rather than silently dropping data.
//
// Shared and cyclic structure is preserved: containers encountered more
// than once are encoded once with a definition ID and referenced
// afterward. Refs always point backward in traversal order, so decoding
// is single-pass.
package codec

import (
	"errors"
	"fmt"
)

// Sentinel errors for codec failure classification.
// Use errors.Is(err, ErrXxx) for typed assertions.
var (
	// ErrUnencodable indicates a value outside the supported universe.
	ErrUnencodable = errors.New("value cannot be encoded")

	// ErrCodec indicates malformed wire data.
	ErrCodec = errors.New("malformed wire value")
)

// CodecError wraps an underlying error with codec classification and the
// path to the offending value within the top-level value.
type CodecError struct {
	// Kind is the sentinel error for classification.
	Kind error
	// Path locates the offending value, e.g. "value.friends[2]".
	Path string
	// Err is the underlying error, if any.
	Err error
}

func (e *CodecError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v: %v", e.Path, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Path, e.Kind)
}

// Unwrap returns the underlying error for errors.Is/As chain traversal.
func (e *CodecError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target sentinel.
func (e *CodecError) Is(target error) bool {
	return errors.Is(e.Kind, target)
}

func newUnencodable(path string, err error) *CodecError {
	return &CodecError{Kind: ErrUnencodable, Path: path, Err: err}
}

func newCodecErr(path string, err error) *CodecError {
	return &CodecError{Kind: ErrCodec, Path: path, Err: err}
}
