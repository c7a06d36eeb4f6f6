// Package bridge wraps registered functions into dual-mode proxies that
// execute locally or dispatch across the network boundary, transparently
// to the call site.
//
// This file defines the caller-facing error taxonomy. Failures surface
// through five kinds, each testable with a helper below:
//
//   - NotFound: the identifier resolves to no function on the serving
//     side (the version-skew symptom)
//   - Unencodable: a value outside the supported universe
//   - CodecFailure: malformed wire data
//   - TransportFailure: network-level failure reaching the endpoint
//   - RemoteFailure: the wrapped body itself failed; the original error
//     text is reconstructed when it was encodable
package bridge

import (
	"errors"

	"github.com/tetherfn/tether/codec"
	"github.com/tetherfn/tether/registry"
	"github.com/tetherfn/tether/stream"
	"github.com/tetherfn/tether/transport"
	"github.com/tetherfn/tether/types"
)

// ErrRemote indicates the wrapped body itself failed.
var ErrRemote = errors.New("remote failure")

// remoteKind extracts the wire error kind when err carries one.
func remoteKind(err error) (types.ErrorKind, bool) {
	var re *types.RemoteError
	if errors.As(err, &re) {
		return re.Kind, true
	}
	return "", false
}

// IsNotFound reports whether err is an unresolvable-identifier failure,
// locally or as reported by the serving side.
func IsNotFound(err error) bool {
	if errors.Is(err, registry.ErrNotFound) {
		return true
	}
	k, ok := remoteKind(err)
	return ok && k == types.ErrorKindNotFound
}

// IsUnencodable reports whether err is a supported-universe violation.
func IsUnencodable(err error) bool {
	if errors.Is(err, codec.ErrUnencodable) {
		return true
	}
	k, ok := remoteKind(err)
	return ok && k == types.ErrorKindUnencodable
}

// IsCodecFailure reports whether err is a malformed-wire-data failure.
func IsCodecFailure(err error) bool {
	if errors.Is(err, codec.ErrCodec) {
		return true
	}
	k, ok := remoteKind(err)
	return ok && k == types.ErrorKindCodec
}

// IsTransportFailure reports whether err is a network-level failure,
// including a stream interrupted mid-flight.
func IsTransportFailure(err error) bool {
	if errors.Is(err, transport.ErrTransport) || errors.Is(err, stream.ErrInterrupted) {
		return true
	}
	k, ok := remoteKind(err)
	return ok && k == types.ErrorKindTransport
}

// IsRemoteFailure reports whether err is a failure of the wrapped body
// itself, as opposed to the machinery around it.
func IsRemoteFailure(err error) bool {
	if errors.Is(err, ErrRemote) {
		return true
	}
	k, ok := remoteKind(err)
	return ok && k == types.ErrorKindRemote
}

// KindOf classifies err into its wire error kind. Unrecognized errors
// classify as remote failures: from the caller's seat, an unknown error
// out of a call is the body failing.
func KindOf(err error) types.ErrorKind {
	switch {
	case IsNotFound(err):
		return types.ErrorKindNotFound
	case IsUnencodable(err):
		return types.ErrorKindUnencodable
	case IsCodecFailure(err):
		return types.ErrorKindCodec
	case IsTransportFailure(err):
		return types.ErrorKindTransport
	default:
		return types.ErrorKindRemote
	}
}

// Descriptor builds the wire descriptor for err, classified by kind.
func Descriptor(err error) *types.ErrorDescriptor {
	return types.NewErrorDescriptor(KindOf(err), err)
}
