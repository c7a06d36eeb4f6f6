// Package registry assigns wrapped functions stable, version-derived
// identifiers and resolves identifiers back to functions on the serving
// side.
//
// Identifiers are derived from the project version, the declared function
// name, and a source fingerprint, so they are stable across a single
// deployed version and change whenever the function's source moves.
// An identifier mismatch between caller and callee is the only detectable
// version-skew signal; there is no stronger version-checking machinery.
package registry

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"iter"
	"reflect"
	"runtime"
	"sync"

	"github.com/tetherfn/tether/types"
)

// IdentifierLen is the length of a derived identifier in hex characters.
const IdentifierLen = 16

// Sentinel errors for registry operations.
var (
	// ErrNotFound indicates an identifier that resolves to no registered
	// function. Stale clients referencing removed or renamed functions
	// land here; the serving side reports it without crashing.
	ErrNotFound = errors.New("identifier not found")

	// ErrSealed indicates a Register call after Seal.
	ErrSealed = errors.New("registry is sealed")

	// ErrDuplicate indicates two registrations deriving the same identifier.
	ErrDuplicate = errors.New("identifier already registered")
)

// ValueFunc is the body of a single-value wrapped function.
// Args arrive decoded; the per-request carrier, when serving, is on ctx.
type ValueFunc func(ctx context.Context, args []any) (any, error)

// StreamFunc is the body of a sequence-producing wrapped function.
// The returned sequence is pulled one item at a time; yielding an error
// terminates the sequence (partial results already yielded stand).
type StreamFunc func(ctx context.Context, args []any) iter.Seq2[any, error]

// Descriptor describes one wrapped function. Created once at wrap time,
// immutable, and never destroyed for the life of the process.
type Descriptor struct {
	identifier  string
	name        string
	kind        types.FuncKind
	fingerprint string

	value  ValueFunc
	stream StreamFunc
}

// Identifier returns the stable wire identifier.
func (d *Descriptor) Identifier() string { return d.identifier }

// Name returns the declared function name.
func (d *Descriptor) Name() string { return d.name }

// Kind returns the declared return kind.
func (d *Descriptor) Kind() types.FuncKind { return d.kind }

// Fingerprint returns the source fingerprint folded into the identifier.
func (d *Descriptor) Fingerprint() string { return d.fingerprint }

// Value returns the single-value body, or nil for stream descriptors.
func (d *Descriptor) Value() ValueFunc { return d.value }

// Stream returns the sequence-producing body, or nil for value descriptors.
func (d *Descriptor) Stream() StreamFunc { return d.stream }

// Option configures a registration.
type Option func(*regOptions)

type regOptions struct {
	fingerprint string
	kind        types.FuncKind
}

// WithFingerprint overrides the source fingerprint used for identifier
// derivation. Both sides must derive identical fingerprints for the same
// source; the default (the body's entry file:line) satisfies that when
// caller and callee are built from the same source tree.
func WithFingerprint(fp string) Option {
	return func(o *regOptions) { o.fingerprint = fp }
}

// WithKind overrides the declared kind for a ValueFunc registration.
// Used to declare deferred-returning bodies.
func WithKind(kind types.FuncKind) Option {
	return func(o *regOptions) { o.kind = kind }
}

// Registry maps identifiers to descriptors.
// Registration happens at module-initialization time; Seal freezes the
// registry before any requests are served, after which resolution is
// read-only and safe under concurrent access.
type Registry struct {
	mu     sync.RWMutex
	byID   map[string]*Descriptor
	sealed bool
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{byID: make(map[string]*Descriptor)}
}

// Register registers a single-value function under name.
func (r *Registry) Register(name string, fn ValueFunc, opts ...Option) (*Descriptor, error) {
	o := regOptions{kind: types.FuncKindValue}
	for _, opt := range opts {
		opt(&o)
	}
	if o.kind == types.FuncKindStream {
		return nil, fmt.Errorf("register %q: stream kind requires RegisterStream", name)
	}
	desc := &Descriptor{
		name:  name,
		kind:  o.kind,
		value: fn,
	}
	return r.add(desc, reflect.ValueOf(fn), o.fingerprint)
}

// RegisterStream registers a sequence-producing function under name.
func (r *Registry) RegisterStream(name string, fn StreamFunc, opts ...Option) (*Descriptor, error) {
	o := regOptions{kind: types.FuncKindStream}
	for _, opt := range opts {
		opt(&o)
	}
	desc := &Descriptor{
		name:   name,
		kind:   types.FuncKindStream,
		stream: fn,
	}
	return r.add(desc, reflect.ValueOf(fn), o.fingerprint)
}

func (r *Registry) add(desc *Descriptor, fn reflect.Value, fingerprint string) (*Descriptor, error) {
	if fingerprint == "" {
		fingerprint = defaultFingerprint(fn)
	}
	desc.fingerprint = fingerprint
	desc.identifier = DeriveIdentifier(desc.name, fingerprint)

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return nil, fmt.Errorf("register %q: %w", desc.name, ErrSealed)
	}
	if _, exists := r.byID[desc.identifier]; exists {
		return nil, fmt.Errorf("register %q: %w", desc.name, ErrDuplicate)
	}
	r.byID[desc.identifier] = desc
	return desc, nil
}

// Resolve returns the descriptor for an identifier.
// Returns ErrNotFound when the identifier is unknown; callers must treat
// that as the version-skew signal and never fall back to another function.
func (r *Registry) Resolve(identifier string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	desc, ok := r.byID[identifier]
	if !ok {
		return nil, fmt.Errorf("resolve %q: %w", identifier, ErrNotFound)
	}
	return desc, nil
}

// Seal freezes the registry. Call once after all registrations, before
// serving. Registration after Seal fails with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	r.sealed = true
	r.mu.Unlock()
}

// Sealed reports whether the registry is frozen.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Len returns the number of registered descriptors.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}

// Identifiers returns all registered identifiers with their names.
func (r *Registry) Identifiers() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make(map[string]string, len(r.byID))
	for id, desc := range r.byID {
		out[id] = desc.name
	}
	return out
}

// DeriveIdentifier derives the stable identifier for a name and source
// fingerprint. The project version is folded in, so a version bump
// invalidates every identifier at once.
func DeriveIdentifier(name, fingerprint string) string {
	h := sha256.New()
	h.Write([]byte(types.Version))
	h.Write([]byte{0})
	h.Write([]byte(name))
	h.Write([]byte{0})
	h.Write([]byte(fingerprint))
	return hex.EncodeToString(h.Sum(nil))[:IdentifierLen]
}

// defaultFingerprint fingerprints a function body by its entry file:line.
// Moving or editing the function changes the fingerprint, which is
// deliberately conservative: unrelated edits above the function also
// shift it, and a shifted fingerprint only ever causes a NotFound, never
// a call to the wrong body.
func defaultFingerprint(fn reflect.Value) string {
	pc := fn.Pointer()
	f := runtime.FuncForPC(pc)
	if f == nil {
		return "unknown"
	}
	file, line := f.FileLine(pc)
	return fmt.Sprintf("%s:%d", file, line)
}
