// Package carrier represents the ambient per-request environment exposed
// to wrapped function bodies during serving-side execution.
//
// A Carrier is built fresh for each incoming request, bound onto the
// request context with WithCarrier, and released when the request
// completes. Client-side proxy execution never binds one: FromContext
// reporting false is how a body knows it is not running under a request.
//
// Headers and environment are read-only; cookie writes are collected and
// applied to the outgoing response by the dispatch handler.
package carrier

import (
	"context"
	"net/http"
	"sync"
	"sync/atomic"
)

type ctxKey struct{}

// WithCarrier binds c onto ctx for one request's execution lifetime.
func WithCarrier(ctx context.Context, c *Carrier) context.Context {
	return context.WithValue(ctx, ctxKey{}, c)
}

// FromContext returns the carrier bound to ctx, if any.
// Client-side proxy execution and plain background contexts return false.
func FromContext(ctx context.Context) (*Carrier, bool) {
	c, ok := ctx.Value(ctxKey{}).(*Carrier)
	return c, ok
}

// Carrier is the ambient per-call environment: request headers, cookies,
// and a read-only environment mapping. Exclusively owned by one in-flight
// request; never retained past Release.
type Carrier struct {
	mu      sync.Mutex
	headers http.Header
	cookies map[string]string
	environ map[string]string

	// setCookies collects cookie writes for the outgoing response,
	// last write per name wins.
	setCookies []*http.Cookie

	released atomic.Bool
}

// FromRequest builds a carrier from an active request and an environment
// mapping (typically the server's configured passlist values).
func FromRequest(r *http.Request, environ map[string]string) *Carrier {
	cookies := make(map[string]string)
	for _, c := range r.Cookies() {
		cookies[c.Name] = c.Value
	}
	return &Carrier{
		headers: r.Header.Clone(),
		cookies: cookies,
		environ: environ,
	}
}

// Inert returns an empty carrier with no headers, cookies, or
// environment. Useful for invoking bodies outside any request.
func Inert() *Carrier {
	return &Carrier{
		headers: make(http.Header),
		cookies: make(map[string]string),
		environ: make(map[string]string),
	}
}

// Header returns the value of a request header, or "" when absent.
func (c *Carrier) Header(name string) string {
	c.checkLive()
	return c.headers.Get(name)
}

// Headers returns a copy of all request headers.
func (c *Carrier) Headers() http.Header {
	c.checkLive()
	return c.headers.Clone()
}

// Cookie returns the value of a request cookie.
func (c *Carrier) Cookie(name string) (string, bool) {
	c.checkLive()
	c.mu.Lock()
	defer c.mu.Unlock()
	v, ok := c.cookies[name]
	return v, ok
}

// SetCookie records a cookie for the outgoing response and makes it
// visible to subsequent Cookie reads within the same request.
func (c *Carrier) SetCookie(cookie *http.Cookie) {
	c.checkLive()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cookies[cookie.Name] = cookie.Value
	c.setCookies = append(c.setCookies, cookie)
}

// Env returns the value of an environment entry, or "" when absent.
func (c *Carrier) Env(name string) string {
	c.checkLive()
	return c.environ[name]
}

// ApplyTo writes pending cookie mutations to the outgoing response.
// Called by the dispatch handler before the response body is written.
func (c *Carrier) ApplyTo(w http.ResponseWriter) {
	c.checkLive()
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, cookie := range c.setCookies {
		http.SetCookie(w, cookie)
	}
}

// Release marks the carrier's owning request as complete.
// Any access after Release panics: the carrier must never be retained or
// read past the request lifetime, and a loud failure beats silently
// reading another request's state.
func (c *Carrier) Release() {
	c.released.Store(true)
}

// Released reports whether the owning request has completed.
func (c *Carrier) Released() bool {
	return c.released.Load()
}

func (c *Carrier) checkLive() {
	if c.released.Load() {
		panic("carrier: access after request completion")
	}
}
