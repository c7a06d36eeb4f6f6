// Package iox provides I/O helpers for resource cleanup and body
// handling shared by the transport and dispatch layers.
package iox

import (
	"io"
	"net/http"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(body)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup and b.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(srv))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls where errors are unactionable:
//
//	defer iox.DiscardErr(enc.Flush)
func DiscardErr(fn func() error) { _ = fn() }

// DrainClose drains a response body before closing it, allowing the
// underlying connection to be reused instead of torn down.
func DrainClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, body)
	_ = body.Close()
}

// FlushFunc returns a flush callback for w when it supports flushing,
// or nil otherwise. Chunked response writers flush after each frame so
// items reach the consumer as they are produced.
func FlushFunc(w io.Writer) func() {
	if f, ok := w.(http.Flusher); ok {
		return f.Flush
	}
	return nil
}
