// Package transport issues invocation envelopes to a dispatch endpoint
// over HTTP and hands back buffered or streamed response bodies.
package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tetherfn/tether/iox"
	"github.com/tetherfn/tether/log"
	"github.com/tetherfn/tether/types"
	"github.com/tetherfn/tether/wire"
)

// ErrTransport indicates a network-level failure reaching the endpoint.
var ErrTransport = errors.New("transport failure")

const (
	defaultRetries  = 3
	defaultBaseWait = 100 * time.Millisecond
	defaultTimeout  = 30 * time.Second
)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

// WithRoute overrides the dispatch route path.
func WithRoute(route string) Option {
	return func(c *Client) { c.route = route }
}

// WithRetries sets the attempt count for buffered calls.
func WithRetries(n int) Option {
	return func(c *Client) { c.retries = n }
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// Client posts invocation envelopes to one dispatch endpoint.
// Safe for concurrent use.
type Client struct {
	endpoint *url.URL
	route    string
	http     *http.Client
	retries  int
	baseWait time.Duration
	logger   *log.Logger
}

// NewClient creates a client for the given endpoint base URL.
func NewClient(endpoint string, opts ...Option) (*Client, error) {
	u, err := url.Parse(endpoint)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint %q: %w", endpoint, err)
	}
	c := &Client{
		endpoint: u,
		route:    types.DefaultDispatchRoute,
		http:     &http.Client{Timeout: defaultTimeout},
		retries:  defaultRetries,
		baseWait: defaultBaseWait,
		logger:   log.Nop(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Invoke posts env in buffered mode and decodes the response envelope.
// Transient failures (connection refused/reset, EOF) are retried with
// exponential backoff; arguments were fully materialized before the
// first attempt, so retrying never re-executes caller code.
func (c *Client) Invoke(ctx context.Context, env *types.InvocationEnvelope) (*types.ResponseEnvelope, error) {
	body, err := wire.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}

	var lastErr error
	for attempt := 0; attempt < c.retries; attempt++ {
		if attempt > 0 {
			wait := c.baseWait * time.Duration(1<<(attempt-1))
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrTransport, ctx.Err())
			case <-time.After(wait):
			}
		}

		resp, err := c.post(ctx, env, body, types.ModeBuffered)
		if err != nil {
			lastErr = err
			if isRetryable(err) {
				c.logger.Debug("invoke attempt failed, retrying", map[string]any{
					"attempt": attempt + 1,
					"error":   err.Error(),
				})
				continue
			}
			return nil, fmt.Errorf("%w: %w", ErrTransport, err)
		}

		envelope, err := c.decodeBuffered(resp)
		if err != nil {
			return nil, err
		}
		return envelope, nil
	}

	return nil, fmt.Errorf("%w: %d attempts failed: %w", ErrTransport, c.retries, lastErr)
}

// InvokeStream posts env in stream mode and returns the framed response
// body. The caller owns the body; closing it tears down the transport
// and cancels production on the serving side. Stream requests are never
// retried once the response headers have arrived.
func (c *Client) InvokeStream(ctx context.Context, env *types.InvocationEnvelope) (io.ReadCloser, error) {
	body, err := wire.EncodeEnvelope(env)
	if err != nil {
		return nil, err
	}

	// The client-wide timeout covers reading the whole body, which would
	// sever long-lived streams. Streams are bounded by ctx instead.
	hc := *c.http
	hc.Timeout = 0
	resp, err := c.postWith(ctx, &hc, env, body, types.ModeStream)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTransport, err)
	}

	if resp.Header.Get(types.HeaderMode) != types.ModeStream {
		// The serving side fell back to a buffered error envelope
		// (unknown identifier, malformed envelope).
		envelope, err := c.decodeBuffered(resp)
		if err != nil {
			return nil, err
		}
		if envelope.Error != nil {
			return nil, envelope.Error.Err()
		}
		return nil, fmt.Errorf("%w: expected stream response", ErrTransport)
	}

	if resp.StatusCode != http.StatusOK {
		iox.DrainClose(resp.Body)
		return nil, fmt.Errorf("%w: received status code %d", ErrTransport, resp.StatusCode)
	}
	return resp.Body, nil
}

// post issues a single POST attempt with a fresh request.
func (c *Client) post(ctx context.Context, env *types.InvocationEnvelope, body []byte, mode string) (*http.Response, error) {
	return c.postWith(ctx, c.http, env, body, mode)
}

func (c *Client) postWith(ctx context.Context, hc *http.Client, env *types.InvocationEnvelope, body []byte, mode string) (*http.Response, error) {
	u := *c.endpoint
	u.Path = strings.TrimRight(u.Path, "/") + c.route

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", types.ContentTypeMsgpack)
	req.Header.Set(types.HeaderMode, mode)
	req.Header.Set(types.HeaderCallID, env.CallID)
	req.Header.Set(types.HeaderWireVersion, types.WireVersion)

	return hc.Do(req)
}

// decodeBuffered reads and decodes a buffered response envelope.
// Error envelopes arrive with non-2xx status codes and are decoded the
// same way; status codes without a wire body are transport failures.
func (c *Client) decodeBuffered(resp *http.Response) (*types.ResponseEnvelope, error) {
	defer iox.DrainClose(resp.Body)

	if !strings.HasPrefix(resp.Header.Get("Content-Type"), types.ContentTypeMsgpack) {
		return nil, fmt.Errorf("%w: received status code %d", ErrTransport, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read response: %w", ErrTransport, err)
	}
	return wire.DecodeResponse(data)
}

// isRetryable checks if an error is transient and worth retrying.
func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	errStr := err.Error()
	if errors.Is(err, io.EOF) || strings.Contains(errStr, "EOF") {
		return true
	}
	return strings.Contains(errStr, "connection reset") ||
		strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "broken pipe")
}
