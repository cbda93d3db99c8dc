// Package client is a typed HTTP client for the ident API.
//
// Reads are retried on connection errors and 5xx responses; writes are sent
// once. Failures come back as *ident.Error values classified from the HTTP
// status, so callers can use errors.Is with ident.ErrNotFound and friends
// exactly as they would against an in-process Resolver.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/xraph/ident"
	"github.com/xraph/ident/principal"
)

// leveledSlog adapts slog to retryablehttp, logging request errors at Warn
// because they are retried.
type leveledSlog struct {
	inner *slog.Logger
}

func (l leveledSlog) Error(msg string, keysAndValues ...any) { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Warn(msg string, keysAndValues ...any)  { l.inner.Warn(msg, keysAndValues...) }
func (l leveledSlog) Info(msg string, keysAndValues ...any)  { l.inner.Info(msg, keysAndValues...) }
func (l leveledSlog) Debug(msg string, keysAndValues ...any) { l.inner.Debug(msg, keysAndValues...) }

// Option configures a Client.
type Option func(*Client)

// WithMaxRetries sets the maximum number of retries for reads.
func WithMaxRetries(n int) Option {
	return func(c *Client) { c.http.RetryMax = n }
}

// WithRetryWait sets the minimum and maximum wait between retries.
func WithRetryWait(waitMin, waitMax time.Duration) Option {
	return func(c *Client) {
		c.http.RetryWaitMin = waitMin
		c.http.RetryWaitMax = waitMax
	}
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.http.HTTPClient.Timeout = d }
}

// WithLogger sets the logger used for retry diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.http.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: l}) }
}

// WithTransport sets a custom transport.
func WithTransport(rt http.RoundTripper) Option {
	return func(c *Client) { c.http.HTTPClient.Transport = rt }
}

// Client talks to an ident server.
type Client struct {
	base *url.URL
	http *retryablehttp.Client
}

// New creates a client for the server at baseURL, e.g.
// "http://localhost:8080" or "http://localhost:8080/ident".
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("ident/client: parse base url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("ident/client: base url %q needs a scheme and host", baseURL)
	}

	rc := retryablehttp.NewClient()
	rc.RetryMax = 3
	rc.RetryWaitMin = 200 * time.Millisecond
	rc.RetryWaitMax = 5 * time.Second
	rc.HTTPClient.Timeout = 30 * time.Second
	rc.Logger = retryablehttp.LeveledLogger(leveledSlog{inner: slog.Default().With("subsystem", "ident.client")})
	rc.CheckRetry = readOnlyRetryPolicy
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{base: u, http: rc}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Users returns the client for user principals.
func (c *Client) Users() *KindClient { return &KindClient{c: c, kind: principal.KindUser, path: "users"} }

// Groups returns the client for group principals.
func (c *Client) Groups() *KindClient { return &KindClient{c: c, kind: principal.KindGroup, path: "groups"} }

// Kind returns the client for kind.
func (c *Client) Kind(kind principal.Kind) (*KindClient, error) {
	switch kind {
	case principal.KindUser:
		return c.Users(), nil
	case principal.KindGroup:
		return c.Groups(), nil
	default:
		return nil, fmt.Errorf("%w: unknown principal kind %q", ident.ErrValidation, kind)
	}
}

type noRetryKey struct{}

// readOnlyRetryPolicy retries GETs under the default policy and never
// retries a request marked as a write.
func readOnlyRetryPolicy(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Value(noRetryKey{}) != nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// do sends one request and decodes a JSON response into out when it is
// non-nil. Non-2xx responses become *ident.Error.
func (c *Client) do(ctx context.Context, kind principal.Kind, op, method, path string, query url.Values, body, out any) error {
	u := *c.base
	u.Path += path
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}

	var payload io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return &ident.Error{Op: op, Kind: kind, Class: ident.ErrValidation, Err: err}
		}
		payload = bytes.NewReader(buf)
	}
	if method != http.MethodGet {
		ctx = context.WithValue(ctx, noRetryKey{}, true)
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u.String(), payload)
	if err != nil {
		return &ident.Error{Op: op, Kind: kind, Class: ident.ErrValidation, Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &ident.Error{Op: op, Kind: kind, Class: ident.ErrStorage, Err: err}
	}
	defer resp.Body.Close() //nolint:errcheck // body close error carries nothing actionable

	if resp.StatusCode >= http.StatusBadRequest {
		return statusError(kind, op, resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &ident.Error{Op: op, Kind: kind, Class: ident.ErrStorage, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError classifies a failed response. The server answers both
// validation and conflict failures with 400; the message tells them apart.
func statusError(kind principal.Kind, op string, resp *http.Response) error {
	msg := errorMessage(resp)

	var class error
	switch {
	case resp.StatusCode == http.StatusNotFound:
		class = ident.ErrNotFound
	case resp.StatusCode == http.StatusConflict:
		class = ident.ErrConflict
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(msg, ": "+strings.TrimPrefix(ident.ErrConflict.Error(), "ident: ")):
		class = ident.ErrConflict
	case resp.StatusCode < http.StatusInternalServerError:
		class = ident.ErrValidation
	default:
		class = ident.ErrStorage
	}
	return &ident.Error{
		Op:    op,
		Kind:  kind,
		Class: class,
		Err:   fmt.Errorf("http %d: %s", resp.StatusCode, msg),
	}
}

func errorMessage(resp *http.Response) string {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(raw) == 0 {
		return http.StatusText(resp.StatusCode)
	}
	var body struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if json.Unmarshal(raw, &body) == nil {
		switch {
		case body.Message != "":
			return body.Message
		case body.Error != "":
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
