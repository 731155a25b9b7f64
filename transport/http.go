package transport

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"net/url"

	"github.com/google/uuid"
	"github.com/juju/errors"
	"github.com/rs/zerolog"
)

// DefaultMaxBodySize caps request and response bodies (10 MiB).
const DefaultMaxBodySize = 10 * 1024 * 1024

// HTTPTransport POSTs each body to one URL and returns the response body.
// Connection pooling and reuse belong to the underlying http.Client.
type HTTPTransport struct {
	target              string
	client              *http.Client
	header              http.Header
	maxRequestBodySize  int64
	maxResponseBodySize int64
	log                 zerolog.Logger
}

type HTTPOption func(*HTTPTransport)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(t *HTTPTransport) { t.client = c }
}

// WithMaxBodySize sets both the request and response body limits.
func WithMaxBodySize(n int64) HTTPOption {
	return func(t *HTTPTransport) {
		if n > 0 {
			t.maxRequestBodySize = n
			t.maxResponseBodySize = n
		}
	}
}

// WithHeader adds a header sent with every request.
func WithHeader(key, value string) HTTPOption {
	return func(t *HTTPTransport) { t.header.Add(key, value) }
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(log zerolog.Logger) HTTPOption {
	return func(t *HTTPTransport) { t.log = log }
}

// NewHTTP builds a transport for an http or https target URL.
func NewHTTP(target string, opts ...HTTPOption) (*HTTPTransport, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, errors.Annotatef(err, "parsing target %q", target)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, errors.NotValidf("target scheme %q", u.Scheme)
	}
	t := &HTTPTransport{
		target:              target,
		client:              &http.Client{},
		header:              make(http.Header),
		maxRequestBodySize:  DefaultMaxBodySize,
		maxResponseBodySize: DefaultMaxBodySize,
		log:                 zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Send posts a notification and discards whatever body comes back.
func (t *HTTPTransport) Send(ctx context.Context, body []byte) error {
	resp, err := t.do(ctx, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, t.maxResponseBodySize))
	return nil
}

// SendAndReadBody posts a call or batch and returns the response body.
func (t *HTTPTransport) SendAndReadBody(ctx context.Context, body []byte) ([]byte, error) {
	resp, err := t.do(ctx, body)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, t.maxResponseBodySize+1))
	if err != nil {
		return nil, errors.Annotate(err, "reading response body")
	}
	if int64(len(data)) > t.maxResponseBodySize {
		return nil, ErrResponseTooLarge
	}
	return data, nil
}

func (t *HTTPTransport) do(ctx context.Context, body []byte) (*http.Response, error) {
	if int64(len(body)) > t.maxRequestBodySize {
		return nil, ErrRequestTooLarge
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.target, bytes.NewReader(body))
	if err != nil {
		return nil, errors.Trace(err)
	}
	for k, vs := range t.header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	requestID := uuid.NewString()
	req.Header.Set("X-Request-Id", requestID)

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, err
	}
	t.log.Trace().Str("request_id", requestID).Int("status", resp.StatusCode).Msg("http exchange")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		defer resp.Body.Close()
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(bytes.TrimSpace(snippet))}
	}
	return resp, nil
}

// Close drops idle keep-alive connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	return nil
}
