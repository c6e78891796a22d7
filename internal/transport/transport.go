// Package transport performs the agent's HTTPS JSON exchanges with the
// collector. Every server interaction flows through (*Client).Post, which
// never panics past its boundary: all failures come back as *Error.
package transport

import (
	"bytes"
	"context"
	"crypto/tls"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/shelteragent/agent/internal/models"
)

const (
	// RequestTimeout bounds every request, including TLS handshake and body read.
	RequestTimeout = 10 * time.Second

	maxResponseBodyBytes = 64 * 1024
)

var (
	// ErrInvalidRequest is returned when a request body fails schema validation.
	ErrInvalidRequest = errors.New("invalid request body")

	// ErrStatus is returned for non-2xx responses.
	ErrStatus = errors.New("unexpected response status")

	// ErrDecode is returned when the response body is not a valid JSON object.
	ErrDecode = errors.New("invalid response body")
)

// Error describes a failed Post. Ack is set when a non-2xx response still
// carried a decodable body, so callers can log the server's message.
type Error struct {
	Endpoint   string
	StatusCode int
	Ack        *models.Ack
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("POST %s: status %d: %v", e.Endpoint, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("POST %s: %v", e.Endpoint, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// Options configures a Client.
type Options struct {
	// VerifySSL enables standard certificate validation. Disabling it is an
	// explicit opt-in from configuration.
	VerifySSL bool
	Timeout   time.Duration
}

// Client sends JSON POST requests and decodes the collector's Ack reply.
type Client struct {
	http     *http.Client
	validate *validator.Validate
}

// New creates a Client with its own transport honoring opts.
func New(opts Options) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = RequestTimeout
	}

	tr := http.DefaultTransport.(*http.Transport).Clone()
	tr.TLSClientConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	if !opts.VerifySSL {
		tr.TLSClientConfig.InsecureSkipVerify = true //nolint:gosec // opt-in via server.verify_ssl
	}

	return NewWithHTTPClient(&http.Client{
		Timeout:   timeout,
		Transport: tr,
	})
}

// NewWithHTTPClient wraps an existing http.Client.
func NewWithHTTPClient(hc *http.Client) *Client {
	return &Client{
		http:     hc,
		validate: validator.New(),
	}
}

// Post sends body as JSON to url with the given extra headers and decodes the
// response. Content-Type is always application/json.
func (c *Client) Post(ctx context.Context, url string, body any, headers map[string]string) (*models.Ack, error) {
	if err := c.validate.Struct(body); err != nil {
		var invalid *validator.InvalidValidationError
		if !errors.As(err, &invalid) {
			return nil, &Error{Endpoint: url, Err: fmt.Errorf("%w: %v", ErrInvalidRequest, err)}
		}
	}

	data, err := json.Marshal(body)
	if err != nil {
		return nil, &Error{Endpoint: url, Err: fmt.Errorf("marshal request: %w", err)}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Endpoint: url, Err: fmt.Errorf("create request: %w", err)}
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &Error{Endpoint: url, Err: fmt.Errorf("send request: %w", err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBodyBytes))
	if err != nil {
		return nil, &Error{Endpoint: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("read response: %w", err)}
	}

	var ack models.Ack
	decodeErr := json.Unmarshal(raw, &ack)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		e := &Error{Endpoint: url, StatusCode: resp.StatusCode, Err: ErrStatus}
		if decodeErr == nil {
			e.Ack = &ack
		}
		return nil, e
	}
	if decodeErr != nil {
		return nil, &Error{Endpoint: url, StatusCode: resp.StatusCode, Err: fmt.Errorf("%w: %v", ErrDecode, decodeErr)}
	}
	return &ack, nil
}
