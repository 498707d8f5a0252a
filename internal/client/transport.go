package client

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// Response is the raw outcome of one transport round trip.
type Response struct {
	Status int
	Header http.Header
	Body   []byte
}

// Transport performs the two request shapes generated methods use. url is
// relative to whatever base the transport is bound to.
type Transport interface {
	Get(ctx context.Context, url string, header http.Header) (*Response, error)
	Post(ctx context.Context, url string, body []byte, header http.Header) (*Response, error)
}

// maxResponseBytes bounds how much of a response body is buffered.
const maxResponseBytes = 64 << 20

// ErrResponseTooLarge is returned when a response body exceeds the transport's limit.
var ErrResponseTooLarge = errors.New("response body too large")

// HTTPTransport is a Transport over net/http bound to BaseURL.
type HTTPTransport struct {
	BaseURL    string
	HTTPClient *http.Client
	// MaxResponseBytes caps the buffered body; zero means 64 MiB.
	MaxResponseBytes int64
}

// NewHTTPTransport returns a transport for baseURL with the given timeout.
// A zero timeout leaves requests bounded only by their context.
func NewHTTPTransport(baseURL string, timeout time.Duration) *HTTPTransport {
	return &HTTPTransport{BaseURL: baseURL, HTTPClient: &http.Client{Timeout: timeout}}
}

func (t *HTTPTransport) Get(ctx context.Context, url string, header http.Header) (*Response, error) {
	return t.do(ctx, http.MethodGet, url, nil, header)
}

func (t *HTTPTransport) Post(ctx context.Context, url string, body []byte, header http.Header) (*Response, error) {
	return t.do(ctx, http.MethodPost, url, body, header)
}

func (t *HTTPTransport) do(ctx context.Context, method, url string, body []byte, header http.Header) (*Response, error) {
	var rd io.Reader
	if body != nil {
		rd = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, t.resolve(url), rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range header {
		req.Header.Del(k)
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	hc := t.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	resp, err := hc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	limit := t.MaxResponseBytes
	if limit <= 0 {
		limit = maxResponseBytes
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("read response: %w (limit %d bytes)", ErrResponseTooLarge, limit)
	}
	return &Response{Status: resp.StatusCode, Header: resp.Header, Body: data}, nil
}

func (t *HTTPTransport) resolve(url string) string {
	if t.BaseURL == "" || strings.Contains(url, "://") {
		return url
	}
	return strings.TrimRight(t.BaseURL, "/") + "/" + strings.TrimLeft(url, "/")
}
