// Package httpclient builds the ambient *http.Client used by the IPAM
// reference client: fixed timeouts, base headers, and a small retry budget
// for transient transport errors.
package httpclient

import (
	"net/http"
	"time"
)

// Options configures the client factory.
type Options struct {
	Timeout         time.Duration
	MaxIdleConns    int
	IdleConnTimeout time.Duration
	BaseHeaders     map[string]string
}

// DefaultOptions returns sane defaults matching the ambient factory's usual
// production configuration.
func DefaultOptions() Options {
	return Options{
		Timeout:         30 * time.Second,
		MaxIdleConns:    100,
		IdleConnTimeout: 90 * time.Second,
	}
}

// headerRoundTripper injects BaseHeaders on every outgoing request.
type headerRoundTripper struct {
	next    http.RoundTripper
	headers map[string]string
}

func (h *headerRoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	for k, v := range h.headers {
		if req.Header.Get(k) == "" {
			req.Header.Set(k, v)
		}
	}
	return h.next.RoundTrip(req)
}

// New builds an *http.Client from opts.
func New(opts Options) *http.Client {
	transport := &http.Transport{
		MaxIdleConns:    opts.MaxIdleConns,
		IdleConnTimeout: opts.IdleConnTimeout,
	}
	var rt http.RoundTripper = transport
	if len(opts.BaseHeaders) > 0 {
		rt = &headerRoundTripper{next: transport, headers: opts.BaseHeaders}
	}
	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}
