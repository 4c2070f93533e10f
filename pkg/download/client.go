package download

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// Client performs HTTP requests. *http.Client satisfies it.
type Client interface {
	Do(req *http.Request) (*http.Response, error)
}

// Options configures NewClient.
type Options struct {
	// Timeout bounds a whole request including reading the body.
	Timeout time.Duration
	// RateLimit caps download throughput in bytes per second; 0 is unlimited.
	RateLimit int
}

// Shared HTTP transport tunings, reusing connections across packages.
var defaultTransport = &http.Transport{
	Proxy:                 http.ProxyFromEnvironment,
	MaxIdleConns:          100,
	MaxIdleConnsPerHost:   100,
	IdleConnTimeout:       90 * time.Second,
	TLSHandshakeTimeout:   10 * time.Second,
	ExpectContinueTimeout: 1 * time.Second,
	ForceAttemptHTTP2:     true,
	DialContext: (&net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}).DialContext,
}

// NewClient returns a client on a clone of the shared transport. file://
// URLs are served from the local filesystem, which is how local channels
// are addressed.
func NewClient(opts Options) *http.Client {
	transport := defaultTransport.Clone()
	transport.RegisterProtocol("file", http.NewFileTransport(http.Dir("/")))

	var rt http.RoundTripper = transport
	if opts.RateLimit > 0 {
		rt = &limitedTransport{
			next:    transport,
			limiter: rate.NewLimiter(rate.Limit(opts.RateLimit), burstFor(opts.RateLimit)),
		}
	}

	return &http.Client{
		Timeout:   opts.Timeout,
		Transport: rt,
	}
}

// DefaultClient returns a client with a 30s timeout and no rate limit.
func DefaultClient() *http.Client {
	return NewClient(Options{Timeout: 30 * time.Second})
}

func burstFor(limit int) int {
	if limit < 32*1024 {
		return 32 * 1024
	}
	return limit
}

// limitedTransport throttles response bodies through a shared limiter so
// the cap applies to all concurrent downloads together.
type limitedTransport struct {
	next    http.RoundTripper
	limiter *rate.Limiter
}

func (t *limitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	resp, err := t.next.RoundTrip(req)
	if err != nil {
		return nil, err
	}
	resp.Body = &limitedBody{
		ctx:     req.Context(),
		body:    resp.Body,
		limiter: t.limiter,
	}
	return resp, nil
}

type limitedBody struct {
	ctx     context.Context
	body    io.ReadCloser
	limiter *rate.Limiter
}

func (b *limitedBody) Read(p []byte) (int, error) {
	if burst := b.limiter.Burst(); len(p) > burst {
		p = p[:burst]
	}
	n, err := b.body.Read(p)
	if n > 0 {
		if werr := b.limiter.WaitN(b.ctx, n); werr != nil {
			return n, werr
		}
	}
	return n, err
}

func (b *limitedBody) Close() error {
	return b.body.Close()
}

// StatusError is returned for a response with a non-2xx status.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

// Temporary reports whether retrying the request may succeed.
func (e *StatusError) Temporary() bool {
	switch {
	case e.StatusCode == http.StatusRequestTimeout, e.StatusCode == http.StatusTooManyRequests:
		return true
	case e.StatusCode >= 400 && e.StatusCode < 500:
		return false
	}
	return true
}

// Get issues a GET for url bound to ctx and checks the status code. The
// caller owns the returned body.
func Get(ctx context.Context, client Client, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{URL: url, StatusCode: resp.StatusCode}
	}
	return resp, nil
}
