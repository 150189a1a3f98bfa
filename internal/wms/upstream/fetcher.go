package upstream

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/mohammed-shakir/wms-source/internal/core/httpclient"
	"github.com/mohammed-shakir/wms-source/internal/core/observability"
	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

const (
	// DefaultMaxResponseBytes caps how much of an upstream body is buffered.
	DefaultMaxResponseBytes = 64 << 20
	errorPreviewBytes       = 8 << 10
)

// HTTPFetcher issues GET requests with the built parameter table as query
// string. One http.Client is kept per endpoint so that endpoint timeouts
// apply. It never retries.
type HTTPFetcher struct {
	logger    *slog.Logger
	maxBytes  int64
	timeout   time.Duration
	newClient func(httpclient.Options) *http.Client
	startNow  func() time.Time // for tests

	mu      sync.Mutex
	clients map[*Endpoint]*http.Client
}

type FetcherOption func(*HTTPFetcher)

func WithMaxResponseBytes(n int64) FetcherOption {
	return func(f *HTTPFetcher) {
		if n > 0 {
			f.maxBytes = n
		}
	}
}

// WithDefaultTimeout sets the request timeout used for endpoints that
// configure none.
func WithDefaultTimeout(d time.Duration) FetcherOption {
	return func(f *HTTPFetcher) {
		if d > 0 {
			f.timeout = d
		}
	}
}

// WithClient makes every endpoint share c, ignoring endpoint timeouts.
func WithClient(c *http.Client) FetcherOption {
	return func(f *HTTPFetcher) {
		f.newClient = func(httpclient.Options) *http.Client { return c }
	}
}

func NewHTTPFetcher(logger *slog.Logger, opts ...FetcherOption) *HTTPFetcher {
	f := &HTTPFetcher{
		logger:    logger,
		maxBytes:  DefaultMaxResponseBytes,
		newClient: httpclient.NewOutbound,
		startNow:  time.Now,
		clients:   map[*Endpoint]*http.Client{},
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

func (f *HTTPFetcher) client(ep *Endpoint) *http.Client {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.clients[ep]
	if !ok {
		timeout := ep.Timeout
		if timeout == 0 {
			timeout = f.timeout
		}
		c = f.newClient(httpclient.Options{ConnectTimeout: ep.ConnectionTimeout, Timeout: timeout})
		f.clients[ep] = c
	}
	return c
}

// RequestURL joins the endpoint URL and the encoded parameters. Query
// parameters already present on the endpoint URL are kept in front.
func RequestURL(ep *Endpoint, p *params.Table) (*url.URL, error) {
	u, err := url.Parse(ep.URL)
	if err != nil {
		return nil, fmt.Errorf("parse endpoint url: %w", err)
	}
	q := p.Encode()
	switch {
	case u.RawQuery == "":
		u.RawQuery = q
	case q != "":
		u.RawQuery = strings.TrimSuffix(u.RawQuery, "&") + "&" + q
	}
	u.ForceQuery = false
	return u, nil
}

// Fetch requests ep with p and writes the response body into buf. Transport
// errors, non-2xx statuses and oversized bodies are reported as
// TransportFailure.
func (f *HTTPFetcher) Fetch(ctx context.Context, ep *Endpoint, p *params.Table, buf *bytes.Buffer) error {
	u, err := RequestURL(ep, p)
	if err != nil {
		return wmserr.NewTransportFailure(ep.URL, err)
	}
	target := u.Scheme + "://" + u.Host + u.Path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return wmserr.NewTransportFailure(target, fmt.Errorf("build request: %w", err))
	}
	for k, vs := range ep.Headers {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}

	start := f.startNow()
	resp, err := f.client(ep).Do(req)
	if err != nil {
		observability.ObserveUpstreamLatency(u.Host, 0, time.Since(start).Seconds())
		return wmserr.NewTransportFailure(target, fmt.Errorf("do request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()
	observability.ObserveUpstreamLatency(u.Host, resp.StatusCode, time.Since(start).Seconds())

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, errorPreviewBytes))
		return wmserr.NewTransportFailure(target, fmt.Errorf("upstream status %d: %s", resp.StatusCode, string(b)))
	}

	n, err := buf.ReadFrom(io.LimitReader(resp.Body, f.maxBytes+1))
	if err != nil {
		return wmserr.NewTransportFailure(target, fmt.Errorf("read body: %w", err))
	}
	if n > f.maxBytes {
		return wmserr.NewTransportFailure(target, fmt.Errorf("response body exceeds %d bytes", f.maxBytes))
	}

	f.logger.Debug("upstream fetch done",
		"upstream", u.Host,
		"status", resp.StatusCode,
		"bytes", n,
		"content_type", resp.Header.Get("Content-Type"),
		"duration", time.Since(start).String())
	return nil
}
