// Package httpclient configures the HTTP clients used to call upstream WMS servers.
package httpclient

import (
	"net"
	"net/http"
	"time"
)

const (
	DefaultConnectTimeout = 30 * time.Second
	DefaultTimeout        = 600 * time.Second
)

type Options struct {
	ConnectTimeout time.Duration
	Timeout        time.Duration
}

// NewOutbound creates a new outbound http client. Zero timeouts fall back to
// the defaults.
func NewOutbound(o Options) *http.Client {
	if o.ConnectTimeout <= 0 {
		o.ConnectTimeout = DefaultConnectTimeout
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           (&net.Dialer{Timeout: o.ConnectTimeout, KeepAlive: 30 * time.Second}).DialContext,
		MaxIdleConns:          256,
		MaxIdleConnsPerHost:   128,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   o.ConnectTimeout,
		ExpectContinueTimeout: 1 * time.Second,
	}
	return &http.Client{
		Transport: transport,
		Timeout:   o.Timeout,
	}
}
