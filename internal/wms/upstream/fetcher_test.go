package upstream

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mohammed-shakir/wms-source/internal/core/httpclient"
	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

type upstreamRecorder struct {
	mu        sync.Mutex
	rawQuery  string
	path      string
	header    http.Header
	status    int
	body      []byte
	callCount int
}

func (u *upstreamRecorder) handler(w http.ResponseWriter, r *http.Request) {
	u.mu.Lock()
	u.rawQuery = r.URL.RawQuery
	u.path = r.URL.Path
	u.header = r.Header.Clone()
	u.callCount++
	status, body := u.status, u.body
	u.mu.Unlock()

	if status == 0 {
		status = http.StatusOK
	}
	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

func newFetcher() *HTTPFetcher {
	return NewHTTPFetcher(slog.New(slog.NewTextHandler(io.Discard, nil)))
}

func TestFetch_RepeatedKeysInInsertionOrder(t *testing.T) {
	up := &upstreamRecorder{body: []byte("payload")}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	defer srv.Close()

	ep := &Endpoint{URL: srv.URL + "/wms", Headers: http.Header{"X-Api-Key": {"secret"}}}
	p := params.FromPairs("SERVICE", "WMS", "WIDTH", "256", "LAYERS", "roads", "WIDTH", "512")

	var buf bytes.Buffer
	require.NoError(t, newFetcher().Fetch(context.Background(), ep, p, &buf))

	assert.Equal(t, "payload", buf.String())
	assert.Equal(t, "/wms", up.path)
	assert.Equal(t, "SERVICE=WMS&WIDTH=256&LAYERS=roads&WIDTH=512", up.rawQuery)
	assert.Equal(t, "secret", up.header.Get("X-Api-Key"))
}

func TestFetch_EndpointQueryKept(t *testing.T) {
	up := &upstreamRecorder{}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	defer srv.Close()

	ep := &Endpoint{URL: srv.URL + "/mapserv?map=/srv/osm.map"}
	var buf bytes.Buffer
	require.NoError(t, newFetcher().Fetch(context.Background(), ep, params.FromPairs("LAYERS", "a"), &buf))
	assert.Equal(t, "map=/srv/osm.map&LAYERS=a", up.rawQuery)
}

func TestFetch_Non2xxIsTransportFailure(t *testing.T) {
	up := &upstreamRecorder{status: http.StatusInternalServerError, body: []byte("mapserver exploded")}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	defer srv.Close()

	var buf bytes.Buffer
	err := newFetcher().Fetch(context.Background(), &Endpoint{URL: srv.URL}, params.New(), &buf)
	require.Error(t, err)
	assert.ErrorIs(t, err, wmserr.ErrTransportFailure)
	assert.Contains(t, err.Error(), "500")
	assert.Contains(t, err.Error(), "mapserver exploded")
	assert.Equal(t, http.StatusBadGateway, wmserr.StatusCode(err))
	assert.Equal(t, 1, up.callCount, "no retry")
}

func TestFetch_BodyLimit(t *testing.T) {
	up := &upstreamRecorder{body: []byte(strings.Repeat("x", 64))}
	srv := httptest.NewServer(http.HandlerFunc(up.handler))
	defer srv.Close()

	f := NewHTTPFetcher(slog.New(slog.NewTextHandler(io.Discard, nil)), WithMaxResponseBytes(16))
	var buf bytes.Buffer
	err := f.Fetch(context.Background(), &Endpoint{URL: srv.URL}, params.New(), &buf)
	assert.ErrorIs(t, err, wmserr.ErrTransportFailure)
}

func TestFetch_DialFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	var buf bytes.Buffer
	err := newFetcher().Fetch(context.Background(), &Endpoint{URL: addr}, params.New(), &buf)
	assert.ErrorIs(t, err, wmserr.ErrTransportFailure)
}

func TestFetch_ClientPerEndpoint(t *testing.T) {
	f := newFetcher()
	a := &Endpoint{URL: "http://a.example"}
	b := &Endpoint{URL: "http://b.example"}
	assert.Same(t, f.client(a), f.client(a))
	assert.NotSame(t, f.client(a), f.client(b))
}

func TestFetch_DefaultTimeoutOnlyWhenUnset(t *testing.T) {
	var got []httpclient.Options
	f := NewHTTPFetcher(slog.New(slog.NewTextHandler(io.Discard, nil)), WithDefaultTimeout(5*time.Second))
	f.newClient = func(o httpclient.Options) *http.Client {
		got = append(got, o)
		return http.DefaultClient
	}

	f.client(&Endpoint{URL: "http://a.example"})
	f.client(&Endpoint{URL: "http://b.example", Timeout: time.Minute, ConnectionTimeout: time.Second})
	require.Len(t, got, 2)
	assert.Equal(t, 5*time.Second, got[0].Timeout)
	assert.Equal(t, time.Minute, got[1].Timeout)
	assert.Equal(t, time.Second, got[1].ConnectTimeout)
}

func TestRequestURL_TrailingQuestionMark(t *testing.T) {
	u, err := RequestURL(&Endpoint{URL: "http://wms.example.com/service?"}, params.FromPairs("A", "1"))
	require.NoError(t, err)
	assert.Equal(t, "http://wms.example.com/service?A=1", u.String())
}
