package router

import (
	"bytes"
	"context"
	"image"
	"image/png"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

type fakeFetcher struct {
	mu   sync.Mutex
	body []byte
	err  error
	last *params.Table
}

func (f *fakeFetcher) Fetch(_ context.Context, _ *upstream.Endpoint, p *params.Table, buf *bytes.Buffer) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.last = p
	if f.err != nil {
		return f.err
	}
	buf.Write(f.body)
	return nil
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var b bytes.Buffer
	if err := png.Encode(&b, image.NewRGBA(image.Rect(0, 0, 2, 2))); err != nil {
		t.Fatalf("png: %v", err)
	}
	return b.Bytes()
}

func testRouter(t *testing.T, f *fakeFetcher) http.Handler {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	withInfo, err := source.ParseObject("osm", gjson.Parse(`{
		"http": {"url": "http://wms.example.com/wms"},
		"getmap": {"params": {"LAYERS": "roads"}},
		"getfeatureinfo": {"info_formats": ["text/plain"], "params": {"QUERY_LAYERS": "roads"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	mapOnly, err := source.ParseObject("aerial", gjson.Parse(`{
		"http": {"url": "http://wms.example.com/wms"},
		"getmap": {"params": {"LAYERS": "ortho"}}
	}`))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	var srcs []*source.Source
	for _, c := range []*source.Config{withInfo, mapOnly} {
		s, err := source.New(c, f, logger)
		if err != nil {
			t.Fatalf("source.New: %v", err)
		}
		srcs = append(srcs, s)
	}
	reg, err := source.NewRegistry(srcs...)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}

	r := chi.NewRouter()
	r.Get("/sources", HandleList(reg))
	r.Get("/sources/{name}/map", HandleMap(logger, reg))
	r.Get("/sources/{name}/info", HandleInfo(logger, reg))
	return r
}

func do(h http.Handler, target string) *httptest.ResponseRecorder {
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, target, nil))
	return rr
}

func TestHandleMap_ServesImage(t *testing.T) {
	img := pngBytes(t)
	f := &fakeFetcher{body: img}
	h := testRouter(t, f)

	rr := do(h, "/sources/osm/map?bbox=0,0,10,10&width=256&height=256&srs=EPSG:3857&dim_time=2024&dim_elevation=100")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "image/png" {
		t.Fatalf("content-type=%q", ct)
	}
	if !bytes.Equal(rr.Body.Bytes(), img) {
		t.Fatal("body mismatch")
	}
	if got := f.last.Encode(); !strings.HasSuffix(got, "LAYERS=roads&TIME=2024&ELEVATION=100") {
		t.Fatalf("unexpected upstream params %s", got)
	}
}

func TestHandleMap_Errors(t *testing.T) {
	cases := []struct {
		name   string
		target string
		fetch  *fakeFetcher
		status int
		body   string
	}{
		{"unknown source", "/sources/nope/map?bbox=0,0,1,1&width=1&height=1&srs=EPSG:4326", &fakeFetcher{}, http.StatusNotFound, "unknown source"},
		{"missing bbox", "/sources/osm/map?width=1&height=1&srs=EPSG:4326", &fakeFetcher{}, http.StatusBadRequest, "bbox"},
		{"inverted bbox", "/sources/osm/map?bbox=1,1,0,0&width=1&height=1&srs=EPSG:4326", &fakeFetcher{}, http.StatusBadRequest, "maxx>minx"},
		{"zero width", "/sources/osm/map?bbox=0,0,1,1&width=0&height=1&srs=EPSG:4326", &fakeFetcher{}, http.StatusBadRequest, "width"},
		{"missing srs", "/sources/osm/map?bbox=0,0,1,1&width=1&height=1", &fakeFetcher{}, http.StatusBadRequest, "srs"},
		{"non-image upstream", "/sources/osm/map?bbox=0,0,1,1&width=1&height=1&srs=EPSG:4326",
			&fakeFetcher{body: []byte("<ServiceException>oops</ServiceException>")}, http.StatusBadGateway, "<ServiceException>oops</ServiceException>"},
		{"transport failure", "/sources/osm/map?bbox=0,0,1,1&width=1&height=1&srs=EPSG:4326",
			&fakeFetcher{err: wmserr.NewTransportFailure("http://wms.example.com/wms", io.ErrUnexpectedEOF)}, http.StatusBadGateway, "unexpected EOF"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rr := do(testRouter(t, tc.fetch), tc.target)
			if rr.Code != tc.status {
				t.Fatalf("status=%d want %d body=%s", rr.Code, tc.status, rr.Body.String())
			}
			if !strings.Contains(rr.Body.String(), tc.body) {
				t.Fatalf("body %q does not contain %q", rr.Body.String(), tc.body)
			}
		})
	}
}

func TestHandleInfo(t *testing.T) {
	f := &fakeFetcher{body: []byte("roads: id=7")}
	h := testRouter(t, f)

	rr := do(h, "/sources/osm/info?bbox=0,0,10,10&width=100&height=50&srs=EPSG:4326&i=99&j=49&info_format=text/plain")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "roads: id=7" {
		t.Fatalf("body=%q", rr.Body.String())
	}
	if ct := rr.Header().Get("Content-Type"); ct != "text/plain" {
		t.Fatalf("content-type=%q", ct)
	}
	if x, _ := f.last.Get("X"); x != "99" {
		t.Fatalf("X=%q", x)
	}

	for target, want := range map[string]int{
		"/sources/osm/info?bbox=0,0,10,10&width=100&height=50&srs=EPSG:4326&i=100&j=0&info_format=text/plain": http.StatusBadRequest,
		"/sources/osm/info?bbox=0,0,10,10&width=100&height=50&srs=EPSG:4326&i=0&j=-1&info_format=text/plain":  http.StatusBadRequest,
		"/sources/osm/info?bbox=0,0,10,10&width=100&height=50&srs=EPSG:4326&i=0&j=0":                          http.StatusBadRequest,
		"/sources/aerial/info?bbox=0,0,10,10&width=100&height=50&srs=EPSG:4326&i=0&j=0&info_format=text/plain": http.StatusBadRequest,
	} {
		if rr := do(h, target); rr.Code != want {
			t.Fatalf("%s: status=%d want %d", target, rr.Code, want)
		}
	}
}

func TestHandleList(t *testing.T) {
	rr := do(testRouter(t, &fakeFetcher{}), "/sources")
	want := `[{"name":"aerial"},{"name":"osm","info_formats":["text/plain"]}]`
	if got := strings.TrimSpace(rr.Body.String()); got != want {
		t.Fatalf("body=%s want %s", got, want)
	}
}

func TestParseDimensions_OrderAndEscaping(t *testing.T) {
	dims, err := parseDimensions("bbox=1&dim_time=2024-01-01T00%3A00%3A00Z&x=1&DIM_x=1&dim_elevation=5&dim_time=2025")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if got := dims.Encode(); got != "TIME=2025&ELEVATION=5" {
		t.Fatalf("dims=%s", got)
	}

	if _, err := parseDimensions("dim_=1"); err == nil {
		t.Fatal("expected error for empty dimension name")
	}
	if _, err := parseDimensions("dim_t=%zz"); err == nil {
		t.Fatal("expected error for bad escape")
	}
}

func TestParseBBOX_Values(t *testing.T) {
	ext, err := ParseBBOX("-20037508.34,-20037508.34,20037508.34,20037508.34")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if ext.MinX != -20037508.34 || ext.MaxY != 20037508.34 {
		t.Fatalf("got %+v", ext)
	}
	if _, err := ParseBBOX("1,2,3"); err == nil {
		t.Fatal("expected error for 3 values")
	}
	if _, err := ParseBBOX("a,2,3,4"); err == nil {
		t.Fatal("expected error for non-number")
	}
}
