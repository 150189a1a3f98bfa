package server

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
)

func TestNewHandler_Routes(t *testing.T) {
	reg, err := source.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# metrics"))
	})
	h := NewHandler(logger, reg, metrics)

	for path, want := range map[string]int{
		"/healthz":                 http.StatusOK,
		"/readyz":                  http.StatusServiceUnavailable,
		"/metrics":                 http.StatusOK,
		"/sources":                 http.StatusOK,
		"/sources/missing/map":     http.StatusNotFound,
		"/sources/missing/info":    http.StatusNotFound,
		"/sources/missing/unknown": http.StatusNotFound,
	} {
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, path, nil))
		if rr.Code != want {
			t.Fatalf("%s: status=%d want %d", path, rr.Code, want)
		}
	}

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/sources", nil))
	if strings.TrimSpace(rr.Body.String()) != "[]" {
		t.Fatalf("body=%q want []", rr.Body.String())
	}
}

func TestWriteTimeout_FollowsLongestSourceTimeout(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	fetcher := upstream.NewHTTPFetcher(logger)
	newSource := func(name, httpBlock string) *source.Source {
		t.Helper()
		cfg, err := source.ParseObject(name, gjson.Parse(`{"http": `+httpBlock+`, "getmap": {"params": {"LAYERS": "a"}}}`))
		if err != nil {
			t.Fatalf("parse %s: %v", name, err)
		}
		s, err := source.New(cfg, fetcher, logger)
		if err != nil {
			t.Fatalf("new %s: %v", name, err)
		}
		return s
	}

	empty, err := source.NewRegistry()
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := WriteTimeout(30*time.Second, empty); got != 60*time.Second {
		t.Fatalf("empty registry: got %v want 60s", got)
	}

	reg, err := source.NewRegistry(
		newSource("default", `{"url": "http://a.example/wms"}`),
		newSource("slow", `{"url": "http://b.example/wms", "timeout": 600}`),
	)
	if err != nil {
		t.Fatalf("registry: %v", err)
	}
	if got := WriteTimeout(30*time.Second, reg); got != 630*time.Second {
		t.Fatalf("got %v want 630s", got)
	}
}
