package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	srv := httptest.NewServer(promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("metrics scrape: %v", err)
	}
	defer func() { _ = resp.Body.Close() }()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read all: %v", err)
	}
	return string(b)
}

func TestMetricsHandler_Smoke(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	ObserveHTTP("GET", "/sources/{name}/map", 200, 0.001)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rr := httptest.NewRecorder()
	promhttp.HandlerFor(reg, promhttp.HandlerOpts{}).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d want 200", rr.Code)
	}
	body := rr.Body.String()
	if !strings.Contains(body, "http_requests_total") {
		t.Fatalf("missing http_requests_total; got:\n%s", body)
	}
}

func TestSourceRequestsCounter_LabelsAndIncrement(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)

	ObserveSourceRequest("osm-src", "GetMap", "ok", 2048)
	ObserveSourceRequest("osm-src", "GetMap", "unsupported_format", 0)
	ObserveSourceRequest("osm-src", "GetMap", "unsupported_format", 0)
	ObserveUpstreamLatency("wms.example.com", 0, 0.01)

	out := scrape(t, reg)
	exp1 := `wms_source_requests_total{outcome="ok",request="GetMap",source="osm-src"} 1`
	exp2 := `wms_source_requests_total{outcome="unsupported_format",request="GetMap",source="osm-src"} 2`
	for _, exp := range []string{exp1, exp2, `upstream_latency_seconds_count{status="error",upstream="wms.example.com"} 1`} {
		if !strings.Contains(out, exp) {
			t.Fatalf("expected %q in metrics; got:\n%s", exp, out)
		}
	}
}

func TestInit_Disabled_DropsObservations(t *testing.T) {
	reg := prometheus.NewRegistry()
	Init(reg, true)
	Init(nil, false)
	defer Init(reg, true)

	IncConfigError("disabled-src", "missing_endpoint")

	Init(reg, true)
	if strings.Contains(scrape(t, reg), `source="disabled-src"`) {
		t.Fatal("observation recorded while disabled")
	}
}
