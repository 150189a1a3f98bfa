package router

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mohammed-shakir/wms-source/internal/core/observability"
	"github.com/mohammed-shakir/wms-source/internal/wms/imageio"
	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

const (
	maxImageSide = 8192
	dimPrefix    = "dim_"
)

// Sources resolves a source by name.
type Sources interface {
	Lookup(name string) (*source.Source, bool)
	Names() []string
}

// HandleMap serves GET /sources/{name}/map.
func HandleMap(logger *slog.Logger, srcs Sources) http.HandlerFunc {
	return observe("/sources/{name}/map", func(w http.ResponseWriter, r *http.Request) {
		src, ok := lookup(w, r, srcs)
		if !ok {
			return
		}
		serveMap(logger, w, r, src)
	})
}

func serveMap(logger *slog.Logger, w http.ResponseWriter, r *http.Request, src *source.Source) {
	req, err := ParseMapRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := src.RenderMap(r.Context(), req)
	if err != nil {
		writeError(logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", imageio.Detect(data))
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	_, _ = w.Write(data)
}

// HandleInfo serves GET /sources/{name}/info.
func HandleInfo(logger *slog.Logger, srcs Sources) http.HandlerFunc {
	return observe("/sources/{name}/info", func(w http.ResponseWriter, r *http.Request) {
		src, ok := lookup(w, r, srcs)
		if !ok {
			return
		}
		serveInfo(logger, w, r, src)
	})
}

func serveInfo(logger *slog.Logger, w http.ResponseWriter, r *http.Request, src *source.Source) {
	if !src.Config().SupportsFeatureInfo() {
		http.Error(w, fmt.Sprintf("source %s does not support feature info queries", src.Config().Name()), http.StatusBadRequest)
		return
	}
	req, err := ParseFeatureInfoRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	data, err := src.QueryInfo(r.Context(), req)
	if err != nil {
		writeError(logger, w, r, err)
		return
	}
	w.Header().Set("Content-Type", req.InfoFormat)
	_, _ = w.Write(data)
}

// HandleList serves GET /sources.
func HandleList(srcs Sources) http.HandlerFunc {
	return observe("/sources", func(w http.ResponseWriter, _ *http.Request) {
		type item struct {
			Name        string   `json:"name"`
			InfoFormats []string `json:"info_formats,omitempty"`
		}
		out := []item{}
		for _, name := range srcs.Names() {
			s, ok := srcs.Lookup(name)
			if !ok {
				continue
			}
			out = append(out, item{Name: name, InfoFormats: s.Config().InfoFormats()})
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(out)
	})
}

func lookup(w http.ResponseWriter, r *http.Request, srcs Sources) (*source.Source, bool) {
	name := chi.URLParam(r, "name")
	s, ok := srcs.Lookup(name)
	if !ok {
		http.Error(w, fmt.Sprintf("unknown source %q", name), http.StatusNotFound)
	}
	return s, ok
}

func writeError(logger *slog.Logger, w http.ResponseWriter, r *http.Request, err error) {
	code := wmserr.StatusCode(err)
	logger.ErrorContext(r.Context(), "wms request failed", "status", code, "err", err)
	http.Error(w, err.Error(), code)
}

func observe(route string, h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w, code: http.StatusOK}
		h(sw, r)
		observability.ObserveHTTP(r.Method, route, sw.code, time.Since(start).Seconds())
	}
}

type statusWriter struct {
	http.ResponseWriter
	code int
}

func (w *statusWriter) WriteHeader(code int) {
	w.code = code
	w.ResponseWriter.WriteHeader(code)
}

// ParseMapRequest reads bbox, width, height, srs and dim_* parameters.
func ParseMapRequest(r *http.Request) (source.MapRequest, error) {
	q := r.URL.Query()

	rawBBox := strings.TrimSpace(q.Get("bbox"))
	if rawBBox == "" {
		return source.MapRequest{}, errors.New("missing required parameter: bbox")
	}
	ext, err := ParseBBOX(rawBBox)
	if err != nil {
		return source.MapRequest{}, fmt.Errorf("invalid bbox: %w", err)
	}
	width, err := parseSide(q.Get("width"))
	if err != nil {
		return source.MapRequest{}, fmt.Errorf("invalid width: %w", err)
	}
	height, err := parseSide(q.Get("height"))
	if err != nil {
		return source.MapRequest{}, fmt.Errorf("invalid height: %w", err)
	}
	srs := strings.TrimSpace(q.Get("srs"))
	if srs == "" {
		return source.MapRequest{}, errors.New("missing required parameter: srs")
	}
	dims, err := parseDimensions(r.URL.RawQuery)
	if err != nil {
		return source.MapRequest{}, err
	}
	return source.MapRequest{
		Extent:     ext,
		Width:      width,
		Height:     height,
		SRS:        srs,
		Dimensions: dims,
	}, nil
}

// ParseFeatureInfoRequest adds i, j and info_format to ParseMapRequest.
func ParseFeatureInfoRequest(r *http.Request) (source.FeatureInfoRequest, error) {
	m, err := ParseMapRequest(r)
	if err != nil {
		return source.FeatureInfoRequest{}, err
	}
	q := r.URL.Query()
	i, err := parsePixel(q.Get("i"), m.Width)
	if err != nil {
		return source.FeatureInfoRequest{}, fmt.Errorf("invalid i: %w", err)
	}
	j, err := parsePixel(q.Get("j"), m.Height)
	if err != nil {
		return source.FeatureInfoRequest{}, fmt.Errorf("invalid j: %w", err)
	}
	format := strings.TrimSpace(q.Get("info_format"))
	if format == "" {
		return source.FeatureInfoRequest{}, errors.New("missing required parameter: info_format")
	}
	return source.FeatureInfoRequest{MapRequest: m, I: i, J: j, InfoFormat: format}, nil
}

// ParseBBOX parses "minx,miny,maxx,maxy".
func ParseBBOX(bboxParam string) (source.Extent, error) {
	parts := strings.Split(bboxParam, ",")
	if len(parts) != 4 {
		return source.Extent{}, errors.New("expected 4 comma-separated values: minx,miny,maxx,maxy")
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return source.Extent{}, fmt.Errorf("value %d: %w", i+1, err)
		}
		v[i] = f
	}
	if v[2] <= v[0] || v[3] <= v[1] {
		return source.Extent{}, errors.New("coordinates must satisfy maxx>minx and maxy>miny")
	}
	return source.Extent{MinX: v[0], MinY: v[1], MaxX: v[2], MaxY: v[3]}, nil
}

func parseSide(raw string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse int: %w", err)
	}
	if n <= 0 || n > maxImageSide {
		return 0, fmt.Errorf("must be in [1,%d]", maxImageSide)
	}
	return n, nil
}

func parsePixel(raw string, limit int) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse int: %w", err)
	}
	if n < 0 || n >= limit {
		return 0, fmt.Errorf("must be in [0,%d)", limit)
	}
	return n, nil
}

// parseDimensions collects dim_<NAME>=value pairs in query order. Names are
// upper-cased to follow WMS convention.
func parseDimensions(rawQuery string) (*params.Table, error) {
	dims := params.New()
	for pair := range strings.SplitSeq(rawQuery, "&") {
		if pair == "" {
			continue
		}
		k, v, _ := strings.Cut(pair, "=")
		key, err := url.QueryUnescape(k)
		if err != nil {
			return nil, fmt.Errorf("invalid query key %q: %w", k, err)
		}
		name, ok := strings.CutPrefix(key, dimPrefix)
		if !ok {
			continue
		}
		if name == "" {
			return nil, errors.New("empty dimension name")
		}
		val, err := url.QueryUnescape(v)
		if err != nil {
			return nil, fmt.Errorf("invalid value for dimension %s: %w", name, err)
		}
		dims.Set(strings.ToUpper(name), val)
	}
	return dims, nil
}
