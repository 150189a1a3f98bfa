package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mohammed-shakir/wms-source/internal/core/observability"
	"github.com/mohammed-shakir/wms-source/internal/logger"
	"github.com/mohammed-shakir/wms-source/internal/wms/imageio"
	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

// responseSizeHint pre-sizes the response buffer; it grows as needed.
const responseSizeHint = 30000

const (
	RequestGetMap         = "GetMap"
	RequestGetFeatureInfo = "GetFeatureInfo"
)

// Fetcher performs one upstream request and writes the body into buf. It
// owns timeouts; Source never retries.
type Fetcher interface {
	Fetch(ctx context.Context, ep *upstream.Endpoint, p *params.Table, buf *bytes.Buffer) error
}

// Source serves GetMap and GetFeatureInfo requests for one checked Config.
// It holds no per-request state and is safe for concurrent use.
type Source struct {
	cfg     *Config
	fetcher Fetcher
	logger  *slog.Logger
	isImage func([]byte) bool
}

// New checks cfg and returns a Source bound to it. A config that fails Check
// is never usable.
func New(cfg *Config, f Fetcher, l *slog.Logger) (*Source, error) {
	if cfg == nil {
		return nil, errors.New("nil source config")
	}
	if f == nil {
		return nil, fmt.Errorf("source %s: nil fetcher", cfg.name)
	}
	if err := cfg.Check(); err != nil {
		return nil, err
	}
	if l == nil {
		l = slog.Default()
	}
	return &Source{
		cfg:     cfg,
		fetcher: f,
		logger:  l,
		isImage: imageio.IsValidFormat,
	}, nil
}

func (s *Source) Name() string { return s.cfg.name }

func (s *Source) Config() *Config { return s.cfg }

// RenderMap fetches a map image. Fetcher errors are returned unchanged; a
// body that is not a known image encoding fails with UnsupportedFormat and
// carries the body text.
func (s *Source) RenderMap(ctx context.Context, req MapRequest) ([]byte, error) {
	p := s.cfg.GetMapParams(req)
	data, err := s.fetch(ctx, RequestGetMap, p)
	if err != nil {
		return nil, err
	}
	if !s.isImage(data) {
		s.logger.WarnContext(logger.WithSource(ctx, s.cfg.name), "upstream returned non-image body",
			"detected", imageio.Detect(data),
			"bytes", len(data))
		observability.ObserveSourceRequest(s.cfg.name, RequestGetMap, wmserr.UnsupportedFormat.String(), len(data))
		return nil, wmserr.NewUnsupportedFormat(s.cfg.name, data)
	}
	observability.ObserveSourceRequest(s.cfg.name, RequestGetMap, "ok", len(data))
	return data, nil
}

// QueryInfo fetches a GetFeatureInfo response. The body is returned as is;
// its format is whatever INFO_FORMAT asked for.
func (s *Source) QueryInfo(ctx context.Context, req FeatureInfoRequest) ([]byte, error) {
	p := s.cfg.GetFeatureInfoParams(req)
	data, err := s.fetch(ctx, RequestGetFeatureInfo, p)
	if err != nil {
		return nil, err
	}
	observability.ObserveSourceRequest(s.cfg.name, RequestGetFeatureInfo, "ok", len(data))
	return data, nil
}

func (s *Source) fetch(ctx context.Context, request string, p *params.Table) ([]byte, error) {
	ctx = logger.WithSource(ctx, s.cfg.name)
	buf := bytes.NewBuffer(make([]byte, 0, responseSizeHint))

	start := time.Now()
	err := s.fetcher.Fetch(ctx, s.cfg.endpoint, p, buf)
	s.logger.DebugContext(ctx, "wms request",
		"request", request,
		"params_fp", fmt.Sprintf("%016x", p.Fingerprint()),
		"bytes", buf.Len(),
		"duration", time.Since(start).String(),
		"ok", err == nil)
	if err != nil {
		outcome := "error"
		var we *wmserr.Error
		if errors.As(err, &we) {
			outcome = we.Kind.String()
		}
		observability.ObserveSourceRequest(s.cfg.name, request, outcome, 0)
		return nil, err
	}
	return buf.Bytes(), nil
}
