package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/mohammed-shakir/wms-source/internal/core/config"
	"github.com/mohammed-shakir/wms-source/internal/core/server"
	"github.com/mohammed-shakir/wms-source/internal/logger"
	"github.com/mohammed-shakir/wms-source/internal/metrics"
	"github.com/mohammed-shakir/wms-source/internal/wms/loader"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
)

var Version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// overriding the sources file via flag
	sourcesFlag := flag.String("sources", "", "path to the sources file (.json, .yaml, .xml)")
	flag.Parse()

	cfg := config.FromEnv()
	if *sourcesFlag != "" {
		cfg.SourcesFile = strings.TrimSpace(*sourcesFlag)
	}

	zl := logger.Build(logger.Config{
		Level:     cfg.LogLevel,
		Console:   cfg.LogConsole,
		SampleN:   cfg.LogSampleN,
		Component: "wms-source",
	}, os.Stdout)
	appLog := logger.NewSlog(&zl)

	p := metrics.Init(metrics.Config{
		Enabled: cfg.Metrics.Enabled,
		Addr:    cfg.Metrics.Addr,
		Path:    cfg.Metrics.Path,
		Build: metrics.BuildInfo{
			Version:   Version,
			Revision:  os.Getenv("BUILD_REVISION"),
			Branch:    os.Getenv("BUILD_BRANCH"),
			BuildDate: os.Getenv("BUILD_DATE"),
		},
	})

	appLog.Info("starting wms-source",
		"addr", cfg.Addr,
		"version", Version,
		"sources_file", cfg.SourcesFile)

	cfgs, err := loader.LoadFile(cfg.SourcesFile)
	if err != nil {
		appLog.Error("failed to load sources", "file", cfg.SourcesFile, "err", err)
		return 1
	}

	fetcher := upstream.NewHTTPFetcher(appLog,
		upstream.WithMaxResponseBytes(cfg.MaxResponseBytes),
		upstream.WithDefaultTimeout(cfg.FetchTimeout))

	srcs := make([]*source.Source, 0, len(cfgs))
	for _, c := range cfgs {
		s, err := source.New(c, fetcher, appLog)
		if err != nil {
			appLog.Error("invalid source", "source", c.Name(), "err", err)
			return 1
		}
		srcs = append(srcs, s)
	}
	reg, err := source.NewRegistry(srcs...)
	if err != nil {
		appLog.Error("failed to build registry", "err", err)
		return 1
	}
	appLog.Info("sources loaded", "count", reg.Len(), "names", reg.Names())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// without METRICS_ADDR the metrics are served next to the API
	var metricsHandler http.Handler
	switch {
	case !cfg.Metrics.Enabled:
	case cfg.Metrics.Addr == "":
		metricsHandler = p.Handler()
	default:
		go p.Serve(ctx, appLog)
	}

	writeTimeout := server.WriteTimeout(cfg.FetchTimeout, reg)
	if err := server.Run(ctx, cfg, appLog, server.NewHandler(appLog, reg, metricsHandler), writeTimeout); err != nil {
		appLog.Error("server exited with error", "err", err)
		return 1
	}
	appLog.Info("server stopped")
	return 0
}
