package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type MetricsCfg struct {
	Enabled bool
	Addr    string
	Path    string
}

type Config struct {
	Addr        string
	LogLevel    string
	LogConsole  bool
	LogSampleN  int
	SourcesFile string
	// FetchTimeout bounds a whole upstream request when the source's http
	// block sets no timeout.
	FetchTimeout     time.Duration
	MaxResponseBytes int64
	Metrics          MetricsCfg
}

func FromEnv() Config {
	return Config{
		Addr:             getenv("ADDR", ":8090"),
		LogLevel:         getenv("LOG_LEVEL", "info"),
		LogConsole:       getbool("LOG_CONSOLE", false),
		LogSampleN:       getint("LOG_SAMPLE_N", 0),
		SourcesFile:      getenv("SOURCES_FILE", "sources.xml"),
		FetchTimeout:     getduration("FETCH_TIMEOUT", 30*time.Second),
		MaxResponseBytes: getint64("MAX_RESPONSE_BYTES", 64<<20),
		Metrics: MetricsCfg{
			Enabled: getbool("METRICS_ENABLED", false),
			Addr:    lookupenv("METRICS_ADDR", ":9090"),
			Path:    getenv("METRICS_PATH", "/metrics"),
		},
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// lookupenv keeps an explicitly empty value.
func lookupenv(k, def string) string {
	if v, ok := os.LookupEnv(k); ok {
		return strings.TrimSpace(v)
	}
	return def
}

func getint(k string, def int) int {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func getint64(k string, def int64) int64 {
	if v := os.Getenv(k); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func getbool(k string, def bool) bool {
	if v := os.Getenv(k); v != "" {
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "1", "t", "true", "y", "yes":
			return true
		case "0", "f", "false", "n", "no":
			return false
		}
	}
	return def
}

func getduration(k string, def time.Duration) time.Duration {
	if v := os.Getenv(k); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
