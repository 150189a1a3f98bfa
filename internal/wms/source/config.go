// Package source implements the WMS source: its configuration (loaded from
// either the object or the element syntax), validation, the GetMap and
// GetFeatureInfo parameter builders, and the request path that fetches and
// checks upstream responses.
package source

import (
	"slices"

	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
)

// Config is the state of one configured WMS source. Both front-ends fill the
// same struct; after Check succeeds it is only read, so one Config can back
// any number of concurrent requests.
type Config struct {
	name                 string
	defaultParams        *params.Table
	getMapParams         *params.Table
	getFeatureInfoParams *params.Table
	infoFormats          []string
	endpoint             *upstream.Endpoint
}

// NewConfig returns an empty source config holding its own copy of the WMS
// default parameters.
func NewConfig(name string) *Config {
	return &Config{
		name: name,
		defaultParams: params.FromPairs(
			"VERSION", "1.1.1",
			"REQUEST", "GetMap",
			"SERVICE", "WMS",
			"STYLES", "",
		),
		getMapParams:         params.New(),
		getFeatureInfoParams: params.New(),
	}
}

func (c *Config) Name() string { return c.name }

func (c *Config) Endpoint() *upstream.Endpoint { return c.endpoint }

// DefaultParams, GetMapParamsConfigured and GetFeatureInfoParamsConfigured
// return copies; the stored tables are never handed out.
func (c *Config) DefaultParams() *params.Table { return c.defaultParams.Clone() }

func (c *Config) GetMapParamsConfigured() *params.Table { return c.getMapParams.Clone() }

func (c *Config) GetFeatureInfoParamsConfigured() *params.Table {
	return c.getFeatureInfoParams.Clone()
}

func (c *Config) InfoFormats() []string { return slices.Clone(c.infoFormats) }

// SupportsFeatureInfo is true when at least one info format is configured.
func (c *Config) SupportsFeatureInfo() bool { return len(c.infoFormats) > 0 }
