package source

import (
	"fmt"
	"strconv"

	"github.com/mohammed-shakir/wms-source/internal/wms/params"
)

const defaultImageFormat = "image/png"

// Extent is a bounding box in the units of the request's SRS.
type Extent struct {
	MinX, MinY float64
	MaxX, MaxY float64
}

// String formats the extent as a WMS BBOX value.
func (e Extent) String() string {
	return fmt.Sprintf("%f,%f,%f,%f", e.MinX, e.MinY, e.MaxX, e.MaxY)
}

type MapRequest struct {
	Extent Extent
	Width  int
	Height int
	SRS    string
	// Dimensions are applied last, in order, and override any other value
	// for the same key. May be nil.
	Dimensions *params.Table
}

// FeatureInfoRequest queries the pixel (I, J) of the map described by
// MapRequest.
type FeatureInfoRequest struct {
	MapRequest
	I, J       int
	InfoFormat string
}

// GetMapParams builds the GetMap query: defaults, then the computed keys,
// then the configured getmap params appended (a configured key that matches a
// computed one ends up with two values), then dimensions.
func (c *Config) GetMapParams(req MapRequest) *params.Table {
	p := c.defaultParams.Clone()
	p.Set("BBOX", req.Extent.String())
	p.Set("WIDTH", strconv.Itoa(req.Width))
	p.Set("HEIGHT", strconv.Itoa(req.Height))
	p.Set("FORMAT", defaultImageFormat)
	p.Set("SRS", req.SRS)

	p.Merge(c.getMapParams, params.Append)
	applyDimensions(p, req.Dimensions)
	return p
}

// GetFeatureInfoParams builds the GetFeatureInfo query. The order differs
// from GetMap: configured getmap params come before the computed keys and
// are overridden by them, while configured getfeatureinfo params are
// appended after and may duplicate a computed key.
func (c *Config) GetFeatureInfoParams(req FeatureInfoRequest) *params.Table {
	p := c.defaultParams.Clone()
	p.Merge(c.getMapParams, params.Append)

	p.Set("BBOX", req.Extent.String())
	p.Set("REQUEST", "GetFeatureInfo")
	p.Set("WIDTH", strconv.Itoa(req.Width))
	p.Set("HEIGHT", strconv.Itoa(req.Height))
	p.Set("SRS", req.SRS)
	p.Set("X", strconv.Itoa(req.I))
	p.Set("Y", strconv.Itoa(req.J))
	p.Set("INFO_FORMAT", req.InfoFormat)

	p.Merge(c.getFeatureInfoParams, params.Append)
	applyDimensions(p, req.Dimensions)
	return p
}

func applyDimensions(p, dims *params.Table) {
	dims.Each(func(k, v string) bool {
		p.Set(k, v)
		return true
	})
}
