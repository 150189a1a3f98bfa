package source

import (
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

// ParseObject fills a Config from the object syntax:
//
//	{
//	  "http": {...},
//	  "getmap": {"params": {"LAYERS": "..."}},
//	  "getfeatureinfo": {"info_formats": ["text/plain"], "params": {"QUERY_LAYERS": "..."}}
//	}
//
// Parsing stops at the first structural problem. info_formats are stored
// last element first.
func ParseObject(name string, props gjson.Result) (*Config, error) {
	c := NewConfig(name)

	h := props.Get("http")
	if !h.Exists() {
		return nil, wmserr.NewMissingField(name, "http", "wms source %s has no http object", name)
	}
	ep, err := upstream.ParseObject(name, h)
	if err != nil {
		return nil, err
	}
	c.endpoint = ep

	gm := props.Get("getmap")
	if !gm.Exists() {
		return nil, wmserr.NewMissingField(name, "getmap", "wms source %s has no getmap object", name)
	}
	if err := objectKeyValues(name, "getmap", gm, c.getMapParams); err != nil {
		return nil, err
	}

	fi := props.Get("getfeatureinfo")
	if !fi.Exists() {
		return c, nil
	}
	var formats []gjson.Result
	if f := fi.Get("info_formats"); f.IsArray() {
		formats = f.Array()
	}
	if len(formats) == 0 {
		return nil, wmserr.NewMissingField(name, "info_formats", "wms source %s getfeatureinfo has no info_formats", name)
	}
	c.infoFormats = make([]string, 0, len(formats))
	for i := len(formats) - 1; i >= 0; i-- {
		if formats[i].Type != gjson.String {
			return nil, wmserr.NewInvalidField(name, "info_formats", "failed to parse info_format for source %s", name)
		}
		c.infoFormats = append(c.infoFormats, formats[i].Str)
	}
	if err := objectKeyValues(name, "getfeatureinfo", fi, c.getFeatureInfoParams); err != nil {
		return nil, err
	}
	return c, nil
}

// objectKeyValues copies block.params into dst in document order.
func objectKeyValues(name, block string, v gjson.Result, dst *params.Table) error {
	p := v.Get("params")
	if !p.Exists() {
		return wmserr.NewMissingField(name, "params", "wms source %s %s has no params object", name, block)
	}
	if !p.IsObject() {
		return wmserr.NewInvalidField(name, "params", "wms source %s %s params must be an object", name, block)
	}
	var err error
	p.ForEach(func(k, val gjson.Result) bool {
		if val.IsObject() || val.IsArray() {
			err = wmserr.NewInvalidField(name, "params",
				"wms source %s %s param %q must be a scalar", name, block, k.String())
			return false
		}
		dst.Set(k.String(), scalarText(val))
		return true
	})
	return err
}

// scalarText keeps numbers and booleans as written; String would reformat
// 96.0 as 96.
func scalarText(v gjson.Result) string {
	switch v.Type {
	case gjson.Number, gjson.True, gjson.False:
		return v.Raw
	default:
		return v.String()
	}
}
