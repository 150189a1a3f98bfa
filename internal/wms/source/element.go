package source

import (
	"strings"

	"github.com/mohammed-shakir/wms-source/internal/wms/params"
	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
	"github.com/mohammed-shakir/wms-source/internal/wms/xmltree"
)

// ParseElement fills a Config from the element syntax:
//
//	<getmap><params><LAYERS>...</LAYERS></params></getmap>
//	<getfeatureinfo>
//	  <info_formats>text/plain,application/vnd.ogc.gml</info_formats>
//	  <params><QUERY_LAYERS>...</QUERY_LAYERS></params>
//	</getfeatureinfo>
//	<http>...</http>
//
// <http> is optional here; a config without it fails Check instead.
// info_formats keep their left-to-right order.
func ParseElement(name string, node *xmltree.Node) (*Config, error) {
	c := NewConfig(name)

	gm := node.Child("getmap")
	if gm == nil {
		return nil, wmserr.NewMissingField(name, "getmap", "wms source %s has no <getmap> block", name)
	}
	gmParams := gm.Child("params")
	if gmParams == nil {
		return nil, wmserr.NewMissingField(name, "params",
			"wms source %s <getmap> has no <params> block (should contain at least <LAYERS> child)", name)
	}
	elementKeyValues(gmParams, c.getMapParams)

	if fi := node.Child("getfeatureinfo"); fi != nil {
		formats := fi.Child("info_formats")
		if formats == nil {
			return nil, wmserr.NewMissingField(name, "info_formats",
				"wms source %s <getfeatureinfo> has no <info_formats> tag", name)
		}
		c.infoFormats = splitFormats(formats.Text)

		fiParams := fi.Child("params")
		if fiParams == nil {
			return nil, wmserr.NewMissingField(name, "params",
				"wms source %s <getfeatureinfo> has no <params> block (should contain at least <QUERY_LAYERS> child)", name)
		}
		elementKeyValues(fiParams, c.getFeatureInfoParams)
	}

	if h := node.Child("http"); h != nil {
		ep, err := upstream.ParseElement(name, h)
		if err != nil {
			return nil, err
		}
		c.endpoint = ep
	}
	return c, nil
}

func elementKeyValues(n *xmltree.Node, dst *params.Table) {
	for _, child := range n.Children {
		dst.Set(child.Name, child.Text)
	}
}

// splitFormats splits on commas, dropping empty tokens.
func splitFormats(s string) []string {
	var out []string
	for tok := range strings.SplitSeq(s, ",") {
		if tok != "" {
			out = append(out, tok)
		}
	}
	return out
}
