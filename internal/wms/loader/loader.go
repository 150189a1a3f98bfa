// Package loader reads a sources file, picks the configuration syntax from
// the file extension and hands each source fragment to the matching
// front-end of package source.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/core/observability"
	"github.com/mohammed-shakir/wms-source/internal/wms/source"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
	"github.com/mohammed-shakir/wms-source/internal/wms/xmltree"
)

type Syntax int

const (
	SyntaxJSON Syntax = iota + 1
	SyntaxYAML
	SyntaxXML
)

func (s Syntax) String() string {
	switch s {
	case SyntaxJSON:
		return "json"
	case SyntaxYAML:
		return "yaml"
	case SyntaxXML:
		return "xml"
	default:
		return "unknown"
	}
}

const sourceTypeWMS = "wms"

// SyntaxFromPath maps a file extension to a syntax.
func SyntaxFromPath(path string) (Syntax, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		return SyntaxJSON, nil
	case ".yaml", ".yml":
		return SyntaxYAML, nil
	case ".xml":
		return SyntaxXML, nil
	default:
		return 0, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
}

func LoadFile(path string) ([]*source.Config, error) {
	syn, err := SyntaxFromPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Load(data, syn)
}

// Load parses every source in data and checks it. Problems in one source do
// not stop the others from being examined; all errors are returned joined
// and no configs are returned in that case.
func Load(data []byte, syn Syntax) ([]*source.Config, error) {
	var (
		cfgs []*source.Config
		err  error
	)
	switch syn {
	case SyntaxJSON:
		cfgs, err = loadObject(data)
	case SyntaxYAML:
		var js []byte
		if js, err = yamlToJSON(data); err == nil {
			cfgs, err = loadObject(js)
		}
	case SyntaxXML:
		cfgs, err = loadElement(data)
	default:
		return nil, fmt.Errorf("unsupported syntax %v", syn)
	}
	if err != nil {
		for _, e := range wmserr.All(err) {
			observability.IncConfigError(e.Source, e.Kind.String())
		}
		return nil, err
	}
	return cfgs, nil
}

func loadObject(data []byte) ([]*source.Config, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("decode json: invalid document")
	}
	sources := gjson.GetBytes(data, "sources")
	if !sources.IsArray() {
		return nil, errors.New(`config has no "sources" array`)
	}

	var (
		out  []*source.Config
		errs []error
	)
	seen := map[string]bool{}
	for i, props := range sources.Array() {
		name := props.Get("name").String()
		if err := checkHeader(i, name, props.Get("type").String(), seen); err != nil {
			errs = append(errs, err)
			continue
		}
		c, err := source.ParseObject(name, props)
		if err == nil {
			err = c.Check()
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func loadElement(data []byte) ([]*source.Config, error) {
	root, err := xmltree.Parse(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	var (
		out  []*source.Config
		errs []error
	)
	seen := map[string]bool{}
	for i, n := range root.ChildrenNamed("source") {
		name := n.Attr("name")
		if err := checkHeader(i, name, n.Attr("type"), seen); err != nil {
			errs = append(errs, err)
			continue
		}
		c, err := source.ParseElement(name, n)
		if err == nil {
			err = c.Check()
		}
		if err != nil {
			errs = append(errs, err)
			continue
		}
		out = append(out, c)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return out, nil
}

func checkHeader(idx int, name, typ string, seen map[string]bool) error {
	if name == "" {
		return wmserr.NewMissingField("", "name", "source #%d has no name", idx)
	}
	if seen[name] {
		return wmserr.NewInvalidField(name, "name", "duplicate source name %q", name)
	}
	seen[name] = true
	if typ != sourceTypeWMS {
		return wmserr.NewUnsupportedSourceType(name, typ)
	}
	return nil
}
