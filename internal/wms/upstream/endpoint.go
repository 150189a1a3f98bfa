// Package upstream describes the remote WMS endpoint of a source and performs
// the HTTP requests against it.
package upstream

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
	"github.com/mohammed-shakir/wms-source/internal/wms/xmltree"
)

// Endpoint is the HTTP target of a source: base URL, extra request headers
// and timeouts.
type Endpoint struct {
	URL               string        `validate:"required,url"`
	Headers           http.Header   `validate:"-"`
	ConnectionTimeout time.Duration `validate:"gte=0"`
	Timeout           time.Duration `validate:"gte=0"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// configKeys maps struct fields to the keys operators write.
var configKeys = map[string]string{
	"URL":               "url",
	"ConnectionTimeout": "connection_timeout",
	"Timeout":           "timeout",
}

// Validate checks the endpoint fields and reports every violation as an
// InvalidField error for source.
func (e *Endpoint) Validate(source string) error {
	err := validate.Struct(e)
	if err == nil {
		return nil
	}
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return fmt.Errorf("validate endpoint: %w", err)
	}
	errs := make([]error, 0, len(verrs))
	for _, fe := range verrs {
		key, ok := configKeys[fe.Field()]
		if !ok {
			key = strings.ToLower(fe.Field())
		}
		field := "http." + key
		errs = append(errs, wmserr.NewInvalidField(source, field,
			"wms source %s: %s failed %q validation (value %v)", source, field, fe.Tag(), fe.Value()))
	}
	return errors.Join(errs...)
}

// ParseObject builds an Endpoint from the object-syntax "http" block:
//
//	{"url": "...", "headers": {"K": "v"}, "connection_timeout": 30, "timeout": 600}
//
// Timeouts are in seconds.
func ParseObject(source string, v gjson.Result) (*Endpoint, error) {
	if !v.IsObject() {
		return nil, wmserr.NewInvalidField(source, "http", "wms source %s: http must be an object", source)
	}
	ep := &Endpoint{URL: v.Get("url").String()}

	if h := v.Get("headers"); h.Exists() {
		if !h.IsObject() {
			return nil, wmserr.NewInvalidField(source, "http.headers", "wms source %s: http headers must be an object", source)
		}
		ep.Headers = http.Header{}
		h.ForEach(func(k, val gjson.Result) bool {
			ep.Headers.Add(k.String(), val.String())
			return true
		})
	}

	var err error
	if ep.ConnectionTimeout, err = objectSeconds(source, v, "connection_timeout"); err != nil {
		return nil, err
	}
	if ep.Timeout, err = objectSeconds(source, v, "timeout"); err != nil {
		return nil, err
	}
	if err := ep.Validate(source); err != nil {
		return nil, err
	}
	return ep, nil
}

func objectSeconds(source string, v gjson.Result, key string) (time.Duration, error) {
	r := v.Get(key)
	if !r.Exists() {
		return 0, nil
	}
	if r.Type != gjson.Number {
		return 0, wmserr.NewInvalidField(source, "http."+key, "wms source %s: http %s must be a number of seconds", source, key)
	}
	return time.Duration(r.Float() * float64(time.Second)), nil
}

// ParseElement builds an Endpoint from the element-syntax <http> block:
//
//	<http><url>...</url><headers><K>v</K></headers>
//	      <connection_timeout>30</connection_timeout><timeout>600</timeout></http>
func ParseElement(source string, n *xmltree.Node) (*Endpoint, error) {
	ep := &Endpoint{}
	if u := n.Child("url"); u != nil {
		ep.URL = u.Text
	}
	if h := n.Child("headers"); h != nil {
		ep.Headers = http.Header{}
		for _, c := range h.Children {
			ep.Headers.Add(c.Name, c.Text)
		}
	}

	var err error
	if ep.ConnectionTimeout, err = elementSeconds(source, n, "connection_timeout"); err != nil {
		return nil, err
	}
	if ep.Timeout, err = elementSeconds(source, n, "timeout"); err != nil {
		return nil, err
	}
	if err := ep.Validate(source); err != nil {
		return nil, err
	}
	return ep, nil
}

func elementSeconds(source string, n *xmltree.Node, name string) (time.Duration, error) {
	c := n.Child(name)
	if c == nil {
		return 0, nil
	}
	secs, err := strconv.ParseFloat(c.Text, 64)
	if err != nil {
		return 0, wmserr.NewInvalidField(source, "http."+name,
			"wms source %s: failed to parse <%s> %q as seconds", source, name, c.Text)
	}
	return time.Duration(secs * float64(time.Second)), nil
}
