package source

import (
	"errors"

	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

// Check validates a populated config before first use. Every rule is
// evaluated even after a failure; all violations are returned joined, in the
// order they were found (wmserr.Last gives the final one).
func (c *Config) Check() error {
	var errs []error
	if c.endpoint == nil {
		errs = append(errs, wmserr.NewMissingEndpoint(c.name))
	}
	if !c.getMapParams.Has("LAYERS") {
		errs = append(errs, wmserr.NewMissingRequiredParam(c.name, "LAYERS"))
	}
	if len(c.infoFormats) > 0 && !c.getFeatureInfoParams.Has("QUERY_LAYERS") {
		errs = append(errs, wmserr.NewMissingRequiredParam(c.name, "QUERY_LAYERS"))
	}
	return errors.Join(errs...)
}
