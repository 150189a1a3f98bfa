package source

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/mohammed-shakir/wms-source/internal/wms/upstream"
	"github.com/mohammed-shakir/wms-source/internal/wms/wmserr"
)

func TestCheck_MissingLayersInBothSyntaxes(t *testing.T) {
	obj, err := ParseObject("osm", gjson.Parse(`{"http": {"url": "http://x.org/"}, "getmap": {"params": {"FORMAT": "image/jpeg"}}}`))
	require.NoError(t, err)
	assert.ErrorIs(t, obj.Check(), &wmserr.Error{Kind: wmserr.MissingRequiredParam, Field: "LAYERS"})

	el, err := parseElement(t, "osm", `<source><getmap><params><FORMAT>image/jpeg</FORMAT></params></getmap>
		<http><url>http://x.org/</url></http></source>`)
	require.NoError(t, err)
	assert.ErrorIs(t, el.Check(), &wmserr.Error{Kind: wmserr.MissingRequiredParam, Field: "LAYERS"})
}

func TestCheck_MissingQueryLayersOnlyWhenFeatureInfoEnabled(t *testing.T) {
	c := NewConfig("osm")
	c.endpoint = &upstream.Endpoint{URL: "http://x.org/"}
	c.getMapParams.Set("LAYERS", "a")
	require.NoError(t, c.Check())

	c.infoFormats = []string{"text/plain"}
	err := c.Check()
	assert.ErrorIs(t, err, &wmserr.Error{Kind: wmserr.MissingRequiredParam, Field: "QUERY_LAYERS"})
	assert.Equal(t, http.StatusBadRequest, wmserr.StatusCode(err))
}

func TestCheck_ReportsEveryViolation(t *testing.T) {
	c := NewConfig("osm")
	c.infoFormats = []string{"text/plain"}

	err := c.Check()
	all := wmserr.All(err)
	require.Len(t, all, 3)
	assert.Equal(t, wmserr.MissingEndpoint, all[0].Kind)
	assert.Equal(t, "LAYERS", all[1].Field)
	assert.Equal(t, "QUERY_LAYERS", wmserr.Last(err).Field)
	for _, e := range all {
		assert.Equal(t, "osm", e.Source)
		assert.Contains(t, e.Error(), "osm")
	}
}

func TestNewConfig_DefaultsOwnedPerSource(t *testing.T) {
	a := NewConfig("a")
	b := NewConfig("b")
	a.defaultParams.Set("VERSION", "1.3.0")

	v, _ := b.DefaultParams().Get("VERSION")
	assert.Equal(t, "1.1.1", v)
	assert.Equal(t, "VERSION=1.1.1&REQUEST=GetMap&SERVICE=WMS&STYLES=", b.DefaultParams().Encode())
}
