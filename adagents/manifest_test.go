package adagents

import (
	"encoding/json"
	"testing"

	"github.com/BaSui01/adregistry/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestManifest_PropertiesFor(t *testing.T) {
	var m Manifest
	require.NoError(t, json.Unmarshal([]byte(validManifest), &m))

	all := m.PropertiesFor(AuthorizedAgent{URL: "https://all.example"})
	assert.Len(t, all, 2)

	subset := m.PropertiesFor(AuthorizedAgent{URL: "https://x", PropertyIDs: []string{"home", "missing"}})
	require.Len(t, subset, 1, "unknown ids are dropped")
	assert.Equal(t, "home", subset[0].PropertyID)
}

func TestProperty_ToDiscovered(t *testing.T) {
	p := Property{
		PropertyID:   "home",
		PropertyType: types.PropertyTypeWebsite,
		Name:         "Home",
		Identifiers:  []types.Identifier{{Type: "domain", Value: "news.example"}},
	}
	d := p.ToDiscovered("News.Example")
	assert.Equal(t, "news.example", d.PublisherDomain)
	assert.Equal(t, "home", d.PropertyID)

	p.PublisherDomain = "other.example"
	assert.Equal(t, "other.example", p.ToDiscovered("news.example").PublisherDomain)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		valid  bool
		errors int
	}{
		{"valid", validManifest, true, 0},
		{"empty agent list is valid", `{"authorized_agents": []}`, true, 0},
		{"missing authorized_agents", `{"properties": []}`, false, 1},
		{"agent without url", `{"authorized_agents": [{"authorized_for": "x"}]}`, false, 1},
		{"relative agent url", `{"authorized_agents": [{"url": "/mcp"}]}`, false, 1},
		{
			"property without identity",
			`{"authorized_agents": [], "properties": [{"property_type": "website", "identifiers": [{"type": "domain", "value": "a.example"}]}]}`,
			false, 1,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var m Manifest
			require.NoError(t, json.Unmarshal([]byte(tt.body), &m))
			res := Validate("pub.example", &m)
			assert.Equal(t, tt.valid, res.Valid)
			assert.Len(t, res.Errors, tt.errors)
		})
	}
}
