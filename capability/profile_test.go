package capability

import (
	"errors"
	"testing"
	"time"

	"github.com/BaSui01/adregistry/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildProfile_ToolMapping(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		tools    []string
		sales    *SalesCapabilities
		creative *CreativeCapabilities
		signals  *SignalsCapabilities
		want     types.AgentType
	}{
		{
			name:  "sales agent",
			tools: []string{"get_products", "create_media_buy", "list_authorized_properties"},
			sales: &SalesCapabilities{
				Search: true, Availability: true, Pricing: true,
				Reserve: true, CreateOrder: true, ListProperties: true,
			},
			want: types.AgentTypeSales,
		},
		{
			name:  "search only sales agent",
			tools: []string{"get_products", "unrelated"},
			sales: &SalesCapabilities{Search: true, Availability: true, Pricing: true},
			want:  types.AgentTypeSales,
		},
		{
			name:     "creative agent",
			tools:    []string{"list_creative_formats", "build_creative", "preview_creative"},
			creative: &CreativeCapabilities{FormatsSupported: []string{}, Generate: true, Preview: true},
			want:     types.AgentTypeCreative,
		},
		{
			name:    "signals agent",
			tools:   []string{"get_signals", "activate_signal"},
			signals: &SignalsCapabilities{GetSignals: true, Match: true, Activate: true},
			want:    types.AgentTypeSignals,
		},
		{
			name:  "no recognized tools",
			tools: []string{"echo"},
			want:  types.AgentTypeUnknown,
		},
		{
			name:     "sales and creative collapse to unknown",
			tools:    []string{"get_products", "build_creative"},
			sales:    &SalesCapabilities{Search: true, Availability: true, Pricing: true},
			creative: &CreativeCapabilities{FormatsSupported: []string{}, Generate: true},
			want:     types.AgentTypeUnknown,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := buildProfile("https://agent.example", types.ProtocolMCP, tt.tools, now)
			assert.Equal(t, tt.sales, p.Sales)
			assert.Equal(t, tt.creative, p.Creative)
			assert.Equal(t, tt.signals, p.Signals)
			assert.Equal(t, tt.want, InferTypeFromProfile(p))
			assert.Equal(t, now, p.DiscoveredAt)
		})
	}
}

func TestProfile_Kinds(t *testing.T) {
	p := buildProfile("u", types.ProtocolA2A, []string{"get_signals", "get_products", "validate_creative"}, time.Now())
	assert.Equal(t, []types.AgentType{types.AgentTypeSales, types.AgentTypeCreative, types.AgentTypeSignals}, p.Kinds())
	assert.Equal(t, types.AgentTypeUnknown, InferTypeFromProfile(p))
}

func TestInferTypeFromProfile_ErrorProfile(t *testing.T) {
	p := errorProfile("u", types.ProtocolMCP, errors.New("connection refused"), time.Now())
	require.True(t, p.Failed())
	assert.Empty(t, p.Tools)
	assert.NotNil(t, p.Tools)
	assert.Equal(t, "connection refused", p.DiscoveryError)
	assert.Equal(t, types.AgentTypeUnknown, InferTypeFromProfile(p))
	assert.Equal(t, types.AgentTypeUnknown, InferTypeFromProfile(nil))
}
