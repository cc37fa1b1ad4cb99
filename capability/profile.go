package capability

import (
	"time"

	"github.com/BaSui01/adregistry/types"
)

// SalesCapabilities are derived from a sales agent's tools.
type SalesCapabilities struct {
	Search         bool `json:"search"`
	Availability   bool `json:"availability"`
	Pricing        bool `json:"pricing"`
	Reserve        bool `json:"reserve"`
	CreateOrder    bool `json:"create_order"`
	ListProperties bool `json:"list_properties"`
}

// CreativeCapabilities are derived from a creative agent's tools.
type CreativeCapabilities struct {
	FormatsSupported []string `json:"formats_supported"`
	Generate         bool     `json:"generate"`
	Validate         bool     `json:"validate"`
	Preview          bool     `json:"preview"`
}

// SignalsCapabilities are derived from a signals agent's tools.
type SignalsCapabilities struct {
	GetSignals bool `json:"get_signals"`
	Match      bool `json:"match"`
	Activate   bool `json:"activate"`
}

// Profile 是一次能力发现的结果。
// Sales/Creative/Signals 只有在代理暴露了对应工具时才非空。
type Profile struct {
	AgentURL       string                `json:"agent_url"`
	Protocol       types.Protocol        `json:"protocol"`
	Tools          []string              `json:"discovered_tools"`
	Sales          *SalesCapabilities    `json:"standard_operations,omitempty"`
	Creative       *CreativeCapabilities `json:"creative_capabilities,omitempty"`
	Signals        *SignalsCapabilities  `json:"signals_capabilities,omitempty"`
	DiscoveredAt   time.Time             `json:"last_discovered"`
	DiscoveryError string                `json:"discovery_error,omitempty"`
}

// Clone returns a deep copy of p.
func (p *Profile) Clone() *Profile {
	if p == nil {
		return nil
	}
	c := *p
	c.Tools = append([]string(nil), p.Tools...)
	if p.Sales != nil {
		sales := *p.Sales
		c.Sales = &sales
	}
	if p.Creative != nil {
		creative := *p.Creative
		creative.FormatsSupported = append([]string(nil), p.Creative.FormatsSupported...)
		c.Creative = &creative
	}
	if p.Signals != nil {
		signals := *p.Signals
		c.Signals = &signals
	}
	return &c
}

// Failed reports whether discovery could not reach the agent.
func (p *Profile) Failed() bool {
	return p.DiscoveryError != ""
}

// Kinds lists the agent types whose capability block is populated,
// in sales, creative, signals order.
func (p *Profile) Kinds() []types.AgentType {
	var kinds []types.AgentType
	if p.Sales != nil {
		kinds = append(kinds, types.AgentTypeSales)
	}
	if p.Creative != nil {
		kinds = append(kinds, types.AgentTypeCreative)
	}
	if p.Signals != nil {
		kinds = append(kinds, types.AgentTypeSignals)
	}
	return kinds
}

// InferTypeFromProfile returns the single populated kind, or unknown when
// zero or several blocks are populated.
func InferTypeFromProfile(p *Profile) types.AgentType {
	if p == nil || p.Failed() {
		return types.AgentTypeUnknown
	}
	kinds := p.Kinds()
	if len(kinds) != 1 {
		return types.AgentTypeUnknown
	}
	return kinds[0]
}

// Tool names recognized during discovery.
const (
	ToolGetProducts              = "get_products"
	ToolCreateMediaBuy           = "create_media_buy"
	ToolListAuthorizedProperties = "list_authorized_properties"
	ToolListCreativeFormats      = "list_creative_formats"
	ToolBuildCreative            = "build_creative"
	ToolValidateCreative         = "validate_creative"
	ToolPreviewCreative          = "preview_creative"
	ToolGetSignals               = "get_signals"
	ToolActivateSignal           = "activate_signal"
)

// buildProfile maps tool names onto capability blocks. Creative formats
// are filled in later by the caller.
func buildProfile(agentURL string, proto types.Protocol, tools []string, now time.Time) *Profile {
	p := &Profile{
		AgentURL:     agentURL,
		Protocol:     proto,
		Tools:        tools,
		DiscoveredAt: now,
	}
	if tools == nil {
		p.Tools = []string{}
	}

	has := make(map[string]bool, len(tools))
	for _, t := range tools {
		has[t] = true
	}

	if has[ToolGetProducts] || has[ToolCreateMediaBuy] || has[ToolListAuthorizedProperties] {
		p.Sales = &SalesCapabilities{
			Search:         has[ToolGetProducts],
			Availability:   has[ToolGetProducts],
			Pricing:        has[ToolGetProducts],
			Reserve:        has[ToolCreateMediaBuy],
			CreateOrder:    has[ToolCreateMediaBuy],
			ListProperties: has[ToolListAuthorizedProperties],
		}
	}
	if has[ToolListCreativeFormats] || has[ToolBuildCreative] || has[ToolValidateCreative] || has[ToolPreviewCreative] {
		p.Creative = &CreativeCapabilities{
			FormatsSupported: []string{},
			Generate:         has[ToolBuildCreative],
			Validate:         has[ToolValidateCreative],
			Preview:          has[ToolPreviewCreative],
		}
	}
	if has[ToolGetSignals] || has[ToolActivateSignal] {
		p.Signals = &SignalsCapabilities{
			GetSignals: has[ToolGetSignals],
			Match:      has[ToolGetSignals],
			Activate:   has[ToolActivateSignal],
		}
	}
	return p
}

func errorProfile(agentURL string, proto types.Protocol, err error, now time.Time) *Profile {
	return &Profile{
		AgentURL:       agentURL,
		Protocol:       proto,
		Tools:          []string{},
		DiscoveredAt:   now,
		DiscoveryError: err.Error(),
	}
}
