package types

import "time"

// AgentType classifies what an agent does.
type AgentType string

const (
	AgentTypeSales    AgentType = "sales"
	AgentTypeCreative AgentType = "creative"
	AgentTypeSignals  AgentType = "signals"
	AgentTypeUnknown  AgentType = "unknown"
)

// Known reports whether the type is set and not "unknown".
func (t AgentType) Known() bool {
	return t != "" && t != AgentTypeUnknown
}

// ParseAgentType maps free-form input to an AgentType, defaulting to unknown.
func ParseAgentType(s string) AgentType {
	switch AgentType(s) {
	case AgentTypeSales, AgentTypeCreative, AgentTypeSignals:
		return AgentType(s)
	default:
		return AgentTypeUnknown
	}
}

// Protocol is the wire protocol an agent speaks.
type Protocol string

const (
	ProtocolMCP Protocol = "mcp"
	ProtocolA2A Protocol = "a2a"
)

// ParseProtocol defaults to MCP for empty or unrecognized input.
func ParseProtocol(s string) Protocol {
	if Protocol(s) == ProtocolA2A {
		return ProtocolA2A
	}
	return ProtocolMCP
}

// AuthorizationSource records where authorization evidence came from.
type AuthorizationSource string

const (
	// SourceAdagentsJSON is publisher-asserted evidence from the domain's own manifest.
	SourceAdagentsJSON AuthorizationSource = "adagents_json"
	// SourceAgentClaim is agent-asserted evidence, unverified until the publisher confirms.
	SourceAgentClaim AuthorizationSource = "agent_claim"
	// SourceNone means no evidence exists.
	SourceNone AuthorizationSource = ""
)

// Rank orders sources; higher wins.
func (s AuthorizationSource) Rank() int {
	switch s {
	case SourceAdagentsJSON:
		return 2
	case SourceAgentClaim:
		return 1
	default:
		return 0
	}
}

// Stronger returns the higher ranked of the two sources.
func Stronger(a, b AuthorizationSource) AuthorizationSource {
	if b.Rank() > a.Rank() {
		return b
	}
	return a
}

// Visibility of a registered member record.
type Visibility string

const (
	VisibilityPublic      Visibility = "public"
	VisibilityMembersOnly Visibility = "members_only"
	VisibilityPrivate     Visibility = "private"
)

// MemberInfo is the registered-member metadata attached to federated results.
type MemberInfo struct {
	MemberID   string     `json:"member_id" yaml:"member_id"`
	MemberName string     `json:"member_name" yaml:"member_name"`
	Visibility Visibility `json:"visibility,omitempty" yaml:"visibility"`
}

// RegisteredAgent is an agent declared in a member profile. Read-only here.
type RegisteredAgent struct {
	URL        string     `json:"url" yaml:"url"`
	Name       string     `json:"name" yaml:"name"`
	Type       AgentType  `json:"type" yaml:"type"`
	Protocol   Protocol   `json:"protocol" yaml:"protocol"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	Member     MemberInfo `json:"member" yaml:"member"`
}

// RegisteredPublisher is a publisher domain declared in a member profile.
type RegisteredPublisher struct {
	Domain     string     `json:"domain" yaml:"domain"`
	Visibility Visibility `json:"visibility" yaml:"visibility"`
	Member     MemberInfo `json:"member" yaml:"member"`
}

// DiscoveredAgent is an agent found by crawling.
type DiscoveredAgent struct {
	URL          string     `json:"agent_url"`
	Name         string     `json:"name,omitempty"`
	Type         AgentType  `json:"agent_type"`
	Protocol     Protocol   `json:"protocol"`
	SourceType   string     `json:"source_type"`
	SourceDomain string     `json:"source_domain,omitempty"`
	DiscoveredAt time.Time  `json:"discovered_at"`
	LastProbed   *time.Time `json:"last_probed,omitempty"`
	LastSeenAt   time.Time  `json:"last_seen_at"`
}

// Discovered agent source types.
const (
	AgentSourceAdagentsJSON = "adagents_json"
	AgentSourceProbe        = "probe"
)

// DiscoveredPublisher is a publisher domain found by crawling.
type DiscoveredPublisher struct {
	Domain            string    `json:"domain"`
	DiscoveredByAgent string    `json:"discovered_by_agent,omitempty"`
	HasValidAdagents  bool      `json:"has_valid_adagents"`
	DiscoveredAt      time.Time `json:"discovered_at"`
	LastSeenAt        time.Time `json:"last_seen_at"`
}

// AgentPublisherAuthorization links an agent to a publisher domain.
type AgentPublisherAuthorization struct {
	AgentURL        string              `json:"agent_url"`
	PublisherDomain string              `json:"publisher_domain"`
	AuthorizedFor   string              `json:"authorized_for,omitempty"`
	PropertyIDs     []string            `json:"property_ids,omitempty"`
	Source          AuthorizationSource `json:"source"`
	LastSeenAt      time.Time           `json:"last_seen_at"`
}

// AgentPropertyAuthorization links an agent to a single property.
type AgentPropertyAuthorization struct {
	AgentURL      string              `json:"agent_url"`
	PropertyID    string              `json:"property_id"`
	AuthorizedFor string              `json:"authorized_for,omitempty"`
	Source        AuthorizationSource `json:"source"`
	LastSeenAt    time.Time           `json:"last_seen_at"`
}
