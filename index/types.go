package index

import (
	"time"

	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
)

// Record origins in federated listings.
const (
	OriginRegistered = "registered"
	OriginDiscovered = "discovered"
)

// FederatedAgent is one entry of ListAllAgents. Registered entries carry
// Member; discovered entries carry their crawl provenance.
type FederatedAgent struct {
	URL      string            `json:"url"`
	Name     string            `json:"name,omitempty"`
	Type     types.AgentType   `json:"type"`
	Protocol types.Protocol    `json:"protocol"`
	Origin   string            `json:"origin"`
	Member   *types.MemberInfo `json:"member,omitempty"`

	SourceType   string     `json:"source_type,omitempty"`
	SourceDomain string     `json:"source_domain,omitempty"`
	DiscoveredAt *time.Time `json:"discovered_at,omitempty"`
	LastProbed   *time.Time `json:"last_probed,omitempty"`
}

// FederatedPublisher is one entry of ListAllPublishers.
type FederatedPublisher struct {
	Domain string            `json:"domain"`
	Origin string            `json:"origin"`
	Member *types.MemberInfo `json:"member,omitempty"`

	DiscoveredByAgent string     `json:"discovered_by_agent,omitempty"`
	HasValidAdagents  bool       `json:"has_valid_adagents,omitempty"`
	DiscoveredAt      *time.Time `json:"discovered_at,omitempty"`
}

// DomainAgent is an agent linked to a domain by one authorization record.
type DomainAgent struct {
	AgentURL      string                    `json:"agent_url"`
	Name          string                    `json:"name,omitempty"`
	Type          types.AgentType           `json:"type,omitempty"`
	AuthorizedFor string                    `json:"authorized_for,omitempty"`
	PropertyIDs   []string                  `json:"property_ids,omitempty"`
	Source        types.AuthorizationSource `json:"source"`
	Member        *types.MemberInfo         `json:"member,omitempty"`
}

// DomainLookup answers "who sells this domain".
type DomainLookup struct {
	Domain string `json:"domain"`
	// AuthorizedAgents are verified by the domain's own adagents.json.
	AuthorizedAgents []DomainAgent `json:"authorized_agents"`
	// SalesAgentsClaiming assert the domain without publisher confirmation.
	SalesAgentsClaiming []DomainAgent       `json:"sales_agents_claiming"`
	Publisher           *FederatedPublisher `json:"publisher,omitempty"`
}

// AgentDomain is one publisher domain an agent is linked to, with the
// strongest evidence available.
type AgentDomain struct {
	Domain        string                    `json:"domain"`
	Source        types.AuthorizationSource `json:"source"`
	AuthorizedFor string                    `json:"authorized_for,omitempty"`
	PropertyIDs   []string                  `json:"property_ids,omitempty"`
}

// SelectorResult is the coverage of a single selector.
type SelectorResult struct {
	PublisherDomain   string              `json:"publisher_domain"`
	SelectionType     types.SelectionType `json:"selection_type"`
	RequestedCount    int                 `json:"requested_count"`
	AuthorizedCount   int                 `json:"authorized_count"`
	VerifiedCount     int                 `json:"verified_count"`
	UnauthorizedItems []string            `json:"unauthorized_items,omitempty"`
}

// ValidationResult is the outcome of ValidateAgentForProduct.
type ValidationResult struct {
	AgentURL           string           `json:"agent_url"`
	Selectors          []SelectorResult `json:"selectors"`
	TotalRequested     int              `json:"total_requested"`
	TotalAuthorized    int              `json:"total_authorized"`
	TotalVerified      int              `json:"total_verified"`
	CoveragePercentage float64          `json:"coverage_percentage"`
	// FullyAuthorized is true when something was requested and all of it is covered.
	FullyAuthorized bool `json:"fully_authorized"`
}

// PointAuthorization is the answer of IsPropertyAuthorizedForAgent.
type PointAuthorization struct {
	Authorized      bool                      `json:"authorized"`
	Source          types.AuthorizationSource `json:"source,omitempty"`
	PropertyID      string                    `json:"property_id,omitempty"`
	PublisherDomain string                    `json:"publisher_domain,omitempty"`
	// MatchedIdentifier is the identifier that resolved the property; it
	// differs from the query when a parent domain matched via include_subdomains.
	MatchedIdentifier *types.IdentifierKey `json:"matched_identifier,omitempty"`
}

// Stats aggregates registered and discovered counts.
type Stats struct {
	RegisteredAgents     int           `json:"registered_agents"`
	RegisteredPublishers int           `json:"registered_publishers"`
	Discovered           *store.Counts `json:"discovered"`
}
