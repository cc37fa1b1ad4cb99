// Package store persists discovered agents, publishers, properties and the
// two authorization relations. Every write is an idempotent upsert keyed by
// a natural identifier, so a crawl pass interrupted half way leaves a
// consistent index behind.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/adregistry/types"
)

// ErrNotFound is returned by point reads that match nothing.
var ErrNotFound = errors.New("store: record not found")

// AuthorizationFilter narrows ListPublisherAuthorizations. Empty fields match all.
type AuthorizationFilter struct {
	AgentURL        string
	PublisherDomain string
	Source          types.AuthorizationSource
}

// Counts is an aggregate snapshot of the store.
type Counts struct {
	Agents                  int64                               `json:"agents"`
	AgentsByType            map[types.AgentType]int64           `json:"agents_by_type"`
	Publishers              int64                               `json:"publishers"`
	PublishersWithAdagents  int64                               `json:"publishers_with_adagents"`
	Properties              int64                               `json:"properties"`
	PublisherAuthorizations map[types.AuthorizationSource]int64 `json:"publisher_authorizations"`
	PropertyAuthorizations  map[types.AuthorizationSource]int64 `json:"property_authorizations"`
}

// CleanupResult reports how many rows a TTL sweep removed.
type CleanupResult struct {
	Agents                  int64 `json:"agents"`
	Publishers              int64 `json:"publishers"`
	Properties              int64 `json:"properties"`
	PublisherAuthorizations int64 `json:"publisher_authorizations"`
	PropertyAuthorizations  int64 `json:"property_authorizations"`
}

// Total sums every category.
func (r *CleanupResult) Total() int64 {
	return r.Agents + r.Publishers + r.Properties + r.PublisherAuthorizations + r.PropertyAuthorizations
}

// Store is the persistence contract of the federated index.
//
// Upserts merge into existing rows: discovered_at is kept from the first
// sighting, last_seen_at is refreshed, and a known agent type is never
// overwritten by "unknown".
type Store interface {
	UpsertAgent(ctx context.Context, agent *types.DiscoveredAgent) error
	GetAgent(ctx context.Context, agentURL string) (*types.DiscoveredAgent, error)
	// ListAgents returns agents of the given type, or all agents when agentType is empty.
	ListAgents(ctx context.Context, agentType types.AgentType) ([]*types.DiscoveredAgent, error)
	// SetAgentType records a probe outcome, creating the agent row if needed.
	SetAgentType(ctx context.Context, agentURL string, agentType types.AgentType, probedAt time.Time) error

	UpsertPublisher(ctx context.Context, publisher *types.DiscoveredPublisher) error
	GetPublisher(ctx context.Context, domain string) (*types.DiscoveredPublisher, error)
	ListPublishers(ctx context.Context) ([]*types.DiscoveredPublisher, error)

	UpsertProperty(ctx context.Context, property *types.DiscoveredProperty) error
	GetProperty(ctx context.Context, id string) (*types.DiscoveredProperty, error)
	ListPropertiesByDomain(ctx context.Context, domain string) ([]*types.DiscoveredProperty, error)
	FindPropertiesByIdentifier(ctx context.Context, key types.IdentifierKey) ([]*types.DiscoveredProperty, error)

	UpsertPublisherAuthorization(ctx context.Context, auth *types.AgentPublisherAuthorization) error
	ListPublisherAuthorizations(ctx context.Context, filter AuthorizationFilter) ([]*types.AgentPublisherAuthorization, error)

	UpsertPropertyAuthorization(ctx context.Context, auth *types.AgentPropertyAuthorization) error
	ListPropertyAuthorizations(ctx context.Context, agentURL string) ([]*types.AgentPropertyAuthorization, error)

	// DeleteSeenBefore removes discovered rows whose last_seen_at is older than cutoff.
	DeleteSeenBefore(ctx context.Context, cutoff time.Time) (*CleanupResult, error)
	Counts(ctx context.Context) (*Counts, error)
}

func newCounts() *Counts {
	return &Counts{
		AgentsByType:            make(map[types.AgentType]int64),
		PublisherAuthorizations: make(map[types.AuthorizationSource]int64),
		PropertyAuthorizations:  make(map[types.AuthorizationSource]int64),
	}
}

// mergeAgent folds an incoming sighting into the existing row.
func mergeAgent(existing, incoming *types.DiscoveredAgent) *types.DiscoveredAgent {
	merged := *existing
	if incoming.Name != "" {
		merged.Name = incoming.Name
	}
	if incoming.Type.Known() {
		merged.Type = incoming.Type
	}
	if merged.Type == "" {
		merged.Type = types.AgentTypeUnknown
	}
	if incoming.Protocol != "" {
		merged.Protocol = incoming.Protocol
	}
	if incoming.SourceType != "" {
		merged.SourceType = incoming.SourceType
	}
	if incoming.SourceDomain != "" {
		merged.SourceDomain = incoming.SourceDomain
	}
	if incoming.LastProbed != nil {
		probed := *incoming.LastProbed
		merged.LastProbed = &probed
	}
	if incoming.LastSeenAt.After(merged.LastSeenAt) {
		merged.LastSeenAt = incoming.LastSeenAt
	}
	return &merged
}

func mergePublisher(existing, incoming *types.DiscoveredPublisher) *types.DiscoveredPublisher {
	merged := *existing
	if incoming.DiscoveredByAgent != "" {
		merged.DiscoveredByAgent = incoming.DiscoveredByAgent
	}
	merged.HasValidAdagents = incoming.HasValidAdagents
	if incoming.LastSeenAt.After(merged.LastSeenAt) {
		merged.LastSeenAt = incoming.LastSeenAt
	}
	return &merged
}

func prepareAgent(agent *types.DiscoveredAgent) (*types.DiscoveredAgent, error) {
	a := *agent
	a.URL = types.NormalizeAgentURL(a.URL)
	if a.URL == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "agent url is required")
	}
	if a.Type == "" {
		a.Type = types.AgentTypeUnknown
	}
	if a.Protocol == "" {
		a.Protocol = types.ProtocolMCP
	}
	now := time.Now().UTC()
	if a.LastSeenAt.IsZero() {
		a.LastSeenAt = now
	}
	if a.DiscoveredAt.IsZero() {
		a.DiscoveredAt = a.LastSeenAt
	}
	return &a, nil
}

func preparePublisher(publisher *types.DiscoveredPublisher) (*types.DiscoveredPublisher, error) {
	p := *publisher
	p.Domain = types.NormalizeDomain(p.Domain)
	if p.Domain == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "publisher domain is required")
	}
	if p.DiscoveredByAgent != "" {
		p.DiscoveredByAgent = types.NormalizeAgentURL(p.DiscoveredByAgent)
	}
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = time.Now().UTC()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = p.LastSeenAt
	}
	return &p, nil
}

func prepareProperty(property *types.DiscoveredProperty) (*types.DiscoveredProperty, error) {
	p := cloneProperty(property)
	p.PublisherDomain = types.NormalizeDomain(p.PublisherDomain)
	if p.PublisherDomain == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "property publisher_domain is required")
	}
	if p.PropertyID == "" && p.Name == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "property needs a property_id or a name")
	}
	if p.ID == "" {
		p.ID = types.PropertyKey(p.PublisherDomain, p.PropertyID, p.PropertyType, p.Name)
	}
	if p.Source.Rank() == 0 {
		p.Source = types.SourceAdagentsJSON
	}
	for i := range p.Identifiers {
		key := p.Identifiers[i].Key()
		p.Identifiers[i].Type = key.Type
		p.Identifiers[i].Value = key.Value
	}
	if p.LastSeenAt.IsZero() {
		p.LastSeenAt = time.Now().UTC()
	}
	if p.DiscoveredAt.IsZero() {
		p.DiscoveredAt = p.LastSeenAt
	}
	return p, nil
}

func preparePublisherAuthorization(auth *types.AgentPublisherAuthorization) (*types.AgentPublisherAuthorization, error) {
	a := *auth
	a.AgentURL = types.NormalizeAgentURL(a.AgentURL)
	a.PublisherDomain = types.NormalizeDomain(a.PublisherDomain)
	if a.AgentURL == "" || a.PublisherDomain == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "authorization needs agent_url and publisher_domain")
	}
	if a.Source.Rank() == 0 {
		return nil, types.NewError(types.ErrInvalidRecord, "authorization source is required")
	}
	a.PropertyIDs = append([]string(nil), a.PropertyIDs...)
	if a.LastSeenAt.IsZero() {
		a.LastSeenAt = time.Now().UTC()
	}
	return &a, nil
}

func preparePropertyAuthorization(auth *types.AgentPropertyAuthorization) (*types.AgentPropertyAuthorization, error) {
	a := *auth
	a.AgentURL = types.NormalizeAgentURL(a.AgentURL)
	if a.AgentURL == "" || a.PropertyID == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "property authorization needs agent_url and property_id")
	}
	if a.Source.Rank() == 0 {
		a.Source = types.SourceAdagentsJSON
	}
	if a.LastSeenAt.IsZero() {
		a.LastSeenAt = time.Now().UTC()
	}
	return &a, nil
}

// mergeProperty decides what an upsert over existing stores. A weaker
// source only refreshes LastSeenAt; otherwise incoming replaces the
// description. DiscoveredAt is always kept. keep reports whether the stored
// description (identifiers included) is unchanged.
func mergeProperty(existing, incoming *types.DiscoveredProperty) (merged *types.DiscoveredProperty, keep bool) {
	if incoming.Source.Rank() < existing.Source.Rank() {
		merged = cloneProperty(existing)
		if incoming.LastSeenAt.After(merged.LastSeenAt) {
			merged.LastSeenAt = incoming.LastSeenAt
		}
		return merged, true
	}
	merged = cloneProperty(incoming)
	merged.DiscoveredAt = existing.DiscoveredAt
	return merged, false
}

func cloneProperty(p *types.DiscoveredProperty) *types.DiscoveredProperty {
	c := *p
	c.Identifiers = append([]types.Identifier(nil), p.Identifiers...)
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}
