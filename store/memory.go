package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/adregistry/types"
)

type publisherAuthKey struct {
	agent  string
	domain string
	source types.AuthorizationSource
}

type propertyAuthKey struct {
	agent    string
	property string
	source   types.AuthorizationSource
}

// MemoryStore is a Store backed by in-memory maps. Results are copies, so
// callers may mutate them freely.
type MemoryStore struct {
	mu             sync.RWMutex
	agents         map[string]*types.DiscoveredAgent
	publishers     map[string]*types.DiscoveredPublisher
	properties     map[string]*types.DiscoveredProperty
	publisherAuths map[publisherAuthKey]*types.AgentPublisherAuthorization
	propertyAuths  map[propertyAuthKey]*types.AgentPropertyAuthorization
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		agents:         make(map[string]*types.DiscoveredAgent),
		publishers:     make(map[string]*types.DiscoveredPublisher),
		properties:     make(map[string]*types.DiscoveredProperty),
		publisherAuths: make(map[publisherAuthKey]*types.AgentPublisherAuthorization),
		propertyAuths:  make(map[propertyAuthKey]*types.AgentPropertyAuthorization),
	}
}

func (s *MemoryStore) UpsertAgent(_ context.Context, agent *types.DiscoveredAgent) error {
	a, err := prepareAgent(agent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.agents[a.URL]; ok {
		a = mergeAgent(existing, a)
	}
	s.agents[a.URL] = a
	return nil
}

func (s *MemoryStore) GetAgent(_ context.Context, agentURL string) (*types.DiscoveredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.agents[types.NormalizeAgentURL(agentURL)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *a
	return &c, nil
}

func (s *MemoryStore) ListAgents(_ context.Context, agentType types.AgentType) ([]*types.DiscoveredAgent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.DiscoveredAgent, 0, len(s.agents))
	for _, a := range s.agents {
		if agentType != "" && a.Type != agentType {
			continue
		}
		c := *a
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].URL < result[j].URL })
	return result, nil
}

func (s *MemoryStore) SetAgentType(_ context.Context, agentURL string, agentType types.AgentType, probedAt time.Time) error {
	url := types.NormalizeAgentURL(agentURL)
	if url == "" {
		return types.NewError(types.ErrInvalidRecord, "agent url is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.agents[url]
	if !ok {
		a = &types.DiscoveredAgent{
			URL:          url,
			Protocol:     types.ProtocolMCP,
			SourceType:   types.AgentSourceProbe,
			DiscoveredAt: probedAt,
			LastSeenAt:   probedAt,
		}
		s.agents[url] = a
	}
	a.Type = agentType
	probed := probedAt
	a.LastProbed = &probed
	return nil
}

func (s *MemoryStore) UpsertPublisher(_ context.Context, publisher *types.DiscoveredPublisher) error {
	p, err := preparePublisher(publisher)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.publishers[p.Domain]; ok {
		p = mergePublisher(existing, p)
	}
	s.publishers[p.Domain] = p
	return nil
}

func (s *MemoryStore) GetPublisher(_ context.Context, domain string) (*types.DiscoveredPublisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.publishers[types.NormalizeDomain(domain)]
	if !ok {
		return nil, ErrNotFound
	}
	c := *p
	return &c, nil
}

func (s *MemoryStore) ListPublishers(_ context.Context) ([]*types.DiscoveredPublisher, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	result := make([]*types.DiscoveredPublisher, 0, len(s.publishers))
	for _, p := range s.publishers {
		c := *p
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Domain < result[j].Domain })
	return result, nil
}

func (s *MemoryStore) UpsertProperty(_ context.Context, property *types.DiscoveredProperty) error {
	p, err := prepareProperty(property)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.properties[p.ID]; ok {
		p, _ = mergeProperty(existing, p)
	}
	s.properties[p.ID] = p
	property.ID = p.ID
	return nil
}

func (s *MemoryStore) GetProperty(_ context.Context, id string) (*types.DiscoveredProperty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.properties[id]
	if !ok {
		return nil, ErrNotFound
	}
	return cloneProperty(p), nil
}

func (s *MemoryStore) ListPropertiesByDomain(_ context.Context, domain string) ([]*types.DiscoveredProperty, error) {
	d := types.NormalizeDomain(domain)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.DiscoveredProperty
	for _, p := range s.properties {
		if p.PublisherDomain == d {
			result = append(result, cloneProperty(p))
		}
	}
	sortProperties(result)
	return result, nil
}

func (s *MemoryStore) FindPropertiesByIdentifier(_ context.Context, key types.IdentifierKey) ([]*types.DiscoveredProperty, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.DiscoveredProperty
	for _, p := range s.properties {
		for _, id := range p.Identifiers {
			if id.Type == key.Type && id.Value == key.Value {
				result = append(result, cloneProperty(p))
				break
			}
		}
	}
	sortProperties(result)
	return result, nil
}

func (s *MemoryStore) UpsertPublisherAuthorization(_ context.Context, auth *types.AgentPublisherAuthorization) error {
	a, err := preparePublisherAuthorization(auth)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.publisherAuths[publisherAuthKey{a.AgentURL, a.PublisherDomain, a.Source}] = a
	return nil
}

func (s *MemoryStore) ListPublisherAuthorizations(_ context.Context, filter AuthorizationFilter) ([]*types.AgentPublisherAuthorization, error) {
	agent := ""
	if filter.AgentURL != "" {
		agent = types.NormalizeAgentURL(filter.AgentURL)
	}
	domain := ""
	if filter.PublisherDomain != "" {
		domain = types.NormalizeDomain(filter.PublisherDomain)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.AgentPublisherAuthorization
	for k, a := range s.publisherAuths {
		if agent != "" && k.agent != agent {
			continue
		}
		if domain != "" && k.domain != domain {
			continue
		}
		if filter.Source != "" && k.source != filter.Source {
			continue
		}
		c := *a
		c.PropertyIDs = append([]string(nil), a.PropertyIDs...)
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PublisherDomain != result[j].PublisherDomain {
			return result[i].PublisherDomain < result[j].PublisherDomain
		}
		if result[i].AgentURL != result[j].AgentURL {
			return result[i].AgentURL < result[j].AgentURL
		}
		return result[i].Source < result[j].Source
	})
	return result, nil
}

func (s *MemoryStore) UpsertPropertyAuthorization(_ context.Context, auth *types.AgentPropertyAuthorization) error {
	a, err := preparePropertyAuthorization(auth)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.propertyAuths[propertyAuthKey{a.AgentURL, a.PropertyID, a.Source}] = a
	return nil
}

func (s *MemoryStore) ListPropertyAuthorizations(_ context.Context, agentURL string) ([]*types.AgentPropertyAuthorization, error) {
	agent := types.NormalizeAgentURL(agentURL)
	s.mu.RLock()
	defer s.mu.RUnlock()
	var result []*types.AgentPropertyAuthorization
	for k, a := range s.propertyAuths {
		if k.agent != agent {
			continue
		}
		c := *a
		result = append(result, &c)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].PropertyID != result[j].PropertyID {
			return result[i].PropertyID < result[j].PropertyID
		}
		return result[i].Source < result[j].Source
	})
	return result, nil
}

func (s *MemoryStore) DeleteSeenBefore(_ context.Context, cutoff time.Time) (*CleanupResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res := &CleanupResult{}
	for k, a := range s.agents {
		if a.LastSeenAt.Before(cutoff) {
			delete(s.agents, k)
			res.Agents++
		}
	}
	for k, p := range s.publishers {
		if p.LastSeenAt.Before(cutoff) {
			delete(s.publishers, k)
			res.Publishers++
		}
	}
	for k, p := range s.properties {
		if p.LastSeenAt.Before(cutoff) {
			delete(s.properties, k)
			res.Properties++
		}
	}
	for k, a := range s.publisherAuths {
		if a.LastSeenAt.Before(cutoff) {
			delete(s.publisherAuths, k)
			res.PublisherAuthorizations++
		}
	}
	for k, a := range s.propertyAuths {
		_, propertyAlive := s.properties[k.property]
		if a.LastSeenAt.Before(cutoff) || !propertyAlive {
			delete(s.propertyAuths, k)
			res.PropertyAuthorizations++
		}
	}
	return res, nil
}

func (s *MemoryStore) Counts(_ context.Context) (*Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := newCounts()
	c.Agents = int64(len(s.agents))
	for _, a := range s.agents {
		c.AgentsByType[a.Type]++
	}
	c.Publishers = int64(len(s.publishers))
	for _, p := range s.publishers {
		if p.HasValidAdagents {
			c.PublishersWithAdagents++
		}
	}
	c.Properties = int64(len(s.properties))
	for k := range s.publisherAuths {
		c.PublisherAuthorizations[k.source]++
	}
	for k := range s.propertyAuths {
		c.PropertyAuthorizations[k.source]++
	}
	return c, nil
}

func sortProperties(props []*types.DiscoveredProperty) {
	sort.Slice(props, func(i, j int) bool {
		if props[i].PublisherDomain != props[j].PublisherDomain {
			return props[i].PublisherDomain < props[j].PublisherDomain
		}
		if props[i].Label() != props[j].Label() {
			return props[i].Label() < props[j].Label()
		}
		return props[i].ID < props[j].ID
	})
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
