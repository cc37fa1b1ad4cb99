package store

import (
	"time"

	"github.com/BaSui01/adregistry/types"
)

// discoveredAgentModel 已发现代理表
type discoveredAgentModel struct {
	AgentURL     string     `gorm:"column:agent_url;primaryKey;size:512"`
	Name         string     `gorm:"size:255"`
	AgentType    string     `gorm:"size:32;not null;index:idx_discovered_agents_type"`
	Protocol     string     `gorm:"size:16;not null"`
	SourceType   string     `gorm:"size:32"`
	SourceDomain string     `gorm:"size:255"`
	DiscoveredAt time.Time  `gorm:"not null"`
	LastProbed   *time.Time
	LastSeenAt   time.Time  `gorm:"not null;index:idx_discovered_agents_seen"`
}

func (discoveredAgentModel) TableName() string { return "discovered_agents" }

// discoveredPublisherModel 已发现发布商表
type discoveredPublisherModel struct {
	Domain            string    `gorm:"primaryKey;size:255"`
	DiscoveredByAgent string    `gorm:"size:512"`
	HasValidAdagents  bool      `gorm:"not null"`
	DiscoveredAt      time.Time `gorm:"not null"`
	LastSeenAt        time.Time `gorm:"not null;index:idx_discovered_publishers_seen"`
}

func (discoveredPublisherModel) TableName() string { return "discovered_publishers" }

// discoveredPropertyModel 已发现属性表，标识符单独存放在 property_identifiers
type discoveredPropertyModel struct {
	ID              string    `gorm:"primaryKey;size:36"`
	PropertyID      string    `gorm:"size:255;index:idx_discovered_properties_pid"`
	PublisherDomain string    `gorm:"size:255;not null;index:idx_discovered_properties_domain"`
	PropertyType    string    `gorm:"size:32;not null"`
	Name            string    `gorm:"size:512"`
	Tags            []string  `gorm:"serializer:json"`
	Source          string    `gorm:"size:32;not null;default:adagents_json"`
	DiscoveredAt    time.Time `gorm:"not null"`
	LastSeenAt      time.Time `gorm:"not null;index:idx_discovered_properties_seen"`
}

func (discoveredPropertyModel) TableName() string { return "discovered_properties" }

type propertyIdentifierModel struct {
	ID                uint   `gorm:"primaryKey"`
	PropertyID        string `gorm:"size:36;not null;index:idx_property_identifiers_property"`
	Type              string `gorm:"size:64;not null;index:idx_property_identifiers_lookup"`
	Value             string `gorm:"size:512;not null;index:idx_property_identifiers_lookup"`
	IncludeSubdomains bool   `gorm:"not null"`
}

func (propertyIdentifierModel) TableName() string { return "property_identifiers" }

type publisherAuthorizationModel struct {
	AgentURL        string    `gorm:"column:agent_url;primaryKey;size:512"`
	PublisherDomain string    `gorm:"primaryKey;size:255;index:idx_publisher_auth_domain"`
	Source          string    `gorm:"primaryKey;size:32"`
	AuthorizedFor   string    `gorm:"type:text"`
	PropertyIDs     []string  `gorm:"serializer:json"`
	LastSeenAt      time.Time `gorm:"not null"`
}

func (publisherAuthorizationModel) TableName() string { return "agent_publisher_authorizations" }

type propertyAuthorizationModel struct {
	AgentURL      string    `gorm:"column:agent_url;primaryKey;size:512"`
	PropertyID    string    `gorm:"primaryKey;size:36;index:idx_property_auth_property"`
	Source        string    `gorm:"primaryKey;size:32"`
	AuthorizedFor string    `gorm:"type:text"`
	LastSeenAt    time.Time `gorm:"not null"`
}

func (propertyAuthorizationModel) TableName() string { return "agent_property_authorizations" }

// allModels 按依赖顺序列出所有表模型
func allModels() []any {
	return []any{
		&discoveredAgentModel{},
		&discoveredPublisherModel{},
		&discoveredPropertyModel{},
		&propertyIdentifierModel{},
		&publisherAuthorizationModel{},
		&propertyAuthorizationModel{},
	}
}

// ============================================================
// 模型转换
// ============================================================

func agentToModel(a *types.DiscoveredAgent) *discoveredAgentModel {
	m := &discoveredAgentModel{
		AgentURL:     a.URL,
		Name:         a.Name,
		AgentType:    string(a.Type),
		Protocol:     string(a.Protocol),
		SourceType:   a.SourceType,
		SourceDomain: a.SourceDomain,
		DiscoveredAt: a.DiscoveredAt.UTC(),
		LastSeenAt:   a.LastSeenAt.UTC(),
	}
	if a.LastProbed != nil {
		probed := a.LastProbed.UTC()
		m.LastProbed = &probed
	}
	return m
}

func (m *discoveredAgentModel) toAgent() *types.DiscoveredAgent {
	a := &types.DiscoveredAgent{
		URL:          m.AgentURL,
		Name:         m.Name,
		Type:         types.AgentType(m.AgentType),
		Protocol:     types.Protocol(m.Protocol),
		SourceType:   m.SourceType,
		SourceDomain: m.SourceDomain,
		DiscoveredAt: m.DiscoveredAt.UTC(),
		LastSeenAt:   m.LastSeenAt.UTC(),
	}
	if m.LastProbed != nil {
		probed := m.LastProbed.UTC()
		a.LastProbed = &probed
	}
	return a
}

func publisherToModel(p *types.DiscoveredPublisher) *discoveredPublisherModel {
	return &discoveredPublisherModel{
		Domain:            p.Domain,
		DiscoveredByAgent: p.DiscoveredByAgent,
		HasValidAdagents:  p.HasValidAdagents,
		DiscoveredAt:      p.DiscoveredAt.UTC(),
		LastSeenAt:        p.LastSeenAt.UTC(),
	}
}

func (m *discoveredPublisherModel) toPublisher() *types.DiscoveredPublisher {
	return &types.DiscoveredPublisher{
		Domain:            m.Domain,
		DiscoveredByAgent: m.DiscoveredByAgent,
		HasValidAdagents:  m.HasValidAdagents,
		DiscoveredAt:      m.DiscoveredAt.UTC(),
		LastSeenAt:        m.LastSeenAt.UTC(),
	}
}

func propertyToModels(p *types.DiscoveredProperty) (*discoveredPropertyModel, []propertyIdentifierModel) {
	m := &discoveredPropertyModel{
		ID:              p.ID,
		PropertyID:      p.PropertyID,
		PublisherDomain: p.PublisherDomain,
		PropertyType:    string(p.PropertyType),
		Name:            p.Name,
		Tags:            p.Tags,
		Source:          string(p.Source),
		DiscoveredAt:    p.DiscoveredAt.UTC(),
		LastSeenAt:      p.LastSeenAt.UTC(),
	}
	ids := make([]propertyIdentifierModel, 0, len(p.Identifiers))
	for _, id := range p.Identifiers {
		ids = append(ids, propertyIdentifierModel{
			PropertyID:        p.ID,
			Type:              id.Type,
			Value:             id.Value,
			IncludeSubdomains: id.IncludeSubdomains,
		})
	}
	return m, ids
}

func (m *discoveredPropertyModel) toProperty(ids []propertyIdentifierModel) *types.DiscoveredProperty {
	p := &types.DiscoveredProperty{
		ID:              m.ID,
		PropertyID:      m.PropertyID,
		PublisherDomain: m.PublisherDomain,
		PropertyType:    types.PropertyType(m.PropertyType),
		Name:            m.Name,
		Tags:            append([]string(nil), m.Tags...),
		Source:          types.AuthorizationSource(m.Source),
		DiscoveredAt:    m.DiscoveredAt.UTC(),
		LastSeenAt:      m.LastSeenAt.UTC(),
	}
	for _, id := range ids {
		p.Identifiers = append(p.Identifiers, types.Identifier{
			Type:              id.Type,
			Value:             id.Value,
			IncludeSubdomains: id.IncludeSubdomains,
		})
	}
	return p
}

func (m *publisherAuthorizationModel) toAuthorization() *types.AgentPublisherAuthorization {
	return &types.AgentPublisherAuthorization{
		AgentURL:        m.AgentURL,
		PublisherDomain: m.PublisherDomain,
		AuthorizedFor:   m.AuthorizedFor,
		PropertyIDs:     append([]string(nil), m.PropertyIDs...),
		Source:          types.AuthorizationSource(m.Source),
		LastSeenAt:      m.LastSeenAt.UTC(),
	}
}

func (m *propertyAuthorizationModel) toAuthorization() *types.AgentPropertyAuthorization {
	return &types.AgentPropertyAuthorization{
		AgentURL:      m.AgentURL,
		PropertyID:    m.PropertyID,
		AuthorizedFor: m.AuthorizedFor,
		Source:        types.AuthorizationSource(m.Source),
		LastSeenAt:    m.LastSeenAt.UTC(),
	}
}
