package store

import (
	"context"
	"errors"
	"time"

	"github.com/BaSui01/adregistry/types"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormStore is a Store backed by a relational database through GORM.
// It works against PostgreSQL, MySQL and SQLite.
type GormStore struct {
	db     *gorm.DB
	logger *zap.Logger
}

// NewGormStore wraps an open GORM handle.
func NewGormStore(db *gorm.DB, logger *zap.Logger) *GormStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GormStore{
		db:     db,
		logger: logger.With(zap.String("component", "gorm_store")),
	}
}

// AutoMigrate creates the discovery tables from the models. Production
// deployments use internal/migration instead; this is for tests and sqlite.
func (s *GormStore) AutoMigrate(ctx context.Context) error {
	if err := s.db.WithContext(ctx).AutoMigrate(allModels()...); err != nil {
		return storeError("auto migrate", err)
	}
	return nil
}

func storeError(op string, err error) error {
	return types.NewError(types.ErrStoreFailure, op).WithCause(err)
}

// ============================================================
// Agents
// ============================================================

func (s *GormStore) UpsertAgent(ctx context.Context, agent *types.DiscoveredAgent) error {
	a, err := prepareAgent(agent)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing discoveredAgentModel
		err := tx.Where("agent_url = ?", a.URL).Take(&existing).Error
		switch {
		case err == nil:
			a = mergeAgent(existing.toAgent(), a)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(agentToModel(a)).Error
	})
	if err != nil {
		return storeError("upsert agent", err)
	}
	return nil
}

func (s *GormStore) GetAgent(ctx context.Context, agentURL string) (*types.DiscoveredAgent, error) {
	var m discoveredAgentModel
	err := s.db.WithContext(ctx).Where("agent_url = ?", types.NormalizeAgentURL(agentURL)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get agent", err)
	}
	return m.toAgent(), nil
}

func (s *GormStore) ListAgents(ctx context.Context, agentType types.AgentType) ([]*types.DiscoveredAgent, error) {
	q := s.db.WithContext(ctx).Order("agent_url")
	if agentType != "" {
		q = q.Where("agent_type = ?", string(agentType))
	}
	var rows []discoveredAgentModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storeError("list agents", err)
	}
	result := make([]*types.DiscoveredAgent, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toAgent())
	}
	return result, nil
}

func (s *GormStore) SetAgentType(ctx context.Context, agentURL string, agentType types.AgentType, probedAt time.Time) error {
	url := types.NormalizeAgentURL(agentURL)
	if url == "" {
		return types.NewError(types.ErrInvalidRecord, "agent url is required")
	}
	probed := probedAt.UTC()
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing discoveredAgentModel
		err := tx.Where("agent_url = ?", url).Take(&existing).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return tx.Create(&discoveredAgentModel{
				AgentURL:     url,
				AgentType:    string(agentType),
				Protocol:     string(types.ProtocolMCP),
				SourceType:   types.AgentSourceProbe,
				DiscoveredAt: probed,
				LastProbed:   &probed,
				LastSeenAt:   probed,
			}).Error
		}
		if err != nil {
			return err
		}
		return tx.Model(&discoveredAgentModel{}).
			Where("agent_url = ?", url).
			Updates(map[string]any{"agent_type": string(agentType), "last_probed": probed}).Error
	})
	if err != nil {
		return storeError("set agent type", err)
	}
	return nil
}

// ============================================================
// Publishers
// ============================================================

func (s *GormStore) UpsertPublisher(ctx context.Context, publisher *types.DiscoveredPublisher) error {
	p, err := preparePublisher(publisher)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing discoveredPublisherModel
		err := tx.Where("domain = ?", p.Domain).Take(&existing).Error
		switch {
		case err == nil:
			p = mergePublisher(existing.toPublisher(), p)
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		return tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(publisherToModel(p)).Error
	})
	if err != nil {
		return storeError("upsert publisher", err)
	}
	return nil
}

func (s *GormStore) GetPublisher(ctx context.Context, domain string) (*types.DiscoveredPublisher, error) {
	var m discoveredPublisherModel
	err := s.db.WithContext(ctx).Where("domain = ?", types.NormalizeDomain(domain)).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get publisher", err)
	}
	return m.toPublisher(), nil
}

func (s *GormStore) ListPublishers(ctx context.Context) ([]*types.DiscoveredPublisher, error) {
	var rows []discoveredPublisherModel
	if err := s.db.WithContext(ctx).Order("domain").Find(&rows).Error; err != nil {
		return nil, storeError("list publishers", err)
	}
	result := make([]*types.DiscoveredPublisher, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toPublisher())
	}
	return result, nil
}

// ============================================================
// Properties
// ============================================================

func (s *GormStore) UpsertProperty(ctx context.Context, property *types.DiscoveredProperty) error {
	p, err := prepareProperty(property)
	if err != nil {
		return err
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing discoveredPropertyModel
		err := tx.Where("id = ?", p.ID).Take(&existing).Error
		switch {
		case err == nil:
			merged, keep := mergeProperty(existing.toProperty(nil), p)
			if keep {
				return tx.Model(&discoveredPropertyModel{}).
					Where("id = ?", p.ID).
					Update("last_seen_at", merged.LastSeenAt.UTC()).Error
			}
			p = merged
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return err
		}
		row, ids := propertyToModels(p)
		if err := tx.Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
			return err
		}
		if err := tx.Where("property_id = ?", p.ID).Delete(&propertyIdentifierModel{}).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Create(&ids).Error
	})
	if err != nil {
		return storeError("upsert property", err)
	}
	property.ID = p.ID
	return nil
}

func (s *GormStore) GetProperty(ctx context.Context, id string) (*types.DiscoveredProperty, error) {
	var m discoveredPropertyModel
	db := s.db.WithContext(ctx)
	err := db.Where("id = ?", id).Take(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, storeError("get property", err)
	}
	props, err := s.hydrate(db, []discoveredPropertyModel{m})
	if err != nil {
		return nil, storeError("get property", err)
	}
	return props[0], nil
}

func (s *GormStore) ListPropertiesByDomain(ctx context.Context, domain string) ([]*types.DiscoveredProperty, error) {
	db := s.db.WithContext(ctx)
	var rows []discoveredPropertyModel
	if err := db.Where("publisher_domain = ?", types.NormalizeDomain(domain)).Find(&rows).Error; err != nil {
		return nil, storeError("list properties", err)
	}
	props, err := s.hydrate(db, rows)
	if err != nil {
		return nil, storeError("list properties", err)
	}
	return props, nil
}

func (s *GormStore) FindPropertiesByIdentifier(ctx context.Context, key types.IdentifierKey) ([]*types.DiscoveredProperty, error) {
	db := s.db.WithContext(ctx)
	var rows []discoveredPropertyModel
	sub := db.Model(&propertyIdentifierModel{}).
		Select("property_id").
		Where("type = ? AND value = ?", key.Type, key.Value)
	if err := db.Where("id IN (?)", sub).Find(&rows).Error; err != nil {
		return nil, storeError("find properties by identifier", err)
	}
	props, err := s.hydrate(db, rows)
	if err != nil {
		return nil, storeError("find properties by identifier", err)
	}
	return props, nil
}

// hydrate 为属性行加载标识符并排序
func (s *GormStore) hydrate(db *gorm.DB, rows []discoveredPropertyModel) ([]*types.DiscoveredProperty, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	ids := make([]string, 0, len(rows))
	for _, r := range rows {
		ids = append(ids, r.ID)
	}
	var idRows []propertyIdentifierModel
	if err := db.Where("property_id IN ?", ids).Order("id").Find(&idRows).Error; err != nil {
		return nil, err
	}
	byProperty := make(map[string][]propertyIdentifierModel, len(rows))
	for _, r := range idRows {
		byProperty[r.PropertyID] = append(byProperty[r.PropertyID], r)
	}
	result := make([]*types.DiscoveredProperty, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toProperty(byProperty[rows[i].ID]))
	}
	sortProperties(result)
	return result, nil
}

// ============================================================
// Authorizations
// ============================================================

func (s *GormStore) UpsertPublisherAuthorization(ctx context.Context, auth *types.AgentPublisherAuthorization) error {
	a, err := preparePublisherAuthorization(auth)
	if err != nil {
		return err
	}
	row := &publisherAuthorizationModel{
		AgentURL:        a.AgentURL,
		PublisherDomain: a.PublisherDomain,
		Source:          string(a.Source),
		AuthorizedFor:   a.AuthorizedFor,
		PropertyIDs:     a.PropertyIDs,
		LastSeenAt:      a.LastSeenAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return storeError("upsert publisher authorization", err)
	}
	return nil
}

func (s *GormStore) ListPublisherAuthorizations(ctx context.Context, filter AuthorizationFilter) ([]*types.AgentPublisherAuthorization, error) {
	q := s.db.WithContext(ctx).Order("publisher_domain, agent_url, source")
	if filter.AgentURL != "" {
		q = q.Where("agent_url = ?", types.NormalizeAgentURL(filter.AgentURL))
	}
	if filter.PublisherDomain != "" {
		q = q.Where("publisher_domain = ?", types.NormalizeDomain(filter.PublisherDomain))
	}
	if filter.Source != "" {
		q = q.Where("source = ?", string(filter.Source))
	}
	var rows []publisherAuthorizationModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storeError("list publisher authorizations", err)
	}
	result := make([]*types.AgentPublisherAuthorization, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toAuthorization())
	}
	return result, nil
}

func (s *GormStore) UpsertPropertyAuthorization(ctx context.Context, auth *types.AgentPropertyAuthorization) error {
	a, err := preparePropertyAuthorization(auth)
	if err != nil {
		return err
	}
	row := &propertyAuthorizationModel{
		AgentURL:      a.AgentURL,
		PropertyID:    a.PropertyID,
		Source:        string(a.Source),
		AuthorizedFor: a.AuthorizedFor,
		LastSeenAt:    a.LastSeenAt.UTC(),
	}
	if err := s.db.WithContext(ctx).Clauses(clause.OnConflict{UpdateAll: true}).Create(row).Error; err != nil {
		return storeError("upsert property authorization", err)
	}
	return nil
}

func (s *GormStore) ListPropertyAuthorizations(ctx context.Context, agentURL string) ([]*types.AgentPropertyAuthorization, error) {
	var rows []propertyAuthorizationModel
	err := s.db.WithContext(ctx).
		Where("agent_url = ?", types.NormalizeAgentURL(agentURL)).
		Order("property_id, source").
		Find(&rows).Error
	if err != nil {
		return nil, storeError("list property authorizations", err)
	}
	result := make([]*types.AgentPropertyAuthorization, 0, len(rows))
	for i := range rows {
		result = append(result, rows[i].toAuthorization())
	}
	return result, nil
}

// ============================================================
// Maintenance
// ============================================================

func (s *GormStore) DeleteSeenBefore(ctx context.Context, cutoff time.Time) (*CleanupResult, error) {
	cutoff = cutoff.UTC()
	res := &CleanupResult{}
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		r := tx.Where("last_seen_at < ?", cutoff).Delete(&discoveredAgentModel{})
		if r.Error != nil {
			return r.Error
		}
		res.Agents = r.RowsAffected

		r = tx.Where("last_seen_at < ?", cutoff).Delete(&discoveredPublisherModel{})
		if r.Error != nil {
			return r.Error
		}
		res.Publishers = r.RowsAffected

		r = tx.Where("last_seen_at < ?", cutoff).Delete(&discoveredPropertyModel{})
		if r.Error != nil {
			return r.Error
		}
		res.Properties = r.RowsAffected

		alive := tx.Model(&discoveredPropertyModel{}).Select("id")
		if err := tx.Where("property_id NOT IN (?)", alive).Delete(&propertyIdentifierModel{}).Error; err != nil {
			return err
		}

		r = tx.Where("last_seen_at < ?", cutoff).Delete(&publisherAuthorizationModel{})
		if r.Error != nil {
			return r.Error
		}
		res.PublisherAuthorizations = r.RowsAffected

		r = tx.Where("last_seen_at < ? OR property_id NOT IN (?)", cutoff, alive).Delete(&propertyAuthorizationModel{})
		if r.Error != nil {
			return r.Error
		}
		res.PropertyAuthorizations = r.RowsAffected
		return nil
	})
	if err != nil {
		return nil, storeError("delete expired", err)
	}
	if res.Total() > 0 {
		s.logger.Info("expired discovered rows removed",
			zap.Time("cutoff", cutoff),
			zap.Int64("total", res.Total()))
	}
	return res, nil
}

type groupCount struct {
	GroupKey string
	Total    int64
}

func (s *GormStore) Counts(ctx context.Context) (*Counts, error) {
	db := s.db.WithContext(ctx)
	c := newCounts()

	var byType []groupCount
	if err := db.Model(&discoveredAgentModel{}).
		Select("agent_type AS group_key, COUNT(*) AS total").
		Group("agent_type").Scan(&byType).Error; err != nil {
		return nil, storeError("count agents", err)
	}
	for _, g := range byType {
		c.AgentsByType[types.AgentType(g.GroupKey)] = g.Total
		c.Agents += g.Total
	}

	if err := db.Model(&discoveredPublisherModel{}).Count(&c.Publishers).Error; err != nil {
		return nil, storeError("count publishers", err)
	}
	if err := db.Model(&discoveredPublisherModel{}).
		Where("has_valid_adagents = ?", true).
		Count(&c.PublishersWithAdagents).Error; err != nil {
		return nil, storeError("count publishers", err)
	}
	if err := db.Model(&discoveredPropertyModel{}).Count(&c.Properties).Error; err != nil {
		return nil, storeError("count properties", err)
	}

	var pubAuths []groupCount
	if err := db.Model(&publisherAuthorizationModel{}).
		Select("source AS group_key, COUNT(*) AS total").
		Group("source").Scan(&pubAuths).Error; err != nil {
		return nil, storeError("count publisher authorizations", err)
	}
	for _, g := range pubAuths {
		c.PublisherAuthorizations[types.AuthorizationSource(g.GroupKey)] = g.Total
	}

	var propAuths []groupCount
	if err := db.Model(&propertyAuthorizationModel{}).
		Select("source AS group_key, COUNT(*) AS total").
		Group("source").Scan(&propAuths).Error; err != nil {
		return nil, storeError("count property authorizations", err)
	}
	for _, g := range propAuths {
		c.PropertyAuthorizations[types.AuthorizationSource(g.GroupKey)] = g.Total
	}
	return c, nil
}

// Ensure GormStore implements Store.
var _ Store = (*GormStore)(nil)
