package index

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/BaSui01/adregistry/members"
	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
	"go.uber.org/zap"
)

// Config holds federated index settings.
type Config struct {
	// DiscoveredTTL is how long a discovered row survives without being seen again.
	DiscoveredTTL time.Duration `json:"discovered_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{DiscoveredTTL: 7 * 24 * time.Hour}
}

// Service is the federated index: registered members merged over
// discovered crawl data, plus authorization queries.
type Service struct {
	store     store.Store
	directory members.Directory
	config    Config
	metrics   *metrics.Collector
	now       func() time.Time
	logger    *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records index writes on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a federated index over st and dir.
func NewService(st store.Store, dir members.Directory, config Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == nil {
		dir = members.NewStaticDirectory(nil, nil)
	}
	if config.DiscoveredTTL <= 0 {
		config.DiscoveredTTL = DefaultConfig().DiscoveredTTL
	}
	s := &Service{
		store:     st,
		directory: dir,
		config:    config,
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(zap.String("component", "federated_index")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Store exposes the underlying store.
func (s *Service) Store() store.Store { return s.store }

// ============================================================
// Federated listings
// ============================================================

// ListAllAgents returns registered and discovered agents, optionally of a
// single type. A registered agent hides a discovered one with the same URL,
// even when the registered agent is private or of another type; filters
// apply to the merged list.
func (s *Service) ListAllAgents(ctx context.Context, agentType types.AgentType) ([]FederatedAgent, error) {
	registered, err := s.directory.RegisteredAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered agents: %w", err)
	}
	discovered, err := s.store.ListAgents(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("list discovered agents: %w", err)
	}

	// 注册代理未声明类型时，采用探测得到的类型
	probed := make(map[string]types.AgentType, len(discovered))
	for _, d := range discovered {
		if d.Type.Known() {
			probed[d.URL] = d.Type
		}
	}

	private := make(map[string]struct{})
	primary := make([]FederatedAgent, 0, len(registered))
	for _, r := range registered {
		fa := registeredAgent(r)
		if r.Visibility == types.VisibilityPrivate {
			private[fa.URL] = struct{}{}
		}
		if !fa.Type.Known() {
			if t, ok := probed[fa.URL]; ok {
				fa.Type = t
			}
		}
		primary = append(primary, fa)
	}
	secondary := make([]FederatedAgent, 0, len(discovered))
	for _, d := range discovered {
		secondary = append(secondary, discoveredAgent(d))
	}

	merged := Reconcile(primary, secondary, func(a FederatedAgent) string { return a.URL })
	out := make([]FederatedAgent, 0, len(merged))
	for _, a := range merged {
		if _, hidden := private[a.URL]; hidden {
			continue
		}
		if agentType != "" && a.Type != agentType {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

// ListAllPublishers returns registered and discovered publishers. A
// registered domain hides a discovered one, private registrations included.
func (s *Service) ListAllPublishers(ctx context.Context) ([]FederatedPublisher, error) {
	registered, err := s.directory.RegisteredPublishers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered publishers: %w", err)
	}
	discovered, err := s.store.ListPublishers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list discovered publishers: %w", err)
	}

	private := make(map[string]struct{})
	primary := make([]FederatedPublisher, 0, len(registered))
	for _, r := range registered {
		fp := registeredPublisher(r)
		if r.Visibility == types.VisibilityPrivate {
			private[fp.Domain] = struct{}{}
		}
		primary = append(primary, fp)
	}
	secondary := make([]FederatedPublisher, 0, len(discovered))
	for _, d := range discovered {
		secondary = append(secondary, discoveredPublisher(d))
	}

	merged := Reconcile(primary, secondary, func(p FederatedPublisher) string { return p.Domain })
	out := make([]FederatedPublisher, 0, len(merged))
	for _, p := range merged {
		if _, hidden := private[p.Domain]; !hidden {
			out = append(out, p)
		}
	}
	return out, nil
}

func registeredAgent(r types.RegisteredAgent) FederatedAgent {
	member := r.Member
	return FederatedAgent{
		URL:      types.NormalizeAgentURL(r.URL),
		Name:     r.Name,
		Type:     r.Type,
		Protocol: r.Protocol,
		Origin:   OriginRegistered,
		Member:   &member,
	}
}

func discoveredAgent(d *types.DiscoveredAgent) FederatedAgent {
	discoveredAt := d.DiscoveredAt
	return FederatedAgent{
		URL:          d.URL,
		Name:         d.Name,
		Type:         d.Type,
		Protocol:     d.Protocol,
		Origin:       OriginDiscovered,
		SourceType:   d.SourceType,
		SourceDomain: d.SourceDomain,
		DiscoveredAt: &discoveredAt,
		LastProbed:   d.LastProbed,
	}
}

func registeredPublisher(r types.RegisteredPublisher) FederatedPublisher {
	member := r.Member
	return FederatedPublisher{Domain: types.NormalizeDomain(r.Domain), Origin: OriginRegistered, Member: &member}
}

func discoveredPublisher(d *types.DiscoveredPublisher) FederatedPublisher {
	discoveredAt := d.DiscoveredAt
	return FederatedPublisher{
		Domain:            d.Domain,
		Origin:            OriginDiscovered,
		DiscoveredByAgent: d.DiscoveredByAgent,
		HasValidAdagents:  d.HasValidAdagents,
		DiscoveredAt:      &discoveredAt,
	}
}

// ============================================================
// Reverse lookups
// ============================================================

// LookupDomain lists the agents linked to domain, split by evidence.
// An agent holding both kinds of evidence appears under AuthorizedAgents
// and also under SalesAgentsClaiming.
func (s *Service) LookupDomain(ctx context.Context, domain string) (*DomainLookup, error) {
	d := types.NormalizeDomain(domain)
	if d == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "domain is required")
	}
	auths, err := s.store.ListPublisherAuthorizations(ctx, store.AuthorizationFilter{PublisherDomain: d})
	if err != nil {
		return nil, fmt.Errorf("lookup domain %s: %w", d, err)
	}
	registered, err := s.registeredAgentsByURL(ctx)
	if err != nil {
		return nil, err
	}

	result := &DomainLookup{
		Domain:              d,
		AuthorizedAgents:    []DomainAgent{},
		SalesAgentsClaiming: []DomainAgent{},
	}
	for _, a := range auths {
		entry := DomainAgent{
			AgentURL:      a.AgentURL,
			AuthorizedFor: a.AuthorizedFor,
			PropertyIDs:   a.PropertyIDs,
			Source:        a.Source,
		}
		if r, ok := registered[a.AgentURL]; ok {
			member := r.Member
			entry.Member = &member
			entry.Name = r.Name
			entry.Type = r.Type
		} else if da, err := s.store.GetAgent(ctx, a.AgentURL); err == nil {
			entry.Name = da.Name
			entry.Type = da.Type
		}
		switch a.Source {
		case types.SourceAdagentsJSON:
			result.AuthorizedAgents = append(result.AuthorizedAgents, entry)
		case types.SourceAgentClaim:
			result.SalesAgentsClaiming = append(result.SalesAgentsClaiming, entry)
		}
	}

	publisher, err := s.federatedPublisher(ctx, d)
	if err != nil {
		return nil, err
	}
	result.Publisher = publisher
	return result, nil
}

func (s *Service) federatedPublisher(ctx context.Context, domain string) (*FederatedPublisher, error) {
	registered, err := s.directory.RegisteredPublishers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered publishers: %w", err)
	}
	for _, r := range registered {
		if types.NormalizeDomain(r.Domain) != domain {
			continue
		}
		if r.Visibility == types.VisibilityPrivate {
			return nil, nil
		}
		p := registeredPublisher(r)
		return &p, nil
	}
	d, err := s.store.GetPublisher(ctx, domain)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get publisher %s: %w", domain, err)
	}
	p := discoveredPublisher(d)
	return &p, nil
}

func (s *Service) registeredAgentsByURL(ctx context.Context) (map[string]types.RegisteredAgent, error) {
	registered, err := s.directory.RegisteredAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered agents: %w", err)
	}
	byURL := make(map[string]types.RegisteredAgent, len(registered))
	for _, r := range registered {
		if r.Visibility == types.VisibilityPrivate {
			continue
		}
		byURL[types.NormalizeAgentURL(r.URL)] = r
	}
	return byURL, nil
}

// GetDomainsForAgent lists every publisher domain linked to agentURL with
// the strongest evidence per domain, sorted by domain.
func (s *Service) GetDomainsForAgent(ctx context.Context, agentURL string) ([]AgentDomain, error) {
	auths, err := s.store.ListPublisherAuthorizations(ctx, store.AuthorizationFilter{AgentURL: agentURL})
	if err != nil {
		return nil, fmt.Errorf("domains for agent %s: %w", agentURL, err)
	}
	best := make(map[string]AgentDomain)
	for _, a := range auths {
		cur, ok := best[a.PublisherDomain]
		if ok && cur.Source.Rank() >= a.Source.Rank() {
			continue
		}
		best[a.PublisherDomain] = AgentDomain{
			Domain:        a.PublisherDomain,
			Source:        a.Source,
			AuthorizedFor: a.AuthorizedFor,
			PropertyIDs:   a.PropertyIDs,
		}
	}
	out := make([]AgentDomain, 0, len(best))
	for _, d := range best {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Domain < out[j].Domain })
	return out, nil
}

// ============================================================
// Record operations
// ============================================================

// RecordAgentFromAdagentsJSON records that domain's adagents.json lists
// agentURL, optionally restricted to propertyIDs.
func (s *Service) RecordAgentFromAdagentsJSON(ctx context.Context, agentURL, domain, authorizedFor string, propertyIDs []string) (err error) {
	defer func() { s.metrics.RecordIndexWrite("record_agent_from_adagents", err) }()
	now := s.now()
	if err = s.store.UpsertAgent(ctx, &types.DiscoveredAgent{
		URL:          agentURL,
		SourceType:   types.AgentSourceAdagentsJSON,
		SourceDomain: types.NormalizeDomain(domain),
		LastSeenAt:   now,
	}); err != nil {
		return fmt.Errorf("record agent %s: %w", agentURL, err)
	}
	if err = s.store.UpsertPublisherAuthorization(ctx, &types.AgentPublisherAuthorization{
		AgentURL:        agentURL,
		PublisherDomain: domain,
		AuthorizedFor:   authorizedFor,
		PropertyIDs:     propertyIDs,
		Source:          types.SourceAdagentsJSON,
		LastSeenAt:      now,
	}); err != nil {
		return fmt.Errorf("record authorization %s -> %s: %w", agentURL, domain, err)
	}
	return nil
}

// RecordPublisherFromAgent records that agentURL claims to sell domain.
// The link stays unverified until the domain's own manifest confirms it.
func (s *Service) RecordPublisherFromAgent(ctx context.Context, domain, agentURL string, hasValidAdagents bool) (err error) {
	defer func() { s.metrics.RecordIndexWrite("record_publisher_from_agent", err) }()
	now := s.now()
	if err = s.store.UpsertPublisher(ctx, &types.DiscoveredPublisher{
		Domain:            domain,
		DiscoveredByAgent: agentURL,
		HasValidAdagents:  hasValidAdagents,
		LastSeenAt:        now,
	}); err != nil {
		return fmt.Errorf("record publisher %s: %w", domain, err)
	}
	if err = s.store.UpsertPublisherAuthorization(ctx, &types.AgentPublisherAuthorization{
		AgentURL:        agentURL,
		PublisherDomain: domain,
		Source:          types.SourceAgentClaim,
		LastSeenAt:      now,
	}); err != nil {
		return fmt.Errorf("record claim %s -> %s: %w", agentURL, domain, err)
	}
	return nil
}

// RecordAgentType stores a probe outcome for agentURL. Callers only pass
// known types; the store never downgrades a known type to unknown.
func (s *Service) RecordAgentType(ctx context.Context, agentURL string, agentType types.AgentType) (err error) {
	defer func() { s.metrics.RecordIndexWrite("record_agent_type", err) }()
	if err = s.store.SetAgentType(ctx, agentURL, agentType, s.now()); err != nil {
		return fmt.Errorf("record agent type %s: %w", agentURL, err)
	}
	return nil
}

// RecordProperty upserts property and links it to agentURL with
// publisher-verified evidence. It returns the property's internal id.
func (s *Service) RecordProperty(ctx context.Context, property *types.DiscoveredProperty, agentURL, authorizedFor string) (string, error) {
	id, err := s.recordProperty(ctx, property, agentURL, authorizedFor, types.SourceAdagentsJSON)
	s.metrics.RecordIndexWrite("record_property", err)
	return id, err
}

// RecordClaimedProperty is RecordProperty for properties an agent lists
// about itself. A claim never replaces identifiers or tags recorded from
// the publisher's manifest.
func (s *Service) RecordClaimedProperty(ctx context.Context, property *types.DiscoveredProperty, agentURL string) (string, error) {
	id, err := s.recordProperty(ctx, property, agentURL, "", types.SourceAgentClaim)
	s.metrics.RecordIndexWrite("record_claimed_property", err)
	return id, err
}

func (s *Service) recordProperty(ctx context.Context, property *types.DiscoveredProperty, agentURL, authorizedFor string, source types.AuthorizationSource) (string, error) {
	now := s.now()
	p := *property
	p.Source = source
	p.LastSeenAt = now
	if err := s.store.UpsertProperty(ctx, &p); err != nil {
		return "", fmt.Errorf("record property %q on %s: %w", p.Label(), p.PublisherDomain, err)
	}
	if err := s.store.UpsertPropertyAuthorization(ctx, &types.AgentPropertyAuthorization{
		AgentURL:      agentURL,
		PropertyID:    p.ID,
		AuthorizedFor: authorizedFor,
		Source:        source,
		LastSeenAt:    now,
	}); err != nil {
		return "", fmt.Errorf("link property %q to %s: %w", p.Label(), agentURL, err)
	}
	return p.ID, nil
}

// ============================================================
// Maintenance
// ============================================================

// GetStats returns registered and discovered counts.
func (s *Service) GetStats(ctx context.Context) (*Stats, error) {
	agents, err := s.directory.RegisteredAgents(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered agents: %w", err)
	}
	publishers, err := s.directory.RegisteredPublishers(ctx)
	if err != nil {
		return nil, fmt.Errorf("list registered publishers: %w", err)
	}
	counts, err := s.store.Counts(ctx)
	if err != nil {
		return nil, fmt.Errorf("count discovered rows: %w", err)
	}
	return &Stats{
		RegisteredAgents:     len(agents),
		RegisteredPublishers: len(publishers),
		Discovered:           counts,
	}, nil
}

// CleanupExpired deletes discovered rows not seen within the TTL.
// Registered rows live in the member directory and are never touched.
func (s *Service) CleanupExpired(ctx context.Context) (*store.CleanupResult, error) {
	cutoff := s.now().Add(-s.config.DiscoveredTTL)
	res, err := s.store.DeleteSeenBefore(ctx, cutoff)
	if err != nil {
		return nil, fmt.Errorf("cleanup expired: %w", err)
	}
	s.metrics.RecordCleanup(res.Total())
	s.logger.Info("cleanup finished",
		zap.Time("cutoff", cutoff),
		zap.Int64("agents", res.Agents),
		zap.Int64("publishers", res.Publishers),
		zap.Int64("properties", res.Properties),
		zap.Int64("publisher_authorizations", res.PublisherAuthorizations),
		zap.Int64("property_authorizations", res.PropertyAuthorizations))
	return res, nil
}
