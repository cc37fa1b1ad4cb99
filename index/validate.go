package index

import (
	"context"
	"errors"
	"fmt"
	"math"
	"slices"

	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
)

// authView is everything one agent is authorized for, loaded once per query.
type authView struct {
	// property maps internal property id to the strongest property-level source.
	property map[string]types.AuthorizationSource
	// domain holds publisher-level records; empty PropertyIDs covers the whole domain.
	domain map[string][]*types.AgentPublisherAuthorization
}

func (s *Service) loadAuthView(ctx context.Context, agentURL string) (*authView, error) {
	propAuths, err := s.store.ListPropertyAuthorizations(ctx, agentURL)
	if err != nil {
		return nil, fmt.Errorf("load property authorizations: %w", err)
	}
	pubAuths, err := s.store.ListPublisherAuthorizations(ctx, store.AuthorizationFilter{AgentURL: agentURL})
	if err != nil {
		return nil, fmt.Errorf("load publisher authorizations: %w", err)
	}
	v := &authView{
		property: make(map[string]types.AuthorizationSource, len(propAuths)),
		domain:   make(map[string][]*types.AgentPublisherAuthorization),
	}
	for _, a := range propAuths {
		v.property[a.PropertyID] = types.Stronger(v.property[a.PropertyID], a.Source)
	}
	for _, a := range pubAuths {
		v.domain[a.PublisherDomain] = append(v.domain[a.PublisherDomain], a)
	}
	return v, nil
}

// sourceFor returns the strongest evidence that the agent may sell p.
//
// Once the domain's adagents.json lists the agent, that record alone decides
// which of the domain's properties are covered. Claims only count on
// domains whose manifest does not mention the agent.
func (v *authView) sourceFor(p *types.DiscoveredProperty) types.AuthorizationSource {
	src := v.property[p.ID]
	if src == types.SourceAdagentsJSON {
		return src
	}
	verified := false
	for _, a := range v.domain[p.PublisherDomain] {
		if a.Source == types.SourceAdagentsJSON {
			verified = true
		}
		if covers(a, p) {
			src = types.Stronger(src, a.Source)
		}
	}
	if verified && src != types.SourceAdagentsJSON {
		return types.SourceNone
	}
	return src
}

// covers reports whether a publisher-level record includes p. A record
// without PropertyIDs covers the whole domain.
func covers(a *types.AgentPublisherAuthorization, p *types.DiscoveredProperty) bool {
	return len(a.PropertyIDs) == 0 || (p.PropertyID != "" && slices.Contains(a.PropertyIDs, p.PropertyID))
}

// propertyCache memoizes ListPropertiesByDomain within a single query.
type propertyCache struct {
	store    store.Store
	byDomain map[string][]*types.DiscoveredProperty
}

func newPropertyCache(st store.Store) *propertyCache {
	return &propertyCache{store: st, byDomain: make(map[string][]*types.DiscoveredProperty)}
}

func (c *propertyCache) get(ctx context.Context, domain string) ([]*types.DiscoveredProperty, error) {
	if props, ok := c.byDomain[domain]; ok {
		return props, nil
	}
	props, err := c.store.ListPropertiesByDomain(ctx, domain)
	if err != nil {
		return nil, fmt.Errorf("list properties for %s: %w", domain, err)
	}
	c.byDomain[domain] = props
	return props, nil
}

// resolvedItem is one requested item of a selector. Property is nil for a
// by_id request naming an id the domain does not list.
type resolvedItem struct {
	Label    string
	Property *types.DiscoveredProperty
}

// resolve expands a selector into the items it requests, in a stable order.
func resolve(sel types.Selector, props []*types.DiscoveredProperty) []resolvedItem {
	switch sel.SelectionType {
	case types.SelectByID:
		byID := make(map[string]*types.DiscoveredProperty, len(props))
		for _, p := range props {
			if p.PropertyID != "" {
				if _, ok := byID[p.PropertyID]; !ok {
					byID[p.PropertyID] = p
				}
			}
		}
		items := make([]resolvedItem, 0, len(sel.PropertyIDs))
		for _, id := range sel.PropertyIDs {
			items = append(items, resolvedItem{Label: id, Property: byID[id]})
		}
		return items
	case types.SelectByTag:
		var items []resolvedItem
		for _, p := range props {
			if p.HasAnyTag(sel.PropertyTags) {
				items = append(items, resolvedItem{Label: p.Label(), Property: p})
			}
		}
		return items
	default:
		items := make([]resolvedItem, 0, len(props))
		for _, p := range props {
			items = append(items, resolvedItem{Label: p.Label(), Property: p})
		}
		return items
	}
}

func validateSelectors(selectors []types.Selector) error {
	for i, sel := range selectors {
		if err := sel.Validate(); err != nil {
			var e *types.Error
			if errors.As(err, &e) {
				return e.WithSubject(fmt.Sprintf("selectors[%d]", i))
			}
			return err
		}
	}
	return nil
}

// ValidateAgentForProduct measures how much of the inventory denoted by
// selectors agentURL is authorized to sell.
//
// Selectors are evaluated in input order and items repeated across
// selectors are counted each time. Agent-claimed authorization counts as
// authorized; VerifiedCount isolates the publisher-confirmed share. A by_id
// request for an id the domain does not list is unauthorized. Coverage is 0
// when nothing was requested.
func (s *Service) ValidateAgentForProduct(ctx context.Context, agentURL string, selectors []types.Selector) (*ValidationResult, error) {
	if err := validateSelectors(selectors); err != nil {
		return nil, err
	}
	view, err := s.loadAuthView(ctx, agentURL)
	if err != nil {
		return nil, err
	}
	cache := newPropertyCache(s.store)

	result := &ValidationResult{
		AgentURL:  types.NormalizeAgentURL(agentURL),
		Selectors: make([]SelectorResult, 0, len(selectors)),
	}
	for _, sel := range selectors {
		domain := types.NormalizeDomain(sel.PublisherDomain)
		props, err := cache.get(ctx, domain)
		if err != nil {
			return nil, err
		}
		sr := SelectorResult{PublisherDomain: domain, SelectionType: sel.SelectionType}
		for _, item := range resolve(sel, props) {
			sr.RequestedCount++
			src := types.SourceNone
			if item.Property != nil {
				src = view.sourceFor(item.Property)
			}
			switch src {
			case types.SourceAdagentsJSON:
				sr.AuthorizedCount++
				sr.VerifiedCount++
			case types.SourceAgentClaim:
				sr.AuthorizedCount++
			default:
				if sel.SelectionType != types.SelectAll {
					sr.UnauthorizedItems = append(sr.UnauthorizedItems, item.Label)
				}
			}
		}
		result.TotalRequested += sr.RequestedCount
		result.TotalAuthorized += sr.AuthorizedCount
		result.TotalVerified += sr.VerifiedCount
		result.Selectors = append(result.Selectors, sr)
	}
	result.CoveragePercentage = coverage(result.TotalAuthorized, result.TotalRequested)
	result.FullyAuthorized = result.TotalRequested > 0 && result.TotalAuthorized == result.TotalRequested
	return result, nil
}

// coverage returns authorized/requested as a percentage rounded to two
// decimals, or 0 when requested is 0.
func coverage(authorized, requested int) float64 {
	if requested == 0 {
		return 0
	}
	pct := float64(authorized) * 100 / float64(requested)
	return math.Round(pct*100) / 100
}

// ExpandPublisherPropertiesToIdentifiers flattens every authorized
// property the selectors resolve to into a de-duplicated identifier set,
// in first-seen order.
func (s *Service) ExpandPublisherPropertiesToIdentifiers(ctx context.Context, agentURL string, selectors []types.Selector) ([]types.IdentifierKey, error) {
	if err := validateSelectors(selectors); err != nil {
		return nil, err
	}
	view, err := s.loadAuthView(ctx, agentURL)
	if err != nil {
		return nil, err
	}
	cache := newPropertyCache(s.store)

	seen := make(map[types.IdentifierKey]struct{})
	out := []types.IdentifierKey{}
	for _, sel := range selectors {
		props, err := cache.get(ctx, types.NormalizeDomain(sel.PublisherDomain))
		if err != nil {
			return nil, err
		}
		for _, item := range resolve(sel, props) {
			if item.Property == nil || view.sourceFor(item.Property) == types.SourceNone {
				continue
			}
			for _, id := range item.Property.Identifiers {
				key := id.Key()
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, key)
			}
		}
	}
	return out, nil
}

// IsPropertyAuthorizedForAgent resolves the property owning an identifier
// and reports whether agentURL may sell it. Host identifiers fall back to
// parent domains, up to the registrable domain, whose identifier sets
// include_subdomains. When several properties match, the best authorized
// one is reported.
func (s *Service) IsPropertyAuthorizedForAgent(ctx context.Context, agentURL, identifierType, identifierValue string) (*PointAuthorization, error) {
	key := types.NormalizeIdentifier(identifierType, identifierValue)
	if key.Type == "" || key.Value == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "identifier type and value are required")
	}
	view, err := s.loadAuthView(ctx, agentURL)
	if err != nil {
		return nil, err
	}

	candidates, matched, err := s.findOwningProperties(ctx, key)
	if err != nil {
		return nil, err
	}
	if len(candidates) == 0 {
		return &PointAuthorization{Authorized: false}, nil
	}

	best := candidates[0]
	bestSrc := view.sourceFor(best)
	for _, p := range candidates[1:] {
		if src := view.sourceFor(p); src.Rank() > bestSrc.Rank() {
			best, bestSrc = p, src
		}
	}
	return &PointAuthorization{
		Authorized:        bestSrc != types.SourceNone,
		Source:            bestSrc,
		PropertyID:        best.Label(),
		PublisherDomain:   best.PublisherDomain,
		MatchedIdentifier: &matched,
	}, nil
}

// findOwningProperties tries an exact identifier match first, then walks
// parent domains for host identifiers.
func (s *Service) findOwningProperties(ctx context.Context, key types.IdentifierKey) ([]*types.DiscoveredProperty, types.IdentifierKey, error) {
	exact, err := s.store.FindPropertiesByIdentifier(ctx, key)
	if err != nil {
		return nil, key, fmt.Errorf("find property by identifier: %w", err)
	}
	if len(exact) > 0 || !types.IsHostType(key.Type) {
		return exact, key, nil
	}

	hostTypes := []string{key.Type}
	if key.Type != types.IdentifierDomain {
		hostTypes = append(hostTypes, types.IdentifierDomain)
	}
	for _, parent := range types.ParentDomains(key.Value) {
		for _, t := range hostTypes {
			parentKey := types.IdentifierKey{Type: t, Value: parent}
			found, err := s.store.FindPropertiesByIdentifier(ctx, parentKey)
			if err != nil {
				return nil, key, fmt.Errorf("find property by parent domain: %w", err)
			}
			var covering []*types.DiscoveredProperty
			for _, p := range found {
				if coversSubdomains(p, parentKey) {
					covering = append(covering, p)
				}
			}
			if len(covering) > 0 {
				return covering, parentKey, nil
			}
		}
	}
	return nil, key, nil
}

func coversSubdomains(p *types.DiscoveredProperty, key types.IdentifierKey) bool {
	for _, id := range p.Identifiers {
		if id.IncludeSubdomains && id.Key() == key {
			return true
		}
	}
	return false
}
