package crawler

import (
	"context"
	"fmt"
	"slices"

	"github.com/BaSui01/adregistry/adagents"
	"github.com/BaSui01/adregistry/capability"
	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/types"
)

// ToolListAuthorizedProperties is the sales-agent tool returning its claims.
const ToolListAuthorizedProperties = capability.ToolListAuthorizedProperties

// Claims is what a sales agent says it may sell.
type Claims struct {
	Domains    []string
	Properties []*types.DiscoveredProperty
}

// ClaimFetcher retrieves a sales agent's property claims.
type ClaimFetcher interface {
	FetchClaims(ctx context.Context, agent types.RegisteredAgent) (*Claims, error)
}

// ClaimFetcherFunc adapts a function to ClaimFetcher.
type ClaimFetcherFunc func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error)

// FetchClaims implements ClaimFetcher.
func (f ClaimFetcherFunc) FetchClaims(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
	return f(ctx, agent)
}

// ProtocolClaimFetcher calls list_authorized_properties on the agent.
type ProtocolClaimFetcher struct {
	dialer protocol.Dialer
}

// NewProtocolClaimFetcher creates a fetcher dialing agents through dialer.
func NewProtocolClaimFetcher(dialer protocol.Dialer) *ProtocolClaimFetcher {
	return &ProtocolClaimFetcher{dialer: dialer}
}

// FetchClaims implements ClaimFetcher.
func (f *ProtocolClaimFetcher) FetchClaims(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
	client, err := f.dialer.Dial(ctx, agent.URL, agent.Protocol)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	res, err := client.ExecuteTask(ctx, ToolListAuthorizedProperties, map[string]any{})
	if err != nil {
		return nil, err
	}
	var body struct {
		PublisherDomains []string            `json:"publisher_domains"`
		Properties       []adagents.Property `json:"properties"`
	}
	if err := res.Decode(&body); err != nil {
		return nil, fmt.Errorf("list authorized properties: %w", err)
	}
	return parseClaims(body.PublisherDomains, body.Properties), nil
}

// parseClaims normalizes and de-duplicates claimed domains. Properties
// without a publisher domain cannot be keyed and are dropped.
func parseClaims(domains []string, props []adagents.Property) *Claims {
	c := &Claims{}
	seen := make(map[string]bool)
	add := func(d string) {
		d = types.NormalizeDomain(d)
		if d == "" || seen[d] {
			return
		}
		seen[d] = true
		c.Domains = append(c.Domains, d)
	}
	for _, d := range domains {
		add(d)
	}
	for _, p := range props {
		if p.PublisherDomain == "" || !p.PropertyType.Valid() || len(p.Identifiers) == 0 {
			continue
		}
		dp := p.ToDiscovered(p.PublisherDomain)
		add(dp.PublisherDomain)
		c.Properties = append(c.Properties, dp)
	}
	slices.Sort(c.Domains)
	return c
}
