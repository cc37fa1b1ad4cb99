package adagents

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/BaSui01/adregistry/types"
)

// WellKnownPath is where publishers host their manifest.
const WellKnownPath = "/.well-known/adagents.json"

// Manifest is the parsed body of an adagents.json file.
type Manifest struct {
	Schema                string            `json:"$schema,omitempty"`
	AuthoritativeLocation string            `json:"authoritative_location,omitempty"`
	AuthorizedAgents      []AuthorizedAgent `json:"authorized_agents"`
	Properties            []Property        `json:"properties,omitempty"`
	LastUpdated           *time.Time        `json:"last_updated,omitempty"`
}

// AuthorizedAgent is one entry of authorized_agents.
type AuthorizedAgent struct {
	URL           string `json:"url"`
	AuthorizedFor string `json:"authorized_for,omitempty"`
	// PropertyIDs restricts the authorization to a subset of Properties.
	PropertyIDs []string `json:"property_ids,omitempty"`
}

// Property is one entry of properties.
type Property struct {
	PropertyID      string             `json:"property_id,omitempty"`
	PropertyType    types.PropertyType `json:"property_type"`
	Name            string             `json:"name"`
	Identifiers     []types.Identifier `json:"identifiers"`
	Tags            []string           `json:"tags,omitempty"`
	PublisherDomain string             `json:"publisher_domain,omitempty"`
}

// ToDiscovered converts the manifest entry into an index record. Properties
// without an explicit publisher_domain belong to the manifest's domain.
func (p Property) ToDiscovered(domain string) *types.DiscoveredProperty {
	publisher := p.PublisherDomain
	if publisher == "" {
		publisher = domain
	}
	return &types.DiscoveredProperty{
		PropertyID:      p.PropertyID,
		PublisherDomain: types.NormalizeDomain(publisher),
		PropertyType:    p.PropertyType,
		Name:            p.Name,
		Identifiers:     slices.Clone(p.Identifiers),
		Tags:            slices.Clone(p.Tags),
	}
}

// PropertiesFor returns the properties an agent entry covers: all of them
// when the entry has no property_ids, otherwise the listed subset. Ids the
// manifest does not define are dropped.
func (m *Manifest) PropertiesFor(agent AuthorizedAgent) []Property {
	if len(agent.PropertyIDs) == 0 {
		return slices.Clone(m.Properties)
	}
	var out []Property
	for _, p := range m.Properties {
		if p.PropertyID != "" && slices.Contains(agent.PropertyIDs, p.PropertyID) {
			out = append(out, p)
		}
	}
	return out
}

// Result is the outcome of fetching and validating one domain.
type Result struct {
	Domain    string    `json:"domain"`
	SourceURL string    `json:"source_url"`
	Valid     bool      `json:"valid"`
	RawData   *Manifest `json:"raw_data,omitempty"`
	Errors    []string  `json:"errors,omitempty"`
}

// Validate checks a parsed manifest. The manifest stays available on the
// result even when it is invalid.
func Validate(domain string, m *Manifest) *Result {
	res := &Result{Domain: domain, RawData: m}
	if m.AuthorizedAgents == nil {
		res.Errors = append(res.Errors, "authorized_agents is required")
	}
	for i, a := range m.AuthorizedAgents {
		if err := validateAgentURL(a.URL); err != nil {
			res.Errors = append(res.Errors, fmt.Sprintf("authorized_agents[%d].url: %v", i, err))
		}
	}
	for i, p := range m.Properties {
		for _, msg := range validateProperty(p) {
			res.Errors = append(res.Errors, fmt.Sprintf("properties[%d]: %s", i, msg))
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

func validateAgentURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("missing")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "https" && u.Scheme != "http" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("missing host")
	}
	return nil
}

func validateProperty(p Property) []string {
	var msgs []string
	if !p.PropertyType.Valid() {
		msgs = append(msgs, fmt.Sprintf("unknown property_type %q", p.PropertyType))
	}
	if p.PropertyID == "" && strings.TrimSpace(p.Name) == "" {
		msgs = append(msgs, "property_id or name is required")
	}
	if len(p.Identifiers) == 0 {
		msgs = append(msgs, "at least one identifier is required")
	}
	for j, id := range p.Identifiers {
		if strings.TrimSpace(id.Type) == "" || strings.TrimSpace(id.Value) == "" {
			msgs = append(msgs, fmt.Sprintf("identifiers[%d] needs type and value", j))
		}
	}
	return msgs
}
