package types

import (
	"net/url"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
)

// PropertyType enumerates sellable inventory units.
type PropertyType string

const (
	PropertyTypeWebsite        PropertyType = "website"
	PropertyTypeMobileApp      PropertyType = "mobile_app"
	PropertyTypeCTVApp         PropertyType = "ctv_app"
	PropertyTypeDOOH           PropertyType = "dooh"
	PropertyTypePodcast        PropertyType = "podcast"
	PropertyTypeRadio          PropertyType = "radio"
	PropertyTypeStreamingAudio PropertyType = "streaming_audio"
)

var propertyTypes = []PropertyType{
	PropertyTypeWebsite, PropertyTypeMobileApp, PropertyTypeCTVApp, PropertyTypeDOOH,
	PropertyTypePodcast, PropertyTypeRadio, PropertyTypeStreamingAudio,
}

// Valid reports whether t is one of the known property types.
func (t PropertyType) Valid() bool {
	return slices.Contains(propertyTypes, t)
}

// Identifier types whose values are host names.
const (
	IdentifierDomain    = "domain"
	IdentifierSubdomain = "subdomain"
)

// Identifier is a typed handle on a property, e.g. {domain, example.com}.
type Identifier struct {
	Type              string `json:"type"`
	Value             string `json:"value"`
	IncludeSubdomains bool   `json:"include_subdomains,omitempty"`
}

// Key returns the normalized (type, value) pair.
func (i Identifier) Key() IdentifierKey {
	return NormalizeIdentifier(i.Type, i.Value)
}

// IdentifierKey is a normalized identifier tuple, usable as a map key.
type IdentifierKey struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// IsHostType reports whether identifiers of this type hold host names.
func IsHostType(identifierType string) bool {
	t := strings.ToLower(strings.TrimSpace(identifierType))
	return t == IdentifierDomain || t == IdentifierSubdomain
}

// NormalizeIdentifier compares identifiers per type: host names are
// lowercased and IDNA-normalized, everything else is trimmed only.
func NormalizeIdentifier(identifierType, value string) IdentifierKey {
	t := strings.ToLower(strings.TrimSpace(identifierType))
	v := strings.TrimSpace(value)
	if IsHostType(t) {
		v = NormalizeDomain(v)
	}
	return IdentifierKey{Type: t, Value: v}
}

// NormalizeDomain lowercases a host name and strips scheme, port and path.
// Unicode labels are converted to their ASCII form.
func NormalizeDomain(domain string) string {
	d := strings.TrimSpace(strings.ToLower(domain))
	if strings.Contains(d, "://") {
		if u, err := url.Parse(d); err == nil {
			d = u.Host
		}
	}
	if i := strings.IndexAny(d, "/?#"); i >= 0 {
		d = d[:i]
	}
	if host, _, ok := strings.Cut(d, ":"); ok {
		d = host
	}
	d = strings.TrimSuffix(d, ".")
	if ascii, err := idna.Lookup.ToASCII(d); err == nil {
		d = ascii
	}
	return d
}

// ParentDomains lists the ancestors of domain up to and including its
// registrable domain (eTLD+1), nearest first. "a.b.example.co.uk" yields
// ["b.example.co.uk", "example.co.uk"].
func ParentDomains(domain string) []string {
	d := NormalizeDomain(domain)
	root, err := publicsuffix.EffectiveTLDPlusOne(d)
	if err != nil || root == d {
		return nil
	}
	var parents []string
	for {
		_, rest, ok := strings.Cut(d, ".")
		if !ok {
			break
		}
		parents = append(parents, rest)
		if rest == root {
			break
		}
		d = rest
	}
	return parents
}

// NormalizeAgentURL produces the key under which an agent is stored:
// lowercased scheme and host, no trailing slash, no fragment.
func NormalizeAgentURL(raw string) string {
	s := strings.TrimSpace(raw)
	u, err := url.Parse(s)
	if err != nil || u.Host == "" {
		return strings.TrimRight(s, "/")
	}
	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	return u.String()
}

// DiscoveredProperty is a property listed in a publisher's manifest or claimed by an agent.
// Source records who described it; publisher data is never replaced by an
// agent's claim.
type DiscoveredProperty struct {
	ID              string              `json:"id"`
	PropertyID      string              `json:"property_id,omitempty"`
	PublisherDomain string              `json:"publisher_domain"`
	PropertyType    PropertyType        `json:"property_type"`
	Name            string              `json:"name"`
	Identifiers     []Identifier        `json:"identifiers"`
	Tags            []string            `json:"tags,omitempty"`
	Source          AuthorizationSource `json:"source,omitempty"`
	DiscoveredAt    time.Time           `json:"discovered_at"`
	LastSeenAt      time.Time           `json:"last_seen_at"`
}

// Label is what callers see for a property: its external id when it has
// one, otherwise its name.
func (p *DiscoveredProperty) Label() string {
	if p.PropertyID != "" {
		return p.PropertyID
	}
	return p.Name
}

// HasAnyTag reports whether the property carries at least one of tags.
func (p *DiscoveredProperty) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(p.Tags, t) {
			return true
		}
	}
	return false
}

var propertyNamespace = uuid.MustParse("6f1c3a52-9d0e-4a55-8a47-2f5b7e1d9c30")

// PropertyKey derives the deterministic internal id for a property so that
// repeated upserts of the same property land on the same row.
func PropertyKey(publisherDomain, propertyID string, propertyType PropertyType, name string) string {
	domain := NormalizeDomain(publisherDomain)
	var natural string
	if propertyID != "" {
		natural = domain + "|id|" + propertyID
	} else {
		natural = domain + "|name|" + string(propertyType) + "|" + strings.ToLower(strings.TrimSpace(name))
	}
	return uuid.NewSHA1(propertyNamespace, []byte(natural)).String()
}
