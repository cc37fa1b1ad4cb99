package types

import "fmt"

// SelectionType decides how a selector resolves properties under a domain.
type SelectionType string

const (
	SelectAll   SelectionType = "all"
	SelectByID  SelectionType = "by_id"
	SelectByTag SelectionType = "by_tag"
)

// Selector is a query over one publisher's properties.
type Selector struct {
	PublisherDomain string        `json:"publisher_domain"`
	SelectionType   SelectionType `json:"selection_type"`
	PropertyIDs     []string      `json:"property_ids,omitempty"`
	PropertyTags    []string      `json:"property_tags,omitempty"`
}

// Validate rejects selectors that cannot be resolved.
func (s Selector) Validate() error {
	if NormalizeDomain(s.PublisherDomain) == "" {
		return NewError(ErrInvalidSelector, "publisher_domain is required")
	}
	switch s.SelectionType {
	case SelectAll, SelectByID, SelectByTag:
		return nil
	default:
		return NewError(ErrInvalidSelector, fmt.Sprintf("unknown selection_type %q", s.SelectionType))
	}
}
