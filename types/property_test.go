package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeDomain(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Example.COM", "example.com"},
		{" https://news.example.com/path?q=1 ", "news.example.com"},
		{"example.com:8443", "example.com"},
		{"example.com.", "example.com"},
		{"bücher.de", "xn--bcher-kva.de"},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, NormalizeDomain(tt.in), tt.in)
	}
}

func TestNormalizeIdentifier_PerType(t *testing.T) {
	assert.Equal(t, IdentifierKey{Type: "domain", Value: "example.com"}, NormalizeIdentifier("Domain", "EXAMPLE.com"))
	// bundle ids keep their case
	assert.Equal(t, IdentifierKey{Type: "ios_bundle", Value: "com.Example.App"}, NormalizeIdentifier("ios_bundle", " com.Example.App "))
}

func TestParentDomains(t *testing.T) {
	assert.Equal(t, []string{"b.example.co.uk", "example.co.uk"}, ParentDomains("a.b.example.co.uk"))
	assert.Equal(t, []string{"example.com"}, ParentDomains("www.example.com"))
	assert.Nil(t, ParentDomains("example.com"))
	assert.Nil(t, ParentDomains("co.uk"))
}

func TestNormalizeAgentURL(t *testing.T) {
	assert.Equal(t, "https://agent.example.com/mcp", NormalizeAgentURL("HTTPS://Agent.Example.com/mcp/"))
	assert.Equal(t, "https://agent.example.com", NormalizeAgentURL("https://agent.example.com/#frag"))
}

func TestPropertyKey_Deterministic(t *testing.T) {
	a := PropertyKey("Example.com", "p1", PropertyTypeWebsite, "Home")
	b := PropertyKey("example.com", "p1", PropertyTypeMobileApp, "Other name")
	assert.Equal(t, a, b, "external id wins over name and type")

	c := PropertyKey("example.com", "", PropertyTypeWebsite, "Home")
	d := PropertyKey("example.com", "", PropertyTypeWebsite, " home ")
	assert.Equal(t, c, d)
	assert.NotEqual(t, a, c)
}

func TestAuthorizationSource_Rank(t *testing.T) {
	assert.Equal(t, SourceAdagentsJSON, Stronger(SourceAgentClaim, SourceAdagentsJSON))
	assert.Equal(t, SourceAdagentsJSON, Stronger(SourceAdagentsJSON, SourceAgentClaim))
	assert.Equal(t, SourceAgentClaim, Stronger(SourceNone, SourceAgentClaim))
}

func TestSelector_Validate(t *testing.T) {
	assert.NoError(t, Selector{PublisherDomain: "example.com", SelectionType: SelectAll}.Validate())
	err := Selector{PublisherDomain: "example.com", SelectionType: "by_name"}.Validate()
	assert.True(t, IsErrorCode(err, ErrInvalidSelector))
	err = Selector{SelectionType: SelectAll}.Validate()
	assert.True(t, IsErrorCode(err, ErrInvalidSelector))
}
