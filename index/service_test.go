package index

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/adregistry/members"
	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var fixedNow = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time { return c.now }

func newTestService(t *testing.T, dir members.Directory) (*Service, *store.MemoryStore, *testClock) {
	t.Helper()
	st := store.NewMemoryStore()
	clock := &testClock{now: fixedNow}
	svc := NewService(st, dir, Config{DiscoveredTTL: 24 * time.Hour}, zap.NewNop(), WithClock(clock.Now))
	return svc, st, clock
}

func acmeDirectory() *members.StaticDirectory {
	return members.NewStaticDirectory(
		[]types.RegisteredAgent{
			{
				URL: "https://sales.acme.example/mcp", Name: "Acme Sales", Type: types.AgentTypeSales,
				Member: types.MemberInfo{MemberID: "m-1", MemberName: "Acme"},
			},
			{
				URL: "https://hidden.acme.example", Type: types.AgentTypeSignals, Visibility: types.VisibilityPrivate,
				Member: types.MemberInfo{MemberID: "m-1", MemberName: "Acme"},
			},
		},
		[]types.RegisteredPublisher{
			{Domain: "news.example", Member: types.MemberInfo{MemberID: "m-1", MemberName: "Acme"}},
		},
	)
}

func TestListAllAgents_RegisteredWins(t *testing.T) {
	svc, _, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()

	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://sales.acme.example/mcp/", "news.example", "", nil))
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://other.example/mcp", "news.example", "", nil))
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://hidden.acme.example", "news.example", "", nil))

	agents, err := svc.ListAllAgents(ctx, "")
	require.NoError(t, err)

	byURL := make(map[string]FederatedAgent)
	for _, a := range agents {
		_, dup := byURL[a.URL]
		require.False(t, dup, "duplicate %s", a.URL)
		byURL[a.URL] = a
	}
	require.Len(t, byURL, 2)

	acme := byURL["https://sales.acme.example/mcp"]
	assert.Equal(t, OriginRegistered, acme.Origin)
	require.NotNil(t, acme.Member)
	assert.Equal(t, "Acme", acme.Member.MemberName)
	assert.Nil(t, acme.DiscoveredAt)

	other := byURL["https://other.example/mcp"]
	assert.Equal(t, OriginDiscovered, other.Origin)
	assert.Equal(t, "news.example", other.SourceDomain)
	require.NotNil(t, other.DiscoveredAt)
	assert.True(t, other.DiscoveredAt.Equal(fixedNow))

	// 私有注册项同样遮蔽同 URL 的发现记录
	_, ok := byURL["https://hidden.acme.example"]
	assert.False(t, ok)
}

func TestListAllAgents_RegisteredWinsUnderTypeFilter(t *testing.T) {
	dir := members.NewStaticDirectory([]types.RegisteredAgent{
		{URL: "https://r.example/mcp", Name: "R", Type: types.AgentTypeSales, Member: types.MemberInfo{MemberName: "R"}},
	}, nil)
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://r.example/mcp", "pub.example", "", nil))

	unknown, err := svc.ListAllAgents(ctx, types.AgentTypeUnknown)
	require.NoError(t, err)
	assert.Empty(t, unknown)

	sales, err := svc.ListAllAgents(ctx, types.AgentTypeSales)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, OriginRegistered, sales[0].Origin)
}

func TestListAllAgents_PrivateRegisteredHidesDiscovered(t *testing.T) {
	svc, st, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://hidden.acme.example", "pub.example", "", nil))
	require.NoError(t, st.SetAgentType(ctx, "https://hidden.acme.example", types.AgentTypeSignals, fixedNow))

	for _, filter := range []types.AgentType{"", types.AgentTypeSignals} {
		agents, err := svc.ListAllAgents(ctx, filter)
		require.NoError(t, err)
		for _, a := range agents {
			assert.NotEqual(t, "https://hidden.acme.example", a.URL, "filter %q", filter)
		}
	}
}

func TestListAllPublishers_PrivateRegisteredHidesDiscovered(t *testing.T) {
	dir := members.NewStaticDirectory(nil, []types.RegisteredPublisher{
		{Domain: "secret.example", Visibility: types.VisibilityPrivate},
	})
	svc, _, _ := newTestService(t, dir)
	ctx := context.Background()
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "secret.example", "https://x.example", true))

	pubs, err := svc.ListAllPublishers(ctx)
	require.NoError(t, err)
	assert.Empty(t, pubs)

	lookup, err := svc.LookupDomain(ctx, "secret.example")
	require.NoError(t, err)
	assert.Nil(t, lookup.Publisher)
}

func TestListAllAgents_TypeFilter(t *testing.T) {
	svc, st, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()
	require.NoError(t, st.SetAgentType(ctx, "https://creative.example", types.AgentTypeCreative, fixedNow))

	sales, err := svc.ListAllAgents(ctx, types.AgentTypeSales)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "https://sales.acme.example/mcp", sales[0].URL)

	creative, err := svc.ListAllAgents(ctx, types.AgentTypeCreative)
	require.NoError(t, err)
	require.Len(t, creative, 1)
	assert.Equal(t, OriginDiscovered, creative[0].Origin)
}

func TestListAllAgents_ProbedTypeFillsRegistered(t *testing.T) {
	dir := members.NewStaticDirectory([]types.RegisteredAgent{
		{URL: "https://untyped.example", Type: types.AgentTypeUnknown, Member: types.MemberInfo{MemberName: "Beta"}},
	}, nil)
	svc, st, _ := newTestService(t, dir)
	ctx := context.Background()

	sales, err := svc.ListAllAgents(ctx, types.AgentTypeSales)
	require.NoError(t, err)
	assert.Empty(t, sales)

	require.NoError(t, svc.RecordAgentType(ctx, "https://untyped.example", types.AgentTypeSales))
	got, err := st.GetAgent(ctx, "https://untyped.example")
	require.NoError(t, err)
	require.NotNil(t, got.LastProbed)
	assert.True(t, got.LastProbed.Equal(fixedNow))

	sales, err = svc.ListAllAgents(ctx, types.AgentTypeSales)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, OriginRegistered, sales[0].Origin)
	assert.Equal(t, types.AgentTypeSales, sales[0].Type)
	assert.Equal(t, "Beta", sales[0].Member.MemberName)
}

func TestListAllPublishers_RegisteredWins(t *testing.T) {
	svc, _, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()

	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "NEWS.example", "https://x.example", true))
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "blog.example", "https://x.example", false))

	pubs, err := svc.ListAllPublishers(ctx)
	require.NoError(t, err)
	require.Len(t, pubs, 2)
	assert.Equal(t, "news.example", pubs[0].Domain)
	assert.Equal(t, OriginRegistered, pubs[0].Origin)
	assert.Equal(t, "blog.example", pubs[1].Domain)
	assert.Equal(t, OriginDiscovered, pubs[1].Origin)
	assert.Equal(t, "https://x.example", pubs[1].DiscoveredByAgent)
}

func TestLookupDomain_SourceRanking(t *testing.T) {
	svc, _, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()

	// 同一代理既有声明又有 adagents.json 证据
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "news.example", "https://sales.acme.example/mcp", true))
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://sales.acme.example/mcp", "news.example", "display", []string{"home"}))
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "news.example", "https://claimer.example", true))

	lookup, err := svc.LookupDomain(ctx, "News.Example")
	require.NoError(t, err)
	assert.Equal(t, "news.example", lookup.Domain)

	require.Len(t, lookup.AuthorizedAgents, 1)
	verified := lookup.AuthorizedAgents[0]
	assert.Equal(t, "https://sales.acme.example/mcp", verified.AgentURL)
	assert.Equal(t, types.SourceAdagentsJSON, verified.Source)
	assert.Equal(t, "display", verified.AuthorizedFor)
	assert.Equal(t, []string{"home"}, verified.PropertyIDs)
	require.NotNil(t, verified.Member)
	assert.Equal(t, "m-1", verified.Member.MemberID)

	claimers := make([]string, 0, len(lookup.SalesAgentsClaiming))
	for _, c := range lookup.SalesAgentsClaiming {
		claimers = append(claimers, c.AgentURL)
		assert.Equal(t, types.SourceAgentClaim, c.Source)
	}
	assert.ElementsMatch(t, []string{"https://claimer.example", "https://sales.acme.example/mcp"}, claimers)

	require.NotNil(t, lookup.Publisher)
	assert.Equal(t, OriginRegistered, lookup.Publisher.Origin)
}

func TestLookupDomain_Empty(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	lookup, err := svc.LookupDomain(context.Background(), "unknown.example")
	require.NoError(t, err)
	assert.Empty(t, lookup.AuthorizedAgents)
	assert.Empty(t, lookup.SalesAgentsClaiming)
	assert.Nil(t, lookup.Publisher)

	_, err = svc.LookupDomain(context.Background(), "  ")
	assert.True(t, types.IsErrorCode(err, types.ErrInvalidRecord))
}

func TestGetDomainsForAgent_StrongestSource(t *testing.T) {
	svc, _, _ := newTestService(t, nil)
	ctx := context.Background()
	agent := "https://agent.example"

	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "b.example", agent, false))
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "a.example", agent, true))
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, agent, "a.example", "video", nil))

	domains, err := svc.GetDomainsForAgent(ctx, agent)
	require.NoError(t, err)
	require.Len(t, domains, 2)
	assert.Equal(t, "a.example", domains[0].Domain)
	assert.Equal(t, types.SourceAdagentsJSON, domains[0].Source)
	assert.Equal(t, "video", domains[0].AuthorizedFor)
	assert.Equal(t, "b.example", domains[1].Domain)
	assert.Equal(t, types.SourceAgentClaim, domains[1].Source)
}

func TestRecordOperations_Idempotent(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	prop := &types.DiscoveredProperty{
		PropertyID:      "home",
		PublisherDomain: "news.example",
		PropertyType:    types.PropertyTypeWebsite,
		Name:            "Home",
		Identifiers:     []types.Identifier{{Type: "domain", Value: "news.example"}},
	}

	for i := 0; i < 3; i++ {
		require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://a.example", "news.example", "", []string{"home"}))
		id, err := svc.RecordProperty(ctx, prop, "https://a.example", "")
		require.NoError(t, err)
		assert.Equal(t, types.PropertyKey("news.example", "home", types.PropertyTypeWebsite, "Home"), id)
		require.NoError(t, svc.RecordPublisherFromAgent(ctx, "news.example", "https://a.example", true))
	}

	counts, err := st.Counts(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), counts.Agents)
	assert.Equal(t, int64(1), counts.Publishers)
	assert.Equal(t, int64(1), counts.Properties)
	assert.Equal(t, int64(1), counts.PublisherAuthorizations[types.SourceAdagentsJSON])
	assert.Equal(t, int64(1), counts.PublisherAuthorizations[types.SourceAgentClaim])
	assert.Equal(t, int64(1), counts.PropertyAuthorizations[types.SourceAdagentsJSON])
	assert.Empty(t, prop.ID, "caller's property is not mutated")
}

func TestRecordClaimedProperty(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	id, err := svc.RecordClaimedProperty(ctx, &types.DiscoveredProperty{
		PublisherDomain: "claimed.example",
		PropertyType:    types.PropertyTypeMobileApp,
		Name:            "Claimed App",
	}, "https://a.example")
	require.NoError(t, err)

	auths, err := st.ListPropertyAuthorizations(ctx, "https://a.example")
	require.NoError(t, err)
	require.Len(t, auths, 1)
	assert.Equal(t, id, auths[0].PropertyID)
	assert.Equal(t, types.SourceAgentClaim, auths[0].Source)
}

func TestCleanupExpired(t *testing.T) {
	svc, st, clock := newTestService(t, acmeDirectory())
	ctx := context.Background()

	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "stale.example", "https://a.example", false))
	clock.now = fixedNow.Add(20 * time.Hour)
	require.NoError(t, svc.RecordPublisherFromAgent(ctx, "fresh.example", "https://a.example", false))

	clock.now = fixedNow.Add(30 * time.Hour)
	res, err := svc.CleanupExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), res.Publishers)
	assert.Equal(t, int64(1), res.PublisherAuthorizations)

	pubs, err := st.ListPublishers(ctx)
	require.NoError(t, err)
	require.Len(t, pubs, 1)
	assert.Equal(t, "fresh.example", pubs[0].Domain)

	// 注册数据不受清理影响
	all, err := svc.ListAllPublishers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestGetStats(t *testing.T) {
	svc, _, _ := newTestService(t, acmeDirectory())
	ctx := context.Background()
	require.NoError(t, svc.RecordAgentFromAdagentsJSON(ctx, "https://a.example", "news.example", "", nil))

	stats, err := svc.GetStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.RegisteredAgents)
	assert.Equal(t, 1, stats.RegisteredPublishers)
	assert.Equal(t, int64(1), stats.Discovered.Agents)
	assert.Equal(t, int64(1), stats.Discovered.PublisherAuthorizations[types.SourceAdagentsJSON])
}

func TestRecordClaimedProperty_KeepsPublisherDescription(t *testing.T) {
	svc, st, _ := newTestService(t, nil)
	ctx := context.Background()
	published := &types.DiscoveredProperty{
		PropertyID:      "home",
		PublisherDomain: "pub.example",
		PropertyType:    types.PropertyTypeWebsite,
		Name:            "Home",
		Identifiers:     []types.Identifier{{Type: "domain", Value: "www.pub.example"}},
		Tags:            []string{"news"},
	}
	id, err := svc.RecordProperty(ctx, published, "https://verified.example", "")
	require.NoError(t, err)

	claimed := *published
	claimed.Identifiers = []types.Identifier{{Type: "domain", Value: "elsewhere.example"}}
	claimed.Tags = []string{"sports"}
	claimedID, err := svc.RecordClaimedProperty(ctx, &claimed, "https://claimer.example")
	require.NoError(t, err)
	assert.Equal(t, id, claimedID)

	got, err := st.GetProperty(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, types.SourceAdagentsJSON, got.Source)
	assert.Equal(t, []types.Identifier{{Type: "domain", Value: "www.pub.example"}}, got.Identifiers)
	assert.Equal(t, []string{"news"}, got.Tags)

	// 声明仍然建立了代理与属性的关联
	point, err := svc.IsPropertyAuthorizedForAgent(ctx, "https://claimer.example", "domain", "www.pub.example")
	require.NoError(t, err)
	assert.True(t, point.Authorized)
	assert.Equal(t, types.SourceAgentClaim, point.Source)
}
