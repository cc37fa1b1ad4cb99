package crawler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/BaSui01/adregistry/capability"
	"github.com/BaSui01/adregistry/index"
	"github.com/BaSui01/adregistry/members"
	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/testutil"
	"github.com/BaSui01/adregistry/testutil/fixtures"
	"github.com/BaSui01/adregistry/testutil/mocks"
	"github.com/BaSui01/adregistry/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
	"go.uber.org/zap"
)

const (
	salesURL = "https://sales.example/mcp"
	otherURL = "https://other.example/mcp"
)

var passTime = time.Date(2026, 4, 1, 9, 0, 0, 0, time.UTC)

type harness struct {
	crawler *Service
	index   *index.Service
	store   store.Store
	fetcher *mocks.MockFetcher
}

func newHarness(t *testing.T, st store.Store, publishers []string, claims ClaimFetcher, prober TypeProber, config Config) *harness {
	t.Helper()
	if st == nil {
		st = store.NewMemoryStore()
	}
	pubs := make([]types.RegisteredPublisher, len(publishers))
	for i, d := range publishers {
		pubs[i] = fixtures.Publisher(d)
	}
	dir := members.NewStaticDirectory([]types.RegisteredAgent{fixtures.SalesAgent(salesURL)}, pubs)
	clock := func() time.Time { return passTime }
	idx := index.NewService(st, dir, index.DefaultConfig(), zap.NewNop(), index.WithClock(clock))
	fetcher := mocks.NewMockFetcher()
	return &harness{
		crawler: NewService(idx, dir, fetcher, claims, prober, config, zap.NewNop(), WithClock(clock)),
		index:   idx,
		store:   st,
		fetcher: fetcher,
	}
}

func staticClaims(domains ...string) ClaimFetcher {
	return ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		return &Claims{Domains: domains}, nil
	})
}

func TestPopulate_RegisteredPublisher(t *testing.T) {
	h := newHarness(t, nil, []string{"news.example"}, nil, nil, DefaultConfig())
	h.fetcher.WithManifest("news.example",
		fixtures.ManifestFor(salesURL, []string{"p1", "ghost"}, fixtures.Websites("news.example", 2)...))
	ctx := context.Background()

	res, err := h.crawler.CrawlAllAgents(ctx, []types.RegisteredAgent{fixtures.SalesAgent(salesURL)})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	require.NotNil(t, res.Populate)
	assert.Equal(t, 1, res.Populate.DomainsValid)
	assert.Equal(t, 1, res.Populate.AgentsRecorded)
	// ghost is not in the manifest and is dropped silently
	assert.Equal(t, 1, res.Populate.PropertiesRecorded)

	v, err := h.index.ValidateAgentForProduct(ctx, salesURL, []types.Selector{
		{PublisherDomain: "news.example", SelectionType: types.SelectAll},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, v.TotalRequested)
	assert.Equal(t, 1, v.TotalAuthorized)
	assert.Equal(t, 50.0, v.CoveragePercentage)

	lookup, err := h.index.LookupDomain(ctx, "news.example")
	require.NoError(t, err)
	require.Len(t, lookup.AuthorizedAgents, 1)
	assert.Equal(t, salesURL, lookup.AuthorizedAgents[0].AgentURL)
}

func TestPopulate_FetchFailureIsNotFatal(t *testing.T) {
	h := newHarness(t, nil, []string{"down.example", "bad.example", "ok.example"}, nil, nil, DefaultConfig())
	h.fetcher.
		WithError("down.example", types.NewError(types.ErrTransientFetchFailure, "status 503").WithRetryable(true)).
		WithManifest("bad.example", fixtures.InvalidManifest()).
		WithManifest("ok.example", fixtures.Manifest(otherURL, fixtures.Website("home", "ok.example")))

	res, err := h.crawler.CrawlAllAgents(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, 3, res.Populate.DomainsProcessed)
	assert.Equal(t, 1, res.Populate.DomainsFailed)
	assert.Equal(t, 1, res.Populate.DomainsInvalid)
	assert.Equal(t, 1, res.Populate.DomainsValid)

	agent, err := h.store.GetAgent(context.Background(), otherURL)
	require.NoError(t, err)
	assert.Equal(t, "ok.example", agent.SourceDomain)
}

func TestPopulate_DomainFetchedOncePerPass(t *testing.T) {
	claims := ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		return &Claims{Domains: []string{"news.example", "NEWS.example", "claimed.example"}}, nil
	})
	h := newHarness(t, nil, []string{"news.example", "News.Example"}, claims, nil, DefaultConfig())
	h.fetcher.
		WithManifest("news.example", fixtures.Manifest(salesURL, fixtures.Website("home", "news.example"))).
		WithManifest("claimed.example", fixtures.Manifest(otherURL, fixtures.Website("home", "claimed.example")))
	ctx := context.Background()

	res, err := h.crawler.CrawlAllAgents(ctx, []types.RegisteredAgent{fixtures.SalesAgent(salesURL)})
	require.NoError(t, err)
	assert.Equal(t, 1, h.fetcher.Calls("news.example"))
	assert.Equal(t, 1, h.fetcher.Calls("claimed.example"))
	assert.Equal(t, 2, res.Populate.DomainsProcessed)
	assert.Equal(t, 2, res.Populate.ClaimsRecorded)
	assert.Equal(t, 2, res.TotalPublishers)
	assert.Equal(t, []string{salesURL}, res.PublisherDomains["news.example"])

	// verified and claimed: listed as authorized
	lookup, err := h.index.LookupDomain(ctx, "news.example")
	require.NoError(t, err)
	require.Len(t, lookup.AuthorizedAgents, 1)
	assert.Equal(t, salesURL, lookup.AuthorizedAgents[0].AgentURL)

	// claimed only: manifest authorizes another agent
	lookup, err = h.index.LookupDomain(ctx, "claimed.example")
	require.NoError(t, err)
	require.Len(t, lookup.SalesAgentsClaiming, 1)
	assert.Equal(t, salesURL, lookup.SalesAgentsClaiming[0].AgentURL)
	require.Len(t, lookup.AuthorizedAgents, 1)
	assert.Equal(t, otherURL, lookup.AuthorizedAgents[0].AgentURL)

	pub, err := h.store.GetPublisher(ctx, "claimed.example")
	require.NoError(t, err)
	assert.True(t, pub.HasValidAdagents)
}

func TestPopulate_StoredClaimsAreRevalidated(t *testing.T) {
	h := newHarness(t, nil, nil, nil, nil, DefaultConfig())
	ctx := context.Background()
	require.NoError(t, h.index.RecordPublisherFromAgent(ctx, "old.example", salesURL, false))
	h.fetcher.WithManifest("old.example", fixtures.Manifest(salesURL, fixtures.Website("home", "old.example")))

	pop, _, err := h.crawler.PopulateFederatedIndex(ctx, []types.RegisteredAgent{fixtures.SalesAgent(salesURL)})
	require.NoError(t, err)
	assert.Equal(t, 1, pop.ClaimsRecorded)
	assert.Equal(t, 1, pop.DomainsValid)

	pub, err := h.store.GetPublisher(ctx, "old.example")
	require.NoError(t, err)
	assert.True(t, pub.HasValidAdagents)
}

func TestCrawl_TransientFailureKeepsVerifiedPublisher(t *testing.T) {
	h := newHarness(t, nil, nil, staticClaims("claimed.example"), nil, DefaultConfig())
	h.fetcher.WithManifest("claimed.example", fixtures.Manifest(salesURL, fixtures.Website("home", "claimed.example")))
	ctx := context.Background()
	agents := []types.RegisteredAgent{fixtures.SalesAgent(salesURL)}

	_, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	pub, err := h.store.GetPublisher(ctx, "claimed.example")
	require.NoError(t, err)
	require.True(t, pub.HasValidAdagents)

	h.fetcher.WithError("claimed.example", types.NewError(types.ErrTransientFetchFailure, "connection reset").WithRetryable(true))
	res, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, 1, res.Populate.DomainsFailed)
	assert.Equal(t, 1, res.Populate.ClaimsSkipped)
	assert.Equal(t, 0, res.Populate.ClaimsRecorded)

	pub, err = h.store.GetPublisher(ctx, "claimed.example")
	require.NoError(t, err)
	assert.True(t, pub.HasValidAdagents)

	lookup, err := h.index.LookupDomain(ctx, "claimed.example")
	require.NoError(t, err)
	require.Len(t, lookup.AuthorizedAgents, 1)
	assert.Equal(t, salesURL, lookup.AuthorizedAgents[0].AgentURL)
}

func TestCrawl_ClaimedPropertiesAndFailures(t *testing.T) {
	claimed := fixtures.Website("sports", "sports.example").ToDiscovered("sports.example")
	claims := ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		if agent.URL == otherURL {
			return nil, errors.New("agent unreachable")
		}
		return &Claims{Domains: []string{"sports.example"}, Properties: []*types.DiscoveredProperty{claimed}}, nil
	})
	h := newHarness(t, nil, nil, claims, nil, DefaultConfig())
	ctx := context.Background()

	res, err := h.crawler.CrawlAllAgents(ctx, []types.RegisteredAgent{
		fixtures.SalesAgent(salesURL),
		fixtures.SalesAgent(otherURL),
		{URL: "https://creative.example", Type: types.AgentTypeCreative},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalAgents)
	assert.Equal(t, 2, res.SuccessfulAgents)
	assert.Equal(t, 1, res.FailedAgents)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "agent unreachable")
	// no manifest at sports.example: the domain claim waits for the next pass,
	// the claimed property is still recorded
	assert.Equal(t, 1, res.Populate.DomainsFailed)
	assert.Equal(t, 0, res.Populate.ClaimsRecorded)
	assert.Equal(t, 1, res.Populate.ClaimsSkipped)

	point, err := h.index.IsPropertyAuthorizedForAgent(ctx, salesURL, "domain", "sports.example")
	require.NoError(t, err)
	assert.True(t, point.Authorized)
	assert.Equal(t, types.SourceAgentClaim, point.Source)
}

func TestCrawl_Idempotent(t *testing.T) {
	h := newHarness(t, nil, []string{"news.example"}, staticClaims("news.example", "extra.example"), nil, DefaultConfig())
	h.fetcher.
		WithManifest("news.example", fixtures.Manifest(salesURL, fixtures.Websites("news.example", 3)...)).
		WithManifest("extra.example", fixtures.ManifestFor(otherURL, []string{"p1"}, fixtures.Websites("extra.example", 2)...))
	ctx := context.Background()
	agents := []types.RegisteredAgent{fixtures.SalesAgent(salesURL)}

	snapshot := func() any {
		counts, err := h.store.Counts(ctx)
		require.NoError(t, err)
		agents, err := h.index.ListAllAgents(ctx, "")
		require.NoError(t, err)
		pubs, err := h.index.ListAllPublishers(ctx)
		require.NoError(t, err)
		news, err := h.index.LookupDomain(ctx, "news.example")
		require.NoError(t, err)
		extra, err := h.index.LookupDomain(ctx, "extra.example")
		require.NoError(t, err)
		return []any{counts, agents, pubs, news, extra}
	}

	_, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	first := snapshot()

	_, err = h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	assert.Equal(t, first, snapshot())
}

func TestCrawl_SingleFlight(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	claims := ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		if calls.Add(1) == 2 {
			<-release
		}
		return &Claims{}, nil
	})
	h := newHarness(t, nil, nil, claims, nil, DefaultConfig())
	ctx := context.Background()
	agents := []types.RegisteredAgent{fixtures.SalesAgent(salesURL)}

	assert.Nil(t, h.crawler.LastResult())
	first, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	var second *Result
	go func() {
		defer wg.Done()
		second, _ = h.crawler.CrawlAllAgents(ctx, agents)
	}()
	testutil.AssertEventuallyTrue(t, func() bool { return calls.Load() == 2 }, 5*time.Second)
	require.True(t, h.crawler.IsCrawling())

	concurrent, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	assert.Same(t, first, concurrent)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	wg.Wait()
	require.NotNil(t, second)
	assert.NotEqual(t, first.PassID, second.PassID)
	assert.False(t, h.crawler.IsCrawling())
	assert.Same(t, second, h.crawler.LastResult())
}

func TestCrawl_SingleFlightBeforeFirstPass(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{})
	claims := ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		close(started)
		<-release
		return &Claims{}, nil
	})
	h := newHarness(t, nil, nil, claims, nil, DefaultConfig())
	agents := []types.RegisteredAgent{fixtures.SalesAgent(salesURL)}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.crawler.CrawlAllAgents(context.Background(), agents)
	}()
	<-started

	res, err := h.crawler.CrawlAllAgents(context.Background(), agents)
	assert.NoError(t, err)
	assert.Nil(t, res)

	close(release)
	<-done
	assert.NotNil(t, h.crawler.LastResult())
}

// failingStore fails agent upserts unless healthy is set.
type failingStore struct {
	store.Store
	err     error
	healthy atomic.Bool
}

func (s *failingStore) UpsertAgent(ctx context.Context, agent *types.DiscoveredAgent) error {
	if s.healthy.Load() {
		return s.Store.UpsertAgent(ctx, agent)
	}
	return s.err
}

func TestCrawl_StoreFailurePropagates(t *testing.T) {
	boom := types.NewError(types.ErrStoreFailure, "database is locked")
	h := newHarness(t, &failingStore{Store: store.NewMemoryStore(), err: boom}, []string{"news.example"}, nil, nil, DefaultConfig())
	h.fetcher.WithManifest("news.example", fixtures.Manifest(salesURL, fixtures.Website("home", "news.example")))

	res, err := h.crawler.CrawlAllAgents(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, types.IsErrorCode(err, types.ErrStoreFailure))
	require.NotNil(t, res)
	assert.Equal(t, StatusFailed, res.Status)
	assert.False(t, h.crawler.IsCrawling())

	// the flag is reset and a new pass can start
	_, err = h.crawler.CrawlAllAgents(context.Background(), nil)
	assert.Error(t, err)
	assert.Equal(t, 2, h.fetcher.Calls("news.example"))
}

func TestCrawl_RecordsPassSpans(t *testing.T) {
	orig := otel.GetTracerProvider()
	t.Cleanup(func() { otel.SetTracerProvider(orig) })
	recorder := tracetest.NewSpanRecorder()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder)))

	h := newHarness(t, nil, []string{"news.example"}, nil, nil, DefaultConfig())
	h.fetcher.WithManifest("news.example", fixtures.Manifest(salesURL, fixtures.Website("home", "news.example")))

	res, err := h.crawler.CrawlAllAgents(context.Background(), nil)
	require.NoError(t, err)

	names := make(map[string]int)
	var pass sdktrace.ReadOnlySpan
	for _, s := range recorder.Ended() {
		names[s.Name()]++
		if s.Name() == "crawler.pass" {
			pass = s
		}
	}
	assert.Equal(t, 1, names["crawler.pass"])
	assert.Equal(t, 1, names["crawler.populate"])
	assert.Equal(t, 1, names["crawler.domain"])
	assert.Equal(t, 1, names["crawler.probe"])
	require.NotNil(t, pass)
	assert.Contains(t, pass.Attributes(), attribute.String("crawl.pass_id", res.PassID))
}

func TestProtocolClaimFetcher(t *testing.T) {
	client := mocks.NewMockAgentClient(ToolListAuthorizedProperties).
		WithTaskJSON(ToolListAuthorizedProperties, map[string]any{
			"publisher_domains": []string{"B.example", "a.example", "b.example"},
			"properties": []any{
				map[string]any{
					"property_type":    "website",
					"name":             "C home",
					"publisher_domain": "c.example",
					"identifiers":      []any{map[string]any{"type": "domain", "value": "c.example"}},
				},
				map[string]any{"property_type": "website", "name": "orphan",
					"identifiers": []any{map[string]any{"type": "domain", "value": "x.example"}}},
			},
		})
	dialer := mocks.NewMockDialer().WithAgent(salesURL, client)

	c, err := NewProtocolClaimFetcher(dialer).FetchClaims(context.Background(), fixtures.SalesAgent(salesURL))
	require.NoError(t, err)
	assert.Equal(t, []string{"a.example", "b.example", "c.example"}, c.Domains)
	require.Len(t, c.Properties, 1)
	assert.Equal(t, "c.example", c.Properties[0].PublisherDomain)
	assert.True(t, client.Closed())

	_, err = NewProtocolClaimFetcher(mocks.NewMockDialer()).FetchClaims(context.Background(), fixtures.SalesAgent(salesURL))
	assert.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	h := newHarness(t, nil, []string{"news.example"}, nil, nil, Config{Interval: 0, CleanupInterval: 0})
	h.fetcher.WithManifest("news.example", fixtures.Manifest(salesURL))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- h.crawler.Run(ctx) }()

	testutil.AssertEventuallyTrue(t, func() bool { return h.crawler.LastResult() != nil }, 5*time.Second)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop")
	}
	assert.Equal(t, 1, h.fetcher.Calls("news.example"))
}

var _ TypeProber = (*capability.Service)(nil)

func TestCrawl_ConcurrentRequestGetsLastCompletedPass(t *testing.T) {
	release := make(chan struct{})
	var calls atomic.Int32
	claims := ClaimFetcherFunc(func(ctx context.Context, agent types.RegisteredAgent) (*Claims, error) {
		if calls.Add(1) == 3 {
			<-release
		}
		return &Claims{}, nil
	})
	st := &failingStore{Store: store.NewMemoryStore(), err: types.NewError(types.ErrStoreFailure, "disk full")}
	st.healthy.Store(true)
	h := newHarness(t, st, []string{"news.example"}, claims, nil, DefaultConfig())
	h.fetcher.WithManifest("news.example", fixtures.Manifest(salesURL, fixtures.Website("home", "news.example")))
	ctx := context.Background()
	agents := []types.RegisteredAgent{fixtures.SalesAgent(salesURL)}

	completed, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, completed.Status)

	st.healthy.Store(false)
	failed, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.Error(t, err)
	require.Equal(t, StatusFailed, failed.Status)
	assert.Same(t, failed, h.crawler.LastResult())
	assert.Same(t, completed, h.crawler.LastCompleted())

	st.healthy.Store(true)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = h.crawler.CrawlAllAgents(ctx, agents)
	}()
	testutil.AssertEventuallyTrue(t, func() bool { return calls.Load() == 3 }, 5*time.Second)

	concurrent, err := h.crawler.CrawlAllAgents(ctx, agents)
	require.NoError(t, err)
	assert.Same(t, completed, concurrent)

	close(release)
	<-done
	assert.Equal(t, StatusCompleted, h.crawler.LastCompleted().Status)
	assert.NotEqual(t, completed.PassID, h.crawler.LastCompleted().PassID)
}
