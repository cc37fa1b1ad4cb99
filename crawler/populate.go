package crawler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/BaSui01/adregistry/internal/ctxkeys"
	"github.com/BaSui01/adregistry/internal/pool"
	"github.com/BaSui01/adregistry/store"
	"github.com/BaSui01/adregistry/types"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// domainStatus is what one pass learned about a domain's manifest.
type domainStatus int

const (
	// domainFetchFailed means the manifest could not be fetched; the domain
	// is skipped until the next pass.
	domainFetchFailed domainStatus = iota
	domainInvalid
	domainValid
)

// domainOutcome is the once-per-pass result of fetching a domain's manifest.
type domainOutcome struct {
	once   sync.Once
	status domainStatus
	err    error
}

// passState is shared by the populate steps of one pass.
type passState struct {
	mu      sync.Mutex
	domains map[string]*domainOutcome
	res     *PopulateResult
}

func newPassState() *passState {
	return &passState{
		domains: make(map[string]*domainOutcome),
		res:     &PopulateResult{},
	}
}

func (p *passState) outcome(domain string) *domainOutcome {
	p.mu.Lock()
	defer p.mu.Unlock()
	o, ok := p.domains[domain]
	if !ok {
		o = &domainOutcome{}
		p.domains[domain] = o
	}
	return o
}

func (p *passState) add(fn func(r *PopulateResult)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p.res)
}

// claimTarget is one (agent, claimed domain) pair for step 2.
type claimTarget struct {
	agentURL string
	domain   string
}

// PopulateFederatedIndex refreshes the index from publisher manifests and
// stored agent claims, then probes untyped agents.
func (s *Service) PopulateFederatedIndex(ctx context.Context, agents []types.RegisteredAgent) (*PopulateResult, *ProbeResult, error) {
	return s.populate(ctx, agents, nil)
}

func (s *Service) populate(ctx context.Context, agents []types.RegisteredAgent, claimed map[string][]string) (*PopulateResult, *ProbeResult, error) {
	ctx, span := s.tracer.Start(ctx, "crawler.populate")
	defer span.End()

	state := newPassState()
	fail := func(err error) (*PopulateResult, *ProbeResult, error) {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return state.res, nil, err
	}

	// 1. 注册发布商的 adagents.json
	publishers, err := s.directory.RegisteredPublishers(ctx)
	if err != nil {
		return fail(fmt.Errorf("list registered publishers: %w", err))
	}
	domains := make([]string, 0, len(publishers))
	for _, p := range publishers {
		if d := types.NormalizeDomain(p.Domain); d != "" && !slices.Contains(domains, d) {
			domains = append(domains, d)
		}
	}
	if err := pool.ForEach(ctx, domains, s.config.Concurrency, func(ctx context.Context, domain string) error {
		_, err := s.processDomain(ctx, state, domain)
		return err
	}); err != nil {
		return fail(fmt.Errorf("process registered publishers: %w", err))
	}

	// 2. 销售代理声称的域名
	targets, err := s.claimTargets(ctx, agents, claimed)
	if err != nil {
		return fail(err)
	}
	if err := pool.ForEach(ctx, targets, s.config.Concurrency, func(ctx context.Context, t claimTarget) error {
		status, err := s.processDomain(ctx, state, t.domain)
		if err != nil {
			return err
		}
		// 抓取失败不改写已存储的校验结果
		if status == domainFetchFailed {
			state.add(func(r *PopulateResult) { r.ClaimsSkipped++ })
			return nil
		}
		if err := s.index.RecordPublisherFromAgent(ctx, t.domain, t.agentURL, status == domainValid); err != nil {
			return err
		}
		state.add(func(r *PopulateResult) { r.ClaimsRecorded++ })
		return nil
	}); err != nil {
		return fail(fmt.Errorf("process claimed publishers: %w", err))
	}

	span.SetAttributes(
		attribute.Int("crawl.domains", state.res.DomainsProcessed),
		attribute.Int("crawl.domains_failed", state.res.DomainsFailed),
	)

	// 3. 探测代理类型
	probe, err := s.ProbeAndUpdateAgentTypes(ctx, agents)
	if err != nil {
		return fail(err)
	}
	return state.res, probe, nil
}

// claimTargets lists, per sales agent, the union of stored agent_claim
// domains and the domains claimed during this pass.
func (s *Service) claimTargets(ctx context.Context, agents []types.RegisteredAgent, claimed map[string][]string) ([]claimTarget, error) {
	var targets []claimTarget
	seen := make(map[claimTarget]bool)
	add := func(agentURL, domain string) {
		t := claimTarget{agentURL: agentURL, domain: types.NormalizeDomain(domain)}
		if t.domain == "" || seen[t] {
			return
		}
		seen[t] = true
		targets = append(targets, t)
	}

	for _, a := range agents {
		if a.Type != types.AgentTypeSales {
			continue
		}
		agentURL := types.NormalizeAgentURL(a.URL)
		auths, err := s.index.Store().ListPublisherAuthorizations(ctx, store.AuthorizationFilter{
			AgentURL: agentURL,
			Source:   types.SourceAgentClaim,
		})
		if err != nil {
			return nil, fmt.Errorf("list claims of %s: %w", agentURL, err)
		}
		for _, auth := range auths {
			add(agentURL, auth.PublisherDomain)
		}
		for _, d := range claimed[agentURL] {
			add(agentURL, d)
		}
	}
	return targets, nil
}

// processDomain fetches and records domain's manifest at most once per
// pass. Fetch failures are logged and reported as domainFetchFailed; only
// index write failures and cancellation are returned as errors.
func (s *Service) processDomain(ctx context.Context, state *passState, domain string) (domainStatus, error) {
	o := state.outcome(domain)
	o.once.Do(func() {
		o.status, o.err = s.fetchAndRecord(ctx, state, domain)
	})
	return o.status, o.err
}

func (s *Service) fetchAndRecord(ctx context.Context, state *passState, domain string) (domainStatus, error) {
	ctx, span := s.tracer.Start(ctx, "crawler.domain", trace.WithAttributes(attribute.String("publisher.domain", domain)))
	defer span.End()
	log := s.logger.With(ctxkeys.Fields(ctx)...).With(zap.String("domain", domain))

	state.add(func(r *PopulateResult) { r.DomainsProcessed++ })

	result, err := s.fetcher.Fetch(ctx, domain)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return domainFetchFailed, err
		}
		log.Warn("adagents.json fetch failed, skipping domain",
			zap.String("code", string(types.GetErrorCode(err))),
			zap.Error(err))
		span.SetStatus(codes.Error, err.Error())
		state.add(func(r *PopulateResult) { r.DomainsFailed++ })
		return domainFetchFailed, nil
	}
	if !result.Valid || result.RawData == nil {
		log.Info("adagents.json invalid", zap.Strings("errors", result.Errors))
		state.add(func(r *PopulateResult) { r.DomainsInvalid++ })
		return domainInvalid, nil
	}
	state.add(func(r *PopulateResult) { r.DomainsValid++ })

	manifest := result.RawData
	for _, agent := range manifest.AuthorizedAgents {
		agentURL := types.NormalizeAgentURL(agent.URL)
		if err := s.index.RecordAgentFromAdagentsJSON(ctx, agentURL, domain, agent.AuthorizedFor, agent.PropertyIDs); err != nil {
			return domainInvalid, err
		}
		state.add(func(r *PopulateResult) { r.AgentsRecorded++ })

		for _, prop := range manifest.PropertiesFor(agent) {
			if _, err := s.index.RecordProperty(ctx, prop.ToDiscovered(domain), agentURL, agent.AuthorizedFor); err != nil {
				return domainInvalid, err
			}
			state.add(func(r *PopulateResult) { r.PropertiesRecorded++ })
		}
	}
	log.Debug("adagents.json recorded", zap.Int("agents", len(manifest.AuthorizedAgents)), zap.Int("properties", len(manifest.Properties)))
	return domainValid, nil
}
