package crawler

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/BaSui01/adregistry/adagents"
	"github.com/BaSui01/adregistry/capability"
	"github.com/BaSui01/adregistry/index"
	"github.com/BaSui01/adregistry/internal/ctxkeys"
	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/BaSui01/adregistry/internal/pool"
	"github.com/BaSui01/adregistry/internal/telemetry"
	"github.com/BaSui01/adregistry/members"
	"github.com/BaSui01/adregistry/types"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TypeProber infers an agent's type from its capabilities.
// capability.Service implements it.
type TypeProber interface {
	InferType(ctx context.Context, agentURL string, proto types.Protocol) (types.AgentType, *capability.Profile)
}

// Service runs crawl passes that feed the federated index.
//
// At most one pass runs at a time. A pass requested while another is in
// flight returns the last completed pass instead of starting a new one;
// failed passes are never handed out that way.
type Service struct {
	index     *index.Service
	directory members.Directory
	fetcher   adagents.Fetcher
	claims    ClaimFetcher
	prober    TypeProber
	config    Config
	metrics   *metrics.Collector
	tracer    trace.Tracer
	now       func() time.Time
	logger    *zap.Logger

	mu            sync.Mutex
	crawling      bool
	lastResult    *Result
	lastCompleted *Result
}

// Option customizes a Service.
type Option func(*Service)

// WithMetrics records passes and probes on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService wires a crawler. claims may be nil when agent claims are not
// collected; prober may be nil to skip type probing.
func NewService(
	idx *index.Service,
	dir members.Directory,
	fetcher adagents.Fetcher,
	claims ClaimFetcher,
	prober TypeProber,
	config Config,
	logger *zap.Logger,
	opts ...Option,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dir == nil {
		dir = members.NewStaticDirectory(nil, nil)
	}
	defaults := DefaultConfig()
	if config.Concurrency <= 0 {
		config.Concurrency = defaults.Concurrency
	}
	if config.ProbeTimeout <= 0 {
		config.ProbeTimeout = defaults.ProbeTimeout
	}
	s := &Service{
		index:     idx,
		directory: dir,
		fetcher:   fetcher,
		claims:    claims,
		prober:    prober,
		config:    config,
		tracer:    telemetry.Tracer("crawler"),
		now:       func() time.Time { return time.Now().UTC() },
		logger:    logger.With(zap.String("component", "crawler")),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsCrawling reports whether a pass is in flight.
func (s *Service) IsCrawling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crawling
}

// LastResult returns the most recent pass, failed or not, or nil before
// the first one finishes.
func (s *Service) LastResult() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastResult
}

// LastCompleted returns the most recent pass with StatusCompleted, or nil.
func (s *Service) LastCompleted() *Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastCompleted
}

func (s *Service) begin() (*Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.crawling {
		return s.lastCompleted, false
	}
	s.crawling = true
	return nil, true
}

func (s *Service) finish(res *Result) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.crawling = false
	if res == nil {
		return
	}
	s.lastResult = res
	if res.Status == StatusCompleted {
		s.lastCompleted = res
	}
}

// ============================================================
// Crawl pass
// ============================================================

// CrawlAllAgents runs one full pass over agents: collect sales agents'
// claims, populate the index from publisher manifests, then probe untyped
// agents. Per-agent and per-domain failures are counted, not returned;
// an error means the index itself could not be written.
func (s *Service) CrawlAllAgents(ctx context.Context, agents []types.RegisteredAgent) (*Result, error) {
	last, ok := s.begin()
	if !ok {
		s.logger.Info("crawl already in progress, returning last completed result")
		return last, nil
	}

	res := &Result{
		PassID:           uuid.NewString(),
		StartedAt:        s.now(),
		TotalAgents:      len(agents),
		PublisherDomains: make(map[string][]string),
	}
	defer func() {
		s.finish(res)
	}()

	ctx = ctxkeys.WithPassID(ctx, res.PassID)
	ctx, span := s.tracer.Start(ctx, "crawler.pass",
		trace.WithAttributes(
			attribute.String("crawl.pass_id", res.PassID),
			attribute.Int("crawl.agents", len(agents)),
		))
	defer span.End()

	log := s.logger.With(ctxkeys.Fields(ctx)...)
	log.Info("crawl pass started", zap.Int("agents", len(agents)))

	err := s.crawl(ctx, agents, res)

	res.FinishedAt = s.now()
	res.Status = StatusCompleted
	if err != nil {
		res.Status = StatusFailed
		res.Error = err.Error()
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.Error("crawl pass failed", zap.Error(err))
	} else {
		log.Info("crawl pass finished",
			zap.Duration("duration", res.Duration()),
			zap.Int("successful_agents", res.SuccessfulAgents),
			zap.Int("failed_agents", res.FailedAgents),
			zap.Int("publishers", res.TotalPublishers),
		)
	}
	s.metrics.RecordCrawlPass(res.Status, res.Duration())
	return res, err
}

func (s *Service) crawl(ctx context.Context, agents []types.RegisteredAgent, res *Result) error {
	claimed, err := s.collectClaims(ctx, agents, res)
	if err != nil {
		return err
	}
	pop, probe, err := s.populate(ctx, agents, claimed)
	res.Populate = pop
	res.Probe = probe
	return err
}

// collectClaims fetches each sales agent's claims and records the claimed
// properties. It returns claimed domains per agent URL.
func (s *Service) collectClaims(ctx context.Context, agents []types.RegisteredAgent, res *Result) (map[string][]string, error) {
	ctx, span := s.tracer.Start(ctx, "crawler.claims")
	defer span.End()

	claimed := make(map[string][]string)
	var mu sync.Mutex
	log := s.logger.With(ctxkeys.Fields(ctx)...)

	err := pool.ForEach(ctx, agents, s.config.Concurrency, func(ctx context.Context, agent types.RegisteredAgent) error {
		agentURL := types.NormalizeAgentURL(agent.URL)
		if agent.Type != types.AgentTypeSales || s.claims == nil {
			mu.Lock()
			res.SuccessfulAgents++
			mu.Unlock()
			return nil
		}

		c, err := s.claims.FetchClaims(ctx, agent)
		if err != nil {
			log.Warn("fetch agent claims failed", zap.String("agent_url", agentURL), zap.Error(err))
			mu.Lock()
			res.FailedAgents++
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", agentURL, err))
			mu.Unlock()
			return nil
		}
		for _, p := range c.Properties {
			if _, err := s.index.RecordClaimedProperty(ctx, p, agentURL); err != nil {
				return err
			}
		}

		domains := make([]string, 0, len(c.Domains))
		for _, d := range c.Domains {
			if d = types.NormalizeDomain(d); d != "" && !slices.Contains(domains, d) {
				domains = append(domains, d)
			}
		}

		mu.Lock()
		defer mu.Unlock()
		res.SuccessfulAgents++
		claimed[agentURL] = domains
		for _, d := range domains {
			res.PublisherDomains[d] = append(res.PublisherDomains[d], agentURL)
		}
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("collect claims: %w", err)
	}

	res.TotalPublishers = len(res.PublisherDomains)
	for _, urls := range res.PublisherDomains {
		sort.Strings(urls)
	}
	sort.Strings(res.Errors)
	return claimed, nil
}
