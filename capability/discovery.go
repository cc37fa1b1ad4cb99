package capability

import (
	"context"
	"time"

	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/BaSui01/adregistry/protocol"
	"github.com/BaSui01/adregistry/types"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Config holds capability discovery settings.
type Config struct {
	CacheTTL time.Duration `json:"cache_ttl" yaml:"cache_ttl"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{CacheTTL: DefaultCacheTTL}
}

// Service discovers and caches agent capability profiles.
type Service struct {
	dialer  protocol.Dialer
	cache   Cache
	formats FormatsLookup
	group   singleflight.Group
	metrics *metrics.Collector
	now     func() time.Time
	logger  *zap.Logger
}

// Option customizes a Service.
type Option func(*Service)

// WithCache replaces the in-memory cache.
func WithCache(c Cache) Option {
	return func(s *Service) { s.cache = c }
}

// WithFormatsLookup replaces the task-based formats lookup.
func WithFormatsLookup(f FormatsLookup) Option {
	return func(s *Service) { s.formats = f }
}

// WithMetrics records cache hits and misses.
func WithMetrics(c *metrics.Collector) Option {
	return func(s *Service) { s.metrics = c }
}

// WithClock overrides time.Now for the default cache and DiscoveredAt.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a discovery service dialing agents through dialer.
func NewService(dialer protocol.Dialer, config Config, logger *zap.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Service{
		dialer:  dialer,
		formats: TaskFormatsLookup{},
		now:     time.Now,
		logger:  logger.With(zap.String("component", "capability_discovery")),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.cache == nil {
		s.cache = NewMemoryCache(config.CacheTTL, s.now)
	}
	return s
}

// DiscoverCapabilities returns the agent's capability profile, from cache
// when fresh. Callers own the returned profile. It never returns nil: transport failures yield a profile with
// DiscoveryError set, which is not cached.
func (s *Service) DiscoverCapabilities(ctx context.Context, agentURL string, proto types.Protocol) *Profile {
	if p, ok := s.cache.Get(ctx, agentURL); ok {
		s.metrics.RecordCacheHit("capability")
		return p
	}
	s.metrics.RecordCacheMiss("capability")

	v, _, shared := s.group.Do(agentURL, func() (any, error) {
		p := s.discover(ctx, agentURL, proto)
		if !p.Failed() {
			s.cache.Set(ctx, agentURL, p)
		}
		return p, nil
	})
	// 合并的调用各自拿到独立副本
	if shared {
		return v.(*Profile).Clone()
	}
	return v.(*Profile)
}

// InferType discovers the profile and infers the agent type from it.
func (s *Service) InferType(ctx context.Context, agentURL string, proto types.Protocol) (types.AgentType, *Profile) {
	p := s.DiscoverCapabilities(ctx, agentURL, proto)
	t := InferTypeFromProfile(p)
	if t == types.AgentTypeUnknown && len(p.Kinds()) > 1 {
		s.logger.Info("agent exposes several capability sets, type left unknown",
			zap.String("agent_url", agentURL),
			zap.Any("kinds", p.Kinds()),
		)
	}
	return t, p
}

// Invalidate drops any cached profile for the agent.
func (s *Service) Invalidate(ctx context.Context, agentURL string) {
	s.cache.Delete(ctx, agentURL)
}

func (s *Service) discover(ctx context.Context, agentURL string, proto types.Protocol) *Profile {
	if proto == "" {
		proto = types.ProtocolMCP
	}
	log := s.logger.With(zap.String("agent_url", agentURL), zap.String("protocol", string(proto)))

	client, err := s.dialer.Dial(ctx, agentURL, proto)
	if err != nil {
		log.Warn("capability discovery failed to connect", zap.Error(err))
		return errorProfile(agentURL, proto, err, s.now())
	}
	defer func() {
		if cerr := client.Close(); cerr != nil {
			log.Debug("close agent client", zap.Error(cerr))
		}
	}()

	info, err := client.GetAgentInfo(ctx)
	if err != nil {
		log.Warn("capability discovery failed to list tools", zap.Error(err))
		return errorProfile(agentURL, proto, err, s.now())
	}

	p := buildProfile(agentURL, proto, info.ToolNames(), s.now())
	if p.Creative != nil && info.HasTool(ToolListCreativeFormats) {
		formats, err := s.formats.ListFormats(ctx, agentURL, client)
		if err != nil {
			log.Warn("creative formats lookup failed", zap.Error(err))
		} else {
			p.Creative.FormatsSupported = formats
		}
	}

	log.Debug("capabilities discovered",
		zap.Int("tools", len(p.Tools)),
		zap.Any("kinds", p.Kinds()),
	)
	return p
}
