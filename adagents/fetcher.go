package adagents

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/BaSui01/adregistry/internal/retry"
	"github.com/BaSui01/adregistry/internal/tlsutil"
	"github.com/BaSui01/adregistry/types"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Fetcher fetches and validates a domain's adagents.json.
//
// A nil error with Result.Valid false means the manifest was retrieved but
// did not validate. Unreachable hosts, non-2xx responses and malformed
// JSON return a TRANSIENT_FETCH_FAILURE error.
type Fetcher interface {
	Fetch(ctx context.Context, domain string) (*Result, error)
}

// Config configures HTTPFetcher.
type Config struct {
	Timeout           time.Duration `json:"timeout" yaml:"timeout"`
	RequestsPerSecond float64       `json:"requests_per_second" yaml:"requests_per_second"`
	Burst             int           `json:"burst" yaml:"burst"`
	MaxRetries        int           `json:"max_retries" yaml:"max_retries"`
	UserAgent         string        `json:"user_agent" yaml:"user_agent"`
	MaxBodyBytes      int64         `json:"max_body_bytes" yaml:"max_body_bytes"`
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		Timeout:           10 * time.Second,
		RequestsPerSecond: 10,
		Burst:             10,
		MaxRetries:        2,
		UserAgent:         "adregistry-crawler/1.0",
		MaxBodyBytes:      1 << 20,
	}
}

// HTTPFetcher is the production Fetcher.
type HTTPFetcher struct {
	config  Config
	client  *http.Client
	limiter *rate.Limiter
	retryer *retry.Retryer
	urlFor  func(domain string) string
	metrics *metrics.Collector
	logger  *zap.Logger
}

// Option customizes an HTTPFetcher.
type Option func(*HTTPFetcher)

// WithHTTPClient replaces the hardened default client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *HTTPFetcher) { f.client = c }
}

// WithURLBuilder overrides how a domain maps to its manifest URL.
func WithURLBuilder(fn func(domain string) string) Option {
	return func(f *HTTPFetcher) { f.urlFor = fn }
}

// WithRetryPolicy overrides the backoff policy. MaxRetries from Config
// still applies.
func WithRetryPolicy(p retry.Policy) Option {
	return func(f *HTTPFetcher) {
		p.MaxRetries = f.config.MaxRetries
		f.retryer = retry.NewRetryer(p, f.logger)
	}
}

// WithMetrics records fetch outcomes on the collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(f *HTTPFetcher) { f.metrics = c }
}

// ManifestURL is the well-known location for domain.
func ManifestURL(domain string) string {
	return "https://" + domain + WellKnownPath
}

// NewHTTPFetcher creates a rate limited, retrying fetcher.
func NewHTTPFetcher(config Config, logger *zap.Logger, opts ...Option) *HTTPFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	def := DefaultConfig()
	if config.Timeout <= 0 {
		config.Timeout = def.Timeout
	}
	if config.RequestsPerSecond <= 0 {
		config.RequestsPerSecond = def.RequestsPerSecond
	}
	if config.Burst <= 0 {
		config.Burst = def.Burst
	}
	if config.MaxRetries < 0 {
		config.MaxRetries = 0
	}
	if config.MaxBodyBytes <= 0 {
		config.MaxBodyBytes = def.MaxBodyBytes
	}
	if config.UserAgent == "" {
		config.UserAgent = def.UserAgent
	}

	f := &HTTPFetcher{
		config:  config,
		limiter: rate.NewLimiter(rate.Limit(config.RequestsPerSecond), config.Burst),
		urlFor:  ManifestURL,
		logger:  logger.With(zap.String("component", "adagents_fetcher")),
	}
	policy := retry.DefaultPolicy()
	policy.MaxRetries = config.MaxRetries
	f.retryer = retry.NewRetryer(policy, f.logger)

	for _, opt := range opts {
		opt(f)
	}
	if f.client == nil {
		f.client = tlsutil.SecureHTTPClientWith(tlsutil.ClientOptions{
			Timeout:   config.Timeout,
			UserAgent: config.UserAgent,
		})
	}
	return f
}

// Fetch retrieves https://{domain}/.well-known/adagents.json. A manifest
// that only points at an authoritative_location is followed one hop.
func (f *HTTPFetcher) Fetch(ctx context.Context, domain string) (*Result, error) {
	domain = types.NormalizeDomain(domain)
	if domain == "" {
		return nil, types.NewError(types.ErrInvalidRecord, "domain is required")
	}
	start := time.Now()
	log := f.logger.With(zap.String("domain", domain))

	source := f.urlFor(domain)
	manifest, err := f.fetchManifest(ctx, source)
	if err == nil && manifest.AuthoritativeLocation != "" && len(manifest.AuthorizedAgents) == 0 {
		next := manifest.AuthoritativeLocation
		if verr := validateAgentURL(next); verr != nil {
			err = fmt.Errorf("authoritative_location: %w", verr)
		} else {
			log.Debug("following authoritative_location", zap.String("location", next))
			source = next
			manifest, err = f.fetchManifest(ctx, next)
		}
	}
	if err != nil {
		f.metrics.RecordFetch("error", time.Since(start))
		log.Debug("adagents.json fetch failed", zap.Error(err))
		return nil, types.NewError(types.ErrTransientFetchFailure, "fetch adagents.json for "+domain).
			WithCause(err).
			WithRetryable(true)
	}

	res := Validate(domain, manifest)
	res.SourceURL = source
	if res.Valid {
		f.metrics.RecordFetch("valid", time.Since(start))
	} else {
		f.metrics.RecordFetch("invalid", time.Since(start))
		log.Debug("adagents.json invalid", zap.Strings("errors", res.Errors))
	}
	return res, nil
}

var errBodyTooLarge = errors.New("response body exceeds limit")

// statusError is a non-2xx response.
type statusError struct {
	URL        string
	StatusCode int
}

func (e *statusError) Error() string {
	return fmt.Sprintf("GET %s: unexpected status %d", e.URL, e.StatusCode)
}

func (f *HTTPFetcher) fetchManifest(ctx context.Context, target string) (*Manifest, error) {
	if _, err := url.ParseRequestURI(target); err != nil {
		return nil, fmt.Errorf("invalid manifest url: %w", err)
	}
	var manifest *Manifest
	err := f.retryer.Do(ctx, func(ctx context.Context) error {
		if err := f.limiter.Wait(ctx); err != nil {
			return retry.Permanent(err)
		}
		m, err := f.get(ctx, target)
		if err != nil {
			return err
		}
		manifest = m
		return nil
	})
	if err != nil {
		return nil, err
	}
	return manifest, nil
}

func (f *HTTPFetcher) get(ctx context.Context, target string) (*Manifest, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, retry.Permanent(err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, retry.Permanent(err)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		serr := &statusError{URL: target, StatusCode: resp.StatusCode}
		// 仅 5xx 与 429 值得重试
		if resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests {
			return nil, serr
		}
		return nil, retry.Permanent(serr)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, f.config.MaxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if int64(len(body)) > f.config.MaxBodyBytes {
		return nil, retry.Permanent(errBodyTooLarge)
	}

	var m Manifest
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, retry.Permanent(fmt.Errorf("malformed adagents.json: %w", err))
	}
	return &m, nil
}
