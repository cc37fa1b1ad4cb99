package crawler

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// CrawlRegistered runs one pass over the directory's registered agents.
func (s *Service) CrawlRegistered(ctx context.Context) (*Result, error) {
	agents, err := s.directory.RegisteredAgents(ctx)
	if err != nil {
		return nil, err
	}
	return s.CrawlAllAgents(ctx, agents)
}

// Run crawls immediately and then every Config.Interval, and cleans up
// expired discovered rows every Config.CleanupInterval, until ctx is done.
// Pass errors are logged and do not stop the loop.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("crawler loop started",
		zap.Duration("interval", s.config.Interval),
		zap.Duration("cleanup_interval", s.config.CleanupInterval))

	crawl := func() {
		if _, err := s.CrawlRegistered(ctx); err != nil && ctx.Err() == nil {
			s.logger.Error("scheduled crawl failed", zap.Error(err))
		}
	}
	crawl()

	crawlC, stopCrawl := tickerC(s.config.Interval)
	defer stopCrawl()
	cleanupC, stopCleanup := tickerC(s.config.CleanupInterval)
	defer stopCleanup()
	for {
		select {
		case <-ctx.Done():
			s.logger.Info("crawler loop stopped")
			return nil
		case <-crawlC:
			crawl()
		case <-cleanupC:
			if _, err := s.index.CleanupExpired(ctx); err != nil && ctx.Err() == nil {
				s.logger.Error("scheduled cleanup failed", zap.Error(err))
			}
		}
	}
}

// tickerC returns a ticker channel and its stop func. For d <= 0 the
// channel is nil and never fires.
func tickerC(d time.Duration) (<-chan time.Time, func()) {
	if d <= 0 {
		return nil, func() {}
	}
	t := time.NewTicker(d)
	return t.C, t.Stop
}
