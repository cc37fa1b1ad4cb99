package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

// =============================================================================
// 🕷️ crawl 命令
// =============================================================================

// crawlOutput 单次爬取的输出
type crawlOutput struct {
	Result any `json:"result"`
	Stats  any `json:"stats"`
}

func runCrawl(args []string) error {
	fs := flag.NewFlagSet("crawl", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	cleanup := fs.Bool("cleanup", false, "Remove expired discovered rows after the pass")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}

	logger := initLogger(cfg.Log)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	res, err := a.crawler.CrawlRegistered(ctx)
	if err != nil {
		return err
	}

	if *cleanup {
		removed, err := a.index.CleanupExpired(ctx)
		if err != nil {
			return err
		}
		logger.Info("expired discovered rows removed", zap.Any("result", removed))
	}

	stats, err := a.index.GetStats(ctx)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(crawlOutput{Result: res, Stats: stats})
}
