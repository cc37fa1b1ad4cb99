// Package metrics provides internal metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
)

// =============================================================================
// 📊 指标收集器
// =============================================================================

// Collector 指标收集器。所有 Record 方法对 nil 接收者安全，未配置指标时可直接传 nil。
type Collector struct {
	// HTTP 指标
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// 爬取指标
	crawlPassesTotal   *prometheus.CounterVec
	crawlPassDuration  prometheus.Histogram
	domainFetchesTotal *prometheus.CounterVec
	fetchDuration      prometheus.Histogram
	probesTotal        *prometheus.CounterVec
	probeDuration      prometheus.Histogram

	// 索引指标
	indexWritesTotal *prometheus.CounterVec
	indexCleanedRows prometheus.Counter

	// 缓存指标
	cacheHits   *prometheus.CounterVec
	cacheMisses *prometheus.CounterVec

	// 数据库指标
	dbConnectionsOpen *prometheus.GaugeVec
	dbConnectionsIdle *prometheus.GaugeVec

	logger *zap.Logger
}

// NewCollector 创建指标收集器并注册到默认 Registry
func NewCollector(namespace string, logger *zap.Logger) *Collector {
	return NewCollectorWith(prometheus.DefaultRegisterer, namespace, logger)
}

// NewCollectorWith 创建指标收集器并注册到 reg
func NewCollectorWith(reg prometheus.Registerer, namespace string, logger *zap.Logger) *Collector {
	if logger == nil {
		logger = zap.NewNop()
	}
	factory := promauto.With(reg)
	c := &Collector{
		logger: logger.With(zap.String("component", "metrics")),
	}

	// HTTP 指标
	c.httpRequestsTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	c.httpRequestDuration = factory.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 爬取指标
	c.crawlPassesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "crawl_passes_total",
			Help:      "Total number of crawl passes by outcome",
		},
		[]string{"status"}, // status: success, error, skipped
	)

	c.crawlPassDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crawl_pass_duration_seconds",
			Help:      "Crawl pass duration in seconds",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
	)

	c.domainFetchesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "adagents_fetches_total",
			Help:      "Total number of adagents.json fetches by result",
		},
		[]string{"result"}, // result: valid, invalid, error
	)

	c.fetchDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "adagents_fetch_duration_seconds",
			Help:      "adagents.json fetch duration in seconds",
			Buckets:   prometheus.DefBuckets,
		},
	)

	c.probesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "agent_probes_total",
			Help:      "Total number of agent type probes by result",
		},
		[]string{"result"}, // result: typed, unknown, timeout, error
	)

	c.probeDuration = factory.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "agent_probe_duration_seconds",
			Help:      "Agent probe duration in seconds",
			Buckets:   []float64{0.1, 0.5, 1, 2, 5, 10, 15},
		},
	)

	// 索引指标
	c.indexWritesTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_writes_total",
			Help:      "Total number of federated index record operations",
		},
		[]string{"operation", "status"},
	)

	c.indexCleanedRows = factory.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "index_cleaned_rows_total",
			Help:      "Total number of expired discovered rows removed",
		},
	)

	// 缓存指标
	c.cacheHits = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_hits_total",
			Help:      "Total number of cache hits",
		},
		[]string{"cache_type"},
	)

	c.cacheMisses = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cache_misses_total",
			Help:      "Total number of cache misses",
		},
		[]string{"cache_type"},
	)

	// 数据库指标
	c.dbConnectionsOpen = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_open",
			Help:      "Number of open database connections",
		},
		[]string{"database"},
	)

	c.dbConnectionsIdle = factory.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "db_connections_idle",
			Help:      "Number of idle database connections",
		},
		[]string{"database"},
	)

	c.logger.Info("metrics collector initialized", zap.String("namespace", namespace))

	return c
}

// =============================================================================
// 🎯 HTTP 指标记录
// =============================================================================

// RecordHTTPRequest 记录 HTTP 请求
func (c *Collector) RecordHTTPRequest(method, path string, status int, duration time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(method, path, statusCode(status)).Inc()
	c.httpRequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// =============================================================================
// 🕷️ 爬取指标记录
// =============================================================================

// RecordCrawlPass 记录一次爬取
func (c *Collector) RecordCrawlPass(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.crawlPassesTotal.WithLabelValues(status).Inc()
	if status != "skipped" {
		c.crawlPassDuration.Observe(duration.Seconds())
	}
}

// RecordFetch 记录一次 adagents.json 抓取
func (c *Collector) RecordFetch(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.domainFetchesTotal.WithLabelValues(result).Inc()
	c.fetchDuration.Observe(duration.Seconds())
}

// RecordProbe 记录一次代理类型探测
func (c *Collector) RecordProbe(result string, duration time.Duration) {
	if c == nil {
		return
	}
	c.probesTotal.WithLabelValues(result).Inc()
	c.probeDuration.Observe(duration.Seconds())
}

// =============================================================================
// 🗂️ 索引指标记录
// =============================================================================

// RecordIndexWrite 记录索引写操作
func (c *Collector) RecordIndexWrite(operation string, err error) {
	if c == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "error"
	}
	c.indexWritesTotal.WithLabelValues(operation, status).Inc()
}

// RecordCleanup 记录 TTL 清理删除的行数
func (c *Collector) RecordCleanup(rows int64) {
	if c == nil {
		return
	}
	c.indexCleanedRows.Add(float64(rows))
}

// =============================================================================
// 💾 缓存指标记录
// =============================================================================

// RecordCacheHit 记录缓存命中
func (c *Collector) RecordCacheHit(cacheType string) {
	if c == nil {
		return
	}
	c.cacheHits.WithLabelValues(cacheType).Inc()
}

// RecordCacheMiss 记录缓存未命中
func (c *Collector) RecordCacheMiss(cacheType string) {
	if c == nil {
		return
	}
	c.cacheMisses.WithLabelValues(cacheType).Inc()
}

// =============================================================================
// 🗄️ 数据库指标记录
// =============================================================================

// RecordDBConnections 记录数据库连接数
func (c *Collector) RecordDBConnections(database string, open, idle int) {
	if c == nil {
		return
	}
	c.dbConnectionsOpen.WithLabelValues(database).Set(float64(open))
	c.dbConnectionsIdle.WithLabelValues(database).Set(float64(idle))
}

// =============================================================================
// 🔧 辅助函数
// =============================================================================

// statusCode 将 HTTP 状态码转换为字符串
func statusCode(code int) string {
	switch {
	case code >= 200 && code < 300:
		return "2xx"
	case code >= 300 && code < 400:
		return "3xx"
	case code >= 400 && code < 500:
		return "4xx"
	case code >= 500:
		return "5xx"
	default:
		return "unknown"
	}
}
