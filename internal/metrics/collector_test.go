package metrics

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

var collectorNamespaceSeq uint64

func nextTestNamespace() string {
	seq := atomic.AddUint64(&collectorNamespaceSeq, 1)
	return fmt.Sprintf("test_%d", seq)
}

// =============================================================================
// 🧪 Collector 测试
// =============================================================================

func TestNewCollector(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	assert.NotNil(t, collector)
	assert.NotNil(t, collector.httpRequestsTotal)
	assert.NotNil(t, collector.crawlPassesTotal)
	assert.NotNil(t, collector.domainFetchesTotal)
	assert.NotNil(t, collector.probesTotal)
	assert.NotNil(t, collector.indexWritesTotal)
}

func TestCollector_NilReceiver(t *testing.T) {
	var collector *Collector
	assert.NotPanics(t, func() {
		collector.RecordHTTPRequest("GET", "/health", 200, time.Millisecond)
		collector.RecordCrawlPass("success", time.Second)
		collector.RecordFetch("valid", time.Millisecond)
		collector.RecordProbe("typed", time.Millisecond)
		collector.RecordIndexWrite("record_property", nil)
		collector.RecordCleanup(3)
		collector.RecordCacheHit("memory")
		collector.RecordCacheMiss("memory")
		collector.RecordDBConnections("postgres", 1, 1)
	})
}

func TestCollector_RecordCrawlPass(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCrawlPass("success", 2*time.Second)
	collector.RecordCrawlPass("success", 3*time.Second)
	collector.RecordCrawlPass("skipped", 0)

	assert.Equal(t, float64(2), testutil.ToFloat64(collector.crawlPassesTotal.WithLabelValues("success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.crawlPassesTotal.WithLabelValues("skipped")))
}

func TestCollector_RecordFetchAndProbe(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordFetch("valid", 100*time.Millisecond)
	collector.RecordFetch("error", 50*time.Millisecond)
	collector.RecordProbe("timeout", 10*time.Second)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.domainFetchesTotal.WithLabelValues("valid")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.domainFetchesTotal.WithLabelValues("error")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.probesTotal.WithLabelValues("timeout")))
}

func TestCollector_RecordIndexWrite(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordIndexWrite("record_property", nil)
	collector.RecordIndexWrite("record_property", errors.New("boom"))
	collector.RecordCleanup(4)

	assert.Equal(t, float64(1), testutil.ToFloat64(collector.indexWritesTotal.WithLabelValues("record_property", "success")))
	assert.Equal(t, float64(1), testutil.ToFloat64(collector.indexWritesTotal.WithLabelValues("record_property", "error")))
	assert.Equal(t, float64(4), testutil.ToFloat64(collector.indexCleanedRows))
}

func TestCollector_RecordCacheOperation(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordCacheHit("redis")
	collector.RecordCacheMiss("redis")

	hitCount := testutil.CollectAndCount(collector.cacheHits)
	assert.Greater(t, hitCount, 0)

	missCount := testutil.CollectAndCount(collector.cacheMisses)
	assert.Greater(t, missCount, 0)
}

func TestCollector_UpdateConnectionPool(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	collector.RecordDBConnections("postgres", 10, 5)

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.dbConnectionsOpen.WithLabelValues("postgres")))
	assert.Equal(t, float64(5), testutil.ToFloat64(collector.dbConnectionsIdle.WithLabelValues("postgres")))
}

func TestCollector_ConcurrentRecording(t *testing.T) {
	collector := NewCollector(nextTestNamespace(), zap.NewNop())

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			collector.RecordHTTPRequest("GET", "/health", 200, 100*time.Millisecond)
			collector.RecordProbe("typed", 500*time.Millisecond)
			collector.RecordCacheHit("memory")
		}()
	}
	wg.Wait()

	assert.Equal(t, float64(10), testutil.ToFloat64(collector.probesTotal.WithLabelValues("typed")))
	assert.Equal(t, float64(10), testutil.ToFloat64(collector.cacheHits.WithLabelValues("memory")))
}

func TestStatusCode(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "2xx"},
		{302, "3xx"},
		{404, "4xx"},
		{503, "5xx"},
		{0, "unknown"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusCode(tt.code))
	}
}

func TestNewCollectorWith_IsolatedRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	collector := NewCollectorWith(reg, "adregistry", nil)
	collector.RecordCrawlPass("completed", time.Second)

	// 同名命名空间在独立 Registry 上可重复创建
	other := NewCollectorWith(prometheus.NewRegistry(), "adregistry", nil)
	assert.NotNil(t, other)

	count, err := testutil.GatherAndCount(reg, "adregistry_crawl_passes_total")
	assert.NoError(t, err)
	assert.Equal(t, 1, count)
}
