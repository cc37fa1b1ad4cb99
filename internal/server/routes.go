package server

import (
	"net/http"
	"time"

	"github.com/BaSui01/adregistry/internal/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// Middleware HTTP 中间件
type Middleware func(http.Handler) http.Handler

// Chain 按顺序应用中间件，第一个为最外层
func Chain(h http.Handler, middlewares ...Middleware) http.Handler {
	for i := len(middlewares) - 1; i >= 0; i-- {
		h = middlewares[i](h)
	}
	return h
}

// Routes 服务端点的依赖
type Routes struct {
	Health *HealthHandler
	// Gatherer 为 nil 时使用 prometheus.DefaultGatherer
	Gatherer prometheus.Gatherer
	Metrics  *metrics.Collector
	Logger   *zap.Logger
}

// NewHandler 构建 /health、/healthz 与 /metrics 路由
func NewHandler(r Routes) http.Handler {
	if r.Logger == nil {
		r.Logger = zap.NewNop()
	}
	if r.Gatherer == nil {
		r.Gatherer = prometheus.DefaultGatherer
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", r.Health.HandleHealth)
	mux.HandleFunc("GET /healthz", r.Health.HandleHealthz)
	mux.Handle("GET /metrics", promhttp.HandlerFor(r.Gatherer, promhttp.HandlerOpts{}))

	return Chain(mux, Recovery(r.Logger), MetricsMiddleware(r.Metrics))
}

// Recovery 捕获 panic 并返回 500
func Recovery(logger *zap.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if err := recover(); err != nil {
					logger.Error("panic recovered", zap.Any("error", err), zap.String("path", r.URL.Path))
					http.Error(w, `{"error":"internal server error"}`, http.StatusInternalServerError)
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

type statusRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (w *statusRecorder) WriteHeader(code int) {
	w.statusCode = code
	w.ResponseWriter.WriteHeader(code)
}

// MetricsMiddleware 记录请求计数与耗时。路径标签限定在已知端点内。
func MetricsMiddleware(collector *metrics.Collector) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)
			collector.RecordHTTPRequest(r.Method, routeLabel(r.URL.Path), rec.statusCode, time.Since(start))
		})
	}
}

func routeLabel(path string) string {
	switch path {
	case "/health", "/healthz", "/metrics":
		return path
	default:
		return "other"
	}
}
