package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func okCheck(context.Context) error { return nil }

func serve(t *testing.T, h http.Handler, path string) (*httptest.ResponseRecorder, HealthStatus) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	var status HealthStatus
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.NewDecoder(w.Body).Decode(&status))
	}
	return w, status
}

func TestHealth_AllChecksPass(t *testing.T) {
	health := NewHealthHandler("1.2.3", zap.NewNop())
	health.RegisterCheck(NewCheck("database", okCheck))
	health.RegisterCheck(NewCheck("redis", okCheck))
	health.RegisterInfo("crawler", func() any { return map[string]any{"status": "completed"} })

	h := NewHandler(Routes{Health: health, Gatherer: prometheus.NewRegistry()})
	w, status := serve(t, h, "/health")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", status.Status)
	assert.Equal(t, "1.2.3", status.Version)
	assert.Equal(t, "pass", status.Checks["database"].Status)
	assert.Equal(t, "pass", status.Checks["redis"].Status)
	assert.Equal(t, map[string]any{"status": "completed"}, status.Details["crawler"])
}

func TestHealth_FailingCheck(t *testing.T) {
	health := NewHealthHandler("dev", nil)
	health.RegisterCheck(NewCheck("database", okCheck))
	health.RegisterCheck(NewCheck("redis", func(context.Context) error {
		return errors.New("connection refused")
	}))

	h := NewHandler(Routes{Health: health, Gatherer: prometheus.NewRegistry()})
	w, status := serve(t, h, "/health")

	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "unhealthy", status.Status)
	assert.Equal(t, "fail", status.Checks["redis"].Status)
	assert.Equal(t, "connection refused", status.Checks["redis"].Message)
	assert.Equal(t, "pass", status.Checks["database"].Status)

	// 存活探针不受依赖影响
	w, status = serve(t, h, "/healthz")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "healthy", status.Status)
}

func TestMetricsEndpoint(t *testing.T) {
	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "adregistry_test_total", Help: "test"})
	reg.MustRegister(counter)
	counter.Add(3)

	h := NewHandler(Routes{Health: NewHealthHandler("dev", nil), Gatherer: reg})
	w, _ := serve(t, h, "/metrics")

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "adregistry_test_total 3")
}

func TestHandler_UnknownRoute(t *testing.T) {
	h := NewHandler(Routes{Health: NewHealthHandler("dev", nil), Gatherer: prometheus.NewRegistry()})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/health", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
}

func TestRecovery(t *testing.T) {
	h := Chain(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}), Recovery(zap.NewNop()), MetricsMiddleware(nil))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestRouteLabel(t *testing.T) {
	assert.Equal(t, "/health", routeLabel("/health"))
	assert.Equal(t, "/metrics", routeLabel("/metrics"))
	assert.Equal(t, "other", routeLabel("/agents/123"))
}
