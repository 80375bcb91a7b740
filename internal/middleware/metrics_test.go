package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"

	"github.com/itz4blitz/glimmr-api-sub005/internal/telemetry"
)

func requestCount(t *testing.T, method, path, status string) float64 {
	t.Helper()
	counter, err := telemetry.HTTPRequestsTotal.GetMetricWithLabelValues(method, path, status)
	if err != nil {
		t.Fatalf("GetMetricWithLabelValues: %v", err)
	}
	m := &dto.Metric{}
	if err := counter.Write(m); err != nil {
		t.Fatalf("Write: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsMiddleware_LabelsUseRouteTemplate(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/v1/hospitals/:id", func(c *gin.Context) { c.Status(http.StatusOK) })

	before := requestCount(t, "GET", "/api/v1/hospitals/:id", "200")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/hospitals/123", nil))

	after := requestCount(t, "GET", "/api/v1/hospitals/:id", "200")
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}

func TestMetricsMiddleware_UnmatchedRouteLabel(t *testing.T) {
	r := gin.New()
	r.Use(MetricsMiddleware())

	before := requestCount(t, "GET", "<no-route>", "404")

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/nope/123", nil))

	after := requestCount(t, "GET", "<no-route>", "404")
	if after != before+1 {
		t.Errorf("counter = %v, want %v", after, before+1)
	}
}
