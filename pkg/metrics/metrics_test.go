package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_Middleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	m := New()

	r := gin.New()
	r.Use(m.Middleware())
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	r.GET("/metrics", m.Handler())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}

	m.Logins.WithLabelValues("success").Inc()
	if got := testutil.ToFloat64(m.Logins.WithLabelValues("success")); got != 1 {
		t.Errorf("logins = %v, want 1", got)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	body := w.Body.String()
	if !strings.Contains(body, `portal_http_request_duration_seconds_count{method="GET",route="/ping",status="200"} 1`) {
		t.Errorf("missing request histogram in output:\n%s", body)
	}
	if !strings.Contains(body, `portal_logins_total{result="success"} 1`) {
		t.Error("missing login counter in output")
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	// 重复创建不应 panic（重复注册）
	a := New()
	b := New()
	a.UploadBytes.Add(10)
	if testutil.ToFloat64(b.UploadBytes) != 0 {
		t.Error("registries should be independent")
	}
}
