package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 门户业务指标
type Metrics struct {
	registry *prometheus.Registry

	Logins        *prometheus.CounterVec
	Submissions   *prometheus.CounterVec
	UploadBytes   prometheus.Counter
	Downloads     *prometheus.CounterVec
	AssistantCall *prometheus.CounterVec
	HTTPDuration  *prometheus.HistogramVec
}

// New 创建并注册指标
// 每个实例使用独立 Registry，测试中可重复创建
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		Logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "logins_total",
			Help:      "Login attempts by result.",
		}, []string{"result"}),
		Submissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "submissions_total",
			Help:      "Accepted submissions by category.",
		}, []string{"category"}),
		UploadBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "upload_bytes_total",
			Help:      "Bytes written to the blob store.",
		}),
		Downloads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "downloads_total",
			Help:      "File download requests by result.",
		}, []string{"result"}),
		AssistantCall: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "portal",
			Name:      "assistant_requests_total",
			Help:      "Assistant proxy calls by status.",
		}, []string{"status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "portal",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
	}

	reg.MustRegister(
		m.Logins, m.Submissions, m.UploadBytes, m.Downloads, m.AssistantCall, m.HTTPDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry 底层注册表
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler /metrics 处理器
func (m *Metrics) Handler() gin.HandlerFunc {
	h := promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
	return gin.WrapH(h)
}

// Middleware 记录请求耗时
// 使用路由模板而不是原始路径，避免文件路径撑爆标签基数
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
