package monitoring

import (
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics 监控指标
type Metrics struct {
	// HTTP 请求指标
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// 消息流转指标
	UpdatesTotal       *prometheus.CounterVec
	RelayedMessages    prometheus.Counter
	RelayFailures      *prometheus.CounterVec
	RelayDuration      prometheus.Histogram
	CardRenderFailures prometheus.Counter

	// 身份指标
	IdentitiesCreated  prometheus.Counter
	IdentitiesTotal    prometheus.Gauge
	UsernameCollisions prometheus.Counter
	UsernameResets     prometheus.Counter

	// 会话指标
	PendingSessions prometheus.Gauge

	// 系统指标
	SystemUptime prometheus.Gauge

	// 错误指标
	ErrorsTotal *prometheus.CounterVec
	PanicsTotal prometheus.Counter
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// Init 初始化并返回全局监控指标（重复调用返回同一实例）
func Init() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics()
	})
	return defaultMetrics
}

// newMetrics 创建监控指标
func newMetrics() *Metrics {
	return &Metrics{
		// HTTP 请求指标
		HTTPRequestsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askout_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "endpoint", "status_code"},
		),

		HTTPRequestDuration: promauto.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "askout_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "endpoint"},
		),

		// 消息流转指标
		UpdatesTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askout_updates_total",
				Help: "Total number of inbound bot updates",
			},
			[]string{"kind"},
		),

		RelayedMessages: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_relayed_messages_total",
				Help: "Total number of anonymous messages delivered",
			},
		),

		RelayFailures: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askout_relay_failures_total",
				Help: "Total number of failed relay attempts",
			},
			[]string{"reason"},
		),

		RelayDuration: promauto.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "askout_relay_duration_seconds",
				Help:    "Relay handling duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
		),

		CardRenderFailures: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_card_render_failures_total",
				Help: "Total number of failed message card renders",
			},
		),

		// 身份指标
		IdentitiesCreated: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_identities_created_total",
				Help: "Total number of identities registered",
			},
		),

		IdentitiesTotal: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "askout_identities_total",
				Help: "Number of registered identities",
			},
		),

		UsernameCollisions: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_username_collisions_total",
				Help: "Total number of generated username collisions",
			},
		),

		UsernameResets: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_username_resets_total",
				Help: "Total number of user-chosen username updates",
			},
		),

		// 会话指标
		PendingSessions: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "askout_pending_sessions",
				Help: "Number of conversations with a pending target",
			},
		),

		// 系统指标
		SystemUptime: promauto.NewGauge(
			prometheus.GaugeOpts{
				Name: "askout_system_uptime_seconds",
				Help: "System uptime in seconds",
			},
		),

		// 错误指标
		ErrorsTotal: promauto.NewCounterVec(
			prometheus.CounterOpts{
				Name: "askout_errors_total",
				Help: "Total number of errors",
			},
			[]string{"type", "component"},
		),

		PanicsTotal: promauto.NewCounter(
			prometheus.CounterOpts{
				Name: "askout_panics_total",
				Help: "Total number of panics",
			},
		),
	}
}

// RecordHTTPRequest 记录 HTTP 请求指标
func (m *Metrics) RecordHTTPRequest(method, endpoint, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, endpoint, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, endpoint).Observe(duration.Seconds())
}

// RecordUpdate 记录入站更新
func (m *Metrics) RecordUpdate(kind string) {
	m.UpdatesTotal.WithLabelValues(kind).Inc()
}

// RecordRelayed 记录一次成功投递
func (m *Metrics) RecordRelayed(duration time.Duration) {
	m.RelayedMessages.Inc()
	m.RelayDuration.Observe(duration.Seconds())
}

// RecordRelayFailure 记录一次投递失败
func (m *Metrics) RecordRelayFailure(reason string) {
	m.RelayFailures.WithLabelValues(reason).Inc()
}

// RecordError 记录错误
func (m *Metrics) RecordError(errorType, component string) {
	m.ErrorsTotal.WithLabelValues(errorType, component).Inc()
}

// RecordPanic 记录 panic
func (m *Metrics) RecordPanic() {
	m.PanicsTotal.Inc()
}

// UpdateIdentitiesTotal 更新身份总数
func (m *Metrics) UpdateIdentitiesTotal(count int64) {
	m.IdentitiesTotal.Set(float64(count))
}

// UpdatePendingSessions 更新待发送会话数
func (m *Metrics) UpdatePendingSessions(count int64) {
	m.PendingSessions.Set(float64(count))
}

// UpdateSystemUptime 更新系统运行时间
func (m *Metrics) UpdateSystemUptime(uptime time.Duration) {
	m.SystemUptime.Set(uptime.Seconds())
}

// HTTPHandler 返回 Prometheus HTTP 处理器
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.Handler()
}

// ========== 包级便捷函数（未初始化时为空操作，便于测试） ==========

// RecordUpdate 记录入站更新
func RecordUpdate(kind string) {
	if defaultMetrics != nil {
		defaultMetrics.RecordUpdate(kind)
	}
}

// RecordRelayed 记录一次成功投递
func RecordRelayed(duration time.Duration) {
	if defaultMetrics != nil {
		defaultMetrics.RecordRelayed(duration)
	}
}

// RecordRelayFailure 记录一次投递失败
func RecordRelayFailure(reason string) {
	if defaultMetrics != nil {
		defaultMetrics.RecordRelayFailure(reason)
	}
}

// RecordIdentityCreated 记录身份注册
func RecordIdentityCreated() {
	if defaultMetrics != nil {
		defaultMetrics.IdentitiesCreated.Inc()
	}
}

// RecordUsernameCollision 记录生成用户名冲突
func RecordUsernameCollision() {
	if defaultMetrics != nil {
		defaultMetrics.UsernameCollisions.Inc()
	}
}

// RecordUsernameReset 记录用户名更新
func RecordUsernameReset() {
	if defaultMetrics != nil {
		defaultMetrics.UsernameResets.Inc()
	}
}

// RecordCardRenderFailure 记录卡片渲染失败
func RecordCardRenderFailure() {
	if defaultMetrics != nil {
		defaultMetrics.CardRenderFailures.Inc()
	}
}
