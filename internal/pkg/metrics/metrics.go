package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// OTPIssuedTotal 按用途统计签发的验证码数。
	OTPIssuedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stuwork_otp_issued_total",
		Help: "Number of one-time codes issued, by purpose.",
	}, []string{"purpose"})

	// OTPVerifyFailedTotal 验证码校验失败次数。
	OTPVerifyFailedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stuwork_otp_verify_failed_total",
		Help: "Number of rejected OTP verification attempts.",
	})

	// ApplicationsSubmittedTotal 投递成功次数。
	ApplicationsSubmittedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stuwork_applications_submitted_total",
		Help: "Number of job applications submitted.",
	})

	// RealtimeEventsTotal 按事件类型与结果（pushed / dropped）统计实时推送。
	RealtimeEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "stuwork_realtime_events_total",
		Help: "Realtime events by type and outcome.",
	}, []string{"event", "outcome"})

	// RealtimeConnections 当前在线的 WebSocket 连接数。
	RealtimeConnections = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "stuwork_realtime_connections",
		Help: "Currently open websocket connections.",
	})

	// RateLimitWaitDuration 发码限流等待时间分布。
	RateLimitWaitDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "stuwork_ratelimit_wait_seconds",
		Help:    "Time spent acquiring a rate limit token.",
		Buckets: prometheus.DefBuckets,
	})

	// RateLimitRejectedTotal 被限流拒绝的发码请求数。
	RateLimitRejectedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "stuwork_ratelimit_rejected_total",
		Help: "OTP send requests rejected by the rate limiter.",
	})

	registerOnce sync.Once
)

// InitMetrics 向默认 Registry 注册所有指标，可重复调用。
func InitMetrics() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			OTPIssuedTotal,
			OTPVerifyFailedTotal,
			ApplicationsSubmittedTotal,
			RealtimeEventsTotal,
			RealtimeConnections,
			RateLimitWaitDuration,
			RateLimitRejectedTotal,
		)
	})
}
