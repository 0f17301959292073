// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// セッションイベント名。
const (
	SessionEventLogin       = "login"
	SessionEventSignup      = "signup"
	SessionEventRestored    = "restored"
	SessionEventLogout      = "logout"
	SessionEventExpired     = "expired"
	SessionEventRejected    = "rejected"
	SessionEventCachesReset = "caches_reset" // セッション終了に伴うキャッシュ破棄
)

// MetricsCollector はメトリクス収集のインターフェース。
// リモートクライアント、セッションマネージャー、キャッシュから利用する。
type MetricsCollector interface {
	RecordRemoteRequest(op string, statusCode int)
	RecordRemoteLatency(op string, duration time.Duration)
	RecordSessionEvent(event string)
	RecordCacheSize(collection string, size int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteRequests *prometheus.CounterVec
	remoteLatency  *prometheus.HistogramVec
	sessionEvents  *prometheus.CounterVec
	cacheItems     *prometheus.GaugeVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staybook_remote_requests_total",
			Help: "リモートAPI呼び出し数（操作・ステータスコード別）",
		}, []string{"op", "status"}),
		remoteLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "staybook_remote_latency_seconds",
			Help:    "リモートAPI呼び出しのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"op"}),
		sessionEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "staybook_session_events_total",
			Help: "セッション状態遷移イベント数",
		}, []string{"event"}),
		cacheItems: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "staybook_cache_items",
			Help: "コレクションごとのキャッシュ件数",
		}, []string{"collection"}),
	}

	reg.MustRegister(
		c.remoteRequests,
		c.remoteLatency,
		c.sessionEvents,
		c.cacheItems,
	)

	return c
}

// RecordRemoteRequest はリモートAPI呼び出しを記録する。
// statusCodeが0の場合は通信エラーとして "error" ラベルで記録する。
func (c *Collector) RecordRemoteRequest(op string, statusCode int) {
	status := "error"
	if statusCode != 0 {
		status = strconv.Itoa(statusCode)
	}
	c.remoteRequests.WithLabelValues(op, status).Inc()
}

// RecordRemoteLatency はリモートAPI呼び出しのレイテンシを記録する。
func (c *Collector) RecordRemoteLatency(op string, duration time.Duration) {
	c.remoteLatency.WithLabelValues(op).Observe(duration.Seconds())
}

// RecordSessionEvent はセッションイベントを記録する。
func (c *Collector) RecordSessionEvent(event string) {
	c.sessionEvents.WithLabelValues(event).Inc()
}

// RecordCacheSize はコレクションのキャッシュ件数を記録する。
func (c *Collector) RecordCacheSize(collection string, size int) {
	c.cacheItems.WithLabelValues(collection).Set(float64(size))
}

// Nop は何も記録しないMetricsCollector。テストや未設定時に使用する。
type Nop struct{}

func (Nop) RecordRemoteRequest(string, int)           {}
func (Nop) RecordRemoteLatency(string, time.Duration) {}
func (Nop) RecordSessionEvent(string)                 {}
func (Nop) RecordCacheSize(string, int)               {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
