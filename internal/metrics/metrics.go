// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// サービス層とミドルウェアから利用する。
type MetricsCollector interface {
	// RecordRemoteFailure はリモートバックエンド呼び出しの失敗を記録する。
	RecordRemoteFailure(operation string)
	// RecordFallbackWrite はリモート失敗時のローカル書き込みを記録する。
	RecordFallbackWrite(operation string)
	// RecordLogin はログイン試行を認証経路と結果ごとに記録する。
	RecordLogin(path, result string)
	// RecordUpload は画像アップロードを保存先ごとに記録する。
	RecordUpload(destination string)
	RecordHTTPStatus(statusCode int)
	RecordRequestLatency(duration time.Duration)
	RecordSessionsCleaned(count int64)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	remoteFailures  *prometheus.CounterVec
	fallbackWrites  *prometheus.CounterVec
	logins          *prometheus.CounterVec
	uploads         *prometheus.CounterVec
	httpStatus      *prometheus.CounterVec
	requestLatency  prometheus.Histogram
	sessionsCleaned prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		remoteFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcms_remote_failures_total",
			Help: "リモートバックエンド呼び出し失敗の合計数",
		}, []string{"operation"}),
		fallbackWrites: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcms_fallback_writes_total",
			Help: "ローカルストアへのフォールバック書き込みの合計数",
		}, []string{"operation"}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcms_login_attempts_total",
			Help: "認証経路・結果別のログイン試行数",
		}, []string{"path", "result"}),
		uploads: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcms_uploads_total",
			Help: "保存先別の画像アップロード数",
		}, []string{"destination"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lexcms_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		requestLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "lexcms_request_latency_seconds",
			Help:    "HTTPリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		sessionsCleaned: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lexcms_sessions_cleaned_total",
			Help: "削除された期限切れセッションの合計数",
		}),
	}

	reg.MustRegister(
		c.remoteFailures,
		c.fallbackWrites,
		c.logins,
		c.uploads,
		c.httpStatus,
		c.requestLatency,
		c.sessionsCleaned,
	)

	return c
}

func (c *Collector) RecordRemoteFailure(operation string) {
	c.remoteFailures.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordFallbackWrite(operation string) {
	c.fallbackWrites.WithLabelValues(operation).Inc()
}

func (c *Collector) RecordLogin(path, result string) {
	c.logins.WithLabelValues(path, result).Inc()
}

func (c *Collector) RecordUpload(destination string) {
	c.uploads.WithLabelValues(destination).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordRequestLatency はリクエストのレイテンシを記録する。
func (c *Collector) RecordRequestLatency(duration time.Duration) {
	c.requestLatency.Observe(duration.Seconds())
}

// RecordSessionsCleaned は削除した期限切れセッション数を記録する。
func (c *Collector) RecordSessionsCleaned(count int64) {
	c.sessionsCleaned.Add(float64(count))
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使う。
type Nop struct{}

func (Nop) RecordRemoteFailure(string)         {}
func (Nop) RecordFallbackWrite(string)         {}
func (Nop) RecordLogin(string, string)         {}
func (Nop) RecordUpload(string)                {}
func (Nop) RecordHTTPStatus(int)               {}
func (Nop) RecordRequestLatency(time.Duration) {}
func (Nop) RecordSessionsCleaned(int64)        {}

var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
