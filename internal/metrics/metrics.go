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
// ミドルウェアやサービス層から利用する。
type MetricsCollector interface {
	RecordHTTPStatus(statusCode int)
	RecordUpstreamLatency(operation string, duration time.Duration)
	RecordUpstreamFailure(operation string, kind string)
	RecordSessionSaved(files int)
	RecordArchiveExported(files int)
	RecordLogin(success bool)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	httpStatus       *prometheus.CounterVec
	upstreamLatency  *prometheus.HistogramVec
	upstreamFail     *prometheus.CounterVec
	sessionsSaved    prometheus.Counter
	sessionFiles     prometheus.Counter
	archivesExported prometheus.Counter
	archiveFiles     prometheus.Counter
	logins           *prometheus.CounterVec
}

// upstreamBuckets はAI API呼び出しのレイテンシ区分（秒）。
// 生成系の応答は数分かかることがあるため上限を長めに取る。
var upstreamBuckets = []float64{0.5, 1, 2.5, 5, 10, 30, 60, 120, 300, 500}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcbuilder_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		upstreamLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "rcbuilder_upstream_latency_seconds",
			Help:    "AI API呼び出しのレイテンシ（秒）",
			Buckets: upstreamBuckets,
		}, []string{"operation"}),
		upstreamFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcbuilder_upstream_fail_total",
			Help: "AI API呼び出し失敗の種類別合計数",
		}, []string{"operation", "kind"}),
		sessionsSaved: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcbuilder_sessions_saved_total",
			Help: "保存されたセッションの合計数",
		}),
		sessionFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcbuilder_session_files_written_total",
			Help: "セッションに書き込まれたファイルの合計数",
		}),
		archivesExported: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcbuilder_archives_exported_total",
			Help: "ダウンロードされたzipアーカイブの合計数",
		}),
		archiveFiles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "rcbuilder_archive_files_exported_total",
			Help: "zipアーカイブに格納されたファイルの合計数",
		}),
		logins: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "rcbuilder_login_total",
			Help: "ログイン試行の結果別合計数",
		}, []string{"result"}),
	}

	reg.MustRegister(
		c.httpStatus,
		c.upstreamLatency,
		c.upstreamFail,
		c.sessionsSaved,
		c.sessionFiles,
		c.archivesExported,
		c.archiveFiles,
		c.logins,
	)

	return c
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordUpstreamLatency はAI API呼び出しのレイテンシを記録する。
func (c *Collector) RecordUpstreamLatency(operation string, duration time.Duration) {
	c.upstreamLatency.WithLabelValues(operation).Observe(duration.Seconds())
}

// RecordUpstreamFailure はAI API呼び出しの失敗を記録する。
// kindは timeout、empty、error のいずれか。
func (c *Collector) RecordUpstreamFailure(operation string, kind string) {
	c.upstreamFail.WithLabelValues(operation, kind).Inc()
}

// RecordSessionSaved はセッション保存と書き込んだファイル数を記録する。
func (c *Collector) RecordSessionSaved(files int) {
	c.sessionsSaved.Inc()
	c.sessionFiles.Add(float64(files))
}

// RecordArchiveExported はzipダウンロードと格納したファイル数を記録する。
func (c *Collector) RecordArchiveExported(files int) {
	c.archivesExported.Inc()
	c.archiveFiles.Add(float64(files))
}

// RecordLogin はログイン試行の結果を記録する。
func (c *Collector) RecordLogin(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.logins.WithLabelValues(result).Inc()
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordUpstreamLatency(string, time.Duration) {}
func (NopCollector) RecordUpstreamFailure(string, string) {}
func (NopCollector) RecordSessionSaved(int) {}
func (NopCollector) RecordArchiveExported(int) {}
func (NopCollector) RecordLogin(bool) {}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// Prometheusスクレイプに対応する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}
