package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// findMetricFamily はレジストリから指定名のメトリクスファミリーを取り出す。
func findMetricFamily(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("%s metric not found", name)
	return nil
}

// labelValue はメトリクスから指定ラベルの値を返す。
func labelValue(m *dto.Metric, name string) string {
	for _, lp := range m.GetLabel() {
		if lp.GetName() == name {
			return lp.GetValue()
		}
	}
	return ""
}

// TestNewCollector_ReturnsNonNil はCollectorが正常に生成されることを検証する。
func TestNewCollector_ReturnsNonNil(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	if c == nil {
		t.Fatal("expected non-nil Collector")
	}
}

// TestRecordHTTPStatus_IncrementsCounterWithLabel はHTTPステータスカウンタがラベル付きで増加することを検証する。
func TestRecordHTTPStatus_IncrementsCounterWithLabel(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(200)
	c.RecordHTTPStatus(408)

	mf := findMetricFamily(t, reg, "rcbuilder_http_status_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		label := labelValue(m, "status_code")
		val := m.GetCounter().GetValue()
		switch label {
		case "200":
			if val != 2 {
				t.Errorf("http_status_total{status_code=200} = %v, want 2", val)
			}
		case "408":
			if val != 1 {
				t.Errorf("http_status_total{status_code=408} = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected label value: %s", label)
		}
	}
}

// TestRecordUpstreamLatency_ObservesHistogram はAI APIレイテンシのヒストグラムに値が記録されることを検証する。
func TestRecordUpstreamLatency_ObservesHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamLatency("generate", 100*time.Millisecond)
	c.RecordUpstreamLatency("generate", 2*time.Second)

	mf := findMetricFamily(t, reg, "rcbuilder_upstream_latency_seconds")
	m := mf.GetMetric()[0]
	if got := labelValue(m, "operation"); got != "generate" {
		t.Errorf("operation label = %q, want generate", got)
	}
	h := m.GetHistogram()
	if h.GetSampleCount() != 2 {
		t.Errorf("sample_count = %d, want 2", h.GetSampleCount())
	}
	// 合計は0.1 + 2.0 = 2.1秒
	if h.GetSampleSum() < 2.0 || h.GetSampleSum() > 2.2 {
		t.Errorf("sample_sum = %v, want ~2.1", h.GetSampleSum())
	}
}

// TestRecordUpstreamFailure_CountsByKind は失敗が種類別に数えられることを検証する。
func TestRecordUpstreamFailure_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordUpstreamFailure("chat", "timeout")
	c.RecordUpstreamFailure("chat", "timeout")
	c.RecordUpstreamFailure("generate", "empty")

	mf := findMetricFamily(t, reg, "rcbuilder_upstream_fail_total")
	if len(mf.GetMetric()) != 2 {
		t.Fatalf("expected 2 label combinations, got %d", len(mf.GetMetric()))
	}
	for _, m := range mf.GetMetric() {
		op, kind := labelValue(m, "operation"), labelValue(m, "kind")
		val := m.GetCounter().GetValue()
		switch {
		case op == "chat" && kind == "timeout":
			if val != 2 {
				t.Errorf("chat/timeout = %v, want 2", val)
			}
		case op == "generate" && kind == "empty":
			if val != 1 {
				t.Errorf("generate/empty = %v, want 1", val)
			}
		default:
			t.Errorf("unexpected labels: %s/%s", op, kind)
		}
	}
}

// TestRecordSessionSaved_CountsSessionsAndFiles はセッション数とファイル数が記録されることを検証する。
func TestRecordSessionSaved_CountsSessionsAndFiles(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordSessionSaved(3)
	c.RecordSessionSaved(1)

	if val := findMetricFamily(t, reg, "rcbuilder_sessions_saved_total").GetMetric()[0].GetCounter().GetValue(); val != 2 {
		t.Errorf("sessions_saved_total = %v, want 2", val)
	}
	if val := findMetricFamily(t, reg, "rcbuilder_session_files_written_total").GetMetric()[0].GetCounter().GetValue(); val != 4 {
		t.Errorf("session_files_written_total = %v, want 4", val)
	}
}

// TestRecordArchiveExported_IncrementsCounter はzipダウンロードカウンタが増加することを検証する。
func TestRecordArchiveExported_CountsArchivesAndFiles(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordArchiveExported(5)
	c.RecordArchiveExported(0)
	c.RecordArchiveExported(3)

	if val := findMetricFamily(t, reg, "rcbuilder_archives_exported_total").GetMetric()[0].GetCounter().GetValue(); val != 3 {
		t.Errorf("archives_exported_total = %v, want 3", val)
	}
	if val := findMetricFamily(t, reg, "rcbuilder_archive_files_exported_total").GetMetric()[0].GetCounter().GetValue(); val != 8 {
		t.Errorf("archive_files_exported_total = %v, want 8", val)
	}
}

// TestRecordLogin_CountsByResult はログイン結果が別々に数えられることを検証する。
func TestRecordLogin_CountsByResult(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordLogin(true)
	c.RecordLogin(false)
	c.RecordLogin(false)

	mf := findMetricFamily(t, reg, "rcbuilder_login_total")
	for _, m := range mf.GetMetric() {
		val := m.GetCounter().GetValue()
		switch labelValue(m, "result") {
		case "success":
			if val != 1 {
				t.Errorf("login_total{result=success} = %v, want 1", val)
			}
		case "failure":
			if val != 2 {
				t.Errorf("login_total{result=failure} = %v, want 2", val)
			}
		}
	}
}

// TestMetricsHandler_ReturnsPrometheusFormat は/metricsエンドポイントがPrometheus形式で返すことを検証する。
func TestMetricsHandler_ReturnsPrometheusFormat(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordHTTPStatus(200)
	c.RecordUpstreamLatency("chat", 500*time.Millisecond)
	c.RecordUpstreamFailure("chat", "error")
	c.RecordSessionSaved(2)
	c.RecordArchiveExported(2)

	handler := Handler(reg)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	body, _ := io.ReadAll(resp.Body)
	bodyStr := string(body)

	expectedMetrics := []string{
		"rcbuilder_http_status_total",
		"rcbuilder_upstream_latency_seconds",
		"rcbuilder_upstream_fail_total",
		"rcbuilder_sessions_saved_total",
		"rcbuilder_archives_exported_total",
	}

	for _, metric := range expectedMetrics {
		if !strings.Contains(bodyStr, metric) {
			t.Errorf("response body does not contain %q", metric)
		}
	}
}

// TestCollector_ImplementsMetricsCollectorInterface はCollectorがMetricsCollectorインターフェースを実装することを検証する。
func TestCollector_ImplementsMetricsCollectorInterface(t *testing.T) {
	reg := prometheus.NewRegistry()
	var _ MetricsCollector = NewCollector(reg)
	var _ MetricsCollector = NopCollector{}
}

// TestMultipleCollectors_IndependentRegistries は異なるレジストリで独立に動作することを検証する。
func TestMultipleCollectors_IndependentRegistries(t *testing.T) {
	reg1 := prometheus.NewRegistry()
	reg2 := prometheus.NewRegistry()
	c1 := NewCollector(reg1)
	c2 := NewCollector(reg2)

	c1.RecordArchiveExported(1)
	c2.RecordArchiveExported(1)
	c2.RecordArchiveExported(1)

	val1 := findMetricFamily(t, reg1, "rcbuilder_archives_exported_total").GetMetric()[0].GetCounter().GetValue()
	val2 := findMetricFamily(t, reg2, "rcbuilder_archives_exported_total").GetMetric()[0].GetCounter().GetValue()

	if val1 != 1 {
		t.Errorf("reg1 archives_exported = %v, want 1", val1)
	}
	if val2 != 2 {
		t.Errorf("reg2 archives_exported = %v, want 2", val2)
	}
}
