package observe

import (
	"context"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// newTestMetrics returns a Metrics instance backed by a ManualReader.
func newTestMetrics(t *testing.T) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	return m, reader
}

func collect(t *testing.T, reader *sdkmetric.ManualReader) metricdata.ResourceMetrics {
	t.Helper()
	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	return rm
}

func findMetric(rm metricdata.ResourceMetrics, name string) *metricdata.Metrics {
	for _, sm := range rm.ScopeMetrics {
		for i := range sm.Metrics {
			if sm.Metrics[i].Name == name {
				return &sm.Metrics[i]
			}
		}
	}
	return nil
}

func TestCountersRecord(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.FramesReceived.Add(ctx, 3, metric.WithAttributes(attribute.Bool("speech", true)))
	m.FramesReceived.Add(ctx, 2, metric.WithAttributes(attribute.Bool("speech", false)))
	m.ClipsFlushed.Add(ctx, 1, metric.WithAttributes(attribute.String("trigger", "silence")))

	rm := collect(t, reader)

	met := findMetric(rm, "voxgate.frames.received")
	if met == nil {
		t.Fatal("frames metric not found")
	}
	sum, ok := met.Data.(metricdata.Sum[int64])
	if !ok {
		t.Fatal("frames metric is not a sum")
	}
	var total int64
	for _, dp := range sum.DataPoints {
		total += dp.Value
	}
	if total != 5 {
		t.Errorf("frames total = %d, want 5", total)
	}

	if findMetric(rm, "voxgate.clips.flushed") == nil {
		t.Error("clips flushed metric not found")
	}
}

func TestActiveSessionsGauge(t *testing.T) {
	m, reader := newTestMetrics(t)
	ctx := context.Background()

	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, 1)
	m.ActiveSessions.Add(ctx, -1)

	met := findMetric(collect(t, reader), "voxgate.sessions.active")
	if met == nil {
		t.Fatal("metric not found")
	}
	sum := met.Data.(metricdata.Sum[int64])
	if len(sum.DataPoints) != 1 || sum.DataPoints[0].Value != 1 {
		t.Errorf("active sessions = %+v, want 1", sum.DataPoints)
	}
}

func TestClipDurationHistogram(t *testing.T) {
	m, reader := newTestMetrics(t)
	m.ClipDuration.Record(context.Background(), 0.3)

	met := findMetric(collect(t, reader), "voxgate.clip.duration")
	if met == nil {
		t.Fatal("metric not found")
	}
	hist, ok := met.Data.(metricdata.Histogram[float64])
	if !ok || len(hist.DataPoints) == 0 || hist.DataPoints[0].Count != 1 {
		t.Errorf("histogram = %+v", met.Data)
	}
}

func TestProviderServesPrometheus(t *testing.T) {
	p, err := InitProvider(ProviderConfig{ServiceName: "voxgate-test"})
	if err != nil {
		t.Fatalf("InitProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })

	p.Metrics.ClipsStored.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("backend", "file"), attribute.String("status", "ok")))

	rec := httptest.NewRecorder()
	p.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "voxgate_clips_stored") {
		t.Errorf("scrape output missing voxgate_clips_stored:\n%s", body)
	}
}

func TestNopMetrics(t *testing.T) {
	m := NewNopMetrics()
	m.PlaybackFrames.Add(context.Background(), 1)
}
