// Package observe holds the OpenTelemetry instruments for the segmentation
// pipeline and the Prometheus bridge that exposes them on /metrics.
package observe

import (
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
)

const meterName = "github.com/xpanvictor/voxgate"

// Metrics holds every instrument the service records. The OTel types are
// safe for concurrent use.
type Metrics struct {
	// FramesReceived counts classified inbound frames. Attribute: speech.
	FramesReceived metric.Int64Counter

	// FrameViolations counts dropped inbound messages. Attribute: reason.
	FrameViolations metric.Int64Counter

	// ClipsFlushed counts clips handed to the sink. Attribute: trigger
	// ("max_length", "silence", "close").
	ClipsFlushed metric.Int64Counter

	// ClipsDiscarded counts clips the recorder dropped. Attribute: reason.
	ClipsDiscarded metric.Int64Counter

	// ClipsStored counts persistence attempts. Attributes: backend, status.
	ClipsStored metric.Int64Counter

	ClipDuration  metric.Float64Histogram
	StoreDuration metric.Float64Histogram

	ActiveSessions metric.Int64UpDownCounter

	PlaybackFrames metric.Int64Counter

	// HTTPRequestDuration uses attributes method, route and status.
	HTTPRequestDuration metric.Float64Histogram
}

var clipBuckets = []float64{0.2, 0.5, 1, 2, 3, 5, 7.5, 10}

var latencyBuckets = []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5}

// NewMetrics creates every instrument on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.FramesReceived, err = m.Int64Counter("voxgate.frames.received",
		metric.WithDescription("Inbound audio frames classified, by speech flag."),
	); err != nil {
		return nil, err
	}
	if met.FrameViolations, err = m.Int64Counter("voxgate.frames.violations",
		metric.WithDescription("Inbound messages dropped for protocol or classification errors."),
	); err != nil {
		return nil, err
	}
	if met.ClipsFlushed, err = m.Int64Counter("voxgate.clips.flushed",
		metric.WithDescription("Clips handed to the sink, by trigger."),
	); err != nil {
		return nil, err
	}
	if met.ClipsDiscarded, err = m.Int64Counter("voxgate.clips.discarded",
		metric.WithDescription("Clips dropped by the recorder, by reason."),
	); err != nil {
		return nil, err
	}
	if met.ClipsStored, err = m.Int64Counter("voxgate.clips.stored",
		metric.WithDescription("Clip persistence attempts, by backend and status."),
	); err != nil {
		return nil, err
	}
	if met.ClipDuration, err = m.Float64Histogram("voxgate.clip.duration",
		metric.WithDescription("Audio duration of flushed clips."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(clipBuckets...),
	); err != nil {
		return nil, err
	}
	if met.StoreDuration, err = m.Float64Histogram("voxgate.clip.store.duration",
		metric.WithDescription("Time to encode and store one clip."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}
	if met.ActiveSessions, err = m.Int64UpDownCounter("voxgate.sessions.active",
		metric.WithDescription("Sessions past the handshake and not yet closed."),
	); err != nil {
		return nil, err
	}
	if met.PlaybackFrames, err = m.Int64Counter("voxgate.playback.frames",
		metric.WithDescription("Frames written back to callers by the pacer."),
	); err != nil {
		return nil, err
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("voxgate.http.request.duration",
		metric.WithDescription("HTTP request processing time."),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(latencyBuckets...),
	); err != nil {
		return nil, err
	}

	return met, nil
}

// NewNopMetrics returns instruments that record nothing.
func NewNopMetrics() *Metrics {
	m, err := NewMetrics(noop.NewMeterProvider())
	if err != nil {
		panic(err)
	}
	return m
}
