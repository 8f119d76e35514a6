// Package observe provides observability primitives for the facilitator:
// OpenTelemetry metrics and tracing, trace-aware logging, and HTTP
// middleware that ties them together.
//
// Metrics are recorded through the OpenTelemetry Metrics API. [InitProvider]
// bridges them to a Prometheus exporter so the web service can expose the
// standard /metrics endpoint. Tests should use [NewMetrics] with their own
// [metric.MeterProvider] to avoid cross-test pollution.
package observe

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// meterName is the instrumentation scope name used for all metrics.
const meterName = "github.com/MrWong99/somatic"

// Provider kinds used as the "kind" attribute.
const (
	KindSTT = "stt"
	KindLLM = "llm"
	KindTTS = "tts"
)

// Metrics holds all metric instruments. All fields are safe for concurrent
// use.
type Metrics struct {
	STTDuration metric.Float64Histogram
	LLMDuration metric.Float64Histogram
	TTSDuration metric.Float64Histogram

	// HTTPRequestDuration uses attributes method and path.
	HTTPRequestDuration metric.Float64Histogram

	// ProviderRequests uses attributes provider, kind and status.
	ProviderRequests metric.Int64Counter

	// ProviderErrors uses attributes provider and kind.
	ProviderErrors metric.Int64Counter

	// Utterances counts transcribed meditator utterances.
	Utterances metric.Int64Counter

	// CheckIns counts check-ins spoken after extended silence.
	CheckIns metric.Int64Counter

	// Holds counts entries into hold mode.
	Holds metric.Int64Counter

	// ActiveSessions tracks live facilitation sessions.
	ActiveSessions metric.Int64UpDownCounter
}

// latencyBuckets are histogram boundaries in seconds, sized for local
// transcription and LLM round trips.
var latencyBuckets = []float64{
	0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8, 15, 30,
}

// NewMetrics creates the instruments on mp.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&met.STTDuration, "somatic.stt.duration", "Latency of speech-to-text transcription."},
		{&met.LLMDuration, "somatic.llm.duration", "Latency of LLM completion."},
		{&met.TTSDuration, "somatic.tts.duration", "Time spent speaking a facilitator line."},
	}
	for _, h := range histograms {
		if *h.dst, err = m.Float64Histogram(h.name,
			metric.WithDescription(h.desc),
			metric.WithUnit("s"),
			metric.WithExplicitBucketBoundaries(latencyBuckets...),
		); err != nil {
			return nil, err
		}
	}
	if met.HTTPRequestDuration, err = m.Float64Histogram("somatic.http.request.duration",
		metric.WithDescription("HTTP request latency by method and path."),
		metric.WithUnit("s"),
	); err != nil {
		return nil, err
	}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&met.ProviderRequests, "somatic.provider.requests", "Provider calls by provider, kind and status."},
		{&met.ProviderErrors, "somatic.provider.errors", "Provider errors by provider and kind."},
		{&met.Utterances, "somatic.utterances", "Transcribed meditator utterances."},
		{&met.CheckIns, "somatic.checkins", "Check-ins offered after extended silence."},
		{&met.Holds, "somatic.holds", "Times hold mode was entered."},
	}
	for _, c := range counters {
		if *c.dst, err = m.Int64Counter(c.name, metric.WithDescription(c.desc)); err != nil {
			return nil, err
		}
	}

	if met.ActiveSessions, err = m.Int64UpDownCounter("somatic.sessions.active",
		metric.WithDescription("Number of live facilitation sessions."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level [Metrics], created on first call
// from [otel.GetMeterProvider]. Call it after [InitProvider] so the
// instruments bind to the exporting provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("observe: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

// RecordProviderRequest counts one provider call.
func (m *Metrics) RecordProviderRequest(ctx context.Context, provider, kind, status string) {
	m.ProviderRequests.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
			attribute.String("status", status),
		),
	)
}

// RecordProviderError counts one provider failure.
func (m *Metrics) RecordProviderError(ctx context.Context, provider, kind string) {
	m.ProviderErrors.Add(ctx, 1,
		metric.WithAttributes(
			attribute.String("provider", provider),
			attribute.String("kind", kind),
		),
	)
}

// ObserveProvider records the latency of one call of the given kind, plus
// the request counter and, when err is non-nil, the error counter.
func (m *Metrics) ObserveProvider(ctx context.Context, provider, kind string, start time.Time, err error) {
	var h metric.Float64Histogram
	switch kind {
	case KindSTT:
		h = m.STTDuration
	case KindLLM:
		h = m.LLMDuration
	case KindTTS:
		h = m.TTSDuration
	}
	if h != nil {
		h.Record(ctx, time.Since(start).Seconds(), metric.WithAttributes(attribute.String("provider", provider)))
	}
	status := "ok"
	if err != nil {
		status = "error"
		m.RecordProviderError(ctx, provider, kind)
	}
	m.RecordProviderRequest(ctx, provider, kind, status)
}
