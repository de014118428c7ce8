package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "code2api"

// Metrics holds the pipeline metric instruments. Its call-site methods
// satisfy the invoker's Recorder interface.
type Metrics struct {
	RunsStarted   metric.Int64Counter
	RunsCompleted metric.Int64Counter
	RunsFailed    metric.Int64Counter
	PhaseDuration metric.Float64Histogram

	cacheHits   metric.Int64Counter
	cacheMisses metric.Int64Counter
	retries     metric.Int64Counter
}

// NewMetrics creates all metric instruments.
func NewMetrics() (*Metrics, error) {
	meter := otel.Meter(meterName)
	m := &Metrics{}
	var err error

	m.RunsStarted, err = meter.Int64Counter("code2api.runs.started",
		metric.WithDescription("Number of workflow runs started"))
	if err != nil {
		return nil, err
	}
	m.RunsCompleted, err = meter.Int64Counter("code2api.runs.completed",
		metric.WithDescription("Number of workflow runs completed"))
	if err != nil {
		return nil, err
	}
	m.RunsFailed, err = meter.Int64Counter("code2api.runs.failed",
		metric.WithDescription("Number of workflow runs failed"))
	if err != nil {
		return nil, err
	}
	m.PhaseDuration, err = meter.Float64Histogram("code2api.phase.duration",
		metric.WithDescription("Phase execution time"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}
	m.cacheHits, err = meter.Int64Counter("code2api.cache.hits",
		metric.WithDescription("Model response cache hits"))
	if err != nil {
		return nil, err
	}
	m.cacheMisses, err = meter.Int64Counter("code2api.cache.misses",
		metric.WithDescription("Model response cache misses"))
	if err != nil {
		return nil, err
	}
	m.retries, err = meter.Int64Counter("code2api.invoke.retries",
		metric.WithDescription("Model call retries"))
	if err != nil {
		return nil, err
	}
	return m, nil
}

// CacheHit implements the invoker's Recorder.
func (m *Metrics) CacheHit(callSite string) {
	m.cacheHits.Add(context.Background(), 1, metric.WithAttributes(attribute.String("call_site", callSite)))
}

// CacheMiss implements the invoker's Recorder.
func (m *Metrics) CacheMiss(callSite string) {
	m.cacheMisses.Add(context.Background(), 1, metric.WithAttributes(attribute.String("call_site", callSite)))
}

// Retry implements the invoker's Recorder.
func (m *Metrics) Retry(callSite string) {
	m.retries.Add(context.Background(), 1, metric.WithAttributes(attribute.String("call_site", callSite)))
}
