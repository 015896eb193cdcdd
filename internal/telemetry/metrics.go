package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// PipelineMetrics holds the conversion pipeline counters. A nil receiver
// is valid and records nothing, so callers never need to guard.
type PipelineMetrics struct {
	ConversionsStarted  metric.Int64Counter
	ConversionsFinished metric.Int64Counter
	ConversionDuration  metric.Float64Histogram
	SearchQueries       metric.Int64Counter
}

// InitMetrics initializes the pipeline metrics.
func InitMetrics() (*PipelineMetrics, error) {
	meter := otel.Meter("standards-archive")

	started, err := meter.Int64Counter(
		"conversion.jobs.started",
		metric.WithDescription("Conversion jobs dispatched"),
	)
	if err != nil {
		return nil, err
	}

	finished, err := meter.Int64Counter(
		"conversion.jobs.finished",
		metric.WithDescription("Conversion jobs reaching a terminal status, by outcome"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"conversion.duration",
		metric.WithDescription("Conversion duration in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	queries, err := meter.Int64Counter(
		"search.queries.total",
		metric.WithDescription("Search queries served"),
	)
	if err != nil {
		return nil, err
	}

	return &PipelineMetrics{
		ConversionsStarted:  started,
		ConversionsFinished: finished,
		ConversionDuration:  duration,
		SearchQueries:       queries,
	}, nil
}

// RecordStart counts one dispatched job.
func (m *PipelineMetrics) RecordStart(ctx context.Context) {
	if m == nil {
		return
	}
	m.ConversionsStarted.Add(ctx, 1)
}

// RecordFinish counts one terminal outcome ("completed", "degraded",
// "error") and its duration.
func (m *PipelineMetrics) RecordFinish(ctx context.Context, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String("outcome", outcome))
	m.ConversionsFinished.Add(ctx, 1, attrs)
	m.ConversionDuration.Record(ctx, elapsed.Seconds(), attrs)
}

// RecordSearch counts one served search query.
func (m *PipelineMetrics) RecordSearch(ctx context.Context) {
	if m == nil {
		return
	}
	m.SearchQueries.Add(ctx, 1)
}
