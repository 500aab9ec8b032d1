// Package forwarder relays accepted reports to the log and metric sinks.
package forwarder

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/metrics"
	"github.com/telhawk-systems/cspreport/pkg/csp"
)

// Metric dimension names, in the order they are sent.
const (
	DimensionViolatedDirective = "ViolatedDirective"
	DimensionSourceFile        = "SourceFile"
	DimensionBlockedURI        = "BlockedUri"
	DimensionDocumentURI       = "DocumentUri"
)

// NoSourceFile replaces a null source-file in metric dimensions.
const NoSourceFile = "none"

// UnitCount is the unit of the per-report data point.
const UnitCount = "Count"

// Config selects the sink destinations. Each pair activates its sink only
// when both halves are set, and nothing is sent without a region.
type Config struct {
	Region          string
	LogGroup        string
	LogStream       string
	MetricNamespace string
	MetricName      string
}

// Enabled reports whether any forwarding may happen.
func (c Config) Enabled() bool {
	return c.Region != ""
}

// LogsConfigured reports whether the log destination pair is complete.
func (c Config) LogsConfigured() bool {
	return c.LogGroup != "" && c.LogStream != ""
}

// MetricsConfigured reports whether the metric destination pair is complete.
func (c Config) MetricsConfigured() bool {
	return c.MetricNamespace != "" && c.MetricName != ""
}

// LogEvent is one timestamped record for the log sink.
type LogEvent struct {
	Message   string
	Timestamp time.Time
}

// Dimension is a named metric dimension.
type Dimension struct {
	Name  string
	Value string
}

// MetricDatum is a single data point for the metric sink.
type MetricDatum struct {
	Name       string
	Dimensions []Dimension
	Value      float64
	Unit       string
	Timestamp  time.Time
}

// LogSink writes records to a named log group and stream.
type LogSink interface {
	PutLogEvent(ctx context.Context, group, stream string, event LogEvent) error
}

// MetricSink records data points under a namespace.
type MetricSink interface {
	PutMetricData(ctx context.Context, namespace string, datum MetricDatum) error
}

// Serializer renders the enriched log record.
type Serializer interface {
	SerializeLogRecord(rec csp.LogRecord) string
}

// Forwarder builds telemetry records for a report and dispatches them.
type Forwarder struct {
	serializer Serializer
	logs       LogSink
	metrics    MetricSink
	logger     *logging.Logger
	now        func() time.Time
}

// Option configures a Forwarder.
type Option func(*Forwarder)

// WithClock overrides the timestamp source.
func WithClock(now func() time.Time) Option {
	return func(f *Forwarder) { f.now = now }
}

// WithLogger sets the operational logger.
func WithLogger(logger *logging.Logger) Option {
	return func(f *Forwarder) { f.logger = logger }
}

// New returns a Forwarder. Either sink may be nil when its destination is
// never configured.
func New(serializer Serializer, logSink LogSink, metricSink MetricSink, opts ...Option) *Forwarder {
	f := &Forwarder{
		serializer: serializer,
		logs:       logSink,
		metrics:    metricSink,
		logger:     logging.Default(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Forward sends report to every configured sink. When both sinks are
// configured the calls run concurrently and the first failure is returned.
func (f *Forwarder) Forward(ctx context.Context, report *csp.Report, client csp.ClientContext, cfg Config) error {
	if !cfg.Enabled() {
		return nil
	}

	var event *LogEvent
	if cfg.LogsConfigured() {
		event = f.logEvent(report, client)
	}

	var datum *MetricDatum
	if cfg.MetricsConfigured() {
		datum = f.metricDatum(report, cfg.MetricName)
	}

	switch [2]bool{event != nil, datum != nil} {
	case [2]bool{false, false}:
		return nil

	case [2]bool{true, false}:
		return f.putLog(ctx, cfg, *event)

	case [2]bool{false, true}:
		return f.putMetric(ctx, cfg, *datum)

	default:
		// A failing call does not cancel the other one.
		var g errgroup.Group
		g.Go(func() error { return f.putLog(ctx, cfg, *event) })
		g.Go(func() error { return f.putMetric(ctx, cfg, *datum) })
		return g.Wait()
	}
}

func (f *Forwarder) logEvent(report *csp.Report, client csp.ClientContext) *LogEvent {
	return &LogEvent{
		Message:   f.serializer.SerializeLogRecord(csp.NewLogRecord(report, client)),
		Timestamp: f.now(),
	}
}

func (f *Forwarder) metricDatum(report *csp.Report, name string) *MetricDatum {
	v := report.Body
	return &MetricDatum{
		Name: name,
		Dimensions: []Dimension{
			{Name: DimensionViolatedDirective, Value: v.ViolatedDirective},
			{Name: DimensionSourceFile, Value: v.SourceFileOr(NoSourceFile)},
			{Name: DimensionBlockedURI, Value: v.BlockedURI},
			{Name: DimensionDocumentURI, Value: v.DocumentURI},
		},
		Value:     1,
		Unit:      UnitCount,
		Timestamp: f.now(),
	}
}

func (f *Forwarder) putLog(ctx context.Context, cfg Config, event LogEvent) error {
	if f.logs == nil {
		return fmt.Errorf("log destination %s/%s configured without a log sink", cfg.LogGroup, cfg.LogStream)
	}
	return f.observe(ctx, "logs", func() error {
		return f.logs.PutLogEvent(ctx, cfg.LogGroup, cfg.LogStream, event)
	})
}

func (f *Forwarder) putMetric(ctx context.Context, cfg Config, datum MetricDatum) error {
	if f.metrics == nil {
		return fmt.Errorf("metric destination %s/%s configured without a metric sink", cfg.MetricNamespace, cfg.MetricName)
	}
	return f.observe(ctx, "metrics", func() error {
		return f.metrics.PutMetricData(ctx, cfg.MetricNamespace, datum)
	})
}

func (f *Forwarder) observe(ctx context.Context, sink string, call func() error) error {
	timer := prometheus.NewTimer(metrics.SinkDuration.WithLabelValues(sink))
	err := call()
	timer.ObserveDuration()

	if err != nil {
		metrics.SinkErrors.WithLabelValues(sink).Inc()
		f.logger.WarnContext(ctx, "Telemetry sink call failed", logging.Sink(sink), logging.Error(err))
		return err
	}
	f.logger.DebugContext(ctx, "Telemetry sink call succeeded", logging.Sink(sink))
	return nil
}
