package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/telhawk-systems/cspreport/common/logging"
	"github.com/telhawk-systems/cspreport/internal/config"
	"github.com/telhawk-systems/cspreport/internal/forwarder"
	"github.com/telhawk-systems/cspreport/internal/handlers"
	"github.com/telhawk-systems/cspreport/internal/response"
	"github.com/telhawk-systems/cspreport/internal/schema"
	"github.com/telhawk-systems/cspreport/internal/service"
	"github.com/telhawk-systems/cspreport/internal/sinks/cloudwatch"
	"github.com/telhawk-systems/cspreport/internal/sinks/nats"
	"github.com/telhawk-systems/cspreport/internal/sinks/opensearch"
	"github.com/telhawk-systems/cspreport/internal/sinks/prometheus"
)

// app holds everything both transports share.
type app struct {
	service     *service.ReportService
	builder     *response.Builder
	readyChecks map[string]handlers.ReadyCheck
	closers     []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// sinkFactory lazily creates sink clients so unused backends never connect.
type sinkFactory struct {
	cfg    *config.Config
	logger *logging.Logger
	app    *app

	logsAPI    cloudwatch.LogsAPI
	metricsAPI cloudwatch.MetricsAPI
}

func (f *sinkFactory) cloudWatch(ctx context.Context) error {
	if f.logsAPI != nil {
		return nil
	}
	logsClient, metricsClient, err := cloudwatch.NewClients(ctx, cloudwatch.Config{
		Region:   f.cfg.Telemetry.Region,
		Endpoint: f.cfg.Telemetry.Endpoint,
	})
	if err != nil {
		return err
	}
	f.logsAPI, f.metricsAPI = logsClient, metricsClient
	return nil
}

func (f *sinkFactory) logSink(ctx context.Context) (forwarder.LogSink, error) {
	t := f.cfg.Telemetry
	switch t.LogBackend {
	case config.BackendOpenSearch:
		sink, err := opensearch.NewLogSink(opensearch.Config{
			URL:           t.OpenSearch.URL,
			Username:      t.OpenSearch.Username,
			Password:      t.OpenSearch.Password,
			TLSSkipVerify: t.OpenSearch.TLSSkipVerify,
		})
		if err != nil {
			return nil, err
		}
		f.app.readyChecks["opensearch"] = sink.Ping
		return sink, nil

	case config.BackendNATS:
		natsCfg := nats.DefaultConfig()
		natsCfg.URL = t.NATS.URL
		natsCfg.SubjectPrefix = t.NATS.SubjectPrefix
		conn, err := nats.Connect(natsCfg, f.logger)
		if err != nil {
			return nil, err
		}
		f.app.closers = append(f.app.closers, func() { _ = conn.Drain() })
		f.app.readyChecks["nats"] = func(context.Context) error {
			if !conn.IsConnected() {
				return fmt.Errorf("nats connection %s", conn.Status())
			}
			return nil
		}
		return nats.NewLogSink(conn, natsCfg.SubjectPrefix), nil

	default:
		if err := f.cloudWatch(ctx); err != nil {
			return nil, err
		}
		return cloudwatch.NewLogsSink(f.logsAPI), nil
	}
}

func (f *sinkFactory) metricSink(ctx context.Context) (forwarder.MetricSink, error) {
	switch f.cfg.Telemetry.MetricBackend {
	case config.BackendPrometheus:
		return prometheus.NewMetricSink(nil), nil

	default:
		if err := f.cloudWatch(ctx); err != nil {
			return nil, err
		}
		return cloudwatch.NewMetricsSink(f.metricsAPI), nil
	}
}

// newApp builds the report pipeline from cfg. Sinks are created only for
// destination pairs that are fully configured.
func newApp(ctx context.Context, cfg *config.Config, logger *logging.Logger) (*app, error) {
	a := &app{readyChecks: make(map[string]handlers.ReadyCheck)}
	factory := &sinkFactory{cfg: cfg, logger: logger, app: a}
	telemetry := cfg.ForwarderConfig()

	var logSink forwarder.LogSink
	var metricSink forwarder.MetricSink
	if telemetry.Enabled() {
		if telemetry.LogsConfigured() {
			sink, err := factory.logSink(ctx)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to create %s log sink: %w", cfg.Telemetry.LogBackend, err)
			}
			logSink = sink
		}
		if telemetry.MetricsConfigured() {
			sink, err := factory.metricSink(ctx)
			if err != nil {
				a.Close()
				return nil, fmt.Errorf("failed to create %s metric sink: %w", cfg.Telemetry.MetricBackend, err)
			}
			metricSink = sink
		}
	}

	logger.Info("Telemetry configured",
		slog.Bool("enabled", telemetry.Enabled()),
		slog.String("region", telemetry.Region),
		slog.Bool("logs", logSink != nil),
		slog.String("log_backend", cfg.Telemetry.LogBackend),
		slog.Bool("metrics", metricSink != nil),
		slog.String("metric_backend", cfg.Telemetry.MetricBackend),
	)

	codec := schema.NewCodec()
	fwd := forwarder.New(codec, logSink, metricSink, forwarder.WithLogger(logger))
	a.service = service.NewReportService(codec, fwd, telemetry, logger)
	a.builder = response.NewBuilder(codec)
	return a, nil
}
