package observability

import (
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"github.com/smallbiznis/orgsync/internal/observability/metrics"
	"github.com/smallbiznis/orgsync/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		LoadConfig,
		func(cfg Config) logger.Config {
			return logger.Config{
				ServiceName:         cfg.ServiceName,
				Environment:         cfg.Environment,
				Version:             cfg.Version,
				Level:               cfg.LogLevel,
				Format:              cfg.LogFormat,
				Debug:               cfg.Debug(),
				IncludeCaller:       true,
				IncludeStackOnError: cfg.Debug(),
			}
		},
		logger.New,
		func(cfg Config) tracing.Config {
			return tracing.Config{
				Enabled:          cfg.OtelEnabled,
				ServiceName:      cfg.ServiceName,
				ServiceVersion:   cfg.Version,
				Environment:      cfg.Environment,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				SamplingRatio:    cfg.OtelSamplingRatio,
			}
		},
		tracing.NewProvider,
		func(cfg Config) metrics.Config {
			return metrics.Config{
				Enabled:          cfg.OtelEnabled,
				ExporterEndpoint: cfg.OtelExporterEndpoint,
				ExporterProtocol: cfg.OtelExporterProtocol,
				ServiceName:      cfg.ServiceName,
				Environment:      cfg.Environment,
			}
		},
		metrics.NewProvider,
		metrics.New,
		metrics.NewHTTPMetrics,
	),
	fx.Invoke(register),
)

// register forces the tracer provider and registers the prometheus
// singletons with service/env labels before any component touches them.
func register(cfg Config, mcfg metrics.Config, _ *sdktrace.TracerProvider, log *zap.Logger) {
	metrics.SchedulerWithConfig(mcfg)
	metrics.PipelineWithConfig(mcfg)
	log.Info("observability ready",
		zap.String("service", cfg.ServiceName),
		zap.String("env", cfg.Environment),
		zap.Bool("otel", cfg.OtelEnabled),
	)
}
