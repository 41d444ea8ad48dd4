package observability

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/capgrid/rentd/internal/config"
	"github.com/capgrid/rentd/internal/observability/logger"
	"github.com/capgrid/rentd/internal/observability/metrics"
	"github.com/capgrid/rentd/internal/observability/tracing"
)

var Module = fx.Module("observability",
	fx.Provide(func(cfg config.Config) (*zap.Logger, error) {
		return logger.NewLogger(logger.Config{Environment: cfg.Environment})
	}),
	fx.Provide(func(cfg config.Config) tracing.Config {
		return tracing.Config{
			Enabled:          cfg.Tracing.Enabled,
			ServiceName:      cfg.ServiceName,
			Environment:      cfg.Environment,
			ExporterEndpoint: cfg.Tracing.ExporterEndpoint,
			ExporterProtocol: cfg.Tracing.ExporterProtocol,
			SamplingRatio:    cfg.Tracing.SamplingRatio,
		}
	}),
	fx.Provide(tracing.NewProvider),
	fx.Provide(func() metric.MeterProvider {
		return otel.GetMeterProvider()
	}),
	fx.Provide(func(cfg config.Config) metrics.Config {
		return metrics.Config{ServiceName: cfg.ServiceName, Environment: cfg.Environment}
	}),
	fx.Provide(metrics.NewHTTPMetrics),
	fx.Provide(metrics.EngineWithConfig),
	// Force provider construction so the global tracer is registered even
	// though nothing injects it directly.
	fx.Invoke(func(*sdktrace.TracerProvider) {}),
)
