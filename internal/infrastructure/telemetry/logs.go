package telemetry

import (
	"context"
	"fmt"

	"go.opentelemetry.io/contrib/bridges/otelzap"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	"go.opentelemetry.io/otel/log/global"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogsConfig configures the OTLP log pipeline. Entries are exported to the
// same collector as traces and metrics.
type LogsConfig struct {
	Enabled           bool
	CollectorEndpoint string
	ServiceName       string
	ServiceVersion    string
	Environment       string
	Insecure          bool
}

// LoggerProvider exports zap entries through the otelzap bridge. When logs
// are disabled it contributes no core.
type LoggerProvider struct {
	sdk    *sdklog.LoggerProvider
	name   string
	logger *zap.Logger
}

// NewLoggerProvider creates the OTLP gRPC log exporter and registers the
// provider globally.
func NewLoggerProvider(ctx context.Context, cfg LogsConfig, logger *zap.Logger) (*LoggerProvider, error) {
	if !cfg.Enabled {
		logger.Info("Log export disabled")
		return &LoggerProvider{name: cfg.ServiceName, logger: logger}, nil
	}

	opts := []otlploggrpc.Option{otlploggrpc.WithEndpoint(cfg.CollectorEndpoint)}
	if cfg.Insecure {
		opts = append(opts, otlploggrpc.WithInsecure())
	}
	exporter, err := otlploggrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create OTLP logs exporter: %w", err)
	}

	lp, err := newLoggerProvider(cfg, sdklog.NewBatchProcessor(exporter), logger)
	if err != nil {
		return nil, err
	}
	global.SetLoggerProvider(lp.sdk)

	logger.Info("Log export enabled", zap.String("collector_endpoint", cfg.CollectorEndpoint))
	return lp, nil
}

func newLoggerProvider(cfg LogsConfig, processor sdklog.Processor, logger *zap.Logger) (*LoggerProvider, error) {
	res, err := newResource(cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	sdk := sdklog.NewLoggerProvider(sdklog.WithResource(res), sdklog.WithProcessor(processor))
	return &LoggerProvider{sdk: sdk, name: cfg.ServiceName, logger: logger}, nil
}

// IsEnabled reports whether log entries are exported.
func (lp *LoggerProvider) IsEnabled() bool {
	return lp.sdk != nil
}

// Core returns the zap core forwarding entries at or above level to the
// collector, or a no-op core when export is disabled. Tee it with the
// console core.
func (lp *LoggerProvider) Core(level zapcore.LevelEnabler) zapcore.Core {
	if lp.sdk == nil {
		return zapcore.NewNopCore()
	}
	return &levelCore{
		Core:  otelzap.NewCore(lp.name, otelzap.WithLoggerProvider(lp.sdk)),
		level: level,
	}
}

// Shutdown exports pending entries and stops the provider.
func (lp *LoggerProvider) Shutdown(ctx context.Context) error {
	if lp.sdk == nil {
		return nil
	}
	if err := lp.sdk.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown logger provider: %w", err)
	}
	lp.logger.Debug("Logger provider stopped")
	return nil
}

// levelCore applies the console level to the bridge, which accepts every
// level on its own.
type levelCore struct {
	zapcore.Core
	level zapcore.LevelEnabler
}

func (c *levelCore) Enabled(lvl zapcore.Level) bool {
	return c.level.Enabled(lvl) && c.Core.Enabled(lvl)
}

func (c *levelCore) Check(entry zapcore.Entry, ce *zapcore.CheckedEntry) *zapcore.CheckedEntry {
	if !c.level.Enabled(entry.Level) {
		return ce
	}
	return c.Core.Check(entry, ce)
}

func (c *levelCore) With(fields []zapcore.Field) zapcore.Core {
	return &levelCore{Core: c.Core.With(fields), level: c.level}
}
