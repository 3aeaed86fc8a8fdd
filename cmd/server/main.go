package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wsiviewer/backend/internal/application/archive"
	"github.com/wsiviewer/backend/internal/application/caseviewer"
	"github.com/wsiviewer/backend/internal/application/slideviewer"
	"github.com/wsiviewer/backend/internal/application/worklist"
	"github.com/wsiviewer/backend/internal/domain/dicom"
	"github.com/wsiviewer/backend/internal/domain/viewer"
	"github.com/wsiviewer/backend/internal/infrastructure/auth"
	"github.com/wsiviewer/backend/internal/infrastructure/cache"
	"github.com/wsiviewer/backend/internal/infrastructure/config"
	"github.com/wsiviewer/backend/internal/infrastructure/dicomweb"
	"github.com/wsiviewer/backend/internal/infrastructure/logger"
	"github.com/wsiviewer/backend/internal/infrastructure/storage"
	"github.com/wsiviewer/backend/internal/infrastructure/telemetry"
	"github.com/wsiviewer/backend/internal/interfaces/http/handler"
	"github.com/wsiviewer/backend/internal/interfaces/http/middleware"
	"github.com/wsiviewer/backend/internal/interfaces/http/router"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("Failed to load configuration: " + err.Error())
	}

	log, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		Output:     cfg.Log.Output,
		TimeFormat: "2006-01-02T15:04:05.000Z07:00",
	}, cfg.App.Name)
	if err != nil {
		panic("Failed to initialize logger: " + err.Error())
	}
	defer func() {
		_ = log.Sync()
	}()

	log.Info("Starting WSI viewer backend",
		zap.String("version", version),
		zap.String("env", cfg.App.Env),
		zap.String("port", cfg.App.Port),
	)

	ctx := context.Background()

	tracerProvider, err := telemetry.NewTracerProvider(ctx, telemetry.Config{
		Enabled:           cfg.Telemetry.Enabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		SamplingRatio:     cfg.Telemetry.SamplingRatio,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize tracing", zap.Error(err))
	}
	meterProvider, err := telemetry.NewMeterProvider(ctx, telemetry.MetricsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.MetricsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ExportInterval:    cfg.Telemetry.MetricsInterval,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize metrics", zap.Error(err))
	}
	loggerProvider, err := telemetry.NewLoggerProvider(ctx, telemetry.LogsConfig{
		Enabled:           cfg.Telemetry.Enabled && cfg.Telemetry.LogsEnabled,
		CollectorEndpoint: cfg.Telemetry.CollectorEndpoint,
		ServiceName:       cfg.Telemetry.ServiceName,
		ServiceVersion:    version,
		Environment:       cfg.App.Env,
		Insecure:          cfg.Telemetry.Insecure,
	}, log)
	if err != nil {
		log.Fatal("Failed to initialize log export", zap.Error(err))
	}
	if loggerProvider.IsEnabled() {
		log = logger.Tee(log, loggerProvider.Core(log.Level()))
	}
	profiler, err := telemetry.NewProfiler(telemetry.ProfilerConfig{
		Enabled:         cfg.Telemetry.ProfilingEnabled,
		ServerAddress:   cfg.Telemetry.ProfilingAddress,
		ApplicationName: cfg.Telemetry.ServiceName,
		Environment:     cfg.App.Env,
	}, log)
	if err != nil {
		log.Fatal("Failed to start profiler", zap.Error(err))
	}

	archiveMetrics, err := telemetry.NewArchiveMetrics(meterProvider.Meter("dicomweb"))
	if err != nil {
		log.Fatal("Failed to create archive metrics", zap.Error(err))
	}
	viewerMetrics, err := telemetry.NewViewerMetrics(meterProvider.Meter("viewer"))
	if err != nil {
		log.Fatal("Failed to create viewer metrics", zap.Error(err))
	}

	// Archives
	mapping, err := dicomweb.NewClientMapping(dicomweb.ManagerOptions{
		BaseURI:  cfg.DICOMweb.BaseURI,
		Settings: cfg.ServerSettings(),
		Timeout:  cfg.DICOMweb.Timeout,
		Logger:   log,
		Metrics:  archiveMetrics,
		OnError: func(err error, server dicomweb.ServerSettings) {
			log.Warn("DICOMweb request failed", zap.String("server_id", server.ID), zap.Error(err))
		},
	})
	if err != nil {
		log.Fatal("Failed to configure DICOMweb servers", zap.Error(err))
	}
	defaultArchive := mapping.Default()
	log.Info("DICOMweb servers configured",
		zap.Int("servers", len(mapping.Managers())),
		zap.String("default_server", defaultArchive.ID()),
	)

	// Viewer sessions
	sessionStore, err := cache.NewSessionStoreFactory(cfg.Session, cfg.Redis, cache.WithLogger(log)).CreateStore(ctx)
	if err != nil {
		log.Fatal("Failed to create viewer session store", zap.Error(err))
	}

	annotations, err := viewer.NewAnnotationOptions(cfg.AnnotationConfigs())
	if err != nil {
		log.Fatal("Invalid annotation configuration", zap.Error(err))
	}

	manifests := manifestStorage(ctx, cfg, log)

	// Services
	worklistService := worklist.NewService(defaultArchive, log)
	caseService := caseviewer.NewService(defaultArchive,
		caseviewer.WithLogger(log),
		caseviewer.WithMetrics(viewerMetrics),
	)
	archiveService := archive.NewService(func(class dicom.StorageClass) archive.Store {
		return mapping.For(class)
	}, archive.WithLogger(log))
	viewerService := slideviewer.NewService(slideviewer.Dependencies{
		Cases:              caseService,
		PresentationStates: mapping.For(dicom.StorageClassAdvancedBlendingPresentationState),
		Factory:            viewer.ModelFactory{},
		Store:              sessionStore,
		Annotations:        annotations,
		ClientFingerprint:  mapping.Fingerprint(),
		Preload:            cfg.Viewer.Preload,
		SessionTTL:         cfg.Viewer.SessionTTL,
		Manifests:          manifests,
		ManifestExpiry:     cfg.Storage.PresignExpiry,
		Metrics:            viewerMetrics,
		Logger:             log,
	})

	// HTTP
	middleware.SetupValidator()

	systemHandler := handler.NewSystemHandler(version)
	if pinger, ok := sessionStore.(interface{ Ping(context.Context) error }); ok {
		systemHandler.WithCheck("session_store", pinger.Ping)
	}

	handlers := router.Handlers{
		System:   systemHandler,
		Worklist: handler.NewWorklistHandler(worklistService),
		Cases:    handler.NewCaseHandler(caseService),
		Viewers:  handler.NewViewerHandler(viewerService),
		Stow:     handler.NewStowHandler(archiveService),
		Manifest: handler.NewManifestHandler(viewerService),
	}
	if cfg.HTTP.ProxyEnabled {
		handlers.Proxy, err = handler.NewProxyHandler(defaultArchive.BaseURL(), log)
		if err != nil {
			log.Fatal("Failed to create archive proxy", zap.Error(err))
		}
		log.Info("Archive proxy enabled", zap.String("target", defaultArchive.BaseURL()))
	}

	engineCfg := router.EngineConfig{
		HTTP:       cfg.HTTP,
		Production: cfg.App.Env == "production",
		Tracing: middleware.TracingConfig{
			ServiceName: cfg.Telemetry.ServiceName,
			Enabled:     cfg.Telemetry.Enabled,
		},
		Metrics: middleware.HTTPMetricsConfig{
			MeterProvider: meterProvider,
			Enabled:       cfg.Telemetry.MetricsEnabled,
			Logger:        log,
		},
		Logger:   log,
		Handlers: handlers,
	}
	if cfg.Auth.Enabled {
		engineCfg.Tokens = auth.NewJWTService(cfg.Auth)
	}
	var limiter *middleware.RateLimiter
	if cfg.HTTP.RateLimitEnabled {
		limiter = middleware.NewRateLimiter(cfg.HTTP.RateLimitRequests, cfg.HTTP.RateLimitWindow)
		engineCfg.Limiter = limiter
	}

	engine, err := router.NewEngine(engineCfg)
	if err != nil {
		log.Fatal("Failed to build HTTP engine", zap.Error(err))
	}

	srv := &http.Server{
		Addr:           ":" + cfg.App.Port,
		Handler:        engine,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
		WriteTimeout:   cfg.HTTP.WriteTimeout,
		IdleTimeout:    cfg.HTTP.IdleTimeout,
		MaxHeaderBytes: cfg.HTTP.MaxHeaderBytes,
	}

	go func() {
		log.Info("Server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}
	viewerService.Shutdown()
	if limiter != nil {
		limiter.Stop()
	}
	if closer, ok := sessionStore.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			log.Warn("Failed to close viewer session store", zap.Error(err))
		}
	}
	if err := meterProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush metrics", zap.Error(err))
	}
	if err := tracerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush traces", zap.Error(err))
	}
	if err := profiler.Stop(); err != nil {
		log.Warn("Failed to stop profiler", zap.Error(err))
	}
	log.Info("Server exited gracefully")
	if err := loggerProvider.Shutdown(shutdownCtx); err != nil {
		log.Warn("Failed to flush logs", zap.Error(err))
	}
}

// manifestStorage returns the object storage of manifest exports. Outside
// production an in-memory stub stands in when no storage is configured.
func manifestStorage(ctx context.Context, cfg *config.Config, log *zap.Logger) slideviewer.ManifestStorage {
	if cfg.Storage.Enabled {
		s3, err := storage.NewS3ObjectStorage(ctx, cfg.Storage, storage.WithLogger(log))
		if err != nil {
			log.Fatal("Failed to create object storage", zap.Error(err))
		}
		if err := s3.EnsureBucket(ctx); err != nil {
			log.Fatal("Object storage bucket unavailable", zap.Error(err), zap.String("bucket", s3.Bucket()))
		}
		return s3
	}
	if cfg.App.Env == "production" {
		log.Info("Object storage disabled, manifest export unavailable")
		return nil
	}
	log.Warn("Object storage disabled, manifests are kept in memory")
	return storage.NewStubObjectStorage()
}
