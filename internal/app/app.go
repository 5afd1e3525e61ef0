// Package app provides application initialization and wiring.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/jobrunner/mapcore/internal/adapters/extraction"
	"github.com/jobrunner/mapcore/internal/adapters/geocoder"
	httpAdapter "github.com/jobrunner/mapcore/internal/adapters/http"
	"github.com/jobrunner/mapcore/internal/adapters/metrics"
	"github.com/jobrunner/mapcore/internal/adapters/regions"
	"github.com/jobrunner/mapcore/internal/adapters/storage"
	"github.com/jobrunner/mapcore/internal/adapters/surface"
	tlsAdapter "github.com/jobrunner/mapcore/internal/adapters/tls"
	"github.com/jobrunner/mapcore/internal/adapters/tracing"
	"github.com/jobrunner/mapcore/internal/adapters/watcher"
	"github.com/jobrunner/mapcore/internal/application"
	"github.com/jobrunner/mapcore/internal/config"
	"github.com/jobrunner/mapcore/internal/domain"
	"github.com/jobrunner/mapcore/internal/ports/output"
)

// App holds all application components.
type App struct {
	Config        *config.Config
	Logger        *slog.Logger
	Storage       output.ObjectStorage
	Surface       *surface.Surface
	Session       *application.Session
	Registry      *application.RegionRegistry
	SyncService   *application.SyncService
	HealthService *application.HealthService
	HTTPServer    *httpAdapter.Server
	TLSServer     *tlsAdapter.Server
	Watcher       *watcher.Watcher
	Metrics       *metrics.Collector
	MetricsServer *metrics.Server

	tracerProvider trace.TracerProvider
	shutdownTracer func(context.Context) error
}

// New creates and initializes a new application.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	app := &App{
		Config: cfg,
		Logger: logger,
	}

	tp, shutdownTracer, err := tracing.Setup(ctx, tracing.Config{
		Endpoint:    cfg.Tracing.Endpoint,
		Insecure:    cfg.Tracing.Insecure,
		ServiceName: "mapcore",
		Version:     version,
		Environment: cfg.Tracing.Environment,
		SampleRatio: cfg.Tracing.SampleRatio,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing tracing: %w", err)
	}
	app.tracerProvider = tp
	app.shutdownTracer = shutdownTracer

	// Initialize metrics
	var metricsCollector output.MetricsCollector = &output.NoOpMetrics{}
	if cfg.Metrics.Enabled {
		app.Metrics = metrics.NewCollector("mapcore")
		app.MetricsServer = metrics.NewServer(cfg.MetricsAddress(), cfg.Metrics.Path, app.Metrics.Handler(), logger)
		metricsCollector = app.Metrics
	}

	// Initialize storage adapter
	store, err := initStorage(ctx, cfg.Storage)
	if err != nil {
		return nil, fmt.Errorf("initializing storage: %w", err)
	}
	app.Storage = store

	// Map surface, drawing toolkit and camera share one journal
	app.Surface = surface.New(surface.NewJournal(cfg.Session.JournalCapacity))
	toolkit, err := surface.NewToolkit(app.Surface)
	if err != nil {
		return nil, fmt.Errorf("initializing drawing toolkit: %w", err)
	}
	camera := surface.NewCamera(app.Surface.Journal())

	extractor := extraction.New(extraction.Config{
		BaseURL:   cfg.Extraction.BaseURL,
		Token:     cfg.Extraction.Token,
		Timeout:   cfg.Extraction.Timeout,
		RateLimit: cfg.Extraction.RateLimit,
	}, tp, logger)

	var geo output.Geocoder
	if cfg.Geocoder.Enabled {
		nominatim, err := geocoder.New(geocoder.Config{
			BaseURL:   cfg.Geocoder.BaseURL,
			UserAgent: cfg.Geocoder.UserAgent,
			Email:     cfg.Geocoder.Email,
			RateLimit: cfg.Geocoder.RateLimit,
			Burst:     cfg.Geocoder.Burst,
			CacheSize: cfg.Geocoder.CacheSize,
			Timeout:   cfg.Geocoder.Timeout,
		}, tp, metricsCollector, logger)
		if err != nil {
			return nil, fmt.Errorf("initializing geocoder: %w", err)
		}
		geo = nominatim
	}

	app.Session, err = application.NewSession(application.SessionDeps{
		Surface:   app.Surface,
		Toolkit:   toolkit,
		Camera:    camera,
		Extractor: extractor,
		Geocoder:  geo,
		Metrics:   metricsCollector,
		Logger:    logger,
		Zoom: application.ZoomConfig{
			MinZoom:         cfg.Session.MinZoom,
			MaxZoom:         cfg.Session.MaxZoom,
			AddressZoom:     cfg.Session.AddressZoom,
			AnimationWindow: cfg.Session.AnimationWindow,
		},
		CacheSize: cfg.Session.CacheSize,
	})
	if err != nil {
		return nil, fmt.Errorf("initializing session: %w", err)
	}

	// Region files from storage and the import directory feed the session
	app.Registry = application.NewRegionRegistry(
		app.Session,
		regions.NewReader(),
		app.Storage,
		metricsCollector,
		logger,
		cfg.Storage.LocalPath,
	)
	if app.Storage != nil && cfg.Storage.SyncInterval > 0 {
		app.SyncService = application.NewSyncService(app.Registry, cfg.Storage.SyncInterval, logger).
			WithBus(app.Session.Bus())
	}

	app.HealthService = application.NewHealthService(app.Session, app.Registry)

	deps := httpAdapter.Deps{
		Session: app.Session,
		Surface: app.Surface,
		Health:  app.HealthService,
		Sync:    app.SyncService,
		Logger:  logger,
	}
	if app.Metrics != nil {
		deps.Instrument = app.Metrics.Middleware
	}
	app.HTTPServer = httpAdapter.NewServer(cfg.Server, deps)

	if cfg.TLS.Enabled {
		tlsServer, err := tlsAdapter.NewServer(
			tlsAdapter.Config{
				Enabled:  cfg.TLS.Enabled,
				Domains:  cfg.TLS.Domains,
				Email:    cfg.TLS.Email,
				CacheDir: cfg.TLS.CacheDir,
				Staging:  cfg.TLS.Staging,
				DNS: tlsAdapter.DNSConfig{
					SubscriptionID:    cfg.TLS.DNS.SubscriptionID,
					ResourceGroupName: cfg.TLS.DNS.ResourceGroupName,
					ClientID:          cfg.TLS.DNS.ClientID,
				},
			},
			app.HTTPServer.Router(),
			logger,
		)
		if err != nil {
			return nil, fmt.Errorf("initializing TLS: %w", err)
		}
		app.TLSServer = tlsServer
	}

	// Watch the import directory for region files
	if cfg.Import.Path != "" {
		w, err := watcher.New(
			watcher.Config{
				Paths:    []string{cfg.Import.Path},
				Debounce: cfg.Import.Debounce,
				Filter:   storage.IsRegionFile,
			},
			app.handleFileEvent,
			logger,
		)
		if err != nil {
			logger.Warn("failed to initialize file watcher", "error", err)
		} else {
			app.Watcher = w
		}
	}

	return app, nil
}

// Start starts all application components. It blocks until the HTTP server
// stops.
func (a *App) Start(ctx context.Context) error {
	// Restore the regions of the previous session
	if err := a.Registry.Restore(ctx); err != nil {
		a.Logger.Warn("failed to restore session regions", "error", err)
	}

	if a.Watcher != nil {
		if err := a.Watcher.Start(ctx); err != nil {
			a.Logger.Warn("failed to start file watcher", "error", err)
		}
	}

	if a.SyncService != nil {
		a.SyncService.Start(ctx)
	}

	if a.MetricsServer != nil {
		go func() {
			if err := a.MetricsServer.Start(); err != nil {
				a.Logger.Error("metrics server error", "error", err)
			}
		}()
	}

	if a.TLSServer != nil {
		if err := a.TLSServer.ManageCertificates(ctx); err != nil {
			return err
		}
		return a.TLSServer.ListenAndServe(a.Config.Server.Address())
	}
	return a.HTTPServer.Start()
}

// Shutdown gracefully shuts down all components.
func (a *App) Shutdown(ctx context.Context) error {
	a.Logger.Info("shutting down application")

	if a.Watcher != nil {
		_ = a.Watcher.Stop()
	}

	if a.SyncService != nil {
		a.SyncService.Stop()
	}

	if a.MetricsServer != nil {
		if err := a.MetricsServer.Shutdown(ctx); err != nil {
			a.Logger.Error("metrics server shutdown error", "error", err)
		}
	}

	var errs []error
	if a.TLSServer != nil {
		if err := a.TLSServer.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("TLS server: %w", err))
		}
	} else if err := a.HTTPServer.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("HTTP server: %w", err))
	}

	if err := a.shutdownTracer(ctx); err != nil {
		errs = append(errs, fmt.Errorf("tracer: %w", err))
	}
	return errors.Join(errs...)
}

// handleFileEvent replays region files dropped into the import directory.
func (a *App) handleFileEvent(ctx context.Context, event watcher.Event) error {
	a.Logger.Info("file event", "path", event.Path, "operation", event.Operation.String())

	switch event.Operation {
	case watcher.OpCreate, watcher.OpModify:
		n, err := a.Registry.LoadFile(ctx, event.Path, domain.ProvenanceImported)
		if err != nil {
			return err
		}
		a.Logger.Info("imported region file", "path", event.Path, "regions", n)

	case watcher.OpDelete:
		if n := a.Registry.UnloadFile(ctx, event.Path); n > 0 {
			a.Logger.Info("removed regions of deleted file", "path", event.Path, "regions", n)
		}
	}
	return nil
}

// initStorage initializes the session restore source. Type "none" returns
// a nil storage.
func initStorage(ctx context.Context, cfg config.StorageConfig) (output.ObjectStorage, error) {
	switch cfg.Type {
	case "", "none":
		return nil, nil

	case "local":
		return storage.NewLocalStorage(cfg.LocalPath), nil

	case "s3":
		return storage.NewS3Storage(ctx, storage.S3Config{
			Bucket:          cfg.S3.Bucket,
			Region:          cfg.S3.Region,
			Prefix:          cfg.S3.Prefix,
			Endpoint:        cfg.S3.Endpoint,
			AccessKeyID:     cfg.S3.AccessKeyID,
			SecretAccessKey: cfg.S3.SecretAccessKey,
		})

	case "azure":
		return storage.NewAzureStorage(storage.AzureConfig{
			Container:        cfg.Azure.Container,
			AccountName:      cfg.Azure.AccountName,
			AccountKey:       cfg.Azure.AccountKey,
			ConnectionString: cfg.Azure.ConnectionString,
			Prefix:           cfg.Azure.Prefix,
		})

	case "http":
		return storage.NewHTTPStorage(storage.HTTPConfig{
			BaseURL:   cfg.HTTP.BaseURL,
			IndexFile: cfg.HTTP.IndexFile,
			Timeout:   cfg.HTTP.Timeout,
			Username:  cfg.HTTP.Username,
			Password:  cfg.HTTP.Password,
		}), nil

	default:
		return nil, fmt.Errorf("unknown storage type: %s", cfg.Type)
	}
}
