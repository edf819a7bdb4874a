// Package app wires the dashboard service together and manages its lifecycle.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	httpapi "github.com/optiview/optiview/internal/api/http"
	"github.com/optiview/optiview/internal/catalog"
	"github.com/optiview/optiview/internal/config"
	"github.com/optiview/optiview/internal/export"
	"github.com/optiview/optiview/internal/logger"
	"github.com/optiview/optiview/internal/observability"
	"github.com/optiview/optiview/internal/server"
	"github.com/optiview/optiview/internal/session"
	"github.com/optiview/optiview/internal/snapshot"
	"github.com/optiview/optiview/internal/storage"
	"github.com/optiview/optiview/internal/study"
)

// statsWindow bounds how far back the usage summary looks.
const statsWindow = 24 * time.Hour

// App owns the shared resources and the HTTP server of the dashboard service.
type App struct {
	cfg *config.Config
	log *slog.Logger

	// Shared resources
	store    storage.ObjectStorage
	catalog  *catalog.Catalog
	sessions *session.Manager
	usage    *observability.UsageStats
	shutdown *server.ShutdownManager

	httpServer *http.Server

	// Lifecycle
	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New validates the configuration and prepares an App. No resources are
// opened until Start.
func New(cfg *config.Config) (*App, error) {
	cfg.Resolve()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("failed to create directories: %w", err)
	}

	return &App{
		cfg: cfg,
		log: logger.New(cfg.Logging.Verbose),
	}, nil
}

// Start opens shared resources and begins serving HTTP.
func (a *App) Start(ctx context.Context) error {
	a.mu.Lock()
	if a.running {
		a.mu.Unlock()
		return fmt.Errorf("app is already running")
	}
	a.running = true
	a.mu.Unlock()

	ctx, cancel := context.WithCancel(ctx)
	a.cancel = cancel

	if err := a.initSharedResources(ctx); err != nil {
		a.cleanup()
		return fmt.Errorf("failed to initialize shared resources: %w", err)
	}

	router := httpapi.NewRouter(httpapi.RouterConfig{
		Sessions:       a.sessions,
		Loader:         study.NewLoader(a.store, a.log, a.cfg.DelimiterRune(), a.cfg.Limits.MaxRows),
		Writer:         snapshot.NewWriter(a.log),
		Catalog:        a.catalog,
		Exporter:       export.NewExporter(a.store, a.log),
		Usage:          a.usage,
		Shutdown:       a.shutdown,
		SnapshotDir:    a.cfg.Snapshots.Dir,
		MetricsEnabled: a.cfg.Server.MetricsEnabled,
		Log:            a.log,
	})

	a.httpServer = &http.Server{
		Addr:         a.cfg.Server.Addr,
		Handler:      router,
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  a.cfg.Server.IdleTimeout,
	}

	// The server closes before the catalog: closers run in reverse order.
	a.shutdown.RegisterCloser(a.catalog)
	a.shutdown.RegisterCloser(server.CloserFunc(a.closeHTTPServer))

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.log.Info("http server listening", "addr", a.cfg.Server.Addr)
		if err := a.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.Error("http server failed", "error", err)
		}
	}()

	a.log.Info("optiview started",
		"data_dir", a.cfg.DataDir,
		"storage", a.cfg.Storage.Type,
		"max_sessions", a.cfg.Limits.MaxSessions,
	)
	return nil
}

// initSharedResources opens storage, the snapshot catalog, and the session
// manager.
func (a *App) initSharedResources(ctx context.Context) error {
	var err error

	switch a.cfg.Storage.Type {
	case "local":
		a.store, err = storage.NewLocalStorage(a.cfg.Storage.Path)
	case "s3":
		s3Cfg := storage.DefaultS3Config()
		if a.cfg.Storage.S3.Region != "" {
			s3Cfg.Region = a.cfg.Storage.S3.Region
		}
		if a.cfg.Storage.S3.Endpoint != "" {
			s3Cfg.Endpoint = a.cfg.Storage.S3.Endpoint
		}
		s3Cfg.UsePathStyle = a.cfg.Storage.S3.UsePathStyle
		a.store, err = storage.NewS3Storage(ctx, a.cfg.Storage.S3.Bucket, s3Cfg)
	default:
		return fmt.Errorf("unsupported storage type: %s", a.cfg.Storage.Type)
	}
	if err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}
	a.log.Info("storage initialized", "type", a.cfg.Storage.Type)

	a.catalog, err = catalog.New(a.cfg.Snapshots.CatalogPath, a.log)
	if err != nil {
		return fmt.Errorf("failed to open snapshot catalog: %w", err)
	}
	a.log.Info("snapshot catalog opened", "path", a.cfg.Snapshots.CatalogPath)

	a.sessions = session.NewManager(a.log, a.cfg.Limits.MaxSessions)
	a.usage = observability.NewUsageStats(statsWindow)
	a.shutdown = server.NewShutdownManager(server.ShutdownConfig{
		ShutdownTimeout: a.cfg.Server.ShutdownTimeout,
	}, a.log)

	return nil
}

func (a *App) closeHTTPServer() error {
	if a.httpServer == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	return a.httpServer.Shutdown(ctx)
}

// Stop runs the shutdown sequence and waits for the server goroutine.
// Safe to call after a signal-triggered shutdown has already run.
func (a *App) Stop(ctx context.Context) error {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return nil
	}
	a.running = false
	a.mu.Unlock()

	if a.cancel != nil {
		a.cancel()
	}

	var err error
	if a.shutdown != nil {
		err = a.shutdown.Shutdown(ctx, "stop requested")
	}

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(a.cfg.Server.ShutdownTimeout):
		a.log.Warn("timed out waiting for server goroutine")
	}

	a.cleanup()
	a.log.Info("optiview stopped")
	return err
}

// WaitForShutdown blocks until a termination signal arrives, then runs the
// shutdown sequence.
func (a *App) WaitForShutdown(ctx context.Context) error {
	return a.shutdown.ListenForSignals(ctx)
}

// cleanup releases resources that may have been opened before a failed start.
// After a completed shutdown the closers have already run and this is a no-op.
func (a *App) cleanup() {
	if a.shutdown != nil && a.shutdown.IsShuttingDown() {
		return
	}
	if a.catalog != nil {
		a.catalog.Close()
	}
}

// Addr returns the configured listen address.
func (a *App) Addr() string {
	return a.cfg.Server.Addr
}
