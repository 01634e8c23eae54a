package main

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"net"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"github.com/parcelworks/parcelsync/pkg/adapters/connector"
	_ "github.com/parcelworks/parcelsync/pkg/adapters/connector/file"
	_ "github.com/parcelworks/parcelsync/pkg/adapters/connector/mssql"
	pgconn "github.com/parcelworks/parcelsync/pkg/adapters/connector/postgres"
	_ "github.com/parcelworks/parcelsync/pkg/adapters/connector/sqlite"
	"github.com/parcelworks/parcelsync/pkg/config"
	"github.com/parcelworks/parcelsync/pkg/database"
	"github.com/parcelworks/parcelsync/pkg/handlers"
	"github.com/parcelworks/parcelsync/pkg/repositories"
	"github.com/parcelworks/parcelsync/pkg/services"
	"github.com/parcelworks/parcelsync/pkg/sync"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	cfg, err := config.Load(Version)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := newLogger(cfg.Env)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("configuration loaded",
		zap.String("env", cfg.Env),
		zap.String("version", cfg.Version),
		zap.String("database", cfg.Database.Database),
		zap.Strings("table_order", cfg.Sync.TableOrder))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Internal store pool and migrations.
	db, err := database.NewConnection(ctx, &database.Config{
		URL:            cfg.Database.ConnectionString(),
		MaxConnections: cfg.Database.MaxConnections,
	})
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	migrationDB, err := sql.Open("pgx", cfg.Database.ConnectionString())
	if err != nil {
		logger.Fatal("Failed to open migration connection", zap.Error(err))
	}
	if err := database.RunMigrations(migrationDB, cfg.Database.MigrationsPath, logger); err != nil {
		logger.Fatal("Failed to run migrations", zap.Error(err))
	}
	_ = migrationDB.Close()

	// The engine also talks to the internal store through the same
	// connector surface as any external backend.
	store, err := pgconn.NewConnector(ctx, &pgconn.Config{
		Host:     cfg.Database.Host,
		Port:     cfg.Database.Port,
		Database: cfg.Database.Database,
		Username: cfg.Database.User,
		Password: cfg.Database.Password,
		SSLMode:  cfg.Database.SSLMode,
	})
	if err != nil {
		logger.Fatal("Failed to open internal store connector", zap.Error(err))
	}
	defer func() { _ = store.Close() }()

	manager := connector.NewManager(connector.ManagerConfig{
		TTLMinutes:     cfg.Connector.TTLMinutes,
		ConnectTimeout: time.Duration(cfg.Connector.ConnectTimeoutSeconds) * time.Second,
	}, logger)
	defer func() { _ = manager.Close() }()

	// Repositories.
	jobRepo := repositories.NewJobRepository(db)
	logRepo := repositories.NewLogRepository(db)
	changeRepo := repositories.NewChangeRepository(db)
	conflictRepo := repositories.NewConflictRepository(db)
	auditRepo := repositories.NewAuditRepository(db)
	sourceRepo := repositories.NewDataSourceRepository(db)
	tableRepo := repositories.NewTableConfigRepository(db)
	settingsRepo := repositories.NewSettingsRepository(db)

	// Sync pipeline.
	loader := sync.NewLoader(cfg.Sync.BatchSize, logger)
	engine := sync.NewEngine(loader, tableRepo, settingsRepo, logRepo, cfg.Sync.TableOrder, logger.Named("engine"))
	upsyncer := sync.NewUpSyncer(changeRepo, conflictRepo, auditRepo, tableRepo, cfg.Sync.BatchSize, logger.Named("upsync"))
	resolver := sync.NewResolver(conflictRepo, changeRepo, auditRepo, logger.Named("resolver"))

	// Services.
	executor := services.NewSyncExecutor(sourceRepo, manager, store, engine, upsyncer, logger)
	dispatcher := services.NewDispatcher(jobRepo, executor, cfg.Sync.QueueCapacity, logger)
	dispatcher.Start()
	defer dispatcher.Stop()

	jobService := services.NewJobService(jobRepo, logRepo, dispatcher, logger)
	sourceService := services.NewSourceService(sourceRepo, tableRepo, manager, logger)
	conflictService := services.NewConflictService(conflictRepo, jobRepo, sourceRepo, manager, resolver, logger)
	healthService := services.NewHealthService(db, manager, sourceRepo, dispatcher, logger)

	if cfg.Scheduler.Enabled {
		scheduler := services.NewScheduler(sourceRepo, jobService, logger)
		if err := scheduler.Start(ctx); err != nil {
			logger.Fatal("Failed to start scheduler", zap.Error(err))
		}
		defer scheduler.Stop()
	}

	// HTTP surface.
	mux := http.NewServeMux()
	handlers.NewHealthHandler(cfg, logger).RegisterRoutes(mux)
	handlers.NewSyncHandler(jobService, conflictService, auditRepo, sourceService, healthService, logger).RegisterRoutes(mux)
	handlers.NewDataSourcesHandler(sourceService, logger).RegisterRoutes(mux)

	server := &http.Server{
		Addr:              net.JoinHostPort(cfg.BindAddr, cfg.Port),
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("starting parcelsync",
			zap.String("addr", server.Addr),
			zap.String("version", cfg.Version))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Server shutdown failed", zap.Error(err))
	}
}

func newLogger(env string) (*zap.Logger, error) {
	if env == "local" {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
