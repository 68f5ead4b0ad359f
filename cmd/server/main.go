package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rayberirondelsol/card-game-engine-sub000/internal/config"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/engine"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/repository"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/room"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/server"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/session"
	"github.com/rayberirondelsol/card-game-engine-sub000/internal/snapshot"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	configPath = flag.String("config", "config/config.yaml", "path to configuration file")
	version    = "dev" // set via ldflags during build
)

func main() {
	flag.Parse()

	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger, err := initLogger(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("starting tabletop server",
		zap.String("version", version),
		zap.String("config", *configPath),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Set up signal handling
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Initialize database. Persistence is optional: without a database the
	// server still runs, rooms just don't survive a restart.
	var (
		db        *repository.DB
		setups    server.SetupStore
		snapStore *repository.SnapshotRepository
	)
	if cfg.Database.URL != "" {
		db, err = repository.NewDB(ctx, cfg.Database, logger)
		if err != nil {
			logger.Fatal("failed to connect to database", zap.Error(err))
		}
		defer db.Close()

		if err := db.EnsureSchema(ctx); err != nil {
			logger.Fatal("failed to ensure database schema", zap.Error(err))
		}

		// Log database stats
		stats := db.Stats()
		logger.Info("database connection pool initialized",
			zap.Int32("total_conns", stats.TotalConns()),
			zap.Int32("idle_conns", stats.IdleConns()),
		)

		setups = repository.NewSetupRepository(db)
		snapStore = repository.NewSnapshotRepository(db)
	} else {
		logger.Warn("no database configured; rooms will not survive a restart")
	}

	// Initialize room registry
	registry := room.NewRegistry(logger)
	logger.Info("room registry initialized")

	if snapStore != nil {
		rehydrateRooms(ctx, registry, snapStore, logger)
	}

	// Initialize host migration supervisor
	supervisor := room.NewHostSupervisor(registry, cfg.Room.HostGracePeriod, logger)
	logger.Info("host supervisor initialized",
		zap.Duration("grace_period", cfg.Room.HostGracePeriod),
	)

	// Initialize action processor
	processor := engine.NewProcessor(logger)

	// Initialize session manager
	sessions := session.NewManager(registry, processor, supervisor, cfg.Server.HeartbeatInterval, logger)
	logger.Info("session manager initialized",
		zap.Duration("heartbeat_interval", cfg.Server.HeartbeatInterval),
	)

	// Start snapshot scheduler
	var scheduler *snapshot.Scheduler
	if snapStore != nil {
		scheduler = snapshot.NewScheduler(registry, snapStore, cfg.Room.SnapshotInterval, logger)
		go scheduler.Run(ctx)
		logger.Info("snapshot scheduler started",
			zap.Duration("interval", cfg.Room.SnapshotInterval),
		)
	}

	// Start abandoned-room janitor
	go registry.CleanupAbandonedRooms(ctx, cfg.Room.CleanupInterval, cfg.Room.AbandonedTTL)

	srv := server.NewServer(registry, processor, sessions, supervisor, setups, scheduler, cfg.Room.HandSize, logger)

	httpServer := &http.Server{
		Addr:    cfg.Server.Address,
		Handler: srv.Handler(),
	}

	// Start HTTP server (lifecycle API + websocket endpoint)
	serveErr := make(chan error, 1)
	go func() {
		logger.Info("http server listening", zap.String("address", cfg.Server.Address))
		serveErr <- httpServer.ListenAndServe()
	}()

	// Wait for termination signal
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", zap.String("signal", sig.String()))
	case err := <-serveErr:
		if !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}

	// Graceful shutdown
	logger.Info("shutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown incomplete", zap.Error(err))
	}

	// Close all active sessions, then take a last snapshot of every room
	sessions.CloseAll()
	supervisor.Shutdown()

	if scheduler != nil {
		scheduler.Drain(shutdownCtx)
	}

	cancel()
	logger.Info("tabletop server stopped")
}

// rehydrateRooms restores active rooms from their last persisted snapshot.
// Players come back disconnected and rebind over the live channel with
// their original ids.
func rehydrateRooms(ctx context.Context, registry *room.Registry, store *repository.SnapshotRepository, logger *zap.Logger) {
	snaps, err := store.ListActive(ctx)
	if err != nil {
		logger.Error("failed to list room snapshots", zap.Error(err))
		return
	}

	for _, snap := range snaps {
		r, err := registry.CreateRoomWithCode(snap.RoomCode, snap.GameID, "")
		if err != nil {
			logger.Warn("skipping snapshot for existing room code",
				zap.String("room_code", snap.RoomCode),
			)
			continue
		}
		r.Restore(room.Status(snap.Status), snap.Players, snap.Zones, snap.Board)
		logger.Info("room rehydrated",
			zap.String("room_code", snap.RoomCode),
			zap.Int("players", len(snap.Players)),
			zap.Time("snapshot_at", snap.UpdatedAt),
		)
	}
}

// initLogger initializes the zap logger based on configuration
func initLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	switch cfg.Level {
	case "debug":
		level = zapcore.DebugLevel
	case "info":
		level = zapcore.InfoLevel
	case "warn":
		level = zapcore.WarnLevel
	case "error":
		level = zapcore.ErrorLevel
	default:
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}

	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
