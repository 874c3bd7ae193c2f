package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"noteflare/internal/api"
	"noteflare/internal/config"
	"noteflare/internal/metrics"
	"noteflare/internal/models"
	"noteflare/internal/repositories"
	"noteflare/internal/room_management"
	"noteflare/internal/routers"
	"noteflare/internal/session"
	"noteflare/internal/utils"
)

var (
	listenAndServe = func(srv *http.Server) error { return srv.ListenAndServe() }
	exitFunc       = defaultExit
	exit           = os.Exit

	shutdownTimeout = 10 * time.Second
)

func defaultExit(err error) {
	log.Printf("noteflare: %v", err)
	exit(1)
}

func openDatabase(cfg *config.Config) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "postgres":
		dialector = postgres.Open(cfg.DatabaseURL)
	default:
		dialector = sqlite.Open(cfg.DatabaseURL)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := models.AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return db, nil
}

// startRoomActivity connects to Redis when configured. A Redis outage at
// startup only disables activity publishing; the hub itself never needs it.
func startRoomActivity(ctx context.Context, cfg *config.Config, lg *utils.Logger) *room_management.RoomManager {
	if cfg.RedisAddr == "" {
		return nil
	}
	rm := room_management.NewRoomManager(cfg.RedisAddr, cfg.RoomEventsChannel, lg)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rm.Ping(pingCtx); err != nil {
		lg.Warn("redis unavailable, room activity disabled", "addr", cfg.RedisAddr, "error", err.Error())
		_ = rm.Close()
		return nil
	}
	go func() {
		err := rm.Subscribe(ctx, func(ev models.RoomEvent) {
			lg.Debug("room activity from peer", "instanceId", ev.InstanceID, "type", ev.Type, "documentId", ev.DocumentID, "members", ev.Members)
		})
		if err != nil {
			lg.Warn("room activity subscription ended", "error", err.Error())
		}
	}()
	return rm
}

func run(ctx context.Context) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return err
	}
	lg, err := utils.NewLoggerWithLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer func() { _ = lg.Sync() }()

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	if sqlDB, err := db.DB(); err == nil {
		defer sqlDB.Close()
	}

	observers := session.Observers{metrics.NewHubObserver()}
	var activity api.RoomActivitySource
	if rm := startRoomActivity(ctx, cfg, lg); rm != nil {
		defer rm.Close()
		observers = append(observers, rm)
		activity = rm
	}

	hub := session.NewHub(lg, observers)
	handler := routers.New(routers.Deps{
		Log: lg,
		Hub: hub,
		ClientOptions: session.ClientOptions{
			SendBuffer:      cfg.WSSendBuffer,
			WriteTimeout:    cfg.WSWriteTimeout,
			PingInterval:    cfg.WSPingInterval,
			MaxMessageBytes: cfg.WSMaxMessageBytes,
		},
		Users:       &repositories.UserRepository{DB: db},
		Notes:       &repositories.NoteRepository{DB: db},
		JWTSecret:   cfg.JWTSecret,
		FrontendURL: cfg.FrontendURL,
		Activity:    activity,
	})

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		lg.Info("noteflare listening", "addr", srv.Addr, "dbDriver", cfg.DBDriver, "redis", activity != nil)
		errCh <- listenAndServe(srv)
	}()

	select {
	case err := <-errCh:
		hub.Shutdown()
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	lg.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	// hijacked websockets are invisible to Shutdown
	hub.Shutdown()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := run(ctx); err != nil {
		exitFunc(err)
	}
}
