package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"auction-engine/internal/app"
	"auction-engine/internal/clock"
	"auction-engine/internal/config"
	"auction-engine/migrations"
	"auction-engine/utils"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg := config.Load()
	utils.SetLevel(cfg.LogLevel)
	gin.SetMode(gin.ReleaseMode)

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	stores, closeStores := openStores(cfg)
	defer closeStores()

	engine := app.New(cfg, stores, clock.NewSystem())

	schedDone := make(chan struct{})
	go func() {
		defer close(schedDone)
		if err := engine.Scheduler.Run(stopCtx); err != nil && !errors.Is(err, context.Canceled) {
			utils.Error("scheduler stopped", map[string]any{"error": err.Error()})
		}
	}()

	server := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           engine.Router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	srvErr := make(chan error, 1)
	go func() {
		srvErr <- server.ListenAndServe()
	}()
	utils.Info("auction server listening", map[string]any{"addr": cfg.Addr()})

	select {
	case err := <-srvErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			utils.Error("server error", map[string]any{"error": err.Error()})
		}
		stop()
	case <-stopCtx.Done():
		utils.Info("shutdown signal received, stopping server", nil)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
		utils.Error("server shutdown error", map[string]any{"error": err.Error()})
	}
	<-schedDone
	utils.Info("server stopped", nil)
}

// openStores connects to PostgreSQL when DATABASE_URL is set and falls back
// to in-process state otherwise.
func openStores(cfg config.Config) (app.Stores, func()) {
	if cfg.DatabaseURL == "" {
		utils.Warn("DATABASE_URL not set, using in-memory state", nil)
		return app.MemoryStores(), func() {}
	}

	startupCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	pool, err := pgxpool.New(startupCtx, cfg.DatabaseURL)
	if err != nil {
		utils.Fatal("connect to db", map[string]any{"error": err.Error()})
	}
	if err := pool.Ping(startupCtx); err != nil {
		pool.Close()
		utils.Fatal("db ping", map[string]any{"error": err.Error()})
	}
	if err := migrations.Apply(startupCtx, pool); err != nil {
		pool.Close()
		utils.Fatal("apply migrations", map[string]any{"error": err.Error()})
	}
	return app.PostgresStores(pool), pool.Close
}
