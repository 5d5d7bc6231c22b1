package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/app"
	"github.com/noah-isme/flightwx-scheduler/internal/handler"
	"github.com/noah-isme/flightwx-scheduler/internal/middleware"
	"github.com/noah-isme/flightwx-scheduler/pkg/config"
	"github.com/noah-isme/flightwx-scheduler/pkg/logger"
	reqidmiddleware "github.com/noah-isme/flightwx-scheduler/pkg/middleware/requestid"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	application, err := app.New(cfg, logr)
	if err != nil {
		logr.Fatal("failed to build application", zap.Error(err))
	}
	application.Start(context.Background())

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(middleware.Metrics(application.Metrics))
	handler.NewOpsHandler(application.Checks, application.WeatherChecks, application.DB, application.Metrics).Register(r)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logr.Sugar().Infow("ops server starting", "addr", srv.Addr, "env", cfg.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("ops server failed", "error", err)
		}
	}()

	if cfg.Sweep.Enabled {
		go runSweeps(ctx, application, cfg.Sweep.Interval, logr)
	} else {
		logr.Info("scheduled sweep disabled")
	}

	<-ctx.Done()
	logr.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Warn("ops server shutdown", zap.Error(err))
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		logr.Warn("application shutdown", zap.Error(err))
	}
}

// runSweeps checks upcoming flights immediately and then on every tick.
func runSweeps(ctx context.Context, application *app.App, interval time.Duration, logr *zap.Logger) {
	if interval <= 0 {
		interval = time.Hour
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		if _, err := application.Checks.CheckUpcomingFlights(ctx); err != nil {
			logr.Error("weather sweep failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
