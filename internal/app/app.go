package app

import (
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/noah-isme/flightwx-scheduler/internal/integration"
	"github.com/noah-isme/flightwx-scheduler/internal/repository"
	"github.com/noah-isme/flightwx-scheduler/internal/service"
	"github.com/noah-isme/flightwx-scheduler/pkg/cache"
	"github.com/noah-isme/flightwx-scheduler/pkg/clock"
	"github.com/noah-isme/flightwx-scheduler/pkg/config"
	"github.com/noah-isme/flightwx-scheduler/pkg/database"
	"github.com/noah-isme/flightwx-scheduler/pkg/jobs"
)

const weatherCachePrefix = "flightwx:"

// App holds the wired services of the scheduler core.
type App struct {
	DB      *sqlx.DB
	Metrics *service.MetricsService

	Weather       *service.WeatherRouter
	Checks        *service.WeatherCheckService
	Options       *service.RescheduleOptionService
	Reschedule    *service.RescheduleService
	Notifications *service.NotificationService
	WeatherChecks *repository.WeatherCheckRepository

	notifyQueue *jobs.Queue
	closers     []func() error
	logger      *zap.Logger
}

// New connects to the backing stores and wires every service from cfg.
func New(cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := database.NewPostgres(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	a := &App{DB: db, Metrics: service.NewMetricsService(), logger: logger}
	a.closers = append(a.closers, db.Close)

	clk := clock.Real{}

	var weatherCache service.WeatherCache
	switch cfg.Weather.CacheBackend {
	case config.CacheBackendRedis:
		client, err := cache.NewRedis(cfg.Redis)
		if err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		redisCache := repository.NewWeatherCacheRepository(client, weatherCachePrefix, logger)
		weatherCache = redisCache
		a.closers = append(a.closers, redisCache.Close)
	default:
		weatherCache = service.NewMemoryWeatherCache(cfg.Weather.CacheMaxEntries, clk)
	}

	highRes := integration.NewRateLimitedWeatherProvider(
		integration.NewOpenMeteoClient(cfg.Weather.HighResBaseURL, cfg.Weather.HighResModel, cfg.Weather.Timeout),
		cfg.Weather.RateLimitPerSec, cfg.Weather.RateLimitBurst)
	forecast := integration.NewRateLimitedWeatherProvider(
		integration.NewOpenWeatherMapClient(cfg.Weather.ForecastBaseURL, cfg.Weather.ForecastAPIKey, cfg.Weather.Timeout),
		cfg.Weather.RateLimitPerSec, cfg.Weather.RateLimitBurst)

	a.Weather = service.NewWeatherRouter(highRes, forecast, weatherCache, service.WeatherRouterConfig{
		HighResLeadTime: cfg.Weather.HighResLeadTime,
		CacheTTL:        cfg.Weather.CacheTTL,
		Timeout:         cfg.Weather.Timeout,
	}, clk, a.Metrics, logger.Named("weather"))

	var notifier service.Notifier = integration.NewLogNotifier(logger.Named("notifier"))
	if cfg.Notifier.WebhookURL != "" {
		notifier = integration.NewWebhookNotifier(cfg.Notifier.WebhookURL, cfg.Notifier.Timeout)
	}
	a.Notifications = service.NewNotificationService(notifier, cfg.Notifier.Timeout, a.Metrics, logger.Named("notifications"))
	a.notifyQueue = jobs.NewQueue("notifications", a.Notifications.Handle, jobs.QueueConfig{
		Workers:    cfg.Notifier.Workers,
		BufferSize: cfg.Notifier.BufferSize,
		MaxRetries: -1,
		Timeout:    cfg.Notifier.Timeout,
		Logger:     logger.Named("jobs"),
	})
	a.Notifications.AttachQueue(a.notifyQueue)

	bookings := repository.NewBookingRepository(db)
	requests := repository.NewRescheduleRequestRepository(db)
	a.WeatherChecks = repository.NewWeatherCheckRepository(db)
	validate := validator.New()

	a.Checks = service.NewWeatherCheckService(db, bookings, a.WeatherChecks, a.Weather,
		integration.NewAirportDirectory(cfg.Airport.BaseURL, cfg.Airport.Timeout),
		a.Notifications, a.Metrics, clk, service.WeatherCheckConfig{
			Horizon:            cfg.Sweep.Horizon,
			InteractiveHorizon: cfg.Sweep.InteractiveHorizon,
			Concurrency:        cfg.Sweep.Concurrency,
			LookupTimeout:      cfg.Airport.Timeout,
		}, logger.Named("weather_check"))

	assistant := integration.NewOpenAIAssistant(cfg.Assistant.BaseURL, cfg.Assistant.APIKey, cfg.Assistant.Model, cfg.Assistant.Timeout)
	a.Options = service.NewRescheduleOptionService(a.Weather, assistant, bookings, validate, clk, service.RescheduleOptionConfig{
		Horizon: cfg.Sweep.InteractiveHorizon,
		Timeout: cfg.Assistant.Timeout,
	}, logger.Named("reschedule_options"))
	a.Reschedule = service.NewRescheduleService(db, bookings, requests, a.Options, a.Weather, a.Notifications, validate, clk, logger.Named("reschedule"))

	return a, nil
}

// Start launches background workers.
func (a *App) Start(ctx context.Context) {
	a.notifyQueue.Start(ctx)
}

// Shutdown drains pending notifications, then closes connections.
func (a *App) Shutdown(ctx context.Context) error {
	if err := a.notifyQueue.Drain(ctx); err != nil {
		a.logger.Warn("notification queue not drained", zap.Error(err))
	}
	a.notifyQueue.Stop()
	return a.Close()
}

// Close releases connections in reverse order of acquisition.
func (a *App) Close() error {
	var first error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	a.closers = nil
	return first
}
