package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

// Weather cache backends.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

type Config struct {
	Env  string
	Port int

	Database  DatabaseConfig
	Redis     RedisConfig
	Log       LogConfig
	Weather   WeatherConfig
	Assistant AssistantConfig
	Airport   AirportConfig
	Notifier  NotifierConfig
	Sweep     SweepConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type LogConfig struct {
	Level  string
	Format string
}

// WeatherConfig configures upstream weather providers and the snapshot cache.
type WeatherConfig struct {
	HighResBaseURL  string
	HighResModel    string
	ForecastBaseURL string
	ForecastAPIKey  string
	Timeout         time.Duration
	HighResLeadTime time.Duration
	CacheBackend    string
	CacheTTL        time.Duration
	CacheMaxEntries int
	RateLimitPerSec float64
	RateLimitBurst  int
}

// AssistantConfig configures the generative assistant used for reschedule options.
type AssistantConfig struct {
	BaseURL string
	APIKey  string
	Model   string
	Timeout time.Duration
}

// AirportConfig configures the airport directory used for runway lookups.
type AirportConfig struct {
	BaseURL string
	Timeout time.Duration
}

// NotifierConfig configures outbound notification delivery.
type NotifierConfig struct {
	WebhookURL string
	Timeout    time.Duration
	Workers    int
	BufferSize int
}

// SweepConfig governs the periodic weather sweep.
type SweepConfig struct {
	Enabled            bool
	Interval           time.Duration
	Horizon            time.Duration
	InteractiveHorizon time.Duration
	Concurrency        int
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cacheBackend := strings.ToLower(strings.TrimSpace(v.GetString("WEATHER_CACHE_BACKEND")))
	if cacheBackend != CacheBackendRedis {
		cacheBackend = CacheBackendMemory
	}
	cfg.Weather = WeatherConfig{
		HighResBaseURL:  v.GetString("WEATHER_HIGHRES_BASE_URL"),
		HighResModel:    v.GetString("WEATHER_HIGHRES_MODEL"),
		ForecastBaseURL: v.GetString("WEATHER_FORECAST_BASE_URL"),
		ForecastAPIKey:  v.GetString("WEATHER_FORECAST_API_KEY"),
		Timeout:         parseDuration(v.GetString("WEATHER_TIMEOUT"), 5*time.Second),
		HighResLeadTime: parseDuration(v.GetString("WEATHER_HIGHRES_LEAD_TIME"), 96*time.Hour),
		CacheBackend:    cacheBackend,
		CacheTTL:        parseDuration(v.GetString("WEATHER_CACHE_TTL"), 30*time.Minute),
		CacheMaxEntries: v.GetInt("WEATHER_CACHE_MAX_ENTRIES"),
		RateLimitPerSec: v.GetFloat64("WEATHER_RATE_LIMIT_RPS"),
		RateLimitBurst:  v.GetInt("WEATHER_RATE_LIMIT_BURST"),
	}

	cfg.Assistant = AssistantConfig{
		BaseURL: v.GetString("ASSISTANT_BASE_URL"),
		APIKey:  v.GetString("ASSISTANT_API_KEY"),
		Model:   v.GetString("ASSISTANT_MODEL"),
		Timeout: parseDuration(v.GetString("ASSISTANT_TIMEOUT"), 5*time.Second),
	}

	cfg.Airport = AirportConfig{
		BaseURL: v.GetString("AIRPORT_DIRECTORY_URL"),
		Timeout: parseDuration(v.GetString("AIRPORT_DIRECTORY_TIMEOUT"), 5*time.Second),
	}

	cfg.Notifier = NotifierConfig{
		WebhookURL: v.GetString("NOTIFIER_WEBHOOK_URL"),
		Timeout:    parseDuration(v.GetString("NOTIFIER_TIMEOUT"), 5*time.Second),
		Workers:    v.GetInt("NOTIFIER_WORKERS"),
		BufferSize: v.GetInt("NOTIFIER_BUFFER_SIZE"),
	}

	cfg.Sweep = SweepConfig{
		Enabled:            v.GetBool("ENABLE_SWEEP"),
		Interval:           parseDuration(v.GetString("SWEEP_INTERVAL"), time.Hour),
		Horizon:            parseDuration(v.GetString("SWEEP_HORIZON"), 48*time.Hour),
		InteractiveHorizon: parseDuration(v.GetString("SWEEP_INTERACTIVE_HORIZON"), 7*24*time.Hour),
		Concurrency:        v.GetInt("SWEEP_CONCURRENCY"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8081)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "flight_schedule")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("WEATHER_HIGHRES_BASE_URL", "https://api.open-meteo.com/v1")
	v.SetDefault("WEATHER_HIGHRES_MODEL", "gfs_seamless")
	v.SetDefault("WEATHER_FORECAST_BASE_URL", "https://api.openweathermap.org/data/2.5")
	v.SetDefault("WEATHER_FORECAST_API_KEY", "")
	v.SetDefault("WEATHER_TIMEOUT", "5s")
	v.SetDefault("WEATHER_HIGHRES_LEAD_TIME", "96h")
	v.SetDefault("WEATHER_CACHE_BACKEND", CacheBackendMemory)
	v.SetDefault("WEATHER_CACHE_TTL", "30m")
	v.SetDefault("WEATHER_CACHE_MAX_ENTRIES", 100)
	v.SetDefault("WEATHER_RATE_LIMIT_RPS", 5)
	v.SetDefault("WEATHER_RATE_LIMIT_BURST", 5)

	v.SetDefault("ASSISTANT_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("ASSISTANT_API_KEY", "")
	v.SetDefault("ASSISTANT_MODEL", "gpt-4o-mini")
	v.SetDefault("ASSISTANT_TIMEOUT", "5s")

	v.SetDefault("AIRPORT_DIRECTORY_URL", "https://aviationweather.gov/api/data")
	v.SetDefault("AIRPORT_DIRECTORY_TIMEOUT", "5s")

	v.SetDefault("NOTIFIER_WEBHOOK_URL", "")
	v.SetDefault("NOTIFIER_TIMEOUT", "5s")
	v.SetDefault("NOTIFIER_WORKERS", 2)
	v.SetDefault("NOTIFIER_BUFFER_SIZE", 64)

	v.SetDefault("ENABLE_SWEEP", true)
	v.SetDefault("SWEEP_INTERVAL", "1h")
	v.SetDefault("SWEEP_HORIZON", "48h")
	v.SetDefault("SWEEP_INTERACTIVE_HORIZON", "168h")
	v.SetDefault("SWEEP_CONCURRENCY", 1)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}
