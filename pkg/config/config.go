package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database DatabaseConfig
	Redis    RedisConfig
	Log      LogConfig
	Metrics  MetricsConfig
	Conduct  ConductConfig
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

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// ConductConfig groups the scoring engine settings.
type ConductConfig struct {
	CacheEnabled     bool
	CacheTTL         time.Duration
	MeasuresFile     string
	StrictMeasures   bool
	SchedulerEnabled bool
	DailyRunAt       string
	Timezone         string
	QueueRetries     int
	QueueRetryDelay  time.Duration
}

// Location resolves the configured timezone, falling back to UTC.
func (c ConductConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
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
		if !errors.As(err, &notFound) && !errors.Is(err, fs.ErrNotExist) {
			return nil, err
		}
	}

	return fromViper(v), nil
}

func fromViper(v *viper.Viper) *Config {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

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

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Conduct = ConductConfig{
		CacheEnabled:     v.GetBool("CONDUCT_CACHE_ENABLED"),
		CacheTTL:         parseDuration(v.GetString("CONDUCT_CACHE_TTL"), 10*time.Minute),
		MeasuresFile:     v.GetString("CONDUCT_MEASURES_FILE"),
		StrictMeasures:   v.GetBool("CONDUCT_STRICT_MEASURES"),
		SchedulerEnabled: v.GetBool("CONDUCT_SCHEDULER_ENABLED"),
		DailyRunAt:       parseClock(v.GetString("CONDUCT_DAILY_RUN_AT"), "23:59"),
		Timezone:         v.GetString("CONDUCT_TIMEZONE"),
		QueueRetries:     v.GetInt("CONDUCT_QUEUE_RETRIES"),
		QueueRetryDelay:  parseDuration(v.GetString("CONDUCT_QUEUE_RETRY_DELAY"), 30*time.Second),
	}

	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "sma_conduct")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("CONDUCT_CACHE_ENABLED", false)
	v.SetDefault("CONDUCT_CACHE_TTL", "10m")
	v.SetDefault("CONDUCT_MEASURES_FILE", "")
	v.SetDefault("CONDUCT_STRICT_MEASURES", false)
	v.SetDefault("CONDUCT_SCHEDULER_ENABLED", false)
	v.SetDefault("CONDUCT_DAILY_RUN_AT", "23:59")
	v.SetDefault("CONDUCT_TIMEZONE", "America/Sao_Paulo")
	v.SetDefault("CONDUCT_QUEUE_RETRIES", 3)
	v.SetDefault("CONDUCT_QUEUE_RETRY_DELAY", "30s")
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

// parseClock accepts an HH:MM wall-clock value.
func parseClock(raw, fallback string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return fallback
	}
	if _, err := time.Parse("15:04", raw); err != nil {
		return fallback
	}
	return raw
}
