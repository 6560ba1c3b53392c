package config

import (
	"errors"
	"fmt"
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

// Storage drivers supported by the enrollment ledger.
const (
	StoragePostgres = "postgres"
	StorageMemory   = "memory"
)

// Seat policies controlling when a batch seat is counted against capacity.
const (
	SeatPolicyReserveOnCreate = "reserve_on_create"
	SeatPolicyReserveOnVerify = "reserve_on_verify"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Storage    StorageConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Enrollment EnrollmentConfig
	Dashboard  DashboardConfig
	Exports    ExportsConfig
}

// StorageConfig selects the ledger backend.
type StorageConfig struct {
	Driver string
	// SeedFile optionally preloads the memory driver with catalog data.
	SeedFile string
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
	// TxMaxRetries bounds automatic retries of a ledger transaction on transient failures.
	TxMaxRetries int
	TxRetryDelay time.Duration
	TxTimeout    time.Duration
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Issuer     string
	Expiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// EnrollmentConfig tunes the seat reservation and payment review workflow.
type EnrollmentConfig struct {
	SeatPolicy          string
	ReviewSLA           time.Duration
	ReviewSweepInterval time.Duration
	SweepWorkers        int
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// ExportsConfig toggles roster exports.
type ExportsConfig struct {
	Enabled bool
	MaxRows int
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
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	return fromViper(v)
}

func fromViper(v *viper.Viper) (*Config, error) {
	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")

	cfg.Storage = StorageConfig{
		Driver:   strings.ToLower(strings.TrimSpace(v.GetString("STORAGE_DRIVER"))),
		SeedFile: v.GetString("MEMORY_SEED_FILE"),
	}

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
		TxMaxRetries: v.GetInt("TX_MAX_RETRIES"),
		TxRetryDelay: parseDuration(v.GetString("TX_RETRY_BACKOFF"), 50*time.Millisecond),
		TxTimeout:    parseDuration(v.GetString("TX_TIMEOUT"), 5*time.Second),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("ENABLE_REDIS"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Issuer:     v.GetString("JWT_ISSUER"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Enrollment = EnrollmentConfig{
		SeatPolicy:          strings.ToLower(strings.TrimSpace(v.GetString("SEAT_POLICY"))),
		ReviewSLA:           parseDuration(v.GetString("REVIEW_SLA"), 0),
		ReviewSweepInterval: parseDuration(v.GetString("REVIEW_SWEEP_INTERVAL"), 15*time.Minute),
		SweepWorkers:        v.GetInt("REVIEW_SWEEP_WORKERS"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Exports = ExportsConfig{
		Enabled: v.GetBool("ENABLE_EXPORTS"),
		MaxRows: v.GetInt("EXPORT_MAX_ROWS"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Driver {
	case StoragePostgres, StorageMemory:
	default:
		return fmt.Errorf("unsupported STORAGE_DRIVER %q", c.Storage.Driver)
	}
	switch c.Enrollment.SeatPolicy {
	case SeatPolicyReserveOnCreate, SeatPolicyReserveOnVerify:
	default:
		return fmt.Errorf("unsupported SEAT_POLICY %q", c.Enrollment.SeatPolicy)
	}
	if c.Env == EnvProduction && c.JWT.Secret == "dev_secret" {
		return errors.New("JWT_SECRET must be set in production")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("STORAGE_DRIVER", StoragePostgres)
	v.SetDefault("MEMORY_SEED_FILE", "")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "training_portal")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("TX_MAX_RETRIES", 3)
	v.SetDefault("TX_RETRY_BACKOFF", "50ms")
	v.SetDefault("TX_TIMEOUT", "5s")

	v.SetDefault("ENABLE_REDIS", true)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "training-portal")
	v.SetDefault("JWT_EXPIRATION", "24h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("SEAT_POLICY", SeatPolicyReserveOnCreate)
	v.SetDefault("REVIEW_SLA", "0")
	v.SetDefault("REVIEW_SWEEP_INTERVAL", "15m")
	v.SetDefault("REVIEW_SWEEP_WORKERS", 1)

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("ENABLE_EXPORTS", false)
	v.SetDefault("EXPORT_MAX_ROWS", 5000)
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
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

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
