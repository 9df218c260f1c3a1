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

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	Cache      CacheConfig
	Metrics    MetricsConfig
	Media      MediaConfig
	Analysis   AnalysisConfig
	Settlement SettlementConfig
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
	AutoMigrate  bool
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret string
	Issuer string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles the Redis read-through cache for settlement detail.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// MetricsConfig toggles the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool
}

// MediaConfig points at the S3-compatible bucket holding submitted videos.
type MediaConfig struct {
	Endpoint   string
	AccessKey  string
	SecretKey  string
	Bucket     string
	Region     string
	Secure     bool
	PresignTTL time.Duration
}

// AnalysisConfig governs the external video analysis pipeline.
type AnalysisConfig struct {
	Enabled           bool
	APIKey            string
	Model             string
	Workers           int
	QueueBuffer       int
	QueueRetries      int
	MaxRetries        int
	BackoffBase       time.Duration
	RequestsPerMinute int
	StaleAfter        time.Duration
}

// SettlementConfig carries tax policy and statement branding.
type SettlementConfig struct {
	IncomeTaxBps      int64
	LocalTaxBps       int64
	CompanyName       string
	Currency          string
	SchedulerEnabled  bool
	SchedulerInterval time.Duration
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
		AutoMigrate:  v.GetBool("DB_AUTO_MIGRATE"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret: v.GetString("JWT_SECRET"),
		Issuer: v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 5*time.Minute),
	}

	cfg.Metrics = MetricsConfig{Enabled: v.GetBool("ENABLE_METRICS")}

	cfg.Media = MediaConfig{
		Endpoint:   trimScheme(v.GetString("MINIO_ENDPOINT")),
		AccessKey:  v.GetString("MINIO_ACCESS_KEY"),
		SecretKey:  v.GetString("MINIO_SECRET_KEY"),
		Bucket:     v.GetString("MINIO_BUCKET"),
		Region:     v.GetString("MINIO_REGION"),
		Secure:     v.GetBool("MINIO_SECURE"),
		PresignTTL: parseDuration(v.GetString("MINIO_PRESIGN_TTL"), time.Hour),
	}

	cfg.Analysis = AnalysisConfig{
		Enabled:           v.GetBool("ENABLE_ANALYSIS"),
		APIKey:            v.GetString("GEMINI_API_KEY"),
		Model:             v.GetString("GEMINI_MODEL"),
		Workers:           v.GetInt("ANALYSIS_WORKERS"),
		QueueBuffer:       v.GetInt("ANALYSIS_QUEUE_BUFFER"),
		QueueRetries:      v.GetInt("ANALYSIS_QUEUE_RETRIES"),
		MaxRetries:        v.GetInt("ANALYSIS_MAX_RETRIES"),
		BackoffBase:       parseDuration(v.GetString("ANALYSIS_BACKOFF_BASE"), 10*time.Second),
		RequestsPerMinute: v.GetInt("ANALYSIS_REQUESTS_PER_MINUTE"),
		StaleAfter:        parseDuration(v.GetString("ANALYSIS_STALE_AFTER"), 15*time.Minute),
	}

	cfg.Settlement = SettlementConfig{
		IncomeTaxBps:      v.GetInt64("SETTLEMENT_INCOME_TAX_BPS"),
		LocalTaxBps:       v.GetInt64("SETTLEMENT_LOCAL_TAX_BPS"),
		CompanyName:       v.GetString("COMPANY_NAME"),
		Currency:          v.GetString("SETTLEMENT_CURRENCY"),
		SchedulerEnabled:  v.GetBool("ENABLE_SETTLEMENT_SCHEDULER"),
		SchedulerInterval: parseDuration(v.GetString("SETTLEMENT_SCHEDULER_INTERVAL"), time.Hour),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "reelhub")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", false)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "5m")
	v.SetDefault("ENABLE_METRICS", true)

	v.SetDefault("MINIO_ENDPOINT", "localhost:9000")
	v.SetDefault("MINIO_ACCESS_KEY", "minioadmin")
	v.SetDefault("MINIO_SECRET_KEY", "minioadmin")
	v.SetDefault("MINIO_BUCKET", "submissions")
	v.SetDefault("MINIO_REGION", "us-east-1")
	v.SetDefault("MINIO_SECURE", false)
	v.SetDefault("MINIO_PRESIGN_TTL", "1h")

	v.SetDefault("ENABLE_ANALYSIS", false)
	v.SetDefault("GEMINI_API_KEY", "")
	v.SetDefault("GEMINI_MODEL", "gemini-2.0-flash")
	v.SetDefault("ANALYSIS_WORKERS", 2)
	v.SetDefault("ANALYSIS_QUEUE_BUFFER", 64)
	v.SetDefault("ANALYSIS_QUEUE_RETRIES", 2)
	v.SetDefault("ANALYSIS_MAX_RETRIES", 3)
	v.SetDefault("ANALYSIS_BACKOFF_BASE", "10s")
	v.SetDefault("ANALYSIS_REQUESTS_PER_MINUTE", 15)
	v.SetDefault("ANALYSIS_STALE_AFTER", "15m")

	v.SetDefault("SETTLEMENT_INCOME_TAX_BPS", 300)
	v.SetDefault("SETTLEMENT_LOCAL_TAX_BPS", 30)
	v.SetDefault("COMPANY_NAME", "ReelHub")
	v.SetDefault("SETTLEMENT_CURRENCY", "KRW")
	v.SetDefault("ENABLE_SETTLEMENT_SCHEDULER", false)
	v.SetDefault("SETTLEMENT_SCHEDULER_INTERVAL", "1h")
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

func trimScheme(endpoint string) string {
	endpoint = strings.TrimPrefix(endpoint, "http://")
	return strings.TrimPrefix(endpoint, "https://")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
