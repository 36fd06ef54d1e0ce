package config

import (
	"errors"
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
	Uploads    UploadsConfig
	Storage    StorageConfig
	Processor  ProcessorConfig
	Extraction ExtractionConfig
	Downloads  DownloadsConfig
	Analytics  AnalyticsConfig
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

type JWTConfig struct {
	Secret string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// UploadsConfig bounds what File Admission accepts.
type UploadsConfig struct {
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// StorageConfig selects and parameterises the object storage backend.
type StorageConfig struct {
	Driver      string // "local" or "s3"
	BaseDir     string
	S3Bucket    string
	S3Region    string
	S3AccessKey string
	S3SecretKey string
}

// ProcessorConfig bounds a single processor pass and governs the batch lease.
type ProcessorConfig struct {
	MaxBatchesPerRun   int
	MaxDocsPerBatchRun int
	LeaseTTL           time.Duration
	PollEnabled        bool
	PollInterval       time.Duration
	TriggerToken       string
}

// ExtractionConfig points at the external extraction engine.
type ExtractionConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
}

// DownloadsConfig governs signed document download URLs.
type DownloadsConfig struct {
	Secret string
	TTL    time.Duration
}

// AnalyticsConfig toggles the event sink.
type AnalyticsConfig struct {
	Enabled bool
	Workers int
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
		if !errors.As(err, &notFound) {
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
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{Secret: v.GetString("JWT_SECRET")}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	maxFileSize := v.GetInt64("MAX_FILE_SIZE_BYTES")
	if maxFileSize <= 0 {
		maxFileSize = 10 * 1024 * 1024
	}
	cfg.Uploads = UploadsConfig{
		MaxFileSizeBytes: maxFileSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("UPLOAD_ALLOWED_MIME_TYPES")),
	}

	cfg.Storage = StorageConfig{
		Driver:      v.GetString("STORAGE_DRIVER"),
		BaseDir:     v.GetString("STORAGE_DIR"),
		S3Bucket:    v.GetString("S3_BUCKET"),
		S3Region:    v.GetString("S3_REGION"),
		S3AccessKey: v.GetString("S3_ACCESS_KEY"),
		S3SecretKey: v.GetString("S3_SECRET_KEY"),
	}

	cfg.Processor = ProcessorConfig{
		MaxBatchesPerRun:   v.GetInt("MAX_BATCHES_PER_RUN"),
		MaxDocsPerBatchRun: v.GetInt("MAX_DOCS_PER_BATCH_RUN"),
		LeaseTTL:           parseDuration(v.GetString("PROCESSOR_LEASE_TTL"), 10*time.Minute),
		PollEnabled:        v.GetBool("PROCESSOR_POLL_ENABLED"),
		PollInterval:       parseDuration(v.GetString("PROCESSOR_POLL_INTERVAL"), time.Minute),
		TriggerToken:       v.GetString("PROCESSOR_TRIGGER_TOKEN"),
	}

	cfg.Extraction = ExtractionConfig{
		URL:     v.GetString("EXTRACTION_URL"),
		APIKey:  v.GetString("EXTRACTION_API_KEY"),
		Timeout: parseDuration(v.GetString("EXTRACTION_TIMEOUT"), 60*time.Second),
	}

	cfg.Downloads = DownloadsConfig{
		Secret: v.GetString("DOWNLOAD_URL_SECRET"),
		TTL:    parseDuration(v.GetString("DOWNLOAD_URL_TTL"), 15*time.Minute),
	}

	cfg.Analytics = AnalyticsConfig{
		Enabled: v.GetBool("ENABLE_ANALYTICS"),
		Workers: v.GetInt("ANALYTICS_WORKERS"),
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
	v.SetDefault("DB_NAME", "parsepoint")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("MAX_FILE_SIZE_BYTES", 10*1024*1024)
	v.SetDefault("UPLOAD_ALLOWED_MIME_TYPES", "application/pdf,image/jpeg,image/png")

	v.SetDefault("STORAGE_DRIVER", "local")
	v.SetDefault("STORAGE_DIR", "./uploads")
	v.SetDefault("S3_BUCKET", "")
	v.SetDefault("S3_REGION", "")
	v.SetDefault("S3_ACCESS_KEY", "")
	v.SetDefault("S3_SECRET_KEY", "")

	v.SetDefault("MAX_BATCHES_PER_RUN", 5)
	v.SetDefault("MAX_DOCS_PER_BATCH_RUN", 10)
	v.SetDefault("PROCESSOR_LEASE_TTL", "10m")
	v.SetDefault("PROCESSOR_POLL_ENABLED", false)
	v.SetDefault("PROCESSOR_POLL_INTERVAL", "1m")
	v.SetDefault("PROCESSOR_TRIGGER_TOKEN", "")

	v.SetDefault("EXTRACTION_URL", "http://localhost:9090/extract")
	v.SetDefault("EXTRACTION_API_KEY", "")
	v.SetDefault("EXTRACTION_TIMEOUT", "60s")

	v.SetDefault("DOWNLOAD_URL_SECRET", "dev_download_secret")
	v.SetDefault("DOWNLOAD_URL_TTL", "15m")

	v.SetDefault("ENABLE_ANALYTICS", false)
	v.SetDefault("ANALYTICS_WORKERS", 1)
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
