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

// Storage drivers.
const (
	StorageDriverLocal = "local"
	StorageDriverS3    = "s3"
)

// Mail drivers.
const (
	MailDriverSMTP = "smtp"
	MailDriverLog  = "log"
)

type Config struct {
	Env       string
	Port      int
	APIPrefix string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Cache         CacheConfig
	Storage       StorageConfig
	Mail          MailConfig
	Signature     SignatureConfig
	Compliance    ComplianceConfig
	Extraction    ExtractionConfig
	Notifications NotificationsConfig
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
	Secret            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// CacheConfig toggles Redis backed caching of catalog lookups.
type CacheConfig struct {
	Enabled bool
	TTL     time.Duration
}

// StorageConfig selects the upload backend and its limits.
type StorageConfig struct {
	Driver           string
	LocalDir         string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	CleanupInterval  time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
	S3Bucket         string
	S3Region         string
	S3AccessKeyID    string
	S3SecretKey      string
}

// MailConfig configures outbound email dispatch.
type MailConfig struct {
	Driver      string
	Host        string
	Port        int
	Username    string
	Password    string
	FromAddress string
	FromName    string
}

// SignatureConfig holds e-signature link settings.
type SignatureConfig struct {
	Origin string
}

// ComplianceConfig tunes the re-evaluation window.
type ComplianceConfig struct {
	LookbackDays    int
	EligibilityDays int
}

// ExtractionConfig configures LLM backed document extraction.
type ExtractionConfig struct {
	Enabled bool
	APIKey  string
	Model   string
	BaseURL string
	Timeout time.Duration
}

// NotificationsConfig sizes the background notification queue.
type NotificationsConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
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
		Secret:            v.GetString("JWT_SECRET"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Cache = CacheConfig{
		Enabled: v.GetBool("ENABLE_CACHE"),
		TTL:     parseDuration(v.GetString("CACHE_TTL"), 10*time.Minute),
	}

	maxUpload := v.GetInt64("STORAGE_MAX_FILE_SIZE")
	if maxUpload <= 0 {
		maxUpload = 20 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Driver:           strings.ToLower(v.GetString("STORAGE_DRIVER")),
		LocalDir:         v.GetString("STORAGE_LOCAL_DIR"),
		SignedURLSecret:  v.GetString("STORAGE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("STORAGE_SIGNED_URL_TTL"), 24*time.Hour),
		CleanupInterval:  parseDuration(v.GetString("STORAGE_CLEANUP_INTERVAL"), 0),
		MaxFileSizeBytes: maxUpload,
		AllowedMIMEs:     splitAndTrim(v.GetString("STORAGE_ALLOWED_MIME_TYPES")),
		S3Bucket:         v.GetString("AWS_S3_BUCKET"),
		S3Region:         v.GetString("AWS_REGION"),
		S3AccessKeyID:    v.GetString("AWS_ACCESS_KEY_ID"),
		S3SecretKey:      v.GetString("AWS_SECRET_ACCESS_KEY"),
	}

	cfg.Mail = MailConfig{
		Driver:      strings.ToLower(v.GetString("MAIL_DRIVER")),
		Host:        v.GetString("SMTP_HOST"),
		Port:        v.GetInt("SMTP_PORT"),
		Username:    v.GetString("SMTP_USERNAME"),
		Password:    v.GetString("SMTP_PASSWORD"),
		FromAddress: v.GetString("MAIL_FROM_ADDRESS"),
		FromName:    v.GetString("MAIL_FROM_NAME"),
	}

	cfg.Signature = SignatureConfig{
		Origin: strings.TrimRight(v.GetString("SIGNING_ORIGIN"), "/"),
	}

	cfg.Compliance = ComplianceConfig{
		LookbackDays:    v.GetInt("COMPLIANCE_LOOKBACK_DAYS"),
		EligibilityDays: v.GetInt("COMPLIANCE_ELIGIBILITY_DAYS"),
	}

	cfg.Extraction = ExtractionConfig{
		Enabled: v.GetBool("ENABLE_EXTRACTION"),
		APIKey:  v.GetString("OPENAI_API_KEY"),
		Model:   v.GetString("OPENAI_MODEL"),
		BaseURL: v.GetString("OPENAI_BASE_URL"),
		Timeout: parseDuration(v.GetString("EXTRACTION_TIMEOUT"), 90*time.Second),
	}

	cfg.Notifications = NotificationsConfig{
		Workers:    v.GetInt("NOTIFICATION_WORKERS"),
		MaxRetries: v.GetInt("NOTIFICATION_RETRIES"),
		RetryDelay: parseDuration(v.GetString("NOTIFICATION_RETRY_DELAY"), 5*time.Second),
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
	v.SetDefault("DB_NAME", "sales_eval")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)
	v.SetDefault("DB_AUTO_MIGRATE", true)

	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("ENABLE_CACHE", false)
	v.SetDefault("CACHE_TTL", "10m")

	v.SetDefault("STORAGE_DRIVER", StorageDriverLocal)
	v.SetDefault("STORAGE_LOCAL_DIR", "./uploads")
	v.SetDefault("STORAGE_SIGNED_URL_SECRET", "dev_storage_secret")
	v.SetDefault("STORAGE_SIGNED_URL_TTL", "24h")
	v.SetDefault("STORAGE_CLEANUP_INTERVAL", "")
	v.SetDefault("STORAGE_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("STORAGE_ALLOWED_MIME_TYPES", "application/pdf,text/csv,text/plain; charset=utf-8,application/vnd.openxmlformats-officedocument.spreadsheetml.sheet,application/zip,image/png,image/jpeg")
	v.SetDefault("AWS_S3_BUCKET", "")
	v.SetDefault("AWS_REGION", "us-east-1")

	v.SetDefault("MAIL_DRIVER", MailDriverLog)
	v.SetDefault("SMTP_HOST", "localhost")
	v.SetDefault("SMTP_PORT", 587)
	v.SetDefault("MAIL_FROM_ADDRESS", "no-reply@example.com")
	v.SetDefault("MAIL_FROM_NAME", "Sales Evaluations")

	v.SetDefault("SIGNING_ORIGIN", "http://localhost:5173")

	v.SetDefault("COMPLIANCE_LOOKBACK_DAYS", 365)
	v.SetDefault("COMPLIANCE_ELIGIBILITY_DAYS", 366)

	v.SetDefault("ENABLE_EXTRACTION", false)
	v.SetDefault("OPENAI_MODEL", "gpt-4o-2024-08-06")
	v.SetDefault("OPENAI_BASE_URL", "")
	v.SetDefault("EXTRACTION_TIMEOUT", "90s")

	v.SetDefault("NOTIFICATION_WORKERS", 2)
	v.SetDefault("NOTIFICATION_RETRIES", 3)
	v.SetDefault("NOTIFICATION_RETRY_DELAY", "5s")
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

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
