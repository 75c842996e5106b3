package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "dev"
)

type Config struct {
	Env        string
	ServerPort int
	Database   DatabaseConfig
	Store      StoreConfig
	Auth       AuthConfig
	Storage    StorageConfig
	Upload     UploadConfig
	RateLimit  RateLimitConfig
	CORS       CORSConfig
	MQ         MQConfig
	Log        LogConfig
}

type DatabaseConfig struct {
	Host          string
	Port          int
	User          string
	Password      string
	DBName        string
	UseSSL        bool
	ConnectTries  int
	ConnectDelay  time.Duration
	MigrationsDir string
}

// StoreConfig selects the credential store backend.
type StoreConfig struct {
	Driver string
}

// AuthConfig holds the token signing and session cookie settings.
type AuthConfig struct {
	JWTSecret      string
	TokenTTL       time.Duration
	BcryptCost     int
	SlidingRefresh bool
	ExposeToken    bool
	CookieName     string
	CookieSameSite string
}

type StorageConfig struct {
	Driver        string
	PublicBaseURL string
	Minio         MinioConfig
	GCS           GCSConfig
	S3            S3Config
}

type MinioConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
}

type GCSConfig struct {
	Bucket          string
	ProjectID       string
	CredentialsFile string
}

// S3Config targets any S3-compatible endpoint, including Supabase storage.
type S3Config struct {
	Endpoint        string
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Bucket          string
	UsePathStyle    bool
}

type UploadConfig struct {
	MaxBytes     int64
	AllowedTypes []string
	RateLimit    int
	RateWindow   time.Duration
}

type RateLimitConfig struct {
	Requests int
	Window   time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type MQConfig struct {
	Driver        string
	UploadChannel string
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
}

type RabbitMQConfig struct {
	URL             string
	QueueDurable    bool
	QueueAutoDelete bool
	PrefetchCount   int
}

type PubSubConfig struct {
	ProjectID          string
	CredentialsFile    string
	SubscriptionSuffix string
}

type LogConfig struct {
	Level  string
	Format string
}

func LoadConfig() Config {
	if os.Getenv("ENV") == EnvDevelopment {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Host:          getEnv("DB_HOST", "localhost"),
		Port:          getEnvInt("DB_PORT", 5432),
		User:          getEnv("DB_USER", "drive"),
		Password:      getEnv("DB_PASSWORD", "password"),
		DBName:        getEnv("DB_NAME", "drive_db"),
		UseSSL:        getEnvBool("DB_USE_SSL", false),
		ConnectTries:  getEnvInt("DB_CONNECT_TRIES", 5),
		ConnectDelay:  getEnvDuration("DB_CONNECT_DELAY", 5*time.Second),
		MigrationsDir: getEnv("DB_MIGRATIONS_DIR", ""),
	}

	authConfig := AuthConfig{
		JWTSecret:      strings.TrimSpace(getEnv("JWT_SECRET", "")),
		TokenTTL:       getEnvDuration("TOKEN_TTL", time.Hour),
		BcryptCost:     getEnvInt("BCRYPT_COST", 10),
		SlidingRefresh: getEnvBool("SESSION_SLIDING_REFRESH", true),
		ExposeToken:    getEnvBool("AUTH_EXPOSE_TOKEN", false),
		CookieName:     getEnv("COOKIE_NAME", "token"),
		CookieSameSite: strings.ToLower(getEnv("COOKIE_SAMESITE", "strict")),
	}

	storageConfig := StorageConfig{
		Driver:        strings.ToLower(getEnv("STORAGE_DRIVER", "minio")),
		PublicBaseURL: getEnv("STORAGE_PUBLIC_BASE_URL", ""),
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", "localhost:9000"),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "uploads"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		S3: S3Config{
			Endpoint:        getEnv("S3_ENDPOINT", ""),
			Region:          getEnv("S3_REGION", "us-east-1"),
			AccessKeyID:     getEnv("S3_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("S3_SECRET_ACCESS_KEY", ""),
			Bucket:          getEnv("S3_BUCKET", ""),
			UsePathStyle:    getEnvBool("S3_USE_PATH_STYLE", true),
		},
	}

	uploadConfig := UploadConfig{
		MaxBytes:     int64(getEnvInt("UPLOAD_MAX_BYTES", 5<<20)),
		AllowedTypes: getEnvList("UPLOAD_ALLOWED_TYPES", []string{"image/png", "image/jpeg", "image/gif", "image/svg+xml"}),
		RateLimit:    getEnvInt("UPLOAD_RATE_LIMIT", 10),
		RateWindow:   getEnvDuration("UPLOAD_RATE_WINDOW", 15*time.Minute),
	}

	mqConfig := MQConfig{
		Driver:        strings.ToLower(getEnv("MQ_DRIVER", "none")),
		UploadChannel: getEnv("MQ_UPLOAD_CHANNEL", "file-uploads"),
		RabbitMQ: RabbitMQConfig{
			URL:             getEnv("RABBITMQ_URL", ""),
			QueueDurable:    getEnvBool("RABBITMQ_QUEUE_DURABLE", true),
			QueueAutoDelete: getEnvBool("RABBITMQ_QUEUE_AUTO_DELETE", false),
			PrefetchCount:   getEnvInt("RABBITMQ_PREFETCH", 10),
		},
		PubSub: PubSubConfig{
			ProjectID:          getEnv("PUBSUB_PROJECT_ID", ""),
			CredentialsFile:    getEnv("PUBSUB_CREDENTIALS_FILE", ""),
			SubscriptionSuffix: getEnv("PUBSUB_SUBSCRIPTION_SUFFIX", "-sub"),
		},
	}

	return Config{
		Env:        getEnv("ENV", EnvDevelopment),
		ServerPort: getEnvInt("SERVER_PORT", 3000),
		Database:   dbConfig,
		Store:      StoreConfig{Driver: strings.ToLower(getEnv("STORE_DRIVER", "postgres"))},
		Auth:       authConfig,
		Storage:    storageConfig,
		Upload:     uploadConfig,
		RateLimit: RateLimitConfig{
			Requests: getEnvInt("RATE_LIMIT_REQUESTS", 100),
			Window:   getEnvDuration("RATE_LIMIT_WINDOW", 15*time.Minute),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:5173"}),
		},
		MQ: mqConfig,
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", ""),
		},
	}
}

// IsProduction reports whether the process runs with production settings
// (secure cookies, suppressed error details).
func (c Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Validate reports configuration that must stop the process at startup.
func (c Config) Validate() error {
	var errs []error
	if c.Auth.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET is required"))
	}
	if c.Auth.TokenTTL <= 0 {
		errs = append(errs, errors.New("TOKEN_TTL must be positive"))
	}
	switch c.Store.Driver {
	case "postgres", "memory":
	default:
		errs = append(errs, fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver))
	}
	switch c.Storage.Driver {
	case "minio", "gcs", "s3":
	default:
		errs = append(errs, fmt.Errorf("unknown STORAGE_DRIVER %q", c.Storage.Driver))
	}
	switch c.MQ.Driver {
	case "none", "rabbitmq", "pubsub":
	default:
		errs = append(errs, fmt.Errorf("unknown MQ_DRIVER %q", c.MQ.Driver))
	}
	switch c.Auth.CookieSameSite {
	case "strict", "lax", "none":
	default:
		errs = append(errs, fmt.Errorf("unknown COOKIE_SAMESITE %q", c.Auth.CookieSameSite))
	}
	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.Atoi(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := strconv.ParseBool(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if valueStr, exists := os.LookupEnv(key); exists {
		value, err := time.ParseDuration(strings.TrimSpace(valueStr))
		if err != nil {
			return defaultValue
		}
		return value
	}
	return defaultValue
}

// getEnvList splits a comma separated value. An explicitly empty variable
// yields an empty list.
func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if v := strings.TrimSpace(part); v != "" {
			values = append(values, v)
		}
	}
	return values
}
