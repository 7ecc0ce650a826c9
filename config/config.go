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

const minJWTSecretBytes = 32

// Config is the full runtime configuration, loaded from the environment.
type Config struct {
	ServerPort    int
	MigrationsDir string
	Database      DatabaseConfig
	Auth          AuthConfig
	Recovery      RecoveryConfig
	Redis         RedisConfig
	Storage       StorageConfig
	Minio         MinioConfig
	GCS           GCSConfig
	MQ            MQConfig
	RabbitMQ      RabbitMQConfig
	PubSub        PubSubConfig
	SMTP          SMTPConfig
	CORS          CORSConfig
	Log           LogConfig
}

// DatabaseConfig selects and addresses the relational store.
type DatabaseConfig struct {
	// Driver is "postgres" or "memory".
	Driver   string
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	UseSSL   bool
}

// AuthConfig holds bearer token and password hashing settings.
type AuthConfig struct {
	JWTSecret  string
	TokenTTL   time.Duration
	BcryptCost int
}

// RecoveryConfig controls password recovery tokens.
type RecoveryConfig struct {
	// Backend is "memory" or "redis".
	Backend  string
	TokenTTL time.Duration
	// ResetURL is the front-end page receiving the token as a query parameter.
	ResetURL string
}

type RedisConfig struct {
	URL string
}

// StorageConfig selects the object backend and upload limits.
type StorageConfig struct {
	// Backend is "local", "minio" or "gcs".
	Backend          string
	LocalRoot        string
	MaxDocumentBytes int64
	MaxImageBytes    int64
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

// MQConfig selects the broker recovery messages travel on.
type MQConfig struct {
	// Backend is "memory", "rabbitmq" or "pubsub".
	Backend         string
	RecoveryChannel string
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

// SMTPConfig addresses the outgoing mail relay. An empty Host disables sending.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LoadConfig reads .env (when present) and the process environment.
func LoadConfig() Config {
	if os.Getenv("ENV") == "dev" {
		godotenv.Load()
	}

	dbConfig := DatabaseConfig{
		Driver:   getEnv("DB_DRIVER", "postgres"),
		Host:     getEnv("DB_HOST", "localhost"),
		Port:     getEnvInt("DB_PORT", 5432),
		User:     getEnv("DB_USER", "eduaventuras"),
		Password: getEnv("DB_PASSWORD", "password"),
		DBName:   getEnv("DB_NAME", "eduaventuras_db"),
		UseSSL:   getEnvBool("DB_USE_SSL", false),
	}

	return Config{
		ServerPort:    getEnvInt("SERVER_PORT", 8080),
		MigrationsDir: getEnv("MIGRATIONS_DIR", "internal/db/migrations"),
		Database:      dbConfig,
		Auth: AuthConfig{
			JWTSecret:  strings.TrimSpace(getEnv("JWT_SECRET", "")),
			TokenTTL:   getEnvDuration("JWT_TTL", 24*time.Hour),
			BcryptCost: getEnvInt("BCRYPT_COST", 10),
		},
		Recovery: RecoveryConfig{
			Backend:  getEnv("RECOVERY_BACKEND", "memory"),
			TokenTTL: getEnvDuration("RECOVERY_TOKEN_TTL", time.Hour),
			ResetURL: getEnv("RECOVERY_RESET_URL", "http://localhost:8080/recuperar-password.html"),
		},
		Redis: RedisConfig{
			URL: getEnv("REDIS_URL", "redis://localhost:6379/0"),
		},
		Storage: StorageConfig{
			Backend:          getEnv("STORAGE_BACKEND", "local"),
			LocalRoot:        getEnv("UPLOAD_DIR", "uploads"),
			MaxDocumentBytes: int64(getEnvInt("MAX_DOCUMENT_BYTES", 10<<20)),
			MaxImageBytes:    int64(getEnvInt("MAX_IMAGE_BYTES", 5<<20)),
		},
		Minio: MinioConfig{
			Endpoint:  getEnv("MINIO_ENDPOINT", ""),
			AccessKey: getEnv("MINIO_ACCESS_KEY", ""),
			SecretKey: getEnv("MINIO_SECRET_KEY", ""),
			Bucket:    getEnv("MINIO_BUCKET", "eduaventuras"),
			UseSSL:    getEnvBool("MINIO_USE_SSL", false),
		},
		GCS: GCSConfig{
			Bucket:          getEnv("GCS_BUCKET", ""),
			ProjectID:       getEnv("GCS_PROJECT_ID", ""),
			CredentialsFile: getEnv("GCS_CREDENTIALS_FILE", ""),
		},
		MQ: MQConfig{
			Backend:         getEnv("MQ_BACKEND", "memory"),
			RecoveryChannel: getEnv("MQ_RECOVERY_CHANNEL", "password-recovery"),
		},
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
		SMTP: SMTPConfig{
			Host:     getEnv("SMTP_HOST", "localhost"),
			Port:     getEnvInt("SMTP_PORT", 25),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@eduaventuras.local"),
		},
		CORS: CORSConfig{
			AllowedOrigins: getEnvList("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8080"}),
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}
}

// Validate reports configuration that would prevent the server from starting.
func (c Config) Validate() error {
	if c.Auth.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if len(c.Auth.JWTSecret) < minJWTSecretBytes {
		return fmt.Errorf("JWT_SECRET must be at least %d bytes", minJWTSecretBytes)
	}
	if c.Auth.TokenTTL <= 0 {
		return errors.New("JWT_TTL must be positive")
	}
	if c.Recovery.TokenTTL <= 0 {
		return errors.New("RECOVERY_TOKEN_TTL must be positive")
	}

	switch c.Database.Driver {
	case "postgres", "memory":
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver)
	}

	switch c.Storage.Backend {
	case "local":
		if strings.TrimSpace(c.Storage.LocalRoot) == "" {
			return errors.New("UPLOAD_DIR is required for local storage")
		}
	case "minio":
		if c.Minio.Endpoint == "" || c.Minio.Bucket == "" {
			return errors.New("MINIO_ENDPOINT and MINIO_BUCKET are required for minio storage")
		}
	case "gcs":
		if c.GCS.Bucket == "" {
			return errors.New("GCS_BUCKET is required for gcs storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_BACKEND %q", c.Storage.Backend)
	}

	switch c.Recovery.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("REDIS_URL is required for the redis recovery backend")
		}
	default:
		return fmt.Errorf("unsupported RECOVERY_BACKEND %q", c.Recovery.Backend)
	}

	switch c.MQ.Backend {
	case "memory":
	case "rabbitmq":
		if c.RabbitMQ.URL == "" {
			return errors.New("RABBITMQ_URL is required for the rabbitmq backend")
		}
	case "pubsub":
		if c.PubSub.ProjectID == "" {
			return errors.New("PUBSUB_PROJECT_ID is required for the pubsub backend")
		}
	default:
		return fmt.Errorf("unsupported MQ_BACKEND %q", c.MQ.Backend)
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if valueStr, exists := os.LookupEnv(key); exists {
		var value int
		fmt.Sscanf(valueStr, "%d", &value)
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

func getEnvList(key string, defaultValue []string) []string {
	valueStr, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if part = strings.TrimSpace(part); part != "" {
			values = append(values, part)
		}
	}
	return values
}
