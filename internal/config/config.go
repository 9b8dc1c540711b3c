package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/apex/log"
	"github.com/joho/godotenv"
)

const (
	defaultJWTSecret = "change-me"

	DriverMySQL    = "mysql"
	DriverPostgres = "postgres"

	BlobBackendLocal = "local"
	BlobBackendS3    = "s3"

	MailBackendLog      = "log"
	MailBackendSendGrid = "sendgrid"
)

// Config holds application level configuration loaded from environment variables.
type Config struct {
	ServerPort string
	AppEnv     string
	LogLevel   string
	LogFormat  string

	DBDriver    string
	DatabaseDSN string

	RedisAddr string
	RedisDB   int
	RedisPass string

	JWTSecret  string
	SessionTTL time.Duration

	OTPTTL           time.Duration
	OTPSendLimit     int
	OTPSendWindow    time.Duration
	OTPVerifyLimit   int
	OTPSweepInterval time.Duration

	IssueCreateLimit int
	MaxUploadBytes   int64

	BlobBackend     string
	UploadDir       string
	UploadURLPrefix string
	S3Bucket        string
	S3Region        string
	S3Endpoint      string
	S3AccessKey     string
	S3SecretKey     string
	S3PublicURL     string

	MailBackend    string
	SendGridAPIKey string
	MailFromName   string
	MailFromEmail  string

	AMQPURL      string
	AMQPExchange string

	SentryDSN   string
	SwaggerHost string
}

// Load builds Config from environment with sensible defaults. A .env file in
// the working directory is applied first when present.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		log.Debug("no .env file found")
	}

	return &Config{
		ServerPort: getEnv("SERVER_PORT", "8080"),
		AppEnv:     getEnv("APP_ENV", "development"),
		LogLevel:   getEnv("LOG_LEVEL", "info"),
		LogFormat:  getEnv("LOG_FORMAT", "json"),

		DBDriver:    getEnv("DB_DRIVER", DriverMySQL),
		DatabaseDSN: getEnv("DATABASE_DSN", "user:password@tcp(localhost:3306)/civicreport?charset=utf8mb4&parseTime=True&loc=UTC"),

		RedisAddr: getEnv("REDIS_ADDR", "localhost:6379"),
		RedisDB:   getEnvInt("REDIS_DB", 0),
		RedisPass: os.Getenv("REDIS_PASSWORD"),

		JWTSecret:  getEnv("JWT_SECRET", defaultJWTSecret),
		SessionTTL: getEnvDuration("SESSION_TTL", 7*24*time.Hour),

		OTPTTL:           getEnvDuration("OTP_TTL", 5*time.Minute),
		OTPSendLimit:     getEnvInt("OTP_SEND_LIMIT", 5),
		OTPSendWindow:    getEnvDuration("OTP_SEND_WINDOW", 15*time.Minute),
		OTPVerifyLimit:   getEnvInt("OTP_VERIFY_LIMIT", 10),
		OTPSweepInterval: getEnvDuration("OTP_SWEEP_INTERVAL", time.Hour),

		IssueCreateLimit: getEnvInt("ISSUE_CREATE_LIMIT", 50),
		MaxUploadBytes:   int64(getEnvInt("MAX_UPLOAD_BYTES", 16*1024*1024)),

		BlobBackend:     getEnv("BLOB_BACKEND", BlobBackendLocal),
		UploadDir:       getEnv("UPLOAD_DIR", "static/uploads"),
		UploadURLPrefix: getEnv("UPLOAD_URL_PREFIX", "/uploads"),
		S3Bucket:        getEnv("S3_BUCKET", "civicreport"),
		S3Region:        getEnv("S3_REGION", "us-east-1"),
		S3Endpoint:      os.Getenv("S3_ENDPOINT"),
		S3AccessKey:     os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:     os.Getenv("S3_SECRET_KEY"),
		S3PublicURL:     os.Getenv("S3_PUBLIC_URL"),

		MailBackend:    getEnv("MAIL_BACKEND", MailBackendLog),
		SendGridAPIKey: os.Getenv("SENDGRID_API_KEY"),
		MailFromName:   getEnv("MAIL_FROM_NAME", "Civic Report"),
		MailFromEmail:  getEnv("MAIL_FROM_EMAIL", "no-reply@civicreport.local"),

		AMQPURL:      os.Getenv("AMQP_URL"),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "civicreport.issues"),

		SentryDSN:   os.Getenv("SENTRY_DSN"),
		SwaggerHost: os.Getenv("SWAGGER_HOST"),
	}
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.AppEnv == "production"
}

// Validate rejects combinations the server cannot start with.
func (c *Config) Validate() error {
	switch c.DBDriver {
	case DriverMySQL, DriverPostgres:
	default:
		return fmt.Errorf("unsupported DB_DRIVER %q", c.DBDriver)
	}

	switch c.BlobBackend {
	case BlobBackendLocal:
		if c.UploadDir == "" {
			return fmt.Errorf("UPLOAD_DIR is required for the local blob backend")
		}
	case BlobBackendS3:
		if c.S3Bucket == "" {
			return fmt.Errorf("S3_BUCKET is required for the s3 blob backend")
		}
	default:
		return fmt.Errorf("unsupported BLOB_BACKEND %q", c.BlobBackend)
	}

	switch c.MailBackend {
	case MailBackendLog:
		if c.IsProduction() {
			return fmt.Errorf("MAIL_BACKEND=log is not allowed in production")
		}
	case MailBackendSendGrid:
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required for the sendgrid mail backend")
		}
	default:
		return fmt.Errorf("unsupported MAIL_BACKEND %q", c.MailBackend)
	}

	if c.IsProduction() && (c.JWTSecret == "" || c.JWTSecret == defaultJWTSecret) {
		return fmt.Errorf("JWT_SECRET must be set in production")
	}
	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}
	if c.SessionTTL <= 0 {
		return fmt.Errorf("SESSION_TTL must be positive")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return def
}

func getEnvDuration(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
	}
	return def
}
