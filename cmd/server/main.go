package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/apex/log"
	"github.com/getsentry/sentry-go"
	"github.com/labstack/echo/v4"
	"gorm.io/gorm"

	"civicreport/docs"
	"civicreport/internal/auth"
	"civicreport/internal/blob"
	"civicreport/internal/cache"
	"civicreport/internal/config"
	"civicreport/internal/db"
	"civicreport/internal/events"
	"civicreport/internal/handler"
	"civicreport/internal/logging"
	"civicreport/internal/metrics"
	"civicreport/internal/middleware"
	"civicreport/internal/notify"
	"civicreport/internal/repository"
	"civicreport/internal/router"
	"civicreport/internal/service"
)

// @title Civic Report API
// @version 1.0
// @description Report civic issues with a photo and a location, sign in by emailed one-time code.
// @host localhost:8080
// @BasePath /api
// @schemes http https
// @securityDefinitions.apikey SessionToken
// @in header
// @name X-User-Id
// @description Session token from /verify-otp. Also accepted as Authorization: Bearer <token>.
func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	if err := cfg.Validate(); err != nil {
		log.WithError(err).Fatal("invalid configuration")
	}

	if cfg.SentryDSN != "" {
		if err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.AppEnv,
			TracesSampleRate: 0.2,
		}); err != nil {
			log.WithError(err).Error("sentry init failed")
		} else {
			defer sentry.Flush(2 * time.Second)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	if err := db.Migrate(ctx, gormDB, cfg.DBDriver); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	cacheClient := cache.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB)
	defer cacheClient.Close()
	if err := cacheClient.Ping(ctx); err != nil {
		log.WithError(err).Warn("redis unreachable, rate limits and logout are disabled until it returns")
	}

	store, err := newBlobStore(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("blob store init")
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	metrics.Register()

	// Initialize repositories
	userRepo := repository.NewUserRepository(gormDB)
	otpRepo := repository.NewOTPRepository(gormDB)
	issueRepo := repository.NewIssueRepository(gormDB)

	// Initialize auth components
	jwtService := auth.NewJWTService(cfg.JWTSecret, cfg.SessionTTL)
	tokenStore := auth.NewTokenStore(cacheClient)
	limiter := cache.NewWindowLimiter(cacheClient, "ratelimit:")

	// Initialize services
	otpService := service.NewOTPService(otpRepo, newMailer(cfg), limiter, service.OTPConfig{
		TTL:         cfg.OTPTTL,
		SendLimit:   cfg.OTPSendLimit,
		SendWindow:  cfg.OTPSendWindow,
		VerifyLimit: cfg.OTPVerifyLimit,
	})
	identityService := service.NewIdentityService(userRepo)
	authService := service.NewAuthService(otpService, identityService, jwtService, tokenStore)
	issueService := service.NewIssueService(issueRepo, store, publisher, limiter, cfg.IssueCreateLimit)

	go service.RunOTPSweeper(ctx, otpService, cfg.OTPSweepInterval)

	if cfg.SwaggerHost != "" {
		docs.SwaggerInfo.Host = strings.TrimPrefix(strings.TrimPrefix(cfg.SwaggerHost, "https://"), "http://")
	}

	e := echo.New()
	router.Register(e, cfg, router.Handlers{
		Auth:   handler.NewAuthHandler(authService),
		Issue:  handler.NewIssueHandler(issueService),
		Health: handler.NewHealthHandler(dbPinger(gormDB)),
	}, middleware.Session(jwtService, tokenStore))

	go func() {
		addr := ":" + cfg.ServerPort
		log.WithField("addr", addr).Info("server listening")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Fatal("server start")
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("server shutdown")
	}
}

func newBlobStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.BlobBackend == config.BlobBackendS3 {
		return blob.NewS3Store(ctx, blob.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			PublicURL: cfg.S3PublicURL,
		})
	}
	return blob.NewLocalStore(cfg.UploadDir, cfg.UploadURLPrefix)
}

func newMailer(cfg *config.Config) notify.Mailer {
	if cfg.MailBackend == config.MailBackendSendGrid {
		return notify.NewSendGridMailer(cfg.SendGridAPIKey, cfg.MailFromName, cfg.MailFromEmail)
	}
	log.Warn("MAIL_BACKEND=log, one-time codes are written to the log")
	return notify.LogMailer{}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}
	}
	p, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.WithError(err).Warn("amqp unavailable, issue events are disabled")
		return events.NopPublisher{}
	}
	return p
}

func dbPinger(gormDB *gorm.DB) handler.Pinger {
	return func(ctx context.Context) error {
		return db.Ping(ctx, gormDB)
	}
}
