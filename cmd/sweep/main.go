// Command sweep deletes expired one-time code challenges once and exits.
// It is meant for cron when the server's own sweeper is disabled.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/apex/log"

	"civicreport/internal/config"
	"civicreport/internal/db"
	"civicreport/internal/logging"
	"civicreport/internal/notify"
	"civicreport/internal/repository"
	"civicreport/internal/service"
)

func main() {
	cfg := config.Load()
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gormDB, err := db.Open(cfg.DBDriver, cfg.DatabaseDSN)
	if err != nil {
		log.WithError(err).Fatal("database init")
	}
	if err := db.Migrate(ctx, gormDB, cfg.DBDriver); err != nil {
		log.WithError(err).Fatal("migrate")
	}

	otpService := service.NewOTPService(repository.NewOTPRepository(gormDB), notify.LogMailer{}, nil, service.OTPConfig{TTL: cfg.OTPTTL})

	n, err := otpService.SweepExpired(ctx, time.Now())
	if err != nil {
		log.WithError(err).Fatal("sweep")
	}
	log.WithField("deleted", n).Info("expired otp challenges swept")
}
