package service

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/apex/log"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"civicreport/internal/cache"
	apperrors "civicreport/internal/errors"
	"civicreport/internal/metrics"
	"civicreport/internal/model"
	"civicreport/internal/notify"
	"civicreport/internal/repository"
)

const (
	bcryptCost = 10
	otpDigits  = 6
	otpMin     = 100000
	otpSpan    = 900000
)

// OTPService issues and redeems email one-time codes.
type OTPService interface {
	// RequestChallenge replaces any outstanding code for email and delivers a new one.
	RequestChallenge(ctx context.Context, email string) error
	// VerifyChallenge consumes the outstanding code. At most one caller succeeds per code.
	VerifyChallenge(ctx context.Context, email, code string) error
	// SweepExpired deletes challenges that expired before now.
	SweepExpired(ctx context.Context, now time.Time) (int64, error)
}

// OTPConfig tunes challenge lifetime and throttling.
type OTPConfig struct {
	TTL         time.Duration
	SendLimit   int
	SendWindow  time.Duration
	VerifyLimit int
}

type otpService struct {
	repo     repository.OTPRepository
	mailer   notify.Mailer
	limiter  cache.Limiter
	cfg      OTPConfig
	hashCost int
	now      func() time.Time
	generate func() (string, error)
}

// NewOTPService creates a new OTP service.
func NewOTPService(repo repository.OTPRepository, mailer notify.Mailer, limiter cache.Limiter, cfg OTPConfig) OTPService {
	if cfg.TTL <= 0 {
		cfg.TTL = 5 * time.Minute
	}
	return &otpService{
		repo:     repo,
		mailer:   mailer,
		limiter:  limiter,
		cfg:      cfg,
		hashCost: bcryptCost,
		now:      time.Now,
		generate: generateCode,
	}
}

func (s *otpService) RequestChallenge(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return apperrors.NewValidationError("email", "is required")
	}

	if !s.limiter.Allow(ctx, "otp:send:"+email, s.cfg.SendLimit, s.cfg.SendWindow) {
		metrics.OTPRequestsTotal.WithLabelValues("rate_limited").Inc()
		return apperrors.ErrRateLimited
	}

	code, err := s.generate()
	if err != nil {
		return fmt.Errorf("generate code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), s.hashCost)
	if err != nil {
		return fmt.Errorf("hash code: %w", err)
	}

	now := s.now().UTC()
	otp := &model.EmailOTP{
		Email:     email,
		CodeHash:  string(hash),
		ExpiresAt: now.Add(s.cfg.TTL),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, otp); err != nil {
		metrics.OTPRequestsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("store challenge: %w", err)
	}

	if err := s.mailer.SendOTP(ctx, email, code, s.cfg.TTL); err != nil {
		metrics.OTPRequestsTotal.WithLabelValues("delivery_failed").Inc()
		log.WithError(err).WithField("email", email).Error("otp delivery failed")
		if errors.Is(err, apperrors.ErrDeliveryFailed) {
			return err
		}
		return fmt.Errorf("%w: %v", apperrors.ErrDeliveryFailed, err)
	}

	metrics.OTPRequestsTotal.WithLabelValues("sent").Inc()
	log.WithField("email", email).Info("otp challenge issued")
	return nil
}

func (s *otpService) VerifyChallenge(ctx context.Context, email, code string) error {
	email = strings.TrimSpace(email)
	if email == "" || !isOTPCode(code) {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		return apperrors.ErrOTPInvalid
	}

	if !s.limiter.Allow(ctx, "otp:verify:"+email, s.cfg.VerifyLimit, s.cfg.TTL) {
		metrics.OTPVerificationsTotal.WithLabelValues("rate_limited").Inc()
		return apperrors.ErrRateLimited
	}

	otp, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		return apperrors.ErrOTPInvalid
	}
	if err != nil {
		return fmt.Errorf("load challenge: %w", err)
	}

	if otp.Expired(s.now().UTC()) {
		metrics.OTPVerificationsTotal.WithLabelValues("expired").Inc()
		return apperrors.ErrOTPInvalid
	}
	if bcrypt.CompareHashAndPassword([]byte(otp.CodeHash), []byte(code)) != nil {
		metrics.OTPVerificationsTotal.WithLabelValues("invalid").Inc()
		return apperrors.ErrOTPInvalid
	}

	n, err := s.repo.Consume(ctx, email, otp.CodeHash)
	if err != nil {
		return fmt.Errorf("consume challenge: %w", err)
	}
	if n == 0 {
		metrics.OTPVerificationsTotal.WithLabelValues("lost_race").Inc()
		return apperrors.ErrOTPInvalid
	}

	metrics.OTPVerificationsTotal.WithLabelValues("verified").Inc()
	return nil
}

func (s *otpService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	n, err := s.repo.DeleteExpired(ctx, now.UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired challenges: %w", err)
	}
	metrics.OTPSweptTotal.Add(float64(n))
	return n, nil
}

// generateCode draws a uniform six digit code from crypto/rand.
func generateCode() (string, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(otpSpan))
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+otpMin), nil
}

func isOTPCode(code string) bool {
	if len(code) != otpDigits {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
