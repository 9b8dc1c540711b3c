package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/apex/log"
	"gorm.io/gorm"

	"civicreport/internal/auth"
	apperrors "civicreport/internal/errors"
	"civicreport/internal/model"
)

// AuthService handles sign-in by email code and session lifecycle.
type AuthService interface {
	SendOTP(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, code string) (token string, user *model.User, err error)
	Logout(ctx context.Context, claims *auth.Claims) error
	Me(ctx context.Context, userID uint) (*model.User, error)
}

type authService struct {
	otp        OTPService
	identity   IdentityService
	jwtService *auth.JWTService
	tokenStore auth.TokenStoreInterface
	now        func() time.Time
}

// NewAuthService creates a new authentication service.
func NewAuthService(otp OTPService, identity IdentityService, jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface) AuthService {
	return &authService{
		otp:        otp,
		identity:   identity,
		jwtService: jwtService,
		tokenStore: tokenStore,
		now:        time.Now,
	}
}

func (s *authService) SendOTP(ctx context.Context, email string) error {
	return s.otp.RequestChallenge(ctx, email)
}

// VerifyOTP redeems the code and returns a signed session token for the
// resolved user.
func (s *authService) VerifyOTP(ctx context.Context, email, code string) (string, *model.User, error) {
	if err := s.otp.VerifyChallenge(ctx, email, code); err != nil {
		return "", nil, err
	}

	user, err := s.identity.ResolveOrCreate(ctx, email)
	if err != nil {
		return "", nil, err
	}

	token, _, err := s.jwtService.GenerateSessionToken(user.ID, user.Email)
	if err != nil {
		return "", nil, fmt.Errorf("sign session token: %w", err)
	}

	log.WithFields(log.Fields{"user_id": user.ID}).Info("session issued")
	return token, user, nil
}

// Logout revokes the presented session until it would have expired.
func (s *authService) Logout(ctx context.Context, claims *auth.Claims) error {
	if claims == nil || claims.ID == "" {
		return apperrors.ErrUnauthorized
	}
	return s.tokenStore.RevokeSession(ctx, claims.ID, claims.Remaining(s.now()))
}

func (s *authService) Me(ctx context.Context, userID uint) (*model.User, error) {
	user, err := s.identity.FindByID(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrUnauthorized
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}
	return user, nil
}
