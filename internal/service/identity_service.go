package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"civicreport/internal/model"
	"civicreport/internal/repository"
)

// IdentityService maps a verified email to a stable user.
type IdentityService interface {
	ResolveOrCreate(ctx context.Context, email string) (*model.User, error)
	FindByID(ctx context.Context, id uint) (*model.User, error)
}

type identityService struct {
	userRepo repository.UserRepository
	now      func() time.Time
}

// NewIdentityService creates a new identity service.
func NewIdentityService(userRepo repository.UserRepository) IdentityService {
	return &identityService{userRepo: userRepo, now: time.Now}
}

// ResolveOrCreate is safe under concurrent first logins for the same email;
// every caller gets the same user ID.
func (s *identityService) ResolveOrCreate(ctx context.Context, email string) (*model.User, error) {
	email = strings.TrimSpace(email)
	user, err := s.userRepo.FindOrCreateByEmail(ctx, email, s.now().UTC())
	if err != nil {
		return nil, fmt.Errorf("resolve identity: %w", err)
	}
	return user, nil
}

func (s *identityService) FindByID(ctx context.Context, id uint) (*model.User, error) {
	return s.userRepo.FindByID(ctx, id)
}
