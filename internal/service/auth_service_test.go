package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"civicreport/internal/auth"
	apperrors "civicreport/internal/errors"
	"civicreport/internal/model"
)

// MockTokenStore is a mock implementation of TokenStoreInterface.
type MockTokenStore struct {
	mock.Mock
}

func (m *MockTokenStore) RevokeSession(ctx context.Context, tokenID string, ttl time.Duration) error {
	args := m.Called(ctx, tokenID, ttl)
	return args.Error(0)
}

func (m *MockTokenStore) IsSessionRevoked(ctx context.Context, tokenID string) (bool, error) {
	args := m.Called(ctx, tokenID)
	return args.Bool(0), args.Error(1)
}

func TestAuthService_VerifyOTP(t *testing.T) {
	otp := new(MockOTPService)
	identity := new(MockIdentityService)
	jwtService := auth.NewJWTService("test-secret", time.Hour)
	svc := NewAuthService(otp, identity, jwtService, new(MockTokenStore))

	otp.On("VerifyChallenge", mock.Anything, "citizen@example.com", "123456").Return(nil)
	identity.On("ResolveOrCreate", mock.Anything, "citizen@example.com").
		Return(&model.User{ID: 5, Email: "citizen@example.com"}, nil)

	token, user, err := svc.VerifyOTP(context.Background(), "citizen@example.com", "123456")
	require.NoError(t, err)
	assert.Equal(t, uint(5), user.ID)

	claims, err := jwtService.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(5), claims.UserID)
	assert.Equal(t, "citizen@example.com", claims.Email)
}

func TestAuthService_VerifyOTP_RejectedCodeCreatesNoUser(t *testing.T) {
	otp := new(MockOTPService)
	identity := new(MockIdentityService)
	svc := NewAuthService(otp, identity, auth.NewJWTService("s", time.Hour), new(MockTokenStore))

	otp.On("VerifyChallenge", mock.Anything, mock.Anything, mock.Anything).Return(apperrors.ErrOTPInvalid)

	_, _, err := svc.VerifyOTP(context.Background(), "citizen@example.com", "000000")
	assert.ErrorIs(t, err, apperrors.ErrOTPInvalid)
	identity.AssertNotCalled(t, "ResolveOrCreate", mock.Anything, mock.Anything)
}

func TestAuthService_SendOTP(t *testing.T) {
	otp := new(MockOTPService)
	svc := NewAuthService(otp, new(MockIdentityService), auth.NewJWTService("s", time.Hour), new(MockTokenStore))

	otp.On("RequestChallenge", mock.Anything, "citizen@example.com").Return(nil)

	require.NoError(t, svc.SendOTP(context.Background(), "citizen@example.com"))
	otp.AssertExpectations(t)
}

func TestAuthService_Logout(t *testing.T) {
	store := new(MockTokenStore)
	jwtService := auth.NewJWTService("s", time.Hour)
	svc := NewAuthService(new(MockOTPService), new(MockIdentityService), jwtService, store)

	_, claims, err := jwtService.GenerateSessionToken(5, "citizen@example.com")
	require.NoError(t, err)

	store.On("RevokeSession", mock.Anything, claims.ID, mock.MatchedBy(func(ttl time.Duration) bool {
		return ttl > 59*time.Minute && ttl <= time.Hour
	})).Return(nil)

	require.NoError(t, svc.Logout(context.Background(), claims))
	store.AssertExpectations(t)

	assert.ErrorIs(t, svc.Logout(context.Background(), nil), apperrors.ErrUnauthorized)
}

func TestAuthService_Me(t *testing.T) {
	tests := []struct {
		name    string
		user    *model.User
		err     error
		wantErr error
	}{
		{name: "found", user: &model.User{ID: 5, Email: "citizen@example.com"}},
		{name: "deleted user", err: gorm.ErrRecordNotFound, wantErr: apperrors.ErrUnauthorized},
		{name: "store failure", err: errors.New("db down")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			identity := new(MockIdentityService)
			svc := NewAuthService(new(MockOTPService), identity, auth.NewJWTService("s", time.Hour), new(MockTokenStore))

			if tt.user != nil {
				identity.On("FindByID", mock.Anything, uint(5)).Return(tt.user, nil)
			} else {
				identity.On("FindByID", mock.Anything, uint(5)).Return(nil, tt.err)
			}

			user, err := svc.Me(context.Background(), 5)
			switch {
			case tt.wantErr != nil:
				assert.ErrorIs(t, err, tt.wantErr)
			case tt.err != nil:
				require.Error(t, err)
				assert.NotErrorIs(t, err, apperrors.ErrUnauthorized)
			default:
				require.NoError(t, err)
				assert.Equal(t, tt.user, user)
			}
		})
	}
}
