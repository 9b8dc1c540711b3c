package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	apperrors "civicreport/internal/errors"
	"civicreport/internal/model"
)

var otpNow = time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

func newTestOTPService(repo *MockOTPRepository, mailer *MockMailer, limiter *MockLimiter, code string) *otpService {
	svc := NewOTPService(repo, mailer, limiter, OTPConfig{
		TTL:         5 * time.Minute,
		SendLimit:   5,
		SendWindow:  15 * time.Minute,
		VerifyLimit: 10,
	}).(*otpService)
	svc.hashCost = bcrypt.MinCost
	svc.now = func() time.Time { return otpNow }
	svc.generate = func() (string, error) { return code, nil }
	return svc
}

func hashFor(t *testing.T, code string) string {
	t.Helper()
	h, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.MinCost)
	require.NoError(t, err)
	return string(h)
}

func TestOTPService_RequestChallenge(t *testing.T) {
	repo := new(MockOTPRepository)
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	svc := newTestOTPService(repo, mailer, limiter, "482913")

	limiter.On("Allow", mock.Anything, "otp:send:citizen@example.com", 5, 15*time.Minute).Return(true)
	repo.On("Upsert", mock.Anything, mock.MatchedBy(func(o *model.EmailOTP) bool {
		return o.Email == "citizen@example.com" &&
			o.ExpiresAt.Equal(otpNow.Add(5*time.Minute)) &&
			o.CodeHash != "482913" &&
			bcrypt.CompareHashAndPassword([]byte(o.CodeHash), []byte("482913")) == nil
	})).Return(nil)
	mailer.On("SendOTP", mock.Anything, "citizen@example.com", "482913", 5*time.Minute).Return(nil)

	err := svc.RequestChallenge(context.Background(), "  citizen@example.com ")
	require.NoError(t, err)
	repo.AssertExpectations(t)
	mailer.AssertExpectations(t)
}

func TestOTPService_RequestChallenge_RateLimited(t *testing.T) {
	repo := new(MockOTPRepository)
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	svc := newTestOTPService(repo, mailer, limiter, "482913")

	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false)

	err := svc.RequestChallenge(context.Background(), "citizen@example.com")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	repo.AssertNotCalled(t, "Upsert", mock.Anything, mock.Anything)
	mailer.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_RequestChallenge_DeliveryFailureKeepsChallenge(t *testing.T) {
	repo := new(MockOTPRepository)
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	svc := newTestOTPService(repo, mailer, limiter, "482913")

	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(nil)
	mailer.On("SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	err := svc.RequestChallenge(context.Background(), "citizen@example.com")
	assert.ErrorIs(t, err, apperrors.ErrDeliveryFailed)
	repo.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
	repo.AssertNumberOfCalls(t, "Upsert", 1)
}

func TestOTPService_RequestChallenge_StoreError(t *testing.T) {
	repo := new(MockOTPRepository)
	mailer := new(MockMailer)
	limiter := new(MockLimiter)
	svc := newTestOTPService(repo, mailer, limiter, "482913")

	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(true)
	repo.On("Upsert", mock.Anything, mock.Anything).Return(errors.New("db down"))

	err := svc.RequestChallenge(context.Background(), "citizen@example.com")
	require.Error(t, err)
	mailer.AssertNotCalled(t, "SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestOTPService_VerifyChallenge(t *testing.T) {
	const email = "citizen@example.com"
	hash := hashFor(t, "123456")

	tests := []struct {
		name      string
		code      string
		stored    *model.EmailOTP
		findErr   error
		consumed  int64
		wantErr   error
		wantStore bool
	}{
		{
			name:      "valid code",
			code:      "123456",
			stored:    &model.EmailOTP{Email: email, CodeHash: hash, ExpiresAt: otpNow.Add(time.Minute)},
			consumed:  1,
			wantStore: true,
		},
		{
			name:      "valid at exactly expires_at",
			code:      "123456",
			stored:    &model.EmailOTP{Email: email, CodeHash: hash, ExpiresAt: otpNow},
			consumed:  1,
			wantStore: true,
		},
		{
			name:      "expired",
			code:      "123456",
			stored:    &model.EmailOTP{Email: email, CodeHash: hash, ExpiresAt: otpNow.Add(-time.Second)},
			wantErr:   apperrors.ErrOTPInvalid,
			wantStore: true,
		},
		{
			name:      "wrong code",
			code:      "654321",
			stored:    &model.EmailOTP{Email: email, CodeHash: hash, ExpiresAt: otpNow.Add(time.Minute)},
			wantErr:   apperrors.ErrOTPInvalid,
			wantStore: true,
		},
		{
			name:      "no challenge",
			code:      "123456",
			findErr:   gorm.ErrRecordNotFound,
			wantErr:   apperrors.ErrOTPInvalid,
			wantStore: true,
		},
		{
			name:      "lost race to a concurrent verifier",
			code:      "123456",
			stored:    &model.EmailOTP{Email: email, CodeHash: hash, ExpiresAt: otpNow.Add(time.Minute)},
			consumed:  0,
			wantErr:   apperrors.ErrOTPInvalid,
			wantStore: true,
		},
		{name: "too short", code: "12345", wantErr: apperrors.ErrOTPInvalid},
		{name: "non digits", code: "12a456", wantErr: apperrors.ErrOTPInvalid},
		{name: "empty", code: "", wantErr: apperrors.ErrOTPInvalid},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockOTPRepository)
			limiter := new(MockLimiter)
			svc := newTestOTPService(repo, new(MockMailer), limiter, "")

			limiter.On("Allow", mock.Anything, "otp:verify:"+email, 10, 5*time.Minute).Return(true)
			if tt.wantStore {
				if tt.stored != nil {
					repo.On("FindByEmail", mock.Anything, email).Return(tt.stored, nil)
				} else {
					repo.On("FindByEmail", mock.Anything, email).Return(nil, tt.findErr)
				}
				repo.On("Consume", mock.Anything, email, hash).Return(tt.consumed, nil)
			}

			err := svc.VerifyChallenge(context.Background(), email, tt.code)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				require.NoError(t, err)
				repo.AssertCalled(t, "Consume", mock.Anything, email, hash)
			}
			if !tt.wantStore {
				repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
			}
			if tt.name == "expired" || tt.name == "wrong code" {
				repo.AssertNotCalled(t, "Consume", mock.Anything, mock.Anything, mock.Anything)
			}
		})
	}
}

func TestOTPService_VerifyChallenge_RateLimited(t *testing.T) {
	repo := new(MockOTPRepository)
	limiter := new(MockLimiter)
	svc := newTestOTPService(repo, new(MockMailer), limiter, "")

	limiter.On("Allow", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(false)

	err := svc.VerifyChallenge(context.Background(), "citizen@example.com", "123456")
	assert.ErrorIs(t, err, apperrors.ErrRateLimited)
	repo.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
}

func TestOTPService_VerifyChallenge_StoreErrorIsNotOTPInvalid(t *testing.T) {
	repo := new(MockOTPRepository)
	svc := newTestOTPService(repo, new(MockMailer), new(MockLimiter), "")
	svc.limiter = allowAll{}

	repo.On("FindByEmail", mock.Anything, mock.Anything).Return(nil, errors.New("connection reset"))

	err := svc.VerifyChallenge(context.Background(), "citizen@example.com", "123456")
	require.Error(t, err)
	assert.NotErrorIs(t, err, apperrors.ErrOTPInvalid)
}

func TestOTPService_SecondRequestReplacesFirstCode(t *testing.T) {
	repo := new(MockOTPRepository)
	mailer := new(MockMailer)
	svc := newTestOTPService(repo, mailer, new(MockLimiter), "")
	svc.limiter = allowAll{}

	var stored *model.EmailOTP
	repo.On("Upsert", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		stored = args.Get(1).(*model.EmailOTP)
	}).Return(nil)
	mailer.On("SendOTP", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil)

	svc.generate = func() (string, error) { return "111111", nil }
	require.NoError(t, svc.RequestChallenge(context.Background(), "citizen@example.com"))
	svc.generate = func() (string, error) { return "222222", nil }
	require.NoError(t, svc.RequestChallenge(context.Background(), "citizen@example.com"))

	repo.On("FindByEmail", mock.Anything, "citizen@example.com").Return(stored, nil)
	repo.On("Consume", mock.Anything, "citizen@example.com", stored.CodeHash).Return(int64(1), nil)

	assert.ErrorIs(t, svc.VerifyChallenge(context.Background(), "citizen@example.com", "111111"), apperrors.ErrOTPInvalid)
	assert.NoError(t, svc.VerifyChallenge(context.Background(), "citizen@example.com", "222222"))
}

func TestOTPService_SweepExpired(t *testing.T) {
	repo := new(MockOTPRepository)
	svc := newTestOTPService(repo, new(MockMailer), new(MockLimiter), "")

	repo.On("DeleteExpired", mock.Anything, otpNow).Return(int64(4), nil)

	n, err := svc.SweepExpired(context.Background(), otpNow)
	require.NoError(t, err)
	assert.Equal(t, int64(4), n)
}

func TestGenerateCode_Range(t *testing.T) {
	for i := 0; i < 500; i++ {
		code, err := generateCode()
		require.NoError(t, err)
		require.Len(t, code, 6)
		assert.True(t, isOTPCode(code))
		assert.NotEqual(t, byte('0'), code[0])
	}
}

func TestRunOTPSweeper_StopsOnCancel(t *testing.T) {
	swept := make(chan struct{}, 1)
	otp := new(MockOTPService)
	otp.On("SweepExpired", mock.Anything, mock.Anything).Run(func(mock.Arguments) {
		select {
		case swept <- struct{}{}:
		default:
		}
	}).Return(int64(1), nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		RunOTPSweeper(ctx, otp, 5*time.Millisecond)
		close(done)
	}()

	select {
	case <-swept:
	case <-time.After(time.Second):
		t.Fatal("sweeper never ran")
	}
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop")
	}
}
