package service

import (
	"context"
	"io"
	"time"

	"github.com/stretchr/testify/mock"

	"civicreport/internal/events"
	"civicreport/internal/model"
)

// MockOTPRepository is a mock implementation of OTPRepository.
type MockOTPRepository struct {
	mock.Mock
}

func (m *MockOTPRepository) Upsert(ctx context.Context, otp *model.EmailOTP) error {
	args := m.Called(ctx, otp)
	return args.Error(0)
}

func (m *MockOTPRepository) FindByEmail(ctx context.Context, email string) (*model.EmailOTP, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.EmailOTP), args.Error(1)
}

func (m *MockOTPRepository) Consume(ctx context.Context, email, codeHash string) (int64, error) {
	args := m.Called(ctx, email, codeHash)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockOTPRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindOrCreateByEmail(ctx context.Context, email string, now time.Time) (*model.User, error) {
	args := m.Called(ctx, email, now)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uint) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockIssueRepository is a mock implementation of IssueRepository.
type MockIssueRepository struct {
	mock.Mock
}

func (m *MockIssueRepository) Create(ctx context.Context, issue *model.Issue) error {
	args := m.Called(ctx, issue)
	return args.Error(0)
}

func (m *MockIssueRepository) List(ctx context.Context) ([]model.Issue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Issue), args.Error(1)
}

func (m *MockIssueRepository) MarkResolved(ctx context.Context, id, userID uint, at time.Time) (int64, error) {
	args := m.Called(ctx, id, userID, at)
	return args.Get(0).(int64), args.Error(1)
}

func (m *MockIssueRepository) CountOwned(ctx context.Context, id, userID uint) (int64, error) {
	args := m.Called(ctx, id, userID)
	return args.Get(0).(int64), args.Error(1)
}

// MockMailer is a mock implementation of notify.Mailer.
type MockMailer struct {
	mock.Mock
}

func (m *MockMailer) SendOTP(ctx context.Context, email, code string, ttl time.Duration) error {
	args := m.Called(ctx, email, code, ttl)
	return args.Error(0)
}

// MockLimiter is a mock implementation of cache.Limiter.
type MockLimiter struct {
	mock.Mock
}

func (m *MockLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) bool {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0)
}

// allowAll never throttles.
type allowAll struct{}

func (allowAll) Allow(context.Context, string, int, time.Duration) bool { return true }

// MockBlobStore is a mock implementation of blob.Store.
type MockBlobStore struct {
	mock.Mock
}

func (m *MockBlobStore) Put(ctx context.Context, name string, r io.Reader, size int64, contentType string) (string, error) {
	args := m.Called(ctx, name, r, size, contentType)
	return args.String(0), args.Error(1)
}

// MockPublisher is a mock implementation of events.Publisher.
type MockPublisher struct {
	mock.Mock
}

func (m *MockPublisher) Publish(ctx context.Context, event events.IssueEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

func (m *MockPublisher) Close() error {
	return m.Called().Error(0)
}

// MockOTPService is a mock implementation of OTPService.
type MockOTPService struct {
	mock.Mock
}

func (m *MockOTPService) RequestChallenge(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockOTPService) VerifyChallenge(ctx context.Context, email, code string) error {
	return m.Called(ctx, email, code).Error(0)
}

func (m *MockOTPService) SweepExpired(ctx context.Context, now time.Time) (int64, error) {
	args := m.Called(ctx, now)
	return args.Get(0).(int64), args.Error(1)
}

// MockIdentityService is a mock implementation of IdentityService.
type MockIdentityService struct {
	mock.Mock
}

func (m *MockIdentityService) ResolveOrCreate(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockIdentityService) FindByID(ctx context.Context, id uint) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}
