package handler

import (
	"context"

	"github.com/labstack/echo/v4"
	geojson "github.com/paulmach/go.geojson"
	"github.com/stretchr/testify/mock"

	"civicreport/internal/auth"
	"civicreport/internal/middleware"
	"civicreport/internal/model"
	"civicreport/internal/service"
)

// MockAuthService is a mock implementation of AuthService.
type MockAuthService struct {
	mock.Mock
}

func (m *MockAuthService) SendOTP(ctx context.Context, email string) error {
	return m.Called(ctx, email).Error(0)
}

func (m *MockAuthService) VerifyOTP(ctx context.Context, email, code string) (string, *model.User, error) {
	args := m.Called(ctx, email, code)
	if args.Get(1) == nil {
		return "", nil, args.Error(2)
	}
	return args.String(0), args.Get(1).(*model.User), args.Error(2)
}

func (m *MockAuthService) Logout(ctx context.Context, claims *auth.Claims) error {
	return m.Called(ctx, claims).Error(0)
}

func (m *MockAuthService) Me(ctx context.Context, userID uint) (*model.User, error) {
	args := m.Called(ctx, userID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

// MockIssueService is a mock implementation of IssueService.
type MockIssueService struct {
	mock.Mock
}

func (m *MockIssueService) Create(ctx context.Context, in service.CreateIssueInput) (*model.Issue, error) {
	args := m.Called(ctx, in)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Issue), args.Error(1)
}

func (m *MockIssueService) List(ctx context.Context) ([]model.Issue, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.Issue), args.Error(1)
}

func (m *MockIssueService) ListGeoJSON(ctx context.Context) (*geojson.FeatureCollection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*geojson.FeatureCollection), args.Error(1)
}

func (m *MockIssueService) Resolve(ctx context.Context, issueID, requesterID uint) error {
	return m.Called(ctx, issueID, requesterID).Error(0)
}

func newEcho() *echo.Echo {
	e := echo.New()
	e.Validator = NewValidator()
	return e
}

// signedIn stands in for the session middleware.
func signedIn(userID uint) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			middleware.SetClaims(c, &auth.Claims{UserID: userID, Email: "citizen@example.com"})
			return next(c)
		}
	}
}
