package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapErrorToHTTP(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
		wantMsg    string
	}{
		{
			name:       "validation",
			err:        NewValidationError("latitude", "must be between -90 and 90"),
			wantStatus: http.StatusBadRequest,
			wantCode:   "VALIDATION_ERROR",
			wantMsg:    "latitude: must be between -90 and 90",
		},
		{
			name:       "wrapped forbidden",
			err:        fmt.Errorf("resolve issue 7: %w", ErrForbidden),
			wantStatus: http.StatusForbidden,
			wantCode:   "FORBIDDEN",
			wantMsg:    ErrForbidden.Error(),
		},
		{
			name:       "otp invalid",
			err:        ErrOTPInvalid,
			wantStatus: http.StatusBadRequest,
			wantCode:   "OTP_INVALID",
			wantMsg:    "invalid or expired code",
		},
		{
			name:       "unauthorized",
			err:        ErrUnauthorized,
			wantStatus: http.StatusUnauthorized,
			wantCode:   "UNAUTHORIZED",
			wantMsg:    ErrUnauthorized.Error(),
		},
		{
			name:       "rate limited",
			err:        ErrRateLimited,
			wantStatus: http.StatusTooManyRequests,
			wantCode:   "RATE_LIMITED",
			wantMsg:    ErrRateLimited.Error(),
		},
		{
			name:       "store failure is hidden",
			err:        errors.New("Error 1146: Table 'civicreport.issues' doesn't exist"),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "internal server error",
		},
		{
			name:       "delivery failure is hidden",
			err:        fmt.Errorf("%w: sendgrid returned status 401", ErrDeliveryFailed),
			wantStatus: http.StatusInternalServerError,
			wantCode:   "INTERNAL_ERROR",
			wantMsg:    "internal server error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := MapErrorToHTTP(tt.err)
			assert.Equal(t, tt.wantStatus, got.StatusCode)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantMsg, got.Message)
			assert.Equal(t, ErrorResponse{Error: tt.wantMsg, Code: tt.wantCode}, got.ToErrorResponse())
		})
	}
}
