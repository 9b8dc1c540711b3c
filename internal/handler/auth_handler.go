package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"civicreport/internal/errors"
	"civicreport/internal/middleware"
	"civicreport/internal/service"
)

// AuthHandler handles authentication endpoints.
type AuthHandler struct {
	authService service.AuthService
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(authService service.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// SendOTPRequest asks for a code to be emailed.
type SendOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=255" example:"citizen@example.com"`
}

// VerifyOTPRequest redeems an emailed code.
type VerifyOTPRequest struct {
	Email string `json:"email" validate:"required,email,max=255" example:"citizen@example.com"`
	OTP   string `json:"otp" validate:"required" example:"123456"`
}

// VerifyOTPResponse carries the session token for subsequent calls.
type VerifyOTPResponse struct {
	UserID uint   `json:"user_id" example:"1"`
	Email  string `json:"email" example:"citizen@example.com"`
	Token  string `json:"token"`
}

// MeResponse describes the signed-in user.
type MeResponse struct {
	UserID uint   `json:"user_id" example:"1"`
	Email  string `json:"email" example:"citizen@example.com"`
}

// SendOTP godoc
// @Summary Email a one-time code
// @Description Replaces any outstanding code for the address.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body SendOTPRequest true "Email address"
// @Success 200 {object} SuccessResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /send-otp [post]
func (h *AuthHandler) SendOTP(c echo.Context) error {
	var req SendOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	if err := h.authService.SendOTP(c.Request().Context(), req.Email); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// VerifyOTP godoc
// @Summary Redeem a one-time code
// @Description Consumes the code and returns a session token. Send it as X-User-Id or Authorization: Bearer.
// @Tags auth
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Email and code"
// @Success 200 {object} VerifyOTPResponse
// @Failure 400 {object} errors.ErrorResponse
// @Failure 429 {object} errors.ErrorResponse
// @Failure 500 {object} errors.ErrorResponse
// @Router /verify-otp [post]
func (h *AuthHandler) VerifyOTP(c echo.Context) error {
	var req VerifyOTPRequest
	if err := bindAndValidate(c, &req); err != nil {
		return err
	}

	token, user, err := h.authService.VerifyOTP(c.Request().Context(), req.Email, req.OTP)
	if err != nil {
		return fail(err)
	}

	return c.JSON(http.StatusOK, VerifyOTPResponse{
		UserID: user.ID,
		Email:  user.Email,
		Token:  token,
	})
}

// Logout godoc
// @Summary Revoke the current session token
// @Tags auth
// @Produce json
// @Security SessionToken
// @Success 200 {object} SuccessResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /logout [post]
func (h *AuthHandler) Logout(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return fail(errors.ErrUnauthorized)
	}
	if err := h.authService.Logout(c.Request().Context(), claims); err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, SuccessResponse{Success: true})
}

// Me godoc
// @Summary Current user
// @Tags auth
// @Produce json
// @Security SessionToken
// @Success 200 {object} MeResponse
// @Failure 401 {object} errors.ErrorResponse
// @Router /me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	claims, ok := middleware.Claims(c)
	if !ok {
		return fail(errors.ErrUnauthorized)
	}
	user, err := h.authService.Me(c.Request().Context(), claims.UserID)
	if err != nil {
		return fail(err)
	}
	return c.JSON(http.StatusOK, MeResponse{UserID: user.ID, Email: user.Email})
}
