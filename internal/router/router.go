package router

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/apex/log"
	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	echoSwagger "github.com/swaggo/echo-swagger"

	"civicreport/internal/config"
	apperrors "civicreport/internal/errors"
	"civicreport/internal/handler"
	"civicreport/internal/metrics"
	appmw "civicreport/internal/middleware"
)

// Handlers groups everything Register mounts.
type Handlers struct {
	Auth   *handler.AuthHandler
	Issue  *handler.IssueHandler
	Health *handler.HealthHandler
}

// Register wires routes and middleware. session guards the routes that need
// a signed in user.
func Register(e *echo.Echo, cfg *config.Config, h Handlers, session echo.MiddlewareFunc) {
	e.HideBanner = true
	e.HTTPErrorHandler = ErrorHandler
	e.Validator = handler.NewValidator()

	e.Use(middleware.RequestID())
	e.Use(appmw.RequestLogger())
	e.Use(middleware.Recover())
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{Repanic: true}))
	}
	e.Use(metrics.Middleware())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowHeaders: []string{
			echo.HeaderOrigin,
			echo.HeaderContentType,
			echo.HeaderAccept,
			echo.HeaderAuthorization,
			appmw.HeaderUserToken,
		},
	}))
	if cfg.MaxUploadBytes > 0 {
		e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxUploadBytes, 10)))
	}

	e.GET("/healthz", h.Health.Healthz)
	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	e.GET("/swagger/*", echoSwagger.WrapHandler)

	if cfg.BlobBackend == config.BlobBackendLocal {
		e.Static(cfg.UploadURLPrefix, cfg.UploadDir)
	}

	api := e.Group("/api")

	// Public routes
	api.POST("/send-otp", h.Auth.SendOTP)
	api.POST("/verify-otp", h.Auth.VerifyOTP)
	api.GET("/issues", h.Issue.ListIssues)
	api.GET("/issues.geojson", h.Issue.ListIssuesGeoJSON)

	// Routes that need a session. The middleware is attached per route so
	// unknown /api paths still answer 404 and 405.
	api.POST("/issues", h.Issue.CreateIssue, session)
	api.POST("/issues/:id/resolve", h.Issue.ResolveIssue, session)
	api.GET("/me", h.Auth.Me, session)
	api.POST("/logout", h.Auth.Logout, session)
}

// ErrorHandler writes every error as an ErrorResponse. Server errors are
// reported to sentry with their cause and the client only sees the generic body.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	status := http.StatusInternalServerError
	body := apperrors.Internal().ToErrorResponse()

	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		switch msg := he.Message.(type) {
		case apperrors.ErrorResponse:
			body = msg
		case string:
			body = apperrors.ErrorResponse{Error: msg, Code: codeForStatus(status)}
		default:
			body = apperrors.ErrorResponse{Error: http.StatusText(status), Code: codeForStatus(status)}
		}
	}

	if status >= http.StatusInternalServerError {
		cause := err
		if he != nil && he.Internal != nil {
			cause = he.Internal
		}
		if hub := sentryecho.GetHubFromContext(c); hub != nil {
			hub.CaptureException(cause)
		} else {
			sentry.CaptureException(cause)
		}
		body = apperrors.Internal().ToErrorResponse()
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, body)
	}
	if werr != nil {
		log.WithError(werr).Warn("write error response")
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusTooManyRequests:
		return "RATE_LIMITED"
	default:
		if status >= http.StatusInternalServerError {
			return "INTERNAL_ERROR"
		}
		return "REQUEST_FAILED"
	}
}
