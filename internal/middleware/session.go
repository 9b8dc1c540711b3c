package middleware

import (
	"net/http"

	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"civicreport/internal/auth"
	apperrors "civicreport/internal/errors"
)

const (
	// HeaderUserToken carries the session token for clients that cannot set Authorization.
	HeaderUserToken = "X-User-Id"

	claimsKey = "session"
)

// Session rejects requests without a valid, unrevoked session token with 401
// and stores the claims on the context.
func Session(jwtService *auth.JWTService, tokenStore auth.TokenStoreInterface) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		ContextKey:  claimsKey,
		TokenLookup: "header:" + echo.HeaderAuthorization + ":Bearer ,header:" + HeaderUserToken,
		ParseTokenFunc: func(c echo.Context, token string) (interface{}, error) {
			claims, err := jwtService.ValidateToken(token)
			if err != nil {
				return nil, err
			}
			revoked, err := tokenStore.IsSessionRevoked(c.Request().Context(), claims.ID)
			if err != nil {
				return nil, err
			}
			if revoked {
				return nil, apperrors.ErrUnauthorized
			}
			return claims, nil
		},
		ErrorHandler: func(c echo.Context, err error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, apperrors.ErrorResponse{
				Error: apperrors.ErrUnauthorized.Error(),
				Code:  "UNAUTHORIZED",
			}).SetInternal(err)
		},
	})
}

// Claims returns the session claims stored by Session.
func Claims(c echo.Context) (*auth.Claims, bool) {
	claims, ok := c.Get(claimsKey).(*auth.Claims)
	return claims, ok && claims != nil
}

// SetClaims stores claims the way Session does.
func SetClaims(c echo.Context, claims *auth.Claims) {
	c.Set(claimsKey, claims)
}
