package transport

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"bizdash/internal/modules/dashboard/application/usecase"
	"bizdash/internal/shared/auth"
)

const (
	ctxSessionKey = "dashboard.session"
	ctxClaimsKey  = "dashboard.claims"
)

// NewAuthMiddleware validates the bearer token (Authorization header or "token"
// query parameter) and binds the request to the dashboard session named by the
// token's sid claim, creating it on first use.
func NewAuthMiddleware(validator auth.TokenValidator, sessions *usecase.SessionRegistry, logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			token := auth.ExtractToken(c.Request(), "token")
			if token == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
			}
			claims, err := validator.Validate(token)
			if err != nil {
				logger.Debug("auth rejected", slog.String("path", c.Path()), slog.String("ip", c.RealIP()), slog.Any("error", err))
				if errors.Is(err, auth.ErrMissingToken) {
					return echo.NewHTTPError(http.StatusUnauthorized, "missing token")
				}
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			sessionID := strings.TrimSpace(claims.SessionID)
			if sessionID == "" {
				sessionID = claims.Subject
			}
			session, created, err := sessions.Open(sessionID, claims.Subject, token)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "token carries no session")
			}
			if created {
				logger.Info("dashboard session bound",
					slog.String("sessionId", sessionID),
					slog.String("subject", claims.Subject),
					slog.Any("roles", claims.Roles),
				)
			}
			c.Set(ctxSessionKey, session)
			c.Set(ctxClaimsKey, claims)
			return next(c)
		}
	}
}

func sessionFrom(c echo.Context) (*usecase.Session, error) {
	session, ok := c.Get(ctxSessionKey).(*usecase.Session)
	if !ok || session == nil {
		return nil, echo.NewHTTPError(http.StatusUnauthorized, "no dashboard session")
	}
	return session, nil
}

func claimsFrom(c echo.Context) *auth.Claims {
	claims, _ := c.Get(ctxClaimsKey).(*auth.Claims)
	return claims
}
