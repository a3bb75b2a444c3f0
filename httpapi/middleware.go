package httpapi

import (
	"net/http"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"
)

// APIKeyAuth validates the X-API-Key header against validKey. Grounded on
// api/rest.go's identically-shaped middleware; a missing validKey disables
// the check entirely (local/dev mode), matching how cli/root.go treats an
// unset secret as "auth not configured" rather than "reject everything".
func APIKeyAuth(validKey string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if validKey == "" {
				return next(c)
			}
			key := c.Request().Header.Get("X-API-Key")
			if key == "" || key != validKey {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid or missing API key")
			}
			return next(c)
		}
	}
}

// JWTAuth returns echo-jwt middleware accepting bearer tokens signed with
// secret, populating the request context's "user" key with *jwt.Token
// (claims accessible via httpapi.ActorFromContext). Grounded on
// api/jwt.go's echojwt.WithConfig wiring.
func JWTAuth(secret string) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		SigningKey:    []byte(secret),
		TokenLookup:   "header:Authorization:Bearer ",
		NewClaimsFunc: func(c echo.Context) jwt.Claims { return new(Claims) },
	})
}

// ActorFromContext pulls the authenticated actor id out of an echo context
// populated by JWTAuth, falling back to the X-Actor header (set by
// API-key-authenticated callers, who have no bearer claims) and finally to
// "system" for unauthenticated/internal callers.
func ActorFromContext(c echo.Context) string {
	if tok, ok := c.Get("user").(*jwt.Token); ok {
		if claims, ok := tok.Claims.(*Claims); ok && claims.ActorID != "" {
			return claims.ActorID
		}
	}
	if actor := c.Request().Header.Get("X-Actor"); actor != "" {
		return actor
	}
	return "system"
}
