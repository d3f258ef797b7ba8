package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"

	"github.com/hl7results/gateway/internal/platform/middleware"
)

type contextKey string

const PrincipalKey contextKey = "principal"

// Modes accepted by Middleware.
const (
	ModeDevelopment = "development"
	ModeAPIKey      = "apikey"
	ModeJWT         = "jwt"
)

// devPrincipal identifies callers when authentication is disabled.
const devPrincipal = "dev"

type Claims struct {
	jwt.RegisteredClaims
	// Source is the sending system the token was issued to.
	Source string `json:"source,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	Audience   string
	SigningKey []byte
}

// Config selects and configures the authentication scheme.
type Config struct {
	Mode    string
	APIKeys []string
	JWT     JWTConfig
}

// Middleware returns the authentication middleware for cfg.Mode. Public
// paths (see AuthSkipper) are never authenticated.
func Middleware(cfg Config) (echo.MiddlewareFunc, error) {
	switch cfg.Mode {
	case ModeDevelopment:
		return DevAuthMiddleware(), nil
	case ModeAPIKey:
		if len(cfg.APIKeys) == 0 {
			return nil, fmt.Errorf("auth: mode %q requires at least one API key", cfg.Mode)
		}
		return APIKeyMiddleware(cfg.APIKeys), nil
	case ModeJWT:
		if len(cfg.JWT.SigningKey) == 0 {
			return nil, fmt.Errorf("auth: mode %q requires a signing key", cfg.Mode)
		}
		return JWTMiddleware(cfg.JWT), nil
	default:
		return nil, fmt.Errorf("auth: unknown mode %q", cfg.Mode)
	}
}

// JWTMiddleware validates HS256 bearer tokens signed with cfg.SigningKey.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}
	parser := jwt.NewParser(opts...)
	keyFunc := func(*jwt.Token) (interface{}, error) { return cfg.SigningKey, nil }

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if AuthSkipper(c) {
				return next(c)
			}

			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || strings.TrimSpace(parts[1]) == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			token, err := parser.ParseWithClaims(strings.TrimSpace(parts[1]), claims, keyFunc)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			principal := claims.Subject
			if principal == "" {
				principal = claims.Source
			}
			setPrincipal(c, "jwt:"+principal)
			return next(c)
		}
	}
}

// DevAuthMiddleware lets every request through under a fixed principal.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			setPrincipal(c, devPrincipal)
			return next(c)
		}
	}
}

func setPrincipal(c echo.Context, principal string) {
	c.Set(middleware.PrincipalKey, principal)
	ctx := context.WithValue(c.Request().Context(), PrincipalKey, principal)
	c.SetRequest(c.Request().WithContext(ctx))
}

// PrincipalFromContext returns the authenticated caller, or "" when the
// request was not authenticated.
func PrincipalFromContext(ctx context.Context) string {
	p, _ := ctx.Value(PrincipalKey).(string)
	return p
}
