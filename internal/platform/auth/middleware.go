package auth

import (
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// Claims is the token payload issued by the external identity service.
// company_id and provider_id are present only for the matching roles.
type Claims struct {
	jwt.RegisteredClaims
	Role       string `json:"role"`
	CompanyID  string `json:"company_id,omitempty"`
	ProviderID string `json:"provider_id,omitempty"`
}

type JWTConfig struct {
	Issuer     string
	SigningKey []byte
}

func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims := &Claims{}
			opts := []jwt.ParserOption{
				jwt.WithValidMethods([]string{"HS256"}),
			}
			if cfg.Issuer != "" {
				opts = append(opts, jwt.WithIssuer(cfg.Issuer))
			}

			token, err := jwt.ParseWithClaims(parts[1], claims, func(t *jwt.Token) (interface{}, error) {
				return cfg.SigningKey, nil
			}, opts...)
			if err != nil || !token.Valid {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			p, err := principalFromClaims(claims)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token claims")
			}

			c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			return next(c)
		}
	}
}

func principalFromClaims(claims *Claims) (*Principal, error) {
	p := &Principal{
		UserID: claims.Subject,
		Role:   claims.Role,
	}
	if claims.CompanyID != "" {
		id, err := uuid.Parse(claims.CompanyID)
		if err != nil {
			return nil, err
		}
		p.CompanyID = &id
	}
	if claims.ProviderID != "" {
		id, err := uuid.Parse(claims.ProviderID)
		if err != nil {
			return nil, err
		}
		p.ProviderID = &id
	}
	return p, nil
}

// DevAuthMiddleware is a permissive middleware for development that grants
// unauthenticated requests an admin principal.
func DevAuthMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") == "" {
				p := &Principal{UserID: "dev-user", Role: RoleAdmin}
				c.SetRequest(c.Request().WithContext(WithPrincipal(c.Request().Context(), p)))
			}
			return next(c)
		}
	}
}
