package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

// Claims are the token claims issued by the identity service. Older tokens
// carry the user id in id_user and a single role; newer ones use sub and roles.
type Claims struct {
	jwt.RegisteredClaims
	UserID   flexID   `json:"id_user,omitempty"`
	Username string   `json:"username,omitempty"`
	Role     string   `json:"role,omitempty"`
	Roles    []string `json:"roles,omitempty"`
}

// flexID accepts both numeric and string JSON ids.
type flexID string

func (f *flexID) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexID(n.String())
	return nil
}

// Identity resolves the caller identity carried by the claims.
func (c *Claims) Identity() (Identity, bool) {
	subject := c.Subject
	if subject == "" {
		subject = string(c.UserID)
	}
	if subject == "" {
		return Identity{}, false
	}

	candidates := append([]string{c.Role}, c.Roles...)
	for _, raw := range candidates {
		if raw == "" {
			continue
		}
		if role, ok := ParseRole(raw); ok {
			return Identity{SubjectID: subject, Role: role}, true
		}
	}
	return Identity{}, false
}

type JWTConfig struct {
	// SigningKey is the HMAC secret shared with the identity service.
	SigningKey []byte
	Issuer     string
	Audience   string
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
		return "", false
	}
	tok := strings.TrimSpace(parts[1])
	return tok, tok != ""
}

// ParseToken validates tokenStr and returns its claims.
func ParseToken(cfg JWTConfig, tokenStr string) (*Claims, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{"HS256"}),
	}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		return cfg.SigningKey, nil
	}, opts...)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// JWTMiddleware authenticates the bearer credential and attaches the caller
// identity and the raw credential to the request context.
func JWTMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "missing authorization header")
			}

			tokenStr, ok := BearerToken(authHeader)
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid authorization format")
			}

			claims, err := ParseToken(cfg, tokenStr)
			if err != nil {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token")
			}

			id, ok := claims.Identity()
			if !ok {
				return echo.NewHTTPError(http.StatusUnauthorized, "invalid token payload")
			}

			ctx := WithIdentity(c.Request().Context(), id)
			ctx = WithCredential(ctx, tokenStr)
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("subject_id", id.SubjectID)

			return next(c)
		}
	}
}

// DevAuthMiddleware lets unauthenticated requests through as an admin in
// development. Requests that do carry a token are still validated.
func DevAuthMiddleware(cfg JWTConfig) echo.MiddlewareFunc {
	strict := JWTMiddleware(cfg)
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		validated := strict(next)
		return func(c echo.Context) error {
			if c.Request().Header.Get("Authorization") != "" {
				return validated(c)
			}
			ctx := WithIdentity(c.Request().Context(), Identity{SubjectID: "dev-user", Role: RoleAdmin})
			c.SetRequest(c.Request().WithContext(ctx))
			c.Set("subject_id", "dev-user")
			return next(c)
		}
	}
}
