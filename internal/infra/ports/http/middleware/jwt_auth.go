package middleware

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/qrave1/CoachSpeak/internal/domain"
	"github.com/qrave1/CoachSpeak/internal/infra/appctx"
)

// Claims - токен коллаборатора авторизации. Subject - user id.
type Claims struct {
	Role domain.Role `json:"role"`
	Name string      `json:"name,omitempty"`

	jwt.RegisteredClaims
}

// IssueToken подписывает токен для identity
func IssueToken(secret string, id appctx.Identity, ttl time.Duration) (string, error) {
	now := time.Now()

	claims := Claims{
		Role: id.Role,
		Name: id.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}

	return signed, nil
}

func JWTAuthMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			raw := tokenFromRequest(c)
			if raw == "" {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "missing or malformed jwt"})
			}

			claims := new(Claims)

			token, err := jwt.ParseWithClaims(
				raw,
				claims,
				func(token *jwt.Token) (any, error) {
					return []byte(secret), nil
				},
				jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			)
			if err != nil || !token.Valid {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid or expired jwt"})
			}

			userID, err := uuid.Parse(claims.Subject)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{"error": "invalid subject"})
			}

			// агент - серверный участник, человеку эта роль не выдаётся
			if !claims.Role.Human() {
				return c.JSON(http.StatusForbidden, map[string]string{"error": "invalid role"})
			}

			name := claims.Name
			if name == "" {
				name = string(claims.Role)
			}

			c.SetRequest(
				c.Request().WithContext(
					appctx.WithIdentity(c.Request().Context(), appctx.Identity{
						UserID:      userID,
						Role:        claims.Role,
						DisplayName: name,
					}),
				),
			)

			return next(c)
		}
	}
}

// tokenFromRequest: cookie jwt, затем Authorization: Bearer, затем ?token= для WebSocket
func tokenFromRequest(c echo.Context) string {
	if cookie, err := c.Cookie("jwt"); err == nil && cookie.Value != "" {
		return cookie.Value
	}

	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}

	return c.QueryParam("token")
}
