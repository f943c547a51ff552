package middleware

import (
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"

	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Ledger roles carried in the JWT "role" claim. Token issuance lives outside this service.
const (
	RoleAdmin      = "admin"
	RoleAccountant = "accountant"
	RoleViewer     = "viewer"
)

var (
	secretMu  sync.RWMutex
	jwtSecret []byte
)

// SetJWTSecret installs the signing secret loaded from configuration.
func SetJWTSecret(secret string) {
	secretMu.Lock()
	defer secretMu.Unlock()
	jwtSecret = []byte(secret)
}

func GetJWTSecret() []byte {
	secretMu.RLock()
	secret := jwtSecret
	secretMu.RUnlock()
	if len(secret) > 0 {
		return secret
	}
	if env := os.Getenv("JWT_SECRET"); env != "" {
		return []byte(env)
	}
	if os.Getenv("GIN_MODE") == "release" {
		panic("FATAL: JWT_SECRET environment variable is required in production mode")
	}
	return []byte("default_super_secret_key") // development fallback only
}

// ReadAccess allows every ledger role.
func ReadAccess() gin.HandlerFunc {
	return RequireRole(RoleAdmin, RoleAccountant, RoleViewer)
}

// WriteAccess allows roles that may post to the books.
func WriteAccess() gin.HandlerFunc {
	return RequireRole(RoleAdmin, RoleAccountant)
}

func AdminOnly() gin.HandlerFunc {
	return RequireRole(RoleAdmin)
}

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrMissingRole  = errors.New("role not found in token")
)

// Identity is the caller named by a verified token.
type Identity struct {
	UserID string
	Role   string
}

// ParseToken verifies an HMAC-signed token against the configured secret.
func ParseToken(tokenString string) (Identity, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return GetJWTSecret(), nil
	})
	if err != nil || !token.Valid {
		return Identity{}, ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return Identity{}, ErrInvalidToken
	}
	role, ok := claims["role"].(string)
	if !ok || role == "" {
		return Identity{}, ErrMissingRole
	}
	userID, _ := claims["sub"].(string)
	return Identity{UserID: userID, Role: role}, nil
}

// HasRole reports whether role is one of allowed.
func HasRole(role string, allowed ...string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

// RequireRole validates the JWT from the access_token cookie or the bearer header
// and admits only the listed roles.
func RequireRole(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, cookieErr := c.Cookie("access_token")
		if cookieErr != nil || tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			if authHeader == "" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Authorization is missing"))
				return
			}

			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid authorization format. Expected 'Bearer <token>'"))
				return
			}
			tokenString = parts[1]
		}

		id, err := ParseToken(tokenString)
		switch {
		case errors.Is(err, ErrMissingRole):
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Role not found in token"))
			return
		case err != nil:
			c.AbortWithStatusJSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "Invalid token"))
			return
		}

		if !HasRole(id.Role, allowedRoles...) {
			c.AbortWithStatusJSON(http.StatusForbidden, response.Error(http.StatusForbidden, "Access denied: insufficient permissions"))
			return
		}

		c.Set("userID", id.UserID)
		c.Set("userRole", id.Role)

		c.Next()
	}
}
