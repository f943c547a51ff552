package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signed(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func newRouter(guard gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/guarded", guard, func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString("userID")+"|"+c.GetString("userRole"))
	})
	return r
}

func TestRequireRole(t *testing.T) {
	SetJWTSecret(testSecret)
	t.Cleanup(func() { SetJWTSecret("") })

	exp := time.Now().Add(time.Hour).Unix()
	tests := []struct {
		name   string
		guard  gin.HandlerFunc
		header string
		cookie string
		want   int
		body   string
	}{
		{"viewer may read", ReadAccess(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleViewer, "exp": exp}), "", http.StatusOK, "u1|viewer"},
		{"viewer may not write", WriteAccess(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleViewer, "exp": exp}), "", http.StatusForbidden, ""},
		{"accountant may write", WriteAccess(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u2", "role": RoleAccountant, "exp": exp}), "", http.StatusOK, "u2|accountant"},
		{"accountant is not admin", AdminOnly(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u2", "role": RoleAccountant, "exp": exp}), "", http.StatusForbidden, ""},
		{"admin via cookie", AdminOnly(), "", signed(t, testSecret, jwt.MapClaims{"sub": "u3", "role": RoleAdmin, "exp": exp}), http.StatusOK, "u3|admin"},
		{"missing token", ReadAccess(), "", "", http.StatusUnauthorized, ""},
		{"wrong scheme", ReadAccess(), "Token abc", "", http.StatusUnauthorized, ""},
		{"wrong secret", ReadAccess(), "Bearer " + signed(t, "other", jwt.MapClaims{"sub": "u1", "role": RoleAdmin, "exp": exp}), "", http.StatusUnauthorized, ""},
		{"expired", ReadAccess(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u1", "role": RoleAdmin, "exp": time.Now().Add(-time.Hour).Unix()}), "", http.StatusUnauthorized, ""},
		{"no role", ReadAccess(), "Bearer " + signed(t, testSecret, jwt.MapClaims{"sub": "u1", "exp": exp}), "", http.StatusForbidden, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/guarded", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: "access_token", Value: tt.cookie})
			}
			w := httptest.NewRecorder()
			newRouter(tt.guard).ServeHTTP(w, req)

			assert.Equal(t, tt.want, w.Code)
			if tt.body != "" {
				assert.Equal(t, tt.body, w.Body.String())
			}
		})
	}
}

func TestParseToken(t *testing.T) {
	SetJWTSecret(testSecret)
	t.Cleanup(func() { SetJWTSecret("") })
	exp := time.Now().Add(time.Hour).Unix()

	id, err := ParseToken(signed(t, testSecret, jwt.MapClaims{"sub": "u9", "role": RoleAccountant, "exp": exp}))
	require.NoError(t, err)
	assert.Equal(t, Identity{UserID: "u9", Role: RoleAccountant}, id)
	assert.True(t, HasRole(id.Role, RoleAdmin, RoleAccountant))
	assert.False(t, HasRole(id.Role, RoleAdmin))

	_, err = ParseToken(signed(t, testSecret, jwt.MapClaims{"sub": "u9", "exp": exp}))
	assert.ErrorIs(t, err, ErrMissingRole)

	_, err = ParseToken("not-a-token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
