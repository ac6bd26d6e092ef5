package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"Messenger/tools/security"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authRig(t *testing.T) (*gin.Engine, security.Options) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	opts := security.DefaultOptions([]byte("test-secret"))

	r := gin.New()
	r.GET("/me", Auth(opts), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(CtxUserIDKey))
	})
	return r, opts
}

func TestAuthPassesVerifiedUser(t *testing.T) {
	r, opts := authRig(t)
	token, _, err := security.Generate(opts, "alice")
	require.NoError(t, err)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alice", w.Body.String())
}

func TestAuthRejects(t *testing.T) {
	r, _ := authRig(t)
	otherToken, _, err := security.Generate(security.DefaultOptions([]byte("other-secret")), "alice")
	require.NoError(t, err)

	cases := map[string]string{
		"no header":    "",
		"not bearer":   "Basic abc",
		"bad token":    "Bearer not-a-jwt",
		"wrong secret": "Bearer " + otherToken,
	}
	for name, authz := range cases {
		t.Run(name, func(t *testing.T) {
			w := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if authz != "" {
				req.Header.Set("Authorization", authz)
			}
			r.ServeHTTP(w, req)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
		})
	}
}
