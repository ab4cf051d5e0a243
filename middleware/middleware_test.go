package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"qteams/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeParser map[string]uint

func (p fakeParser) ParseToken(token string) (*services.Claims, error) {
	id, ok := p[token]
	if !ok {
		return nil, errors.New("bad token")
	}
	return &services.Claims{UserID: id, Username: "user"}, nil
}

func authRouter() *gin.Engine {
	r := gin.New()
	r.GET("/me", AuthMiddleware(fakeParser{"good": 7}), func(c *gin.Context) {
		id, ok := UserID(c)
		if !ok {
			c.Status(http.StatusTeapot)
			return
		}
		c.JSON(http.StatusOK, gin.H{"id": id, "name": c.GetString(UsernameKey)})
	})
	return r
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name   string
		target string
		header string
		status int
	}{
		{"missing token", "/me", "", http.StatusUnauthorized},
		{"bearer header", "/me", "Bearer good", http.StatusOK},
		{"lowercase scheme", "/me", "bearer good", http.StatusOK},
		{"unknown token", "/me", "Bearer bad", http.StatusUnauthorized},
		{"wrong scheme", "/me", "Basic good", http.StatusUnauthorized},
		{"query token", "/me?auth=good", "", http.StatusOK},
		{"header wins over query", "/me?auth=good", "Bearer bad", http.StatusUnauthorized},
	}

	r := authRouter()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
			if tt.status == http.StatusOK {
				assert.JSONEq(t, `{"id":7,"name":"user"}`, w.Body.String())
			}
		})
	}
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS([]string{"http://localhost:3000"}))
	r.GET("/x", func(c *gin.Context) { c.Status(http.StatusOK) })

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.test")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestAllowOrigin(t *testing.T) {
	assert.True(t, AllowOrigin(nil, ""))
	assert.True(t, AllowOrigin([]string{"*"}, "http://a"))
	assert.True(t, AllowOrigin([]string{"http://a"}, "http://a"))
	assert.False(t, AllowOrigin([]string{"http://a"}, "http://b"))
}
