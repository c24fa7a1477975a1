// README: Tests for the bearer-token auth middleware and role guard.
package middleware_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"vitecab/internal/http/middleware"
	"vitecab/internal/infra"
)

// stubVerifier is a test double for infra.TokenVerifier.
type stubVerifier struct {
	token *infra.Token
	err   error
}

func (s *stubVerifier) VerifyToken(_ context.Context, _ string) (*infra.Token, error) {
	return s.token, s.err
}

func newTestRouter(verifier infra.TokenVerifier) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(middleware.Auth(verifier))
	r.GET("/test", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"uid": middleware.CallerUID(c), "role": middleware.CallerRole(c)})
	})
	r.GET("/admin", middleware.RequireRole(middleware.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func serve(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuth_MissingHeader(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.Token{UID: "user1"}})
	if w := serve(r, "/test", ""); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_InvalidBearerPrefix(t *testing.T) {
	r := newTestRouter(&stubVerifier{token: &infra.Token{UID: "user1"}})
	if w := serve(r, "/test", "Token sometoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_VerifierError(t *testing.T) {
	r := newTestRouter(&stubVerifier{err: errors.New("bad token")})
	if w := serve(r, "/test", "Bearer invalidtoken"); w.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", w.Code)
	}
}

func TestAuth_ValidToken_UIDAndRolePopulated(t *testing.T) {
	token := &infra.Token{UID: "driver123", Claims: map[string]interface{}{"role": "driver"}}
	w := serve(newTestRouter(&stubVerifier{token: token}), "/test", "Bearer validtoken")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	body := w.Body.String()
	if !strings.Contains(body, `"uid":"driver123"`) || !strings.Contains(body, `"role":"driver"`) {
		t.Errorf("expected uid and role in body, got %s", body)
	}
}

func TestAuth_RealJWT(t *testing.T) {
	raw, err := infra.SignToken("secret", "customer9", "")
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	w := serve(newTestRouter(infra.NewJWTVerifier("secret")), "/test", "Bearer "+raw)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "customer9") {
		t.Fatalf("expected 200 with uid, got %d %s", w.Code, w.Body.String())
	}
}

func TestRequireRole(t *testing.T) {
	admin := &infra.Token{UID: "a1", Claims: map[string]interface{}{"role": "admin"}}
	if w := serve(newTestRouter(&stubVerifier{token: admin}), "/admin", "Bearer x"); w.Code != http.StatusNoContent {
		t.Errorf("expected 204 for admin, got %d", w.Code)
	}
	customer := &infra.Token{UID: "c1", Claims: map[string]interface{}{}}
	if w := serve(newTestRouter(&stubVerifier{token: customer}), "/admin", "Bearer x"); w.Code != http.StatusForbidden {
		t.Errorf("expected 403 without role, got %d", w.Code)
	}
}
