package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/schoolbooks/admin-console/internal/session"
)

const testSecret = "test-jwt-secret-that-is-32-chars!!"

func newAuthRouter(cfg AuthConfig) *gin.Engine {
	r := gin.New()
	r.Use(BearerAuth(cfg))
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user":   c.GetString(UserIDKey),
			"role":   c.GetString(RoleKey),
			"method": c.GetString(AuthMethodKey),
		})
	})
	return r
}

func doAuthRequest(r *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

// ---------------------------------------------------------------------------
// BearerAuth rejections
// ---------------------------------------------------------------------------

func TestBearerAuth_Rejections(t *testing.T) {
	expired, err := session.IssueToken(testSecret, "u1", "admin", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	foreign, err := session.IssueToken("another-secret", "u1", "admin", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}

	r := newAuthRouter(AuthConfig{Token: "dev-token", JWTSecret: testSecret})
	tests := []struct {
		name   string
		header string
		msg    string
	}{
		{"missing header", "", "Missing authorization header"},
		{"basic scheme", "Basic dXNlcjpwYXNz", "Authorization header must start with 'Bearer '"},
		{"empty token", "Bearer    ", "Authorization token is empty"},
		{"wrong static token", "Bearer nope", "Invalid or expired token"},
		{"expired jwt", "Bearer " + expired, "Invalid or expired token"},
		{"jwt from other secret", "Bearer " + foreign, "Invalid or expired token"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doAuthRequest(r, tt.header)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
			var body struct {
				Success bool `json:"success"`
				Error   struct {
					Message string `json:"message"`
				} `json:"error"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("body is not JSON: %v", err)
			}
			if body.Success || body.Error.Message != tt.msg {
				t.Errorf("body = %+v, want success=false message %q", body, tt.msg)
			}
		})
	}
}

func TestBearerAuth_NothingConfiguredRejectsAll(t *testing.T) {
	w := doAuthRequest(newAuthRouter(AuthConfig{}), "Bearer anything")
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", w.Code)
	}
}

// ---------------------------------------------------------------------------
// BearerAuth acceptance
// ---------------------------------------------------------------------------

func TestBearerAuth_StaticToken(t *testing.T) {
	w := doAuthRequest(newAuthRouter(AuthConfig{Token: "dev-token"}), "Bearer dev-token")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["user"] != "dev-admin" || got["method"] != "token" || got["role"] != "admin" {
		t.Errorf("context = %v", got)
	}
}

func TestBearerAuth_JWT(t *testing.T) {
	tok, err := session.IssueToken(testSecret, "teacher-17", "editor", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	w := doAuthRequest(newAuthRouter(AuthConfig{JWTSecret: testSecret}), "Bearer "+tok)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	var got map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &got)
	if got["user"] != "teacher-17" || got["role"] != "editor" || got["method"] != "jwt" {
		t.Errorf("context = %v", got)
	}
}
