package admin

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/config"
	"github.com/sensorops/userdir/internal/db"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/security"
	"github.com/sensorops/userdir/internal/store"
	"gorm.io/gorm"
)

var testJWT = config.JWTConfig{Secret: "test-secret", Expiry: time.Hour}

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "admin.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	r := gin.New()
	RegisterAdminRoutes(r, conn, store.NewRecordStore(conn), testJWT, ratelimit.NewMemoryLimiter(), 0)
	return r, conn
}

func seedAdmin(t *testing.T, conn *gorm.DB, username, password string) {
	t.Helper()
	hash, errHash := security.HashPassword(password)
	if errHash != nil {
		t.Fatalf("hash: %v", errHash)
	}
	admin := models.Admin{
		Username:     username,
		Password:     hash,
		Active:       true,
		IsSuperAdmin: true,
	}
	if errCreate := conn.Create(&admin).Error; errCreate != nil {
		t.Fatalf("seed admin: %v", errCreate)
	}
}

func postJSON(t *testing.T, r *gin.Engine, target, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, errMarshal := json.Marshal(body)
	if errMarshal != nil {
		t.Fatalf("marshal: %v", errMarshal)
	}
	req := httptest.NewRequest(http.MethodPost, target, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func login(t *testing.T, r *gin.Engine, username, password string) string {
	t.Helper()
	w := postJSON(t, r, "/v0/admin/login", "", map[string]any{
		"username": username,
		"password": password,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("login status: %d body=%s", w.Code, w.Body.String())
	}
	var body map[string]any
	if errUnmarshal := json.Unmarshal(w.Body.Bytes(), &body); errUnmarshal != nil {
		t.Fatalf("decode login: %v", errUnmarshal)
	}
	token, _ := body["token"].(string)
	if token == "" {
		t.Fatalf("missing token in login response: %v", body)
	}
	return token
}

func TestLogin(t *testing.T) {
	r, conn := newTestRouter(t)
	seedAdmin(t, conn, "root", "hunter22")

	w := postJSON(t, r, "/v0/admin/login", "", map[string]any{
		"username": "root",
		"password": "wrong",
	})
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", w.Code)
	}

	login(t, r, "root", "hunter22")
}

func TestAdminAuthMiddleware(t *testing.T) {
	r, conn := newTestRouter(t)
	seedAdmin(t, conn, "root", "hunter22")

	// No token.
	req := httptest.NewRequest(http.MethodGet, "/v0/admin/users", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", w.Code)
	}

	// Garbage token.
	req = httptest.NewRequest(http.MethodGet, "/v0/admin/users", nil)
	req.Header.Set("Authorization", "Bearer not-a-jwt")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with bad token, got %d", w.Code)
	}

	token := login(t, r, "root", "hunter22")
	req = httptest.NewRequest(http.MethodGet, "/v0/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 with valid token, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestDisabledAdminCannotUseToken(t *testing.T) {
	r, conn := newTestRouter(t)
	seedAdmin(t, conn, "root", "hunter22")
	token := login(t, r, "root", "hunter22")

	if errUpdate := conn.Model(&models.Admin{}).Where("username = ?", "root").
		Update("active", false).Error; errUpdate != nil {
		t.Fatalf("disable admin: %v", errUpdate)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/admin/users", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for disabled admin, got %d", w.Code)
	}
}

func TestHealthzAndVersion(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("healthz status: %d", w.Code)
	}

	req = httptest.NewRequest(http.MethodGet, "/v0/version", nil)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("version status: %d", w.Code)
	}
}
