package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/db"
	"github.com/sensorops/userdir/internal/store"
)

func newTestStore(t *testing.T) *store.RecordStore {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "handlers.db")
	conn, err := db.Open(dsn)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := db.Migrate(context.Background(), conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return store.NewRecordStore(conn)
}

func newUserRouter(t *testing.T) (*gin.Engine, *store.RecordStore) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	records := newTestStore(t)
	h := NewUserRecordHandler(records)

	r := gin.New()
	r.POST("/users", h.Create)
	r.GET("/users", h.List)
	r.POST("/users/validate", h.Validate)
	r.GET("/users/schema", h.Schema)
	r.GET("/users/:id", h.Get)
	r.PUT("/users/:id", h.Update)
	r.DELETE("/users/:id", h.Delete)
	r.POST("/users/:id/token", h.RegenerateToken)
	return r, records
}

func doJSON(t *testing.T, r *gin.Engine, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errUnmarshal := json.Unmarshal(w.Body.Bytes(), &out); errUnmarshal != nil {
		t.Fatalf("decode response: %v", errUnmarshal)
	}
	return out
}

func TestUserRecordHandler_CreateAndGet(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{
		"name":         "jdoe",
		"eMailAddress": "jdoe@example.com",
		"badgeColor":   "blue",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create status: %d body=%s", w.Code, w.Body.String())
	}
	created := decodeBody(t, w)
	record, ok := created["record"].(map[string]any)
	if !ok {
		t.Fatalf("missing record in response: %v", created)
	}
	if record["name"] != "jdoe" {
		t.Fatalf("unexpected name: %v", record["name"])
	}
	if record["badgeColor"] != "blue" {
		t.Fatalf("expected unknown field to be stored")
	}
	if record["registrationDate"] == nil {
		t.Fatalf("expected registrationDate to be assigned")
	}

	id := created["id"].(float64)
	w = doJSON(t, r, http.MethodGet, "/users/"+jsonID(id), nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status: %d", w.Code)
	}
}

func jsonID(id float64) string {
	return strconv.FormatUint(uint64(id), 10)
}

func TestUserRecordHandler_CreateValidationError(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{
		"eMailAddress": "anon@example.com",
	})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["code"] != "missing_required_field" {
		t.Fatalf("unexpected code: %v", body["code"])
	}
	if body["field"] != "name" {
		t.Fatalf("unexpected field: %v", body["field"])
	}
}

func TestUserRecordHandler_DuplicateName(t *testing.T) {
	r, _ := newUserRouter(t)

	if w := doJSON(t, r, http.MethodPost, "/users", map[string]any{"name": "dup"}); w.Code != http.StatusCreated {
		t.Fatalf("first create: %d", w.Code)
	}
	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{"name": "dup"})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", w.Code)
	}
}

func TestUserRecordHandler_ReadOnlyRejectsMutation(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{
		"name":     "frozen",
		"readOnly": true,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	id := jsonID(decodeBody(t, w)["id"].(float64))

	w = doJSON(t, r, http.MethodPut, "/users/"+id, map[string]any{"title": "Dr"})
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on update, got %d", w.Code)
	}
	w = doJSON(t, r, http.MethodDelete, "/users/"+id, nil)
	if w.Code != http.StatusForbidden {
		t.Fatalf("expected 403 on delete, got %d", w.Code)
	}
}

func TestUserRecordHandler_RegistrationDateImmutable(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{
		"name":             "dated",
		"registrationDate": "2020-01-02T03:04:05Z",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	id := jsonID(decodeBody(t, w)["id"].(float64))

	w = doJSON(t, r, http.MethodPut, "/users/"+id, map[string]any{
		"registrationDate": "2024-01-01T00:00:00Z",
	})
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d body=%s", w.Code, w.Body.String())
	}
}

func TestUserRecordHandler_TokenRegeneration(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users", map[string]any{"name": "tokened"})
	if w.Code != http.StatusCreated {
		t.Fatalf("create: %d", w.Code)
	}
	id := jsonID(decodeBody(t, w)["id"].(float64))

	w = doJSON(t, r, http.MethodPost, "/users/"+id+"/token", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("token status: %d", w.Code)
	}
	body := decodeBody(t, w)
	token, _ := body["api_token"].(string)
	if token == "" {
		t.Fatalf("expected a token in the response")
	}

	// Unified records refuse regeneration.
	w = doJSON(t, r, http.MethodPost, "/users", map[string]any{
		"name":     "synced",
		"unified":  true,
		"apiToken": "udt-fixed",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("create unified: %d", w.Code)
	}
	unifiedID := jsonID(decodeBody(t, w)["id"].(float64))
	w = doJSON(t, r, http.MethodPost, "/users/"+unifiedID+"/token", nil)
	if w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for unified record, got %d", w.Code)
	}
}

func TestUserRecordHandler_Validate(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodPost, "/users/validate", map[string]any{
		"name":     "dryrun",
		"external": true,
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status: %d", w.Code)
	}
	body := decodeBody(t, w)
	if body["valid"] != true {
		t.Fatalf("expected valid result: %v", body)
	}
	if body["provenance"] != "external_federated" {
		t.Fatalf("unexpected provenance: %v", body["provenance"])
	}

	w = doJSON(t, r, http.MethodPost, "/users/validate", map[string]any{
		"name": "dryrun",
		"id":   "not-a-number",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("validate status: %d", w.Code)
	}
	body = decodeBody(t, w)
	if body["valid"] != false {
		t.Fatalf("expected invalid result")
	}
	if body["code"] != "type_mismatch" || body["field"] != "id" {
		t.Fatalf("unexpected error details: %v", body)
	}

	// Nothing was stored by either call.
	w = doJSON(t, r, http.MethodGet, "/users", nil)
	listBody := decodeBody(t, w)
	users, _ := listBody["users"].([]any)
	if len(users) != 0 {
		t.Fatalf("validate must not persist records, found %d", len(users))
	}
}

func TestUserRecordHandler_Schema(t *testing.T) {
	r, _ := newUserRouter(t)

	w := doJSON(t, r, http.MethodGet, "/users/schema", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("schema status: %d", w.Code)
	}
	body := decodeBody(t, w)
	fields, _ := body["fields"].([]any)
	if len(fields) == 0 {
		t.Fatalf("expected field catalog")
	}
	var sawName bool
	for _, f := range fields {
		doc, _ := f.(map[string]any)
		if doc["name"] == "name" {
			sawName = true
			if doc["required"] != true {
				t.Fatalf("name must be marked required")
			}
		}
	}
	if !sawName {
		t.Fatalf("name missing from catalog")
	}
}
