package store

import (
	"context"
	"errors"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/schema"
	"gorm.io/gorm"
)

func newTestStore(t *testing.T) *RecordStore {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{TranslateError: true})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.UserRecord{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return NewRecordStore(conn)
}

func mustValidate(t *testing.T, candidate map[string]any) *schema.User {
	t.Helper()
	user, err := schema.Validate(candidate)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return user
}

func TestCreate_AssignsIDAndRegistrationDate(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if entry.ID == 0 {
		t.Fatalf("expected assigned id")
	}
	if entry.User.ID == nil || uint64(*entry.User.ID) != entry.ID {
		t.Fatalf("expected id stored in record, got %v", entry.User.ID)
	}
	if entry.User.RegistrationDate == nil {
		t.Fatalf("expected registrationDate fixed at creation")
	}

	loaded, errGet := s.GetByName(ctx, "alice")
	if errGet != nil {
		t.Fatalf("get by name: %v", errGet)
	}
	if !loaded.User.RegistrationDate.Equal(*entry.User.RegistrationDate) {
		t.Fatalf("registrationDate changed across reload")
	}
}

func TestCreate_DuplicateName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"})); err != nil {
		t.Fatalf("create: %v", err)
	}
	_, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"}))
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}
}

func TestUpdate_RenameToTakenName(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"})); err != nil {
		t.Fatalf("create alice: %v", err)
	}
	entry, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "bob"}))
	if err != nil {
		t.Fatalf("create bob: %v", err)
	}

	_, err = s.Update(ctx, entry.ID, map[string]any{"name": "alice"})
	if !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("expected ErrDuplicateName, got %v", err)
	}

	// The record is unchanged after the failed rename.
	loaded, errGet := s.Get(ctx, entry.ID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if loaded.User.Name != "bob" {
		t.Fatalf("expected name unchanged, got %q", loaded.User.Name)
	}
}

func TestCreate_PreservesUnknownFields(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{
		"name":        "alice",
		"customField": "kept",
	}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	loaded, errGet := s.Get(ctx, entry.ID)
	if errGet != nil {
		t.Fatalf("get: %v", errGet)
	}
	if loaded.User.Extra["customField"] != "kept" {
		t.Fatalf("expected customField preserved, got %v", loaded.User.Extra)
	}
}

func TestUpdate_ReadOnlyRejected(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{
		"name":     "svc-backup",
		"readOnly": true,
	}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if _, errUpdate := s.Update(ctx, entry.ID, map[string]any{"comments": "nope"}); !errors.Is(errUpdate, ErrReadOnlyRecord) {
		t.Fatalf("expected ErrReadOnlyRecord, got %v", errUpdate)
	}
	if errDelete := s.Delete(ctx, entry.ID); !errors.Is(errDelete, ErrReadOnlyRecord) {
		t.Fatalf("expected ErrReadOnlyRecord on delete, got %v", errDelete)
	}
}

func TestUpdate_RegistrationDateImmutable(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{
		"name":             "alice",
		"registrationDate": "2024-03-07T15:04:05Z",
	}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, errUpdate := s.Update(ctx, entry.ID, map[string]any{"registrationDate": "2025-01-01T00:00:00Z"})
	if !errors.Is(errUpdate, ErrImmutableRegistrationDate) {
		t.Fatalf("expected ErrImmutableRegistrationDate, got %v", errUpdate)
	}

	// Same value is not a change.
	if _, errSame := s.Update(ctx, entry.ID, map[string]any{"registrationDate": "2024-03-07T15:04:05Z"}); errSame != nil {
		t.Fatalf("expected same-value update to pass, got %v", errSame)
	}
}

func TestUpdate_UnifiedCredentialsPreserved(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{
		"name":         "federated",
		"unified":      true,
		"external":     true,
		"passwordHash": "synced-hash",
		"apiToken":     "synced-token",
	}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	updated, errUpdate := s.Update(ctx, entry.ID, map[string]any{
		"passwordHash": "local-hash",
		"comments":     "still allowed",
	})
	if errUpdate != nil {
		t.Fatalf("update: %v", errUpdate)
	}
	if updated.User.PasswordHash == nil || *updated.User.PasswordHash != "synced-hash" {
		t.Fatalf("expected synchronized hash kept, got %v", updated.User.PasswordHash)
	}
	if updated.User.Comments == nil || *updated.User.Comments != "still allowed" {
		t.Fatalf("expected non-credential update applied")
	}

	if _, errToken := s.RegenerateToken(ctx, entry.ID, "new-token"); !errors.Is(errToken, ErrUnifiedCredentials) {
		t.Fatalf("expected ErrUnifiedCredentials, got %v", errToken)
	}
}

func TestUpdate_ValidationErrorsPassThrough(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	_, errUpdate := s.Update(ctx, entry.ID, map[string]any{"enabled": "yes"})
	var verr *schema.ValidationError
	if !errors.As(errUpdate, &verr) {
		t.Fatalf("expected ValidationError, got %v", errUpdate)
	}
	if verr.Code != schema.CodeTypeMismatch || verr.Field != schema.FieldEnabled {
		t.Fatalf("expected type_mismatch on enabled, got %s on %s", verr.Code, verr.Field)
	}
}

func TestRegenerateToken_UpdatesLookup(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	entry, err := s.Create(ctx, mustValidate(t, map[string]any{"name": "alice"}))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, errToken := s.RegenerateToken(ctx, entry.ID, "tok-1"); errToken != nil {
		t.Fatalf("regenerate: %v", errToken)
	}

	loaded, errGet := s.GetByToken(ctx, "tok-1")
	if errGet != nil {
		t.Fatalf("get by token: %v", errGet)
	}
	if loaded.ID != entry.ID {
		t.Fatalf("expected record %d, got %d", entry.ID, loaded.ID)
	}

	if _, errEmpty := s.GetByToken(ctx, ""); !errors.Is(errEmpty, gorm.ErrRecordNotFound) {
		t.Fatalf("expected not found for empty token, got %v", errEmpty)
	}
}

func TestList_Filters(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []map[string]any{
		{"name": "alice", "eMailAddress": "alice@example.com", "userGroupIds": "1,2", "department": "ops"},
		{"name": "bob", "eMailAddress": "bob@example.com", "userGroupIds": "2"},
		{"name": "carol", "enabled": false},
	}
	for _, candidate := range seed {
		if _, err := s.Create(ctx, mustValidate(t, candidate)); err != nil {
			t.Fatalf("create %v: %v", candidate["name"], err)
		}
	}

	byName, err := s.List(ctx, ListFilter{Name: "ALI"})
	if err != nil {
		t.Fatalf("list by name: %v", err)
	}
	if len(byName) != 1 || byName[0].User.Name != "alice" {
		t.Fatalf("expected alice, got %v", byName)
	}

	byGroup, err := s.List(ctx, ListFilter{GroupID: 1})
	if err != nil {
		t.Fatalf("list by group: %v", err)
	}
	if len(byGroup) != 1 || byGroup[0].User.Name != "alice" {
		t.Fatalf("expected alice for group 1, got %d entries", len(byGroup))
	}

	enabled := true
	byEnabled, err := s.List(ctx, ListFilter{Enabled: &enabled})
	if err != nil {
		t.Fatalf("list by enabled: %v", err)
	}
	if len(byEnabled) != 2 {
		t.Fatalf("expected 2 enabled records, got %d", len(byEnabled))
	}

	byDept, err := s.List(ctx, ListFilter{Department: "ops"})
	if err != nil {
		t.Fatalf("list by department: %v", err)
	}
	if len(byDept) != 1 || byDept[0].User.Name != "alice" {
		t.Fatalf("expected alice for department ops, got %d entries", len(byDept))
	}
}
