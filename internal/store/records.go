// Package store persists user records and enforces the mutation policy the
// schema package stays agnostic to: read-only records reject writes,
// registrationDate is fixed at creation, and unified credentials are never
// regenerated locally.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	dbutil "github.com/sensorops/userdir/internal/db"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/schema"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Policy errors reported to callers. Validation errors from the schema
// package pass through unchanged.
var (
	// ErrReadOnlyRecord is returned when a mutation targets a read-only record.
	ErrReadOnlyRecord = errors.New("record store: record is read-only")
	// ErrDuplicateName is returned when a name is already taken.
	ErrDuplicateName = errors.New("record store: name already exists")
	// ErrImmutableRegistrationDate is returned when an update tries to change registrationDate.
	ErrImmutableRegistrationDate = errors.New("record store: registrationDate is immutable")
	// ErrUnifiedCredentials is returned when credential regeneration targets a unified record.
	ErrUnifiedCredentials = errors.New("record store: credentials are externally synchronized")
)

// Entry pairs a decoded record with its row metadata.
type Entry struct {
	ID        uint64
	User      *schema.User
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ListFilter narrows List results. Empty fields match everything.
type ListFilter struct {
	Name       string // Case-insensitive substring match on name.
	Email      string // Case-insensitive substring match on eMailAddress.
	Department string // Exact match on the department field inside the record.
	GroupID    uint64 // Membership in a group via userGroupIds.
	Enabled    *bool  // Enabled flag.
}

// RecordStore persists user records through GORM.
type RecordStore struct {
	db *gorm.DB

	mu sync.Mutex
}

// NewRecordStore constructs a RecordStore.
func NewRecordStore(db *gorm.DB) *RecordStore {
	return &RecordStore{db: db}
}

// Create validates nothing; callers hand in an already validated record.
// registrationDate is fixed here if the caller left it unset. The assigned
// id is written back into the stored record so serialized content and row
// agree.
func (s *RecordStore) Create(ctx context.Context, user *schema.User) (*Entry, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("record store: not initialized")
	}
	if user == nil {
		return nil, fmt.Errorf("record store: user is nil")
	}

	if user.RegistrationDate == nil {
		now := time.Now().UTC().Truncate(time.Second)
		user.RegistrationDate = &now
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	row, errRow := rowFromUser(user)
	if errRow != nil {
		return nil, errRow
	}

	// The unique index on name is the authoritative duplicate check; it
	// holds even when another instance races this create.
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errCreate := tx.Create(row).Error; errCreate != nil {
			if errors.Is(errCreate, gorm.ErrDuplicatedKey) {
				return ErrDuplicateName
			}
			return fmt.Errorf("record store: create: %w", errCreate)
		}
		id := int64(row.ID)
		user.ID = &id
		content, errMarshal := json.Marshal(user.Serialize())
		if errMarshal != nil {
			return fmt.Errorf("record store: marshal: %w", errMarshal)
		}
		row.Content = datatypes.JSON(content)
		if errSave := tx.Model(row).Update("content", row.Content).Error; errSave != nil {
			return fmt.Errorf("record store: store id: %w", errSave)
		}
		return nil
	})
	if errTx != nil {
		return nil, errTx
	}

	return entryFromRow(row)
}

// Get loads a record by row id.
func (s *RecordStore) Get(ctx context.Context, id uint64) (*Entry, error) {
	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		return nil, fmt.Errorf("record store: find: %w", errFind)
	}
	return entryFromRow(&row)
}

// GetByName loads a record by its unique name.
func (s *RecordStore) GetByName(ctx context.Context, name string) (*Entry, error) {
	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).Where("name = ?", name).First(&row).Error; errFind != nil {
		return nil, fmt.Errorf("record store: find by name: %w", errFind)
	}
	return entryFromRow(&row)
}

// GetByToken loads a record by its API token. Empty tokens never match.
func (s *RecordStore) GetByToken(ctx context.Context, token string) (*Entry, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, fmt.Errorf("record store: find by token: %w", gorm.ErrRecordNotFound)
	}
	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).Where("api_token = ?", token).First(&row).Error; errFind != nil {
		return nil, fmt.Errorf("record store: find by token: %w", errFind)
	}
	return entryFromRow(&row)
}

// List returns records matching the filter, newest first.
func (s *RecordStore) List(ctx context.Context, filter ListFilter) ([]Entry, error) {
	q := s.db.WithContext(ctx).Model(&models.UserRecord{})
	if filter.Name != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+filter.Name+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(s.db, "name"), pattern)
	}
	if filter.Email != "" {
		pattern := dbutil.NormalizeLikePattern(s.db, "%"+filter.Email+"%")
		q = q.Where(dbutil.CaseInsensitiveLikeExpr(s.db, "e_mail_address"), pattern)
	}
	if filter.Department != "" {
		q = q.Where(dbutil.JSONExtractTextExpr(s.db, "content", schema.FieldDepartment)+" = ?", filter.Department)
	}
	if filter.Enabled != nil {
		q = q.Where("enabled = ?", *filter.Enabled)
	}

	var rows []models.UserRecord
	if errFind := q.Order("created_at DESC, id DESC").Find(&rows).Error; errFind != nil {
		return nil, fmt.Errorf("record store: list: %w", errFind)
	}

	entries := make([]Entry, 0, len(rows))
	for i := range rows {
		entry, errDecode := entryFromRow(&rows[i])
		if errDecode != nil {
			return nil, errDecode
		}
		if filter.GroupID != 0 && !entry.User.MemberOf(filter.GroupID) {
			continue
		}
		entries = append(entries, *entry)
	}
	return entries, nil
}

// Update applies a partial candidate map to the stored record. A nil value
// clears the field. The merged result is re-validated, so the update fails
// with the same typed errors as a create would.
func (s *RecordStore) Update(ctx context.Context, id uint64, candidate map[string]any) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		return nil, fmt.Errorf("record store: find: %w", errFind)
	}
	if row.ReadOnly {
		return nil, ErrReadOnlyRecord
	}

	existing, errDecode := decodeContent(&row)
	if errDecode != nil {
		return nil, errDecode
	}

	merged := existing.Serialize()
	for key, value := range candidate {
		if value == nil {
			delete(merged, key)
			continue
		}
		merged[key] = value
	}
	merged[schema.FieldID] = int64(row.ID)

	updated, errValidate := schema.Validate(merged)
	if errValidate != nil {
		return nil, errValidate
	}

	if errImmutable := checkRegistrationDate(existing, updated, candidate); errImmutable != nil {
		return nil, errImmutable
	}

	// Unified credentials are synchronized from outside; local updates
	// never replace them.
	if existing.Unified != nil && *existing.Unified {
		updated.PasswordHash = existing.PasswordHash
		updated.APIToken = existing.APIToken
	}

	if errSave := s.saveUser(ctx, &row, updated); errSave != nil {
		return nil, errSave
	}
	return entryFromRow(&row)
}

// Delete removes a record. Read-only records refuse deletion.
func (s *RecordStore) Delete(ctx context.Context, id uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		return fmt.Errorf("record store: find: %w", errFind)
	}
	if row.ReadOnly {
		return ErrReadOnlyRecord
	}
	if errDelete := s.db.WithContext(ctx).Delete(&models.UserRecord{}, id).Error; errDelete != nil {
		return fmt.Errorf("record store: delete: %w", errDelete)
	}
	return nil
}

// SetEnabled flips the enabled flag.
func (s *RecordStore) SetEnabled(ctx context.Context, id uint64, enabled bool) (*Entry, error) {
	return s.Update(ctx, id, map[string]any{schema.FieldEnabled: enabled})
}

// RegenerateToken replaces the record's apiToken. Unified records refuse
// regeneration since their credentials are owned elsewhere.
func (s *RecordStore) RegenerateToken(ctx context.Context, id uint64, token string) (*Entry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var row models.UserRecord
	if errFind := s.db.WithContext(ctx).First(&row, id).Error; errFind != nil {
		return nil, fmt.Errorf("record store: find: %w", errFind)
	}
	if row.ReadOnly {
		return nil, ErrReadOnlyRecord
	}

	existing, errDecode := decodeContent(&row)
	if errDecode != nil {
		return nil, errDecode
	}
	if existing.Unified != nil && *existing.Unified {
		return nil, ErrUnifiedCredentials
	}

	existing.APIToken = &token
	if errSave := s.saveUser(ctx, &row, existing); errSave != nil {
		return nil, errSave
	}
	return entryFromRow(&row)
}

// saveUser writes the full row for the given record.
func (s *RecordStore) saveUser(ctx context.Context, row *models.UserRecord, user *schema.User) error {
	content, errMarshal := json.Marshal(user.Serialize())
	if errMarshal != nil {
		return fmt.Errorf("record store: marshal: %w", errMarshal)
	}
	updates := map[string]any{
		"name":       user.Name,
		"content":    datatypes.JSON(content),
		"updated_at": time.Now().UTC(),
	}
	updates["e_mail_address"] = derefOrEmpty(user.EMailAddress)
	updates["api_token"] = derefOrEmpty(user.APIToken)
	updates["read_only"] = derefOrFalse(user.ReadOnly)
	updates["external"] = derefOrFalse(user.External)
	updates["enabled"] = user.Enabled == nil || *user.Enabled
	updates["registration_date"] = user.RegistrationDate

	if errSave := s.db.WithContext(ctx).Model(row).Updates(updates).Error; errSave != nil {
		if errors.Is(errSave, gorm.ErrDuplicatedKey) {
			return ErrDuplicateName
		}
		return fmt.Errorf("record store: save: %w", errSave)
	}
	if errReload := s.db.WithContext(ctx).First(row, row.ID).Error; errReload != nil {
		return fmt.Errorf("record store: reload: %w", errReload)
	}
	return nil
}

// checkRegistrationDate enforces the immutability of registrationDate when
// the candidate explicitly carries the field.
func checkRegistrationDate(existing, updated *schema.User, candidate map[string]any) error {
	if _, present := candidate[schema.FieldRegistrationDate]; !present {
		// Absent from the patch: the stored value is kept.
		updated.RegistrationDate = existing.RegistrationDate
		return nil
	}
	if existing.RegistrationDate == nil {
		return nil
	}
	if updated.RegistrationDate == nil || !updated.RegistrationDate.Equal(*existing.RegistrationDate) {
		return ErrImmutableRegistrationDate
	}
	return nil
}

// rowFromUser builds a fresh row from a validated record.
func rowFromUser(user *schema.User) (*models.UserRecord, error) {
	content, errMarshal := json.Marshal(user.Serialize())
	if errMarshal != nil {
		return nil, fmt.Errorf("record store: marshal: %w", errMarshal)
	}
	now := time.Now().UTC()
	return &models.UserRecord{
		Name:             user.Name,
		Content:          datatypes.JSON(content),
		EMailAddress:     derefOrEmpty(user.EMailAddress),
		APIToken:         derefOrEmpty(user.APIToken),
		ReadOnly:         derefOrFalse(user.ReadOnly),
		External:         derefOrFalse(user.External),
		Enabled:          user.Enabled == nil || *user.Enabled,
		RegistrationDate: user.RegistrationDate,
		CreatedAt:        now,
		UpdatedAt:        now,
	}, nil
}

// decodeContent deserializes a row's content blob back into a record.
func decodeContent(row *models.UserRecord) (*schema.User, error) {
	var raw map[string]any
	if errUnmarshal := json.Unmarshal(row.Content, &raw); errUnmarshal != nil {
		return nil, fmt.Errorf("record store: decode content for %q: %w", row.Name, errUnmarshal)
	}
	user, errValidate := schema.Deserialize(raw)
	if errValidate != nil {
		return nil, fmt.Errorf("record store: stored record %q invalid: %w", row.Name, errValidate)
	}
	return user, nil
}

func entryFromRow(row *models.UserRecord) (*Entry, error) {
	user, errDecode := decodeContent(row)
	if errDecode != nil {
		return nil, errDecode
	}
	return &Entry{
		ID:        row.ID,
		User:      user,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}, nil
}

func derefOrEmpty(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}

func derefOrFalse(value *bool) bool {
	return value != nil && *value
}
