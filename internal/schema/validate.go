package schema

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// ErrorCode identifies a validation failure class.
type ErrorCode string

// Validation failure classes.
const (
	// CodeMissingRequiredField means name is absent or empty.
	CodeMissingRequiredField ErrorCode = "missing_required_field"
	// CodeTypeMismatch means a present field does not match its declared type.
	CodeTypeMismatch ErrorCode = "type_mismatch"
	// CodeInvalidFormat means registrationDate is present but not ISO-8601.
	CodeInvalidFormat ErrorCode = "invalid_format"
)

// ValidationError reports a single validation failure. Field names the
// offending field using its wire name.
type ValidationError struct {
	Code  ErrorCode `json:"code"`
	Field string    `json:"field"`
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("user record: %s: %s", e.Code, e.Field)
}

// Validate checks candidate data against the canonical field set and
// returns the validated record. Validation is deterministic and reports
// the first failure encountered in field declaration order. Unrecognized
// keys are preserved but not type-checked.
func Validate(candidate map[string]any) (*User, error) {
	user := &User{}

	name, errName := requiredString(candidate, FieldName)
	if errName != nil {
		return nil, errName
	}
	user.Name = name

	id, errID := optionalInt(candidate, FieldID)
	if errID != nil {
		return nil, errID
	}
	user.ID = id

	stringTargets := []struct {
		field string
		dst   **string
	}{
		{FieldUserGroupIDs, &user.UserGroupIDs},
		{FieldEMailAddress, &user.EMailAddress},
		{FieldFirstName, &user.FirstName},
		{FieldLastName, &user.LastName},
		{FieldTitle, &user.Title},
		{FieldSalutation, &user.Salutation},
		{FieldDepartment, &user.Department},
		{FieldHomePhone, &user.HomePhone},
		{FieldCellPhone, &user.CellPhone},
		{FieldBackupCellPhone, &user.BackupCellPhone},
		{FieldPager, &user.Pager},
		{FieldBackupPager, &user.BackupPager},
		{FieldComments, &user.Comments},
		{FieldAdminComments, &user.AdminComments},
		{FieldPasswordHash, &user.PasswordHash},
		{FieldPasswordSalt, &user.PasswordSalt},
		{FieldAPIToken, &user.APIToken},
	}
	for _, target := range stringTargets {
		value, errString := optionalString(candidate, target.field)
		if errString != nil {
			return nil, errString
		}
		*target.dst = value
	}

	boolTargets := []struct {
		field string
		dst   **bool
	}{
		{FieldReadOnly, &user.ReadOnly},
		{FieldExternal, &user.External},
		{FieldAutomatic, &user.Automatic},
		{FieldUnified, &user.Unified},
		{FieldEnabled, &user.Enabled},
	}
	for _, target := range boolTargets {
		value, errBool := optionalBool(candidate, target.field)
		if errBool != nil {
			return nil, errBool
		}
		*target.dst = value
	}

	registered, errDate := optionalTimestamp(candidate, FieldRegistrationDate)
	if errDate != nil {
		return nil, errDate
	}
	user.RegistrationDate = registered

	for key, value := range candidate {
		if KnownField(key) {
			continue
		}
		if user.Extra == nil {
			user.Extra = make(map[string]any)
		}
		user.Extra[key] = value
	}

	return user, nil
}

// Deserialize is Validate followed by construction; the two are the same
// operation over decoded input.
func Deserialize(candidate map[string]any) (*User, error) {
	return Validate(candidate)
}

// Serialize produces the structured form of the record. Unset optional
// fields are absent from the result, not null-valued. Unknown fields ride
// along from Extra; a known field name in Extra never shadows the typed
// value.
func (u *User) Serialize() map[string]any {
	out := make(map[string]any)
	for key, value := range u.Extra {
		if KnownField(key) {
			continue
		}
		out[key] = value
	}

	out[FieldName] = u.Name
	if u.ID != nil {
		out[FieldID] = *u.ID
	}
	putString(out, FieldUserGroupIDs, u.UserGroupIDs)
	putString(out, FieldEMailAddress, u.EMailAddress)
	putString(out, FieldFirstName, u.FirstName)
	putString(out, FieldLastName, u.LastName)
	putString(out, FieldTitle, u.Title)
	putString(out, FieldSalutation, u.Salutation)
	putString(out, FieldDepartment, u.Department)
	putString(out, FieldHomePhone, u.HomePhone)
	putString(out, FieldCellPhone, u.CellPhone)
	putString(out, FieldBackupCellPhone, u.BackupCellPhone)
	putString(out, FieldPager, u.Pager)
	putString(out, FieldBackupPager, u.BackupPager)
	putString(out, FieldComments, u.Comments)
	putString(out, FieldAdminComments, u.AdminComments)
	putString(out, FieldPasswordHash, u.PasswordHash)
	putString(out, FieldPasswordSalt, u.PasswordSalt)
	putString(out, FieldAPIToken, u.APIToken)
	putBool(out, FieldReadOnly, u.ReadOnly)
	putBool(out, FieldExternal, u.External)
	putBool(out, FieldAutomatic, u.Automatic)
	putBool(out, FieldUnified, u.Unified)
	putBool(out, FieldEnabled, u.Enabled)
	if u.RegistrationDate != nil {
		// RFC3339Nano keeps fractional seconds so parsing the output
		// yields the same instant.
		out[FieldRegistrationDate] = u.RegistrationDate.UTC().Format(time.RFC3339Nano)
	}

	return out
}

func putString(out map[string]any, field string, value *string) {
	if value != nil {
		out[field] = *value
	}
}

func putBool(out map[string]any, field string, value *bool) {
	if value != nil {
		out[field] = *value
	}
}

// requiredString enforces the sole required-field rule: an empty string is
// treated the same as an absent field.
func requiredString(candidate map[string]any, field string) (string, error) {
	raw, present := candidate[field]
	if !present {
		return "", &ValidationError{Code: CodeMissingRequiredField, Field: field}
	}
	value, ok := raw.(string)
	if !ok {
		return "", &ValidationError{Code: CodeTypeMismatch, Field: field}
	}
	if strings.TrimSpace(value) == "" {
		return "", &ValidationError{Code: CodeMissingRequiredField, Field: field}
	}
	return value, nil
}

func optionalString(candidate map[string]any, field string) (*string, error) {
	raw, present := candidate[field]
	if !present {
		return nil, nil
	}
	value, ok := raw.(string)
	if !ok {
		return nil, &ValidationError{Code: CodeTypeMismatch, Field: field}
	}
	return &value, nil
}

func optionalBool(candidate map[string]any, field string) (*bool, error) {
	raw, present := candidate[field]
	if !present {
		return nil, nil
	}
	value, ok := raw.(bool)
	if !ok {
		return nil, &ValidationError{Code: CodeTypeMismatch, Field: field}
	}
	return &value, nil
}

// optionalInt accepts the integer representations JSON decoding produces:
// float64 with an integral value, json.Number, and the native int types.
func optionalInt(candidate map[string]any, field string) (*int64, error) {
	raw, present := candidate[field]
	if !present {
		return nil, nil
	}
	mismatch := &ValidationError{Code: CodeTypeMismatch, Field: field}
	switch typed := raw.(type) {
	case int:
		value := int64(typed)
		return &value, nil
	case int64:
		value := typed
		return &value, nil
	case uint64:
		if typed > math.MaxInt64 {
			return nil, mismatch
		}
		value := int64(typed)
		return &value, nil
	case float64:
		if typed != math.Trunc(typed) || math.IsInf(typed, 0) || math.IsNaN(typed) {
			return nil, mismatch
		}
		value := int64(typed)
		return &value, nil
	case json.Number:
		value, errParse := strconv.ParseInt(typed.String(), 10, 64)
		if errParse != nil {
			return nil, mismatch
		}
		return &value, nil
	default:
		return nil, mismatch
	}
}

// optionalTimestamp accepts an RFC 3339 string (the ISO-8601 profile the
// schema mandates) or an already-decoded time.Time. The result is stored
// in UTC. A value of the wrong type is a type mismatch; invalid_format is
// reserved for strings that fail to parse.
func optionalTimestamp(candidate map[string]any, field string) (*time.Time, error) {
	raw, present := candidate[field]
	if !present {
		return nil, nil
	}
	switch typed := raw.(type) {
	case time.Time:
		value := typed.UTC()
		return &value, nil
	case string:
		parsed, errParse := time.Parse(time.RFC3339, typed)
		if errParse != nil {
			return nil, &ValidationError{Code: CodeInvalidFormat, Field: field}
		}
		value := parsed.UTC()
		return &value, nil
	default:
		return nil, &ValidationError{Code: CodeTypeMismatch, Field: field}
	}
}
