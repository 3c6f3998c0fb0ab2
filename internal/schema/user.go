// Package schema defines the canonical user record shape and its
// validation contract. It is pure and stateless: callers hand in decoded
// key/value data and get back a typed record or a typed error. Persistence,
// authentication, and lifecycle belong to the owning service, not here.
package schema

import "time"

// Wire names of the known user record fields. These are part of the
// external contract and must not be renamed.
const (
	FieldID               = "id"
	FieldName             = "name"
	FieldUserGroupIDs     = "userGroupIds"
	FieldEMailAddress     = "eMailAddress"
	FieldFirstName        = "firstName"
	FieldLastName         = "lastName"
	FieldTitle            = "title"
	FieldSalutation       = "salutation"
	FieldDepartment       = "department"
	FieldHomePhone        = "homePhone"
	FieldCellPhone        = "cellPhone"
	FieldBackupCellPhone  = "backupCellPhone"
	FieldPager            = "pager"
	FieldBackupPager      = "backupPager"
	FieldComments         = "comments"
	FieldAdminComments    = "adminComments"
	FieldRegistrationDate = "registrationDate"
	FieldReadOnly         = "readOnly"
	FieldExternal         = "external"
	FieldAutomatic        = "automatic"
	FieldUnified          = "unified"
	FieldEnabled          = "enabled"
	FieldPasswordHash     = "passwordHash"
	FieldPasswordSalt     = "passwordSalt"
	FieldAPIToken         = "apiToken"
)

// User is a validated user record. Name is the only structurally required
// field. All other known fields are pointer-typed so an unset field stays
// absent through serialize/deserialize round-trips. Unknown keys from the
// input are preserved untyped in Extra (open schema).
type User struct {
	ID   *int64 // Unique identifier, assigned by the system.
	Name string // Unique login/display identifier.

	UserGroupIDs *string // Group references encoded as comma-separated integer text.

	EMailAddress *string // Email address.
	FirstName    *string // Given name.
	LastName     *string // Family name.
	Title        *string // Job title.
	Salutation   *string // Preferred salutation.
	Department   *string // Department name.

	HomePhone       *string // Home phone number.
	CellPhone       *string // Cell phone number.
	BackupCellPhone *string // Backup cell phone number.
	Pager           *string // Pager number.
	BackupPager     *string // Backup pager number.

	Comments      *string // Free-text comments.
	AdminComments *string // Free-text comments visible to administrators.

	RegistrationDate *time.Time // Set at creation, immutable thereafter. Stored UTC.

	ReadOnly  *bool // Record rejects mutation by the owning service.
	External  *bool // Account is externally federated.
	Automatic *bool // Account was created automatically; meaningful only with external.
	Unified   *bool // Credentials are externally synchronized and must not be regenerated.
	Enabled   *bool // Account may sign in.

	PasswordHash *string // Opaque credential material.
	PasswordSalt *string // Opaque credential material.
	APIToken     *string // Opaque credential.

	// Extra holds unrecognized input fields verbatim. They are preserved
	// across round-trips but never type-checked.
	Extra map[string]any
}

// FieldDoc describes one known field for API-doc consumers.
type FieldDoc struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Required    bool   `json:"required"`
	Description string `json:"description"`
}

// fieldDocs carries the per-field documentation strings from the source
// schema. Order matches the published field table.
var fieldDocs = []FieldDoc{
	{FieldID, "integer", false, "Unique identifier, assigned by the system."},
	{FieldName, "string", true, "Unique login/display identifier."},
	{FieldUserGroupIDs, "string", false, "References to group entities, encoded as a comma-separated integer list."},
	{FieldEMailAddress, "string", false, "Email address."},
	{FieldFirstName, "string", false, "Given name."},
	{FieldLastName, "string", false, "Family name."},
	{FieldTitle, "string", false, "Job title."},
	{FieldSalutation, "string", false, "Preferred salutation."},
	{FieldDepartment, "string", false, "Department name."},
	{FieldHomePhone, "string", false, "Home phone number."},
	{FieldCellPhone, "string", false, "Cell phone number."},
	{FieldBackupCellPhone, "string", false, "Backup cell phone number."},
	{FieldPager, "string", false, "Pager number."},
	{FieldBackupPager, "string", false, "Backup pager number."},
	{FieldComments, "string", false, "Free-text comments."},
	{FieldAdminComments, "string", false, "Free-text comments visible to administrators."},
	{FieldRegistrationDate, "timestamp", false, "UTC ISO-8601 timestamp set at account creation; immutable thereafter."},
	{FieldReadOnly, "boolean", false, "Record rejects mutation attempts from the owning service."},
	{FieldExternal, "boolean", false, "Account is externally federated."},
	{FieldAutomatic, "boolean", false, "Account was created automatically; meaningful only when external is true."},
	{FieldUnified, "boolean", false, "Credential fields are externally synchronized and must not be regenerated."},
	{FieldEnabled, "boolean", false, "Account may sign in."},
	{FieldPasswordHash, "string", false, "Opaque credential material; never derived from other fields."},
	{FieldPasswordSalt, "string", false, "Opaque credential material; never derived from other fields."},
	{FieldAPIToken, "string", false, "Opaque credential."},
}

// Fields returns the documented field table in declaration order.
func Fields() []FieldDoc {
	out := make([]FieldDoc, len(fieldDocs))
	copy(out, fieldDocs)
	return out
}

// KnownField reports whether name is part of the typed field set.
func KnownField(name string) bool {
	for _, doc := range fieldDocs {
		if doc.Name == name {
			return true
		}
	}
	return false
}
