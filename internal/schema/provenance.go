package schema

import (
	"fmt"
	"strconv"
	"strings"
)

// Provenance classifies where a record's identity is managed. The model
// stays agnostic to policy enforcement; this is a read-only classification
// for the owning service.
type Provenance string

// Provenance variants.
const (
	// ProvenanceInternal marks internal system or service accounts.
	ProvenanceInternal Provenance = "internal"
	// ProvenanceExternalFederated marks externally federated accounts.
	ProvenanceExternalFederated Provenance = "external_federated"
	// ProvenanceLocal marks locally managed accounts.
	ProvenanceLocal Provenance = "local"
)

// Provenance derives the account provenance from the boolean flags.
// External accounts are federated; read-only non-external accounts are
// internal system accounts; everything else is locally managed.
func (u *User) Provenance() Provenance {
	if u.External != nil && *u.External {
		return ProvenanceExternalFederated
	}
	if u.ReadOnly != nil && *u.ReadOnly {
		return ProvenanceInternal
	}
	return ProvenanceLocal
}

// GroupIDs parses the comma-separated userGroupIds text into identifiers.
// An unset or empty field yields no identifiers. Non-numeric entries are an
// error, but this never affects Validate: the declared type of the field is
// string and the encoding is advisory.
func (u *User) GroupIDs() ([]uint64, error) {
	if u.UserGroupIDs == nil {
		return nil, nil
	}
	raw := strings.TrimSpace(*u.UserGroupIDs)
	if raw == "" {
		return nil, nil
	}
	parts := strings.Split(raw, ",")
	ids := make([]uint64, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		id, errParse := strconv.ParseUint(part, 10, 64)
		if errParse != nil {
			return nil, fmt.Errorf("user record: parse %s entry %q: %w", FieldUserGroupIDs, part, errParse)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// MemberOf reports whether the record references the given group.
func (u *User) MemberOf(groupID uint64) bool {
	ids, errParse := u.GroupIDs()
	if errParse != nil {
		return false
	}
	for _, id := range ids {
		if id == groupID {
			return true
		}
	}
	return false
}

// Warnings returns advisory cross-field notes. None of these are
// validation failures.
func (u *User) Warnings() []string {
	var warnings []string
	if u.Automatic != nil && *u.Automatic && (u.External == nil || !*u.External) {
		warnings = append(warnings, "automatic is set without external")
	}
	if u.Unified != nil && *u.Unified && u.PasswordHash == nil && u.APIToken == nil {
		warnings = append(warnings, "unified is set but no synchronized credentials are present")
	}
	if _, errParse := u.GroupIDs(); errParse != nil {
		warnings = append(warnings, fmt.Sprintf("%s is not a comma-separated integer list", FieldUserGroupIDs))
	}
	return warnings
}

// Redacted returns a serialized copy with credential material removed.
// Used for responses addressed to the account holder.
func (u *User) Redacted() map[string]any {
	out := u.Serialize()
	delete(out, FieldPasswordHash)
	delete(out, FieldPasswordSalt)
	delete(out, FieldAPIToken)
	return out
}
