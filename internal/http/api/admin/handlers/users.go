package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/schema"
	"github.com/sensorops/userdir/internal/security"
	"github.com/sensorops/userdir/internal/store"
	"gorm.io/gorm"
)

// UserRecordHandler manages user record endpoints.
type UserRecordHandler struct {
	store *store.RecordStore
}

// NewUserRecordHandler constructs a UserRecordHandler.
func NewUserRecordHandler(records *store.RecordStore) *UserRecordHandler {
	return &UserRecordHandler{store: records}
}

// entryResponse renders a stored record with its row metadata.
func entryResponse(entry *store.Entry) gin.H {
	return gin.H{
		"id":         entry.ID,
		"record":     entry.User.Serialize(),
		"provenance": entry.User.Provenance(),
		"warnings":   entry.User.Warnings(),
		"created_at": entry.CreatedAt,
		"updated_at": entry.UpdatedAt,
	}
}

// writeRecordError maps store and validation errors onto HTTP responses.
func writeRecordError(c *gin.Context, err error) {
	var verr *schema.ValidationError
	switch {
	case errors.As(err, &verr):
		c.JSON(http.StatusBadRequest, gin.H{
			"error": verr.Error(),
			"code":  verr.Code,
			"field": verr.Field,
		})
	case errors.Is(err, store.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": "name already exists"})
	case errors.Is(err, store.ErrReadOnlyRecord):
		c.JSON(http.StatusForbidden, gin.H{"error": "record is read-only"})
	case errors.Is(err, store.ErrImmutableRegistrationDate):
		c.JSON(http.StatusConflict, gin.H{"error": "registrationDate cannot change"})
	case errors.Is(err, store.ErrUnifiedCredentials):
		c.JSON(http.StatusConflict, gin.H{"error": "credentials are externally synchronized"})
	case errors.Is(err, gorm.ErrRecordNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": "operation failed"})
	}
}

// Create validates the candidate body and stores it as a new record.
func (h *UserRecordHandler) Create(c *gin.Context) {
	var candidate map[string]any
	if errBind := c.ShouldBindJSON(&candidate); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errValidate := schema.Validate(candidate)
	if errValidate != nil {
		writeRecordError(c, errValidate)
		return
	}

	entry, errCreate := h.store.Create(c.Request.Context(), user)
	if errCreate != nil {
		writeRecordError(c, errCreate)
		return
	}
	c.JSON(http.StatusCreated, entryResponse(entry))
}

// List returns records with optional filters.
func (h *UserRecordHandler) List(c *gin.Context) {
	filter := store.ListFilter{
		Name:       strings.TrimSpace(c.Query("name")),
		Email:      strings.TrimSpace(c.Query("email")),
		Department: strings.TrimSpace(c.Query("department")),
	}
	if groupQ := strings.TrimSpace(c.Query("group_id")); groupQ != "" {
		groupID, errParse := strconv.ParseUint(groupQ, 10, 64)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid group_id"})
			return
		}
		filter.GroupID = groupID
	}
	if enabledQ := strings.TrimSpace(c.Query("enabled")); enabledQ != "" {
		enabled, errParse := strconv.ParseBool(enabledQ)
		if errParse != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid enabled"})
			return
		}
		filter.Enabled = &enabled
	}

	entries, errList := h.store.List(c.Request.Context(), filter)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list users failed"})
		return
	}
	out := make([]gin.H, 0, len(entries))
	for i := range entries {
		out = append(out, entryResponse(&entries[i]))
	}
	c.JSON(http.StatusOK, gin.H{"users": out})
}

// Get returns a record by ID.
func (h *UserRecordHandler) Get(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	entry, errGet := h.store.Get(c.Request.Context(), id)
	if errGet != nil {
		writeRecordError(c, errGet)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

// Update applies a partial candidate to a record. Explicit nulls clear
// fields; absent fields keep their stored value.
func (h *UserRecordHandler) Update(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	var candidate map[string]any
	if errBind := c.ShouldBindJSON(&candidate); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	entry, errUpdate := h.store.Update(c.Request.Context(), id, candidate)
	if errUpdate != nil {
		writeRecordError(c, errUpdate)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

// Delete removes a record.
func (h *UserRecordHandler) Delete(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	if errDelete := h.store.Delete(c.Request.Context(), id); errDelete != nil {
		writeRecordError(c, errDelete)
		return
	}
	c.Status(http.StatusNoContent)
}

// Disable clears the record's enabled flag.
func (h *UserRecordHandler) Disable(c *gin.Context) {
	h.setEnabled(c, false)
}

// Enable sets the record's enabled flag.
func (h *UserRecordHandler) Enable(c *gin.Context) {
	h.setEnabled(c, true)
}

func (h *UserRecordHandler) setEnabled(c *gin.Context, enabled bool) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	entry, errSet := h.store.SetEnabled(c.Request.Context(), id, enabled)
	if errSet != nil {
		writeRecordError(c, errSet)
		return
	}
	c.JSON(http.StatusOK, entryResponse(entry))
}

// RegenerateToken replaces the record's API token with a fresh one.
func (h *UserRecordHandler) RegenerateToken(c *gin.Context) {
	id, errParse := strconv.ParseUint(strings.TrimSpace(c.Param("id")), 10, 64)
	if errParse != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid id"})
		return
	}
	token, errToken := security.NewAPIToken()
	if errToken != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "generate token failed"})
		return
	}
	entry, errRegen := h.store.RegenerateToken(c.Request.Context(), id, token)
	if errRegen != nil {
		writeRecordError(c, errRegen)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"id":        entry.ID,
		"api_token": token,
	})
}

// Validate runs the candidate through validation without storing anything.
func (h *UserRecordHandler) Validate(c *gin.Context) {
	var candidate map[string]any
	if errBind := c.ShouldBindJSON(&candidate); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	user, errValidate := schema.Validate(candidate)
	if errValidate != nil {
		var verr *schema.ValidationError
		if errors.As(errValidate, &verr) {
			c.JSON(http.StatusOK, gin.H{
				"valid": false,
				"code":  verr.Code,
				"field": verr.Field,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "validate failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"valid":      true,
		"provenance": user.Provenance(),
		"warnings":   user.Warnings(),
	})
}

// Schema lists the known field catalog.
func (h *UserRecordHandler) Schema(c *gin.Context) {
	fields := schema.Fields()
	out := make([]gin.H, 0, len(fields))
	for _, field := range fields {
		out = append(out, gin.H{
			"name":        field.Name,
			"type":        field.Type,
			"required":    field.Required,
			"description": field.Description,
		})
	}
	c.JSON(http.StatusOK, gin.H{"fields": out})
}
