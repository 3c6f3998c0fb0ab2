package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/settings"
)

// Version is stamped at build time via -ldflags.
var Version = "dev"

// VersionHandler serves build information.
type VersionHandler struct{}

// NewVersionHandler constructs a VersionHandler.
func NewVersionHandler() *VersionHandler {
	return &VersionHandler{}
}

// GetVersion returns the service name and version.
func (h *VersionHandler) GetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":    settings.DefaultSiteName,
		"version": Version,
	})
}
