package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/watcher"
	log "github.com/sirupsen/logrus"
)

// MeHandler serves record self-lookup for API token holders. Lookups are
// answered from the directory snapshot, not the database.
type MeHandler struct {
	directory   *watcher.DirectoryWatcher
	limiter     ratelimit.Limiter
	lookupLimit int
}

// NewMeHandler constructs a MeHandler.
func NewMeHandler(directory *watcher.DirectoryWatcher, limiter ratelimit.Limiter, lookupLimit int) *MeHandler {
	return &MeHandler{
		directory:   directory,
		limiter:     limiter,
		lookupLimit: lookupLimit,
	}
}

// Me returns the caller's own record with credential fields stripped.
func (h *MeHandler) Me(c *gin.Context) {
	if h.limiter != nil && h.lookupLimit > 0 {
		key := ratelimit.LookupKey(c.ClientIP())
		res, errAllow := h.limiter.Allow(c.Request.Context(), key, h.lookupLimit, time.Now())
		if errAllow != nil {
			log.WithError(errAllow).Warn("lookup rate limit check failed")
		} else if !res.Allowed {
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many requests"})
			return
		}
	}

	authHeader := c.GetHeader("Authorization")
	token := strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer "))
	if authHeader == "" || token == authHeader || token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing api token"})
		return
	}

	member, ok := h.directory.LookupToken(token)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unknown api token"})
		return
	}
	if !member.Enabled {
		c.JSON(http.StatusForbidden, gin.H{"error": "account disabled"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":         member.ID,
		"record":     member.User.Redacted(),
		"provenance": member.User.Provenance(),
	})
}
