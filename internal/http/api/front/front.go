package front

import (
	"github.com/gin-gonic/gin"
	handlers "github.com/sensorops/userdir/internal/http/api/front/handlers"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/watcher"
)

// RegisterFrontRoutes registers routes served to API token holders.
func RegisterFrontRoutes(r *gin.Engine, directory *watcher.DirectoryWatcher, limiter ratelimit.Limiter, lookupLimit int) {
	if r == nil || directory == nil {
		return
	}

	meHandler := handlers.NewMeHandler(directory, limiter, lookupLimit)
	r.GET("/v0/me", meHandler.Me)
}
