package admin

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/config"
	handlers "github.com/sensorops/userdir/internal/http/api/admin/handlers"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/security"
	"github.com/sensorops/userdir/internal/store"
	"gorm.io/gorm"
)

// RegisterAdminRoutes registers admin routes, middleware, and handlers.
func RegisterAdminRoutes(r *gin.Engine, db *gorm.DB, records *store.RecordStore, jwtCfg config.JWTConfig, limiter ratelimit.Limiter, loginLimit int) {
	if r == nil || db == nil || records == nil {
		return
	}

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)

	versionHandler := handlers.NewVersionHandler()
	r.GET("/v0/version", versionHandler.GetVersion)

	adminGroup := r.Group("/v0/admin")

	authHandler := handlers.NewAuthHandler(db, jwtCfg, limiter, loginLimit)
	adminGroup.POST("/login", authHandler.Login)
	adminGroup.POST("/login/totp", authHandler.LoginTOTP)

	authed := adminGroup.Group("")
	authed.Use(adminAuthMiddleware(db, jwtCfg))

	mfaHandler := handlers.NewMFAHandler(db)
	authed.GET("/mfa/status", mfaHandler.Status)
	authed.POST("/mfa/totp/prepare", mfaHandler.PrepareTOTP)
	authed.POST("/mfa/totp/confirm", mfaHandler.ConfirmTOTP)
	authed.POST("/mfa/totp/disable", mfaHandler.DisableTOTP)

	userHandler := handlers.NewUserRecordHandler(records)
	authed.POST("/users", userHandler.Create)
	authed.GET("/users", userHandler.List)
	authed.POST("/users/validate", userHandler.Validate)
	authed.GET("/users/schema", userHandler.Schema)
	authed.GET("/users/:id", userHandler.Get)
	authed.PUT("/users/:id", userHandler.Update)
	authed.DELETE("/users/:id", userHandler.Delete)
	authed.POST("/users/:id/disable", userHandler.Disable)
	authed.POST("/users/:id/enable", userHandler.Enable)
	authed.POST("/users/:id/token", userHandler.RegenerateToken)

	userGroupHandler := handlers.NewUserGroupHandler(db, records)
	authed.POST("/user-groups", userGroupHandler.Create)
	authed.GET("/user-groups", userGroupHandler.List)
	authed.GET("/user-groups/:id", userGroupHandler.Get)
	authed.PUT("/user-groups/:id", userGroupHandler.Update)
	authed.DELETE("/user-groups/:id", userGroupHandler.Delete)
	authed.POST("/user-groups/:id/default", userGroupHandler.SetDefault)
	authed.GET("/user-groups/:id/members", userGroupHandler.Members)

	adminHandler := handlers.NewAdminHandler(db)
	authed.POST("/admins", adminHandler.Create)
	authed.GET("/admins", adminHandler.List)
	authed.GET("/admins/:id", adminHandler.Get)
	authed.DELETE("/admins/:id", adminHandler.Delete)
	authed.POST("/admins/:id/disable", adminHandler.Disable)
	authed.POST("/admins/:id/enable", adminHandler.Enable)
	authed.PUT("/admins/:id/password", adminHandler.ChangePassword)
}

// adminAuthMiddleware validates admin JWTs and loads admin context.
func adminAuthMiddleware(db *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization header"})
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		claims, errJWT := security.ParseAdminToken(jwtCfg.Secret, token)
		if errJWT != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		if errFind := db.WithContext(c.Request.Context()).First(&admin, claims.AdminID).Error; errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "admin not found"})
			return
		}
		if !admin.Active {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
			return
		}

		c.Set("adminID", admin.ID)
		c.Set("adminUsername", admin.Username)
		c.Set("adminIsSuperAdmin", admin.IsSuperAdmin)
		c.Next()
	}
}
