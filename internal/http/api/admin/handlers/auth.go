package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sensorops/userdir/internal/config"
	"github.com/sensorops/userdir/internal/models"
	"github.com/sensorops/userdir/internal/ratelimit"
	"github.com/sensorops/userdir/internal/security"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// AuthHandler manages admin login endpoints.
type AuthHandler struct {
	db         *gorm.DB
	jwtCfg     config.JWTConfig
	limiter    ratelimit.Limiter
	loginLimit int
}

// NewAuthHandler constructs an AuthHandler.
func NewAuthHandler(db *gorm.DB, jwtCfg config.JWTConfig, limiter ratelimit.Limiter, loginLimit int) *AuthHandler {
	return &AuthHandler{
		db:         db,
		jwtCfg:     jwtCfg,
		limiter:    limiter,
		loginLimit: loginLimit,
	}
}

// loginRequest defines the request body for admin login.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// loginTOTPRequest defines the request body for the TOTP login step.
type loginTOTPRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Code     string `json:"code"`
}

// allowLogin applies the login rate limit for the calling client.
func (h *AuthHandler) allowLogin(c *gin.Context) bool {
	if h.limiter == nil || h.loginLimit <= 0 {
		return true
	}
	key := ratelimit.LoginKey(c.ClientIP())
	res, errAllow := h.limiter.Allow(c.Request.Context(), key, h.loginLimit, time.Now())
	if errAllow != nil {
		// Limiter failures never lock admins out.
		log.WithError(errAllow).Warn("login rate limit check failed")
		return true
	}
	if !res.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many login attempts"})
		return false
	}
	return true
}

// checkCredentials verifies the username and password pair.
func (h *AuthHandler) checkCredentials(c *gin.Context, username, password string) (*models.Admin, bool) {
	username = strings.TrimSpace(username)
	password = strings.TrimSpace(password)
	if username == "" || password == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing credentials"})
		return nil, false
	}

	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).Where("username = ?", username).First(&admin).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return nil, false
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "query failed"})
		return nil, false
	}
	if !security.CheckPassword(admin.Password, password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return nil, false
	}
	if !admin.Active {
		c.JSON(http.StatusForbidden, gin.H{"error": "admin disabled"})
		return nil, false
	}
	return &admin, true
}

// issueToken signs and returns the session token for an admin.
func (h *AuthHandler) issueToken(c *gin.Context, admin *models.Admin) {
	token, errSign := security.SignAdminToken(h.jwtCfg.Secret, h.jwtCfg.Expiry, admin.ID)
	if errSign != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "sign token failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"token":          token,
		"admin_id":       admin.ID,
		"username":       admin.Username,
		"is_super_admin": admin.IsSuperAdmin,
	})
}

// Login authenticates with username and password. Accounts with TOTP
// configured must finish through the /login/totp step instead.
func (h *AuthHandler) Login(c *gin.Context) {
	if !h.allowLogin(c) {
		return
	}
	var body loginRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	admin, ok := h.checkCredentials(c, body.Username, body.Password)
	if !ok {
		return
	}
	if admin.TOTPSecret != "" {
		c.JSON(http.StatusOK, gin.H{"totp_required": true})
		return
	}
	h.issueToken(c, admin)
}

// LoginTOTP authenticates with username, password, and a TOTP code.
func (h *AuthHandler) LoginTOTP(c *gin.Context) {
	if !h.allowLogin(c) {
		return
	}
	var body loginTOTPRequest
	if errBind := c.ShouldBindJSON(&body); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	admin, ok := h.checkCredentials(c, body.Username, body.Password)
	if !ok {
		return
	}
	if admin.TOTPSecret == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "totp not configured"})
		return
	}
	if !security.ValidateTOTPCode(admin.TOTPSecret, strings.TrimSpace(body.Code)) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid code"})
		return
	}
	h.issueToken(c, admin)
}
