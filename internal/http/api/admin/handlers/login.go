package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/config"
	"github.com/careerpilot-app/credits-api/internal/models"
	"github.com/careerpilot-app/credits-api/internal/security"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// LoginHandler authenticates operators and issues session tokens.
type LoginHandler struct {
	db     *gorm.DB
	jwtCfg config.JWTConfig
}

// NewLoginHandler constructs a LoginHandler.
func NewLoginHandler(db *gorm.DB, jwtCfg config.JWTConfig) *LoginHandler {
	return &LoginHandler{db: db, jwtCfg: jwtCfg}
}

// loginRequest is the body for operator sign-in.
type loginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Login verifies operator credentials and returns a signed session token.
func (h *LoginHandler) Login(c *gin.Context) {
	var req loginRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "username and password are required"})
		return
	}

	username := strings.TrimSpace(req.Username)
	var admin models.Admin
	errFind := h.db.WithContext(c.Request.Context()).
		Where("username = ? AND active = ?", username, true).
		First(&admin).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	if !security.VerifyPassword(admin.Password, req.Password) {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid credentials"})
		return
	}

	token, errIssue := auth.IssueAdminToken(h.jwtCfg, admin.ID, admin.Username)
	if errIssue != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "login failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"token":      token,
		"username":   admin.Username,
		"expires_at": time.Now().UTC().Add(h.jwtCfg.Expiry),
	})
}
