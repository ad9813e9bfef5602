// Package admin wires the operator HTTP surface.
package admin

import (
	"net/http"
	"strings"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/config"
	"github.com/careerpilot-app/credits-api/internal/http/api/admin/handlers"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RegisterAdminRoutes mounts the operator login and account endpoints.
func RegisterAdminRoutes(engine *gin.Engine, conn *gorm.DB, jwtCfg config.JWTConfig, l *ledger.Ledger) {
	loginHandler := handlers.NewLoginHandler(conn, jwtCfg)
	accountHandler := handlers.NewAccountHandler(conn, l)

	group := engine.Group("/v0/admin")
	group.POST("/login", loginHandler.Login)

	authorized := group.Group("")
	authorized.Use(adminTokenMiddleware(conn, jwtCfg))
	authorized.GET("/accounts", accountHandler.List)
	authorized.POST("/accounts/:id/adjust", accountHandler.Adjust)
	authorized.GET("/accounts/:id/ledger", accountHandler.Ledger)
}

// adminTokenMiddleware authenticates operator requests with a bearer token.
func adminTokenMiddleware(conn *gorm.DB, jwtCfg config.JWTConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}

		session, errParse := auth.ParseAdminToken(jwtCfg, token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		var admin models.Admin
		errFind := conn.WithContext(c.Request.Context()).
			Where("id = ? AND active = ?", session.AdminID, true).
			First(&admin).Error
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("admin", session)
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	header := strings.TrimSpace(c.GetHeader("Authorization"))
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
