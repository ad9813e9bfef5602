package front

import (
	"net/http"
	"strings"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/http/api/front/handlers"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RegisterFrontRoutes mounts the user-facing credit endpoints.
func RegisterFrontRoutes(engine *gin.Engine, l *ledger.Ledger, verifier *auth.Verifier, limiter *ratelimit.Manager) {
	credits := handlers.NewCreditsHandler(l, limiter)

	group := engine.Group("/v0/credits")
	group.Use(identityMiddleware(verifier))
	group.GET("", credits.Summary)
	group.POST("/spend", credits.Spend)
	group.POST("/daily-grant", credits.DailyGrant)
	group.GET("/ledger", credits.Entries)
}

// identityMiddleware authenticates identity-provider bearer tokens.
func identityMiddleware(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		ident, errParse := verifier.Parse(token)
		if errParse != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(handlers.IdentityContextKey, ident)
		c.Next()
	}
}

// bearerToken extracts the token from an Authorization header.
func bearerToken(header string) string {
	header = strings.TrimSpace(header)
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}
