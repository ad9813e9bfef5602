package handlers

import (
	"net/http"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/ratelimit"

	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// IdentityContextKey is the gin context key holding the caller identity.
const IdentityContextKey = "identity"

// IdentityFromContext extracts the authenticated identity set by middleware.
func IdentityFromContext(c *gin.Context) (auth.Identity, bool) {
	v, exists := c.Get(IdentityContextKey)
	if !exists {
		return auth.Identity{}, false
	}
	ident, ok := v.(auth.Identity)
	if !ok || ident.Subject == "" {
		return auth.Identity{}, false
	}
	return ident, true
}

// CreditsHandler serves front credit endpoints.
type CreditsHandler struct {
	ledger  *ledger.Ledger
	limiter *ratelimit.Manager
}

// NewCreditsHandler constructs a CreditsHandler.
func NewCreditsHandler(l *ledger.Ledger, limiter *ratelimit.Manager) *CreditsHandler {
	return &CreditsHandler{ledger: l, limiter: limiter}
}

// refFor maps an identity to a ledger account reference.
func refFor(ident auth.Identity) ledger.AccountRef {
	return ledger.AccountRef{ExternalID: ident.Subject, Email: ident.Email}
}

// snapshotPayload shapes a ledger snapshot for API responses.
func snapshotPayload(snap ledger.Snapshot) gin.H {
	return gin.H{
		"credits":             snap.Balance,
		"is_admin":            snap.Admin,
		"initialized":         snap.Initialized,
		"last_daily_grant_at": snap.LastDailyGrantAt,
		"last_spend_at":       snap.LastSpendAt,
	}
}

// Summary ensures signup and daily grants, then returns the balance.
func (h *CreditsHandler) Summary(c *gin.Context) {
	ident, ok := IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()
	ref := refFor(ident)

	if _, errSignup := h.ledger.EnsureSignupGrant(ctx, ref); errSignup != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credits unavailable"})
		return
	}
	snap, errDaily := h.ledger.EnsureDailyGrant(ctx, ref)
	if errDaily != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credits unavailable"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

// DailyGrant applies the per-day top-up; repeat calls are no-ops.
func (h *CreditsHandler) DailyGrant(c *gin.Context) {
	ident, ok := IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	snap, errDaily := h.ledger.EnsureDailyGrant(c.Request.Context(), refFor(ident))
	if errDaily != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credits unavailable"})
		return
	}
	c.JSON(http.StatusOK, snapshotPayload(snap))
}

// spendRequest is the body for spend attempts.
type spendRequest struct {
	Cost   int64  `json:"cost"`   // Credits to debit.
	Reason string `json:"reason"` // Optional audit reason.
}

// Spend attempts an atomic balance-gated debit.
func (h *CreditsHandler) Spend(c *gin.Context) {
	ident, ok := IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	ctx := c.Request.Context()

	decision, errAllow := h.limiter.AllowSpend(ctx, ident.Subject)
	if errAllow != nil {
		// Fail open: a broken limiter must not block spends.
		log.WithError(errAllow).Warn("credits: rate limit check failed")
	} else if !decision.Allowed {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	var req spendRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	result := h.ledger.Spend(ctx, refFor(ident), req.Cost, req.Reason)
	payload := gin.H{
		"outcome":  result.Outcome.String(),
		"credits":  result.Balance,
		"is_admin": result.Admin,
	}
	c.JSON(spendStatus(result.Outcome), payload)
}

// spendStatus maps a spend outcome to an HTTP status code.
func spendStatus(outcome ledger.Outcome) int {
	switch outcome {
	case ledger.OutcomeOK:
		return http.StatusOK
	case ledger.OutcomeInvalidCost:
		return http.StatusBadRequest
	case ledger.OutcomeInsufficientBalance:
		return http.StatusPaymentRequired
	case ledger.OutcomeAccountUninitialized:
		return http.StatusConflict
	default:
		return http.StatusServiceUnavailable
	}
}

// entriesQuery defines paging for the ledger entry list.
type entriesQuery struct {
	Page  int `form:"page,default=1"`   // Page number.
	Limit int `form:"limit,default=20"` // Page size.
}

// Entries returns the caller's ledger entries, newest first.
func (h *CreditsHandler) Entries(c *gin.Context) {
	ident, ok := IdentityFromContext(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
		return
	}
	var q entriesQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	ctx := c.Request.Context()

	snap, errRead := h.ledger.Balance(ctx, refFor(ident))
	if errRead != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credits unavailable"})
		return
	}
	if snap.AccountID == 0 {
		c.JSON(http.StatusOK, gin.H{"entries": []gin.H{}, "total": 0})
		return
	}

	rows, total, errList := h.ledger.Entries(ctx, snap.AccountID, q.Page, q.Limit)
	if errList != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "credits unavailable"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":            row.ID,
			"type":          row.Type,
			"amount":        row.Amount,
			"balance_after": row.BalanceAfter,
			"reason":        row.Reason,
			"created_at":    row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out, "total": total})
}
