package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	dbutil "github.com/careerpilot-app/credits-api/internal/db"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/models"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AccountHandler handles admin account endpoints.
type AccountHandler struct {
	db     *gorm.DB
	ledger *ledger.Ledger
}

// NewAccountHandler constructs an AccountHandler.
func NewAccountHandler(db *gorm.DB, l *ledger.Ledger) *AccountHandler {
	return &AccountHandler{db: db, ledger: l}
}

// accountListQuery defines filters for the account list view.
type accountListQuery struct {
	Page  int    `form:"page,default=1"`   // Page number.
	Limit int    `form:"limit,default=20"` // Page size.
	Key   string `form:"key"`              // Email or external ID filter.
}

// List returns account records with paging and search.
func (h *AccountHandler) List(c *gin.Context) {
	var q accountListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}
	if q.Page < 1 {
		q.Page = 1
	}
	if q.Limit < 1 || q.Limit > 100 {
		q.Limit = 20
	}

	ctx := c.Request.Context()
	base := h.db.WithContext(ctx).Model(&models.Account{})

	if keyQ := strings.TrimSpace(q.Key); keyQ != "" {
		pattern := dbutil.NormalizeLikePattern(h.db, "%"+keyQ+"%")
		base = base.Where(
			h.db.Where(dbutil.CaseInsensitiveLikeExpr(h.db, "email"), pattern).
				Or(dbutil.CaseInsensitiveLikeExpr(h.db, "external_id"), pattern),
		)
	}

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list accounts failed"})
		return
	}

	var rows []models.Account
	if errFind := base.
		Order("created_at DESC, id DESC").
		Offset((q.Page - 1) * q.Limit).
		Limit(q.Limit).
		Find(&rows).Error; errFind != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list accounts failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":                  row.ID,
			"external_id":         row.ExternalID,
			"email":               row.Email,
			"credits":             row.Balance(),
			"initialized":         row.Initialized(),
			"is_admin":            row.HasAdminFlag(),
			"last_daily_grant_at": row.LastDailyGrantAt,
			"last_spend_at":       row.LastSpendAt,
			"last_spend_reason":   row.LastSpendReason,
			"created_at":          row.CreatedAt,
			"updated_at":          row.UpdatedAt,
		})
	}

	c.JSON(http.StatusOK, gin.H{"accounts": out, "total": total})
}

// adjustRequest is the body for operator balance adjustments.
type adjustRequest struct {
	Delta int64  `json:"delta" binding:"required"` // Signed credit delta.
	Note  string `json:"note"`                     // Audit note.
}

// Adjust applies an operator credit adjustment to one account.
func (h *AccountHandler) Adjust(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var req adjustRequest
	if errBind := c.ShouldBindJSON(&req); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "delta is required"})
		return
	}

	snap, errAdjust := h.ledger.Adjust(c.Request.Context(), accountID, req.Delta, req.Note)
	if errAdjust != nil {
		if errors.Is(errAdjust, ledger.ErrAccountNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "account not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "adjust failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"id":       snap.AccountID,
		"credits":  snap.Balance,
		"is_admin": snap.Admin,
	})
}

// Ledger returns the ledger entries for one account, newest first.
func (h *AccountHandler) Ledger(c *gin.Context) {
	accountID, ok := parseAccountID(c)
	if !ok {
		return
	}

	var q accountListQuery
	if errBind := c.ShouldBindQuery(&q); errBind != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid query"})
		return
	}

	rows, total, errList := h.ledger.Entries(c.Request.Context(), accountID, q.Page, q.Limit)
	if errList != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "list ledger failed"})
		return
	}

	out := make([]gin.H, 0, len(rows))
	for _, row := range rows {
		out = append(out, gin.H{
			"id":            row.ID,
			"account_id":    row.AccountID,
			"type":          row.Type,
			"amount":        row.Amount,
			"balance_after": row.BalanceAfter,
			"reason":        row.Reason,
			"created_at":    row.CreatedAt,
		})
	}
	c.JSON(http.StatusOK, gin.H{"entries": out, "total": total})
}

// parseAccountID reads the :id path parameter, writing the error response.
func parseAccountID(c *gin.Context) (uint64, bool) {
	raw := strings.TrimSpace(c.Param("id"))
	parsed, errParse := strconv.ParseUint(raw, 10, 64)
	if errParse != nil || parsed == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid account id"})
		return 0, false
	}
	return parsed, true
}
