package handlers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/careerpilot-app/credits-api/internal/auth"
	"github.com/careerpilot-app/credits-api/internal/ledger"
	"github.com/careerpilot-app/credits-api/internal/models"
	"github.com/careerpilot-app/credits-api/internal/ratelimit"

	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestHandler(t *testing.T, limit int) *CreditsHandler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := "file:" + filepath.Join(t.TempDir(), "credits.db")
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Account{}, &models.LedgerEntry{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}

	l := ledger.New(conn, ledger.Config{}, nil, nil)
	if _, errGrant := l.EnsureSignupGrant(context.Background(), ledger.AccountRef{ExternalID: "user-1"}); errGrant != nil {
		t.Fatalf("signup grant: %v", errGrant)
	}

	// Pinned clock keeps every request inside one throttle window.
	fixed := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	limiter := ratelimit.NewManager(
		func() ratelimit.Settings { return ratelimit.Settings{Limit: limit} },
		func() time.Time { return fixed },
		nil,
	)
	return NewCreditsHandler(l, limiter)
}

func postSpend(h *CreditsHandler, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodPost, "/v0/credits/spend", strings.NewReader(body))
	c.Request.Header.Set("Content-Type", "application/json")
	c.Set(IdentityContextKey, auth.Identity{Subject: "user-1"})
	h.Spend(c)
	return w
}

func TestSpendEndpointThrottles(t *testing.T) {
	h := newTestHandler(t, 1)

	if w := postSpend(h, `{"cost":1,"reason":"first"}`); w.Code != http.StatusOK {
		t.Fatalf("first spend: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
	if w := postSpend(h, `{"cost":1,"reason":"second"}`); w.Code != http.StatusTooManyRequests {
		t.Fatalf("second spend: expected 429, got %d (%s)", w.Code, w.Body.String())
	}
}

func TestSpendEndpointStatusMapping(t *testing.T) {
	h := newTestHandler(t, 0)

	if w := postSpend(h, `{"cost":0,"reason":"zero"}`); w.Code != http.StatusBadRequest {
		t.Fatalf("zero cost: expected 400, got %d", w.Code)
	}
	if w := postSpend(h, `{"cost":500,"reason":"too big"}`); w.Code != http.StatusPaymentRequired {
		t.Fatalf("over balance: expected 402, got %d", w.Code)
	}
	if w := postSpend(h, `{"cost":100,"reason":"all in"}`); w.Code != http.StatusOK {
		t.Fatalf("full balance: expected 200, got %d (%s)", w.Code, w.Body.String())
	}
}
