package ledger

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/careerpilot-app/credits-api/internal/models"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "ledger.db")
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := conn.AutoMigrate(&models.Account{}, &models.LedgerEntry{}); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

// testClock is a controllable clock for crossing UTC day boundaries.
type testClock struct {
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time { return c.now }

func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestLedger(t *testing.T, adminEmails ...string) (*Ledger, *testClock) {
	t.Helper()
	clock := newTestClock()
	l := New(openTestDB(t), Config{}, NewAllowlist(adminEmails), clock.Now)
	return l, clock
}

func entriesOf(t *testing.T, l *Ledger, accountID uint64) []models.LedgerEntry {
	t.Helper()
	rows, _, err := l.Entries(context.Background(), accountID, 1, 100)
	if err != nil {
		t.Fatalf("list entries: %v", err)
	}
	return rows
}

func TestEnsureSignupGrantCreatesAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1", Email: "user1@example.com"}

	snap, err := l.EnsureSignupGrant(context.Background(), ref)
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if snap.Balance != 100 {
		t.Fatalf("expected balance 100, got %d", snap.Balance)
	}
	if !snap.Initialized {
		t.Fatalf("expected account to be initialized")
	}
	if snap.Admin {
		t.Fatalf("expected non-admin account")
	}

	rows := entriesOf(t, l, snap.AccountID)
	if len(rows) != 1 {
		t.Fatalf("expected 1 ledger entry, got %d", len(rows))
	}
	if rows[0].Type != models.LedgerEntrySignupGrant || rows[0].Amount != 100 || rows[0].BalanceAfter != 100 {
		t.Fatalf("unexpected signup entry: %+v", rows[0])
	}
}

func TestEnsureSignupGrantIdempotentAfterSpend(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if result := l.Spend(ctx, ref, 30, "practice session"); result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}

	snap, err := l.EnsureSignupGrant(ctx, ref)
	if err != nil {
		t.Fatalf("second signup grant: %v", err)
	}
	if snap.Balance != 70 {
		t.Fatalf("expected balance 70 after repeated signup grant, got %d", snap.Balance)
	}

	rows := entriesOf(t, l, snap.AccountID)
	if len(rows) != 2 {
		t.Fatalf("expected 2 ledger entries, got %d", len(rows))
	}
}

func TestEnsureSignupGrantBackfillsLegacyRecord(t *testing.T) {
	conn := openTestDB(t)
	l := New(conn, Config{}, nil, nil)
	ctx := context.Background()

	legacy := models.Account{ExternalID: "legacy-1", Email: "legacy@example.com"}
	if errCreate := conn.Create(&legacy).Error; errCreate != nil {
		t.Fatalf("create legacy account: %v", errCreate)
	}

	snap, err := l.EnsureSignupGrant(ctx, AccountRef{ExternalID: "legacy-1"})
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if snap.AccountID != legacy.ID {
		t.Fatalf("expected existing account %d, got %d", legacy.ID, snap.AccountID)
	}
	if snap.Balance != 100 || !snap.Initialized {
		t.Fatalf("expected backfilled balance 100, got %+v", snap)
	}
}

func TestEnsureSignupGrantMissingRef(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.EnsureSignupGrant(context.Background(), AccountRef{ExternalID: "  "}); !errors.Is(err, ErrMissingAccountRef) {
		t.Fatalf("expected ErrMissingAccountRef, got %v", err)
	}
}

func TestEnsureDailyGrantSameDayNoOp(t *testing.T) {
	l, clock := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if result := l.Spend(ctx, ref, 40, "cover letter"); result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}

	clock.Advance(24 * time.Hour)
	snap, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if snap.Balance != 85 {
		t.Fatalf("expected balance 85 after daily grant, got %d", snap.Balance)
	}

	clock.Advance(2 * time.Hour)
	again, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("repeat daily grant: %v", err)
	}
	if again.Balance != 85 {
		t.Fatalf("expected same-day repeat to be a no-op, got %d", again.Balance)
	}
}

func TestEnsureDailyGrantCrossesUTCDayBoundary(t *testing.T) {
	l, clock := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	clock.now = time.Date(2026, 3, 10, 23, 30, 0, 0, time.UTC)
	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if result := l.Spend(ctx, ref, 50, "mock interview"); result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}
	if _, err := l.EnsureDailyGrant(ctx, ref); err != nil {
		t.Fatalf("daily grant: %v", err)
	}

	// One hour later, but a new UTC calendar date.
	clock.Advance(time.Hour)
	snap, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if snap.Balance != 100 {
		t.Fatalf("expected two daily grants across midnight, got %d", snap.Balance)
	}
}

func TestEnsureDailyGrantClampsAtCap(t *testing.T) {
	l, clock := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if result := l.Spend(ctx, ref, 20, "resume review"); result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}

	clock.Advance(24 * time.Hour)
	snap, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if snap.Balance != 100 {
		t.Fatalf("expected balance clamped to 100, got %d", snap.Balance)
	}

	rows := entriesOf(t, l, snap.AccountID)
	if rows[0].Type != models.LedgerEntryDailyGrant || rows[0].Amount != 20 {
		t.Fatalf("expected clamped daily grant of 20, got %+v", rows[0])
	}
}

func TestEnsureDailyGrantAtCapWritesNoEntry(t *testing.T) {
	l, clock := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	snap, err := l.EnsureSignupGrant(ctx, ref)
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	clock.Advance(24 * time.Hour)
	after, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if after.Balance != 100 {
		t.Fatalf("expected balance to stay at 100, got %d", after.Balance)
	}
	if after.LastDailyGrantAt == nil {
		t.Fatalf("expected grant timestamp even when nothing was credited")
	}

	rows := entriesOf(t, l, snap.AccountID)
	if len(rows) != 1 {
		t.Fatalf("expected no extra entry for a zero grant, got %d entries", len(rows))
	}
}

func TestEnsureDailyGrantCreatesAccount(t *testing.T) {
	l, _ := newTestLedger(t)

	snap, err := l.EnsureDailyGrant(context.Background(), AccountRef{ExternalID: "fresh-1"})
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if snap.Balance != 100 || !snap.Initialized {
		t.Fatalf("expected fresh account at signup balance, got %+v", snap)
	}
	if snap.LastDailyGrantAt == nil {
		t.Fatalf("expected daily grant timestamp on fresh account")
	}
}

func TestEnsureSignupGrantSkipsAdmin(t *testing.T) {
	l, _ := newTestLedger(t, "boss@example.com")
	ref := AccountRef{ExternalID: "admin-1", Email: "boss@example.com"}

	snap, err := l.EnsureSignupGrant(context.Background(), ref)
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if !snap.Admin {
		t.Fatalf("expected admin snapshot")
	}

	var count int64
	if errCount := l.db.Model(&models.Account{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count accounts: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no account rows for allowlisted admin, got %d", count)
	}
}

func TestEnsureDailyGrantSkipsAdmin(t *testing.T) {
	l, clock := newTestLedger(t, "boss@example.com")
	ref := AccountRef{ExternalID: "admin-1", Email: "boss@example.com"}
	ctx := context.Background()

	snap, err := l.EnsureDailyGrant(ctx, ref)
	if err != nil {
		t.Fatalf("daily grant: %v", err)
	}
	if !snap.Admin {
		t.Fatalf("expected admin snapshot")
	}

	clock.Advance(24 * time.Hour)
	if _, err := l.EnsureDailyGrant(ctx, ref); err != nil {
		t.Fatalf("repeat daily grant: %v", err)
	}

	var count int64
	if errCount := l.db.Model(&models.Account{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count accounts: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("expected no account rows for allowlisted admin, got %d", count)
	}
}

func TestSpendDebitsAndStampsAudit(t *testing.T) {
	l, clock := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	result := l.Spend(ctx, ref, 20, "resume review")
	if result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}
	if result.Balance != 80 {
		t.Fatalf("expected balance 80, got %d", result.Balance)
	}
	if !result.Outcome.Spendable() {
		t.Fatalf("expected spendable outcome")
	}

	snap, err := l.Balance(ctx, ref)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.LastSpendAt == nil || !snap.LastSpendAt.Equal(clock.Now()) {
		t.Fatalf("expected spend timestamp %v, got %v", clock.Now(), snap.LastSpendAt)
	}

	rows := entriesOf(t, l, snap.AccountID)
	if rows[0].Type != models.LedgerEntrySpend || rows[0].Amount != -20 || rows[0].BalanceAfter != 80 {
		t.Fatalf("unexpected spend entry: %+v", rows[0])
	}
	if rows[0].Reason != "resume review" {
		t.Fatalf("unexpected spend reason: %q", rows[0].Reason)
	}
}

func TestSpendInsufficientBalance(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	if result := l.Spend(ctx, ref, 90, "bulk generation"); result.Outcome != OutcomeOK {
		t.Fatalf("spend outcome: %v", result.Outcome)
	}

	result := l.Spend(ctx, ref, 15, "one more")
	if result.Outcome != OutcomeInsufficientBalance {
		t.Fatalf("expected insufficient balance, got %v", result.Outcome)
	}
	if result.Balance != 10 {
		t.Fatalf("expected balance left at 10, got %d", result.Balance)
	}

	snap, err := l.Balance(ctx, ref)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.Balance != 10 {
		t.Fatalf("rejected spend must not change the balance, got %d", snap.Balance)
	}
	rows := entriesOf(t, l, snap.AccountID)
	if len(rows) != 2 {
		t.Fatalf("rejected spend must not append an entry, got %d entries", len(rows))
	}
}

func TestSpendInvalidCost(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	for _, cost := range []int64{0, -5} {
		result := l.Spend(ctx, ref, cost, "bad cost")
		if result.Outcome != OutcomeInvalidCost {
			t.Fatalf("cost %d: expected invalid cost, got %v", cost, result.Outcome)
		}
	}

	snap, err := l.Balance(ctx, ref)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.Balance != 100 {
		t.Fatalf("invalid cost must not change the balance, got %d", snap.Balance)
	}
}

func TestSpendUninitializedAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	if result := l.Spend(ctx, AccountRef{ExternalID: "unknown"}, 5, "x"); result.Outcome != OutcomeAccountUninitialized {
		t.Fatalf("unknown account: expected uninitialized outcome, got %v", result.Outcome)
	}

	legacy := models.Account{ExternalID: "legacy-1"}
	if errCreate := l.db.Create(&legacy).Error; errCreate != nil {
		t.Fatalf("create legacy account: %v", errCreate)
	}
	if result := l.Spend(ctx, AccountRef{ExternalID: "legacy-1"}, 5, "x"); result.Outcome != OutcomeAccountUninitialized {
		t.Fatalf("legacy account: expected uninitialized outcome, got %v", result.Outcome)
	}

	if result := l.Spend(ctx, AccountRef{}, 5, "x"); result.Outcome != OutcomeAccountUninitialized {
		t.Fatalf("empty ref: expected uninitialized outcome, got %v", result.Outcome)
	}
}

func TestSpendAdminBypassByAllowlist(t *testing.T) {
	l, _ := newTestLedger(t, "Boss@Example.com")
	ref := AccountRef{ExternalID: "admin-1", Email: "boss@example.com"}
	ctx := context.Background()

	result := l.Spend(ctx, ref, 9999, "anything")
	if result.Outcome != OutcomeOK || !result.Admin {
		t.Fatalf("expected admin bypass, got %+v", result)
	}

	var count int64
	if errCount := l.db.Model(&models.LedgerEntry{}).Count(&count).Error; errCount != nil {
		t.Fatalf("count entries: %v", errCount)
	}
	if count != 0 {
		t.Fatalf("admin bypass must not write entries, got %d", count)
	}
}

func TestSpendAdminBypassByAccountFlag(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	credits := int64(3)
	acct := models.Account{ExternalID: "flagged-1", Credits: &credits, IsAdmin: true}
	if errCreate := l.db.Create(&acct).Error; errCreate != nil {
		t.Fatalf("create account: %v", errCreate)
	}

	result := l.Spend(ctx, AccountRef{ExternalID: "flagged-1"}, 50, "heavy job")
	if result.Outcome != OutcomeOK || !result.Admin {
		t.Fatalf("expected flag bypass, got %+v", result)
	}

	snap, err := l.Balance(ctx, AccountRef{ExternalID: "flagged-1"})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.Balance != 3 {
		t.Fatalf("admin spend must not debit, got %d", snap.Balance)
	}
}

func TestSpendAdminBypassByRole(t *testing.T) {
	l, _ := newTestLedger(t)

	credits := int64(1)
	acct := models.Account{ExternalID: "role-1", Credits: &credits, Role: "Admin"}
	if errCreate := l.db.Create(&acct).Error; errCreate != nil {
		t.Fatalf("create account: %v", errCreate)
	}

	result := l.Spend(context.Background(), AccountRef{ExternalID: "role-1"}, 50, "heavy job")
	if result.Outcome != OutcomeOK || !result.Admin {
		t.Fatalf("expected role bypass, got %+v", result)
	}
}

func TestBalanceUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t, "boss@example.com")

	snap, err := l.Balance(context.Background(), AccountRef{ExternalID: "nobody", Email: "nobody@example.com"})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if snap.Initialized || snap.Balance != 0 {
		t.Fatalf("expected uninitialized zero snapshot, got %+v", snap)
	}

	adminSnap, err := l.Balance(context.Background(), AccountRef{ExternalID: "nobody", Email: "boss@example.com"})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if !adminSnap.Admin {
		t.Fatalf("expected allowlist admin flag on unknown account")
	}
}

func TestAdjustClampsAndAudits(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	snap, err := l.EnsureSignupGrant(ctx, ref)
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	adjusted, err := l.Adjust(ctx, snap.AccountID, 50, "goodwill")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adjusted.Balance != 100 {
		t.Fatalf("expected clamp at 100, got %d", adjusted.Balance)
	}

	adjusted, err = l.Adjust(ctx, snap.AccountID, -500, "reset")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if adjusted.Balance != 0 {
		t.Fatalf("expected clamp at 0, got %d", adjusted.Balance)
	}

	rows := entriesOf(t, l, snap.AccountID)
	if rows[0].Type != models.LedgerEntryAdminAdjust || rows[0].Amount != -100 || rows[0].BalanceAfter != 0 {
		t.Fatalf("unexpected adjust entry: %+v", rows[0])
	}
}

func TestAdjustInitializesLegacyRecord(t *testing.T) {
	l, _ := newTestLedger(t)
	ctx := context.Background()

	legacy := models.Account{ExternalID: "legacy-1"}
	if errCreate := l.db.Create(&legacy).Error; errCreate != nil {
		t.Fatalf("create legacy account: %v", errCreate)
	}

	snap, err := l.Adjust(ctx, legacy.ID, 0, "initialize")
	if err != nil {
		t.Fatalf("adjust: %v", err)
	}
	if !snap.Initialized || snap.Balance != 0 {
		t.Fatalf("expected initialized zero balance, got %+v", snap)
	}
	if rows := entriesOf(t, l, legacy.ID); len(rows) != 1 {
		t.Fatalf("expected one audit entry, got %d", len(rows))
	}
}

func TestAdjustUnknownAccount(t *testing.T) {
	l, _ := newTestLedger(t)
	if _, err := l.Adjust(context.Background(), 12345, 10, "x"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
	if _, err := l.Adjust(context.Background(), 0, 10, "x"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound for zero id, got %v", err)
	}
}

func TestEntriesPaging(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	snap, err := l.EnsureSignupGrant(ctx, ref)
	if err != nil {
		t.Fatalf("signup grant: %v", err)
	}
	for i := 0; i < 5; i++ {
		if result := l.Spend(ctx, ref, 10, "step"); result.Outcome != OutcomeOK {
			t.Fatalf("spend %d outcome: %v", i, result.Outcome)
		}
	}

	rows, total, err := l.Entries(ctx, snap.AccountID, 1, 3)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if total != 6 {
		t.Fatalf("expected 6 total entries, got %d", total)
	}
	if len(rows) != 3 {
		t.Fatalf("expected page of 3, got %d", len(rows))
	}
	if rows[0].BalanceAfter != 50 {
		t.Fatalf("expected newest entry first, got balance_after %d", rows[0].BalanceAfter)
	}

	rows, _, err = l.Entries(ctx, snap.AccountID, 2, 3)
	if err != nil {
		t.Fatalf("entries page 2: %v", err)
	}
	if len(rows) != 3 || rows[len(rows)-1].Type != models.LedgerEntrySignupGrant {
		t.Fatalf("expected signup grant as oldest entry, got %+v", rows)
	}
}

func TestSpendConcurrentAttemptsDebitAtMostOnce(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	// Two racing debits whose combined cost exceeds the balance.
	results := make([]SpendResult, 2)
	var wg sync.WaitGroup
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = l.Spend(ctx, ref, 60, "race")
		}(i)
	}
	wg.Wait()

	okCount := 0
	for _, result := range results {
		switch result.Outcome {
		case OutcomeOK:
			okCount++
		case OutcomeInsufficientBalance, OutcomeStoreError:
		default:
			t.Fatalf("unexpected outcome: %v", result.Outcome)
		}
	}
	if okCount > 1 {
		t.Fatalf("both racing spends committed on a balance that covers one")
	}

	snap, err := l.Balance(ctx, ref)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	want := 100 - int64(okCount)*60
	if snap.Balance != want {
		t.Fatalf("expected balance %d after %d committed spends, got %d", want, okCount, snap.Balance)
	}

	rows := entriesOf(t, l, snap.AccountID)
	if len(rows) != 1+okCount {
		t.Fatalf("expected %d ledger entries, got %d", 1+okCount, len(rows))
	}
}

func TestSpendStoreFailureDenies(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	sqlDB, err := l.db.DB()
	if err != nil {
		t.Fatalf("raw db: %v", err)
	}
	if errClose := sqlDB.Close(); errClose != nil {
		t.Fatalf("close db: %v", errClose)
	}

	result := l.Spend(ctx, ref, 10, "after shutdown")
	if result.Outcome != OutcomeStoreError {
		t.Fatalf("expected store error outcome, got %v", result.Outcome)
	}
	if result.Outcome.Spendable() {
		t.Fatalf("store failure must deny the metered action")
	}
}

func TestBalanceNeverNegative(t *testing.T) {
	l, _ := newTestLedger(t)
	ref := AccountRef{ExternalID: "user-1"}
	ctx := context.Background()

	if _, err := l.EnsureSignupGrant(ctx, ref); err != nil {
		t.Fatalf("signup grant: %v", err)
	}

	for _, cost := range []int64{60, 60, 41} {
		l.Spend(ctx, ref, cost, "drain")
		snap, err := l.Balance(ctx, ref)
		if err != nil {
			t.Fatalf("balance: %v", err)
		}
		if snap.Balance < 0 {
			t.Fatalf("balance went negative: %d", snap.Balance)
		}
	}
}
