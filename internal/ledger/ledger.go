// Package ledger maintains per-account credit balances with atomicity under
// concurrent access from multiple devices or sessions.
//
// All mutating operations run inside one store transaction with the account
// row locked, so two concurrent spends can never both succeed on a balance
// that only covers one of them.
package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	dbutil "github.com/careerpilot-app/credits-api/internal/db"
	"github.com/careerpilot-app/credits-api/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ErrMissingAccountRef indicates an operation without an account identifier.
var ErrMissingAccountRef = errors.New("ledger: missing account external id")

// ErrAccountNotFound indicates the referenced account record does not exist.
var ErrAccountNotFound = errors.New("ledger: account not found")

// Config carries the deploy-time grant sizes and balance cap.
type Config struct {
	SignupCredits int64 // One-time allocation on account creation.
	DailyGrant    int64 // Per-UTC-day top-up.
	MaxCredits    int64 // Balance ceiling for non-admin accounts.
}

// DefaultConfig returns the stock grant sizes.
func DefaultConfig() Config {
	return Config{SignupCredits: 100, DailyGrant: 25, MaxCredits: 100}
}

// AccountRef identifies the account an operation targets.
type AccountRef struct {
	ExternalID string // Stable subject from the identity provider.
	Email      string // Email from the identity provider; used for the admin allowlist only.
}

// Snapshot is the authoritative account view returned by ledger operations.
type Snapshot struct {
	AccountID        uint64
	ExternalID       string
	Balance          int64
	Admin            bool
	Initialized      bool
	LastDailyGrantAt *time.Time
	LastSpendAt      *time.Time
}

// Ledger owns per-account credit balances backed by the account store.
type Ledger struct {
	db        *gorm.DB
	cfg       Config
	allowlist *Allowlist
	nowFn     func() time.Time
}

// New constructs a Ledger. Zero config fields fall back to defaults, and a
// nil nowFn uses the wall clock.
func New(conn *gorm.DB, cfg Config, allowlist *Allowlist, nowFn func() time.Time) *Ledger {
	defaults := DefaultConfig()
	if cfg.SignupCredits <= 0 {
		cfg.SignupCredits = defaults.SignupCredits
	}
	if cfg.DailyGrant <= 0 {
		cfg.DailyGrant = defaults.DailyGrant
	}
	if cfg.MaxCredits <= 0 {
		cfg.MaxCredits = defaults.MaxCredits
	}
	if allowlist == nil {
		allowlist = NewAllowlist(nil)
	}
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Ledger{db: conn, cfg: cfg, allowlist: allowlist, nowFn: nowFn}
}

// Config returns the grant sizes the ledger was built with.
func (l *Ledger) Config() Config { return l.cfg }

// EnsureSignupGrant applies the one-time signup allocation.
//
// Idempotent: once the account carries a numeric balance the call is a no-op
// success. Legacy records without a balance are backfilled. Admin accounts
// are skipped, matching the daily grant path.
func (l *Ledger) EnsureSignupGrant(ctx context.Context, ref AccountRef) (Snapshot, error) {
	externalID := strings.TrimSpace(ref.ExternalID)
	if externalID == "" {
		return Snapshot{}, ErrMissingAccountRef
	}

	var snap Snapshot
	run := func(tx *gorm.DB) error {
		acct, errLoad := l.lockAccount(tx, externalID)
		if errLoad != nil {
			return errLoad
		}
		if l.unlimited(acct, ref.Email) {
			snap = l.snapshotOf(acct, ref.Email)
			return nil
		}
		now := l.now()
		if acct == nil {
			acct = &models.Account{
				ExternalID: externalID,
				Email:      strings.TrimSpace(ref.Email),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		}
		if acct.Credits == nil {
			if errGrant := l.applySignupGrant(tx, acct, now); errGrant != nil {
				return errGrant
			}
		}
		snap = l.snapshotOf(acct, ref.Email)
		return nil
	}
	errTx := l.db.WithContext(ctx).Transaction(run)
	if dbutil.IsUniqueViolation(errTx) {
		// Lost a create race; the retry finds the winner's row.
		errTx = l.db.WithContext(ctx).Transaction(run)
	}
	if errTx != nil {
		return Snapshot{}, fmt.Errorf("ledger: signup grant: %w", errTx)
	}
	return snap, nil
}

// EnsureDailyGrant applies the per-UTC-day top-up.
//
// Idempotent per calendar day: the second call on the same UTC date is a
// no-op. Creates the account with signup defaults on first contact. Admin
// accounts are skipped entirely.
func (l *Ledger) EnsureDailyGrant(ctx context.Context, ref AccountRef) (Snapshot, error) {
	externalID := strings.TrimSpace(ref.ExternalID)
	if externalID == "" {
		return Snapshot{}, ErrMissingAccountRef
	}

	var snap Snapshot
	run := func(tx *gorm.DB) error {
		acct, errLoad := l.lockAccount(tx, externalID)
		if errLoad != nil {
			return errLoad
		}
		if l.unlimited(acct, ref.Email) {
			snap = l.snapshotOf(acct, ref.Email)
			return nil
		}

		now := l.now()
		if acct == nil {
			acct = &models.Account{
				ExternalID: externalID,
				Email:      strings.TrimSpace(ref.Email),
				CreatedAt:  now,
				UpdatedAt:  now,
			}
		}
		if acct.Credits == nil {
			if errGrant := l.applySignupGrant(tx, acct, now); errGrant != nil {
				return errGrant
			}
		}

		if acct.LastDailyGrantAt == nil || !sameUTCDay(*acct.LastDailyGrantAt, now) {
			granted := l.cfg.DailyGrant
			if headroom := l.cfg.MaxCredits - *acct.Credits; headroom < granted {
				granted = headroom
			}
			if granted < 0 {
				granted = 0
			}
			next := *acct.Credits + granted
			acct.Credits = &next
			acct.LastDailyGrantAt = &now
			acct.UpdatedAt = now
			if errSave := tx.Save(acct).Error; errSave != nil {
				return errSave
			}
			if granted > 0 {
				if errEntry := appendEntry(tx, acct.ID, models.LedgerEntryDailyGrant, granted, next, "daily grant", now); errEntry != nil {
					return errEntry
				}
			}
		}
		snap = l.snapshotOf(acct, ref.Email)
		return nil
	}
	errTx := l.db.WithContext(ctx).Transaction(run)
	if dbutil.IsUniqueViolation(errTx) {
		// Lost a create race; the retry finds the winner's row.
		errTx = l.db.WithContext(ctx).Transaction(run)
	}
	if errTx != nil {
		return Snapshot{}, fmt.Errorf("ledger: daily grant: %w", errTx)
	}
	return snap, nil
}

// Spend atomically debits the account if the balance covers the cost.
//
// All failure modes are folded into the tagged result: the caller treats
// anything but OutcomeOK as "could not spend" with no partial effect.
func (l *Ledger) Spend(ctx context.Context, ref AccountRef, cost int64, reason string) SpendResult {
	if cost <= 0 {
		return SpendResult{Outcome: OutcomeInvalidCost}
	}
	externalID := strings.TrimSpace(ref.ExternalID)
	if externalID == "" {
		return SpendResult{Outcome: OutcomeAccountUninitialized}
	}

	var result SpendResult
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		acct, errLoad := l.lockAccount(tx, externalID)
		if errLoad != nil {
			return errLoad
		}
		if l.unlimited(acct, ref.Email) {
			result = SpendResult{Outcome: OutcomeOK, Balance: acct.Balance(), Admin: true}
			return nil
		}
		if acct == nil || acct.Credits == nil {
			result = SpendResult{Outcome: OutcomeAccountUninitialized}
			return nil
		}

		current := *acct.Credits
		if current < cost {
			result = SpendResult{Outcome: OutcomeInsufficientBalance, Balance: current}
			return nil
		}

		now := l.now()
		next := current - cost
		acct.Credits = &next
		acct.LastSpendAt = &now
		acct.LastSpendReason = strings.TrimSpace(reason)
		acct.UpdatedAt = now
		if errSave := tx.Save(acct).Error; errSave != nil {
			return errSave
		}
		if errEntry := appendEntry(tx, acct.ID, models.LedgerEntrySpend, -cost, next, reason, now); errEntry != nil {
			return errEntry
		}
		result = SpendResult{Outcome: OutcomeOK, Balance: next}
		return nil
	})
	if errTx != nil {
		log.WithError(errTx).Warn("ledger: spend transaction failed")
		return SpendResult{Outcome: OutcomeStoreError}
	}
	return result
}

// Balance reads the current account state without taking locks.
func (l *Ledger) Balance(ctx context.Context, ref AccountRef) (Snapshot, error) {
	externalID := strings.TrimSpace(ref.ExternalID)
	if externalID == "" {
		return Snapshot{}, ErrMissingAccountRef
	}

	var acct models.Account
	errFind := l.db.WithContext(ctx).Where("external_id = ?", externalID).First(&acct).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return Snapshot{
				ExternalID: externalID,
				Admin:      l.allowlist.Contains(ref.Email),
			}, nil
		}
		return Snapshot{}, fmt.Errorf("ledger: read account: %w", errFind)
	}
	return l.snapshotOf(&acct, ref.Email), nil
}

// Adjust applies an operator credit adjustment to an account by ID.
//
// Non-admin balances are clamped to [0, MaxCredits]; admin balances are
// adjusted verbatim since they are ignored by spend anyway.
func (l *Ledger) Adjust(ctx context.Context, accountID uint64, delta int64, note string) (Snapshot, error) {
	if accountID == 0 {
		return Snapshot{}, ErrAccountNotFound
	}

	var snap Snapshot
	errTx := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var acct models.Account
		if errFind := lockClause(tx).Where("id = ?", accountID).First(&acct).Error; errFind != nil {
			if errors.Is(errFind, gorm.ErrRecordNotFound) {
				return ErrAccountNotFound
			}
			return errFind
		}

		now := l.now()
		wasInitialized := acct.Initialized()
		current := acct.Balance()
		next := current + delta
		if !l.unlimited(&acct, "") {
			if next < 0 {
				next = 0
			}
			if next > l.cfg.MaxCredits {
				next = l.cfg.MaxCredits
			}
		}
		applied := next - current

		acct.Credits = &next
		acct.UpdatedAt = now
		if errSave := tx.Save(&acct).Error; errSave != nil {
			return errSave
		}
		if applied != 0 || !wasInitialized {
			if errEntry := appendEntry(tx, acct.ID, models.LedgerEntryAdminAdjust, applied, next, note, now); errEntry != nil {
				return errEntry
			}
		}
		snap = l.snapshotOf(&acct, "")
		return nil
	})
	if errTx != nil {
		if errors.Is(errTx, ErrAccountNotFound) {
			return Snapshot{}, ErrAccountNotFound
		}
		return Snapshot{}, fmt.Errorf("ledger: adjust: %w", errTx)
	}
	return snap, nil
}

// Entries returns the account's ledger entries, newest first, with paging.
func (l *Ledger) Entries(ctx context.Context, accountID uint64, page, limit int) ([]models.LedgerEntry, int64, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 20
	}

	base := l.db.WithContext(ctx).Model(&models.LedgerEntry{}).Where("account_id = ?", accountID)

	var total int64
	if errCount := base.Count(&total).Error; errCount != nil {
		return nil, 0, fmt.Errorf("ledger: count entries: %w", errCount)
	}

	var rows []models.LedgerEntry
	if errFind := base.
		Order("created_at DESC, id DESC").
		Offset((page - 1) * limit).
		Limit(limit).
		Find(&rows).Error; errFind != nil {
		return nil, 0, fmt.Errorf("ledger: list entries: %w", errFind)
	}
	return rows, total, nil
}

// applySignupGrant seeds the balance on a new or legacy account. The caller
// holds the row lock and has checked Credits is nil.
func (l *Ledger) applySignupGrant(tx *gorm.DB, acct *models.Account, now time.Time) error {
	credits := l.cfg.SignupCredits
	acct.Credits = &credits
	acct.UpdatedAt = now
	if errSave := tx.Save(acct).Error; errSave != nil {
		return errSave
	}
	return appendEntry(tx, acct.ID, models.LedgerEntrySignupGrant, credits, credits, "signup grant", now)
}

// lockAccount loads the account row under a row lock, or nil when absent.
func (l *Ledger) lockAccount(tx *gorm.DB, externalID string) (*models.Account, error) {
	var acct models.Account
	errFind := lockClause(tx).Where("external_id = ?", externalID).First(&acct).Error
	if errFind != nil {
		if errors.Is(errFind, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, errFind
	}
	return &acct, nil
}

// lockClause adds SELECT ... FOR UPDATE where the dialect supports it.
// SQLite serializes writers on its own and rejects the clause.
func lockClause(tx *gorm.DB) *gorm.DB {
	if dbutil.IsSQLite(tx) {
		return tx
	}
	return tx.Clauses(clause.Locking{Strength: "UPDATE"})
}

// appendEntry writes one audit row inside the caller's transaction.
func appendEntry(tx *gorm.DB, accountID uint64, entryType models.LedgerEntryType, amount, balanceAfter int64, reason string, now time.Time) error {
	entry := models.LedgerEntry{
		AccountID:    accountID,
		Type:         entryType,
		Amount:       amount,
		BalanceAfter: balanceAfter,
		Reason:       strings.TrimSpace(reason),
		Metadata:     datatypes.JSON([]byte(`{}`)),
		CreatedAt:    now,
	}
	return tx.Create(&entry).Error
}

// unlimited reports whether the account bypasses balance checks.
func (l *Ledger) unlimited(acct *models.Account, email string) bool {
	if l.allowlist.Contains(email) {
		return true
	}
	if acct == nil {
		return false
	}
	return acct.HasAdminFlag() || l.allowlist.Contains(acct.Email)
}

// snapshotOf builds the caller-facing view of an account.
func (l *Ledger) snapshotOf(acct *models.Account, email string) Snapshot {
	if acct == nil {
		return Snapshot{Admin: l.allowlist.Contains(email)}
	}
	return Snapshot{
		AccountID:        acct.ID,
		ExternalID:       acct.ExternalID,
		Balance:          acct.Balance(),
		Admin:            l.unlimited(acct, email),
		Initialized:      acct.Initialized(),
		LastDailyGrantAt: acct.LastDailyGrantAt,
		LastSpendAt:      acct.LastSpendAt,
	}
}

// now returns the ledger's current UTC time.
func (l *Ledger) now() time.Time { return l.nowFn().UTC() }

// sameUTCDay reports whether two instants fall on the same UTC calendar date.
func sameUTCDay(a, b time.Time) bool {
	ay, am, ad := a.UTC().Date()
	by, bm, bd := b.UTC().Date()
	return ay == by && am == bm && ad == bd
}
