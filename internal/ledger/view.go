package ledger

import (
	"context"
	"sync"
)

// BalanceView is a read-side cache of one account's balance.
//
// CanAfford is an advisory check against the cached value only; Spend is the
// authoritative gate. The cache is reconciled by Refresh and updated
// optimistically after a committed spend, so it is always treated as
// possibly stale.
type BalanceView struct {
	ledger *Ledger
	ref    AccountRef

	mu      sync.Mutex
	balance *int64
	admin   bool
}

// View returns a BalanceView bound to the account.
func (l *Ledger) View(ref AccountRef) *BalanceView {
	return &BalanceView{
		ledger: l,
		ref:    ref,
		admin:  l.allowlist.Contains(ref.Email),
	}
}

// CanAfford reports whether the cached balance covers the cost. Admin
// accounts always afford; an unknown (never refreshed) balance never does.
func (v *BalanceView) CanAfford(cost int64) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.admin {
		return true
	}
	return v.balance != nil && *v.balance >= cost
}

// Balance returns the cached balance and whether it has been loaded.
func (v *BalanceView) Balance() (int64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.balance == nil {
		return 0, false
	}
	return *v.balance, true
}

// Refresh re-reads the account from the store, recomputing the admin flag
// and the cached balance.
func (v *BalanceView) Refresh(ctx context.Context) (Snapshot, error) {
	snap, err := v.ledger.Balance(ctx, v.ref)
	if err != nil {
		return Snapshot{}, err
	}
	v.mu.Lock()
	v.admin = snap.Admin
	if snap.Initialized {
		balance := snap.Balance
		v.balance = &balance
	} else {
		v.balance = nil
	}
	v.mu.Unlock()
	return snap, nil
}

// Spend delegates to the ledger and, on success, decrements the cached
// balance optimistically (clamped at zero) instead of re-reading.
func (v *BalanceView) Spend(ctx context.Context, cost int64, reason string) SpendResult {
	result := v.ledger.Spend(ctx, v.ref, cost, reason)
	if result.Outcome != OutcomeOK || result.Admin {
		return result
	}
	v.mu.Lock()
	if v.balance != nil {
		next := *v.balance - cost
		if next < 0 {
			next = 0
		}
		v.balance = &next
	} else {
		balance := result.Balance
		v.balance = &balance
	}
	v.mu.Unlock()
	return result
}
