package ledger

// Outcome classifies the result of a spend attempt.
type Outcome int

// Outcome constants define spend results.
const (
	// OutcomeOK marks a committed spend (or an admin no-op success).
	OutcomeOK Outcome = iota
	// OutcomeInsufficientBalance marks a spend rejected for lack of credits.
	OutcomeInsufficientBalance
	// OutcomeInvalidCost marks a rejected non-positive cost.
	OutcomeInvalidCost
	// OutcomeAccountUninitialized marks a spend against an account without a
	// signup grant; callers must run the grant path first.
	OutcomeAccountUninitialized
	// OutcomeStoreError marks a failed store transaction. The spend is denied
	// so that ambiguous failures never let a metered action through.
	OutcomeStoreError
)

// String returns the outcome name used in logs and API payloads.
func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeInsufficientBalance:
		return "insufficient_balance"
	case OutcomeInvalidCost:
		return "invalid_cost"
	case OutcomeAccountUninitialized:
		return "account_uninitialized"
	case OutcomeStoreError:
		return "store_error"
	default:
		return "unknown"
	}
}

// Spendable reports whether the outcome allows the metered action.
func (o Outcome) Spendable() bool { return o == OutcomeOK }

// SpendResult reports the outcome of a spend attempt.
type SpendResult struct {
	Outcome Outcome // Result classification.
	Balance int64   // Balance after the attempt; unchanged unless Outcome is OK.
	Admin   bool    // Whether the account has unlimited credits.
}
