package ledger

import "strings"

// Allowlist is a fixed set of privileged account emails.
//
// Membership grants unlimited credits. The set is built once at startup from
// deploy-time configuration and is immutable afterwards.
type Allowlist struct {
	emails map[string]struct{}
}

// NewAllowlist builds an Allowlist from the configured email list.
func NewAllowlist(emails []string) *Allowlist {
	set := make(map[string]struct{}, len(emails))
	for _, email := range emails {
		normalized := normalizeEmail(email)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}
	return &Allowlist{emails: set}
}

// Contains reports whether the email is allowlisted.
func (a *Allowlist) Contains(email string) bool {
	if a == nil || len(a.emails) == 0 {
		return false
	}
	_, ok := a.emails[normalizeEmail(email)]
	return ok
}

// Len returns the number of allowlisted emails.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.emails)
}

// normalizeEmail lowercases and trims an email for comparison.
func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
