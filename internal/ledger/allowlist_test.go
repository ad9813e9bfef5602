package ledger

import "testing"

func TestAllowlistNormalizesEmails(t *testing.T) {
	list := NewAllowlist([]string{" Boss@Example.com ", "", "ops@example.com"})
	if list.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", list.Len())
	}
	if !list.Contains("boss@example.com") {
		t.Fatalf("expected lowercase lookup to match")
	}
	if !list.Contains("  BOSS@EXAMPLE.COM  ") {
		t.Fatalf("expected trimmed uppercase lookup to match")
	}
	if list.Contains("other@example.com") {
		t.Fatalf("unexpected match")
	}
}

func TestAllowlistEmpty(t *testing.T) {
	list := NewAllowlist(nil)
	if list.Contains("") || list.Contains("anyone@example.com") {
		t.Fatalf("empty allowlist must match nothing")
	}

	var nilList *Allowlist
	if nilList.Contains("anyone@example.com") {
		t.Fatalf("nil allowlist must match nothing")
	}
	if nilList.Len() != 0 {
		t.Fatalf("nil allowlist length must be 0")
	}
}
