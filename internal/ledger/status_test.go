package ledger_test

import (
	"context"
	"testing"

	"jobmate/posting-service/internal/ledger"
)

var allStatuses = []ledger.Status{
	ledger.StatusPending,
	ledger.StatusSucceeded,
	ledger.StatusFailed,
	ledger.StatusAbandoned,
}

// ── ParseStatus ────────────────────────────────────────────────────────────

func TestParseStatus(t *testing.T) {
	for _, s := range allStatuses {
		got, err := ledger.ParseStatus(string(s))
		if err != nil || got != s {
			t.Errorf("ParseStatus(%q) = %q, %v", s, got, err)
		}
	}
	if _, err := ledger.ParseStatus("DONE"); err == nil {
		t.Error("ParseStatus(\"DONE\") expected error, got nil")
	}
}

// ── Transitions ────────────────────────────────────────────────────────────

func TestIsTransitionAllowed(t *testing.T) {
	allowed := map[[2]ledger.Status]bool{
		{ledger.StatusPending, ledger.StatusSucceeded}: true,
		{ledger.StatusPending, ledger.StatusFailed}:    true,
		{ledger.StatusPending, ledger.StatusAbandoned}: true,
		{ledger.StatusFailed, ledger.StatusPending}:    true,
		{ledger.StatusAbandoned, ledger.StatusPending}: true,
	}
	for _, from := range allStatuses {
		for _, to := range allStatuses {
			want := allowed[[2]ledger.Status{from, to}]
			if got := ledger.IsTransitionAllowed(from, to); got != want {
				t.Errorf("IsTransitionAllowed(%s → %s) = %v, want %v", from, to, got, want)
			}
		}
	}
}

func TestIsTerminal(t *testing.T) {
	for _, s := range allStatuses {
		want := s == ledger.StatusSucceeded
		if got := ledger.IsTerminal(s); got != want {
			t.Errorf("IsTerminal(%s) = %v, want %v", s, got, want)
		}
	}
}

// ── Nop ────────────────────────────────────────────────────────────────────

func TestNop(t *testing.T) {
	var r ledger.Recorder = ledger.Nop{}
	id, err := r.Begin(context.Background(), ledger.Attempt{IdempotencyKey: "k"})
	if err != nil || id != "k" {
		t.Fatalf("Begin = %q, %v", id, err)
	}
	if err := r.Complete(context.Background(), id, "j", ""); err != nil {
		t.Error(err)
	}
	if err := r.Fail(context.Background(), id, "x"); err != nil {
		t.Error(err)
	}
}
