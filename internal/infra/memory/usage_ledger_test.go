package memory

import (
	"context"
	"testing"
	"time"
)

func TestUsageLedgerReserveRespectsLimit(t *testing.T) {
	ctx := context.Background()
	ledger := NewUsageLedger(time.Hour)

	for i := 0; i < 2; i++ {
		ok, err := ledger.Reserve(ctx, "u1", 2)
		if err != nil || !ok {
			t.Fatalf("reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := ledger.Reserve(ctx, "u1", 2); ok {
		t.Fatalf("expected limit to be enforced")
	}
	if ok, _ := ledger.Reserve(ctx, "u2", 2); !ok {
		t.Fatalf("limits are per user")
	}

	if err := ledger.Release(ctx, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if used, _ := ledger.Used(ctx, "u1"); used != 1 {
		t.Fatalf("expected 1 used after refund, got %d", used)
	}
}

func TestUsageLedgerWindowResets(t *testing.T) {
	ctx := context.Background()
	now := time.Unix(1700000000, 0)
	ledger := NewUsageLedger(time.Hour)
	ledger.clock = func() time.Time { return now }

	_, _ = ledger.Reserve(ctx, "u1", 1)
	if ok, _ := ledger.Reserve(ctx, "u1", 1); ok {
		t.Fatalf("expected limit within the window")
	}
	now = now.Add(time.Hour + time.Second)
	if used, _ := ledger.Used(ctx, "u1"); used != 0 {
		t.Fatalf("expected usage to reset, got %d", used)
	}
	if ok, _ := ledger.Reserve(ctx, "u1", 1); !ok {
		t.Fatalf("expected a fresh credit after the window")
	}
}

func TestUsageLedgerReleaseNeverGoesNegative(t *testing.T) {
	ctx := context.Background()
	ledger := NewUsageLedger(0)
	_ = ledger.Release(ctx, "u1")
	if used, _ := ledger.Used(ctx, "u1"); used != 0 {
		t.Fatalf("expected 0, got %d", used)
	}
}
