package redis

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestUsageLedgerCountsInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewUsageLedger(newClient(mr), time.Hour)

	for i := 0; i < 2; i++ {
		ok, err := ledger.Reserve(ctx, "u1", 2)
		if err != nil || !ok {
			t.Fatalf("reserve %d: ok=%v err=%v", i, ok, err)
		}
	}
	if ok, _ := ledger.Reserve(ctx, "u1", 2); ok {
		t.Fatalf("expected limit to be enforced")
	}
	if got, _ := mr.Get("trivia:usage:u1"); got != "2" {
		t.Fatalf("expected counter 2, got %q", got)
	}
	ttl := mr.TTL("trivia:usage:u1")
	if ttl < time.Hour || ttl > time.Hour+6*time.Minute {
		t.Fatalf("expected window with jitter, got %v", ttl)
	}

	if err := ledger.Release(ctx, "u1"); err != nil {
		t.Fatalf("release: %v", err)
	}
	if used, _ := ledger.Used(ctx, "u1"); used != 1 {
		t.Fatalf("expected 1 used after refund, got %d", used)
	}
}

func TestUsageLedgerWindowExpires(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewUsageLedger(newClient(mr), time.Minute)

	_, _ = ledger.Reserve(ctx, "u1", 1)
	mr.FastForward(2 * time.Minute)
	if used, err := ledger.Used(ctx, "u1"); err != nil || used != 0 {
		t.Fatalf("expected reset usage, used=%d err=%v", used, err)
	}
	if ok, _ := ledger.Reserve(ctx, "u1", 1); !ok {
		t.Fatalf("expected a fresh credit")
	}
}

func TestUsageLedgerReleaseClearsEmptyCounter(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewUsageLedger(newClient(mr), time.Minute)

	_, _ = ledger.Reserve(ctx, "u1", 1)
	_ = ledger.Release(ctx, "u1")
	if mr.Exists("trivia:usage:u1") {
		t.Fatalf("expected counter removed once fully refunded")
	}
}

func newClient(mr *miniredis.Miniredis) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
	})
}

func TestUsageLedgerParallelReserve(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	ctx := context.Background()
	ledger := NewUsageLedger(newClient(mr), time.Hour)

	const callers, limit = 16, 10
	var granted atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := ledger.Reserve(ctx, "u1", limit)
			if err != nil {
				t.Errorf("reserve: %v", err)
				return
			}
			if ok {
				granted.Add(1)
			}
		}()
	}
	wg.Wait()

	if got := granted.Load(); got != limit {
		t.Fatalf("expected %d reservations granted, got %d", limit, got)
	}
	if used, _ := ledger.Used(ctx, "u1"); used != limit {
		t.Fatalf("expected counter %d, got %d", limit, used)
	}
	ttl := mr.TTL("trivia:usage:u1")
	if ttl < time.Hour || ttl > time.Hour+6*time.Minute {
		t.Fatalf("expected window with jitter, got %v", ttl)
	}
}
