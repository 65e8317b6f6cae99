package memory

import (
	"context"
	"sync"
	"time"
)

// UsageLedger counts credits per user in process. Counts reset when the
// window elapses after the first reservation.
type UsageLedger struct {
	window time.Duration
	clock  func() time.Time

	mu      sync.Mutex
	entries map[string]usageEntry
}

type usageEntry struct {
	used      int
	expiresAt time.Time
}

func NewUsageLedger(window time.Duration) *UsageLedger {
	return &UsageLedger{
		window:  window,
		clock:   time.Now,
		entries: make(map[string]usageEntry),
	}
}

func (l *UsageLedger) Reserve(_ context.Context, userID string, limit int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.currentLocked(userID)
	if entry.used >= limit {
		return false, nil
	}
	entry.used++
	l.entries[userID] = entry
	return true, nil
}

func (l *UsageLedger) Release(_ context.Context, userID string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	entry := l.currentLocked(userID)
	if entry.used > 0 {
		entry.used--
	}
	l.entries[userID] = entry
	return nil
}

func (l *UsageLedger) Used(_ context.Context, userID string) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.currentLocked(userID).used, nil
}

func (l *UsageLedger) currentLocked(userID string) usageEntry {
	now := l.clock()
	entry, ok := l.entries[userID]
	if ok && (l.window <= 0 || entry.expiresAt.After(now)) {
		return entry
	}
	entry = usageEntry{}
	if l.window > 0 {
		entry.expiresAt = now.Add(l.window)
	}
	return entry
}
