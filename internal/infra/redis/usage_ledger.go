package redis

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// UsageLedger counts generation credits in Redis.
// Usage is stored as: INCR trivia:usage:{userID}, expiring window (+jitter) after the first credit.
type UsageLedger struct {
	client *redis.Client
	window time.Duration

	mu  sync.Mutex // guards rnd, which is not safe for concurrent use
	rnd *rand.Rand
}

func NewUsageLedger(client *redis.Client, window time.Duration) *UsageLedger {
	return &UsageLedger{
		client: client,
		window: window,
		rnd:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// reserveScript increments the counter unless it already reached the limit.
var reserveScript = redis.NewScript(`
local used = tonumber(redis.call("GET", KEYS[1]) or "0")
if used >= tonumber(ARGV[1]) then
  return 0
end
used = redis.call("INCR", KEYS[1])
if used == 1 and tonumber(ARGV[2]) > 0 then
  redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

func (l *UsageLedger) Reserve(ctx context.Context, userID string, limit int) (bool, error) {
	ok, err := reserveScript.Run(ctx, l.client, []string{l.key(userID)}, limit, l.windowWithJitter().Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	return ok == 1, nil
}

func (l *UsageLedger) Release(ctx context.Context, userID string) error {
	key := l.key(userID)
	used, err := l.client.Decr(ctx, key).Result()
	if err != nil {
		return err
	}
	if used <= 0 {
		return l.client.Del(ctx, key).Err()
	}
	return nil
}

func (l *UsageLedger) Used(ctx context.Context, userID string) (int, error) {
	used, err := l.client.Get(ctx, l.key(userID)).Int()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return used, err
}

func (l *UsageLedger) key(userID string) string {
	return "trivia:usage:" + userID
}

func (l *UsageLedger) windowWithJitter() time.Duration {
	if l.window <= 0 {
		return 0
	}
	jitterMax := int64(l.window) / 10
	l.mu.Lock()
	jitter := l.rnd.Int63n(jitterMax + 1)
	l.mu.Unlock()
	return l.window + time.Duration(jitter)
}
