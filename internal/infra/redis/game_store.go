package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
)

// GameStore is a Redis-aware implementation of app.GameRepository.
// Games live in a local map; Redis only marks which players have an open game
// so operators can see liveness across instances. The marker expires ttl after
// the player's last acquire or lookup.
type GameStore struct {
	client  *redis.Client
	ttl     time.Duration
	factory app.GameFactory
	mu      sync.RWMutex
	games   map[string]*app.Game
}

func NewGameStore(client *redis.Client, ttl time.Duration, factory app.GameFactory) *GameStore {
	return &GameStore{
		client:  client,
		ttl:     ttl,
		factory: factory,
		games:   make(map[string]*app.Game),
	}
}

func (s *GameStore) Acquire(identity domain.Identity, credential string) *app.Game {
	s.mu.Lock()
	game, ok := s.games[identity.UserID]
	if !ok {
		game = s.factory(identity, credential)
		s.games[identity.UserID] = game
	}
	game.Attach()
	// best-effort liveness marker, written under the lock so a concurrent Release cannot drop it
	_ = s.client.Set(context.Background(), s.key(identity.UserID), string(identity.Tier), s.ttl).Err()
	s.mu.Unlock()
	return game
}

func (s *GameStore) Get(userID string) (*app.Game, bool) {
	s.mu.RLock()
	game, ok := s.games[userID]
	s.mu.RUnlock()
	if ok {
		s.touch(userID)
	}
	return game, ok
}

func (s *GameStore) Release(userID string) {
	s.mu.Lock()
	game, ok := s.games[userID]
	if !ok || !game.Detach() {
		s.mu.Unlock()
		return
	}
	delete(s.games, userID)
	_ = s.client.Del(context.Background(), s.key(userID)).Err()
	s.mu.Unlock()
	game.Close()
}

func (s *GameStore) touch(userID string) {
	if s.ttl <= 0 {
		return
	}
	_ = s.client.Expire(context.Background(), s.key(userID), s.ttl).Err()
}

func (s *GameStore) key(userID string) string {
	return "trivia:game:" + userID
}
