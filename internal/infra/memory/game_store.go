package memory

import (
	"sync"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
)

// GameStore is an in-memory implementation of app.GameRepository.
type GameStore struct {
	factory app.GameFactory
	mu      sync.RWMutex
	games   map[string]*app.Game
}

func NewGameStore(factory app.GameFactory) *GameStore {
	return &GameStore{
		factory: factory,
		games:   make(map[string]*app.Game),
	}
}

func (s *GameStore) Acquire(identity domain.Identity, credential string) *app.Game {
	s.mu.Lock()
	defer s.mu.Unlock()
	game, ok := s.games[identity.UserID]
	if !ok {
		game = s.factory(identity, credential)
		s.games[identity.UserID] = game
	}
	game.Attach()
	return game
}

func (s *GameStore) Get(userID string) (*app.Game, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	game, ok := s.games[userID]
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
	s.mu.Unlock()
	game.Close()
}
