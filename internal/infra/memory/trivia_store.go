package memory

import (
	"context"
	"sync"

	"trivia-solo-service/internal/domain"
)

// TriviaStore keeps generated trivia in process (useful for tests/demos).
type TriviaStore struct {
	mu      sync.RWMutex
	records []domain.GeneratedTrivia
}

func NewTriviaStore() *TriviaStore {
	return &TriviaStore{}
}

func (s *TriviaStore) SaveTrivia(_ context.Context, rec domain.GeneratedTrivia) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
	return nil
}

// ListByUser returns the user's generations, oldest first.
func (s *TriviaStore) ListByUser(_ context.Context, userID string) ([]domain.GeneratedTrivia, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.GeneratedTrivia
	for _, rec := range s.records {
		if rec.UserID == userID {
			out = append(out, rec)
		}
	}
	return out, nil
}
