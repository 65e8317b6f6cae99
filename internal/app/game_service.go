package app

import (
	"go.uber.org/zap"

	"trivia-solo-service/internal/domain"
)

// GameRepository abstracts where open games live (in-memory, Redis-marked, etc).
// Acquire and Release count connections under the repository lock, so a game
// is never handed out and closed at the same time.
type GameRepository interface {
	// Acquire returns the player's game, creating it on first use, with one more connection attached.
	Acquire(identity domain.Identity, credential string) *Game
	Get(userID string) (*Game, bool)
	// Release detaches one connection and closes the game once it is idle.
	Release(userID string)
}

// GameFactory builds a fresh game for a player.
type GameFactory func(identity domain.Identity, credential string) *Game

// NewGameFactory wires games to a backend per player.
func NewGameFactory(backends BackendFactory, sched Scheduler, cfg EngineConfig, logger *zap.Logger) GameFactory {
	return func(identity domain.Identity, credential string) *Game {
		return NewGame(identity.UserID, backends(identity, credential), sched, cfg, logger)
	}
}

// GameService contains the solo game use cases.
type GameService struct {
	games GameRepository
}

func NewGameService(games GameRepository) *GameService {
	return &GameService{games: games}
}

// Open returns the player's game, creating it on first use, and counts the connection.
func (s *GameService) Open(identity domain.Identity, credential string) *Game {
	return s.games.Acquire(identity, credential)
}

// Leave drops a connection and closes the game once nobody is attached.
func (s *GameService) Leave(userID string) {
	s.games.Release(userID)
}

func (s *GameService) Start(userID string, details domain.GameDetails) error {
	game, ok := s.games.Get(userID)
	if !ok {
		return domain.ErrGameNotFound
	}
	return game.Start(details)
}

func (s *GameService) Cancel(userID string) error {
	game, ok := s.games.Get(userID)
	if !ok {
		return domain.ErrGameNotFound
	}
	return game.Cancel()
}

func (s *GameService) Answer(userID string, questionIndex, answerIndex int) (bool, error) {
	game, ok := s.games.Get(userID)
	if !ok {
		return false, domain.ErrGameNotFound
	}
	return game.Answer(questionIndex, answerIndex)
}

func (s *GameService) NewGame(userID string) error {
	game, ok := s.games.Get(userID)
	if !ok {
		return domain.ErrGameNotFound
	}
	return game.NewGame()
}

// Subscribe streams the player's game views.
func (s *GameService) Subscribe(userID string) (<-chan GameView, func(), error) {
	game, ok := s.games.Get(userID)
	if !ok {
		return nil, nil, domain.ErrGameNotFound
	}
	ch, cancel := game.Subscribe()
	return ch, cancel, nil
}
