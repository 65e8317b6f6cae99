package app

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"trivia-solo-service/internal/domain"
)

// GamePhase is what the player is looking at.
type GamePhase string

const (
	GamePhaseEntry      GamePhase = "entry"
	GamePhaseGenerating GamePhase = "generating"
	GamePhasePlaying    GamePhase = "playing"
	GamePhaseFinished   GamePhase = "finished"
)

// GameView is the snapshot pushed to subscribers on every change.
type GameView struct {
	UserID          string              `json:"userId"`
	Phase           GamePhase           `json:"phase"`
	Details         *domain.GameDetails `json:"details,omitempty"`
	Generation      GenerationState     `json:"generation"`
	Quiz            *QuizSnapshot       `json:"quiz,omitempty"`
	Credits         *domain.Credits     `json:"credits,omitempty"`
	CanStartNewGame bool                `json:"canStartNewGame"`
	UpdatedAt       time.Time           `json:"updatedAt"`
}

// Game is one player's solo game: a generation controller feeding a
// progression engine once trivia arrives.
type Game struct {
	userID  string
	backend Backend
	sched   Scheduler
	cfg     EngineConfig
	logger  *zap.Logger
	now     func() time.Time
	ctrl    *GenerationController
	sf      singleflight.Group

	ctx    context.Context
	cancel context.CancelFunc
	bg     sync.WaitGroup

	// opMu serialises player operations across connections.
	opMu sync.Mutex

	mu           sync.RWMutex
	details      *domain.GameDetails
	submissionID string
	engine       *Engine
	credits      *domain.Credits
	connections  int
	subscribers  map[chan GameView]struct{}
	closed       bool
}

func NewGame(userID string, backend Backend, sched Scheduler, cfg EngineConfig, logger *zap.Logger) *Game {
	ctx, cancel := context.WithCancel(context.Background())
	g := &Game{
		userID:      userID,
		backend:     backend,
		sched:       sched,
		cfg:         cfg,
		logger:      logger.With(zap.String("user_id", userID)),
		now:         time.Now,
		ctx:         ctx,
		cancel:      cancel,
		subscribers: make(map[chan GameView]struct{}),
	}
	g.ctrl = NewGenerationController(backend, g.logger,
		WithCreditsRefresh(g.refreshCredits),
		WithChangeListener(g.onGenerationChange),
	)
	return g
}

// Start validates details, discards any current quiz and generates new trivia.
func (g *Game) Start(details domain.GameDetails) error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	if err := details.Validate(); err != nil {
		return g.ctrl.Generate(details)
	}

	g.mu.Lock()
	engine := g.engine
	g.engine = nil
	g.details = &details
	g.submissionID = ""
	g.mu.Unlock()
	if engine != nil {
		engine.Stop()
	}

	g.ctrl.Reset()
	if err := g.ctrl.Generate(details); err != nil {
		return err
	}

	g.mu.Lock()
	g.submissionID = g.ctrl.State().SubmissionID
	g.mu.Unlock()
	// trivia may have landed before the id was recorded
	g.onGenerationChange()
	return nil
}

// Cancel asks the backend to stop the running generation.
func (g *Game) Cancel() error {
	g.opMu.Lock()
	defer g.opMu.Unlock()
	return g.ctrl.Cancel()
}

// Answer answers questionIndex with the answer at answerIndex.
func (g *Game) Answer(questionIndex, answerIndex int) (bool, error) {
	g.mu.RLock()
	engine := g.engine
	g.mu.RUnlock()
	if engine == nil {
		return false, domain.ErrNoCurrentQuestion
	}
	return engine.AnswerAt(questionIndex, answerIndex)
}

// NewGame discards the quiz and returns the player to the entry form.
func (g *Game) NewGame() error {
	g.opMu.Lock()
	defer g.opMu.Unlock()

	g.mu.Lock()
	engine := g.engine
	if engine != nil && !engine.CanStartNewGame() {
		g.mu.Unlock()
		return domain.ErrNewGameUnavailable
	}
	g.engine = nil
	g.details = nil
	g.submissionID = ""
	g.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	g.ctrl.Reset()
	return nil
}

// View returns the current snapshot.
func (g *Game) View() GameView {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.viewLocked()
}

func (g *Game) onGenerationChange() {
	g.mu.Lock()
	st := g.ctrl.State()
	var start *Engine
	if st.SubmissionID != "" && st.SubmissionID == g.submissionID && g.details != nil {
		switch {
		case st.IsAborted:
			g.details = nil
		case st.Trivia != nil && g.engine == nil:
			cfg := g.cfg
			cfg.TimeLimit = g.details.TimeLimit
			g.engine = NewEngine(st.Trivia.Questions, cfg, g.sched, g.logger, g.broadcast)
			start = g.engine
		}
	}
	g.mu.Unlock()

	if start != nil {
		start.Start()
	}
	g.broadcast()
}

// refreshCredits runs after every generation attempt; concurrent refreshes share one fetch.
func (g *Game) refreshCredits() {
	g.bg.Add(1)
	go func() {
		defer g.bg.Done()
		_, err, _ := g.sf.Do("credits", func() (interface{}, error) {
			credits, err := g.backend.Credits(g.ctx)
			if err != nil {
				return nil, err
			}
			g.mu.Lock()
			g.credits = &credits
			g.mu.Unlock()
			return credits, nil
		})
		if err != nil {
			g.logger.Warn("refresh credits", zap.Error(err))
			return
		}
		g.broadcast()
	}()
}

// Attach counts a connection. Repositories call it under their own lock so a
// game being acquired cannot be closed as idle.
func (g *Game) Attach() {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.connections++
}

// Detach drops a connection and reports whether the game is now idle.
func (g *Game) Detach() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.connections > 0 {
		g.connections--
	}
	return g.connections == 0
}

// IsIdle reports whether no connection is attached.
func (g *Game) IsIdle() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.connections == 0
}

// Subscribe returns a channel receiving a view on every change, starting with
// the current one. The caller must invoke the returned cancel function.
func (g *Game) Subscribe() (<-chan GameView, func()) {
	ch := make(chan GameView, 8)

	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	ch <- g.viewLocked()
	g.subscribers[ch] = struct{}{}
	g.mu.Unlock()

	cancel := func() {
		g.mu.Lock()
		if _, ok := g.subscribers[ch]; ok {
			delete(g.subscribers, ch)
			close(ch)
		}
		g.mu.Unlock()
	}
	return ch, cancel
}

func (g *Game) broadcast() {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return
	}
	view := g.viewLocked()
	for ch := range g.subscribers {
		select {
		case ch <- view:
		default:
			// slow subscriber: drop its oldest view so it always ends on the latest
			select {
			case <-ch:
			default:
			}
			ch <- view
		}
	}
}

func (g *Game) viewLocked() GameView {
	view := GameView{
		UserID:     g.userID,
		Phase:      GamePhaseEntry,
		Generation: g.ctrl.State(),
		Credits:    g.credits,
		UpdatedAt:  g.now(),
	}
	if g.details != nil {
		d := *g.details
		view.Details = &d
	}
	switch {
	case g.engine != nil:
		snap := g.engine.Snapshot()
		view.Quiz = &snap
		view.Phase = GamePhasePlaying
		if snap.Phase == PhaseFinished {
			view.Phase = GamePhaseFinished
		}
		view.CanStartNewGame = snap.Phase != PhaseIdle && snap.Phase != PhaseCountingDown
	case view.Generation.IsGenerating:
		view.Phase = GamePhaseGenerating
		view.CanStartNewGame = true
	default:
		view.CanStartNewGame = true
	}
	return view
}

// Close stops timers, abandons in-flight requests and releases subscribers.
func (g *Game) Close() {
	g.mu.Lock()
	if g.closed {
		g.mu.Unlock()
		return
	}
	g.closed = true
	engine := g.engine
	g.mu.Unlock()

	if engine != nil {
		engine.Stop()
	}
	g.ctrl.Close()
	g.cancel()
	g.bg.Wait()

	g.mu.Lock()
	for ch := range g.subscribers {
		delete(g.subscribers, ch)
		close(ch)
	}
	g.mu.Unlock()
}
