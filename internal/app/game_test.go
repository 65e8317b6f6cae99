package app_test

import (
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/infra/memory"
)

var testEngineConfig = app.EngineConfig{
	StartCountdown:  5,
	Unit:            time.Second,
	AnimationBuffer: 500 * time.Millisecond,
}

func newTestGame(t *testing.T) (*app.Game, *fakeBackend, *fakeScheduler) {
	t.Helper()
	backend := newFakeBackend()
	sched := &fakeScheduler{}
	game := app.NewGame("u1", backend, sched, testEngineConfig, zap.NewNop())
	t.Cleanup(game.Close)
	return game, backend, sched
}

func nextIssued(t *testing.T, backend *fakeBackend) string {
	t.Helper()
	select {
	case id := <-backend.issued:
		return id
	case <-time.After(2 * time.Second):
		t.Fatalf("generate request never issued")
		return ""
	}
}

func countingDown(game *app.Game) bool {
	view := game.View()
	return view.Phase == app.GamePhasePlaying && view.Quiz != nil && view.Quiz.Phase == app.PhaseCountingDown
}

func TestGamePlaysGeneratedTrivia(t *testing.T) {
	game, backend, sched := newTestGame(t)

	if view := game.View(); view.Phase != app.GamePhaseEntry || !view.CanStartNewGame {
		t.Fatalf("expected entry view, got %+v", view)
	}
	if err := game.Start(space); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := nextIssued(t, backend)
	if view := game.View(); view.Phase != app.GamePhaseGenerating || view.Generation.SubmissionID != id {
		t.Fatalf("expected generating view for %s, got %+v", id, view)
	}

	backend.resolve(id, successFor(id, 2))
	eventually(t, func() bool { return countingDown(game) }, "quiz starts")

	view := game.View()
	if view.Quiz.Phase != app.PhaseCountingDown || view.Quiz.TimeLimit != space.TimeLimit {
		t.Fatalf("expected countdown with the submitted time limit, got %+v", view.Quiz)
	}
	if view.CanStartNewGame {
		t.Fatalf("new game must be hidden during the preliminary countdown")
	}
	if err := game.NewGame(); !errors.Is(err, domain.ErrNewGameUnavailable) {
		t.Fatalf("expected new game unavailable, got %v", err)
	}

	sched.Advance(5 * time.Second)
	if won, err := game.Answer(0, 0); err != nil || !won {
		t.Fatalf("answer: won=%v err=%v", won, err)
	}
	sched.Advance(500 * time.Millisecond)
	sched.Advance(10 * time.Second)

	view = game.View()
	if view.Phase != app.GamePhaseFinished || view.Quiz.Result == nil {
		t.Fatalf("expected finished game, got %+v", view)
	}
	if view.Quiz.Result.Correct != 1 || view.Quiz.Result.Total != 2 {
		t.Fatalf("expected 1/2, got %+v", view.Quiz.Result)
	}

	eventually(t, func() bool { return game.View().Credits != nil }, "credits refreshed")

	if err := game.NewGame(); err != nil {
		t.Fatalf("new game: %v", err)
	}
	if view := game.View(); view.Phase != app.GamePhaseEntry || view.Quiz != nil || view.Details != nil {
		t.Fatalf("expected a clean entry view, got %+v", view)
	}
}

func TestGameCancelReturnsToEntry(t *testing.T) {
	game, backend, _ := newTestGame(t)

	if err := game.Start(space); err != nil {
		t.Fatalf("start: %v", err)
	}
	id := nextIssued(t, backend)
	if err := game.Cancel(); err != nil {
		t.Fatalf("cancel: %v", err)
	}
	backend.ack(id, domain.CancelResponse{SubmissionID: id, OK: true})
	backend.resolve(id, domain.GenerateResponse{SubmissionID: id, OK: true, Aborted: true})

	eventually(t, func() bool { return game.View().Generation.IsAborted }, "generation aborted")
	view := game.View()
	if view.Phase != app.GamePhaseEntry || view.Details != nil || view.Quiz != nil {
		t.Fatalf("aborted generation must leave the player on the entry form, got %+v", view)
	}
}

func TestGameIgnoresTriviaFromReplacedSubmission(t *testing.T) {
	game, backend, _ := newTestGame(t)

	if err := game.Start(space); err != nil {
		t.Fatalf("start: %v", err)
	}
	first := nextIssued(t, backend)
	history := domain.GameDetails{Topic: "history", NumberOfQuestions: 2, TimeLimit: 5}
	if err := game.Start(history); err != nil {
		t.Fatalf("restart: %v", err)
	}
	second := nextIssued(t, backend)

	backend.resolve(first, successFor(first, 3))
	time.Sleep(20 * time.Millisecond)
	if view := game.View(); view.Quiz != nil {
		t.Fatalf("trivia for %s must not start a quiz, got %+v", first, view.Quiz)
	}

	backend.resolve(second, successFor(second, 2))
	eventually(t, func() bool { return game.View().Quiz != nil }, "second quiz starts")
	view := game.View()
	if view.Quiz.QuestionCount != 2 || view.Details.Topic != "history" {
		t.Fatalf("expected the history quiz, got %+v", view)
	}
}

func TestGameRejectsInvalidDetails(t *testing.T) {
	game, backend, _ := newTestGame(t)

	err := game.Start(domain.GameDetails{Topic: " ", NumberOfQuestions: 0, TimeLimit: 10})
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if view := game.View(); view.Generation.Error != domain.MsgValidation || view.Phase != app.GamePhaseEntry {
		t.Fatalf("expected validation message on entry form, got %+v", view)
	}
	select {
	case id := <-backend.issued:
		t.Fatalf("no request expected, got %s", id)
	default:
	}
}

func TestSubscribeReceivesViews(t *testing.T) {
	game, backend, _ := newTestGame(t)

	ch, cancel := game.Subscribe()
	defer cancel()
	if view := <-ch; view.Phase != app.GamePhaseEntry {
		t.Fatalf("expected initial entry view, got %+v", view)
	}

	if err := game.Start(space); err != nil {
		t.Fatalf("start: %v", err)
	}
	_ = nextIssued(t, backend)

	deadline := time.After(2 * time.Second)
	for {
		select {
		case view := <-ch:
			if view.Phase == app.GamePhaseGenerating {
				return
			}
		case <-deadline:
			t.Fatalf("no generating view delivered")
		}
	}
}

func TestGameServiceLifecycle(t *testing.T) {
	service := app.NewTriviaService(
		memory.NewStaticTriviaGenerator(nil),
		memory.NewUsageLedger(time.Hour),
		memory.NewTriviaStore(),
		app.Limits{Anon: 5, Registered: 10},
		zap.NewNop(),
	)
	sched := &fakeScheduler{}
	games := memory.NewGameStore(app.NewGameFactory(app.LocalBackendFactory(service), sched, testEngineConfig, zap.NewNop()))
	svc := app.NewGameService(games)

	if err := svc.Start("u1", space); !errors.Is(err, domain.ErrGameNotFound) {
		t.Fatalf("expected game not found before open, got %v", err)
	}

	identity := domain.Identity{UserID: "u1", Tier: domain.TierAnon}
	game := svc.Open(identity, "")
	if again := svc.Open(identity, ""); again != game {
		t.Fatalf("expected the same game for a second connection")
	}
	if err := svc.Start("u1", space); err != nil {
		t.Fatalf("start: %v", err)
	}
	eventually(t, func() bool { return countingDown(game) }, "local generation completes")
	eventually(t, func() bool {
		c := game.View().Credits
		return c != nil && c.Used == 1 && c.Remaining == 4
	}, "credits reflect one generation")

	sched.Advance(5 * time.Second)
	if won, err := svc.Answer("u1", 0, 1); err != nil || !won {
		t.Fatalf("answer: won=%v err=%v", won, err)
	}

	svc.Leave("u1")
	if _, ok := games.Get("u1"); !ok {
		t.Fatalf("game must survive while a connection remains")
	}
	svc.Leave("u1")
	if _, ok := games.Get("u1"); ok {
		t.Fatalf("game must be removed once idle")
	}
}
