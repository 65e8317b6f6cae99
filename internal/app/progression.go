package app

import (
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/metrics"
)

// Phase is the progression engine's state.
type Phase string

const (
	PhaseIdle           Phase = "idle"
	PhaseCountingDown   Phase = "countingDown"
	PhaseAwaitingAnswer Phase = "awaitingAnswer"
	PhaseFinished       Phase = "finished"
	PhaseStopped        Phase = "stopped"
)

// EngineConfig holds the timing of a quiz. Countdowns are expressed in units.
type EngineConfig struct {
	TimeLimit       int
	StartCountdown  int
	Unit            time.Duration
	AnimationBuffer time.Duration
}

func (c EngineConfig) withDefaults() EngineConfig {
	if c.StartCountdown < 0 {
		c.StartCountdown = 0
	}
	if c.Unit <= 0 {
		c.Unit = time.Second
	}
	if c.AnimationBuffer < 0 {
		c.AnimationBuffer = 0
	}
	return c
}

// QuizSnapshot is an observable copy of the engine state.
// len(Answers) == CurrentIndex always holds.
type QuizSnapshot struct {
	Phase          Phase                   `json:"phase"`
	StartRemaining int                     `json:"startRemaining"`
	CurrentIndex   int                     `json:"currentIndex"`
	QuestionCount  int                     `json:"questionCount"`
	Remaining      int                     `json:"remaining"`
	TimeLimit      int                     `json:"timeLimit"`
	Answers        []domain.RecordedAnswer `json:"answers"`
	AnswerLocked   bool                    `json:"answerLocked"`
	CommitPending  bool                    `json:"commitPending"`
	Current        *domain.Question        `json:"current,omitempty"`
	Result         *domain.Result          `json:"result,omitempty"`
}

// Engine advances through a fixed list of questions collecting exactly one
// answer per question, either from the player or from countdown expiry.
type Engine struct {
	sched     Scheduler
	cfg       EngineConfig
	questions []domain.Question
	logger    *zap.Logger
	onChange  func()

	mu             sync.Mutex
	phase          Phase
	startRemaining int
	index          int
	remaining      int
	answers        []domain.RecordedAnswer
	locked         bool
	// token changes with the question; callbacks scheduled for an older token are dropped.
	token  uint64
	ticker Timer
	commit Timer
}

func NewEngine(questions []domain.Question, cfg EngineConfig, sched Scheduler, logger *zap.Logger, onChange func()) *Engine {
	return &Engine{
		sched:     sched,
		cfg:       cfg.withDefaults(),
		questions: questions,
		logger:    logger,
		onChange:  onChange,
		phase:     PhaseIdle,
		answers:   make([]domain.RecordedAnswer, 0, len(questions)),
	}
}

// Start begins the preliminary countdown. Only the first call has an effect.
func (e *Engine) Start() {
	e.mu.Lock()
	if e.phase != PhaseIdle {
		e.mu.Unlock()
		return
	}
	e.phase = PhaseCountingDown
	e.startRemaining = e.cfg.StartCountdown
	if e.startRemaining == 0 {
		e.beginQuestionsLocked()
	} else {
		e.scheduleTickLocked()
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) scheduleTickLocked() {
	token := e.token
	e.ticker = e.sched.AfterFunc(e.cfg.Unit, func() { e.tick(token) })
}

func (e *Engine) tick(token uint64) {
	e.mu.Lock()
	if token != e.token {
		e.mu.Unlock()
		return
	}
	e.ticker = nil
	switch e.phase {
	case PhaseCountingDown:
		e.startRemaining--
		if e.startRemaining <= 0 {
			e.beginQuestionsLocked()
		} else {
			e.scheduleTickLocked()
		}
	case PhaseAwaitingAnswer:
		e.remaining--
		if e.remaining <= 0 {
			e.countdownEndLocked()
		} else {
			e.scheduleTickLocked()
		}
	default:
		e.mu.Unlock()
		return
	}
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) beginQuestionsLocked() {
	e.startRemaining = 0
	if len(e.questions) == 0 {
		e.finishLocked()
		return
	}
	e.phase = PhaseAwaitingAnswer
	e.startQuestionLocked()
}

func (e *Engine) startQuestionLocked() {
	e.remaining = e.cfg.TimeLimit
	e.locked = false
	if e.remaining <= 0 {
		e.countdownEndLocked()
		return
	}
	e.scheduleTickLocked()
}

// HandleAnswer records the player's answer for the current question after the
// animation buffer. The first call per question wins; it reports whether this
// call was the winner.
func (e *Engine) HandleAnswer(answer domain.Answer) bool {
	e.mu.Lock()
	won := e.handleAnswerLocked(answer)
	e.mu.Unlock()
	if won {
		e.notify()
	}
	return won
}

// AnswerAt answers by index for the question the player was looking at. A
// click for a question that is no longer current is ignored.
func (e *Engine) AnswerAt(questionIndex, answerIndex int) (bool, error) {
	e.mu.Lock()
	if e.phase != PhaseAwaitingAnswer {
		e.mu.Unlock()
		return false, domain.ErrNoCurrentQuestion
	}
	if questionIndex != e.index {
		e.mu.Unlock()
		return false, nil
	}
	answers := e.questions[e.index].Answers
	if answerIndex < 0 || answerIndex >= len(answers) {
		e.mu.Unlock()
		return false, domain.ErrAnswerNotFound
	}
	won := e.handleAnswerLocked(answers[answerIndex])
	e.mu.Unlock()
	if won {
		e.notify()
	}
	return won, nil
}

func (e *Engine) handleAnswerLocked(answer domain.Answer) bool {
	if e.phase != PhaseAwaitingAnswer || e.locked || e.commit != nil {
		return false
	}
	e.locked = true
	token := e.token
	recorded := domain.RecordedAnswer{Text: answer.Text, IsCorrect: answer.IsCorrect}
	e.commit = e.sched.AfterFunc(e.cfg.AnimationBuffer, func() { e.commitAnswer(token, recorded) })
	return true
}

func (e *Engine) commitAnswer(token uint64, answer domain.RecordedAnswer) {
	e.mu.Lock()
	if token != e.token {
		e.mu.Unlock()
		return
	}
	e.commit = nil
	e.recordLocked(answer, "answer")
	e.advanceLocked()
	e.mu.Unlock()
	e.notify()
}

// HandleCountdownEnd applies expiry of the current question's countdown.
func (e *Engine) HandleCountdownEnd() {
	e.mu.Lock()
	if e.phase != PhaseAwaitingAnswer {
		e.mu.Unlock()
		return
	}
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.remaining = 0
	e.countdownEndLocked()
	e.mu.Unlock()
	e.notify()
}

// countdownEndLocked: when an answer already holds the lock its pending
// commit owns advancement, so only the lock is cleared.
func (e *Engine) countdownEndLocked() {
	if e.locked {
		e.locked = false
		return
	}
	if e.commit != nil {
		return
	}
	e.recordLocked(domain.BlankAnswer, "timeout")
	e.advanceLocked()
}

func (e *Engine) recordLocked(answer domain.RecordedAnswer, source string) {
	e.answers = append(e.answers, answer)
	metrics.AnswersRecorded.WithLabelValues(source, strconv.FormatBool(answer.IsCorrect)).Inc()
}

func (e *Engine) advanceLocked() {
	e.stopTimersLocked()
	e.index++
	e.token++
	e.locked = false
	if e.index >= len(e.questions) {
		e.finishLocked()
		return
	}
	e.startQuestionLocked()
}

func (e *Engine) finishLocked() {
	e.stopTimersLocked()
	e.phase = PhaseFinished
	e.remaining = 0
	result := domain.Tally(e.answers)
	e.logger.Debug("quiz finished", zap.Int("correct", result.Correct), zap.Int("total", result.Total))
}

func (e *Engine) stopTimersLocked() {
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	if e.commit != nil {
		e.commit.Stop()
		e.commit = nil
	}
}

// Stop discards the quiz: timers are stopped and pending commits dropped.
func (e *Engine) Stop() {
	e.mu.Lock()
	if e.phase == PhaseStopped {
		e.mu.Unlock()
		return
	}
	e.token++
	e.stopTimersLocked()
	e.phase = PhaseStopped
	e.mu.Unlock()
	e.notify()
}

// CanStartNewGame reports whether the preliminary countdown has completed.
func (e *Engine) CanStartNewGame() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.phase == PhaseAwaitingAnswer || e.phase == PhaseFinished || e.phase == PhaseStopped
}

// Snapshot returns a copy of the engine state.
func (e *Engine) Snapshot() QuizSnapshot {
	e.mu.Lock()
	defer e.mu.Unlock()

	answers := make([]domain.RecordedAnswer, len(e.answers))
	copy(answers, e.answers)
	snap := QuizSnapshot{
		Phase:          e.phase,
		StartRemaining: e.startRemaining,
		CurrentIndex:   e.index,
		QuestionCount:  len(e.questions),
		Remaining:      e.remaining,
		TimeLimit:      e.cfg.TimeLimit,
		Answers:        answers,
		AnswerLocked:   e.locked,
		CommitPending:  e.commit != nil,
	}
	if e.phase == PhaseAwaitingAnswer {
		q := e.questions[e.index]
		snap.Current = &q
	}
	if e.phase == PhaseFinished {
		result := domain.Tally(e.answers)
		snap.Result = &result
	}
	return snap
}

func (e *Engine) notify() {
	if e.onChange != nil {
		e.onChange()
	}
}
