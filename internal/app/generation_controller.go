package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"trivia-solo-service/internal/domain"
	"trivia-solo-service/internal/metrics"
)

// GenerationState is a snapshot of the controller. Trivia is never mutated
// after it is committed, so snapshots may share it.
type GenerationState struct {
	SubmissionID string                  `json:"submissionId,omitempty"`
	Status       domain.SubmissionStatus `json:"status"`
	Trivia       *domain.Trivia          `json:"trivia,omitempty"`
	IsGenerating bool                    `json:"isGenerating"`
	IsCancelling bool                    `json:"isCancelling"`
	IsAborted    bool                    `json:"isAborted"`
	Error        string                  `json:"error,omitempty"`
	Err          error                   `json:"-"`
}

// GenerationController owns one submission at a time. Every asynchronous
// resume compares the echoed submission id with the active one; that
// comparison alone decides whether a response is still relevant.
type GenerationController struct {
	backend  Backend
	logger   *zap.Logger
	newID    func() string
	refresh  func()
	onChange func()

	baseCtx  context.Context
	stop     context.CancelFunc
	inflight sync.WaitGroup

	mu    sync.Mutex
	state GenerationState
}

// ControllerOption customises a GenerationController.
type ControllerOption func(*GenerationController)

// WithIDGenerator replaces the uuid submission id source.
func WithIDGenerator(newID func() string) ControllerOption {
	return func(c *GenerationController) { c.newID = newID }
}

// WithCreditsRefresh sets the side effect run once after every generation attempt concludes.
func WithCreditsRefresh(refresh func()) ControllerOption {
	return func(c *GenerationController) { c.refresh = refresh }
}

// WithChangeListener is invoked, outside the controller lock, after every state change.
func WithChangeListener(onChange func()) ControllerOption {
	return func(c *GenerationController) { c.onChange = onChange }
}

func NewGenerationController(backend Backend, logger *zap.Logger, opts ...ControllerOption) *GenerationController {
	ctx, stop := context.WithCancel(context.Background())
	c := &GenerationController{
		backend: backend,
		logger:  logger,
		newID:   uuid.NewString,
		baseCtx: ctx,
		stop:    stop,
		state:   GenerationState{Status: domain.StatusIdle},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current snapshot.
func (c *GenerationController) State() GenerationState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Generate validates details and, when valid, supersedes any prior submission
// with a fresh one and issues the generate request asynchronously.
func (c *GenerationController) Generate(details domain.GameDetails) error {
	if err := details.Validate(); err != nil {
		c.mu.Lock()
		c.state.Err = err
		c.state.Error = domain.UserMessage(err)
		c.mu.Unlock()
		c.notify()
		return err
	}

	req := domain.GenerateRequest{
		Topic:             details.Topic,
		NumberOfQuestions: details.NumberOfQuestions,
		SubmissionID:      c.newID(),
	}

	c.mu.Lock()
	c.state = GenerationState{
		SubmissionID: req.SubmissionID,
		Status:       domain.StatusPending,
		IsGenerating: true,
	}
	c.mu.Unlock()
	c.notify()

	c.logger.Debug("generation requested",
		zap.String("submission_id", req.SubmissionID),
		zap.String("topic", req.Topic),
		zap.Int("questions", req.NumberOfQuestions))

	c.inflight.Add(1)
	go c.runGenerate(req)
	return nil
}

func (c *GenerationController) runGenerate(req domain.GenerateRequest) {
	defer c.inflight.Done()

	resp, err := c.backend.Generate(c.baseCtx, req)
	outcome, changed := c.resolveGenerate(req.SubmissionID, resp, err)
	metrics.GenerationOutcomes.WithLabelValues(outcome).Inc()
	if changed {
		c.notify()
	}
	if c.refresh != nil {
		c.refresh()
	}
}

func (c *GenerationController) resolveGenerate(sentID string, resp domain.GenerateResponse, err error) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if sentID != c.state.SubmissionID {
			return "superseded", false
		}
		c.logger.Warn("generate request failed", zap.String("submission_id", sentID), zap.Error(err))
		c.failLocked(fmt.Errorf("%w: %v", domain.ErrGenerationFailed, err))
		return "failed", true
	}
	if resp.SubmissionID == "" {
		if sentID != c.state.SubmissionID {
			return "superseded", false
		}
		c.logger.Error("submission id missing from generate response", zap.String("submission_id", sentID))
		c.failLocked(fmt.Errorf("%w: submission id missing", domain.ErrMalformedResponse))
		c.state.Error = domain.MsgMissingSubmission
		return "malformed", true
	}
	if resp.SubmissionID != c.state.SubmissionID {
		c.logger.Debug("discarding superseded generate response",
			zap.String("submission_id", resp.SubmissionID),
			zap.String("active_id", c.state.SubmissionID))
		return "superseded", false
	}

	switch {
	case resp.Error == domain.CodeAnonLimitExceeded:
		c.failLocked(&domain.LimitExceededError{Tier: domain.TierAnon})
		return "limit_exceeded", true
	case resp.Error == domain.CodeRegisteredLimitExceeded:
		c.failLocked(&domain.LimitExceededError{Tier: domain.TierRegistered})
		return "limit_exceeded", true
	case resp.Error != "":
		c.failLocked(fmt.Errorf("%w: %s", domain.ErrGenerationFailed, resp.Error))
		return "failed", true
	case resp.Aborted:
		c.state.Status = domain.StatusAborted
		c.state.IsAborted = true
		c.state.IsGenerating = false
		c.state.IsCancelling = false
		return "aborted", true
	case !resp.OK:
		c.failLocked(fmt.Errorf("%w: unsuccessful response", domain.ErrGenerationFailed))
		return "failed", true
	}

	if resp.Trivia == nil {
		c.failLocked(fmt.Errorf("%w: trivia missing", domain.ErrMalformedResponse))
		return "malformed", true
	}
	if err := resp.Trivia.Validate(); err != nil {
		c.logger.Warn("generated trivia rejected", zap.String("submission_id", sentID), zap.Error(err))
		c.failLocked(err)
		return "malformed", true
	}

	trivia := cloneTrivia(*resp.Trivia)
	c.state.Trivia = &trivia
	c.state.Status = domain.StatusSucceeded
	c.state.Err = nil
	c.state.Error = ""
	c.state.IsGenerating = false
	c.state.IsCancelling = false
	return "succeeded", true
}

func (c *GenerationController) failLocked(err error) {
	c.state.Status = domain.StatusFailed
	c.state.Err = err
	c.state.Error = domain.UserMessage(err)
	c.state.IsGenerating = false
	c.state.IsCancelling = false
}

// Cancel asks the backend to stop the active submission.
func (c *GenerationController) Cancel() error {
	c.mu.Lock()
	id := c.state.SubmissionID
	if id == "" {
		c.state.Err = domain.ErrNoSubmission
		c.state.Error = domain.MsgNoSubmission
		c.mu.Unlock()
		c.notify()
		return domain.ErrNoSubmission
	}
	c.state.IsCancelling = true
	if c.state.Status.Active() {
		c.state.Status = domain.StatusCancelling
	}
	c.mu.Unlock()
	c.notify()

	c.inflight.Add(1)
	go c.runCancel(id)
	return nil
}

func (c *GenerationController) runCancel(id string) {
	defer c.inflight.Done()

	resp, err := c.backend.Cancel(c.baseCtx, id)
	outcome, changed := c.resolveCancel(id, resp, err)
	metrics.Cancellations.WithLabelValues(outcome).Inc()
	if changed {
		c.notify()
	}
}

func (c *GenerationController) resolveCancel(sentID string, resp domain.CancelResponse, err error) (string, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err != nil {
		if sentID != c.state.SubmissionID {
			return "superseded", false
		}
		c.logger.Warn("cancel request failed", zap.String("submission_id", sentID), zap.Error(err))
		c.cancelFailedLocked(err)
		return "failed", true
	}
	if resp.SubmissionID == "" {
		if sentID != c.state.SubmissionID {
			return "superseded", false
		}
		c.logger.Error("submission id missing from cancel response", zap.String("submission_id", sentID))
		c.state.Err = fmt.Errorf("%w: cancel ack without submission id", domain.ErrMalformedResponse)
		c.state.Error = domain.MsgCancelMissingID
		c.state.IsCancelling = false
		return "malformed", true
	}
	if resp.SubmissionID != c.state.SubmissionID {
		return "superseded", false
	}
	if !resp.OK {
		c.cancelFailedLocked(errors.New("unsuccessful cancel response"))
		return "failed", true
	}

	// The generate response may still arrive; it is processed as usual.
	c.state.IsGenerating = false
	c.state.IsCancelling = false
	return "acknowledged", true
}

// cancelFailedLocked leaves IsGenerating alone: the generation may still be running.
// The failure is reported even when the submission already resolved; its
// result is kept.
func (c *GenerationController) cancelFailedLocked(err error) {
	c.state.IsCancelling = false
	c.state.Err = &domain.CancellationError{Err: err}
	c.state.Error = domain.MsgCancellationFailed
	if c.state.Status.Active() {
		c.state.Status = domain.StatusPending
	}
}

// Reset clears every field and invalidates the active submission id. Calling
// it repeatedly is the same as calling it once.
func (c *GenerationController) Reset() {
	c.mu.Lock()
	c.state = GenerationState{Status: domain.StatusIdle}
	c.mu.Unlock()
	c.notify()
}

// Wait blocks until every issued request has been resolved.
func (c *GenerationController) Wait() {
	c.inflight.Wait()
}

// Close abandons in-flight requests and waits for their goroutines to exit.
func (c *GenerationController) Close() {
	c.stop()
	c.inflight.Wait()
}

func (c *GenerationController) notify() {
	if c.onChange != nil {
		c.onChange()
	}
}

func cloneTrivia(t domain.Trivia) domain.Trivia {
	questions := make([]domain.Question, len(t.Questions))
	for i, q := range t.Questions {
		answers := make([]domain.Answer, len(q.Answers))
		copy(answers, q.Answers)
		questions[i] = domain.Question{Text: q.Text, Answers: answers}
	}
	return domain.Trivia{Questions: questions}
}
