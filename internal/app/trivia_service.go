package app

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"trivia-solo-service/internal/domain"
)

// TriviaGenerator produces a trivia document for a topic (LLM-backed, static, etc).
type TriviaGenerator interface {
	GenerateTrivia(ctx context.Context, topic string, count int) (domain.Trivia, error)
}

// UsageLedger counts consumed generation credits per user.
type UsageLedger interface {
	// Reserve consumes one credit unless the user already reached limit.
	Reserve(ctx context.Context, userID string, limit int) (bool, error)
	// Release refunds a reserved credit.
	Release(ctx context.Context, userID string) error
	Used(ctx context.Context, userID string) (int, error)
}

// TriviaStore records successful generations.
type TriviaStore interface {
	SaveTrivia(ctx context.Context, rec domain.GeneratedTrivia) error
}

// Limits caps generations per tier. MaxQuestions, when set, lowers the
// per-request question cap below domain.MaxNumberOfQuestions.
type Limits struct {
	Anon         int
	Registered   int
	MaxQuestions int
}

func (l Limits) For(tier domain.Tier) int {
	if tier == domain.TierRegistered {
		return l.Registered
	}
	return l.Anon
}

// Messages returned in the error field of a generate response. Limit
// failures carry the domain limit codes instead.
const (
	MsgInvalidRequest      = domain.MsgValidation
	MsgDuplicateSubmission = "Submission already in progress"
	MsgUsageUnavailable    = "Unable to check usage"
	MsgGenerationFailed    = "Trivia generation failed"
)

// TriviaService serves the generation endpoint: it enforces usage limits,
// runs the generator and lets an in-flight generation be cancelled by its
// submission id.
type TriviaService struct {
	generator TriviaGenerator
	ledger    UsageLedger
	store     TriviaStore
	limits    Limits
	logger    *zap.Logger
	now       func() time.Time

	mu       sync.Mutex
	inflight map[string]*inflightGeneration
}

type inflightGeneration struct {
	userID    string
	cancel    context.CancelFunc
	cancelled bool
}

func NewTriviaService(generator TriviaGenerator, ledger UsageLedger, store TriviaStore, limits Limits, logger *zap.Logger) *TriviaService {
	return &TriviaService{
		generator: generator,
		ledger:    ledger,
		store:     store,
		limits:    limits,
		logger:    logger,
		now:       time.Now,
		inflight:  make(map[string]*inflightGeneration),
	}
}

// Generate runs one generation for the caller. Every response echoes the submission id.
func (s *TriviaService) Generate(ctx context.Context, identity domain.Identity, req domain.GenerateRequest) domain.GenerateResponse {
	resp := domain.GenerateResponse{SubmissionID: req.SubmissionID}
	if err := req.Validate(); err != nil {
		resp.Error = MsgInvalidRequest
		return resp
	}
	if s.limits.MaxQuestions > 0 && req.NumberOfQuestions > s.limits.MaxQuestions {
		resp.Error = MsgInvalidRequest
		return resp
	}

	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.register(req.SubmissionID, identity.UserID, cancel) {
		resp.Error = MsgDuplicateSubmission
		return resp
	}
	defer s.unregister(req.SubmissionID)

	log := s.logger.With(zap.String("submission_id", req.SubmissionID), zap.String("user_id", identity.UserID))

	ok, err := s.ledger.Reserve(ctx, identity.UserID, s.limits.For(identity.Tier))
	if err != nil {
		log.Error("reserve credit", zap.Error(err))
		resp.Error = MsgUsageUnavailable
		return resp
	}
	if !ok {
		limitErr := &domain.LimitExceededError{Tier: identity.Tier}
		resp.Error = limitErr.Code()
		log.Info("usage limit reached", zap.String("tier", string(identity.Tier)))
		return resp
	}

	trivia, err := s.generator.GenerateTrivia(genCtx, req.Topic, req.NumberOfQuestions)
	if s.wasCancelled(req.SubmissionID) {
		s.refund(ctx, log, identity.UserID)
		log.Info("generation aborted")
		resp.OK = true
		resp.Aborted = true
		return resp
	}
	if err != nil {
		s.refund(ctx, log, identity.UserID)
		log.Error("generate trivia", zap.Error(err))
		resp.Error = MsgGenerationFailed
		return resp
	}
	if err := trivia.Validate(); err != nil {
		s.refund(ctx, log, identity.UserID)
		log.Warn("generator produced invalid trivia", zap.Error(err))
		resp.Error = MsgGenerationFailed
		return resp
	}

	if err := s.store.SaveTrivia(ctx, domain.GeneratedTrivia{
		SubmissionID: req.SubmissionID,
		UserID:       identity.UserID,
		Topic:        req.Topic,
		Trivia:       trivia,
		CreatedAt:    s.now(),
	}); err != nil {
		log.Warn("record generated trivia", zap.Error(err))
	}

	log.Info("trivia generated", zap.Int("questions", len(trivia.Questions)))
	resp.OK = true
	resp.Trivia = &trivia
	return resp
}

// Cancel aborts the caller's in-flight generation. Unknown ids are
// acknowledged: the generation may simply have finished already.
func (s *TriviaService) Cancel(_ context.Context, identity domain.Identity, submissionID string) domain.CancelResponse {
	resp := domain.CancelResponse{SubmissionID: submissionID}
	if submissionID == "" {
		return resp
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.inflight[submissionID]
	if !ok {
		resp.OK = true
		return resp
	}
	if gen.userID != identity.UserID {
		return resp
	}
	gen.cancelled = true
	gen.cancel()
	resp.OK = true
	return resp
}

// Credits reports the caller's usage against its tier limit.
func (s *TriviaService) Credits(ctx context.Context, identity domain.Identity) (domain.Credits, error) {
	used, err := s.ledger.Used(ctx, identity.UserID)
	if err != nil {
		return domain.Credits{}, err
	}
	limit := s.limits.For(identity.Tier)
	remaining := limit - used
	if remaining < 0 {
		remaining = 0
	}
	return domain.Credits{Used: used, Limit: limit, Remaining: remaining, CheckedAt: s.now()}, nil
}

// InFlight reports how many generations are running.
func (s *TriviaService) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *TriviaService) register(id, userID string, cancel context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.inflight[id]; exists {
		return false
	}
	s.inflight[id] = &inflightGeneration{userID: userID, cancel: cancel}
	return true
}

func (s *TriviaService) unregister(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, id)
}

func (s *TriviaService) wasCancelled(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	gen, ok := s.inflight[id]
	return ok && gen.cancelled
}

func (s *TriviaService) refund(ctx context.Context, log *zap.Logger, userID string) {
	// the request context may be the one that was cancelled
	if err := s.ledger.Release(context.WithoutCancel(ctx), userID); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("refund credit", zap.Error(err))
	}
}
