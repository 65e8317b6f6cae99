package app_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"trivia-solo-service/internal/app"
	"trivia-solo-service/internal/domain"
)

// fakeScheduler fires timers only when the test advances its clock.
type fakeScheduler struct {
	mu     sync.Mutex
	now    time.Duration
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	s       *fakeScheduler
	at      time.Duration
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) app.Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	t := &fakeTimer{s: s, at: s.now + d, seq: s.seq, f: f}
	s.timers = append(s.timers, t)
	return t
}

// Advance fires every due timer in time order, including timers scheduled
// by callbacks fired during the advance.
func (s *fakeScheduler) Advance(d time.Duration) {
	s.mu.Lock()
	target := s.now + d
	s.mu.Unlock()

	for {
		s.mu.Lock()
		var next *fakeTimer
		for _, t := range s.timers {
			if t.stopped || t.fired || t.at > target {
				continue
			}
			if next == nil || t.at < next.at || (t.at == next.at && t.seq < next.seq) {
				next = t
			}
		}
		if next == nil {
			s.now = target
			s.mu.Unlock()
			return
		}
		next.fired = true
		s.now = next.at
		s.mu.Unlock()
		next.f()
	}
}

func (s *fakeScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, t := range s.timers {
		if !t.stopped && !t.fired {
			n++
		}
	}
	return n
}

// fakeBackend holds each generate and cancel call until the test releases it.
type fakeBackend struct {
	mu       sync.Mutex
	generate map[string]chan generateReply
	cancel   map[string]chan cancelReply
	requests []domain.GenerateRequest
	cancels  []string
	credits  domain.Credits
	issued   chan string
}

type generateReply struct {
	resp domain.GenerateResponse
	err  error
}

type cancelReply struct {
	resp domain.CancelResponse
	err  error
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		generate: make(map[string]chan generateReply),
		cancel:   make(map[string]chan cancelReply),
		issued:   make(chan string, 16),
		credits:  domain.Credits{Used: 1, Limit: 5, Remaining: 4},
	}
}

func (b *fakeBackend) generateChan(id string) chan generateReply {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.generate[id]
	if !ok {
		ch = make(chan generateReply, 1)
		b.generate[id] = ch
	}
	return ch
}

func (b *fakeBackend) cancelChan(id string) chan cancelReply {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch, ok := b.cancel[id]
	if !ok {
		ch = make(chan cancelReply, 1)
		b.cancel[id] = ch
	}
	return ch
}

func (b *fakeBackend) Generate(ctx context.Context, req domain.GenerateRequest) (domain.GenerateResponse, error) {
	b.mu.Lock()
	b.requests = append(b.requests, req)
	b.mu.Unlock()
	ch := b.generateChan(req.SubmissionID)
	b.issued <- req.SubmissionID
	select {
	case reply := <-ch:
		return reply.resp, reply.err
	case <-ctx.Done():
		return domain.GenerateResponse{}, ctx.Err()
	}
}

func (b *fakeBackend) Cancel(ctx context.Context, submissionID string) (domain.CancelResponse, error) {
	b.mu.Lock()
	b.cancels = append(b.cancels, submissionID)
	b.mu.Unlock()
	select {
	case reply := <-b.cancelChan(submissionID):
		return reply.resp, reply.err
	case <-ctx.Done():
		return domain.CancelResponse{}, ctx.Err()
	}
}

func (b *fakeBackend) Credits(_ context.Context) (domain.Credits, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.credits, nil
}

func (b *fakeBackend) resolve(id string, resp domain.GenerateResponse) {
	b.generateChan(id) <- generateReply{resp: resp}
}

func (b *fakeBackend) fail(id string, err error) {
	b.generateChan(id) <- generateReply{err: err}
}

func (b *fakeBackend) ack(id string, resp domain.CancelResponse) {
	b.cancelChan(id) <- cancelReply{resp: resp}
}

func (b *fakeBackend) ackErr(id string) {
	b.cancelChan(id) <- cancelReply{err: errors.New("connection reset")}
}

func sampleTrivia(n int) *domain.Trivia {
	questions := make([]domain.Question, n)
	for i := range questions {
		questions[i] = domain.Question{
			Text: "Question " + string(rune('A'+i)),
			Answers: []domain.Answer{
				{Text: "right", IsCorrect: true},
				{Text: "wrong"},
				{Text: "also wrong"},
			},
		}
	}
	return &domain.Trivia{Questions: questions}
}

func successFor(id string, n int) domain.GenerateResponse {
	return domain.GenerateResponse{SubmissionID: id, OK: true, Trivia: sampleTrivia(n)}
}
