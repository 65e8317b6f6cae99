package memory

import (
	"context"
	"fmt"
	"time"

	"trivia-solo-service/internal/domain"
)

// StaticTriviaGenerator serves canned questions per topic and fills any
// shortfall with generic arithmetic questions. Used when no LLM is configured.
type StaticTriviaGenerator struct {
	topics map[string][]domain.Question
	delay  time.Duration
}

func NewStaticTriviaGenerator(topics map[string][]domain.Question) *StaticTriviaGenerator {
	return &StaticTriviaGenerator{topics: topics}
}

// WithDelay simulates generation latency so cancellation can be exercised.
func (g *StaticTriviaGenerator) WithDelay(d time.Duration) *StaticTriviaGenerator {
	g.delay = d
	return g
}

func (g *StaticTriviaGenerator) GenerateTrivia(ctx context.Context, topic string, count int) (domain.Trivia, error) {
	if count <= 0 || count > domain.MaxNumberOfQuestions {
		return domain.Trivia{}, fmt.Errorf("static generator: cannot serve %d questions", count)
	}
	if g.delay > 0 {
		timer := time.NewTimer(g.delay)
		defer timer.Stop()
		select {
		case <-timer.C:
		case <-ctx.Done():
			return domain.Trivia{}, ctx.Err()
		}
	}

	questions := make([]domain.Question, 0, count)
	questions = append(questions, g.topics[topic]...)
	if len(questions) > count {
		questions = questions[:count]
	}
	for i := len(questions); i < count; i++ {
		questions = append(questions, arithmeticQuestion(topic, i))
	}
	return domain.Trivia{Questions: questions}, nil
}

func arithmeticQuestion(topic string, i int) domain.Question {
	a, b := i+2, i+3
	sum := a + b
	return domain.Question{
		Text: fmt.Sprintf("[%s] What is %d + %d?", topic, a, b),
		Answers: []domain.Answer{
			{Text: fmt.Sprint(sum - 1)},
			{Text: fmt.Sprint(sum), IsCorrect: true},
			{Text: fmt.Sprint(sum + 1)},
			{Text: fmt.Sprint(sum + 2)},
		},
	}
}
