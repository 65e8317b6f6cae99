package domain

import (
	"fmt"
	"strings"
)

// MaxNumberOfQuestions caps a single generation.
const MaxNumberOfQuestions = 50

func checkQuestionCount(n int, issues []string) []string {
	switch {
	case n <= 0:
		return append(issues, "Number of Questions must be greater than 0")
	case n > MaxNumberOfQuestions:
		return append(issues, fmt.Sprintf("Number of Questions must be at most %d", MaxNumberOfQuestions))
	}
	return issues
}

// Validate checks the details a player submits before any request is issued.
func (d GameDetails) Validate() error {
	var issues []string
	if strings.TrimSpace(d.Topic) == "" {
		issues = append(issues, "Topic is required")
	}
	issues = checkQuestionCount(d.NumberOfQuestions, issues)
	if d.TimeLimit <= 0 {
		issues = append(issues, "Time Limit must be greater than 0")
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Validate checks a request received by the generation endpoint.
func (r GenerateRequest) Validate() error {
	var issues []string
	if strings.TrimSpace(r.Topic) == "" {
		issues = append(issues, "Topic is required")
	}
	issues = checkQuestionCount(r.NumberOfQuestions, issues)
	if r.SubmissionID == "" {
		issues = append(issues, "Submission id is required")
	}
	if len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

// Validate checks a generated trivia document: at least one question, each
// with text and 2 to 4 answers of which exactly one is correct.
func (t Trivia) Validate() error {
	if len(t.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrMalformedResponse)
	}
	for i, q := range t.Questions {
		if strings.TrimSpace(q.Text) == "" {
			return fmt.Errorf("%w: question %d has no text", ErrMalformedResponse, i)
		}
		if len(q.Answers) < 2 || len(q.Answers) > 4 {
			return fmt.Errorf("%w: question %d has %d answers", ErrMalformedResponse, i, len(q.Answers))
		}
		correct := 0
		for _, a := range q.Answers {
			if strings.TrimSpace(a.Text) == "" {
				return fmt.Errorf("%w: question %d has a blank answer", ErrMalformedResponse, i)
			}
			if a.IsCorrect {
				correct++
			}
		}
		if correct != 1 {
			return fmt.Errorf("%w: question %d has %d correct answers", ErrMalformedResponse, i, correct)
		}
	}
	return nil
}
