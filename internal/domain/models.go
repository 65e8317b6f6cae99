package domain

import "time"

// Answer is one option of a question as produced by the generator.
type Answer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// Question models a multiple choice question with exactly one correct answer.
type Question struct {
	Text    string   `json:"text"`
	Answers []Answer `json:"answers"`
}

// Trivia is an ordered set of questions committed atomically by a successful generation.
type Trivia struct {
	Questions []Question `json:"questions"`
}

// RecordedAnswer is what the player gave for a question. A blank, incorrect
// answer means the question timed out.
type RecordedAnswer struct {
	Text      string `json:"text"`
	IsCorrect bool   `json:"isCorrect"`
}

// BlankAnswer is recorded when the per-question countdown expires.
var BlankAnswer = RecordedAnswer{}

// GameDetails is the configuration a player submits before generation.
type GameDetails struct {
	Topic             string `json:"topic"`
	NumberOfQuestions int    `json:"numberOfQuestions"`
	TimeLimit         int    `json:"timeLimit"`
}

// DefaultGameDetails mirrors the values pre-filled in the entry form.
func DefaultGameDetails() GameDetails {
	return GameDetails{NumberOfQuestions: 10, TimeLimit: 10}
}

// SubmissionStatus tracks a generation attempt.
type SubmissionStatus string

const (
	StatusIdle       SubmissionStatus = "idle"
	StatusPending    SubmissionStatus = "pending"
	StatusCancelling SubmissionStatus = "cancelling"
	StatusSucceeded  SubmissionStatus = "succeeded"
	StatusAborted    SubmissionStatus = "aborted"
	StatusFailed     SubmissionStatus = "failed"
)

// Active reports whether the submission still awaits its generate response.
func (s SubmissionStatus) Active() bool {
	return s == StatusPending || s == StatusCancelling
}

// Tier distinguishes anonymous players from registered ones for usage limits.
type Tier string

const (
	TierAnon       Tier = "anon"
	TierRegistered Tier = "registered"
)

// Identity is the authenticated caller as established by the identity gate.
type Identity struct {
	UserID string `json:"userId"`
	Tier   Tier   `json:"tier"`
}

// Credits is the usage view refreshed after every generation attempt.
type Credits struct {
	Used      int       `json:"used"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	CheckedAt time.Time `json:"checkedAt"`
}

// GenerateRequest is sent to the generation endpoint.
type GenerateRequest struct {
	Topic             string `json:"topic"`
	NumberOfQuestions int    `json:"numberOfQuestions"`
	SubmissionID      string `json:"submissionId"`
}

// GenerateResponse is the generation endpoint's reply. OK reports a
// non-error status at the transport level.
type GenerateResponse struct {
	SubmissionID string  `json:"submissionId"`
	OK           bool    `json:"-"`
	Error        string  `json:"error,omitempty"`
	Aborted      bool    `json:"aborted,omitempty"`
	Trivia       *Trivia `json:"-"`
}

// CancelResponse is the cancel endpoint's reply.
type CancelResponse struct {
	SubmissionID string `json:"submissionId"`
	OK           bool   `json:"-"`
}

// Error codes returned by the generation endpoint when a usage limit is hit.
const (
	CodeAnonLimitExceeded       = "ANON_LIMIT_EXCEEDED"
	CodeRegisteredLimitExceeded = "REGISTERED_LIMIT_EXCEEDED"
)

// GeneratedTrivia is a successful generation as recorded in the trivia store.
type GeneratedTrivia struct {
	SubmissionID string    `json:"submissionId"`
	UserID       string    `json:"userId"`
	Topic        string    `json:"topic"`
	Trivia       Trivia    `json:"trivia"`
	CreatedAt    time.Time `json:"createdAt"`
}

// Result is the final tally once every question has an answer.
type Result struct {
	Correct int              `json:"correct"`
	Total   int              `json:"total"`
	Answers []RecordedAnswer `json:"answers"`
}

// Tally scores recorded answers against the question count.
func Tally(answers []RecordedAnswer) Result {
	correct := 0
	for _, a := range answers {
		if a.IsCorrect {
			correct++
		}
	}
	out := make([]RecordedAnswer, len(answers))
	copy(out, answers)
	return Result{Correct: correct, Total: len(answers), Answers: out}
}
