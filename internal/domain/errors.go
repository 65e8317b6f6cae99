package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNoSubmission is returned when cancel is requested without an active submission.
	ErrNoSubmission = errors.New("no active submission")
	// ErrGenerationFailed covers network, server and explicit remote errors.
	ErrGenerationFailed = errors.New("trivia generation failed")
	// ErrMalformedResponse indicates the remote contract was violated.
	ErrMalformedResponse = errors.New("malformed generation response")
	// ErrGameNotFound is returned when a player has no open game.
	ErrGameNotFound = errors.New("game not found")
	// ErrNoCurrentQuestion is returned when an answer arrives outside a question.
	ErrNoCurrentQuestion = errors.New("no question awaiting an answer")
	// ErrAnswerNotFound indicates a submitted answer index is invalid.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrNewGameUnavailable is returned while the preliminary countdown runs.
	ErrNewGameUnavailable = errors.New("new game unavailable during countdown")
	// ErrUnauthenticated is returned when the identity gate finds no user.
	ErrUnauthenticated = errors.New("authenticated user required")
)

// ValidationError lists the problems found in player supplied input.
type ValidationError struct {
	Issues []string
}

func (e *ValidationError) Error() string {
	return "invalid form submission: " + strings.Join(e.Issues, "; ")
}

// LimitExceededError reports an exhausted usage tier.
type LimitExceededError struct {
	Tier Tier
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("%s usage limit exceeded", e.Tier)
}

// Code returns the wire error code for the tier.
func (e *LimitExceededError) Code() string {
	if e.Tier == TierRegistered {
		return CodeRegisteredLimitExceeded
	}
	return CodeAnonLimitExceeded
}

// CancellationError wraps a failed cancel call.
type CancellationError struct {
	Err error
}

func (e *CancellationError) Error() string {
	return "cancel generation: " + e.Err.Error()
}

func (e *CancellationError) Unwrap() error { return e.Err }

// Messages shown to the player.
const (
	MsgValidation         = "Invalid form submission"
	MsgAnonLimit          = "You’ve used all 5 free trivia plays for anon accounts. Sign up for free to get 5 more."
	MsgRegisteredLimit    = "You’ve used all 10 free trivia credits for registered accounts. Please buy credits to continue generating and playing trivia."
	MsgGenerationFailed   = "Error generating trivia. Please refresh the website and try again."
	MsgMalformedResponse  = "Generated trivia has incorrect format."
	MsgMissingSubmission  = "Generation failed: No submission id. Please refresh page to reset the website."
	MsgNoSubmission       = "Cancellation failed: No submission id."
	MsgCancelMissingID    = "Cancellation failed: No submission id. Please refresh page to reset the website."
	MsgCancellationFailed = "There was an error cancelling your trivia generation."
)

// UserMessage resolves any error to the single message the player sees.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var validation *ValidationError
	if errors.As(err, &validation) {
		return MsgValidation
	}
	var limit *LimitExceededError
	if errors.As(err, &limit) {
		if limit.Tier == TierRegistered {
			return MsgRegisteredLimit
		}
		return MsgAnonLimit
	}
	var cancel *CancellationError
	switch {
	case errors.As(err, &cancel):
		return MsgCancellationFailed
	case errors.Is(err, ErrNoSubmission):
		return MsgNoSubmission
	case errors.Is(err, ErrMalformedResponse):
		return MsgMalformedResponse
	default:
		return MsgGenerationFailed
	}
}
