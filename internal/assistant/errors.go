package assistant

import (
	"errors"
	"fmt"

	"github.com/scrypster/bizdna/internal/llm"
)

var (
	// ErrConversationNotFound is returned when the conversation does not
	// exist or belongs to another operator.
	ErrConversationNotFound = errors.New("conversation not found")

	// ErrEmptyMessage is returned for a blank user message.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNoProvider is returned by SendWithFallback with no configs.
	ErrNoProvider = errors.New("no provider configured")
)

// TurnError reports a failed turn. State is the last state reached before
// the failure; Cause is usually an *llm.ProviderError or
// *llm.ConfigurationError.
type TurnError struct {
	State          State
	ConversationID string
	Provider       string
	Cause          error
}

func (e *TurnError) Error() string {
	return fmt.Sprintf("turn failed in %s (conversation %s): %v", e.State, e.ConversationID, e.Cause)
}

func (e *TurnError) Unwrap() error { return e.Cause }

// Retryable reports whether retrying the turn, possibly with another
// provider, can succeed. Configuration errors never can.
func (e *TurnError) Retryable() bool {
	return !llm.IsConfigurationError(e.Cause)
}

// FailureLabel is the user-facing text shown in place of assistant content
// when a turn fails.
func (e *TurnError) FailureLabel() string {
	switch {
	case llm.IsConfigurationError(e.Cause):
		return "The assistant is not configured correctly. Please check the provider settings."
	case llm.IsProviderError(e.Cause):
		return "The assistant could not answer right now. Your message was saved; please try again."
	default:
		return "Something went wrong while preparing the answer. Please try again."
	}
}
