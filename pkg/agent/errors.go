package agent

import (
	"fmt"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/pkg/errors"
)

var (
	ErrInvalidFinishReason = errors.New("invalid finish reason")
	ErrMaxTurnsReached     = errors.New("maximum number of turns reached")
)

// InvalidFinishReasonError is returned when the model stopped for a reason
// the loop cannot continue from.
type InvalidFinishReasonError struct {
	Reason llm.FinishReason
	Detail string
}

func (e *InvalidFinishReasonError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("invalid finish reason %q: %s", e.Reason, e.Detail)
	}
	return fmt.Sprintf("invalid finish reason %q", e.Reason)
}

func (e *InvalidFinishReasonError) Is(target error) bool {
	return target == ErrInvalidFinishReason
}

// ToolCallFailedError aborts a run configured with WithAbortOnToolError.
type ToolCallFailedError struct {
	Request conversation.ToolInvocationRequest
	Err     error
}

func (e *ToolCallFailedError) Error() string {
	return fmt.Sprintf("tool call %s (%s) failed: %v", e.Request.Name, e.Request.ID, e.Err)
}

func (e *ToolCallFailedError) Unwrap() error {
	return e.Err
}
