package llm

import (
	"context"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/pkg/errors"
)

type ToolChoice string

const (
	// ToolChoiceDefault leaves the choice to the API defaults.
	ToolChoiceDefault ToolChoice = ""
	ToolChoiceAuto    ToolChoice = "auto"
	ToolChoiceNone    ToolChoice = "none"
)

// FinishReason is the completion API's signal for why generation stopped.
type FinishReason string

const (
	FinishReasonStop      FinishReason = "stop"
	FinishReasonToolCalls FinishReason = "tool_calls"
	FinishReasonLength    FinishReason = "length"
)

type Request struct {
	Model      string                    `json:"model"`
	Messages   conversation.Conversation `json:"messages"`
	Tools      []tools.Schema            `json:"tools,omitempty"`
	ToolChoice ToolChoice                `json:"tool_choice,omitempty"`
	// JSONResponse asks the model for a JSON object.
	JSONResponse bool `json:"json_response,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Response struct {
	ID           string                `json:"id"`
	Model        string                `json:"model"`
	FinishReason FinishReason          `json:"finish_reason"`
	Message      *conversation.Message `json:"message"`
	Usage        Usage                 `json:"usage"`
}

// Completer sends a conversation to a chat completion API.
type Completer interface {
	Complete(ctx context.Context, req *Request) (*Response, error)
}

type CompleterFunc func(ctx context.Context, req *Request) (*Response, error)

func (f CompleterFunc) Complete(ctx context.Context, req *Request) (*Response, error) {
	return f(ctx, req)
}

var (
	ErrCompletionFailed = errors.New("completion failed")
	ErrNoChoices        = errors.New("completion returned no choices")
)

// CompletionError is returned once all attempts of a completion call failed.
type CompletionError struct {
	Attempts int
	Err      error
}

func (e *CompletionError) Error() string {
	return errors.Wrapf(e.Err, "completion failed after %d attempt(s)", e.Attempts).Error()
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

func (e *CompletionError) Is(target error) bool {
	return target == ErrCompletionFailed
}

// CompleteText is a helper for single prompt completions without tools.
func CompleteText(ctx context.Context, c Completer, model string, prompt string, jsonResponse bool) (string, error) {
	resp, err := c.Complete(ctx, &Request{
		Model:        model,
		Messages:     conversation.NewConversation(conversation.NewUserMessage(prompt)),
		JSONResponse: jsonResponse,
	})
	if err != nil {
		return "", err
	}
	if resp.Message == nil {
		return "", ErrNoChoices
	}
	return resp.Message.Content, nil
}
