package events

import (
	"time"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type EventName string

const (
	EventAgentStarted          EventName = "agent_started"
	EventAgentResponse         EventName = "agent_response"
	EventToolCallResponse      EventName = "tool_call_response"
	EventToolCallErrorResponse EventName = "tool_call_error_response"
	EventAgentCallError        EventName = "agent_call_error"
	EventAgentFinished         EventName = "agent_finished"
)

var AllEventNames = []EventName{
	EventAgentStarted,
	EventAgentResponse,
	EventToolCallResponse,
	EventToolCallErrorResponse,
	EventAgentCallError,
	EventAgentFinished,
}

type Event interface {
	Name() EventName
	Meta() Metadata
}

// Metadata identifies the run and turn an event was emitted in.
type Metadata struct {
	RunID uuid.UUID `json:"run_id" yaml:"run_id"`
	Turn  int       `json:"turn" yaml:"turn"`
	Time  time.Time `json:"time" yaml:"time"`
}

func NewMetadata(runID uuid.UUID, turn int) Metadata {
	return Metadata{RunID: runID, Turn: turn, Time: time.Now()}
}

func (m Metadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("run_id", m.RunID.String())
	e.Int("turn", m.Turn)
}

// AgentStarted carries the initial conversation, before the first completion call.
type AgentStarted struct {
	Metadata     Metadata                  `json:"meta"`
	Conversation conversation.Conversation `json:"conversation"`
}

func (e *AgentStarted) Name() EventName { return EventAgentStarted }
func (e *AgentStarted) Meta() Metadata  { return e.Metadata }

// AgentResponse is published after an assistant message was appended.
type AgentResponse struct {
	Metadata     Metadata                  `json:"meta"`
	Conversation conversation.Conversation `json:"conversation"`
	Tools        *tools.Registry           `json:"-"`
	Schemas      []tools.Schema            `json:"schemas,omitempty"`
	Response     *llm.Response             `json:"response"`
}

func (e *AgentResponse) Name() EventName { return EventAgentResponse }
func (e *AgentResponse) Meta() Metadata  { return e.Metadata }

type ToolCallResponse struct {
	Metadata     Metadata                           `json:"meta"`
	Conversation conversation.Conversation          `json:"conversation"`
	Request      conversation.ToolInvocationRequest `json:"request"`
	Result       *conversation.Message              `json:"result"`
}

func (e *ToolCallResponse) Name() EventName { return EventToolCallResponse }
func (e *ToolCallResponse) Meta() Metadata  { return e.Metadata }

// ToolCallError is published when a tool could not be executed. The error
// tool message is already part of Conversation.
type ToolCallError struct {
	Metadata     Metadata                           `json:"meta"`
	Conversation conversation.Conversation          `json:"conversation"`
	Request      conversation.ToolInvocationRequest `json:"request"`
	Error_       error                              `json:"-"`
	ErrorString  string                             `json:"error"`
}

func (e *ToolCallError) Name() EventName { return EventToolCallErrorResponse }
func (e *ToolCallError) Meta() Metadata  { return e.Metadata }

func NewToolCallError(meta Metadata, conv conversation.Conversation, req conversation.ToolInvocationRequest, err error) *ToolCallError {
	return &ToolCallError{
		Metadata:     meta,
		Conversation: conv,
		Request:      req,
		Error_:       err,
		ErrorString:  err.Error(),
	}
}

// AgentCallError is published when a completion call failed for good.
type AgentCallError struct {
	Metadata     Metadata                  `json:"meta"`
	Conversation conversation.Conversation `json:"conversation"`
	Error_       error                     `json:"-"`
	ErrorString  string                    `json:"error"`
}

func (e *AgentCallError) Name() EventName { return EventAgentCallError }
func (e *AgentCallError) Meta() Metadata  { return e.Metadata }

func NewAgentCallError(meta Metadata, conv conversation.Conversation, err error) *AgentCallError {
	return &AgentCallError{
		Metadata:     meta,
		Conversation: conv,
		Error_:       err,
		ErrorString:  err.Error(),
	}
}

type AgentFinished struct {
	Metadata     Metadata                  `json:"meta"`
	Conversation conversation.Conversation `json:"conversation"`
}

func (e *AgentFinished) Name() EventName { return EventAgentFinished }
func (e *AgentFinished) Meta() Metadata  { return e.Metadata }

// LastMessage returns the most recent message of the event's conversation,
// or nil for events that carry none.
func LastMessage(e Event) *conversation.Message {
	if c := ConversationOf(e); c != nil {
		return c.Last()
	}
	return nil
}

func ConversationOf(e Event) conversation.Conversation {
	switch e_ := e.(type) {
	case *AgentStarted:
		return e_.Conversation
	case *AgentResponse:
		return e_.Conversation
	case *ToolCallResponse:
		return e_.Conversation
	case *ToolCallError:
		return e_.Conversation
	case *AgentCallError:
		return e_.Conversation
	case *AgentFinished:
		return e_.Conversation
	}
	return nil
}
