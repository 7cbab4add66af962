package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

type Role string

const (
	RoleSystem    Role = "system"
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
	RoleTool      Role = "tool"
)

// ToolInvocationRequest is a single tool call requested by the model.
// ID is unique within the assistant message that carries it.
type ToolInvocationRequest struct {
	ID        string          `json:"id" yaml:"id"`
	Name      string          `json:"name" yaml:"name"`
	Arguments json.RawMessage `json:"arguments" yaml:"arguments"`
}

func (r ToolInvocationRequest) String() string {
	return fmt.Sprintf("%s(%s)", r.Name, string(r.Arguments))
}

// Message is one entry of a Conversation.
//
// Assistant messages may carry ToolCalls. Tool messages always carry the
// ToolCallID of the request they answer and the Name of the tool.
type Message struct {
	Role       Role                    `json:"role" yaml:"role"`
	Content    string                  `json:"content" yaml:"content"`
	ToolCalls  []ToolInvocationRequest `json:"tool_calls,omitempty" yaml:"tool_calls,omitempty"`
	ToolCallID string                  `json:"tool_call_id,omitempty" yaml:"tool_call_id,omitempty"`
	Name       string                  `json:"name,omitempty" yaml:"name,omitempty"`
}

func NewSystemMessage(text string) *Message {
	return &Message{Role: RoleSystem, Content: text}
}

func NewUserMessage(text string) *Message {
	return &Message{Role: RoleUser, Content: text}
}

func NewAssistantMessage(text string, calls ...ToolInvocationRequest) *Message {
	return &Message{Role: RoleAssistant, Content: text, ToolCalls: calls}
}

func NewToolMessage(toolCallID string, name string, content string) *Message {
	return &Message{
		Role:       RoleTool,
		Content:    content,
		ToolCallID: toolCallID,
		Name:       name,
	}
}

// HasToolCalls reports whether m is an assistant message requesting tools.
func (m *Message) HasToolCalls() bool {
	return m != nil && m.Role == RoleAssistant && len(m.ToolCalls) > 0
}

func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	ret := *m
	if m.ToolCalls != nil {
		ret.ToolCalls = make([]ToolInvocationRequest, len(m.ToolCalls))
		for i, c := range m.ToolCalls {
			c.Arguments = append(json.RawMessage(nil), c.Arguments...)
			ret.ToolCalls[i] = c
		}
	}
	return &ret
}

func (m *Message) String() string {
	if m == nil {
		return "<nil>"
	}
	switch {
	case m.HasToolCalls():
		calls := make([]string, 0, len(m.ToolCalls))
		for _, c := range m.ToolCalls {
			calls = append(calls, c.String())
		}
		return fmt.Sprintf("[%s]: using tools: %s", m.Role, strings.Join(calls, ", "))
	case m.Role == RoleTool:
		return fmt.Sprintf("[%s (%s)]: %s", m.Role, m.Name, strings.TrimRight(m.Content, "\n"))
	default:
		return fmt.Sprintf("[%s]: %s", m.Role, strings.TrimRight(m.Content, "\n"))
	}
}
