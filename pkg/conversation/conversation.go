package conversation

import (
	"encoding/json"
	"fmt"
)

// Conversation is the ordered message history of a single agent run.
// It is owned by one run and never shared between concurrent runs.
type Conversation []*Message

func NewConversation(msgs ...*Message) Conversation {
	return append(Conversation{}, msgs...)
}

// Clone returns a deep copy of the conversation.
func (c Conversation) Clone() Conversation {
	if c == nil {
		return nil
	}
	ret := make(Conversation, len(c))
	for i, m := range c {
		ret[i] = m.Clone()
	}
	return ret
}

// Last returns the most recent message, or nil for an empty conversation.
func (c Conversation) Last() *Message {
	if len(c) == 0 {
		return nil
	}
	return c[len(c)-1]
}

// ToJSON serializes the conversation, used for token estimation and summaries.
func (c Conversation) ToJSON() (string, error) {
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

type OrphanToolMessageError struct {
	Index      int
	ToolCallID string
}

func (e *OrphanToolMessageError) Error() string {
	return fmt.Sprintf("tool message %d answers unknown tool call %q", e.Index, e.ToolCallID)
}

// Validate checks that every tool message answers a tool call requested by
// an earlier assistant message.
func (c Conversation) Validate() error {
	requested := map[string]bool{}
	for i, m := range c {
		if m == nil {
			return fmt.Errorf("message %d is nil", i)
		}
		switch m.Role {
		case RoleAssistant:
			for _, call := range m.ToolCalls {
				requested[call.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" || !requested[m.ToolCallID] {
				return &OrphanToolMessageError{Index: i, ToolCallID: m.ToolCallID}
			}
		case RoleSystem, RoleUser:
		default:
			return fmt.Errorf("message %d has unknown role %q", i, m.Role)
		}
	}
	return nil
}
