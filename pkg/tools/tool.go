package tools

import (
	"context"
	"encoding/json"
	"fmt"
)

// Tool is a callable the model can invoke. Arguments are the JSON object
// sent by the model.
type Tool interface {
	Name() string
	Call(ctx context.Context, args json.RawMessage) (interface{}, error)
}

type funcTool[In any, Out any] struct {
	name string
	fn   func(context.Context, In) (Out, error)
}

// NewFunc wraps a typed function as a Tool. The JSON arguments are decoded
// into In before fn is called.
func NewFunc[In any, Out any](name string, fn func(context.Context, In) (Out, error)) Tool {
	return &funcTool[In, Out]{name: name, fn: fn}
}

func (f *funcTool[In, Out]) Name() string {
	return f.name
}

func (f *funcTool[In, Out]) Call(ctx context.Context, args json.RawMessage) (interface{}, error) {
	var in In
	if len(args) > 0 {
		if err := json.Unmarshal(args, &in); err != nil {
			return nil, &ArgumentsError{Tool: f.name, Err: err}
		}
	}
	return f.fn(ctx, in)
}

type ArgumentsError struct {
	Tool string
	Err  error
}

func (e *ArgumentsError) Error() string {
	return fmt.Sprintf("invalid arguments for tool %s: %v", e.Tool, e.Err)
}

func (e *ArgumentsError) Unwrap() error {
	return e.Err
}

type NotFoundError struct {
	Name string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("tool not found: %s", e.Name)
}
