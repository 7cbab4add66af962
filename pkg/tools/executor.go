package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"
)

// Executor turns a ToolInvocationRequest into a tool message.
type Executor struct {
	validators map[string]*gojsonschema.Schema
}

type ExecutorOption func(*Executor) error

// WithArgumentValidation checks arguments against the parameters of the
// given schemas before calling the tool.
func WithArgumentValidation(schemas []Schema) ExecutorOption {
	return func(e *Executor) error {
		for _, s := range schemas {
			if len(s.Function.Parameters) == 0 {
				continue
			}
			v, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(s.Function.Parameters))
			if err != nil {
				return errors.Wrapf(err, "could not compile parameters schema of tool %s", s.Name())
			}
			e.validators[s.Name()] = v
		}
		return nil
	}
}

func NewExecutor(options ...ExecutorOption) (*Executor, error) {
	e := &Executor{
		validators: map[string]*gojsonschema.Schema{},
	}
	for _, o := range options {
		if err := o(e); err != nil {
			return nil, err
		}
	}
	return e, nil
}

var defaultExecutor = &Executor{validators: map[string]*gojsonschema.Schema{}}

// Execute runs req against reg with the default executor.
func Execute(ctx context.Context, reg *Registry, req conversation.ToolInvocationRequest) (*conversation.Message, error) {
	return defaultExecutor.Execute(ctx, reg, req)
}

// Execute decodes the arguments of req, looks up the tool, calls it and wraps
// the rendered result in a tool message. Errors of the tool itself are
// returned unchanged, the caller turns them into an error message with
// ErrorMessage.
func (e *Executor) Execute(
	ctx context.Context,
	reg *Registry,
	req conversation.ToolInvocationRequest,
) (*conversation.Message, error) {
	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage("{}")
	}
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(args, &obj); err != nil {
		return nil, &ArgumentsError{Tool: req.Name, Err: err}
	}

	tool, err := reg.Get(req.Name)
	if err != nil {
		return nil, err
	}

	if v, ok := e.validators[req.Name]; ok {
		res, err := v.Validate(gojsonschema.NewBytesLoader(args))
		if err != nil {
			return nil, &ArgumentsError{Tool: req.Name, Err: err}
		}
		if !res.Valid() {
			msgs := []string{}
			for _, re := range res.Errors() {
				msgs = append(msgs, re.String())
			}
			return nil, &ArgumentsError{Tool: req.Name, Err: errors.New(strings.Join(msgs, "; "))}
		}
	}

	log.Debug().Str("tool", req.Name).Str("id", req.ID).RawJSON("args", args).Msg("calling tool")
	result, err := call(ctx, tool, args)
	if err != nil {
		return nil, err
	}

	content, err := RenderResult(result)
	if err != nil {
		return nil, errors.Wrapf(err, "could not render result of tool %s", req.Name)
	}

	return conversation.NewToolMessage(req.ID, req.Name, content), nil
}

func call(ctx context.Context, tool Tool, args json.RawMessage) (ret interface{}, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("tool %s panicked: %v", tool.Name(), r)
		}
	}()
	return tool.Call(ctx, args)
}

// ErrorMessage is the tool message reported to the model when executing req
// failed.
func ErrorMessage(req conversation.ToolInvocationRequest, err error) *conversation.Message {
	return conversation.NewToolMessage(req.ID, req.Name, fmt.Sprintf("Error: %s", err))
}

// RenderResult converts a tool result into message content. Strings and
// fmt.Stringer are used as is, everything else is JSON encoded.
func RenderResult(v interface{}) (string, error) {
	switch v_ := v.(type) {
	case nil:
		return "", nil
	case string:
		return v_, nil
	case fmt.Stringer:
		return v_.String(), nil
	case json.RawMessage:
		return string(v_), nil
	case []byte:
		return string(v_), nil
	}

	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
