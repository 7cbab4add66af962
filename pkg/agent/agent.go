// Package agent implements the turn loop: the conversation is sent to the
// model, requested tools are executed and their results sent back, until the
// model stops.
//
// Events are published on a bus for observers. They never drive the loop,
// but an observer returning an error aborts the run.
package agent

import (
	"context"
	"fmt"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/events"
	"github.com/go-go-golems/sleuth/pkg/helpers"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/memory"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const (
	DefaultMaxTurns = 50
	PlanSuffix      = "Let's think step by step, make a plan first"
)

type Agent struct {
	completer llm.Completer
	registry  *tools.Registry
	schemas   []tools.Schema

	bus       *events.Bus
	compactor memory.Compactor
	executor  *tools.Executor

	model             string
	maxTurns          int
	firstToolCallOnly bool
	abortOnToolError  bool
}

type Option func(*Agent)

func WithBus(bus *events.Bus) Option {
	return func(a *Agent) { a.bus = bus }
}

func WithCompactor(c memory.Compactor) Option {
	return func(a *Agent) { a.compactor = c }
}

func WithExecutor(e *tools.Executor) Option {
	return func(a *Agent) { a.executor = e }
}

// WithModel sets the model of every completion call. Empty leaves the choice
// to the completer.
func WithModel(model string) Option {
	return func(a *Agent) { a.model = model }
}

func WithMaxTurns(n int) Option {
	return func(a *Agent) { a.maxTurns = n }
}

// WithFirstToolCallOnly executes only the first tool call of a response. The
// other requests are dropped from the assistant message.
func WithFirstToolCallOnly() Option {
	return func(a *Agent) { a.firstToolCallOnly = true }
}

// WithAbortOnToolError ends the run with a ToolCallFailedError after the
// first failed tool call, once the error has been published.
func WithAbortOnToolError() Option {
	return func(a *Agent) { a.abortOnToolError = true }
}

// New returns an agent offering schemas to the model. Every schema must
// name a tool of registry.
func New(completer llm.Completer, registry *tools.Registry, schemas []tools.Schema, opts ...Option) (*Agent, error) {
	if completer == nil {
		return nil, errors.New("agent needs a completer")
	}
	if registry == nil {
		return nil, errors.New("agent needs a tool registry")
	}
	for _, s := range schemas {
		if !registry.Has(s.Name()) {
			return nil, errors.Errorf("schema %s has no registered tool", s.Name())
		}
	}

	a := &Agent{
		completer: completer,
		registry:  registry,
		schemas:   schemas,
		compactor: memory.Noop{},
		maxTurns:  DefaultMaxTurns,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(a)
		}
	}

	if a.bus == nil {
		a.bus = events.NewBus()
	}
	if a.executor == nil {
		e, err := tools.NewExecutor()
		if err != nil {
			return nil, err
		}
		a.executor = e
	}
	if a.maxTurns <= 0 {
		a.maxTurns = DefaultMaxTurns
	}
	return a, nil
}

func (a *Agent) Bus() *events.Bus {
	return a.bus
}

type RunInput struct {
	SystemPrompt string
	UserPrompt   string
	// Plan asks the model for a plan, without tools, before the first turn.
	Plan bool
}

type Result struct {
	RunID        uuid.UUID
	Conversation conversation.Conversation
	State        State
	Turns        int
}

// FinalAnswer returns the content of the last assistant message.
func (r *Result) FinalAnswer() string {
	if r == nil {
		return ""
	}
	for i := len(r.Conversation) - 1; i >= 0; i-- {
		if m := r.Conversation[i]; m.Role == conversation.RoleAssistant {
			return m.Content
		}
	}
	return ""
}

// run is the mutable state of a single Run call.
type run struct {
	a      *Agent
	result *Result
}

func (r *run) meta() events.Metadata {
	return events.NewMetadata(r.result.RunID, r.result.Turns)
}

func (r *run) conv() conversation.Conversation {
	return r.result.Conversation
}

// snapshot is the conversation handed to observers.
func (r *run) snapshot() conversation.Conversation {
	return r.result.Conversation.Clone()
}

func (r *run) publish(ctx context.Context, e events.Event) error {
	if err := r.a.bus.Publish(ctx, e); err != nil {
		return errors.Wrapf(err, "handler of %s failed", e.Name())
	}
	return nil
}

func (r *run) fail(err error) (*Result, error) {
	r.result.State = StateFailed
	log.Debug().Err(err).Str("run_id", r.result.RunID.String()).Int("turn", r.result.Turns).Msg("agent: run failed")
	return r.result, err
}

// completionFailed publishes err as AgentCallError and fails the run.
func (r *run) completionFailed(ctx context.Context, err error) (*Result, error) {
	if perr := r.publish(ctx, events.NewAgentCallError(r.meta(), r.snapshot(), err)); perr != nil {
		return r.fail(perr)
	}
	return r.fail(err)
}

// Run drives the state machine until the model stops, a step fails or
// MaxTurns completion calls were made. The returned Result is never nil.
func (a *Agent) Run(ctx context.Context, in RunInput) (*Result, error) {
	r := &run{
		a: a,
		result: &Result{
			RunID: uuid.New(),
			State: StateAwaitingModel,
		},
	}
	ctx = helpers.ContextWithCorrelationID(ctx, r.result.RunID.String())

	instructions := fmt.Sprintf("%s %s", in.SystemPrompt, in.UserPrompt)

	if in.Plan {
		r.result.State = StatePlanning
		r.result.Conversation = conversation.NewConversation(
			conversation.NewUserMessage(planPrompt(instructions)),
		)
		plan, err := a.plan(ctx, r.conv())
		if err != nil {
			return r.completionFailed(ctx, err)
		}
		r.result.Conversation = conversation.NewConversation(
			conversation.NewUserMessage(instructions),
			conversation.NewAssistantMessage(plan),
		)
		r.result.State = StateAwaitingModel
	} else {
		r.result.Conversation = conversation.NewConversation(conversation.NewUserMessage(instructions))
	}

	if err := r.publish(ctx, &events.AgentStarted{Metadata: r.meta(), Conversation: r.snapshot()}); err != nil {
		return r.fail(err)
	}

	for r.result.Turns < a.maxTurns {
		done, err := r.turn(ctx)
		if err != nil {
			return r.result, err
		}
		if done {
			return r.result, nil
		}
	}

	log.Warn().Int("max_turns", a.maxTurns).Str("run_id", r.result.RunID.String()).Msg("agent: maximum turns reached")
	return r.fail(errors.Wrapf(ErrMaxTurnsReached, "after %d turns", a.maxTurns))
}

func planPrompt(instructions string) string {
	return instructions + " " + PlanSuffix
}

// plan asks for a plan without letting the model call tools. The planning
// conversation is replaced by the seeded one once the plan is known.
func (a *Agent) plan(ctx context.Context, conv conversation.Conversation) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	log.Debug().Msg("agent: asking for a plan")
	resp, err := a.completer.Complete(ctx, &llm.Request{
		Model:      a.model,
		Messages:   conv,
		Tools:      a.schemas,
		ToolChoice: llm.ToolChoiceNone,
	})
	if err != nil {
		return "", err
	}
	if resp.Message == nil {
		return "", llm.ErrNoChoices
	}
	return resp.Message.Content, nil
}

// turn is one AwaitingModel → ModelResponded cycle, followed by tool
// execution when requested. It returns true once the run finished.
func (r *run) turn(ctx context.Context) (bool, error) {
	a := r.a
	r.result.State = StateAwaitingModel
	r.result.Turns++

	if err := ctx.Err(); err != nil {
		_, err = r.fail(err)
		return false, err
	}

	log.Debug().Int("turn", r.result.Turns).Int("messages", len(r.conv())).Msg("agent: completion call")
	resp, err := a.completer.Complete(ctx, &llm.Request{
		Model:      a.model,
		Messages:   r.conv(),
		Tools:      a.schemas,
		ToolChoice: llm.ToolChoiceAuto,
	})
	if err == nil && resp.Message == nil {
		err = llm.ErrNoChoices
	}
	if err != nil {
		_, err = r.completionFailed(ctx, err)
		return false, err
	}

	msg := resp.Message
	if a.firstToolCallOnly && len(msg.ToolCalls) > 1 {
		log.Warn().Int("requested", len(msg.ToolCalls)).Msg("agent: only executing the first tool call")
		msg = msg.Clone()
		msg.ToolCalls = msg.ToolCalls[:1]
	}

	r.result.State = StateModelResponded
	r.result.Conversation = append(r.result.Conversation, msg)
	err = r.publish(ctx, &events.AgentResponse{
		Metadata:     r.meta(),
		Conversation: r.snapshot(),
		Tools:        a.registry,
		Schemas:      a.schemas,
		Response:     resp,
	})
	if err != nil {
		_, err = r.fail(err)
		return false, err
	}

	switch resp.FinishReason {
	case llm.FinishReasonStop:
		r.result.State = StateFinished
		if err := r.publish(ctx, &events.AgentFinished{Metadata: r.meta(), Conversation: r.snapshot()}); err != nil {
			_, err = r.fail(err)
			return false, err
		}
		return true, nil

	case llm.FinishReasonToolCalls:
		if len(msg.ToolCalls) == 0 {
			_, err = r.fail(&InvalidFinishReasonError{Reason: resp.FinishReason, Detail: "no tool calls requested"})
			return false, err
		}
		if err := r.executeTools(ctx, msg.ToolCalls); err != nil {
			_, err = r.fail(err)
			return false, err
		}

	default:
		_, err = r.fail(&InvalidFinishReasonError{Reason: resp.FinishReason})
		return false, err
	}

	compacted, err := a.compactor.Compact(ctx, r.conv())
	if err != nil {
		_, err = r.completionFailed(ctx, err)
		return false, err
	}
	r.result.Conversation = compacted
	return false, nil
}

func (r *run) executeTools(ctx context.Context, calls []conversation.ToolInvocationRequest) error {
	r.result.State = StateExecutingTools

	for _, req := range calls {
		msg, err := r.a.executor.Execute(ctx, r.a.registry, req)
		if err != nil {
			log.Warn().Err(err).Str("tool", req.Name).Str("id", req.ID).Msg("agent: tool call failed")
			r.result.Conversation = append(r.result.Conversation, tools.ErrorMessage(req, err))
			if perr := r.publish(ctx, events.NewToolCallError(r.meta(), r.snapshot(), req, err)); perr != nil {
				return perr
			}
			if r.a.abortOnToolError {
				return &ToolCallFailedError{Request: req, Err: err}
			}
			continue
		}

		r.result.Conversation = append(r.result.Conversation, msg)
		err = r.publish(ctx, &events.ToolCallResponse{
			Metadata:     r.meta(),
			Conversation: r.snapshot(),
			Request:      req,
			Result:       msg,
		})
		if err != nil {
			return err
		}
	}
	return nil
}
