package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/events"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/memory"
	"github.com/go-go-golems/sleuth/pkg/tools"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type step struct {
	resp *llm.Response
	err  error
}

// scripted answers completion calls from a fixed list and records requests.
type scripted struct {
	steps    []step
	requests []*llm.Request
}

func (s *scripted) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	s.requests = append(s.requests, req)
	if len(s.requests) > len(s.steps) {
		return nil, errors.New("unexpected completion call")
	}
	st := s.steps[len(s.requests)-1]
	return st.resp, st.err
}

func stop(text string) step {
	return step{resp: &llm.Response{
		FinishReason: llm.FinishReasonStop,
		Message:      conversation.NewAssistantMessage(text),
	}}
}

func toolCalls(calls ...conversation.ToolInvocationRequest) step {
	return step{resp: &llm.Response{
		FinishReason: llm.FinishReasonToolCalls,
		Message:      conversation.NewAssistantMessage("", calls...),
	}}
}

func searchCall(id string) conversation.ToolInvocationRequest {
	return conversation.ToolInvocationRequest{ID: id, Name: "search", Arguments: json.RawMessage(`{"query":"acme"}`)}
}

type searchInput struct {
	Query string `json:"query"`
}

type searchOutput struct {
	RelatedURLsToScrapeFurther []string      `json:"relatedUrlsToScrapeFurther"`
	InfoFound                  []interface{} `json:"infoFound"`
}

func newRegistry(t *testing.T) (*tools.Registry, []tools.Schema) {
	search := tools.NewFunc("search", func(ctx context.Context, in searchInput) (*searchOutput, error) {
		return &searchOutput{RelatedURLsToScrapeFurther: []string{"http://x"}, InfoFound: []interface{}{}}, nil
	})
	broken := tools.NewFunc("broken", func(ctx context.Context, in struct{}) (string, error) {
		return "", errors.New("network unreachable")
	})
	reg, err := tools.NewRegistry(search, broken)
	require.NoError(t, err)

	schemas := []tools.Schema{}
	for _, name := range []string{"search", "broken"} {
		s, err := tools.SchemaFor(name, name, struct{}{})
		require.NoError(t, err)
		schemas = append(schemas, s)
	}
	return reg, schemas
}

// recorder collects the names of every published event.
type recorder struct {
	names  []events.EventName
	events []events.Event
}

func newRecorder(bus *events.Bus) *recorder {
	r := &recorder{}
	bus.SubscribeAll(func(ctx context.Context, e events.Event) error {
		r.names = append(r.names, e.Name())
		r.events = append(r.events, e)
		return nil
	})
	return r
}

func (r *recorder) count(name events.EventName) int {
	n := 0
	for _, n_ := range r.names {
		if n_ == name {
			n++
		}
	}
	return n
}

func newAgent(t *testing.T, c llm.Completer, opts ...Option) (*Agent, *recorder) {
	reg, schemas := newRegistry(t)
	bus := events.NewBus()
	rec := newRecorder(bus)
	a, err := New(c, reg, schemas, append([]Option{WithBus(bus)}, opts...)...)
	require.NoError(t, err)
	return a, rec
}

func TestStopFinishesOnce(t *testing.T) {
	c := &scripted{steps: []step{stop("Acme has 250 employees")}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{SystemPrompt: "You are a researcher.", UserPrompt: "Research Acme."})
	require.NoError(t, err)

	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, 1, res.Turns)
	assert.Equal(t, "Acme has 250 employees", res.FinalAnswer())
	assert.Equal(t, []events.EventName{
		events.EventAgentStarted,
		events.EventAgentResponse,
		events.EventAgentFinished,
	}, rec.names)
	assert.Equal(t, 0, rec.count(events.EventToolCallResponse))
	assert.Equal(t, 0, rec.count(events.EventToolCallErrorResponse))

	require.Len(t, c.requests, 1)
	req := c.requests[0]
	assert.Equal(t, llm.ToolChoiceAuto, req.ToolChoice)
	assert.Len(t, req.Tools, 2)
	require.Len(t, req.Messages, 1)
	assert.Equal(t, conversation.RoleUser, req.Messages[0].Role)
	assert.Equal(t, "You are a researcher. Research Acme.", req.Messages[0].Content)
}

func TestAllToolCallsAreExecuted(t *testing.T) {
	c := &scripted{steps: []step{
		toolCalls(searchCall("call_1"), searchCall("call_2")),
		stop("done"),
	}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Turns)
	assert.Equal(t, 2, rec.count(events.EventToolCallResponse))

	require.Len(t, c.requests, 2)
	resent := c.requests[1].Messages
	require.Len(t, resent, 4)
	assert.Len(t, resent[1].ToolCalls, 2)
	for i, id := range []string{"call_1", "call_2"} {
		m := resent[2+i]
		assert.Equal(t, conversation.RoleTool, m.Role)
		assert.Equal(t, id, m.ToolCallID)
		assert.Equal(t, "search", m.Name)
		assert.JSONEq(t, `{"relatedUrlsToScrapeFurther": ["http://x"], "infoFound": []}`, m.Content)
	}
	assert.NoError(t, resent.Validate())
}

func TestFirstToolCallOnly(t *testing.T) {
	c := &scripted{steps: []step{
		toolCalls(searchCall("call_1"), searchCall("call_2")),
		stop("done"),
	}}
	a, rec := newAgent(t, c, WithFirstToolCallOnly())

	_, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, rec.count(events.EventToolCallResponse))

	resent := c.requests[1].Messages
	require.Len(t, resent, 3)
	require.Len(t, resent[1].ToolCalls, 1)
	assert.Equal(t, "call_1", resent[1].ToolCalls[0].ID)
	assert.Equal(t, "call_1", resent[2].ToolCallID)
}

func TestInvalidFinishReasonFails(t *testing.T) {
	c := &scripted{steps: []step{{resp: &llm.Response{
		FinishReason: llm.FinishReasonLength,
		Message:      conversation.NewAssistantMessage("truncat"),
	}}}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidFinishReason))
	var ife *InvalidFinishReasonError
	require.True(t, errors.As(err, &ife))
	assert.Equal(t, llm.FinishReasonLength, ife.Reason)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, rec.count(events.EventAgentFinished))
	// the response is still echoed before failing
	assert.Equal(t, 1, rec.count(events.EventAgentResponse))
}

func TestToolCallsWithoutRequestsFail(t *testing.T) {
	c := &scripted{steps: []step{toolCalls()}}
	a, _ := newAgent(t, c)

	_, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	assert.True(t, errors.Is(err, ErrInvalidFinishReason))
}

func TestCompletionFailurePublishesAgentCallError(t *testing.T) {
	failure := &llm.CompletionError{Attempts: 3, Err: errors.New("503")}
	c := &scripted{steps: []step{{err: failure}}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, llm.ErrCompletionFailed))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, rec.count(events.EventAgentCallError))
	assert.Equal(t, 0, rec.count(events.EventAgentResponse))
}

func TestPlanFailureDoesNotReachModelLoop(t *testing.T) {
	c := &scripted{steps: []step{{err: errors.New("quota exceeded")}}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{SystemPrompt: "sys", UserPrompt: "usr", Plan: true})
	require.Error(t, err)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 0, res.Turns)
	assert.Equal(t, []events.EventName{events.EventAgentCallError}, rec.names)
	require.Len(t, c.requests, 1)
	assert.Equal(t, llm.ToolChoiceNone, c.requests[0].ToolChoice)

	callErr, ok := rec.events[0].(*events.AgentCallError)
	require.True(t, ok)
	last := callErr.Conversation.Last()
	require.NotNil(t, last)
	assert.Equal(t, conversation.RoleUser, last.Role)
	assert.Equal(t, "sys usr "+PlanSuffix, last.Content)
	assert.Equal(t, last.Content, res.Conversation.Last().Content)
}

func TestPlanSeedsConversation(t *testing.T) {
	c := &scripted{steps: []step{stop("1. search 2. scrape"), stop("done")}}
	a, _ := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{SystemPrompt: "sys", UserPrompt: "usr", Plan: true})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Turns)

	require.Len(t, c.requests, 2)
	assert.Equal(t, "sys usr "+PlanSuffix, c.requests[0].Messages[0].Content)

	seeded := c.requests[1].Messages
	require.Len(t, seeded, 2)
	assert.Equal(t, conversation.RoleUser, seeded[0].Role)
	assert.Equal(t, "sys usr", seeded[0].Content)
	assert.Equal(t, conversation.RoleAssistant, seeded[1].Role)
	assert.Equal(t, "1. search 2. scrape", seeded[1].Content)
}

func TestHandlerErrorAbortsRun(t *testing.T) {
	c := &scripted{steps: []step{toolCalls(searchCall("call_1")), stop("done")}}
	a, _ := newAgent(t, c)

	boom := errors.New("observer crashed")
	a.Bus().Subscribe(events.EventToolCallResponse, func(ctx context.Context, e events.Event) error {
		return boom
	})

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, boom))
	assert.Equal(t, StateFailed, res.State)
	assert.Len(t, c.requests, 1)
}

func TestToolErrorContinuesByDefault(t *testing.T) {
	broken := conversation.ToolInvocationRequest{ID: "call_1", Name: "broken", Arguments: json.RawMessage(`{}`)}
	c := &scripted{steps: []step{toolCalls(broken), stop("done")}}
	a, rec := newAgent(t, c)

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, StateFinished, res.State)
	assert.Equal(t, 1, rec.count(events.EventToolCallErrorResponse))

	errMsg := c.requests[1].Messages[2]
	assert.Equal(t, conversation.RoleTool, errMsg.Role)
	assert.Equal(t, "call_1", errMsg.ToolCallID)
	assert.Equal(t, "Error: network unreachable", errMsg.Content)
}

func TestUnknownToolBecomesErrorMessage(t *testing.T) {
	unknown := conversation.ToolInvocationRequest{ID: "call_1", Name: "teleport", Arguments: json.RawMessage(`{}`)}
	c := &scripted{steps: []step{toolCalls(unknown), stop("done")}}
	a, rec := newAgent(t, c)

	_, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	require.Equal(t, 1, rec.count(events.EventToolCallErrorResponse))
	assert.Contains(t, c.requests[1].Messages[2].Content, "Error:")
}

func TestAbortOnToolError(t *testing.T) {
	broken := conversation.ToolInvocationRequest{ID: "call_1", Name: "broken", Arguments: json.RawMessage(`{}`)}
	c := &scripted{steps: []step{toolCalls(broken, searchCall("call_2")), stop("done")}}
	a, rec := newAgent(t, c, WithAbortOnToolError())

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	var tcf *ToolCallFailedError
	require.True(t, errors.As(err, &tcf))
	assert.Equal(t, "broken", tcf.Request.Name)
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, rec.count(events.EventToolCallErrorResponse))
	assert.Equal(t, 0, rec.count(events.EventToolCallResponse))
	assert.Equal(t, "Error: network unreachable", res.Conversation.Last().Content)
}

func TestMaxTurns(t *testing.T) {
	c := &scripted{steps: []step{
		toolCalls(searchCall("call_1")),
		toolCalls(searchCall("call_2")),
		toolCalls(searchCall("call_3")),
	}}
	a, _ := newAgent(t, c, WithMaxTurns(2))

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrMaxTurnsReached))
	assert.Equal(t, 2, res.Turns)
	assert.Len(t, c.requests, 2)
}

func TestCancelledContext(t *testing.T) {
	c := &scripted{steps: []step{stop("done")}}
	a, _ := newAgent(t, c)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := a.Run(ctx, RunInput{UserPrompt: "go"})
	assert.True(t, errors.Is(err, context.Canceled))
	assert.Equal(t, StateFailed, res.State)
	assert.Empty(t, c.requests)
}

type countingCompactor struct {
	calls int
}

func (c *countingCompactor) Compact(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	c.calls++
	return conv[len(conv)-1:], nil
}

func TestCompactionAfterTools(t *testing.T) {
	c := &scripted{steps: []step{toolCalls(searchCall("call_1")), stop("done")}}
	compactor := &countingCompactor{}
	a, _ := newAgent(t, c, WithCompactor(compactor))

	_, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, 1, compactor.calls)
	require.Len(t, c.requests[1].Messages, 1)
	assert.Equal(t, conversation.RoleTool, c.requests[1].Messages[0].Role)
}

func TestCompactionFailureFailsRun(t *testing.T) {
	summary := llm.CompleterFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return nil, errors.New("summary model down")
	})
	config := memory.DefaultConfig()
	config.MaxMessages = 2
	config.KeepLast = 1
	compactor, err := memory.NewSummaryCompactor(summary, config)
	require.NoError(t, err)

	c := &scripted{steps: []step{toolCalls(searchCall("call_1")), stop("done")}}
	a, rec := newAgent(t, c, WithCompactor(compactor))

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, memory.ErrSummaryFailed))
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, 1, rec.count(events.EventAgentCallError))
}

func TestCompactionKeepsToolBatchesWhole(t *testing.T) {
	summary := llm.CompleterFunc(func(ctx context.Context, req *llm.Request) (*llm.Response, error) {
		return &llm.Response{
			FinishReason: llm.FinishReasonStop,
			Message:      conversation.NewAssistantMessage("searched acme"),
		}, nil
	})
	compactor, err := memory.NewSummaryCompactor(summary, memory.DefaultConfig())
	require.NoError(t, err)

	steps := []step{}
	for i := 0; i < 12; i++ {
		calls := []conversation.ToolInvocationRequest{searchCall(fmt.Sprintf("t%d-0", i))}
		if i%2 == 1 {
			calls = append(calls, searchCall(fmt.Sprintf("t%d-1", i)))
		}
		steps = append(steps, toolCalls(calls...))
	}
	steps = append(steps, stop("done"))
	c := &scripted{steps: steps}
	a, _ := newAgent(t, c, WithCompactor(compactor))

	res, err := a.Run(context.Background(), RunInput{UserPrompt: "go"})
	require.NoError(t, err)
	assert.Equal(t, StateFinished, res.State)

	compacted := 0
	for i, req := range c.requests {
		assert.NoError(t, req.Messages.Validate(), "request %d", i)
		if req.Messages[0].Role == conversation.RoleSystem {
			compacted++
		}
	}
	assert.Greater(t, compacted, 0)
}

func TestNewRejectsUnknownSchemas(t *testing.T) {
	reg, err := tools.NewRegistry()
	require.NoError(t, err)
	s, err := tools.SchemaFor("search", "search", struct{}{})
	require.NoError(t, err)

	_, err = New(&scripted{}, reg, []tools.Schema{s})
	assert.Error(t, err)
}

func TestStateStrings(t *testing.T) {
	assert.Equal(t, "awaiting_model", StateAwaitingModel.String())
	assert.True(t, StateFinished.IsTerminal())
	assert.False(t, StateExecutingTools.IsTerminal())
}
