package memory

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSummarizer struct {
	requests []*llm.Request
	summary  string
	err      error
}

func (f *fakeSummarizer) Complete(ctx context.Context, req *llm.Request) (*llm.Response, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{
		FinishReason: llm.FinishReasonStop,
		Message:      conversation.NewAssistantMessage(f.summary),
	}, nil
}

func makeConversation(n int) conversation.Conversation {
	ret := conversation.NewConversation(conversation.NewUserMessage("You find facts. Find the CEO of Acme"))
	for i := 1; i < n; i++ {
		if i%2 == 1 {
			ret = append(ret, conversation.NewAssistantMessage(fmt.Sprintf("step %d", i)))
		} else {
			ret = append(ret, conversation.NewUserMessage(fmt.Sprintf("continue %d", i)))
		}
	}
	return ret
}

func newCompactor(t *testing.T, f *fakeSummarizer) *SummaryCompactor {
	c, err := NewSummaryCompactor(f, DefaultConfig())
	require.NoError(t, err)
	return c
}

func TestCompactOverMessageThreshold(t *testing.T) {
	f := &fakeSummarizer{summary: "searched twice"}
	c := newCompactor(t, f)

	conv := makeConversation(25)
	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)

	require.Len(t, out, 13)
	assert.Equal(t, conversation.RoleSystem, out[0].Role)
	assert.Equal(t,
		"You find facts. Find the CEO of Acme; Here is a summary of past actions taken so far: searched twice",
		out[0].Content)
	for i := 0; i < 12; i++ {
		assert.Same(t, conv[13+i], out[1+i])
	}

	require.Len(t, f.requests, 1)
	req := f.requests[0]
	assert.Equal(t, "gpt-3.5-turbo", req.Model)
	assert.Empty(t, req.Tools)
	require.Len(t, req.Messages, 1)
	prompt := req.Messages[0].Content
	assert.True(t, strings.HasSuffix(prompt, SummaryInstruction))
	assert.Contains(t, prompt, "[assistant]: step 11")
	assert.NotContains(t, prompt, "step 13")
}

func TestCompactLeavesShortConversationAlone(t *testing.T) {
	f := &fakeSummarizer{summary: "unused"}
	c := newCompactor(t, f)

	conv := makeConversation(24)
	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, conv, out)
	assert.Empty(t, f.requests)
}

func TestCompactOverTokenThreshold(t *testing.T) {
	f := &fakeSummarizer{summary: "long pages"}
	c := newCompactor(t, f)

	conv := makeConversation(13)
	conv[5].Content = strings.Repeat("lorem ipsum dolor sit amet ", 3000)

	should, err := c.ShouldCompact(conv)
	require.NoError(t, err)
	assert.True(t, should)

	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)
	require.Len(t, out, 13)
	assert.Same(t, conv[1], out[1])
}

func scrapeCall(id string) conversation.ToolInvocationRequest {
	return conversation.ToolInvocationRequest{ID: id, Name: "scrape", Arguments: []byte(`{}`)}
}

func TestCompactWidensWindowToToolRequest(t *testing.T) {
	f := &fakeSummarizer{summary: "ok"}
	c := newCompactor(t, f)

	conv := makeConversation(12)
	conv = append(conv,
		conversation.NewAssistantMessage("", scrapeCall("c1")),
		conversation.NewToolMessage("c1", "scrape", "page"),
	)
	conv = append(conv, makeConversation(12)[1:]...)
	require.Len(t, conv, 25)
	require.Equal(t, conversation.RoleTool, conv[13].Role)

	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	require.Len(t, out, 14)
	assert.Same(t, conv[12], out[1])
	assert.NotContains(t, f.requests[0].Messages[0].Content, "scrape(")
}

func TestCompactKeepsWholeBatchOfToolResults(t *testing.T) {
	f := &fakeSummarizer{summary: "ok"}
	c := newCompactor(t, f)

	conv := makeConversation(11)
	conv = append(conv,
		conversation.NewAssistantMessage("", scrapeCall("c1"), scrapeCall("c2")),
		conversation.NewToolMessage("c1", "scrape", "first page"),
		conversation.NewToolMessage("c2", "scrape", "second page"),
	)
	conv = append(conv, makeConversation(12)[1:]...)
	require.Len(t, conv, 25)
	require.Equal(t, conversation.RoleTool, conv[13].Role)
	require.NoError(t, conv.Validate())

	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)
	require.NoError(t, out.Validate())
	require.Len(t, out, 15)
	assert.Same(t, conv[11], out[1])
	assert.Same(t, conv[24], out[14])
}

func TestShortConversationIgnoresTokenThreshold(t *testing.T) {
	f := &fakeSummarizer{summary: "unused"}
	c := newCompactor(t, f)

	conv := makeConversation(12)
	conv[3].Content = strings.Repeat("lorem ipsum dolor sit amet ", 3000)

	should, err := c.ShouldCompact(conv)
	require.NoError(t, err)
	assert.False(t, should)

	out, err := c.Compact(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, conv, out)
	assert.Empty(t, f.requests)
}

func TestCompactSummaryFailure(t *testing.T) {
	f := &fakeSummarizer{err: errors.New("api down")}
	c := newCompactor(t, f)

	_, err := c.Compact(context.Background(), makeConversation(30))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSummaryFailed))
	assert.Contains(t, err.Error(), "api down")
}

func TestNoop(t *testing.T) {
	conv := makeConversation(40)
	out, err := Noop{}.Compact(context.Background(), conv)
	require.NoError(t, err)
	assert.Equal(t, conv, out)
}

func TestTokenCounterFallsBack(t *testing.T) {
	c, err := NewTokenCounter("some-unknown-model")
	require.NoError(t, err)
	assert.Equal(t, "cl100k_base", c.Name())

	n, err := c.Count("hello world")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	n, err = c.CountConversation(conversation.NewConversation(conversation.NewUserMessage("hi")))
	require.NoError(t, err)
	assert.Greater(t, n, 1)
}
