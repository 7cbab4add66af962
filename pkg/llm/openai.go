package llm

import (
	"context"
	"net/http"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	go_openai "github.com/sashabaranov/go-openai"
)

// OpenAICompleter talks to an OpenAI compatible chat completion endpoint.
type OpenAICompleter struct {
	client *go_openai.Client
	model  string
}

var _ Completer = (*OpenAICompleter)(nil)

func MakeClient(s *settings.OpenAISettings) *go_openai.Client {
	config := go_openai.DefaultConfig(s.APIKey)
	if s.BaseURL != "" {
		config.BaseURL = s.BaseURL
	}
	if s.Timeout > 0 {
		config.HTTPClient = &http.Client{Timeout: s.Timeout}
	}
	return go_openai.NewClientWithConfig(config)
}

func NewOpenAICompleter(s *settings.OpenAISettings) *OpenAICompleter {
	return &OpenAICompleter{
		client: MakeClient(s),
		model:  s.Model,
	}
}

func NewOpenAICompleterFromClient(client *go_openai.Client, model string) *OpenAICompleter {
	return &OpenAICompleter{client: client, model: model}
}

func (c *OpenAICompleter) Complete(ctx context.Context, req *Request) (*Response, error) {
	openaiReq := MakeCompletionRequest(req)
	if openaiReq.Model == "" {
		openaiReq.Model = c.model
	}

	log.Debug().
		Str("model", openaiReq.Model).
		Int("messages", len(openaiReq.Messages)).
		Int("tools", len(openaiReq.Tools)).
		Interface("tool_choice", openaiReq.ToolChoice).
		Msg("sending chat completion request")

	resp, err := c.client.CreateChatCompletion(ctx, openaiReq)
	if err != nil {
		return nil, err
	}

	ret, err := ResponseFromOpenAI(&resp)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("finish_reason", string(ret.FinishReason)).
		Int("tool_calls", len(ret.Message.ToolCalls)).
		Int("total_tokens", ret.Usage.TotalTokens).
		Msg("chat completion received")

	return ret, nil
}

// MakeCompletionRequest converts a Request into its go-openai form.
func MakeCompletionRequest(req *Request) go_openai.ChatCompletionRequest {
	ret := go_openai.ChatCompletionRequest{
		Model:    req.Model,
		Messages: MessagesToOpenAI(req.Messages),
	}

	for _, s := range req.Tools {
		ret.Tools = append(ret.Tools, go_openai.Tool{
			Type: go_openai.ToolTypeFunction,
			Function: &go_openai.FunctionDefinition{
				Name:        s.Function.Name,
				Description: s.Function.Description,
				Parameters:  s.Function.Parameters,
			},
		})
	}
	if len(ret.Tools) > 0 && req.ToolChoice != ToolChoiceDefault {
		ret.ToolChoice = string(req.ToolChoice)
	}

	if req.JSONResponse {
		ret.ResponseFormat = &go_openai.ChatCompletionResponseFormat{
			Type: go_openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	return ret
}

func MessagesToOpenAI(msgs conversation.Conversation) []go_openai.ChatCompletionMessage {
	ret := make([]go_openai.ChatCompletionMessage, 0, len(msgs))
	for _, m := range msgs {
		if m == nil {
			continue
		}
		msg := go_openai.ChatCompletionMessage{
			Role:       string(m.Role),
			Content:    m.Content,
			ToolCallID: m.ToolCallID,
		}
		if m.Role == conversation.RoleTool {
			msg.Name = m.Name
		}
		for _, c := range m.ToolCalls {
			msg.ToolCalls = append(msg.ToolCalls, go_openai.ToolCall{
				ID:   c.ID,
				Type: go_openai.ToolTypeFunction,
				Function: go_openai.FunctionCall{
					Name:      c.Name,
					Arguments: string(c.Arguments),
				},
			})
		}
		ret = append(ret, msg)
	}
	return ret
}

// ResponseFromOpenAI keeps the first choice of a completion response.
func ResponseFromOpenAI(resp *go_openai.ChatCompletionResponse) (*Response, error) {
	if len(resp.Choices) == 0 {
		return nil, ErrNoChoices
	}
	choice := resp.Choices[0]

	msg := conversation.NewAssistantMessage(choice.Message.Content)
	for _, c := range choice.Message.ToolCalls {
		if c.Function.Name == "" {
			return nil, errors.Errorf("tool call %s has no function name", c.ID)
		}
		msg.ToolCalls = append(msg.ToolCalls, conversation.ToolInvocationRequest{
			ID:        c.ID,
			Name:      c.Function.Name,
			Arguments: []byte(c.Function.Arguments),
		})
	}

	return &Response{
		ID:           resp.ID,
		Model:        resp.Model,
		FinishReason: FinishReason(choice.FinishReason),
		Message:      msg,
		Usage: Usage{
			PromptTokens:     resp.Usage.PromptTokens,
			CompletionTokens: resp.Usage.CompletionTokens,
			TotalTokens:      resp.Usage.TotalTokens,
		},
	}, nil
}
