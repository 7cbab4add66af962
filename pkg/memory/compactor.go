package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/go-go-golems/sleuth/pkg/llm"
	"github.com/go-go-golems/sleuth/pkg/settings"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const SummaryInstruction = "Above is the past history of conversation between user & AI, " +
	"including actions AI already taken. Please summarise the past actions taken so far, " +
	"what key information learnt & tasks that already completed. SUMMARY:"

var ErrSummaryFailed = errors.New("could not summarise conversation")

// SummaryError wraps the completion error of a failed summary. It matches
// ErrSummaryFailed.
type SummaryError struct {
	Err error
}

func (e *SummaryError) Error() string {
	return ErrSummaryFailed.Error() + ": " + e.Err.Error()
}

func (e *SummaryError) Unwrap() error {
	return e.Err
}

func (e *SummaryError) Is(target error) bool {
	return target == ErrSummaryFailed
}

// Compactor shortens a conversation before it is resent to the model.
type Compactor interface {
	Compact(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error)
}

// Noop returns conversations unchanged.
type Noop struct{}

func (Noop) Compact(_ context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	return conv, nil
}

type Config struct {
	MaxMessages  int
	MaxTokens    int
	KeepLast     int
	SummaryModel string
	// TokenModel selects the tokenizer, usually the model of the agent.
	TokenModel string
}

func DefaultConfig() Config {
	return Config{
		MaxMessages:  24,
		MaxTokens:    10000,
		KeepLast:     12,
		SummaryModel: settings.DefaultSummaryModel,
		TokenModel:   settings.DefaultModel,
	}
}

func ConfigFromSettings(s *settings.Settings) Config {
	return Config{
		MaxMessages:  s.Memory.MaxMessages,
		MaxTokens:    s.Memory.MaxTokens,
		KeepLast:     s.Memory.KeepLast,
		SummaryModel: s.OpenAI.SummaryModel,
		TokenModel:   s.OpenAI.Model,
	}
}

// SummaryCompactor replaces everything but the last KeepLast messages with a
// system message summarising them. A window that would start inside a batch
// of tool results is widened back to the assistant message requesting them.
type SummaryCompactor struct {
	completer llm.Completer
	counter   *TokenCounter
	config    Config
}

var _ Compactor = (*SummaryCompactor)(nil)

func NewSummaryCompactor(completer llm.Completer, config Config) (*SummaryCompactor, error) {
	if config.KeepLast <= 0 {
		return nil, errors.Errorf("keep-last must be positive, got %d", config.KeepLast)
	}
	counter, err := NewTokenCounter(config.TokenModel)
	if err != nil {
		return nil, err
	}
	return &SummaryCompactor{
		completer: completer,
		counter:   counter,
		config:    config,
	}, nil
}

// ShouldCompact reports whether conv is over the message or token threshold.
// Conversations not longer than the kept window are never compacted.
func (s *SummaryCompactor) ShouldCompact(conv conversation.Conversation) (bool, error) {
	if len(conv) <= s.config.KeepLast {
		return false, nil
	}
	if len(conv) > s.config.MaxMessages {
		return true, nil
	}
	tokens, err := s.counter.CountConversation(conv)
	if err != nil {
		return false, errors.Wrap(err, "could not count tokens")
	}
	return tokens > s.config.MaxTokens, nil
}

func (s *SummaryCompactor) Compact(ctx context.Context, conv conversation.Conversation) (conversation.Conversation, error) {
	should, err := s.ShouldCompact(conv)
	if err != nil {
		return nil, err
	}
	if !should {
		return conv, nil
	}

	split := windowStart(conv, s.config.KeepLast)
	prefix, window := conv[:split], conv[split:]

	log.Debug().
		Int("messages", len(conv)).
		Int("summarised", len(prefix)).
		Str("model", s.config.SummaryModel).
		Msg("compacting conversation")

	summary, err := llm.CompleteText(ctx, s.completer, s.config.SummaryModel, SummaryPrompt(prefix), false)
	if err != nil {
		return nil, &SummaryError{Err: err}
	}

	ret := make(conversation.Conversation, 0, len(window)+1)
	ret = append(ret, conversation.NewSystemMessage(fmt.Sprintf(
		"%s; Here is a summary of past actions taken so far: %s",
		conv[0].Content, summary,
	)))
	ret = append(ret, window...)

	return ret, nil
}

// windowStart returns the index of the first kept message. Tool results
// directly follow the assistant message that requested them, so the start is
// moved back over tool messages until it reaches that request.
func windowStart(conv conversation.Conversation, keepLast int) int {
	split := len(conv) - keepLast
	for split > 1 && conv[split].Role == conversation.RoleTool {
		split--
	}
	if split != len(conv)-keepLast {
		log.Debug().
			Int("keep_last", keepLast).
			Int("kept", len(conv)-split).
			Msg("widened compaction window to keep a tool call batch")
	}
	return split
}

// SummaryPrompt renders the summarised messages as a transcript followed by
// the summary instruction.
func SummaryPrompt(msgs conversation.Conversation) string {
	var sb strings.Builder
	for _, m := range msgs {
		sb.WriteString(m.String())
		sb.WriteString("\n")
	}
	sb.WriteString("\n")
	sb.WriteString(SummaryInstruction)
	return sb.String()
}
