package memory

import (
	"github.com/go-go-golems/sleuth/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/tiktoken-go/tokenizer"
)

// TokenCounter estimates token counts with the tokenizer of a model.
type TokenCounter struct {
	codec tokenizer.Codec
	// name is the model or encoding the codec was picked for.
	name string
}

// NewTokenCounter picks the codec of model, falling back to cl100k_base for
// models the tokenizer does not know.
func NewTokenCounter(model string) (*TokenCounter, error) {
	if model != "" {
		c, err := tokenizer.ForModel(tokenizer.Model(model))
		if err == nil {
			return &TokenCounter{codec: c, name: model}, nil
		}
		log.Debug().Str("model", model).Err(err).Msg("no tokenizer for model, using cl100k_base")
	}

	c, err := tokenizer.Get(tokenizer.Cl100kBase)
	if err != nil {
		return nil, errors.Wrap(err, "could not load cl100k_base tokenizer")
	}
	return &TokenCounter{codec: c, name: string(tokenizer.Cl100kBase)}, nil
}

func (t *TokenCounter) Name() string {
	return t.name
}

func (t *TokenCounter) Count(s string) (int, error) {
	ids, _, err := t.codec.Encode(s)
	if err != nil {
		return 0, err
	}
	return len(ids), nil
}

// CountConversation counts the tokens of the JSON serialization of c.
func (t *TokenCounter) CountConversation(c conversation.Conversation) (int, error) {
	s, err := c.ToJSON()
	if err != nil {
		return 0, err
	}
	return t.Count(s)
}
