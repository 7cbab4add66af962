package conversation

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LoadFromFile reads a conversation from a JSON or YAML file.
func LoadFromFile(filename string) (Conversation, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return loadFromJSON(b)
	case ".yaml", ".yml":
		return loadFromYAML(b)
	default:
		return nil, errors.Errorf("unsupported conversation file format: %s", filename)
	}
}

func loadFromJSON(b []byte) (Conversation, error) {
	var messages Conversation
	if err := json.Unmarshal(b, &messages); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation")
	}
	return messages, nil
}

// YAML files are converted to JSON first so that tool arguments can be
// written as plain mappings.
func loadFromYAML(b []byte) (Conversation, error) {
	var v interface{}
	if err := yaml.Unmarshal(b, &v); err != nil {
		return nil, errors.Wrap(err, "could not decode conversation")
	}
	j, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "could not convert conversation")
	}
	return loadFromJSON(j)
}

// SaveToFile writes the conversation as indented JSON, creating parent
// directories as needed.
func (c Conversation) SaveToFile(filename string) error {
	if dir := filepath.Dir(filename); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return err
		}
	}

	f, err := os.Create(filename)
	if err != nil {
		return err
	}
	defer func(f *os.File) {
		_ = f.Close()
	}(f)

	encoder := json.NewEncoder(f)
	encoder.SetIndent("", "  ")
	return encoder.Encode(c)
}
