package tools

import (
	"encoding/json"

	"github.com/invopop/jsonschema"
	"github.com/pkg/errors"
)

// FunctionSchema describes the callable part of a tool as presented to the
// completion API.
type FunctionSchema struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

// Schema is the declarative description of a tool. Schemas are loaded once
// and never mutated at runtime.
type Schema struct {
	Type     string         `json:"type"`
	Function FunctionSchema `json:"function"`
}

const SchemaTypeFunction = "function"

func (s Schema) Name() string {
	return s.Function.Name
}

// SchemaFor reflects the JSON schema of a tool input struct.
func SchemaFor(name string, description string, input interface{}) (Schema, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}
	s := reflector.Reflect(input)
	// The completion API expects the parameters of a function to be an object
	// schema without the $schema marker.
	s.Version = ""
	if s.Type == "" {
		s.Type = "object"
	}

	params, err := json.Marshal(s)
	if err != nil {
		return Schema{}, errors.Wrapf(err, "could not marshal parameters of tool %s", name)
	}

	return Schema{
		Type: SchemaTypeFunction,
		Function: FunctionSchema{
			Name:        name,
			Description: description,
			Parameters:  params,
		},
	}, nil
}

// SchemaNames returns the tool names of schemas, in order.
func SchemaNames(schemas []Schema) []string {
	ret := make([]string, 0, len(schemas))
	for _, s := range schemas {
		ret = append(ret, s.Name())
	}
	return ret
}
