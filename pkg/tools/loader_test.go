package tools

import (
	"context"
	"encoding/json"
	"testing"
	"testing/fstest"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultLoaderToolSets(t *testing.T) {
	l := NewDefaultLoader()

	names, err := l.LoadToolSet("website")
	require.NoError(t, err)
	assert.Equal(t, []string{"scrape", "update_data"}, names)

	schemas, err := l.LoadToolSetSchemas("internet")
	require.NoError(t, err)
	assert.Equal(t, []string{"search", "scrape", "update_data"}, SchemaNames(schemas))
	for _, s := range schemas {
		assert.Equal(t, SchemaTypeFunction, s.Type)
		assert.True(t, json.Valid(s.Function.Parameters))
	}

	tools, err := l.AvailableTools()
	require.NoError(t, err)
	assert.Equal(t, []string{"scrape", "search", "update_data"}, tools)
	assert.Contains(t, l.AvailableToolSets(), "internet")
}

func TestLoaderErrors(t *testing.T) {
	l := NewLoader(fstest.MapFS{
		"broken_tool_schema.json":   {Data: []byte(`{"type": "function", `)},
		"nameless_tool_schema.json": {Data: []byte(`{"type": "function", "function": {}}`)},
		"tool_sets.json":            {Data: []byte(`{"only": ["broken"]}`)},
	})

	_, err := l.LoadSchema("missing")
	assert.Error(t, err)

	_, err = l.LoadSchema("broken")
	assert.Error(t, err)

	_, err = l.LoadSchema("nameless")
	assert.Error(t, err)

	_, err = l.LoadToolSet("other")
	assert.True(t, errors.Is(err, ErrUnknownToolSet))
	assert.Contains(t, err.Error(), "only")
}

func TestAvailableToolSetsWithoutConfig(t *testing.T) {
	l := NewLoader(fstest.MapFS{})
	assert.Empty(t, l.AvailableToolSets())

	_, err := l.LoadToolSet("website")
	assert.Error(t, err)
}

func TestSchemaFor(t *testing.T) {
	type input struct {
		URL string `json:"url" jsonschema:"required,description=The url to scrape"`
	}
	s, err := SchemaFor("scrape", "Scrape a url", input{})
	require.NoError(t, err)

	assert.Equal(t, "scrape", s.Name())
	var params map[string]interface{}
	require.NoError(t, json.Unmarshal(s.Function.Parameters, &params))
	assert.Equal(t, "object", params["type"])
	assert.NotContains(t, params, "$schema")
	props := params["properties"].(map[string]interface{})
	assert.Contains(t, props, "url")
}

func TestRegistrySubset(t *testing.T) {
	reg := newStubRegistry(t)

	sub, err := reg.Subset("search")
	require.NoError(t, err)
	assert.Equal(t, []string{"search"}, sub.Names())

	_, err = reg.Subset("search", "teleport")
	var nf *NotFoundError
	assert.ErrorAs(t, err, &nf)

	err = reg.Register(NewFunc("search", func(ctx context.Context, in struct{}) (string, error) { return "", nil }))
	assert.Error(t, err)
}
