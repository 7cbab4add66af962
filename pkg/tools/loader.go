package tools

import (
	"embed"
	"encoding/json"
	"io/fs"
	"os"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

const (
	schemaFileSuffix = "_tool_schema.json"
	toolSetsFile     = "tool_sets.json"
)

//go:embed schemas/*.json
var defaultSchemas embed.FS

var ErrUnknownToolSet = errors.New("unknown tool set")

// Loader reads tool schemas (<name>_tool_schema.json) and named tool sets
// (tool_sets.json) from a filesystem.
type Loader struct {
	fs fs.FS
}

func NewLoader(fsys fs.FS) *Loader {
	return &Loader{fs: fsys}
}

// NewDirLoader loads schemas from a directory on disk.
func NewDirLoader(dir string) *Loader {
	return NewLoader(os.DirFS(dir))
}

// NewDefaultLoader loads the schemas shipped with sleuth.
func NewDefaultLoader() *Loader {
	sub, err := fs.Sub(defaultSchemas, "schemas")
	if err != nil {
		panic(err)
	}
	return NewLoader(sub)
}

func (l *Loader) LoadSchema(name string) (Schema, error) {
	path := name + schemaFileSuffix
	b, err := fs.ReadFile(l.fs, path)
	if err != nil {
		return Schema{}, errors.Wrapf(err, "tool schema %s not found at %s", name, path)
	}

	var s Schema
	if err := json.Unmarshal(b, &s); err != nil {
		return Schema{}, errors.Wrapf(err, "invalid JSON in tool schema %s", name)
	}
	if s.Function.Name == "" {
		return Schema{}, errors.Errorf("tool schema %s has no function name", name)
	}
	if s.Type == "" {
		s.Type = SchemaTypeFunction
	}
	return s, nil
}

func (l *Loader) LoadSchemas(names []string) ([]Schema, error) {
	ret := make([]Schema, 0, len(names))
	for _, name := range names {
		s, err := l.LoadSchema(name)
		if err != nil {
			return nil, err
		}
		ret = append(ret, s)
	}
	return ret, nil
}

func (l *Loader) loadToolSets() (map[string][]string, error) {
	b, err := fs.ReadFile(l.fs, toolSetsFile)
	if err != nil {
		return nil, errors.Wrapf(err, "tool sets configuration not found at %s", toolSetsFile)
	}
	sets := map[string][]string{}
	if err := json.Unmarshal(b, &sets); err != nil {
		return nil, errors.Wrap(err, "invalid JSON in tool sets configuration")
	}
	return sets, nil
}

// LoadToolSet returns the tool names of the named set.
func (l *Loader) LoadToolSet(name string) ([]string, error) {
	sets, err := l.loadToolSets()
	if err != nil {
		return nil, err
	}
	names, ok := sets[name]
	if !ok {
		available := make([]string, 0, len(sets))
		for k := range sets {
			available = append(available, k)
		}
		sort.Strings(available)
		return nil, errors.Wrapf(ErrUnknownToolSet, "tool set %s not found, available sets: %s", name, strings.Join(available, ", "))
	}
	return names, nil
}

// LoadToolSetSchemas resolves a tool set and loads the schema of each tool.
func (l *Loader) LoadToolSetSchemas(name string) ([]Schema, error) {
	names, err := l.LoadToolSet(name)
	if err != nil {
		return nil, err
	}
	return l.LoadSchemas(names)
}

// AvailableTools lists the tools that have a schema file.
func (l *Loader) AvailableTools() ([]string, error) {
	matches, err := fs.Glob(l.fs, "*"+schemaFileSuffix)
	if err != nil {
		return nil, err
	}
	ret := make([]string, 0, len(matches))
	for _, m := range matches {
		ret = append(ret, strings.TrimSuffix(m, schemaFileSuffix))
	}
	sort.Strings(ret)
	return ret, nil
}

// AvailableToolSets lists the configured tool set names. A missing or broken
// tool_sets.json yields an empty list.
func (l *Loader) AvailableToolSets() []string {
	sets, err := l.loadToolSets()
	if err != nil {
		return []string{}
	}
	ret := make([]string, 0, len(sets))
	for k := range sets {
		ret = append(ret, k)
	}
	sort.Strings(ret)
	return ret
}
