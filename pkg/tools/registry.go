package tools

import (
	"sync"

	"github.com/pkg/errors"
)

// Registry maps tool names to tools, keeping registration order.
type Registry struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string
}

func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{
		tools: map[string]Tool{},
	}
	for _, t := range tools {
		if err := r.Register(t); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(t Tool) error {
	if t == nil {
		return errors.New("cannot register nil tool")
	}
	name := t.Name()
	if name == "" {
		return errors.New("tool name cannot be empty")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.tools[name]; ok {
		return errors.Errorf("tool %s already registered", name)
	}
	r.tools[name] = t
	r.order = append(r.order, name)
	return nil
}

func (r *Registry) Get(name string) (Tool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.tools[name]
	if !ok {
		return nil, &NotFoundError{Name: name}
	}
	return t, nil
}

func (r *Registry) Has(name string) bool {
	_, err := r.Get(name)
	return err == nil
}

// Names returns the registered tool names in registration order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return append([]string{}, r.order...)
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.order)
}

// Subset returns a new registry restricted to names. Unknown names are an
// error.
func (r *Registry) Subset(names ...string) (*Registry, error) {
	ret, _ := NewRegistry()
	for _, name := range names {
		t, err := r.Get(name)
		if err != nil {
			return nil, err
		}
		if err := ret.Register(t); err != nil {
			return nil, err
		}
	}
	return ret, nil
}
