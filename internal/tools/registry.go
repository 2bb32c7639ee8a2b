package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
)

// Registry manages the collection of available tools.
type Registry struct {
	tools  map[string]*Descriptor
	order  []string
	mu     sync.RWMutex
	logger zerolog.Logger
}

// NewRegistry creates a new tool registry.
func NewRegistry(logger zerolog.Logger) *Registry {
	return &Registry{
		tools:  make(map[string]*Descriptor),
		logger: logger.With().Str("component", "tool_registry").Logger(),
	}
}

// Register adds a tool. Names must be unique.
func (r *Registry) Register(d Descriptor) error {
	if d.Name == "" {
		return fmt.Errorf("tool name is required")
	}
	if d.Handler == nil {
		return fmt.Errorf("tool %s has no handler", d.Name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.tools[d.Name]; exists {
		return fmt.Errorf("tool already registered: %s", d.Name)
	}

	params := make([]Param, len(d.Params))
	copy(params, d.Params)
	d.Params = params

	r.tools[d.Name] = &d
	r.order = append(r.order, d.Name)

	r.logger.Info().
		Str("tool", d.Name).
		Int("params", len(d.Params)).
		Msg("Registered tool")

	return nil
}

// Resolve returns the descriptor registered under name.
func (r *Registry) Resolve(name string) (*Descriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, exists := r.tools[name]
	if !exists {
		return nil, newToolNotFound(name)
	}
	return d, nil
}

// List returns all registered tools in registration order.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	list := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		list = append(list, *r.tools[name])
	}
	return list
}

// Definitions returns the discovery form of every registered tool.
func (r *Registry) Definitions() []Definition {
	list := r.List()
	defs := make([]Definition, 0, len(list))
	for i := range list {
		defs = append(defs, list[i].Definition())
	}
	return defs
}

// Call resolves a tool, binds its arguments and runs its handler.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (json.RawMessage, error) {
	d, err := r.Resolve(name)
	if err != nil {
		return nil, err
	}

	bound, unknown, err := d.Bind(args)
	if err != nil {
		return nil, err
	}
	if len(unknown) > 0 {
		r.logger.Debug().
			Str("tool", name).
			Strs("ignored_args", unknown).
			Msg("Ignoring unknown tool arguments")
	}

	return d.Handler(ctx, bound)
}
