// Package registry holds the fixed set of tools the server exposes.
// Tools are registered at startup; after Seal the registry is read-only.
// file: internal/registry/registry.go
package registry

import (
	"context"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/dkoosis/toolrelay/internal/logging"
	"github.com/dkoosis/toolrelay/internal/mcperror"
	"github.com/dkoosis/toolrelay/internal/schema"
)

// Handler executes a tool with validated arguments.
type Handler func(ctx context.Context, args schema.Args) (*Result, error)

// Descriptor is the public description of a tool.
type Descriptor struct {
	Name            string
	Description     string
	ParameterSchema *schema.Node
}

// Listing is the wire form of a Descriptor in listTools results.
type Listing struct {
	Name        string         `json:"name"`
	Description string         `json:"description"`
	InputSchema map[string]any `json:"inputSchema"`
}

// Listing renders the descriptor for clients.
func (d Descriptor) Listing() Listing {
	return Listing{Name: d.Name, Description: d.Description, InputSchema: d.ParameterSchema.JSONSchema()}
}

// Entry pairs a descriptor with its handler.
type Entry struct {
	Descriptor Descriptor
	Handler    Handler
}

// Registry maps tool names to entries, preserving registration order.
type Registry struct {
	mu      sync.RWMutex
	sealed  bool
	order   []string
	entries map[string]Entry
	logger  logging.Logger
}

// New creates an empty registry.
func New(logger logging.Logger) *Registry {
	if logger == nil {
		logger = logging.GetNoopLogger()
	}
	return &Registry{
		entries: make(map[string]Entry),
		logger:  logger.WithField("component", "tool_registry"),
	}
}

// Register adds a tool. Duplicate names are a configuration error and must abort startup.
func (r *Registry) Register(desc Descriptor, h Handler) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.sealed {
		return mcperror.NewConfigError("registry is sealed", nil, map[string]interface{}{"toolName": desc.Name})
	}
	if err := ToolNameRule.ValidateName(desc.Name); err != nil {
		return mcperror.NewConfigError("invalid tool name", err, map[string]interface{}{"toolName": desc.Name})
	}
	if h == nil {
		return mcperror.NewConfigError("tool has no handler", nil, map[string]interface{}{"toolName": desc.Name})
	}
	if desc.ParameterSchema == nil || desc.ParameterSchema.Kind != schema.KindObject {
		return mcperror.NewConfigError("tool parameter schema must be an object", nil, map[string]interface{}{"toolName": desc.Name})
	}
	if _, err := schema.Compile(desc.ParameterSchema); err != nil {
		return mcperror.NewConfigError("tool parameter schema does not compile", errors.Wrap(err, "schema.Compile"),
			map[string]interface{}{"toolName": desc.Name})
	}
	if _, exists := r.entries[desc.Name]; exists {
		r.logger.Warn("Attempted to register duplicate tool.", "toolName", desc.Name)
		return mcperror.NewConfigError("duplicate tool name", nil, map[string]interface{}{"toolName": desc.Name})
	}

	r.entries[desc.Name] = Entry{Descriptor: desc, Handler: h}
	r.order = append(r.order, desc.Name)
	r.logger.Debug("Registered tool.", "toolName", desc.Name)
	return nil
}

// MustRegister registers a tool and panics on error. Intended for static tool sets.
func (r *Registry) MustRegister(desc Descriptor, h Handler) {
	if err := r.Register(desc, h); err != nil {
		panic(err)
	}
}

// Seal freezes the registry. Further Register calls fail.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.sealed {
		r.sealed = true
		r.logger.Info("Tool registry sealed.", "toolCount", len(r.order))
	}
}

// Sealed reports whether Seal has been called.
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// List returns descriptors in registration order. The slice is a copy.
func (r *Registry) List() []Descriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Descriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.entries[name].Descriptor)
	}
	return out
}

// Resolve looks up a tool by exact name.
func (r *Registry) Resolve(name string) (Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	return e, ok
}

// Len returns the number of registered tools.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}
