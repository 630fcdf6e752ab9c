// Package tools holds the tool registry, access policy, and execution
// dispatcher for built-in, user-authored, and plugin tools.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/hearthfire/hearth/pkg/models"
)

var (
	// ErrDuplicateName is returned when a name is already registered,
	// regardless of source.
	ErrDuplicateName = errors.New("duplicate tool name")

	// ErrToolNotFound is returned when a name resolves to nothing.
	ErrToolNotFound = errors.New("tool not found")

	// ErrImmutable is returned when unregistering a builtin or plugin tool.
	ErrImmutable = errors.New("tool is not user-authored")
)

// BuiltinFunc is the statically linked implementation behind a builtin or
// plugin tool.
type BuiltinFunc func(ctx context.Context, args json.RawMessage) (string, error)

type entry struct {
	def models.ToolDefinition
	run BuiltinFunc
}

// Registry is the authoritative name→definition map across all tool
// sources. Reads are concurrent; writers are serialized. Definitions are
// immutable once registered — updates go through unregister+register.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*entry

	// onChange, when set, observes registrations and removals.
	onChange func(name string, removed bool)
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{entries: map[string]*entry{}}
}

// OnChange installs a change observer. Must be called before concurrent use.
func (r *Registry) OnChange(fn func(name string, removed bool)) {
	r.onChange = fn
}

// RegisterBuiltin inserts a compiled-in tool with its implementation.
func (r *Registry) RegisterBuiltin(def models.ToolDefinition, run BuiltinFunc) error {
	def.Source = models.SourceBuiltin
	def.Runtime = models.RuntimeBuiltin
	return r.insert(def, run)
}

// RegisterPlugin inserts a tool provided by an extension module at startup.
func (r *Registry) RegisterPlugin(def models.ToolDefinition, run BuiltinFunc) error {
	def.Source = models.SourcePlugin
	def.Runtime = models.RuntimeBuiltin
	return r.insert(def, run)
}

// Register inserts a user-authored definition.
func (r *Registry) Register(def models.ToolDefinition) error {
	def.Source = models.SourceUser
	if err := def.Validate(); err != nil {
		return err
	}
	return r.insert(def, nil)
}

func (r *Registry) insert(def models.ToolDefinition, run BuiltinFunc) error {
	r.mu.Lock()
	if _, exists := r.entries[def.Name]; exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrDuplicateName, def.Name)
	}
	r.entries[def.Name] = &entry{def: def, run: run}
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(def.Name, false)
	}
	return nil
}

// Unregister removes a user-authored entry. Builtins and plugin entries
// are immutable.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	existing, ok := r.entries[name]
	if !ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	if existing.def.Source != models.SourceUser {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrImmutable, name)
	}
	delete(r.entries, name)
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(name, true)
	}
	return nil
}

// Replace atomically swaps a user-authored definition (drop then
// re-register), used by the watcher and the HTTP PUT path.
func (r *Registry) Replace(def models.ToolDefinition) error {
	def.Source = models.SourceUser
	if err := def.Validate(); err != nil {
		return err
	}

	r.mu.Lock()
	if existing, ok := r.entries[def.Name]; ok && existing.def.Source != models.SourceUser {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrImmutable, def.Name)
	}
	r.entries[def.Name] = &entry{def: def}
	r.mu.Unlock()

	if r.onChange != nil {
		r.onChange(def.Name, false)
	}
	return nil
}

// Get returns the definition for name.
func (r *Registry) Get(name string) (models.ToolDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok {
		return models.ToolDefinition{}, false
	}
	return e.def, true
}

// runner returns the statically linked implementation for name, when any.
func (r *Registry) runner(name string) (BuiltinFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.entries[name]
	if !ok || e.run == nil {
		return nil, false
	}
	return e.run, true
}

// List returns a snapshot of all definitions sorted by name.
func (r *Registry) List() []models.ToolDefinition {
	r.mu.RLock()
	out := make([]models.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.def)
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// CountBySource tallies registered tools per source for metrics.
func (r *Registry) CountBySource() map[models.ToolSource]int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := map[models.ToolSource]int{}
	for _, e := range r.entries {
		out[e.def.Source]++
	}
	return out
}
