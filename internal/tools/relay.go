package tools

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/localbrain/voicecore/pkg/provider/channel"
)

// Handler executes a single tool invocation. args is a JSON-encoded object
// string; the returned string is relayed back to the agent verbatim.
type Handler func(ctx context.Context, args string) (string, error)

// entry pairs a tool definition with its handler.
type entry struct {
	def channel.ToolDefinition
	fn  Handler
}

// Relay is a concurrent-safe registry of collaborator tools. The controller
// forwards agent tool-call events to Execute and offers Definitions to the
// session at connect time.
//
// The zero value is NOT usable; create instances with [NewRelay].
type Relay struct {
	mu      sync.RWMutex
	entries map[string]entry
}

// NewRelay creates an empty Relay.
func NewRelay() *Relay {
	return &Relay{entries: make(map[string]entry)}
}

// Register adds a tool under def.Name. Registering a name twice replaces the
// previous handler; an empty name or nil handler is an error.
func (r *Relay) Register(def channel.ToolDefinition, fn Handler) error {
	if def.Name == "" {
		return fmt.Errorf("tools: tool definition must have a non-empty name")
	}
	if fn == nil {
		return fmt.Errorf("tools: handler for %q must not be nil", def.Name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries[def.Name] = entry{def: def, fn: fn}
	return nil
}

// Unregister removes all tools for which keep returns false.
func (r *Relay) Unregister(keep func(name string) bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for name := range r.entries {
		if !keep(name) {
			delete(r.entries, name)
		}
	}
}

// Definitions returns all registered tool definitions, sorted by name.
func (r *Relay) Definitions() []channel.ToolDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()

	defs := make([]channel.ToolDefinition, 0, len(r.entries))
	for _, e := range r.entries {
		defs = append(defs, e.def)
	}
	sort.Slice(defs, func(i, j int) bool { return defs[i].Name < defs[j].Name })
	return defs
}

// Execute invokes the named tool with JSON-encoded args and returns its
// opaque output. name must exactly match a registered definition.
func (r *Relay) Execute(ctx context.Context, name, args string) (string, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("tools: tool %q not found", name)
	}
	out, err := e.fn(ctx, args)
	if err != nil {
		return "", fmt.Errorf("tools: execute %q: %w", name, err)
	}
	return out, nil
}
