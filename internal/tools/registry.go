// Package tools implements the Tool Registry & Dispatcher (C2): it holds
// the globally-registered tool specs, intersects them with a persona's
// allow-list, validates input shape, and routes invocations to a backend
// RPC or to the handoff machinery.
//
// Grounded on the teacher's internal/agent/tool_registry.go (thread-safe
// name->Tool map) generalized to carry a routing Target and an input
// schema validated via santhosh-tekuri/jsonschema, and on
// internal/tools/policy for the allow-list intersection idiom.
package tools

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/meridianbank/agentcore/internal/handoff"
	"github.com/meridianbank/agentcore/internal/model"
)

// Target names where an invocation should be routed.
type Target string

const (
	TargetLocalTools Target = "local-tools"
	TargetHandoff    Target = "handoff"
	TargetBanking    Target = "banking-backend"
)

// Spec describes one registered tool.
type Spec struct {
	Name        string
	Description string
	Target      Target
	// Schema is the tool's declared JSON-shape input schema. May be nil,
	// in which case no shape validation is performed beyond JSON parsing.
	Schema *jsonschema.Schema
	// Document is the raw schema document Schema was compiled from, kept
	// alongside it so the tool's shape can be advertised to the LLM
	// without recompiling or losing the original JSON.
	Document json.RawMessage
}

// Registry holds every globally-registered tool spec.
type Registry struct {
	mu    sync.RWMutex
	specs map[string]Spec
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{specs: make(map[string]Spec)}
}

// Register adds or replaces a tool spec by name.
func (r *Registry) Register(spec Spec) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.specs[spec.Name] = spec
}

// Get looks up a tool spec by name.
func (r *Registry) Get(name string) (Spec, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.specs[name]
	return s, ok
}

// AllowedFor returns the intersection of globally-registered tools with a
// persona's allow-list (§4.2).
func (r *Registry) AllowedFor(persona *model.Persona) map[string]struct{} {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]struct{})
	for name := range r.specs {
		if persona.AllowsTool(name) {
			out[name] = struct{}{}
		}
	}
	return out
}

// CompileSchema compiles a JSON-schema document for use as a Spec.Schema.
func CompileSchema(name string, document json.RawMessage) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(name+".json", bytesReader(document)); err != nil {
		return nil, fmt.Errorf("tools: add schema resource %s: %w", name, err)
	}
	schema, err := compiler.Compile(name + ".json")
	if err != nil {
		return nil, fmt.Errorf("tools: compile schema %s: %w", name, err)
	}
	return schema, nil
}

// Definitions returns the registered specs allowed for persona, in a shape
// the LLM client can offer to the model as callable tools.
func (r *Registry) Definitions(persona *model.Persona) []Spec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Spec, 0, len(r.specs))
	for name, spec := range r.specs {
		if persona.AllowsTool(name) {
			out = append(out, spec)
		}
	}
	return out
}

// IsHandoffTool reports whether name matches the handoff naming convention
// (delegated to internal/handoff so the rule lives in exactly one place).
func IsHandoffTool(name string) bool {
	_, ok := handoff.TargetAgentFromToolName(name)
	return ok
}
