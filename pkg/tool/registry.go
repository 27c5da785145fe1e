package tool

import (
	"encoding/json"
	"sort"
	"sync"

	"github.com/localrt/llmcore/pkg/kernel"
	"github.com/localrt/llmcore/pkg/llmerr"
	"github.com/santhosh-tekuri/jsonschema/v6"
)

// Registry holds every tool available to a chat worker's turns. A Registry
// is built once per worker and read concurrently by the worker goroutine
// and by BuildGrammar callers; mutation (Register) is expected to happen
// during setup, before the worker starts its loop.
type Registry struct {
	mu        sync.RWMutex
	byName    map[string]compiled
	validated map[string]*jsonschema.Schema
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		byName:    make(map[string]compiled),
		validated: make(map[string]*jsonschema.Schema),
	}
}

// Register validates t's schema against the supported subset, compiles its
// jsonschema validator, and synthesizes its GBNF "arguments" rule. Returns
// InvalidTool for anything outside the subset (spec §4.2).
func (r *Registry) Register(t Tool) error {
	if t.Name == "" {
		return &llmerr.InvalidTool{Reason: "tool name must not be empty"}
	}

	schemaJSON, err := buildSchema(t)
	if err != nil {
		return err
	}

	validator, err := compileValidator(t.Name, schemaJSON)
	if err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byName[t.Name]; exists {
		return &llmerr.InvalidTool{ToolName: t.Name, Reason: "a tool with this name is already registered"}
	}
	r.byName[t.Name] = compiled{tool: t, schemaJSON: schemaJSON, gbnfRule: schemaToGBNF(schemaJSON)}
	r.validated[t.Name] = validator
	return nil
}

// Get returns the tool registered under name, if any.
func (r *Registry) Get(name string) (Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.byName[name]
	return c.tool, ok
}

// Descriptors returns every registered tool's kernel.ToolDescriptor, in a
// stable (name-sorted) order, for RenderTemplate to present to the chat
// template.
func (r *Registry) Descriptors() []kernel.ToolDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]kernel.ToolDescriptor, 0, len(names))
	for _, name := range names {
		out = append(out, r.byName[name].Descriptor())
	}
	return out
}

// ValidateArguments checks a parsed tool-call's arguments against the
// named tool's compiled schema. Returns InvalidTool if name isn't
// registered (spec's "unregistered tool name" edge case — the chat worker
// checks the name with Get before invoking and ends the turn with
// GrammarDeadEnd; a caller that invokes an unknown name directly gets
// InvalidTool here instead).
func (r *Registry) ValidateArguments(name string, arguments map[string]interface{}) error {
	r.mu.RLock()
	validator, ok := r.validated[name]
	r.mu.RUnlock()
	if !ok {
		return &llmerr.InvalidTool{ToolName: name, Reason: "no tool registered with this name"}
	}

	// jsonschema validates against decoded JSON values (float64 for numbers,
	// not Go ints); round-trip through json to normalize arguments the same
	// way a call parsed fresh off the wire would already be typed.
	normalized, err := normalizeViaJSON(arguments)
	if err != nil {
		return &llmerr.InvalidTool{ToolName: name, Reason: "arguments not JSON-representable: " + err.Error()}
	}

	if err := validator.Validate(normalized); err != nil {
		return &llmerr.InvalidTool{ToolName: name, Reason: "arguments failed schema validation: " + err.Error()}
	}
	return nil
}

func normalizeViaJSON(v interface{}) (interface{}, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out interface{}
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}
