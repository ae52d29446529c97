package engine

import (
	"sort"
	"sync"

	"github.com/anthropics/anthropic-sdk-go"

	"github.com/becomeliminal/aide-go/core"
)

// ToolRegistry holds the tools available to the engine.
type ToolRegistry struct {
	mu    sync.RWMutex
	tools map[string]core.Tool
}

// NewToolRegistry creates an empty registry.
func NewToolRegistry() *ToolRegistry {
	return &ToolRegistry{tools: map[string]core.Tool{}}
}

// Register adds tools to the registry, replacing any with the same name.
func (r *ToolRegistry) Register(tools ...core.Tool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range tools {
		r.tools[t.Name()] = t
	}
}

// Get returns the named tool.
func (r *ToolRegistry) Get(name string) (core.Tool, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tools[name]
	return t, ok
}

// Names returns the registered tool names, sorted.
func (r *ToolRegistry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ToAPITools converts the registry to Anthropic API tool definitions, in
// stable name order.
func (r *ToolRegistry) ToAPITools() []anthropic.ToolUnionParam {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]anthropic.ToolUnionParam, 0, len(names))
	for _, name := range names {
		t := r.tools[name]
		schema := t.InputSchema()

		inputSchema := anthropic.ToolInputSchemaParam{}
		if props, ok := schema["properties"]; ok {
			inputSchema.Properties = props
		}
		if required, ok := schema["required"]; ok {
			inputSchema.SetExtraFields(map[string]interface{}{"required": required})
		}

		out = append(out, anthropic.ToolUnionParam{
			OfTool: &anthropic.ToolParam{
				Name:        t.Name(),
				Description: anthropic.String(t.Description()),
				InputSchema: inputSchema,
			},
		})
	}
	return out
}
