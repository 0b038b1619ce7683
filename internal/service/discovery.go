package service

import (
	"log/slog"
	"sync"

	"github.com/flapi-dev/flapi/internal/domain/endpoint"
)

// ToolDefinition is the tools/list projection of a tool endpoint.
type ToolDefinition struct {
	Name        string      `json:"name"`
	Description string      `json:"description,omitempty"`
	InputSchema InputSchema `json:"inputSchema"`
}

// InputSchema is a JSON-Schema-shaped description of a tool's inputs.
// Every declared request field becomes a string property.
type InputSchema struct {
	Type       string                    `json:"type"`
	Properties map[string]SchemaProperty `json:"properties"`
	Required   []string                  `json:"required,omitempty"`
}

// SchemaProperty describes one input field.
type SchemaProperty struct {
	Type        string   `json:"type"`
	Description string   `json:"description,omitempty"`
	Enum        []string `json:"enum,omitempty"`
}

// ResourceDefinition is the resources/list projection of a resource endpoint.
type ResourceDefinition struct {
	URI         string `json:"uri"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
}

// PromptArgument describes one declared prompt argument.
type PromptArgument struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// PromptDefinition is the prompts/list projection of a prompt endpoint.
type PromptDefinition struct {
	Name        string           `json:"name"`
	Description string           `json:"description,omitempty"`
	Arguments   []PromptArgument `json:"arguments"`
}

// ResourceURIScheme prefixes every resource URI exposed to clients.
const ResourceURIScheme = "flapi://"

// Discovery projects endpoint configuration into the tool, resource,
// and prompt registries served by the list methods. The registry is
// rebuilt wholesale on each Discover call and swapped under the lock,
// so readers never observe a half-rebuilt view.
type Discovery struct {
	repo   endpoint.Repository
	logger *slog.Logger

	mu        sync.RWMutex
	tools     []ToolDefinition
	resources []ResourceDefinition
	prompts   []PromptDefinition
}

// NewDiscovery creates a Discovery over the given endpoint repository.
func NewDiscovery(repo endpoint.Repository, logger *slog.Logger) *Discovery {
	if logger == nil {
		logger = slog.Default()
	}
	return &Discovery{repo: repo, logger: logger}
}

// Discover rebuilds the registries from the current endpoint
// configuration. Safe to call again after a configuration reload; an
// empty configuration yields empty registries, not an error.
func (d *Discovery) Discover() {
	endpoints := d.repo.List()

	tools := make([]ToolDefinition, 0)
	resources := make([]ResourceDefinition, 0)
	prompts := make([]PromptDefinition, 0)

	for i := range endpoints {
		ep := &endpoints[i]
		if ep.IsMCPTool() {
			tools = append(tools, toolDefinition(ep))
		}
		if ep.IsMCPResource() {
			resources = append(resources, ResourceDefinition{
				URI:         ResourceURIScheme + ep.Resource.Name,
				Name:        ep.Resource.Name,
				Description: ep.Resource.Description,
				MimeType:    ep.Resource.MimeType,
			})
		}
		if ep.IsMCPPrompt() {
			prompts = append(prompts, promptDefinition(ep))
		}
	}

	d.mu.Lock()
	d.tools = tools
	d.resources = resources
	d.prompts = prompts
	d.mu.Unlock()

	d.logger.Info("discovered mcp entities",
		"tools", len(tools), "resources", len(resources), "prompts", len(prompts))
}

func toolDefinition(ep *endpoint.Endpoint) ToolDefinition {
	schema := InputSchema{
		Type:       "object",
		Properties: make(map[string]SchemaProperty, len(ep.RequestFields)),
	}
	for i := range ep.RequestFields {
		f := &ep.RequestFields[i]
		prop := SchemaProperty{Type: "string", Description: f.Description}
		if ev := f.EnumValidator(); ev != nil {
			prop.Enum = append([]string(nil), ev.AllowedValues...)
		}
		schema.Properties[f.Name] = prop
		if f.Required {
			schema.Required = append(schema.Required, f.Name)
		}
	}
	return ToolDefinition{
		Name:        ep.Tool.Name,
		Description: ep.Tool.Description,
		InputSchema: schema,
	}
}

func promptDefinition(ep *endpoint.Endpoint) PromptDefinition {
	args := make([]PromptArgument, len(ep.Prompt.Arguments))
	for i, name := range ep.Prompt.Arguments {
		args[i] = PromptArgument{
			Name:        name,
			Type:        "string",
			Description: "Parameter " + name,
		}
	}
	return PromptDefinition{
		Name:        ep.Prompt.Name,
		Description: ep.Prompt.Description,
		Arguments:   args,
	}
}

// Tools returns a copy of the tool registry. Never nil, so list
// results always encode as JSON arrays.
func (d *Discovery) Tools() []ToolDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ToolDefinition, len(d.tools))
	copy(out, d.tools)
	return out
}

// Resources returns a copy of the resource registry.
func (d *Discovery) Resources() []ResourceDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]ResourceDefinition, len(d.resources))
	copy(out, d.resources)
	return out
}

// Prompts returns a copy of the prompt registry.
func (d *Discovery) Prompts() []PromptDefinition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]PromptDefinition, len(d.prompts))
	copy(out, d.prompts)
	return out
}

// Counts reports registry sizes for the health endpoint.
func (d *Discovery) Counts() (tools, resources, prompts int) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.tools), len(d.resources), len(d.prompts)
}
