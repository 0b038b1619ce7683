package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/flapi-dev/flapi/internal/domain/endpoint"
)

// endpointFile is the YAML schema of one endpoint file. The SQL template
// can be given inline (template-source) or as a path relative to the
// endpoint file (template-file).
type endpointFile struct {
	endpoint.Endpoint `yaml:",inline"`
	TemplateFile      string `yaml:"template-file,omitempty"`
}

// Store is the YAML-directory-backed endpoint repository. Endpoints are
// loaded once at startup; the slice is never mutated afterwards, so
// concurrent readers need no locking.
type Store struct {
	endpoints []endpoint.Endpoint
}

// LoadEndpoints reads every .yaml/.yml file in dir into an endpoint
// repository. Configuration errors are fatal: a bad endpoint file should
// stop the server, not silently drop the endpoint.
func LoadEndpoints(dir string) (*Store, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read endpoints directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := filepath.Ext(entry.Name())
		if ext == ".yaml" || ext == ".yml" {
			names = append(names, entry.Name())
		}
	}
	// Deterministic load order regardless of directory ordering.
	sort.Strings(names)

	store := &Store{}
	for _, name := range names {
		path := filepath.Join(dir, name)
		ep, err := loadEndpointFile(path)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		store.endpoints = append(store.endpoints, *ep)
	}

	if err := store.validate(); err != nil {
		return nil, err
	}
	return store, nil
}

func loadEndpointFile(path string) (*endpoint.Endpoint, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var file endpointFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("invalid YAML: %w", err)
	}

	ep := file.Endpoint
	if file.TemplateFile != "" {
		if ep.TemplateSource != "" {
			return nil, fmt.Errorf("template-source and template-file are mutually exclusive")
		}
		tmpl, err := os.ReadFile(filepath.Join(filepath.Dir(path), file.TemplateFile))
		if err != nil {
			return nil, fmt.Errorf("failed to read template file: %w", err)
		}
		ep.TemplateSource = string(tmpl)
	}

	if err := validateEndpoint(&ep); err != nil {
		return nil, err
	}
	return &ep, nil
}

// validate checks cross-endpoint constraints: no duplicate REST routes
// and no duplicate MCP entity names.
func (s *Store) validate() error {
	routes := make(map[string]string)
	entities := make(map[string]string)
	for i := range s.endpoints {
		ep := &s.endpoints[i]
		if ep.IsRESTEndpoint() {
			key := ep.Method + " " + ep.URLPath
			if prev, dup := routes[key]; dup {
				return fmt.Errorf("duplicate route %s (also defined by %s)", key, prev)
			}
			routes[key] = ep.URLPath
		}
		for _, name := range entityNames(ep) {
			if prev, dup := entities[name]; dup {
				return fmt.Errorf("duplicate MCP entity %q (also defined by %s)", name, prev)
			}
			entities[name] = name
		}
	}
	return nil
}

func entityNames(ep *endpoint.Endpoint) []string {
	var names []string
	if ep.IsMCPTool() {
		names = append(names, "tool:"+ep.Tool.Name)
	}
	if ep.IsMCPResource() {
		names = append(names, "resource:"+ep.Resource.Name)
	}
	if ep.IsMCPPrompt() {
		names = append(names, "prompt:"+ep.Prompt.Name)
	}
	return names
}

// List returns all configured endpoints.
func (s *Store) List() []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, len(s.endpoints))
	copy(out, s.endpoints)
	return out
}

// FindForRequest matches an inbound REST request by exact path and method.
func (s *Store) FindForRequest(path, method string) (*endpoint.Endpoint, error) {
	for i := range s.endpoints {
		ep := &s.endpoints[i]
		if ep.URLPath == path && strings.EqualFold(ep.Method, method) {
			return ep, nil
		}
	}
	return nil, endpoint.ErrEndpointNotFound
}

var _ endpoint.Repository = (*Store)(nil)
