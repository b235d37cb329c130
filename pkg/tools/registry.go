package tools

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog/log"
	"github.com/xeipuuv/gojsonschema"

	"github.com/halim/aria/pkg/provider"
)

var (
	// ErrUnknownTool means the model asked for a tool that was never registered.
	ErrUnknownTool = errors.New("unknown tool")
	// ErrDuplicateTool means two tools claim the same name.
	ErrDuplicateTool = errors.New("tool already registered")
	// ErrInvalidArguments means the arguments failed schema validation.
	ErrInvalidArguments = errors.New("invalid tool arguments")
)

// Registry holds the registered tools and their compiled schemas. Safe for
// concurrent use; registration happens at startup, execution during turns.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]Tool
	schemas map[string]*gojsonschema.Schema
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		tools:   make(map[string]Tool),
		schemas: make(map[string]*gojsonschema.Schema),
	}
}

// Register adds a tool, compiling its argument schema once up front.
func (r *Registry) Register(t Tool) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := t.Name()
	if name == "" {
		return errors.New("tool name is required")
	}
	if _, exists := r.tools[name]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTool, name)
	}

	loader := gojsonschema.NewGoLoader(schemaOf(t))
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return fmt.Errorf("compile schema for %s: %w", name, err)
	}

	r.tools[name] = t
	r.schemas[name] = schema
	log.Debug().Str("tool", name).Msg("tool registered")
	return nil
}

// Names lists registered tool names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Specs returns the provider advertisements for all registered tools, in
// name order so the prompt is stable across runs.
func (r *Registry) Specs() []provider.ToolSpec {
	r.mu.RLock()
	defer r.mu.RUnlock()
	specs := make([]provider.ToolSpec, 0, len(r.tools))
	for _, t := range r.tools {
		specs = append(specs, SpecFor(t))
	}
	sort.Slice(specs, func(i, j int) bool { return specs[i].Name < specs[j].Name })
	return specs
}

// Execute validates the arguments and runs the named tool. Unknown names and
// schema violations come back as errors the caller reports to the model.
func (r *Registry) Execute(ctx context.Context, name string, args map[string]any) (string, error) {
	r.mu.RLock()
	tool, ok := r.tools[name]
	schema := r.schemas[name]
	r.mu.RUnlock()

	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownTool, name)
	}
	if args == nil {
		args = map[string]any{}
	}
	if err := validateArgs(schema, args); err != nil {
		return "", fmt.Errorf("%w for %s: %v", ErrInvalidArguments, name, err)
	}

	return tool.Execute(ctx, args)
}

func validateArgs(schema *gojsonschema.Schema, args map[string]any) error {
	if schema == nil {
		return nil
	}
	result, err := schema.Validate(gojsonschema.NewGoLoader(args))
	if err != nil {
		return err
	}
	if !result.Valid() {
		details := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			details = append(details, e.String())
		}
		return errors.New(strings.Join(details, "; "))
	}
	return nil
}
