// Package registry owns the set of tools a config exposes. It compiles
// function scripts and output schemas at startup, derives MCP input schemas
// from declared parameters, and dispatches calls to the right backend.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/a5c-ai/mcpml/internal/config"
	"github.com/a5c-ai/mcpml/internal/errs"
	"github.com/a5c-ai/mcpml/internal/script"
)

// AgentRunner executes an agent tool. It is implemented by the agent package
// and injected after construction to keep the dependency one-way.
type AgentRunner interface {
	Run(ctx context.Context, tool config.Tool, input string) (string, error)
}

// Registry holds the ready-to-call tools of a loaded config.
type Registry struct {
	cfg       *config.Config
	functions map[string]*script.Function
	schemas   map[string]*gojsonschema.Schema
	agents    AgentRunner
}

// New compiles every tool in the config. Script compilation errors and
// unreadable output schemas fail here, before anything is served.
func New(cfg *config.Config) (*Registry, error) {
	r := &Registry{
		cfg:       cfg,
		functions: make(map[string]*script.Function),
		schemas:   make(map[string]*gojsonschema.Schema),
	}

	for _, tool := range cfg.Tools {
		if tool.IsFunction() {
			fn, err := script.Compile(cfg, tool)
			if err != nil {
				return nil, err
			}
			r.functions[tool.Name] = fn
		}
		if tool.OutputSchema != "" {
			schema, err := loadOutputSchema(cfg, tool)
			if err != nil {
				return nil, err
			}
			r.schemas[tool.Name] = schema
		}
	}
	return r, nil
}

// SetAgentRunner injects the agent backend. Without one, calling an agent
// tool returns an error.
func (r *Registry) SetAgentRunner(a AgentRunner) {
	r.agents = a
}

// Config returns the config the registry was built from.
func (r *Registry) Config() *config.Config {
	return r.cfg
}

// Tools lists the configured tools in declaration order.
func (r *Registry) Tools() []config.Tool {
	return r.cfg.Tools
}

// Function returns the compiled script behind a function tool.
func (r *Registry) Function(name string) (*script.Function, bool) {
	fn, ok := r.functions[name]
	return fn, ok
}

// HasOutputSchema reports whether a tool validates its results.
func (r *Registry) HasOutputSchema(name string) bool {
	_, ok := r.schemas[name]
	return ok
}

// Call dispatches a tool call and validates the result against the tool's
// output schema, if it has one.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (any, error) {
	tool, ok := r.cfg.Tool(name)
	if !ok {
		return nil, errs.Error{Reason: fmt.Sprintf("Unknown tool %q.", name)}
	}

	if args == nil {
		args = map[string]any{}
	}
	for _, p := range tool.Parameters {
		if p.Default == nil {
			continue
		}
		if _, set := args[p.Name]; !set {
			args[p.Name] = p.Default
		}
	}

	var result any
	var err error
	switch {
	case tool.IsFunction():
		result, err = r.functions[name].Call(ctx, args)
	case tool.IsAgent():
		if r.agents == nil {
			return nil, errs.Error{Reason: fmt.Sprintf("Agent tool %q cannot run: no model credentials configured.", name)}
		}
		var input string
		if v, ok := args["input"]; ok {
			input = fmt.Sprint(v)
		}
		result, err = r.agents.Run(ctx, tool, input)
	default:
		return nil, errs.Error{Reason: fmt.Sprintf("Tool %q has unknown type %q.", name, tool.Type)}
	}
	if err != nil {
		return nil, err
	}

	if schema, ok := r.schemas[name]; ok {
		if err := validateOutput(schema, tool.Name, result); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// InputSchema derives the MCP input schema for a tool. Agent tools always
// take a single required "input" string; function tools expose their
// declared parameters.
func (r *Registry) InputSchema(tool config.Tool) (properties map[string]any, required []string) {
	if tool.IsAgent() {
		return map[string]any{
			"input": map[string]any{
				"type":        "string",
				"description": "The request to hand to the agent.",
			},
		}, []string{"input"}
	}

	properties = make(map[string]any, len(tool.Parameters))
	for _, p := range tool.Parameters {
		prop := map[string]any{}
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		prop["type"] = typ
		if p.Description != "" {
			prop["description"] = p.Description
		}
		if p.Default != nil {
			prop["default"] = p.Default
		}
		properties[p.Name] = prop
		if p.IsRequired() {
			required = append(required, p.Name)
		}
	}
	return properties, required
}

func loadOutputSchema(cfg *config.Config, tool config.Tool) (*gojsonschema.Schema, error) {
	path := cfg.Resolve(tool.OutputSchema)
	loader := gojsonschema.NewReferenceLoader("file://" + path)
	schema, err := gojsonschema.NewSchema(loader)
	if err != nil {
		return nil, errs.Wrapf(err, "Could not load output schema %s for tool %q.", path, tool.Name)
	}
	return schema, nil
}

// validateOutput checks a tool result against its schema. String results
// are parsed as JSON first, since agents return text.
func validateOutput(schema *gojsonschema.Schema, name string, result any) error {
	doc := result
	if s, ok := result.(string); ok {
		var parsed any
		if err := json.Unmarshal([]byte(s), &parsed); err != nil {
			return errs.Wrapf(err, "Tool %q output is not valid JSON for its output schema.", name)
		}
		doc = parsed
	}

	res, err := schema.Validate(gojsonschema.NewGoLoader(doc))
	if err != nil {
		return errs.Wrapf(err, "Could not validate output of tool %q.", name)
	}
	if !res.Valid() {
		var sb strings.Builder
		for i, desc := range res.Errors() {
			if i > 0 {
				sb.WriteString("; ")
			}
			sb.WriteString(desc.String())
		}
		return errs.Error{Reason: fmt.Sprintf("Tool %q output does not match its schema: %s.", name, sb.String())}
	}
	return nil
}
