// Package config defines the mcpml.yaml configuration model and its loading
// and validation rules.
package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/caarlos0/env/v9"
	"gopkg.in/yaml.v3"

	"github.com/a5c-ai/mcpml/internal/errs"
)

// Tool types.
const (
	ToolTypeFunction = "function"
	ToolTypeAgent    = "agent"
)

// Defaults applied when the YAML omits a value.
const (
	DefaultHost        = "0.0.0.0"
	DefaultPort        = 8000
	DefaultLogLevel    = "info"
	DefaultEnvFile     = ".env"
	DefaultModel       = "gpt-4o"
	DefaultMaxTurns    = 10
	DefaultMCPTimeout  = 15 * time.Second
	DefaultToolTimeout = 30 * time.Second
)

var paramTypes = []string{"string", "integer", "number", "boolean", "array", "object"}

// ServerSettings holds the listen address for HTTP-based transports.
type ServerSettings struct {
	Host string `yaml:"host" env:"HOST"`
	Port int    `yaml:"port" env:"PORT"`
}

// Settings holds application-level settings.
type Settings struct {
	Server      ServerSettings `yaml:"server"`
	LogLevel    string         `yaml:"log_level" env:"LOG_LEVEL"`
	EnvFile     string         `yaml:"env_file" env:"ENV_FILE"`
	MCPTimeout  time.Duration  `yaml:"mcp_timeout" env:"MCP_TIMEOUT"`
	ToolTimeout time.Duration  `yaml:"tool_timeout" env:"TOOL_TIMEOUT"`
}

// MCPServer describes an upstream MCP server, either a stdio subprocess
// (command + args) or a remote endpoint (url).
type MCPServer struct {
	Name        string            `yaml:"name"`
	Description string            `yaml:"description"`
	Type        string            `yaml:"type"`
	Command     string            `yaml:"command"`
	Args        []string          `yaml:"args"`
	Env         map[string]string `yaml:"env"`
	URL         string            `yaml:"url"`
}

// Parameter declares a single tool argument.
type Parameter struct {
	Name        string `yaml:"name"`
	Type        string `yaml:"type"`
	Description string `yaml:"description"`
	Required    *bool  `yaml:"required"`
	Default     any    `yaml:"default"`
}

// IsRequired reports whether the parameter must be supplied by the caller.
// Parameters are required unless declared otherwise, matching the mcpml.yaml
// format.
func (p Parameter) IsRequired() bool {
	return p.Required == nil || *p.Required
}

// Tool describes a single tool entry.
//
// Function tools execute an embedded script named by Implementation (or the
// inline Code block). Agent tools delegate to an LLM loop configured by
// AgentType, Model, Instructions, MaxTurns and the MCPServers/Tools subsets.
type Tool struct {
	Name        string      `yaml:"name"`
	Type        string      `yaml:"type"`
	Description string      `yaml:"description"`
	Parameters  []Parameter `yaml:"parameters"`

	// Function tools.
	Implementation string `yaml:"implementation"`
	Code           string `yaml:"code"`
	Engine         string `yaml:"engine"`

	// Agent tools.
	AgentType    string `yaml:"agent_type"`
	Model        string `yaml:"model"`
	Instructions string `yaml:"instructions"`
	MaxTurns     int    `yaml:"max_turns"`

	// MCPServers and Tools restrict what an agent tool can reach. A nil
	// slice means "everything configured", an empty slice means "nothing",
	// and a non-empty slice names an explicit subset. The distinction
	// between absent and empty must survive YAML decoding, hence the
	// pointer-free nil/empty convention below.
	MCPServers []string `yaml:"mcp_servers"`
	Tools      []string `yaml:"tools"`

	OutputSchema string `yaml:"output_schema"`
}

// IsFunction reports whether the tool is script-backed.
func (t Tool) IsFunction() bool { return t.Type == ToolTypeFunction }

// IsAgent reports whether the tool is LLM-backed.
func (t Tool) IsAgent() bool { return t.Type == ToolTypeAgent }

// Config is the root of an mcpml.yaml document.
type Config struct {
	Name       string      `yaml:"name"`
	Settings   Settings    `yaml:"settings"`
	MCPServers []MCPServer `yaml:"mcpServers"`
	Tools      []Tool      `yaml:"tools"`

	// Dir is the directory the config was loaded from. Relative paths in
	// the config (implementations, schemas, env_file) resolve against it.
	Dir string `yaml:"-" env:"-"`
}

// Tool returns the tool with the given name.
func (c *Config) Tool(name string) (Tool, bool) {
	for _, t := range c.Tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}

// Server returns the MCP server with the given name.
func (c *Config) Server(name string) (MCPServer, bool) {
	for _, s := range c.MCPServers {
		if s.Name == name {
			return s, true
		}
	}
	return MCPServer{}, false
}

// ServersFor resolves the upstream servers visible to an agent tool: nil
// means all configured servers, an empty list means none, and anything else
// is an explicit subset.
func (c *Config) ServersFor(t Tool) []MCPServer {
	if t.MCPServers == nil {
		return c.MCPServers
	}
	out := make([]MCPServer, 0, len(t.MCPServers))
	for _, s := range c.MCPServers {
		if slices.Contains(t.MCPServers, s.Name) {
			out = append(out, s)
		}
	}
	return out
}

// ToolsFor resolves the sub-tools visible to an agent tool. The tool itself
// is never included.
func (c *Config) ToolsFor(t Tool) []Tool {
	out := make([]Tool, 0, len(c.Tools))
	for _, other := range c.Tools {
		if other.Name == t.Name {
			continue
		}
		if t.Tools == nil || slices.Contains(t.Tools, other.Name) {
			out = append(out, other)
		}
	}
	return out
}

// Parse decodes and validates an mcpml.yaml document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, errs.Wrap(err, "Could not parse mcpml.yaml.")
	}
	applyDefaults(&c)
	if err := env.ParseWithOptions(&c.Settings, env.Options{Prefix: "MCPML_"}); err != nil {
		return nil, errs.Wrap(err, "Could not parse environment into settings.")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Settings.Server.Host == "" {
		c.Settings.Server.Host = DefaultHost
	}
	if c.Settings.Server.Port == 0 {
		c.Settings.Server.Port = DefaultPort
	}
	if c.Settings.LogLevel == "" {
		c.Settings.LogLevel = DefaultLogLevel
	}
	if c.Settings.EnvFile == "" {
		c.Settings.EnvFile = DefaultEnvFile
	}
	if c.Settings.MCPTimeout == 0 {
		c.Settings.MCPTimeout = DefaultMCPTimeout
	}
	if c.Settings.ToolTimeout == 0 {
		c.Settings.ToolTimeout = DefaultToolTimeout
	}
	for i := range c.Tools {
		if c.Tools[i].Type == "" {
			c.Tools[i].Type = ToolTypeFunction
		}
		if c.Tools[i].IsAgent() && c.Tools[i].MaxTurns == 0 {
			c.Tools[i].MaxTurns = DefaultMaxTurns
		}
	}
}

// Validate checks cross-references and per-entry invariants. It returns the
// first problem found so startup failures point at one actionable issue.
func (c *Config) Validate() error {
	if c.Name == "" {
		return errs.Error{Reason: "Configuration is missing a name."}
	}

	serverNames := make(map[string]bool, len(c.MCPServers))
	for _, s := range c.MCPServers {
		if s.Name == "" {
			return errs.Error{Reason: "Every mcpServers entry needs a name."}
		}
		if serverNames[s.Name] {
			return errs.Error{Reason: fmt.Sprintf("Duplicate MCP server name %q.", s.Name)}
		}
		serverNames[s.Name] = true
		if s.Command == "" && s.URL == "" {
			return errs.Error{Reason: fmt.Sprintf("MCP server %q needs either a command or a url.", s.Name)}
		}
		switch s.Type {
		case "", "stdio", "sse", "http":
		default:
			return errs.Error{Reason: fmt.Sprintf("MCP server %q has unsupported type %q; supported types are: stdio, sse, http.", s.Name, s.Type)}
		}
	}

	toolNames := make(map[string]bool, len(c.Tools))
	for _, t := range c.Tools {
		if t.Name == "" {
			return errs.Error{Reason: "Every tools entry needs a name."}
		}
		if toolNames[t.Name] {
			return errs.Error{Reason: fmt.Sprintf("Duplicate tool name %q.", t.Name)}
		}
		toolNames[t.Name] = true
		if err := validateTool(t); err != nil {
			return err
		}
	}

	// Cross-references can only be checked once both maps are complete.
	for _, t := range c.Tools {
		for _, ref := range t.MCPServers {
			if !serverNames[ref] {
				return errs.Error{Reason: fmt.Sprintf("Tool %q references unknown MCP server %q.", t.Name, ref)}
			}
		}
		for _, ref := range t.Tools {
			if !toolNames[ref] {
				return errs.Error{Reason: fmt.Sprintf("Tool %q references unknown tool %q.", t.Name, ref)}
			}
			if ref == t.Name {
				return errs.Error{Reason: fmt.Sprintf("Tool %q cannot reference itself.", t.Name)}
			}
		}
	}

	return nil
}

func validateTool(t Tool) error {
	switch t.Type {
	case ToolTypeFunction:
		if t.Implementation == "" && t.Code == "" {
			return errs.Error{Reason: fmt.Sprintf("Function tool %q needs an implementation or inline code.", t.Name)}
		}
		if t.Implementation != "" && t.Code != "" {
			return errs.Error{Reason: fmt.Sprintf("Function tool %q has both an implementation and inline code; pick one.", t.Name)}
		}
	case ToolTypeAgent:
		if t.Instructions == "" {
			return errs.Error{Reason: fmt.Sprintf("Agent tool %q needs instructions.", t.Name)}
		}
	default:
		return errs.Error{Reason: fmt.Sprintf("Tool %q has unknown type %q; supported types are: function, agent.", t.Name, t.Type)}
	}

	for _, p := range t.Parameters {
		if p.Name == "" {
			return errs.Error{Reason: fmt.Sprintf("Tool %q has a parameter without a name.", t.Name)}
		}
		if p.Type != "" && !slices.Contains(paramTypes, p.Type) {
			return errs.Error{
				Reason: fmt.Sprintf("Tool %q parameter %q has unsupported type %q; supported types are: %s.",
					t.Name, p.Name, p.Type, strings.Join(paramTypes, ", ")),
			}
		}
	}
	return nil
}
