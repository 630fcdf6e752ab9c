package models

import (
	"encoding/json"
	"fmt"
	"regexp"
)

// Runtime selects how a tool body is executed.
type Runtime string

const (
	RuntimeBuiltin Runtime = "builtin"
	RuntimeBash    Runtime = "bash"
	RuntimePython  Runtime = "python"
	RuntimeWasm    Runtime = "wasm"
)

// PolicyLevel is a tool's access-control tag.
type PolicyLevel string

const (
	PolicyAllow    PolicyLevel = "allow"
	PolicyDeny     PolicyLevel = "deny"
	PolicyElevated PolicyLevel = "elevated"
)

// ToolSource records where a definition came from. Built-in and plugin
// entries are immutable; only user entries can be removed at runtime.
type ToolSource string

const (
	SourceBuiltin ToolSource = "builtin"
	SourceUser    ToolSource = "user"
	SourcePlugin  ToolSource = "plugin"
)

// Tool definition limits.
const (
	MaxToolNameLength = 100
	MinTimeoutSecs    = 1
	MaxTimeoutSecs    = 3600
)

var toolNamePattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// ToolDefinition describes one callable tool, regardless of source.
// For wasm runtimes Body is a module path rather than script source.
type ToolDefinition struct {
	Name        string          `json:"name" yaml:"name"`
	Description string          `json:"description" yaml:"description"`
	Parameters  json.RawMessage `json:"parameters" yaml:"parameters"`
	Runtime     Runtime         `json:"runtime" yaml:"runtime"`
	Body        string          `json:"body,omitempty" yaml:"-"`
	Policy      PolicyLevel     `json:"policy" yaml:"policy"`
	Sandbox     bool            `json:"sandbox" yaml:"sandbox"`
	Network     bool            `json:"network" yaml:"network"`
	TimeoutSecs int             `json:"timeout_secs" yaml:"timeout_secs"`
	Category    string          `json:"category,omitempty" yaml:"-"`
	Source      ToolSource      `json:"source,omitempty" yaml:"-"`
}

// ValidateName reports whether name satisfies the tool naming rule.
func ValidateName(name string) bool {
	return toolNamePattern.MatchString(name)
}

// Validate checks the structural constraints shared by every authoring path.
func (d *ToolDefinition) Validate() error {
	if !ValidateName(d.Name) {
		return fmt.Errorf("invalid tool name %q: must match [A-Za-z0-9_-]{1,%d}", d.Name, MaxToolNameLength)
	}
	if d.Description == "" {
		return fmt.Errorf("tool %q: description is required", d.Name)
	}
	switch d.Runtime {
	case RuntimeBuiltin, RuntimeBash, RuntimePython, RuntimeWasm:
	default:
		return fmt.Errorf("tool %q: unknown runtime %q", d.Name, d.Runtime)
	}
	switch d.Policy {
	case PolicyAllow, PolicyDeny, PolicyElevated:
	case "":
		return fmt.Errorf("tool %q: policy is required", d.Name)
	default:
		return fmt.Errorf("tool %q: unknown policy %q", d.Name, d.Policy)
	}
	if d.TimeoutSecs < MinTimeoutSecs || d.TimeoutSecs > MaxTimeoutSecs {
		return fmt.Errorf("tool %q: timeout_secs must be between %d and %d", d.Name, MinTimeoutSecs, MaxTimeoutSecs)
	}
	return nil
}
