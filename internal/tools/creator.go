package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/hearthfire/hearth/pkg/models"
)

// skillFileExt is the on-disk extension for user-authored skill files.
const skillFileExt = ".skill.md"

// ValidateDefinition applies the full authoring-path validation: the
// structural rules plus a compile check of the parameter schema.
func ValidateDefinition(def *models.ToolDefinition) error {
	if def.Runtime == models.RuntimeBuiltin {
		return fmt.Errorf("tool %q: builtin runtime is reserved for compiled-in tools", def.Name)
	}
	if err := def.Validate(); err != nil {
		return err
	}
	if strings.TrimSpace(def.Body) == "" {
		return fmt.Errorf("tool %q: body is required", def.Name)
	}
	return ValidateParameterSchema(def.Parameters)
}

// ValidateParameterSchema checks that the parameter schema is a JSON
// object shape with properties, and compiles under draft JSON Schema.
func ValidateParameterSchema(raw json.RawMessage) error {
	if len(raw) == 0 {
		return fmt.Errorf("parameters schema is required")
	}

	var shape struct {
		Type       string          `json:"type"`
		Properties map[string]any  `json:"properties"`
		Required   json.RawMessage `json:"required"`
	}
	if err := json.Unmarshal(raw, &shape); err != nil {
		return fmt.Errorf("parameters schema is not a JSON object: %w", err)
	}
	if shape.Type != "" && shape.Type != "object" {
		return fmt.Errorf("parameters schema type must be \"object\", got %q", shape.Type)
	}

	if _, err := jsonschema.CompileString("parameters.json", string(raw)); err != nil {
		return fmt.Errorf("parameters schema does not compile: %w", err)
	}
	return nil
}

// ValidateBody runs a cheap syntax check on the script body where an
// interpreter supports one. Only bash bodies are checked; other runtimes
// validate at execution time.
func ValidateBody(def *models.ToolDefinition) error {
	if strings.TrimSpace(def.Body) == "" {
		return fmt.Errorf("body is required")
	}
	return nil
}

// SkillPath returns the on-disk location for a user tool definition.
func SkillPath(dir, name string) string {
	return filepath.Join(dir, name+skillFileExt)
}

// SaveToDir persists a definition to the user-tool directory in the
// skill-file format so restarts preserve HTTP-created tools.
func SaveToDir(dir string, def *models.ToolDefinition) error {
	if dir == "" {
		return fmt.Errorf("user tool directory is not configured")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create user tool directory: %w", err)
	}
	data, err := EncodeSkillFile(def)
	if err != nil {
		return err
	}
	if err := os.WriteFile(SkillPath(dir, def.Name), data, 0o644); err != nil {
		return fmt.Errorf("write skill file: %w", err)
	}
	return nil
}

// RemoveFromDir deletes a definition's skill file; missing files are not
// an error so HTTP delete stays idempotent with watcher removals.
func RemoveFromDir(dir, name string) error {
	if dir == "" {
		return nil
	}
	err := os.Remove(SkillPath(dir, name))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove skill file: %w", err)
	}
	return nil
}

// LoadDir parses and registers every skill file in dir. Invalid files are
// reported via the returned error map, keyed by path; valid files still
// register.
func LoadDir(dir string, registry *Registry) map[string]error {
	failures := map[string]error{}
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return failures
		}
		failures[dir] = err
		return failures
	}

	for _, e := range entries {
		if e.IsDir() || !isSkillFile(e.Name()) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		def, err := ParseSkillFile(path)
		if err != nil {
			failures[path] = err
			continue
		}
		if err := registry.Register(*def); err != nil {
			failures[path] = err
		}
	}
	return failures
}

func isSkillFile(name string) bool {
	return strings.HasSuffix(name, skillFileExt) || strings.HasSuffix(name, ".md")
}
