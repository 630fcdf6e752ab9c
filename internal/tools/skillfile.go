package tools

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/hearthfire/hearth/pkg/models"
)

// FrontmatterDelimiter marks the beginning and end of the YAML manifest.
const FrontmatterDelimiter = "---"

// skillManifest is the YAML frontmatter of an on-disk skill file.
type skillManifest struct {
	Name        string         `yaml:"name"`
	Description string         `yaml:"description"`
	Runtime     string         `yaml:"runtime"`
	Parameters  map[string]any `yaml:"parameters"`
	Policy      string         `yaml:"policy"`
	Sandbox     bool           `yaml:"sandbox"`
	Network     bool           `yaml:"network"`
	TimeoutSecs int            `yaml:"timeout_secs"`
}

// ParseSkillFile parses a skill file from disk.
func ParseSkillFile(path string) (*models.ToolDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read skill file: %w", err)
	}
	return ParseSkill(data)
}

// ParseSkill parses skill-file content: a YAML frontmatter between ---
// delimiters followed by the script body.
func ParseSkill(data []byte) (*models.ToolDefinition, error) {
	frontmatter, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}

	var manifest skillManifest
	if err := yaml.Unmarshal(frontmatter, &manifest); err != nil {
		return nil, fmt.Errorf("parse frontmatter: %w", err)
	}

	params, err := json.Marshal(paramsOrDefault(manifest.Parameters))
	if err != nil {
		return nil, fmt.Errorf("encode parameters: %w", err)
	}

	def := &models.ToolDefinition{
		Name:        manifest.Name,
		Description: manifest.Description,
		Runtime:     models.Runtime(manifest.Runtime),
		Parameters:  params,
		Policy:      models.PolicyLevel(manifest.Policy),
		Sandbox:     manifest.Sandbox,
		Network:     manifest.Network,
		TimeoutSecs: manifest.TimeoutSecs,
		Body:        strings.TrimSpace(string(body)),
		Source:      models.SourceUser,
	}
	if def.Policy == "" {
		def.Policy = models.PolicyAllow
	}
	if def.TimeoutSecs == 0 {
		def.TimeoutSecs = 30
	}
	if err := def.Validate(); err != nil {
		return nil, err
	}
	return def, nil
}

// EncodeSkillFile serializes a definition back to the skill-file format.
// Parsing the output yields an equal definition.
func EncodeSkillFile(def *models.ToolDefinition) ([]byte, error) {
	var params map[string]any
	if len(def.Parameters) > 0 {
		if err := json.Unmarshal(def.Parameters, &params); err != nil {
			return nil, fmt.Errorf("decode parameters: %w", err)
		}
	}

	manifest := skillManifest{
		Name:        def.Name,
		Description: def.Description,
		Runtime:     string(def.Runtime),
		Parameters:  paramsOrDefault(params),
		Policy:      string(def.Policy),
		Sandbox:     def.Sandbox,
		Network:     def.Network,
		TimeoutSecs: def.TimeoutSecs,
	}

	var buf bytes.Buffer
	buf.WriteString(FrontmatterDelimiter + "\n")
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&manifest); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encode frontmatter: %w", err)
	}
	buf.WriteString(FrontmatterDelimiter + "\n")
	buf.WriteString(def.Body)
	buf.WriteString("\n")
	return buf.Bytes(), nil
}

func paramsOrDefault(params map[string]any) map[string]any {
	if params == nil {
		return map[string]any{
			"type":       "object",
			"properties": map[string]any{},
		}
	}
	return params
}

// splitFrontmatter separates the YAML manifest from the script body.
func splitFrontmatter(data []byte) ([]byte, []byte, error) {
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64<<10), 1<<20)

	if !scanner.Scan() {
		return nil, nil, fmt.Errorf("empty skill file")
	}
	if strings.TrimSpace(scanner.Text()) != FrontmatterDelimiter {
		return nil, nil, fmt.Errorf("missing opening frontmatter delimiter")
	}

	var frontmatterLines []string
	foundClosing := false
	for scanner.Scan() {
		line := scanner.Text()
		if strings.TrimSpace(line) == FrontmatterDelimiter {
			foundClosing = true
			break
		}
		frontmatterLines = append(frontmatterLines, line)
	}
	if !foundClosing {
		return nil, nil, fmt.Errorf("missing closing frontmatter delimiter")
	}

	var bodyLines []string
	for scanner.Scan() {
		bodyLines = append(bodyLines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, nil, fmt.Errorf("scan skill file: %w", err)
	}

	return []byte(strings.Join(frontmatterLines, "\n")), []byte(strings.Join(bodyLines, "\n")), nil
}
