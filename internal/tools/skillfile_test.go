package tools

import (
	"encoding/json"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/hearthfire/hearth/pkg/models"
)

const sampleSkill = `---
name: greet
description: Greets the caller by name
runtime: bash
parameters:
  type: object
  properties:
    name:
      type: string
  required:
    - name
policy: allow
sandbox: false
network: false
timeout_secs: 10
---
printf 'hello %s' "$name"
`

func TestParseSkill(t *testing.T) {
	def, err := ParseSkill([]byte(sampleSkill))
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if def.Name != "greet" || def.Runtime != models.RuntimeBash {
		t.Fatalf("unexpected definition: %+v", def)
	}
	if def.Policy != models.PolicyAllow || def.TimeoutSecs != 10 {
		t.Fatalf("unexpected policy/timeout: %+v", def)
	}
	if def.Body != `printf 'hello %s' "$name"` {
		t.Fatalf("unexpected body: %q", def.Body)
	}

	var schema map[string]any
	if err := json.Unmarshal(def.Parameters, &schema); err != nil {
		t.Fatalf("parameters not valid JSON: %v", err)
	}
	if schema["type"] != "object" {
		t.Fatalf("unexpected schema: %v", schema)
	}
}

func TestParseSkillDefaults(t *testing.T) {
	content := `---
name: minimal
description: Minimal skill
runtime: bash
---
true
`
	def, err := ParseSkill([]byte(content))
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}
	if def.Policy != models.PolicyAllow {
		t.Fatalf("expected default allow policy, got %s", def.Policy)
	}
	if def.TimeoutSecs != 30 {
		t.Fatalf("expected default timeout 30, got %d", def.TimeoutSecs)
	}
}

func TestParseSkillRejectsMalformed(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"no frontmatter", "just a body"},
		{"unclosed frontmatter", "---\nname: x\n"},
		{"empty name", "---\nname: \"\"\ndescription: d\nruntime: bash\n---\nbody"},
		{"bad runtime", "---\nname: x\ndescription: d\nruntime: cobol\n---\nbody"},
		{"timeout too large", "---\nname: x\ndescription: d\nruntime: bash\ntimeout_secs: 9999\n---\nbody"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseSkill([]byte(tt.content)); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}
}

func TestSkillFileRoundTrip(t *testing.T) {
	original, err := ParseSkill([]byte(sampleSkill))
	if err != nil {
		t.Fatalf("ParseSkill() error = %v", err)
	}

	encoded, err := EncodeSkillFile(original)
	if err != nil {
		t.Fatalf("EncodeSkillFile() error = %v", err)
	}
	reloaded, err := ParseSkill(encoded)
	if err != nil {
		t.Fatalf("ParseSkill(encoded) error = %v", err)
	}

	// Parameters survive as semantically equal JSON.
	var wantParams, gotParams map[string]any
	json.Unmarshal(original.Parameters, &wantParams)
	json.Unmarshal(reloaded.Parameters, &gotParams)
	if !reflect.DeepEqual(wantParams, gotParams) {
		t.Fatalf("parameters diverged: %v != %v", gotParams, wantParams)
	}

	original.Parameters, reloaded.Parameters = nil, nil
	if !reflect.DeepEqual(original, reloaded) {
		t.Fatalf("round-trip diverged:\n got %+v\nwant %+v", reloaded, original)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "greet.skill.md"), []byte(sampleSkill), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, "broken.skill.md"), []byte("no frontmatter"), 0o644); err != nil {
		t.Fatal(err)
	}

	registry := NewRegistry()
	failures := LoadDir(dir, registry)

	if _, ok := registry.Get("greet"); !ok {
		t.Fatal("expected greet to register")
	}
	if len(failures) != 1 {
		t.Fatalf("expected one failure, got %v", failures)
	}
}

func TestSaveAndRemoveFromDir(t *testing.T) {
	dir := t.TempDir()
	def, err := ParseSkill([]byte(sampleSkill))
	if err != nil {
		t.Fatal(err)
	}

	if err := SaveToDir(dir, def); err != nil {
		t.Fatalf("SaveToDir() error = %v", err)
	}
	reloaded, err := ParseSkillFile(SkillPath(dir, "greet"))
	if err != nil {
		t.Fatalf("ParseSkillFile() error = %v", err)
	}
	if reloaded.Name != "greet" {
		t.Fatalf("unexpected reloaded definition: %+v", reloaded)
	}

	if err := RemoveFromDir(dir, "greet"); err != nil {
		t.Fatalf("RemoveFromDir() error = %v", err)
	}
	// removing again stays idempotent
	if err := RemoveFromDir(dir, "greet"); err != nil {
		t.Fatalf("RemoveFromDir() second call error = %v", err)
	}
}
