package models

import (
	"strings"
	"testing"
)

func TestValidateName(t *testing.T) {
	valid := []string{"echo", "my-tool", "tool_2", "A", strings.Repeat("a", 100)}
	for _, name := range valid {
		if !ValidateName(name) {
			t.Errorf("ValidateName(%q) = false, want true", name)
		}
	}

	invalid := []string{"", "has space", "dot.name", "emoji✨", strings.Repeat("a", 101)}
	for _, name := range invalid {
		if ValidateName(name) {
			t.Errorf("ValidateName(%q) = true, want false", name)
		}
	}
}

func TestToolDefinitionValidate(t *testing.T) {
	base := func() ToolDefinition {
		return ToolDefinition{
			Name:        "echo",
			Description: "echoes",
			Runtime:     RuntimeBash,
			Policy:      PolicyAllow,
			TimeoutSecs: 30,
		}
	}

	valid := base()
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid definition rejected: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*ToolDefinition)
	}{
		{"empty description", func(d *ToolDefinition) { d.Description = "" }},
		{"unknown runtime", func(d *ToolDefinition) { d.Runtime = "cobol" }},
		{"missing policy", func(d *ToolDefinition) { d.Policy = "" }},
		{"unknown policy", func(d *ToolDefinition) { d.Policy = "maybe" }},
		{"timeout zero", func(d *ToolDefinition) { d.TimeoutSecs = 0 }},
		{"timeout too large", func(d *ToolDefinition) { d.TimeoutSecs = 3601 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			def := base()
			tt.mutate(&def)
			if err := def.Validate(); err == nil {
				t.Fatalf("expected error for %s", tt.name)
			}
		})
	}

	boundary := base()
	boundary.TimeoutSecs = 3600
	if err := boundary.Validate(); err != nil {
		t.Fatalf("timeout 3600 rejected: %v", err)
	}
}
