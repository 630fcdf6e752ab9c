package tools

import (
	"strings"
	"testing"

	"github.com/hearthfire/hearth/pkg/models"
)

func TestPolicyDecisions(t *testing.T) {
	engine := NewPolicyEngine(nil, nil)

	allow := &models.ToolDefinition{Name: "a", Policy: models.PolicyAllow}
	deny := &models.ToolDefinition{Name: "d", Policy: models.PolicyDeny}
	elevated := &models.ToolDefinition{Name: "e", Policy: models.PolicyElevated}

	if decision, _ := engine.Check("s1", allow); decision != DecisionAllow {
		t.Fatalf("allow tool: decision = %v", decision)
	}
	if decision, reason := engine.Check("s1", deny); decision != DecisionDeny || reason == "" {
		t.Fatalf("deny tool: decision = %v, reason = %q", decision, reason)
	}
	if decision, _ := engine.Check("s1", elevated); decision != DecisionElevatedRequired {
		t.Fatalf("elevated tool without toggle: decision = %v", decision)
	}
	if decision, _ := engine.Check("s1", nil); decision != DecisionUnknownTool {
		t.Fatalf("nil definition: decision = %v", decision)
	}
}

func TestElevatedToggleIsPerSession(t *testing.T) {
	engine := NewPolicyEngine(nil, nil)
	elevated := &models.ToolDefinition{Name: "exec", Policy: models.PolicyElevated}

	engine.SetElevated("s1", true)

	if decision, _ := engine.Check("s1", elevated); decision != DecisionAllow {
		t.Fatal("elevated session must be allowed")
	}
	if decision, _ := engine.Check("s2", elevated); decision != DecisionElevatedRequired {
		t.Fatal("other sessions must still require elevation")
	}

	engine.SetElevated("s1", false)
	if decision, _ := engine.Check("s1", elevated); decision != DecisionElevatedRequired {
		t.Fatal("revoked session must require elevation again")
	}
}

func TestPerToolOverrideWins(t *testing.T) {
	engine := NewPolicyEngine(
		map[string]string{"web_fetch": "allow"},
		map[string]string{CategoryWeb: "deny"},
	)
	def := &models.ToolDefinition{Name: "web_fetch", Policy: models.PolicyElevated, Category: CategoryWeb}

	if decision, _ := engine.Check("s1", def); decision != DecisionAllow {
		t.Fatal("per-tool override must win over category and tag")
	}
}

func TestCategoryOverride(t *testing.T) {
	engine := NewPolicyEngine(nil, map[string]string{CategoryFS: "deny"})
	def := &models.ToolDefinition{Name: "read_file", Policy: models.PolicyAllow, Category: CategoryFS}

	decision, reason := engine.Check("s1", def)
	if decision != DecisionDeny {
		t.Fatalf("category override must apply, got %v", decision)
	}
	if !strings.Contains(reason, "read_file") {
		t.Fatalf("reason should name the tool: %q", reason)
	}
}
