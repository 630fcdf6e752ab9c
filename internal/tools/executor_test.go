package tools

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/hearthfire/hearth/pkg/models"
)

func newTestExecutor(t *testing.T, registry *Registry) *Executor {
	t.Helper()
	return NewExecutor(registry, NewPolicyEngine(nil, nil), nil, nil, nil)
}

func TestExecuteBashTool(t *testing.T) {
	registry := NewRegistry()
	def := userDef("echo")
	def.Body = `printf '%s' "$text"`
	def.Parameters = json.RawMessage(`{"type":"object","properties":{"text":{"type":"string"}},"required":["text"]}`)
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{
		ID:        "call-1",
		Name:      "echo",
		Arguments: json.RawMessage(`{"text":"hi"}`),
	})

	if result.IsError {
		t.Fatalf("unexpected error result: %s", result.Content)
	}
	if result.Content != "hi" {
		t.Fatalf("expected %q, got %q", "hi", result.Content)
	}
	if result.ToolCallID != "call-1" || result.Name != "echo" {
		t.Fatalf("result not labeled: %+v", result)
	}
}

func TestExecuteNonStringParamsAreJSONEncoded(t *testing.T) {
	registry := NewRegistry()
	def := userDef("show")
	def.Body = `printf '%s' "$count"`
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{
		Name:      "show",
		Arguments: json.RawMessage(`{"count":42}`),
	})
	if result.Content != "42" {
		t.Fatalf("expected 42, got %q", result.Content)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	executor := newTestExecutor(t, NewRegistry())
	result := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "nope"})
	if !result.IsError || !strings.Contains(result.Content, "unknown tool") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecutePolicyDenial(t *testing.T) {
	registry := NewRegistry()
	def := userDef("danger")
	def.Policy = models.PolicyDeny
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "danger"})
	if !result.IsError || !strings.Contains(result.Content, "denied") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteElevatedFlow(t *testing.T) {
	registry := NewRegistry()
	def := userDef("exec")
	def.Policy = models.PolicyElevated
	def.Body = `printf 'ran'`
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	policy := NewPolicyEngine(nil, nil)
	executor := NewExecutor(registry, policy, nil, nil, nil)

	denied := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "exec"})
	if !denied.IsError || !strings.Contains(denied.Content, "denied") {
		t.Fatalf("expected denial without elevation: %+v", denied)
	}

	policy.SetElevated("s1", true)
	allowed := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "exec"})
	if allowed.IsError || allowed.Content != "ran" {
		t.Fatalf("expected execution with elevation: %+v", allowed)
	}
}

func TestExecuteInvalidArguments(t *testing.T) {
	registry := NewRegistry()
	if err := registry.Register(userDef("echo")); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{
		Name:      "echo",
		Arguments: json.RawMessage(`not json`),
	})
	if !result.IsError || !strings.Contains(result.Content, "invalid arguments") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteTimeout(t *testing.T) {
	registry := NewRegistry()
	def := userDef("slow")
	def.Body = "sleep 5"
	def.TimeoutSecs = 1
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "slow"})
	if !result.IsError || !strings.Contains(result.Content, "timed out") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestExecuteStderrAndExitCode(t *testing.T) {
	registry := NewRegistry()
	def := userDef("fail")
	def.Body = `echo out; echo err >&2; exit 3`
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "fail"})
	if !strings.Contains(result.Content, "out") ||
		!strings.Contains(result.Content, "--- stderr ---") ||
		!strings.Contains(result.Content, "Exit code: 3") {
		t.Fatalf("unexpected output: %q", result.Content)
	}
}

func TestExecuteWasmRequiresSandbox(t *testing.T) {
	registry := NewRegistry()
	def := userDef("wasm_tool")
	def.Runtime = models.RuntimeWasm
	def.Body = "/srv/tools/mod.wasm"
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	executor := newTestExecutor(t, registry)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{Name: "wasm_tool"})
	if !result.IsError || !strings.Contains(result.Content, "sandbox") {
		t.Fatalf("unexpected result: %+v", result)
	}
}

type fakeSandbox struct {
	lastSpec ExecSpec
}

func (f *fakeSandbox) Execute(ctx context.Context, spec ExecSpec) (*ExecResult, error) {
	f.lastSpec = spec
	return &ExecResult{Stdout: "sandboxed"}, nil
}

func TestExecuteSandboxedToolRoutesToCollaborator(t *testing.T) {
	registry := NewRegistry()
	def := userDef("boxed")
	def.Sandbox = true
	def.Network = true
	if err := registry.Register(def); err != nil {
		t.Fatal(err)
	}

	sandbox := &fakeSandbox{}
	executor := NewExecutor(registry, NewPolicyEngine(nil, nil), sandbox, nil, nil)
	result := executor.Execute(context.Background(), "s1", models.ToolCall{
		Name:      "boxed",
		Arguments: json.RawMessage(`{"x":"1"}`),
	})

	if result.IsError || result.Content != "sandboxed" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if sandbox.lastSpec.Env["x"] != "1" || !sandbox.lastSpec.Network {
		t.Fatalf("spec not propagated: %+v", sandbox.lastSpec)
	}
}
