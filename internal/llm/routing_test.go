package llm

import (
	"testing"

	"github.com/hearthfire/hearth/internal/config"
)

func testLLMConfig() *config.LLMConfig {
	return &config.LLMConfig{
		BaseURL: "http://localhost:11434",
		Models: config.ModelRoles{
			Primary: "qwen2.5:32b",
			Code:    "deepseek-coder-v2:16b",
			Fast:    "qwen2.5:7b",
		},
		Cache: config.CacheConfig{Type: "ram", MaxModels: 3},
		Routing: config.RoutingConfig{Rules: []config.RoutingRule{
			{Pattern: `translate.*to.*language`, Model: "qwen2.5:7b"},
		}},
	}
}

func TestRouteCustomRule(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if got := router.Route("translate this to spanish language"); got != "qwen2.5:7b" {
		t.Fatalf("expected rule match, got %s", got)
	}
}

func TestRouteShortMessageToFast(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if got := router.Route("Hi"); got != "qwen2.5:7b" {
		t.Fatalf("expected fast model for short message, got %s", got)
	}
}

func TestRouteCodeKeywords(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	// Long enough to skip the short-message heuristic, contains "function".
	msg := "Please write a function that reverses a string and also explain the complexity of each approach you consider here"
	if len(msg) <= shortMessageLimit {
		t.Fatal("test message must exceed the short-message limit")
	}
	if got := router.Route(msg); got != "deepseek-coder-v2:16b" {
		t.Fatalf("expected code model, got %s", got)
	}
}

func TestRouteFallbackToPrimary(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	msg := "Please explain in great detail the history and cultural significance of the Renaissance period in European painting traditions"
	if got := router.Route(msg); got != "qwen2.5:32b" {
		t.Fatalf("expected primary model, got %s", got)
	}
}

func TestRouteDeterminism(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	msg := "write a function to reverse a string"
	want := router.Route(msg)
	for i := 0; i < 10000; i++ {
		if got := router.Route(msg); got != want {
			t.Fatalf("routing diverged on iteration %d: %s != %s", i, got, want)
		}
	}
}

func TestNewRouterRejectsBadPattern(t *testing.T) {
	cfg := testLLMConfig()
	cfg.Routing.Rules = append(cfg.Routing.Rules, config.RoutingRule{Pattern: `([`, Model: "x"})
	if _, err := NewRouter(cfg); err == nil {
		t.Fatal("expected error for invalid pattern")
	}
}

func TestRoleFor(t *testing.T) {
	router, err := NewRouter(testLLMConfig())
	if err != nil {
		t.Fatalf("NewRouter() error = %v", err)
	}
	if got := router.RoleFor("qwen2.5:32b"); got != "primary" {
		t.Fatalf("RoleFor(primary) = %s", got)
	}
	if got := router.RoleFor("mystery"); got != "custom" {
		t.Fatalf("RoleFor(custom) = %s", got)
	}
}
