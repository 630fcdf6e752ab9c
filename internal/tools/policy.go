package tools

import (
	"fmt"
	"sync"

	"github.com/hearthfire/hearth/pkg/models"
)

// Decision is the policy outcome for one tool call.
type Decision int

const (
	DecisionAllow Decision = iota
	DecisionDeny
	DecisionElevatedRequired
	DecisionUnknownTool
)

// Builtin tool categories used for per-category policy overrides.
const (
	CategoryFS       = "fs"
	CategoryWeb      = "web"
	CategoryRuntime  = "runtime"
	CategorySessions = "sessions"
)

// PolicyEngine resolves the access level for tool calls and tracks the
// per-session elevated toggle. Resolution order: per-tool override,
// per-category override (builtins), the definition's own policy tag.
type PolicyEngine struct {
	mu         sync.RWMutex
	overrides  map[string]models.PolicyLevel
	categories map[string]models.PolicyLevel
	elevated   map[string]struct{}
}

// NewPolicyEngine builds a policy engine from configuration override tables.
func NewPolicyEngine(overrides, categories map[string]string) *PolicyEngine {
	engine := &PolicyEngine{
		overrides:  map[string]models.PolicyLevel{},
		categories: map[string]models.PolicyLevel{},
		elevated:   map[string]struct{}{},
	}
	for name, level := range overrides {
		engine.overrides[name] = models.PolicyLevel(level)
	}
	for category, level := range categories {
		engine.categories[category] = models.PolicyLevel(level)
	}
	return engine
}

// Level resolves the effective access level for a definition.
func (p *PolicyEngine) Level(def *models.ToolDefinition) models.PolicyLevel {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if level, ok := p.overrides[def.Name]; ok {
		return level
	}
	if def.Category != "" {
		if level, ok := p.categories[def.Category]; ok {
			return level
		}
	}
	if def.Policy != "" {
		return def.Policy
	}
	return models.PolicyDeny
}

// Check decides whether sessionID may execute the tool. The reason is
// human-readable and safe to surface to the model.
func (p *PolicyEngine) Check(sessionID string, def *models.ToolDefinition) (Decision, string) {
	if def == nil {
		return DecisionUnknownTool, "unknown tool"
	}

	switch p.Level(def) {
	case models.PolicyAllow:
		return DecisionAllow, ""
	case models.PolicyDeny:
		return DecisionDeny, fmt.Sprintf("tool %q is denied by policy", def.Name)
	case models.PolicyElevated:
		if p.IsElevated(sessionID) {
			return DecisionAllow, ""
		}
		return DecisionElevatedRequired,
			fmt.Sprintf("tool %q requires elevated mode for this session", def.Name)
	default:
		return DecisionDeny, fmt.Sprintf("tool %q has no resolvable policy", def.Name)
	}
}

// SetElevated toggles elevated mode for a session. The toggle is held in
// memory only and resets on restart.
func (p *PolicyEngine) SetElevated(sessionID string, enabled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if enabled {
		p.elevated[sessionID] = struct{}{}
	} else {
		delete(p.elevated, sessionID)
	}
}

// IsElevated reports whether a session has elevated mode enabled.
func (p *PolicyEngine) IsElevated(sessionID string) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.elevated[sessionID]
	return ok
}
