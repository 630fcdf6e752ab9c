// Package llm contains the backend client, the model router, and the
// hot-swap cache policy.
package llm

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/hearthfire/hearth/internal/config"
)

// shortMessageLimit is the trimmed length at or below which a message is
// routed to the fast role model.
const shortMessageLimit = 100

// codeKeywords is the closed set of code-domain markers checked after the
// rule list. Trailing spaces keep "def " and "fn " from matching prose.
var codeKeywords = []string{
	"code", "function", "implement", "debug", "class", "def ", "fn ",
}

type compiledRule struct {
	pattern *regexp.Regexp
	model   string
}

// Router selects the backend model for a turn. Routing is deterministic:
// explicit model, then configured rules in declaration order, then the
// short-message and code heuristics, then the primary role model.
type Router struct {
	primary string
	code    string
	fast    string
	rules   []compiledRule
}

// NewRouter compiles the configured routing rules. Invalid patterns are
// rejected at startup rather than skipped.
func NewRouter(cfg *config.LLMConfig) (*Router, error) {
	rules := make([]compiledRule, 0, len(cfg.Routing.Rules))
	for i, rule := range cfg.Routing.Rules {
		pattern, err := regexp.Compile(rule.Pattern)
		if err != nil {
			return nil, fmt.Errorf("routing rule %d: %w", i, err)
		}
		rules = append(rules, compiledRule{pattern: pattern, model: rule.Model})
	}

	return &Router{
		primary: cfg.Models.Primary,
		code:    cfg.Models.Code,
		fast:    cfg.Models.Fast,
		rules:   rules,
	}, nil
}

// Route returns the model for the latest user message text.
func (r *Router) Route(message string) string {
	for _, rule := range r.rules {
		if rule.pattern.MatchString(message) {
			return rule.model
		}
	}

	if r.fast != "" && len(strings.TrimSpace(message)) <= shortMessageLimit {
		return r.fast
	}

	if r.code != "" && isCodeRelated(message) {
		return r.code
	}

	return r.primary
}

// Primary returns the primary role model.
func (r *Router) Primary() string {
	return r.primary
}

// RoleFor labels a model with its configured role, or "custom" when it is
// not one of the role models.
func (r *Router) RoleFor(model string) string {
	switch model {
	case r.primary:
		return "primary"
	case r.code:
		return "code"
	case r.fast:
		return "fast"
	default:
		return "custom"
	}
}

func isCodeRelated(message string) bool {
	lower := strings.ToLower(message)
	for _, keyword := range codeKeywords {
		if strings.Contains(lower, keyword) {
			return true
		}
	}
	return false
}
