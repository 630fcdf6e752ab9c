// Package config defines the gateway configuration schema and loader.
// All values are read once at startup; runtime changes go through explicit
// reload operations on the components that own them.
package config

import (
	"fmt"
	"regexp"

	"github.com/hearthfire/hearth/pkg/models"
)

// Config is the root configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LLM      LLMConfig      `yaml:"llm"`
	Sessions SessionsConfig `yaml:"sessions"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
	Engine   EngineConfig   `yaml:"engine"`
}

// ServerConfig configures the HTTP/WS surface.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`

	// Tokens is the bearer-token allow list. Tokens prefixed "web-user-"
	// map to the suffix as user id; any other token is its own user id.
	Tokens []string `yaml:"tokens"`

	// RequestTimeoutSecs bounds synchronous HTTP handlers.
	RequestTimeoutSecs int `yaml:"request_timeout_secs"`
}

// LLMConfig configures the backend client, router, and cache policy.
type LLMConfig struct {
	// BaseURL is the OpenAI-compatible backend root, e.g. http://localhost:11434.
	BaseURL string `yaml:"base_url"`

	// APIKey is sent as a bearer token to the backend when set.
	APIKey string `yaml:"api_key"`

	Models  ModelRoles    `yaml:"models"`
	Cache   CacheConfig   `yaml:"cache"`
	Routing RoutingConfig `yaml:"routing"`
}

// ModelRoles names the backend models per routing role.
type ModelRoles struct {
	Primary string `yaml:"primary"`
	Code    string `yaml:"code"`
	Fast    string `yaml:"fast"`
}

// CacheConfig selects the hot-swap cache strategy.
type CacheConfig struct {
	// Type is "ram", "ssd", or "none".
	Type string `yaml:"type"`

	// MaxModels bounds the warm set under the ram strategy.
	MaxModels int `yaml:"max_models"`
}

// RoutingConfig holds declaration-ordered routing rules.
type RoutingConfig struct {
	Rules []RoutingRule `yaml:"rules"`
}

// RoutingRule routes messages matching Pattern to Model.
type RoutingRule struct {
	Pattern string `yaml:"pattern"`
	Model   string `yaml:"model"`
}

// SessionsConfig configures session scoping and history.
type SessionsConfig struct {
	// Scope is one of per-sender, main, per-peer, per-channel-peer.
	Scope string `yaml:"scope"`

	// HistoryWindow is the trailing message count composed per turn.
	HistoryWindow int `yaml:"history_window"`

	// DatabasePath locates the SQLite store; empty selects in-memory.
	DatabasePath string `yaml:"database_path"`
}

// ToolsConfig configures the tool registry and policy tables.
type ToolsConfig struct {
	// UserDir holds user-authored skill files; HTTP-created tools are
	// persisted here so restarts preserve them.
	UserDir string `yaml:"user_dir"`

	// Watch enables hot-reload of the user-tool directory.
	Watch bool `yaml:"watch"`

	// Policies overrides the access level per tool name.
	Policies map[string]string `yaml:"policies"`

	// Categories overrides the access level per builtin category
	// (fs, web, runtime, sessions).
	Categories map[string]string `yaml:"categories"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// EngineConfig bounds the turn loop.
type EngineConfig struct {
	MaxIterations   int `yaml:"max_iterations"`
	TurnTimeoutSecs int `yaml:"turn_timeout_secs"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "127.0.0.1"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.RequestTimeoutSecs == 0 {
		c.Server.RequestTimeoutSecs = 30
	}
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = "http://localhost:11434"
	}
	if c.LLM.Cache.Type == "" {
		c.LLM.Cache.Type = "ram"
	}
	if c.LLM.Cache.MaxModels == 0 {
		c.LLM.Cache.MaxModels = 3
	}
	if c.Sessions.Scope == "" {
		c.Sessions.Scope = string(models.ScopePerSender)
	}
	if c.Sessions.HistoryWindow == 0 {
		c.Sessions.HistoryWindow = 50
	}
	if c.Engine.MaxIterations == 0 {
		c.Engine.MaxIterations = 10
	}
	if c.Engine.TurnTimeoutSecs == 0 {
		c.Engine.TurnTimeoutSecs = 120
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "json"
	}
}

// Validate rejects configurations the components cannot honor.
func (c *Config) Validate() error {
	switch models.Scope(c.Sessions.Scope) {
	case models.ScopePerSender, models.ScopeMain, models.ScopePerPeer, models.ScopePerChannelPeer:
	default:
		return fmt.Errorf("sessions.scope: unknown scope %q", c.Sessions.Scope)
	}
	switch c.LLM.Cache.Type {
	case "ram", "ssd", "none":
	default:
		return fmt.Errorf("llm.cache.type: unknown strategy %q", c.LLM.Cache.Type)
	}
	if c.LLM.Models.Primary == "" {
		return fmt.Errorf("llm.models.primary is required")
	}
	for i, rule := range c.LLM.Routing.Rules {
		if _, err := regexp.Compile(rule.Pattern); err != nil {
			return fmt.Errorf("llm.routing.rules[%d]: invalid pattern %q: %w", i, rule.Pattern, err)
		}
		if rule.Model == "" {
			return fmt.Errorf("llm.routing.rules[%d]: model is required", i)
		}
	}
	for tool, level := range c.Tools.Policies {
		if !validPolicyLevel(level) {
			return fmt.Errorf("tools.policies[%s]: unknown level %q", tool, level)
		}
	}
	for category, level := range c.Tools.Categories {
		if !validPolicyLevel(level) {
			return fmt.Errorf("tools.categories[%s]: unknown level %q", category, level)
		}
	}
	return nil
}

func validPolicyLevel(level string) bool {
	switch models.PolicyLevel(level) {
	case models.PolicyAllow, models.PolicyDeny, models.PolicyElevated:
		return true
	}
	return false
}
