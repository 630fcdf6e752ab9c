package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/hearthfire/hearth/internal/sessions"
	"github.com/hearthfire/hearth/pkg/models"
)

// maxFetchBytes caps web_fetch response bodies.
const maxFetchBytes = 256 << 10

// maxReadFileBytes caps read_file results.
const maxReadFileBytes = 256 << 10

// RegisterBuiltins installs the compiled-in tool set. Categories feed the
// per-category policy overrides; the default levels mirror the shipped
// policy table (filesystem and web elevated, the rest allowed).
func RegisterBuiltins(registry *Registry, store sessions.Store) error {
	builtins := []struct {
		def models.ToolDefinition
		run BuiltinFunc
	}{
		{
			def: models.ToolDefinition{
				Name:        "current_time",
				Description: "Returns the current server time in RFC 3339 format.",
				Parameters:  objectSchema(nil, nil),
				Policy:      models.PolicyAllow,
				Category:    CategoryRuntime,
				TimeoutSecs: 5,
			},
			run: func(ctx context.Context, args json.RawMessage) (string, error) {
				return time.Now().Format(time.RFC3339), nil
			},
		},
		{
			def: models.ToolDefinition{
				Name:        "read_file",
				Description: "Reads a text file from the local filesystem.",
				Parameters: objectSchema(map[string]any{
					"path": map[string]any{"type": "string", "description": "Absolute file path"},
				}, []string{"path"}),
				Policy:      models.PolicyElevated,
				Category:    CategoryFS,
				TimeoutSecs: 10,
			},
			run: runReadFile,
		},
		{
			def: models.ToolDefinition{
				Name:        "web_fetch",
				Description: "Fetches a URL and returns the response body as text.",
				Parameters: objectSchema(map[string]any{
					"url": map[string]any{"type": "string", "description": "HTTP or HTTPS URL"},
				}, []string{"url"}),
				Policy:      models.PolicyElevated,
				Category:    CategoryWeb,
				Network:     true,
				TimeoutSecs: 30,
			},
			run: runWebFetch,
		},
		{
			def: models.ToolDefinition{
				Name:        "list_sessions",
				Description: "Lists the stored conversation sessions for a user.",
				Parameters: objectSchema(map[string]any{
					"user_id": map[string]any{"type": "string", "description": "Owner user id"},
				}, []string{"user_id"}),
				Policy:      models.PolicyAllow,
				Category:    CategorySessions,
				TimeoutSecs: 10,
			},
			run: makeListSessions(store),
		},
	}

	for _, b := range builtins {
		if err := registry.RegisterBuiltin(b.def, b.run); err != nil {
			return err
		}
	}
	return nil
}

func objectSchema(properties map[string]any, required []string) json.RawMessage {
	if properties == nil {
		properties = map[string]any{}
	}
	schema := map[string]any{
		"type":       "object",
		"properties": properties,
	}
	if len(required) > 0 {
		schema["required"] = required
	}
	raw, _ := json.Marshal(schema)
	return raw
}

func runReadFile(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		Path string `json:"path"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if strings.TrimSpace(params.Path) == "" {
		return "", fmt.Errorf("path is required")
	}

	f, err := os.Open(params.Path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, maxReadFileBytes))
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func runWebFetch(ctx context.Context, args json.RawMessage) (string, error) {
	var params struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(args, &params); err != nil {
		return "", fmt.Errorf("parse arguments: %w", err)
	}
	if !strings.HasPrefix(params.URL, "http://") && !strings.HasPrefix(params.URL, "https://") {
		return "", fmt.Errorf("url must be http or https")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, params.URL, nil)
	if err != nil {
		return "", err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxFetchBytes))
	if err != nil {
		return "", err
	}
	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return string(body), nil
}

func makeListSessions(store sessions.Store) BuiltinFunc {
	return func(ctx context.Context, args json.RawMessage) (string, error) {
		var params struct {
			UserID string `json:"user_id"`
		}
		if err := json.Unmarshal(args, &params); err != nil {
			return "", fmt.Errorf("parse arguments: %w", err)
		}
		summaries, err := store.ListSessions(ctx, params.UserID)
		if err != nil {
			return "", err
		}
		if len(summaries) == 0 {
			return "no sessions", nil
		}

		var out strings.Builder
		for _, s := range summaries {
			fmt.Fprintf(&out, "%s  channel=%s messages=%d updated=%s\n",
				s.ID, s.Channel, s.MessageCount, s.UpdatedAt.Format(time.RFC3339))
		}
		return strings.TrimRight(out.String(), "\n"), nil
	}
}
