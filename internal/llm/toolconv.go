package llm

import (
	"encoding/json"

	openai "github.com/sashabaranov/go-openai"

	"github.com/hearthfire/hearth/pkg/models"
)

// ToWireTools converts tool definitions to the OpenAI function-tool schema
// the backend expects, pre-marshaled for embedding in the request body.
func ToWireTools(defs []models.ToolDefinition) []json.RawMessage {
	out := make([]json.RawMessage, 0, len(defs))
	for _, def := range defs {
		var params map[string]any
		if err := json.Unmarshal(def.Parameters, &params); err != nil || params == nil {
			params = map[string]any{
				"type":       "object",
				"properties": map[string]any{},
			}
		}

		tool := openai.Tool{
			Type: openai.ToolTypeFunction,
			Function: &openai.FunctionDefinition{
				Name:        def.Name,
				Description: def.Description,
				Parameters:  params,
			},
		}
		raw, err := json.Marshal(tool)
		if err != nil {
			continue
		}
		out = append(out, raw)
	}
	return out
}
