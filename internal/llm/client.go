package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hearthfire/hearth/internal/config"
	"github.com/hearthfire/hearth/pkg/models"
)

// ChatMessage is one role-tagged entry of the request history.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is a backend chat-completion request.
type ChatRequest struct {
	// Model is required; routing happens before the client is called.
	Model string

	// Messages in chronological order, latest user message last.
	Messages []ChatMessage

	// Tools the model may call, converted to the wire schema on send.
	Tools []models.ToolDefinition

	// KeepAlive is the cache-policy hint ("30m", "2m", "0").
	KeepAlive string

	// MaxTokens caps the completion length when positive.
	MaxTokens int
}

// ChatResponse is a fully assembled non-streaming completion.
type ChatResponse struct {
	Content      string
	Model        string
	FinishReason string
	Usage        *models.TokenUsage
	ToolCalls    []models.ToolCall
}

// StreamChunk is one delta of a streaming completion. Exactly one of Text,
// ToolCall, Err, or the Done marker is meaningful per chunk, except that an
// error chunk carries Err and Done together; Usage rides on the final chunk
// when the backend reports it.
type StreamChunk struct {
	Text         string
	ToolCall     *ToolCallDelta
	FinishReason string
	Usage        *models.TokenUsage
	Err          error
	Done         bool
}

// ToolCallDelta is a tool-call fragment; fragments sharing an index belong
// to the same call and are concatenated by the Accumulator.
type ToolCallDelta struct {
	Index     int
	ID        string
	Name      string
	Arguments string
}

// Client speaks the OpenAI-compatible chat-completion dialect. It performs
// no retries; failures carry a retryable/terminal classification for the
// turn engine to act on.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
}

// NewClient creates a backend client for the configured base URL.
func NewClient(cfg *config.LLMConfig) *Client {
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = "http://localhost:11434"
	}
	return &Client{
		httpClient: &http.Client{Timeout: 5 * time.Minute},
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
	}
}

type wireToolCall struct {
	ID       string       `json:"id,omitempty"`
	Type     string       `json:"type,omitempty"`
	Function wireFunction `json:"function"`
}

type wireFunction struct {
	Name      string `json:"name,omitempty"`
	Arguments string `json:"arguments,omitempty"`
}

type wireRequest struct {
	Model         string             `json:"model"`
	Messages      []ChatMessage      `json:"messages"`
	Tools         []json.RawMessage  `json:"tools,omitempty"`
	KeepAlive     string             `json:"keep_alive,omitempty"`
	Stream        bool               `json:"stream"`
	StreamOptions *wireStreamOptions `json:"stream_options,omitempty"`
	MaxTokens     int                `json:"max_tokens,omitempty"`
}

type wireStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

type wireResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Message struct {
			Content   string         `json:"content"`
			ToolCalls []wireToolCall `json:"tool_calls"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *models.TokenUsage `json:"usage"`
}

type wireStreamResponse struct {
	Model   string `json:"model"`
	Choices []struct {
		Delta struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Index    int          `json:"index"`
				ID       string       `json:"id,omitempty"`
				Function wireFunction `json:"function"`
			} `json:"tool_calls"`
		} `json:"delta"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage *models.TokenUsage `json:"usage"`
}

// Chat sends a non-streaming completion request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	if req == nil || req.Model == "" {
		return nil, errors.New("model is required")
	}

	body, err := c.send(ctx, req, false)
	if err != nil {
		return nil, err
	}
	defer body.Close()

	var resp wireResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		return nil, decodeError("chat", req.Model, fmt.Errorf("decode response: %w", err))
	}
	if len(resp.Choices) == 0 {
		return nil, decodeError("chat", req.Model, errors.New("no choices in response"))
	}

	choice := resp.Choices[0]
	out := &ChatResponse{
		Content:      choice.Message.Content,
		Model:        resp.Model,
		FinishReason: choice.FinishReason,
		Usage:        resp.Usage,
	}
	if out.Model == "" {
		out.Model = req.Model
	}
	for _, tc := range choice.Message.ToolCalls {
		id := strings.TrimSpace(tc.ID)
		if id == "" {
			id = uuid.NewString()
		}
		args := tc.Function.Arguments
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out.ToolCalls = append(out.ToolCalls, models.ToolCall{
			ID:        id,
			Name:      tc.Function.Name,
			Arguments: json.RawMessage(args),
		})
	}
	return out, nil
}

// ChatStream sends a streaming request and emits deltas over a channel.
// The channel is closed after the end-of-stream marker or an error chunk.
func (c *Client) ChatStream(ctx context.Context, req *ChatRequest) (<-chan *StreamChunk, error) {
	if req == nil || req.Model == "" {
		return nil, errors.New("model is required")
	}

	body, err := c.send(ctx, req, true)
	if err != nil {
		return nil, err
	}

	chunks := make(chan *StreamChunk)
	go c.streamResponse(ctx, body, req.Model, chunks)
	return chunks, nil
}

// Warm issues a minimal one-token generation so the backend loads model.
func (c *Client) Warm(ctx context.Context, model, keepAlive string) error {
	req := &ChatRequest{
		Model:     model,
		Messages:  []ChatMessage{{Role: "user", Content: "ok"}},
		KeepAlive: keepAlive,
		MaxTokens: 1,
	}
	_, err := c.Chat(ctx, req)
	return err
}

func (c *Client) send(ctx context.Context, req *ChatRequest, stream bool) (io.ReadCloser, error) {
	op := "chat"
	if stream {
		op = "stream"
	}

	payload := wireRequest{
		Model:     req.Model,
		Messages:  req.Messages,
		KeepAlive: req.KeepAlive,
		Stream:    stream,
		MaxTokens: req.MaxTokens,
	}
	if stream {
		payload.StreamOptions = &wireStreamOptions{IncludeUsage: true}
	}
	if len(req.Tools) > 0 {
		payload.Tools = ToWireTools(req.Tools)
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, decodeError(op, req.Model, fmt.Errorf("marshal request: %w", err))
	}

	url := c.baseURL + "/v1/chat/completions"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, connectionError(op, req.Model, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, connectionError(op, req.Model, err)
	}
	if resp.StatusCode >= http.StatusBadRequest {
		defer resp.Body.Close()
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
		return nil, statusError(op, req.Model, resp.StatusCode,
			fmt.Errorf("backend status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))))
	}
	return resp.Body, nil
}

func (c *Client) streamResponse(ctx context.Context, body io.ReadCloser, model string, out chan<- *StreamChunk) {
	defer close(out)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64<<10)
	scanner.Buffer(buf, 1<<20)

	var usage *models.TokenUsage
	finishReason := ""

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			out <- &StreamChunk{Err: connectionError("stream", model, ctx.Err()), Done: true}
			return
		default:
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "data:") {
			continue
		}
		data := strings.TrimSpace(strings.TrimPrefix(line, "data:"))
		if data == "[DONE]" {
			out <- &StreamChunk{Done: true, FinishReason: finishReason, Usage: usage}
			return
		}

		var resp wireStreamResponse
		if err := json.Unmarshal([]byte(data), &resp); err != nil {
			out <- &StreamChunk{Err: decodeError("stream", model, fmt.Errorf("decode delta: %w", err)), Done: true}
			return
		}
		if resp.Usage != nil {
			usage = resp.Usage
		}
		if len(resp.Choices) == 0 {
			continue
		}

		choice := resp.Choices[0]
		if choice.FinishReason != "" {
			finishReason = choice.FinishReason
		}
		if choice.Delta.Content != "" {
			out <- &StreamChunk{Text: choice.Delta.Content}
		}
		for _, tc := range choice.Delta.ToolCalls {
			out <- &StreamChunk{ToolCall: &ToolCallDelta{
				Index:     tc.Index,
				ID:        tc.ID,
				Name:      tc.Function.Name,
				Arguments: tc.Function.Arguments,
			}}
		}
	}

	if err := scanner.Err(); err != nil {
		out <- &StreamChunk{Err: connectionError("stream", model, err), Done: true}
		return
	}

	// Stream ended without a [DONE] marker; surface what we have.
	out <- &StreamChunk{Done: true, FinishReason: finishReason, Usage: usage}
}
