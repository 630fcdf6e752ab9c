// Package engine drives the user→model→tools→user loop for conversation
// turns and fans events out to stream observers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/hearthfire/hearth/internal/llm"
	"github.com/hearthfire/hearth/internal/observability"
	"github.com/hearthfire/hearth/internal/sessions"
	"github.com/hearthfire/hearth/internal/tools"
	"github.com/hearthfire/hearth/pkg/models"
)

var (
	// ErrShuttingDown is returned for turns accepted after shutdown began.
	ErrShuttingDown = errors.New("gateway is shutting down")
)

// capNotice is the synthetic assistant message appended when a bound on
// the tool loop is hit.
const capNotice = "Tool iteration cap reached before the model produced a final answer; stopping here."

const timeoutNotice = "Turn wall-clock limit reached before the model produced a final answer; stopping here."

// toolResultPreview bounds the result text carried on tool_use events.
const toolResultPreview = 500

// Config bounds the turn loop.
type Config struct {
	// MaxIterations caps model↔tools round trips per turn.
	MaxIterations int

	// TurnTimeout is the overall wall-clock bound per turn.
	TurnTimeout time.Duration

	// HistoryWindow is the trailing message count composed per turn.
	HistoryWindow int
}

// DefaultConfig returns the default loop bounds.
func DefaultConfig() Config {
	return Config{
		MaxIterations: 10,
		TurnTimeout:   120 * time.Second,
		HistoryWindow: 50,
	}
}

func (c Config) sanitized() Config {
	defaults := DefaultConfig()
	if c.MaxIterations <= 0 {
		c.MaxIterations = defaults.MaxIterations
	}
	if c.TurnTimeout <= 0 {
		c.TurnTimeout = defaults.TurnTimeout
	}
	if c.HistoryWindow <= 0 {
		c.HistoryWindow = defaults.HistoryWindow
	}
	return c
}

// Result is the outcome of a completed turn.
type Result struct {
	SessionID   string `json:"session_id"`
	MessageID   string `json:"message_id"`
	Text        string `json:"text"`
	Model       string `json:"model"`
	TotalTokens int    `json:"total_tokens"`
	LatencyMS   int64  `json:"latency_ms"`
}

// Engine is the single entry point every transport shares. Turns within a
// session are serialized; sessions process independently.
type Engine struct {
	store    sessions.Store
	client   *llm.Client
	router   *llm.Router
	cache    *llm.CacheManager
	registry *tools.Registry
	executor *tools.Executor
	policy   *tools.PolicyEngine
	logger   *observability.Logger
	metrics  *observability.Metrics
	cfg      Config

	locksMu sync.Mutex
	locks   map[string]*sessionLock

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc

	shutMu   sync.Mutex
	shutdown bool
	active   sync.WaitGroup
}

// New wires the engine to its collaborators.
func New(store sessions.Store, client *llm.Client, router *llm.Router, cache *llm.CacheManager,
	registry *tools.Registry, executor *tools.Executor, policy *tools.PolicyEngine,
	logger *observability.Logger, metrics *observability.Metrics, cfg Config) *Engine {
	return &Engine{
		store:    store,
		client:   client,
		router:   router,
		cache:    cache,
		registry: registry,
		executor: executor,
		policy:   policy,
		logger:   logger,
		metrics:  metrics,
		cfg:      cfg.sanitized(),
		locks:    map[string]*sessionLock{},
		cancels:  map[string]context.CancelFunc{},
	}
}

// Store exposes the session store for surfaces that query history.
func (e *Engine) Store() sessions.Store { return e.store }

// Policy exposes the policy engine for the elevated toggle surface.
func (e *Engine) Policy() *tools.PolicyEngine { return e.policy }

// Registry exposes the tool registry for the authoring surface.
func (e *Engine) Registry() *tools.Registry { return e.registry }

// Router exposes the model router.
func (e *Engine) Router() *llm.Router { return e.router }

// Cache exposes the hot-model cache policy.
func (e *Engine) Cache() *llm.CacheManager { return e.cache }

// Client exposes the backend client (model warm-up endpoint).
func (e *Engine) Client() *llm.Client { return e.client }

// Executor exposes the tool executor (dry-run endpoint).
func (e *Engine) Executor() *tools.Executor { return e.executor }

// Process runs one turn: append the user message, compose history, call
// the backend in the tool loop, persist the transcript, and deliver the
// final assistant text. A nil observer disables streaming; observers
// never block or abort the turn.
func (e *Engine) Process(ctx context.Context, sessionID, text, explicitModel string, observer *Observer) (*Result, error) {
	e.shutMu.Lock()
	if e.shutdown {
		e.shutMu.Unlock()
		return nil, ErrShuttingDown
	}
	e.active.Add(1)
	e.shutMu.Unlock()
	defer e.active.Done()

	// Turns within one session are FIFO; processing must not begin until
	// the previous turn appended its final message.
	unlock := e.lockSession(sessionID)
	defer unlock()

	session, err := e.store.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	ctx = observability.AddSessionID(ctx, sessionID)

	estimate := EstimateTokens(text)
	userMsg, err := e.store.AppendMessage(ctx, sessionID, models.RoleUser, text, "", &estimate)
	if err != nil {
		observer.Send(Error("storage failure", 500))
		return nil, err
	}
	observer.Send(Start(sessionID, userMsg.ID))

	history, err := e.store.ListMessages(ctx, sessionID, e.cfg.HistoryWindow, 0)
	if err != nil {
		observer.Send(Error("storage failure", 500))
		return nil, err
	}

	model := strings.TrimSpace(explicitModel)
	if model == "" {
		model = e.router.Route(text)
	}
	keepAlive := e.cache.KeepAlive()
	toolDefs := e.visibleTools()

	turnCtx, cancel := context.WithTimeout(ctx, e.cfg.TurnTimeout)
	defer cancel()

	e.cancelMu.Lock()
	e.cancels[sessionID] = cancel
	e.cancelMu.Unlock()
	defer func() {
		e.cancelMu.Lock()
		delete(e.cancels, sessionID)
		e.cancelMu.Unlock()
	}()

	messages := make([]llm.ChatMessage, 0, len(history)+4)
	for _, m := range history {
		messages = append(messages, llm.ChatMessage{Role: string(m.Role), Content: m.Content})
	}

	result, err := e.toolLoop(turnCtx, session, model, keepAlive, toolDefs, messages, observer, start)
	if e.metrics != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		// finishCapped already counted capped turns under status "capped".
		if err != nil || (result.Text != capNotice && result.Text != timeoutNotice) {
			e.metrics.TurnCounter.WithLabelValues(session.Channel, status).Inc()
		}
		e.metrics.TurnDuration.WithLabelValues(session.Channel).Observe(time.Since(start).Seconds())
	}
	return result, err
}

func (e *Engine) toolLoop(ctx context.Context, session *models.Session, model, keepAlive string,
	toolDefs []models.ToolDefinition, messages []llm.ChatMessage, observer *Observer, start time.Time) (*Result, error) {

	for iteration := 0; iteration < e.cfg.MaxIterations; iteration++ {
		req := &llm.ChatRequest{
			Model:     model,
			Messages:  messages,
			Tools:     toolDefs,
			KeepAlive: keepAlive,
		}

		resp, err := e.complete(ctx, req, observer)
		if err != nil {
			// A lapsed wall clock is a clean termination, not a failure.
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				return e.finishCapped(session, timeoutNotice, model, observer, start)
			}
			if ctx.Err() != nil {
				// Session delete or shutdown: keep the partial transcript.
				return nil, ctx.Err()
			}
			observer.Send(Error("backend unavailable", 503))
			if e.logger != nil {
				e.logger.Error(ctx, "backend call failed", "model", model, "error", err)
			}
			return nil, err
		}

		e.cache.MarkUsed(model)
		e.recordUsage(model, resp.Usage)

		responseModel := resp.Model
		if responseModel == "" {
			responseModel = model
		}

		if len(resp.ToolCalls) == 0 {
			totalTokens := 0
			var tokens *int
			if resp.Usage != nil {
				totalTokens = resp.Usage.TotalTokens
				tokens = &resp.Usage.TotalTokens
			}
			assistantMsg, err := e.store.AppendMessage(ctx, session.ID, models.RoleAssistant, resp.Content, responseModel, tokens)
			if err != nil {
				observer.Send(Error("storage failure", 500))
				return nil, err
			}

			latency := time.Since(start).Milliseconds()
			observer.Send(EndWithUsage(assistantMsg.ID, resp.Usage, responseModel, latency))
			return &Result{
				SessionID:   session.ID,
				MessageID:   assistantMsg.ID,
				Text:        resp.Content,
				Model:       responseModel,
				TotalTokens: totalTokens,
				LatencyMS:   latency,
			}, nil
		}

		// The assistant message carrying the pre-call text (possibly
		// empty) precedes its tool results in the transcript.
		if _, err := e.store.AppendMessage(ctx, session.ID, models.RoleAssistant, resp.Content, responseModel, nil); err != nil {
			observer.Send(Error("storage failure", 500))
			return nil, err
		}
		messages = append(messages, llm.ChatMessage{Role: "assistant", Content: resp.Content})

		// Tool calls run sequentially in intent order so each subsequent
		// model call sees prior outcomes.
		for _, call := range resp.ToolCalls {
			if ctx.Err() != nil {
				if errors.Is(ctx.Err(), context.DeadlineExceeded) {
					return e.finishCapped(session, timeoutNotice, model, observer, start)
				}
				return nil, ctx.Err()
			}

			observer.Send(ToolUse(call.Name, ToolStatusRunning, ""))
			toolResult := e.executor.Execute(ctx, session.ID, call)
			observer.Send(ToolUse(call.Name, ToolStatusDone, preview(toolResult.Content)))

			if _, err := e.store.AppendMessage(ctx, session.ID, models.RoleTool, toolResult.Content, "", nil); err != nil {
				observer.Send(Error("storage failure", 500))
				return nil, err
			}
			messages = append(messages, llm.ChatMessage{Role: "tool", Content: toolResult.Content})
		}
	}

	return e.finishCapped(session, capNotice, model, observer, start)
}

// finishCapped appends the synthetic assistant message used when an
// iteration or wall-clock bound is hit. The turn succeeds at the
// transport level.
func (e *Engine) finishCapped(session *models.Session, notice, model string, observer *Observer, start time.Time) (*Result, error) {
	// The parent context may already be past its deadline.
	ctx := context.Background()
	assistantMsg, err := e.store.AppendMessage(ctx, session.ID, models.RoleAssistant, notice, model, nil)
	if err != nil {
		observer.Send(Error("storage failure", 500))
		return nil, err
	}

	latency := time.Since(start).Milliseconds()
	observer.Send(End(assistantMsg.ID, 0, model, latency))
	if e.metrics != nil {
		e.metrics.TurnCounter.WithLabelValues(session.Channel, "capped").Inc()
	}
	return &Result{
		SessionID: session.ID,
		MessageID: assistantMsg.ID,
		Text:      notice,
		Model:     model,
		LatencyMS: latency,
	}, nil
}

// complete performs one backend call, streaming deltas to the observer
// when one is attached.
func (e *Engine) complete(ctx context.Context, req *llm.ChatRequest, observer *Observer) (*llm.ChatResponse, error) {
	if observer == nil {
		return e.client.Chat(ctx, req)
	}

	chunks, err := e.client.ChatStream(ctx, req)
	if err != nil {
		return nil, err
	}

	var content strings.Builder
	acc := llm.NewAccumulator()
	resp := &llm.ChatResponse{Model: req.Model}

	for chunk := range chunks {
		if chunk.Err != nil {
			return nil, chunk.Err
		}
		if chunk.Text != "" {
			content.WriteString(chunk.Text)
			observer.Send(Stream(chunk.Text))
		}
		acc.Add(chunk.ToolCall)
		if chunk.Done {
			resp.FinishReason = chunk.FinishReason
			resp.Usage = chunk.Usage
		}
	}

	resp.Content = content.String()
	resp.ToolCalls = acc.Calls()
	return resp, nil
}

// visibleTools returns the tool set a turn exposes to the model: every
// definition whose effective policy is not deny. Elevated tools stay
// visible; the executor decides at call time.
func (e *Engine) visibleTools() []models.ToolDefinition {
	all := e.registry.List()
	out := make([]models.ToolDefinition, 0, len(all))
	for _, def := range all {
		if e.policy.Level(&def) == models.PolicyDeny {
			continue
		}
		out = append(out, def)
	}
	return out
}

func (e *Engine) recordUsage(model string, usage *models.TokenUsage) {
	if e.metrics == nil || usage == nil {
		return
	}
	e.metrics.BackendTokensUsed.WithLabelValues(model, "prompt").Add(float64(usage.PromptTokens))
	e.metrics.BackendTokensUsed.WithLabelValues(model, "completion").Add(float64(usage.CompletionTokens))
}

// CancelSession aborts the session's active turn, if any. The running
// tool call observes the cancellation and the partial transcript stays
// persisted as-is.
func (e *Engine) CancelSession(sessionID string) {
	e.cancelMu.Lock()
	cancel := e.cancels[sessionID]
	e.cancelMu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Shutdown refuses new turns and waits for accepted turns to drain,
// bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.shutMu.Lock()
	e.shutdown = true
	e.shutMu.Unlock()

	done := make(chan struct{})
	go func() {
		e.active.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown grace elapsed: %w", ctx.Err())
	}
}

type sessionLock struct {
	mu   sync.Mutex
	refs int
}

// lockSession serializes turns per session. Locks are reference counted
// so idle sessions do not accumulate entries.
func (e *Engine) lockSession(sessionID string) func() {
	e.locksMu.Lock()
	lock := e.locks[sessionID]
	if lock == nil {
		lock = &sessionLock{}
		e.locks[sessionID] = lock
	}
	lock.refs++
	e.locksMu.Unlock()

	lock.mu.Lock()
	return func() {
		lock.mu.Unlock()
		e.locksMu.Lock()
		lock.refs--
		if lock.refs <= 0 {
			delete(e.locks, sessionID)
		}
		e.locksMu.Unlock()
	}
}

func preview(s string) string {
	if len(s) <= toolResultPreview {
		return s
	}
	return s[:toolResultPreview] + "…"
}
