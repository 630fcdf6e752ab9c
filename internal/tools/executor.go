package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"time"

	"github.com/hearthfire/hearth/internal/observability"
	"github.com/hearthfire/hearth/pkg/models"
)

var identPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Executor runs tool calls within their policy and timeout bounds. Every
// failure mode — unknown tool, policy denial, bad arguments, timeout,
// execution error — comes back as a textual result so the model can
// observe it and adapt; the turn never aborts on a tool outcome.
type Executor struct {
	registry *Registry
	policy   *PolicyEngine
	sandbox  Sandbox
	logger   *observability.Logger
	metrics  *observability.Metrics
}

// NewExecutor wires the executor to its registry, policy, and optional
// sandbox collaborator.
func NewExecutor(registry *Registry, policy *PolicyEngine, sandbox Sandbox, logger *observability.Logger, metrics *observability.Metrics) *Executor {
	return &Executor{
		registry: registry,
		policy:   policy,
		sandbox:  sandbox,
		logger:   logger,
		metrics:  metrics,
	}
}

// Execute resolves, authorizes, and runs one tool call, returning the
// textual result to append as a tool-role message.
func (e *Executor) Execute(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	start := time.Now()
	result := e.execute(ctx, sessionID, call)
	result.ToolCallID = call.ID
	result.Name = call.Name

	if e.metrics != nil {
		status := "success"
		if result.IsError {
			status = "error"
		}
		e.metrics.ToolExecutionCounter.WithLabelValues(call.Name, status).Inc()
		e.metrics.ToolExecutionDuration.WithLabelValues(call.Name).Observe(time.Since(start).Seconds())
	}
	return result
}

func (e *Executor) execute(ctx context.Context, sessionID string, call models.ToolCall) models.ToolResult {
	def, ok := e.registry.Get(call.Name)
	if !ok {
		return errorResult(fmt.Sprintf("Tool %s failed: unknown tool", call.Name))
	}

	decision, reason := e.policy.Check(sessionID, &def)
	switch decision {
	case DecisionAllow:
	case DecisionDeny, DecisionElevatedRequired:
		if e.logger != nil {
			e.logger.Debug(ctx, "tool denied", "tool", call.Name, "reason", reason)
		}
		if e.metrics != nil {
			e.metrics.ToolExecutionCounter.WithLabelValues(call.Name, "denied").Inc()
		}
		return errorResult(fmt.Sprintf("Tool %s denied: %s", call.Name, reason))
	default:
		return errorResult(fmt.Sprintf("Tool %s failed: unknown tool", call.Name))
	}

	args := map[string]any{}
	if len(call.Arguments) > 0 {
		if err := json.Unmarshal(call.Arguments, &args); err != nil {
			return errorResult(fmt.Sprintf("Tool %s failed: invalid arguments: %v", call.Name, err))
		}
	}

	timeout := time.Duration(def.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := e.dispatch(execCtx, &def, call.Arguments, args)
	if err != nil {
		if errors.Is(execCtx.Err(), context.DeadlineExceeded) {
			if e.metrics != nil {
				e.metrics.ToolExecutionCounter.WithLabelValues(call.Name, "timeout").Inc()
			}
			return errorResult(fmt.Sprintf("Tool %s timed out after %ds", call.Name, def.TimeoutSecs))
		}
		return errorResult(fmt.Sprintf("Tool %s failed: %v", call.Name, err))
	}
	if output == "" {
		output = "(tool executed but produced no output)"
	}
	return models.ToolResult{Content: output}
}

// dispatch selects the execution path by runtime tag. Sandboxed
// definitions always route through the sandbox collaborator; wasm has no
// in-process path at all.
func (e *Executor) dispatch(ctx context.Context, def *models.ToolDefinition, rawArgs json.RawMessage, args map[string]any) (string, error) {
	if def.Sandbox || def.Runtime == models.RuntimeWasm {
		return e.dispatchSandbox(ctx, def, rawArgs, args)
	}

	switch def.Runtime {
	case models.RuntimeBuiltin:
		run, ok := e.registry.runner(def.Name)
		if !ok {
			return "", errors.New("builtin has no implementation")
		}
		return run(ctx, rawArgs)
	case models.RuntimeBash:
		return runScript(ctx, "/bin/bash", def.Body, rawArgs, args)
	case models.RuntimePython:
		return runScript(ctx, "python3", def.Body, rawArgs, args)
	default:
		return "", fmt.Errorf("unsupported runtime %q", def.Runtime)
	}
}

func (e *Executor) dispatchSandbox(ctx context.Context, def *models.ToolDefinition, rawArgs json.RawMessage, args map[string]any) (string, error) {
	if e.sandbox == nil {
		return "", errors.New("sandbox is not available")
	}
	env, err := paramEnv(rawArgs, args)
	if err != nil {
		return "", err
	}
	result, err := e.sandbox.Execute(ctx, ExecSpec{
		Runtime: def.Runtime,
		Body:    def.Body,
		Env:     env,
		Network: def.Network,
		Timeout: time.Duration(def.TimeoutSecs) * time.Second,
	})
	if err != nil {
		return "", err
	}
	return formatOutput(result.Stdout, result.Stderr, result.ExitCode), nil
}

// runScript executes a bash or python body with arguments exported as
// environment variables named by parameter key. Keys must be valid
// identifier strings; the raw argument JSON rides along as TOOL_ARGS.
func runScript(ctx context.Context, interpreter, body string, rawArgs json.RawMessage, args map[string]any) (string, error) {
	env, err := paramEnv(rawArgs, args)
	if err != nil {
		return "", err
	}

	cmd := exec.CommandContext(ctx, interpreter, "-c", body)
	cmd.Env = os.Environ()
	for key, value := range env {
		cmd.Env = append(cmd.Env, key+"="+value)
	}

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			return "", runErr
		}
	}
	return formatOutput(stdout.String(), stderr.String(), exitCode), nil
}

func paramEnv(rawArgs json.RawMessage, args map[string]any) (map[string]string, error) {
	env := map[string]string{}
	for key, value := range args {
		if !identPattern.MatchString(key) {
			return nil, fmt.Errorf("parameter key %q is not a valid identifier", key)
		}
		switch v := value.(type) {
		case string:
			env[key] = v
		default:
			encoded, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("encode parameter %q: %w", key, err)
			}
			env[key] = string(encoded)
		}
	}
	if len(rawArgs) > 0 {
		env["TOOL_ARGS"] = string(rawArgs)
	}
	return env, nil
}

func formatOutput(stdout, stderr string, exitCode int) string {
	var out strings.Builder
	out.WriteString(stdout)
	if stderr != "" {
		if out.Len() > 0 {
			out.WriteString("\n--- stderr ---\n")
		}
		out.WriteString(stderr)
	}
	if exitCode != 0 {
		if out.Len() > 0 {
			out.WriteString("\n")
		}
		fmt.Fprintf(&out, "Exit code: %d", exitCode)
	}
	return out.String()
}

func errorResult(content string) models.ToolResult {
	return models.ToolResult{Content: content, IsError: true}
}
