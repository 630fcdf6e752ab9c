package tools

import (
	"context"
	"time"

	"github.com/hearthfire/hearth/pkg/models"
)

// ExecSpec describes one sandboxed execution request.
type ExecSpec struct {
	Runtime models.Runtime
	// Body is script source, or a module path for wasm runtimes.
	Body    string
	Env     map[string]string
	Network bool
	Timeout time.Duration
}

// ExecResult carries the captured output of a sandboxed execution.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Sandbox is the external execution collaborator. Implementations own
// container/wasm orchestration and resource limits; the executor only
// hands off and formats results.
type Sandbox interface {
	Execute(ctx context.Context, spec ExecSpec) (*ExecResult, error)
}
