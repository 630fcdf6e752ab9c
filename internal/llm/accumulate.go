package llm

import (
	"encoding/json"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/hearthfire/hearth/pkg/models"
)

type accumulatedCall struct {
	index int
	id    string
	name  string
	args  strings.Builder
}

// Accumulator reassembles tool calls from streaming fragments. Fragments
// sharing an index belong to one call; argument text is concatenated in
// arrival order.
type Accumulator struct {
	calls map[int]*accumulatedCall
}

// NewAccumulator creates an empty tool-call accumulator.
func NewAccumulator() *Accumulator {
	return &Accumulator{calls: map[int]*accumulatedCall{}}
}

// Add folds one fragment into the accumulator.
func (a *Accumulator) Add(delta *ToolCallDelta) {
	if delta == nil {
		return
	}
	call, ok := a.calls[delta.Index]
	if !ok {
		call = &accumulatedCall{index: delta.Index}
		a.calls[delta.Index] = call
	}
	if delta.ID != "" {
		call.id = delta.ID
	}
	if delta.Name != "" {
		call.name = delta.Name
	}
	call.args.WriteString(delta.Arguments)
}

// Empty reports whether any fragments were accumulated.
func (a *Accumulator) Empty() bool {
	return len(a.calls) == 0
}

// Calls returns the assembled tool calls in index order.
func (a *Accumulator) Calls() []models.ToolCall {
	ordered := make([]*accumulatedCall, 0, len(a.calls))
	for _, call := range a.calls {
		ordered = append(ordered, call)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].index < ordered[j].index })

	out := make([]models.ToolCall, 0, len(ordered))
	for _, call := range ordered {
		id := call.id
		if id == "" {
			id = uuid.NewString()
		}
		args := call.args.String()
		if strings.TrimSpace(args) == "" {
			args = "{}"
		}
		out = append(out, models.ToolCall{
			ID:        id,
			Name:      call.name,
			Arguments: json.RawMessage(args),
		})
	}
	return out
}
