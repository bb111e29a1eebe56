// Package action implements the executor collaborator as a tool registry.
// Tool failures are reported as error-status responses, never as Go
// errors: the control loop's human fallback owns recovery.
package action

import (
	"context"
	"fmt"
	"sync"
	"time"

	"querynerd/internal/agent"
	"querynerd/internal/logging"
)

// ToolFunc is a registered tool implementation.
type ToolFunc func(ctx context.Context, args map[string]any) (string, error)

// MetricsSink receives per-call tool performance records.
type MetricsSink interface {
	LogToolCall(tool, status string, durationMs float64, errMsg string)
}

// Registry maps tool names to implementations and implements
// agent.Executor.
type Registry struct {
	mu      sync.RWMutex
	tools   map[string]ToolFunc
	metrics MetricsSink
}

// NewRegistry creates an empty tool registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]ToolFunc)}
}

// SetMetrics attaches a performance sink; nil disables metrics.
func (r *Registry) SetMetrics(sink MetricsSink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.metrics = sink
}

// Register adds a tool under a name. Registering an existing name
// replaces the previous implementation.
func (r *Registry) Register(name string, fn ToolFunc) error {
	if name == "" {
		return fmt.Errorf("tool name cannot be empty")
	}
	if fn == nil {
		return fmt.Errorf("tool func cannot be nil for %s", name)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tools[name] = fn
	logging.Action("registered tool %s", name)
	return nil
}

// Names lists registered tools.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.tools))
	for name := range r.tools {
		names = append(names, name)
	}
	return names
}

// Execute runs a tool invocation and records its duration and status.
func (r *Registry) Execute(ctx context.Context, inv *agent.ToolInvocation) agent.ExecutorResponse {
	if inv == nil {
		return agent.ExecutorResponse{Status: agent.ExecStatusError, Error: "no tool invocation supplied"}
	}

	r.mu.RLock()
	fn, ok := r.tools[inv.ToolName]
	sink := r.metrics
	r.mu.RUnlock()

	if !ok {
		errMsg := fmt.Sprintf("unknown tool: %s", inv.ToolName)
		r.logCall(sink, inv.ToolName, agent.ExecStatusError, 0, errMsg)
		return agent.ExecutorResponse{Status: agent.ExecStatusError, Error: errMsg}
	}

	start := time.Now()
	result, err := fn(ctx, inv.ToolArguments)
	durationMs := float64(time.Since(start).Microseconds()) / 1000.0

	if err != nil {
		r.logCall(sink, inv.ToolName, agent.ExecStatusError, durationMs, err.Error())
		logging.ActionError("tool %s failed in %.2fms: %v", inv.ToolName, durationMs, err)
		return agent.ExecutorResponse{Status: agent.ExecStatusError, Error: err.Error()}
	}

	r.logCall(sink, inv.ToolName, agent.ExecStatusSuccess, durationMs, "")
	logging.Action("tool %s completed in %.2fms", inv.ToolName, durationMs)
	return agent.ExecutorResponse{Status: agent.ExecStatusSuccess, Result: result}
}

func (r *Registry) logCall(sink MetricsSink, tool, status string, durationMs float64, errMsg string) {
	if sink != nil {
		sink.LogToolCall(tool, status, durationMs, errMsg)
	}
}
