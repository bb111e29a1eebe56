package agent

import "context"

// Snapshot types passed to the perception collaborator.
const (
	SnapshotUserQuery  = "user_query"
	SnapshotStepResult = "step_result"
)

// Plan modes passed to the decision collaborator.
const (
	PlanModeInitial    = "initial"
	PlanModeMidSession = "mid_session"
)

// PerceiveRequest carries everything the perception collaborator needs to
// judge the current situation.
type PerceiveRequest struct {
	RawInput        string
	SnapshotType    string
	Memory          []MemoryEntry
	CurrentPlan     []string
	ToolPerformance map[string]any
}

// Perceiver turns raw input plus memory into a structured judgment.
// Implementations must return a fully defaulted snapshot: missing fields
// filled, booleans and confidence coerced, never a parse error.
type Perceiver interface {
	Perceive(ctx context.Context, req PerceiveRequest) (*PerceptionSnapshot, error)
}

// DecisionInput is the context handed to the decision collaborator.
// Initial mode carries only the query and perception; mid-session mode
// adds the current plan, completed steps and the step being evaluated.
type DecisionInput struct {
	PlanMode           string
	Strategy           string
	OriginalQuery      string
	Perception         *PerceptionSnapshot
	CurrentPlanVersion int
	CurrentPlan        []string
	CompletedSteps     []*Step
	CurrentStep        *Step
	ToolPerformance    map[string]any
}

// DecisionOutput is the next step proposed by the decision collaborator.
type DecisionOutput struct {
	StepIndex   int
	Description string
	Type        StepType
	Code        string
	Conclusion  string
	PlanText    []string
}

// Decider produces the next step for a session.
type Decider interface {
	Decide(ctx context.Context, in DecisionInput) (DecisionOutput, error)
}

// Executor response statuses.
const (
	ExecStatusSuccess = "success"
	ExecStatusError   = "error"
)

// ExecutorResponse is the outcome of running a tool invocation. An error
// status is not fatal to the loop; it triggers the human fallback.
type ExecutorResponse struct {
	Status      string `json:"status"`
	Result      string `json:"result"`
	Error       string `json:"error,omitempty"`
	HumanInLoop bool   `json:"human_in_loop,omitempty"`
	ToolError   string `json:"tool_error,omitempty"`
}

// Executor runs a tool invocation. Tool failures come back as an error
// status, never as a Go error.
type Executor interface {
	Execute(ctx context.Context, inv *ToolInvocation) ExecutorResponse
}

// HumanInput is the blocking human-in-the-loop prompt port. It is used for
// tool-failure substitution, escalation plan revision and escalation final
// answers, and is mockable in tests.
type HumanInput interface {
	Ask(prompt string) (string, error)
}

// MemorySearcher retrieves prior-session matches for a query.
type MemorySearcher interface {
	Search(query string, limit int) []MemoryEntry
}

// ToolPerformanceSource summarizes recent tool behavior for the
// perception and decision collaborators.
type ToolPerformanceSource interface {
	PerformanceSummary() map[string]any
}

// Recorder persists session snapshots as the run progresses.
type Recorder interface {
	Record(s *Session)
}
