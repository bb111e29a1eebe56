// Package agent implements the session/plan state machine and the control
// loop that drives a query through perceive -> decide -> execute cycles.
// External collaborators (perception, decision, executor, memory, human
// input) are consumed through interfaces defined here.
package agent

import "strconv"

// StepType classifies a planned unit of work.
type StepType string

const (
	StepTypeCode     StepType = "CODE"     // Execute a tool invocation
	StepTypeConclude StepType = "CONCLUDE" // Terminal answer candidate
	StepTypeNOP      StepType = "NOP"      // Clarification required
)

// StepStatus is the lifecycle state of a step attempt.
type StepStatus string

const (
	StatusPending       StepStatus = "pending"
	StatusCompleted     StepStatus = "completed"
	StatusFailed        StepStatus = "failed"
	StatusSkipped       StepStatus = "skipped"
	StatusClarification StepStatus = "clarification_needed"
)

// ToolInvocation names a tool plus its arguments. Build it with
// NewToolInvocation and treat it as immutable afterwards.
type ToolInvocation struct {
	ToolName      string         `json:"tool_name"`
	ToolArguments map[string]any `json:"tool_arguments"`
}

// NewToolInvocation copies the argument map so later caller mutations
// cannot leak into recorded plan history.
func NewToolInvocation(name string, args map[string]any) *ToolInvocation {
	copied := make(map[string]any, len(args))
	for k, v := range args {
		copied[k] = v
	}
	return &ToolInvocation{ToolName: name, ToolArguments: copied}
}

// PerceptionSnapshot is the structured verdict produced by the perception
// collaborator, once before planning and once per step attempt.
// Confidence is kept in wire form (string); use Confidence() to parse.
type PerceptionSnapshot struct {
	Entities             []string `json:"entities"`
	ResultRequirement    string   `json:"result_requirement"`
	OriginalGoalAchieved bool     `json:"original_goal_achieved"`
	Reasoning            string   `json:"reasoning"`
	LocalGoalAchieved    bool     `json:"local_goal_achieved"`
	LocalReasoning       string   `json:"local_reasoning"`
	LastToolUseSummary   string   `json:"last_tooluse_summary"`
	SolutionSummary      string   `json:"solution_summary"`
	ConfidenceRaw        string   `json:"confidence"`
}

// Confidence parses the snapshot's confidence defensively. Unparseable
// values report ok=false and are treated as absent, never as zero.
func (p *PerceptionSnapshot) Confidence() (float64, bool) {
	if p == nil {
		return 0, false
	}
	return ParseConfidence(p.ConfidenceRaw)
}

// ParseConfidence accepts a numeric string; anything else is absent.
func ParseConfidence(raw string) (float64, bool) {
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

// Step is one attempt at a unit of planned work. Replanning never mutates
// an existing Step; it appends a fresh Step under the same index in the
// session's revision history.
type Step struct {
	Index           int                 `json:"index"`
	Description     string              `json:"description"`
	Type            StepType            `json:"type"`
	Code            *ToolInvocation     `json:"code,omitempty"`
	Conclusion      string              `json:"conclusion,omitempty"`
	ExecutionResult any                 `json:"execution_result,omitempty"`
	Error           string              `json:"error,omitempty"`
	Perception      *PerceptionSnapshot `json:"perception,omitempty"`
	ConfidenceDelta *float64            `json:"confidence_delta,omitempty"`
	Status          StepStatus          `json:"status"`
	Attempts        int                 `json:"attempts"`
	WasReplanned    bool                `json:"was_replanned"`
	ParentIndex     *int                `json:"parent_index,omitempty"`
}

// PlanVersion is one revision of the plan: the human-readable plan lines
// plus the steps planned under that revision.
type PlanVersion struct {
	PlanText []string `json:"plan_text"`
	Steps    []*Step  `json:"steps"`
}

// MemoryEntry is a retrieved memory item fed into perception, either from
// long-term memory search or from the session's rolling failure window.
type MemoryEntry struct {
	Query             string `json:"query"`
	ResultRequirement string `json:"result_requirement"`
	SolutionSummary   string `json:"solution_summary"`
}
