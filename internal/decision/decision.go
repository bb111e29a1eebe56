// Package decision implements the planning collaborator: given the query,
// the latest judgment and (mid-session) the plan so far, it asks an LLM
// for the next step. Malformed model output degrades to a NOP decision so
// the control loop can surface a clarification instead of crashing.
package decision

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"querynerd/internal/agent"
	"querynerd/internal/logging"
	"querynerd/internal/perception"
)

// Decision is the LLM-backed decision collaborator.
type Decision struct {
	client perception.LLMClient
	prompt string
}

// New creates a decision collaborator using the built-in prompt.
func New(client perception.LLMClient) *Decision {
	return &Decision{client: client, prompt: defaultDecisionPrompt}
}

// NewFromPromptFile loads the prompt template from a file.
func NewFromPromptFile(client perception.LLMClient, path string) (*Decision, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read decision prompt: %w", err)
	}
	return &Decision{client: client, prompt: string(data)}, nil
}

// input mirrors the wire payload rendered into the decision prompt.
type input struct {
	PlanMode           string                    `json:"plan_mode"`
	PlanningStrategy   string                    `json:"planning_strategy"`
	OriginalQuery      string                    `json:"original_query"`
	Perception         *agent.PerceptionSnapshot `json:"perception,omitempty"`
	CurrentPlanVersion int                       `json:"current_plan_version,omitempty"`
	CurrentPlan        []string                  `json:"current_plan,omitempty"`
	CompletedSteps     []*agent.Step             `json:"completed_steps,omitempty"`
	CurrentStep        *agent.Step               `json:"current_step,omitempty"`
	ToolPerformance    map[string]any            `json:"tool_performance_summary"`
}

// output is the wire form of a decision reply.
type output struct {
	StepIndex   int      `json:"step_index"`
	Description string   `json:"description"`
	Type        string   `json:"type"`
	Code        string   `json:"code"`
	Conclusion  string   `json:"conclusion"`
	PlanText    []string `json:"plan_text"`
}

// Decide asks the model for the next step. Only transport failures return
// an error.
func (d *Decision) Decide(ctx context.Context, in agent.DecisionInput) (agent.DecisionOutput, error) {
	perf := in.ToolPerformance
	if perf == nil {
		perf = map[string]any{}
	}
	payload, err := json.MarshalIndent(input{
		PlanMode:           in.PlanMode,
		PlanningStrategy:   in.Strategy,
		OriginalQuery:      in.OriginalQuery,
		Perception:         in.Perception,
		CurrentPlanVersion: in.CurrentPlanVersion,
		CurrentPlan:        in.CurrentPlan,
		CompletedSteps:     in.CompletedSteps,
		CurrentStep:        in.CurrentStep,
		ToolPerformance:    perf,
	}, "", "  ")
	if err != nil {
		return agent.DecisionOutput{}, fmt.Errorf("failed to marshal decision input: %w", err)
	}

	fullPrompt := fmt.Sprintf("%s\n\n```json\n%s\n```", d.prompt, payload)
	reply, err := d.client.Complete(ctx, fullPrompt)
	if err != nil {
		return agent.DecisionOutput{}, fmt.Errorf("decision completion: %w", err)
	}

	out := parseOutput(reply)
	logging.Decision("mode=%s type=%s step_index=%d", in.PlanMode, out.Type, out.StepIndex)
	return out, nil
}

// parseOutput decodes and validates a decision reply, degrading to a NOP
// decision when the reply is unusable.
func parseOutput(reply string) agent.DecisionOutput {
	block, ok := perception.ExtractJSONBlock(reply)
	if !ok {
		return nopDecision("decision reply carried no JSON")
	}
	var raw output
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return nopDecision("decision reply was not valid JSON")
	}

	stepType := agent.StepType(raw.Type)
	switch stepType {
	case agent.StepTypeCode, agent.StepTypeConclude, agent.StepTypeNOP:
	default:
		return nopDecision(fmt.Sprintf("decision reply had unknown type %q", raw.Type))
	}
	if raw.Description == "" {
		raw.Description = "No description provided."
	}
	if len(raw.PlanText) == 0 {
		raw.PlanText = []string{"Step 0: " + raw.Description}
	}
	return agent.DecisionOutput{
		StepIndex:   raw.StepIndex,
		Description: raw.Description,
		Type:        stepType,
		Code:        raw.Code,
		Conclusion:  raw.Conclusion,
		PlanText:    raw.PlanText,
	}
}

func nopDecision(reason string) agent.DecisionOutput {
	logging.DecisionError("%s; degrading to NOP", reason)
	return agent.DecisionOutput{
		Description: "Decision output could not be parsed; clarification required.",
		Type:        agent.StepTypeNOP,
		PlanText:    []string{"Step 0: Ask the user to clarify the request."},
	}
}
