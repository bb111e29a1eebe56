package perception

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"

	"querynerd/internal/agent"
	"querynerd/internal/logging"
)

// Input is the structured payload rendered into the perception prompt.
type Input struct {
	RunID           string                `json:"run_id"`
	SnapshotType    string                `json:"snapshot_type"`
	RawInput        string                `json:"raw_input"`
	MemoryExcerpt   map[string]memoryItem `json:"memory_excerpt"`
	ToolPerformance map[string]any        `json:"tool_performance_summary"`
	PrevObjective   string                `json:"prev_objective"`
	Timestamp       string                `json:"timestamp"`
	SchemaVersion   int                   `json:"schema_version"`
	CurrentPlan     any                   `json:"current_plan"`
	AnalysisHint    string                `json:"analysis_hint"`
}

type memoryItem struct {
	Query             string `json:"query"`
	ResultRequirement string `json:"result_requirement"`
	SolutionSummary   string `json:"solution_summary"`
}

// Perception is the LLM-backed perception collaborator.
type Perception struct {
	client LLMClient
	prompt string
}

// New creates a perception collaborator using the built-in prompt.
func New(client LLMClient) *Perception {
	return &Perception{client: client, prompt: defaultPerceptionPrompt}
}

// NewFromPromptFile loads the prompt template from a file.
func NewFromPromptFile(client LLMClient, path string) (*Perception, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read perception prompt: %w", err)
	}
	return &Perception{client: client, prompt: string(data)}, nil
}

// Perceive judges the raw input against memory and the current plan and
// returns a fully normalized snapshot. Only transport failures return an
// error; malformed model output degrades to the fallback judgment.
func (p *Perception) Perceive(ctx context.Context, req agent.PerceiveRequest) (*agent.PerceptionSnapshot, error) {
	input := p.buildInput(req)
	payload, err := json.MarshalIndent(input, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal perception input: %w", err)
	}

	fullPrompt := fmt.Sprintf("%s\n\n```json\n%s\n```", p.prompt, payload)
	reply, err := p.client.Complete(ctx, fullPrompt)
	if err != nil {
		return nil, fmt.Errorf("perception completion: %w", err)
	}

	snapshot := ParseJudgment(reply)
	logging.Perception("snapshot_type=%s confidence=%s original=%v local=%v",
		req.SnapshotType, snapshot.ConfidenceRaw,
		snapshot.OriginalGoalAchieved, snapshot.LocalGoalAchieved)
	return snapshot, nil
}

func (p *Perception) buildInput(req agent.PerceiveRequest) Input {
	excerpt := make(map[string]memoryItem, len(req.Memory))
	for i, m := range req.Memory {
		excerpt[fmt.Sprintf("memory_%d", i+1)] = memoryItem{
			Query:             m.Query,
			ResultRequirement: m.ResultRequirement,
			SolutionSummary:   m.SolutionSummary,
		}
	}
	perf := req.ToolPerformance
	if perf == nil {
		perf = map[string]any{}
	}
	var plan any = "Initial query mode, plan not created"
	if len(req.CurrentPlan) > 0 {
		plan = req.CurrentPlan
	}
	return Input{
		RunID:           uuid.NewString(),
		SnapshotType:    req.SnapshotType,
		RawInput:        req.RawInput,
		MemoryExcerpt:   excerpt,
		ToolPerformance: perf,
		Timestamp:       time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		SchemaVersion:   1,
		CurrentPlan:     plan,
	}
}
