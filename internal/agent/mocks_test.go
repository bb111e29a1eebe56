package agent

import (
	"context"
	"testing"

	"querynerd/internal/blackboard"
)

// --- MockPerceiver ---

type MockPerceiver struct {
	PerceiveFunc func(ctx context.Context, req PerceiveRequest) (*PerceptionSnapshot, error)
	Requests     []PerceiveRequest
}

func (m *MockPerceiver) Perceive(ctx context.Context, req PerceiveRequest) (*PerceptionSnapshot, error) {
	m.Requests = append(m.Requests, req)
	if m.PerceiveFunc != nil {
		return m.PerceiveFunc(ctx, req)
	}
	return testSnapshot("0.5", false, true), nil
}

// sequencePerceiver returns canned snapshots in order, repeating the last.
func sequencePerceiver(snapshots ...*PerceptionSnapshot) *MockPerceiver {
	calls := 0
	m := &MockPerceiver{}
	m.PerceiveFunc = func(ctx context.Context, req PerceiveRequest) (*PerceptionSnapshot, error) {
		i := calls
		if i >= len(snapshots) {
			i = len(snapshots) - 1
		}
		calls++
		// Copy so penalty mutations in one attempt cannot leak into the next.
		snap := *snapshots[i]
		return &snap, nil
	}
	return m
}

// --- MockDecider ---

type MockDecider struct {
	DecideFunc func(ctx context.Context, in DecisionInput) (DecisionOutput, error)
	Inputs     []DecisionInput
}

func (m *MockDecider) Decide(ctx context.Context, in DecisionInput) (DecisionOutput, error) {
	m.Inputs = append(m.Inputs, in)
	if m.DecideFunc != nil {
		return m.DecideFunc(ctx, in)
	}
	return DecisionOutput{
		Description: "run a code block",
		Type:        StepTypeCode,
		Code:        "print(1)",
		PlanText:    []string{"Step 0: run a code block"},
	}, nil
}

// --- MockExecutor ---

type MockExecutor struct {
	ExecuteFunc func(ctx context.Context, inv *ToolInvocation) ExecutorResponse
	Invocations []*ToolInvocation
}

func (m *MockExecutor) Execute(ctx context.Context, inv *ToolInvocation) ExecutorResponse {
	m.Invocations = append(m.Invocations, inv)
	if m.ExecuteFunc != nil {
		return m.ExecuteFunc(ctx, inv)
	}
	return ExecutorResponse{Status: ExecStatusSuccess, Result: "ok"}
}

// --- MockHuman ---

type MockHuman struct {
	Answers []string
	Prompts []string
}

func (m *MockHuman) Ask(prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if len(m.Answers) == 0 {
		return "", nil
	}
	answer := m.Answers[0]
	m.Answers = m.Answers[1:]
	return answer, nil
}

func testSnapshot(confidence string, originalAchieved, localAchieved bool) *PerceptionSnapshot {
	return &PerceptionSnapshot{
		Entities:             []string{},
		ResultRequirement:    "a direct answer",
		OriginalGoalAchieved: originalAchieved,
		Reasoning:            "test reasoning",
		LocalGoalAchieved:    localAchieved,
		LocalReasoning:       "test local reasoning",
		LastToolUseSummary:   "None",
		SolutionSummary:      "test summary",
		ConfidenceRaw:        confidence,
	}
}

func newTestLoop(t *testing.T, cfg LoopConfig) (*Loop, *blackboard.Blackboard) {
	t.Helper()
	board := blackboard.New()
	cfg.Board = board
	loop, err := NewLoop(cfg)
	if err != nil {
		t.Fatalf("NewLoop: %v", err)
	}
	return loop, board
}
