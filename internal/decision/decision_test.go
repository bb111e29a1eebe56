package decision

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"querynerd/internal/agent"
)

type mockClient struct {
	CompleteFunc func(ctx context.Context, prompt string) (string, error)
	Prompts      []string
}

func (m *mockClient) Complete(ctx context.Context, prompt string) (string, error) {
	m.Prompts = append(m.Prompts, prompt)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, prompt)
	}
	return "{}", nil
}

func (m *mockClient) CompleteWithSystem(ctx context.Context, system, user string) (string, error) {
	return m.Complete(ctx, user)
}

func TestDecideParsesCodeStep(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return "```json\n" + `{
				"step_index": 0,
				"description": "look up the population",
				"type": "CODE",
				"code": "search('population of France')",
				"conclusion": "",
				"plan_text": ["Step 0: look up the population", "Step 1: conclude"]
			}` + "\n```", nil
		},
	}

	out, err := New(client).Decide(context.Background(), agent.DecisionInput{
		PlanMode:      agent.PlanModeInitial,
		OriginalQuery: "population of France?",
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Type != agent.StepTypeCode {
		t.Fatalf("type = %s", out.Type)
	}
	if out.Code != "search('population of France')" {
		t.Fatalf("code = %q", out.Code)
	}
	if len(out.PlanText) != 2 {
		t.Fatalf("plan = %v", out.PlanText)
	}
}

func TestDecideBuildsMidSessionPayload(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"type": "CONCLUDE", "description": "done", "conclusion": "42", "plan_text": ["Step 0: done"]}`, nil
		},
	}
	step := &agent.Step{Index: 0, Description: "first step", Type: agent.StepTypeCode}

	out, err := New(client).Decide(context.Background(), agent.DecisionInput{
		PlanMode:           agent.PlanModeMidSession,
		Strategy:           "exploratory",
		OriginalQuery:      "the query",
		CurrentPlanVersion: 2,
		CurrentPlan:        []string{"Step 0: first step"},
		CompletedSteps:     []*agent.Step{step},
		CurrentStep:        step,
	})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Type != agent.StepTypeConclude || out.Conclusion != "42" {
		t.Fatalf("output = %+v", out)
	}

	payload := payloadFromPrompt(t, client.Prompts[0])
	if payload["plan_mode"] != agent.PlanModeMidSession {
		t.Fatalf("plan_mode = %v", payload["plan_mode"])
	}
	if payload["current_plan_version"] != float64(2) {
		t.Fatalf("current_plan_version = %v", payload["current_plan_version"])
	}
	if payload["current_step"] == nil {
		t.Fatal("current_step missing from payload")
	}
}

func TestDecideUnknownTypeDegradesToNOP(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"type": "EXPLODE", "description": "boom"}`, nil
		},
	}
	out, err := New(client).Decide(context.Background(), agent.DecisionInput{PlanMode: agent.PlanModeInitial})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Type != agent.StepTypeNOP {
		t.Fatalf("type = %s, want NOP degrade", out.Type)
	}
	if len(out.PlanText) == 0 {
		t.Fatal("degraded decision must still carry a plan line")
	}
}

func TestDecideMalformedReplyDegradesToNOP(t *testing.T) {
	for _, reply := range []string{"no json at all", "```json\n{broken\n```"} {
		client := &mockClient{
			CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
				return reply, nil
			},
		}
		out, err := New(client).Decide(context.Background(), agent.DecisionInput{PlanMode: agent.PlanModeInitial})
		if err != nil {
			t.Fatalf("reply %q: %v", reply, err)
		}
		if out.Type != agent.StepTypeNOP {
			t.Fatalf("reply %q: type = %s, want NOP", reply, out.Type)
		}
	}
}

func TestDecideDefaultsMissingFields(t *testing.T) {
	client := &mockClient{
		CompleteFunc: func(ctx context.Context, prompt string) (string, error) {
			return `{"type": "CODE", "code": "run()"}`, nil
		},
	}
	out, err := New(client).Decide(context.Background(), agent.DecisionInput{PlanMode: agent.PlanModeInitial})
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if out.Description == "" {
		t.Fatal("missing description not defaulted")
	}
	if len(out.PlanText) != 1 || !strings.HasPrefix(out.PlanText[0], "Step 0:") {
		t.Fatalf("plan default = %v", out.PlanText)
	}
}

// payloadFromPrompt extracts the fenced JSON payload appended to the
// prompt. The template carries its own example fence, so take the last one.
func payloadFromPrompt(t *testing.T, prompt string) map[string]any {
	t.Helper()
	idx := strings.LastIndex(prompt, "```json")
	if idx < 0 {
		t.Fatalf("prompt carries no JSON payload:\n%s", prompt)
	}
	rest := prompt[idx+len("```json"):]
	end := strings.Index(rest, "```")
	if end < 0 {
		t.Fatalf("payload fence not closed:\n%s", prompt)
	}
	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(rest[:end])), &payload); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	return payload
}
