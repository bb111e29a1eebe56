package action

import (
	"context"
	"fmt"
	"testing"

	"querynerd/internal/agent"
)

type recordedCall struct {
	Tool       string
	Status     string
	DurationMs float64
	ErrMsg     string
}

type mockSink struct {
	Calls []recordedCall
}

func (m *mockSink) LogToolCall(tool, status string, durationMs float64, errMsg string) {
	m.Calls = append(m.Calls, recordedCall{tool, status, durationMs, errMsg})
}

func TestRegisterValidation(t *testing.T) {
	r := NewRegistry()
	if err := r.Register("", func(ctx context.Context, args map[string]any) (string, error) {
		return "", nil
	}); err == nil {
		t.Fatal("empty tool name accepted")
	}
	if err := r.Register("tool", nil); err == nil {
		t.Fatal("nil tool func accepted")
	}
	if err := r.Register("tool", func(ctx context.Context, args map[string]any) (string, error) {
		return "ok", nil
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if names := r.Names(); len(names) != 1 || names[0] != "tool" {
		t.Fatalf("Names = %v", names)
	}
}

func TestExecuteSuccess(t *testing.T) {
	r := NewRegistry()
	sink := &mockSink{}
	r.SetMetrics(sink)
	r.Register("echo", func(ctx context.Context, args map[string]any) (string, error) {
		return fmt.Sprintf("%v", args["text"]), nil
	})

	resp := r.Execute(context.Background(), agent.NewToolInvocation("echo", map[string]any{"text": "hello"}))
	if resp.Status != agent.ExecStatusSuccess {
		t.Fatalf("status = %s", resp.Status)
	}
	if resp.Result != "hello" {
		t.Fatalf("result = %q", resp.Result)
	}
	if len(sink.Calls) != 1 || sink.Calls[0].Status != agent.ExecStatusSuccess {
		t.Fatalf("metrics = %+v", sink.Calls)
	}
}

func TestExecuteToolError(t *testing.T) {
	r := NewRegistry()
	sink := &mockSink{}
	r.SetMetrics(sink)
	r.Register("broken", func(ctx context.Context, args map[string]any) (string, error) {
		return "", fmt.Errorf("it broke")
	})

	resp := r.Execute(context.Background(), agent.NewToolInvocation("broken", nil))
	if resp.Status != agent.ExecStatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if resp.Error != "it broke" {
		t.Fatalf("error = %q", resp.Error)
	}
	if len(sink.Calls) != 1 || sink.Calls[0].ErrMsg != "it broke" {
		t.Fatalf("metrics = %+v", sink.Calls)
	}
}

func TestExecuteUnknownTool(t *testing.T) {
	r := NewRegistry()
	sink := &mockSink{}
	r.SetMetrics(sink)

	resp := r.Execute(context.Background(), agent.NewToolInvocation("nope", nil))
	if resp.Status != agent.ExecStatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
	if len(sink.Calls) != 1 || sink.Calls[0].Tool != "nope" {
		t.Fatalf("unknown tool not recorded: %+v", sink.Calls)
	}
}

func TestExecuteNilInvocation(t *testing.T) {
	r := NewRegistry()
	resp := r.Execute(context.Background(), nil)
	if resp.Status != agent.ExecStatusError {
		t.Fatalf("status = %s, want error", resp.Status)
	}
}
