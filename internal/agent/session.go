package agent

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// TerminalState is the session's final outcome block. It is written only
// by MarkComplete / FinalizeHumanAssisted; last write wins.
type TerminalState struct {
	OriginalGoalAchieved bool    `json:"original_goal_achieved"`
	FinalAnswer          string  `json:"final_answer"`
	Confidence           float64 `json:"confidence"`
	ReasoningNote        string  `json:"reasoning_note"`
	SolutionSummary      string  `json:"solution_summary"`
}

// Session owns the full history of one control-loop run: every plan
// version, every step attempt keyed by step index, and the terminal state.
// It is mutated only by the control loop and never deleted, only
// serialized for audit and replay.
type Session struct {
	SessionID     string
	OriginalQuery string
	Perception    *PerceptionSnapshot
	PlanVersions  []*PlanVersion
	State         TerminalState

	stepHistory map[int][]*Step
}

// NewSession creates a session for a single user query.
func NewSession(query string) *Session {
	return &Session{
		SessionID:     uuid.NewString(),
		OriginalQuery: query,
		stepHistory:   make(map[int][]*Step),
	}
}

// AddPerception stores the pre-plan judgment. Later calls overwrite.
func (s *Session) AddPerception(snapshot *PerceptionSnapshot) {
	s.Perception = snapshot
}

// AddPlanVersion appends a new plan version and records each step in the
// per-index revision history. This is the sole mutation point for plan
// history, which keeps indices and revision lists consistent. Returns the
// first step of the version, or nil for a zero-step (human-revised) plan.
func (s *Session) AddPlanVersion(planText []string, steps []*Step) *Step {
	version := &PlanVersion{
		PlanText: append([]string(nil), planText...),
		Steps:    append([]*Step(nil), steps...),
	}
	s.PlanVersions = append(s.PlanVersions, version)
	for _, step := range steps {
		s.stepHistory[step.Index] = append(s.stepHistory[step.Index], step)
	}
	if len(steps) == 0 {
		return nil
	}
	return steps[0]
}

// StepHistory returns all attempts recorded at a step index, oldest first.
func (s *Session) StepHistory(index int) []*Step {
	return append([]*Step(nil), s.stepHistory[index]...)
}

// LastConfidence scans the revision history at index from most recent to
// oldest, optionally skipping the newest entry, and returns the first
// parseable confidence. Unparseable confidences are skipped, not zeroed.
func (s *Session) LastConfidence(index int, excludeCurrent bool) (float64, bool) {
	history := s.stepHistory[index]
	if excludeCurrent && len(history) > 0 {
		history = history[:len(history)-1]
	}
	for i := len(history) - 1; i >= 0; i-- {
		if conf, ok := history[i].Perception.Confidence(); ok {
			return conf, true
		}
	}
	return 0, false
}

// ComputeConfidenceDelta sets step.ConfidenceDelta to current minus the
// most recent prior attempt at the same index. The delta stays unset when
// either side lacks a parseable confidence. Call it after the step's
// revision has been recorded, so "prior" excludes the attempt being scored.
func (s *Session) ComputeConfidenceDelta(step *Step) (float64, bool) {
	current, ok := step.Perception.Confidence()
	if !ok {
		return 0, false
	}
	previous, ok := s.LastConfidence(step.Index, true)
	if !ok {
		return 0, false
	}
	delta := current - previous
	step.ConfidenceDelta = &delta
	return delta, true
}

// NextStepIndex is the index to assign to the next freshly planned step:
// the total number of steps recorded across all plan versions so far.
func (s *Session) NextStepIndex() int {
	total := 0
	for _, v := range s.PlanVersions {
		total += len(v.Steps)
	}
	return total
}

// MarkComplete writes the terminal state from a judgment. The final answer
// falls back to the judgment's solution summary; confidence falls back to
// fallbackConfidence only when the judgment has no usable confidence.
func (s *Session) MarkComplete(p *PerceptionSnapshot, finalAnswer string, fallbackConfidence float64) {
	if finalAnswer == "" {
		finalAnswer = p.SolutionSummary
	}
	confidence := fallbackConfidence
	if v, ok := p.Confidence(); ok {
		confidence = v
	}
	s.State = TerminalState{
		OriginalGoalAchieved: p.OriginalGoalAchieved,
		FinalAnswer:          finalAnswer,
		Confidence:           confidence,
		ReasoningNote:        p.Reasoning,
		SolutionSummary:      p.SolutionSummary,
	}
}

// FinalizeHumanAssisted writes the terminal state from a human-supplied
// answer after escalation, at fixed confidence 0.95.
func (s *Session) FinalizeHumanAssisted(finalAnswer, reasoningNote string) {
	s.State = TerminalState{
		OriginalGoalAchieved: true,
		FinalAnswer:          finalAnswer,
		Confidence:           0.95,
		ReasoningNote:        reasoningNote,
		SolutionSummary:      finalAnswer,
	}
}

// Finalized reports whether a terminal-success write has happened.
func (s *Session) Finalized() bool {
	return s.State.OriginalGoalAchieved || s.State.FinalAnswer != ""
}

// SessionSnapshot is the read-only projection exported for audit. It holds
// only completed steps so in-flight attempts never leak into the official
// record.
type SessionSnapshot struct {
	SessionID     string   `json:"session_id"`
	Query         string   `json:"query"`
	FinalPlan     []string `json:"final_plan"`
	FinalSteps    []*Step  `json:"final_steps"`
	FinalAnswer   string   `json:"final_answer"`
	Confidence    float64  `json:"confidence"`
	ReasoningNote string   `json:"reasoning_note"`
}

// Snapshot builds the canonical externally visible record of the session.
func (s *Session) Snapshot() SessionSnapshot {
	snap := SessionSnapshot{
		SessionID:     s.SessionID,
		Query:         s.OriginalQuery,
		FinalPlan:     []string{},
		FinalSteps:    []*Step{},
		FinalAnswer:   s.State.FinalAnswer,
		Confidence:    s.State.Confidence,
		ReasoningNote: s.State.ReasoningNote,
	}
	if len(s.PlanVersions) > 0 {
		snap.FinalPlan = append([]string(nil), s.PlanVersions[len(s.PlanVersions)-1].PlanText...)
	}
	for _, version := range s.PlanVersions {
		for _, step := range version.Steps {
			if step.Status == StatusCompleted {
				snap.FinalSteps = append(snap.FinalSteps, step)
			}
		}
	}
	return snap
}

// sessionExport is the full serialized form, including every revision.
type sessionExport struct {
	SessionID     string              `json:"session_id"`
	OriginalQuery string              `json:"original_query"`
	Perception    *PerceptionSnapshot `json:"perception"`
	PlanVersions  []*PlanVersion      `json:"plan_versions"`
	StepHistory   map[string][]*Step  `json:"step_history"`
	StateSnapshot SessionSnapshot     `json:"state_snapshot"`
}

// ToJSON serializes the complete session history for audit and replay.
func (s *Session) ToJSON() ([]byte, error) {
	export := sessionExport{
		SessionID:     s.SessionID,
		OriginalQuery: s.OriginalQuery,
		Perception:    s.Perception,
		PlanVersions:  s.PlanVersions,
		StepHistory:   make(map[string][]*Step, len(s.stepHistory)),
		StateSnapshot: s.Snapshot(),
	}
	for index, revisions := range s.stepHistory {
		export.StepHistory[strconv.Itoa(index)] = revisions
	}
	return json.MarshalIndent(export, "", "  ")
}

// RenderPlanHistory formats every plan version and step for trace output.
func (s *Session) RenderPlanHistory() string {
	lines := []string{"Plan History:"}
	for i, version := range s.PlanVersions {
		lines = append(lines, fmt.Sprintf("v%d:", i+1))
		for _, step := range version.Steps {
			parent := ""
			if step.WasReplanned && step.ParentIndex != nil {
				parent = fmt.Sprintf(" (replan from %d)", *step.ParentIndex)
			}
			delta := ""
			if step.ConfidenceDelta != nil {
				delta = fmt.Sprintf(" Δconf=%+.2f", *step.ConfidenceDelta)
			}
			lines = append(lines, fmt.Sprintf("  - Step %d: %s%s%s", step.Index, step.Description, parent, delta))
		}
	}
	return strings.Join(lines, "\n")
}
