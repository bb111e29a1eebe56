package agent

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"

	"querynerd/internal/blackboard"
	"querynerd/internal/logging"
)

// Budgets bounding LLM call volume and wall-clock latency per run. They
// are not correctness guarantees; exhaustion escalates to a human.
const (
	maxSteps               = 3
	maxRetries             = 3
	failureWindowSize      = 3
	lowConfidenceThreshold = 0.3
	offTopicPenalty        = 0.3
	failureSummaryLimit    = 300
	memorySearchLimit      = 5
)

// Outcome is the typed result of a session run. Clarification and plan
// exhaustion leave the session non-terminal; the caller decides what
// happens next.
type Outcome string

const (
	OutcomeFinalized     Outcome = "finalized"
	OutcomeClarification Outcome = "clarification_needed"
	OutcomePlanExhausted Outcome = "plan_exhausted"
)

// RunResult pairs the session with how the run ended.
type RunResult struct {
	Session *Session
	Outcome Outcome
}

// LoopConfig wires the control loop's collaborators. Perceiver, Decider,
// Executor and Human are required; the rest default to no-ops or the
// process-wide blackboard.
type LoopConfig struct {
	Perceiver   Perceiver
	Decider     Decider
	Executor    Executor
	Human       HumanInput
	Memory      MemorySearcher
	Performance ToolPerformanceSource
	Recorder    Recorder
	Board       *blackboard.Blackboard
	Strategy    string
	AgentName   string

	// Trace receives user-facing progress lines; nil disables them.
	Trace func(line string)
}

// Loop drives the perceive -> decide -> execute cycle for one session at a
// time. Runs are strictly sequential; the only shared mutable resource is
// the blackboard, which is append-only.
type Loop struct {
	perceiver Perceiver
	decider   Decider
	executor  Executor
	human     HumanInput
	memory    MemorySearcher
	perf      ToolPerformanceSource
	recorder  Recorder
	board     *blackboard.Blackboard
	critic    *Critic
	strategy  string
	agentName string
	trace     func(string)
}

// NewLoop validates and wires a control loop.
func NewLoop(cfg LoopConfig) (*Loop, error) {
	if cfg.Perceiver == nil {
		return nil, fmt.Errorf("loop: perceiver is required")
	}
	if cfg.Decider == nil {
		return nil, fmt.Errorf("loop: decider is required")
	}
	if cfg.Executor == nil {
		return nil, fmt.Errorf("loop: executor is required")
	}
	if cfg.Human == nil {
		return nil, fmt.Errorf("loop: human input is required")
	}
	board := cfg.Board
	if board == nil {
		board = blackboard.Default()
	}
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = "exploratory"
	}
	agentName := cfg.AgentName
	if agentName == "" {
		agentName = "agent-loop"
	}
	return &Loop{
		perceiver: cfg.Perceiver,
		decider:   cfg.Decider,
		executor:  cfg.Executor,
		human:     cfg.Human,
		memory:    cfg.Memory,
		perf:      cfg.Performance,
		recorder:  cfg.Recorder,
		board:     board,
		critic:    NewCritic(""),
		strategy:  strategy,
		agentName: agentName,
		trace:     cfg.Trace,
	}, nil
}

// Run executes one full session for a query. Only collaborator transport
// errors are returned; every in-domain condition advances, replans,
// escalates or cleanly stops.
func (l *Loop) Run(ctx context.Context, query string) (*RunResult, error) {
	session := NewSession(query)
	actx := NewContext(l.agentName, l.board)
	window := newFailureWindow(failureWindowSize)

	l.tracef("Session ID: %s", session.SessionID)
	l.tracef("Query: %s", query)
	l.board.Post(l.agentName, fmt.Sprintf("session_start: %s | query=%s", session.SessionID, query))
	logging.Loop("session start id=%s", session.SessionID)

	memoryResults := l.searchMemory(query)

	snapshot, err := l.perceiver.Perceive(ctx, PerceiveRequest{
		RawInput:        query,
		SnapshotType:    SnapshotUserQuery,
		Memory:          memoryResults,
		ToolPerformance: l.performanceSummary(),
	})
	if err != nil {
		return nil, fmt.Errorf("initial perception: %w", err)
	}
	session.AddPerception(snapshot)
	l.board.Post(l.agentName, "perception: "+snapshot.SolutionSummary)
	l.handleLowConfidence(snapshot, actx)

	// Trivial queries never enter planning.
	if snapshot.OriginalGoalAchieved {
		l.tracef("Perception fully answered the query.")
		session.MarkComplete(snapshot, "", 0.95)
		l.record(session)
		return &RunResult{Session: session, Outcome: OutcomeFinalized}, nil
	}

	decision, err := l.decider.Decide(ctx, DecisionInput{
		PlanMode:        PlanModeInitial,
		Strategy:        l.strategy,
		OriginalQuery:   query,
		Perception:      snapshot,
		ToolPerformance: l.performanceSummary(),
	})
	if err != nil {
		return nil, fmt.Errorf("initial decision: %w", err)
	}
	step := session.AddPlanVersion(decision.PlanText, []*Step{l.newStep(session, decision, false, nil)})
	l.record(session)
	l.tracePlan(session)

	stepsExecuted := 0
	retries := 0
	outcome := OutcomePlanExhausted
	for step != nil {
		current := step
		proceed, term, err := l.executeStep(ctx, session, current, window, actx)
		if err != nil {
			return nil, err
		}
		if !proceed {
			outcome = term
			break
		}
		stepsExecuted++
		if stepsExecuted >= maxSteps {
			l.tracef("Max steps (%d) reached. Escalating to the human operator.", maxSteps)
			l.board.Post(l.agentName, fmt.Sprintf("max_steps_reached: %d", maxSteps))
			l.escalate(session, fmt.Sprintf("step budget of %d exhausted", maxSteps))
			outcome = OutcomeFinalized
			break
		}
		step, retries, term, err = l.evaluateStep(ctx, session, current, retries, actx)
		if err != nil {
			return nil, err
		}
		if step == nil {
			outcome = term
		}
	}

	logging.Loop("session end id=%s outcome=%s", session.SessionID, outcome)
	return &RunResult{Session: session, Outcome: outcome}, nil
}

// executeStep runs one step attempt. It returns proceed=false when the
// loop must stop (CONCLUDE finalized the session, NOP needs clarification).
func (l *Loop) executeStep(ctx context.Context, session *Session, step *Step, window *failureWindow, actx *Context) (bool, Outcome, error) {
	step.Attempts++
	l.tracef("[Step %d] %s", step.Index, step.Description)

	switch step.Type {
	case StepTypeCode:
		resp := l.executor.Execute(ctx, step.Code)
		if resp.Status == ExecStatusError {
			// Tool failure is not fatal: downgrade to a synthetic success
			// carrying a human-supplied answer.
			l.tracef("Tool failed. Handing off to the human operator.")
			answer, askErr := l.human.Ask("Human in the loop: please provide the answer for this step:")
			if askErr != nil {
				logging.LoopError("human fallback input failed: %v", askErr)
			}
			toolErr := resp.Error
			if toolErr == "" {
				toolErr = "Unknown tool error"
			}
			resp = ExecutorResponse{
				Status:      ExecStatusSuccess,
				Result:      "Human in the loop: " + strings.TrimSpace(answer),
				HumanInLoop: true,
				ToolError:   toolErr,
			}
			window.Add(MemoryEntry{
				Query:             step.Description,
				ResultRequirement: "Human in the loop",
				SolutionSummary:   truncate(resp.Result, failureSummaryLimit),
			})
		}
		step.ExecutionResult = resp
		// Usefulness is judged by perception, not by raw executor status.
		step.Status = StatusCompleted

		rawInput := resp.Result
		if rawInput == "" {
			rawInput = "Tool Failed"
		}
		snapshot, err := l.perceiver.Perceive(ctx, PerceiveRequest{
			RawInput:        rawInput,
			SnapshotType:    SnapshotStepResult,
			Memory:          window.Entries(),
			CurrentPlan:     l.currentPlanText(session),
			ToolPerformance: l.performanceSummary(),
		})
		if err != nil {
			return false, "", fmt.Errorf("step perception: %w", err)
		}
		if isOffTopic(session.OriginalQuery, resp.Result) {
			lowerConfidence(snapshot, "Off-topic tool result detected")
			logging.Loop("off-topic result penalized step=%d", step.Index)
		}
		step.Perception = snapshot
		l.board.Post(l.agentName, "perception: "+snapshot.SolutionSummary)
		if delta, ok := session.ComputeConfidenceDelta(step); ok && delta < 0 {
			l.board.Post(l.agentName, fmt.Sprintf("confidence_decline: Δ=%+.2f", delta))
		}
		l.handleLowConfidence(snapshot, actx)

		if !snapshot.LocalGoalAchieved {
			window.Add(MemoryEntry{
				Query:             step.Description,
				ResultRequirement: "Tool failed",
				SolutionSummary:   truncate(fmt.Sprintf("%v", step.ExecutionResult), failureSummaryLimit),
			})
		}
		l.record(session)
		return true, "", nil

	case StepTypeConclude:
		l.tracef("Conclusion: %s", step.Conclusion)
		step.ExecutionResult = step.Conclusion
		step.Status = StatusCompleted

		snapshot, err := l.perceiver.Perceive(ctx, PerceiveRequest{
			RawInput:        step.Conclusion,
			SnapshotType:    SnapshotStepResult,
			Memory:          window.Entries(),
			CurrentPlan:     l.currentPlanText(session),
			ToolPerformance: l.performanceSummary(),
		})
		if err != nil {
			return false, "", fmt.Errorf("conclusion perception: %w", err)
		}
		step.Perception = snapshot
		l.board.Post(l.agentName, "perception: "+snapshot.SolutionSummary)
		session.ComputeConfidenceDelta(step)
		l.handleLowConfidence(snapshot, actx)
		session.MarkComplete(snapshot, step.Conclusion, 0.95)
		l.record(session)
		return false, OutcomeFinalized, nil

	case StepTypeNOP:
		l.tracef("Clarification needed: %s", step.Description)
		step.Status = StatusClarification
		l.board.Post(l.agentName, "clarification_needed: "+step.Description)
		l.record(session)
		return false, OutcomeClarification, nil
	}

	return false, "", fmt.Errorf("unknown step type %q at index %d", step.Type, step.Index)
}

// evaluateStep applies the three-way branch on a judged CODE step:
// finalize, advance, or replan (escalating after the retry ceiling).
func (l *Loop) evaluateStep(ctx context.Context, session *Session, step *Step, retries int, actx *Context) (*Step, int, Outcome, error) {
	judgment := step.Perception

	if judgment.OriginalGoalAchieved {
		l.tracef("Goal achieved.")
		session.MarkComplete(judgment, "", 0.95)
		l.record(session)
		return nil, retries, OutcomeFinalized, nil
	}

	if judgment.LocalGoalAchieved {
		return l.nextStep(ctx, session, step, retries)
	}

	l.tracef("Step unhelpful. Replanning.")
	retries++
	if retries >= maxRetries {
		l.board.Post(l.agentName, fmt.Sprintf("plan_failure: retries=%d", retries))
		l.tracef("Plan failed after %d retries. Escalating to the human operator.", retries)
		l.escalate(session, fmt.Sprintf("plan failure after %d retries", retries))
		return nil, retries, OutcomeFinalized, nil
	}

	out, err := l.decider.Decide(ctx, l.midSessionInput(session, step))
	if err != nil {
		return nil, retries, "", fmt.Errorf("replan decision: %w", err)
	}
	parent := step.Index
	next := session.AddPlanVersion(out.PlanText, []*Step{l.newStep(session, out, true, &parent)})
	l.record(session)
	l.tracePlan(session)
	l.board.Post(l.agentName, "decision: replanned due to unhelpful step")
	return next, retries, "", nil
}

// nextStep advances within the current plan, asking the decision
// collaborator for the next step, or ends the run when the plan is
// exhausted (not an error; the caller decides what that means).
func (l *Loop) nextStep(ctx context.Context, session *Session, step *Step, retries int) (*Step, int, Outcome, error) {
	// step.Index doubles as the position in the latest plan here. The two
	// can only diverge on a fresh step planned after a replan, which is at
	// minimum the third execution, and the step budget escalates before a
	// third executed step is ever evaluated.
	nextIndex := step.Index + 1
	if nextIndex >= len(l.currentPlanText(session)) {
		l.tracef("No more steps.")
		l.board.Post(l.agentName, "plan_exhausted: no more steps")
		return nil, retries, OutcomePlanExhausted, nil
	}

	out, err := l.decider.Decide(ctx, l.midSessionInput(session, step))
	if err != nil {
		return nil, retries, "", fmt.Errorf("next step decision: %w", err)
	}
	next := session.AddPlanVersion(out.PlanText, []*Step{l.newStep(session, out, false, nil)})
	l.record(session)
	l.tracePlan(session)
	l.board.Post(l.agentName, "decision: next step generated")
	return next, retries, "", nil
}

// escalate runs the mandatory human fallback after retry or step-budget
// exhaustion: propose a plan, accept an optional hyphen-delimited revision
// as a new plan version, then finalize with a human-authored answer.
func (l *Loop) escalate(session *Session, reason string) {
	suggested := []string{
		"Human in the loop: Confirm missing requirements and constraints (reason: reduce ambiguity).",
		"Use the most relevant tool with precise inputs (reason: improve accuracy).",
		"Summarize findings and conclude the answer (reason: finalize the response).",
	}
	l.tracef("Suggested plan:")
	for i, line := range suggested {
		l.tracef("  %d. %s", i+1, line)
	}

	chosen := suggested
	planText, err := l.human.Ask("Provide a revised plan with reasons; separate steps with hyphen (-), or press Enter to accept:")
	if err != nil {
		logging.LoopError("escalation plan input failed: %v", err)
		planText = ""
	}
	if strings.TrimSpace(planText) != "" {
		var revised []string
		for _, part := range strings.Split(planText, "-") {
			if p := strings.TrimSpace(part); p != "" {
				revised = append(revised, "Human in the loop: "+p)
			}
		}
		if len(revised) > 0 {
			chosen = revised
		}
	}
	session.AddPlanVersion(chosen, nil)
	l.record(session)
	l.board.Post(l.agentName, "human_plan_updated: revised plan recorded")

	answer, err := l.human.Ask("Provide the answer to conclude:")
	if err != nil {
		logging.LoopError("escalation answer input failed: %v", err)
		answer = ""
	}
	session.FinalizeHumanAssisted(
		"Human in the loop: "+strings.TrimSpace(answer),
		"Human in the loop used after "+reason+".",
	)
	l.record(session)
	l.board.Post(l.agentName, "session_finalized: human-assisted")
}

// midSessionInput assembles the mid-session decision context: current
// plan, completed steps of the latest version, and the step under review.
func (l *Loop) midSessionInput(session *Session, step *Step) DecisionInput {
	last := session.PlanVersions[len(session.PlanVersions)-1]
	var completed []*Step
	for _, s := range last.Steps {
		if s.Status == StatusCompleted {
			completed = append(completed, s)
		}
	}
	return DecisionInput{
		PlanMode:           PlanModeMidSession,
		Strategy:           l.strategy,
		OriginalQuery:      session.OriginalQuery,
		CurrentPlanVersion: len(session.PlanVersions),
		CurrentPlan:        append([]string(nil), last.PlanText...),
		CompletedSteps:     completed,
		CurrentStep:        step,
		ToolPerformance:    l.performanceSummary(),
	}
}

// newStep materializes a decision output as a fresh step revision. The
// index is always assigned locally, never taken from the decision output:
// fresh steps count recorded steps, and a replan occupies the failed
// step's slot so its revision history and confidence delta line up.
func (l *Loop) newStep(session *Session, out DecisionOutput, wasReplanned bool, parentIndex *int) *Step {
	index := session.NextStepIndex()
	if wasReplanned && parentIndex != nil {
		index = *parentIndex
	}
	if out.StepIndex != index {
		logging.Loop("decision proposed step_index=%d, assigning %d", out.StepIndex, index)
	}
	step := &Step{
		Index:        index,
		Description:  out.Description,
		Type:         out.Type,
		Status:       StatusPending,
		WasReplanned: wasReplanned,
		ParentIndex:  parentIndex,
	}
	switch out.Type {
	case StepTypeCode:
		step.Code = NewToolInvocation("raw_code_block", map[string]any{"code": out.Code})
	case StepTypeConclude:
		step.Conclusion = out.Conclusion
	}
	return step
}

func (l *Loop) handleLowConfidence(snapshot *PerceptionSnapshot, actx *Context) {
	confidence, ok := snapshot.Confidence()
	if !ok {
		confidence = 0
	}
	if confidence < lowConfidenceThreshold {
		l.critic.Critique(snapshot, actx)
	}
}

func (l *Loop) currentPlanText(session *Session) []string {
	if len(session.PlanVersions) == 0 {
		return nil
	}
	return append([]string(nil), session.PlanVersions[len(session.PlanVersions)-1].PlanText...)
}

func (l *Loop) searchMemory(query string) []MemoryEntry {
	if l.memory == nil {
		return nil
	}
	return l.memory.Search(query, memorySearchLimit)
}

func (l *Loop) performanceSummary() map[string]any {
	if l.perf == nil {
		return map[string]any{}
	}
	return l.perf.PerformanceSummary()
}

func (l *Loop) record(session *Session) {
	if l.recorder != nil {
		l.recorder.Record(session)
	}
}

func (l *Loop) tracef(format string, args ...any) {
	if l.trace != nil {
		l.trace(fmt.Sprintf(format, args...))
	}
}

func (l *Loop) tracePlan(session *Session) {
	l.tracef("[Decision Plan Text: V%d]:", len(session.PlanVersions))
	for _, line := range l.currentPlanText(session) {
		l.tracef("  %s", line)
	}
	l.tracef("%s", session.RenderPlanHistory())
}

// isOffTopic flags a tool result containing none of the query's
// significant terms (length > 3 after lowercasing).
func isOffTopic(query, result string) bool {
	if query == "" || result == "" {
		return false
	}
	terms := make(map[string]struct{})
	for _, t := range strings.Fields(query) {
		if len(t) > 3 {
			terms[strings.ToLower(t)] = struct{}{}
		}
	}
	if len(terms) == 0 {
		return false
	}
	resultLower := strings.ToLower(result)
	for t := range terms {
		if strings.Contains(resultLower, t) {
			return false
		}
	}
	return true
}

// lowerConfidence applies a fixed penalty to a judgment's confidence,
// floored at zero, and appends the reason to the local reasoning.
func lowerConfidence(snapshot *PerceptionSnapshot, reason string) {
	current, ok := snapshot.Confidence()
	if !ok {
		current = 0
	}
	penalized := math.Max(0, current-offTopicPenalty)
	penalized = math.Round(penalized*100) / 100
	snapshot.ConfidenceRaw = strconv.FormatFloat(penalized, 'f', -1, 64)
	snapshot.LocalReasoning = strings.TrimSpace(strings.TrimPrefix(
		snapshot.LocalReasoning+" | "+reason, " | "))
}
