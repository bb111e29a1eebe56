package agent

import "fmt"

// Critic observes low-confidence judgments and posts a tightening
// recommendation to the blackboard. It is a pure side channel for
// downstream human review: it never blocks or mutates the control loop.
type Critic struct {
	agentName string
}

// NewCritic creates a critic posting under the given agent name.
func NewCritic(agentName string) *Critic {
	if agentName == "" {
		agentName = "special-critic"
	}
	return &Critic{agentName: agentName}
}

// Critique records an audit note about a low-confidence judgment.
func (c *Critic) Critique(snapshot *PerceptionSnapshot, ctx *Context) {
	confidence := "0.0"
	if snapshot != nil && snapshot.ConfidenceRaw != "" {
		confidence = snapshot.ConfidenceRaw
	}
	message := "Low confidence detected. Recommend clarifying inputs, " +
		"validating tool outputs, and tightening the plan steps."
	ctx.board.Post(c.agentName, fmt.Sprintf("confidence=%s; %s", confidence, message))
}
