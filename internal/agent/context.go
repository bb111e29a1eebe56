package agent

import "querynerd/internal/blackboard"

// Context gives one agent a cursor-tracked view of the blackboard, so it
// can consume trace entries incrementally and keep a local cache.
type Context struct {
	agentName string
	board     *blackboard.Blackboard
	cursor    int
	cache     []blackboard.Entry
}

// NewContext creates a context reading from the given blackboard.
// A nil board falls back to the process-wide default.
func NewContext(agentName string, board *blackboard.Blackboard) *Context {
	if board == nil {
		board = blackboard.Default()
	}
	return &Context{agentName: agentName, board: board}
}

// AgentName returns the owning agent's name.
func (c *Context) AgentName() string {
	return c.agentName
}

// Post appends a message to the blackboard under this agent's name.
func (c *Context) Post(message string) blackboard.Entry {
	return c.board.Post(c.agentName, message)
}

// Refresh pulls entries posted since the last refresh into the cache and
// returns just the new ones.
func (c *Context) Refresh() []blackboard.Entry {
	entries, cursor := c.board.GetSince(c.cursor)
	c.cursor = cursor
	c.cache = append(c.cache, entries...)
	return entries
}

// Cache returns a copy of everything seen so far.
func (c *Context) Cache() []blackboard.Entry {
	return append([]blackboard.Entry(nil), c.cache...)
}
