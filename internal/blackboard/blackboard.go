// Package blackboard provides the shared audit trail for agent activity.
// Every component posts (agent, message) entries; observers read them
// incrementally through a monotonic cursor so no entry is missed or
// re-delivered. The log is append-only and never mutated after a post.
package blackboard

import (
	"sync"
	"time"
)

// Entry is a single immutable trace record.
type Entry struct {
	Timestamp string `json:"timestamp"`
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
}

// Blackboard is an append-only log safe for concurrent writers.
// Each post is a single atomic append; there are no cross-entry invariants.
type Blackboard struct {
	mu      sync.Mutex
	entries []Entry
}

// New creates an empty blackboard. Tests and isolated sessions should use
// their own instance instead of the process-wide default.
func New() *Blackboard {
	return &Blackboard{}
}

// Post appends a trace entry and returns it.
func (b *Blackboard) Post(agentName, message string) Entry {
	entry := Entry{
		Timestamp: time.Now().UTC().Format("2006-01-02T15:04:05Z"),
		AgentName: agentName,
		Message:   message,
	}
	b.mu.Lock()
	b.entries = append(b.entries, entry)
	b.mu.Unlock()
	return entry
}

// GetSince returns all entries posted at or after cursor, plus the new
// cursor to use on the next call. A negative cursor reads from the start.
func (b *Blackboard) GetSince(cursor int) ([]Entry, int) {
	if cursor < 0 {
		cursor = 0
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if cursor > len(b.entries) {
		cursor = len(b.entries)
	}
	out := make([]Entry, len(b.entries)-cursor)
	copy(out, b.entries[cursor:])
	return out, len(b.entries)
}

// Len reports the number of entries posted so far.
func (b *Blackboard) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.entries)
}

var defaultBoard = New()

// Default returns the process-wide blackboard.
func Default() *Blackboard {
	return defaultBoard
}

// Post appends a trace entry to the process-wide blackboard.
func Post(agentName, message string) Entry {
	return defaultBoard.Post(agentName, message)
}
