package agent

// failureWindow is the rolling memory of recent failures and human
// fallbacks, capped at a fixed size with FIFO eviction. It is owned by a
// single session run and never shared.
type failureWindow struct {
	entries []MemoryEntry
	cap     int
}

func newFailureWindow(capacity int) *failureWindow {
	return &failureWindow{cap: capacity}
}

func (w *failureWindow) Add(entry MemoryEntry) {
	w.entries = append(w.entries, entry)
	if len(w.entries) > w.cap {
		w.entries = w.entries[1:]
	}
}

func (w *failureWindow) Entries() []MemoryEntry {
	return append([]MemoryEntry(nil), w.entries...)
}

func (w *failureWindow) Len() int {
	return len(w.entries)
}

// truncate caps a string for failure-memory summaries.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
