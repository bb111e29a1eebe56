// Package memory provides the SQLite-backed long-term store: session
// snapshots searched for memory recall, and per-call tool metrics
// summarized for the perception and decision collaborators.
package memory

import (
	"database/sql"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"querynerd/internal/agent"
	"querynerd/internal/logging"
)

const (
	// summaryWindow bounds how many recent tool calls feed the summary.
	summaryWindow = 50
	// recentErrorLimit caps recent_errors in the summary.
	recentErrorLimit = 10
)

// Store is the long-term memory database. It implements
// agent.MemorySearcher, agent.ToolPerformanceSource, agent.Recorder and
// action.MetricsSink.
type Store struct {
	db   *sql.DB
	path string
	mu   sync.RWMutex
}

// Open creates or opens the memory database at dbPath.
func Open(dbPath string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create memory directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open memory database: %w", err)
	}

	store := &Store{db: db, path: dbPath}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize memory schema: %w", err)
	}
	return store, nil
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		session_id TEXT PRIMARY KEY,
		query TEXT NOT NULL,
		result_requirement TEXT,
		solution_summary TEXT,
		final_answer TEXT,
		confidence REAL,
		created_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS tool_calls (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		tool_name TEXT NOT NULL,
		status TEXT NOT NULL,
		duration_ms REAL NOT NULL,
		error TEXT,
		created_at TEXT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Record upserts the session's audit snapshot. The control loop calls it
// after every plan mutation and at finalize, so the stored row always
// reflects the latest official record.
func (s *Store) Record(session *agent.Session) {
	snap := session.Snapshot()
	requirement := ""
	if session.Perception != nil {
		requirement = session.Perception.ResultRequirement
	}
	summary := session.State.SolutionSummary

	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO sessions (session_id, query, result_requirement, solution_summary, final_answer, confidence, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			result_requirement = excluded.result_requirement,
			solution_summary = excluded.solution_summary,
			final_answer = excluded.final_answer,
			confidence = excluded.confidence`,
		snap.SessionID, snap.Query, requirement, summary, snap.FinalAnswer,
		snap.Confidence, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		logging.MemoryError("failed to record session %s: %v", snap.SessionID, err)
	}
}

// Search returns prior sessions sharing significant terms (length > 3)
// with the query, best matches first.
func (s *Store) Search(query string, limit int) []agent.MemoryEntry {
	terms := significantTerms(query)
	if len(terms) == 0 {
		return nil
	}

	s.mu.RLock()
	rows, err := s.db.Query(`SELECT query, result_requirement, solution_summary FROM sessions`)
	s.mu.RUnlock()
	if err != nil {
		logging.MemoryError("search query failed: %v", err)
		return nil
	}
	defer rows.Close()

	type scored struct {
		entry agent.MemoryEntry
		score int
	}
	var matches []scored
	for rows.Next() {
		var entry agent.MemoryEntry
		var requirement, summary sql.NullString
		if err := rows.Scan(&entry.Query, &requirement, &summary); err != nil {
			continue
		}
		entry.ResultRequirement = requirement.String
		entry.SolutionSummary = summary.String

		haystack := strings.ToLower(entry.Query + " " + entry.SolutionSummary)
		score := 0
		for _, t := range terms {
			if strings.Contains(haystack, t) {
				score++
			}
		}
		if score > 0 {
			matches = append(matches, scored{entry: entry, score: score})
		}
	}
	if err := rows.Err(); err != nil {
		logging.MemoryError("search scan failed: %v", err)
	}

	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })
	if limit > 0 && len(matches) > limit {
		matches = matches[:limit]
	}
	out := make([]agent.MemoryEntry, len(matches))
	for i, m := range matches {
		out[i] = m.entry
	}
	return out
}

// LogToolCall records one tool execution for performance summaries.
func (s *Store) LogToolCall(tool, status string, durationMs float64, errMsg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.db.Exec(`
		INSERT INTO tool_calls (tool_name, status, duration_ms, error, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		tool, status, durationMs, errMsg, time.Now().UTC().Format(time.RFC3339))
	if err != nil {
		logging.MemoryError("failed to log tool call %s: %v", tool, err)
	}
}

// PerformanceSummary aggregates the most recent tool calls into the shape
// the perception and decision payloads expect.
func (s *Store) PerformanceSummary() map[string]any {
	empty := map[string]any{
		"total_calls":     0,
		"error_rate":      0.0,
		"avg_duration_ms": 0.0,
		"per_tool":        map[string]any{},
		"recent_errors":   []map[string]string{},
	}

	s.mu.RLock()
	rows, err := s.db.Query(`
		SELECT tool_name, status, duration_ms, error
		FROM tool_calls ORDER BY id DESC LIMIT ?`, summaryWindow)
	s.mu.RUnlock()
	if err != nil {
		logging.MemoryError("performance summary query failed: %v", err)
		return empty
	}
	defer rows.Close()

	type call struct {
		tool     string
		status   string
		duration float64
		errMsg   string
	}
	var calls []call
	for rows.Next() {
		var c call
		var errMsg sql.NullString
		if err := rows.Scan(&c.tool, &c.status, &c.duration, &errMsg); err != nil {
			continue
		}
		c.errMsg = errMsg.String
		calls = append(calls, c)
	}
	if len(calls) == 0 {
		return empty
	}
	// Oldest first, matching insertion order.
	for i, j := 0, len(calls)-1; i < j; i, j = i+1, j-1 {
		calls[i], calls[j] = calls[j], calls[i]
	}

	type toolStats struct {
		calls    int
		errors   int
		duration float64
	}
	total := len(calls)
	totalDuration := 0.0
	errorCount := 0
	perTool := make(map[string]*toolStats)
	var recentErrors []map[string]string

	for _, c := range calls {
		totalDuration += c.duration
		if c.status == agent.ExecStatusError {
			errorCount++
			if c.errMsg != "" {
				recentErrors = append(recentErrors, map[string]string{
					"tool_name": c.tool,
					"error":     c.errMsg,
				})
			}
		}
		stats := perTool[c.tool]
		if stats == nil {
			stats = &toolStats{}
			perTool[c.tool] = stats
		}
		stats.calls++
		stats.duration += c.duration
		if c.status == agent.ExecStatusError {
			stats.errors++
		}
	}
	if len(recentErrors) > recentErrorLimit {
		recentErrors = recentErrors[len(recentErrors)-recentErrorLimit:]
	}
	if recentErrors == nil {
		recentErrors = []map[string]string{}
	}

	perToolOut := make(map[string]any, len(perTool))
	for tool, stats := range perTool {
		perToolOut[tool] = map[string]any{
			"calls":           stats.calls,
			"errors":          stats.errors,
			"avg_duration_ms": round(stats.duration/float64(stats.calls), 2),
		}
	}

	return map[string]any{
		"total_calls":     total,
		"error_rate":      round(float64(errorCount)/float64(total), 3),
		"avg_duration_ms": round(totalDuration/float64(total), 2),
		"per_tool":        perToolOut,
		"recent_errors":   recentErrors,
	}
}

func significantTerms(query string) []string {
	var terms []string
	seen := make(map[string]struct{})
	for _, t := range strings.Fields(strings.ToLower(query)) {
		if len(t) > 3 {
			if _, ok := seen[t]; !ok {
				seen[t] = struct{}{}
				terms = append(terms, t)
			}
		}
	}
	return terms
}

func round(v float64, places int) float64 {
	factor := math.Pow(10, float64(places))
	return math.Round(v*factor) / factor
}
