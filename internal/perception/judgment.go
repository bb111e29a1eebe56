// Package perception implements the perception collaborator: it asks an
// LLM to judge the current situation and normalizes the reply into a
// fully defaulted PerceptionSnapshot. Malformed model output degrades to
// safe defaults; it never propagates a parse error into the control loop.
package perception

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"querynerd/internal/agent"
)

// Defaults applied to missing judgment fields.
const (
	defaultResultRequirement = "No requirement specified."
	defaultReasoning         = "No reasoning given."
	defaultLocalReasoning    = "No local reasoning given."
	defaultToolUseSummary    = "None"
	defaultSolutionSummary   = "No summary."
	defaultConfidence        = "0.0"
)

// FallbackJudgment is returned when the model reply carries no parseable
// JSON at all.
func FallbackJudgment() *agent.PerceptionSnapshot {
	return &agent.PerceptionSnapshot{
		Entities:             []string{},
		ResultRequirement:    "N/A",
		OriginalGoalAchieved: false,
		Reasoning:            "Perception failed to parse model output as JSON.",
		LocalGoalAchieved:    false,
		LocalReasoning:       "Could not extract structured information.",
		LastToolUseSummary:   defaultToolUseSummary,
		SolutionSummary:      "Not ready yet",
		ConfidenceRaw:        defaultConfidence,
	}
}

// NormalizeJudgment builds a snapshot from a raw decoded JSON object,
// defaulting every missing field and coercing malformed booleans and
// confidence values instead of raising.
func NormalizeJudgment(raw map[string]any) *agent.PerceptionSnapshot {
	return &agent.PerceptionSnapshot{
		Entities:             coerceStrings(raw["entities"]),
		ResultRequirement:    coerceString(raw["result_requirement"], defaultResultRequirement),
		OriginalGoalAchieved: coerceBool(raw["original_goal_achieved"], false),
		Reasoning:            coerceString(raw["reasoning"], defaultReasoning),
		LocalGoalAchieved:    coerceBool(raw["local_goal_achieved"], false),
		LocalReasoning:       coerceString(raw["local_reasoning"], defaultLocalReasoning),
		LastToolUseSummary:   coerceString(raw["last_tooluse_summary"], defaultToolUseSummary),
		SolutionSummary:      coerceString(raw["solution_summary"], defaultSolutionSummary),
		ConfidenceRaw:        coerceConfidence(raw["confidence"]),
	}
}

// ParseJudgment extracts the JSON block from a model reply and normalizes
// it. Replies without usable JSON yield the fallback judgment, not an
// error.
func ParseJudgment(reply string) *agent.PerceptionSnapshot {
	block, ok := ExtractJSONBlock(reply)
	if !ok {
		return FallbackJudgment()
	}
	var raw map[string]any
	if err := json.Unmarshal([]byte(block), &raw); err != nil {
		return FallbackJudgment()
	}
	return NormalizeJudgment(raw)
}

// ExtractJSONBlock pulls JSON out of a model reply: a fenced ```json
// block when present, otherwise the outermost brace pair.
func ExtractJSONBlock(reply string) (string, bool) {
	if idx := strings.Index(reply, "```json"); idx >= 0 {
		rest := reply[idx+len("```json"):]
		if end := strings.Index(rest, "```"); end >= 0 {
			return strings.TrimSpace(rest[:end]), true
		}
	}
	start := strings.Index(reply, "{")
	end := strings.LastIndex(reply, "}")
	if start >= 0 && end > start {
		return strings.TrimSpace(reply[start : end+1]), true
	}
	return "", false
}

func coerceString(v any, def string) string {
	if s, ok := v.(string); ok && s != "" {
		return s
	}
	return def
}

func coerceStrings(v any) []string {
	items, ok := v.([]any)
	if !ok {
		return []string{}
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		} else {
			out = append(out, fmt.Sprintf("%v", item))
		}
	}
	return out
}

func coerceBool(v any, def bool) bool {
	switch val := v.(type) {
	case bool:
		return val
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "true", "yes", "y", "1":
			return true
		case "false", "no", "n", "0":
			return false
		}
	case float64:
		return val != 0
	case int:
		return val != 0
	}
	return def
}

// coerceConfidence accepts a number or numeric string and renders the
// canonical string form; anything else becomes the "0.0" default.
func coerceConfidence(v any) string {
	switch val := v.(type) {
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	case string:
		if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
			return strconv.FormatFloat(f, 'f', -1, 64)
		}
	case int:
		return strconv.Itoa(val)
	}
	return defaultConfidence
}
