package main

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"querynerd/internal/agent"
)

var (
	accentColor  = lipgloss.Color("#8BC34A")
	mutedColor   = lipgloss.Color("#6b7280")
	errorColor   = lipgloss.Color("#e53935")
	warningColor = lipgloss.Color("#FFC107")

	bannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accentColor).
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(accentColor).
			Padding(0, 2)

	traceStyle = lipgloss.NewStyle().
			Foreground(mutedColor)

	answerLabelStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(accentColor)

	outcomeStyle = lipgloss.NewStyle().
			Foreground(warningColor)

	errorStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(errorColor)

	humanPromptStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(warningColor)
)

func queryPrompt() string {
	return "querynerd> "
}

func printBanner() {
	fmt.Println(bannerStyle.Render("querynerd - agentic query assistant"))
	fmt.Println(traceStyle.Render("Type a query, or 'exit' to quit."))
	fmt.Println()
}

func printTrace(line string) {
	fmt.Println(traceStyle.Render(line))
}

func printError(err error) {
	fmt.Println(errorStyle.Render("Error: " + err.Error()))
}

func printResult(result *agent.RunResult) {
	fmt.Println()
	switch result.Outcome {
	case agent.OutcomeFinalized:
		state := result.Session.State
		fmt.Println(answerLabelStyle.Render("Answer:"))
		fmt.Println(state.FinalAnswer)
		fmt.Println(traceStyle.Render(fmt.Sprintf("confidence=%.2f  session=%s",
			state.Confidence, result.Session.SessionID)))
	case agent.OutcomeClarification:
		fmt.Println(outcomeStyle.Render("The agent needs clarification. Please rephrase or add detail."))
	case agent.OutcomePlanExhausted:
		fmt.Println(outcomeStyle.Render("The plan ran out of steps without reaching an answer."))
		if summary := result.Session.State.SolutionSummary; summary != "" {
			fmt.Println(traceStyle.Render("Best so far: " + summary))
		}
	}
	fmt.Println()
}
