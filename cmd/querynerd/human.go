package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/peterh/liner"
)

// lineReader wraps liner for both the query prompt and the human-in-the-loop
// questions the control loop asks mid-run.
type lineReader struct {
	mu    sync.Mutex
	state *liner.State
}

func newLineReader() (*lineReader, error) {
	state := liner.NewLiner()
	state.SetCtrlCAborts(true)
	return &lineReader{state: state}, nil
}

// ReadQuery reads the next user query from the main prompt.
func (r *lineReader) ReadQuery() (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	text, err := r.state.Prompt(queryPrompt())
	if err != nil {
		return "", err
	}
	text = strings.TrimSpace(text)
	if text != "" {
		r.state.AppendHistory(text)
	}
	return text, nil
}

// Ask implements agent.HumanInput: print the agent's question, block for
// one line of input. An aborted prompt returns an empty answer, not an
// error, so escalation can still conclude the session.
func (r *lineReader) Ask(prompt string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	fmt.Println(humanPromptStyle.Render(prompt))
	text, err := r.state.Prompt("> ")
	if err != nil {
		if err == liner.ErrPromptAborted {
			return "", nil
		}
		return "", fmt.Errorf("human input: %w", err)
	}
	return strings.TrimSpace(text), nil
}

func (r *lineReader) Close() error {
	return r.state.Close()
}
