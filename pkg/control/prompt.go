package control

import (
	"errors"
	"io"

	"github.com/peterh/liner"
)

// LinerPrompter reads lines from the terminal with line editing.
type LinerPrompter struct {
	line *liner.State
}

func NewLinerPrompter() *LinerPrompter {
	line := liner.NewLiner()
	line.SetCtrlCAborts(true)
	return &LinerPrompter{line: line}
}

func (p *LinerPrompter) Prompt(prompt string) (string, error) {
	input, err := p.line.Prompt(prompt)
	if errors.Is(err, liner.ErrPromptAborted) || errors.Is(err, io.EOF) {
		return "", ErrAborted
	}
	if err != nil {
		return "", err
	}
	return input, nil
}

// Close restores the terminal mode.
func (p *LinerPrompter) Close() error {
	return p.line.Close()
}
