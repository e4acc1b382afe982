// pkg/cli/shell.go
package cli

import (
	"bufio"
	"io"
	"strings"
)

// Shell is a thin line-oriented reader for the interactive mavibot prompt:
// one command per line, with simple history recall. There is no statement
// continuation to track here (every command fits on one line), so this is
// considerably smaller than a SQL shell's multi-line accumulator.
type Shell struct {
	reader *bufio.Reader

	output    io.Writer
	errOutput io.Writer

	prompt string

	history      []string
	historyIndex int
	maxHistory   int
}

// NewShell creates a new interactive shell with the given input/output
// streams. If errOutput is nil, errors are written to output.
func NewShell(input io.Reader, output, errOutput io.Writer) *Shell {
	var reader *bufio.Reader
	if input != nil {
		reader = bufio.NewReader(input)
	}
	if errOutput == nil {
		errOutput = output
	}
	return &Shell{
		reader:     reader,
		output:     output,
		errOutput:  errOutput,
		prompt:     "mavibot> ",
		history:    make([]string, 0),
		maxHistory: 1000,
	}
}

// SetPrompt changes the prompt string.
func (s *Shell) SetPrompt(prompt string) { s.prompt = prompt }

// ReadLine reads a single line from input, stripping trailing whitespace.
// It returns the line and whether EOF was reached.
func (s *Shell) ReadLine() (string, bool) {
	if s.reader == nil {
		return "", true
	}
	line, err := s.reader.ReadString('\n')
	if err != nil {
		line = strings.TrimRight(line, " \t\r\n")
		return line, true
	}
	line = strings.TrimRight(line, " \t\r\n")
	return line, false
}

// ReadCommand writes the prompt, reads one line, and records it in history
// if non-blank. Returns the line and whether EOF was reached.
func (s *Shell) ReadCommand() (string, bool) {
	if s.output != nil {
		io.WriteString(s.output, s.prompt)
	}
	line, eof := s.ReadLine()
	trimmed := strings.TrimSpace(line)
	if trimmed != "" {
		s.AddHistory(trimmed)
	}
	return line, eof
}

// AddHistory adds a command to history, skipping immediate duplicates.
func (s *Shell) AddHistory(cmd string) {
	if len(s.history) > 0 && s.history[len(s.history)-1] == cmd {
		return
	}
	s.history = append(s.history, cmd)
	if len(s.history) > s.maxHistory {
		s.history = s.history[len(s.history)-s.maxHistory:]
	}
	s.historyIndex = len(s.history)
}

// History returns a copy of the command history.
func (s *Shell) History() []string {
	result := make([]string, len(s.history))
	copy(result, s.history)
	return result
}
