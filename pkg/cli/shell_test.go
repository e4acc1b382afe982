// pkg/cli/shell_test.go
package cli

import (
	"bytes"
	"strings"
	"testing"
)

func TestNewShell(t *testing.T) {
	input := strings.NewReader("")
	output := &bytes.Buffer{}
	errOutput := &bytes.Buffer{}

	shell := NewShell(input, output, errOutput)

	if shell == nil {
		t.Fatal("NewShell returned nil")
	}
	if shell.prompt != "mavibot> " {
		t.Errorf("expected default prompt 'mavibot> ', got %q", shell.prompt)
	}
}

func TestShell_SetPrompt(t *testing.T) {
	shell := NewShell(nil, nil, nil)
	shell.SetPrompt("custom> ")

	if shell.prompt != "custom> " {
		t.Errorf("expected prompt 'custom> ', got %q", shell.prompt)
	}
}

func TestShell_ReadLine(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantLine string
		wantEOF  bool
	}{
		{name: "simple line", input: "get tree key\n", wantLine: "get tree key", wantEOF: false},
		{name: "empty line", input: "\n", wantLine: "", wantEOF: false},
		{name: "EOF", input: "", wantLine: "", wantEOF: true},
		{name: "trailing whitespace", input: "put t k v  \n", wantLine: "put t k v", wantEOF: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			input := strings.NewReader(tt.input)
			output := &bytes.Buffer{}
			shell := NewShell(input, output, nil)

			line, eof := shell.ReadLine()
			if line != tt.wantLine {
				t.Errorf("ReadLine() line = %q, want %q", line, tt.wantLine)
			}
			if eof != tt.wantEOF {
				t.Errorf("ReadLine() eof = %v, want %v", eof, tt.wantEOF)
			}
		})
	}
}

func TestShell_ReadCommand_RecordsHistory(t *testing.T) {
	input := strings.NewReader("put t k v\nget t k\n")
	output := &bytes.Buffer{}
	shell := NewShell(input, output, nil)

	line1, eof1 := shell.ReadCommand()
	if eof1 || line1 != "put t k v" {
		t.Fatalf("ReadCommand() = %q, %v", line1, eof1)
	}
	line2, eof2 := shell.ReadCommand()
	if eof2 || line2 != "get t k" {
		t.Fatalf("ReadCommand() = %q, %v", line2, eof2)
	}

	hist := shell.History()
	if len(hist) != 2 || hist[0] != "put t k v" || hist[1] != "get t k" {
		t.Errorf("History() = %v", hist)
	}
}

func TestShell_ReadCommand_SkipsBlankHistory(t *testing.T) {
	input := strings.NewReader("\nput t k v\n")
	output := &bytes.Buffer{}
	shell := NewShell(input, output, nil)

	shell.ReadCommand()
	shell.ReadCommand()

	hist := shell.History()
	if len(hist) != 1 || hist[0] != "put t k v" {
		t.Errorf("History() = %v, want single entry", hist)
	}
}

func TestShell_ReadCommand_EOF(t *testing.T) {
	input := strings.NewReader("")
	output := &bytes.Buffer{}
	shell := NewShell(input, output, nil)

	_, eof := shell.ReadCommand()
	if !eof {
		t.Error("ReadCommand should return EOF for empty input")
	}
}

func TestShell_History_SkipsConsecutiveDuplicates(t *testing.T) {
	shell := NewShell(nil, nil, nil)
	shell.AddHistory("scan t")
	shell.AddHistory("scan t")
	shell.AddHistory("get t k")

	hist := shell.History()
	if len(hist) != 2 {
		t.Errorf("History() = %v, want 2 entries after duplicate suppression", hist)
	}
}
