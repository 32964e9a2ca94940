package license

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-isatty"
)

// ErrNotInteractive is returned by TeaPrompter when stdin is not a terminal.
var ErrNotInteractive = errors.New("not an interactive terminal, pass --accept-license to continue")

// confirmModel is a bubbletea model answering a single y/n question.
type confirmModel struct {
	question string
	answer   bool
	done     bool
}

func (m confirmModel) Init() tea.Cmd { return nil }

func (m confirmModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.Type {
	case tea.KeyCtrlC, tea.KeyEsc:
		m.done = true
		m.answer = false
		return m, tea.Quit
	case tea.KeyEnter:
		// default is no
		m.done = true
		return m, tea.Quit
	}
	switch strings.ToLower(key.String()) {
	case "y":
		m.answer, m.done = true, true
		return m, tea.Quit
	case "n":
		m.answer, m.done = false, true
		return m, tea.Quit
	}
	return m, nil
}

func (m confirmModel) View() string {
	if m.done {
		answer := "n"
		if m.answer {
			answer = "y"
		}
		return fmt.Sprintf("%s [y/N] %s\n", m.question, answer)
	}
	return fmt.Sprintf("%s [y/N] ", m.question)
}

// TeaPrompter asks on the terminal.
type TeaPrompter struct {
	In  *os.File
	Out io.Writer
}

// NewTeaPrompter returns a prompter on stdin/stderr.
func NewTeaPrompter() *TeaPrompter {
	return &TeaPrompter{In: os.Stdin, Out: os.Stderr}
}

func (p *TeaPrompter) Confirm(ctx context.Context, question string) (bool, error) {
	if p.In == nil || !(isatty.IsTerminal(p.In.Fd()) || isatty.IsCygwinTerminal(p.In.Fd())) {
		return false, ErrNotInteractive
	}
	prog := tea.NewProgram(confirmModel{question: question},
		tea.WithContext(ctx),
		tea.WithInput(p.In),
		tea.WithOutput(p.Out),
	)
	result, err := prog.Run()
	if err != nil {
		return false, err
	}
	final, ok := result.(confirmModel)
	if !ok || !final.done {
		return false, nil
	}
	return final.answer, nil
}
