package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/wippyai/wasm-sandbox/engine"
	"github.com/wippyai/wasm-sandbox/runtime"
	"github.com/wippyai/wasm-sandbox/transcoder"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4")).
			Padding(0, 1)

	funcStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#98FB98"))

	typeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#87CEEB"))

	selectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FAFAFA")).
			Background(lipgloss.Color("#7D56F4"))

	resultStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#90EE90"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FF6B6B"))

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#666666"))
)

func newInteractiveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "interactive <file.wasm>",
		Aliases: []string{"i"},
		Short:   "Browse and call exports in a terminal UI",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if !term.IsTerminal(int(os.Stdin.Fd())) || !term.IsTerminal(int(os.Stdout.Fd())) {
				return fmt.Errorf("interactive mode needs a terminal; use the call command instead")
			}
			return runInteractive(cmd, args[0])
		},
	}
	addCapabilityFlags(cmd)
	return cmd
}

type modelState int

const (
	stateSelectFunc modelState = iota
	stateInputArgs
	stateShowResult
)

type interactiveModel struct {
	ctx      context.Context
	cmd      *cobra.Command
	err      error
	rt       *runtime.Runtime
	instance runtime.InstanceHandle
	loaded   bool
	filename string
	memory   string
	result   string
	funcs    []runtime.ExportDescriptor
	inputs   []textinput.Model
	selected int
	focusIdx int
	state    modelState
}

func newInteractiveModel(ctx context.Context, cmd *cobra.Command, filename string) *interactiveModel {
	return &interactiveModel{
		ctx:      ctx,
		cmd:      cmd,
		filename: filename,
		state:    stateSelectFunc,
	}
}

type loadedMsg struct {
	err    error
	rt     *runtime.Runtime
	inst   runtime.InstanceHandle
	funcs  []runtime.ExportDescriptor
	memory string
}

type callResultMsg struct {
	err    error
	result string
	memory string
}

func (m *interactiveModel) Init() tea.Cmd {
	return m.loadModule
}

func (m *interactiveModel) loadModule() tea.Msg {
	rt, err := openRuntime(m.cmd)
	if err != nil {
		return loadedMsg{err: err}
	}

	inst, err := loadModule(m.ctx, m.cmd, rt, m.filename)
	if err != nil {
		_ = rt.Close(m.ctx)
		return loadedMsg{err: err}
	}
	exports, err := rt.Exports(inst)
	if err != nil {
		_ = rt.Close(m.ctx)
		return loadedMsg{err: err}
	}

	var funcs []runtime.ExportDescriptor
	for _, e := range exports {
		if e.Kind == engine.ExportFunction {
			funcs = append(funcs, e)
		}
	}
	if len(funcs) == 0 {
		_ = rt.Close(m.ctx)
		return loadedMsg{err: fmt.Errorf("%s exports no functions", m.filename)}
	}
	return loadedMsg{rt: rt, inst: inst, funcs: funcs, memory: m.memorySize(rt, inst)}
}

func (m *interactiveModel) memorySize(rt *runtime.Runtime, inst runtime.InstanceHandle) string {
	pages, err := rt.MemorySize(m.ctx, inst)
	if err != nil {
		return ""
	}
	return describePages(pages)
}

func (m *interactiveModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			if m.state == stateInputArgs && msg.String() == "q" {
				break
			}
			if m.rt != nil {
				_ = m.rt.Close(m.ctx)
			}
			return m, tea.Quit

		case "up", "k":
			if m.state == stateSelectFunc && m.selected > 0 {
				m.selected--
			}

		case "down", "j":
			if m.state == stateSelectFunc && m.selected < len(m.funcs)-1 {
				m.selected++
			}

		case "enter":
			switch m.state {
			case stateSelectFunc:
				if !m.loaded {
					break
				}
				m.prepareInputs()
				if len(m.inputs) == 0 {
					return m, m.callFunction
				}
				m.state = stateInputArgs

			case stateInputArgs:
				return m, m.callFunction

			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}

		case "tab":
			if m.state == stateInputArgs && len(m.inputs) > 1 {
				m.inputs[m.focusIdx].Blur()
				m.focusIdx = (m.focusIdx + 1) % len(m.inputs)
				m.inputs[m.focusIdx].Focus()
			}

		case "esc":
			switch m.state {
			case stateInputArgs:
				m.state = stateSelectFunc
				m.inputs = nil
			case stateShowResult:
				m.state = stateSelectFunc
				m.result = ""
				m.err = nil
			}
		}

	case loadedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.loaded = true
		m.funcs = msg.funcs
		m.rt = msg.rt
		m.instance = msg.inst
		m.memory = msg.memory

	case callResultMsg:
		m.result = msg.result
		m.err = msg.err
		if msg.memory != "" {
			m.memory = msg.memory
		}
		m.state = stateShowResult
	}

	if m.state == stateInputArgs {
		var cmds []tea.Cmd
		for i := range m.inputs {
			var cmd tea.Cmd
			m.inputs[i], cmd = m.inputs[i].Update(msg)
			cmds = append(cmds, cmd)
		}
		return m, tea.Batch(cmds...)
	}

	return m, nil
}

func (m *interactiveModel) prepareInputs() {
	f := m.funcs[m.selected]
	m.inputs = make([]textinput.Model, len(f.Params))
	for i, p := range f.Params {
		ti := textinput.New()
		ti.Placeholder = p.String()
		ti.Prompt = fmt.Sprintf("arg%d: ", i)
		ti.Width = 40
		if i == 0 {
			ti.Focus()
		}
		m.inputs[i] = ti
	}
	m.focusIdx = 0
}

func (m *interactiveModel) callFunction() tea.Msg {
	f := m.funcs[m.selected]
	args := make([]any, len(m.inputs))
	for i, input := range m.inputs {
		// the declared parameter type is authoritative for typed input
		v, err := transcoder.ParseArg(f.Params[i].String() + ":" + strings.TrimSpace(input.Value()))
		if err != nil {
			return callResultMsg{err: fmt.Errorf("arg%d: %w", i, err)}
		}
		args[i] = v
	}

	results, err := m.rt.Call(m.ctx, m.instance, f.Name, args...)
	if err != nil {
		return callResultMsg{err: err}
	}

	parts := make([]string, len(results))
	for i, r := range results {
		parts[i] = r.String()
	}
	result := strings.Join(parts, ", ")
	if result == "" {
		result = "(no results)"
	}
	return callResultMsg{result: result, memory: m.memorySize(m.rt, m.instance)}
}

func (m *interactiveModel) View() string {
	if m.err != nil && m.state != stateShowResult {
		return errorStyle.Render(fmt.Sprintf("Error: %v\n\nPress q to quit.", m.err))
	}

	if !m.loaded {
		return "Loading module..."
	}

	var b strings.Builder

	b.WriteString(titleStyle.Render("WASM Sandbox"))
	b.WriteString(" ")
	b.WriteString(m.filename)
	if m.memory != "" {
		b.WriteString(helpStyle.Render("  memory: " + m.memory))
	}
	b.WriteString("\n\n")

	switch m.state {
	case stateSelectFunc:
		b.WriteString("Select a function to call:\n\n")
		for i, f := range m.funcs {
			if i == m.selected {
				b.WriteString(selectedStyle.Render("> " + formatSignature(f)))
			} else {
				b.WriteString("  " + m.formatFunc(f))
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("↑/↓ select • enter call • q quit"))

	case stateInputArgs:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Calling %s\n\n", funcStyle.Render(f.Name)))
		for i, input := range m.inputs {
			b.WriteString(input.View())
			b.WriteString(" ")
			b.WriteString(typeStyle.Render(f.Params[i].String()))
			b.WriteString("\n")
		}
		b.WriteString("\n")
		b.WriteString(helpStyle.Render("tab next field • enter call • esc back"))

	case stateShowResult:
		f := m.funcs[m.selected]
		b.WriteString(fmt.Sprintf("Result of %s:\n\n", funcStyle.Render(f.Name)))
		if m.err != nil {
			b.WriteString(errorStyle.Render(fmt.Sprintf("Error: %v", m.err)))
		} else {
			b.WriteString(resultStyle.Render(m.result))
		}
		b.WriteString("\n\n")
		b.WriteString(helpStyle.Render("enter continue • q quit"))
	}

	return b.String()
}

func (m *interactiveModel) formatFunc(f runtime.ExportDescriptor) string {
	params := make([]string, len(f.Params))
	for i, p := range f.Params {
		params[i] = typeStyle.Render(p.String())
	}
	var results []string
	for _, r := range f.Results {
		results = append(results, typeStyle.Render(r.String()))
	}
	sig := funcStyle.Render(f.Name) + "(" + strings.Join(params, ", ") + ")"
	if len(results) > 0 {
		sig += " -> " + strings.Join(results, ", ")
	}
	return sig
}

func runInteractive(cmd *cobra.Command, filename string) error {
	p := tea.NewProgram(newInteractiveModel(cmd.Context(), cmd, filename), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
