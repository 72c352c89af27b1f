// Command cli is an interactive shell for model-driven desktop runs.
//
// Usage:
//
//	export GEMINI_API_KEY="your-api-key"
//	go run ./cmd/cli
//
// Each message is a task. The model drives the sandbox until it answers
// without an action; the conversation carries over to the next task.
//
// Commands:
//
//	/exit  - Exit the program
//	/reset - Start a new conversation
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sort"
	"strings"

	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"

	"github.com/nstogner/desktopctl/pkg/app"
	"github.com/nstogner/desktopctl/pkg/config"
	"github.com/nstogner/desktopctl/pkg/domain"
	"github.com/nstogner/desktopctl/pkg/locator"
	"github.com/nstogner/desktopctl/pkg/logging"
	llm "github.com/nstogner/desktopctl/pkg/model"
	"github.com/nstogner/desktopctl/pkg/runner"
	"github.com/nstogner/desktopctl/pkg/sandbox"
	"github.com/nstogner/desktopctl/pkg/sandbox/docker"
	"github.com/nstogner/desktopctl/pkg/store"
	"github.com/nstogner/desktopctl/pkg/store/jsonl"
	"github.com/nstogner/desktopctl/pkg/tools"
)

var (
	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("#FFFDF5")).
			Background(lipgloss.Color("#25A065")).
			Padding(0, 1)

	senderStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("5")).
			Bold(true)

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("2")).
			Bold(true)

	toolStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	statusStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Italic(true)

	cursorStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
	selectedItemStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205")).Bold(true)
	errorStyle        = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true).Padding(0, 1) // Red
)

type state int

const (
	stateSelectingModel state = iota
	stateChatting
	stateRunning
	stateConfirmExit
)

type errMsg struct{ err error }

type modelsMsg []string

type sandboxReadyMsg struct {
	handle  sandbox.Handle
	started bool
	actions tools.ActionClient
	closer  io.Closer
}

type runEventMsg runner.Event

type runDoneMsg struct {
	res  runner.Result
	err  error
	prev int
}

// lister is implemented by providers that can enumerate their models.
type lister interface {
	List(ctx context.Context) ([]string, error)
}

type model struct {
	ctx      context.Context
	cfg      *config.Config
	mgr      *docker.Manager
	provider llm.Provider
	loc      locator.Locator
	runs     store.Manager
	run      store.Run

	// Sandbox
	handle  *sandbox.Handle
	started bool
	actions tools.ActionClient
	closer  io.Closer
	reg     *tools.Registry

	// Run
	modelName string
	history   []domain.Message
	pending   []string
	runCancel context.CancelFunc
	events    <-chan runner.Event
	status    string

	// State
	state           state
	prevState       state
	availableModels []string
	cursor          int
	listOffset      int
	width           int
	height          int
	err             error

	// UI Components
	viewport viewport.Model
	textarea textarea.Model
	renderer *glamour.TermRenderer
}

func initialModel(ctx context.Context, cfg *config.Config, mgr *docker.Manager, provider llm.Provider, loc locator.Locator, runs store.Manager) model {
	ta := textarea.New()
	ta.Placeholder = "Waiting for the sandbox..."
	ta.Focus()
	ta.Prompt = "┃ "
	ta.CharLimit = 500

	ta.SetWidth(80)
	ta.SetHeight(3)

	// Remove cursor line styling
	ta.FocusedStyle.CursorLine = lipgloss.NewStyle()
	ta.ShowLineNumbers = false

	vp := viewport.New(80, 20)
	vp.SetContent("Describe a task, e.g. \"Open Firefox and go to nike.com\".")

	// Use "light" style to avoid terminal queries that leak into input
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(80),
	)

	startState := stateChatting
	if _, ok := provider.(lister); ok {
		startState = stateSelectingModel
	}

	return model{
		ctx:       ctx,
		cfg:       cfg,
		mgr:       mgr,
		provider:  provider,
		loc:       loc,
		runs:      runs,
		modelName: cfg.Model.Name,
		state:     startState,
		status:    "starting sandbox...",
		viewport:  vp,
		textarea:  ta,
		renderer:  r,
	}
}

func (m model) Init() tea.Cmd {
	cmds := []tea.Cmd{textarea.Blink, m.connectCmd()}
	if l, ok := m.provider.(lister); ok {
		cmds = append(cmds, func() tea.Msg {
			names, err := l.List(m.ctx)
			if err != nil {
				return errMsg{err}
			}
			sort.Strings(names)
			return modelsMsg(names)
		})
	}
	return tea.Batch(cmds...)
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	var tiCmd, vpCmd tea.Cmd
	// This prevents the Enter key used for menu selection from leaking into the textarea.
	switch msg.(type) {
	case tea.KeyMsg:
		if m.state == stateChatting {
			m.textarea, tiCmd = m.textarea.Update(msg)
			cmds = append(cmds, tiCmd)
		}
	default:
		m.textarea, tiCmd = m.textarea.Update(msg)
		cmds = append(cmds, tiCmd)
	}

	m.viewport, vpCmd = m.viewport.Update(msg)
	cmds = append(cmds, vpCmd)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.viewport.Width = msg.Width
		m.textarea.SetWidth(msg.Width)
		m.viewport.Height = msg.Height - m.textarea.Height() - 4 // Header + status + margin
		if m.viewport.Height < 0 {
			m.viewport.Height = 0
		}
		m.viewport.YPosition = 2

		m.renderer, _ = glamour.NewTermRenderer(
			glamour.WithStandardStyle("light"),
			glamour.WithWordWrap(max(m.width-4, 20)),
		)
		m.refresh()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC:
			if m.state == stateRunning {
				m.runCancel()
				m.status = "cancelling..."
				return m, nil
			}
			return m.exit()
		case tea.KeyEsc:
			if m.state == stateConfirmExit {
				m.state = m.prevState
				return m, nil
			}
			if m.state == stateRunning {
				return m, nil
			}
			return m.exit()
		case tea.KeyEnter:
			switch m.state {
			case stateSelectingModel:
				if len(m.availableModels) > 0 {
					m.modelName = m.availableModels[m.cursor]
				}
				m.state = stateChatting
				return m, nil
			case stateChatting:
				m.err = nil // Clear error on new message
				return m.sendMessage()
			}
		case tea.KeyUp:
			if m.state == stateSelectingModel && m.cursor > 0 {
				m.cursor--
				if m.cursor < m.listOffset {
					m.listOffset = m.cursor
				}
			}
		case tea.KeyDown:
			if m.state == stateSelectingModel && m.cursor < len(m.availableModels)-1 {
				m.cursor++
				maxViewable := max(m.height-7, 1)
				if m.cursor >= m.listOffset+maxViewable {
					m.listOffset = m.cursor - maxViewable + 1
				}
			}
		default:
			if m.state == stateConfirmExit {
				switch msg.String() {
				case "y", "Y":
					return m, tea.Sequence(m.stopSandboxCmd(), tea.Quit)
				case "n", "N":
					// Leave the sandbox running.
					return m, tea.Quit
				}
			}
		}

	case modelsMsg:
		m.availableModels = msg
		for i, name := range msg {
			if name == m.modelName || strings.TrimPrefix(name, "models/") == m.modelName {
				m.cursor = i
			}
		}
		if len(msg) == 0 && m.state == stateSelectingModel {
			m.state = stateChatting
		}

	case sandboxReadyMsg:
		h := msg.handle
		m.handle = &h
		m.started = msg.started
		m.actions, m.closer = msg.actions, msg.closer
		m.reg = app.Tools(m.cfg, m.actions)
		m.status = fmt.Sprintf("sandbox %s", h)
		m.textarea.Placeholder = "Describe a task..."
		slog.Info("Sandbox ready", "sandbox", h.String(), "started", msg.started)

	case runEventMsg:
		m.onEvent(runner.Event(msg))
		cmds = append(cmds, waitForEvent(m.events))

	case runDoneMsg:
		m.history = msg.res.History
		m.pending = nil
		m.runCancel = nil
		m.state = stateChatting
		m.status = fmt.Sprintf("sandbox %s · %d steps", m.handle, msg.res.Steps)
		m.record(msg.res.History[min(msg.prev, len(msg.res.History)):], msg.err)
		if msg.err != nil && !errors.Is(msg.err, context.Canceled) {
			m.err = msg.err
		}
		m.refresh()

	case errMsg:
		m.err = msg.err
	}

	return m, tea.Batch(cmds...)
}

func (m model) View() string {
	var errorView string
	if m.err != nil {
		errorView = errorStyle.Width(m.width).Render(fmt.Sprintf("\nError: %v", m.err))
	}

	if m.state == stateSelectingModel {
		header := titleStyle.Render("Select Model")

		maxViewable := max(m.height-7, 1)
		start := m.listOffset
		end := min(start+maxViewable, len(m.availableModels))

		var optionsView []string
		for i := start; i < end; i++ {
			choice := m.availableModels[i]
			cursor := " "
			if m.cursor == i {
				cursor = ">"
				choice = selectedItemStyle.Render(choice)
			}
			optionsView = append(optionsView, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), choice))
		}
		if len(optionsView) == 0 {
			optionsView = append(optionsView, "Loading models...")
		}

		list := lipgloss.JoinVertical(lipgloss.Left, optionsView...)
		footer := "Press Enter to select, Esc to quit."

		return lipgloss.JoinVertical(lipgloss.Left, header, "", list, "", footer, errorView)
	}

	if m.state == stateConfirmExit {
		header := titleStyle.Render("Confirm Exit")
		prompt := "Stop the sandbox? (y/n)"
		subtext := "Stopping removes the sandbox container."

		return lipgloss.JoinVertical(
			lipgloss.Left,
			header,
			"",
			prompt,
			subtext,
			errorView,
		)
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		titleStyle.Render("desktopctl · "+m.provider.Name()+" · "+m.modelName),
		statusStyle.Render(m.status),
		m.viewport.View(),
		"",
		errorView,
		m.textarea.View(),
	)
}

// Actions

func (m model) exit() (tea.Model, tea.Cmd) {
	if m.started {
		m.prevState = m.state
		m.state = stateConfirmExit
		return m, nil
	}
	return m, tea.Quit
}

func (m model) sendMessage() (model, tea.Cmd) {
	v := strings.TrimSpace(m.textarea.Value())
	if v == "" {
		return m, nil
	}
	m.textarea.Reset()

	switch v {
	case "/exit":
		return m.exitModel()
	case "/reset":
		m.history = nil
		m.closeRun()
		m.refresh()
		return m, nil
	}

	if m.actions == nil {
		m.err = errors.New("the sandbox is not ready yet")
		return m, nil
	}
	return m.startRun(v)
}

func (m model) exitModel() (model, tea.Cmd) {
	next, cmd := m.exit()
	return next.(model), cmd
}

func (m model) startRun(task string) (model, tea.Cmd) {
	ctx, cancel := context.WithCancel(m.ctx)
	events := make(chan runner.Event, 64)

	r := app.Runner(m.cfg, m.actions, m.loc, runner.ChanObserver(events))
	run := app.ModelRun(m.cfg, m.provider, m.reg, m.history, task)
	run.Model = m.modelName
	prev := len(m.history)

	m.runCancel = cancel
	m.events = events
	m.state = stateRunning
	m.status = "thinking..."
	m.pending = []string{userStyle.Render("User: ") + "\n" + task}
	m.refresh()

	return m, tea.Batch(
		func() tea.Msg {
			defer cancel()
			res, err := r.RunModel(ctx, run)
			// Events are only sent from within RunModel.
			close(events)
			return runDoneMsg{res: res, err: err, prev: prev}
		},
		waitForEvent(events),
	)
}

func (m *model) onEvent(e runner.Event) {
	switch e.Type {
	case runner.EventDecision:
		if text := e.Message.Text(); text != "" {
			m.pending = append(m.pending, senderStyle.Render("AI: ")+"\n"+m.render(text))
		}
		if uses := e.Message.ToolUses(); len(uses) > 0 {
			m.pending = append(m.pending, toolStyle.Render(describeToolUse(uses[0])))
			m.status = fmt.Sprintf("step %d: %s", e.Step+1, describeToolUse(uses[0]))
		}
	case runner.EventToolResult:
		m.pending = append(m.pending, toolStyle.Render(describeResult(*e.Result)))
		m.status = "thinking..."
	case runner.EventFailed:
		m.status = fmt.Sprintf("failed: %v", e.Err)
	}
	m.refresh()
}

// refresh re-renders the conversation into the viewport.
func (m *model) refresh() {
	var sb strings.Builder
	for _, msg := range m.history {
		if len(msg.Content) == 0 {
			continue
		}
		if msg.Role == domain.RoleUser && msg.Content[0].ToolResult == nil {
			sb.WriteString(userStyle.Render("User: "))
			sb.WriteString("\n")
		} else if msg.Role == domain.RoleAssistant {
			sb.WriteString(senderStyle.Render("AI: "))
			sb.WriteString("\n")
		}
		for _, c := range msg.Content {
			switch {
			case c.Text != nil:
				sb.WriteString(m.render(c.Text.Content))
			case c.ToolUse != nil:
				sb.WriteString(toolStyle.Render(describeToolUse(*c.ToolUse)))
			case c.ToolResult != nil:
				sb.WriteString(toolStyle.Render(describeToolResult(*c.ToolResult)))
			}
			sb.WriteString("\n")
		}
	}
	for _, p := range m.pending {
		sb.WriteString(p)
		sb.WriteString("\n")
	}
	m.viewport.SetContent(sb.String())
	m.viewport.GotoBottom()
}

func (m *model) render(text string) string {
	if m.renderer == nil {
		return text
	}
	out, err := m.renderer.Render(text)
	if err != nil {
		return text // Fallback
	}
	return strings.TrimRight(out, "\n")
}

func describeToolUse(tu domain.ToolUseContent) string {
	if tu.Name != tools.ToolNameComputer {
		return fmt.Sprintf("[%s %v]", tu.Name, tu.Input)
	}
	cmd, err := tools.DecodeCommand(tu.Input)
	if err != nil {
		return fmt.Sprintf("[computer %v]", tu.Input)
	}
	return "[computer " + cmd.String() + "]"
}

func describeResult(res domain.ActionResult) string {
	return describeToolResult(*domain.ToolResultBlock("", res).ToolResult)
}

func describeToolResult(tr domain.ToolResultContent) string {
	status := "ok"
	if tr.IsError {
		status = "error"
	}
	s := "[" + status
	if tr.Content != "" {
		s += ": " + tr.Content
	}
	if tr.Image != nil {
		s += " (screenshot)"
	}
	return s + "]"
}

// record appends a finished run to the transcript, opening one on first use.
func (m *model) record(msgs []domain.Message, runErr error) {
	if m.runs == nil {
		return
	}
	if m.run == nil {
		run, err := m.runs.NewRun(store.Header{
			Mode:     store.ModeModel,
			Task:     firstTask(m.history),
			Provider: m.provider.Name(),
			Model:    m.modelName,
			Sandbox:  m.handle.Name,
		})
		if err != nil {
			slog.Warn("Run recording disabled", "error", err)
			m.runs = nil
			return
		}
		m.run = run
		msgs = m.history
	}
	if err := m.run.AppendMessages(msgs...); err != nil {
		slog.Warn("Recording messages", "error", err)
	}
	status := store.StatusCompleted
	if runErr != nil {
		status = store.StatusFailed
	}
	if err := m.run.SetStatus(status, runErr); err != nil {
		slog.Warn("Recording run status", "error", err)
	}
}

func (m *model) closeRun() {
	if m.run != nil {
		m.run.Close()
		m.run = nil
	}
}

func (m *model) closeActions() {
	if m.closer != nil {
		m.closer.Close()
		m.closer = nil
	}
}

func firstTask(history []domain.Message) string {
	for _, msg := range history {
		if msg.Role == domain.RoleUser {
			if t := msg.Text(); t != "" {
				return t
			}
		}
	}
	return ""
}

// connectCmd adopts a running sandbox or starts one.
func (m model) connectCmd() tea.Cmd {
	return func() tea.Msg {
		h, ok, err := m.mgr.Adopt(m.ctx)
		if err != nil {
			return errMsg{err}
		}
		started := false
		if !ok {
			out := <-sandbox.StartAsync(m.ctx, m.mgr)
			if out.Err != nil {
				return errMsg{out.Err}
			}
			h, started = out.Handle, true
		}
		actions, closer, err := app.ActionClient(m.ctx, m.cfg, app.Client(m.cfg, h.CommandURL))
		if err != nil {
			return errMsg{err}
		}
		return sandboxReadyMsg{handle: h, started: started, actions: actions, closer: closer}
	}
}

func (m model) stopSandboxCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.mgr.Stop(context.Background()); err != nil {
			slog.Error("Failed to stop sandbox", "error", err)
		}
		return nil
	}
}

func waitForEvent(ch <-chan runner.Event) tea.Cmd {
	return func() tea.Msg {
		e, ok := <-ch
		if !ok {
			return nil
		}
		return runEventMsg(e)
	}
}

// --- Main ---

func main() {
	cfg, err := config.Load("")
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI.
	if cfg.Log.File == "" {
		cfg.Log.File = "desktopctl-cli.log"
	}
	closer, err := logging.Setup(cfg.Log)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	defer closer.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	loc, err := app.Locator(ctx, cfg)
	if err != nil && cfg.Model.Provider == "grounded" {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	provider, providerCloser, err := app.Provider(ctx, cfg, loc)
	if err != nil {
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer providerCloser.Close()

	mgr, err := app.SandboxManager(cfg)
	if err != nil {
		slog.Error("Failed to initialize sandbox manager", "error", err)
		fmt.Println("Error:", err)
		os.Exit(1)
	}
	defer mgr.Close()

	var runs store.Manager
	if cfg.Store.Dir != "" {
		if runs, err = jsonl.NewManager(cfg.Store.Dir); err != nil {
			slog.Warn("Run recording disabled", "error", err)
			runs = nil
		}
	}

	p := tea.NewProgram(initialModel(ctx, cfg, mgr, provider, loc, runs), tea.WithAltScreen())
	final, err := p.Run()
	if m, ok := final.(model); ok {
		m.closeRun()
		m.closeActions()
	}
	if err != nil {
		fmt.Printf("Alas, there's been an error: %v", err)
		os.Exit(1)
	}
}
