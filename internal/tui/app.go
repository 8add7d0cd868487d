// internal/tui/app.go
//
// The terminal front end of the portal. It follows The Elm Architecture:
// messages flow into Update, which mutates the App model, and View renders
// the model to a string. The stage sequence itself runs on a goroutine owned
// by the orchestrator; progress comes back through an eventbridge
// subscription that is turned into bubbletea messages.

package tui

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/portal/internal/artifact"
	"github.com/kingrea/portal/internal/config"
	"github.com/kingrea/portal/internal/eventbridge"
	"github.com/kingrea/portal/internal/ledger"
	"github.com/kingrea/portal/internal/logbook"
	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/storage"
)

const frameInterval = 100 * time.Millisecond

// appState represents which screen we're on.
type appState int

const (
	stateMainMenu appState = iota
	stateStage
	stateSummary
	stateCertificate
)

// Services are the long-lived collaborators the app drives.
type Services struct {
	Config      *config.Config
	Registry    *stage.Registry
	Ledger      *ledger.Ledger
	Certificate *artifact.Certificate
	Sessions    storage.SessionStore
	Logbook     *logbook.Logbook
	Logger      *slog.Logger
}

// AppOption customizes App construction.
type AppOption func(*App)

// WithContext sets the parent context for runs and certificate lookups.
func WithContext(ctx context.Context) AppOption {
	return func(a *App) {
		if ctx != nil {
			a.ctx = ctx
		}
	}
}

// WithOrchestratorOptions appends options to every orchestrator the app builds.
func WithOrchestratorOptions(opts ...orchestrator.Option) AppOption {
	return func(a *App) {
		a.orchOpts = append(a.orchOpts, opts...)
	}
}

type (
	bridgeEventMsg  eventbridge.Event
	bridgeClosedMsg struct{}
	frameMsg        time.Time

	certificateLoadedMsg struct {
		info     artifact.Info
		sessions []storage.SessionRecord
		err      error
	}
)

// run is one in-flight pass over the stage sequence.
type run struct {
	cancel context.CancelFunc
	sub    eventbridge.Subscription
	done   chan struct{}
	once   sync.Once
}

func (r *run) stop() {
	r.once.Do(func() {
		r.cancel()
		r.sub.Close()
	})
}

// App is the main application model.
type App struct {
	state    appState
	svc      Services
	ctx      context.Context
	orchOpts []orchestrator.Option
	logger   *slog.Logger

	mainMenu list.Model
	spinner  spinner.Model
	progress progress.Model
	help     help.Model

	run      *run
	current  stage.Stage
	view     stageView
	index    int
	stages   int
	results  []stage.Result
	session  orchestrator.Session
	runErr   error
	ticking  bool
	quitting bool

	certInfo artifact.Info
	history  []storage.SessionRecord
	certErr  error

	statusMsg string
	width     int
	height    int
}

type menuItem struct {
	id    string
	title string
	desc  string
}

func (i menuItem) Title() string       { return i.title }
func (i menuItem) Description() string { return i.desc }
func (i menuItem) FilterValue() string { return i.title }

const (
	menuEnter       = "enter"
	menuCertificate = "certificate"
	menuExit        = "exit"
)

var (
	keySkip = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "skip stage"))
	keyBack = key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "back"))
	keyQuit = key.NewBinding(key.WithKeys("ctrl+c"), key.WithHelp("ctrl+c", "quit"))
	keyOpen = key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "certificate"))
)

// NewApp creates the app. Registry and Ledger are required.
func NewApp(svc Services, opts ...AppOption) (*App, error) {
	if svc.Registry == nil {
		return nil, errors.New("tui: stage registry is required")
	}
	if svc.Ledger == nil {
		return nil, errors.New("tui: ledger is required")
	}
	logger := svc.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	mainMenu := list.New(buildMainMenu(), list.NewDefaultDelegate(), 0, 0)
	mainMenu.Title = "⬡ THE PORTAL"
	mainMenu.SetShowStatusBar(false)
	mainMenu.SetFilteringEnabled(false)

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = coinStyle

	app := &App{
		state:    stateMainMenu,
		svc:      svc,
		ctx:      context.Background(),
		logger:   logger,
		mainMenu: mainMenu,
		spinner:  sp,
		progress: progress.New(progress.WithDefaultGradient(), progress.WithoutPercentage()),
		help:     help.New(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(app)
		}
	}
	app.logInfo("Portal opened · %d coins banked", svc.Ledger.Total())
	return app, nil
}

func buildMainMenu() []list.Item {
	return []list.Item{
		menuItem{id: menuEnter, title: "Enter the portal", desc: "Play through the stages and earn coins"},
		menuItem{id: menuCertificate, title: "View certificate", desc: "See your latest certificate and past journeys"},
		menuItem{id: menuExit, title: "Exit", desc: "Leave the portal"},
	}
}

func (a *App) logInfo(format string, args ...any) {
	if a.svc.Logbook == nil {
		return
	}
	a.svc.Logbook.Info(format, args...)
}

func (a *App) logWarn(format string, args ...any) {
	if a.svc.Logbook == nil {
		return
	}
	a.svc.Logbook.Warn(format, args...)
}

func (a *App) logError(format string, args ...any) {
	if a.svc.Logbook == nil {
		return
	}
	a.svc.Logbook.Error(format, args...)
}

// Init is called once when the program starts.
func (a *App) Init() tea.Cmd {
	return nil
}

// Update is called when a message is received.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height
		a.mainMenu.SetSize(max(0, msg.Width-6), max(0, msg.Height-14))
		return a, nil

	case bridgeEventMsg:
		return a.handleEvent(eventbridge.Event(msg))

	case bridgeClosedMsg:
		return a, nil

	case frameMsg:
		if a.state != stateStage {
			a.ticking = false
			return a, nil
		}
		return a, frameTick()

	case spinner.TickMsg:
		if a.state != stateStage || a.current != nil {
			return a, nil
		}
		var cmd tea.Cmd
		a.spinner, cmd = a.spinner.Update(msg)
		return a, cmd

	case certificateLoadedMsg:
		a.certInfo = msg.info
		a.history = msg.sessions
		a.certErr = msg.err
		return a, nil

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, keyQuit):
			a.quitting = true
			if a.run != nil {
				a.run.stop()
			}
			return a, tea.Quit
		case msg.String() == "q" && a.state == stateMainMenu:
			a.quitting = true
			return a, tea.Quit
		}
		switch a.state {
		case stateStage:
			return a.handleStageKey(msg)
		case stateSummary:
			switch {
			case key.Matches(msg, keyOpen):
				return a.openCertificate()
			case key.Matches(msg, keyBack):
				return a.returnToMainMenu()
			}
			return a, nil
		case stateCertificate:
			if key.Matches(msg, keyBack) {
				return a.returnToMainMenu()
			}
			return a, nil
		case stateMainMenu:
			if msg.String() == "enter" {
				return a.handleMainMenuSelection()
			}
		}
	}

	if a.state == stateMainMenu {
		var cmd tea.Cmd
		a.mainMenu, cmd = a.mainMenu.Update(msg)
		return a, cmd
	}
	return a, nil
}

func (a *App) handleMainMenuSelection() (tea.Model, tea.Cmd) {
	item, ok := a.mainMenu.SelectedItem().(menuItem)
	if !ok {
		return a, nil
	}
	switch item.id {
	case menuEnter:
		return a.startRun()
	case menuCertificate:
		return a.openCertificate()
	case menuExit:
		a.quitting = true
		return a, tea.Quit
	}
	return a, nil
}

func (a *App) handleStageKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, keySkip) {
		if a.current != nil {
			a.logWarn("Skipped %s", a.current.Info().Name)
			a.current.Skip()
		}
		return a, nil
	}
	if a.view != nil {
		return a, a.view.Update(msg)
	}
	return a, nil
}

// startRun builds fresh stages and launches the sequence in the background.
func (a *App) startRun() (tea.Model, tea.Cmd) {
	if a.run != nil {
		return a, nil
	}
	var ids []string
	if a.svc.Config != nil {
		ids = a.svc.Config.StageIDs()
	} else {
		ids = config.DefaultStages
	}
	stages, err := a.svc.Registry.Build(ids)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Cannot open the portal: %v", err)
		a.logError("Cannot build stages: %v", err)
		return a, nil
	}

	router := eventbridge.NewRouter(eventbridge.WithLogger(a.logger))
	opts := []orchestrator.Option{
		orchestrator.WithObserver(router),
		orchestrator.WithLogger(a.logger),
	}
	if a.svc.Certificate != nil {
		opts = append(opts, orchestrator.WithGenerator(a.svc.Certificate))
	}
	if a.svc.Sessions != nil {
		opts = append(opts, orchestrator.WithSessionStore(a.svc.Sessions))
	}
	opts = append(opts, a.orchOpts...)
	orch, err := orchestrator.New(a.svc.Ledger, opts...)
	if err != nil {
		a.statusMsg = fmt.Sprintf("Cannot open the portal: %v", err)
		a.logError("Cannot build orchestrator: %v", err)
		return a, nil
	}

	runCtx, cancel := context.WithCancel(a.ctx)
	r := &run{cancel: cancel, sub: router.Subscribe(), done: make(chan struct{})}
	go func() {
		defer close(r.done)
		_, _ = orch.RunSequence(runCtx, stages)
	}()

	a.run = r
	a.state = stateStage
	a.current = nil
	a.view = nil
	a.index = 0
	a.stages = len(stages)
	a.results = nil
	a.session = orchestrator.Session{}
	a.runErr = nil
	a.statusMsg = ""
	a.logInfo("Entered the portal · %d stages ahead", len(stages))

	cmds := []tea.Cmd{a.listen(), a.spinner.Tick}
	if !a.ticking {
		a.ticking = true
		cmds = append(cmds, frameTick())
	}
	return a, tea.Batch(cmds...)
}

// listen waits for the next bridge event of the active run.
func (a *App) listen() tea.Cmd {
	if a.run == nil {
		return nil
	}
	events := a.run.sub.Events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return bridgeClosedMsg{}
		}
		return bridgeEventMsg(ev)
	}
}

func frameTick() tea.Cmd {
	return tea.Tick(frameInterval, func(t time.Time) tea.Msg { return frameMsg(t) })
}

func (a *App) handleEvent(ev eventbridge.Event) (tea.Model, tea.Cmd) {
	switch ev.Type {
	case eventbridge.TypeStageStarted:
		a.index = ev.Index
		a.current = ev.Stage
		a.view = nil
		if ev.Stage != nil {
			a.view = newStageView(ev.Stage, a.progress)
			a.logInfo("Stage %d/%d · %s", ev.Index+1, a.stages, ev.Stage.Info().Name)
		}
	case eventbridge.TypeStageResolved:
		a.results = append(a.results, ev.Result)
		a.current = nil
		a.view = nil
		if ev.Result.Skipped {
			a.logWarn("%s skipped · +%d coins (total %d)", ev.Result.StageID, ev.Result.Points(), ev.Total)
		} else {
			a.logInfo("%s resolved · +%d coins (total %d)", ev.Result.StageID, ev.Result.Points(), ev.Total)
		}
		return a, tea.Batch(a.listen(), a.spinner.Tick)
	case eventbridge.TypeSequenceFinished:
		return a.finishRun(ev)
	}
	return a, a.listen()
}

func (a *App) finishRun(ev eventbridge.Event) (tea.Model, tea.Cmd) {
	a.session = ev.Session
	a.runErr = ev.Err
	a.current = nil
	a.view = nil
	if a.run != nil {
		a.run.stop()
		a.run = nil
	}
	a.state = stateSummary
	switch {
	case ev.Err == nil:
		a.logInfo("Journey complete · earned %d coins (total %d)", ev.Session.Earned, ev.Session.Total)
		a.statusMsg = "Your certificate is ready."
	case errors.Is(ev.Err, context.Canceled):
		a.logWarn("Journey abandoned · total %d", ev.Session.Total)
		a.statusMsg = "The portal closed early."
	default:
		a.logError("Journey failed: %v", ev.Err)
		a.statusMsg = "The journey ended with an error."
	}
	return a, nil
}

func (a *App) openCertificate() (tea.Model, tea.Cmd) {
	a.state = stateCertificate
	a.statusMsg = ""
	return a, a.loadCertificate()
}

func (a *App) loadCertificate() tea.Cmd {
	ctx := a.ctx
	cert := a.svc.Certificate
	sessions := a.svc.Sessions
	return func() tea.Msg {
		var msg certificateLoadedMsg
		if cert != nil {
			msg.info = cert.Inspect(ctx)
		} else {
			msg.info = artifact.Info{State: artifact.StateMissing}
		}
		if sessions != nil {
			msg.sessions, msg.err = sessions.ListSessions(ctx, 5)
		}
		return msg
	}
}

func (a *App) returnToMainMenu() (tea.Model, tea.Cmd) {
	a.state = stateMainMenu
	a.statusMsg = ""
	return a, nil
}

// Shutdown cancels an in-flight run and waits for it to unwind.
func (a *App) Shutdown(timeout time.Duration) error {
	r := a.run
	if r == nil {
		return nil
	}
	r.stop()
	select {
	case <-r.done:
		return nil
	case <-time.After(timeout):
		return fmt.Errorf("tui: sequence did not stop within %s", timeout)
	}
}

// View renders the current state to a string.
func (a *App) View() string {
	if a.quitting {
		return ""
	}
	width := a.width
	if width <= 0 {
		width = 100
	}
	var content string
	switch a.state {
	case stateMainMenu:
		content = a.mainMenu.View()
	case stateStage:
		content = a.renderStage(width - 6)
	case stateSummary:
		content = a.renderSummary()
	case stateCertificate:
		content = a.renderCertificate()
	}

	header := lipgloss.JoinHorizontal(lipgloss.Top,
		headerStyle.Render("⬡ PORTAL"),
		"   ",
		coinStyle.Render(fmt.Sprintf("◉ %d coins", a.svc.Ledger.Total())),
	)
	parts := []string{header, boxStyle.Width(max(20, width-4)).Render(content)}
	if logs := a.renderLogPanel(width - 4); logs != "" {
		parts = append(parts, logs)
	}
	footer := a.help.ShortHelpView(a.bindings())
	if a.statusMsg != "" {
		footer = a.statusMsg + "  " + footer
	}
	parts = append(parts, footerStyle.Render(footer))
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (a *App) bindings() []key.Binding {
	switch a.state {
	case stateStage:
		var out []key.Binding
		if a.view != nil {
			out = append(out, a.view.Bindings()...)
		}
		return append(out, keySkip, keyQuit)
	case stateSummary:
		return []key.Binding{keyOpen, keyBack, keyQuit}
	case stateCertificate:
		return []key.Binding{keyBack, keyQuit}
	default:
		return []key.Binding{keyQuit}
	}
}

func (a *App) renderStage(width int) string {
	progressLine := mutedStyle.Render(fmt.Sprintf("Stage %d of %d", min(a.index+1, a.stages), a.stages))
	if a.current == nil || a.view == nil {
		return lipgloss.JoinVertical(lipgloss.Left, progressLine, "",
			a.spinner.View()+" The portal shimmers…")
	}
	info := a.current.Info()
	return lipgloss.JoinVertical(lipgloss.Left,
		progressLine,
		titleStyle.Render(info.Name),
		mutedStyle.Render(info.Description),
		"",
		a.view.View(width),
	)
}

func (a *App) renderSummary() string {
	var lines []string
	if a.runErr != nil && !errors.Is(a.runErr, context.Canceled) {
		lines = append(lines, bannerStyle.Render("⚠ "+a.runErr.Error()), "")
	}
	lines = append(lines, titleStyle.Render("Journey summary"))
	for i, res := range a.session.Results {
		lines = append(lines, fmt.Sprintf("%d. %s", i+1, describeResult(res)))
	}
	lines = append(lines, "",
		coinStyle.Render(fmt.Sprintf("Earned %d coins · %d banked", a.session.Earned, a.session.Total)))
	if a.runErr == nil {
		lines = append(lines, hintStyle.Render("Press enter to view your certificate."))
	}
	return strings.Join(lines, "\n")
}

func describeResult(res stage.Result) string {
	var b strings.Builder
	b.WriteString(res.StageID)
	if res.Unit {
		b.WriteString(" · done")
	} else {
		fmt.Fprintf(&b, " · +%d", res.Points())
	}
	if res.Skipped {
		b.WriteString(mutedStyle.Render(" (skipped)"))
	}
	if res.Detail != "" {
		b.WriteString(mutedStyle.Render(" · " + res.Detail))
	}
	return b.String()
}

func (a *App) renderCertificate() string {
	info := a.certInfo
	var lines []string
	lines = append(lines, titleStyle.Render("Certificate"))
	switch info.State {
	case artifact.StateReady:
		lines = append(lines,
			fmt.Sprintf("Saved to %s", info.Path),
			mutedStyle.Render(fmt.Sprintf("%dx%d · %d bytes · %s", info.Width, info.Height, info.Bytes, info.UpdatedAt.Format("2006-01-02 15:04"))),
		)
	case artifact.StateError:
		lines = append(lines, bannerStyle.Render(fmt.Sprintf("Certificate unreadable: %v", info.Err)))
	case "":
		lines = append(lines, a.spinner.View()+" Loading…")
	default:
		lines = append(lines, mutedStyle.Render("No certificate yet. Complete the journey to earn one."))
	}

	lines = append(lines, "", titleStyle.Render("Recent journeys"))
	if a.certErr != nil {
		lines = append(lines, logErrorStyle.Render(fmt.Sprintf("History unavailable: %v", a.certErr)))
	}
	if len(a.history) == 0 && a.certErr == nil {
		lines = append(lines, mutedStyle.Render("None recorded."))
	}
	for _, rec := range a.history {
		line := fmt.Sprintf("%s · %-9s · %d coins · %d stages",
			rec.StartedAt.Format("Jan 02 15:04"), rec.Status, rec.Total, len(rec.Stages))
		lines = append(lines, line)
	}
	return strings.Join(lines, "\n")
}

func (a *App) renderLogPanel(width int) string {
	if a.svc.Logbook == nil {
		return ""
	}
	entries := a.svc.Logbook.Recent(6)
	if len(entries) == 0 {
		return ""
	}
	fileName := filepath.Base(a.svc.Logbook.Path())
	if fileName == "." || fileName == "" {
		fileName = "log"
	}
	lines := make([]string, 0, len(entries))
	for _, e := range entries {
		style := logInfoStyle
		switch e.Level {
		case logbook.LevelWarn:
			style = logWarnStyle
		case logbook.LevelError:
			style = logErrorStyle
		}
		stamp := ""
		if !e.Time.IsZero() {
			stamp = e.Time.Format("15:04:05") + " "
		}
		lines = append(lines, style.Render(stamp+e.Message))
	}
	head := titleStyle.Render(fmt.Sprintf("LOG · %s", fileName))
	return boxStyle.Width(max(20, width)).Render(head + "\n" + strings.Join(lines, "\n"))
}
