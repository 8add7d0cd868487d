package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/portal/internal/game"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/stages/match"
	"github.com/kingrea/portal/internal/stages/missions"
	"github.com/kingrea/portal/internal/stages/taprush"
)

// stageView renders one stage and turns key presses into stage input.
type stageView interface {
	Update(msg tea.KeyMsg) tea.Cmd
	View(width int) string
	Bindings() []key.Binding
}

func newStageView(st stage.Stage, bar progress.Model) stageView {
	switch s := st.(type) {
	case *taprush.Stage:
		return &tapView{stage: s, bar: bar}
	case *missions.Stage:
		return &missionsView{stage: s}
	case *match.Stage:
		return &matchView{stage: s, cursor: 4}
	default:
		return &plainView{stage: st}
	}
}

// --- coin rush ---

const coinLabels = "abcdefghijklmnopqrstuvwxyz"

var (
	tapBegin = key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "start"))
	tapCoin  = key.NewBinding(key.WithKeys(strings.Split(coinLabels, "")...), key.WithHelp("a-z", "tap coin"))
)

type tapView struct {
	stage *taprush.Stage
	bar   progress.Model
}

// coinLabel is the key that taps the target with id.
func coinLabel(id int) rune {
	return rune(coinLabels[id%len(coinLabels)])
}

// targetForLabel finds a visible, unhit target carrying label.
func targetForLabel(snap taprush.Snapshot, label rune) (int, bool) {
	for _, t := range snap.Targets {
		if !t.Hit && t.Visible(snap.Height) && coinLabel(t.ID) == label {
			return t.ID, true
		}
	}
	return 0, false
}

func (v *tapView) Update(msg tea.KeyMsg) tea.Cmd {
	if key.Matches(msg, tapBegin) {
		v.stage.BeginRound()
		return nil
	}
	if key.Matches(msg, tapCoin) {
		if id, ok := targetForLabel(v.stage.Snapshot(), []rune(msg.String())[0]); ok {
			v.stage.Hit(id)
		}
	}
	return nil
}

func (v *tapView) View(width int) string {
	snap := v.stage.Snapshot()
	status := fmt.Sprintf("%s  ·  %.1fs left", coinStyle.Render(fmt.Sprintf("Coins: %d", snap.Score)), snap.Remaining.Seconds())
	if snap.Phase == taprush.Ready {
		return lipgloss.JoinVertical(lipgloss.Left,
			"Mystic coins are about to fall through the portal.",
			"Type a coin's letter to tap it before it drops away.",
			hintStyle.Render(fmt.Sprintf("Press enter to start · %s on the clock", snap.Duration)),
		)
	}
	ratio := 0.0
	if snap.Duration > 0 {
		ratio = float64(snap.Remaining) / float64(snap.Duration)
	}
	v.bar.Width = max(10, min(width, int(snap.Width)+2))
	return lipgloss.JoinVertical(lipgloss.Left, status, v.bar.ViewAs(ratio), renderField(snap))
}

func (v *tapView) Bindings() []key.Binding { return []key.Binding{tapBegin, tapCoin} }

func renderField(snap taprush.Snapshot) string {
	cols, rows := int(snap.Width), int(snap.Height)
	if cols <= 0 || rows <= 0 {
		return ""
	}
	grid := make([][]string, rows)
	for y := range grid {
		grid[y] = make([]string, cols)
		for x := range grid[y] {
			grid[y][x] = " "
		}
	}
	for _, t := range snap.Targets {
		if !t.Visible(snap.Height) {
			continue
		}
		x := min(max(int(t.X), 0), cols-1)
		y := min(int(t.Y), rows-1)
		if t.Hit {
			grid[y][x] = mutedStyle.Render("·")
			continue
		}
		grid[y][x] = coinStyle.Render(string(coinLabel(t.ID)))
	}
	lines := make([]string, rows)
	for y, row := range grid {
		lines[y] = strings.Join(row, "")
	}
	return fieldStyle.Render(strings.Join(lines, "\n"))
}

// --- missions ---

var (
	choiceUp     = key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up"))
	choiceDown   = key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down"))
	choiceSelect = key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "choose"))
	choiceNumber = key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "pick"))
)

type missionsView struct {
	stage  *missions.Stage
	cursor int
}

func (v *missionsView) Update(msg tea.KeyMsg) tea.Cmd {
	snap := v.stage.Snapshot()
	if snap.Current == nil {
		return nil
	}
	n := len(snap.Current.Choices)
	switch {
	case key.Matches(msg, choiceUp):
		if v.cursor > 0 {
			v.cursor--
		}
	case key.Matches(msg, choiceDown):
		if v.cursor < n-1 {
			v.cursor++
		}
	case key.Matches(msg, choiceSelect):
		if v.stage.Choose(v.cursor) {
			v.cursor = 0
		}
	case key.Matches(msg, choiceNumber):
		if v.stage.Choose(int(msg.String()[0]-'1')) {
			v.cursor = 0
		}
	}
	return nil
}

func (v *missionsView) View(width int) string {
	snap := v.stage.Snapshot()
	accrued := coinStyle.Render(fmt.Sprintf("Accrued: %d", snap.Accrued))
	if snap.Current == nil {
		return accrued
	}
	m := snap.Current
	lines := []string{
		titleStyle.Render(fmt.Sprintf("Mission %d/%d · %s", snap.Index+1, snap.Total, m.Title)),
		lipgloss.NewStyle().Width(max(20, width)).Render(m.Body),
		"",
	}
	for i, c := range m.Choices {
		line := fmt.Sprintf("%d. %s (+%d)", i+1, c.Label, c.Reward)
		if i == v.cursor {
			line = cursorStyle.Render("> " + line)
		} else {
			line = "  " + line
		}
		lines = append(lines, line)
	}
	lines = append(lines, "", accrued)
	return strings.Join(lines, "\n")
}

func (v *missionsView) Bindings() []key.Binding {
	return []key.Binding{choiceUp, choiceDown, choiceSelect, choiceNumber}
}

// --- portal match ---

var (
	cellUp    = key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑↓←→", "move"))
	cellDown  = key.NewBinding(key.WithKeys("down", "j"))
	cellLeft  = key.NewBinding(key.WithKeys("left", "h"))
	cellRight = key.NewBinding(key.WithKeys("right", "l"))
	cellPlay  = key.NewBinding(key.WithKeys("enter", " "), key.WithHelp("enter", "place"))
	cellPick  = key.NewBinding(key.WithKeys("1", "2", "3", "4", "5", "6", "7", "8", "9"), key.WithHelp("1-9", "cell"))
	boardNew  = key.NewBinding(key.WithKeys("r"), key.WithHelp("r", "reset"))
	boardDone = key.NewBinding(key.WithKeys("d"), key.WithHelp("d", "done"))
)

type matchView struct {
	stage  *match.Stage
	cursor int
}

func (v *matchView) Update(msg tea.KeyMsg) tea.Cmd {
	switch {
	case key.Matches(msg, cellUp):
		if v.cursor >= 3 {
			v.cursor -= 3
		}
	case key.Matches(msg, cellDown):
		if v.cursor < 6 {
			v.cursor += 3
		}
	case key.Matches(msg, cellLeft):
		if v.cursor%3 > 0 {
			v.cursor--
		}
	case key.Matches(msg, cellRight):
		if v.cursor%3 < 2 {
			v.cursor++
		}
	case key.Matches(msg, cellPlay):
		v.stage.Play(v.cursor)
	case key.Matches(msg, cellPick):
		v.cursor = int(msg.String()[0] - '1')
		v.stage.Play(v.cursor)
	case key.Matches(msg, boardNew):
		v.stage.Reset()
	case key.Matches(msg, boardDone):
		v.stage.Complete()
	}
	return nil
}

func (v *matchView) View(int) string {
	snap := v.stage.Snapshot()
	var rows []string
	for r := 0; r < 3; r++ {
		cells := make([]string, 3)
		for c := 0; c < 3; c++ {
			idx := r*3 + c
			cells[c] = renderCell(snap.Position[idx], idx == v.cursor && snap.State == match.WaitingForInput)
		}
		rows = append(rows, strings.Join(cells, "│"))
		if r < 2 {
			rows = append(rows, "───┼───┼───")
		}
	}
	return lipgloss.JoinVertical(lipgloss.Left,
		"You are "+playerStyle.Render("X")+". The portal keeper plays "+keeperStyle.Render("O")+".",
		"",
		strings.Join(rows, "\n"),
		"",
		matchStatus(snap),
	)
}

func (v *matchView) Bindings() []key.Binding {
	return []key.Binding{cellUp, cellPlay, cellPick, boardNew, boardDone}
}

func renderCell(c game.Cell, selected bool) string {
	text := " " + c.Mark() + " "
	switch c {
	case game.SideA:
		text = playerStyle.Render(text)
	case game.SideB:
		text = keeperStyle.Render(text)
	default:
		text = mutedStyle.Render(text)
	}
	if selected {
		return cursorStyle.Render(text)
	}
	return text
}

func matchStatus(snap match.Snapshot) string {
	switch snap.State {
	case match.Evaluating:
		return "The portal keeper is thinking…"
	case match.Terminal:
		var verdict string
		switch snap.Outcome {
		case game.SideAWins:
			verdict = "You beat the portal keeper!"
		case game.SideBWins:
			verdict = "The portal keeper wins this one."
		default:
			verdict = "A draw. The keeper nods with respect."
		}
		return verdict + mutedStyle.Render("  (r to play again, d to continue)")
	default:
		if snap.LastReply != game.NoMove {
			return fmt.Sprintf("The keeper answered on cell %d. Your move.", int(snap.LastReply)+1)
		}
		return "Your move."
	}
}

// --- fallback ---

type plainView struct {
	stage stage.Stage
}

func (v *plainView) Update(tea.KeyMsg) tea.Cmd { return nil }

func (v *plainView) View(int) string {
	info := v.stage.Info()
	return fmt.Sprintf("%s\n%s", info.Name, mutedStyle.Render(info.Description))
}

func (v *plainView) Bindings() []key.Binding { return nil }
