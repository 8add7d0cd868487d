package tui

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/charmbracelet/bubbles/progress"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/portal/internal/artifact"
	"github.com/kingrea/portal/internal/config"
	"github.com/kingrea/portal/internal/game"
	"github.com/kingrea/portal/internal/ledger"
	"github.com/kingrea/portal/internal/logbook"
	"github.com/kingrea/portal/internal/orchestrator"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/stages/match"
	"github.com/kingrea/portal/internal/stages/taprush"
	"github.com/kingrea/portal/internal/storage"
)

func TestRunCreditsLedgerAndShowsCertificate(t *testing.T) {
	app, store := newTestApp(t, map[string]func() *stubStage{
		"alpha": func() *stubStage { return &stubStage{Base: stubBase("alpha"), reward: 3} },
		"beta":  func() *stubStage { return &stubStage{Base: stubBase("beta"), reward: 4} },
	}, "alpha", "beta")

	_, cmd := app.Update(keyPress(tea.KeyEnter))
	require.NotNil(t, cmd)
	require.Equal(t, stateStage, app.state)

	pumpUntil(t, app, func() bool { return app.state == stateSummary })
	require.NoError(t, app.runErr)
	require.Len(t, app.session.Results, 2)
	require.Equal(t, 7, app.session.Earned)
	require.EqualValues(t, 7, app.svc.Ledger.Total())
	require.Contains(t, app.View(), "Earned 7 coins")

	model, cmd := app.Update(keyPress(tea.KeyEnter))
	app = runCommands(t, model, cmd)
	require.Equal(t, stateCertificate, app.state)
	require.Equal(t, artifact.StateReady, app.certInfo.State)
	require.Len(t, app.history, 1)
	require.Equal(t, orchestrator.StatusComplete, app.history[0].Status)
	require.Contains(t, app.View(), "Recent journeys")

	_, err := store.Get(context.Background(), storage.KeyCertificate)
	require.NoError(t, err)

	app.Update(keyPress(tea.KeyEsc))
	require.Equal(t, stateMainMenu, app.state)
	require.NoError(t, app.Shutdown(time.Second))
}

func TestFailingStageShowsBanner(t *testing.T) {
	app, _ := newTestApp(t, map[string]func() *stubStage{
		"alpha":  func() *stubStage { return &stubStage{Base: stubBase("alpha"), reward: 2} },
		"broken": func() *stubStage { return &stubStage{Base: stubBase("broken"), failWith: errors.New("portal collapsed")} },
	}, "alpha", "broken")

	app.Update(keyPress(tea.KeyEnter))
	pumpUntil(t, app, func() bool { return app.state == stateSummary })

	var seqErr *orchestrator.SequenceError
	require.ErrorAs(t, app.runErr, &seqErr)
	require.Equal(t, 1, seqErr.Index)
	require.EqualValues(t, 2, app.svc.Ledger.Total())
	view := app.View()
	require.Contains(t, view, "portal collapsed")
	require.NotContains(t, view, "view your certificate")

	model, cmd := app.Update(keyPress(tea.KeyEnter))
	app = runCommands(t, model, cmd)
	require.Equal(t, artifact.StateMissing, app.certInfo.State)
	require.Len(t, app.history, 1)
	require.Equal(t, orchestrator.StatusFailed, app.history[0].Status)
}

func TestEscSkipsCurrentStage(t *testing.T) {
	app, _ := newTestApp(t, map[string]func() *stubStage{
		"waiting": func() *stubStage { return &stubStage{Base: stubBase("waiting"), block: true} },
	}, "waiting")

	app.Update(keyPress(tea.KeyEnter))
	pumpUntil(t, app, func() bool { return app.current != nil })
	require.Contains(t, app.View(), "waiting")

	app.Update(keyPress(tea.KeyEsc))
	pumpUntil(t, app, func() bool { return app.state == stateSummary })
	require.NoError(t, app.runErr)
	require.Len(t, app.session.Results, 1)
	require.True(t, app.session.Results[0].Skipped)
	require.EqualValues(t, 1, app.svc.Ledger.Total())
}

func TestQuitCancelsRunningSequence(t *testing.T) {
	app, _ := newTestApp(t, map[string]func() *stubStage{
		"waiting": func() *stubStage { return &stubStage{Base: stubBase("waiting"), block: true} },
	}, "waiting", "waiting")

	app.Update(keyPress(tea.KeyEnter))
	pumpUntil(t, app, func() bool { return app.current != nil })

	_, cmd := app.Update(keyPress(tea.KeyCtrlC))
	require.NotNil(t, cmd)
	require.IsType(t, tea.QuitMsg{}, cmd())
	require.NoError(t, app.Shutdown(2*time.Second))
	require.Empty(t, app.View())
	require.EqualValues(t, 1, app.svc.Ledger.Total())
}

func TestUnknownStageStaysOnMenu(t *testing.T) {
	app, _ := newTestApp(t, nil, "dragon-fight")
	_, cmd := app.Update(keyPress(tea.KeyEnter))
	require.Nil(t, cmd)
	require.Equal(t, stateMainMenu, app.state)
	require.Contains(t, app.statusMsg, "dragon-fight")
}

func TestTargetForLabel(t *testing.T) {
	snap := taprush.Snapshot{
		Height: 10,
		Targets: []taprush.Target{
			{ID: 0, Y: 2},
			{ID: 1, Y: 3, Hit: true},
			{ID: 2, Y: -1},
			{ID: 27, Y: 4},
		},
	}
	id, ok := targetForLabel(snap, 'a')
	require.True(t, ok)
	require.Equal(t, 0, id)

	_, ok = targetForLabel(snap, 'b')
	require.False(t, ok, "hit targets cannot be tapped again")
	_, ok = targetForLabel(snap, 'c')
	require.False(t, ok, "targets above the field are not tappable")

	id, ok = targetForLabel(snap, coinLabel(27))
	require.True(t, ok)
	require.Equal(t, 27, id)
}

func TestMatchViewPlaysSelectedCell(t *testing.T) {
	st := match.New(match.WithFinishDelay(0))
	require.NoError(t, st.Start(context.Background()))
	view := newStageView(st, progress.New())

	view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'5'}})
	snap := st.Snapshot()
	require.Equal(t, game.SideA, snap.Position[4])
	require.Equal(t, 1, snap.Position.Count(game.SideB))
	require.NotEqual(t, game.NoMove, snap.LastReply)
	require.Contains(t, view.View(40), "keeper answered")

	view.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'r'}})
	require.Equal(t, game.Position{}, st.Snapshot().Position)
}

// --- helpers ---

func newTestApp(t *testing.T, stages map[string]func() *stubStage, flow ...string) (*App, *storage.MemoryStore) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStore()
	led, err := ledger.Open(ctx, store)
	require.NoError(t, err)

	reg := stage.NewRegistry()
	for id, build := range stages {
		build := build
		require.NoError(t, reg.Register(id, func() (stage.Stage, error) { return build(), nil }))
	}
	cert, err := artifact.NewCertificate(store, "Tester", artifact.WithExportDir(t.TempDir()))
	require.NoError(t, err)
	lb, err := logbook.New(t.TempDir() + "/journey.log")
	require.NoError(t, err)

	cfg := &config.Config{Project: config.ProjectConfig{Flow: config.FlowConfig{Stages: flow}}}
	app, err := NewApp(Services{
		Config:      cfg,
		Registry:    reg,
		Ledger:      led,
		Certificate: cert,
		Sessions:    store,
		Logbook:     lb,
	}, WithContext(ctx))
	require.NoError(t, err)
	app.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	return app, store
}

// pumpUntil feeds bridge events into the app until cond holds.
func pumpUntil(t *testing.T, app *App, cond func() bool) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for !cond() {
		cmd := app.listen()
		require.NotNil(t, cmd, "no active run while waiting")
		msgs := make(chan tea.Msg, 1)
		go func() { msgs <- cmd() }()
		select {
		case msg := <-msgs:
			app.Update(msg)
		case <-deadline:
			t.Fatalf("timed out waiting for app state (state=%d)", app.state)
		}
	}
}

func runCommands(t *testing.T, model tea.Model, cmd tea.Cmd) *App {
	t.Helper()
	app, ok := model.(*App)
	if !ok {
		t.Fatalf("unexpected model type: %T", model)
	}
	for cmd != nil {
		msg := cmd()
		if msg == nil {
			break
		}
		nextModel, nextCmd := app.Update(msg)
		var ok bool
		app, ok = nextModel.(*App)
		if !ok {
			t.Fatalf("unexpected model type: %T", nextModel)
		}
		cmd = nextCmd
	}
	return app
}

func keyPress(t tea.KeyType) tea.KeyMsg {
	return tea.KeyMsg{Type: t}
}

func stubBase(id string) *stage.Base {
	return stage.NewBase(stage.Info{ID: id, Name: id, Description: "stub " + id})
}

// stubStage resolves on Start unless it blocks, in which case only Skip
// resolves it.
type stubStage struct {
	*stage.Base
	reward   int
	failWith error
	block    bool
}

func (s *stubStage) Start(ctx context.Context) error {
	if _, err := s.Begin(ctx); err != nil {
		return err
	}
	switch {
	case s.failWith != nil:
		s.Abort(s.failWith)
	case !s.block:
		s.Finish(stage.Result{Reward: s.reward, Detail: "stub"})
	}
	return nil
}

func (s *stubStage) Skip() {
	s.Finish(stage.Result{Reward: 1, Skipped: true})
}
