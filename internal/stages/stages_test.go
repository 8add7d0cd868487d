package stages

import (
	"testing"
	"time"

	"github.com/kingrea/portal/internal/config"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/stages/match"
	"github.com/kingrea/portal/internal/stages/missions"
	"github.com/kingrea/portal/internal/stages/taprush"
)

func testConfig(mutate func(*config.ProjectConfig)) *config.Config {
	project := config.ProjectConfig{
		Version: 1,
		Flow:    config.FlowConfig{Stages: config.DefaultStages},
		TapRush: config.TapRushConfig{Duration: 3 * time.Second, Tick: 10 * time.Millisecond, Targets: 4},
		Match:   config.MatchConfig{FinishDelay: 0, TieBreak: config.TieBreakRandom},
	}
	if mutate != nil {
		mutate(&project)
	}
	return &config.Config{Project: project}
}

func TestRegisterBuiltinsBuildsDefaultFlow(t *testing.T) {
	reg := stage.NewRegistry()
	if err := RegisterBuiltins(reg, testConfig(nil), nil); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	built, err := reg.Build(config.DefaultStages)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if len(built) != 3 {
		t.Fatalf("expected 3 stages, got %d", len(built))
	}
	if _, ok := built[0].(*taprush.Stage); !ok {
		t.Fatalf("first stage is %T", built[0])
	}
	if _, ok := built[1].(*missions.Stage); !ok {
		t.Fatalf("second stage is %T", built[1])
	}
	if _, ok := built[2].(*match.Stage); !ok {
		t.Fatalf("third stage is %T", built[2])
	}
	snap := built[0].(*taprush.Stage).Snapshot()
	if snap.Duration != 3*time.Second {
		t.Fatalf("taprush duration not applied: %s", snap.Duration)
	}
	if got := built[1].(*missions.Stage).Snapshot().Total; got != len(missions.Defaults()) {
		t.Fatalf("expected default missions, got %d", got)
	}
}

func TestBuildReturnsFreshStages(t *testing.T) {
	reg := stage.NewRegistry()
	if err := RegisterBuiltins(reg, testConfig(nil), nil); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	first, _ := reg.Resolve(match.ID)
	second, _ := reg.Resolve(match.ID)
	if first == second {
		t.Fatalf("registry must build a new stage per resolve")
	}
}

func TestConfiguredMissionsReplaceDefaults(t *testing.T) {
	cfg := testConfig(func(p *config.ProjectConfig) {
		p.Missions = []config.MissionConfig{{
			ID:      "oath",
			Title:   "The Oath",
			Choices: []config.ChoiceConfig{{Label: "Swear", Reward: 4}},
		}}
	})
	reg := stage.NewRegistry()
	if err := RegisterBuiltins(reg, cfg, nil); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	st, err := reg.Resolve(missions.ID)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	snap := st.(*missions.Stage).Snapshot()
	if snap.Total != 1 || snap.Current == nil || snap.Current.Title != "The Oath" {
		t.Fatalf("configured missions not used: %+v", snap)
	}
}

func TestInvalidMissionRejected(t *testing.T) {
	cfg := testConfig(func(p *config.ProjectConfig) {
		p.Missions = []config.MissionConfig{{Title: "Empty"}}
	})
	if err := RegisterBuiltins(stage.NewRegistry(), cfg, nil); err == nil {
		t.Fatalf("expected mission validation error")
	}
}

func TestUnknownStageFailsBuild(t *testing.T) {
	reg := stage.NewRegistry()
	if err := RegisterBuiltins(reg, testConfig(nil), nil); err != nil {
		t.Fatalf("RegisterBuiltins: %v", err)
	}
	if _, err := reg.Build([]string{"coin-rush", "dragon-fight"}); err == nil {
		t.Fatalf("expected unknown stage error")
	}
}
