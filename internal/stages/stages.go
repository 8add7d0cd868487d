// Package stages wires the built-in stages into a registry from the project
// configuration.
package stages

import (
	"log/slog"
	"math/rand/v2"

	"github.com/kingrea/portal/internal/config"
	"github.com/kingrea/portal/internal/game"
	"github.com/kingrea/portal/internal/stage"
	"github.com/kingrea/portal/internal/stages/match"
	"github.com/kingrea/portal/internal/stages/missions"
	"github.com/kingrea/portal/internal/stages/taprush"
)

// RegisterBuiltins installs the coin rush, missions and portal match
// factories configured by cfg.
func RegisterBuiltins(reg *stage.Registry, cfg *config.Config, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}
	project := cfg.Project

	tap := taprush.Settings{
		Duration: project.TapRush.Duration,
		Tick:     project.TapRush.Tick,
		Targets:  project.TapRush.Targets,
		Width:    float64(project.TapRush.FieldWidth),
		Height:   float64(project.TapRush.FieldHeight),
	}
	if err := taprush.Register(reg, taprush.WithSettings(tap), taprush.WithLogger(logger)); err != nil {
		return err
	}

	if err := missions.Register(reg, MissionsFromConfig(project.Missions), missions.WithLogger(logger)); err != nil {
		return err
	}

	var newSolver func() match.Solver
	if cfg.RandomTieBreak() {
		newSolver = func() match.Solver {
			return game.NewEngine(game.WithRand(rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))))
		}
	}
	return match.Register(reg, newSolver,
		match.WithFinishDelay(project.Match.FinishDelay),
		match.WithLogger(logger),
	)
}

// MissionsFromConfig converts configured missions; an empty list yields nil
// so the built-in missions are used.
func MissionsFromConfig(list []config.MissionConfig) []missions.Mission {
	if len(list) == 0 {
		return nil
	}
	out := make([]missions.Mission, 0, len(list))
	for _, m := range list {
		mission := missions.Mission{ID: m.ID, Title: m.Title, Body: m.Body}
		for _, c := range m.Choices {
			mission.Choices = append(mission.Choices, missions.Choice{Label: c.Label, Reward: c.Reward})
		}
		out = append(out, mission)
	}
	return out
}
