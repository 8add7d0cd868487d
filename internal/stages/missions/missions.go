// Package missions implements the branching-choice stage: a fixed list of
// missions, each offering a few options worth some coins.
package missions

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/kingrea/portal/internal/stage"
)

// ID is the registry identifier of the missions stage.
const ID = "missions"

// Choice is one selectable option of a mission.
type Choice struct {
	Label  string
	Reward int
}

// Mission is a single choice-point.
type Mission struct {
	ID      string
	Title   string
	Body    string
	Choices []Choice
}

// Validate checks that a mission can be presented.
func (m Mission) Validate() error {
	if m.Title == "" {
		return fmt.Errorf("missions: title is required")
	}
	if len(m.Choices) == 0 {
		return fmt.Errorf("missions: %s needs at least one choice", m.Title)
	}
	for i, c := range m.Choices {
		if c.Reward < 0 {
			return fmt.Errorf("missions: %s choice %d has negative reward", m.Title, i)
		}
	}
	return nil
}

// Defaults returns the built-in mission list.
func Defaults() []Mission {
	return []Mission{
		{
			ID:    "gym-pact",
			Title: "Gym Pact",
			Body:  "You promise to spot each other.",
			Choices: []Choice{
				{Label: "I promise", Reward: 3},
				{Label: "Maybe", Reward: 0},
			},
		},
		{
			ID:    "bracelet-honor",
			Title: "Bracelet Honor",
			Body:  "The black bead is a family heirloom. Will you keep it safe?",
			Choices: []Choice{
				{Label: "Yes, always", Reward: 5},
				{Label: "Respectfully", Reward: 3},
			},
		},
		{
			ID:    "anime-night",
			Title: "Anime Night",
			Body:  "Pick a series for watch night.",
			Choices: []Choice{
				{Label: "Action", Reward: 2},
				{Label: "Slice of life", Reward: 1},
			},
		},
	}
}

// Pick records one selection for the history shown after the stage.
type Pick struct {
	Mission string
	Choice  string
	Reward  int
}

// Snapshot is the render state of the stage.
type Snapshot struct {
	Index    int
	Total    int
	Current  *Mission
	Accrued  int
	Picks    []Pick
	Resolved bool
}

// Stage walks the missions in order and accrues the chosen rewards.
type Stage struct {
	*stage.Base

	mu       sync.Mutex
	logger   *slog.Logger
	missions []Mission
	index    int
	accrued  int
	picks    []Pick
}

// Option customizes the stage.
type Option func(*Stage)

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Stage) {
		if l != nil {
			s.logger = l
		}
	}
}

// New builds a missions stage. An empty list falls back to Defaults.
func New(list []Mission, opts ...Option) (*Stage, error) {
	if len(list) == 0 {
		list = Defaults()
	}
	for _, m := range list {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	s := &Stage{
		Base: stage.NewBase(stage.Info{
			ID:          ID,
			Name:        "Missions",
			Description: "Small promises, small rewards.",
		}),
		logger:   slog.Default(),
		missions: append([]Mission(nil), list...),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s, nil
}

// Start implements stage.Stage.
func (s *Stage) Start(ctx context.Context) error {
	_, err := s.Begin(ctx)
	return err
}

// Choose selects option i of the current mission, accrues its reward and
// advances. Out-of-range options and choices after resolution are ignored.
func (s *Stage) Choose(i int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Started() || s.Resolved() || s.index >= len(s.missions) {
		return false
	}
	m := s.missions[s.index]
	if i < 0 || i >= len(m.Choices) {
		return false
	}
	choice := m.Choices[i]
	s.accrued += choice.Reward
	s.picks = append(s.picks, Pick{Mission: m.Title, Choice: choice.Label, Reward: choice.Reward})
	s.index++
	s.logger.Info("mission chosen", "mission", m.Title, "choice", choice.Label, "reward", choice.Reward)
	if s.index >= len(s.missions) {
		s.Finish(stage.Result{Reward: s.accrued, Detail: fmt.Sprintf("%d of %d missions", len(s.picks), len(s.missions))})
	}
	return true
}

// Skip implements stage.Stage: resolves with whatever has been accrued.
func (s *Stage) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() {
		return
	}
	s.Finish(stage.Result{
		Reward:  s.accrued,
		Skipped: true,
		Detail:  fmt.Sprintf("%d of %d missions", len(s.picks), len(s.missions)),
	})
}

// Snapshot returns the current render state.
func (s *Stage) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Index:    s.index,
		Total:    len(s.missions),
		Accrued:  s.accrued,
		Picks:    append([]Pick(nil), s.picks...),
		Resolved: s.Resolved(),
	}
	if s.index < len(s.missions) && !snap.Resolved {
		m := s.missions[s.index]
		snap.Current = &m
	}
	return snap
}
