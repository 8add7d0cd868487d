// Package taprush implements the timed tap challenge: targets fall through a
// field for a fixed duration and every target hit is worth one coin.
package taprush

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kingrea/portal/internal/stage"
)

// ID is the registry identifier of the tap challenge.
const ID = "coin-rush"

// Phase tracks the round lifecycle.
type Phase int

const (
	Ready Phase = iota
	Running
	Over
)

func (p Phase) String() string {
	switch p {
	case Running:
		return "running"
	case Over:
		return "over"
	default:
		return "ready"
	}
}

// Settings configures a round.
type Settings struct {
	Duration time.Duration
	Tick     time.Duration
	Targets  int
	Width    float64
	Height   float64
}

// DefaultSettings mirrors the classic 12 second coin rush.
func DefaultSettings() Settings {
	return Settings{
		Duration: 12 * time.Second,
		Tick:     50 * time.Millisecond,
		Targets:  18,
		Width:    60,
		Height:   16,
	}
}

func (s Settings) withDefaults() Settings {
	def := DefaultSettings()
	if s.Duration <= 0 {
		s.Duration = def.Duration
	}
	if s.Tick <= 0 {
		s.Tick = def.Tick
	}
	if s.Targets <= 0 {
		s.Targets = def.Targets
	}
	if s.Width <= 0 {
		s.Width = def.Width
	}
	if s.Height <= 0 {
		s.Height = def.Height
	}
	return s
}

// Target is one falling coin. Speed is in field rows per second.
type Target struct {
	ID     int
	X, Y   float64
	Speed  float64
	Radius float64
	Hit    bool
}

// Visible reports whether the target is inside a field of the given height.
func (t Target) Visible(height float64) bool {
	return t.Y >= 0 && t.Y < height
}

// Snapshot is the render state of the challenge.
type Snapshot struct {
	Phase     Phase
	Score     int
	Remaining time.Duration
	Duration  time.Duration
	Width     float64
	Height    float64
	Targets   []Target
	Resolved  bool
}

// Option customizes the stage.
type Option func(*Stage)

// WithSettings overrides round settings.
func WithSettings(s Settings) Option {
	return func(st *Stage) {
		st.settings = s.withDefaults()
	}
}

// WithRand injects the randomness source used for spawning.
func WithRand(r *rand.Rand) Option {
	return func(st *Stage) {
		if r != nil {
			st.rnd = r
		}
	}
}

// WithLogger attaches a structured logger.
func WithLogger(l *slog.Logger) Option {
	return func(st *Stage) {
		if l != nil {
			st.logger = l
		}
	}
}

// Stage is the tap challenge. Motion advances on a ticker; hits arrive as
// discrete events. Both stop mutating state once the stage resolves.
type Stage struct {
	*stage.Base

	mu       sync.Mutex
	settings Settings
	rnd      *rand.Rand
	logger   *slog.Logger
	now      func() time.Time
	runCtx   context.Context
	phase    Phase
	score    int
	targets  []Target
	nextID   int
	deadline time.Time
}

// New builds a tap challenge stage.
func New(opts ...Option) *Stage {
	s := &Stage{
		Base: stage.NewBase(stage.Info{
			ID:          ID,
			Name:        "Coin Rush",
			Description: "Tap the mystic coins before time runs out.",
		}),
		settings: DefaultSettings(),
		rnd:      rand.New(rand.NewPCG(uint64(time.Now().UnixNano()), 0x636f696e)),
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start implements stage.Stage. The round itself begins with BeginRound.
func (s *Stage) Start(ctx context.Context) error {
	runCtx, err := s.Begin(ctx)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.runCtx = runCtx
	s.phase = Ready
	s.mu.Unlock()
	return nil
}

// BeginRound spawns targets and starts the clock. It returns false unless
// the stage is started, unresolved and still waiting to begin.
func (s *Stage) BeginRound() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.runCtx == nil || s.Resolved() || s.phase != Ready {
		return false
	}
	s.phase = Running
	s.score = 0
	s.spawn()
	s.deadline = s.now().Add(s.settings.Duration)

	g, gctx := errgroup.WithContext(s.runCtx)
	g.Go(func() error { return s.tickLoop(gctx) })
	g.Go(func() error { return s.countdown(gctx) })
	go func() {
		if err := g.Wait(); err != nil {
			s.logger.Warn("coin rush loop stopped", "error", err)
		}
	}()
	s.logger.Info("coin rush started", "duration", s.settings.Duration, "targets", len(s.targets))
	return true
}

func (s *Stage) tickLoop(ctx context.Context) error {
	ticker := time.NewTicker(s.settings.Tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.tick()
		}
	}
}

func (s *Stage) countdown(ctx context.Context) error {
	timer := time.NewTimer(s.settings.Duration)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return nil
	case <-timer.C:
		s.expire()
		return nil
	}
}

// tick advances every target by one step of the configured cadence.
func (s *Stage) tick() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() || s.phase != Running {
		return
	}
	step := s.settings.Tick.Seconds()
	for i := range s.targets {
		t := &s.targets[i]
		t.Y += t.Speed * step
		if t.Y > s.settings.Height+t.Radius {
			*t = s.newTarget(-t.Radius)
		}
	}
}

// Hit marks the target with the given ID as hit. Each target scores once.
func (s *Stage) Hit(id int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() || s.phase != Running {
		return false
	}
	for i := range s.targets {
		t := &s.targets[i]
		if t.ID == id && !t.Hit {
			t.Hit = true
			s.score++
			return true
		}
	}
	return false
}

// HitAt hits the first unhit target whose disc contains (x, y).
func (s *Stage) HitAt(x, y float64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() || s.phase != Running {
		return false
	}
	for i := range s.targets {
		t := &s.targets[i]
		dx, dy := x-t.X, y-t.Y
		if !t.Hit && dx*dx+dy*dy <= t.Radius*t.Radius {
			t.Hit = true
			s.score++
			return true
		}
	}
	return false
}

// Skip implements stage.Stage: the challenge resolves with no reward.
func (s *Stage) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() {
		return
	}
	s.phase = Over
	s.Finish(stage.Result{Reward: 0, Skipped: true, Detail: "skipped"})
}

func (s *Stage) expire() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() {
		return
	}
	s.phase = Over
	s.logger.Info("coin rush finished", "score", s.score)
	s.Finish(stage.Result{Reward: s.score, Detail: fmt.Sprintf("%d coins tapped", s.score)})
}

// Snapshot returns the current render state.
func (s *Stage) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		Phase:    s.phase,
		Score:    s.score,
		Duration: s.settings.Duration,
		Width:    s.settings.Width,
		Height:   s.settings.Height,
		Targets:  append([]Target(nil), s.targets...),
		Resolved: s.Resolved(),
	}
	switch s.phase {
	case Running:
		if rem := s.deadline.Sub(s.now()); rem > 0 {
			snap.Remaining = rem
		}
	case Ready:
		snap.Remaining = s.settings.Duration
	}
	return snap
}

// spawn must be called with s.mu held.
func (s *Stage) spawn() {
	s.targets = make([]Target, 0, s.settings.Targets)
	for i := 0; i < s.settings.Targets; i++ {
		s.targets = append(s.targets, s.newTarget(-s.rnd.Float64()*s.settings.Height))
	}
}

func (s *Stage) newTarget(y float64) Target {
	s.nextID++
	return Target{
		ID:     s.nextID,
		X:      s.rnd.Float64() * s.settings.Width,
		Y:      y,
		Speed:  1.5 + s.rnd.Float64()*2.5,
		Radius: 0.6 + s.rnd.Float64()*0.4,
	}
}
