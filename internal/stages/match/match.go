// Package match implements the two-player board stage: the player (SideA)
// plays against the exact solver (SideB) until the board is decided.
package match

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/kingrea/portal/internal/game"
	"github.com/kingrea/portal/internal/stage"
)

// ID is the registry identifier of the match stage.
const ID = "portal-match"

// DefaultFinishDelay is how long a decided board stays up before the stage
// resolves on its own.
const DefaultFinishDelay = 1500 * time.Millisecond

// State is the match state machine position.
type State int

const (
	WaitingForInput State = iota
	Evaluating
	Terminal
)

func (s State) String() string {
	switch s {
	case Evaluating:
		return "evaluating"
	case Terminal:
		return "terminal"
	default:
		return "waiting-for-input"
	}
}

// Solver picks the reply for the opposing side.
type Solver interface {
	BestMove(p game.Position, side game.Side) (game.Move, bool)
}

// Option customizes a match stage.
type Option func(*Stage)

// WithSolver replaces the default deterministic engine.
func WithSolver(s Solver) Option {
	return func(st *Stage) {
		if s != nil {
			st.solver = s
		}
	}
}

// WithFinishDelay sets the linger after a decided board. Zero or negative
// resolves immediately.
func WithFinishDelay(d time.Duration) Option {
	return func(st *Stage) {
		st.finishDelay = d
	}
}

// WithPosition starts the match from p instead of an empty board.
func WithPosition(p game.Position) Option {
	return func(st *Stage) {
		st.pos = p
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

// Snapshot is the render state of the match.
type Snapshot struct {
	Position  game.Position
	State     State
	Outcome   game.Outcome
	LastReply game.Move
	Resolved  bool
}

// Stage is the match stage. Human moves arrive through Play; the solver
// replies synchronously inside the same transition.
type Stage struct {
	*stage.Base

	mu          sync.Mutex
	solver      Solver
	finishDelay time.Duration
	logger      *slog.Logger
	pos         game.Position
	state       State
	lastReply   game.Move
	linger      *time.Timer
	generation  int
}

// New builds a match stage.
func New(opts ...Option) *Stage {
	s := &Stage{
		Base: stage.NewBase(stage.Info{
			ID:          ID,
			Name:        "Portal Match",
			Description: "Beat (or survive) the unbeatable portal keeper.",
		}),
		solver:      game.NewEngine(),
		finishDelay: DefaultFinishDelay,
		logger:      slog.Default(),
		lastReply:   game.NoMove,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}
	return s
}

// Start implements stage.Stage.
func (s *Stage) Start(ctx context.Context) error {
	if _, err := s.Begin(ctx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pos.Outcome().Terminal() {
		s.enterTerminal()
	} else {
		s.state = WaitingForInput
	}
	return nil
}

// Play places the player's mark on cell and lets the solver reply. Moves on
// occupied cells, out of turn, or after the game ended are ignored and
// reported as false.
func (s *Stage) Play(cell int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Started() || s.Resolved() || s.state != WaitingForInput {
		return false
	}
	m := game.Move(cell)
	if !s.pos.Legal(m) || s.pos.Outcome().Terminal() {
		return false
	}
	s.pos = s.pos.Apply(m, game.SideA)
	if s.pos.Outcome().Terminal() {
		s.enterTerminal()
		return true
	}
	s.state = Evaluating
	reply, ok := s.solver.BestMove(s.pos, game.SideB)
	if ok && s.pos.Legal(reply) {
		s.pos = s.pos.Apply(reply, game.SideB)
		s.lastReply = reply
	} else {
		ok = false
	}
	if !ok || s.pos.Outcome().Terminal() {
		s.enterTerminal()
		return true
	}
	s.state = WaitingForInput
	return true
}

// Reset clears the board and returns to WaitingForInput. It is ignored once
// the stage has resolved.
func (s *Stage) Reset() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Resolved() {
		return false
	}
	s.stopLinger()
	s.generation++
	s.pos = game.Position{}
	s.state = WaitingForInput
	s.lastReply = game.NoMove
	s.logger.Debug("match reset")
	return true
}

// Complete resolves the stage now, whatever the board shows.
func (s *Stage) Complete() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolve(false)
}

// Skip implements stage.Stage.
func (s *Stage) Skip() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolve(true)
}

// Snapshot returns the current render state.
func (s *Stage) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		Position:  s.pos,
		State:     s.state,
		Outcome:   s.pos.Outcome(),
		LastReply: s.lastReply,
		Resolved:  s.Resolved(),
	}
}

// enterTerminal must be called with s.mu held.
func (s *Stage) enterTerminal() {
	s.state = Terminal
	s.logger.Info("match decided", "outcome", s.pos.Outcome().String(), "board", s.pos.String())
	if s.finishDelay <= 0 {
		s.resolve(false)
		return
	}
	s.stopLinger()
	gen := s.generation
	s.linger = time.AfterFunc(s.finishDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		if gen != s.generation || s.state != Terminal {
			return
		}
		s.resolve(false)
	})
}

// resolve must be called with s.mu held.
func (s *Stage) resolve(skipped bool) {
	if s.Resolved() {
		return
	}
	s.stopLinger()
	s.Finish(stage.Result{
		Unit:    true,
		Skipped: skipped,
		Detail:  describe(s.pos.Outcome()),
	})
}

func (s *Stage) stopLinger() {
	if s.linger != nil {
		s.linger.Stop()
		s.linger = nil
	}
}

func describe(o game.Outcome) string {
	switch o {
	case game.SideAWins:
		return "you beat the portal keeper"
	case game.SideBWins:
		return "the portal keeper won"
	case game.Draw:
		return "draw"
	default:
		return "match left unfinished"
	}
}
