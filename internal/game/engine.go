package game

import "math/rand/v2"

// winScore bounds terminal scores; a win found d plies below the root move
// scores winScore-d so faster wins and slower losses rank higher.
const winScore = 10

// Engine solves positions by exhaustive minimax.
type Engine struct {
	rnd *rand.Rand
}

// EngineOption customizes an Engine.
type EngineOption func(*Engine)

// WithRand makes the engine pick uniformly among equally scored best moves
// instead of the lowest index.
func WithRand(r *rand.Rand) EngineOption {
	return func(e *Engine) {
		e.rnd = r
	}
}

// NewEngine builds a solver.
func NewEngine(opts ...EngineOption) *Engine {
	e := &Engine{}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	return e
}

var deterministic = NewEngine()

// BestMove returns the optimal move for side using the index-order tie-break.
func BestMove(p Position, side Side) (Move, bool) {
	return deterministic.BestMove(p, side)
}

type memoKey struct {
	pos    Position
	toMove Side
}

// BestMove returns the optimal move for side, or (NoMove, false) when the
// position is already decided or full.
func (e *Engine) BestMove(p Position, side Side) (Move, bool) {
	if p.Outcome().Terminal() || (side != SideA && side != SideB) {
		return NoMove, false
	}
	s := solver{me: side, memo: map[memoKey]int{}}
	best := -winScore - 1
	var candidates []Move
	for _, m := range p.EmptyCells() {
		score := s.value(p.Apply(m, side), Opponent(side), 0)
		switch {
		case score > best:
			best = score
			candidates = append(candidates[:0], m)
		case score == best:
			candidates = append(candidates, m)
		}
	}
	if len(candidates) == 0 {
		return NoMove, false
	}
	if e.rnd != nil && len(candidates) > 1 {
		return candidates[e.rnd.IntN(len(candidates))], true
	}
	return candidates[0], true
}

// Scores returns the minimax score of every legal move for side.
func (e *Engine) Scores(p Position, side Side) map[Move]int {
	out := map[Move]int{}
	if p.Outcome().Terminal() {
		return out
	}
	s := solver{me: side, memo: map[memoKey]int{}}
	for _, m := range p.EmptyCells() {
		out[m] = s.value(p.Apply(m, side), Opponent(side), 0)
	}
	return out
}

type solver struct {
	me   Side
	memo map[memoKey]int
}

// value scores p from the solver's side at the given depth. Results are
// memoized at depth zero and shifted toward zero by depth on lookup, which
// preserves ordering because every non-zero score keeps its sign.
func (s *solver) value(p Position, toMove Side, depth int) int {
	key := memoKey{pos: p, toMove: toMove}
	if v, ok := s.memo[key]; ok {
		return shift(v, depth)
	}
	v := s.search(p, toMove)
	s.memo[key] = v
	return shift(v, depth)
}

func (s *solver) search(p Position, toMove Side) int {
	switch p.Winner() {
	case s.me:
		return winScore
	case Opponent(s.me):
		return -winScore
	}
	if p.Full() {
		return 0
	}
	maximizing := toMove == s.me
	best := winScore + 1
	if maximizing {
		best = -winScore - 1
	}
	for _, m := range p.EmptyCells() {
		v := s.value(p.Apply(m, toMove), Opponent(toMove), 1)
		if maximizing && v > best || !maximizing && v < best {
			best = v
		}
	}
	return best
}

func shift(v, depth int) int {
	switch {
	case v > 0:
		return v - depth
	case v < 0:
		return v + depth
	default:
		return 0
	}
}
