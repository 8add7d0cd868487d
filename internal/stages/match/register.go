package match

import "github.com/kingrea/portal/internal/stage"

// Register installs the portal match factory. newSolver is called per build
// so randomized engines never share state; nil keeps the default engine.
func Register(reg *stage.Registry, newSolver func() Solver, opts ...Option) error {
	return reg.Register(ID, func() (stage.Stage, error) {
		all := opts
		if newSolver != nil {
			all = append([]Option{WithSolver(newSolver())}, opts...)
		}
		return New(all...), nil
	})
}
