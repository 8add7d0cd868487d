package taprush

import "github.com/kingrea/portal/internal/stage"

// Register installs the coin rush factory. Every build gets a fresh stage.
func Register(reg *stage.Registry, opts ...Option) error {
	return reg.Register(ID, func() (stage.Stage, error) {
		return New(opts...), nil
	})
}
