package missions

import "github.com/kingrea/portal/internal/stage"

// Register installs the missions factory for list (Defaults when empty). The
// list is validated once up front.
func Register(reg *stage.Registry, list []Mission, opts ...Option) error {
	if _, err := New(list, opts...); err != nil {
		return err
	}
	return reg.Register(ID, func() (stage.Stage, error) {
		return New(list, opts...)
	})
}
