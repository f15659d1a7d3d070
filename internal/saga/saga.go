// Package saga runs multi-step writes against the non-transactional
// row store. Phases execute strictly in order; a failure stops the
// sequence and reports which phase failed and which had already
// committed. Nothing is rolled back; the store offers no way to.
package saga

import (
	"context"

	"tableside/internal/domain"
)

// Phase is one step of a multi-table write or delete. Desc, when set,
// describes what the phase committed (e.g. "order 42"); it defaults to
// the phase name in the partial-write report.
type Phase struct {
	Name string
	Desc string
	Run  func(ctx context.Context) error
}

// Run executes phases sequentially. On failure it returns a
// *domain.PartialWriteError naming the failed phase and the phases
// committed before it.
func Run(ctx context.Context, op string, phases ...Phase) error {
	var committed []string
	for _, p := range phases {
		if err := ctx.Err(); err != nil {
			return &domain.PartialWriteError{Op: op, Phase: p.Name, Committed: committed, Err: err}
		}
		if err := p.Run(ctx); err != nil {
			return &domain.PartialWriteError{Op: op, Phase: p.Name, Committed: committed, Err: err}
		}
		desc := p.Desc
		if desc == "" {
			desc = p.Name
		}
		committed = append(committed, desc)
	}
	return nil
}
