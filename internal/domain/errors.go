package domain

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound means the referenced entity does not exist.
	ErrNotFound = errors.New("not found")
	// ErrStoreUnavailable means the row store could not be reached or
	// answered with an infrastructure failure.
	ErrStoreUnavailable = errors.New("store unavailable")
	// ErrValidation means caller-supplied data violates a documented
	// precondition.
	ErrValidation = errors.New("validation failed")
	// ErrPartialWrite marks a multi-step write or delete that aborted
	// mid-sequence. Use errors.As with *PartialWriteError for details.
	ErrPartialWrite = errors.New("partial write")
)

// PartialWriteError reports which phase of a multi-step operation
// failed and what had already been committed when it did. The store has
// no transactions, so nothing is rolled back; the caller decides
// whether to retry the failed phase or clean up.
type PartialWriteError struct {
	Op        string   // logical operation, e.g. "create_order"
	Phase     string   // phase that failed
	Committed []string // phases that completed before the failure
	Err       error
}

func (e *PartialWriteError) Error() string {
	committed := "nothing"
	if len(e.Committed) > 0 {
		committed = strings.Join(e.Committed, ", ")
	}
	return fmt.Sprintf("%s: phase %q failed (committed: %s): %v", e.Op, e.Phase, committed, e.Err)
}

func (e *PartialWriteError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrPartialWrite) classify the taxonomy without
// unpacking the struct.
func (e *PartialWriteError) Is(target error) bool { return target == ErrPartialWrite }

// Validationf builds an ErrValidation with a formatted reason.
func Validationf(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrValidation}, args...)...)
}
