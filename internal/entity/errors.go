package entity

import (
	"fmt"

	"github.com/nebula-dds/ddscore/internal/dderr"
)

// wrapInconsistent wraps a qos.CheckConsistency failure with the operation
// name that surfaced it, keeping the dderr.InconsistentPolicy code intact
// for dderr.Is/Code callers.
func wrapInconsistent(op string, err error) error {
	return fmt.Errorf("entity: %s: %w", op, dderr.Wrap(dderr.InconsistentPolicy, err))
}
