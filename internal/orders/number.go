package orders

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// newOrderNumber builds the human-facing order number, e.g.
// ORD-20250314-183059-4F2A. Unique enough for display within the
// operational window; the random suffix disambiguates orders created
// in the same second. Not a global uniqueness guarantee.
func newOrderNumber(now time.Time) string {
	suffix := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:4])
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102-150405"), suffix)
}
