package ledger

import (
	"errors"
	"time"

	"github.com/nudge-project/nudge/pkg/model"
)

// ErrLimitReached is returned by Store.Increment when the persisted count
// has already reached the limit. Nothing is written.
var ErrLimitReached = errors.New("deferral limit reached")

// Store persists one quit counter per enforcement timeline. Implementations
// must make Increment a single-writer read-modify-write across goroutines
// and processes, and must not acknowledge an increment before it is durable.
type Store interface {
	// Load returns the record for timeline. A timeline never written, or
	// replaced by a newer one, loads as a zero record.
	Load(timeline string) (model.LedgerRecord, error)

	// Increment adds one to the quit count, records until as the deferred
	// reminder time and returns the committed record. A positive limit
	// refuses the increment with ErrLimitReached once the count is at or
	// above it; the check runs in the same critical section as the write.
	Increment(timeline string, until, now time.Time, limit int) (model.LedgerRecord, error)

	// Reset zeroes the record for timeline.
	Reset(timeline string, now time.Time) error

	Close() error
}
