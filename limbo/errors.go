package limbo

import (
	"fmt"

	"github.com/pkg/errors"
)

// Sentinel error kinds surfaced by the limbo. Callers compare
// against these with errors.Is; ForeignSyncError additionally carries the
// origin peer that already owns the queue.
var (
	// ErrOutOfMemory is the error kind for a failed entry allocation. No
	// code path in this package returns it: Append allocates entries with
	// an ordinary Go allocation, which does not report failure as an error.
	ErrOutOfMemory = errors.New("synclimbo: entry allocation failed")

	// ErrQuorumTimeout is returned when a synchronous wait expired before
	// enough peers acknowledged the transaction's position.
	ErrQuorumTimeout = errors.New("synclimbo: synchronous replication quorum timeout")

	// ErrSyncRollback is returned when a wait completed because the entry
	// was rolled back, whether by this waiter's own timeout cascade, a
	// peer-driven ROLLBACK record, or ForceEmpty.
	ErrSyncRollback = errors.New("synclimbo: synchronous transaction rolled back")

	// ErrLogIO is returned when submission of a CONFIRM/ROLLBACK record to
	// the log failed.
	ErrLogIO = errors.New("synclimbo: failed to write synchro record")
)

// ForeignSyncError reports that Append was refused because the queue is
// non-empty and already belongs to a different origin peer.
type ForeignSyncError struct {
	Origin uint32
}

func (e *ForeignSyncError) Error() string {
	return fmt.Sprintf("synclimbo: queue already holds unconfirmed transactions from origin peer %d", e.Origin)
}

// completionError reports the outcome of an already-complete entry: nil on
// commit, ErrSyncRollback on rollback.
func completionError(e *Entry) error {
	if e.isRollback {
		return ErrSyncRollback
	}
	return nil
}
