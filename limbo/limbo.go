// Package limbo implements the synchronous transaction limbo: the
// in-memory serialization point where a database node holds transactions
// that have been written locally but not yet confirmed by a quorum of
// replication peers.
//
// The package owns an ordered queue of pending transactions, a monotonic
// vector of peer log positions, and the decision logic that turns acks and
// timeouts into CONFIRM/ROLLBACK records and wakes the goroutines blocked
// waiting for them. The write-ahead log, the replication transport, and the
// transaction engine itself are all external collaborators, reached only
// through the Txn and LogBridge interfaces.
package limbo

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Limbo is the top-level, process-wide object. Every mutation happens
// under mu; suspension points (WaitComplete, WaitLastConfirm, and the
// LogBridge.Write call inside the decision engine) are the only places
// that release it.
type Limbo struct {
	mu sync.Mutex

	localPeer uint32
	queue     queue
	peers     *peerPositions
	cond      *broadcaster

	quorum  atomic.Int32
	timeout atomic.Int64 // nanoseconds

	bridge LogBridge
	log    *logrus.Entry

	// pendingConfirm is the highest CONFIRM position currently being
	// written to the log, or -1 if none is in flight. It keeps the
	// decision engine from issuing a second, redundant write for the same
	// or a lower position while one is already outstanding.
	pendingConfirm int64

	rollbackCount uint64
}

// New constructs a Limbo for the given local peer id, backed by bridge for
// CONFIRM/ROLLBACK persistence. quorum and timeout are the initial values
// of the two runtime-mutable synchro parameters; log receives structured
// diagnostics the way lxd/cluster tags its log entries.
func New(localPeer uint32, bridge LogBridge, quorum int, timeout time.Duration, log *logrus.Entry) *Limbo {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	l := &Limbo{
		localPeer:      localPeer,
		peers:          newPeerPositions(),
		cond:           newBroadcaster(),
		bridge:         bridge,
		log:            log.WithField("component", "limbo"),
		pendingConfirm: unassignedLSN,
	}
	l.quorum.Store(int32(quorum))
	l.timeout.Store(int64(timeout))
	return l
}

// Quorum returns the current synchro_quorum value.
func (l *Limbo) Quorum() int { return int(l.quorum.Load()) }

// SetQuorum updates synchro_quorum. Callers must follow up with
// OnParametersChange for the new value to take effect against the queue.
func (l *Limbo) SetQuorum(n int) { l.quorum.Store(int32(n)) }

// Timeout returns the current synchro_timeout value.
func (l *Limbo) Timeout() time.Duration { return time.Duration(l.timeout.Load()) }

// SetTimeout updates synchro_timeout. Already-sleeping waiters pick up the
// new value only after OnParametersChange broadcasts.
func (l *Limbo) SetTimeout(d time.Duration) { l.timeout.Store(int64(d)) }

// RollbackCount returns the number of entries aborted from the tail over
// the lifetime of this Limbo. It never resets and is intended for external
// readers polling for backlog.
func (l *Limbo) RollbackCount() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.rollbackCount
}

// PeerPositionsSnapshot returns a copy of the current peer position vector.
func (l *Limbo) PeerPositionsSnapshot() map[uint32]int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers.snapshot()
}

// Len reports how many entries are currently queued.
func (l *Limbo) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.queue.entries.Len()
}

// Append adds a new synchronous transaction to the tail of the queue. A
// zero peerID is replaced with the local peer id.
func (l *Limbo) Append(peerID uint32, txn Txn) (*Entry, error) {
	if !txn.WaitSync() {
		panic("synclimbo: Append requires a transaction with WaitSync set")
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if peerID == 0 {
		peerID = l.localPeer
	}
	return l.queue.append(peerID, txn)
}

// AssignLSN records the log position a just-written entry was given. If
// the queue's origin is this node, it also recounts ack_count against the
// known peer positions, since acks for this position may have arrived
// before the write finished.
func (l *Limbo) AssignLSN(e *Entry, pos int64) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	origin, hasOrigin := l.queue.originPeer()
	if !hasOrigin {
		panic("synclimbo: AssignLSN called with no queue origin set")
	}
	if e.lsn != unassignedLSN {
		panic("synclimbo: AssignLSN called twice for the same entry")
	}
	if pos <= 0 {
		panic("synclimbo: AssignLSN requires a positive position")
	}
	if !e.txn.WaitAck() {
		panic("synclimbo: AssignLSN requires a transaction with WaitAck set")
	}

	if origin == l.localPeer {
		l.assignLocalLSN(e, pos)
	} else {
		l.assignRemoteLSN(e, pos)
	}
	return nil
}

// assignLocalLSN is the origin-local half of AssignLSN: it back-applies any
// acks that arrived for pos while the local log write was still in flight.
func (l *Limbo) assignLocalLSN(e *Entry, pos int64) {
	e.lsn = pos
	e.ackCount = l.peers.countAtOrAbove(pos)
}

// assignRemoteLSN is the origin-remote half of AssignLSN: ack accounting
// for a remote origin's entries is that origin's own responsibility, so we
// simply record the position.
func (l *Limbo) assignRemoteLSN(e *Entry, pos int64) {
	e.lsn = pos
}

// waitOnCondLocked blocks the calling goroutine until the shared condition
// broadcasts or deadline passes, releasing mu for the duration. The wait is
// deliberately not selected against any context: the sleep is
// uncancellable by design.
func (l *Limbo) waitOnCondLocked(deadline time.Time) (timedOut bool) {
	wake := l.cond.wait()
	timer := time.NewTimer(time.Until(deadline))
	defer timer.Stop()

	l.mu.Unlock()
	select {
	case <-wake:
	case <-timer.C:
		timedOut = true
	}
	l.mu.Lock()
	return timedOut
}
