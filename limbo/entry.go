package limbo

// unassignedLSN marks an entry whose transaction is still being written to
// the local log; it has not yet been assigned a position.
const unassignedLSN int64 = -1

// Entry is one queued synchronous transaction's bookkeeping. It is created by Append and removed either from the head
// (commit) or repeatedly from the tail (rollback).
type Entry struct {
	txn Txn

	lsn      int64
	ackCount int

	isCommit   bool
	isRollback bool
}

func newEntry(txn Txn) *Entry {
	return &Entry{txn: txn, lsn: unassignedLSN}
}

// Txn returns the transaction this entry belongs to.
func (e *Entry) Txn() Txn { return e.txn }

// LSN returns the log position assigned to this entry, or -1 if the local
// log write is still in flight.
func (e *Entry) LSN() int64 { return e.lsn }

// AckCount returns the number of peers known to have acknowledged this
// entry's position. Only meaningful when the transaction has WaitAck.
func (e *Entry) AckCount() int { return e.ackCount }

// IsCommit reports whether this entry left the queue via CONFIRM.
func (e *Entry) IsCommit() bool { return e.isCommit }

// IsRollback reports whether this entry left the queue via ROLLBACK.
func (e *Entry) IsRollback() bool { return e.isRollback }

// Complete reports whether the entry has reached a terminal state. Exactly
// one of IsCommit/IsRollback is true once this returns true.
func (e *Entry) Complete() bool { return e.isCommit || e.isRollback }
