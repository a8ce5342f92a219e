package limbo

// ApplyConfirm applies the effect of a CONFIRM record that arrived via
// replication. It commits the longest
// eligible prefix of the queue and wakes anyone waiting on it. It is also
// the second half of the local decision path: after the limbo successfully
// writes its own CONFIRM record, it calls this to apply it to itself.
func (l *Limbo) ApplyConfirm(pos int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyConfirmLocked(pos)
}

// ApplyRollback applies the effect of a ROLLBACK record that arrived via
// replication.
func (l *Limbo) ApplyRollback(pos int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.applyRollbackLocked(pos)
}

// applyConfirmLocked walks the queue head first, committing every entry
// covered by pos. A sync entry stops the walk once its lsn exceeds pos, or
// if its log write is still in flight (lsn == -1, a local transaction that
// cannot be confirmed yet). An async entry is included whenever the walk
// reaches it, that is, whenever every sync entry ahead of it (if any) was
// included. Idempotent: entries already past
// the head are simply not seen again.
func (l *Limbo) applyConfirmLocked(pos int64) {
	committed := false
	for {
		e := l.queue.front()
		if e == nil {
			break
		}
		if e.txn.WaitAck() && (e.lsn > pos || e.lsn == unassignedLSN) {
			break
		}

		l.queue.removeHead()
		e.txn.ClearWaitSync()
		e.txn.ClearWaitAck()
		if e.txn.Signature() >= 0 {
			e.txn.Complete()
		}
		committed = true
	}
	if committed {
		l.cond.broadcast()
	}
}

// applyRollbackLocked walks the queue tail first to find the earliest sync
// entry at or beyond pos, then aborts every entry from the tail down to and
// including it. Entries whose log write has not completed yet have their
// transaction's fiber handle swapped to the limbo's own identity for the
// duration of Complete, then restored, so a log-completion callback
// arriving later still finds the transaction where it left it.
func (l *Limbo) applyRollbackLocked(pos int64) {
	var lastRollback *Entry
	l.queue.forEachReverse(func(e *Entry) bool {
		if !e.txn.WaitAck() {
			return true
		}
		if e.lsn < pos {
			return false
		}
		lastRollback = e
		return true
	})
	if lastRollback == nil {
		return
	}

	for {
		e := l.queue.popTail()
		l.rollbackCount++
		e.txn.ClearWaitSync()
		e.txn.ClearWaitAck()
		logWriteDone := e.txn.Signature() >= 0
		e.txn.SetSignature(SignatureSyncRollback)
		if logWriteDone {
			e.txn.Complete()
		} else {
			fiber := e.txn.Fiber()
			e.txn.SetFiber(limboFiber)
			e.txn.Complete()
			e.txn.SetFiber(fiber)
		}
		if e == lastRollback {
			break
		}
	}
	l.cond.broadcast()
}

// limboFiber is the opaque identity applyRollbackLocked runs Complete under
// when a transaction's own log write has not finished yet (see Txn.Fiber).
var limboFiber = new(struct{})
