package limbo

import "time"

// WaitComplete suspends the calling goroutine until entry reaches a
// terminal state, or the synchro_timeout deadline passes.
// It is called by the producer goroutine right after AssignLSN.
//
// The sleep is uncancellable by design: a cancellation that left an entry
// queued with nobody left to drive its eventual commit or rollback would
// require destroying the entry out from under the transaction arena that
// owns it. Timeouts are the only preemption mechanism.
func (l *Limbo) WaitComplete(e *Entry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if e.Complete() {
		return completionError(e)
	}

	// The deadline is recomputed on every wakeup, so a timeout changed by
	// SetTimeout + OnParametersChange applies to waiters already asleep.
	start := time.Now()
	for {
		timedOut := l.waitOnCondLocked(start.Add(l.Timeout()))
		if e.Complete() {
			return completionError(e)
		}
		if timedOut {
			return l.timeoutPathLocked(e)
		}
	}
}

// timeoutPathLocked runs when entry's deadline passed without it
// completing. If entry is not the current head, some other goroutine is
// already driving the cascading rollback for it; this one just waits for
// that to finish. Otherwise this goroutine becomes the rollback driver.
func (l *Limbo) timeoutPathLocked(e *Entry) error {
	if l.queue.front() != e {
		for !e.Complete() {
			wake := l.cond.wait()
			l.mu.Unlock()
			<-wake
			l.mu.Lock()
		}
		return completionError(e)
	}

	lsn := e.lsn
	origin, _ := l.queue.originPeer()

	l.mu.Unlock()
	// The write's own success or failure is not acted on here: by this
	// point the transactions are being aborted regardless of whether the
	// ROLLBACK record itself made it to the log.
	_ = l.bridge.Write(origin, lsn, RecordRollback)
	l.mu.Lock()

	// A CONFIRM or ROLLBACK may have been applied while the lock was
	// released for the write; if so the entry has already left the queue
	// and there is nothing left to abort.
	if e.Complete() {
		return completionError(e)
	}

	for {
		aborted := l.queue.popTail()
		l.rollbackCount++
		aborted.txn.SetSignature(SignatureQuorumTimeout)
		aborted.txn.ClearWaitSync()
		aborted.txn.ClearWaitAck()
		aborted.txn.Complete()
		if aborted == e {
			break
		}
	}
	l.cond.broadcast()

	return ErrQuorumTimeout
}

// WaitLastConfirm attaches one-shot commit/rollback hooks to the current
// tail entry's transaction, then sleeps uncancellably until either fires
// or synchro_timeout elapses.
func (l *Limbo) WaitLastConfirm() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queue.empty() {
		return nil
	}

	tail := l.queue.back()
	wp := &waitpoint{}
	tail.txn.OnCommit(func() { wp.confirmed = true })
	tail.txn.OnRollback(func() { wp.rolledBack = true })

	start := time.Now()
	for {
		timedOut := l.waitOnCondLocked(start.Add(l.Timeout()))
		switch {
		case wp.confirmed:
			return nil
		case wp.rolledBack:
			return ErrSyncRollback
		case timedOut:
			// Hooks are simple closures over wp; with nothing left
			// referencing either, they are inert once this call returns,
			// so there is no separate detach step to run.
			return ErrQuorumTimeout
		}
	}
}

// waitpoint tracks the outcome of a WaitLastConfirm call. Both fields are
// only ever written and read while Limbo.mu is held, since OnCommit and
// OnRollback fire from inside applyConfirmLocked/applyRollbackLocked.
type waitpoint struct {
	confirmed  bool
	rolledBack bool
}
