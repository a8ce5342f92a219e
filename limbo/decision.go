package limbo

// Ack is the decision engine's first trigger: a peer has
// acknowledged up to pos. It is a no-op on an empty queue — acks that
// arrive while nothing is queued are not recorded against the peer vector
// either.
func (l *Limbo) Ack(peerID uint32, pos int64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.queue.empty() {
		return
	}

	prev := l.peers.follow(peerID, pos)

	confirmPos := unassignedLSN
	l.queue.forEach(func(e *Entry) bool {
		if e.lsn > pos {
			return false
		}
		if !e.txn.WaitAck() {
			// Async entries never push confirmPos themselves; they only
			// ride along once a sync entry ahead of them already has.
			return true
		}
		if e.lsn <= prev {
			// Already counted on a previous ack from this peer.
			return true
		}
		e.ackCount++
		if e.ackCount < l.Quorum() {
			return true
		}
		confirmPos = e.lsn
		return true
	})

	if confirmPos == unassignedLSN {
		return
	}
	l.confirmLocked(confirmPos)
}

// confirmLocked writes a CONFIRM record for pos and, on success, applies it
// locally. A failure to write is swallowed: the acks collected so far
// remain recorded on the entries, and a later ack may retry.
//
// pendingConfirm prevents two concurrent Ack calls from both submitting a
// write for the same or a smaller position while one is already in flight,
// serializing the engine without needing a second lock.
func (l *Limbo) confirmLocked(pos int64) {
	if pos <= l.pendingConfirm {
		return
	}
	l.pendingConfirm = pos

	origin, _ := l.queue.originPeer()
	l.mu.Unlock()
	err := l.bridge.Write(origin, pos, RecordConfirm)
	l.mu.Lock()

	if l.pendingConfirm == pos {
		l.pendingConfirm = unassignedLSN
	}
	if err != nil {
		l.log.WithFields(map[string]interface{}{
			"origin_peer": origin,
			"pos":         pos,
		}).WithError(err).Warn("failed to write CONFIRM record, a later ack may retry")
		return
	}
	l.applyConfirmLocked(pos)
}

// OnParametersChange is the decision engine's second trigger:
// synchro_quorum or synchro_timeout was reconfigured. It re-scans
// the queue against the current ack counts and the new quorum, computing
// the longest confirmable prefix from scratch, then unconditionally
// broadcasts so sleeping waiters notice the new timeout.
//
// Unlike Ack, a failed CONFIRM write here is fatal: quorum has already
// shrunk and there is no later trigger that would retry it.
func (l *Limbo) OnParametersChange() {
	l.mu.Lock()

	if l.queue.empty() {
		l.mu.Unlock()
		l.cond.broadcast()
		return
	}

	confirmPos := unassignedLSN
	l.queue.forEach(func(e *Entry) bool {
		if !e.txn.WaitAck() {
			return true
		}
		if e.ackCount < l.Quorum() {
			// The confirmable prefix ends at the first sync entry still
			// short of quorum; nothing past it may commit yet.
			return false
		}
		confirmPos = e.lsn
		return true
	})

	if confirmPos > 0 {
		origin, _ := l.queue.originPeer()
		l.mu.Unlock()
		err := l.bridge.Write(origin, confirmPos, RecordConfirm)
		l.mu.Lock()
		if err != nil {
			l.mu.Unlock()
			panic("synclimbo: failed to write CONFIRM after a parameter change: " + err.Error())
		}
		l.applyConfirmLocked(confirmPos)
	}

	l.mu.Unlock()
	l.cond.broadcast()
}

// ForceEmpty is an administrative operation: it commits the
// longest prefix of sync entries at or below confirmPos and aborts the
// first sync entry strictly beyond it together with every entry after it,
// writing and applying CONFIRM then ROLLBACK in that order.
func (l *Limbo) ForceEmpty(confirmPos int64) {
	l.mu.Lock()

	var lastQuorum, rollback *Entry
	l.queue.forEach(func(e *Entry) bool {
		if !e.txn.WaitAck() {
			return true
		}
		if e.lsn <= confirmPos {
			lastQuorum = e
			return true
		}
		rollback = e
		return false
	})

	origin, _ := l.queue.originPeer()
	var writeConfirmPos, writeRollbackPos int64 = unassignedLSN, unassignedLSN
	if lastQuorum != nil {
		writeConfirmPos = lastQuorum.lsn
	}
	if rollback != nil {
		writeRollbackPos = rollback.lsn
	}
	l.mu.Unlock()

	if writeConfirmPos > 0 {
		if err := l.bridge.Write(origin, writeConfirmPos, RecordConfirm); err != nil {
			l.log.WithError(err).Warn("ForceEmpty: failed to write CONFIRM record")
		} else {
			l.ApplyConfirm(writeConfirmPos)
		}
	}
	if writeRollbackPos > 0 {
		if err := l.bridge.Write(origin, writeRollbackPos, RecordRollback); err != nil {
			l.log.WithError(err).Warn("ForceEmpty: failed to write ROLLBACK record")
		} else {
			l.ApplyRollback(writeRollbackPos)
		}
	}
}
