package limbo

import "container/list"

// queue is an ordered sequence of *Entry, append-only at the tail, drained
// from the head on commit or from the tail on rollback. It tracks a single
// origin peer for as long as it is non-empty.
type queue struct {
	entries   list.List
	origin    uint32
	hasOrigin bool
}

func (q *queue) empty() bool { return q.entries.Len() == 0 }

// originPeer returns the peer the queued transactions belong to, and
// whether one is currently set. It is unset exactly when the queue is
// empty.
func (q *queue) originPeer() (uint32, bool) { return q.origin, q.hasOrigin }

// append pushes a fresh entry at the tail, adopting peerID as the origin if
// the queue has none yet. It fails with ForeignSyncError if the queue is
// non-empty and already belongs to a different peer.
func (q *queue) append(peerID uint32, txn Txn) (*Entry, error) {
	if q.hasOrigin && q.origin != peerID && !q.empty() {
		return nil, &ForeignSyncError{Origin: q.origin}
	}
	q.origin = peerID
	q.hasOrigin = true

	e := newEntry(txn)
	q.entries.PushBack(e)
	return e, nil
}

func (q *queue) front() *Entry {
	el := q.entries.Front()
	if el == nil {
		return nil
	}
	return el.Value.(*Entry)
}

func (q *queue) back() *Entry {
	el := q.entries.Back()
	if el == nil {
		return nil
	}
	return el.Value.(*Entry)
}

// removeHead removes and returns the current head, marking it committed.
// The caller must have already verified the head is eligible for removal.
func (q *queue) removeHead() *Entry {
	el := q.entries.Front()
	e := el.Value.(*Entry)
	e.isCommit = true
	q.entries.Remove(el)
	q.clearOriginIfEmpty()
	return e
}

// popTail removes and returns the current tail, marking it rolled back.
func (q *queue) popTail() *Entry {
	el := q.entries.Back()
	e := el.Value.(*Entry)
	e.isRollback = true
	q.entries.Remove(el)
	q.clearOriginIfEmpty()
	return e
}

func (q *queue) clearOriginIfEmpty() {
	if q.entries.Len() == 0 {
		q.hasOrigin = false
		q.origin = 0
	}
}

// forEach walks the queue head to tail, stopping early if fn returns false.
func (q *queue) forEach(fn func(*Entry) bool) {
	for el := q.entries.Front(); el != nil; el = el.Next() {
		if !fn(el.Value.(*Entry)) {
			return
		}
	}
}

// forEachReverse walks the queue tail to head, stopping early if fn returns
// false.
func (q *queue) forEachReverse(fn func(*Entry) bool) {
	for el := q.entries.Back(); el != nil; el = el.Prev() {
		if !fn(el.Value.(*Entry)) {
			return
		}
	}
}
