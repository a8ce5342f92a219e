package limbo

// Signature mirrors the transaction engine's completion signature. Negative
// values other than the limbo's own sentinels mean the transaction's local
// log write has not finished yet; non-negative values mean it has.
type Signature int32

const (
	// SignatureQuorumTimeout is written by the limbo when a synchronous
	// wait expires and this transaction is cascade-aborted.
	SignatureQuorumTimeout Signature = -2

	// SignatureSyncRollback is written by the limbo when a transaction is
	// aborted by an externally observed ROLLBACK record or by ForceEmpty.
	SignatureSyncRollback Signature = -3
)

// Txn is the subset of the owning transaction's state the limbo reads and
// mutates.
// The transaction engine itself is out of scope; callers adapt their own
// transaction type to this interface. Implementations are never called
// concurrently by the limbo for the same transaction.
type Txn interface {
	// WaitSync reports whether this transaction's commit is gated by the
	// limbo. Append requires it to be true.
	WaitSync() bool

	// WaitAck reports whether this transaction originates locally (or was
	// forwarded from the origin) and carries its own log position that
	// must reach quorum. An entry without WaitAck is "async" and rides the
	// next preceding sync confirmation.
	WaitAck() bool

	// ClearWaitSync and ClearWaitAck drop the corresponding flag once the
	// entry has left the queue, either via commit or rollback.
	ClearWaitSync()
	ClearWaitAck()

	// Signature returns the transaction's current completion signature.
	Signature() Signature

	// SetSignature records why the transaction is finishing. The limbo
	// only ever writes SignatureQuorumTimeout or SignatureSyncRollback.
	SetSignature(Signature)

	// Fiber returns an opaque handle naming whichever goroutine owns
	// completing this transaction's pending log-write callback. SetFiber
	// swaps it. applyRollbackLocked uses this pair to run Complete under
	// the limbo's own identity and restore the previous handle afterward,
	// so that a log-completion callback arriving later still finds the
	// transaction where it left it.
	Fiber() any
	SetFiber(any)

	// Complete runs the transaction engine's completion hook. It is only
	// ever called once the entry has left the queue with exactly one of
	// its terminal flags set, and must invoke whichever of the hooks
	// registered via OnCommit/OnRollback matches that outcome.
	Complete()

	// OnCommit and OnRollback register a one-shot hook fired by Complete.
	// Only the hooks registered by the most recent call are expected to
	// fire; the limbo never registers more than one of each per
	// transaction (see Limbo.WaitLastConfirm).
	OnCommit(func())
	OnRollback(func())
}
