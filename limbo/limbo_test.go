package limbo

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	localPeerForTests = 1
	peerA             = 2
	peerB             = 3
	peerC             = 4
)

func newTestLimbo(quorum int, timeout time.Duration) (*Limbo, *fakeBridge) {
	bridge := &fakeBridge{}
	l := New(localPeerForTests, bridge, quorum, timeout, nil)
	return l, bridge
}

// TestLimbo_SingleEntryQuorum checks that a single
// sync entry is confirmed as soon as enough distinct peers have
// acknowledged its position.
func TestLimbo_SingleEntryQuorum(t *testing.T) {
	l, bridge := newTestLimbo(2, time.Second)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)

	require.NoError(t, l.AssignLSN(e, 10))

	done := make(chan error, 1)
	go func() { done <- l.WaitComplete(e) }()

	l.Ack(peerA, 10)
	l.Ack(peerB, 10)

	require.NoError(t, <-done)
	assert.True(t, e.IsCommit())
	assert.Equal(t, 0, l.Len())

	_, hasOrigin := l.queue.originPeer()
	assert.False(t, hasOrigin)

	writes := bridge.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, RecordConfirm, writes[0].kind)
	assert.EqualValues(t, 10, writes[0].pos)
}

// TestLimbo_AsyncRidesSync checks that an async entry
// commits as a side effect of the preceding sync entry crossing quorum.
func TestLimbo_AsyncRidesSync(t *testing.T) {
	l, _ := newTestLimbo(2, time.Second)

	sync := newFakeTxn(true, true)
	e1, err := l.Append(0, sync)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e1, 10))

	async := newFakeTxn(true, false)
	e2, err := l.Append(0, async)
	require.NoError(t, err)

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- l.WaitComplete(e1) }()
	go func() { done2 <- l.WaitComplete(e2) }()

	l.Ack(peerA, 10)
	l.Ack(peerB, 10)

	require.NoError(t, <-done1)
	require.NoError(t, <-done2)
	assert.True(t, e1.IsCommit())
	assert.True(t, e2.IsCommit())
}

// TestLimbo_TimeoutCascade checks that with too few
// acks, the deadline fires and the whole queue aborts.
func TestLimbo_TimeoutCascade(t *testing.T) {
	l, bridge := newTestLimbo(3, 30*time.Millisecond)

	txn1 := newFakeTxn(true, true)
	e1, err := l.Append(0, txn1)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e1, 10))

	txn2 := newFakeTxn(true, true)
	e2, err := l.Append(0, txn2)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e2, 11))

	done1 := make(chan error, 1)
	done2 := make(chan error, 1)
	go func() { done1 <- l.WaitComplete(e1) }()
	go func() { done2 <- l.WaitComplete(e2) }()

	l.Ack(peerA, 10)

	err1 := <-done1
	err2 := <-done2

	assert.ErrorIs(t, err1, ErrQuorumTimeout)
	assert.ErrorIs(t, err2, ErrSyncRollback)
	assert.True(t, e1.IsRollback())
	assert.True(t, e2.IsRollback())
	assert.EqualValues(t, SignatureQuorumTimeout, txn1.Signature())
	assert.EqualValues(t, SignatureQuorumTimeout, txn2.Signature())

	writes := bridge.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, RecordRollback, writes[0].kind)
	assert.EqualValues(t, 10, writes[0].pos)
	assert.EqualValues(t, 2, l.RollbackCount())
}

func TestLimbo_ForeignOriginRejection(t *testing.T) {
	l, _ := newTestLimbo(2, time.Second)

	_, err := l.Append(peerA, newFakeTxn(true, true))
	require.NoError(t, err)

	_, err = l.Append(peerB, newFakeTxn(true, true))
	require.Error(t, err)

	var foreign *ForeignSyncError
	require.ErrorAs(t, err, &foreign)
	assert.EqualValues(t, peerA, foreign.Origin)
}

// TestLimbo_BackAppliedAcks checks that an ack that
// arrives before a local entry has an lsn is reflected the moment the lsn
// is assigned, without a fresh ack call.
func TestLimbo_BackAppliedAcks(t *testing.T) {
	l, _ := newTestLimbo(2, time.Second)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)

	l.Ack(peerB, 20) // no-op: queue is non-empty but e has no lsn yet, so
	// this ack cannot reach any entry; it only updates the peer vector.

	require.NoError(t, l.AssignLSN(e, 15))
	assert.Equal(t, 1, e.AckCount())
}

// TestLimbo_ExternalRollback checks that a replicated ROLLBACK aborts
// only the suffix at or beyond its position.
func TestLimbo_ExternalRollback(t *testing.T) {
	l, _ := newTestLimbo(2, time.Second)

	var entries []*Entry
	for _, lsn := range []int64{10, 11, 12} {
		txn := newFakeTxn(true, true)
		e, err := l.Append(0, txn)
		require.NoError(t, err)
		require.NoError(t, l.AssignLSN(e, lsn))
		entries = append(entries, e)
	}

	l.ApplyRollback(11)

	assert.False(t, entries[0].Complete())
	assert.True(t, entries[1].IsRollback())
	assert.True(t, entries[2].IsRollback())
	assert.Equal(t, 1, l.Len())
}

func TestLimbo_QuorumTimeoutWhenOnlyWaiterTimesOut(t *testing.T) {
	l, bridge := newTestLimbo(5, 20*time.Millisecond)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))

	err = l.WaitComplete(e)
	assert.ErrorIs(t, err, ErrQuorumTimeout)
	assert.True(t, e.IsRollback())

	writes := bridge.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, RecordRollback, writes[0].kind)
}

func TestLimbo_WaitLastConfirm(t *testing.T) {
	l, _ := newTestLimbo(1, time.Second)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))
	txn.finishLocalWrite()

	done := make(chan error, 1)
	go func() { done <- l.WaitLastConfirm() }()

	l.Ack(peerA, 1)

	require.NoError(t, <-done)
}

func TestLimbo_ForceEmpty(t *testing.T) {
	l, _ := newTestLimbo(5, time.Second)

	var entries []*Entry
	for _, lsn := range []int64{10, 11, 12} {
		txn := newFakeTxn(true, true)
		e, err := l.Append(0, txn)
		require.NoError(t, err)
		require.NoError(t, l.AssignLSN(e, lsn))
		entries = append(entries, e)
	}

	l.ForceEmpty(10)

	assert.True(t, entries[0].IsCommit())
	assert.True(t, entries[1].IsRollback())
	assert.True(t, entries[2].IsRollback())
	assert.Equal(t, 0, l.Len())
}

func TestLimbo_OnParametersChangeConfirmsAndBroadcasts(t *testing.T) {
	l, bridge := newTestLimbo(3, 50*time.Millisecond)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))

	l.Ack(peerA, 1)
	l.Ack(peerB, 1)
	assert.False(t, e.Complete(), "quorum of 3 not yet reached")

	l.SetQuorum(2)
	l.OnParametersChange()

	assert.True(t, e.IsCommit())
	writes := bridge.writes()
	require.Len(t, writes, 1)
	assert.Equal(t, RecordConfirm, writes[0].kind)
}

func TestLimbo_OnParametersChangePanicsOnLogFailure(t *testing.T) {
	l, bridge := newTestLimbo(1, time.Second)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))
	e.ackCount = 1 // already at quorum

	bridge.failNextWrites(1, nil)

	assert.Panics(t, func() { l.OnParametersChange() })
}

func TestLimbo_AckFailureIsSwallowedAndRetried(t *testing.T) {
	l, bridge := newTestLimbo(1, time.Second)

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))

	bridge.failNextWrites(1, nil)
	l.Ack(peerA, 1)
	assert.False(t, e.Complete(), "failed CONFIRM write must not be applied")

	l.Ack(peerB, 1)
	assert.True(t, e.IsCommit(), "a later ack retries the write")
}

// confirmDuringRollbackBridge simulates a CONFIRM record racing in over
// replication while the timed-out waiter is blocked writing its ROLLBACK.
type confirmDuringRollbackBridge struct {
	fakeBridge
	limbo *Limbo
}

func (b *confirmDuringRollbackBridge) Write(origin uint32, pos int64, kind RecordKind) error {
	if kind == RecordRollback {
		b.limbo.ApplyConfirm(pos)
	}
	return b.fakeBridge.Write(origin, pos, kind)
}

func TestLimbo_TimeoutLosesRaceAgainstConfirm(t *testing.T) {
	bridge := &confirmDuringRollbackBridge{}
	l := New(localPeerForTests, bridge, 5, 20*time.Millisecond, nil)
	bridge.limbo = l

	txn := newFakeTxn(true, true)
	e, err := l.Append(0, txn)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e, 1))
	txn.finishLocalWrite()

	err = l.WaitComplete(e)

	require.NoError(t, err, "the entry was confirmed before the rollback could start")
	assert.True(t, e.IsCommit())
	assert.False(t, e.IsRollback())
	assert.Equal(t, 0, l.Len())
}

func TestLimbo_OnParametersChangeConfirmsOnlyPrefix(t *testing.T) {
	l, bridge := newTestLimbo(3, time.Second)

	txn1 := newFakeTxn(true, true)
	e1, err := l.Append(0, txn1)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e1, 10))

	txn2 := newFakeTxn(true, true)
	e2, err := l.Append(0, txn2)
	require.NoError(t, err)
	require.NoError(t, l.AssignLSN(e2, 11))

	// Only the second entry has acks; the first still gates the prefix.
	e2.ackCount = 2

	l.SetQuorum(2)
	l.OnParametersChange()

	assert.False(t, e1.Complete())
	assert.False(t, e2.Complete())
	assert.Empty(t, bridge.writes(), "no confirmable prefix yet")
}
