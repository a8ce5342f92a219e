package limbo

import "sync"

// fakeTxn is a minimal Txn implementation for tests: the transaction
// engine itself is out of scope, so tests stand in for it.
type fakeTxn struct {
	mu sync.Mutex

	waitSync bool
	waitAck  bool

	signature Signature
	fiber     any

	completeCalls int

	onCommit   []func()
	onRollback []func()
}

func newFakeTxn(waitSync, waitAck bool) *fakeTxn {
	return &fakeTxn{waitSync: waitSync, waitAck: waitAck, signature: -1}
}

func (t *fakeTxn) WaitSync() bool { t.mu.Lock(); defer t.mu.Unlock(); return t.waitSync }
func (t *fakeTxn) WaitAck() bool  { t.mu.Lock(); defer t.mu.Unlock(); return t.waitAck }

func (t *fakeTxn) ClearWaitSync() { t.mu.Lock(); defer t.mu.Unlock(); t.waitSync = false }
func (t *fakeTxn) ClearWaitAck()  { t.mu.Lock(); defer t.mu.Unlock(); t.waitAck = false }

func (t *fakeTxn) Signature() Signature { t.mu.Lock(); defer t.mu.Unlock(); return t.signature }
func (t *fakeTxn) SetSignature(s Signature) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.signature = s
}

func (t *fakeTxn) Fiber() any        { t.mu.Lock(); defer t.mu.Unlock(); return t.fiber }
func (t *fakeTxn) SetFiber(f any)    { t.mu.Lock(); defer t.mu.Unlock(); t.fiber = f }
func (t *fakeTxn) finishLocalWrite() { t.mu.Lock(); defer t.mu.Unlock(); t.signature = 0 }

func (t *fakeTxn) Complete() {
	t.mu.Lock()
	isRollback := t.signature == SignatureQuorumTimeout || t.signature == SignatureSyncRollback
	t.completeCalls++
	commitHooks := append([]func(){}, t.onCommit...)
	rollbackHooks := append([]func(){}, t.onRollback...)
	t.mu.Unlock()

	if isRollback {
		for _, h := range rollbackHooks {
			h()
		}
		return
	}
	for _, h := range commitHooks {
		h()
	}
}

func (t *fakeTxn) OnCommit(fn func())   { t.mu.Lock(); defer t.mu.Unlock(); t.onCommit = append(t.onCommit, fn) }
func (t *fakeTxn) OnRollback(fn func()) { t.mu.Lock(); defer t.mu.Unlock(); t.onRollback = append(t.onRollback, fn) }

func (t *fakeTxn) completions() int { t.mu.Lock(); defer t.mu.Unlock(); return t.completeCalls }

// fakeBridge is an in-memory LogBridge for tests: it records every record
// it is asked to write and can be told to fail the next N writes.
type fakeBridge struct {
	mu      sync.Mutex
	records []fakeRecord
	failN   int
	err     error
}

type fakeRecord struct {
	origin uint32
	pos    int64
	kind   RecordKind
}

func (b *fakeBridge) Write(origin uint32, pos int64, kind RecordKind) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.failN > 0 {
		b.failN--
		if b.err == nil {
			b.err = ErrLogIO
		}
		return b.err
	}
	b.records = append(b.records, fakeRecord{origin, pos, kind})
	return nil
}

func (b *fakeBridge) failNextWrites(n int, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failN = n
	b.err = err
}

func (b *fakeBridge) writes() []fakeRecord {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]fakeRecord, len(b.records))
	copy(out, b.records)
	return out
}
