// ABOUTME: Transactions: scope locks, FIFO request execution, commit and abort
// ABOUTME: Abort replays the undo log so the database looks untouched

package idb

import (
	"context"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/idbstore/internal/lockmgr"
	"github.com/nainya/idbstore/pkg/storage"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	ReadOnly Mode = iota
	ReadWrite
	VersionChange
)

func (m Mode) String() string {
	return m.lock().String()
}

func (m Mode) lock() lockmgr.Mode {
	switch m {
	case ReadWrite:
		return lockmgr.ReadWrite
	case VersionChange:
		return lockmgr.VersionChange
	}
	return lockmgr.ReadOnly
}

// TxState is the lifecycle state of a transaction.
type TxState int

const (
	TxActive TxState = iota
	TxCommitting
	TxCommitted
	TxAborted
)

func (s TxState) String() string {
	switch s {
	case TxActive:
		return "active"
	case TxCommitting:
		return "committing"
	case TxCommitted:
		return "committed"
	}
	return "aborted"
}

// Finished reports whether the transaction committed or aborted.
func (s TxState) Finished() bool {
	return s == TxCommitted || s == TxAborted
}

// undoLog holds what abort must restore.
type undoLog struct {
	trees  []*storage.Tree
	gens   map[*storeState]float64
	schema []func()
}

// Transaction groups requests over a fixed set of stores.
type Transaction struct {
	id         uuid.UUID
	f          *Factory
	db         *Database
	mode       Mode
	scope      []string
	durability string

	state     TxState
	started   bool
	active    bool
	scheduled bool
	queue     []*Request
	doomed    error
	err       error
	undo      undoLog
	handles   map[*storeState]*ObjectStore
	begun     time.Time
	executed  int

	onComplete  []func(*Transaction)
	onAbort     []func(*Transaction)
	onError     []func(*Request)
	afterFinish func()
	done        chan struct{}
}

func newTransaction(f *Factory, db *Database, mode Mode, scope []string) *Transaction {
	tx := &Transaction{
		id:         uuid.Must(uuid.NewV7()),
		f:          f,
		db:         db,
		mode:       mode,
		scope:      scope,
		durability: "default",
		state:      TxActive,
		active:     true,
		undo:       undoLog{gens: make(map[*storeState]float64)},
		handles:    make(map[*storeState]*ObjectStore),
		begun:      time.Now(),
		done:       make(chan struct{}),
	}
	db.txns = append(db.txns, tx)
	db.st.txns[tx.id] = tx
	f.fresh = append(f.fresh, tx)
	f.live = append(f.live, tx)

	if db.st.locks.Acquire(tx.id, scope, mode.lock()) {
		tx.started = true
	} else {
		f.metrics.RecordLockWait()
	}
	db.st.log.Debug("transaction begin").
		Str("txn", tx.id.String()).
		Str("mode", mode.String()).
		Strs("scope", scope).
		Bool("waiting", !tx.started).
		Send()
	return tx
}

func (tx *Transaction) ID() string          { return tx.id.String() }
func (tx *Transaction) Mode() Mode          { return tx.mode }
func (tx *Transaction) State() TxState      { return tx.state }
func (tx *Transaction) Database() *Database { return tx.db }
func (tx *Transaction) Durability() string  { return tx.durability }

// Err returns the error that aborted the transaction. It is nil for a
// commit or an explicit Abort.
func (tx *Transaction) Err() error { return tx.err }

// Done is closed once the transaction has committed or aborted.
func (tx *Transaction) Done() <-chan struct{} { return tx.done }

// Await blocks until the transaction finishes. It returns nil on commit.
func (tx *Transaction) Await(ctx context.Context) error {
	select {
	case <-tx.done:
	default:
		select {
		case <-tx.done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if tx.state == TxCommitted {
		return nil
	}
	if tx.err != nil {
		return tx.err
	}
	return newError(ErrAbort, "transaction aborted")
}

// ObjectStoreNames lists the stores in scope.
func (tx *Transaction) ObjectStoreNames() []string {
	if tx.mode == VersionChange {
		return tx.db.st.storeNames()
	}
	return slices.Clone(tx.scope)
}

func (tx *Transaction) OnComplete(fn func(*Transaction)) { tx.onComplete = append(tx.onComplete, fn) }
func (tx *Transaction) OnAbort(fn func(*Transaction))    { tx.onAbort = append(tx.onAbort, fn) }

// OnError registers fn for every failed request of the transaction that
// its own listeners did not acknowledge. fn may still acknowledge it.
func (tx *Transaction) OnError(fn func(*Request)) { tx.onError = append(tx.onError, fn) }

// ObjectStore returns a handle on a store in scope.
func (tx *Transaction) ObjectStore(name string) (*ObjectStore, error) {
	if tx.state.Finished() {
		return nil, newError(ErrInvalidState, "transaction has finished")
	}
	ss, ok := tx.db.st.stores[name]
	if !ok {
		return nil, newError(ErrNotFound, "object store %q", name)
	}
	if tx.mode != VersionChange && !slices.Contains(tx.scope, name) {
		return nil, newError(ErrScope, "object store %q is outside the transaction scope", name)
	}
	return tx.storeHandle(ss), nil
}

func (tx *Transaction) storeHandle(ss *storeState) *ObjectStore {
	if h, ok := tx.handles[ss]; ok {
		return h
	}
	h := &ObjectStore{tx: tx, ss: ss, indexes: make(map[*indexState]*Index)}
	tx.handles[ss] = h
	return h
}

// Abort rolls the transaction back.
func (tx *Transaction) Abort() error {
	if tx.state != TxActive {
		return newError(ErrInvalidState, "transaction is %s", tx.state)
	}
	tx.abort(nil)
	return nil
}

// issue submits r. A transaction that cannot take requests fails r in a
// later turn without being affected; otherwise r joins the queue, and a
// non-nil err becomes its outcome when it runs.
func (tx *Transaction) issue(r *Request, err error) *Request {
	var reject error
	switch {
	case tx.state != TxActive:
		reject = newError(ErrInvalidState, "transaction is %s", tx.state)
	case !tx.active:
		reject = newError(ErrTransactionInactive, "transaction is not active")
	}
	if reject != nil {
		tx.f.post(func() { r.complete(nil, reject) })
		return r
	}

	r.preset = err
	tx.queue = append(tx.queue, r)
	tx.schedule()
	return r
}

// writable returns the error for a write request in this transaction.
func (tx *Transaction) writable() error {
	if tx.mode == ReadOnly {
		return newError(ErrReadOnly, "transaction is read-only")
	}
	return nil
}

func (tx *Transaction) start() {
	tx.started = true
	tx.db.st.log.Debug("transaction granted").Str("txn", tx.id.String()).Send()
	tx.schedule()
}

func (tx *Transaction) schedule() {
	if !tx.started || tx.scheduled || tx.state != TxActive || len(tx.queue) == 0 {
		return
	}
	tx.scheduled = true
	tx.f.post(tx.step)
}

// step runs the oldest queued request.
func (tx *Transaction) step() {
	tx.scheduled = false
	if tx.state != TxActive || len(tx.queue) == 0 {
		return
	}
	r := tx.queue[0]
	tx.queue[0] = nil
	tx.queue = tx.queue[1:]
	tx.executed++
	r.execute()
	tx.schedule()
}

// touch opens an undo snapshot on a tree before its first write.
func (tx *Transaction) touch(t *storage.Tree) {
	if !t.InSnapshot() {
		t.Begin()
		tx.undo.trees = append(tx.undo.trees, t)
	}
}

// saveGen records a store's key generator before its first change.
func (tx *Transaction) saveGen(ss *storeState) {
	if _, ok := tx.undo.gens[ss]; !ok {
		tx.undo.gens[ss] = ss.gen
	}
}

// doom makes the transaction abort with err at the end of the turn.
func (tx *Transaction) doom(err error) {
	if tx.doomed == nil {
		tx.doomed = err
	}
}

func (tx *Transaction) commit() {
	if tx.state != TxActive {
		return
	}
	tx.state = TxCommitting
	for _, t := range tx.undo.trees {
		t.Commit()
	}
	tx.finish(TxCommitted, nil)
}

func (tx *Transaction) abort(err error) {
	if tx.state.Finished() {
		return
	}
	tx.state = TxAborted
	tx.err = err

	for _, t := range tx.undo.trees {
		t.Rollback()
	}
	for ss, gen := range tx.undo.gens {
		ss.gen = gen
	}
	for i := len(tx.undo.schema) - 1; i >= 0; i-- {
		tx.undo.schema[i]()
	}

	pending := tx.queue
	tx.queue = nil
	for _, r := range pending {
		r.complete(nil, newError(ErrAbort, "transaction aborted"))
	}
	tx.finish(TxAborted, err)
}

func (tx *Transaction) finish(state TxState, err error) {
	tx.state = state
	tx.undo = undoLog{}

	st := tx.db.st
	delete(st.txns, tx.id)
	tx.f.live = slices.DeleteFunc(tx.f.live, func(t *Transaction) bool { return t == tx })
	for _, id := range st.locks.Release(tx.id) {
		if next, ok := st.txns[id]; ok {
			next.start()
		}
	}

	outcome := state.String()
	tx.f.metrics.RecordTransaction(tx.mode.String(), outcome)
	st.log.LogTxn(tx.id.String(), tx.mode.String(), outcome, time.Since(tx.begun), tx.executed, err)

	close(tx.done)
	if state == TxCommitted {
		for _, fn := range tx.onComplete {
			fn(tx)
		}
	} else {
		for _, fn := range tx.onAbort {
			fn(tx)
		}
	}
	tx.db.txFinished(tx)
	if tx.afterFinish != nil {
		tx.afterFinish()
	}
}
