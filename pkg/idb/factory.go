// ABOUTME: Factory is the catalog of databases and the engine's turn loop
// ABOUTME: Open and delete requests per name are processed in FIFO order

package idb

import (
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/puzpuzpuz/xsync/v3"

	"github.com/nainya/idbstore/internal/logger"
	"github.com/nainya/idbstore/internal/metrics"
	"github.com/nainya/idbstore/pkg/clone"
	"github.com/nainya/idbstore/pkg/keys"
)

// Factory owns every database of one engine instance.
//
// All engine calls happen inside Do: Do runs fn as one turn and then runs
// queued tasks, each a turn of its own, until nothing is left. Requests
// execute and deliver their callbacks in those later turns. Callbacks may
// issue more calls but must not call Do.
type Factory struct {
	mu    sync.Mutex
	tasks []func()

	dbs    *xsync.MapOf[string, *dbState]
	queues map[string][]*OpenRequest

	fresh []*Transaction // created during the current turn
	live  []*Transaction // not yet finished, in creation order

	cloner  *clone.Cloner
	log     *logger.Logger
	metrics *metrics.Metrics
}

// NewFactory returns an empty catalog.
func NewFactory(opts ...Option) *Factory {
	f := &Factory{
		dbs:    xsync.NewMapOf[string, *dbState](),
		queues: make(map[string][]*OpenRequest),
		log:    logger.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	if f.cloner == nil {
		f.cloner = clone.Install()
	}
	return f
}

// Do runs fn and every task it causes. It returns once the engine is idle.
func (f *Factory) Do(fn func()) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.turn(fn)
	for len(f.tasks) > 0 {
		task := f.tasks[0]
		f.tasks[0] = nil
		f.tasks = f.tasks[1:]
		f.turn(task)
	}
}

func (f *Factory) turn(fn func()) {
	fn()
	f.endTurn()
}

func (f *Factory) post(task func()) {
	f.tasks = append(f.tasks, task)
}

// endTurn closes the request window of transactions created this turn and
// commits every started transaction with nothing left to run.
func (f *Factory) endTurn() {
	for _, tx := range f.fresh {
		tx.active = false
	}
	f.fresh = f.fresh[:0]

	for _, tx := range slices.Clone(f.live) {
		if tx.state != TxActive {
			continue
		}
		if tx.doomed != nil {
			tx.abort(tx.doomed)
			continue
		}
		if tx.started && len(tx.queue) == 0 && !tx.scheduled {
			tx.commit()
		}
	}
	// finish listeners may have opened transactions; they need a turn end too
	if len(f.fresh) > 0 {
		f.post(func() {})
	}
}

// Open connects to name, creating or upgrading it to version. Version 0
// opens the current version, or 1 for a new database.
func (f *Factory) Open(name string, version uint64) *OpenRequest {
	r := newOpenRequest(f, name, version, false)
	f.post(func() { f.enqueue(r) })
	return r
}

// DeleteDatabase removes name once every connection to it has closed. The
// request resolves to the old version.
func (f *Factory) DeleteDatabase(name string) *OpenRequest {
	r := newOpenRequest(f, name, 0, true)
	f.post(func() { f.enqueue(r) })
	return r
}

// Cmp compares two keys, failing with a DataError if either is invalid.
func (f *Factory) Cmp(a, b keys.Key) (int, error) {
	if err := keys.Validate(a); err != nil {
		return 0, wrapError(ErrData, err, "first key")
	}
	if err := keys.Validate(b); err != nil {
		return 0, wrapError(ErrData, err, "second key")
	}
	return keys.Compare(a, b), nil
}

// DatabaseInfo names a database and its version.
type DatabaseInfo struct {
	Name    string
	Version uint64
}

// Databases lists the catalog by name. It may be called from any goroutine.
func (f *Factory) Databases() []DatabaseInfo {
	var out []DatabaseInfo
	f.dbs.Range(func(name string, st *dbState) bool {
		out = append(out, DatabaseInfo{Name: name, Version: st.version.Load()})
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

func (f *Factory) enqueue(r *OpenRequest) {
	f.queues[r.name] = append(f.queues[r.name], r)
	f.advance(r.name)
}

func (f *Factory) advance(name string) {
	q := f.queues[name]
	if len(q) == 0 {
		delete(f.queues, name)
		return
	}
	head := q[0]
	if head.running {
		return
	}
	head.running = true
	head.started = time.Now()
	if head.del {
		f.runDelete(head)
	} else {
		f.runOpen(head)
	}
}

// finish completes the head request for its name and moves to the next.
func (f *Factory) finish(r *OpenRequest, result any, err error) {
	q := f.queues[r.name]
	if len(q) > 0 && q[0] == r {
		f.queues[r.name] = q[1:]
	}
	r.complete(result, err)
	f.advance(r.name)
}

func (f *Factory) runOpen(r *OpenRequest) {
	st, existed := f.dbs.Load(r.name)
	var old uint64
	if existed {
		old = st.version.Load()
	}
	version := r.version
	if version == 0 {
		version = max(old, 1)
	}
	if version < old {
		err := newError(ErrVersion, "requested version %d is below current version %d", version, old)
		f.log.DbLogger(r.name).LogDbOperation("open", time.Since(r.started), old, err)
		f.finish(r, nil, err)
		return
	}
	if !existed {
		st = newDbState(r.name, f.log)
	}
	if version == old {
		conn := st.connect(f, version)
		st.log.LogDbOperation("open", time.Since(r.started), version, nil)
		f.finish(r, conn, nil)
		return
	}

	f.whenClosed(st, r, old, version, func() {
		f.upgrade(r, st, existed, old, version)
	})
}

func (f *Factory) runDelete(r *OpenRequest) {
	st, ok := f.dbs.Load(r.name)
	if !ok {
		f.finish(r, uint64(0), nil)
		return
	}
	old := st.version.Load()
	f.whenClosed(st, r, old, 0, func() {
		f.dbs.Delete(r.name)
		f.metrics.SetDatabases(f.dbs.Size())
		st.log.LogDbOperation("delete", time.Since(r.started), old, nil)
		f.finish(r, old, nil)
	})
}

// whenClosed asks the open connections of st to close and runs cont once
// none remain. If some stay open the request is told it is blocked.
func (f *Factory) whenClosed(st *dbState, r *OpenRequest, old, version uint64, cont func()) {
	ev := VersionChangeEvent{OldVersion: old, NewVersion: version}
	for _, conn := range slices.Clone(st.conns) {
		if !conn.closePending {
			conn.fireVersionChange(ev)
		}
	}
	if len(st.conns) == 0 {
		cont()
		return
	}

	kind := "open"
	if r.del {
		kind = "delete"
	}
	f.metrics.RecordBlocked(kind)
	st.log.Warn("blocked by open connections").
		Str("request", kind).
		Int("connections", len(st.conns)).
		Uint64("old_version", old).
		Uint64("new_version", version).
		Send()
	for _, fn := range r.onBlocked {
		fn(r, ev)
	}
	if len(st.conns) == 0 {
		cont()
		return
	}
	st.waiter = cont
}

// upgrade runs the version change transaction for r.
func (f *Factory) upgrade(r *OpenRequest, st *dbState, existed bool, old, version uint64) {
	if !existed {
		f.dbs.Store(st.name, st)
		f.metrics.SetDatabases(f.dbs.Size())
	}

	conn := st.connect(f, version)
	tx := newTransaction(f, conn, VersionChange, nil)
	st.version.Store(version)
	tx.undo.schema = append(tx.undo.schema, func() {
		st.version.Store(old)
		conn.version = old
	})
	conn.upgradeTx = tx
	r.tx = tx
	r.result = conn

	tx.afterFinish = func() {
		conn.upgradeTx = nil
		if tx.state == TxCommitted && !conn.closePending {
			st.log.LogDbOperation("upgrade", time.Since(r.started), version, nil)
			f.finish(r, conn, nil)
			return
		}

		r.result = nil
		conn.Close()
		if !existed && tx.state == TxAborted {
			f.dbs.Delete(st.name)
			f.metrics.SetDatabases(f.dbs.Size())
		}
		err := newError(ErrAbort, "version change to %d did not complete", version)
		st.log.LogDbOperation("upgrade", time.Since(r.started), old, err)
		f.finish(r, nil, err)
	}

	ev := UpgradeEvent{OldVersion: old, NewVersion: version}
	for _, fn := range r.onUpgrade {
		fn(r, ev)
	}
}
