// ABOUTME: Database connections, their shared per-name state and open requests
// ABOUTME: Schema changes go through the connection's version change transaction

package idb

import (
	"slices"
	"sort"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/idbstore/internal/lockmgr"
	"github.com/nainya/idbstore/internal/logger"
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/storage"
)

// dbState is one named database, shared by all its connections.
type dbState struct {
	name    string
	version atomic.Uint64
	stores  map[string]*storeState
	locks   *lockmgr.Manager
	conns   []*Database
	txns    map[uuid.UUID]*Transaction
	waiter  func()
	log     *logger.Logger
}

func newDbState(name string, log *logger.Logger) *dbState {
	return &dbState{
		name:   name,
		stores: make(map[string]*storeState),
		locks:  lockmgr.New(),
		txns:   make(map[uuid.UUID]*Transaction),
		log:    log.DbLogger(name),
	}
}

func (st *dbState) connect(f *Factory, version uint64) *Database {
	conn := &Database{
		f:       f,
		st:      st,
		id:      uuid.Must(uuid.NewV7()),
		version: version,
	}
	st.conns = append(st.conns, conn)
	f.metrics.AddConnections(1)
	return conn
}

func (st *dbState) storeNames() []string {
	names := make([]string, 0, len(st.stores))
	for name := range st.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// VersionChangeEvent describes a pending version change. NewVersion is 0
// when the database is being deleted.
type VersionChangeEvent struct {
	OldVersion uint64
	NewVersion uint64
}

// UpgradeEvent is delivered to OnUpgradeNeeded listeners.
type UpgradeEvent struct {
	OldVersion uint64
	NewVersion uint64
}

// OpenRequest is the request returned by Open and DeleteDatabase.
type OpenRequest struct {
	*Request
	name    string
	version uint64
	del     bool
	running bool
	started time.Time

	onUpgrade []func(*OpenRequest, UpgradeEvent)
	onBlocked []func(*OpenRequest, VersionChangeEvent)
}

func newOpenRequest(f *Factory, name string, version uint64, del bool) *OpenRequest {
	return &OpenRequest{
		Request: newRequest(f, nil, nil, "open"),
		name:    name,
		version: version,
		del:     del,
	}
}

// OnUpgradeNeeded registers fn to run inside the version change
// transaction. Schema changes are only possible there.
func (r *OpenRequest) OnUpgradeNeeded(fn func(*OpenRequest, UpgradeEvent)) *OpenRequest {
	r.onUpgrade = append(r.onUpgrade, fn)
	return r
}

// OnBlocked registers fn to run when other connections stay open after
// being asked to close.
func (r *OpenRequest) OnBlocked(fn func(*OpenRequest, VersionChangeEvent)) *OpenRequest {
	r.onBlocked = append(r.onBlocked, fn)
	return r
}

// Database returns the connection an open request resolved to. During an
// upgrade it returns the connection being upgraded.
func (r *OpenRequest) Database() *Database {
	db, _ := r.result.(*Database)
	return db
}

// Database is one connection to a named database.
type Database struct {
	f       *Factory
	st      *dbState
	id      uuid.UUID
	version uint64

	closePending bool
	closed       bool
	txns         []*Transaction
	upgradeTx    *Transaction

	onVersionChange []func(*Database, VersionChangeEvent)
	onClose         []func(*Database)
}

func (db *Database) Name() string    { return db.st.name }
func (db *Database) Version() uint64 { return db.version }

// ObjectStoreNames lists the stores in name order.
func (db *Database) ObjectStoreNames() []string {
	return db.st.storeNames()
}

// OnVersionChange registers fn to run when another request wants to
// upgrade or delete the database. Listeners usually call Close.
func (db *Database) OnVersionChange(fn func(*Database, VersionChangeEvent)) {
	db.onVersionChange = append(db.onVersionChange, fn)
}

// OnClose registers fn to run once the connection is fully closed.
func (db *Database) OnClose(fn func(*Database)) {
	db.onClose = append(db.onClose, fn)
}

func (db *Database) fireVersionChange(ev VersionChangeEvent) {
	for _, fn := range db.onVersionChange {
		fn(db, ev)
	}
}

// Transaction starts a transaction over the named stores.
func (db *Database) Transaction(scope []string, mode Mode, opts ...TxOption) (*Transaction, error) {
	if db.closePending {
		return nil, newError(ErrInvalidState, "connection is closing")
	}
	if db.upgradeTx != nil && db.upgradeTx.state == TxActive {
		return nil, newError(ErrInvalidState, "a version change transaction is running")
	}
	if mode != ReadOnly && mode != ReadWrite {
		return nil, newError(ErrInvalidAccess, "mode %s is not allowed here", mode)
	}
	if len(scope) == 0 {
		return nil, newError(ErrInvalidAccess, "empty scope")
	}
	names := slices.Clone(scope)
	sort.Strings(names)
	names = slices.Compact(names)
	for _, name := range names {
		if _, ok := db.st.stores[name]; !ok {
			return nil, newError(ErrNotFound, "object store %q", name)
		}
	}

	tx := newTransaction(db.f, db, mode, names)
	for _, opt := range opts {
		opt(tx)
	}
	return tx, nil
}

// Close closes the connection once its running transactions finish. New
// transactions are refused from now on.
func (db *Database) Close() {
	if db.closePending {
		return
	}
	db.closePending = true
	if len(db.txns) == 0 {
		db.finishClose()
	}
}

func (db *Database) finishClose() {
	if db.closed {
		return
	}
	db.closed = true
	st := db.st
	st.conns = slices.DeleteFunc(st.conns, func(c *Database) bool { return c == db })
	db.f.metrics.AddConnections(-1)
	for _, fn := range db.onClose {
		fn(db)
	}
	if st.waiter != nil && len(st.conns) == 0 {
		cont := st.waiter
		st.waiter = nil
		db.f.post(cont)
	}
}

func (db *Database) txFinished(tx *Transaction) {
	db.txns = slices.DeleteFunc(db.txns, func(t *Transaction) bool { return t == tx })
	if db.closePending && len(db.txns) == 0 {
		db.finishClose()
	}
}

// upgrading returns the running version change transaction or an error
// explaining why schema changes are not possible now.
func (db *Database) upgrading() (*Transaction, error) {
	tx := db.upgradeTx
	if tx == nil || tx.state != TxActive {
		return nil, newError(ErrInvalidState, "schema changes need a running version change transaction")
	}
	if !tx.active {
		return nil, newError(ErrTransactionInactive, "version change transaction is not active")
	}
	return tx, nil
}

// CreateObjectStore adds a store. It is only allowed during an upgrade.
func (db *Database) CreateObjectStore(name string, opts StoreOptions) (*ObjectStore, error) {
	tx, err := db.upgrading()
	if err != nil {
		return nil, err
	}
	if err := opts.KeyPath.Validate(); err != nil {
		return nil, wrapError(ErrSyntax, err, "object store %q", name)
	}
	if _, ok := db.st.stores[name]; ok {
		return nil, newError(ErrConstraint, "object store %q already exists", name)
	}
	if opts.AutoIncrement && !opts.KeyPath.IsNone() {
		if opts.KeyPath.IsCompound() || opts.KeyPath.Strings()[0] == "" {
			return nil, newError(ErrInvalidAccess, "autoIncrement needs a non-empty single key path")
		}
	}

	ss := &storeState{
		name:          name,
		keyPath:       opts.KeyPath,
		autoIncrement: opts.AutoIncrement,
		gen:           1,
		records:       storage.NewTree(),
		indexes:       make(map[string]*indexState),
	}
	db.st.stores[name] = ss
	tx.undo.schema = append(tx.undo.schema, func() {
		delete(db.st.stores, name)
		ss.deleted = true
	})
	db.st.log.Debug("object store created").Str("store", name).Send()
	return tx.storeHandle(ss), nil
}

// DeleteObjectStore removes a store and its indexes. It is only allowed
// during an upgrade.
func (db *Database) DeleteObjectStore(name string) error {
	tx, err := db.upgrading()
	if err != nil {
		return err
	}
	ss, ok := db.st.stores[name]
	if !ok {
		return newError(ErrNotFound, "object store %q", name)
	}
	delete(db.st.stores, name)
	ss.deleted = true
	tx.undo.schema = append(tx.undo.schema, func() {
		db.st.stores[name] = ss
		ss.deleted = false
	})
	return nil
}

// Cmp is Factory.Cmp for convenience in callbacks.
func (db *Database) Cmp(a, b keys.Key) (int, error) {
	return db.f.Cmp(a, b)
}
