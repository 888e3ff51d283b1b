package idb

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

// openDB opens name at version and runs upgrade inside the version change
// transaction when one happens.
func openDB(t *testing.T, f *Factory, name string, version uint64, upgrade func(db *Database, tx *Transaction)) *Database {
	t.Helper()
	var (
		db  *Database
		err error
	)
	f.Do(func() {
		r := f.Open(name, version)
		r.OnUpgradeNeeded(func(r *OpenRequest, _ UpgradeEvent) {
			if upgrade != nil {
				upgrade(r.Database(), r.Transaction())
			}
		})
		r.OnComplete(func(r *Request) {
			db, _ = r.Result().(*Database)
			err = r.Err()
		})
	})
	require.NoError(t, err)
	require.NotNil(t, db)
	return db
}

func createStore(t *testing.T, db *Database, name string, opts StoreOptions) *ObjectStore {
	t.Helper()
	s, err := db.CreateObjectStore(name, opts)
	require.NoError(t, err)
	return s
}

func storeIn(t *testing.T, db *Database, mode Mode, name string) *ObjectStore {
	t.Helper()
	tx, err := db.Transaction([]string{name}, mode)
	require.NoError(t, err)
	s, err := tx.ObjectStore(name)
	require.NoError(t, err)
	return s
}

// peopleDB has a "people" store keyed by "id" with a unique "name" index.
func peopleDB(t *testing.T, f *Factory) *Database {
	return openDB(t, f, "people", 1, func(db *Database, _ *Transaction) {
		s := createStore(t, db, "people", StoreOptions{KeyPath: keys.Path("id")})
		_, err := s.CreateIndex("name", keys.Path("name"), IndexOptions{Unique: true})
		require.NoError(t, err)
	})
}

func person(id float64, name string) *value.Object {
	return value.ObjectOf("id", value.Number(id), "name", value.String(name))
}

func num(f float64) keys.Key { return keys.Number(f) }

func only(t *testing.T, k keys.Key) *keys.KeyRange {
	t.Helper()
	r, err := keys.Only(k)
	require.NoError(t, err)
	return r
}

// getValue reads one record in its own transaction.
func getValue(t *testing.T, f *Factory, db *Database, store string, k keys.Key) value.Value {
	t.Helper()
	var (
		got value.Value
		err error
	)
	f.Do(func() {
		storeIn(t, db, ReadOnly, store).Get(k).OnComplete(func(r *Request) {
			got, _ = r.Result().(value.Value)
			err = r.Err()
		})
	})
	require.NoError(t, err)
	return got
}

func countRecords(t *testing.T, f *Factory, db *Database, store string) int {
	t.Helper()
	n := -1
	f.Do(func() {
		storeIn(t, db, ReadOnly, store).Count(nil).OnSuccess(func(r *Request) {
			n = r.Result().(int)
		})
	})
	return n
}

// drain calls visit for every entry a cursor request walks over.
func drain(r *Request, visit func(*Cursor)) {
	var step func(*Request)
	step = func(r *Request) {
		c, ok := r.Result().(*Cursor)
		if !ok {
			return
		}
		visit(c)
		c.Continue(keys.None).OnSuccess(step)
	}
	r.OnSuccess(step)
}
