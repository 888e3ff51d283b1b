// ABOUTME: String-keyed value cache kept in a single object store
// ABOUTME: Blocking, context-aware calls layered on the idb request API

package keyval

import (
	"context"
	"fmt"
	"slices"

	"github.com/nainya/idbstore/pkg/idb"
	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

// Store keeps values under string keys in one object store. It is safe for
// concurrent use; every call is one engine transaction.
type Store struct {
	f     *idb.Factory
	db    *idb.Database
	store string
}

// Open connects to database dbName and makes sure it has an object store
// named store, upgrading the database by one version when it does not.
func Open(ctx context.Context, f *idb.Factory, dbName, store string) (*Store, error) {
	db, err := connect(ctx, f, dbName, 0, store)
	if err != nil {
		return nil, err
	}
	if !slices.Contains(db.ObjectStoreNames(), store) {
		next := db.Version() + 1
		f.Do(db.Close)
		if db, err = connect(ctx, f, dbName, next, store); err != nil {
			return nil, err
		}
	}

	s := &Store{f: f, db: db, store: store}
	f.Do(func() {
		// step aside for upgrades from other stores sharing the database
		db.OnVersionChange(func(db *idb.Database, _ idb.VersionChangeEvent) { db.Close() })
	})
	return s, nil
}

func connect(ctx context.Context, f *idb.Factory, name string, version uint64, store string) (*idb.Database, error) {
	var req *idb.OpenRequest
	f.Do(func() {
		req = f.Open(name, version)
		req.OnUpgradeNeeded(func(r *idb.OpenRequest, _ idb.UpgradeEvent) {
			db := r.Database()
			if slices.Contains(db.ObjectStoreNames(), store) {
				return
			}
			if _, err := db.CreateObjectStore(store, idb.StoreOptions{}); err != nil {
				_ = r.Transaction().Abort()
			}
		})
	})
	res, err := req.Await(ctx)
	if err != nil {
		return nil, fmt.Errorf("keyval: open %q: %w", name, err)
	}
	return res.(*idb.Database), nil
}

// run issues requests from fn inside one transaction and waits for it to
// finish. A failed request aborts the transaction with its error.
func (s *Store) run(ctx context.Context, mode idb.Mode, fn func(*idb.ObjectStore) *idb.Request) (*idb.Request, error) {
	var (
		req *idb.Request
		tx  *idb.Transaction
		err error
	)
	s.f.Do(func() {
		tx, err = s.db.Transaction([]string{s.store}, mode)
		if err != nil {
			return
		}
		var st *idb.ObjectStore
		if st, err = tx.ObjectStore(s.store); err != nil {
			return
		}
		req = fn(st)
	})
	if err != nil {
		return nil, fmt.Errorf("keyval: %w", err)
	}
	if err := tx.Await(ctx); err != nil {
		return req, fmt.Errorf("keyval: %w", err)
	}
	return req, nil
}

// Get returns the value under key, or nil.
func (s *Store) Get(ctx context.Context, key string) (value.Value, error) {
	req, err := s.run(ctx, idb.ReadOnly, func(st *idb.ObjectStore) *idb.Request {
		return st.Get(keys.String(key))
	})
	if err != nil {
		return nil, err
	}
	v, _ := req.Result().(value.Value)
	return v, nil
}

// Set stores a copy of v under key.
func (s *Store) Set(ctx context.Context, key string, v value.Value) error {
	_, err := s.run(ctx, idb.ReadWrite, func(st *idb.ObjectStore) *idb.Request {
		return st.Put(v, keys.String(key))
	})
	return err
}

// SetMany stores every entry in one transaction; either all are written or
// none are.
func (s *Store) SetMany(ctx context.Context, entries map[string]value.Value) error {
	names := make([]string, 0, len(entries))
	for k := range entries {
		names = append(names, k)
	}
	slices.Sort(names)

	_, err := s.run(ctx, idb.ReadWrite, func(st *idb.ObjectStore) *idb.Request {
		var last *idb.Request
		for _, k := range names {
			last = st.Put(entries[k], keys.String(k))
		}
		return last
	})
	return err
}

// Del removes key. Removing a missing key is not an error.
func (s *Store) Del(ctx context.Context, key string) error {
	_, err := s.run(ctx, idb.ReadWrite, func(st *idb.ObjectStore) *idb.Request {
		return st.Delete(keys.String(key))
	})
	return err
}

// Keys lists every key in order.
func (s *Store) Keys(ctx context.Context) ([]string, error) {
	req, err := s.run(ctx, idb.ReadOnly, func(st *idb.ObjectStore) *idb.Request {
		return st.GetAllKeys(nil, 0)
	})
	if err != nil {
		return nil, err
	}
	ks, _ := req.Result().([]keys.Key)
	out := make([]string, 0, len(ks))
	for _, k := range ks {
		if k.Kind() == keys.KindString {
			out = append(out, k.Str())
		}
	}
	return out, nil
}

// Len counts the stored entries.
func (s *Store) Len(ctx context.Context) (int, error) {
	req, err := s.run(ctx, idb.ReadOnly, func(st *idb.ObjectStore) *idb.Request {
		return st.Count(nil)
	})
	if err != nil {
		return 0, err
	}
	return req.Result().(int), nil
}

// Clear removes every entry.
func (s *Store) Clear(ctx context.Context) error {
	_, err := s.run(ctx, idb.ReadWrite, func(st *idb.ObjectStore) *idb.Request {
		return st.Clear()
	})
	return err
}

// Close releases the connection.
func (s *Store) Close() {
	s.f.Do(s.db.Close)
}
