package idb

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/idbstore/pkg/keys"
	"github.com/nainya/idbstore/pkg/value"
)

func TestPutGetRoundTrip(t *testing.T) {
	f := NewFactory()
	db := openDB(t, f, "app", 1, func(db *Database, _ *Transaction) {
		createStore(t, db, "docs", StoreOptions{})
	})

	shared := value.ObjectOf("n", value.Number(1))
	doc := value.ObjectOf("a", shared, "b", shared)

	var putKey keys.Key
	f.Do(func() {
		storeIn(t, db, ReadWrite, "docs").
			Put(doc, keys.String("k")).
			OnSuccess(func(r *Request) { putKey = r.Result().(keys.Key) })
	})
	assert.True(t, keys.Equal(keys.String("k"), putKey))

	// the stored copy was taken when Put was called
	shared.Set("n", value.Number(2))

	got, ok := getValue(t, f, db, "docs", keys.String("k")).(*value.Object)
	require.True(t, ok)
	assert.NotSame(t, doc, got)
	a, _ := got.Get("a")
	b, _ := got.Get("b")
	assert.Same(t, a.(*value.Object), b.(*value.Object))
	n, _ := a.(*value.Object).Get("n")
	assert.Equal(t, value.Number(1), n)

	assert.Nil(t, getValue(t, f, db, "docs", keys.String("missing")))
}

func TestAddExistingKey(t *testing.T) {
	f := NewFactory()
	db := peopleDB(t, f)

	var (
		addErr error
		tx     *Transaction
	)
	f.Do(func() {
		s := storeIn(t, db, ReadWrite, "people")
		tx = s.Transaction()
		s.Add(person(1, "ann"), keys.None)
		s.Add(person(1, "bob"), keys.None).OnError(func(r *Request) {
			addErr = r.Err()
			r.AcknowledgeError()
		})
	})

	assert.ErrorIs(t, addErr, ErrConstraint)
	assert.Equal(t, TxCommitted, tx.State())
	name, _ := getValue(t, f, db, "people", num(1)).(*value.Object).Get("name")
	assert.Equal(t, value.String("ann"), name)
}

func TestAutoIncrement(t *testing.T) {
	f := NewFactory()
	db := openDB(t, f, "app", 1, func(db *Database, _ *Transaction) {
		createStore(t, db, "items", StoreOptions{KeyPath: keys.Path("id"), AutoIncrement: true})
		createStore(t, db, "log", StoreOptions{AutoIncrement: true})
	})

	var got []keys.Key
	record := func(r *Request) { got = append(got, r.Result().(keys.Key)) }
	first := value.ObjectOf("name", value.String("first"))
	f.Do(func() {
		s := storeIn(t, db, ReadWrite, "items")
		s.Put(first, keys.None).OnSuccess(record)
		s.Put(value.ObjectOf("name", value.String("second")), keys.None).OnSuccess(record)
		s.Put(value.ObjectOf("id", value.Number(10)), keys.None).OnSuccess(record)
		s.Put(value.ObjectOf("name", value.String("after")), keys.None).OnSuccess(record)
	})
	require.Len(t, got, 4)
	for i, want := range []float64{1, 2, 10, 11} {
		assert.Equal(t, want, got[i].Num())
	}

	// the generated key is written into the stored copy only
	_, ok := first.Get("id")
	assert.False(t, ok)
	id, _ := getValue(t, f, db, "items", num(2)).(*value.Object).Get("id")
	assert.Equal(t, value.Number(2), id)

	got = nil
	f.Do(func() {
		s := storeIn(t, db, ReadWrite, "log")
		s.Add(value.String("a"), keys.None).OnSuccess(record)
		s.Add(value.String("b"), keys.String("named")).OnSuccess(record)
		s.Add(value.String("c"), keys.None).OnSuccess(record)
	})
	require.Len(t, got, 3)
	assert.Equal(t, 1.0, got[0].Num())
	assert.Equal(t, "named", got[1].Str())
	assert.Equal(t, 2.0, got[2].Num())
}

func TestPutKeyRules(t *testing.T) {
	f := NewFactory()
	db := openDB(t, f, "app", 1, func(db *Database, _ *Transaction) {
		createStore(t, db, "inline", StoreOptions{KeyPath: keys.Path("id")})
		createStore(t, db, "outline", StoreOptions{})
	})

	tests := []struct {
		name  string
		store string
		value value.Value
		key   keys.Key
		want  error
	}{
		{"explicit key on inline store", "inline", person(1, "a"), num(1), ErrData},
		{"missing inline key", "inline", value.ObjectOf("name", value.String("a")), keys.None, ErrData},
		{"inline key not a key", "inline", value.ObjectOf("id", value.Bool(true)), keys.None, ErrData},
		{"missing outline key", "outline", value.String("a"), keys.None, ErrData},
		{"invalid outline key", "outline", value.String("a"), keys.Array(keys.None), ErrData},
		{"uncloneable value", "outline", value.ObjectOf("fn", &value.Function{Name: "f"}), num(1), ErrDataClone},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var (
				err error
				tx  *Transaction
			)
			f.Do(func() {
				s := storeIn(t, db, ReadWrite, tt.store)
				tx = s.Transaction()
				s.Put(tt.value, tt.key).OnError(func(r *Request) { err = r.Err() })
			})
			assert.ErrorIs(t, err, tt.want)
			assert.Equal(t, TxAborted, tx.State())
			assert.ErrorIs(t, tx.Err(), tt.want)
		})
	}
}

func TestReadOnlyRejectsWrites(t *testing.T) {
	f := NewFactory()
	db := peopleDB(t, f)

	var errs []error
	collect := func(r *Request) {
		errs = append(errs, r.Err())
		r.AcknowledgeError()
	}
	f.Do(func() {
		s := storeIn(t, db, ReadOnly, "people")
		s.Put(person(1, "a"), keys.None).OnError(collect)
		s.Delete(num(1)).OnError(collect)
		s.Clear().OnError(collect)
	})
	require.Len(t, errs, 3)
	for _, err := range errs {
		assert.ErrorIs(t, err, ErrReadOnly)
	}
}

func TestRangeOperations(t *testing.T) {
	f := NewFactory()
	db := peopleDB(t, f)
	f.Do(func() {
		s := storeIn(t, db, ReadWrite, "people")
		for i, name := range []string{"a", "b", "c", "d", "e"} {
			s.Put(person(float64(i+1), name), keys.None)
		}
	})

	r, err := keys.Bound(num(2), num(4), false, true)
	require.NoError(t, err)

	var (
		all     []value.Value
		pks     []keys.Key
		limited []keys.Key
		count   int
		first   keys.Key
	)
	f.Do(func() {
		s := storeIn(t, db, ReadOnly, "people")
		s.GetAll(r, 0).OnSuccess(func(q *Request) { all = q.Result().([]value.Value) })
		s.GetAllKeys(nil, 0).OnSuccess(func(q *Request) { pks = q.Result().([]keys.Key) })
		s.GetAllKeys(nil, 2).OnSuccess(func(q *Request) { limited = q.Result().([]keys.Key) })
		s.Count(r).OnSuccess(func(q *Request) { count = q.Result().(int) })
		s.GetKey(r).OnSuccess(func(q *Request) { first = q.Result().(keys.Key) })
	})
	require.Len(t, all, 2)
	name, _ := all[1].(*value.Object).Get("name")
	assert.Equal(t, value.String("c"), name)
	assert.Len(t, pks, 5)
	assert.Len(t, limited, 2)
	assert.Equal(t, 2, count)
	assert.Equal(t, 2.0, first.Num())

	f.Do(func() {
		s := storeIn(t, db, ReadWrite, "people")
		s.DeleteRange(r)
		s.Delete(num(5))
	})
	assert.Equal(t, 2, countRecords(t, f, db, "people"))

	// deleted records leave the index too
	var key any
	f.Do(func() {
		s := storeIn(t, db, ReadOnly, "people")
		ix, err := s.Index("name")
		require.NoError(t, err)
		ix.GetKey(keys.String("b")).OnSuccess(func(q *Request) { key = q.Result() })
	})
	assert.Nil(t, key)

	f.Do(func() { storeIn(t, db, ReadWrite, "people").Clear() })
	assert.Equal(t, 0, countRecords(t, f, db, "people"))
}

func TestLargeValues(t *testing.T) {
	f := NewFactory()
	db := openDB(t, f, "app", 1, func(db *Database, _ *Transaction) {
		createStore(t, db, "blobs", StoreOptions{})
	})
	big := make([]byte, 64<<10)
	for i := range big {
		big[i] = byte(i)
	}
	f.Do(func() {
		storeIn(t, db, ReadWrite, "blobs").Put(value.NewBinary(big), num(1))
	})
	got, ok := getValue(t, f, db, "blobs", num(1)).(*value.Binary)
	require.True(t, ok)
	assert.True(t, value.Equal(value.NewBinary(big), got))
}
