package keyval

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nainya/idbstore/pkg/idb"
	"github.com/nainya/idbstore/pkg/value"
)

func openStore(t *testing.T, f *idb.Factory, db, store string) *Store {
	t.Helper()
	s, err := Open(context.Background(), f, db, store)
	require.NoError(t, err)
	return s
}

func TestSetGetDel(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, idb.NewFactory(), "cache", "kv")
	defer s.Close()

	v, err := s.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, v)

	entry := value.ObjectOf("token", value.String("abc"), "ttl", value.Number(60))
	require.NoError(t, s.Set(ctx, "install", entry))
	// later changes to the caller's value are not stored
	entry.Set("token", value.String("changed"))

	got, err := s.Get(ctx, "install")
	require.NoError(t, err)
	token, _ := got.(*value.Object).Get("token")
	assert.Equal(t, value.String("abc"), token)

	require.NoError(t, s.Del(ctx, "install"))
	require.NoError(t, s.Del(ctx, "install"))
	got, err = s.Get(ctx, "install")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestKeysAndClear(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, idb.NewFactory(), "cache", "kv")
	defer s.Close()

	require.NoError(t, s.SetMany(ctx, map[string]value.Value{
		"b": value.Number(2),
		"a": value.Number(1),
		"c": value.Number(3),
	}))
	ks, err := s.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, ks)

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	require.NoError(t, s.Clear(ctx))
	ks, err = s.Keys(ctx)
	require.NoError(t, err)
	assert.Empty(t, ks)
}

func TestSetUncloneable(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, idb.NewFactory(), "cache", "kv")
	defer s.Close()

	err := s.Set(ctx, "fn", &value.Function{Name: "f"})
	assert.ErrorIs(t, err, idb.ErrDataClone)

	err = s.SetMany(ctx, map[string]value.Value{
		"ok":  value.Number(1),
		"bad": &value.Symbol{Description: "s"},
	})
	assert.ErrorIs(t, err, idb.ErrDataClone)
	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestStoresShareDatabase(t *testing.T) {
	ctx := context.Background()
	f := idb.NewFactory()

	first := openStore(t, f, "app", "settings")
	require.NoError(t, first.Set(ctx, "theme", value.String("dark")))

	// adding a second store upgrades the database and closes the first
	// connection
	second := openStore(t, f, "app", "flags")
	defer second.Close()
	require.NoError(t, second.Set(ctx, "beta", value.Bool(true)))
	assert.Equal(t, []idb.DatabaseInfo{{Name: "app", Version: 2}}, f.Databases())

	_, err := first.Get(ctx, "theme")
	assert.ErrorIs(t, err, idb.ErrInvalidState)

	again := openStore(t, f, "app", "settings")
	defer again.Close()
	got, err := again.Get(ctx, "theme")
	require.NoError(t, err)
	assert.Equal(t, value.String("dark"), got)
}

func TestConcurrentWriters(t *testing.T) {
	ctx := context.Background()
	s := openStore(t, idb.NewFactory(), "cache", "kv")
	defer s.Close()

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 25; i++ {
				key := fmt.Sprintf("w%d-%02d", w, i)
				assert.NoError(t, s.Set(ctx, key, value.Number(float64(i))))
			}
		}(w)
	}
	wg.Wait()

	n, err := s.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 200, n)
}

func TestCanceledContext(t *testing.T) {
	f := idb.NewFactory()
	blocker := openStore(t, f, "app", "a")
	defer blocker.Close()

	// keep the first connection from stepping aside
	var conn *idb.Database
	f.Do(func() {
		r := f.Open("app", 0)
		r.OnSuccess(func(r *idb.Request) { conn = r.Result().(*idb.Database) })
	})
	require.NotNil(t, conn)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Open(ctx, f, "app", "b")
	assert.ErrorIs(t, err, context.Canceled)
}
