package state

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

type record struct {
	Name  string
	Count uint64
	Flag  bool
}

func openTestManager(t *testing.T) *Manager {
	t.Helper()
	mgr, err := Open(filepath.Join(t.TempDir(), "ledger.db"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = mgr.Close() })
	return mgr
}

func TestKVPutGetRoundTrip(t *testing.T) {
	mgr := openTestManager(t)
	require.NoError(t, mgr.Update(func(tx *Tx) error {
		return tx.KVPut([]byte("record/1"), &record{Name: "alpha", Count: 3, Flag: true})
	}))

	var got record
	require.NoError(t, mgr.View(func(tx *Tx) error {
		ok, err := tx.KVGet([]byte("record/1"), &got)
		require.True(t, ok)
		return err
	}))
	require.Equal(t, record{Name: "alpha", Count: 3, Flag: true}, got)

	require.NoError(t, mgr.View(func(tx *Tx) error {
		ok, err := tx.KVGet([]byte("record/2"), &got)
		require.False(t, ok)
		return err
	}))
}

func TestUpdateRollsBackOnError(t *testing.T) {
	mgr := openTestManager(t)
	boom := errors.New("boom")
	err := mgr.Update(func(tx *Tx) error {
		if _, err := tx.NextCounter([]byte("counter")); err != nil {
			return err
		}
		if _, err := tx.KVAppend([]byte("list"), &record{Name: "x"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	require.NoError(t, mgr.View(func(tx *Tx) error {
		count, err := tx.Counter([]byte("counter"))
		require.NoError(t, err)
		require.Zero(t, count)
		length, err := tx.KVLen([]byte("list"))
		require.NoError(t, err)
		require.Zero(t, length)
		return nil
	}))
}

func TestAppendPreservesOrder(t *testing.T) {
	mgr := openTestManager(t)
	names := []string{"first", "second", "third"}
	require.NoError(t, mgr.Update(func(tx *Tx) error {
		for i, name := range names {
			idx, err := tx.KVAppend([]byte("list"), &record{Name: name})
			require.NoError(t, err)
			require.Equal(t, uint64(i), idx)
		}
		return nil
	}))

	var seen []string
	require.NoError(t, mgr.View(func(tx *Tx) error {
		return tx.KVIterate([]byte("list"), func(_ uint64, raw []byte) error {
			var rec record
			if err := DecodeRLP(raw, &rec); err != nil {
				return err
			}
			seen = append(seen, rec.Name)
			return nil
		})
	}))
	require.Equal(t, names, seen)

	var second record
	require.NoError(t, mgr.View(func(tx *Tx) error {
		ok, err := tx.KVGetAt([]byte("list"), 1, &second)
		require.True(t, ok)
		return err
	}))
	require.Equal(t, "second", second.Name)
}

func TestViewRejectsWrites(t *testing.T) {
	mgr := openTestManager(t)
	err := mgr.View(func(tx *Tx) error {
		return tx.KVPut([]byte("k"), &record{})
	})
	require.ErrorIs(t, err, ErrReadOnly)
}

func TestCountersStartAtOne(t *testing.T) {
	mgr := openTestManager(t)
	require.NoError(t, mgr.Update(func(tx *Tx) error {
		for want := uint64(1); want <= 3; want++ {
			got, err := tx.NextCounter([]byte("ids"))
			require.NoError(t, err)
			require.Equal(t, want, got)
		}
		return nil
	}))
}
