package notify

import (
	"context"
	"math"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"supplynet/core/events"
	"supplynet/storage"
)

func TestHubJournalsAndReplays(t *testing.T) {
	hub, err := NewHub(storage.NewMemDB(), nil)
	require.NoError(t, err)
	hub.SetNowFunc(func() time.Time { return time.Unix(1_700_000_000, 0) })

	for i := uint64(1); i <= 3; i++ {
		hub.Emit(events.DeliveryRequested{RequestID: i})
	}
	require.Equal(t, uint64(3), hub.Head())

	all, err := hub.Replay(0, 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "REQ-1", all[0].Attributes["requestId"])
	require.Equal(t, "3", all[2].Cursor)
	require.Equal(t, int64(1_700_000_000), all[2].Timestamp)

	tail, err := hub.Replay(2, 10)
	require.NoError(t, err)
	require.Len(t, tail, 1)
	require.Equal(t, uint64(3), tail[0].Sequence)

	page, err := hub.Replay(0, 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func TestHubResumesSequenceFromLevelDB(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal")
	db, err := storage.NewLevelDB(path)
	require.NoError(t, err)
	hub, err := NewHub(db, nil)
	require.NoError(t, err)
	hub.Emit(events.DeliveryRequested{RequestID: 1})
	hub.Emit(events.DeliveryRequested{RequestID: 2})
	db.Close()

	db, err = storage.NewLevelDB(path)
	require.NoError(t, err)
	defer db.Close()
	reopened, err := NewHub(db, nil)
	require.NoError(t, err)
	require.Equal(t, uint64(2), reopened.Head())
	reopened.Emit(events.DeliveryRequested{RequestID: 3})

	entries, err := reopened.Replay(0, 0)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, "REQ-3", entries[2].Attributes["requestId"])
}

func TestHubSubscribeBacklogThenLive(t *testing.T) {
	hub, err := NewHub(storage.NewMemDB(), nil)
	require.NoError(t, err)
	hub.Emit(events.DeliveryRequested{RequestID: 1})
	hub.Emit(events.DeliveryRequested{RequestID: 2})

	ctx, cancelCtx := context.WithCancel(context.Background())
	defer cancelCtx()
	updates, cancel, backlog, err := hub.Subscribe(ctx, 1)
	require.NoError(t, err)
	defer cancel()
	require.Len(t, backlog, 1)
	require.Equal(t, uint64(2), backlog[0].Sequence)

	hub.Emit(events.DeliveryRequested{RequestID: 3})
	select {
	case n := <-updates:
		require.Equal(t, uint64(3), n.Sequence)
	case <-time.After(time.Second):
		t.Fatal("expected live notification")
	}

	cancel()
	_, open := <-updates
	require.False(t, open)
}

func TestParseCursor(t *testing.T) {
	seq, err := ParseCursor(" ")
	require.NoError(t, err)
	require.Zero(t, seq)
	seq, err = ParseCursor("42")
	require.NoError(t, err)
	require.Equal(t, uint64(42), seq)
	_, err = ParseCursor("abc")
	require.Error(t, err)
}

func TestHubMaxCursorReadsNothing(t *testing.T) {
	hub, err := NewHub(storage.NewMemDB(), nil)
	require.NoError(t, err)
	hub.Emit(events.DeliveryRequested{RequestID: 1})
	hub.Emit(events.DeliveryRequested{RequestID: 2})

	cursor, err := ParseCursor("18446744073709551615")
	require.NoError(t, err)
	require.Equal(t, uint64(math.MaxUint64), cursor)

	page, err := hub.Replay(cursor, 0)
	require.NoError(t, err)
	require.Empty(t, page)

	updates, cancel, backlog, err := hub.Subscribe(context.Background(), cursor)
	require.NoError(t, err)
	defer cancel()
	require.Empty(t, backlog)

	hub.Emit(events.DeliveryRequested{RequestID: 3})
	select {
	case n := <-updates:
		require.Equal(t, uint64(3), n.Sequence)
	case <-time.After(time.Second):
		t.Fatal("expected live notification")
	}
}
