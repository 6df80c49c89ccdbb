package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/unvoidf/sigscan/pkg/core"
)

func newTestStore(t *testing.T) *BuntCooldownStore {
	t.Helper()
	store, err := CooldownFromMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestBuntCooldownStore_PutGet(t *testing.T) {
	store := newTestStore(t)

	entry, err := store.Get("BTCUSDT")
	require.NoError(t, err)
	require.Nil(t, entry)

	now := time.Now().Unix()
	require.NoError(t, store.Put(core.CooldownEntry{
		Symbol: "BTCUSDT", Direction: core.DirectionLong, Confidence: 0.7,
		SignalAt: now, UpdatedAt: now,
	}))

	entry, err = store.Get("btcusdt")
	require.NoError(t, err)
	require.NotNil(t, entry)
	require.Equal(t, core.DirectionLong, entry.Direction)
	require.Equal(t, now, entry.SignalAt)
}

func TestBuntCooldownStore_PutReplaces(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().Unix()

	require.NoError(t, store.Put(core.CooldownEntry{Symbol: "BTCUSDT", Direction: core.DirectionLong, SignalAt: now, UpdatedAt: now}))
	require.NoError(t, store.Put(core.CooldownEntry{Symbol: "BTCUSDT", Direction: core.DirectionShort, SignalAt: now + 60, UpdatedAt: now + 60}))

	entry, err := store.Get("BTCUSDT")
	require.NoError(t, err)
	require.Equal(t, core.DirectionShort, entry.Direction)

	all, err := store.All()
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestBuntCooldownStore_DeleteOlderThan(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().Unix()

	require.NoError(t, store.Put(core.CooldownEntry{Symbol: "OLDUSDT", UpdatedAt: now - 1000, SignalAt: now - 1000}))
	require.NoError(t, store.Put(core.CooldownEntry{Symbol: "NEWUSDT", UpdatedAt: now, SignalAt: now}))

	removed, err := store.DeleteOlderThan(now - 500)
	require.NoError(t, err)
	require.Equal(t, 1, removed)

	old, err := store.Get("OLDUSDT")
	require.NoError(t, err)
	require.Nil(t, old)

	fresh, err := store.Get("NEWUSDT")
	require.NoError(t, err)
	require.NotNil(t, fresh)
}
