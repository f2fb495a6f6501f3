package indexdb

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
)

func TestSQLiteIndex_AggregatesOutcomes(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "usage.sqlite")

	idx, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)

	idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn, Decision: limiter.Decision{Reject: true, RejectKey: "ZOMBIE"}})
	idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn, Decision: limiter.Decision{Reject: true, RejectKey: "ZOMBIE"}})
	idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn})
	idx.Record(limiter.Outcome{
		World:   "world",
		Trigger: limiter.TriggerInspection,
		Decision: limiter.Decision{
			Removals: []uint64{1, 2, 3},
			Evictions: []limiter.Eviction{
				{Key: "ZOMBIE", Tracked: 7, Limit: 5, Removed: 2, Forced: 1},
				{Key: "ANIMAL", Tracked: 4, Limit: 3, Removed: 1},
			},
		},
		Applied: 3,
	})
	idx.Record(limiter.Outcome{World: "other", Trigger: limiter.TriggerChunkLoad})
	require.NoError(t, idx.Close())
	assert.Zero(t, idx.Dropped())

	// Records after Close are ignored.
	idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn})

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()
	ctx := context.Background()

	trig, err := r.TriggerStats(ctx, "world")
	require.NoError(t, err)
	require.Len(t, trig, 2)
	assert.Equal(t, "INSPECTION", trig[0].Trigger)
	assert.Equal(t, int64(1), trig[0].Count)
	assert.Equal(t, int64(3), trig[0].Removals)
	assert.Equal(t, "SPAWN", trig[1].Trigger)
	assert.Equal(t, int64(3), trig[1].Count)
	assert.Equal(t, int64(2), trig[1].Rejections)

	all, err := r.TriggerStats(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	keys, err := r.KeyStats(ctx, "world", 10)
	require.NoError(t, err)
	require.Len(t, keys, 2)
	assert.Equal(t, KeyStat{World: "world", Key: "ZOMBIE", Rejections: 2, Evictions: 1, Removals: 2, Forced: 1, UpdatedAt: keys[0].UpdatedAt}, keys[0])
	assert.Equal(t, "ANIMAL", keys[1].Key)
	assert.Equal(t, int64(1), keys[1].Removals)
}

func TestSQLiteIndex_RecordConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.sqlite")
	idx, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)

	store := tuning.NewStore("configs/spawnlimiter.yaml", tuning.Defaults(), []string{"w"})
	idx.RecordConfig(store.Current())
	idx.RecordConfig(store.Swap(tuning.Defaults(), nil))
	require.NoError(t, idx.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	cv, ok, err := r.LatestConfig(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int64(2), cv.Version)
	assert.Equal(t, "configs/spawnlimiter.yaml", cv.Path)
	assert.Len(t, cv.Digest, 64)
	assert.Zero(t, cv.Warnings)
}

func TestReader_EmptyIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "usage.sqlite")
	idx, err := OpenSQLite(path, zerolog.Nop())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	r, err := OpenReader(path)
	require.NoError(t, err)
	defer r.Close()

	_, ok, err := r.LatestConfig(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)

	keys, err := r.KeyStats(context.Background(), "", 0)
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestOpenSQLite_EmptyPath(t *testing.T) {
	_, err := OpenSQLite("", zerolog.Nop())
	require.Error(t, err)
}

func TestOpenReader_MissingIndex(t *testing.T) {
	path := filepath.Join(t.TempDir(), "index", "usage.sqlite")
	_, err := OpenReader(path)
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrNoIndex))
	assert.Contains(t, err.Error(), path)

	_, statErr := os.Stat(path)
	assert.True(t, os.IsNotExist(statErr), "reader must not create the file")
}

func TestSQLiteIndex_RecordDuringClose(t *testing.T) {
	idx, err := OpenSQLite(filepath.Join(t.TempDir(), "usage.sqlite"), zerolog.Nop())
	require.NoError(t, err)

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn})
			}
		}()
	}
	require.NoError(t, idx.Close())
	wg.Wait()

	// Recording after close is a no-op.
	idx.Record(limiter.Outcome{World: "world", Trigger: limiter.TriggerSpawn})
	idx.RecordConfig(tuning.NewStore("", tuning.Defaults(), nil).Current())
}
