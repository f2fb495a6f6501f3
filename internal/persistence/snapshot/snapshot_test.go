package snapshot

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteReadSnapshot(t *testing.T) {
	path := Path(t.TempDir(), "overworld")
	in := SnapshotV1{
		Header:      Header{Version: Version, WorldID: "overworld", Tick: 1200},
		TickRate:    20,
		LastInspect: 1000,
		NextEntity:  7,
		Chunks: []ChunkV1{
			{CX: -1, CZ: 2, Loaded: true, Entities: []EntityV1{
				{ID: 3, Type: "ZOMBIE", RemoveWhenFarAway: true},
				{ID: 7, Type: "PIG", CustomName: "Wilbur", Tags: []string{"npc"}},
			}},
			{CX: 4, CZ: 4},
		},
	}
	require.NoError(t, WriteSnapshot(path, in))

	_, err := os.Stat(path + ".tmp")
	assert.True(t, os.IsNotExist(err), "temporary file is renamed away")

	out, err := ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, in.Header, out.Header)
	assert.Equal(t, uint64(7), out.NextEntity)
	require.Len(t, out.Chunks, 2)
	assert.Equal(t, in.Chunks[0], out.Chunks[0])
	assert.False(t, out.Chunks[1].Loaded)
}

func TestReadSnapshot_RejectsOtherVersions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "w.snap.zst")
	require.NoError(t, WriteSnapshot(path, SnapshotV1{Header: Header{Version: 99, WorldID: "w"}}))

	_, err := ReadSnapshot(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported snapshot version 99")
}

func TestReadSnapshot_Missing(t *testing.T) {
	_, err := ReadSnapshot(filepath.Join(t.TempDir(), "none.snap.zst"))
	assert.True(t, os.IsNotExist(err))
}
