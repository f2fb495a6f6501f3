// Package snapshot stores the state of an in-process world as a zstd
// compressed file: one JSON header line followed by a gob body.
package snapshot

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/klauspost/compress/zstd"
	"github.com/rotisserie/eris"
)

const Version = 1

type Header struct {
	Version int    `json:"version"`
	WorldID string `json:"world_id"`
	Tick    uint64 `json:"tick"`
}

type SnapshotV1 struct {
	Header Header `json:"header"`

	TickRate    int    `json:"tick_rate_hz"`
	LastInspect uint64 `json:"last_inspect_tick"`
	NextEntity  uint64 `json:"next_entity"`

	Chunks []ChunkV1 `json:"chunks"`
}

type ChunkV1 struct {
	CX       int        `json:"cx"`
	CZ       int        `json:"cz"`
	Loaded   bool       `json:"loaded"`
	Entities []EntityV1 `json:"entities"`
}

// EntityV1 keeps the type by name so a reordered type table does not corrupt
// older files.
type EntityV1 struct {
	ID                uint64   `json:"id"`
	Type              string   `json:"type"`
	CustomName        string   `json:"custom_name,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	RemoveWhenFarAway bool     `json:"remove_when_far_away"`
}

// Path is where a world's snapshot lives under the data directory.
func Path(dataDir, worldID string) string {
	return filepath.Join(dataDir, "snapshots", worldID+".snap.zst")
}

// WriteSnapshot writes to a temporary file and renames it into place.
func WriteSnapshot(path string, snap SnapshotV1) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return eris.Wrap(err, "create snapshot dir")
	}
	tmp := path + ".tmp"
	if err := writeFile(tmp, snap); err != nil {
		_ = os.Remove(tmp)
		return err
	}
	return eris.Wrap(os.Rename(tmp, path), "rename snapshot")
}

func writeFile(path string, snap SnapshotV1) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return eris.Wrap(err, "create snapshot")
	}
	defer f.Close()

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return eris.Wrap(err, "zstd writer")
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	hb, _ := json.Marshal(snap.Header)
	if _, err := bw.Write(append(hb, '\n')); err != nil {
		return eris.Wrap(err, "write header")
	}
	if err := gob.NewEncoder(bw).Encode(&snap); err != nil {
		return eris.Wrap(err, "gob encode")
	}
	if err := bw.Flush(); err != nil {
		return eris.Wrap(err, "flush snapshot")
	}
	if err := enc.Close(); err != nil {
		return eris.Wrap(err, "close zstd")
	}
	return eris.Wrap(f.Sync(), "sync snapshot")
}

func ReadSnapshot(path string) (SnapshotV1, error) {
	var snap SnapshotV1
	f, err := os.Open(path)
	if err != nil {
		return snap, err
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return snap, eris.Wrap(err, "zstd reader")
	}
	defer dec.Close()

	br := bufio.NewReaderSize(dec, 256*1024)

	line, err := br.ReadBytes('\n')
	if err != nil {
		return snap, eris.Wrap(err, "read header")
	}
	var h Header
	if err := json.Unmarshal(line, &h); err != nil {
		return snap, eris.Wrap(err, "decode header")
	}
	if h.Version != Version {
		return snap, eris.Errorf("unsupported snapshot version %d", h.Version)
	}

	if err := gob.NewDecoder(br).Decode(&snap); err != nil {
		return snap, eris.Wrap(err, "gob decode")
	}
	return snap, nil
}
