package world

import (
	"sort"

	"github.com/rotisserie/eris"

	"spawnlimiter.ai/internal/persistence/snapshot"
	"spawnlimiter.ai/internal/sim/entities"
)

// ExportSnapshot captures chunks, entities and counters. Queued player
// messages are not kept.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	keys := make([]ChunkKey, 0, len(w.chunks))
	for k := range w.chunks {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return chunkLess(keys[i], keys[j]) })

	snap := snapshot.SnapshotV1{
		Header: snapshot.Header{
			Version: snapshot.Version,
			WorldID: w.cfg.ID,
			Tick:    w.tick.Load(),
		},
		TickRate:    w.cfg.TickRateHz,
		LastInspect: w.lastInspect,
		NextEntity:  w.nextID,
		Chunks:      make([]snapshot.ChunkV1, 0, len(keys)),
	}
	for _, k := range keys {
		c := w.chunks[k]
		cv := snapshot.ChunkV1{CX: k.CX, CZ: k.CZ, Loaded: c.loaded, Entities: make([]snapshot.EntityV1, 0, len(c.ents))}
		for _, e := range c.ents {
			cv.Entities = append(cv.Entities, snapshot.EntityV1{
				ID:                e.ID,
				Type:              e.Type.String(),
				CustomName:        e.CustomName,
				Tags:              append([]string(nil), e.Tags...),
				RemoveWhenFarAway: e.RemoveWhenFarAway,
			})
		}
		snap.Chunks = append(snap.Chunks, cv)
	}
	return snap
}

// RestoreSnapshot replaces the world state. No limiter evaluation runs; the
// next inspection or chunk event applies the current limits.
func (w *World) RestoreSnapshot(snap snapshot.SnapshotV1) error {
	if snap.Header.WorldID != w.cfg.ID {
		return eris.Errorf("snapshot is for world %q, not %q", snap.Header.WorldID, w.cfg.ID)
	}
	chunks := make(map[ChunkKey]*chunk, len(snap.Chunks))
	where := map[uint64]ChunkKey{}
	maxID := snap.NextEntity
	for _, cv := range snap.Chunks {
		k := ChunkKey{CX: cv.CX, CZ: cv.CZ}
		if _, dup := chunks[k]; dup {
			return eris.Errorf("duplicate chunk %d,%d", k.CX, k.CZ)
		}
		c := &chunk{key: k, loaded: cv.Loaded, ents: make([]entities.Entity, 0, len(cv.Entities))}
		for _, ev := range cv.Entities {
			if _, dup := where[ev.ID]; dup || ev.ID == 0 {
				return eris.Errorf("bad entity id %d in chunk %d,%d", ev.ID, k.CX, k.CZ)
			}
			t, _ := entities.ParseType(ev.Type)
			c.ents = append(c.ents, entities.Entity{
				ID:                ev.ID,
				Type:              t,
				CustomName:        ev.CustomName,
				Tags:              ev.Tags,
				RemoveWhenFarAway: ev.RemoveWhenFarAway,
			})
			where[ev.ID] = k
			if ev.ID > maxID {
				maxID = ev.ID
			}
		}
		chunks[k] = c
	}

	w.chunks = chunks
	w.where = where
	w.nextID = maxID
	w.outbox = map[uint64][]string{}
	w.tick.Store(snap.Header.Tick)
	w.lastInspect = snap.LastInspect
	if w.lastInspect > snap.Header.Tick {
		w.lastInspect = snap.Header.Tick
	}
	w.log.Info().
		Uint64("tick", snap.Header.Tick).
		Int("chunks", len(chunks)).
		Int("entities", len(where)).
		Msg("snapshot restored")
	return nil
}
