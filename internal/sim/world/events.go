package world

import (
	"time"

	"spawnlimiter.ai/internal/sim/entities"
	"spawnlimiter.ai/internal/sim/limiter"
)

// Spawn tries to create e in the chunk at key. When spawn watching is on the
// limiter decides admission first; a rejected creature is never created and
// the returned id is 0.
func (w *World) Spawn(key ChunkKey, e entities.Entity) (uint64, limiter.Decision) {
	c := w.chunkAt(key)
	c.loaded = true
	e.ID = 0

	snap := w.store.Current()
	if !snap.Tuning.Properties.WatchCreatureSpawns {
		return w.add(c, e), limiter.Decision{}
	}
	d := w.lim.Evaluate(w.snapshot(c), &e, snap.Rules)
	w.record(c.key, limiter.TriggerSpawn, d, 0)
	if d.Reject {
		w.log.Debug().
			Str("type", e.Type.String()).
			Str("key", d.RejectKey).
			Int("x", key.CX).
			Int("z", key.CZ).
			Msg("spawn refused")
		return 0, d
	}
	return w.add(c, e), d
}

// LoadChunk marks the chunk loaded, adds ents to it (ids are reassigned) and
// sweeps it when load checks are enabled.
func (w *World) LoadChunk(key ChunkKey, ents ...entities.Entity) ([]uint64, limiter.Decision) {
	c := w.chunkAt(key)
	c.loaded = true
	ids := make([]uint64, 0, len(ents))
	for _, e := range ents {
		ids = append(ids, w.add(c, e))
	}
	if !w.properties().CheckChunkLoad {
		return ids, limiter.Decision{}
	}
	return ids, w.sweep(c, limiter.TriggerChunkLoad)
}

// UnloadChunk sweeps the chunk when unload checks are enabled, then marks it
// unloaded. Its surviving entities stay stored with it.
func (w *World) UnloadChunk(key ChunkKey) limiter.Decision {
	c := w.chunks[key]
	if c == nil || !c.loaded {
		return limiter.Decision{}
	}
	var d limiter.Decision
	if w.properties().CheckChunkUnload {
		d = w.sweep(c, limiter.TriggerChunkUnload)
	}
	c.loaded = false
	return d
}

// Inspect sweeps every loaded chunk in coordinate order and returns the number
// of entities removed. It does nothing while active inspections are off.
func (w *World) Inspect() int {
	if !w.properties().ActiveInspections {
		return 0
	}
	start := time.Now()
	removed := 0
	for _, key := range w.LoadedChunks() {
		d := w.sweep(w.chunks[key], limiter.TriggerInspection)
		removed += len(d.Removals)
	}
	if w.timer != nil {
		w.timer.Timing("inspection", start, []string{"world:" + w.cfg.ID})
	}
	w.log.Debug().Int("removed", removed).Dur("took", time.Since(start)).Msg("inspection done")
	return removed
}

// Sweep evaluates one chunk immediately regardless of the listener toggles.
func (w *World) Sweep(key ChunkKey, trigger limiter.Trigger) limiter.Decision {
	c := w.chunks[key]
	if c == nil {
		return limiter.Decision{}
	}
	return w.sweep(c, trigger)
}

func (w *World) sweep(c *chunk, trigger limiter.Trigger) limiter.Decision {
	d := w.lim.Evaluate(w.snapshot(c), nil, w.rules())
	applied, err := limiter.Apply(d, limiter.RemoverFunc(w.Despawn), limiter.NotifierFunc(w.notify))
	if err != nil {
		w.log.Warn().Err(err).Int("x", c.key.CX).Int("z", c.key.CZ).Msg("removal failed")
	}
	w.record(c.key, trigger, d, applied)
	return d
}

func (w *World) record(key ChunkKey, trigger limiter.Trigger, d limiter.Decision, applied int) {
	if w.rec == nil {
		return
	}
	w.rec.Record(limiter.Outcome{
		World:    w.cfg.ID,
		X:        key.CX,
		Z:        key.CZ,
		Trigger:  trigger,
		Decision: d,
		Applied:  applied,
	})
}

// inspectionPeriodTicks converts the configured frequency to ticks.
func (w *World) inspectionPeriodTicks() uint64 {
	sec := w.properties().InspectionFrequencySec
	if sec <= 0 {
		sec = 1
	}
	return uint64(sec) * uint64(w.cfg.TickRateHz)
}

// Step advances one tick and runs the inspection when its period has elapsed.
func (w *World) Step() {
	now := w.tick.Add(1)
	if now-w.lastInspect >= w.inspectionPeriodTicks() {
		w.lastInspect = now
		w.Inspect()
	}
}
