// Package world is an in-process host for the limiter. It owns chunks and the
// entities in them, feeds spawn and chunk events through the limiter and
// applies the resulting decisions.
//
// All state is owned by the goroutine running Run. Other goroutines reach it
// through Do or Post. The direct methods (Spawn, LoadChunk, ...) must only be
// called from that goroutine or while the world is not running.
package world

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"spawnlimiter.ai/internal/sim/entities"
	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
)

var ErrUnknownEntity = eris.New("unknown entity")

type ChunkKey struct {
	CX int `json:"x"`
	CZ int `json:"z"`
}

func chunkLess(a, b ChunkKey) bool {
	if a.CX != b.CX {
		return a.CX < b.CX
	}
	return a.CZ < b.CZ
}

type chunk struct {
	key    ChunkKey
	loaded bool
	ents   []entities.Entity
}

// Timer receives the duration of an inspection pass.
type Timer interface {
	Timing(name string, start time.Time, tags []string)
}

type World struct {
	cfg   WorldConfig
	store *tuning.Store
	lim   *limiter.Limiter
	log   zerolog.Logger

	rec   limiter.Recorder
	timer Timer

	chunks map[ChunkKey]*chunk
	where  map[uint64]ChunkKey
	nextID uint64
	outbox map[uint64][]string

	tick        atomic.Uint64
	lastInspect uint64

	inbox    chan func(*World)
	stop     chan struct{}
	stopOnce sync.Once
	dropped  atomic.Uint64
}

func New(cfg WorldConfig, store *tuning.Store, logger zerolog.Logger) *World {
	cfg.applyDefaults()
	lg := logger.With().Str("component", "world").Str("world", cfg.ID).Logger()
	w := &World{
		cfg:    cfg,
		store:  store,
		lim:    limiter.New(logger),
		log:    lg,
		chunks: map[ChunkKey]*chunk{},
		where:  map[uint64]ChunkKey{},
		outbox: map[uint64][]string{},
		inbox:  make(chan func(*World), cfg.InboxSize),
		stop:   make(chan struct{}),
	}
	return w
}

// rescheduleOnSwap restarts the inspection period from each reload. Run
// holds the registration for as long as the loop drains the inbox.
func (w *World) rescheduleOnSwap() (unregister func()) {
	return w.store.OnSwap(func(prev, next *tuning.Snapshot) {
		w.Post(func(w *World) {
			w.lastInspect = w.tick.Load()
			w.log.Info().
				Uint64("version", next.Version).
				Int("inspection_frequency_sec", next.Tuning.Properties.InspectionFrequencySec).
				Msg("inspection rescheduled")
		})
	})
}

func (w *World) ID() string {
	if w == nil {
		return ""
	}
	return w.cfg.ID
}

func (w *World) TickRateHz() int { return w.cfg.TickRateHz }

func (w *World) CurrentTick() uint64 { return w.tick.Load() }

// SetRecorder installs the sink for evaluation outcomes.
func (w *World) SetRecorder(r limiter.Recorder) { w.rec = r }

func (w *World) SetTimer(t Timer) { w.timer = t }

func (w *World) rules() *limiter.Rules {
	return w.store.Current().Rules
}

func (w *World) properties() tuning.Properties {
	return w.store.Current().Tuning.Properties
}

func (w *World) chunkAt(key ChunkKey) *chunk {
	c := w.chunks[key]
	if c == nil {
		c = &chunk{key: key}
		w.chunks[key] = c
	}
	return c
}

func (w *World) add(c *chunk, e entities.Entity) uint64 {
	w.nextID++
	e.ID = w.nextID
	c.ents = append(c.ents, e)
	w.where[e.ID] = c.key
	return e.ID
}

// Despawn removes an entity from whichever chunk holds it.
func (w *World) Despawn(id uint64) error {
	key, ok := w.where[id]
	if !ok {
		return eris.Wrapf(ErrUnknownEntity, "entity %d", id)
	}
	c := w.chunks[key]
	for i := range c.ents {
		if c.ents[i].ID == id {
			c.ents = append(c.ents[:i], c.ents[i+1:]...)
			break
		}
	}
	delete(w.where, id)
	return nil
}

// Entity returns a copy of the entity with the given id.
func (w *World) Entity(id uint64) (entities.Entity, bool) {
	key, ok := w.where[id]
	if !ok {
		return entities.Entity{}, false
	}
	for _, e := range w.chunks[key].ents {
		if e.ID == id {
			return e, true
		}
	}
	return entities.Entity{}, false
}

// Snapshot returns the chunk as the limiter sees it.
func (w *World) Snapshot(key ChunkKey) (limiter.Chunk, bool) {
	c := w.chunks[key]
	if c == nil {
		return limiter.Chunk{}, false
	}
	return w.snapshot(c), true
}

func (w *World) snapshot(c *chunk) limiter.Chunk {
	return limiter.Chunk{
		World:    w.cfg.ID,
		X:        c.key.CX,
		Z:        c.key.CZ,
		Entities: append([]entities.Entity(nil), c.ents...),
	}
}

func (w *World) LoadedChunks() []ChunkKey {
	out := make([]ChunkKey, 0, len(w.chunks))
	for k, c := range w.chunks {
		if c.loaded {
			out = append(out, k)
		}
	}
	sort.Slice(out, func(i, j int) bool { return chunkLess(out[i], out[j]) })
	return out
}

func (w *World) notify(player uint64, text string) {
	w.outbox[player] = append(w.outbox[player], text)
}

// DrainMessages returns and clears the messages queued for a player.
func (w *World) DrainMessages(player uint64) []string {
	msgs := w.outbox[player]
	delete(w.outbox, player)
	return msgs
}

type Stats struct {
	Tick          uint64 `json:"tick"`
	Chunks        int    `json:"chunks"`
	LoadedChunks  int    `json:"loaded_chunks"`
	Entities      int    `json:"entities"`
	PendingNotes  int    `json:"pending_messages"`
	DroppedEvents uint64 `json:"dropped_events"`
}

func (w *World) Stats() Stats {
	s := Stats{
		Tick:          w.tick.Load(),
		Chunks:        len(w.chunks),
		Entities:      len(w.where),
		DroppedEvents: w.dropped.Load(),
	}
	for _, c := range w.chunks {
		if c.loaded {
			s.LoadedChunks++
		}
	}
	for _, msgs := range w.outbox {
		s.PendingNotes += len(msgs)
	}
	return s
}
