// Package limiter decides which spawns to refuse and which entities to evict
// so that each chunk stays within its configured per-type and per-category caps.
//
// Evaluation is a pure function of the chunk snapshot, the optional candidate and
// the Rules. Applying the decision (removing entities, messaging players) is done
// by the caller through Apply.
package limiter

import (
	"github.com/rs/zerolog"

	"spawnlimiter.ai/internal/sim/entities"
)

// Chunk is a snapshot of one chunk. Entities are in natural enumeration order.
type Chunk struct {
	World    string            `json:"world"`
	X        int               `json:"x"`
	Z        int               `json:"z"`
	Entities []entities.Entity `json:"entities"`
}

type Notification struct {
	Recipients []uint64 `json:"recipients"`
	Text       string   `json:"text"`
}

// Eviction summarizes the removals made for one exceeded key.
type Eviction struct {
	Key     string `json:"key"`
	Tracked int    `json:"tracked"`
	Limit   int    `json:"limit"`
	Removed int    `json:"removed"`
	Forced  int    `json:"forced,omitempty"`
}

type Decision struct {
	Reject bool `json:"reject"`

	// RejectKey is the key whose cap refused the candidate.
	RejectKey string `json:"reject_key,omitempty"`

	// Removals lists entity IDs in removal order; each appears once.
	Removals      []uint64       `json:"removals,omitempty"`
	Notifications []Notification `json:"notifications,omitempty"`
	Evictions     []Eviction     `json:"evictions,omitempty"`
}

func (d Decision) Empty() bool {
	return !d.Reject && len(d.Removals) == 0 && len(d.Notifications) == 0
}

// Limiter carries the debug log hook. The zero value logs nothing.
type Limiter struct {
	log zerolog.Logger
}

func New(logger zerolog.Logger) *Limiter {
	return &Limiter{log: logger.With().Str("component", "limiter").Logger()}
}

// Evaluate runs one limiter pass without logging.
func Evaluate(chunk Chunk, candidate *entities.Entity, rules *Rules) Decision {
	l := Limiter{log: zerolog.Nop()}
	return l.Evaluate(chunk, candidate, rules)
}

// Evaluate decides admission of candidate when it is non-nil (chunk must not
// already count it), and otherwise computes the evictions that bring every
// configured key back within its limit.
func (l *Limiter) Evaluate(chunk Chunk, candidate *entities.Entity, rules *Rules) Decision {
	if rules == nil || rules.WorldExcluded(chunk.World) {
		return Decision{}
	}
	if candidate != nil && (candidate.IsPlayer() || candidate.HasAnyTag(rules.IgnoreMetadata)) {
		return Decision{}
	}

	tracked := classify(chunk, candidate, rules)

	if candidate != nil {
		return admit(*candidate, tracked, rules)
	}
	return l.evict(chunk, tracked, rules)
}

// classify walks the snapshot last-to-first and returns, per configured key,
// the snapshot indices of matching entities in that walk order.
func classify(chunk Chunk, candidate *entities.Entity, rules *Rules) map[string][]int {
	tracked := make(map[string][]int)
	for i := len(chunk.Entities) - 1; i >= 0; i-- {
		e := chunk.Entities[i]
		if e.IsPlayer() || e.HasAnyTag(rules.IgnoreMetadata) {
			continue
		}
		if candidate != nil && candidate.ID != 0 && e.ID == candidate.ID {
			continue
		}
		typeKey := e.Type.String()
		if _, ok := rules.Limits[typeKey]; ok {
			tracked[typeKey] = append(tracked[typeKey], i)
		}
		groupKey := e.Category().String()
		if _, ok := rules.Limits[groupKey]; ok {
			tracked[groupKey] = append(tracked[groupKey], i)
		}
	}
	return tracked
}

func admit(candidate entities.Entity, tracked map[string][]int, rules *Rules) Decision {
	for _, key := range []string{candidate.Type.String(), candidate.Category().String()} {
		limit, ok := rules.Limits[key]
		if !ok {
			continue
		}
		if len(tracked[key])+1 > limit {
			return Decision{Reject: true, RejectKey: key}
		}
	}
	return Decision{}
}

func (l *Limiter) evict(chunk Chunk, tracked map[string][]int, rules *Rules) Decision {
	var d Decision
	removed := make(map[int]bool)

	var players []uint64
	for i := len(chunk.Entities) - 1; i >= 0; i-- {
		if chunk.Entities[i].IsPlayer() {
			players = append(players, chunk.Entities[i].ID)
		}
	}

	for _, key := range rules.Keys() {
		list := tracked[key]
		limit := rules.Limits[key]

		// Entities already evicted for an earlier key no longer count.
		live := make([]int, 0, len(list))
		for _, idx := range list {
			if !removed[idx] {
				live = append(live, idx)
			}
		}
		if len(live) <= limit {
			continue
		}
		excess := len(live) - limit

		if rules.Debug {
			l.log.Debug().
				Str("world", chunk.World).
				Int("x", chunk.X).
				Int("z", chunk.Z).
				Str("key", key).
				Int("count", excess).
				Msgf("Removing %d %s @ %d %d", excess, key, chunk.X, chunk.Z)
		}
		if rules.NotifyPlayers && len(players) > 0 {
			d.Notifications = append(d.Notifications, Notification{
				Recipients: append([]uint64(nil), players...),
				Text:       rules.FormatRemoved(excess, key),
			})
		}

		ev := Eviction{Key: key, Tracked: len(live), Limit: limit}
		toRemove := excess
		for i := len(live) - 1; i >= 0 && toRemove > 0; i-- {
			idx := live[i]
			if rules.PreserveNamed && chunk.Entities[idx].Persistent() {
				continue
			}
			removed[idx] = true
			d.Removals = append(d.Removals, chunk.Entities[idx].ID)
			toRemove--
			ev.Removed++
		}
		// Too many protected entities: remove them anyway, same order.
		for i := len(live) - 1; i >= 0 && toRemove > 0; i-- {
			idx := live[i]
			if removed[idx] {
				continue
			}
			removed[idx] = true
			d.Removals = append(d.Removals, chunk.Entities[idx].ID)
			toRemove--
			ev.Removed++
			ev.Forced++
		}
		d.Evictions = append(d.Evictions, ev)
	}
	return d
}
