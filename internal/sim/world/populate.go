package world

import (
	"math/rand"

	opensimplex "github.com/ojrac/opensimplex-go"

	"spawnlimiter.ai/internal/sim/entities"
)

// Populator drives a demo world: it loads a square of chunks and keeps
// spawning creatures into them, denser where the noise field is high.
type Populator struct {
	Radius   int
	PerTick  int
	Players  int
	NameRate float64

	rng     *rand.Rand
	density opensimplex.Noise
	types   []entities.Type
}

func NewPopulator(seed int64, radius, perTick int) *Populator {
	var types []entities.Type
	for _, t := range entities.Types() {
		// Living creatures only; everything from TypePlayer on is either a
		// player or not alive.
		if t == entities.TypeUnknown || t == entities.TypeArmorStand || t >= entities.TypePlayer {
			continue
		}
		types = append(types, t)
	}
	return &Populator{
		Radius:   radius,
		PerTick:  perTick,
		Players:  2,
		NameRate: 0.02,
		rng:      rand.New(rand.NewSource(seed)),
		density:  opensimplex.NewNormalized(seed),
		types:    types,
	}
}

// Seed loads every chunk in the square and places the players.
func (p *Populator) Seed(w *World) {
	for x := -p.Radius; x <= p.Radius; x++ {
		for z := -p.Radius; z <= p.Radius; z++ {
			w.LoadChunk(ChunkKey{CX: x, CZ: z})
		}
	}
	for i := 0; i < p.Players; i++ {
		w.Spawn(p.pick(), entities.Entity{Type: entities.TypePlayer})
	}
}

// Tick spawns up to PerTick creatures.
func (p *Populator) Tick(w *World) (spawned, refused int) {
	for i := 0; i < p.PerTick; i++ {
		key := p.pick()
		if p.rng.Float64() > p.density.Eval2(float64(key.CX)*0.3, float64(key.CZ)*0.3) {
			continue
		}
		e := entities.Entity{
			Type:              p.types[p.rng.Intn(len(p.types))],
			RemoveWhenFarAway: true,
		}
		if p.rng.Float64() < p.NameRate {
			e.CustomName = "Named " + e.Type.String()
			e.RemoveWhenFarAway = false
		}
		if id, _ := w.Spawn(key, e); id == 0 {
			refused++
			continue
		}
		spawned++
	}
	return spawned, refused
}

func (p *Populator) pick() ChunkKey {
	n := 2*p.Radius + 1
	return ChunkKey{CX: p.rng.Intn(n) - p.Radius, CZ: p.rng.Intn(n) - p.Radius}
}
