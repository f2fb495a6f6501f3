package limiter

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spawnlimiter.ai/internal/sim/entities"
)

type chunkBuilder struct {
	nextID uint64
	ents   []entities.Entity
}

func (b *chunkBuilder) add(t entities.Type, n int) *chunkBuilder {
	for i := 0; i < n; i++ {
		b.nextID++
		b.ents = append(b.ents, entities.Entity{ID: b.nextID, Type: t, RemoveWhenFarAway: true})
	}
	return b
}

func (b *chunkBuilder) addEntity(e entities.Entity) *chunkBuilder {
	b.nextID++
	e.ID = b.nextID
	b.ents = append(b.ents, e)
	return b
}

func (b *chunkBuilder) chunk() Chunk {
	return Chunk{World: "world", X: 3, Z: -4, Entities: b.ents}
}

func countKey(c Chunk, removed []uint64, rules *Rules, key string) int {
	gone := map[uint64]bool{}
	for _, id := range removed {
		gone[id] = true
	}
	n := 0
	for _, e := range c.Entities {
		if gone[e.ID] || e.IsPlayer() || e.HasAnyTag(rules.IgnoreMetadata) {
			continue
		}
		if e.Type.String() == key || e.Category().String() == key {
			n++
		}
	}
	return n
}

func TestEvaluate_CandidateRejectedAtTypeLimit(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 5).chunk()

	d := Evaluate(c, &entities.Entity{ID: 100, Type: entities.TypeZombie}, rules)
	assert.True(t, d.Reject)
	assert.Equal(t, "ZOMBIE", d.RejectKey)
	assert.Empty(t, d.Removals)
}

func TestEvaluate_CandidateAcceptedBelowLimit(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 4).chunk()

	d := Evaluate(c, &entities.Entity{ID: 100, Type: entities.TypeZombie}, rules)
	assert.False(t, d.Reject)
	assert.True(t, d.Empty())
}

func TestEvaluate_ZeroLimitRejectsEveryCandidate(t *testing.T) {
	rules := NewRules(map[string]int{"BAT": 0}, nil, nil)
	d := Evaluate(Chunk{World: "world"}, &entities.Entity{ID: 1, Type: entities.TypeBat}, rules)
	assert.True(t, d.Reject)
}

func TestEvaluate_CategoryRejectsWhenTypePasses(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 10, "MONSTER": 2}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeSkeleton, 2).chunk()

	d := Evaluate(c, &entities.Entity{ID: 100, Type: entities.TypeZombie}, rules)
	assert.True(t, d.Reject)
	assert.Equal(t, "MONSTER", d.RejectKey)
}

func TestEvaluate_TypeRejectsBeforeCategory(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 1, "MONSTER": 50}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 1).chunk()

	d := Evaluate(c, &entities.Entity{ID: 100, Type: entities.TypeZombie}, rules)
	assert.True(t, d.Reject)
	assert.Equal(t, "ZOMBIE", d.RejectKey)
}

func TestEvaluate_AdmissionNeverEvicts(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 7).chunk()

	d := Evaluate(c, &entities.Entity{ID: 100, Type: entities.TypeCow}, rules)
	assert.False(t, d.Reject)
	assert.Empty(t, d.Removals)
	assert.Empty(t, d.Evictions)
}

func TestEvaluate_CandidateInSnapshotCountedOnce(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 3}, nil, nil)
	b := (&chunkBuilder{}).add(entities.TypeZombie, 3)
	c := b.chunk()

	d := Evaluate(c, &c.Entities[2], rules)
	assert.False(t, d.Reject, "candidate already present in the snapshot must not be counted twice")
}

func TestEvaluate_SweepRemovesExcessFromStartOfEnumeration(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 7).chunk()

	d := Evaluate(c, nil, rules)
	assert.False(t, d.Reject)
	assert.Equal(t, []uint64{1, 2}, d.Removals)
	require.Len(t, d.Evictions, 1)
	assert.Equal(t, Eviction{Key: "ZOMBIE", Tracked: 7, Limit: 5, Removed: 2}, d.Evictions[0])
	assert.Equal(t, 5, countKey(c, d.Removals, rules, "ZOMBIE"))
}

func TestEvaluate_SweepAtLimitIsNoop(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	rules.NotifyPlayers = true
	c := (&chunkBuilder{}).add(entities.TypeZombie, 5).add(entities.TypePlayer, 1).chunk()

	d := Evaluate(c, nil, rules)
	assert.True(t, d.Empty())
}

func TestEvaluate_CategoryLimitSpansTypes(t *testing.T) {
	rules := NewRules(map[string]int{"ANIMAL": 3}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeCow, 2).add(entities.TypeSheep, 2).chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{1}, d.Removals)
	assert.Equal(t, 3, countKey(c, d.Removals, rules, "ANIMAL"))
}

func TestEvaluate_EntityInTypeAndCategoryRemovedOnce(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 2, "MONSTER": 3}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 4).add(entities.TypeSkeleton, 2).chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{1, 2, 3}, d.Removals)
	assert.Equal(t, 1, countKey(c, d.Removals, rules, "ZOMBIE"))
	assert.Equal(t, 3, countKey(c, d.Removals, rules, "MONSTER"))
}

func TestEvaluate_ExcludedWorldIsAbsolute(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 0}, []string{"world"}, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 20).chunk()

	assert.True(t, Evaluate(c, nil, rules).Empty())
	assert.True(t, Evaluate(c, &entities.Entity{ID: 99, Type: entities.TypeZombie}, rules).Empty())
}

func TestEvaluate_PlayerCandidateAlwaysAccepted(t *testing.T) {
	rules := NewRules(map[string]int{"OTHER": 0, "PLAYER": 0}, nil, nil)
	d := Evaluate(Chunk{World: "world"}, &entities.Entity{ID: 1, Type: entities.TypePlayer}, rules)
	assert.False(t, d.Reject)
}

func TestEvaluate_IgnoredMetadataInvisible(t *testing.T) {
	rules := NewRules(map[string]int{"VILLAGER": 1}, nil, []string{"shopkeeper"})
	b := &chunkBuilder{}
	for i := 0; i < 4; i++ {
		b.addEntity(entities.Entity{Type: entities.TypeVillager, Tags: []string{"shopkeeper"}, RemoveWhenFarAway: true})
	}
	b.add(entities.TypeVillager, 2)
	c := b.chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{5}, d.Removals, "only untagged villagers are counted or removed")

	tagged := entities.Entity{ID: 50, Type: entities.TypeVillager, Tags: []string{"shopkeeper"}}
	assert.False(t, Evaluate(c, &tagged, rules).Reject)
	assert.True(t, Evaluate(c, &entities.Entity{ID: 51, Type: entities.TypeVillager}, rules).Reject)
}

func TestEvaluate_PreserveNamedSkipsPersistentEntities(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 2}, nil, nil)
	rules.PreserveNamed = true
	b := &chunkBuilder{}
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Bob"})
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Ann"})
	// Named but still despawns naturally: not protected.
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Tmp", RemoveWhenFarAway: true})
	b.add(entities.TypeZombie, 1)
	c := b.chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{3, 4}, d.Removals)
	require.Len(t, d.Evictions, 1)
	assert.Zero(t, d.Evictions[0].Forced)
}

func TestEvaluate_PreserveNamedForcedFallback(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 1}, nil, nil)
	rules.PreserveNamed = true
	b := &chunkBuilder{}
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Bob"})
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Ann"})
	b.add(entities.TypeZombie, 1)
	c := b.chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{3, 1}, d.Removals)
	require.Len(t, d.Evictions, 1)
	assert.Equal(t, 1, d.Evictions[0].Forced)
	assert.Equal(t, 1, countKey(c, d.Removals, rules, "ZOMBIE"))
}

func TestEvaluate_PreserveNamedDisabledRemovesNamed(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 1}, nil, nil)
	b := &chunkBuilder{}
	b.addEntity(entities.Entity{Type: entities.TypeZombie, CustomName: "Bob"})
	b.add(entities.TypeZombie, 1)

	d := Evaluate(b.chunk(), nil, rules)
	assert.Equal(t, []uint64{1}, d.Removals)
	assert.Zero(t, d.Evictions[0].Forced)
}

func TestEvaluate_NotificationsAddressPlayers(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 1, "COW": 5}, nil, nil)
	rules.NotifyPlayers = true
	rules.RemovedMessage = "Removed %d %s"
	b := (&chunkBuilder{}).add(entities.TypePlayer, 1).add(entities.TypeZombie, 3).add(entities.TypePlayer, 1)
	c := b.chunk()

	d := Evaluate(c, nil, rules)
	require.Len(t, d.Notifications, 1)
	assert.Equal(t, "Removed 2 ZOMBIE", d.Notifications[0].Text)
	assert.ElementsMatch(t, []uint64{1, 5}, d.Notifications[0].Recipients)
	assert.Equal(t, []uint64{2, 3}, d.Removals)
}

func TestEvaluate_NoNotificationsWithoutFlag(t *testing.T) {
	rules := NewRules(map[string]int{"ZOMBIE": 1}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypePlayer, 1).add(entities.TypeZombie, 3).chunk()
	assert.Empty(t, Evaluate(c, nil, rules).Notifications)
}

func TestEvaluate_PlayersNeverCountedOrRemoved(t *testing.T) {
	rules := NewRules(map[string]int{"OTHER": 0, "PLAYER": 0}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypePlayer, 3).add(entities.TypeSlime, 1).chunk()

	d := Evaluate(c, nil, rules)
	assert.Equal(t, []uint64{4}, d.Removals)
}

func TestEvaluate_DebugHookLogsRemovals(t *testing.T) {
	var buf bytes.Buffer
	l := New(zerolog.New(&buf).Level(zerolog.DebugLevel))
	rules := NewRules(map[string]int{"ZOMBIE": 5}, nil, nil)
	c := (&chunkBuilder{}).add(entities.TypeZombie, 7).chunk()

	l.Evaluate(c, nil, rules)
	assert.Empty(t, buf.String(), "debug output is off unless rules enable it")

	rules.Debug = true
	l.Evaluate(c, nil, rules)
	assert.Contains(t, buf.String(), "Removing 2 ZOMBIE @ 3 -4")
	assert.Contains(t, buf.String(), `"component":"limiter"`)
}

func TestEvaluate_NilRulesAllowsEverything(t *testing.T) {
	c := (&chunkBuilder{}).add(entities.TypeZombie, 7).chunk()
	assert.True(t, Evaluate(c, nil, nil).Empty())
}

func TestEvaluate_SweepInvariantRandomized(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	types := entities.Types()
	keys := []string{"ZOMBIE", "SKELETON", "COW", "SHEEP", "SQUID", "BAT", "ANIMAL", "MONSTER", "AMBIENT", "WATER_MOB", "NPC", "OTHER"}

	for iter := 0; iter < 500; iter++ {
		limits := map[string]int{}
		for _, k := range keys {
			if rng.Intn(3) == 0 {
				limits[k] = rng.Intn(6)
			}
		}
		rules := NewRules(limits, nil, []string{"keep"})
		rules.PreserveNamed = rng.Intn(2) == 0

		b := &chunkBuilder{}
		n := rng.Intn(40)
		for i := 0; i < n; i++ {
			e := entities.Entity{Type: types[rng.Intn(len(types))], RemoveWhenFarAway: rng.Intn(2) == 0}
			if rng.Intn(4) == 0 {
				e.CustomName = "named"
			}
			if rng.Intn(8) == 0 {
				e.Tags = []string{"keep"}
			}
			b.addEntity(e)
		}
		c := b.chunk()
		d := Evaluate(c, nil, rules)

		seen := map[uint64]bool{}
		byID := map[uint64]entities.Entity{}
		for _, e := range c.Entities {
			byID[e.ID] = e
		}
		for _, id := range d.Removals {
			require.Falsef(t, seen[id], "iter %d: entity %d removed twice", iter, id)
			seen[id] = true
			e := byID[id]
			require.Falsef(t, e.IsPlayer(), "iter %d: player removed", iter)
			require.Falsef(t, e.HasTag("keep"), "iter %d: ignored entity removed", iter)
		}
		for k, limit := range limits {
			require.LessOrEqualf(t, countKey(c, d.Removals, rules, k), limit, "iter %d key %s", iter, k)
		}
		for _, ev := range d.Evictions {
			require.Equalf(t, ev.Tracked-ev.Limit, ev.Removed, "iter %d key %s removes exactly the excess", iter, ev.Key)
		}
	}
}

func TestApply(t *testing.T) {
	d := Decision{
		Removals:      []uint64{7, 8, 9},
		Notifications: []Notification{{Recipients: []uint64{1, 2}, Text: "hi"}},
	}
	var removed []uint64
	msgs := map[uint64][]string{}
	n, err := Apply(d,
		RemoverFunc(func(id uint64) error {
			if id == 8 {
				return assert.AnError
			}
			removed = append(removed, id)
			return nil
		}),
		NotifierFunc(func(p uint64, text string) { msgs[p] = append(msgs[p], text) }),
	)
	require.Error(t, err)
	assert.True(t, eris.Is(err, assert.AnError))
	assert.Equal(t, 2, n)
	assert.Equal(t, []uint64{7, 9}, removed)
	assert.Equal(t, map[uint64][]string{1: {"hi"}, 2: {"hi"}}, msgs)
}

func TestRulesFormatRemoved(t *testing.T) {
	var r *Rules
	assert.Equal(t, "§7Removed 3 BAT in your chunk.", r.FormatRemoved(3, "BAT"))
	assert.Equal(t, []string{"ANIMAL", "COW", "ZOMBIE"}, NewRules(map[string]int{"ZOMBIE": 1, "COW": 2, "ANIMAL": -4}, nil, nil).Keys())
	assert.Equal(t, 0, NewRules(map[string]int{"ANIMAL": -4}, nil, nil).Limits["ANIMAL"])
}
