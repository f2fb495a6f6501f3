package tuning

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_BundledConfigMatchesDefaults(t *testing.T) {
	got, warnings, err := Load("../../../configs/spawnlimiter.yaml")
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, Defaults(), got)
	assert.Equal(t, 50, got.Entities["MONSTER"])
	assert.True(t, got.Properties.WatchCreatureSpawns)
	assert.Equal(t, []string{"shopkeeper"}, got.Properties.IgnoreMetadata)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	got, warnings, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "does not exist")
	assert.Equal(t, Defaults(), got)
}

func TestParse_CapacityTableReplacesDefaults(t *testing.T) {
	got, _, err := Parse([]byte(`
entities:
  ZOMBIE: 5
`))
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"ZOMBIE": 5}, got.Entities)
	// Untouched sections keep their defaults.
	assert.True(t, got.Properties.PreserveNamedEntities)
}

func TestParse_WarnsOnMissingProperties(t *testing.T) {
	_, warnings, err := Parse([]byte(`
properties:
  debug_messages: true
entities:
  ZOMBIE: 5
`))
	require.NoError(t, err)
	assert.Contains(t, warnings, "properties.use_metrics is missing from your config, using default")
	assert.Contains(t, warnings, "messages is missing from your config, using default")
	assert.NotContains(t, warnings, "properties.debug_messages is missing from your config, using default")
}

func TestParse_WarnsOnUnknownCapacityKey(t *testing.T) {
	_, warnings, err := Parse([]byte(`
entities:
  ZOMBEI: 5
  zombie: 3
  ZOMBIE: 1
`))
	require.NoError(t, err)
	assert.Contains(t, warnings, "entities.ZOMBEI is not a known entity type or category; its limit has no effect")
	assert.Contains(t, warnings, "entities.zombie is not a known entity type or category; its limit has no effect")
	for _, w := range warnings {
		assert.NotContains(t, w, "entities.ZOMBIE ")
	}
}

func TestParse_WarnsWhenNoListenersEnabled(t *testing.T) {
	got, warnings, err := Parse([]byte(`
properties:
  active_inspections: false
  watch_creature_spawns: false
`))
	require.NoError(t, err)
	assert.False(t, got.ListenersEnabled())
	assert.Contains(t, warnings[len(warnings)-1], "no listeners are enabled")
}

func TestParse_SchemaRejectsBadDocuments(t *testing.T) {
	cases := map[string]string{
		"negative limit":   "entities:\n  ZOMBIE: -1\n",
		"string limit":     "entities:\n  ZOMBIE: lots\n",
		"unknown property": "properties:\n  debug_mesages: true\n",
		"unknown section":  "entitys:\n  ZOMBIE: 1\n",
		"bad frequency":    "properties:\n  inspection_frequency_sec: 0\n",
	}
	for name, doc := range cases {
		t.Run(name, func(t *testing.T) {
			_, _, err := Parse([]byte(doc))
			require.Error(t, err)
		})
	}
}

func TestParse_RejectsBadMessageTemplate(t *testing.T) {
	_, _, err := Parse([]byte("messages:\n  removed_entities: \"removed %s of %s\"\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "removed_entities")
}

func TestRules(t *testing.T) {
	tu := Defaults()
	tu.Properties.NotifyPlayers = true
	r := tu.Rules()
	assert.True(t, r.PreserveNamed)
	assert.True(t, r.NotifyPlayers)
	assert.False(t, r.Debug)
	assert.True(t, r.WorldExcluded("world_nether"))
	assert.Contains(t, r.IgnoreMetadata, "shopkeeper")
	assert.Equal(t, "§7Removed 4 ZOMBIE in your chunk.", r.FormatRemoved(4, "ZOMBIE"))
}

func TestTranslateColorCodes(t *testing.T) {
	assert.Equal(t, "§aGreen §lBold & plain &z", TranslateColorCodes('&', "&aGreen &LBold & plain &z"))
	assert.Equal(t, "&", TranslateColorCodes('&', "&"))
}

func TestStore_ReloadSwapsAtomically(t *testing.T) {
	path := filepath.Join(t.TempDir(), "spawnlimiter.yaml")
	require.NoError(t, os.WriteFile(path, []byte("entities:\n  ZOMBIE: 5\n"), 0o644))

	s, err := Open(path)
	require.NoError(t, err)
	first := s.Current()
	assert.Equal(t, uint64(1), first.Version)
	assert.Equal(t, map[string]int{"ZOMBIE": 5}, first.Rules.Limits)

	var swaps []uint64
	s.OnSwap(func(prev, next *Snapshot) { swaps = append(swaps, prev.Version, next.Version) })

	require.NoError(t, os.WriteFile(path, []byte("entities:\n  ZOMBIE: 2\n  COW: 1\n"), 0o644))
	next, err := s.Reload()
	require.NoError(t, err)
	assert.Equal(t, uint64(2), next.Version)
	assert.Equal(t, map[string]int{"ZOMBIE": 2, "COW": 1}, s.Current().Rules.Limits)
	assert.Equal(t, []uint64{1, 2}, swaps)

	// The old snapshot is untouched.
	assert.Equal(t, map[string]int{"ZOMBIE": 5}, first.Rules.Limits)

	require.NoError(t, os.WriteFile(path, []byte("entities: [broken\n"), 0o644))
	cur, err := s.Reload()
	require.Error(t, err)
	assert.Equal(t, uint64(2), cur.Version)
	assert.Equal(t, uint64(2), s.Current().Version)
}

func TestStore_OnSwapUnregister(t *testing.T) {
	s := NewStore("", Defaults(), nil)
	var a, b int
	stopA := s.OnSwap(func(prev, next *Snapshot) { a++ })
	s.OnSwap(func(prev, next *Snapshot) { b++ })

	s.Swap(Defaults(), nil)
	stopA()
	stopA()
	s.Swap(Defaults(), nil)

	assert.Equal(t, 1, a)
	assert.Equal(t, 2, b)
}

func TestValidate_ErrorsCarryStack(t *testing.T) {
	tu := Defaults()
	tu.Entities = map[string]int{"ZOMBIE": -1}
	err := tu.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "entities.ZOMBIE must be >= 0")

	j := eris.ToJSON(err, true)
	assert.Contains(t, j, "root")
	assert.NotContains(t, j, "external")
}
