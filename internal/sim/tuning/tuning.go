package tuning

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"gopkg.in/yaml.v3"

	"spawnlimiter.ai/internal/sim/entities"
	"spawnlimiter.ai/internal/sim/limiter"
)

//go:embed defaults.yaml
var defaultsYAML []byte

//go:embed schema/spawnlimiter.schema.json
var schemaJSON string

var configSchema = jsonschema.MustCompileString("spawnlimiter.schema.json", schemaJSON)

type Tuning struct {
	Properties     Properties     `yaml:"properties" json:"properties"`
	ExcludedWorlds []string       `yaml:"excluded_worlds" json:"excluded_worlds"`
	Entities       map[string]int `yaml:"entities" json:"entities"`
	Messages       Messages       `yaml:"messages" json:"messages"`
}

type Properties struct {
	DebugMessages          bool     `yaml:"debug_messages" json:"debug_messages"`
	CheckChunkLoad         bool     `yaml:"check_chunk_load" json:"check_chunk_load"`
	CheckChunkUnload       bool     `yaml:"check_chunk_unload" json:"check_chunk_unload"`
	ActiveInspections      bool     `yaml:"active_inspections" json:"active_inspections"`
	WatchCreatureSpawns    bool     `yaml:"watch_creature_spawns" json:"watch_creature_spawns"`
	InspectionFrequencySec int      `yaml:"inspection_frequency_sec" json:"inspection_frequency_sec"`
	NotifyPlayers          bool     `yaml:"notify_players" json:"notify_players"`
	PreserveNamedEntities  bool     `yaml:"preserve_named_entities" json:"preserve_named_entities"`
	IgnoreMetadata         []string `yaml:"ignore_metadata" json:"ignore_metadata"`
	UseMetrics             bool     `yaml:"use_metrics" json:"use_metrics"`
}

type Messages struct {
	RemovedEntities string `yaml:"removed_entities" json:"removed_entities"`
}

// Defaults returns the bundled configuration.
func Defaults() Tuning {
	var t Tuning
	if err := yaml.Unmarshal(defaultsYAML, &t); err != nil {
		panic(fmt.Sprintf("tuning: bundled defaults: %v", err))
	}
	t.Normalize()
	return t
}

// Load reads the yaml file at path on top of the defaults. The returned
// warnings are operator-facing and never fatal.
func Load(path string) (Tuning, []string, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, []string{"no config path given, using defaults for all values"}, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return t, []string{fmt.Sprintf("config file %s does not exist, using defaults for all values", path)}, nil
		}
		return t, nil, eris.Wrapf(err, "read %s", path)
	}
	return Parse(raw)
}

// Parse decodes a yaml document on top of the defaults.
func Parse(raw []byte) (Tuning, []string, error) {
	t := Defaults()

	var doc map[string]any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return t, nil, eris.Wrap(err, "spawnlimiter.yaml")
	}
	if doc == nil {
		doc = map[string]any{}
	}
	if err := validateSchema(doc); err != nil {
		return t, nil, eris.Wrap(err, "spawnlimiter.yaml")
	}

	// A capacity table on disk replaces the bundled one instead of merging into it.
	if _, ok := doc["entities"]; ok {
		t.Entities = nil
	}
	if err := yaml.Unmarshal(raw, &t); err != nil {
		return t, nil, eris.Wrap(err, "spawnlimiter.yaml")
	}
	t.Normalize()
	if err := t.Validate(); err != nil {
		return t, nil, eris.Wrap(err, "spawnlimiter.yaml")
	}

	warnings := missingProperties(doc)
	warnings = append(warnings, t.Warnings()...)
	return t, warnings, nil
}

func validateSchema(doc map[string]any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return err
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	var v any
	if err := dec.Decode(&v); err != nil {
		return err
	}
	return configSchema.Validate(v)
}

// missingProperties lists default keys absent from doc. The capacity table
// belongs to the operator and is not compared.
func missingProperties(doc map[string]any) []string {
	var defaults map[string]any
	if err := yaml.Unmarshal(defaultsYAML, &defaults); err != nil {
		return nil
	}
	var out []string
	var walk func(prefix string, def, got map[string]any)
	walk = func(prefix string, def, got map[string]any) {
		keys := make([]string, 0, len(def))
		for k := range def {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			path := k
			if prefix != "" {
				path = prefix + "." + k
			}
			gv, ok := got[k]
			if !ok {
				out = append(out, fmt.Sprintf("%s is missing from your config, using default", path))
				continue
			}
			if path == "entities" {
				continue
			}
			dm, dIsMap := def[k].(map[string]any)
			gm, gIsMap := gv.(map[string]any)
			if dIsMap && gIsMap {
				walk(path, dm, gm)
			}
		}
	}
	walk("", defaults, doc)
	return out
}

func (t *Tuning) Normalize() {
	if t == nil {
		return
	}
	t.ExcludedWorlds = cleanList(t.ExcludedWorlds)
	t.Properties.IgnoreMetadata = cleanList(t.Properties.IgnoreMetadata)
	if t.Properties.InspectionFrequencySec <= 0 {
		t.Properties.InspectionFrequencySec = 300
	}
	if t.Entities == nil {
		t.Entities = map[string]int{}
	}
	if strings.TrimSpace(t.Messages.RemovedEntities) == "" {
		t.Messages.RemovedEntities = "&7Removed %d %s in your chunk."
	}
}

func (t Tuning) Validate() error {
	for k, v := range t.Entities {
		if strings.TrimSpace(k) == "" {
			return eris.New("entities: empty key")
		}
		if v < 0 {
			return eris.Errorf("entities.%s must be >= 0", k)
		}
	}
	if msg := fmt.Sprintf(t.Messages.RemovedEntities, 1, "ZOMBIE"); strings.Contains(msg, "%!") {
		return eris.Errorf("messages.removed_entities must take (count, key) as %%d and %%s: got %q", msg)
	}
	return nil
}

// Warnings reports settings that load fine but likely do not do what the
// operator intended.
func (t Tuning) Warnings() []string {
	var out []string
	keys := make([]string, 0, len(t.Entities))
	for k := range t.Entities {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if !entities.IsKnownKey(k) {
			out = append(out, fmt.Sprintf("entities.%s is not a known entity type or category; its limit has no effect", k))
		}
	}
	if !t.ListenersEnabled() {
		out = append(out, "no listeners are enabled, the limiter will do nothing; enable watch_creature_spawns, active_inspections, check_chunk_load or check_chunk_unload and reload")
	}
	return out
}

func (t Tuning) ListenersEnabled() bool {
	p := t.Properties
	return p.WatchCreatureSpawns || p.ActiveInspections || p.CheckChunkLoad || p.CheckChunkUnload
}

// Rules builds the immutable limiter input for this configuration.
func (t Tuning) Rules() *limiter.Rules {
	r := limiter.NewRules(t.Entities, t.ExcludedWorlds, t.Properties.IgnoreMetadata)
	r.PreserveNamed = t.Properties.PreserveNamedEntities
	r.NotifyPlayers = t.Properties.NotifyPlayers
	r.Debug = t.Properties.DebugMessages
	r.RemovedMessage = TranslateColorCodes('&', t.Messages.RemovedEntities)
	return r
}

const colorCodes = "0123456789AaBbCcDdEeFfKkLlMmNnOoRr"

// TranslateColorCodes rewrites alt-prefixed formatting codes ("&7") to the
// section-sign form ("§7") understood by game clients.
func TranslateColorCodes(alt rune, text string) string {
	rs := []rune(text)
	for i := 0; i < len(rs)-1; i++ {
		if rs[i] == alt && strings.ContainsRune(colorCodes, rs[i+1]) {
			rs[i] = '§'
			rs[i+1] = []rune(strings.ToLower(string(rs[i+1])))[0]
		}
	}
	return string(rs)
}

func cleanList(in []string) []string {
	out := in[:0]
	seen := map[string]bool{}
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
