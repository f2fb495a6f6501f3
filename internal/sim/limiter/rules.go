package limiter

import (
	"fmt"
	"sort"
)

// DefaultRemovedMessage takes (count, key).
const DefaultRemovedMessage = "§7Removed %d %s in your chunk."

// Rules is the immutable input of an evaluation. Build a new value on reload
// instead of mutating one that may be in use.
type Rules struct {
	// Limits maps a type or category name to its cap. Missing keys are unbounded.
	Limits map[string]int

	ExcludedWorlds map[string]struct{}
	IgnoreMetadata map[string]struct{}

	PreserveNamed bool
	NotifyPlayers bool
	Debug         bool

	RemovedMessage string
}

func NewRules(limits map[string]int, excludedWorlds, ignoreMetadata []string) *Rules {
	r := &Rules{
		Limits:         make(map[string]int, len(limits)),
		ExcludedWorlds: toSet(excludedWorlds),
		IgnoreMetadata: toSet(ignoreMetadata),
		RemovedMessage: DefaultRemovedMessage,
	}
	for k, v := range limits {
		if v < 0 {
			v = 0
		}
		r.Limits[k] = v
	}
	return r
}

func (r *Rules) Limit(key string) (int, bool) {
	if r == nil {
		return 0, false
	}
	n, ok := r.Limits[key]
	return n, ok
}

func (r *Rules) WorldExcluded(world string) bool {
	if r == nil {
		return false
	}
	_, ok := r.ExcludedWorlds[world]
	return ok
}

// Keys returns the configured keys in lexical order.
func (r *Rules) Keys() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.Limits))
	for k := range r.Limits {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (r *Rules) FormatRemoved(count int, key string) string {
	msg := DefaultRemovedMessage
	if r != nil && r.RemovedMessage != "" {
		msg = r.RemovedMessage
	}
	return fmt.Sprintf(msg, count, key)
}

func toSet(in []string) map[string]struct{} {
	out := make(map[string]struct{}, len(in))
	for _, s := range in {
		if s == "" {
			continue
		}
		out[s] = struct{}{}
	}
	return out
}
