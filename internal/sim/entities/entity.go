package entities

// Entity is a read-only view of a live world entity.
type Entity struct {
	ID         uint64   `json:"id"`
	Type       Type     `json:"type"`
	CustomName string   `json:"custom_name,omitempty"`
	Tags       []string `json:"tags,omitempty"`

	// RemoveWhenFarAway is the natural-despawn flag. Non-living entities leave it false.
	RemoveWhenFarAway bool `json:"remove_when_far_away"`
}

func (e Entity) Category() Category { return CategoryOf(e.Type) }

func (e Entity) IsPlayer() bool { return e.Type == TypePlayer }

func (e Entity) Named() bool { return e.CustomName != "" }

// Persistent entities carry a custom name and are kept when the owner is far away.
func (e Entity) Persistent() bool { return e.Named() && !e.RemoveWhenFarAway }

func (e Entity) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// HasAnyTag reports whether the entity carries one of tags.
func (e Entity) HasAnyTag(tags map[string]struct{}) bool {
	if len(tags) == 0 {
		return false
	}
	for _, t := range e.Tags {
		if _, ok := tags[t]; ok {
			return true
		}
	}
	return false
}
