package world

type WorldConfig struct {
	ID         string
	TickRateHz int

	// InboxSize bounds queued host events. Posts beyond it are dropped.
	InboxSize int
}

func (c *WorldConfig) applyDefaults() {
	if c.ID == "" {
		c.ID = "world"
	}
	if c.TickRateHz <= 0 {
		c.TickRateHz = 20
	}
	if c.InboxSize <= 0 {
		c.InboxSize = 1024
	}
}
