package limiter

import "github.com/rotisserie/eris"

// Remover owns entity lifecycle for the chunk being evaluated.
type Remover interface {
	Remove(id uint64) error
}

// Notifier delivers text to players.
type Notifier interface {
	Notify(playerID uint64, text string)
}

type RemoverFunc func(id uint64) error

func (f RemoverFunc) Remove(id uint64) error { return f(id) }

type NotifierFunc func(playerID uint64, text string)

func (f NotifierFunc) Notify(playerID uint64, text string) { f(playerID, text) }

// Apply performs the side effects of d. Notifications go out before removals.
// A rejected candidate is the caller's to drop; Apply does not touch it.
// Removal continues past individual failures; the first error is returned.
func Apply(d Decision, rm Remover, n Notifier) (int, error) {
	if n != nil {
		for _, note := range d.Notifications {
			for _, p := range note.Recipients {
				n.Notify(p, note.Text)
			}
		}
	}
	if rm == nil {
		return 0, nil
	}
	var (
		firstErr error
		applied  int
	)
	for _, id := range d.Removals {
		if err := rm.Remove(id); err != nil {
			if firstErr == nil {
				firstErr = eris.Wrapf(err, "remove entity %d", id)
			}
			continue
		}
		applied++
	}
	return applied, firstErr
}
