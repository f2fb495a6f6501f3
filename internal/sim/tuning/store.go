package tuning

import (
	"sync"
	"sync/atomic"
	"time"

	"spawnlimiter.ai/internal/sim/limiter"
)

// Snapshot is one loaded configuration. It is never modified after Store
// publishes it.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time
	Path     string
	Tuning   Tuning
	Rules    *limiter.Rules
	Warnings []string
}

// Store holds the active Snapshot. Readers take Current once per evaluation;
// Reload builds a new Snapshot and swaps it in.
type Store struct {
	path string
	cur  atomic.Pointer[Snapshot]

	mu        sync.Mutex
	listeners []listener
	nextID    uint64
}

type listener struct {
	id uint64
	fn func(prev, next *Snapshot)
}

func NewStore(path string, t Tuning, warnings []string) *Store {
	s := &Store{path: path}
	s.cur.Store(newSnapshot(1, path, t, warnings))
	return s
}

// Open loads path and returns a Store for it.
func Open(path string) (*Store, error) {
	t, warnings, err := Load(path)
	if err != nil {
		return nil, err
	}
	return NewStore(path, t, warnings), nil
}

func newSnapshot(version uint64, path string, t Tuning, warnings []string) *Snapshot {
	return &Snapshot{
		Version:  version,
		LoadedAt: time.Now().UTC(),
		Path:     path,
		Tuning:   t,
		Rules:    t.Rules(),
		Warnings: warnings,
	}
}

func (s *Store) Current() *Snapshot { return s.cur.Load() }

func (s *Store) Path() string { return s.path }

// OnSwap registers fn to run after every successful swap. The returned func
// removes it.
func (s *Store) OnSwap(fn func(prev, next *Snapshot)) (unregister func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextID++
	id := s.nextID
	s.listeners = append(s.listeners, listener{id: id, fn: fn})
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		for i, l := range s.listeners {
			if l.id == id {
				s.listeners = append(s.listeners[:i:i], s.listeners[i+1:]...)
				return
			}
		}
	}
}

// Swap publishes t and returns the new snapshot.
func (s *Store) Swap(t Tuning, warnings []string) *Snapshot {
	s.mu.Lock()
	prev := s.cur.Load()
	next := newSnapshot(prev.Version+1, s.path, t, warnings)
	s.cur.Store(next)
	listeners := append([]listener(nil), s.listeners...)
	s.mu.Unlock()

	for _, l := range listeners {
		l.fn(prev, next)
	}
	return next
}

// Reload re-reads the file. On error the current snapshot stays active.
func (s *Store) Reload() (*Snapshot, error) {
	t, warnings, err := Load(s.path)
	if err != nil {
		return s.Current(), err
	}
	return s.Swap(t, warnings), nil
}
