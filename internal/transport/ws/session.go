package ws

import (
	"context"
	"sort"
	"sync"
	"time"

	"spawnlimiter.ai/internal/protocol"
)

type session struct {
	id          string
	hostName    string
	worlds      map[string]struct{}
	connectedAt time.Time

	out    chan []byte
	done   <-chan struct{}
	cancel context.CancelFunc

	mu     sync.Mutex
	loaded map[protocol.ChunkRef]struct{}
}

func newSession(id string, h protocol.HelloMsg) *session {
	sess := &session{
		id:          id,
		hostName:    h.HostName,
		connectedAt: time.Now().UTC(),
		out:         make(chan []byte, outQueue),
		loaded:      map[protocol.ChunkRef]struct{}{},
	}
	if len(h.Worlds) > 0 {
		sess.worlds = make(map[string]struct{}, len(h.Worlds))
		for _, w := range h.Worlds {
			sess.worlds[w] = struct{}{}
		}
	}
	return sess
}

// knowsWorld reports whether the host announced world. A host that announced
// no worlds may report any.
func (s *session) knowsWorld(world string) bool {
	if s.worlds == nil {
		return true
	}
	_, ok := s.worlds[world]
	return ok
}

func (s *session) worldList() []string {
	out := make([]string, 0, len(s.worlds))
	for w := range s.worlds {
		out = append(out, w)
	}
	sort.Strings(out)
	return out
}

func (s *session) markLoaded(ref protocol.ChunkRef, loaded bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loaded {
		s.loaded[ref] = struct{}{}
	} else {
		delete(s.loaded, ref)
	}
}

// loadedChunks lists the chunks the host reported loaded, sorted by world then
// coordinates.
func (s *session) loadedChunks() []protocol.ChunkRef {
	s.mu.Lock()
	out := make([]protocol.ChunkRef, 0, len(s.loaded))
	for ref := range s.loaded {
		out = append(out, ref)
	}
	s.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.World != b.World {
			return a.World < b.World
		}
		if a.X != b.X {
			return a.X < b.X
		}
		return a.Z < b.Z
	})
	return out
}

func (s *session) info() SessionInfo {
	s.mu.Lock()
	n := len(s.loaded)
	s.mu.Unlock()
	return SessionInfo{
		ID:           s.id,
		HostName:     s.hostName,
		Worlds:       s.worldList(),
		ConnectedAt:  s.connectedAt,
		LoadedChunks: n,
	}
}
