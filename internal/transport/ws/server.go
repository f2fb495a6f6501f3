// Package ws is the host bridge: game servers connect over websocket, report
// spawns and chunk events, and receive limiter decisions to enforce.
package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rotisserie/eris"
	"github.com/rs/zerolog"

	"spawnlimiter.ai/internal/protocol"
	"spawnlimiter.ai/internal/sim/limiter"
	"spawnlimiter.ai/internal/sim/tuning"
)

const (
	handshakeTimeout = 5 * time.Second
	readTimeout      = 120 * time.Second
	writeTimeout     = 5 * time.Second
	outQueue         = 64
)

type Server struct {
	store *tuning.Store
	lim   *limiter.Limiter
	rec   limiter.Recorder
	log   zerolog.Logger

	upgrader websocket.Upgrader

	mu       sync.Mutex
	sessions map[string]*session
	closing  bool
	handlers sync.WaitGroup

	rescheduled chan struct{}
}

func NewServer(store *tuning.Store, rec limiter.Recorder, logger zerolog.Logger) *Server {
	s := &Server{
		store: store,
		lim:   limiter.New(logger),
		rec:   rec,
		log:   logger.With().Str("component", "bridge").Logger(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  64 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		sessions:    map[string]*session{},
		rescheduled: make(chan struct{}, 1),
	}
	store.OnSwap(func(prev, next *tuning.Snapshot) {
		select {
		case s.rescheduled <- struct{}{}:
		default:
		}
	})
	return s
}

// SessionInfo describes one connected host.
type SessionInfo struct {
	ID           string    `json:"session_id"`
	HostName     string    `json:"host_name"`
	Worlds       []string  `json:"worlds,omitempty"`
	ConnectedAt  time.Time `json:"connected_at"`
	LoadedChunks int       `json:"loaded_chunks"`
}

func (s *Server) Sessions() []SessionInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]SessionInfo, 0, len(s.sessions))
	for _, sess := range s.sessions {
		out = append(out, sess.info())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			http.Error(rw, "shutting down", http.StatusServiceUnavailable)
			return
		}
		s.handlers.Add(1)
		s.mu.Unlock()
		defer s.handlers.Done()

		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sess := s.handshake(conn)
		if sess == nil {
			return
		}
		lg := s.log.With().Str("session", sess.id).Str("host", sess.hostName).Logger()
		lg.Info().Strs("worlds", sess.worldList()).Msg("host connected")

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()
		sess.cancel = cancel
		sess.done = ctx.Done()

		s.mu.Lock()
		if s.closing {
			s.mu.Unlock()
			return
		}
		s.sessions[sess.id] = sess
		s.mu.Unlock()

		// Closing the connection unblocks the reader loop once the session ends.
		go func() {
			<-ctx.Done()
			_ = conn.Close()
		}()
		defer func() {
			s.mu.Lock()
			delete(s.sessions, sess.id)
			s.mu.Unlock()
			lg.Info().Msg("host disconnected")
		}()

		// Writer goroutine.
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case b := <-sess.out:
					_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
					if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop. One message at a time, so a host's events for a chunk are
		// evaluated in the order it sent them.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				break
			}
			s.dispatch(sess, msg, lg)
		}
	}
}

// Shutdown refuses new hosts, ends every session and waits for their handlers
// to return. Recorders are not called once it returns nil.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	s.closing = true
	for _, sess := range s.sessions {
		sess.cancel()
	}
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.handlers.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return eris.Wrap(ctx.Err(), "bridge shutdown")
	}
}

func (s *Server) handshake(conn *websocket.Conn) *session {
	_ = conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoNoSession, "expected HELLO"))
		closeWith(conn, "expected HELLO")
		return nil
	}
	var hello protocol.HelloMsg
	if err := protocol.Decode(protocol.TypeHello, msg, &hello); err != nil {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoBadRequest, err.Error()))
		closeWith(conn, "bad HELLO")
		return nil
	}
	if !supportsVersion(hello) {
		_ = writeJSON(conn, protocol.NewError("", protocol.ErrProtoVersion, "server speaks protocol "+protocol.Version))
		closeWith(conn, "bad protocol_version")
		return nil
	}

	sess := newSession(uuid.NewString(), hello)
	snap := s.store.Current()
	if err := writeJSON(conn, welcomeFor(sess.id, snap)); err != nil {
		return nil
	}
	return sess
}

func supportsVersion(h protocol.HelloMsg) bool {
	if h.ProtocolVersion == protocol.Version {
		return true
	}
	for _, v := range h.SupportedVersions {
		if v == protocol.Version {
			return true
		}
	}
	return false
}

func welcomeFor(sessionID string, snap *tuning.Snapshot) protocol.WelcomeMsg {
	p := snap.Tuning.Properties
	freq := 0
	if p.ActiveInspections {
		freq = p.InspectionFrequencySec
	}
	return protocol.WelcomeMsg{
		Type:                   protocol.TypeWelcome,
		ProtocolVersion:        protocol.Version,
		SessionID:              sessionID,
		ConfigVersion:          snap.Version,
		InspectionFrequencySec: freq,
		Listeners: protocol.Listeners{
			WatchCreatureSpawns: p.WatchCreatureSpawns,
			CheckChunkLoad:      p.CheckChunkLoad,
			CheckChunkUnload:    p.CheckChunkUnload,
			ActiveInspections:   p.ActiveInspections,
		},
	}
}

func (s *Server) dispatch(sess *session, msg []byte, lg zerolog.Logger) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		s.send(sess, protocol.NewError("", protocol.ErrProtoBadRequest, "invalid json"))
		return
	}
	switch base.Type {
	case protocol.TypeSpawn:
		var m protocol.SpawnMsg
		if err := protocol.Decode(base.Type, msg, &m); err != nil {
			s.send(sess, protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		if !sess.knowsWorld(m.Chunk.World) {
			s.send(sess, protocol.NewError(m.ReqID, protocol.ErrWorldUnknown, "world not announced in HELLO: "+m.Chunk.World))
			return
		}
		if err := checkIDs(m.Entities); err != nil {
			s.send(sess, protocol.NewError(m.ReqID, protocol.ErrBadRequest, err.Error()))
			return
		}
		s.send(sess, s.handleSpawn(m))

	case protocol.TypeChunk:
		var m protocol.ChunkMsg
		if err := protocol.Decode(base.Type, msg, &m); err != nil {
			s.send(sess, protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, err.Error()))
			return
		}
		if !sess.knowsWorld(m.Chunk.World) {
			s.send(sess, protocol.NewError(m.ReqID, protocol.ErrWorldUnknown, "world not announced in HELLO: "+m.Chunk.World))
			return
		}
		if err := checkIDs(m.Entities); err != nil {
			s.send(sess, protocol.NewError(m.ReqID, protocol.ErrBadRequest, err.Error()))
			return
		}
		s.send(sess, s.handleChunk(sess, m))

	case protocol.TypeHello:
		s.send(sess, protocol.NewError(base.ReqID, protocol.ErrProtoBadRequest, "already greeted"))

	default:
		lg.Debug().Str("type", base.Type).Msg("unknown message type")
		s.send(sess, protocol.NewError(base.ReqID, protocol.ErrProtoUnknownType, "unknown message type: "+base.Type))
	}
}

func (s *Server) handleSpawn(m protocol.SpawnMsg) protocol.DecisionMsg {
	snap := s.store.Current()
	if !snap.Tuning.Properties.WatchCreatureSpawns {
		return decisionMsg(m.ReqID, m.Chunk, limiter.Decision{})
	}
	chunk := toChunk(m.Chunk, m.Entities)
	cand := toEntity(m.Candidate)
	d := s.lim.Evaluate(chunk, &cand, snap.Rules)
	s.record(m.Chunk, limiter.TriggerSpawn, d)
	return decisionMsg(m.ReqID, m.Chunk, d)
}

func (s *Server) handleChunk(sess *session, m protocol.ChunkMsg) protocol.DecisionMsg {
	snap := s.store.Current()
	p := snap.Tuning.Properties

	var (
		trigger limiter.Trigger
		enabled bool
	)
	switch m.Event {
	case protocol.ChunkLoad:
		sess.markLoaded(m.Chunk, true)
		trigger, enabled = limiter.TriggerChunkLoad, p.CheckChunkLoad
	case protocol.ChunkUnload:
		sess.markLoaded(m.Chunk, false)
		trigger, enabled = limiter.TriggerChunkUnload, p.CheckChunkUnload
	case protocol.ChunkInspect:
		trigger, enabled = limiter.TriggerInspection, p.ActiveInspections
	}
	if !enabled {
		return decisionMsg(m.ReqID, m.Chunk, limiter.Decision{})
	}
	d := s.lim.Evaluate(toChunk(m.Chunk, m.Entities), nil, snap.Rules)
	s.record(m.Chunk, trigger, d)
	return decisionMsg(m.ReqID, m.Chunk, d)
}

// record reports a decision. Removals are enforced by the host, so every
// listed removal counts as applied.
func (s *Server) record(ref protocol.ChunkRef, trigger limiter.Trigger, d limiter.Decision) {
	if s.rec == nil {
		return
	}
	s.rec.Record(limiter.Outcome{
		World:    ref.World,
		X:        ref.X,
		Z:        ref.Z,
		Trigger:  trigger,
		Decision: d,
		Applied:  len(d.Removals),
	})
}

func (s *Server) send(sess *session, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		s.log.Error().Err(err).Msg("marshal outbound message")
		return
	}
	select {
	case sess.out <- b:
	case <-sess.done:
	case <-time.After(writeTimeout):
		// The host stopped reading; drop it.
		s.log.Warn().Str("session", sess.id).Msg("outbound queue stalled; closing session")
		sess.cancel()
	}
}

// RunInspections sends INSPECT to every host on the configured period. The
// period restarts whenever the configuration is swapped.
func (s *Server) RunInspections(ctx context.Context) error {
	for {
		p := s.store.Current().Tuning.Properties
		period := time.Duration(p.InspectionFrequencySec) * time.Second
		if period <= 0 {
			period = time.Second
		}
		t := time.NewTimer(period)
		select {
		case <-ctx.Done():
			t.Stop()
			return ctx.Err()
		case <-s.rescheduled:
			t.Stop()
			s.log.Info().Dur("period", time.Duration(s.store.Current().Tuning.Properties.InspectionFrequencySec)*time.Second).Msg("inspection rescheduled")
			continue
		case <-t.C:
		}
		if !s.store.Current().Tuning.Properties.ActiveInspections {
			continue
		}
		s.InspectAll()
	}
}

// InspectAll asks every connected host to report its loaded chunks.
func (s *Server) InspectAll() int {
	s.mu.Lock()
	sessions := make([]*session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	n := 0
	for _, sess := range sessions {
		chunks := sess.loadedChunks()
		if len(chunks) == 0 {
			continue
		}
		s.send(sess, protocol.InspectMsg{Type: protocol.TypeInspect, ProtocolVersion: protocol.Version, Chunks: chunks})
		n++
	}
	return n
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "marshal")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeWith(conn *websocket.Conn, reason string) {
	_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, reason), time.Now().Add(time.Second))
}
