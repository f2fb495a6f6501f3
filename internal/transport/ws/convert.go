package ws

import (
	"github.com/rotisserie/eris"

	"spawnlimiter.ai/internal/protocol"
	"spawnlimiter.ai/internal/sim/entities"
	"spawnlimiter.ai/internal/sim/limiter"
)

// toEntity maps a host entity. Type names the catalog does not know become
// TypeUnknown, which only counts toward OTHER.
func toEntity(e protocol.Entity) entities.Entity {
	t, _ := entities.ParseType(e.Type)
	return entities.Entity{
		ID:                e.ID,
		Type:              t,
		CustomName:        e.CustomName,
		Tags:              e.Tags,
		RemoveWhenFarAway: e.RemoveWhenFarAway,
	}
}

// checkIDs requires every reported entity to carry a distinct non-zero ID,
// since decisions name removals by ID.
func checkIDs(ents []protocol.Entity) error {
	seen := make(map[uint64]struct{}, len(ents))
	for i, e := range ents {
		if e.ID == 0 {
			return eris.Errorf("entities[%d]: id must be non-zero", i)
		}
		if _, dup := seen[e.ID]; dup {
			return eris.Errorf("entities[%d]: duplicate id %d", i, e.ID)
		}
		seen[e.ID] = struct{}{}
	}
	return nil
}

func toChunk(ref protocol.ChunkRef, ents []protocol.Entity) limiter.Chunk {
	c := limiter.Chunk{World: ref.World, X: ref.X, Z: ref.Z, Entities: make([]entities.Entity, len(ents))}
	for i, e := range ents {
		c.Entities[i] = toEntity(e)
	}
	return c
}

func decisionMsg(reqID string, ref protocol.ChunkRef, d limiter.Decision) protocol.DecisionMsg {
	m := protocol.DecisionMsg{
		Type:            protocol.TypeDecision,
		ProtocolVersion: protocol.Version,
		ReqID:           reqID,
		Chunk:           ref,
		Reject:          d.Reject,
		RejectKey:       d.RejectKey,
		Removals:        append([]uint64{}, d.Removals...),
		Notifications:   make([]protocol.Notification, 0, len(d.Notifications)),
	}
	for _, n := range d.Notifications {
		m.Notifications = append(m.Notifications, protocol.Notification{Recipients: n.Recipients, Text: n.Text})
	}
	return m
}
