// Package protocol defines the JSON messages exchanged with a game host over
// the bridge. Every inbound message is checked against an embedded JSON Schema
// before it is decoded into one of the typed structs.
package protocol

import "encoding/json"

const Version = "1.0"

// Message types.
const (
	TypeHello    = "HELLO"
	TypeWelcome  = "WELCOME"
	TypeChunk    = "CHUNK"
	TypeSpawn    = "SPAWN"
	TypeInspect  = "INSPECT"
	TypeDecision = "DECISION"
	TypeError    = "ERROR"
)

// CHUNK events.
const (
	ChunkLoad    = "LOAD"
	ChunkUnload  = "UNLOAD"
	ChunkInspect = "INSPECT"
)

// BaseMessage lets us route unknown JSON messages by type.
type BaseMessage struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version,omitempty"`
	ReqID           string `json:"req_id,omitempty"`
}

func DecodeBase(b []byte) (BaseMessage, error) {
	var m BaseMessage
	err := json.Unmarshal(b, &m)
	return m, err
}
