package protocol

// HELLO (host -> server)
type HelloMsg struct {
	Type              string   `json:"type"`
	ProtocolVersion   string   `json:"protocol_version"`
	SupportedVersions []string `json:"supported_versions,omitempty"`
	HostName          string   `json:"host_name"`
	Worlds            []string `json:"worlds,omitempty"`
}

// WELCOME (server -> host)
type WelcomeMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	SessionID       string `json:"session_id"`
	ConfigVersion   uint64 `json:"config_version"`

	// InspectionFrequencySec is 0 while active inspections are off.
	InspectionFrequencySec int       `json:"inspection_frequency_sec"`
	Listeners              Listeners `json:"listeners"`
}

// Listeners tells the host which events are worth sending.
type Listeners struct {
	WatchCreatureSpawns bool `json:"watch_creature_spawns"`
	CheckChunkLoad      bool `json:"check_chunk_load"`
	CheckChunkUnload    bool `json:"check_chunk_unload"`
	ActiveInspections   bool `json:"active_inspections"`
}

type ChunkRef struct {
	World string `json:"world"`
	X     int    `json:"x"`
	Z     int    `json:"z"`
}

// Entity is the host's view of one entity. Entities are listed in the
// host's natural enumeration order.
type Entity struct {
	ID                uint64   `json:"id"`
	Type              string   `json:"type"`
	CustomName        string   `json:"custom_name,omitempty"`
	Tags              []string `json:"tags,omitempty"`
	RemoveWhenFarAway bool     `json:"remove_when_far_away"`
}

// CHUNK (host -> server): a loaded, unloading or inspected chunk.
type ChunkMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id,omitempty"`
	Event           string   `json:"event"`
	Chunk           ChunkRef `json:"chunk"`
	Entities        []Entity `json:"entities"`
}

// SPAWN (host -> server): admission request. Entities must not include the
// candidate.
type SpawnMsg struct {
	Type            string   `json:"type"`
	ProtocolVersion string   `json:"protocol_version"`
	ReqID           string   `json:"req_id"`
	Chunk           ChunkRef `json:"chunk"`
	Entities        []Entity `json:"entities"`
	Candidate       Entity   `json:"candidate"`
}

// INSPECT (server -> host): asks for a CHUNK{event: INSPECT} per listed chunk.
type InspectMsg struct {
	Type            string     `json:"type"`
	ProtocolVersion string     `json:"protocol_version"`
	Chunks          []ChunkRef `json:"chunks"`
}

type Notification struct {
	Recipients []uint64 `json:"recipients"`
	Text       string   `json:"text"`
}

// DECISION (server -> host)
type DecisionMsg struct {
	Type            string         `json:"type"`
	ProtocolVersion string         `json:"protocol_version"`
	ReqID           string         `json:"req_id,omitempty"`
	Chunk           ChunkRef       `json:"chunk"`
	Reject          bool           `json:"reject"`
	RejectKey       string         `json:"reject_key,omitempty"`
	Removals        []uint64       `json:"removals"`
	Notifications   []Notification `json:"notifications"`
}

// ERROR (server -> host)
type ErrorMsg struct {
	Type            string `json:"type"`
	ProtocolVersion string `json:"protocol_version"`
	ReqID           string `json:"req_id,omitempty"`
	Code            string `json:"code"`
	Message         string `json:"message"`
}

func NewError(reqID, code, msg string) ErrorMsg {
	return ErrorMsg{Type: TypeError, ProtocolVersion: Version, ReqID: reqID, Code: code, Message: msg}
}
