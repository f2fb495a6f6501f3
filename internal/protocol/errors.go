package protocol

const (
	// Protocol/transport validation.
	ErrProtoBadRequest  = "E_PROTO_BAD_REQUEST"
	ErrProtoVersion     = "E_PROTO_VERSION"
	ErrProtoUnknownType = "E_PROTO_UNKNOWN_TYPE"
	ErrProtoNoSession   = "E_PROTO_NO_SESSION"

	// Limiter layer.
	ErrBadRequest   = "E_BAD_REQUEST"
	ErrWorldUnknown = "E_WORLD_UNKNOWN"
	ErrInternal     = "E_INTERNAL"
)

var knownCodes = map[string]struct{}{
	ErrProtoBadRequest:  {},
	ErrProtoVersion:     {},
	ErrProtoUnknownType: {},
	ErrProtoNoSession:   {},
	ErrBadRequest:       {},
	ErrWorldUnknown:     {},
	ErrInternal:         {},
}

func IsKnownCode(code string) bool {
	if code == "" {
		return true
	}
	_, ok := knownCodes[code]
	return ok
}
