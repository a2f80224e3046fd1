package stack

import "encoding/binary"

// Callback payloads use the little-endian layout of the stack's parameter unions: every
// completion starts with a 32-bit status, and GATTS registration follows it with the 16-bit
// application id.
const (
	StatusOffset        = 0
	StatusPayloadSize   = 4
	AppIDOffset         = 4
	RegisterPayloadSize = 6
)

// StatusPayload renders the payload of a completion that only carries a status.
func StatusPayload(status Status) []byte {
	buf := make([]byte, StatusPayloadSize)
	binary.LittleEndian.PutUint32(buf[StatusOffset:], uint32(status))
	return buf
}

// RegisterPayload renders the payload of a GATTSRegister event.
func RegisterPayload(status Status, appID uint16) []byte {
	buf := make([]byte, RegisterPayloadSize)
	binary.LittleEndian.PutUint32(buf[StatusOffset:], uint32(status))
	binary.LittleEndian.PutUint16(buf[AppIDOffset:], appID)
	return buf
}
