package signaling

import "encoding/json"

// Signal is an opaque peer-transport payload. The coordination service
// stores and returns it verbatim as a JSON value.
type Signal = json.RawMessage

// RoleReceiver is the only role a joining peer ever declares.
const RoleReceiver = "receiver"

// CreateRoomRequest is the body of POST /create-room.
type CreateRoomRequest struct {
	Signal   Signal `json:"signal"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
}

// CreateRoomResponse is returned by POST /create-room.
type CreateRoomResponse struct {
	RoomID    string `json:"roomId"`
	ShareLink string `json:"shareLink"`
}

// RoomStatus is returned by GET /room/{roomId}/status.
type RoomStatus struct {
	Exists         bool   `json:"exists"`
	HasReceiver    bool   `json:"hasReceiver"`
	CanJoin        bool   `json:"canJoin"`
	ReceiverSignal Signal `json:"receiverSignal,omitempty"`
}

// HasReceiverSignal reports whether a non-empty receiver signal is attached.
func (s *RoomStatus) HasReceiverSignal() bool {
	return !IsEmpty(s.ReceiverSignal)
}

// JoinRoomRequest is the body of POST /join/{roomId}.
type JoinRoomRequest struct {
	Signal Signal `json:"signal"`
	Role   string `json:"role"`
}

// SignalResponse is returned by GET /signal/{roomId}.
type SignalResponse struct {
	Signal Signal `json:"signal"`
}

// ErrorResponse is the body of any non-2xx reply.
type ErrorResponse struct {
	Error string `json:"error"`
}

// IsEmpty reports whether sig carries no usable payload.
func IsEmpty(sig Signal) bool {
	switch string(sig) {
	case "", "null", `""`, "{}":
		return true
	}
	return false
}
