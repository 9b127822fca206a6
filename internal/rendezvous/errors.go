package rendezvous

import "errors"

// User-facing rendezvous failures. Messages are shown verbatim.
var (
	ErrInvalidRoomID      = errors.New("invalid room id")
	ErrRoomNotFound       = errors.New("room does not exist")
	ErrRoomFull           = errors.New("room full or closed")
	ErrSignalUnavailable  = errors.New("sender signal unavailable")
	ErrJoinRejected       = errors.New("join rejected")
	ErrTransportError     = errors.New("connection error")
	ErrRendezvousTimeout  = errors.New("timed out waiting for receiver")
	ErrRoomCreationFailed = errors.New("could not create room")
	ErrBusy               = errors.New("rendezvous already in progress")
	ErrClosed             = errors.New("rendezvous closed")
	ErrPeerClosed         = errors.New("peer connection closed")
)
