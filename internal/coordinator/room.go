package coordinator

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	ErrRoomNotFound    = errors.New("room not found")
	ErrRoomUnavailable = errors.New("room already has a receiver or is closed")
	ErrRoomExists      = errors.New("room id already in use")
	ErrInvalidRequest  = errors.New("invalid request")
)

// RoomState only ever moves forward: open, joined, closed.
type RoomState int

const (
	RoomOpen RoomState = iota
	RoomJoined
	RoomClosed
)

func (s RoomState) String() string {
	switch s {
	case RoomOpen:
		return "open"
	case RoomJoined:
		return "joined"
	case RoomClosed:
		return "closed"
	}
	return "unknown"
}

// Room is one rendezvous between a sender and at most one receiver.
type Room struct {
	ID              string
	FileName        string
	FileSize        int64
	InitiatorSignal json.RawMessage
	ReceiverSignal  json.RawMessage
	State           RoomState
	CreatedAt       time.Time
}

// CanJoin reports whether a receiver may still attach.
func (r *Room) CanJoin() bool {
	return r.State == RoomOpen
}

func (r *Room) clone() *Room {
	c := *r
	c.InitiatorSignal = append(json.RawMessage(nil), r.InitiatorSignal...)
	if r.ReceiverSignal != nil {
		c.ReceiverSignal = append(json.RawMessage(nil), r.ReceiverSignal...)
	}
	return &c
}
