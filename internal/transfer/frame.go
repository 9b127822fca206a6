package transfer

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

// Frame tags. Every frame on the channel starts with one of these bytes.
const (
	TagControl byte = 0x01
	TagData    byte = 0x02
)

// Message is a control frame body.
type Message struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload,omitempty"`
}

// FileInfo announces the next file on the channel.
type FileInfo struct {
	Name string `msgpack:"name"`
	Size int64  `msgpack:"size"`
}

// DecodePayload decodes the message payload into the provided struct
func (m Message) DecodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

// NewMessage creates a new Message with the given type and payload.
// A nil payload produces a bare message.
func NewMessage(t string, payload any) (Message, error) {
	if payload == nil {
		return Message{Type: t}, nil
	}
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return Message{}, err
	}
	return Message{Type: t, Payload: b}, nil
}

// EncodeControl returns a tagged control frame.
func EncodeControl(msg Message) ([]byte, error) {
	body, err := msgpack.Marshal(msg)
	if err != nil {
		return nil, NewError("encode control", err)
	}
	frame := make([]byte, 1+len(body))
	frame[0] = TagControl
	copy(frame[1:], body)
	return frame, nil
}

// EncodeData returns a tagged data frame holding a copy of chunk.
func EncodeData(chunk []byte) []byte {
	frame := make([]byte, 1+len(chunk))
	frame[0] = TagData
	copy(frame[1:], chunk)
	return frame
}

// Frame is a decoded channel frame. Exactly one of Control or Data is
// meaningful, selected by Tag.
type Frame struct {
	Tag     byte
	Control Message
	Data    []byte
}

// DecodeFrame splits a raw channel message by its tag. Data frames alias
// raw. Control frames that fail to decode return ErrMalformedFrame.
func DecodeFrame(raw []byte) (Frame, error) {
	if len(raw) == 0 {
		return Frame{}, WrapError("decode frame", ErrMalformedFrame, "empty frame")
	}

	switch raw[0] {
	case TagData:
		return Frame{Tag: TagData, Data: raw[1:]}, nil
	case TagControl:
		var msg Message
		if err := msgpack.Unmarshal(raw[1:], &msg); err != nil {
			return Frame{}, WrapError("decode frame", ErrMalformedFrame, err.Error())
		}
		return Frame{Tag: TagControl, Control: msg}, nil
	default:
		return Frame{}, WrapError("decode frame", ErrMalformedFrame, fmt.Sprintf("unknown tag 0x%02x", raw[0]))
	}
}
