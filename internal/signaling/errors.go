package signaling

import (
	"errors"
	"fmt"
)

var (
	// ErrNetwork covers transport failures and non-2xx replies.
	ErrNetwork = errors.New("network error")
	// ErrRoomCreation is returned by CreateRoom for any failure.
	ErrRoomCreation = errors.New("room creation failed")
)

// StatusError describes a failed exchange with the coordination service.
type StatusError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Message    string
	Err        error
}

func (e *StatusError) Error() string {
	switch {
	case e.StatusCode != 0 && e.Message != "":
		return fmt.Sprintf("%s: http %d: %s", e.Op, e.StatusCode, e.Message)
	case e.StatusCode != 0:
		return fmt.Sprintf("%s: http %d", e.Op, e.StatusCode)
	case e.Message != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}
