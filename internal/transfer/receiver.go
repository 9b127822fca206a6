package transfer

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Session is one incoming file.
type Session struct {
	ID          string
	Name        string
	Size        int64
	Transferred int64

	artifact  Artifact
	finalized bool
}

func (s *Session) progress() Progress {
	return Progress{
		SessionID:   s.ID,
		Name:        s.Name,
		Size:        s.Size,
		Transferred: s.Transferred,
		Percent:     Percent(s.Transferred, s.Size),
	}
}

// ReceiverHooks are optional callbacks. They run on the goroutine that
// called HandleFrame, after the receiver's lock is released.
type ReceiverHooks struct {
	OnStart    func(Progress)
	OnProgress func(Progress)
	OnComplete func(CompletedFile)
	OnError    func(name string, err error)
}

// Receiver classifies incoming frames and assembles files. A file
// finalizes when its declared size has arrived or when transfer-complete
// is seen, whichever comes first; the second trigger is a no-op.
type Receiver struct {
	store     Store
	completed *CompletedList
	hooks     ReceiverHooks

	mu      sync.Mutex
	current *Session
	closed  bool
}

// NewReceiver creates a receiver writing into store. completed may be nil.
func NewReceiver(store Store, completed *CompletedList, hooks ReceiverHooks) *Receiver {
	if completed == nil {
		completed = NewCompletedList()
	}
	return &Receiver{store: store, completed: completed, hooks: hooks}
}

func (r *Receiver) Completed() *CompletedList {
	return r.completed
}

// Current returns a snapshot of the in-flight file, if any.
func (r *Receiver) Current() (Progress, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.current == nil {
		return Progress{}, false
	}
	return r.current.progress(), true
}

// HandleFrame processes one raw channel message. Malformed or unknown
// control frames are logged and dropped; they never reach the file.
func (r *Receiver) HandleFrame(raw []byte) error {
	frame, err := DecodeFrame(raw)
	if err != nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.HandleFrame",
			"error":    err.Error(),
		}).Warn("Dropping malformed frame")
		return err
	}

	var events []func()
	r.mu.Lock()
	switch {
	case r.closed:
		err = ErrChannelClosed
	case frame.Tag == TagControl:
		events, err = r.handleControl(frame.Control)
	case frame.Tag == TagData:
		events, err = r.handleData(frame.Data)
	}
	r.mu.Unlock()

	for _, ev := range events {
		ev()
	}
	return err
}

// Close aborts any unfinished file. Frames handled afterwards are dropped
// with ErrChannelClosed.
func (r *Receiver) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	if r.current == nil {
		return nil
	}
	s := r.current
	r.current = nil
	s.finalized = true
	return s.artifact.Abort()
}

func (r *Receiver) handleControl(msg Message) ([]func(), error) {
	log := logrus.WithFields(logrus.Fields{
		"function": "Receiver.handleControl",
		"type":     msg.Type,
	})

	switch msg.Type {
	case MessageTypeFileInfo:
		var info FileInfo
		if err := msg.DecodePayload(&info); err != nil || info.Size < 0 {
			log.Warn("Dropping undecodable file-info")
			return nil, WrapError("file-info", ErrMalformedFrame, "bad payload")
		}
		return r.open(info)

	case MessageTypeTransferComplete:
		if r.current == nil {
			log.Debug("transfer-complete with no open file")
			return nil, nil
		}
		return r.finalize(r.current), nil

	default:
		log.Warn("Dropping unknown control message")
		return nil, WrapError("control", ErrUnknownControl, msg.Type)
	}
}

func (r *Receiver) open(info FileInfo) ([]func(), error) {
	var events []func()

	if prev := r.current; prev != nil && !prev.finalized {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.open",
			"session":  prev.ID,
			"file":     prev.Name,
		}).Warn("New file announced before previous one finished, discarding it")
		prev.finalized = true
		_ = prev.artifact.Abort()
		if r.hooks.OnError != nil {
			name := prev.Name
			events = append(events, func() { r.hooks.OnError(name, ErrSizeMismatch) })
		}
	}
	r.current = nil

	artifact, err := r.store.Create(info.Name, info.Size)
	if err != nil {
		if r.hooks.OnError != nil {
			events = append(events, func() { r.hooks.OnError(info.Name, err) })
		}
		return events, err
	}

	s := &Session{
		ID:       uuid.NewString(),
		Name:     info.Name,
		Size:     info.Size,
		artifact: artifact,
	}
	r.current = s

	logrus.WithFields(logrus.Fields{
		"function": "Receiver.open",
		"session":  s.ID,
		"file":     s.Name,
		"size":     s.Size,
	}).Debug("Receiving file")

	if r.hooks.OnStart != nil {
		p := s.progress()
		events = append(events, func() { r.hooks.OnStart(p) })
	}
	if s.Transferred >= s.Size {
		events = append(events, r.finalize(s)...)
	}
	return events, nil
}

func (r *Receiver) handleData(data []byte) ([]func(), error) {
	s := r.current
	if s == nil {
		logrus.WithFields(logrus.Fields{
			"function": "Receiver.handleData",
			"bytes":    len(data),
		}).Warn("Dropping data frame with no open file")
		return nil, ErrNoActiveTransfer
	}

	if _, err := s.artifact.Write(data); err != nil {
		s.finalized = true
		r.current = nil
		_ = s.artifact.Abort()
		var events []func()
		if r.hooks.OnError != nil {
			events = append(events, func() { r.hooks.OnError(s.Name, err) })
		}
		return events, err
	}
	s.Transferred += int64(len(data))

	var events []func()
	if r.hooks.OnProgress != nil {
		p := s.progress()
		events = append(events, func() { r.hooks.OnProgress(p) })
	}
	if s.Transferred >= s.Size {
		events = append(events, r.finalize(s)...)
	}
	return events, nil
}

// finalize commits s exactly once. Callers hold r.mu.
func (r *Receiver) finalize(s *Session) []func() {
	if s.finalized {
		return nil
	}
	s.finalized = true
	if r.current == s {
		r.current = nil
	}

	log := logrus.WithFields(logrus.Fields{
		"function":    "Receiver.finalize",
		"session":     s.ID,
		"file":        s.Name,
		"transferred": s.Transferred,
		"size":        s.Size,
	})

	location, err := s.artifact.Commit()
	if err != nil {
		log.WithField("error", err.Error()).Error("Failed to commit file")
		if r.hooks.OnError != nil {
			return []func(){func() { r.hooks.OnError(s.Name, err) }}
		}
		return nil
	}
	if s.Transferred < s.Size {
		log.Warn("Transfer completed short of declared size")
	}

	done := CompletedFile{Name: s.Name, Size: s.Transferred, Location: location}
	r.completed.Add(done)
	log.Debug("File received")

	if r.hooks.OnComplete != nil {
		return []func(){func() { r.hooks.OnComplete(done) }}
	}
	return nil
}

// IsProtocolNoise reports errors HandleFrame returns for frames it dropped
// without affecting any file.
func IsProtocolNoise(err error) bool {
	return errors.Is(err, ErrMalformedFrame) || errors.Is(err, ErrUnknownControl) ||
		errors.Is(err, ErrNoActiveTransfer) || errors.Is(err, ErrChannelClosed)
}
