package transfer

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Channel is the slice of a data channel the engine needs.
// *webrtc.DataChannel from pion satisfies it.
type Channel interface {
	Send(data []byte) error
	BufferedAmount() uint64
	SetBufferedAmountLowThreshold(th uint64)
	OnBufferedAmountLow(f func())
}

// Sender streams files over a Channel one at a time. Frames of two files
// never interleave.
type Sender struct {
	channel   Channel
	completed *CompletedList
	low       chan struct{}
	buffer    []byte

	sendTimeout  time.Duration
	drainTimeout time.Duration
	drainPoll    time.Duration

	mu sync.Mutex
}

// NewSender registers the low-buffer callback on ch. completed may be nil.
func NewSender(ch Channel, completed *CompletedList) *Sender {
	if completed == nil {
		completed = NewCompletedList()
	}
	s := &Sender{
		channel:      ch,
		completed:    completed,
		low:          make(chan struct{}, 1),
		buffer:       make([]byte, ChunkSize),
		sendTimeout:  SendTimeout,
		drainTimeout: DrainTimeout,
		drainPoll:    50 * time.Millisecond,
	}
	ch.SetBufferedAmountLowThreshold(LowWaterMark)
	ch.OnBufferedAmountLow(func() {
		select {
		case s.low <- struct{}{}:
		default:
		}
	})
	return s
}

// Completed returns the list files are archived to after a successful send.
func (s *Sender) Completed() *CompletedList {
	return s.completed
}

// SendFile streams size bytes from r as file-info, data frames, then
// transfer-complete. onProgress may be nil.
func (s *Sender) SendFile(ctx context.Context, name string, size int64, r io.Reader, onProgress func(Progress)) error {
	if size < 0 {
		return NewFileError("send", name, ErrInvalidFile)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id := uuid.NewString()
	log := logrus.WithFields(logrus.Fields{
		"function": "Sender.SendFile",
		"session":  id,
		"file":     name,
		"size":     size,
	})
	log.Debug("Starting file send")

	report := func(sent int64) {
		if onProgress != nil {
			onProgress(Progress{SessionID: id, Name: name, Size: size, Transferred: sent, Percent: Percent(sent, size)})
		}
	}

	info, err := NewMessage(MessageTypeFileInfo, FileInfo{Name: name, Size: size})
	if err != nil {
		return NewFileError("encode file-info", name, err)
	}
	if err := s.sendControl(ctx, info); err != nil {
		return NewFileError("send file-info", name, err)
	}
	if size == 0 {
		report(0)
	}

	src := io.LimitReader(r, size)
	var sent int64
	for sent < size {
		n, err := io.ReadFull(src, s.buffer)
		if n > 0 {
			if err := s.send(ctx, EncodeData(s.buffer[:n])); err != nil {
				return NewFileError("send chunk", name, err)
			}
			sent += int64(n)
			report(sent)
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			break
		}
		if err != nil {
			return NewFileError("read", name, err)
		}
	}
	if sent != size {
		return WrapError("send "+name, ErrSizeMismatch, "source ended early")
	}

	done, _ := NewMessage(MessageTypeTransferComplete, nil)
	if err := s.sendControl(ctx, done); err != nil {
		return NewFileError("send transfer-complete", name, err)
	}

	s.completed.Add(CompletedFile{Name: name, Size: size})
	log.Debug("File send complete")
	return nil
}

// Drain blocks until the channel has flushed everything queued, or the
// drain timeout passes.
func (s *Sender) Drain(ctx context.Context) error {
	deadline := time.NewTimer(s.drainTimeout)
	defer deadline.Stop()
	ticker := time.NewTicker(s.drainPoll)
	defer ticker.Stop()

	for s.channel.BufferedAmount() > 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return WrapError("drain", ErrBufferTimeout, "buffer not empty")
		case <-ticker.C:
		}
	}
	return nil
}

func (s *Sender) sendControl(ctx context.Context, msg Message) error {
	frame, err := EncodeControl(msg)
	if err != nil {
		return err
	}
	return s.send(ctx, frame)
}

func (s *Sender) send(ctx context.Context, frame []byte) error {
	if err := s.waitForWindow(ctx, len(frame)); err != nil {
		return err
	}
	if err := s.channel.Send(frame); err != nil {
		return errors.Join(ErrChannelClosed, err)
	}
	return nil
}

// waitForWindow blocks while queuing n more bytes would push the buffered
// amount above HighWaterMark.
func (s *Sender) waitForWindow(ctx context.Context, n int) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	buffered := s.channel.BufferedAmount()
	if buffered+uint64(n) <= HighWaterMark {
		return nil
	}

	timer := time.NewTimer(s.sendTimeout)
	defer timer.Stop()

	for buffered+uint64(n) > HighWaterMark {
		select {
		case <-s.low:
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
			now := s.channel.BufferedAmount()
			if now >= buffered {
				return WrapError("send", ErrBufferTimeout, "buffer not draining")
			}
			timer.Reset(s.sendTimeout)
		}
		buffered = s.channel.BufferedAmount()
	}
	return nil
}
