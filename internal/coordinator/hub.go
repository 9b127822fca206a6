package coordinator

import (
	"context"
	"crypto/rand"
	"errors"
	"math/big"
	"time"

	"github.com/BioHazard786/linkdrop/internal/config"
	"github.com/BioHazard786/linkdrop/internal/signaling"
	"github.com/sirupsen/logrus"
)

const (
	roomIDAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	roomIDLength   = 7
	maxIDAttempts  = 16

	// closed rooms are kept this many TTLs before deletion
	retainFactor = 3
)

// HubOptions configures a Hub. ShareURL is the base for share links.
type HubOptions struct {
	ShareURL string
	RoomTTL  time.Duration
	Now      func() time.Time
}

// Hub owns every room. All state lives in the Store, so several handlers
// may call into a Hub concurrently.
type Hub struct {
	store    Store
	shareURL string
	ttl      time.Duration
	now      func() time.Time
}

// NewHub serves rooms from store. Rooms live ten minutes unless RoomTTL
// says otherwise.
func NewHub(store Store, opts HubOptions) *Hub {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.RoomTTL <= 0 {
		opts.RoomTTL = 10 * time.Minute
	}
	return &Hub{
		store:    store,
		shareURL: opts.ShareURL,
		ttl:      opts.RoomTTL,
		now:      opts.Now,
	}
}

// CreateRoom stores the initiator's signal under a fresh room code.
func (h *Hub) CreateRoom(ctx context.Context, req signaling.CreateRoomRequest) (*signaling.CreateRoomResponse, error) {
	if signaling.IsEmpty(req.Signal) {
		return nil, errors.Join(ErrInvalidRequest, errors.New("signal is required"))
	}
	if req.FileSize < 0 {
		return nil, errors.Join(ErrInvalidRequest, errors.New("fileSize must not be negative"))
	}

	for attempt := 0; attempt < maxIDAttempts; attempt++ {
		id, err := generateRoomID()
		if err != nil {
			return nil, err
		}
		room := &Room{
			ID:              id,
			FileName:        req.FileName,
			FileSize:        req.FileSize,
			InitiatorSignal: req.Signal,
			State:           RoomOpen,
			CreatedAt:       h.now(),
		}
		err = h.store.Create(ctx, room)
		if errors.Is(err, ErrRoomExists) {
			continue
		}
		if err != nil {
			return nil, err
		}

		logrus.WithFields(logrus.Fields{
			"function": "Hub.CreateRoom",
			"room":     id,
			"file":     req.FileName,
			"size":     req.FileSize,
		}).Info("Room created")

		return &signaling.CreateRoomResponse{
			RoomID:    id,
			ShareLink: h.shareLink(id),
		}, nil
	}
	return nil, errors.New("could not allocate a unique room id")
}

func (h *Hub) shareLink(id string) string {
	if h.shareURL == "" {
		return ""
	}
	return config.RoomLink(h.shareURL, id)
}

// Status never fails for an unknown room; it reports Exists false instead.
func (h *Hub) Status(ctx context.Context, id string) (*signaling.RoomStatus, error) {
	room, err := h.store.Get(ctx, id)
	if errors.Is(err, ErrRoomNotFound) {
		return &signaling.RoomStatus{}, nil
	}
	if err != nil {
		return nil, err
	}
	return &signaling.RoomStatus{
		Exists:         true,
		HasReceiver:    room.ReceiverSignal != nil,
		CanJoin:        room.CanJoin(),
		ReceiverSignal: room.ReceiverSignal,
	}, nil
}

// Join attaches the receiver's signal. Only the first join on an open
// room succeeds.
func (h *Hub) Join(ctx context.Context, id string, req signaling.JoinRoomRequest) error {
	if signaling.IsEmpty(req.Signal) {
		return errors.Join(ErrInvalidRequest, errors.New("signal is required"))
	}
	if req.Role != "" && req.Role != signaling.RoleReceiver {
		return errors.Join(ErrInvalidRequest, errors.New("role must be receiver"))
	}
	if err := h.store.Join(ctx, id, req.Signal); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{
		"function": "Hub.Join",
		"room":     id,
	}).Info("Receiver joined")
	return nil
}

// Signal returns the initiator's signal while the room is not closed.
func (h *Hub) Signal(ctx context.Context, id string) (*signaling.SignalResponse, error) {
	room, err := h.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.State == RoomClosed {
		return nil, ErrRoomNotFound
	}
	return &signaling.SignalResponse{Signal: room.InitiatorSignal}, nil
}

// Sweep closes rooms older than the TTL and deletes long-closed ones.
func (h *Hub) Sweep(ctx context.Context) error {
	now := h.now()
	closed, err := h.store.ExpireBefore(ctx, now.Add(-h.ttl))
	if err != nil {
		return err
	}
	deleted, err := h.store.DeleteBefore(ctx, now.Add(-retainFactor*h.ttl))
	if err != nil {
		return err
	}
	if closed > 0 || deleted > 0 {
		logrus.WithFields(logrus.Fields{
			"function": "Hub.Sweep",
			"expired":  closed,
			"deleted":  deleted,
		}).Debug("Swept rooms")
	}
	return nil
}

// Run sweeps every interval until ctx ends.
func (h *Hub) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := h.Sweep(ctx); err != nil && ctx.Err() == nil {
				logrus.WithFields(logrus.Fields{
					"function": "Hub.Run",
					"error":    err.Error(),
				}).Warn("Room sweep failed")
			}
		}
	}
}

func generateRoomID() (string, error) {
	b := make([]byte, roomIDLength)
	for i := range b {
		n, err := randomIndex(len(roomIDAlphabet))
		if err != nil {
			return "", err
		}
		b[i] = roomIDAlphabet[n]
	}
	return string(b), nil
}

// randomIndex returns a cryptographically secure index in [0, max).
func randomIndex(max int) (int, error) {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		return 0, err
	}
	return int(n.Int64()), nil
}
