package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/BioHazard786/linkdrop/internal/dns"
	"github.com/sirupsen/logrus"
)

const (
	requestTimeout  = 15 * time.Second
	maxResponseSize = 1 << 20
)

// Client talks to the room coordination service. Every call is a single
// request/response exchange with no local retry or caching.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient creates a client for baseURL. Host names are resolved through
// dns.Lookup so a broken system resolver falls back to public DNS.
func NewClient(baseURL string) *Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.DialContext = dns.DialContext

	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Transport: transport,
			Timeout:   requestTimeout,
		},
	}
}

// NewClientWithHTTP uses hc as is. Tests pass httptest clients here.
func NewClientWithHTTP(baseURL string, hc *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: hc}
}

// CreateRoom registers a new room carrying the initiator's signal.
func (c *Client) CreateRoom(ctx context.Context, signal Signal, fileName string, fileSize int64) (*CreateRoomResponse, error) {
	req := CreateRoomRequest{Signal: signal, FileName: fileName, FileSize: fileSize}

	var resp CreateRoomResponse
	if err := c.do(ctx, "create room", http.MethodPost, "/create-room", req, &resp); err != nil {
		var se *StatusError
		if errors.As(err, &se) {
			se.Err = errors.Join(ErrRoomCreation, se.Err)
		}
		return nil, err
	}
	if resp.RoomID == "" {
		return nil, &StatusError{Op: "create room", Message: "response missing roomId", Err: ErrRoomCreation}
	}
	return &resp, nil
}

// GetRoomStatus reads the current state of a room.
func (c *Client) GetRoomStatus(ctx context.Context, roomID string) (*RoomStatus, error) {
	var resp RoomStatus
	if err := c.do(ctx, "room status", http.MethodGet, "/room/"+url.PathEscape(roomID)+"/status", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// JoinRoom attaches the receiver's signal to a room.
func (c *Client) JoinRoom(ctx context.Context, roomID string, signal Signal) error {
	req := JoinRoomRequest{Signal: signal, Role: RoleReceiver}

	var resp ErrorResponse
	if err := c.do(ctx, "join room", http.MethodPost, "/join/"+url.PathEscape(roomID), req, &resp); err != nil {
		return err
	}
	if resp.Error != "" {
		return &StatusError{Op: "join room", StatusCode: http.StatusOK, Message: resp.Error, Err: ErrNetwork}
	}
	return nil
}

// GetSignal fetches the initiator's signal for a room.
func (c *Client) GetSignal(ctx context.Context, roomID string) (*SignalResponse, error) {
	var resp SignalResponse
	if err := c.do(ctx, "get signal", http.MethodGet, "/signal/"+url.PathEscape(roomID), nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return &StatusError{Op: op, Err: fmt.Errorf("encode request: %w", err)}
		}
		buf = bytes.NewReader(b)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, buf)
	if err != nil {
		return &StatusError{Op: op, Err: errors.Join(ErrNetwork, err)}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	logrus.WithFields(logrus.Fields{
		"function": "Client.do",
		"method":   method,
		"path":     path,
	}).Debug("Signaling request")

	resp, err := c.http.Do(req)
	if err != nil {
		return &StatusError{Op: op, Err: errors.Join(ErrNetwork, err)}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Err: errors.Join(ErrNetwork, err)}
	}

	if resp.StatusCode/100 != 2 {
		var e ErrorResponse
		msg := strings.TrimSpace(string(raw))
		if json.Unmarshal(raw, &e) == nil && e.Error != "" {
			msg = e.Error
		}
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Message: msg, Err: ErrNetwork}
	}

	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &StatusError{Op: op, StatusCode: resp.StatusCode, Err: errors.Join(ErrNetwork, fmt.Errorf("decode response: %w", err))}
	}
	return nil
}
