package signaling

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClientWithHTTP(srv.URL+"/", srv.Client())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func TestCreateRoom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/create-room", r.URL.Path)

		var req CreateRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(req.Signal))
		assert.Equal(t, "a.txt", req.FileName)
		assert.EqualValues(t, 42, req.FileSize)

		writeJSON(w, http.StatusOK, CreateRoomResponse{RoomID: "Ab3dE5f", ShareLink: "https://x/?room=Ab3dE5f"})
	})

	resp, err := c.CreateRoom(context.Background(), Signal(`{"type":"offer","sdp":"v=0"}`), "a.txt", 42)
	require.NoError(t, err)
	assert.Equal(t, "Ab3dE5f", resp.RoomID)
	assert.Equal(t, "https://x/?room=Ab3dE5f", resp.ShareLink)
}

func TestCreateRoomFailure(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusInternalServerError, ErrorResponse{Error: "boom"})
	})

	_, err := c.CreateRoom(context.Background(), Signal(`{}`), "a", 1)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRoomCreation)
	assert.ErrorIs(t, err, ErrNetwork)

	var se *StatusError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusInternalServerError, se.StatusCode)
	assert.Equal(t, "boom", se.Message)
}

func TestGetRoomStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/room/Ab3dE5f/status", r.URL.Path)
		_, _ = w.Write([]byte(`{"exists":true,"hasReceiver":true,"canJoin":false,"receiverSignal":{"type":"answer","sdp":"v=0"}}`))
	})

	st, err := c.GetRoomStatus(context.Background(), "Ab3dE5f")
	require.NoError(t, err)
	assert.True(t, st.Exists)
	assert.True(t, st.HasReceiver)
	assert.False(t, st.CanJoin)
	assert.True(t, st.HasReceiverSignal())
}

func TestGetRoomStatusWithoutSignal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"exists":true,"hasReceiver":false,"canJoin":true,"receiverSignal":null}`))
	})

	st, err := c.GetRoomStatus(context.Background(), "Ab3dE5f")
	require.NoError(t, err)
	assert.False(t, st.HasReceiverSignal())
}

func TestJoinRoom(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/join/Ab3dE5f", r.URL.Path)

		var req JoinRoomRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, RoleReceiver, req.Role)
		_, _ = w.Write([]byte(`{}`))
	})

	require.NoError(t, c.JoinRoom(context.Background(), "Ab3dE5f", Signal(`{"type":"answer","sdp":"x"}`)))
}

func TestJoinRoomRejected(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusConflict, ErrorResponse{Error: "room already has a receiver"})
	})

	err := c.JoinRoom(context.Background(), "Ab3dE5f", Signal(`{"type":"answer"}`))
	assert.ErrorIs(t, err, ErrNetwork)
	assert.Contains(t, err.Error(), "room already has a receiver")
}

func TestGetSignal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/signal/Ab3dE5f", r.URL.Path)
		_, _ = w.Write([]byte(`{"signal":{"type":"offer","sdp":"v=0"}}`))
	})

	resp, err := c.GetSignal(context.Background(), "Ab3dE5f")
	require.NoError(t, err)
	assert.JSONEq(t, `{"type":"offer","sdp":"v=0"}`, string(resp.Signal))
}

func TestUnreachableServer(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := NewClientWithHTTP(url, http.DefaultClient)
	_, err := c.GetRoomStatus(context.Background(), "Ab3dE5f")
	assert.ErrorIs(t, err, ErrNetwork)
}

func TestIsEmpty(t *testing.T) {
	for _, s := range []string{"", "null", `""`, "{}"} {
		assert.True(t, IsEmpty(Signal(s)), s)
	}
	assert.False(t, IsEmpty(Signal(`{"type":"offer"}`)))
}
