package coordinator

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

const schema = `
CREATE TABLE IF NOT EXISTS rooms(
  id TEXT PRIMARY KEY,
  file_name TEXT NOT NULL,
  file_size INTEGER NOT NULL,
  initiator_signal BLOB NOT NULL,
  receiver_signal BLOB,
  state INTEGER NOT NULL DEFAULT 0,
  created_at INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_rooms_created ON rooms(created_at);
`

// SQLiteStore keeps rooms in a SQLite file so they survive a restart.
type SQLiteStore struct {
	mu sync.Mutex
	db *sql.DB
}

// OpenSQLiteStore opens or creates the database at path and applies the
// schema.
func OpenSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	if _, err := db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("enable WAL: %w", err)
	}
	if _, err := db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("set busy_timeout: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) Create(ctx context.Context, room *Room) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `
INSERT INTO rooms(id, file_name, file_size, initiator_signal, state, created_at)
VALUES(?, ?, ?, ?, ?, ?)
ON CONFLICT(id) DO NOTHING`,
		room.ID, room.FileName, room.FileSize, []byte(room.InitiatorSignal), int(room.State), room.CreatedAt.UnixNano())
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrRoomExists
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.getLocked(ctx, id)
}

func (s *SQLiteStore) getLocked(ctx context.Context, id string) (*Room, error) {
	var (
		r       Room
		initSig []byte
		recvSig []byte
		state   int
		created int64
	)
	err := s.db.QueryRowContext(ctx, `
SELECT id, file_name, file_size, initiator_signal, receiver_signal, state, created_at
FROM rooms WHERE id = ?`, id).Scan(&r.ID, &r.FileName, &r.FileSize, &initSig, &recvSig, &state, &created)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	r.InitiatorSignal = json.RawMessage(initSig)
	if recvSig != nil {
		r.ReceiverSignal = json.RawMessage(recvSig)
	}
	r.State = RoomState(state)
	r.CreatedAt = time.Unix(0, created)
	return &r, nil
}

// Join claims the room with a single conditional update.
func (s *SQLiteStore) Join(ctx context.Context, id string, signal json.RawMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET receiver_signal = ?, state = ? WHERE id = ? AND state = ?`,
		[]byte(signal), int(RoomJoined), id, int(RoomOpen))
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 1 {
		return nil
	}
	if _, err := s.getLocked(ctx, id); err != nil {
		return err
	}
	return ErrRoomUnavailable
}

func (s *SQLiteStore) ExpireBefore(ctx context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx,
		`UPDATE rooms SET state = ? WHERE state < ? AND created_at < ?`,
		int(RoomClosed), int(RoomClosed), t.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLiteStore) DeleteBefore(ctx context.Context, t time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM rooms WHERE created_at < ?`, t.UnixNano())
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	return int(n), err
}
