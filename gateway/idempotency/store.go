package idempotency

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	"lukechampine.com/blake3"
	_ "modernc.org/sqlite"
)

// ErrMismatch is returned when a key is reused with a different request.
var ErrMismatch = errors.New("idempotency key reused with a different request body")

// Response is a cached write response.
type Response struct {
	Status int
	Body   []byte
}

// Store persists idempotency keys and the responses they produced in sqlite.
type Store struct {
	db    *sql.DB
	nowFn func() time.Time
}

func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// sqlite allows a single writer; one connection avoids SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	store := &Store{db: db, nowFn: time.Now}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) init() error {
	const schema = `CREATE TABLE IF NOT EXISTS idempotency_keys (
            caller TEXT NOT NULL,
            idempotency_key TEXT NOT NULL,
            request_hash TEXT NOT NULL,
            response_status INTEGER NOT NULL,
            response_body BLOB NOT NULL,
            created_at TIMESTAMP NOT NULL,
            PRIMARY KEY(caller, idempotency_key)
        );`
	_, err := s.db.Exec(schema)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

// Lookup returns the cached response for key, nil when the key is unused, or
// ErrMismatch when the key was recorded for a different request hash.
func (s *Store) Lookup(ctx context.Context, caller, key, requestHash string) (*Response, error) {
	const query = `SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE caller = ? AND idempotency_key = ?`
	var (
		status     int
		body       []byte
		storedHash string
	)
	err := s.db.QueryRowContext(ctx, query, caller, key).Scan(&status, &body, &storedHash)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if storedHash != requestHash {
		return nil, ErrMismatch
	}
	return &Response{Status: status, Body: body}, nil
}

// Save records the response produced for key. The first stored response wins.
func (s *Store) Save(ctx context.Context, caller, key, requestHash string, resp Response) error {
	const stmt = `INSERT OR IGNORE INTO idempotency_keys(caller, idempotency_key, request_hash, response_status, response_body, created_at) VALUES (?, ?, ?, ?, ?, ?)`
	body := resp.Body
	if body == nil {
		body = []byte{}
	}
	_, err := s.db.ExecContext(ctx, stmt, caller, key, requestHash, resp.Status, body, s.nowFn().UTC())
	return err
}

// Prune removes keys recorded before cutoff and reports how many were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM idempotency_keys WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// HashRequest binds a key to the method, path and body it was first used with.
func HashRequest(method, path string, body []byte) string {
	hasher := blake3.New(32, nil)
	_, _ = hasher.Write([]byte(method))
	_, _ = hasher.Write([]byte{'\n'})
	_, _ = hasher.Write([]byte(path))
	_, _ = hasher.Write([]byte{'\n'})
	_, _ = hasher.Write(body)
	return hex.EncodeToString(hasher.Sum(nil))
}
