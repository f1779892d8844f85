// Package sqlstore provides SQLite backed implementations of the faucet
// stores so cooldown records survive a restart.
package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/ardanlabs/faucet/business/core/faucet"
	_ "modernc.org/sqlite"
)

// DB wraps the database handle shared by both stores.
type DB struct {
	db  *sql.DB
	now func() time.Time
	mu  sync.Mutex
}

// Open creates or opens the database at the path and makes sure the schema
// exists. A nil clock defaults to time.Now.
func Open(path string, now func() time.Time) (*DB, error) {
	if now == nil {
		now = time.Now
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(1)

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	d := DB{db: db, now: now}
	if err := d.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return &d, nil
}

func (d *DB) initSchema() error {
	const q = `
	CREATE TABLE IF NOT EXISTS challenges (
		session_id TEXT PRIMARY KEY,
		challenge TEXT NOT NULL,
		difficulty INTEGER NOT NULL,
		issued_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_challenges_issued ON challenges(issued_at);

	CREATE TABLE IF NOT EXISTS claims (
		claim_key TEXT PRIMARY KEY,
		claimed_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_claims_claimed ON claims(claimed_at);
	`
	if _, err := d.db.Exec(q); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (d *DB) Ping(ctx context.Context) error {
	return d.db.PingContext(ctx)
}

// Close closes the database.
func (d *DB) Close() error {
	return d.db.Close()
}

// Challenges returns the challenge store backed by the database.
func (d *DB) Challenges() *Challenges {
	return &Challenges{d: d}
}

// Claims returns the cooldown store backed by the database.
func (d *DB) Claims() *Claims {
	return &Claims{d: d}
}

// =============================================================================

// Challenges is a SQLite challenge store.
type Challenges struct {
	d *DB
}

// Set stores the challenge for the ttl.
func (s *Challenges) Set(ctx context.Context, ch faucet.Challenge, ttl time.Duration) error {
	const q = `
	INSERT INTO challenges (session_id, challenge, difficulty, issued_at, expires_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		challenge = excluded.challenge,
		difficulty = excluded.difficulty,
		issued_at = excluded.issued_at,
		expires_at = excluded.expires_at`

	expires := s.d.now().Add(ttl)

	if _, err := s.d.db.ExecContext(ctx, q, ch.SessionID, ch.Challenge, ch.Difficulty, ch.IssuedAt.UnixNano(), expires.UnixNano()); err != nil {
		return fmt.Errorf("insert challenge: %w", err)
	}
	return nil
}

// Get returns the challenge for the session without removing it.
func (s *Challenges) Get(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	const q = `
	SELECT session_id, challenge, difficulty, issued_at
	FROM challenges WHERE session_id = ? AND expires_at > ?`

	return scanChallenge(s.d.db.QueryRowContext(ctx, q, sessionID, s.d.now().UnixNano()))
}

// Take returns the challenge for the session and removes it.
func (s *Challenges) Take(ctx context.Context, sessionID string) (faucet.Challenge, error) {
	const q = `
	DELETE FROM challenges WHERE session_id = ?
	RETURNING session_id, challenge, difficulty, issued_at, expires_at`

	row := s.d.db.QueryRowContext(ctx, q, sessionID)

	var ch faucet.Challenge
	var issuedAt, expiresAt int64
	if err := row.Scan(&ch.SessionID, &ch.Challenge, &ch.Difficulty, &issuedAt, &expiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return faucet.Challenge{}, faucet.ErrNotFound
		}
		return faucet.Challenge{}, fmt.Errorf("take challenge: %w", err)
	}

	if expiresAt <= s.d.now().UnixNano() {
		return faucet.Challenge{}, faucet.ErrNotFound
	}
	ch.IssuedAt = time.Unix(0, issuedAt)

	return ch, nil
}

// Delete removes the challenge for the session.
func (s *Challenges) Delete(ctx context.Context, sessionID string) error {
	if _, err := s.d.db.ExecContext(ctx, `DELETE FROM challenges WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("delete challenge: %w", err)
	}
	return nil
}

// Sweep removes the challenges issued before the specified time and the
// ones past their ttl.
func (s *Challenges) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	const q = `DELETE FROM challenges WHERE issued_at < ? OR expires_at <= ?`

	result, err := s.d.db.ExecContext(ctx, q, olderThan.UnixNano(), s.d.now().UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep challenges: %w", err)
	}

	n, err := result.RowsAffected()
	return int(n), err
}

func scanChallenge(row *sql.Row) (faucet.Challenge, error) {
	var ch faucet.Challenge
	var issuedAt int64

	if err := row.Scan(&ch.SessionID, &ch.Challenge, &ch.Difficulty, &issuedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return faucet.Challenge{}, faucet.ErrNotFound
		}
		return faucet.Challenge{}, fmt.Errorf("scan challenge: %w", err)
	}
	ch.IssuedAt = time.Unix(0, issuedAt)

	return ch, nil
}

// =============================================================================

// Claims is a SQLite cooldown store.
type Claims struct {
	d *DB
}

// LastClaim returns the time of the last claim for the key.
func (s *Claims) LastClaim(ctx context.Context, key string) (time.Time, error) {
	var at int64
	err := s.d.db.QueryRowContext(ctx, `SELECT claimed_at FROM claims WHERE claim_key = ?`, key).Scan(&at)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return time.Time{}, faucet.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("last claim: %w", err)
	}

	return time.Unix(0, at), nil
}

// Reserve records a claim for the key unless the key is inside the cooldown.
func (s *Claims) Reserve(ctx context.Context, key string, at time.Time, cooldown time.Duration) (faucet.Reservation, error) {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	tx, err := s.d.db.BeginTx(ctx, nil)
	if err != nil {
		return faucet.Reservation{}, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	r := faucet.Reservation{Key: key, At: at}

	var prev int64
	err = tx.QueryRowContext(ctx, `SELECT claimed_at FROM claims WHERE claim_key = ?`, key).Scan(&prev)
	switch {
	case errors.Is(err, sql.ErrNoRows):
	case err != nil:
		return faucet.Reservation{}, fmt.Errorf("select claim: %w", err)
	default:
		r.Prev = time.Unix(0, prev)
		if elapsed := at.Sub(r.Prev); elapsed < cooldown {
			return faucet.Reservation{}, &faucet.CooldownError{Key: key, RetryAfter: cooldown - elapsed}
		}
	}

	const q = `
	INSERT INTO claims (claim_key, claimed_at) VALUES (?, ?)
	ON CONFLICT(claim_key) DO UPDATE SET claimed_at = excluded.claimed_at`

	if _, err := tx.ExecContext(ctx, q, key, at.UnixNano()); err != nil {
		return faucet.Reservation{}, fmt.Errorf("upsert claim: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return faucet.Reservation{}, fmt.Errorf("commit: %w", err)
	}

	return r, nil
}

// Release undoes a reservation if it is still the current record for the key.
func (s *Claims) Release(ctx context.Context, r faucet.Reservation) error {
	s.d.mu.Lock()
	defer s.d.mu.Unlock()

	var err error
	if r.Prev.IsZero() {
		_, err = s.d.db.ExecContext(ctx, `DELETE FROM claims WHERE claim_key = ? AND claimed_at = ?`, r.Key, r.At.UnixNano())
	} else {
		_, err = s.d.db.ExecContext(ctx, `UPDATE claims SET claimed_at = ? WHERE claim_key = ? AND claimed_at = ?`, r.Prev.UnixNano(), r.Key, r.At.UnixNano())
	}

	if err != nil {
		return fmt.Errorf("release claim: %w", err)
	}
	return nil
}

// Sweep removes the records last claimed before the specified time.
func (s *Claims) Sweep(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.d.db.ExecContext(ctx, `DELETE FROM claims WHERE claimed_at < ?`, olderThan.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sweep claims: %w", err)
	}

	n, err := result.RowsAffected()
	return int(n), err
}
