// Reef is a Conan package repository service.
// Copyright (C) 2025 Matthew Burns
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Package lock provides a mutually-exclusive lease on a storage key with
// automatic expiration. Leases are persisted in a SQLite table so that
// several processes sharing the database serialize against each other.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	_ "modernc.org/sqlite"
)

// DefaultTTL is the lease lifetime when none is configured.
const DefaultTTL = time.Hour

// acquirePollInterval is how often a blocked Acquire retries the claim.
const acquirePollInterval = 100 * time.Millisecond

// ErrUnavailable is returned when a lease cannot be acquired before the
// context is done.
var ErrUnavailable = errors.New("lock: lease unavailable")

// Locker hands out exclusive leases keyed by storage key.
type Locker interface {
	// Acquire blocks until the lease for key is granted or ctx is done.
	Acquire(ctx context.Context, key string) (*Lease, error)
}

// Lease is a granted lock. Release returns the lock before its expiry;
// an expired or already-released lease releases as a no-op.
type Lease struct {
	svc   *Service
	key   string
	token string
}

// Key returns the storage key the lease covers.
func (l *Lease) Key() string {
	return l.key
}

// Release returns the lease. Idempotent: releasing twice, or releasing a
// lease another owner has since claimed, does nothing.
func (l *Lease) Release() error {
	_, err := l.svc.db.Exec(
		`DELETE FROM leases WHERE key = ? AND token = ?`, l.key, l.token)
	if err != nil {
		return fmt.Errorf("failed to release lease on %q: %w", l.key, err)
	}
	return nil
}

// Service is a SQLite-backed Locker.
type Service struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
}

// Open creates a lock service backed by the SQLite database at dbPath,
// creating the schema if needed.
func Open(dbPath string) (*Service, error) {
	return OpenWithTTL(dbPath, DefaultTTL)
}

// OpenWithTTL creates a lock service with a custom lease lifetime.
func OpenWithTTL(dbPath string, ttl time.Duration) (*Service, error) {
	if ttl <= 0 {
		return nil, fmt.Errorf("lease ttl must be positive, got %v", ttl)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open lock database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping lock database: %w", err)
	}

	// Concurrent claimers funnel through a single connection; SQLite
	// serializes the writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec(`CREATE TABLE IF NOT EXISTS leases (
		key        TEXT PRIMARY KEY,
		token      TEXT NOT NULL,
		expires_at INTEGER NOT NULL
	)`); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create leases table: %w", err)
	}

	return &Service{
		db:  db,
		ttl: ttl,
		now: time.Now,
	}, nil
}

// Close closes the underlying database.
func (s *Service) Close() error {
	return s.db.Close()
}

// Acquire claims the lease for key, waiting out any live lease held
// elsewhere. An expired lease is claimed in place.
func (s *Service) Acquire(ctx context.Context, key string) (*Lease, error) {
	token := uuid.NewString()

	for {
		granted, err := s.tryAcquire(ctx, key, token)
		if err != nil {
			return nil, err
		}
		if granted {
			return &Lease{svc: s, key: key, token: token}, nil
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s: %v", ErrUnavailable, key, ctx.Err())
		case <-time.After(acquirePollInterval):
		}
	}
}

func (s *Service) tryAcquire(ctx context.Context, key, token string) (bool, error) {
	now := s.now().UnixMilli()
	expires := s.now().Add(s.ttl).UnixMilli()

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO leases (key, token, expires_at) VALUES (?, ?, ?)
		 ON CONFLICT(key) DO UPDATE
		 SET token = excluded.token, expires_at = excluded.expires_at
		 WHERE leases.expires_at <= ?`,
		key, token, expires, now)
	if err != nil {
		return false, fmt.Errorf("failed to claim lease on %q: %w", key, err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read claim result: %w", err)
	}
	return n > 0, nil
}
