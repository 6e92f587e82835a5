// Package store defines the persistence abstraction (spec §4.1, C1) and its
// implementations. Every call is two-valued: (payload, error); a Store never
// panics out of band, and every not-found case is a plain (zero, nil) or a
// sentinel the caller checks with errors.Is, never an out-of-band throw.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

// ErrNotFound is returned by Get-style calls when the record is absent.
// Callers treat it as "absent", not a fault.
var ErrNotFound = errors.New("store: not found")

// ErrConflict is returned when a write would violate a uniqueness rule the
// Store layer enforces: UserCreate with a username or email already taken
// (spec §3 Invariants).
var ErrConflict = errors.New("store: conflict")

// SessionInit is the optional seed data for session_upsert.
type SessionInit struct {
	CurrentArea string
	ClientAddr  string
	ClientAgent string
}

// SessionPartial is a partial update for session_update; nil fields are
// left unchanged. DataMerge is merged field-by-field into Session.Data
// rather than replacing it (spec §4.3).
type SessionPartial struct {
	CurrentArea    *string
	UserID         *string
	Username       *string
	Role           *string
	CommandHistory []string
	DataMerge      map[string]map[string]domain.Value
}

// Store is the persistence abstraction every component reaches storage
// through. Implementations: store/memory (tests, single-process dev) and
// store/postgres (durable).
type Store interface {
	SessionGet(ctx context.Context, key string) (domain.Session, error)
	SessionUpsert(ctx context.Context, key string, init SessionInit) (domain.Session, error)
	SessionUpdate(ctx context.Context, key string, partial SessionPartial) (domain.Session, error)
	SessionDelete(ctx context.Context, key string) error
	SessionReap(ctx context.Context, olderThan time.Time) (int, error)

	UserFindByUsername(ctx context.Context, username string) (domain.User, error)
	UserFindByID(ctx context.Context, id string) (domain.User, error)
	UserFindByEmail(ctx context.Context, email string) (domain.User, error)
	UserCreate(ctx context.Context, u domain.User) (domain.User, error)
	UserUpdateLastLogin(ctx context.Context, id string, when time.Time) error
	UserUpdatePassword(ctx context.Context, id string, hash string) error

	KVGet(ctx context.Context, appID, key, userID, namespace string) (domain.KeyValue, error)
	KVUpsert(ctx context.Context, kv domain.KeyValue) (domain.KeyValue, error)
	KVDelete(ctx context.Context, appID, key, userID, namespace string) error
}
