// Package session implements SessionSvc (spec §4.3, C3): the only writer of
// Session records. It fans out to store.Store and applies no policy of its
// own — Shell decides when an area transition happens.
package session

import (
	"context"
	"encoding/hex"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/store"
	"github.com/boardwalkbbs/server/internal/bbslog"
)

// Service is SessionSvc.
type Service struct {
	store store.Store
	log   *bbslog.Logger

	// locks serializes commands addressed to the same session key (spec §5:
	// "a second command on the same session key must not begin until the
	// previous one has persisted"). The HTTP command handler holds the
	// per-key lock across an entire Shell dispatch, not just the SessionSvc
	// calls within it.
	locks sync.Map // session key -> *sync.Mutex
}

// New constructs a SessionSvc over store.
func New(st store.Store, log *bbslog.Logger) *Service {
	if log == nil {
		log = bbslog.NewDefault("session")
	}
	return &Service{store: st, log: log}
}

// Lock returns the per-session mutex for key, creating it on first use.
// Callers (bbshttp's terminal command handler) hold it for the duration of
// one command's dispatch.
func (s *Service) Lock(key string) *sync.Mutex {
	m, _ := s.locks.LoadOrStore(key, &sync.Mutex{})
	return m.(*sync.Mutex)
}

// NewSessionKey generates a collision-resistant random session key.
func NewSessionKey() string {
	id := uuid.New()
	return hex.EncodeToString(id[:])
}

// Create implements SessionSvc.create: uses existingKey verbatim if given,
// generating one otherwise; returns the existing session unchanged if
// existingKey already names one.
func (s *Service) Create(ctx context.Context, existingKey string) (domain.Session, error) {
	key := existingKey
	if key == "" {
		key = NewSessionKey()
	}
	sess, err := s.store.SessionUpsert(ctx, key, store.SessionInit{CurrentArea: "main"})
	if err != nil {
		return domain.Session{}, store.StoreFaultWrap(err)
	}
	return sess, nil
}

// Get implements SessionSvc.get: absent is reported as (zero, false).
func (s *Service) Get(ctx context.Context, key string) (domain.Session, bool, error) {
	sess, err := s.store.SessionGet(ctx, key)
	if err == store.ErrNotFound {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, store.StoreFaultWrap(err)
	}
	return sess, true, nil
}

// UpdateParams mirrors store.SessionPartial at the SessionSvc boundary.
type UpdateParams struct {
	CurrentArea    *string
	UserID         *string
	Username       *string
	Role           *string
	CommandHistory []string
	DataMerge      map[string]map[string]domain.Value
}

// Update implements SessionSvc.update; DataMerge fields are merged
// field-by-field, never a blind replace (spec §4.3).
func (s *Service) Update(ctx context.Context, key string, params UpdateParams) (domain.Session, bool, error) {
	sess, err := s.store.SessionUpdate(ctx, key, store.SessionPartial{
		CurrentArea:    params.CurrentArea,
		UserID:         params.UserID,
		Username:       params.Username,
		Role:           params.Role,
		CommandHistory: params.CommandHistory,
		DataMerge:      params.DataMerge,
	})
	if err == store.ErrNotFound {
		return domain.Session{}, false, nil
	}
	if err != nil {
		return domain.Session{}, false, store.StoreFaultWrap(err)
	}
	return sess, true, nil
}

// AppendHistory implements SessionSvc.append_history: push, truncate to
// domain.MaxHistory keeping the newest (P1).
func (s *Service) AppendHistory(ctx context.Context, key, command string) (domain.Session, error) {
	sess, ok, err := s.Get(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	history := domain.AppendHistory(sess.CommandHistory, command)
	updated, ok, err := s.Update(ctx, key, UpdateParams{CommandHistory: history})
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return updated, nil
}

// SetCurrentArea implements SessionSvc.set_current_area (P7).
func (s *Service) SetCurrentArea(ctx context.Context, key, area string) (domain.Session, error) {
	updated, ok, err := s.Update(ctx, key, UpdateParams{CurrentArea: &area})
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	return updated, nil
}

// Delete implements SessionSvc.delete.
func (s *Service) Delete(ctx context.Context, key string) error {
	if err := s.store.SessionDelete(ctx, key); err != nil {
		return store.StoreFaultWrap(err)
	}
	s.locks.Delete(key)
	return nil
}

// Check implements SessionSvc.check, the debug dump used by the Shell's
// DEBUG verb.
func (s *Service) Check(ctx context.Context, key string) (domain.Session, bool, error) {
	return s.Get(ctx, key)
}

// Reap deletes sessions inactive since before olderThan and reports how many
// were removed (spec §3 Lifecycle; scheduled by cmd/bbs-server's cron job,
// see spec §9's open question on cadence).
func (s *Service) Reap(ctx context.Context, olderThan time.Time) (int, error) {
	n, err := s.store.SessionReap(ctx, olderThan)
	if err != nil {
		return 0, store.StoreFaultWrap(err)
	}
	s.log.Info("session reap complete", "removed", n)
	return n, nil
}
