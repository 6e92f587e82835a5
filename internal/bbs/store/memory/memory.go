// Package memory is a thread-safe in-memory Store implementation, in the
// teacher's own words (internal/app/storage/memory.go) "intended for tests
// and prototyping, deliberately kept simple."
package memory

import (
	"context"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/store"
)

type kvKey struct {
	appID, key, userID, namespace string
}

// Memory is the in-memory Store.
type Memory struct {
	mu       sync.RWMutex
	sessions map[string]domain.Session
	users    map[string]domain.User // by id
	byName   map[string]string      // lowercase username -> id
	byEmail  map[string]string      // lowercase email -> id
	kv       map[kvKey]domain.KeyValue
	nextID   int64
}

// New creates an empty in-memory store.
func New() *Memory {
	return &Memory{
		sessions: make(map[string]domain.Session),
		users:    make(map[string]domain.User),
		byName:   make(map[string]string),
		byEmail:  make(map[string]string),
		kv:       make(map[kvKey]domain.KeyValue),
		nextID:   1,
	}
}

func (m *Memory) nextIDLocked() string {
	id := m.nextID
	m.nextID++
	return "u" + strconv.FormatInt(id, 10)
}

var _ store.Store = (*Memory)(nil)

// --- Sessions ----------------------------------------------------------

func (m *Memory) SessionGet(_ context.Context, key string) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}
	s.LastActivity = time.Now().UTC()
	m.sessions[key] = s
	return s.Clone(), nil
}

func (m *Memory) SessionUpsert(_ context.Context, key string, init store.SessionInit) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.sessions[key]; ok {
		return existing.Clone(), nil
	}

	now := time.Now().UTC()
	area := init.CurrentArea
	if area == "" {
		area = "main"
	}
	s := domain.Session{
		Key:          key,
		CurrentArea:  area,
		Data:         make(map[string]map[string]domain.Value),
		CreatedAt:    now,
		LastActivity: now,
		ClientAddr:   init.ClientAddr,
		ClientAgent:  init.ClientAgent,
	}
	m.sessions[key] = s
	return s.Clone(), nil
}

func (m *Memory) SessionUpdate(_ context.Context, key string, partial store.SessionPartial) (domain.Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[key]
	if !ok {
		return domain.Session{}, store.ErrNotFound
	}

	if partial.CurrentArea != nil {
		s.CurrentArea = *partial.CurrentArea
	}
	if partial.UserID != nil {
		s.UserID = *partial.UserID
	}
	if partial.Username != nil {
		s.Username = *partial.Username
	}
	if partial.Role != nil {
		s.Role = *partial.Role
	}
	if partial.CommandHistory != nil {
		s.CommandHistory = append([]string(nil), partial.CommandHistory...)
	}
	if partial.DataMerge != nil {
		if s.Data == nil {
			s.Data = make(map[string]map[string]domain.Value)
		}
		for appID, bag := range partial.DataMerge {
			dst, ok := s.Data[appID]
			if !ok {
				dst = make(map[string]domain.Value)
			}
			for k, v := range bag {
				dst[k] = v
			}
			s.Data[appID] = dst
		}
	}
	s.LastActivity = time.Now().UTC()

	m.sessions[key] = s
	return s.Clone(), nil
}

func (m *Memory) SessionDelete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, key)
	return nil
}

func (m *Memory) SessionReap(_ context.Context, olderThan time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for key, s := range m.sessions {
		if s.LastActivity.Before(olderThan) {
			delete(m.sessions, key)
			count++
		}
	}
	return count, nil
}

// --- Users ---------------------------------------------------------------

func (m *Memory) UserFindByUsername(_ context.Context, username string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byName[strings.ToLower(username)]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UserFindByID(_ context.Context, id string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	u, ok := m.users[id]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return u, nil
}

func (m *Memory) UserFindByEmail(_ context.Context, email string) (domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	id, ok := m.byEmail[strings.ToLower(email)]
	if !ok {
		return domain.User{}, store.ErrNotFound
	}
	return m.users[id], nil
}

func (m *Memory) UserCreate(_ context.Context, u domain.User) (domain.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	u.Username = strings.ToLower(u.Username)
	if _, exists := m.byName[u.Username]; exists {
		return domain.User{}, store.ErrConflict
	}
	if u.Email != "" {
		u.Email = strings.ToLower(u.Email)
		if _, exists := m.byEmail[u.Email]; exists {
			return domain.User{}, store.ErrConflict
		}
	}

	if u.ID == "" {
		u.ID = m.nextIDLocked()
	}
	if u.JoinDate.IsZero() {
		u.JoinDate = time.Now().UTC()
	}

	m.users[u.ID] = u
	m.byName[u.Username] = u.ID
	if u.Email != "" {
		m.byEmail[u.Email] = u.ID
	}
	return u, nil
}

func (m *Memory) UserUpdateLastLogin(_ context.Context, id string, when time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.LastLogin = when
	m.users[id] = u
	return nil
}

func (m *Memory) UserUpdatePassword(_ context.Context, id string, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[id]
	if !ok {
		return store.ErrNotFound
	}
	u.PasswordHash = hash
	m.users[id] = u
	return nil
}

// --- Key/Value -------------------------------------------------------------

func (m *Memory) KVGet(_ context.Context, appID, key, userID, namespace string) (domain.KeyValue, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	kv, ok := m.kv[kvKey{appID, key, userID, namespace}]
	if !ok || kv.Expired(time.Now().UTC()) {
		return domain.KeyValue{}, store.ErrNotFound
	}
	return kv, nil
}

func (m *Memory) KVUpsert(_ context.Context, kv domain.KeyValue) (domain.KeyValue, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	k := kvKey{kv.AppID, kv.Key, kv.UserID, kv.Namespace}
	now := time.Now().UTC()
	if existing, ok := m.kv[k]; ok {
		kv.CreatedAt = existing.CreatedAt
	} else {
		kv.CreatedAt = now
	}
	kv.UpdatedAt = now
	m.kv[k] = kv
	return kv, nil
}

func (m *Memory) KVDelete(_ context.Context, appID, key, userID, namespace string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.kv, kvKey{appID, key, userID, namespace})
	return nil
}
