// Package postgres implements Store against PostgreSQL, following the SQL
// shape of the teacher's internal/app/storage/postgres/store.go but scanning
// through sqlx instead of bare database/sql, since the scan boilerplate a
// three-table Store needs is exactly what sqlx.Get/Select exist to remove.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/store"
)

// Store implements store.Store backed by PostgreSQL.
type Store struct {
	db *sqlx.DB
}

var _ store.Store = (*Store)(nil)

// Open opens a Postgres connection pool and wraps it as a Store. dsn is the
// one required config value in spec §6.
func Open(dsn string) (*Store, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// New wraps an already-opened sqlx handle, used by tests with go-sqlmock.
func New(db *sqlx.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Close() error { return s.db.Close() }

type sessionRow struct {
	Key            string    `db:"key"`
	UserID         string    `db:"user_id"`
	Username       string    `db:"username"`
	Role           string    `db:"role"`
	CurrentArea    string    `db:"current_area"`
	CommandHistory []byte    `db:"command_history"`
	Data           []byte    `db:"data"`
	CreatedAt      time.Time `db:"created_at"`
	LastActivity   time.Time `db:"last_activity"`
	ClientAddr     string    `db:"client_addr"`
	ClientAgent    string    `db:"client_agent"`
}

func (r sessionRow) toDomain() (domain.Session, error) {
	var history []string
	if len(r.CommandHistory) > 0 {
		if err := json.Unmarshal(r.CommandHistory, &history); err != nil {
			return domain.Session{}, err
		}
	}
	data := make(map[string]map[string]domain.Value)
	if len(r.Data) > 0 {
		if err := json.Unmarshal(r.Data, &data); err != nil {
			return domain.Session{}, err
		}
	}
	return domain.Session{
		Key:            r.Key,
		UserID:         r.UserID,
		Username:       r.Username,
		Role:           r.Role,
		CurrentArea:    r.CurrentArea,
		CommandHistory: history,
		Data:           data,
		CreatedAt:      r.CreatedAt,
		LastActivity:   r.LastActivity,
		ClientAddr:     r.ClientAddr,
		ClientAgent:    r.ClientAgent,
	}, nil
}

// --- Sessions ---------------------------------------------------------------

func (s *Store) SessionGet(ctx context.Context, key string) (domain.Session, error) {
	_, err := s.db.ExecContext(ctx, `UPDATE bbs_sessions SET last_activity = $1 WHERE key = $2`, time.Now().UTC(), key)
	if err != nil {
		return domain.Session{}, store.StoreFaultWrap(err)
	}

	var row sessionRow
	err = s.db.GetContext(ctx, &row, `
		SELECT key, user_id, username, role, current_area, command_history, data,
		       created_at, last_activity, client_addr, client_agent
		FROM bbs_sessions WHERE key = $1`, key)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Session{}, store.ErrNotFound
	}
	if err != nil {
		return domain.Session{}, store.StoreFaultWrap(err)
	}
	return row.toDomain()
}

func (s *Store) SessionUpsert(ctx context.Context, key string, init store.SessionInit) (domain.Session, error) {
	if existing, err := s.SessionGet(ctx, key); err == nil {
		return existing, nil
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Session{}, err
	}

	area := init.CurrentArea
	if area == "" {
		area = "main"
	}
	now := time.Now().UTC()
	history, _ := json.Marshal([]string{})
	data, _ := json.Marshal(map[string]map[string]domain.Value{})

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bbs_sessions (key, current_area, command_history, data, created_at, last_activity, client_addr, client_agent)
		VALUES ($1, $2, $3, $4, $5, $5, $6, $7)`,
		key, area, history, data, now, init.ClientAddr, init.ClientAgent)
	if err != nil {
		return domain.Session{}, store.StoreFaultWrap(err)
	}

	return s.SessionGet(ctx, key)
}

func (s *Store) SessionUpdate(ctx context.Context, key string, partial store.SessionPartial) (domain.Session, error) {
	current, err := s.SessionGet(ctx, key)
	if err != nil {
		return domain.Session{}, err
	}

	if partial.CurrentArea != nil {
		current.CurrentArea = *partial.CurrentArea
	}
	if partial.UserID != nil {
		current.UserID = *partial.UserID
	}
	if partial.Username != nil {
		current.Username = *partial.Username
	}
	if partial.Role != nil {
		current.Role = *partial.Role
	}
	if partial.CommandHistory != nil {
		current.CommandHistory = partial.CommandHistory
	}
	if partial.DataMerge != nil {
		if current.Data == nil {
			current.Data = make(map[string]map[string]domain.Value)
		}
		for appID, bag := range partial.DataMerge {
			dst, ok := current.Data[appID]
			if !ok {
				dst = make(map[string]domain.Value)
			}
			for k, v := range bag {
				dst[k] = v
			}
			current.Data[appID] = dst
		}
	}

	history, _ := json.Marshal(current.CommandHistory)
	data, _ := json.Marshal(current.Data)
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		UPDATE bbs_sessions
		SET user_id = $1, username = $2, role = $3, current_area = $4,
		    command_history = $5, data = $6, last_activity = $7
		WHERE key = $8`,
		current.UserID, current.Username, current.Role, current.CurrentArea,
		history, data, now, key)
	if err != nil {
		return domain.Session{}, store.StoreFaultWrap(err)
	}

	current.LastActivity = now
	return current, nil
}

func (s *Store) SessionDelete(ctx context.Context, key string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM bbs_sessions WHERE key = $1`, key)
	if err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

func (s *Store) SessionReap(ctx context.Context, olderThan time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM bbs_sessions WHERE last_activity < $1`, olderThan)
	if err != nil {
		return 0, store.StoreFaultWrap(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, store.StoreFaultWrap(err)
	}
	return int(n), nil
}

// --- Users -------------------------------------------------------------------

type userRow struct {
	ID           string    `db:"id"`
	Username     string    `db:"username"`
	DisplayName  string    `db:"display_name"`
	Email        string    `db:"email"`
	PasswordHash string    `db:"password_hash"`
	Role         string    `db:"role"`
	JoinDate     time.Time `db:"join_date"`
	LastLogin    time.Time `db:"last_login"`
	Settings     []byte    `db:"settings"`
}

func (r userRow) toDomain() (domain.User, error) {
	settings := make(map[string]domain.Value)
	if len(r.Settings) > 0 {
		if err := json.Unmarshal(r.Settings, &settings); err != nil {
			return domain.User{}, err
		}
	}
	return domain.User{
		ID:           r.ID,
		Username:     r.Username,
		DisplayName:  r.DisplayName,
		Email:        r.Email,
		PasswordHash: r.PasswordHash,
		Role:         domain.Role(r.Role),
		JoinDate:     r.JoinDate,
		LastLogin:    r.LastLogin,
		Settings:     settings,
	}, nil
}

func (s *Store) userByColumn(ctx context.Context, column, value string) (domain.User, error) {
	var row userRow
	query := `SELECT id, username, display_name, email, password_hash, role, join_date, last_login, settings
		FROM bbs_users WHERE ` + column + ` = $1`
	err := s.db.GetContext(ctx, &row, query, value)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.User{}, store.ErrNotFound
	}
	if err != nil {
		return domain.User{}, store.StoreFaultWrap(err)
	}
	return row.toDomain()
}

func (s *Store) UserFindByUsername(ctx context.Context, username string) (domain.User, error) {
	return s.userByColumn(ctx, "username", store.NormalizeLower(username))
}

func (s *Store) UserFindByID(ctx context.Context, id string) (domain.User, error) {
	return s.userByColumn(ctx, "id", id)
}

func (s *Store) UserFindByEmail(ctx context.Context, email string) (domain.User, error) {
	return s.userByColumn(ctx, "email", store.NormalizeLower(email))
}

func (s *Store) UserCreate(ctx context.Context, u domain.User) (domain.User, error) {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	u.Username = store.NormalizeLower(u.Username)
	u.Email = store.NormalizeLower(u.Email)
	if u.JoinDate.IsZero() {
		u.JoinDate = time.Now().UTC()
	}
	settings, _ := json.Marshal(u.Settings)

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO bbs_users (id, username, display_name, email, password_hash, role, join_date, settings)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		u.ID, u.Username, u.DisplayName, nullIfEmpty(u.Email), u.PasswordHash, string(u.Role), u.JoinDate, settings)
	if isUniqueViolation(err) {
		return domain.User{}, store.ErrConflict
	}
	if err != nil {
		return domain.User{}, store.StoreFaultWrap(err)
	}
	return u, nil
}

func (s *Store) UserUpdateLastLogin(ctx context.Context, id string, when time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bbs_users SET last_login = $1 WHERE id = $2`, when, id)
	if err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

func (s *Store) UserUpdatePassword(ctx context.Context, id string, hash string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE bbs_users SET password_hash = $1 WHERE id = $2`, hash, id)
	if err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

// --- Key/Value ---------------------------------------------------------------

type kvRow struct {
	AppID     string     `db:"app_id"`
	Key       string     `db:"key"`
	Value     []byte     `db:"value"`
	UserID    string     `db:"user_id"`
	Namespace string     `db:"namespace"`
	ExpiresAt *time.Time `db:"expires_at"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func (r kvRow) toDomain() (domain.KeyValue, error) {
	var v domain.Value
	if len(r.Value) > 0 {
		if err := json.Unmarshal(r.Value, &v); err != nil {
			return domain.KeyValue{}, err
		}
	}
	return domain.KeyValue{
		AppID:     r.AppID,
		Key:       r.Key,
		Value:     v,
		UserID:    r.UserID,
		Namespace: r.Namespace,
		ExpiresAt: r.ExpiresAt,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
	}, nil
}

func (s *Store) KVGet(ctx context.Context, appID, key, userID, namespace string) (domain.KeyValue, error) {
	var row kvRow
	err := s.db.GetContext(ctx, &row, `
		SELECT app_id, key, value, user_id, namespace, expires_at, created_at, updated_at
		FROM bbs_key_values
		WHERE app_id = $1 AND key = $2 AND user_id = $3 AND namespace = $4
		  AND (expires_at IS NULL OR expires_at >= now())`,
		appID, key, userID, namespace)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.KeyValue{}, store.ErrNotFound
	}
	if err != nil {
		return domain.KeyValue{}, store.StoreFaultWrap(err)
	}
	return row.toDomain()
}

func (s *Store) KVUpsert(ctx context.Context, kv domain.KeyValue) (domain.KeyValue, error) {
	value, err := json.Marshal(kv.Value)
	if err != nil {
		return domain.KeyValue{}, err
	}
	now := time.Now().UTC()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO bbs_key_values (app_id, key, value, user_id, namespace, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		ON CONFLICT (app_id, key, user_id, namespace)
		DO UPDATE SET value = EXCLUDED.value, expires_at = EXCLUDED.expires_at, updated_at = EXCLUDED.updated_at`,
		kv.AppID, kv.Key, value, kv.UserID, kv.Namespace, kv.ExpiresAt, now)
	if err != nil {
		return domain.KeyValue{}, store.StoreFaultWrap(err)
	}
	return s.KVGet(ctx, kv.AppID, kv.Key, kv.UserID, kv.Namespace)
}

func (s *Store) KVDelete(ctx context.Context, appID, key, userID, namespace string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM bbs_key_values WHERE app_id = $1 AND key = $2 AND user_id = $3 AND namespace = $4`,
		appID, key, userID, namespace)
	if err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(strings.ToLower(err.Error()), "unique")
}
