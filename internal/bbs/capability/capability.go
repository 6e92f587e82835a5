// Package capability implements CapabilityFacade (spec §4.8, C8): the only
// door a sandboxed app has onto persistent storage, the current user, and a
// handful of safe utility functions. RemoteLoader and the builtin app
// registration path both hand an app exactly one Facade, scoped to that
// app's id, at construction time; the app never sees the Store or SessionSvc
// directly.
package capability

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/PaesslerAG/jsonpath"

	"github.com/boardwalkbbs/server/internal/audit"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/store"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
	"github.com/boardwalkbbs/server/internal/bbsmetrics"
)

// breachLogWindow matches ratelimit.CoolDown: the audit log warns at most
// once per cool-down window for a given (appID, operation) pair (spec §5).
const breachLogWindow = ratelimit.CoolDown

var scopePattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

// sanitizeScope strips anything outside [A-Za-z0-9_-] from a caller-supplied
// userId/namespace, per spec §4.8.
func sanitizeScope(raw string) string {
	return scopePattern.ReplaceAllString(raw, "")
}

// keyFor builds the §3 collision-proofing prefix "app_<appId>_[<namespace>_]"
// ahead of the caller's own key.
func keyFor(appID, namespace, key string) string {
	if namespace == "" {
		return fmt.Sprintf("app_%s_%s", appID, key)
	}
	return fmt.Sprintf("app_%s_%s_%s", appID, namespace, key)
}

// Facade is CapabilityFacade: a storage/current_user/utils surface scoped to
// one app id; every storage and current_user call is rate-limited, the
// pure Utils helpers are not.
type Facade struct {
	appID    string
	store    store.Store
	sessions *session.Service
	limiter  ratelimit.Limiter
	log      *bbslog.Logger
	audit    *audit.Log
}

// New builds a Facade for appID over the shared store/session/limiter
// instances. One Facade is constructed per app at registration time
// (Registry.Register's on_init hook), not per call. auditLog may be nil,
// in which case rate-limit breaches are counted but never written to the
// security trail.
func New(appID string, st store.Store, sessions *session.Service, limiter ratelimit.Limiter, log *bbslog.Logger, auditLog *audit.Log) *Facade {
	if log == nil {
		log = bbslog.NewDefault("capability")
	}
	return &Facade{appID: appID, store: st, sessions: sessions, limiter: limiter, log: log, audit: auditLog}
}

func (f *Facade) allow(ctx context.Context, op ratelimit.Operation) error {
	if f.limiter == nil || f.limiter.Allow(ctx, f.appID, op) {
		return nil
	}
	bbsmetrics.RateLimitBreaches.WithLabelValues(f.appID, string(op)).Inc()
	if f.audit != nil {
		f.audit.RateLimitBreach(f.appID, string(op), breachLogWindow)
	}
	return bbserr.Quota("rate limit exceeded").WithDetails("app_id", f.appID).WithDetails("operation", string(op))
}

// Storage is the unscoped storage surface (spec §4.8 `storage`).
func (f *Facade) Storage() *Scope { return &Scope{facade: f} }

// UserStorage is the per-user-scoped surface (spec §4.8 `user_storage`);
// userID is sanitized before it ever reaches a key.
func (f *Facade) UserStorage(userID string) *Scope {
	return &Scope{facade: f, userID: sanitizeScope(userID)}
}

// NamespacedStorage is the per-namespace-scoped surface (spec §4.8
// `namespaced_storage`); namespace is sanitized before it ever reaches a key.
func (f *Facade) NamespacedStorage(namespace string) *Scope {
	return &Scope{facade: f, namespace: sanitizeScope(namespace)}
}

// Scope is one storage/user_storage/namespaced_storage handle. A zero-value
// userID/namespace means unscoped, matching the Store's own "empty string =
// unscoped" convention.
type Scope struct {
	facade    *Facade
	userID    string
	namespace string
}

// Get implements storage.get(key).
func (s *Scope) Get(ctx context.Context, key string) (domain.Value, bool, error) {
	if err := s.facade.allow(ctx, ratelimit.OpKVGet); err != nil {
		return domain.Value{}, false, err
	}
	prefixed := keyFor(s.facade.appID, s.namespace, key)
	kv, err := s.facade.store.KVGet(ctx, s.facade.appID, prefixed, s.userID, s.namespace)
	if err == store.ErrNotFound {
		return domain.Value{}, false, nil
	}
	if err != nil {
		return domain.Value{}, false, store.StoreFaultWrap(err)
	}
	return kv.Value, true, nil
}

// Set implements storage.set(key, val); rejects code-like string payloads
// per spec §4.8.
func (s *Scope) Set(ctx context.Context, key string, val domain.Value) error {
	if err := s.facade.allow(ctx, ratelimit.OpKVSet); err != nil {
		return err
	}
	if val.ContainsCodeLike() {
		return bbserr.Validation("value rejected: looks like executable code").WithDetails("key", key)
	}
	prefixed := keyFor(s.facade.appID, s.namespace, key)
	_, err := s.facade.store.KVUpsert(ctx, domain.KeyValue{
		AppID:     s.facade.appID,
		Key:       prefixed,
		Value:     val,
		UserID:    s.userID,
		Namespace: s.namespace,
	})
	if err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

// Delete implements storage.delete(key).
func (s *Scope) Delete(ctx context.Context, key string) error {
	if err := s.facade.allow(ctx, ratelimit.OpKVDelete); err != nil {
		return err
	}
	prefixed := keyFor(s.facade.appID, s.namespace, key)
	if err := s.facade.store.KVDelete(ctx, s.facade.appID, prefixed, s.userID, s.namespace); err != nil {
		return store.StoreFaultWrap(err)
	}
	return nil
}

// CurrentUser implements spec §4.8 `current_user(session)`: the public view
// of whichever user is bound to sess, or (zero, false) if the session is
// anonymous.
func (f *Facade) CurrentUser(ctx context.Context, sess domain.SessionView) (domain.PublicView, bool, error) {
	if err := f.allow(ctx, ratelimit.OpCurrentUser); err != nil {
		return domain.PublicView{}, false, err
	}
	if !sess.IsAuthenticated {
		return domain.PublicView{}, false, nil
	}
	u, err := f.store.UserFindByID(ctx, sess.UserID)
	if err == store.ErrNotFound {
		return domain.PublicView{}, false, nil
	}
	if err != nil {
		return domain.PublicView{}, false, store.StoreFaultWrap(err)
	}
	return u.Public(), true, nil
}

// Utils is the pure-function surface (spec §4.8 `utils`): format_date,
// ascii_boxed_title, separator, plus a jsonPath helper over an app's own
// stored JSON (grounded on services/oracle/enclave.go's fetched-JSON
// extraction use of the same library).
type Utils struct{}

func (Facade) Utils() Utils { return Utils{} }

// FormatDate renders t the way a BBS terminal screen expects: no locale
// machinery, just a fixed stable layout.
func (Utils) FormatDate(t time.Time) string {
	return t.UTC().Format("2006-01-02 15:04:05")
}

// AsciiBoxedTitle draws title inside a box of '=' rules, the terminal-art
// convention bulletin-style apps use for screen headers.
func (Utils) AsciiBoxedTitle(title string) string {
	width := len(title) + 4
	rule := strings.Repeat("=", width)
	return fmt.Sprintf("%s\n= %s =\n%s", rule, title, rule)
}

// Separator draws a horizontal rule of width repetitions of ch.
func (Utils) Separator(ch rune, width int) string {
	if width <= 0 {
		return ""
	}
	return strings.Repeat(string(ch), width)
}

// JSONPath evaluates a JSONPath expression against an app's own value
// (decoded to plain Go values via Value.ToAny first, since jsonpath walks
// interface{} trees, not domain.Value).
func (Utils) JSONPath(expr string, v domain.Value) (domain.Value, error) {
	result, err := jsonpath.Get(expr, v.ToAny())
	if err != nil {
		return domain.Value{}, bbserr.Validation("invalid jsonPath expression").WithDetails("expr", expr).WithDetails("cause", err.Error())
	}
	out, err := domain.FromAny(result)
	if err != nil {
		return domain.Value{}, bbserr.Internal("jsonPath result not representable", err)
	}
	return out, nil
}
