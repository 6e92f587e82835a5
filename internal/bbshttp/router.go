// Package bbshttp implements TerminalEndpoints (spec §4.11) and
// AuthEndpoints (spec §4.10) over gorilla/mux, the same router the
// teacher's cmd/gateway and per-service handlers use. JSON encode/decode
// and the writeJSON/writeError helpers are grounded on
// internal/app/httpapi/handler.go's decodeJSON/writeJSON/writeError trio.
package bbshttp

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/boardwalkbbs/server/internal/audit"
	"github.com/boardwalkbbs/server/internal/bbs/registry"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/shell"
	"github.com/boardwalkbbs/server/internal/bbs/store"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
)

// Server bundles the dependencies every handler needs.
type Server struct {
	shell    *shell.Shell
	sessions *session.Service
	registry *registry.Registry
	store    store.Store
	log      *bbslog.Logger
	audit    *audit.Log
}

// New constructs Server and its fully wired router. auditLog may be nil.
func New(sh *shell.Shell, sessions *session.Service, reg *registry.Registry, st store.Store, log *bbslog.Logger, auditLog *audit.Log) *Server {
	if log == nil {
		log = bbslog.NewDefault("bbshttp")
	}
	return &Server{shell: sh, sessions: sessions, registry: reg, store: st, log: log, audit: auditLog}
}

// Router builds the gorilla/mux router exposing every endpoint spec §6
// names, wrapped in CORS and optionally behind JWT bearer-token auth (auth
// may be nil to run session-key-only, the spec's baseline auth model).
func (s *Server) Router(auth *JWTMiddleware, cors *CORS) http.Handler {
	r := mux.NewRouter()

	r.HandleFunc("/terminal/init", s.handleTerminalInit).Methods(http.MethodGet, http.MethodOptions)
	r.HandleFunc("/terminal/command", s.handleTerminalCommand).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/terminal/session", s.handleTerminalSession).Methods(http.MethodGet, http.MethodOptions)

	r.HandleFunc("/auth/register", s.handleAuthRegister).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/login", s.handleAuthLogin).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/logout", s.handleAuthLogout).Methods(http.MethodPost, http.MethodOptions)
	r.HandleFunc("/auth/me", s.handleAuthMe).Methods(http.MethodGet, http.MethodOptions)

	var handler http.Handler = r
	if auth != nil {
		handler = auth.Wrap(handler)
	}
	if cors != nil {
		handler = cors.Wrap(handler)
	}
	return handler
}

func decodeJSON(body io.ReadCloser, dst interface{}) error {
	defer body.Close()
	dec := json.NewDecoder(body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, err error) {
	status := bbserr.HTTPStatus(err)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]interface{}{"success": false, "error": err.Error()})
}
