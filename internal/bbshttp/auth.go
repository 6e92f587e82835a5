package bbshttp

import (
	"net/http"
	"regexp"
	"time"

	"github.com/google/uuid"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/identity"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/store"
	"github.com/boardwalkbbs/server/internal/bbserr"
)

// usernamePattern enforces the 3-20 char, [A-Za-z0-9_] username shape
// (spec §3) at registration time.
var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_]{3,20}$`)

type authRegisterRequest struct {
	Username    string `json:"username"`
	Password    string `json:"password"`
	DisplayName string `json:"displayName"`
	Email       string `json:"email"`
	SessionID   string `json:"sessionId"`
}

type authResponse struct {
	Success        bool               `json:"success"`
	SessionID      string             `json:"sessionId,omitempty"`
	CurrentArea    string             `json:"currentArea,omitempty"`
	CommandHistory []string           `json:"commandHistory,omitempty"`
	User           *domain.PublicView `json:"user,omitempty"`
	Error          string             `json:"error,omitempty"`
}

// handleAuthRegister implements POST /auth/register (spec §4.10 register).
func (s *Server) handleAuthRegister(w http.ResponseWriter, r *http.Request) {
	var req authRegisterRequest
	if err := decodeJSON(r.Body, &req); err != nil {
		writeError(w, bbserr.Validation("malformed request body"))
		return
	}
	if req.Username == "" || req.Password == "" || req.DisplayName == "" {
		writeError(w, bbserr.Validation("username, password, and displayName are required"))
		return
	}
	if !usernamePattern.MatchString(req.Username) {
		writeError(w, bbserr.Validation("username must be 3-20 characters of letters, digits, or underscore"))
		return
	}

	if _, err := s.store.UserFindByUsername(r.Context(), store.NormalizeLower(req.Username)); err == nil {
		writeError(w, bbserr.Conflict("username already taken"))
		return
	} else if err != store.ErrNotFound {
		writeError(w, store.StoreFaultWrap(err))
		return
	}

	hash, err := identity.HashPassword(req.Password)
	if err != nil {
		writeError(w, err)
		return
	}

	u := domain.User{
		ID:          uuid.New().String(),
		Username:    store.NormalizeLower(req.Username),
		DisplayName: req.DisplayName,
		Email:       store.NormalizeLower(req.Email),
		PasswordHash: hash,
		Role:        domain.RoleUser,
		JoinDate:    time.Now().UTC(),
	}
	created, err := s.store.UserCreate(r.Context(), u)
	if err != nil {
		writeError(w, store.StoreFaultWrap(err))
		return
	}

	sess, err := s.sessions.Create(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	bound, ok, err := s.sessions.Update(r.Context(), sess.Key, session.UpdateParams{
		UserID:   &created.ID,
		Username: &created.Username,
	})
	if err != nil || !ok {
		writeError(w, bbserr.Internal("failed to bind session to new user", err))
		return
	}

	public := created.Public()
	writeJSON(w, http.StatusOK, authResponse{
		Success:        true,
		SessionID:      bound.Key,
		CurrentArea:    bound.CurrentArea,
		CommandHistory: bound.CommandHistory,
		User:           &public,
	})
}

type authLoginRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	SessionID string `json:"sessionId"`
}

// handleAuthLogin implements POST /auth/login (spec §4.10 login).
func (s *Server) handleAuthLogin(w http.ResponseWriter, r *http.Request) {
	var req authLoginRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.Username == "" || req.Password == "" {
		writeError(w, bbserr.Validation("username and password are required"))
		return
	}

	u, err := s.store.UserFindByUsername(r.Context(), store.NormalizeLower(req.Username))
	if err == store.ErrNotFound {
		s.auditAuthFailure(req.Username, "unknown username")
		writeError(w, bbserr.Auth("invalid username or password"))
		return
	}
	if err != nil {
		writeError(w, store.StoreFaultWrap(err))
		return
	}
	if !identity.VerifyPassword(req.Password, u.PasswordHash) {
		s.auditAuthFailure(req.Username, "wrong password")
		writeError(w, bbserr.Auth("invalid username or password"))
		return
	}

	now := time.Now().UTC()
	if err := s.store.UserUpdateLastLogin(r.Context(), u.ID, now); err != nil {
		s.log.Warn("failed to update last_login", "user_id", u.ID, "reason", err.Error())
	}

	sess, err := s.sessions.Create(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	bound, ok, err := s.sessions.Update(r.Context(), sess.Key, session.UpdateParams{
		UserID:   &u.ID,
		Username: &u.Username,
	})
	if err != nil || !ok {
		writeError(w, bbserr.Internal("failed to bind session to user", err))
		return
	}

	public := u.Public()
	writeJSON(w, http.StatusOK, authResponse{
		Success:        true,
		SessionID:      bound.Key,
		CurrentArea:    bound.CurrentArea,
		CommandHistory: bound.CommandHistory,
		User:           &public,
	})
}

type authLogoutRequest struct {
	SessionID string `json:"sessionId"`
}

// handleAuthLogout implements POST /auth/logout (spec §4.10 logout):
// clears userId/username on the session, leaving area and history intact.
func (s *Server) handleAuthLogout(w http.ResponseWriter, r *http.Request) {
	var req authLogoutRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.SessionID == "" {
		writeError(w, bbserr.Validation("sessionId is required"))
		return
	}

	empty := ""
	if _, ok, err := s.sessions.Update(r.Context(), req.SessionID, session.UpdateParams{UserID: &empty, Username: &empty}); err != nil {
		writeError(w, err)
		return
	} else if !ok {
		writeError(w, bbserr.NotFound("unknown session"))
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"success": true, "message": "logged out"})
}

type authMeResponse struct {
	Success        bool               `json:"success"`
	IsLoggedIn     bool               `json:"isLoggedIn"`
	SessionID      string             `json:"sessionId"`
	CurrentArea    string             `json:"currentArea"`
	CommandHistory []string           `json:"commandHistory"`
	User           *domain.PublicView `json:"user,omitempty"`
}

// handleAuthMe implements GET /auth/me (spec §4.10 me).
func (s *Server) handleAuthMe(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	sess, err := s.sessionOrErr(r, sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := authMeResponse{
		Success:        true,
		IsLoggedIn:     sess.IsAuthenticated(),
		SessionID:      sess.Key,
		CurrentArea:    sess.CurrentArea,
		CommandHistory: sess.CommandHistory,
	}

	if sess.IsAuthenticated() {
		u, err := s.store.UserFindByID(r.Context(), sess.UserID)
		if err == nil {
			public := u.Public()
			resp.User = &public
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) auditAuthFailure(username, reason string) {
	if s.audit == nil {
		return
	}
	s.audit.Event("auth_failure", reason, map[string]any{"username": username})
}
