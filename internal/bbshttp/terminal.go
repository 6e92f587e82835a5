package bbshttp

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbserr"
)

// menuOption is one entry of TerminalInit's menuOptions[] (spec §4.11).
type menuOption struct {
	Index       int    `json:"index"`
	AppID       string `json:"appId"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

func (s *Server) menuCatalog() []menuOption {
	apps := s.registry.ListAll()
	options := make([]menuOption, 0, len(apps))
	for i, app := range apps {
		options = append(options, menuOption{Index: i + 1, AppID: app.Meta.ID, Name: app.Meta.Name, Description: app.Meta.Description})
	}
	return options
}

func (s *Server) fullWelcomeText() string {
	var b strings.Builder
	b.WriteString("=== MAIN MENU ===\n")
	for _, opt := range s.menuCatalog() {
		fmt.Fprintf(&b, "%d. %s - %s\n", opt.Index, opt.Name, opt.Description)
	}
	if len(s.menuCatalog()) == 0 {
		b.WriteString("No apps installed.\n")
	}
	return b.String()
}

func (s *Server) simpleWelcomeText() string {
	names := make([]string, 0)
	for _, opt := range s.menuCatalog() {
		names = append(names, opt.Name)
	}
	return "MAIN MENU: " + strings.Join(names, ", ")
}

type terminalInitResponse struct {
	SessionID          string       `json:"sessionId"`
	CurrentArea        string       `json:"currentArea"`
	DefaultWelcomeText string       `json:"defaultWelcomeText"`
	FullWelcomeText    string       `json:"fullWelcomeText"`
	SimpleWelcomeText  string       `json:"simpleWelcomeText"`
	MenuOptions        []menuOption `json:"menuOptions"`
}

// handleTerminalInit implements GET /terminal/init (spec §6, §4.11 init).
func (s *Server) handleTerminalInit(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")

	sess, err := s.sessions.Create(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}

	full := s.fullWelcomeText()
	simple := s.simpleWelcomeText()
	defaultText := full
	if r.URL.Query().Get("simplified") == "true" {
		defaultText = simple
	}

	writeJSON(w, http.StatusOK, terminalInitResponse{
		SessionID:          sess.Key,
		CurrentArea:        sess.CurrentArea,
		DefaultWelcomeText: defaultText,
		FullWelcomeText:    full,
		SimpleWelcomeText:  simple,
		MenuOptions:        s.menuCatalog(),
	})
}

type terminalCommandRequest struct {
	SessionID string `json:"sessionId"`
	Command   string `json:"command"`
}

type sessionSnapshot struct {
	ID             string   `json:"id"`
	CurrentArea    string   `json:"currentArea"`
	CommandHistory []string `json:"commandHistory"`
}

type terminalCommandData struct {
	Screen  *string         `json:"screen,omitempty"`
	Area    string          `json:"area"`
	Response string         `json:"response"`
	Refresh bool            `json:"refresh"`
	Session sessionSnapshot `json:"session"`
}

type terminalCommandResponse struct {
	Success bool                 `json:"success"`
	Message string               `json:"message,omitempty"`
	Data    terminalCommandData  `json:"data,omitempty"`
}

// handleTerminalCommand implements POST /terminal/command (spec §6, §4.9/4.11).
func (s *Server) handleTerminalCommand(w http.ResponseWriter, r *http.Request) {
	var req terminalCommandRequest
	if err := decodeJSON(r.Body, &req); err != nil || req.SessionID == "" {
		writeError(w, bbserr.Validation("sessionId and command are required"))
		return
	}

	lock := s.sessions.Lock(req.SessionID)
	lock.Lock()
	defer lock.Unlock()

	sess, ok, err := s.sessions.Get(r.Context(), req.SessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, bbserr.NotFound("unknown session"))
		return
	}

	result, err := s.shell.Dispatch(r.Context(), sess, req.Command)
	if err != nil {
		writeError(w, err)
		return
	}

	updated, ok, err := s.sessions.Get(r.Context(), req.SessionID)
	if err != nil || !ok {
		updated = sess
	}

	writeJSON(w, http.StatusOK, terminalCommandResponse{
		Success: true,
		Data: terminalCommandData{
			Screen:   result.Screen,
			Area:     result.Area,
			Response: result.Response,
			Refresh:  result.Refresh,
			Session: sessionSnapshot{
				ID:             updated.Key,
				CurrentArea:    updated.CurrentArea,
				CommandHistory: updated.CommandHistory,
			},
		},
	})
}

type terminalSessionResponse struct {
	Exists        bool `json:"exists"`
	CurrentArea   string `json:"currentArea,omitempty"`
	HistoryLength *int `json:"historyLength,omitempty"`
}

// handleTerminalSession implements GET /terminal/session (spec §6).
func (s *Server) handleTerminalSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		writeError(w, bbserr.Validation("sessionId is required"))
		return
	}

	sess, ok, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeJSON(w, http.StatusOK, terminalSessionResponse{Exists: false})
		return
	}

	length := len(sess.CommandHistory)
	writeJSON(w, http.StatusOK, terminalSessionResponse{Exists: true, CurrentArea: sess.CurrentArea, HistoryLength: &length})
}

// sessionOrErr is a shared helper between terminal and auth handlers for
// "absence of a session key is an error" (spec §4.10).
func (s *Server) sessionOrErr(r *http.Request, sessionID string) (domain.Session, error) {
	if sessionID == "" {
		return domain.Session{}, bbserr.Validation("sessionId is required")
	}
	sess, ok, err := s.sessions.Get(r.Context(), sessionID)
	if err != nil {
		return domain.Session{}, err
	}
	if !ok {
		return domain.Session{}, bbserr.NotFound("unknown session")
	}
	return sess, nil
}
