package domain

import "time"

// MaxHistory is the cap on Session.CommandHistory (spec §3).
const MaxHistory = 100

// Session is the unit of conversational state a client's session key names.
type Session struct {
	Key            string
	UserID         string
	Username       string
	Role           string
	CurrentArea    string
	CommandHistory []string
	Data           map[string]map[string]Value
	CreatedAt      time.Time
	LastActivity   time.Time
	ClientAddr     string
	ClientAgent    string
}

// IsAuthenticated reports whether a user is bound to this session.
func (s Session) IsAuthenticated() bool { return s.UserID != "" }

// AppendHistory pushes cmd onto the history, truncating to MaxHistory
// keeping the newest (spec §4.3 append_history, P1).
func AppendHistory(history []string, cmd string) []string {
	history = append(history, cmd)
	if len(history) > MaxHistory {
		history = history[len(history)-MaxHistory:]
	}
	return history
}

// Clone returns a deep-enough copy so a caller holding a Session cannot
// mutate the version a Store or SessionSvc still owns.
func (s Session) Clone() Session {
	out := s
	out.CommandHistory = append([]string(nil), s.CommandHistory...)
	out.Data = make(map[string]map[string]Value, len(s.Data))
	for appID, bag := range s.Data {
		inner := make(map[string]Value, len(bag))
		for k, v := range bag {
			inner[k] = v
		}
		out.Data[appID] = inner
	}
	return out
}

// SessionView is the defensive read-only projection of a Session passed
// into a BBS app's handle_command / on_user_enter / on_user_exit (spec
// §4.4). A mutation through SessionView never reaches the real Session; an
// app can only write back to storage through CapabilityFacade.
type SessionView struct {
	SessionKey     string
	UserID         string
	Username       string
	Role           string
	CurrentArea    string
	CommandHistory []string
	IsAuthenticated bool
}

// NewSessionView projects a Session into the read-only shape apps receive.
func NewSessionView(s Session) SessionView {
	return SessionView{
		SessionKey:      s.Key,
		UserID:          s.UserID,
		Username:        s.Username,
		Role:            s.Role,
		CurrentArea:     s.CurrentArea,
		CommandHistory:  append([]string(nil), s.CommandHistory...),
		IsAuthenticated: s.IsAuthenticated(),
	}
}
