package domain

import "time"

// Origin names where a LoadedApp came from.
type Origin string

const (
	OriginBuiltin Origin = "builtin"
	OriginLocal   Origin = "local"
)

// OriginRemote formats the "remote:<url>" origin tag of spec §3.
func OriginRemote(url string) Origin { return Origin("remote:" + url) }

// CommandResult is what handle_command returns (spec §4.4), already
// sanitized by the time it reaches the Shell.
type CommandResult struct {
	Screen   *string
	Response string
	Refresh  bool
	Data     map[string]Value
}

// App is the contract every BBS app satisfies, builtin or sandboxed (spec
// §4.4). RemoteLoader fronts a loaded isolate with a proxy implementing
// this same interface, so Shell and AppRegistry never know whether an App
// is in-process code or a wrapped isolate handle.
type App interface {
	ID() string
	Meta() AppMeta

	GetWelcomeScreen() string
	HandleCommand(screenID *string, command string, session SessionView) (CommandResult, error)
	GetHelp(screenID *string) string
}

// OnInitApp is implemented by apps that want a one-time hook at
// registration, receiving their capability facade (spec §4.5).
type OnInitApp interface {
	OnInit(caps any)
}

// OnUserEnterApp / OnUserExitApp are implemented by apps that want to
// observe a user entering or leaving their area while authenticated.
type OnUserEnterApp interface {
	OnUserEnter(userID string, session SessionView)
}

type OnUserExitApp interface {
	OnUserExit(userID string, session SessionView)
}

// AppMeta is the descriptive metadata every App carries.
type AppMeta struct {
	ID          string
	Name        string
	Version     string
	Description string
	Author      string
	Source      string // origin URL for remote apps; empty otherwise
}

// LoadedApp is AppRegistry's entry: the metadata plus the callable App plus
// bookkeeping the registry itself owns (spec §3 LoadedApp).
type LoadedApp struct {
	Meta            AppMeta
	Origin          Origin
	App             App
	LastRefreshedAt time.Time
}
