// Package shell implements Shell (spec §4.9, C9): the top-level command
// dispatcher. It owns no storage of its own — it orchestrates
// session.Service, registry.Registry, and a Loader for the admin
// install/uninstall verbs, and decides the one piece of policy nothing else
// owns: when a session's current area changes.
package shell

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
	"github.com/boardwalkbbs/server/internal/bbsmetrics"
)

const mainArea = "main"

// remoteHost is the single known remote-source host token the INSTALL /
// UNINSTALL / LIST admin verbs accept (spec §4.9, test "LIST REMOTE APPS").
const remoteHost = "REMOTE"

// Registry is the subset of registry.Registry the Shell dispatches
// against, kept narrow so shell doesn't need to import the concrete type's
// CapabilityFactory wiring.
type Registry interface {
	Get(id string) (*domain.LoadedApp, bool)
	ListAll() []*domain.LoadedApp
	Nth(n int) (*domain.LoadedApp, bool)
	Count() int
	Unregister(id string)
	Register(app domain.App, origin domain.Origin) error
	TrackRemoteURL(appID, url string)
	ListRemoteURLs() []string
}

// Loader resolves a remote app from its origin URL for the INSTALL verb,
// implemented by remoteloader.Loader.
type Loader interface {
	Load(ctx context.Context, url string) (domain.App, error)
}

// Result is what the Shell returns to TerminalEndpoints (spec §4.9 step 5).
type Result struct {
	Area     string
	Response string
	Refresh  bool
	Screen   *string
}

// Shell is the command dispatcher.
type Shell struct {
	registry Registry
	sessions *session.Service
	loader   Loader
	log      *bbslog.Logger
}

// New constructs a Shell over registry, sessions, and loader (which may be
// nil until remote install support is wired in; INSTALL REMOTE then
// reports an internal error rather than panicking, while UNINSTALL and LIST
// work from the registry alone).
func New(registry Registry, sessions *session.Service, loader Loader, log *bbslog.Logger) *Shell {
	if log == nil {
		log = bbslog.NewDefault("shell")
	}
	return &Shell{registry: registry, sessions: sessions, loader: loader, log: log}
}

// Dispatch runs one command line against sess (spec §4.9). The caller (the
// HTTP endpoint) is responsible for holding sess's per-session lock
// (session.Service.Lock) across this call, so concurrent commands on the
// same session key serialize.
func (sh *Shell) Dispatch(ctx context.Context, sess domain.Session, raw string) (Result, error) {
	area := sess.CurrentArea
	if area == "" {
		area = mainArea
	}

	kind, appID, screenID := parseArea(area)
	bbsmetrics.CommandsDispatched.WithLabelValues(string(kind)).Inc()

	trimmed := strings.TrimSpace(raw)
	upper := strings.ToUpper(trimmed)

	var result Result
	var newArea string
	var err error

	switch {
	case upper == "HELP":
		result, err = sh.handleHelp(kind, appID, screenID)
		newArea = area
	case upper == "MAIN" || upper == "MENU":
		result = sh.renderMainMenu()
		newArea = mainArea
	case upper == "EXIT" || upper == "QUIT" || upper == "X" || upper == "LOGOFF":
		result = Result{Area: area, Response: "Goodbye. Your session remains active.", Refresh: true}
		newArea = area
	case upper == "DEBUG":
		result = sh.renderDebugDump(sess)
		newArea = area
	case strings.HasPrefix(upper, "INSTALL "):
		result, err = sh.handleInstall(ctx, trimmed)
		newArea = area
	case strings.HasPrefix(upper, "UNINSTALL "):
		result, err = sh.handleUninstall(trimmed)
		newArea = area
	case isListAppsCommand(upper):
		result, err = sh.handleListApps(upper)
		newArea = area
	case kind == areaMain:
		result, newArea, err = sh.dispatchMain(sess, trimmed)
	default:
		result, newArea, err = sh.dispatchApp(ctx, sess, appID, screenID, trimmed)
	}

	if err != nil {
		return Result{}, err
	}

	if _, appendErr := sh.sessions.AppendHistory(ctx, sess.Key, raw); appendErr != nil {
		sh.log.Warn("failed to append command history", "session_key", sess.Key, "reason", appendErr.Error())
	}
	if newArea != area {
		if _, setErr := sh.sessions.SetCurrentArea(ctx, sess.Key, newArea); setErr != nil {
			sh.log.Warn("failed to persist area transition", "session_key", sess.Key, "reason", setErr.Error())
		}
	}

	result.Area = newArea
	return result, nil
}

type areaKind string

const (
	areaMain areaKind = "main"
	areaApp  areaKind = "app"
)

// parseArea is tolerant of the empty/"main" area (spec §4.9 edge cases):
// any area without a ':' is treated as main, and "<appId>:" (empty screen)
// is that app's area with a nil screen.
func parseArea(area string) (kind areaKind, appID string, screenID *string) {
	if area == "" || area == mainArea {
		return areaMain, "", nil
	}
	idx := strings.IndexByte(area, ':')
	if idx < 0 {
		return areaMain, "", nil
	}
	appID = area[:idx]
	screen := area[idx+1:]
	if screen == "" {
		return areaApp, appID, nil
	}
	return areaApp, appID, &screen
}

func renderArea(appID string, screenID *string) string {
	if screenID == nil {
		return appID
	}
	return appID + ":" + *screenID
}

func (sh *Shell) renderMainMenu() Result {
	var b strings.Builder
	b.WriteString("=== MAIN MENU ===\n")
	apps := sh.registry.ListAll()
	if len(apps) == 0 {
		b.WriteString("No apps installed.\n")
	}
	for i, app := range apps {
		fmt.Fprintf(&b, "%d. %s - %s\n", i+1, app.Meta.Name, app.Meta.Description)
	}
	b.WriteString("Enter a number to select an app. HELP / DEBUG / EXIT available anywhere.")
	return Result{Response: b.String(), Refresh: true}
}

func (sh *Shell) dispatchMain(sess domain.Session, raw string) (Result, string, error) {
	n, convErr := strconv.Atoi(strings.TrimSpace(raw))
	if convErr != nil {
		result := sh.renderMainMenu()
		k := sh.registry.Count()
		result.Response = fmt.Sprintf("Unrecognized command. Select 1..%d.\n\n%s", k, result.Response)
		return result, mainArea, nil
	}

	app, ok := sh.registry.Nth(n)
	if !ok {
		k := sh.registry.Count()
		return Result{Response: fmt.Sprintf("No such app. Select 1..%d.", k), Refresh: true}, mainArea, nil
	}

	homeScreen := "home"
	newArea := renderArea(app.Meta.ID, &homeScreen)

	if sess.IsAuthenticated() {
		if onEnter, ok := app.App.(domain.OnUserEnterApp); ok {
			onEnter.OnUserEnter(sess.UserID, domain.NewSessionView(sess))
		}
	}

	return Result{
		Response: app.App.GetWelcomeScreen(),
		Refresh:  true,
		Screen:   &homeScreen,
	}, newArea, nil
}

// notifyUserExit fires OnUserExitApp for appID, symmetric with
// dispatchMain's OnUserEnterApp call, when a session leaves its area.
func (sh *Shell) notifyUserExit(sess domain.Session, appID string) {
	if !sess.IsAuthenticated() {
		return
	}
	app, ok := sh.registry.Get(appID)
	if !ok {
		return
	}
	if onExit, ok := app.App.(domain.OnUserExitApp); ok {
		onExit.OnUserExit(sess.UserID, domain.NewSessionView(sess))
	}
}

func (sh *Shell) dispatchApp(ctx context.Context, sess domain.Session, appID string, screenID *string, raw string) (Result, string, error) {
	upper := strings.ToUpper(strings.TrimSpace(raw))
	if upper == "B" || upper == "BACK" {
		sh.notifyUserExit(sess, appID)
		return sh.renderMainMenu(), mainArea, nil
	}

	app, ok := sh.registry.Get(appID)
	if !ok {
		return sh.renderMainMenu(), mainArea, nil
	}

	view := domain.NewSessionView(sess)
	cmdResult, callErr := safeHandleCommand(app.App, screenID, raw, view)
	if callErr != nil {
		sh.log.Warn("app handle_command failed", "app_id", appID, "reason", callErr.Error())
		return Result{Response: callErr.Error() + " (type B to go back)"}, renderArea(appID, screenID), nil
	}

	currentScreen := ""
	if screenID != nil {
		currentScreen = *screenID
	}
	newArea := renderArea(appID, screenID)
	if cmdResult.Screen != nil && *cmdResult.Screen != currentScreen {
		newScreen := *cmdResult.Screen
		newArea = renderArea(appID, &newScreen)
	}

	_ = ctx
	return Result{Response: cmdResult.Response, Refresh: cmdResult.Refresh, Screen: cmdResult.Screen}, newArea, nil
}

// safeHandleCommand is the wrapper boundary spec §4.9/§7 requires: an app
// panic or error never escapes into the Shell's own control flow.
func safeHandleCommand(app domain.App, screenID *string, raw string, view domain.SessionView) (result domain.CommandResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = bbserr.Sandbox(fmt.Sprintf("app panicked: %v", r))
		}
	}()
	return app.HandleCommand(screenID, raw, view)
}

func (sh *Shell) handleHelp(kind areaKind, appID string, screenID *string) (Result, error) {
	if kind == areaMain {
		return Result{Response: "Welcome to the board. Enter a number to choose an app. EXIT quits, DEBUG dumps session state."}, nil
	}
	app, ok := sh.registry.Get(appID)
	if !ok {
		return Result{Response: "App no longer installed."}, nil
	}
	return Result{Response: app.App.GetHelp(screenID)}, nil
}

func (sh *Shell) renderDebugDump(sess domain.Session) Result {
	var b strings.Builder
	fmt.Fprintf(&b, "session=%s area=%s user=%s history_len=%d\n", sess.Key, sess.CurrentArea, sess.Username, len(sess.CommandHistory))
	fmt.Fprintf(&b, "apps_installed=%d\n", sh.registry.Count())
	for _, app := range sh.registry.ListAll() {
		fmt.Fprintf(&b, "- %s (%s) origin=%s\n", app.Meta.ID, app.Meta.Name, app.Origin)
	}
	return Result{Response: b.String()}
}

func isListAppsCommand(upper string) bool {
	fields := strings.Fields(upper)
	return len(fields) == 3 && fields[0] == "LIST" && fields[2] == "APPS"
}

func (sh *Shell) handleListApps(upper string) (Result, error) {
	fields := strings.Fields(upper)
	if fields[1] != remoteHost {
		return Result{Response: fmt.Sprintf("unknown host %q", fields[1])}, nil
	}
	urls := sh.registry.ListRemoteURLs()
	if len(urls) == 0 {
		return Result{Response: "No remote apps installed."}, nil
	}
	return Result{Response: strings.Join(urls, "\n")}, nil
}

func (sh *Shell) handleInstall(ctx context.Context, trimmed string) (Result, error) {
	fields := strings.Fields(trimmed)
	if len(fields) != 3 {
		return Result{Response: "usage: INSTALL <HOST> <URL>"}, nil
	}
	host, url := strings.ToUpper(fields[1]), fields[2]
	if host != remoteHost {
		return Result{Response: fmt.Sprintf("unknown host %q", fields[1])}, nil
	}
	if sh.loader == nil {
		return Result{}, bbserr.Internal("remote install is not configured", nil)
	}

	app, err := sh.loader.Load(ctx, url)
	if err != nil {
		return Result{Response: "install failed: " + err.Error()}, nil
	}
	if err := sh.registry.Register(app, domain.OriginRemote(url)); err != nil {
		return Result{Response: "install failed: " + err.Error()}, nil
	}
	sh.registry.TrackRemoteURL(app.Meta().ID, url)
	return Result{Response: fmt.Sprintf("installed %s from %s", app.Meta().ID, url)}, nil
}

func (sh *Shell) handleUninstall(trimmed string) (Result, error) {
	fields := strings.Fields(trimmed)
	if len(fields) != 3 {
		return Result{Response: "usage: UNINSTALL <HOST> <URL>"}, nil
	}
	host := strings.ToUpper(fields[1])
	if host != remoteHost {
		return Result{Response: fmt.Sprintf("unknown host %q", fields[1])}, nil
	}

	url := fields[2]
	var removed string
	for _, app := range sh.registry.ListAll() {
		if app.Meta.Source == url {
			removed = app.Meta.ID
			break
		}
	}
	if removed == "" {
		return Result{Response: "no installed app matches that URL"}, nil
	}
	sh.registry.Unregister(removed)
	return Result{Response: fmt.Sprintf("uninstalled %s", removed)}, nil
}
