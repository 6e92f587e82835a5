package remoteloader

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/dop251/goja"
	"github.com/shirou/gopsutil/v3/process"

	"github.com/boardwalkbbs/server/internal/bbs/capability"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
	"github.com/boardwalkbbs/server/internal/bbsmetrics"
)

const (
	minTimerDelay = 100 * time.Millisecond
	maxTimerDelay = 30 * time.Second
	maxTimers     = 10
)

type pendingTimer struct {
	fireAt time.Time
	fn     goja.Callable
}

// Isolate is one loaded remote app's execution context (spec §4.7e): a
// goja.Runtime with only the injected globals stage (e) names, plus
// bookkeeping for the wrapped setTimeout. A goja.Runtime is not safe for
// concurrent use, and the same loaded app can be reached by more than one
// session's Shell dispatch concurrently (spec §5's note that rate-limit
// counters, unlike per-session locks, are shared across sessions) — so
// every entry point into the isolate serializes on mu, and setTimeout
// callbacks are drained synchronously on the next serialized entry rather
// than fired from a background goroutine that would touch the Runtime
// unsynchronized.
type Isolate struct {
	mu      sync.Mutex
	vm      *goja.Runtime
	appID   string
	timers  []pendingTimer
	cfg     Config
	log     *bbslog.Logger
	monitor *resourceMonitor
}

// newIsolate builds a fresh Runtime with exactly the globals stage (e)
// allows, and compiles+runs source within cfg.LoadTimeout.
func newIsolate(appID, source string, cfg Config, log *bbslog.Logger) (*Isolate, error) {
	if log == nil {
		log = bbslog.NewDefault("remoteloader.isolate")
	}
	vm := goja.New()
	iso := &Isolate{vm: vm, appID: appID, cfg: cfg, log: log, monitor: newResourceMonitor()}

	iso.injectConsole()
	iso.injectJSON()
	iso.injectSetTimeout()
	iso.injectModule()
	registerAllowedModules(vm)

	if err := iso.runWithTimeout(cfg.LoadTimeout, func() error {
		_, err := vm.RunString(source)
		return err
	}); err != nil {
		return nil, bbserr.Sandbox("module failed to load").WithDetails("cause", err.Error())
	}
	return iso, nil
}

// injectConsole gives the isolate a console prefixed with the app id, per
// stage (e); logs are captured through bbslog rather than stdout.
func (iso *Isolate) injectConsole() {
	console := iso.vm.NewObject()
	console.Set("log", func(call goja.FunctionCall) goja.Value {
		parts := make([]string, len(call.Arguments))
		for i, arg := range call.Arguments {
			parts[i] = fmt.Sprint(arg.Export())
		}
		iso.log.Info("[app:" + iso.appID + "] " + strings.Join(parts, " "))
		return goja.Undefined()
	})
	iso.vm.Set("console", console)
}

// injectJSON gives the isolate goja's own JSON, which is already a pure
// parse/stringify pair with no I/O.
func (iso *Isolate) injectJSON() {
	// goja.New() already exposes the standard JSON global; nothing
	// app-reachable needs adding here, this documents that the (e) clause
	// is satisfied by goja's default global rather than a custom object.
}

// injectModule gives the script a CommonJS-shaped module.exports object to
// populate, the convention extraction (stage g) reads the default export
// back out of.
func (iso *Isolate) injectModule() *goja.Object {
	exports := iso.vm.NewObject()
	module := iso.vm.NewObject()
	module.Set("exports", exports)
	iso.vm.Set("module", module)
	iso.vm.Set("exports", exports)
	return module
}

// exports returns the module's current module.exports object.
func (iso *Isolate) exports() *goja.Object {
	module := iso.vm.Get("module").ToObject(iso.vm)
	return module.Get("exports").ToObject(iso.vm)
}

// injectSetTimeout implements the wrapped setTimeout clause of stage (e).
func (iso *Isolate) injectSetTimeout() {
	iso.vm.Set("setTimeout", func(call goja.FunctionCall) goja.Value {
		fn, ok := goja.AssertFunction(call.Argument(0))
		if !ok {
			panic(iso.vm.NewTypeError("setTimeout requires a function argument"))
		}
		if len(iso.timers) >= maxTimers {
			panic(iso.vm.NewTypeError("too many concurrent timers"))
		}

		delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
		if delay < minTimerDelay {
			delay = minTimerDelay
		}
		if delay > maxTimerDelay {
			delay = maxTimerDelay
		}

		iso.timers = append(iso.timers, pendingTimer{fireAt: time.Now().Add(delay), fn: fn})
		return goja.Undefined()
	})
}

// drainDueTimers fires every timer whose delay has elapsed, releasing its
// slot. Called under mu, at the start of each serialized entry point, so a
// timer set during one call fires on a later call rather than from an
// unsynchronized background goroutine.
func (iso *Isolate) drainDueTimers() {
	if len(iso.timers) == 0 {
		return
	}
	now := time.Now()
	remaining := iso.timers[:0]
	for _, t := range iso.timers {
		if now.After(t.fireAt) {
			_, _ = t.fn(goja.Undefined())
			continue
		}
		remaining = append(remaining, t)
	}
	iso.timers = remaining
}

// runWithTimeout runs fn, interrupting the Runtime if it doesn't return
// within d. vm.Interrupt is the one goja operation documented safe to call
// from another goroutine while a call is in flight.
func (iso *Isolate) runWithTimeout(d time.Duration, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()

	select {
	case err := <-done:
		return err
	case <-time.After(d):
		iso.vm.Interrupt("execution timeout")
		<-done
		return bbserr.Sandbox("execution timed out")
	}
}

// resourceMonitor samples this process's own CPU/RSS around an isolate
// call, since goja has no heap or CPU-metering API of its own (see
// Config.CPUBudget's comment): the hard ceiling is still the wall-clock
// timeout enforced by vm.Interrupt, this is advisory telemetry for tuning
// that ceiling after the fact.
type resourceMonitor struct {
	proc *process.Process
}

func newResourceMonitor() *resourceMonitor {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return &resourceMonitor{}
	}
	return &resourceMonitor{proc: p}
}

// sample logs the current process's CPU percent and resident set size,
// tagging the entry with appID and op so an operator tailing logs can
// correlate a spike with a specific sandboxed app call.
func (m *resourceMonitor) sample(log *bbslog.Logger, appID, op string) {
	if m == nil || m.proc == nil {
		return
	}
	cpuPct, err := m.proc.CPUPercent()
	if err != nil {
		return
	}
	mem, err := m.proc.MemoryInfo()
	if err != nil || mem == nil {
		return
	}
	log.Debug("sandbox host resource sample", "app_id", appID, "op", op, "cpu_percent", cpuPct, "rss_bytes", mem.RSS)
}

var screenIDPattern = regexp.MustCompile(`[^A-Za-z0-9_-]`)

const maxCommandLength = 1000

// extractedApp adapts an Isolate's exported default-export functions to
// domain.App, implementing stages (g)-(h): extraction, input sanitization,
// rate limiting, error containment, and output sanitization. It is the
// RemoteLoader's answer to "Shell and AppRegistry never know whether an App
// is in-process code or a wrapped isolate handle."
type extractedApp struct {
	meta domain.AppMeta
	iso  *Isolate

	welcomeScreen goja.Callable
	handleCommand goja.Callable
	getHelp       goja.Callable
	onInit        goja.Callable

	limiter ratelimit.Limiter
}

// OnInit implements domain.OnInitApp: caps is the same *capability.Facade a
// builtin Go app receives, wrapped into a JS object before being handed to
// the script's exported onInit, since the script can't call Go methods
// directly.
func (a *extractedApp) OnInit(caps any) {
	facade, ok := caps.(*capability.Facade)
	if !ok || a.onInit == nil {
		return
	}
	a.iso.mu.Lock()
	defer a.iso.mu.Unlock()
	jsCaps := wrapCapability(a.iso.vm, facade)
	_, _ = a.onInit(goja.Undefined(), jsCaps)
}

func (a *extractedApp) ID() string            { return a.meta.ID }
func (a *extractedApp) Meta() domain.AppMeta   { return a.meta }

func (a *extractedApp) GetWelcomeScreen() string {
	a.iso.mu.Lock()
	defer a.iso.mu.Unlock()
	a.iso.drainDueTimers()

	if a.welcomeScreen == nil {
		return ""
	}
	result, err := a.welcomeScreen(goja.Undefined())
	if err != nil {
		return "error rendering welcome screen (type B to go back)"
	}
	return truncate(result.String(), appcontractResponseLimit)
}

func (a *extractedApp) GetHelp(screenID *string) string {
	a.iso.mu.Lock()
	defer a.iso.mu.Unlock()
	a.iso.drainDueTimers()

	if a.getHelp == nil {
		return ""
	}
	arg := interface{}(nil)
	if screenID != nil {
		arg = *screenID
	}
	result, err := a.getHelp(goja.Undefined(), a.iso.vm.ToValue(arg))
	if err != nil {
		return "help unavailable"
	}
	return truncate(result.String(), appcontractResponseLimit)
}

func (a *extractedApp) HandleCommand(screenID *string, command string, sess domain.SessionView) (domain.CommandResult, error) {
	if a.limiter != nil && !a.limiter.Allow(context.Background(), a.meta.ID, ratelimit.OpCommandExecution) {
		bbsmetrics.SandboxCalls.WithLabelValues("rate_limited").Inc()
		return domain.CommandResult{}, bbserr.Quota("rate limit exceeded for command_execution")
	}

	sanitizedScreen := sanitizeScreenID(screenID)
	truncatedCommand := truncate(command, maxCommandLength)

	a.iso.mu.Lock()
	defer a.iso.mu.Unlock()
	a.iso.drainDueTimers()

	var screenArg interface{}
	if sanitizedScreen != nil {
		screenArg = *sanitizedScreen
	}
	sessionArg := sessionViewToJS(sess)

	a.iso.monitor.sample(a.iso.log, a.meta.ID, "handle_command:before")
	var raw goja.Value
	timeout := a.iso.cfg.CallTimeout
	if budget := a.iso.cfg.CPUBudget; budget > 0 && budget < timeout {
		timeout = budget
	}
	err := a.iso.runWithTimeout(timeout, func() error {
		var callErr error
		raw, callErr = a.handleCommand(goja.Undefined(), a.iso.vm.ToValue(screenArg), a.iso.vm.ToValue(truncatedCommand), a.iso.vm.ToValue(sessionArg))
		return callErr
	})
	a.iso.monitor.sample(a.iso.log, a.meta.ID, "handle_command:after")
	if err != nil {
		bbsmetrics.SandboxCalls.WithLabelValues("error").Inc()
		return domain.CommandResult{}, bbserr.Sandbox("app command failed").WithDetails("cause", err.Error())
	}

	bbsmetrics.SandboxCalls.WithLabelValues("ok").Inc()
	return sanitizeCommandResult(raw), nil
}

const appcontractResponseLimit = 10_000

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}

// sanitizeScreenID implements stage (h)'s "sanitizes screen ids to
// [A-Za-z0-9_-]".
func sanitizeScreenID(screenID *string) *string {
	if screenID == nil {
		return nil
	}
	cleaned := screenIDPattern.ReplaceAllString(*screenID, "")
	return &cleaned
}

func sessionViewToJS(sess domain.SessionView) map[string]interface{} {
	return map[string]interface{}{
		"sessionKey":      sess.SessionKey,
		"userId":          sess.UserID,
		"username":        sess.Username,
		"role":            sess.Role,
		"currentArea":     sess.CurrentArea,
		"commandHistory":  sess.CommandHistory,
		"isAuthenticated": sess.IsAuthenticated,
	}
}

// sanitizeCommandResult implements stage (h)'s return-value sanitization:
// screen must be string or null, response is truncated, refresh defaults
// to true.
func sanitizeCommandResult(raw goja.Value) domain.CommandResult {
	exported, ok := raw.Export().(map[string]interface{})
	if !ok {
		return domain.CommandResult{Response: "", Refresh: true}
	}

	result := domain.CommandResult{Refresh: true}

	if screen, ok := exported["screen"].(string); ok {
		if cleaned := screenIDPattern.ReplaceAllString(screen, ""); cleaned != "" {
			result.Screen = &cleaned
		}
	}
	if response, ok := exported["response"].(string); ok {
		result.Response = truncate(response, appcontractResponseLimit)
	}
	if refresh, ok := exported["refresh"].(bool); ok {
		result.Refresh = refresh
	}
	return result
}
