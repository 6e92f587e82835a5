package remoteloader

import (
	"context"
	"testing"
	"time"

	"github.com/dop251/goja"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbslog"
)

func TestSanitizeCommandResultNormalizesEmptyScreenToNil(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`({screen: "", response: "hi", refresh: true})`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	assert.Nil(t, result.Screen, "an app-returned empty screen must normalize to nil, not a pointer to \"\"")
	assert.Equal(t, "hi", result.Response)
}

func TestSanitizeCommandResultKeepsNonEmptyScreen(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`({screen: "home", response: "hi"})`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	require.NotNil(t, result.Screen)
	assert.Equal(t, "home", *result.Screen)
}

func TestSanitizeCommandResultStripsDisallowedScreenChars(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`({screen: "home!!", response: ""})`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	require.NotNil(t, result.Screen)
	assert.Equal(t, "home", *result.Screen)
}

func TestSanitizeCommandResultScreenAllDisallowedCharsNormalizesToNil(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`({screen: "!!!", response: ""})`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	assert.Nil(t, result.Screen)
}

func TestSanitizeCommandResultDefaultsRefreshTrue(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`({response: "hi"})`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	assert.True(t, result.Refresh)
}

func TestSanitizeCommandResultNonObjectReturnsEmptyResponse(t *testing.T) {
	vm := goja.New()
	raw, err := vm.RunString(`42`)
	require.NoError(t, err)

	result := sanitizeCommandResult(raw)
	assert.Equal(t, "", result.Response)
	assert.Nil(t, result.Screen)
}

func TestSanitizeScreenIDStripsDisallowedChars(t *testing.T) {
	screen := "home!! page"
	cleaned := sanitizeScreenID(&screen)
	require.NotNil(t, cleaned)
	assert.Equal(t, "homepage", *cleaned)
}

func TestSanitizeScreenIDNilPassesThrough(t *testing.T) {
	assert.Nil(t, sanitizeScreenID(nil))
}

const okAppSource = `module.exports = {
	meta: { name: "ok-app" },
	getWelcomeScreen: function() { return "welcome"; },
	handleCommand: function(screenId, command, session) {
		return { response: "you said " + command, refresh: true };
	},
	getHelp: function() { return "help text"; },
};`

func TestNewIsolateLoadsCleanModule(t *testing.T) {
	cfg := DefaultConfig()
	iso, err := newIsolate("ok-app", okAppSource, cfg, bbslog.NewNop())
	require.NoError(t, err)

	app, err := extractApp(iso, "ok-app", "https://example.invalid/app.js", nil)
	require.NoError(t, err)

	assert.Equal(t, "welcome", app.GetWelcomeScreen())

	result, err := app.HandleCommand(nil, "hello", domain.SessionView{})
	require.NoError(t, err)
	assert.Equal(t, "you said hello", result.Response)
}

func TestNewIsolateRejectsModuleWithoutHandleCommand(t *testing.T) {
	cfg := DefaultConfig()
	iso, err := newIsolate("bad-app", `module.exports = { meta: { name: "bad" } };`, cfg, bbslog.NewNop())
	require.NoError(t, err)

	_, err = extractApp(iso, "bad-app", "https://example.invalid/app.js", nil)
	assert.Error(t, err)
}

func TestNewIsolateEnforcesLoadTimeout(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LoadTimeout = 10 * time.Millisecond
	_, err := newIsolate("slow-app", `while (true) {}`, cfg, bbslog.NewNop())
	require.Error(t, err)
}

func TestIsolateDrainDueTimersFiresExpiredCallback(t *testing.T) {
	cfg := DefaultConfig()
	iso, err := newIsolate("timer-app", `module.exports = { handleCommand: function() {} };`, cfg, bbslog.NewNop())
	require.NoError(t, err)

	fired := false
	fn, _ := goja.AssertFunction(iso.vm.ToValue(func(goja.FunctionCall) goja.Value {
		fired = true
		return goja.Undefined()
	}))
	iso.timers = append(iso.timers, pendingTimer{fireAt: time.Now().Add(-time.Second), fn: fn})

	iso.drainDueTimers()
	assert.True(t, fired)
	assert.Empty(t, iso.timers)
}

func TestExtractedAppHandleCommandRespectsRateLimit(t *testing.T) {
	cfg := DefaultConfig()
	iso, err := newIsolate("ratelimited-app", okAppSource, cfg, bbslog.NewNop())
	require.NoError(t, err)

	app, err := extractApp(iso, "ratelimited-app", "https://example.invalid/app.js", denyAllLimiter{})
	require.NoError(t, err)

	_, err = app.HandleCommand(nil, "hi", domain.SessionView{})
	assert.Error(t, err)
}

type denyAllLimiter struct{}

func (denyAllLimiter) Allow(context.Context, string, ratelimit.Operation) bool { return false }
