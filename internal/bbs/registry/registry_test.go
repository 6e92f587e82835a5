package registry

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

type stubApp struct {
	id        string
	source    string
	initCount int
	onInit    func(caps any)
}

func (a *stubApp) ID() string { return a.id }
func (a *stubApp) Meta() domain.AppMeta {
	return domain.AppMeta{ID: a.id, Name: a.id, Description: "stub", Source: a.source}
}
func (a *stubApp) GetWelcomeScreen() string { return "welcome" }
func (a *stubApp) GetHelp(screenID *string) string { return "help" }
func (a *stubApp) HandleCommand(screenID *string, command string, session domain.SessionView) (domain.CommandResult, error) {
	return domain.CommandResult{Response: "ok"}, nil
}
func (a *stubApp) OnInit(caps any) {
	a.initCount++
	if a.onInit != nil {
		a.onInit(caps)
	}
}

func TestRegisterInvokesOnInitOnce(t *testing.T) {
	var gotCaps any
	app := &stubApp{id: "alpha", onInit: func(caps any) { gotCaps = caps }}

	reg := New(nil, func(appID string) any { return "caps-for-" + appID }, nil)
	require.NoError(t, reg.Register(app, domain.OriginBuiltin))

	assert.Equal(t, 1, app.initCount)
	assert.Equal(t, "caps-for-alpha", gotCaps)
}

func TestRegisterReplacesExistingID(t *testing.T) {
	reg := New(nil, nil, nil)
	first := &stubApp{id: "alpha"}
	second := &stubApp{id: "alpha"}

	require.NoError(t, reg.Register(first, domain.OriginBuiltin))
	require.NoError(t, reg.Register(second, domain.OriginLocal))

	got, ok := reg.Get("alpha")
	require.True(t, ok)
	assert.Same(t, second, got.App)
	assert.Equal(t, 1, reg.Count())
}

func TestNthIsOneBasedInsertionOrder(t *testing.T) {
	reg := New(nil, nil, nil)
	require.NoError(t, reg.Register(&stubApp{id: "a"}, domain.OriginBuiltin))
	require.NoError(t, reg.Register(&stubApp{id: "b"}, domain.OriginBuiltin))

	app, ok := reg.Nth(1)
	require.True(t, ok)
	assert.Equal(t, "a", app.Meta.ID)

	app, ok = reg.Nth(2)
	require.True(t, ok)
	assert.Equal(t, "b", app.Meta.ID)

	_, ok = reg.Nth(3)
	assert.False(t, ok)
	_, ok = reg.Nth(0)
	assert.False(t, ok)
}

func TestUnregisterRemovesFromOrderAndRemoteURLs(t *testing.T) {
	reg := New(nil, nil, nil)
	require.NoError(t, reg.Register(&stubApp{id: "a", source: "https://example.com/app.js"}, domain.OriginRemote("https://example.com/app.js")))
	reg.TrackRemoteURL("a", "https://example.com/app.js")
	require.Equal(t, []string{"https://example.com/app.js"}, reg.ListRemoteURLs())

	reg.Unregister("a")

	_, ok := reg.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, reg.Count())
	assert.Empty(t, reg.ListRemoteURLs())
}

type failingResolver struct{}

func (failingResolver) Load(ctx context.Context, url string) (domain.App, error) {
	return nil, errors.New("fetch failed")
}

func TestRefreshRemoteAllSkipsFailuresWithoutRollback(t *testing.T) {
	reg := New(nil, nil, nil)
	require.NoError(t, reg.Register(&stubApp{id: "a", source: "https://example.com/a.js"}, domain.OriginRemote("https://example.com/a.js")))
	reg.TrackRemoteURL("a", "https://example.com/a.js")
	require.Equal(t, []string{"https://example.com/a.js"}, reg.ListRemoteURLs())

	reg.RefreshRemoteAll(context.Background(), failingResolver{})

	_, ok := reg.Get("a")
	assert.True(t, ok, "a failed refresh must not remove the existing entry")
}
