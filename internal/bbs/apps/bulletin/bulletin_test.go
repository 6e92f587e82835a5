package bulletin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/capability"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/store/memory"
)

func newInitializedApp(t *testing.T) *App {
	t.Helper()
	st := memory.New()
	sessions := session.New(st, nil)
	app := New()
	app.OnInit(capability.New(ID, st, sessions, ratelimit.NewLocal(nil), nil, nil))
	return app
}

func TestListWithNoPosts(t *testing.T) {
	app := newInitializedApp(t)
	result, err := app.HandleCommand(nil, "LIST", domain.SessionView{})
	require.NoError(t, err)
	assert.Contains(t, result.Response, "No posts yet")
}

func TestPostThenList(t *testing.T) {
	app := newInitializedApp(t)
	sess := domain.SessionView{Username: "alice", IsAuthenticated: true}

	result, err := app.HandleCommand(nil, "POST hello board", sess)
	require.NoError(t, err)
	assert.Equal(t, "posted.", result.Response)

	result, err = app.HandleCommand(nil, "LIST", sess)
	require.NoError(t, err)
	assert.Contains(t, result.Response, "alice: hello board")
}

func TestPostWithoutTextRejected(t *testing.T) {
	app := newInitializedApp(t)
	result, err := app.HandleCommand(nil, "POST ", domain.SessionView{})
	require.NoError(t, err)
	assert.Equal(t, "POST requires text.", result.Response)
}

func TestPostWithoutUsernameFallsBackToAnonymous(t *testing.T) {
	app := newInitializedApp(t)
	result, err := app.HandleCommand(nil, "POST hi there", domain.SessionView{})
	require.NoError(t, err)
	assert.Equal(t, "posted.", result.Response)

	result, err = app.HandleCommand(nil, "LIST", domain.SessionView{})
	require.NoError(t, err)
	assert.Contains(t, result.Response, "anonymous: hi there")
}

func TestBoardFullRejectsFurtherPosts(t *testing.T) {
	// No rate-limit caps: the default kv_set/kv_get burst caps would reject
	// posts well before maxPosts, and this test is about the board limit.
	st := memory.New()
	sessions := session.New(st, nil)
	app := New()
	app.OnInit(capability.New(ID, st, sessions, ratelimit.NewLocal(map[ratelimit.Operation]ratelimit.Cap{}), nil, nil))
	sess := domain.SessionView{Username: "alice"}
	for i := 0; i < maxPosts; i++ {
		result, err := app.HandleCommand(nil, "POST filler", sess)
		require.NoError(t, err)
		require.Equal(t, "posted.", result.Response)
	}

	result, err := app.HandleCommand(nil, "POST one too many", sess)
	require.NoError(t, err)
	assert.Equal(t, "message board is full", result.Response)
}

func TestUnknownCommand(t *testing.T) {
	app := newInitializedApp(t)
	result, err := app.HandleCommand(nil, "WAT", domain.SessionView{})
	require.NoError(t, err)
	assert.Contains(t, result.Response, "Unknown command")
}

func TestMetaAndWelcomeScreen(t *testing.T) {
	app := New()
	assert.Equal(t, ID, app.Meta().ID)
	assert.Contains(t, app.GetWelcomeScreen(), "MESSAGE BOARDS")
}
