package capability

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbs/session"
	"github.com/boardwalkbbs/server/internal/bbs/store/memory"
)

func newFacade(t *testing.T) *Facade {
	t.Helper()
	st := memory.New()
	sessions := session.New(st, nil)
	return New("testapp", st, sessions, ratelimit.NewLocal(nil), nil, nil)
}

func TestScopeSetGet(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	require.NoError(t, f.Storage().Set(ctx, "greeting", domain.String("hello")))

	v, ok, err := f.Storage().Get(ctx, "greeting")
	require.NoError(t, err)
	require.True(t, ok)
	s, ok := v.AsString()
	require.True(t, ok)
	assert.Equal(t, "hello", s)
}

func TestScopeGetMissingKey(t *testing.T) {
	f := newFacade(t)
	_, ok, err := f.Storage().Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestScopeSetRejectsCodeLike(t *testing.T) {
	f := newFacade(t)
	err := f.Storage().Set(context.Background(), "k", domain.String("function() { return 1; }"))
	require.Error(t, err)
}

func TestUserStorageAndNamespacedStorageAreIsolated(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	require.NoError(t, f.UserStorage("alice").Set(ctx, "k", domain.Number(1)))
	require.NoError(t, f.NamespacedStorage("team").Set(ctx, "k", domain.Number(2)))
	require.NoError(t, f.Storage().Set(ctx, "k", domain.Number(3)))

	v1, ok, err := f.UserStorage("alice").Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	n1, _ := v1.AsNumber()
	assert.Equal(t, float64(1), n1)

	v2, ok, err := f.NamespacedStorage("team").Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	n2, _ := v2.AsNumber()
	assert.Equal(t, float64(2), n2)

	v3, ok, err := f.Storage().Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	n3, _ := v3.AsNumber()
	assert.Equal(t, float64(3), n3)
}

func TestUserStorageSanitizesScope(t *testing.T) {
	f := newFacade(t)
	ctx := context.Background()

	require.NoError(t, f.UserStorage("ali ce!@#").Set(ctx, "k", domain.String("x")))
	v, ok, err := f.UserStorage("alice").Get(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	s, _ := v.AsString()
	assert.Equal(t, "x", s)
}

func TestCurrentUserAnonymousSession(t *testing.T) {
	f := newFacade(t)
	_, ok, err := f.CurrentUser(context.Background(), domain.SessionView{IsAuthenticated: false})
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRateLimitExceededReturnsQuotaError(t *testing.T) {
	st := memory.New()
	sessions := session.New(st, nil)
	limiter := ratelimit.NewLocal(map[ratelimit.Operation]ratelimit.Cap{
		ratelimit.OpKVGet: {PerMinute: 1},
	})
	f := New("testapp", st, sessions, limiter, nil, nil)

	ctx := context.Background()
	_, _, err := f.Storage().Get(ctx, "k")
	require.NoError(t, err)

	_, _, err = f.Storage().Get(ctx, "k")
	require.Error(t, err)
}

func TestUtilsAsciiBoxedTitleAndSeparator(t *testing.T) {
	u := Utils{}
	assert.Contains(t, u.AsciiBoxedTitle("HI"), "= HI =")
	assert.Equal(t, "----", u.Separator('-', 4))
	assert.Equal(t, "", u.Separator('-', 0))
}

func TestUtilsJSONPath(t *testing.T) {
	u := Utils{}
	v := domain.Map(map[string]domain.Value{
		"name": domain.String("alice"),
	})
	out, err := u.JSONPath("$.name", v)
	require.NoError(t, err)
	s, ok := out.AsString()
	require.True(t, ok)
	assert.Equal(t, "alice", s)
}
