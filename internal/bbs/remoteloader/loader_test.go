package remoteloader

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbslog"
)

type fakeFetcher struct {
	files map[string][]byte
}

func (f *fakeFetcher) Fetch(_ context.Context, url string, maxBytes int) ([]byte, error) {
	for suffix, body := range f.files {
		if len(url) >= len(suffix) && url[len(url)-len(suffix):] == suffix {
			if len(body) > maxBytes {
				return nil, assert.AnError
			}
			return body, nil
		}
	}
	return nil, assert.AnError
}

func TestLoaderLoadAcceptsCleanRemoteApp(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.test"}
	fetcher := &fakeFetcher{files: map[string][]byte{
		"index.js": []byte(okAppSource),
	}}
	loader := New(cfg, fetcher, nil, bbslog.NewNop())

	app, err := loader.Load(context.Background(), "https://example.test/owner/repo")
	require.NoError(t, err)
	assert.Equal(t, "welcome", app.GetWelcomeScreen())
}

func TestLoaderLoadRejectsDisallowedHost(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.test"}
	loader := New(cfg, &fakeFetcher{}, nil, bbslog.NewNop())

	_, err := loader.Load(context.Background(), "https://evil.test/owner/repo")
	assert.Error(t, err)
}

func TestLoaderLoadRejectsUnsafeSource(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.test"}
	fetcher := &fakeFetcher{files: map[string][]byte{
		"index.js": []byte(`module.exports = { handleCommand: function() { return eval("1"); } };`),
	}}
	loader := New(cfg, fetcher, nil, bbslog.NewNop())

	_, err := loader.Load(context.Background(), "https://example.test/owner/repo")
	assert.Error(t, err)
}

func TestLoaderLoadCachesWithinTTL(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.test"}
	fetcher := &fakeFetcher{files: map[string][]byte{
		"index.js": []byte(okAppSource),
	}}
	loader := New(cfg, fetcher, nil, bbslog.NewNop())

	first, err := loader.Load(context.Background(), "https://example.test/owner/repo")
	require.NoError(t, err)
	second, err := loader.Load(context.Background(), "https://example.test/owner/repo")
	require.NoError(t, err)
	assert.Same(t, first, second)
}

func TestCheckDependenciesAllowsKnownModules(t *testing.T) {
	assert.NoError(t, checkDependencies([]string{"bbs-utils", "bbs-dates"}))
}

func TestCheckDependenciesRejectsUnknownModule(t *testing.T) {
	err := checkDependencies([]string{"bbs-utils", "fs"})
	assert.Error(t, err)
}

func TestCheckDependenciesAllowsEmptyList(t *testing.T) {
	assert.NoError(t, checkDependencies(nil))
}

func TestLoaderLoadRejectsDisallowedDependency(t *testing.T) {
	cfg := DefaultConfig()
	cfg.AllowedHosts = []string{"example.test"}
	fetcher := &fakeFetcher{files: map[string][]byte{
		"package-manifest": []byte(`{"main": "index.js", "dependencies": ["child_process"]}`),
		"index.js":          []byte(okAppSource),
	}}
	loader := New(cfg, fetcher, nil, bbslog.NewNop())

	_, err := loader.Load(context.Background(), "https://example.test/owner/repo")
	assert.Error(t, err)
}

func TestResolveURLParsesOwnerRepoBranchSubpath(t *testing.T) {
	ref, err := resolveURL("https://example.test/owner/repo/tree/dev/apps/widget", []string{"example.test"})
	require.NoError(t, err)
	assert.Equal(t, "owner", ref.Owner)
	assert.Equal(t, "repo", ref.Repo)
	assert.Equal(t, "dev", ref.Branch)
	assert.Equal(t, "apps/widget", ref.Subpath)
}

func TestResolveURLRejectsUnknownHost(t *testing.T) {
	_, err := resolveURL("https://evil.test/owner/repo", []string{"example.test"})
	assert.Error(t, err)
}

func TestResolveURLRejectsMissingRepo(t *testing.T) {
	_, err := resolveURL("https://example.test/owner", []string{"example.test"})
	assert.Error(t, err)
}

func TestSyntheticIDIncludesSubpath(t *testing.T) {
	ref := Reference{Owner: "owner", Repo: "repo", Subpath: "apps/widget"}
	assert.Equal(t, "remote_owner_repo_apps_widget", ref.SyntheticID())
}
