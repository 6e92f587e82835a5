package localloader

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

type fakeApp struct{ id string }

func (a *fakeApp) ID() string { return a.id }
func (a *fakeApp) Meta() domain.AppMeta {
	return domain.AppMeta{ID: a.id, Name: a.id, Description: "local test app"}
}
func (a *fakeApp) GetWelcomeScreen() string        { return "welcome" }
func (a *fakeApp) GetHelp(screenID *string) string { return "help" }
func (a *fakeApp) HandleCommand(screenID *string, command string, session domain.SessionView) (domain.CommandResult, error) {
	return domain.CommandResult{Response: "ok"}, nil
}

type fakeRegistrar struct {
	registered []domain.App
}

func (r *fakeRegistrar) Register(app domain.App, origin domain.Origin) error {
	r.registered = append(r.registered, app)
	return nil
}

func writeModule(t *testing.T, dir, name, yaml string) {
	t.Helper()
	modDir := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "module.yaml"), []byte(yaml), 0o644))
}

func TestScanAndRegisterLoadsTaggedModuleWithFactory(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "demo", "tag: bbs-app\nid: demo\nname: Demo\nversion: 1.0.0\n")

	loader := New(dir, map[string]Factory{
		"demo": func() domain.App { return &fakeApp{id: "demo"} },
	}, nil)

	registrar := &fakeRegistrar{}
	require.NoError(t, loader.ScanAndRegister(registrar))

	require.Len(t, registrar.registered, 1)
	assert.Equal(t, "demo", registrar.registered[0].Meta().ID)
}

func TestScanAndRegisterSkipsWrongTag(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "other", "tag: not-a-bbs-app\nid: other\nname: Other\n")

	loader := New(dir, map[string]Factory{
		"other": func() domain.App { return &fakeApp{id: "other"} },
	}, nil)

	registrar := &fakeRegistrar{}
	require.NoError(t, loader.ScanAndRegister(registrar))
	assert.Empty(t, registrar.registered)
}

func TestScanAndRegisterSkipsUnknownFactory(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "demo", "tag: bbs-app\nid: demo\nname: Demo\n")

	loader := New(dir, map[string]Factory{}, nil)

	registrar := &fakeRegistrar{}
	require.NoError(t, loader.ScanAndRegister(registrar))
	assert.Empty(t, registrar.registered)
}

func TestScanAndRegisterSkipsBadDescriptor(t *testing.T) {
	dir := t.TempDir()
	modDir := filepath.Join(dir, "broken")
	require.NoError(t, os.MkdirAll(modDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(modDir, "module.yaml"), []byte("tag: bbs-app\n"), 0o644))

	loader := New(dir, map[string]Factory{}, nil)
	registrar := &fakeRegistrar{}
	require.NoError(t, loader.ScanAndRegister(registrar))
	assert.Empty(t, registrar.registered)
}

func TestScanAndRegisterContinuesAfterOneModuleFailsContract(t *testing.T) {
	dir := t.TempDir()
	writeModule(t, dir, "bad", "tag: bbs-app\nid: \"!!!\"\nname: Bad\n")
	writeModule(t, dir, "good", "tag: bbs-app\nid: good\nname: Good\n")

	loader := New(dir, map[string]Factory{
		"!!!":  func() domain.App { return &fakeApp{id: "!!!"} },
		"good": func() domain.App { return &fakeApp{id: "good"} },
	}, nil)

	registrar := &fakeRegistrar{}
	require.NoError(t, loader.ScanAndRegister(registrar))

	require.Len(t, registrar.registered, 1)
	assert.Equal(t, "good", registrar.registered[0].Meta().ID)
}
