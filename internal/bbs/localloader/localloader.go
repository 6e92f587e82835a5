// Package localloader implements LocalLoader (spec §4.6, C6): discovery of
// apps installed on the local filesystem. Each app module ships a
// module.yaml descriptor (grounded on the yaml.v3 dependency the teacher's
// go.mod already carries) tagged "bbs-app"; the loader reads the
// descriptor, resolves the app via a caller-supplied factory registry
// (Go has no runtime default-export mechanism the way a dynamic-language
// host does), validates it, and hands it to the registry.
package localloader

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/boardwalkbbs/server/internal/bbs/appcontract"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
)

// Descriptor is a module's module.yaml: the one piece of metadata the
// loader trusts before instantiating a module's registered factory.
type Descriptor struct {
	Tag     string `yaml:"tag"`
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

const requiredTag = "bbs-app"

// Factory builds an App for a given descriptor, the moral equivalent of
// "load the module's default export". Host binaries register one Factory
// per compiled-in local app under its descriptor id in cmd/bbs-server's
// wiring, since Go cannot load arbitrary code at runtime the way a
// dynamic-language host can.
type Factory func() domain.App

// Registrar is the subset of registry.Registry the loader writes into.
type Registrar interface {
	Register(app domain.App, origin domain.Origin) error
}

// Loader scans a directory tree for module.yaml descriptors and loads the
// ones that have a registered Factory.
type Loader struct {
	modulesDir string
	factories  map[string]Factory
	log        *bbslog.Logger
}

// New constructs a Loader rooted at modulesDir, with factories keyed by
// descriptor id.
func New(modulesDir string, factories map[string]Factory, log *bbslog.Logger) *Loader {
	if log == nil {
		log = bbslog.NewDefault("localloader")
	}
	return &Loader{modulesDir: modulesDir, factories: factories, log: log}
}

// ScanAndRegister walks modulesDir, loads every descriptor tagged
// "bbs-app" with a matching Factory, validates it, and registers it into
// registrar. One module's failure is logged and skipped, not fatal to the
// scan (spec §4.6 says nothing about partial-scan atomicity; AppContract's
// all-or-nothing guarantee is per-app, not per-scan).
func (l *Loader) ScanAndRegister(registrar Registrar) error {
	entries, err := os.ReadDir(l.modulesDir)
	if err != nil {
		return bbserr.Internal("failed to read modules directory", err)
	}

	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		descPath := filepath.Join(l.modulesDir, entry.Name(), "module.yaml")
		desc, err := l.readDescriptor(descPath)
		if err != nil {
			l.log.Warn("skipping module, bad descriptor", "path", descPath, "reason", err.Error())
			continue
		}
		if desc.Tag != requiredTag {
			continue
		}

		factory, ok := l.factories[desc.ID]
		if !ok {
			l.log.Warn("skipping module, no registered factory", "id", desc.ID)
			continue
		}

		app := factory()
		probe := domain.SessionView{SessionKey: "probe", CurrentArea: "main"}
		if err := appcontract.Validate(app, probe); err != nil {
			l.log.Warn("local app failed contract validation", "id", desc.ID, "reason", err.Error())
			continue
		}
		if err := registrar.Register(app, domain.OriginLocal); err != nil {
			l.log.Warn("local app registration failed", "id", desc.ID, "reason", err.Error())
			continue
		}
		l.log.Info("local app registered", "id", desc.ID, "version", desc.Version)
	}
	return nil
}

func (l *Loader) readDescriptor(path string) (Descriptor, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read %s: %w", path, err)
	}
	var desc Descriptor
	if err := yaml.Unmarshal(raw, &desc); err != nil {
		return Descriptor{}, fmt.Errorf("parse %s: %w", path, err)
	}
	if desc.ID == "" {
		return Descriptor{}, fmt.Errorf("%s: missing id", path)
	}
	return desc, nil
}
