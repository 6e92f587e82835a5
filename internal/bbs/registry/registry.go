// Package registry implements AppRegistry (spec §4.5, C5): the in-memory
// index of loaded apps. Reads are frequent (every command dispatch), writes
// rare (install/uninstall); sync.RWMutex gives concurrent readers while a
// writer's swap is atomic under the lock, so a reader never observes a
// partially-installed app.
package registry

import (
	"context"
	"sort"
	"sync"

	"github.com/boardwalkbbs/server/internal/audit"
	"github.com/boardwalkbbs/server/internal/bbs/appcontract"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbslog"
	"github.com/boardwalkbbs/server/internal/bbsmetrics"
)

// CapabilityFactory builds the capability facade an app's OnInit hook
// receives, so registry doesn't need to import capability (which in turn
// needs the registry's app-id scoping only, not the registry itself).
type CapabilityFactory func(appID string) any

// Registry is AppRegistry.
type Registry struct {
	mu          sync.RWMutex
	apps        map[string]*domain.LoadedApp
	order       []string // insertion order, for Shell's "numeric token N" menu
	remoteURLs  map[string]bool

	log        *bbslog.Logger
	newCapsFor CapabilityFactory
	audit      *audit.Log
}

// New constructs an empty Registry. auditLog may be nil (no security trail
// kept, e.g. in tests).
func New(log *bbslog.Logger, capsFactory CapabilityFactory, auditLog *audit.Log) *Registry {
	if log == nil {
		log = bbslog.NewDefault("registry")
	}
	return &Registry{
		apps:       make(map[string]*domain.LoadedApp),
		remoteURLs: make(map[string]bool),
		log:        log,
		newCapsFor: capsFactory,
		audit:      auditLog,
	}
}

// Register admits app into the registry, validating it first (spec §4.4);
// an id clash replaces the prior entry (spec §3 LoadedApp Lifecycle).
// on_init is invoked exactly once, after the swap, never while holding the
// write lock (an app's init hook may itself call back into the registry
// through its capability facade).
func (r *Registry) Register(app domain.App, origin domain.Origin) error {
	probe := domain.SessionView{SessionKey: "probe", CurrentArea: "main"}
	if err := appcontract.Validate(app, probe); err != nil {
		bbsmetrics.SandboxRejections.Inc()
		r.log.Warn("app rejected at registration", "app_id", app.Meta().ID, "reason", err.Error())
		if r.audit != nil {
			r.audit.Event("sandbox_rejection", err.Error(), map[string]any{"app_id": app.Meta().ID, "origin": string(origin)})
		}
		return err
	}

	meta := app.Meta()
	loaded := &domain.LoadedApp{Meta: meta, Origin: origin, App: app}

	r.mu.Lock()
	_, replacing := r.apps[meta.ID]
	r.apps[meta.ID] = loaded
	if !replacing {
		r.order = append(r.order, meta.ID)
	}
	r.mu.Unlock()

	bbsmetrics.RegistrySize.Set(float64(r.Count()))
	if r.audit != nil {
		kind := "app_installed"
		if replacing {
			kind = "app_reinstalled"
		}
		r.audit.Event(kind, meta.ID, map[string]any{"origin": string(origin)})
	}

	if initApp, ok := app.(domain.OnInitApp); ok && r.newCapsFor != nil {
		initApp.OnInit(r.newCapsFor(meta.ID))
	}
	return nil
}

// Unregister removes id from the registry (spec §4.5 unregister).
func (r *Registry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.apps, id)
	for i, existing := range r.order {
		if existing == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
	delete(r.remoteURLs, id)
	if r.audit != nil {
		r.audit.Event("app_uninstalled", id, nil)
	}
}

// Get looks up a LoadedApp by id.
func (r *Registry) Get(id string) (*domain.LoadedApp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	app, ok := r.apps[id]
	return app, ok
}

// ListAll returns every LoadedApp in registration order.
func (r *Registry) ListAll() []*domain.LoadedApp {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]*domain.LoadedApp, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.apps[id])
	}
	return out
}

// Nth returns the app at 1-based insertion position n, for the Shell's
// "numeric token N selects the Nth installed app" dispatch rule.
func (r *Registry) Nth(n int) (*domain.LoadedApp, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if n < 1 || n > len(r.order) {
		return nil, false
	}
	return r.apps[r.order[n-1]], true
}

// Count reports how many apps are currently registered.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// TrackRemoteURL records url as installed under appID, so
// RefreshRemoteAll and ListRemoteURLs can find it later.
func (r *Registry) TrackRemoteURL(appID, url string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.remoteURLs[appID] = true
	_ = url // URL itself lives on the LoadedApp's Meta.Source
}

// ListRemoteURLs implements AppRegistry.list_remote_urls.
func (r *Registry) ListRemoteURLs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	urls := make([]string, 0, len(r.remoteURLs))
	for id := range r.remoteURLs {
		if app, ok := r.apps[id]; ok && app.Meta.Source != "" {
			urls = append(urls, app.Meta.Source)
		}
	}
	sort.Strings(urls)
	return urls
}

// Resolver refreshes a single remote app from its origin URL, implemented
// by remoteloader.Loader. Registry depends only on this narrow interface
// to avoid an import cycle (remoteloader registers into the Registry).
type Resolver interface {
	Load(ctx context.Context, url string) (domain.App, error)
}

// RefreshRemoteAll re-resolves every tracked remote URL and replaces its
// entry (spec §4.5 refresh_remote_all). A failure on one URL is logged and
// skipped; it never rolls back apps that refreshed successfully.
func (r *Registry) RefreshRemoteAll(ctx context.Context, resolver Resolver) {
	for _, url := range r.ListRemoteURLs() {
		app, err := resolver.Load(ctx, url)
		if err != nil {
			r.log.Warn("remote app refresh failed", "url", url, "reason", err.Error())
			continue
		}
		if err := r.Register(app, domain.OriginRemote(url)); err != nil {
			r.log.Warn("refreshed remote app failed re-validation", "url", url, "reason", err.Error())
			continue
		}
		r.TrackRemoteURL(app.Meta().ID, url)
	}
}
