package remoteloader

import (
	"context"
	"sync"
	"time"

	"github.com/dop251/goja"

	"github.com/boardwalkbbs/server/internal/bbs/appcontract"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
	"github.com/boardwalkbbs/server/internal/bbs/ratelimit"
	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbslog"
	"github.com/boardwalkbbs/server/internal/bbsmetrics"
)

// cacheEntry is one installed-within-TTL remote app (spec §4.7i). The
// registry's own on_init dispatch (triggered by Registry.Register) is what
// actually hands this app's OnInit its CapabilityFacade — Load only builds
// the App, the Shell's INSTALL verb registers it.
type cacheEntry struct {
	app       domain.App
	loadedAt  time.Time
}

// Loader implements RemoteLoader end to end (spec §4.7).
type Loader struct {
	cfg     Config
	fetcher Fetcher
	limiter ratelimit.Limiter
	log     *bbslog.Logger

	mu    sync.Mutex
	cache map[string]cacheEntry // keyed by source URL
}

// New constructs a Loader. limiter gates every extracted app's
// command_execution calls.
func New(cfg Config, fetcher Fetcher, limiter ratelimit.Limiter, log *bbslog.Logger) *Loader {
	if log == nil {
		log = bbslog.NewDefault("remoteloader")
	}
	return &Loader{
		cfg:     cfg,
		fetcher: fetcher,
		limiter: limiter,
		log:     log,
		cache:   make(map[string]cacheEntry),
	}
}

// Load runs stages (a)-(h) for rawURL, returning the wrapped App ready for
// AppRegistry.Register. A cache hit within cfg.CacheTTL short-circuits the
// whole pipeline (stage i).
func (l *Loader) Load(ctx context.Context, rawURL string) (domain.App, error) {
	l.mu.Lock()
	if entry, ok := l.cache[rawURL]; ok && time.Since(entry.loadedAt) < l.cfg.CacheTTL {
		l.mu.Unlock()
		return entry.app, nil
	}
	l.mu.Unlock()

	ref, err := resolveURL(rawURL, l.cfg.AllowedHosts)
	if err != nil {
		return nil, err
	}

	manifest := fetchManifest(ctx, l.fetcher, ref)

	if err := checkDependencies(manifest.Dependencies); err != nil {
		bbsmetrics.SandboxRejections.Inc()
		l.log.Warn("remote app declares disallowed dependency", "url", rawURL, "reason", err.Error())
		return nil, err
	}

	source, err := fetchSource(ctx, l.fetcher, ref, manifest.Main, l.cfg)
	if err != nil {
		return nil, err
	}

	if err := Analyze(source); err != nil {
		bbsmetrics.SandboxRejections.Inc()
		l.log.Warn("remote app rejected by static analysis", "url", rawURL, "reason", err.Error())
		return nil, err
	}

	appID := ref.SyntheticID()
	iso, err := newIsolate(appID, source, l.cfg, l.log)
	if err != nil {
		bbsmetrics.SandboxRejections.Inc()
		return nil, err
	}

	app, err := extractApp(iso, appID, rawURL, l.limiter)
	if err != nil {
		bbsmetrics.SandboxRejections.Inc()
		return nil, err
	}

	probe := domain.SessionView{SessionKey: "probe", CurrentArea: "main"}
	if err := appcontract.Validate(app, probe); err != nil {
		bbsmetrics.SandboxRejections.Inc()
		return nil, err
	}

	l.mu.Lock()
	l.cache[rawURL] = cacheEntry{app: app, loadedAt: time.Now()}
	l.mu.Unlock()

	return app, nil
}

// checkDependencies intersects a manifest's declared dependencies against
// AllowedModuleNames (spec §4.7b): any dependency outside the require()
// allow-list fails the load before a single line of source is fetched.
func checkDependencies(declared []string) error {
	for _, dep := range declared {
		allowed := false
		for _, name := range AllowedModuleNames {
			if dep == name {
				allowed = true
				break
			}
		}
		if !allowed {
			return bbserr.Sandbox("disallowed dependency: " + dep)
		}
	}
	return nil
}

// extractApp implements stage (g): read the module's default export
// back out of the isolate, validating the required callables exist.
func extractApp(iso *Isolate, appID, sourceURL string, limiter ratelimit.Limiter) (*extractedApp, error) {
	exportsObj := iso.exports()

	meta := domain.AppMeta{ID: appID, Source: sourceURL}
	if metaVal := exportsObj.Get("meta"); metaVal != nil && !goja.IsUndefined(metaVal) {
		if m, ok := metaVal.Export().(map[string]interface{}); ok {
			if name, ok := m["name"].(string); ok {
				meta.Name = name
			}
			if version, ok := m["version"].(string); ok {
				meta.Version = version
			}
			if desc, ok := m["description"].(string); ok {
				meta.Description = desc
			}
			if author, ok := m["author"].(string); ok {
				meta.Author = author
			}
		}
	}
	if meta.Name == "" {
		meta.Name = appID
	}

	handleCommand, ok := goja.AssertFunction(exportsObj.Get("handleCommand"))
	if !ok {
		return nil, bbserr.Sandbox("module.exports.handleCommand is not a function")
	}
	welcomeScreen, _ := goja.AssertFunction(exportsObj.Get("getWelcomeScreen"))
	getHelp, _ := goja.AssertFunction(exportsObj.Get("getHelp"))
	onInit, _ := goja.AssertFunction(exportsObj.Get("onInit"))

	return &extractedApp{
		meta:          meta,
		iso:           iso,
		welcomeScreen: welcomeScreen,
		handleCommand: handleCommand,
		getHelp:       getHelp,
		onInit:        onInit,
		limiter:       limiter,
	}, nil
}
