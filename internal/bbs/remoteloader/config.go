// Package remoteloader implements RemoteLoader (spec §4.7, C7): given a
// remote-repository URL, safely load, validate, sandbox, and wrap a BBS app.
// Every stage (a)-(i) of §4.7 gets its own file: urlresolve.go (a),
// manifest.go (b)-(c), staticanalysis.go (d), isolate.go (e)-(h), loader.go
// (i) plus the top-level orchestration.
package remoteloader

import "time"

// Config bounds every quota-sensitive stage of the pipeline (spec §4.7e).
type Config struct {
	AllowedHosts []string // known remote-source hosting service hostnames

	MaxSourceBytes int // (c) source fetch size bound

	LoadTimeout  time.Duration // (e) wall-clock timeout for the module-load pass
	CallTimeout  time.Duration // (e) wall-clock timeout for each handle_command call
	CPUBudget    time.Duration // (e) CPU budget per call; goja has no native CPU accounting,
	// so this is enforced as a second, tighter wall-clock ceiling layered under
	// CallTimeout (see extractedApp.HandleCommand in isolate.go) — see DESIGN.md's note on
	// goja's lack of a heap/CPU-metering API.
	MemoryCeilingBytes int // (e) advisory; see isolate.go

	CacheTTL time.Duration // (i) re-install-within-TTL returns the cached entry
}

// DefaultConfig mirrors spec §4.7's stated defaults.
func DefaultConfig() Config {
	return Config{
		MaxSourceBytes:     1 << 20, // 1 MiB
		LoadTimeout:        5 * time.Second,
		CallTimeout:        5 * time.Second,
		CPUBudget:          3 * time.Second,
		MemoryCeilingBytes: 128 << 20, // 128 MiB
		CacheTTL:           time.Hour,
	}
}
