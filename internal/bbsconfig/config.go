// Package bbsconfig decodes process configuration (spec §6 Environment):
// one required value, the store connection string, plus optional tuning
// knobs. Binding is by struct tag via joeshaw/envdecode, the way the
// teacher's go.mod already carries that dependency; godotenv loads a local
// .env file in development before envdecode reads the process environment.
package bbsconfig

import (
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
	"github.com/joho/godotenv"

	"github.com/boardwalkbbs/server/internal/bbserr"
)

// Config is the full set of environment-derived settings.
type Config struct {
	StoreDSN string `env:"BBS_STORE_DSN,required"`

	RemoteAllowedHosts string `env:"BBS_REMOTE_ALLOWED_HOSTS,default=github.com"`

	RedisAddr string `env:"BBS_REDIS_ADDR"`

	HTTPAddr string `env:"BBS_HTTP_ADDR,default=:8080"`

	JWTSigningKey string `env:"BBS_JWT_SIGNING_KEY"`

	SessionReapAfter time.Duration `env:"BBS_SESSION_REAP_AFTER,default=720h"`
	SessionReapCron  string        `env:"BBS_SESSION_REAP_CRON,default=0 3 * * *"`
	RemoteRefreshCron string       `env:"BBS_REMOTE_REFRESH_CRON,default=0 * * * *"`

	LocalModulesDir string `env:"BBS_LOCAL_MODULES_DIR,default=./modules"`

	CORSAllowedOrigins string `env:"BBS_CORS_ALLOWED_ORIGINS,default=*"`
}

// CORSOrigins splits CORSAllowedOrigins on commas, trimming whitespace.
func (c Config) CORSOrigins() []string {
	raw := strings.Split(c.CORSAllowedOrigins, ",")
	origins := make([]string, 0, len(raw))
	for _, o := range raw {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AllowedHosts splits RemoteAllowedHosts on commas, trimming whitespace.
func (c Config) AllowedHosts() []string {
	raw := strings.Split(c.RemoteAllowedHosts, ",")
	hosts := make([]string, 0, len(raw))
	for _, h := range raw {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	return hosts
}

// Load reads .env (if present, silently ignored otherwise) then decodes
// the process environment into a Config.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envdecode.StrictDecode(&cfg); err != nil {
		return Config{}, bbserr.Internal("failed to decode configuration", err)
	}
	return cfg, nil
}
