package remoteloader

import (
	"context"
	"io"
	"net/http"

	"github.com/tidwall/gjson"

	"github.com/boardwalkbbs/server/internal/bbserr"
)

// Fetcher retrieves raw bytes for a URL. The production implementation is
// httpFetcher (stdlib net/http — there is no third-party HTTP client in the
// example pack's dependency surface beyond what ships for cloud SDKs, so a
// plain *http.Client is the right call here rather than stretching an
// unrelated dependency to cover it); tests supply a stub.
type Fetcher interface {
	Fetch(ctx context.Context, url string, maxBytes int) ([]byte, error)
}

// httpFetcher is the production Fetcher.
type httpFetcher struct {
	client *http.Client
}

// NewHTTPFetcher builds a Fetcher over client, defaulting to
// http.DefaultClient's transport if client is nil.
func NewHTTPFetcher(client *http.Client) Fetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &httpFetcher{client: client}
}

func (f *httpFetcher) Fetch(ctx context.Context, url string, maxBytes int) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, bbserr.RemoteFetch("failed to build request", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, bbserr.RemoteFetch("remote fetch failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, bbserr.RemoteFetch("remote fetch returned non-200", nil).WithDetails("status", resp.StatusCode)
	}

	limited := io.LimitReader(resp.Body, int64(maxBytes)+1)
	body, err := io.ReadAll(limited)
	if err != nil {
		return nil, bbserr.RemoteFetch("failed to read remote response body", err)
	}
	if len(body) > maxBytes {
		return nil, bbserr.RemoteFetch("remote source exceeds size bound", nil).WithDetails("max_bytes", maxBytes)
	}
	return body, nil
}

// manifestFileName is the package-manifest file stage (b) looks for.
const manifestFileName = "package-manifest"

// Manifest is the subset of a fetched package-manifest this loader cares
// about (spec §4.7b).
type Manifest struct {
	Main         string
	Dependencies []string
}

// fetchManifest implements stage (b): retrieve the manifest if present,
// extract main (default "index.js") and the declared dependency list.
// Manifest-fetch failure is recoverable — callers fall back to the default
// main file, per spec.
func fetchManifest(ctx context.Context, fetcher Fetcher, ref Reference) Manifest {
	fallback := Manifest{Main: "index.js"}

	raw, err := fetcher.Fetch(ctx, ref.RawFileURL(manifestFileName), 1<<16)
	if err != nil || !gjson.ValidBytes(raw) {
		return fallback
	}

	parsed := gjson.ParseBytes(raw)
	main := parsed.Get("main").String()
	if main == "" {
		main = fallback.Main
	}

	var deps []string
	for _, dep := range parsed.Get("dependencies").Array() {
		if s := dep.String(); s != "" {
			deps = append(deps, s)
		}
	}
	return Manifest{Main: main, Dependencies: deps}
}

// fetchSource implements stage (c): retrieve the raw text of the main file,
// bounded to cfg.MaxSourceBytes.
func fetchSource(ctx context.Context, fetcher Fetcher, ref Reference, main string, cfg Config) (string, error) {
	body, err := fetcher.Fetch(ctx, ref.RawFileURL(main), cfg.MaxSourceBytes)
	if err != nil {
		return "", err
	}
	return string(body), nil
}
