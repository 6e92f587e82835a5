package remoteloader

import (
	"net/url"
	"strings"

	"github.com/boardwalkbbs/server/internal/bbserr"
)

// Reference is the (owner, repo, branch, subpath) a remote-source URL
// resolves to (spec §4.7a).
type Reference struct {
	Host    string
	Owner   string
	Repo    string
	Branch  string
	Subpath string
}

const defaultBranch = "main"

// resolveURL implements stage (a): accept only URLs whose host is in
// allowedHosts, parsing the conventional "<host>/<owner>/<repo>[/tree/<branch>[/<subpath>]]"
// shape a source-hosting service uses. Unknown hosts or malformed URLs fail
// fast with a Sandbox-kind error so the Shell's INSTALL verb can surface the
// reason directly.
func resolveURL(raw string, allowedHosts []string) (Reference, error) {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return Reference{}, bbserr.Sandbox("malformed remote app URL").WithDetails("url", raw)
	}

	host := strings.ToLower(u.Hostname())
	if !hostAllowed(host, allowedHosts) {
		return Reference{}, bbserr.Sandbox("unknown remote-source host").WithDetails("host", host)
	}

	parts := strings.Split(strings.Trim(u.Path, "/"), "/")
	if len(parts) < 2 || parts[0] == "" || parts[1] == "" {
		return Reference{}, bbserr.Sandbox("remote app URL must name an owner and repo").WithDetails("url", raw)
	}

	ref := Reference{Host: host, Owner: parts[0], Repo: parts[1], Branch: defaultBranch}
	rest := parts[2:]
	if len(rest) >= 2 && rest[0] == "tree" {
		ref.Branch = rest[1]
		rest = rest[2:]
	}
	if len(rest) > 0 {
		ref.Subpath = strings.Join(rest, "/")
	}
	return ref, nil
}

func hostAllowed(host string, allowed []string) bool {
	for _, candidate := range allowed {
		if strings.EqualFold(host, candidate) {
			return true
		}
	}
	return false
}

// SyntheticID builds the registry id a cached/installed remote app is
// stored under (spec §4.7i: "remote_<owner>_<repo>[_<subpath>]").
func (r Reference) SyntheticID() string {
	id := "remote_" + r.Owner + "_" + r.Repo
	if r.Subpath != "" {
		id += "_" + strings.ReplaceAll(r.Subpath, "/", "_")
	}
	return id
}

// RawFileURL builds the raw-content URL for a path within the reference,
// the shape a source-hosting service's raw-content endpoint takes.
func (r Reference) RawFileURL(path string) string {
	trimmedSub := strings.Trim(r.Subpath, "/")
	segments := []string{"https:/", r.Host, r.Owner, r.Repo, r.Branch}
	if trimmedSub != "" {
		segments = append(segments, trimmedSub)
	}
	segments = append(segments, path)
	return strings.Join(segments, "/")
}
