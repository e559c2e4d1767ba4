package commands

import (
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// Default front-end routes.
const (
	DefaultTreeURL       = "/lab/tree/"
	DefaultWorkspacesURL = "/lab/workspaces/"
)

// ErrNoRoute is returned for a URL that matches neither route.
var ErrNoRoute = errors.New("url does not point into the file tree")

// Router extracts content paths from routed front-end URLs of the forms
// <tree>/<path> and <workspaces>/<name>/tree/<path>.
type Router struct {
	tree      *regexp.Regexp
	workspace *regexp.Regexp
}

// NewRouter creates a router for the given route prefixes. Empty values
// use the defaults.
func NewRouter(treeURL, workspacesURL string) *Router {
	if treeURL == "" {
		treeURL = DefaultTreeURL
	}
	if workspacesURL == "" {
		workspacesURL = DefaultWorkspacesURL
	}
	return &Router{
		tree:      regexp.MustCompile("^" + regexp.QuoteMeta(treeURL) + `([^?]+)`),
		workspace: regexp.MustCompile("^" + regexp.QuoteMeta(workspacesURL) + `[^?/]+/tree/([^?]+)`),
	}
}

// Match returns the decoded content path the URL points at and whether it
// came from a workspace route.
func (r *Router) Match(rawURL string) (path string, workspace bool, err error) {
	if u, perr := url.Parse(rawURL); perr == nil && u.Scheme != "" {
		rawURL = u.EscapedPath()
	}

	var m []string
	if m = r.tree.FindStringSubmatch(rawURL); m == nil {
		if m = r.workspace.FindStringSubmatch(rawURL); m == nil {
			return "", false, fmt.Errorf("%w: %s", ErrNoRoute, rawURL)
		}
		workspace = true
	}

	decoded, err := url.PathUnescape(m[1])
	if err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", m[1], err)
	}
	return strings.Trim(decoded, "/"), workspace, nil
}
