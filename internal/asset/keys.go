// Package asset owns the binary-asset side of the object-store layout:
// key construction, path hygiene, content-type inference, and the
// single-asset read path with its HTTP cache policy.
//
// Keys look like `<tenant>/assets/<relative path>`.
package asset

import (
	"errors"
	"path"
	"strings"
)

const dir = "assets"

// ErrBadPath is returned by CleanPath for anything that is not a plain
// relative path inside the tenant's asset folder.
var ErrBadPath = errors.New("asset: path must be relative, clean, and non-empty")

// Prefix is the listing prefix of a tenant's assets.
func Prefix(tenantID string) string { return tenantID + "/" + dir + "/" }

// Key joins a tenant and an already clean relative path.
func Key(tenantID, rel string) string { return Prefix(tenantID) + rel }

// CleanPath validates a caller-supplied relative path.  It rejects
// absolute paths, "..", empty segments, and backslashes rather than
// silently rewriting them.
func CleanPath(rel string) (string, error) {
	if rel == "" || strings.HasPrefix(rel, "/") || strings.Contains(rel, `\`) {
		return "", ErrBadPath
	}
	if path.Clean(rel) != rel {
		return "", ErrBadPath
	}
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." || seg == ".." {
			return "", ErrBadPath
		}
	}
	return rel, nil
}

// splitExplicit recognises `<tenant>/assets/<rel>`.  ok is false for any
// other shape.
func splitExplicit(logical string) (tenantID, rel string, ok bool) {
	parts := strings.SplitN(logical, "/", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] != dir || parts[2] == "" {
		return "", "", false
	}
	return parts[0], parts[2], true
}
