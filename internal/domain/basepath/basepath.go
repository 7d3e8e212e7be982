// Package basepath normalises the deployment sub-path and prefixes URLs with it.
package basepath

import "strings"

// Normalize turns a raw base path into "" or "/segment[/segment...]".
//
//	""        -> ""
//	"demo/"   -> "/demo"
//	"/a/b/"   -> "/a/b"
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	trimmed := strings.Trim(raw, "/")
	if trimmed == "" {
		return ""
	}
	return "/" + trimmed
}

// Join prefixes path with an already normalised base.
func Join(base, path string) string {
	if base == "" {
		return path
	}
	if strings.HasPrefix(path, "/") {
		return base + path
	}
	return base + "/" + path
}

// Prefixer binds a normalised base path.
type Prefixer string

// New normalises raw and returns a Prefixer for it.
func New(raw string) Prefixer { return Prefixer(Normalize(raw)) }

// Base returns the normalised base path ("" at the root).
func (p Prefixer) Base() string { return string(p) }

// URL prefixes path with the base path.
func (p Prefixer) URL(path string) string { return Join(string(p), path) }
