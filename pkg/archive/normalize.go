package archive

import "strings"

// NormalizeEntryPath converts a host-style path -- which may use
// backslashes and be missing a leading slash -- into the canonical
// archive-path form: forward slashes throughout, with a leading slash.
// AddEntry calls this on every path it is given, so callers may pass
// either form.
func NormalizeEntryPath(path string) string {
	path = strings.ReplaceAll(path, "\\", "/")
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return path
}

// isFileName reports whether name should be classified as a file rather
// than a directory. An archive path's leaf is treated as a file exactly
// when it contains a dot, regardless of what it actually is on disk; a
// dotless file or a dotted directory is deliberately misclassified by
// this rule.
func isFileName(name string) bool {
	return strings.Contains(name, ".")
}
