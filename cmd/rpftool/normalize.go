package main

import "golang.org/x/text/unicode/norm"

// normalizeCLIPath NFC-normalizes an archive path that action=create
// derives from a file found under -src, so that visually identical paths
// from differently-normalized host filesystems (NFD on macOS, for
// instance) don't create duplicate archive entries.
func normalizeCLIPath(p string) string {
	return norm.NFC.String(p)
}
