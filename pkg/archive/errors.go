package archive

import (
	"errors"

	"github.com/user/rpfgo/internal/rpf7fmt"
)

var (
	// ErrNotFound is returned when an archive path names no entry.
	ErrNotFound = errors.New("archive: entry not found")
	// ErrNotAFile is returned when an operation that reads content is
	// aimed at a directory.
	ErrNotAFile = errors.New("archive: entry is not a file")
	// ErrBadMagic is returned when a file's header does not begin with
	// the RPF7 identifier.
	ErrBadMagic = errors.New("archive: bad magic")
	// ErrUnsupportedEncryption is returned for AES/NG archives, which
	// this engine refuses to open.
	ErrUnsupportedEncryption = errors.New("archive: unsupported encryption")
	// ErrMalformedArchive is returned when the entry table or name heap
	// is internally inconsistent.
	ErrMalformedArchive = errors.New("archive: malformed archive")
	// ErrCompression wraps a failure in the compression pipeline.
	ErrCompression = errors.New("archive: compression error")
	// ErrClosed is returned by AddEntry, GetEntryData and SaveEntryToPath
	// on a closed Archive. A second Close returns nil instead.
	ErrClosed = errors.New("archive: already closed")
	// ErrWrongMode is returned when a read-mode-only or write-mode-only
	// method is called on an archive opened in the other mode.
	ErrWrongMode = errors.New("archive: operation not valid in this mode")

	// ErrNameHeapOverflow re-exports rpf7fmt's sentinel so callers never
	// need to import the internal package to use errors.Is.
	ErrNameHeapOverflow = rpf7fmt.ErrNameHeapOverflow
)
