// Package archive implements the RPF7 game-archive container format: a
// reader for mounting an existing archive for random-access extraction,
// and a writer for building a new archive from host-filesystem inputs.
package archive

import (
	"os"

	"github.com/user/rpfgo/internal/oodlebundle"
	"github.com/user/rpfgo/internal/rpf7fmt"
)

// Mode records whether an Archive was opened for reading or is being
// built for writing.
type Mode int

const (
	ModeRead Mode = iota
	ModeWrite
)

// Archive is a handle to an RPF7 container, either mounted read-only from
// an existing file or under construction for a new one.
type Archive struct {
	file   *os.File
	mode   Mode
	closed bool
	path   string

	header rpf7fmt.Header
	names  map[uint32]string // decoded name heap, read mode only

	tree      *Tree
	pathIndex map[string]int // archive path -> tree node index

	// ForcedNameShift, when >= 0, tells the writer which nameShift to
	// start its retry loop from instead of 0. Advanced callers only; -1
	// (the default) lets the writer pick.
	ForcedNameShift int

	// Diagnostics, if set, receives notable events from the read and
	// write pipelines. It is nil by default.
	Diagnostics DiagFunc

	pathHasher PathHasher
	seenHashes map[uint64]string
}

func (a *Archive) emitDiag(ev DiagEvent) {
	if a.Diagnostics != nil {
		a.Diagnostics(ev)
	}
}

// LoadCompanionBundle opens a chunked, Oodle-compressed side-channel file
// alongside this archive, for streamed assets too large for RPF7's
// 24-bit entry-size field to address directly. The archive itself has no
// on-disk reference to companion bundles; callers that know a sidecar
// exists (by a naming convention or an out-of-band manifest) open it
// through this method rather than reaching into internal/oodlebundle
// directly.
func (a *Archive) LoadCompanionBundle(path string) (*oodlebundle.Bundle, error) {
	return oodlebundle.Open(path)
}

// Tree exposes the archive's entry tree, valid in both modes: after
// OpenArchive it reflects the archive as read from disk; while building
// with CreateArchive/AddEntry it reflects entries added so far, and after
// Close it carries the final assigned records.
func (a *Archive) Tree() *Tree { return a.tree }

// Close releases the archive's file handle. In write mode it first
// flushes the archive to disk; see CreateArchive. Close is idempotent: a
// second call is a no-op that returns nil.
func (a *Archive) Close() error {
	if a.closed {
		return nil
	}

	var err error
	if a.mode == ModeWrite {
		err = a.writeAll()
	}

	if a.file != nil {
		if cerr := a.file.Close(); err == nil {
			err = cerr
		}
	}
	a.closed = true
	return err
}
