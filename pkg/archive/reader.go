package archive

import (
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/user/rpfgo/internal/rawdeflate"
	"github.com/user/rpfgo/internal/rpf7fmt"
)

// OpenArchive mounts an existing RPF7 archive for read-only access. The
// entire header, entry table, and name heap are read up front and the
// full entry tree is built; entry payloads are read lazily on demand.
func OpenArchive(path string) (*Archive, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("archive: open %s: %w", path, err)
	}

	a := &Archive{
		file:            f,
		mode:            ModeRead,
		path:            path,
		pathIndex:       make(map[string]int),
		ForcedNameShift: -1,
		pathHasher:      PathHasher{},
		seenHashes:      make(map[uint64]string),
	}

	if err := a.readAll(); err != nil {
		f.Close()
		return nil, err
	}
	return a, nil
}

func (a *Archive) readAll() error {
	headerBuf := make([]byte, rpf7fmt.HeaderSize)
	if _, err := io.ReadFull(a.file, headerBuf); err != nil {
		return fmt.Errorf("archive: read header: %w", err)
	}

	a.header = rpf7fmt.Header{
		Ident:      leUint32(headerBuf[0:4]),
		EntryCount: leUint32(headerBuf[4:8]),
		NamesSize:  leUint32(headerBuf[8:12]),
		Encryption: leUint32(headerBuf[12:16]),
	}

	if a.header.Ident != rpf7fmt.Magic {
		return fmt.Errorf("%w: got 0x%08X", ErrBadMagic, a.header.Ident)
	}
	if a.header.Encryption != rpf7fmt.EncryptionOpen {
		return fmt.Errorf("%w: encryption tag 0x%08X", ErrUnsupportedEncryption, a.header.Encryption)
	}

	entries := make([]rpf7fmt.Entry, a.header.EntryCount)
	entryBuf := make([]byte, rpf7fmt.EntrySize)
	for i := range entries {
		if _, err := io.ReadFull(a.file, entryBuf); err != nil {
			return fmt.Errorf("archive: read entry %d: %w", i, err)
		}
		e, err := rpf7fmt.DecodeEntry(entryBuf)
		if err != nil {
			return fmt.Errorf("archive: decode entry %d: %w", i, err)
		}
		entries[i] = e
	}

	nameHeapOffset := int64(rpf7fmt.HeaderSize) + int64(a.header.EntryCount)*rpf7fmt.EntrySize
	nameHeap := make([]byte, a.header.NameHeapLength())
	if len(nameHeap) > 0 {
		if _, err := a.file.ReadAt(nameHeap, nameHeapOffset); err != nil {
			return fmt.Errorf("archive: read name heap: %w", err)
		}
	}
	a.names = rpf7fmt.DecodeNameHeap(nameHeap, a.header.NameShift())

	if len(entries) == 0 || !entries[0].IsDirectory() {
		return fmt.Errorf("%w: root entry is not a directory", ErrMalformedArchive)
	}

	a.tree = NewTree()
	a.tree.SetRecord(a.tree.Root(), entries[0])
	if err := a.buildTree(entries, a.tree.Root(), "", entries[0]); err != nil {
		return err
	}

	return nil
}

// buildTree recursively populates dirIdx's children from entries'
// [ChildrenIndex, ChildrenIndex+ChildrenCount) range, then recurses into
// any child directories. dirPath is the already-built archive path of
// dirIdx (without a trailing slash; "" for the root). The path index is
// populated by the dot-in-leaf-name rule alone, independent of whether
// the entry is a directory or a file -- a directory named like "v1.0"
// is indexed exactly like a dotted file would be, matching how the
// original engine's entry map is built unconditionally on the leaf
// having an extension. GetEntryData still rejects a directory looked up
// this way with ErrNotAFile.
func (a *Archive) buildTree(entries []rpf7fmt.Entry, dirIdx int, dirPath string, dirEntry rpf7fmt.Entry) error {
	start := dirEntry.ChildrenIndex
	count := dirEntry.ChildrenCount

	for i := uint32(0); i < count; i++ {
		childArrIdx := start + i
		if childArrIdx >= uint32(len(entries)) {
			a.emitDiag(DiagEvent{Kind: DiagMalformedRecordSkipped, Message: fmt.Sprintf("child index %d out of range (%d entries)", childArrIdx, len(entries))})
			continue
		}
		child := entries[childArrIdx]

		name, ok := a.names[child.NameOffset]
		if !ok {
			a.emitDiag(DiagEvent{Kind: DiagMalformedRecordSkipped, Message: fmt.Sprintf("unresolved name offset %d for entry %d", child.NameOffset, childArrIdx)})
			continue
		}

		childIdx := a.tree.AddChild(dirIdx, name)
		a.tree.SetRecord(childIdx, child)

		childPath := dirPath + "/" + name
		if isFileName(name) {
			a.pathIndex[childPath] = childIdx
		}
		if child.IsDirectory() {
			if err := a.buildTree(entries, childIdx, childPath, child); err != nil {
				return err
			}
		}
	}
	return nil
}

// GetEntryList returns every path in the archive's path index (each
// entry whose leaf name contains a dot, directories included), sorted
// for stable output.
func (a *Archive) GetEntryList() []string {
	paths := make([]string, 0, len(a.pathIndex))
	for p := range a.pathIndex {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// DoesEntryExists reports whether path is in the archive's path index,
// which holds every entry whose leaf name contains a dot, including a
// dotted directory.
func (a *Archive) DoesEntryExists(path string) bool {
	_, ok := a.pathIndex[path]
	return ok
}

// GetEntryData returns the fully decoded content of the file at path.
func (a *Archive) GetEntryData(path string) ([]byte, error) {
	if a.closed {
		return nil, ErrClosed
	}
	if a.mode != ModeRead {
		return nil, ErrWrongMode
	}
	idx, ok := a.pathIndex[path]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, path)
	}
	e := a.tree.Record(idx)
	if e.IsDirectory() {
		return nil, fmt.Errorf("%w: %s", ErrNotAFile, path)
	}

	if _, err := a.file.Seek(int64(e.EntryOffset)*rpf7fmt.DataBlockAlign, io.SeekStart); err != nil {
		return nil, fmt.Errorf("archive: seek to entry %s: %w", path, err)
	}
	raw := make([]byte, e.GetEntrySize())
	if len(raw) > 0 {
		if _, err := io.ReadFull(a.file, raw); err != nil {
			return nil, fmt.Errorf("archive: read entry %s: %w", path, err)
		}
	}

	if e.IsResource || !e.IsCompressed() {
		return raw, nil
	}

	decoded, err := rawdeflate.Decompress(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCompression, path, err)
	}
	return decoded, nil
}

// GetEntryDataSafe is GetEntryData without an error return: it yields an
// empty slice on any failure, matching this engine's boundary-level
// convention of degrading to empty rather than propagating an error to
// callers that only check content.
func (a *Archive) GetEntryDataSafe(path string) []byte {
	data, err := a.GetEntryData(path)
	if err != nil {
		return nil
	}
	return data
}

// SaveEntryToPath extracts the file at archivePath to hostPath, creating
// any missing parent directories.
func (a *Archive) SaveEntryToPath(archivePath, hostPath string) error {
	data, err := a.GetEntryData(archivePath)
	if err != nil {
		return err
	}
	if dir := parentDir(hostPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("archive: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(hostPath, data, 0o644); err != nil {
		return fmt.Errorf("archive: write %s: %w", hostPath, err)
	}
	return nil
}

// SaveEntryToPathSafe is SaveEntryToPath without an error return: it
// reports success as a bool, matching the same boundary convention as
// GetEntryDataSafe.
func (a *Archive) SaveEntryToPathSafe(archivePath, hostPath string) bool {
	return a.SaveEntryToPath(archivePath, hostPath) == nil
}

func parentDir(path string) string {
	i := len(path) - 1
	for i >= 0 && path[i] != '/' && path[i] != '\\' {
		i--
	}
	if i < 0 {
		return ""
	}
	return path[:i]
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}
