package archive

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/user/rpfgo/internal/rawdeflate"
	"github.com/user/rpfgo/internal/rpf7fmt"
)

// noCompressExtensions lists file extensions that are stored verbatim
// instead of DEFLATE-compressed, matching containers this format ships
// alongside (already-compressed video, audio, or nested archives gain
// nothing from a second compression pass).
var noCompressExtensions = map[string]bool{
	".rpf": true,
	".bik": true,
	".awc": true,
}

// CreateArchive begins building a new RPF7 archive at path. Entries are
// staged with AddEntry; the archive is not written to disk until Close.
func CreateArchive(path string) (*Archive, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("archive: create %s: %w", path, err)
	}
	return &Archive{
		file:            f,
		mode:            ModeWrite,
		path:            path,
		tree:            NewTree(),
		pathIndex:       make(map[string]int),
		ForcedNameShift: -1,
		pathHasher:      PathHasher{},
		seenHashes:      make(map[uint64]string),
	}, nil
}

// AddEntry stages hostPath to be written at archivePath when the archive
// is closed. archivePath is normalized with NormalizeEntryPath, so both
// "/data/config.xml" and "data\\config.xml" are accepted. AddEntry is a
// no-op when archivePath's leaf has no dot extension.
func (a *Archive) AddEntry(archivePath, hostPath string) error {
	if a.closed {
		return ErrClosed
	}
	if a.mode != ModeWrite {
		return ErrWrongMode
	}

	archivePath = NormalizeEntryPath(archivePath)
	if leaf := archivePath[strings.LastIndexByte(archivePath, '/')+1:]; !isFileName(leaf) {
		return nil
	}

	h := a.pathHasher.Hash(archivePath)
	if existing, ok := a.seenHashes[h]; ok && existing != archivePath {
		a.emitDiag(DiagEvent{Kind: DiagPathHashCollision, Message: fmt.Sprintf("path hash collision between %q and %q", existing, archivePath)})
	} else {
		a.seenHashes[h] = archivePath
	}

	idx := a.tree.InsertFile(archivePath, hostPath)
	a.pathIndex[archivePath] = idx
	return nil
}

// buildResult is the flat, BFS-ordered layout produced from a tree ready
// to be written to disk.
type buildResult struct {
	entries []rpf7fmt.Entry
	order   []int      // order[i] is the tree node index placed at entries[i]
	slot    map[int]int // tree node index -> entries[] index
}

// buildEntryList flattens t into entries laid out breadth-first, so that
// every directory's children occupy one contiguous block starting at its
// own ChildrenIndex. This differs from a naive per-sibling recursive
// walk, which can leave a directory's own ChildrenIndex stale once
// earlier siblings' descendants have been appended ahead of it; BFS
// layout assigns each level's block before descending into it, so no
// directory's children range is ever invalidated by later insertions.
func buildEntryList(t *Tree) (*buildResult, error) {
	root := t.Root()
	entries := make([]rpf7fmt.Entry, 1, t.TotalCount())
	order := []int{root}
	slot := map[int]int{root: 0}

	queue := []int{root}
	for len(queue) > 0 {
		dirNode := queue[0]
		queue = queue[1:]

		children := t.sortedChildren(dirNode)
		startIdx := len(entries)

		for _, childNode := range children {
			slot[childNode] = len(entries)
			order = append(order, childNode)

			if t.isDirNode(childNode) {
				entries = append(entries, rpf7fmt.Entry{EntryOffset: rpf7fmt.DirSentinel})
				queue = append(queue, childNode)
				continue
			}

			e, err := buildFileEntry(t, childNode)
			if err != nil {
				return nil, err
			}
			entries = append(entries, e)
		}

		parentSlot := slot[dirNode]
		entries[parentSlot].EntryOffset = rpf7fmt.DirSentinel
		entries[parentSlot].ChildrenIndex = uint32(startIdx)
		entries[parentSlot].ChildrenCount = uint32(len(children))
	}

	return &buildResult{entries: entries, order: order, slot: slot}, nil
}

// buildFileEntry inspects a leaf node's host file to classify it as a
// resource or a plain file. It leaves EntryOffset and EntrySize at zero;
// those are only known once writeEntryData has placed the payload.
func buildFileEntry(t *Tree, nodeIdx int) (rpf7fmt.Entry, error) {
	hostPath := t.HostPath(nodeIdx)

	info, err := os.Stat(hostPath)
	if err != nil {
		return rpf7fmt.Entry{}, fmt.Errorf("archive: stat %s: %w", hostPath, err)
	}
	if info.Size() > rpf7fmt.MaxEntrySize {
		return rpf7fmt.Entry{}, fmt.Errorf("archive: %s exceeds the maximum entry size", hostPath)
	}

	f, err := os.Open(hostPath)
	if err != nil {
		return rpf7fmt.Entry{}, fmt.Errorf("archive: open %s: %w", hostPath, err)
	}
	defer f.Close()

	header := make([]byte, 16)
	n, _ := io.ReadFull(f, header)

	if n >= 16 && leUint32(header[0:4]) == rpf7fmt.ResourceMagic {
		return rpf7fmt.Entry{
			IsResource:    true,
			VirtualFlags:  leUint32(header[8:12]),
			PhysicalFlags: leUint32(header[12:16]),
		}, nil
	}

	return rpf7fmt.Entry{RealSize: uint32(info.Size())}, nil
}

// collectNames returns the distinct names used across order, in
// first-seen order (root's empty name first), and a parallel slice
// mapping each order/entries position to its name.
func collectNames(order []int, t *Tree) (names []string, entryNames []string) {
	entryNames = make([]string, len(order))
	seen := make(map[string]bool)
	for i, nodeIdx := range order {
		name := t.Name(nodeIdx)
		entryNames[i] = name
		if !seen[name] {
			seen[name] = true
			names = append(names, name)
		}
	}
	return names, entryNames
}

// writeAll runs the full write pipeline: assign name-heap offsets
// (retrying at a larger shift on overflow), write the header, entry
// table, and name heap, then write every file's payload and re-write the
// entry table once more so the payload's offsets and sizes are
// persisted.
func (a *Archive) writeAll() error {
	build, err := buildEntryList(a.tree)
	if err != nil {
		return err
	}
	entries := build.entries

	names, entryNames := collectNames(build.order, a.tree)

	startShift := uint8(0)
	if a.ForcedNameShift >= 0 {
		startShift = uint8(a.ForcedNameShift)
	}

	var enc *rpf7fmt.NameHeapEncoding
	var overflowErr error
	for shift := startShift; shift <= rpf7fmt.MaxNameShift; shift++ {
		e, err := rpf7fmt.EncodeNameHeap(names, shift)
		if err == nil {
			enc = e
			break
		}
		if !errors.Is(err, rpf7fmt.ErrNameHeapOverflow) {
			return err
		}
		overflowErr = err
		if shift < rpf7fmt.MaxNameShift {
			a.emitDiag(DiagEvent{Kind: DiagNameShiftRetry, Message: fmt.Sprintf("name heap overflow at shift %d, retrying at shift %d", shift, shift+1)})
		}
	}
	if enc == nil {
		return overflowErr
	}

	for i, name := range entryNames {
		entries[i].NameOffset = enc.Offsets[name]
	}

	a.header = rpf7fmt.Header{
		Ident:      rpf7fmt.Magic,
		EntryCount: uint32(len(entries)),
		NamesSize:  rpf7fmt.PackNameSize(uint32(len(enc.Heap)), enc.Shift),
		Encryption: rpf7fmt.EncryptionOpen,
	}

	if err := a.writeHeader(); err != nil {
		return err
	}
	if err := a.writeEntries(entries); err != nil {
		return err
	}
	if err := a.writeNameHeap(enc.Heap); err != nil {
		return err
	}

	metaEnd := uint32(rpf7fmt.HeaderSize) + uint32(len(entries))*rpf7fmt.EntrySize + uint32(len(enc.Heap))
	dataStart := rpf7fmt.DataBlockSize(metaEnd) / rpf7fmt.DataBlockAlign

	if err := a.writeEntryData(entries, build.slot, dataStart); err != nil {
		return err
	}

	if err := a.writeEntries(entries); err != nil {
		return err
	}

	for nodeIdx, s := range build.slot {
		a.tree.SetRecord(nodeIdx, entries[s])
	}

	return nil
}

// writeEntryData walks the tree depth-first in lexicographic sibling
// order -- the same order buildEntryList used to assign the name heap --
// writing each file's (possibly compressed) payload at the next
// 512-byte-aligned block, and records the resulting offset and size back
// into entries.
func (a *Archive) writeEntryData(entries []rpf7fmt.Entry, slot map[int]int, dataStart uint32) error {
	offset := dataStart

	var walk func(dirNode int) error
	walk = func(dirNode int) error {
		for _, child := range a.tree.sortedChildren(dirNode) {
			idx := slot[child]
			if entries[idx].IsDirectory() {
				if err := walk(child); err != nil {
					return err
				}
				continue
			}

			hostPath := a.tree.HostPath(child)
			raw, err := os.ReadFile(hostPath)
			if err != nil {
				return fmt.Errorf("archive: read %s: %w", hostPath, err)
			}

			stored := raw
			compressed := !entries[idx].IsResource && shouldCompress(hostPath)
			if compressed {
				deflated, err := rawdeflate.Compress(raw)
				if err != nil {
					return fmt.Errorf("%w: %s: %v", ErrCompression, hostPath, err)
				}
				stored = deflated
			} else if !entries[idx].IsResource {
				a.emitDiag(DiagEvent{Kind: DiagCompressionFallback, Message: fmt.Sprintf("%s stored raw (excluded extension)", hostPath)})
			}
			if len(stored) > rpf7fmt.MaxEntrySize {
				return fmt.Errorf("archive: %s exceeds the maximum entry size once stored", hostPath)
			}

			if len(stored) > 0 {
				if _, err := a.file.WriteAt(stored, int64(offset)*rpf7fmt.DataBlockAlign); err != nil {
					return fmt.Errorf("archive: write payload for %s: %w", hostPath, err)
				}
			}

			entries[idx].EntryOffset = offset
			if entries[idx].IsResource || compressed {
				entries[idx].EntrySize = uint32(len(stored))
			} else {
				// Not compressed: EntrySize == 0 signals entrySize == realSize.
				entries[idx].EntrySize = 0
			}
			offset += rpf7fmt.DataBlockSize(uint32(len(stored))) / rpf7fmt.DataBlockAlign
		}
		return nil
	}

	return walk(a.tree.Root())
}

func shouldCompress(hostPath string) bool {
	ext := strings.ToLower(filepath.Ext(hostPath))
	return !noCompressExtensions[ext]
}

func (a *Archive) writeHeader() error {
	buf := make([]byte, rpf7fmt.HeaderSize)
	putUint32LE(buf[0:4], a.header.Ident)
	putUint32LE(buf[4:8], a.header.EntryCount)
	putUint32LE(buf[8:12], a.header.NamesSize)
	putUint32LE(buf[12:16], a.header.Encryption)
	if _, err := a.file.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("archive: write header: %w", err)
	}
	return nil
}

func (a *Archive) writeEntries(entries []rpf7fmt.Entry) error {
	for i, e := range entries {
		buf := rpf7fmt.EncodeEntry(e)
		offset := int64(rpf7fmt.HeaderSize) + int64(i)*rpf7fmt.EntrySize
		if _, err := a.file.WriteAt(buf[:], offset); err != nil {
			return fmt.Errorf("archive: write entry %d: %w", i, err)
		}
	}
	return nil
}

func (a *Archive) writeNameHeap(heap []byte) error {
	if len(heap) == 0 {
		return nil
	}
	offset := int64(rpf7fmt.HeaderSize) + int64(a.header.EntryCount)*rpf7fmt.EntrySize
	if _, err := a.file.WriteAt(heap, offset); err != nil {
		return fmt.Errorf("archive: write name heap: %w", err)
	}
	return nil
}

func putUint32LE(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
