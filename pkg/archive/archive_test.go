package archive

import (
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/user/rpfgo/internal/rawdeflate"
	"github.com/user/rpfgo/internal/rpf7fmt"
)

func writeHostFile(t *testing.T, dir, name string, content []byte) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return path
}

func TestCreateThenOpen_RoundTrip(t *testing.T) {
	hostDir := t.TempDir()
	fileA := writeHostFile(t, hostDir, "readme.txt", []byte("top level readme"))
	fileB := writeHostFile(t, hostDir, "data/config.xml", []byte("<config/>"))
	fileC := writeHostFile(t, hostDir, "data/textures/rock.dds", bytes200("rock texture bytes "))

	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	for archivePathName, hostPath := range map[string]string{
		"/readme.txt":              fileA,
		"/data/config.xml":         fileB,
		"/data/textures/rock.dds":  fileC,
	} {
		if err := w.AddEntry(archivePathName, hostPath); err != nil {
			t.Fatalf("AddEntry(%s): %v", archivePathName, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()

	list := r.GetEntryList()
	wantPaths := []string{"/data/config.xml", "/data/textures/rock.dds", "/readme.txt"}
	if len(list) != len(wantPaths) {
		t.Fatalf("GetEntryList() = %v, want %v", list, wantPaths)
	}
	for i, p := range wantPaths {
		if list[i] != p {
			t.Fatalf("GetEntryList()[%d] = %s, want %s", i, list[i], p)
		}
	}

	got, err := r.GetEntryData("/readme.txt")
	if err != nil {
		t.Fatalf("GetEntryData: %v", err)
	}
	if string(got) != "top level readme" {
		t.Fatalf("GetEntryData(/readme.txt) = %q", got)
	}

	got, err = r.GetEntryData("/data/textures/rock.dds")
	if err != nil {
		t.Fatalf("GetEntryData: %v", err)
	}
	if string(got) != string(bytes200("rock texture bytes ")) {
		t.Fatalf("content mismatch for rock.dds")
	}
}

func bytes200(pattern string) []byte {
	out := make([]byte, 0, 400)
	for len(out) < 400 {
		out = append(out, pattern...)
	}
	return out
}

// TestAddEntry_ShortFileAlwaysCompressed pins down the S2 scenario: a
// 5-byte input is still routed through compression even though raw
// DEFLATE will make it larger, and the resulting stored size differs
// from both zero and the original length.
func TestAddEntry_ShortFileAlwaysCompressed(t *testing.T) {
	hostDir := t.TempDir()
	hostFile := writeHostFile(t, hostDir, "hello.txt", []byte("hello"))

	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if err := w.AddEntry("/hello.txt", hostFile); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()

	idx, ok := r.pathIndex["/hello.txt"]
	if !ok {
		t.Fatalf("entry not found")
	}
	e := r.Tree().Record(idx)
	if e.EntrySize == 0 || e.EntrySize == 5 {
		t.Fatalf("EntrySize = %d, want neither 0 nor 5", e.EntrySize)
	}

	data, err := r.GetEntryData("/hello.txt")
	if err != nil {
		t.Fatalf("GetEntryData: %v", err)
	}
	if string(data) != "hello" {
		t.Fatalf("decoded content = %q, want hello", data)
	}
}

// TestAddEntry_ExcludedExtensionStoredRaw covers the no-compress
// extension set.
func TestAddEntry_ExcludedExtensionStoredRaw(t *testing.T) {
	hostDir := t.TempDir()
	content := bytes200("already compressed payload ")
	hostFile := writeHostFile(t, hostDir, "movie.bik", content)

	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}

	var fallbacks []DiagEvent
	w.Diagnostics = func(ev DiagEvent) {
		if ev.Kind == DiagCompressionFallback {
			fallbacks = append(fallbacks, ev)
		}
	}

	if err := w.AddEntry("/movie.bik", hostFile); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if len(fallbacks) != 1 {
		t.Fatalf("expected exactly one DiagCompressionFallback event, got %d", len(fallbacks))
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()

	idx := r.pathIndex["/movie.bik"]
	e := r.Tree().Record(idx)
	if e.EntrySize != 0 {
		t.Fatalf("EntrySize = %d, want 0 (not compressed, entrySize == realSize)", e.EntrySize)
	}
	if e.RealSize != uint32(len(content)) {
		t.Fatalf("RealSize = %d, want %d", e.RealSize, len(content))
	}

	data, err := r.GetEntryData("/movie.bik")
	if err != nil {
		t.Fatalf("GetEntryData: %v", err)
	}
	if string(data) != string(content) {
		t.Fatalf("content mismatch reading a stored-raw entry")
	}
}

// TestDirectoryContiguity checks Testable Property 4: every directory's
// children occupy one contiguous run of the flat entry array, in sibling
// order, across multiple sibling subdirectories at the same level -- the
// case a naive per-sibling-index recursive build gets wrong.
func TestDirectoryContiguity(t *testing.T) {
	hostDir := t.TempDir()
	paths := map[string]string{
		"/a/one.txt":   writeHostFile(t, hostDir, "a/one.txt", []byte("1")),
		"/a/two.txt":   writeHostFile(t, hostDir, "a/two.txt", []byte("2")),
		"/b/three.txt": writeHostFile(t, hostDir, "b/three.txt", []byte("3")),
		"/b/four.txt":  writeHostFile(t, hostDir, "b/four.txt", []byte("4")),
		"/c/five.txt":  writeHostFile(t, hostDir, "c/five.txt", []byte("5")),
	}

	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	for archivePathName, hostPath := range paths {
		if err := w.AddEntry(archivePathName, hostPath); err != nil {
			t.Fatalf("AddEntry: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	entries, err := readRawEntries(archivePath)
	if err != nil {
		t.Fatalf("readRawEntries: %v", err)
	}

	claimed := make([]int, len(entries))
	for i, e := range entries {
		if !e.IsDirectory() {
			continue
		}
		for j := e.ChildrenIndex; j < e.ChildrenIndex+e.ChildrenCount; j++ {
			if int(j) >= len(entries) {
				t.Fatalf("directory %d references out-of-range child %d", i, j)
			}
			claimed[j]++
		}
	}
	for j := 1; j < len(entries); j++ {
		if claimed[j] != 1 {
			t.Fatalf("entry %d is claimed by %d directories, want exactly 1", j, claimed[j])
		}
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()
	tr := r.Tree()
	var walk func(idx int)
	walk = func(idx int) {
		kids := tr.Children(idx)
		for k := 1; k < len(kids); k++ {
			if tr.Name(kids[k-1]) >= tr.Name(kids[k]) {
				t.Fatalf("children of %q out of sibling order: %q before %q", tr.Name(idx), tr.Name(kids[k-1]), tr.Name(kids[k]))
			}
		}
		for _, c := range kids {
			walk(c)
		}
	}
	walk(tr.Root())
}

// readRawEntries re-reads an archive's entry table directly, bypassing
// the tree builder, for structural assertions.
func readRawEntries(path string) ([]rpf7fmt.Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header := make([]byte, rpf7fmt.HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		return nil, err
	}
	entryCount := leUint32(header[4:8])

	entries := make([]rpf7fmt.Entry, entryCount)
	buf := make([]byte, rpf7fmt.EntrySize)
	for i := range entries {
		if _, err := io.ReadFull(f, buf); err != nil {
			return nil, err
		}
		e, err := rpf7fmt.DecodeEntry(buf)
		if err != nil {
			return nil, err
		}
		entries[i] = e
	}
	return entries, nil
}

func TestOpenArchive_RejectsBadMagic(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.rpf")
	if err := os.WriteFile(path, make([]byte, 32), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := OpenArchive(path)
	if !errors.Is(err, ErrBadMagic) {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}
}

func TestOpenArchive_RejectsEncryptedArchive(t *testing.T) {
	path := filepath.Join(t.TempDir(), "enc.rpf")
	buf := make([]byte, rpf7fmt.HeaderSize)
	putUint32LE(buf[0:4], rpf7fmt.Magic)
	putUint32LE(buf[12:16], rpf7fmt.EncryptionAES)
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := OpenArchive(path)
	if !errors.Is(err, ErrUnsupportedEncryption) {
		t.Fatalf("expected ErrUnsupportedEncryption, got %v", err)
	}
}

func TestOpenArchive_MissingFile(t *testing.T) {
	_, err := OpenArchive(filepath.Join(t.TempDir(), "does-not-exist.rpf"))
	if !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

// TestAddEntry_DotlessLeafIsNoOp pins down that a dotless archive path is
// silently discarded rather than staged: AddEntry does not add it to the
// tree at all, so it never reaches the written archive.
func TestAddEntry_DotlessLeafIsNoOp(t *testing.T) {
	hostDir := t.TempDir()
	hostFile := writeHostFile(t, hostDir, "README", []byte("no extension here"))

	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if err := w.AddEntry("/data/README", hostFile); err != nil {
		t.Fatalf("AddEntry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()

	if r.DoesEntryExists("/data/README") {
		t.Fatalf("a dotless leaf name should never be staged")
	}

	entries, err := readRawEntries(archivePath)
	if err != nil {
		t.Fatalf("readRawEntries: %v", err)
	}
	for _, e := range entries {
		if !e.IsDirectory() {
			t.Fatalf("expected no file entries in the archive, found one")
		}
	}
}

func TestDecompressor_LenientOnTruncatedEntry(t *testing.T) {
	original := bytes200("payload that will be truncated on disk ")
	compressed, err := rawdeflate.Compress(original)
	if err != nil {
		t.Fatalf("Compress: %v", err)
	}
	got, err := rawdeflate.Decompress(compressed[:len(compressed)/2])
	if err != nil {
		t.Fatalf("Decompress must not error on truncated input: %v", err)
	}
	if len(got) == 0 || len(got) >= len(original) {
		t.Fatalf("expected a partial result shorter than the original, got %d bytes", len(got))
	}
}

// TestEmptyArchive_RoundTrip pins down the empty-archive shape: exactly
// one root directory entry with no children, and a name heap padded to
// the 16-byte name-block alignment even though it holds nothing but the
// root's empty name.
func TestEmptyArchive_RoundTrip(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "empty.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	f, err := os.Open(archivePath)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	header := make([]byte, rpf7fmt.HeaderSize)
	if _, err := io.ReadFull(f, header); err != nil {
		t.Fatalf("read header: %v", err)
	}
	h := rpf7fmt.Header{
		Ident:      leUint32(header[0:4]),
		EntryCount: leUint32(header[4:8]),
		NamesSize:  leUint32(header[8:12]),
		Encryption: leUint32(header[12:16]),
	}

	if h.Ident != rpf7fmt.Magic {
		t.Fatalf("Ident = 0x%08X, want 0x%08X", h.Ident, rpf7fmt.Magic)
	}
	if h.EntryCount != 1 {
		t.Fatalf("EntryCount = %d, want 1 (root only)", h.EntryCount)
	}
	if h.NameHeapLength() != 16 {
		t.Fatalf("NameHeapLength() = %d, want 16 (padded, empty)", h.NameHeapLength())
	}

	entries, err := readRawEntries(archivePath)
	if err != nil {
		t.Fatalf("readRawEntries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("len(entries) = %d, want 1", len(entries))
	}
	if !entries[0].IsDirectory() {
		t.Fatalf("root entry is not classified as a directory")
	}
	if entries[0].ChildrenCount != 0 {
		t.Fatalf("root ChildrenCount = %d, want 0", entries[0].ChildrenCount)
	}

	r, err := OpenArchive(archivePath)
	if err != nil {
		t.Fatalf("OpenArchive: %v", err)
	}
	defer r.Close()

	if got := r.GetEntryList(); len(got) != 0 {
		t.Fatalf("GetEntryList() = %v, want empty", got)
	}
}

func TestClose_IsIdempotent(t *testing.T) {
	archivePath := filepath.Join(t.TempDir(), "out.rpf")
	w, err := CreateArchive(archivePath)
	if err != nil {
		t.Fatalf("CreateArchive: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("second Close should be a no-op, got %v", err)
	}
}
