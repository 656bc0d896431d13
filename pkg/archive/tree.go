package archive

import (
	"fmt"
	"io"
	"strings"

	"github.com/user/rpfgo/internal/rpf7fmt"
)

// noIndex marks the absence of a parent, child, or sibling link.
const noIndex = -1

// node is one entry in a Tree's arena. Children and siblings are linked by
// stable slice indices rather than pointers, so the arena can grow by
// append without invalidating any index a caller is holding onto -- the
// hazard a pointer-based tree has whenever its backing slice reallocates.
type node struct {
	name       string
	parent     int
	firstChild int
	nextSibling int
	lastChild  int // -1 until the first child is appended; kept for O(1) AddChild

	record rpf7fmt.Entry

	// hostPath is set only while building a tree for CreateArchive; it is
	// the filesystem path a leaf file's bytes should be read from.
	hostPath string

	// isDir marks a write-mode node as a directory, set at creation time
	// since a write-mode tree has no decoded record to classify by until
	// after buildEntryList runs.
	isDir bool
}

// Tree is an n-ary tree of archive entries, addressed by node index. Index
// 0 is always the root.
type Tree struct {
	nodes []node
}

// NewTree returns a Tree containing only the root directory node.
func NewTree() *Tree {
	t := &Tree{}
	t.nodes = append(t.nodes, node{parent: noIndex, firstChild: noIndex, lastChild: noIndex, nextSibling: noIndex, isDir: true})
	return t
}

// Root returns the root node's index.
func (t *Tree) Root() int { return 0 }

// TotalCount returns the number of nodes in the tree, root included. Since
// nodes are only ever appended, this is exactly root(1) plus every
// descendant -- the count a caller sizing a flat entry array wants.
func (t *Tree) TotalCount() int { return len(t.nodes) }

// Name returns the name of the node at idx ("" for the root).
func (t *Tree) Name(idx int) string { return t.nodes[idx].name }

// Parent returns the parent index of idx, or noIndex for the root.
func (t *Tree) Parent(idx int) int { return t.nodes[idx].parent }

// Children returns the indices of idx's children in sibling order.
func (t *Tree) Children(idx int) []int {
	var out []int
	for c := t.nodes[idx].firstChild; c != noIndex; c = t.nodes[c].nextSibling {
		out = append(out, c)
	}
	return out
}

// IsDirectory reports whether idx currently carries a directory
// classification. Before a read-mode tree is built, or before a
// write-mode tree's records are assigned, this reflects whichever
// zero-valued record rpf7fmt.Entry{} was last written into it.
func (t *Tree) IsDirectory(idx int) bool { return t.nodes[idx].record.IsDirectory() }

// Record returns the decoded entry record for idx.
func (t *Tree) Record(idx int) rpf7fmt.Entry { return t.nodes[idx].record }

// SetRecord attaches a decoded entry record to idx.
func (t *Tree) SetRecord(idx int, e rpf7fmt.Entry) { t.nodes[idx].record = e }

// HostPath returns the filesystem path backing a write-mode leaf node.
func (t *Tree) HostPath(idx int) string { return t.nodes[idx].hostPath }

// FindChild returns the index of idx's child named name, or (noIndex,
// false) if there is none.
func (t *Tree) FindChild(idx int, name string) (int, bool) {
	for c := t.nodes[idx].firstChild; c != noIndex; c = t.nodes[c].nextSibling {
		if t.nodes[c].name == name {
			return c, true
		}
	}
	return noIndex, false
}

// AddChild appends a new child named name under parent and returns its
// index.
func (t *Tree) AddChild(parent int, name string) int {
	idx := len(t.nodes)
	t.nodes = append(t.nodes, node{name: name, parent: parent, firstChild: noIndex, lastChild: noIndex, nextSibling: noIndex})

	p := &t.nodes[parent]
	if p.lastChild == noIndex {
		p.firstChild = idx
	} else {
		t.nodes[p.lastChild].nextSibling = idx
	}
	p.lastChild = idx
	return idx
}

// EnsureDir walks path's components from root, creating any missing
// directory nodes, and returns the index of the final directory.
func (t *Tree) EnsureDir(path string) int {
	cur := t.Root()
	for _, part := range splitPath(path) {
		if part == "" {
			continue
		}
		if child, ok := t.FindChild(cur, part); ok {
			cur = child
		} else {
			cur = t.AddChild(cur, part)
			t.nodes[cur].isDir = true
		}
	}
	return cur
}

// isDirNode reports whether idx was created as a directory (via EnsureDir
// or as the root), as opposed to a leaf inserted by InsertFile.
func (t *Tree) isDirNode(idx int) bool { return t.nodes[idx].isDir }

// InsertFile ensures the directory chain for path exists and appends a
// leaf node for its final component, associated with hostPath. It returns
// the leaf's index.
func (t *Tree) InsertFile(path, hostPath string) int {
	dir := splitPath(path)
	if len(dir) == 0 {
		dir = []string{""}
	}
	leaf := dir[len(dir)-1]
	parentPath := strings.Join(dir[:len(dir)-1], "/")

	parent := t.EnsureDir(parentPath)
	if existing, ok := t.FindChild(parent, leaf); ok {
		t.nodes[existing].hostPath = hostPath
		return existing
	}
	idx := t.AddChild(parent, leaf)
	t.nodes[idx].hostPath = hostPath
	return idx
}

// sortedChildren returns idx's children sorted lexicographically by name,
// the stable order the writer must use so W1's name assignment and W2's
// flat-array layout agree.
func (t *Tree) sortedChildren(idx int) []int {
	children := t.Children(idx)
	sortInts(children, func(a, b int) bool { return t.nodes[a].name < t.nodes[b].name })
	return children
}

// sortInts is a tiny insertion sort so this package does not need to pull
// in sort.Slice's reflection-based comparator for a handful of children.
func sortInts(s []int, less func(a, b int) bool) {
	for i := 1; i < len(s); i++ {
		for j := i; j > 0 && less(s[j], s[j-1]); j-- {
			s[j], s[j-1] = s[j-1], s[j]
		}
	}
}

// splitPath splits an archive path into its components, discarding any
// leading slash.
func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// Dump writes an indented listing of the tree to w, in the style of the
// reference engine's debug tree printer.
func (t *Tree) Dump(w io.Writer) {
	var walk func(idx, depth int)
	walk = func(idx, depth int) {
		if idx == t.Root() {
			fmt.Fprintln(w, "/")
		} else {
			kind := "file"
			if t.nodes[idx].record.IsDirectory() {
				kind = "dir"
			}
			fmt.Fprintf(w, "%s%s [%s]\n", strings.Repeat("  ", depth), t.nodes[idx].name, kind)
		}
		for _, c := range t.Children(idx) {
			walk(c, depth+1)
		}
	}
	walk(t.Root(), 0)
}
